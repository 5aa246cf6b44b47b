package fitd

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"gonum.org/v1/gonum/optimize"

	"github.com/GoSim-25-26J-441/amplitude-core/internal/amplitude"
	"github.com/GoSim-25-26J-441/amplitude-core/internal/dataset"
	"github.com/GoSim-25-26J-441/amplitude-core/internal/engine"
	"github.com/GoSim-25-26J-441/amplitude-core/internal/likelihood"
	"github.com/GoSim-25-26J-441/amplitude-core/internal/metrics"
	"github.com/GoSim-25-26J-441/amplitude-core/internal/store"
	"github.com/GoSim-25-26J-441/amplitude-core/pkg/config"
	"github.com/GoSim-25-26J-441/amplitude-core/pkg/logger"
	"github.com/GoSim-25-26J-441/amplitude-core/pkg/models"
	"github.com/GoSim-25-26J-441/amplitude-core/pkg/utils"
)

// Options configures sessions and fits created by a FitExecutor.
type Options struct {
	Workers        int
	Method         string
	MaxEvaluations int
	Registry       amplitude.Registry
	Notifier       *Notifier
}

// SessionInput describes a session to create. Model is a model spec in YAML;
// Data and MC name stored datasets.
type SessionInput struct {
	ID    string `json:"session_id,omitempty"`
	Model string `json:"model"`
	Data  string `json:"data"`
	MC    string `json:"mc"`
}

// FitRequest starts a fit. Zero fields fall back to the executor options;
// a nil Initial starts from the model's initial values. A non-nil
// Convergence stops the fit early once its strategy reports convergence.
type FitRequest struct {
	Method         string              `json:"method,omitempty"`
	MaxEvaluations int                 `json:"max_evaluations,omitempty"`
	Initial        []float64           `json:"initial,omitempty"`
	Convergence    *ConvergenceRequest `json:"convergence,omitempty"`
	CallbackURL    string              `json:"callback_url,omitempty"`
	CallbackSecret string              `json:"callback_secret,omitempty"`
}

// ConvergenceRequest selects an early stopping strategy. Zero fields take
// the strategy defaults.
type ConvergenceRequest struct {
	Strategy       string  `json:"strategy,omitempty"`
	Window         int     `json:"window,omitempty"`
	Tolerance      float64 `json:"tolerance,omitempty"`
	RelativeSpread float64 `json:"relative_spread,omitempty"`
	MinEvaluations int     `json:"min_evaluations,omitempty"`
}

func (c *ConvergenceRequest) strategy() (likelihood.ConvergenceStrategy, error) {
	if c == nil {
		return nil, nil
	}
	return likelihood.NewConvergenceStrategy(c.Strategy, &likelihood.ConvergenceConfig{
		Window:         c.Window,
		Tolerance:      c.Tolerance,
		RelativeSpread: c.RelativeSpread,
		MinEvaluations: c.MinEvaluations,
	})
}

type fitCallback struct {
	url    string
	secret string
}

// fitHandle tracks the running fit of one session.
type fitHandle struct {
	fitID    string
	cancel   context.CancelFunc
	callback fitCallback
}

// fitPlan is a validated FitRequest.
type fitPlan struct {
	id          string
	method      string
	optimizer   optimize.Method
	maxEvals    int
	initial     []float64
	convergence likelihood.ConvergenceStrategy
}

// FitExecutor builds sessions and manages asynchronous fits with
// per-session cancellation.
type FitExecutor struct {
	sessions *SessionStore
	store    store.Store
	opts     Options

	mu      sync.Mutex
	running map[string]fitHandle
	wg      sync.WaitGroup
}

func NewFitExecutor(sessions *SessionStore, st store.Store, opts Options) *FitExecutor {
	if opts.Method == "" {
		opts.Method = "nelder-mead"
	}
	if opts.Registry == nil {
		opts.Registry = amplitude.DefaultRegistry()
	}
	if opts.Notifier == nil {
		opts.Notifier = NewNotifier()
	}
	return &FitExecutor{
		sessions: sessions,
		store:    st,
		opts:     opts,
		running:  make(map[string]fitHandle),
	}
}

// Sessions returns the backing session store.
func (e *FitExecutor) Sessions() *SessionStore { return e.sessions }

// Store returns the dataset and result store.
func (e *FitExecutor) Store() store.Store { return e.store }

// CreateSession builds the model, precalculates it against both datasets
// and registers the session.
func (e *FitExecutor) CreateSession(ctx context.Context, in SessionInput) (*SessionRecord, error) {
	if in.Model == "" || in.Data == "" || in.MC == "" {
		return nil, fmt.Errorf("%w: model, data and mc are required", ErrInvalidRequest)
	}
	if in.ID == "" {
		in.ID = utils.GenerateSessionID()
	}
	if _, exists := e.sessions.Get(in.ID); exists {
		return nil, fmt.Errorf("%w: %s", ErrSessionExists, in.ID)
	}

	spec, err := config.ParseModelYAMLString(in.Model)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}
	model, err := amplitude.Build(spec, e.opts.Registry)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}

	data, err := e.loadDataset(ctx, in.Data)
	if err != nil {
		return nil, err
	}
	mc, err := e.loadDataset(ctx, in.MC)
	if err != nil {
		return nil, err
	}

	collector := metrics.NewCollector()
	recorder := metrics.NewEvaluationRecorder(collector, metrics.SessionLabels(in.ID))
	log := logger.With("session_id", in.ID)

	dm, err := engine.NewManager(model, data, e.opts.Workers)
	if err != nil {
		return nil, fmt.Errorf("%w: data: %v", ErrInvalidRequest, err)
	}
	mm, err := engine.NewManager(model, mc, e.opts.Workers)
	if err != nil {
		return nil, fmt.Errorf("%w: mc: %v", ErrInvalidRequest, err)
	}
	dm.SetLogger(log)
	dm.SetRecorder(in.Data, recorder)
	mm.SetLogger(log)
	mm.SetRecorder(in.MC, recorder)

	l, err := likelihood.New(dm, mm)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}

	rec := &SessionRecord{
		ID:         in.ID,
		DataName:   in.Data,
		MCName:     in.MC,
		ModelYAML:  in.Model,
		Model:      model,
		Likelihood: l,
		Collector:  collector,
	}
	if err := e.sessions.Add(rec); err != nil {
		return nil, err
	}
	log.Info("session created", "data", in.Data, "mc", in.MC, "free_parameters", model.NFree())
	return rec, nil
}

func (e *FitExecutor) loadDataset(ctx context.Context, name string) (*dataset.Dataset, error) {
	ds, ok, err := e.store.GetDataset(ctx, name)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrDatasetNotFound, name)
	}
	return ds, nil
}

func (e *FitExecutor) session(id string) (*SessionRecord, error) {
	if id == "" {
		return nil, ErrSessionIDMissing
	}
	rec, ok := e.sessions.Get(id)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	return rec, nil
}

// Evaluate returns the session's NLL at params.
func (e *FitExecutor) Evaluate(id string, params []float64) (float64, error) {
	rec, err := e.session(id)
	if err != nil {
		return 0, err
	}
	return rec.Likelihood.Evaluate(params)
}

// Intensity returns the weighted, normalized Monte Carlo intensities at
// params over the stored dataset mcName, or over the session's own Monte
// Carlo sample when mcName is empty.
func (e *FitExecutor) Intensity(ctx context.Context, id string, params []float64, mcName string) ([]float64, error) {
	rec, err := e.session(id)
	if err != nil {
		return nil, err
	}
	var mc *dataset.Dataset
	if mcName != "" && mcName != rec.MCName {
		if mc, err = e.loadDataset(ctx, mcName); err != nil {
			return nil, err
		}
	}
	values, err := rec.Likelihood.Intensity(params, mc)
	if errors.Is(err, amplitude.ErrNodeShared) {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}
	return values, err
}

// ApplyPlan edits the session's parameters and activation. It is rejected
// while a fit runs.
func (e *FitExecutor) ApplyPlan(id string, plan *config.ParameterPlan) error {
	if id == "" {
		return ErrSessionIDMissing
	}
	if err := plan.Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}
	return e.sessions.withIdle(id, func(rec *SessionRecord) error {
		if err := plan.Apply(rec.Model); err != nil {
			return err
		}
		logger.Info("parameter plan applied", "session_id", id, "free_parameters", rec.Model.NFree())
		return nil
	})
}

// DeleteSession cancels any running fit and forgets the session.
func (e *FitExecutor) DeleteSession(id string) error {
	if id == "" {
		return ErrSessionIDMissing
	}
	if _, err := e.StopFit(id); err != nil && !errors.Is(err, ErrNoFit) && !errors.Is(err, ErrSessionTerminal) {
		return err
	}
	if !e.sessions.Delete(id) {
		return fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	logger.Info("session deleted", "session_id", id)
	return nil
}

// StartFit begins minimizing the session's NLL asynchronously.
func (e *FitExecutor) StartFit(id string, req FitRequest) (*models.Fit, error) {
	if id == "" {
		return nil, ErrSessionIDMissing
	}
	name := req.Method
	if name == "" {
		name = e.opts.Method
	}
	method, err := likelihood.Method(name)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}
	maxEvals := req.MaxEvaluations
	if maxEvals <= 0 {
		maxEvals = e.opts.MaxEvaluations
	}
	conv, err := req.Convergence.strategy()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}
	if req.CallbackURL != "" {
		if err := validateCallbackURL(req.CallbackURL); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
		}
	}

	rec, fit, err := e.sessions.beginFit(id, name)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(context.Background())
	e.mu.Lock()
	if old, exists := e.running[id]; exists {
		old.cancel()
	}
	e.running[id] = fitHandle{
		fitID:    fit.ID,
		cancel:   cancel,
		callback: fitCallback{url: req.CallbackURL, secret: req.CallbackSecret},
	}
	e.mu.Unlock()

	plan := fitPlan{
		id:          fit.ID,
		method:      name,
		optimizer:   method,
		maxEvals:    maxEvals,
		initial:     req.Initial,
		convergence: conv,
	}
	e.wg.Add(1)
	go e.runFit(ctx, rec, plan)
	return fit, nil
}

// StopFit cancels the session's running fit and marks it cancelled.
func (e *FitExecutor) StopFit(id string) (*models.Fit, error) {
	if id == "" {
		return nil, ErrSessionIDMissing
	}
	rec, err := e.session(id)
	if err != nil {
		return nil, err
	}

	e.mu.Lock()
	handle, ok := e.running[id]
	e.mu.Unlock()
	if ok {
		handle.cancel()
	}

	fit, finished := e.sessions.finishFit(id, models.FitStatusCancelled, "stopped by request", "")
	if !finished {
		current, err := e.sessions.Fit(id)
		if err != nil {
			return nil, err
		}
		if current.Status == models.FitStatusIdle {
			return nil, fmt.Errorf("%w: %s", ErrNoFit, id)
		}
		return nil, fmt.Errorf("%w: %s", ErrSessionTerminal, id)
	}
	e.persist(rec, fit, handle.callback)
	return &fit, nil
}

// Fit returns the session's latest fit.
func (e *FitExecutor) Fit(id string) (*models.Fit, error) {
	if id == "" {
		return nil, ErrSessionIDMissing
	}
	return e.sessions.Fit(id)
}

// WaitFit blocks until the session's current fit finishes or ctx is done.
func (e *FitExecutor) WaitFit(ctx context.Context, id string) (*models.Fit, error) {
	done, err := e.sessions.doneChan(id)
	if err != nil {
		return nil, err
	}
	select {
	case <-done:
		return e.sessions.Fit(id)
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Shutdown cancels every running fit and waits for them to return.
func (e *FitExecutor) Shutdown() {
	e.mu.Lock()
	for _, h := range e.running {
		h.cancel()
	}
	e.mu.Unlock()
	e.wg.Wait()
}

// cleanup releases the handle of fit fitID unless a newer fit replaced it.
func (e *FitExecutor) cleanup(id, fitID string) {
	e.mu.Lock()
	if h, ok := e.running[id]; ok && h.fitID == fitID {
		h.cancel()
		delete(e.running, id)
	}
	e.mu.Unlock()
}

func (e *FitExecutor) callback(id, fitID string) fitCallback {
	e.mu.Lock()
	defer e.mu.Unlock()
	if h, ok := e.running[id]; ok && h.fitID == fitID {
		return h.callback
	}
	return fitCallback{}
}

func (e *FitExecutor) runFit(ctx context.Context, rec *SessionRecord, plan fitPlan) {
	defer e.wg.Done()
	defer e.cleanup(rec.ID, plan.id)

	log := logger.With("session_id", rec.ID, "fit_id", plan.id)
	rec.Collector.Clear()
	rec.Collector.Start()
	defer rec.Collector.Stop()

	// fitCtx is also cancelled when the convergence monitor fires.
	fitCtx, stopEarly := context.WithCancel(ctx)
	defer stopEarly()
	var monitor *likelihood.ConvergenceMonitor
	if plan.convergence != nil {
		monitor = likelihood.NewConvergenceMonitor(plan.convergence, func(reason string) {
			log.Info("fit converged", "strategy", plan.convergence.Name(), "reason", reason)
			stopEarly()
		})
	}

	labels := map[string]string{"fit": plan.id}
	progress := rec.progress
	obj := rec.Likelihood.Objective(fitCtx)
	obj.OnEvaluate(func(x []float64, nll float64) {
		progress.Observe(x, nll)
		if utils.IsFinite(nll) {
			metrics.RecordNLL(rec.Collector, nll, time.Now(), labels)
		}
		if monitor != nil {
			monitor.Observe(nll)
		}
	})

	settings := &optimize.Settings{FuncEvaluations: plan.maxEvals}
	log.Info("fit started", "method", plan.method, "max_evaluations", plan.maxEvals)
	res, err := rec.Likelihood.MinimizeObjective(obj, plan.initial, plan.optimizer, settings)

	status, reason, errMsg := models.FitStatusCompleted, "", ""
	if res != nil {
		reason = res.Status.String()
	}
	converged, why := false, ""
	if monitor != nil {
		converged, why = monitor.Converged()
	}
	switch {
	case ctx.Err() != nil:
		status = models.FitStatusCancelled
	case converged:
		reason = why
	case err != nil:
		status, errMsg = models.FitStatusFailed, err.Error()
	}
	callback := e.callback(rec.ID, plan.id)
	fit, finished := e.sessions.finishFit(rec.ID, status, reason, errMsg)
	if !finished {
		// StopFit already finalized and persisted the fit.
		return
	}
	log.Info("fit finished", "status", fit.Status, "reason", fit.StopReason,
		"best_nll", fit.BestNLL, "evaluations", fit.Evaluations, "error", errMsg)
	e.persist(rec, fit, callback)
}

// persist saves a finished fit, counts it and sends its notification.
func (e *FitExecutor) persist(rec *SessionRecord, fit models.Fit, callback fitCallback) {
	metrics.ObserveFit(fit.Method, fit.Status)

	names := rec.Model.FreeParameterNames()
	result := models.FitResult{
		ID:             fit.ID,
		SessionID:      rec.ID,
		Status:         fit.Status,
		Method:         fit.Method,
		NLL:            fit.BestNLL,
		Parameters:     fit.BestParams,
		ParameterNames: names,
		Evaluations:    fit.Evaluations,
		Duration:       fit.Duration,
		StopReason:     fit.StopReason,
		Error:          fit.Error,
		CreatedAt:      fit.EndTime,
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := e.store.SaveFitResult(ctx, result); err != nil {
		logger.Error("failed to save fit result", "session_id", rec.ID, "fit_id", fit.ID, "error", err)
	}
	e.opts.Notifier.Notify(callback.url, callback.secret, rec.ID, names, fit)
}
