// Package likelihood combines a data and a Monte Carlo manager into the
// extended negative log-likelihood handed to minimizers.
package likelihood

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"

	"github.com/GoSim-25-26J-441/amplitude-core/internal/amplitude"
	"github.com/GoSim-25-26J-441/amplitude-core/internal/dataset"
	"github.com/GoSim-25-26J-441/amplitude-core/internal/engine"
)

var (
	ErrModelMismatch    = errors.New("data and monte carlo managers use different models")
	ErrEmptyMonteCarlo  = errors.New("monte carlo sample has no weight")
	ErrNoFreeParameters = errors.New("model has no free parameters")
)

// ExtendedLogLikelihood evaluates
//
//	NLL(p) = -2 (Σ_data w ln I(p) - (N_data/N_MC) Σ_MC w I(p))
//
// where N_data and N_MC are the summed event weights of each sample.
// Non-positive intensities are not clamped: they surface as NaN or ±Inf.
type ExtendedLogLikelihood struct {
	data *engine.Manager
	mc   *engine.Manager
}

// New pairs a data and a Monte Carlo manager built on the same model.
func New(data, mc *engine.Manager) (*ExtendedLogLikelihood, error) {
	if data.Model() != mc.Model() {
		return nil, ErrModelMismatch
	}
	if mc.Dataset().Len() == 0 || mc.Dataset().SumWeights() == 0 {
		return nil, ErrEmptyMonteCarlo
	}
	return &ExtendedLogLikelihood{data: data, mc: mc}, nil
}

// Model returns the shared model.
func (l *ExtendedLogLikelihood) Model() *amplitude.Model { return l.data.Model() }

// Data returns the data manager.
func (l *ExtendedLogLikelihood) Data() *engine.Manager { return l.data }

// MC returns the Monte Carlo manager.
func (l *ExtendedLogLikelihood) MC() *engine.Manager { return l.mc }

// Evaluate returns the NLL over both full samples. opts may select serial
// evaluation; index selections belong in EvaluateIndexed.
func (l *ExtendedLogLikelihood) Evaluate(params []float64, opts ...engine.EvalOption) (float64, error) {
	return l.EvaluateIndexed(params, nil, nil, opts...)
}

// EvaluateIndexed returns the NLL over the selected data and Monte Carlo
// events. A nil selection means the whole sample.
func (l *ExtendedLogLikelihood) EvaluateIndexed(params []float64, dataIdx, mcIdx []int, opts ...engine.EvalOption) (float64, error) {
	dataI, dataW, err := evaluate(l.data, params, dataIdx, opts)
	if err != nil {
		return 0, fmt.Errorf("data: %w", err)
	}
	mcI, mcW, err := evaluate(l.mc, params, mcIdx, opts)
	if err != nil {
		return 0, fmt.Errorf("monte carlo: %w", err)
	}

	nMC := floats.Sum(mcW)
	if nMC == 0 {
		return 0, ErrEmptyMonteCarlo
	}
	for i, v := range dataI {
		dataI[i] = math.Log(v)
	}
	lnL := floats.Dot(dataW, dataI)
	norm := floats.Sum(dataW) / nMC * floats.Dot(mcW, mcI)
	return -2 * (lnL - norm), nil
}

func evaluate(m *engine.Manager, params []float64, idx []int, opts []engine.EvalOption) (intensity, weights []float64, err error) {
	if idx == nil {
		intensity, err = m.Evaluate(params, opts...)
		return intensity, m.Dataset().Weights(), err
	}
	intensity, err = m.Evaluate(params, append(opts, engine.WithIndices(idx))...)
	return intensity, m.Dataset().WeightsIndexed(idx), err
}

// Intensity returns the intensity of every event of mc scaled by its weight
// and by N_data/N_MC, so that summing over events estimates the expected data
// yield. mc may differ from the sample the likelihood was built with, such as
// generated rather than accepted Monte Carlo; nil means the bound sample.
func (l *ExtendedLogLikelihood) Intensity(params []float64, mc *dataset.Dataset, opts ...engine.EvalOption) ([]float64, error) {
	return l.IntensityIndexed(params, mc, nil, nil, opts...)
}

// IntensityIndexed is Intensity restricted to the selected events of mc.
// N_data and N_MC are the weight sums of the data and Monte Carlo
// selections; a nil selection means the whole sample.
func (l *ExtendedLogLikelihood) IntensityIndexed(params []float64, mc *dataset.Dataset, dataIdx, mcIdx []int, opts ...engine.EvalOption) ([]float64, error) {
	nData, err := sumWeights(l.data.Dataset(), dataIdx)
	if err != nil {
		return nil, fmt.Errorf("data: %w", err)
	}
	m, err := l.mcManager(mc)
	if err != nil {
		return nil, err
	}
	out, weights, err := evaluate(m, params, mcIdx, opts)
	if err != nil {
		return nil, err
	}
	nMC := floats.Sum(weights)
	if nMC == 0 {
		return nil, ErrEmptyMonteCarlo
	}
	floats.Mul(out, weights)
	floats.Scale(nData/nMC, out)
	return out, nil
}

// mcManager returns the bound Monte Carlo manager for nil or the bound
// sample, and a fresh manager over mc otherwise.
func (l *ExtendedLogLikelihood) mcManager(mc *dataset.Dataset) (*engine.Manager, error) {
	if mc == nil || mc == l.mc.Dataset() {
		return l.mc, nil
	}
	m, err := engine.NewManager(l.Model(), mc, l.mc.Workers())
	if err != nil {
		return nil, fmt.Errorf("monte carlo: %w", err)
	}
	return m, nil
}

func sumWeights(ds *dataset.Dataset, idx []int) (float64, error) {
	if idx == nil {
		return ds.SumWeights(), nil
	}
	for _, i := range idx {
		if i < 0 || i >= ds.Len() {
			return 0, fmt.Errorf("%w: %d not in [0, %d)", engine.ErrIndexOutOfRange, i, ds.Len())
		}
	}
	return ds.SumWeightsIndexed(idx), nil
}
