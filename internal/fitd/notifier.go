package fitd

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/GoSim-25-26J-441/amplitude-core/pkg/logger"
	"github.com/GoSim-25-26J-441/amplitude-core/pkg/models"
	"github.com/GoSim-25-26J-441/amplitude-core/pkg/utils"
)

// CallbackSecretHeader carries the per-fit callback secret.
const CallbackSecretHeader = "X-Ampcore-Callback-Secret"

// NotificationPayload is the JSON body POSTed to a fit's callback URL.
type NotificationPayload struct {
	SessionID       string           `json:"session_id"`
	FitID           string           `json:"fit_id"`
	Status          models.FitStatus `json:"status"`
	Method          string           `json:"method"`
	BestNLL         *float64         `json:"best_nll,omitempty"` // unset when no finite NLL was seen
	BestParams      []float64        `json:"best_params,omitempty"`
	ParameterNames  []string         `json:"parameter_names,omitempty"`
	Evaluations     int              `json:"evaluations"`
	StartedAtUnixMs int64            `json:"started_at_unix_ms"`
	EndedAtUnixMs   int64            `json:"ended_at_unix_ms,omitempty"`
	StopReason      string           `json:"stop_reason,omitempty"`
	Error           string           `json:"error,omitempty"`
	Timestamp       int64            `json:"timestamp"` // When notification was sent
}

// Notifier posts fit completion notifications with retries.
type Notifier struct {
	httpClient *http.Client
	maxRetries int
	backoff    utils.BackoffStrategy
}

// NewNotifier creates a new notification service with jittered exponential
// retry delays.
func NewNotifier() *Notifier {
	backoff := utils.NewExponentialBackoff(time.Second, 30*time.Second)
	backoff.Jitter = utils.NewRandSource(0)
	return &Notifier{
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
		maxRetries: 3,
		backoff:    backoff,
	}
}

// Callback URL validation errors.
var (
	ErrInvalidURL       = errors.New("invalid callback url")
	ErrMetadataEndpoint = errors.New("callback url targets a cloud metadata endpoint")
	ErrInternalHost     = errors.New("callback url targets an internal address")
)

var metadataHosts = map[string]bool{
	"169.254.169.254":          true,
	"metadata.google.internal": true,
	"metadata":                 true,
	"fd00:ec2::254":            true,
}

// validateCallbackURL accepts absolute http(s) URLs. Literal loopback,
// private, link-local and unspecified IPs are rejected; hostnames such as
// localhost are not resolved.
func validateCallbackURL(raw string) error {
	u, err := url.Parse(strings.ReplaceAll(raw, "{session_id}", "x"))
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidURL, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("%w: scheme must be http or https, got %q", ErrInvalidURL, u.Scheme)
	}
	host := strings.ToLower(u.Hostname())
	if host == "" {
		return fmt.Errorf("%w: missing host", ErrInvalidURL)
	}
	if metadataHosts[host] {
		return fmt.Errorf("%w: %s", ErrMetadataEndpoint, host)
	}
	if ip := net.ParseIP(host); ip != nil && isPrivateIP(ip) {
		return fmt.Errorf("%w: %s", ErrInternalHost, host)
	}
	return nil
}

func isPrivateIP(ip net.IP) bool {
	return ip.IsLoopback() || ip.IsPrivate() || ip.IsUnspecified() ||
		ip.IsLinkLocalUnicast() || ip.IsLinkLocalMulticast()
}

// Notify sends fit to callbackURL asynchronously. A "{session_id}" in the
// URL is replaced by the session ID.
func (n *Notifier) Notify(callbackURL, callbackSecret, sessionID string, paramNames []string, fit models.Fit) {
	if callbackURL == "" {
		return
	}

	finalURL := strings.ReplaceAll(callbackURL, "{session_id}", url.PathEscape(sessionID))

	payload := NotificationPayload{
		SessionID:       sessionID,
		FitID:           fit.ID,
		Status:          fit.Status,
		Method:          fit.Method,
		BestParams:      fit.BestParams,
		ParameterNames:  paramNames,
		Evaluations:     fit.Evaluations,
		StartedAtUnixMs: fit.StartTime.UnixMilli(),
		StopReason:      fit.StopReason,
		Error:           fit.Error,
		Timestamp:       time.Now().UTC().UnixMilli(),
	}
	if !fit.EndTime.IsZero() {
		payload.EndedAtUnixMs = fit.EndTime.UnixMilli()
	}
	if len(fit.BestParams) > 0 && utils.IsFinite(fit.BestNLL) {
		nll := fit.BestNLL
		payload.BestNLL = &nll
	}

	go n.sendNotification(finalURL, callbackSecret, payload)
}

// sendNotification performs the HTTP POST with exponential backoff.
func (n *Notifier) sendNotification(callbackURL, callbackSecret string, payload NotificationPayload) {
	payloadJSON, err := json.Marshal(payload)
	if err != nil {
		logger.Error("failed to marshal notification payload",
			"callback_url", callbackURL,
			"fit_id", payload.FitID,
			"error", err)
		return
	}

	var lastErr error
	for attempt := 0; attempt <= n.maxRetries; attempt++ {
		if attempt > 0 {
			delay := n.backoff.NextDelay(attempt - 1)
			logger.Debug("retrying notification",
				"callback_url", callbackURL,
				"fit_id", payload.FitID,
				"attempt", attempt,
				"delay", delay)
			time.Sleep(delay)
		}

		req, err := http.NewRequest(http.MethodPost, callbackURL, bytes.NewReader(payloadJSON))
		if err != nil {
			lastErr = fmt.Errorf("failed to create request: %w", err)
			continue
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("User-Agent", "amplitude-core/1.0")
		if callbackSecret != "" {
			req.Header.Set(CallbackSecretHeader, callbackSecret)
		}

		resp, err := n.httpClient.Do(req)
		if err != nil {
			lastErr = fmt.Errorf("HTTP request failed: %w", err)
			logger.Warn("notification attempt failed",
				"callback_url", callbackURL,
				"fit_id", payload.FitID,
				"attempt", attempt+1,
				"error", err)
			continue
		}

		bodyBytes, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<10))
		resp.Body.Close()
		responseBody := string(bodyBytes)
		if len(responseBody) > 200 {
			responseBody = responseBody[:200] + "..."
		}

		if resp.StatusCode >= 200 && resp.StatusCode < 300 {
			logger.Info("notification sent",
				"session_id", payload.SessionID,
				"fit_id", payload.FitID,
				"status", payload.Status,
				"status_code", resp.StatusCode)
			return
		}

		lastErr = fmt.Errorf("unexpected status code: %d", resp.StatusCode)
		logger.Warn("notification returned non-2xx status",
			"callback_url", callbackURL,
			"fit_id", payload.FitID,
			"status_code", resp.StatusCode,
			"response_body", responseBody,
			"attempt", attempt+1)
	}

	logger.Error("failed to send notification after retries",
		"callback_url", callbackURL,
		"fit_id", payload.FitID,
		"status", payload.Status,
		"max_retries", n.maxRetries,
		"last_error", lastErr)
}
