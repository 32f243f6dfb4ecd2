// internal/dialogue/analysis-dispatcher/dispatcher.go
package analysisdispatcher

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"time"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	apperrors "geodialogue/internal/common/errors"
	"geodialogue/internal/common/metrics"
	"geodialogue/internal/common/observability"
	"geodialogue/internal/common/validation"
	"geodialogue/internal/models"
	"geodialogue/pkg/registry"
)

type Logger interface {
	Info(msg string, fields map[string]interface{})
	Warn(msg string, fields map[string]interface{})
}

// Dispatcher validates complete requests, sends them to the engine and
// retries transient failures with exponential backoff.
type Dispatcher struct {
	cfg       Config
	engine    Engine
	registry  *registry.Registry
	validator *validation.Validator
	obs       *observability.Observability
	logger    Logger
}

// New registers the JSON schema of every analysis kind. obs and log may be nil.
func New(cfg Config, engine Engine, reg *registry.Registry, obs *observability.Observability, log Logger) (*Dispatcher, error) {
	def := DefaultConfig()
	if cfg.AttemptTimeout <= 0 {
		cfg.AttemptTimeout = def.AttemptTimeout
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	if cfg.BackoffBase <= 0 {
		cfg.BackoffBase = def.BackoffBase
	}

	v := validation.NewValidator()
	for _, s := range reg.Schemas() {
		if err := v.Register(string(s.Kind), s.JSONSchema()); err != nil {
			return nil, fmt.Errorf("register schema %s: %w", s.Kind, err)
		}
	}
	return &Dispatcher{
		cfg:       cfg,
		engine:    engine,
		registry:  reg,
		validator: v,
		obs:       obs,
		logger:    log,
	}, nil
}

// Dispatch never returns nil. Engine results are passed through; failures
// carry the engine's reason verbatim.
func (d *Dispatcher) Dispatch(ctx context.Context, req *models.AnalysisRequest) *models.AnalysisOutcome {
	start := time.Now()
	out := &models.AnalysisOutcome{RequestID: req.ID, Kind: req.Kind}
	defer func() {
		metrics.AnalysisDispatches.WithLabelValues(string(req.Kind), string(out.Status)).Inc()
		metrics.AnalysisDispatchDuration.WithLabelValues(string(req.Kind)).Observe(time.Since(start).Seconds())
	}()

	if reason := d.validate(req); reason != "" {
		d.warn("analysis request rejected", map[string]interface{}{
			"request_id": req.ID,
			"kind":       string(req.Kind),
			"reason":     reason,
		})
		return fail(out, reason, false)
	}

	attempts := d.cfg.MaxRetries + 1
	for attempt := 1; attempt <= attempts; attempt++ {
		out.Attempts = attempt
		result, err := d.attempt(ctx, req)
		if err == nil {
			out.Status = models.OutcomeSuccess
			out.Result = result
			d.info("analysis completed", map[string]interface{}{
				"request_id": req.ID,
				"kind":       string(req.Kind),
				"attempts":   attempt,
			})
			return out
		}

		if ctx.Err() != nil {
			return interrupted(ctx, out)
		}
		transient, reason := d.classify(err)
		if !transient {
			return fail(out, reason, false)
		}
		if attempt == attempts {
			return fail(out, fmt.Sprintf("%s (gave up after %d attempts)", reason, attempt), true)
		}

		delay := d.cfg.backoff(attempt)
		d.warn("transient engine failure, retrying", map[string]interface{}{
			"request_id": req.ID,
			"attempt":    attempt,
			"delay":      delay.String(),
			"error":      err.Error(),
		})
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return interrupted(ctx, out)
		}
	}
	return fail(out, "no attempts made", false)
}

// interrupted reports a dispatch cut short by the caller. A passed deadline
// is a timeout and may be retried; an explicit cancel is final.
func interrupted(ctx context.Context, out *models.AnalysisOutcome) *models.AnalysisOutcome {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return fail(out, "the request deadline passed before the engine answered", true)
	}
	return fail(out, "request cancelled", false)
}

func (d *Dispatcher) validate(req *models.AnalysisRequest) string {
	if _, ok := d.registry.Schema(req.Kind); !ok {
		return fmt.Sprintf("unknown analysis kind %q", req.Kind)
	}
	res, err := d.validator.Validate(string(req.Kind), map[string]interface{}(req.Params))
	if err != nil {
		return fmt.Sprintf("parameter validation failed: %v", err)
	}
	if !res.Valid {
		return "invalid parameters: " + res.Summary()
	}
	return ""
}

func (d *Dispatcher) attempt(ctx context.Context, req *models.AnalysisRequest) (json.RawMessage, error) {
	attemptCtx, cancel := context.WithTimeout(ctx, d.cfg.AttemptTimeout)
	defer cancel()

	start := time.Now()
	result, err := d.engine.Run(attemptCtx, req)
	callStatus := "success"
	if err != nil {
		callStatus = "error"
		// The attempt budget ran out while the caller is still waiting.
		if ctx.Err() == nil && attemptCtx.Err() == context.DeadlineExceeded {
			err = apperrors.NewEngineTimeoutError(d.cfg.AttemptTimeout)
			callStatus = "timeout"
		}
	}
	d.obs.RecordEngineCall(ctx, d.engine.Name(), string(req.Kind), callStatus, time.Since(start))
	return result, err
}

// classify reports whether err is worth retrying and the text to show.
func (d *Dispatcher) classify(err error) (bool, string) {
	var engineErr *EngineError
	if errors.As(err, &engineErr) {
		return engineErr.Transient, engineErr.reason()
	}
	if stdErr, ok := apperrors.AsStandardError(err); ok {
		if stdErr.Code == apperrors.ErrCodeEngineTimeout {
			return true, fmt.Sprintf("the engine did not answer within %s", d.cfg.AttemptTimeout)
		}
		return stdErr.Retryable, stdErr.Message
	}
	if st, ok := status.FromError(err); ok && st.Code() != codes.Unknown {
		switch st.Code() {
		case codes.Unavailable, codes.DeadlineExceeded, codes.ResourceExhausted:
			return true, st.Message()
		}
		return false, st.Message()
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true, "the analysis engine is unreachable"
	}
	return false, err.Error()
}

func fail(out *models.AnalysisOutcome, reason string, transient bool) *models.AnalysisOutcome {
	out.Status = models.OutcomeFailure
	out.Reason = reason
	out.Transient = transient
	return out
}

func (d *Dispatcher) info(msg string, fields map[string]interface{}) {
	if d.logger != nil {
		d.logger.Info(msg, fields)
	}
}

func (d *Dispatcher) warn(msg string, fields map[string]interface{}) {
	if d.logger != nil {
		d.logger.Warn(msg, fields)
	}
}
