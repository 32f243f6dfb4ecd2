// internal/dialogue/dialogue-manager/manager.go
package dialoguemanager

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	apperrors "geodialogue/internal/common/errors"
	"geodialogue/internal/common/metrics"
	intentclassifier "geodialogue/internal/dialogue/intent-classifier"
	parameterextractor "geodialogue/internal/dialogue/parameter-extractor"
	"geodialogue/internal/models"
	"geodialogue/pkg/registry"
)

const storeTimeout = 5 * time.Second

type Logger interface {
	Debug(msg string, fields map[string]interface{})
	Info(msg string, fields map[string]interface{})
	Warn(msg string, fields map[string]interface{})
}

type Classifier interface {
	Classify(ctx context.Context, utterance string, prior models.AnalysisKind) intentclassifier.Result
}

type Extractor interface {
	Extract(ctx context.Context, utterance string, kind models.AnalysisKind, known models.ParameterSet, pending string) parameterextractor.Result
}

// Dispatcher sends a complete request to the analysis engine. It never
// returns nil.
type Dispatcher interface {
	Dispatch(ctx context.Context, req *models.AnalysisRequest) *models.AnalysisOutcome
}

// Turn is one utterance delivered by the chat transport.
type Turn struct {
	SessionID string    `json:"sessionId"`
	Utterance string    `json:"utterance"`
	Timestamp time.Time `json:"timestamp"`
}

// Reply is what the chat transport renders.
type Reply struct {
	Message        string                  `json:"message"`
	AwaitingInput  bool                    `json:"awaitingInput"`
	AnalysisResult *models.AnalysisOutcome `json:"analysisResult,omitempty"`
	Kind           models.AnalysisKind     `json:"kind,omitempty"`
	Missing        []string                `json:"missing,omitempty"`
	Notices        []string                `json:"notices,omitempty"`
	Codes          []string                `json:"codes,omitempty"`
}

// Deps bundles the collaborators of a Manager.
type Deps struct {
	Registry   *registry.Registry
	Classifier Classifier
	Extractor  Extractor
	Dispatcher Dispatcher
	Store      models.SessionStore
	Logger     Logger
}

// Manager runs the per-session dialogue. Turns for one session are processed
// one at a time; different sessions run concurrently.
type Manager struct {
	cfg        Config
	registry   *registry.Registry
	classifier Classifier
	extractor  Extractor
	dispatcher Dispatcher
	store      models.SessionStore
	logger     Logger
	locks      *sessionLocks
	now        func() time.Time
	newID      func() string
}

func New(cfg Config, deps Deps) *Manager {
	if cfg.TurnCap <= 0 {
		cfg.TurnCap = DefaultConfig().TurnCap
	}
	if cfg.BBoxBuffer <= 0 {
		cfg.BBoxBuffer = DefaultConfig().BBoxBuffer
	}
	return &Manager{
		cfg:        cfg,
		registry:   deps.Registry,
		classifier: deps.Classifier,
		extractor:  deps.Extractor,
		dispatcher: deps.Dispatcher,
		store:      deps.Store,
		logger:     deps.Logger,
		locks:      newSessionLocks(),
		now:        time.Now,
		newID:      uuid.NewString,
	}
}

// HandleTurn processes one utterance. Errors are store or request problems;
// every dialogue outcome, including engine failures, is a Reply.
func (m *Manager) HandleTurn(ctx context.Context, turn Turn) (*Reply, error) {
	sessionID := strings.TrimSpace(turn.SessionID)
	if sessionID == "" {
		return nil, apperrors.NewInvalidRequestError("sessionId is required")
	}

	unlock := m.locks.lock(sessionID)
	defer unlock()

	now := turn.Timestamp
	if now.IsZero() {
		now = m.now()
	}

	state, err := m.load(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	isNew := state == nil

	next, decision := m.Transition(ctx, state, turn.Utterance)
	metrics.DialogueTurns.WithLabelValues(string(decision.Action)).Inc()
	for _, issue := range decision.Issues {
		metrics.DialogueIssues.WithLabelValues(string(issue.Code)).Inc()
	}

	m.debug("turn processed", map[string]interface{}{
		"session_id": sessionID,
		"action":     string(decision.Action),
		"param":      decision.Param,
		"codes":      decision.Codes(),
	})

	switch decision.Action {
	case ActionDispatch:
		return m.dispatch(ctx, sessionID, isNew, next, decision, now)

	case ActionRestart:
		metrics.DialogueRestarts.Inc()
		m.info("dialogue abandoned at turn cap", map[string]interface{}{
			"session_id": sessionID,
			"turn_cap":   m.cfg.TurnCap,
		})
		if err := m.delete(ctx, sessionID); err != nil {
			return nil, err
		}
		return &Reply{Message: decision.Message, AwaitingInput: true, Codes: decision.Codes()}, nil

	case ActionClarify:
		if next != nil && !next.Kind.IsNone() {
			metrics.DialogueClarifications.WithLabelValues(string(next.Kind), decision.Param).Inc()
		}
	}

	if next == nil {
		if err := m.delete(ctx, sessionID); err != nil {
			return nil, err
		}
		return &Reply{Message: decision.render(), AwaitingInput: true, Notices: decision.Notices, Codes: decision.Codes()}, nil
	}
	if err := m.save(ctx, sessionID, isNew, next, now); err != nil {
		return nil, err
	}
	return &Reply{
		Message:       decision.render(),
		AwaitingInput: true,
		Kind:          next.Kind,
		Missing:       next.Missing,
		Notices:       decision.Notices,
		Codes:         decision.Codes(),
	}, nil
}

// Session returns the stored state of a session, or a SESSION_NOT_FOUND error.
func (m *Manager) Session(ctx context.Context, sessionID string) (*models.ConversationState, error) {
	unlock := m.locks.lock(sessionID)
	defer unlock()

	state, err := m.load(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if state == nil {
		return nil, apperrors.NewSessionNotFoundError(sessionID)
	}
	return state, nil
}

// Abandon drops a session. Abandoning an idle session is not an error.
func (m *Manager) Abandon(ctx context.Context, sessionID string) error {
	unlock := m.locks.lock(sessionID)
	defer unlock()

	if err := m.delete(ctx, sessionID); err != nil {
		return err
	}
	m.info("session abandoned", map[string]interface{}{"session_id": sessionID})
	return nil
}

func (m *Manager) dispatch(ctx context.Context, sessionID string, isNew bool, next *models.ConversationState, d Decision, now time.Time) (*Reply, error) {
	d.Request.SessionID = sessionID
	m.info("dispatching analysis", map[string]interface{}{
		"session_id": sessionID,
		"request_id": d.Request.ID,
		"kind":       string(d.Request.Kind),
	})

	outcome := m.dispatcher.Dispatch(ctx, d.Request)

	// The outcome is recorded even when the request ended during dispatch.
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), storeTimeout)
	defer cancel()

	if outcome.Succeeded() {
		if err := m.delete(ctx, sessionID); err != nil {
			return nil, err
		}
		return &Reply{
			Message:        d.withNotices(successMessage(d.Request.Kind, d.Message)),
			AwaitingInput:  false,
			AnalysisResult: outcome,
			Kind:           d.Request.Kind,
			Notices:        d.Notices,
			Codes:          d.Codes(),
		}, nil
	}

	m.warn("analysis failed, keeping parameters", map[string]interface{}{
		"session_id": sessionID,
		"request_id": d.Request.ID,
		"reason":     outcome.Reason,
		"attempts":   outcome.Attempts,
	})
	next.Status = models.StatusDispatchFailed
	next.LastError = outcome.Reason
	if err := m.save(ctx, sessionID, isNew, next, now); err != nil {
		return nil, err
	}
	return &Reply{
		Message:        d.withNotices(failureMessage(d.Request.Kind, outcome.Reason)),
		AwaitingInput:  true,
		AnalysisResult: outcome,
		Kind:           d.Request.Kind,
		Notices:        d.Notices,
		Codes:          d.Codes(),
	}, nil
}

// load returns nil for a session without state. Params are re-coerced since
// a JSON round trip turns ints into floats.
func (m *Manager) load(ctx context.Context, sessionID string) (*models.ConversationState, error) {
	state, err := m.store.Get(ctx, sessionID)
	if errors.Is(err, models.ErrSessionNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, storeError("get", err)
	}
	if schema, ok := m.registry.Schema(state.Kind); ok {
		state.Params = schema.Normalize(state.Params)
	}
	if state.Params == nil {
		state.Params = models.ParameterSet{}
	}
	return state, nil
}

func (m *Manager) save(ctx context.Context, sessionID string, isNew bool, state *models.ConversationState, now time.Time) error {
	state.SessionID = sessionID
	if state.CreatedAt.IsZero() {
		state.CreatedAt = now
	}
	state.UpdatedAt = now
	var err error
	if isNew {
		err = m.store.Create(ctx, state)
	} else {
		err = m.store.Put(ctx, state)
	}
	if err != nil {
		return storeError("save", err)
	}
	return nil
}

func (m *Manager) delete(ctx context.Context, sessionID string) error {
	if err := m.store.Delete(ctx, sessionID); err != nil {
		return storeError("delete", err)
	}
	return nil
}

func storeError(op string, err error) error {
	if _, ok := apperrors.AsStandardError(err); ok {
		return err
	}
	return apperrors.NewSessionStoreError(op, err)
}

func successMessage(kind models.AnalysisKind, summary string) string {
	return fmt.Sprintf("Here is the %s analysis with %s.", kind.DisplayName(), summary)
}

func failureMessage(kind models.AnalysisKind, reason string) string {
	return fmt.Sprintf("The %s analysis failed: %s. Your parameters are kept, say \"retry\" to run it again.",
		kind.DisplayName(), reason)
}

func (m *Manager) debug(msg string, fields map[string]interface{}) {
	if m.logger != nil {
		m.logger.Debug(msg, fields)
	}
}

func (m *Manager) info(msg string, fields map[string]interface{}) {
	if m.logger != nil {
		m.logger.Info(msg, fields)
	}
}

func (m *Manager) warn(msg string, fields map[string]interface{}) {
	if m.logger != nil {
		m.logger.Warn(msg, fields)
	}
}
