// internal/dialogue/dialogue-manager/transition.go
package dialoguemanager

import (
	"context"
	"fmt"
	"strings"
	"time"

	apperrors "geodialogue/internal/common/errors"
	"geodialogue/internal/models"
	"geodialogue/pkg/registry"
)

// Action is what a turn decided to do.
type Action string

const (
	ActionAskIntent Action = "ask_intent"
	ActionClarify   Action = "clarify"
	ActionDispatch  Action = "dispatch"
	ActionRestart   Action = "restart"
	ActionCommand   Action = "command"
)

// Decision is the output of one transition. Request is set for
// ActionDispatch, Param for ActionClarify. Issues are the dialogue
// conditions raised by the turn, in the order they were found.
type Decision struct {
	Action  Action
	Message string
	Param   string
	Request *models.AnalysisRequest
	Notices []string
	Issues  []*apperrors.StandardError
}

// Codes lists the issue codes of the decision.
func (d Decision) Codes() []string {
	var codes []string
	for _, issue := range d.Issues {
		codes = append(codes, string(issue.Code))
	}
	return codes
}

func (d Decision) render() string {
	return d.withNotices(d.Message)
}

func (d Decision) withNotices(msg string) string {
	if len(d.Notices) == 0 {
		return msg
	}
	return strings.Join(d.Notices, " ") + " " + msg
}

// Transition computes the next state for one utterance without touching the
// store or the engine. A nil state means the session is idle; a nil next
// state means the session should be cleared. The input state is not
// modified.
func (m *Manager) Transition(ctx context.Context, state *models.ConversationState, utterance string) (*models.ConversationState, Decision) {
	if next, d, ok := m.command(state, utterance); ok {
		return next, d
	}

	var next *models.ConversationState
	if state == nil {
		next = models.NewConversationState("", time.Time{})
	} else {
		next = state.Clone()
	}

	cls := m.classifier.Classify(ctx, utterance, next.Kind)
	if cls.Kind.IsNone() {
		next.TurnCount++
		if next.TurnCount > m.cfg.TurnCap {
			return nil, restartDecision(next.TurnCount)
		}
		next.Status = models.StatusClassifyingIntent
		return next, Decision{
			Action:  ActionAskIntent,
			Message: m.askIntentMessage(),
			Issues:  []*apperrors.StandardError{apperrors.NewAmbiguousIntentError(cls.Confidence)},
		}
	}

	if cls.Kind != next.Kind {
		switching := !next.Kind.IsNone()
		next.Kind = cls.Kind
		next.Params = models.ParameterSet{}
		next.Location = nil
		next.Pending = ""
		next.LastError = ""
		if switching {
			next.TurnCount = 0
		}
	}

	schema, ok := m.registry.Schema(next.Kind)
	if !ok {
		next.Kind = models.KindNone
		next.TurnCount++
		next.Status = models.StatusClassifyingIntent
		return next, Decision{
			Action:  ActionAskIntent,
			Message: m.askIntentMessage(),
			Issues:  []*apperrors.StandardError{apperrors.NewAmbiguousIntentError(cls.Confidence)},
		}
	}

	ext := m.extractor.Extract(ctx, utterance, next.Kind, next.Params, next.Pending)
	next.Params = schema.Merge(next.Params, ext.Values)
	if ext.Location != nil {
		next.Location = ext.Location
	}
	var (
		notices []string
		issues  []*apperrors.StandardError
	)
	for _, c := range ext.Clamped {
		notices = append(notices, c.Notice())
		issues = append(issues, apperrors.NewInvalidParameterValueError(c.Param, c.Given))
	}

	next.Missing = schema.Missing(next.Params)
	next.TurnCount++

	cityName := coordinateParam(schema)
	if ext.UnresolvedLocation != "" && cityName != "" && !next.Params.Has(cityName) {
		if next.TurnCount > m.cfg.TurnCap {
			return nil, restartDecision(next.TurnCount)
		}
		next.Status = models.StatusCollectingParameters
		next.Pending = cityName
		return next, Decision{
			Action:  ActionClarify,
			Param:   cityName,
			Message: fmt.Sprintf("I couldn't find %q in the location table. %s", ext.UnresolvedLocation, schema.Question(cityName)),
			Notices: notices,
			Issues:  append(issues, apperrors.NewUnresolvableLocationError(ext.UnresolvedLocation)),
		}
	}

	if len(next.Missing) == 0 {
		next.Params = schema.ApplyDefaults(next.Params)
		next.Status = models.StatusReady
		next.Pending = ""
		req := m.buildRequest(schema, next)
		return next, Decision{
			Action:  ActionDispatch,
			Message: describeParams(schema, req.Params),
			Request: req,
			Notices: notices,
			Issues:  issues,
		}
	}

	if next.TurnCount > m.cfg.TurnCap {
		return nil, restartDecision(next.TurnCount)
	}
	param := next.Missing[0]
	next.Status = models.StatusCollectingParameters
	next.Pending = param
	return next, Decision{
		Action:  ActionClarify,
		Param:   param,
		Message: schema.Question(param),
		Notices: notices,
		Issues:  append(issues, apperrors.NewMissingParameterError(string(next.Kind), param)),
	}
}

func (m *Manager) buildRequest(schema *registry.Schema, state *models.ConversationState) *models.AnalysisRequest {
	req := &models.AnalysisRequest{
		ID:          m.newID(),
		SessionID:   state.SessionID,
		Kind:        state.Kind,
		Params:      state.Params.Clone(),
		RequestedAt: m.now().UTC(),
	}
	if coordinateParam(schema) == "" {
		return req
	}
	if state.Location != nil {
		loc := *state.Location
		box := loc.BoxAround(m.cfg.BBoxBuffer)
		req.Location = &loc
		req.BoundingBox = &box
	} else {
		box := models.DefaultBoundingBox
		req.BoundingBox = &box
	}
	return req
}

func coordinateParam(schema *registry.Schema) string {
	if names := schema.NamesOfType(models.ParamCoordinate); len(names) > 0 {
		return names[0]
	}
	return ""
}

func restartDecision(turns int) Decision {
	return Decision{
		Action:  ActionRestart,
		Message: "We don't seem to be getting anywhere, so let's start over. What would you like to analyze?",
		Issues:  []*apperrors.StandardError{apperrors.NewDialogueStalledError(turns)},
	}
}

func (m *Manager) askIntentMessage() string {
	var names []string
	for _, k := range m.registry.Kinds() {
		names = append(names, k.DisplayName())
	}
	return "What would you like to analyze? I can run " + joinOr(names) + "."
}

// describeParams renders params in schema order, e.g. "city Jakarta, year 2020".
func describeParams(schema *registry.Schema, params models.ParameterSet) string {
	var parts []string
	for _, p := range schema.Params {
		v, ok := params[p.Name]
		if !ok {
			continue
		}
		if list, isList := v.([]string); isList {
			v = strings.Join(list, ", ")
		}
		if p.Type == models.ParamText {
			v = shorten(fmt.Sprint(v), 40)
		}
		parts = append(parts, fmt.Sprintf("%s %v", strings.ReplaceAll(p.Name, "_", " "), v))
	}
	if len(parts) == 0 {
		return "default settings"
	}
	return strings.Join(parts, ", ")
}

func shorten(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return fmt.Sprintf("%q", s)
	}
	return fmt.Sprintf("%q", string(r[:n])+"...")
}

func joinOr(items []string) string {
	switch len(items) {
	case 0:
		return ""
	case 1:
		return items[0]
	}
	return strings.Join(items[:len(items)-1], ", ") + " or " + items[len(items)-1]
}
