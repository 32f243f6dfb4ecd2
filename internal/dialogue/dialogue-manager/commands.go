// internal/dialogue/dialogue-manager/commands.go
package dialoguemanager

import (
	"fmt"
	"strings"

	"geodialogue/internal/models"
)

const commandHelp = "Commands: /status shows the current request, /clear drops its parameters, /reset (or /home) starts over and /help shows this message."

// command handles slash commands. They do not count as turns.
func (m *Manager) command(state *models.ConversationState, utterance string) (*models.ConversationState, Decision, bool) {
	fields := strings.Fields(strings.ToLower(strings.TrimSpace(utterance)))
	if len(fields) == 0 || !strings.HasPrefix(fields[0], "/") {
		return nil, Decision{}, false
	}

	switch fields[0] {
	case "/reset", "/home":
		return nil, Decision{Action: ActionCommand, Message: "Session cleared. " + m.askIntentMessage()}, true

	case "/clear":
		if state == nil || state.Kind.IsNone() {
			return state.Clone(), Decision{Action: ActionCommand, Message: "There is nothing to clear. " + m.askIntentMessage()}, true
		}
		next := state.Clone()
		next.Params = models.ParameterSet{}
		next.Location = nil
		next.LastError = ""
		next.Status = models.StatusCollectingParameters
		msg := fmt.Sprintf("Parameters cleared for the %s analysis.", next.Kind.DisplayName())
		if schema, ok := m.registry.Schema(next.Kind); ok {
			next.Missing = schema.Missing(next.Params)
			next.Pending = ""
			if len(next.Missing) > 0 {
				next.Pending = next.Missing[0]
				msg += " " + schema.Question(next.Pending)
			}
		}
		return next, Decision{Action: ActionCommand, Message: msg}, true

	case "/status":
		return state.Clone(), Decision{Action: ActionCommand, Message: m.statusMessage(state)}, true

	case "/help":
		return state.Clone(), Decision{Action: ActionCommand, Message: m.helpMessage()}, true
	}
	return state.Clone(), Decision{
		Action:  ActionCommand,
		Message: fmt.Sprintf("Unknown command %s. %s", fields[0], commandHelp),
	}, true
}

func (m *Manager) statusMessage(state *models.ConversationState) string {
	if state == nil || state.Kind.IsNone() {
		return "No analysis in progress. " + m.askIntentMessage()
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Analysis: %s.", state.Kind.DisplayName())
	if schema, ok := m.registry.Schema(state.Kind); ok {
		if len(state.Params) > 0 {
			fmt.Fprintf(&b, " Parameters: %s.", describeParams(schema, state.Params))
		}
		if missing := schema.Missing(state.Params); len(missing) > 0 {
			fmt.Fprintf(&b, " Missing: %s.", strings.Join(missing, ", "))
		}
	}
	if state.Status == models.StatusDispatchFailed {
		fmt.Fprintf(&b, " Last attempt failed: %s.", state.LastError)
	}
	return b.String()
}

func (m *Manager) helpMessage() string {
	var lines []string
	for _, s := range m.registry.Schemas() {
		lines = append(lines, fmt.Sprintf("%s: %s.", s.DisplayName, s.Description))
	}
	return "I can run these analyses. " + strings.Join(lines, " ") + " " + commandHelp
}
