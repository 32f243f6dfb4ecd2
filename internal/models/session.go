package models

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrSessionNotFound is returned by a SessionStore when no state exists.
	ErrSessionNotFound = errors.New("SESSION_NOT_FOUND")
	// ErrSessionExists is returned by Create when the id is taken.
	ErrSessionExists = errors.New("SESSION_EXISTS")
)

// DialogueStatus is the stored phase of a conversation. A session without a
// stored state is idle.
type DialogueStatus string

const (
	StatusClassifyingIntent    DialogueStatus = "classifying_intent"
	StatusCollectingParameters DialogueStatus = "collecting_parameters"
	StatusReady                DialogueStatus = "ready"
	StatusDispatchFailed       DialogueStatus = "dispatch_failed"
)

// ConversationState is the per-session progress towards a complete request.
type ConversationState struct {
	SessionID string          `json:"sessionId"`
	Kind      AnalysisKind    `json:"kind,omitempty"`
	Params    ParameterSet    `json:"params"`
	Missing   []string        `json:"missing,omitempty"`
	TurnCount int             `json:"turnCount"`
	Status    DialogueStatus  `json:"status"`
	Pending   string          `json:"pending,omitempty"`
	Location  *LocationRecord `json:"location,omitempty"`
	LastError string          `json:"lastError,omitempty"`
	CreatedAt time.Time       `json:"createdAt"`
	UpdatedAt time.Time       `json:"updatedAt"`
}

// NewConversationState returns an empty state for a session.
func NewConversationState(sessionID string, now time.Time) *ConversationState {
	return &ConversationState{
		SessionID: sessionID,
		Params:    ParameterSet{},
		Status:    StatusClassifyingIntent,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// Clone returns a deep copy so a transition never mutates its input.
func (s *ConversationState) Clone() *ConversationState {
	if s == nil {
		return nil
	}
	cp := *s
	cp.Params = s.Params.Clone()
	if s.Missing != nil {
		cp.Missing = append([]string(nil), s.Missing...)
	}
	if s.Location != nil {
		loc := *s.Location
		cp.Location = &loc
	}
	return &cp
}

// IsExpired reports whether the state has been idle for longer than ttl.
func (s *ConversationState) IsExpired(now time.Time, ttl time.Duration) bool {
	return ttl > 0 && now.Sub(s.UpdatedAt) > ttl
}

// SessionStore persists ConversationState between turns. Delete of a missing
// id is not an error.
type SessionStore interface {
	Create(ctx context.Context, state *ConversationState) error
	Get(ctx context.Context, sessionID string) (*ConversationState, error)
	Put(ctx context.Context, state *ConversationState) error
	Delete(ctx context.Context, sessionID string) error
	Ping(ctx context.Context) error
}
