// Package notify publishes best-effort domain events for the operator console
// and downstream consumers. Publishing never blocks a ledger transaction: the
// event is sent after the store commits, and failures are only logged.
package notify

import (
	"context"
	"time"
)

const (
	EventClaimCreated    = "claim.created"
	EventClaimApproved   = "claim.approved"
	EventClaimRejected   = "claim.rejected"
	EventCreditsAdjusted = "credits.adjusted"
)

// Event is the JSON payload published for every notification.
type Event struct {
	Type    string    `json:"type"`
	CardID  string    `json:"cardId"`
	ClaimID string    `json:"claimId,omitempty"`
	Amount  int64     `json:"amount,omitempty"`
	Balance *int64    `json:"balance,omitempty"`
	Reason  string    `json:"reason,omitempty"`
	At      time.Time `json:"at"`
}

// Notifier publishes events.
type Notifier interface {
	Notify(ctx context.Context, event Event) error
}

// Nop discards every event.
type Nop struct{}

func (Nop) Notify(context.Context, Event) error { return nil }
