package store

import (
	"context"
	"errors"

	"namecard/pkg/domain"
)

var (
	ErrNotFound            = errors.New("not found")
	ErrCardExists          = errors.New("card already exists")
	ErrInsufficientBalance = errors.New("insufficient balance")
	ErrInvalidAmount       = errors.New("invalid amount")
	ErrClaimNotPending     = errors.New("claim is not pending")
)

// LedgerKind filters ledger listings by the sign of the amount.
type LedgerKind string

const (
	LedgerAll    LedgerKind = "all"
	LedgerUsage  LedgerKind = "usage"
	LedgerIncome LedgerKind = "income"
)

// MaxLedgerPage caps a single ledger listing.
const MaxLedgerPage = 100

// Store defines persistence operations for cards, the token ledger, the
// keyword event and guestbooks.
type Store interface {
	// cards
	CreateCard(ctx context.Context, card domain.Card, setupCredits int64) error
	GetCard(ctx context.Context, id string) (domain.Card, error)
	GetCardByOwnerEmail(ctx context.Context, email string) (domain.Card, error)
	UpdateCardContent(ctx context.Context, id string, content domain.CardContent) error
	SetCardAI(ctx context.Context, id string, enabled bool) error
	ListCards(ctx context.Context) ([]domain.CardSummary, error)

	// ledger
	Debit(ctx context.Context, cardID string, cost int64, reason string) (domain.LedgerEntry, int64, error)
	Credit(ctx context.Context, cardID string, amount int64, reason string) (domain.LedgerEntry, int64, error)
	ListLedger(ctx context.Context, cardID string, kind LedgerKind, limit int) ([]domain.LedgerEntry, error)

	// event
	GetEventConfig(ctx context.Context) (domain.EventConfig, error)
	SaveEventConfig(ctx context.Context, cfg domain.EventConfig) error
	CreateClaim(ctx context.Context, claim domain.EventClaim) error
	GetClaim(ctx context.Context, id string) (domain.EventClaim, error)
	ListClaims(ctx context.Context, status domain.ClaimStatus) ([]domain.EventClaim, error)
	ApproveClaim(ctx context.Context, id string) (domain.EventClaim, int64, error)
	RejectClaim(ctx context.Context, id string) (domain.EventClaim, error)

	// guestbook
	AddGuestbookEntry(ctx context.Context, entry domain.GuestbookEntry) error
	GetGuestbookEntry(ctx context.Context, id string) (domain.GuestbookEntry, error)
	ListGuestbook(ctx context.Context, toUser string, limit int) ([]domain.GuestbookEntry, error)
	DeleteGuestbookEntry(ctx context.Context, id string) error
}
