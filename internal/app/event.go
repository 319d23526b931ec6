package app

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"unicode"

	"github.com/google/uuid"

	"namecard/internal/notify"
	"namecard/internal/util"
	"namecard/pkg/domain"
)

const defaultPrizeMsg = "Congratulations! You found the secret keyword \"{keyword}\" and won {amount} tokens. The prize is credited once an admin approves it."

// EventConfigInput is the master console form for the keyword event.
type EventConfigInput struct {
	IsActive bool   `json:"isActive"`
	Keyword  string `json:"keyword"`
	PrizeMsg string `json:"prizeMsg"`
	MinToken int64  `json:"minToken"`
	MaxToken int64  `json:"maxToken"`
}

// NormalizeKeyword removes all whitespace and lowercases s.
func NormalizeKeyword(s string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return -1
		}
		return unicode.ToLower(r)
	}, s)
}

// GetEventConfig returns the current keyword event.
func (a *App) GetEventConfig(ctx context.Context) (domain.EventConfig, error) {
	cfg, err := a.store.GetEventConfig(ctx)
	if err != nil {
		return domain.EventConfig{}, fmt.Errorf("get event config: %w", err)
	}
	return cfg, nil
}

// SaveEventConfig replaces the keyword event. An active event needs a keyword.
func (a *App) SaveEventConfig(ctx context.Context, in EventConfigInput) (domain.EventConfig, error) {
	cfg := domain.EventConfig{
		IsActive: in.IsActive,
		Keyword:  strings.TrimSpace(in.Keyword),
		PrizeMsg: strings.TrimSpace(in.PrizeMsg),
		MinToken: in.MinToken,
		MaxToken: in.MaxToken,
	}
	if cfg.IsActive && NormalizeKeyword(cfg.Keyword) == "" {
		return domain.EventConfig{}, invalidInput("keyword is required for an active event")
	}
	if cfg.MinToken < 0 || cfg.MaxToken < 0 {
		return domain.EventConfig{}, invalidInput("token bounds must be >= 0")
	}
	if err := a.store.SaveEventConfig(ctx, cfg); err != nil {
		return domain.EventConfig{}, fmt.Errorf("save event config: %w", err)
	}
	return a.GetEventConfig(ctx)
}

// detectEvent checks a chat message against the active keyword. On a match
// it files a pending claim and returns the prize message. Any failure is
// logged and reported as no match so the chat continues normally.
func (a *App) detectEvent(ctx context.Context, card domain.Card, message string) (string, bool) {
	logger := util.LoggerFromContext(ctx)
	cfg, err := a.store.GetEventConfig(ctx)
	if err != nil {
		logger.Warn("event config unavailable", "err", err)
		return "", false
	}
	if !cfg.IsActive {
		return "", false
	}
	keyword := NormalizeKeyword(cfg.Keyword)
	if keyword == "" || NormalizeKeyword(message) != keyword {
		return "", false
	}
	amount := a.drawReward(cfg.MinToken, cfg.MaxToken)
	claim := domain.EventClaim{
		ID:       uuid.NewString(),
		UserID:   card.ID,
		UserName: card.Name,
		Keyword:  cfg.Keyword,
		Amount:   amount,
		Status:   domain.ClaimPending,
	}
	if err := a.store.CreateClaim(ctx, claim); err != nil {
		logger.Error("create event claim failed", "card_id", card.ID, "err", err)
		return "", false
	}
	logger.Info("event keyword matched", "card_id", card.ID, "claim_id", claim.ID, "amount", amount)
	a.publish(ctx, notify.Event{
		Type:    notify.EventClaimCreated,
		CardID:  card.ID,
		ClaimID: claim.ID,
		Amount:  amount,
	})
	return prizeMessage(cfg, amount), true
}

// drawReward picks uniformly in [min, max]; inverted bounds are swapped.
func (a *App) drawReward(lo, hi int64) int64 {
	if lo > hi {
		lo, hi = hi, lo
	}
	if lo < 0 {
		lo = 0
	}
	if hi <= lo {
		return lo
	}
	return lo + a.reward(hi-lo+1)
}

func prizeMessage(cfg domain.EventConfig, amount int64) string {
	msg := cfg.PrizeMsg
	if strings.TrimSpace(msg) == "" {
		msg = defaultPrizeMsg
	}
	return strings.NewReplacer(
		"{amount}", strconv.FormatInt(amount, 10),
		"{keyword}", cfg.Keyword,
	).Replace(msg)
}
