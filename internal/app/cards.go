package app

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"regexp"
	"strings"

	"namecard/internal/notify"
	"namecard/internal/util"
	"namecard/pkg/domain"
	"namecard/pkg/storage"
	"namecard/pkg/store"
)

var cardIDPattern = regexp.MustCompile(`^[a-z0-9][a-z0-9_-]{1,39}$`)

// CreateCardInput is the super-admin setup form.
type CreateCardInput struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	OwnerEmail string `json:"owner_email"`
	Role       string `json:"role"`
	EnableAI   bool   `json:"enable_ai"`
}

// CreateCard sets up a new card with the starting balance. The starting
// balance is recorded as the card's first ledger entry.
func (a *App) CreateCard(ctx context.Context, in CreateCardInput) (domain.Card, error) {
	id := strings.ToLower(strings.TrimSpace(in.ID))
	if !cardIDPattern.MatchString(id) {
		return domain.Card{}, invalidInput("id must be 2-40 lowercase letters, digits, '-' or '_'")
	}
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return domain.Card{}, invalidInput("name is required")
	}
	email := normalizeEmail(in.OwnerEmail)
	if email == "" || !strings.Contains(email, "@") {
		return domain.Card{}, invalidInput("owner_email is required")
	}
	card := domain.Card{
		CardContent: domain.CardContent{
			Name: name,
			Role: strings.TrimSpace(in.Role),
		}.WithDefaults(),
		ID:         id,
		OwnerEmail: email,
		EnableAI:   in.EnableAI,
	}
	if err := a.store.CreateCard(ctx, card, a.setupCredits); err != nil {
		return domain.Card{}, fmt.Errorf("create card: %w", err)
	}
	created, err := a.store.GetCard(ctx, id)
	if err != nil {
		return domain.Card{}, fmt.Errorf("reload card: %w", err)
	}
	return created.WithDefaults(), nil
}

// GetPublicCard returns the visitor view of a card.
func (a *App) GetPublicCard(ctx context.Context, id string) (domain.PublicCard, error) {
	card, err := a.store.GetCard(ctx, strings.TrimSpace(id))
	if err != nil {
		return domain.PublicCard{}, fmt.Errorf("get card: %w", err)
	}
	return card.Public(), nil
}

// GetOwnerCard returns the card owned by the verified email.
func (a *App) GetOwnerCard(ctx context.Context, email string) (domain.Card, error) {
	card, err := a.store.GetCardByOwnerEmail(ctx, normalizeEmail(email))
	if err != nil {
		return domain.Card{}, fmt.Errorf("get owner card: %w", err)
	}
	return card.WithDefaults(), nil
}

// UpdateCard replaces the editable content of the caller's card. Balance,
// id and owner never change here.
func (a *App) UpdateCard(ctx context.Context, email string, content domain.CardContent) (domain.Card, error) {
	card, err := a.store.GetCardByOwnerEmail(ctx, normalizeEmail(email))
	if err != nil {
		return domain.Card{}, fmt.Errorf("get owner card: %w", err)
	}
	content.Name = strings.TrimSpace(content.Name)
	if err := content.Validate(); err != nil {
		return domain.Card{}, fmt.Errorf("%w: %s", ErrInvalidInput, err.Error())
	}
	content = content.WithDefaults()
	if err := a.store.UpdateCardContent(ctx, card.ID, content); err != nil {
		return domain.Card{}, fmt.Errorf("update card: %w", err)
	}
	updated, err := a.store.GetCard(ctx, card.ID)
	if err != nil {
		return domain.Card{}, fmt.Errorf("reload card: %w", err)
	}
	return updated.WithDefaults(), nil
}

// ListCards returns every card for the master console.
func (a *App) ListCards(ctx context.Context) ([]domain.CardSummary, error) {
	cards, err := a.store.ListCards(ctx)
	if err != nil {
		return nil, fmt.Errorf("list cards: %w", err)
	}
	return cards, nil
}

// SetCardAI toggles the chatbot master switch of a card.
func (a *App) SetCardAI(ctx context.Context, id string, enabled bool) error {
	if err := a.store.SetCardAI(ctx, strings.TrimSpace(id), enabled); err != nil {
		return fmt.Errorf("set card ai: %w", err)
	}
	return nil
}

// AdjustCredits grants (amount > 0) or deducts (amount < 0) tokens. Deductions
// go through the debit path so a balance can never become negative.
func (a *App) AdjustCredits(ctx context.Context, id string, amount int64, reason string) (domain.LedgerEntry, int64, error) {
	id = strings.TrimSpace(id)
	reason = strings.TrimSpace(reason)
	var (
		entry   domain.LedgerEntry
		balance int64
		err     error
	)
	switch {
	case amount > 0:
		if reason == "" {
			reason = "admin grant"
		}
		entry, balance, err = a.store.Credit(ctx, id, amount, reason)
	case amount < 0:
		if reason == "" {
			reason = "admin deduct"
		}
		entry, balance, err = a.store.Debit(ctx, id, -amount, reason)
	default:
		return domain.LedgerEntry{}, 0, fmt.Errorf("adjust credits: %w", store.ErrInvalidAmount)
	}
	if err != nil {
		return domain.LedgerEntry{}, 0, fmt.Errorf("adjust credits: %w", err)
	}
	a.publish(ctx, notify.Event{
		Type:    notify.EventCreditsAdjusted,
		CardID:  id,
		Amount:  entry.Amount,
		Balance: &balance,
		Reason:  reason,
	})
	return entry, balance, nil
}

// Ledger lists the caller's ledger, newest first.
func (a *App) Ledger(ctx context.Context, email string, kind store.LedgerKind, limit int) ([]domain.LedgerEntry, int64, error) {
	card, err := a.store.GetCardByOwnerEmail(ctx, normalizeEmail(email))
	if err != nil {
		return nil, 0, fmt.Errorf("get owner card: %w", err)
	}
	switch kind {
	case "":
		kind = store.LedgerAll
	case store.LedgerAll, store.LedgerUsage, store.LedgerIncome:
	default:
		return nil, 0, invalidInput("unknown ledger filter %q", kind)
	}
	if limit <= 0 || limit > store.MaxLedgerPage {
		limit = store.MaxLedgerPage
	}
	entries, err := a.store.ListLedger(ctx, card.ID, kind, limit)
	if err != nil {
		return nil, 0, fmt.Errorf("list ledger: %w", err)
	}
	return entries, card.Credits, nil
}

// UploadProfileImage stores an image for the caller's card and points
// profile_img at it. The previous image is removed on a best-effort basis.
func (a *App) UploadProfileImage(ctx context.Context, email string, r io.Reader, size int64) (string, error) {
	if a.objects == nil {
		return "", ErrUploadsUnavailable
	}
	if size > a.maxImageBytes {
		return "", invalidInput("image exceeds %d bytes", a.maxImageBytes)
	}
	card, err := a.store.GetCardByOwnerEmail(ctx, normalizeEmail(email))
	if err != nil {
		return "", fmt.Errorf("get owner card: %w", err)
	}
	data, err := io.ReadAll(io.LimitReader(r, a.maxImageBytes+1))
	if err != nil {
		return "", fmt.Errorf("read image: %w", err)
	}
	if int64(len(data)) > a.maxImageBytes {
		return "", invalidInput("image exceeds %d bytes", a.maxImageBytes)
	}
	if len(data) == 0 {
		return "", invalidInput("image is empty")
	}
	contentType, ok := storage.DetectImageType(data)
	if !ok {
		return "", invalidInput("unsupported image type %s", contentType)
	}
	key := storage.ProfileImageKey(card.ID, a.now())
	if err := a.objects.Put(ctx, key, bytes.NewReader(data), int64(len(data)), contentType); err != nil {
		return "", fmt.Errorf("store image: %w", err)
	}
	url := a.objects.URL(key)
	previous := card.ProfileImg
	content := card.CardContent
	content.ProfileImg = url
	if err := a.store.UpdateCardContent(ctx, card.ID, content); err != nil {
		_ = a.objects.Delete(context.WithoutCancel(ctx), key)
		return "", fmt.Errorf("update card: %w", err)
	}
	if oldKey, ok := a.ownedImageKey(previous); ok {
		if err := a.objects.Delete(ctx, oldKey); err != nil && !errors.Is(err, context.Canceled) {
			util.LoggerFromContext(ctx).Warn("delete previous profile image failed", "card_id", card.ID, "err", err)
		}
	}
	return url, nil
}

// ownedImageKey maps a stored profile_img URL back to its object key when the
// image lives in our object store.
func (a *App) ownedImageKey(url string) (string, bool) {
	if url == "" {
		return "", false
	}
	base := a.objects.URL("")
	if base == "" || !strings.HasPrefix(url, base) {
		return "", false
	}
	key := strings.TrimPrefix(url, base)
	if !strings.HasPrefix(key, "profile_images/") {
		return "", false
	}
	return key, true
}
