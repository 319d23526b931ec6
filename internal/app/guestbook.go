package app

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"namecard/internal/util"
	"namecard/pkg/auth"
	"namecard/pkg/domain"
)

const (
	maxGuestbookName    = 10
	maxGuestbookContent = 500
)

// GuestbookInput is a visitor message.
type GuestbookInput struct {
	Name     string `json:"name"`
	Password string `json:"password"`
	Content  string `json:"content"`
}

// AddGuestbookEntry leaves a message on a card. Markup is stripped and the
// deletion password is stored hashed.
func (a *App) AddGuestbookEntry(ctx context.Context, cardID string, in GuestbookInput) (domain.GuestbookEntry, error) {
	cardID = strings.TrimSpace(cardID)
	if _, err := a.store.GetCard(ctx, cardID); err != nil {
		return domain.GuestbookEntry{}, fmt.Errorf("get card: %w", err)
	}
	name := strings.TrimSpace(util.StripTags(in.Name))
	content := strings.TrimSpace(util.StripTags(in.Content))
	switch {
	case name == "":
		return domain.GuestbookEntry{}, invalidInput("name is required")
	case util.RuneLen(name) > maxGuestbookName:
		return domain.GuestbookEntry{}, invalidInput("name must be at most %d characters", maxGuestbookName)
	case content == "":
		return domain.GuestbookEntry{}, invalidInput("content is required")
	case util.RuneLen(content) > maxGuestbookContent:
		return domain.GuestbookEntry{}, invalidInput("content must be at most %d characters", maxGuestbookContent)
	}
	if err := auth.ValidateGuestbookPassword(in.Password); err != nil {
		return domain.GuestbookEntry{}, fmt.Errorf("%w: %s", ErrInvalidInput, err.Error())
	}
	hash, err := auth.HashPassword(in.Password)
	if err != nil {
		return domain.GuestbookEntry{}, fmt.Errorf("hash password: %w", err)
	}
	entry := domain.GuestbookEntry{
		ID:           uuid.NewString(),
		ToUser:       cardID,
		Name:         name,
		PasswordHash: hash,
		Content:      content,
	}
	if err := a.store.AddGuestbookEntry(ctx, entry); err != nil {
		return domain.GuestbookEntry{}, fmt.Errorf("add guestbook entry: %w", err)
	}
	saved, err := a.store.GetGuestbookEntry(ctx, entry.ID)
	if err != nil {
		return domain.GuestbookEntry{}, fmt.Errorf("reload guestbook entry: %w", err)
	}
	return saved, nil
}

// ListGuestbook returns the newest messages on a card.
func (a *App) ListGuestbook(ctx context.Context, cardID string) ([]domain.GuestbookEntry, error) {
	entries, err := a.store.ListGuestbook(ctx, strings.TrimSpace(cardID), a.guestbookLimit)
	if err != nil {
		return nil, fmt.Errorf("list guestbook: %w", err)
	}
	return entries, nil
}

// DeleteGuestbookEntry removes a message when password matches the one it
// was written with.
func (a *App) DeleteGuestbookEntry(ctx context.Context, id, password string) error {
	if password == "" {
		return fmt.Errorf("%w: %s", ErrInvalidInput, auth.ErrPasswordRequired.Error())
	}
	entry, err := a.store.GetGuestbookEntry(ctx, strings.TrimSpace(id))
	if err != nil {
		return fmt.Errorf("get guestbook entry: %w", err)
	}
	if !auth.CheckPassword(password, entry.PasswordHash) {
		return fmt.Errorf("%w: wrong password", ErrForbidden)
	}
	if err := a.store.DeleteGuestbookEntry(ctx, entry.ID); err != nil {
		return fmt.Errorf("delete guestbook entry: %w", err)
	}
	return nil
}
