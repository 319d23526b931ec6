package app

import (
	"context"
	"fmt"
	"strings"

	"namecard/internal/notify"
	"namecard/pkg/domain"
)

// ListClaims returns claims newest first. An empty status lists pending ones.
func (a *App) ListClaims(ctx context.Context, status string) ([]domain.EventClaim, error) {
	var filter domain.ClaimStatus
	switch s := domain.ClaimStatus(strings.ToLower(strings.TrimSpace(status))); s {
	case "", domain.ClaimPending:
		filter = domain.ClaimPending
	case domain.ClaimApproved, domain.ClaimRejected:
		filter = s
	case "all":
	default:
		return nil, invalidInput("unknown claim status %q", status)
	}
	claims, err := a.store.ListClaims(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("list claims: %w", err)
	}
	return claims, nil
}

// GetClaim returns one claim in any status.
func (a *App) GetClaim(ctx context.Context, id string) (domain.EventClaim, error) {
	claim, err := a.store.GetClaim(ctx, strings.TrimSpace(id))
	if err != nil {
		return domain.EventClaim{}, fmt.Errorf("get claim: %w", err)
	}
	return claim, nil
}

// ApproveClaim credits a pending claim to its card. A claim that is no
// longer pending returns store.ErrClaimNotPending and credits nothing.
func (a *App) ApproveClaim(ctx context.Context, id string) (domain.EventClaim, int64, error) {
	claim, balance, err := a.store.ApproveClaim(ctx, strings.TrimSpace(id))
	if err != nil {
		return domain.EventClaim{}, 0, fmt.Errorf("approve claim: %w", err)
	}
	a.publish(ctx, notify.Event{
		Type:    notify.EventClaimApproved,
		CardID:  claim.UserID,
		ClaimID: claim.ID,
		Amount:  claim.Amount,
		Balance: &balance,
		Reason:  "event win",
	})
	return claim, balance, nil
}

// RejectClaim closes a pending claim without paying it.
func (a *App) RejectClaim(ctx context.Context, id string) (domain.EventClaim, error) {
	claim, err := a.store.RejectClaim(ctx, strings.TrimSpace(id))
	if err != nil {
		return domain.EventClaim{}, fmt.Errorf("reject claim: %w", err)
	}
	a.publish(ctx, notify.Event{
		Type:    notify.EventClaimRejected,
		CardID:  claim.UserID,
		ClaimID: claim.ID,
		Amount:  claim.Amount,
	})
	return claim, nil
}
