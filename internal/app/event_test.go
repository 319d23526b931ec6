package app

import (
	"context"
	"errors"
	"reflect"
	"strings"
	"testing"

	"namecard/internal/notify"
	"namecard/pkg/domain"
	"namecard/pkg/store"
)

func TestNormalizeKeyword(t *testing.T) {
	cases := []struct{ in, want string }{
		{" Treasure ", "treasure"},
		{"G o\tL\nd", "gold"},
		{"오준호 천재", "오준호천재"},
		{"", ""},
		{"　 ", ""},
	}
	for _, tc := range cases {
		if got := NormalizeKeyword(tc.in); got != tc.want {
			t.Fatalf("NormalizeKeyword(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestKeywordMatchCreatesPendingClaimWithoutAICall(t *testing.T) {
	gen := &fakeGenerator{reply: "model reply"}
	notes := &recordingNotifier{}
	a, s := newTestApp(t, gen, func(c *Config) { c.Notifier = notes })
	seedAICard(t, a, "alice")
	ctx := context.Background()
	if _, err := a.SaveEventConfig(ctx, EventConfigInput{
		IsActive: true,
		Keyword:  "gold",
		PrizeMsg: "You won {amount} tokens with {keyword}!",
		MinToken: 10,
		MaxToken: 10,
	}); err != nil {
		t.Fatalf("save event config: %v", err)
	}

	reply, err := a.Chat(ctx, ChatRequest{Message: " G O L D ", Username: "alice"})
	if err != nil {
		t.Fatalf("chat: %v", err)
	}
	if !reply.Event || reply.Reply != "You won 10 tokens with gold!" {
		t.Fatalf("unexpected reply: %+v", reply)
	}
	if gen.callCount() != 0 {
		t.Fatalf("keyword match must not call the generator")
	}
	if got := balanceOf(t, s, "alice"); got != 10 {
		t.Fatalf("keyword match must not charge, balance %d", got)
	}
	claims, err := a.ListClaims(ctx, "")
	if err != nil {
		t.Fatalf("list claims: %v", err)
	}
	if len(claims) != 1 {
		t.Fatalf("expected one pending claim, got %d", len(claims))
	}
	c := claims[0]
	if c.UserID != "alice" || c.UserName != "Alice" || c.Amount != 10 || c.Status != domain.ClaimPending || c.Keyword != "gold" {
		t.Fatalf("unexpected claim: %+v", c)
	}
	if got := notes.types(); !reflect.DeepEqual(got, []string{notify.EventClaimCreated}) {
		t.Fatalf("unexpected notifications: %v", got)
	}
}

func TestKeywordMissFallsThroughToAI(t *testing.T) {
	gen := &fakeGenerator{reply: "model reply"}
	a, s := newTestApp(t, gen, nil)
	seedAICard(t, a, "alice")
	ctx := context.Background()
	if _, err := a.SaveEventConfig(ctx, EventConfigInput{IsActive: true, Keyword: "gold", MinToken: 1, MaxToken: 5}); err != nil {
		t.Fatalf("save event config: %v", err)
	}

	reply, err := a.Chat(ctx, ChatRequest{Message: "golden", Username: "alice"})
	if err != nil {
		t.Fatalf("chat: %v", err)
	}
	if reply.Event || reply.Reply != "model reply" {
		t.Fatalf("unexpected reply: %+v", reply)
	}
	if got := balanceOf(t, s, "alice"); got != 8 {
		t.Fatalf("expected normal charge, balance %d", got)
	}
}

func TestInactiveEventIsIgnored(t *testing.T) {
	gen := &fakeGenerator{reply: "model reply"}
	a, _ := newTestApp(t, gen, nil)
	seedAICard(t, a, "alice")
	ctx := context.Background()
	if _, err := a.SaveEventConfig(ctx, EventConfigInput{IsActive: false, Keyword: "gold"}); err != nil {
		t.Fatalf("save event config: %v", err)
	}
	reply, err := a.Chat(ctx, ChatRequest{Message: "gold", Username: "alice"})
	if err != nil {
		t.Fatalf("chat: %v", err)
	}
	if reply.Event || gen.callCount() != 1 {
		t.Fatalf("inactive event should not match")
	}
}

func TestKeywordOnlyMatchesForCardChats(t *testing.T) {
	gen := &fakeGenerator{reply: "model reply"}
	a, _ := newTestApp(t, gen, nil)
	ctx := context.Background()
	if _, err := a.SaveEventConfig(ctx, EventConfigInput{IsActive: true, Keyword: "gold", MinToken: 1, MaxToken: 1}); err != nil {
		t.Fatalf("save event config: %v", err)
	}
	reply, err := a.Chat(ctx, ChatRequest{Message: "gold", Context: []byte(`{"name":"Dana"}`)})
	if err != nil {
		t.Fatalf("chat: %v", err)
	}
	if reply.Event {
		t.Fatalf("anonymous chats have no claimant")
	}
}

func TestSaveEventConfigValidates(t *testing.T) {
	a, _ := newTestApp(t, nil, nil)
	ctx := context.Background()
	if _, err := a.SaveEventConfig(ctx, EventConfigInput{IsActive: true, Keyword: "  "}); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected invalid input for blank keyword, got %v", err)
	}
	if _, err := a.SaveEventConfig(ctx, EventConfigInput{Keyword: "x", MinToken: -1}); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected invalid input for negative bound, got %v", err)
	}
	cfg, err := a.SaveEventConfig(ctx, EventConfigInput{IsActive: true, Keyword: " gold ", MinToken: 3, MaxToken: 9})
	if err != nil {
		t.Fatalf("save: %v", err)
	}
	if cfg.Keyword != "gold" || cfg.UpdatedAt.IsZero() {
		t.Fatalf("unexpected saved config: %+v", cfg)
	}
}

func TestDrawReward(t *testing.T) {
	var gotN int64
	a, _ := newTestApp(t, nil, func(c *Config) {
		c.Reward = func(n int64) int64 {
			gotN = n
			return n - 1
		}
	})
	if got := a.drawReward(5, 15); got != 15 || gotN != 11 {
		t.Fatalf("drawReward(5, 15) = %d (n=%d)", got, gotN)
	}
	if got := a.drawReward(20, 10); got != 20 {
		t.Fatalf("inverted bounds should be swapped, got %d", got)
	}
	if got := a.drawReward(7, 7); got != 7 {
		t.Fatalf("equal bounds should return the bound, got %d", got)
	}
}

func TestPrizeMessageDefault(t *testing.T) {
	msg := prizeMessage(domain.EventConfig{Keyword: "gold"}, 12)
	if !strings.Contains(msg, "12 tokens") || !strings.Contains(msg, `"gold"`) {
		t.Fatalf("unexpected default message: %q", msg)
	}
}

func TestApproveClaimCreditsOnce(t *testing.T) {
	notes := &recordingNotifier{}
	a, s := newTestApp(t, &fakeGenerator{}, func(c *Config) { c.Notifier = notes })
	seedAICard(t, a, "alice")
	ctx := context.Background()
	if _, err := a.SaveEventConfig(ctx, EventConfigInput{IsActive: true, Keyword: "gold", MinToken: 10, MaxToken: 10}); err != nil {
		t.Fatalf("save event config: %v", err)
	}
	if _, err := a.Chat(ctx, ChatRequest{Message: "gold", Username: "alice"}); err != nil {
		t.Fatalf("chat: %v", err)
	}
	claims, _ := a.ListClaims(ctx, "pending")
	if len(claims) != 1 {
		t.Fatalf("expected one claim, got %d", len(claims))
	}

	claim, balance, err := a.ApproveClaim(ctx, claims[0].ID)
	if err != nil {
		t.Fatalf("approve: %v", err)
	}
	if claim.Status != domain.ClaimApproved || balance != 20 {
		t.Fatalf("unexpected approval: %+v balance %d", claim, balance)
	}
	if _, _, err := a.ApproveClaim(ctx, claims[0].ID); !errors.Is(err, store.ErrClaimNotPending) {
		t.Fatalf("expected not pending on second approval, got %v", err)
	}
	if _, err := a.RejectClaim(ctx, claims[0].ID); !errors.Is(err, store.ErrClaimNotPending) {
		t.Fatalf("expected not pending on reject after approve, got %v", err)
	}
	if got := balanceOf(t, s, "alice"); got != 20 {
		t.Fatalf("double approval changed balance: %d", got)
	}
	income, _ := s.ListLedger(ctx, "alice", store.LedgerIncome, 10)
	if len(income) != 2 || income[0].Reason != "event win" || income[0].Amount != 10 {
		t.Fatalf("unexpected income entries: %+v", income)
	}
	want := []string{notify.EventClaimCreated, notify.EventClaimApproved}
	if got := notes.types(); !reflect.DeepEqual(got, want) {
		t.Fatalf("unexpected notifications: %v", got)
	}
	if pending, _ := a.ListClaims(ctx, ""); len(pending) != 0 {
		t.Fatalf("approved claim still pending")
	}
	if all, _ := a.ListClaims(ctx, "all"); len(all) != 1 {
		t.Fatalf("expected claim in full listing")
	}
}

func TestRejectClaim(t *testing.T) {
	a, s := newTestApp(t, nil, nil)
	seedAICard(t, a, "alice")
	ctx := context.Background()
	if err := s.CreateClaim(ctx, domain.EventClaim{ID: "c1", UserID: "alice", UserName: "Alice", Keyword: "gold", Amount: 5}); err != nil {
		t.Fatalf("create claim: %v", err)
	}
	claim, err := a.RejectClaim(ctx, "c1")
	if err != nil {
		t.Fatalf("reject: %v", err)
	}
	if claim.Status != domain.ClaimRejected || claim.RejectedAt == nil {
		t.Fatalf("unexpected claim: %+v", claim)
	}
	if got := balanceOf(t, s, "alice"); got != 10 {
		t.Fatalf("reject changed balance: %d", got)
	}
	if _, _, err := a.ApproveClaim(ctx, "c1"); !errors.Is(err, store.ErrClaimNotPending) {
		t.Fatalf("expected not pending, got %v", err)
	}
	got, err := a.GetClaim(ctx, " c1 ")
	if err != nil || got.Status != domain.ClaimRejected || got.Amount != 5 {
		t.Fatalf("unexpected claim lookup: %+v err %v", got, err)
	}
	if _, err := a.GetClaim(ctx, "missing"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	if _, err := a.RejectClaim(ctx, "missing"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	if _, err := a.ListClaims(ctx, "bogus"); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected invalid status error, got %v", err)
	}
}
