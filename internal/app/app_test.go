package app

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"namecard/internal/notify"
	"namecard/pkg/domain"
	"namecard/pkg/store"
)

type fakeGenerator struct {
	mu     sync.Mutex
	reply  string
	err    error
	calls  int
	system string
	user   string
	json   bool
}

func (g *fakeGenerator) GenerateText(_ context.Context, systemPrompt, userPrompt string) (string, error) {
	return g.generate(systemPrompt, userPrompt, false)
}

func (g *fakeGenerator) GenerateJSON(_ context.Context, systemPrompt, userPrompt string) (string, error) {
	return g.generate(systemPrompt, userPrompt, true)
}

func (g *fakeGenerator) generate(systemPrompt, userPrompt string, json bool) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.calls++
	g.system = systemPrompt
	g.user = userPrompt
	g.json = json
	return g.reply, g.err
}

func (g *fakeGenerator) callCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.calls
}

type recordingNotifier struct {
	mu     sync.Mutex
	events []notify.Event
}

func (n *recordingNotifier) Notify(_ context.Context, event notify.Event) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, event)
	return nil
}

func (n *recordingNotifier) types() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]string, 0, len(n.events))
	for _, e := range n.events {
		out = append(out, e.Type)
	}
	return out
}

func newTestStore(t *testing.T) *store.GormStore {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("sql db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	var (
		mu    sync.Mutex
		clock = time.Date(2026, 1, 1, 9, 0, 0, 0, time.UTC)
	)
	s, err := store.NewGormStoreWithDB(db, store.WithClock(func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		clock = clock.Add(time.Second)
		return clock
	}))
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	return s
}

// newTestApp wires an App over a fresh sqlite store. mutate adjusts the
// config before construction.
func newTestApp(t *testing.T, gen *fakeGenerator, mutate func(*Config)) (*App, *store.GormStore) {
	t.Helper()
	s := newTestStore(t)
	cfg := Config{
		Store:            s,
		SetupCredits:     10,
		SuperAdminEmails: []string{"Root@Example.com"},
		Now:              func() time.Time { return time.Date(2026, 2, 1, 12, 0, 0, 0, time.UTC) },
	}
	if gen != nil {
		cfg.Generator = gen
	}
	if mutate != nil {
		mutate(&cfg)
	}
	a, err := New(cfg)
	if err != nil {
		t.Fatalf("new app: %v", err)
	}
	return a, s
}

// seedAICard creates a card with every AI add-on switched on.
func seedAICard(t *testing.T, a *App, id string) domain.Card {
	t.Helper()
	ctx := context.Background()
	card, err := a.CreateCard(ctx, CreateCardInput{ID: id, Name: "Alice", OwnerEmail: id + "@example.com", Role: "Designer", EnableAI: true})
	if err != nil {
		t.Fatalf("create card: %v", err)
	}
	content := card.CardContent
	content.Intro = "Seoul product designer"
	content.TMIData = "Loves hiking"
	content.OwnerMBTI = "ENFP"
	content.Features = &domain.Features{Quiz: true, Synergy: true, Translation: true}
	card, err = a.UpdateCard(ctx, card.OwnerEmail, content)
	if err != nil {
		t.Fatalf("update card: %v", err)
	}
	return card
}

func balanceOf(t *testing.T, s *store.GormStore, id string) int64 {
	t.Helper()
	card, err := s.GetCard(context.Background(), id)
	if err != nil {
		t.Fatalf("get card: %v", err)
	}
	return card.Credits
}

func TestNewRequiresStoreOrDatabaseURL(t *testing.T) {
	if _, err := New(Config{}); err == nil {
		t.Fatalf("expected error without store")
	}
}

func TestNewRejectsNegativeCosts(t *testing.T) {
	_, err := New(Config{Store: newTestStore(t), Costs: &Costs{Chat: -1}})
	if err == nil {
		t.Fatalf("expected error for negative cost")
	}
}

func TestIsSuperAdminIgnoresCase(t *testing.T) {
	a, _ := newTestApp(t, nil, nil)
	if !a.IsSuperAdmin(" root@example.COM ") {
		t.Fatalf("expected configured admin to match")
	}
	if a.IsSuperAdmin("alice@example.com") {
		t.Fatalf("unexpected admin match")
	}
	if a.AIEnabled() {
		t.Fatalf("expected AI disabled without generator")
	}
}
