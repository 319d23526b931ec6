package app

import (
	"context"
	"fmt"
	"math/rand"
	"strings"
	"time"

	"namecard/internal/notify"
	"namecard/internal/util"
	"namecard/pkg/ai"
	"namecard/pkg/storage"
	"namecard/pkg/store"
)

const (
	defaultSetupCredits   = 1000
	defaultQuizQuestions  = 10
	defaultMaxImageBytes  = 5 << 20
	defaultGuestbookLimit = 100
)

// Costs is the token price of each AI mode.
type Costs struct {
	Chat      int64
	Quiz      int64
	Synergy   int64
	Translate int64
}

// DefaultCosts are the prices the card UI has always advertised.
func DefaultCosts() Costs {
	return Costs{Chat: 2, Quiz: 3, Synergy: 3, Translate: 1}
}

func (c Costs) of(mode Mode) int64 {
	switch mode {
	case ModeQuiz:
		return c.Quiz
	case ModeSynergy:
		return c.Synergy
	case ModeTranslate:
		return c.Translate
	default:
		return c.Chat
	}
}

// Config holds runtime configuration for the core application.
type Config struct {
	DatabaseURL string
	Store       store.Store
	// Generator may be nil; AI calls then fail with ErrServiceUnavailable.
	Generator ai.TextGenerator
	// Objects may be nil; profile uploads then fail with ErrUploadsUnavailable.
	Objects  storage.ObjectStore
	Notifier notify.Notifier

	Costs            *Costs
	SetupCredits     int64
	QuizQuestions    int
	MaxImageBytes    int64
	GuestbookLimit   int
	SuperAdminEmails []string

	// Reward draws an integer in [0, n). Defaults to math/rand.
	Reward func(n int64) int64
	Now    func() time.Time
}

// App is the core application service wiring together storage and domain logic.
type App struct {
	store     store.Store
	generator ai.TextGenerator
	objects   storage.ObjectStore
	notifier  notify.Notifier

	costs          Costs
	setupCredits   int64
	quizQuestions  int
	maxImageBytes  int64
	guestbookLimit int
	superAdmins    map[string]bool

	reward func(n int64) int64
	now    func() time.Time
}

// New constructs the application. Without an injected store it opens Postgres.
func New(cfg Config) (*App, error) {
	dataStore := cfg.Store
	if dataStore == nil {
		if cfg.DatabaseURL == "" {
			return nil, fmt.Errorf("database URL required (no in-memory store allowed)")
		}
		var err error
		dataStore, err = store.NewGormStore(cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("init postgres store: %w", err)
		}
	}
	a := &App{
		store:          dataStore,
		generator:      cfg.Generator,
		objects:        cfg.Objects,
		notifier:       cfg.Notifier,
		costs:          DefaultCosts(),
		setupCredits:   cfg.SetupCredits,
		quizQuestions:  cfg.QuizQuestions,
		maxImageBytes:  cfg.MaxImageBytes,
		guestbookLimit: cfg.GuestbookLimit,
		superAdmins:    make(map[string]bool, len(cfg.SuperAdminEmails)),
		reward:         cfg.Reward,
		now:            cfg.Now,
	}
	if cfg.Costs != nil {
		a.costs = *cfg.Costs
	}
	if a.costs.Chat < 0 || a.costs.Quiz < 0 || a.costs.Synergy < 0 || a.costs.Translate < 0 {
		return nil, fmt.Errorf("AI costs must be >= 0")
	}
	if a.notifier == nil {
		a.notifier = notify.Nop{}
	}
	if a.setupCredits <= 0 {
		a.setupCredits = defaultSetupCredits
	}
	if a.quizQuestions <= 0 {
		a.quizQuestions = defaultQuizQuestions
	}
	if a.maxImageBytes <= 0 {
		a.maxImageBytes = defaultMaxImageBytes
	}
	if a.guestbookLimit <= 0 {
		a.guestbookLimit = defaultGuestbookLimit
	}
	for _, email := range cfg.SuperAdminEmails {
		if email = normalizeEmail(email); email != "" {
			a.superAdmins[email] = true
		}
	}
	if a.reward == nil {
		a.reward = rand.Int63n
	}
	if a.now == nil {
		a.now = time.Now
	}
	return a, nil
}

// IsSuperAdmin reports whether a verified email may use the master console.
func (a *App) IsSuperAdmin(email string) bool {
	return a.superAdmins[normalizeEmail(email)]
}

// AIEnabled reports whether a generator is configured.
func (a *App) AIEnabled() bool {
	return a.generator != nil
}

// publish sends a best-effort notification after a committed change.
func (a *App) publish(ctx context.Context, event notify.Event) {
	if event.At.IsZero() {
		event.At = a.now().UTC()
	}
	if err := a.notifier.Notify(context.WithoutCancel(ctx), event); err != nil {
		util.LoggerFromContext(ctx).Warn("notify failed", "type", event.Type, "card_id", event.CardID, "err", err)
	}
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
