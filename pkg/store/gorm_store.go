package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"

	"namecard/pkg/domain"
)

const migrateLockID int64 = 62707270

const eventConfigID = "global"

type GormStoreOptions struct {
	Now func() time.Time
}

type GormStoreOption func(*GormStoreOptions)

// WithClock overrides the time source used for timestamps.
func WithClock(now func() time.Time) GormStoreOption {
	return func(opts *GormStoreOptions) {
		opts.Now = now
	}
}

// GormStore implements Store using GORM.
type GormStore struct {
	db  *gorm.DB
	now func() time.Time
}

// NewGormStore opens the Postgres DB and runs auto-migrations under an
// advisory lock so concurrent replicas do not race.
func NewGormStore(dsn string, options ...GormStoreOption) (*GormStore, error) {
	gormLog := gormlogger.New(
		log.New(os.Stdout, "\r\n", log.LstdFlags),
		gormlogger.Config{
			SlowThreshold:             time.Second,
			LogLevel:                  gormlogger.Warn,
			IgnoreRecordNotFoundError: true,
			Colorful:                  false,
		},
	)
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{Logger: gormLog})
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if err := withMigrationLock(db, migrate); err != nil {
		return nil, err
	}
	return newGormStore(db, options...), nil
}

// NewGormStoreWithDB wraps an already opened DB and migrates it without the
// Postgres advisory lock.
func NewGormStoreWithDB(db *gorm.DB, options ...GormStoreOption) (*GormStore, error) {
	if db == nil {
		return nil, errors.New("nil db")
	}
	if err := migrate(db); err != nil {
		return nil, err
	}
	return newGormStore(db, options...), nil
}

func newGormStore(db *gorm.DB, options ...GormStoreOption) *GormStore {
	opts := GormStoreOptions{}
	for _, option := range options {
		if option != nil {
			option(&opts)
		}
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &GormStore{db: db, now: now}
}

func migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(&CardModel{}, &LedgerModel{}, &EventConfigModel{}, &ClaimModel{}, &GuestbookModel{}); err != nil {
		return fmt.Errorf("auto migrate: %w", err)
	}
	return nil
}

func withMigrationLock(db *gorm.DB, fn func(*gorm.DB) error) error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("get sql db: %w", err)
	}
	conn, err := sqlDB.Conn(ctx)
	if err != nil {
		return fmt.Errorf("open sql conn: %w", err)
	}
	defer conn.Close()
	if err := execAdvisory(ctx, conn, "SELECT pg_advisory_lock($1)", migrateLockID); err != nil {
		return fmt.Errorf("acquire migrate lock: %w", err)
	}
	defer func() {
		_ = execAdvisory(ctx, conn, "SELECT pg_advisory_unlock($1)", migrateLockID)
	}()
	return fn(db)
}

func execAdvisory(ctx context.Context, conn *sql.Conn, query string, lockID int64) error {
	_, err := conn.ExecContext(ctx, query, lockID)
	return err
}

func (s *GormStore) timestamp() time.Time {
	return s.now().UTC()
}

// CreateCard inserts a new card and, when setupCredits is positive, grants the
// starting balance with a "setup" ledger row in the same transaction. Both the
// id and the owner email must be unused.
func (s *GormStore) CreateCard(ctx context.Context, card domain.Card, setupCredits int64) error {
	if setupCredits < 0 {
		return ErrInvalidAmount
	}
	now := s.timestamp()
	if card.CreatedAt.IsZero() {
		card.CreatedAt = now
	}
	card.UpdatedAt = now
	model, err := cardToModel(card)
	if err != nil {
		return err
	}
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&CardModel{}).
			Where("id = ? OR owner_email = ?", model.ID, model.OwnerEmail).
			Count(&count).Error; err != nil {
			return err
		}
		if count > 0 {
			return ErrCardExists
		}
		if err := tx.Create(&model).Error; err != nil {
			return err
		}
		if setupCredits == 0 {
			return nil
		}
		if _, _, err := s.credit(tx, model.ID, setupCredits, "setup"); err != nil {
			return fmt.Errorf("grant setup credits: %w", err)
		}
		return nil
	})
}

// GetCard returns a card by id.
func (s *GormStore) GetCard(ctx context.Context, id string) (domain.Card, error) {
	var model CardModel
	if err := s.db.WithContext(ctx).First(&model, "id = ?", id).Error; err != nil {
		return domain.Card{}, notFound(err)
	}
	return cardFromModel(model)
}

// GetCardByOwnerEmail returns the card owned by email.
func (s *GormStore) GetCardByOwnerEmail(ctx context.Context, email string) (domain.Card, error) {
	var model CardModel
	if err := s.db.WithContext(ctx).First(&model, "owner_email = ?", email).Error; err != nil {
		return domain.Card{}, notFound(err)
	}
	return cardFromModel(model)
}

// UpdateCardContent replaces the editable content. Credits, id and owner are untouched.
func (s *GormStore) UpdateCardContent(ctx context.Context, id string, content domain.CardContent) error {
	raw, err := json.Marshal(content)
	if err != nil {
		return fmt.Errorf("encode card content: %w", err)
	}
	res := s.db.WithContext(ctx).Model(&CardModel{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"name":       content.Name,
			"content":    datatypes.JSON(raw),
			"updated_at": s.timestamp(),
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// SetCardAI toggles the AI plan of a card.
func (s *GormStore) SetCardAI(ctx context.Context, id string, enabled bool) error {
	res := s.db.WithContext(ctx).Model(&CardModel{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"enable_ai":  enabled,
			"updated_at": s.timestamp(),
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// ListCards returns every card ordered by id.
func (s *GormStore) ListCards(ctx context.Context) ([]domain.CardSummary, error) {
	var models []CardModel
	if err := s.db.WithContext(ctx).
		Select("id", "name", "owner_email", "credits").
		Order("id ASC").
		Find(&models).Error; err != nil {
		return nil, err
	}
	res := make([]domain.CardSummary, 0, len(models))
	for _, m := range models {
		res = append(res, domain.CardSummary{
			ID:         m.ID,
			Name:       m.Name,
			OwnerEmail: m.OwnerEmail,
			Credits:    m.Credits,
		})
	}
	return res, nil
}

// Debit deducts cost from the card and appends one ledger row in the same
// transaction. The balance never goes below zero.
func (s *GormStore) Debit(ctx context.Context, cardID string, cost int64, reason string) (domain.LedgerEntry, int64, error) {
	if cost < 0 {
		return domain.LedgerEntry{}, 0, ErrInvalidAmount
	}
	if cost == 0 {
		balance, err := s.balance(s.db.WithContext(ctx), cardID)
		return domain.LedgerEntry{}, balance, err
	}
	var (
		entry   domain.LedgerEntry
		balance int64
	)
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		now := s.timestamp()
		res := tx.Model(&CardModel{}).
			Where("id = ? AND credits >= ?", cardID, cost).
			Updates(map[string]any{
				"credits":    gorm.Expr("credits - ?", cost),
				"updated_at": now,
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			if _, err := s.balance(tx, cardID); err != nil {
				return err
			}
			return ErrInsufficientBalance
		}
		var err error
		entry, err = appendLedger(tx, cardID, domain.LedgerDebit, -cost, reason, now)
		if err != nil {
			return err
		}
		balance, err = s.balance(tx, cardID)
		return err
	})
	if err != nil {
		return domain.LedgerEntry{}, 0, err
	}
	return entry, balance, nil
}

// Credit adds a positive amount to the card with one ledger row.
func (s *GormStore) Credit(ctx context.Context, cardID string, amount int64, reason string) (domain.LedgerEntry, int64, error) {
	if amount <= 0 {
		return domain.LedgerEntry{}, 0, ErrInvalidAmount
	}
	var (
		entry   domain.LedgerEntry
		balance int64
	)
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		entry, balance, err = s.credit(tx, cardID, amount, reason)
		return err
	})
	if err != nil {
		return domain.LedgerEntry{}, 0, err
	}
	return entry, balance, nil
}

func (s *GormStore) credit(tx *gorm.DB, cardID string, amount int64, reason string) (domain.LedgerEntry, int64, error) {
	now := s.timestamp()
	res := tx.Model(&CardModel{}).
		Where("id = ?", cardID).
		Updates(map[string]any{
			"credits":    gorm.Expr("credits + ?", amount),
			"updated_at": now,
		})
	if res.Error != nil {
		return domain.LedgerEntry{}, 0, res.Error
	}
	if res.RowsAffected == 0 {
		return domain.LedgerEntry{}, 0, ErrNotFound
	}
	entry, err := appendLedger(tx, cardID, domain.LedgerGrant, amount, reason, now)
	if err != nil {
		return domain.LedgerEntry{}, 0, err
	}
	balance, err := s.balance(tx, cardID)
	if err != nil {
		return domain.LedgerEntry{}, 0, err
	}
	return entry, balance, nil
}

func (s *GormStore) balance(tx *gorm.DB, cardID string) (int64, error) {
	var model CardModel
	if err := tx.Select("id", "credits").First(&model, "id = ?", cardID).Error; err != nil {
		return 0, notFound(err)
	}
	return model.Credits, nil
}

func appendLedger(tx *gorm.DB, cardID string, typ domain.LedgerType, amount int64, reason string, at time.Time) (domain.LedgerEntry, error) {
	model := LedgerModel{
		ID:        uuid.NewString(),
		CardID:    cardID,
		Type:      string(typ),
		Amount:    amount,
		Reason:    reason,
		CreatedAt: at,
	}
	if err := tx.Create(&model).Error; err != nil {
		return domain.LedgerEntry{}, fmt.Errorf("append ledger: %w", err)
	}
	return ledgerFromModel(model), nil
}

// ListLedger returns ledger entries for a card, newest first.
func (s *GormStore) ListLedger(ctx context.Context, cardID string, kind LedgerKind, limit int) ([]domain.LedgerEntry, error) {
	if limit <= 0 || limit > MaxLedgerPage {
		limit = MaxLedgerPage
	}
	tx := s.db.WithContext(ctx).Where("card_id = ?", cardID)
	switch kind {
	case LedgerUsage:
		tx = tx.Where("amount < 0")
	case LedgerIncome:
		tx = tx.Where("amount > 0")
	}
	var models []LedgerModel
	if err := tx.Order("created_at DESC").Limit(limit).Find(&models).Error; err != nil {
		return nil, err
	}
	res := make([]domain.LedgerEntry, 0, len(models))
	for _, m := range models {
		res = append(res, ledgerFromModel(m))
	}
	return res, nil
}

// GetEventConfig returns the event configuration. A missing row reads as inactive.
func (s *GormStore) GetEventConfig(ctx context.Context) (domain.EventConfig, error) {
	var model EventConfigModel
	if err := s.db.WithContext(ctx).First(&model, "id = ?", eventConfigID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.EventConfig{}, nil
		}
		return domain.EventConfig{}, err
	}
	return domain.EventConfig{
		IsActive:  model.IsActive,
		Keyword:   model.Keyword,
		PrizeMsg:  model.PrizeMsg,
		MinToken:  model.MinToken,
		MaxToken:  model.MaxToken,
		UpdatedAt: model.UpdatedAt,
	}, nil
}

// SaveEventConfig replaces the event configuration.
func (s *GormStore) SaveEventConfig(ctx context.Context, cfg domain.EventConfig) error {
	model := EventConfigModel{
		ID:        eventConfigID,
		IsActive:  cfg.IsActive,
		Keyword:   cfg.Keyword,
		PrizeMsg:  cfg.PrizeMsg,
		MinToken:  cfg.MinToken,
		MaxToken:  cfg.MaxToken,
		UpdatedAt: s.timestamp(),
	}
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"is_active", "keyword", "prize_msg", "min_token", "max_token", "updated_at"}),
	}).Create(&model).Error
}

// CreateClaim records a pending claim.
func (s *GormStore) CreateClaim(ctx context.Context, claim domain.EventClaim) error {
	if claim.ID == "" {
		claim.ID = uuid.NewString()
	}
	if claim.ClaimedAt.IsZero() {
		claim.ClaimedAt = s.timestamp()
	}
	claim.Status = domain.ClaimPending
	model := claimToModel(claim)
	return s.db.WithContext(ctx).Create(&model).Error
}

// GetClaim returns a claim by id.
func (s *GormStore) GetClaim(ctx context.Context, id string) (domain.EventClaim, error) {
	var model ClaimModel
	if err := s.db.WithContext(ctx).First(&model, "id = ?", id).Error; err != nil {
		return domain.EventClaim{}, notFound(err)
	}
	return claimFromModel(model), nil
}

// ListClaims returns claims newest first. An empty status lists all.
func (s *GormStore) ListClaims(ctx context.Context, status domain.ClaimStatus) ([]domain.EventClaim, error) {
	tx := s.db.WithContext(ctx).Order("claimed_at DESC")
	if status != "" {
		tx = tx.Where("status = ?", string(status))
	}
	var models []ClaimModel
	if err := tx.Find(&models).Error; err != nil {
		return nil, err
	}
	res := make([]domain.EventClaim, 0, len(models))
	for _, m := range models {
		res = append(res, claimFromModel(m))
	}
	return res, nil
}

// ApproveClaim flips a pending claim to approved and credits its amount to
// the claimant in one transaction. It returns the claimant's new balance.
func (s *GormStore) ApproveClaim(ctx context.Context, id string) (domain.EventClaim, int64, error) {
	var (
		claim   domain.EventClaim
		balance int64
	)
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		now := s.timestamp()
		if err := transitionClaim(tx, id, domain.ClaimApproved, "approved_at", now); err != nil {
			return err
		}
		var model ClaimModel
		if err := tx.First(&model, "id = ?", id).Error; err != nil {
			return notFound(err)
		}
		claim = claimFromModel(model)
		if claim.Amount <= 0 {
			var err error
			balance, err = s.balance(tx, claim.UserID)
			return err
		}
		var err error
		_, balance, err = s.credit(tx, claim.UserID, claim.Amount, "event win")
		return err
	})
	if err != nil {
		return domain.EventClaim{}, 0, err
	}
	return claim, balance, nil
}

// RejectClaim flips a pending claim to rejected. No balance changes.
func (s *GormStore) RejectClaim(ctx context.Context, id string) (domain.EventClaim, error) {
	var claim domain.EventClaim
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := transitionClaim(tx, id, domain.ClaimRejected, "rejected_at", s.timestamp()); err != nil {
			return err
		}
		var model ClaimModel
		if err := tx.First(&model, "id = ?", id).Error; err != nil {
			return notFound(err)
		}
		claim = claimFromModel(model)
		return nil
	})
	if err != nil {
		return domain.EventClaim{}, err
	}
	return claim, nil
}

func transitionClaim(tx *gorm.DB, id string, to domain.ClaimStatus, stampColumn string, at time.Time) error {
	res := tx.Model(&ClaimModel{}).
		Where("id = ? AND status = ?", id, string(domain.ClaimPending)).
		Updates(map[string]any{
			"status":    string(to),
			stampColumn: at,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected > 0 {
		return nil
	}
	var count int64
	if err := tx.Model(&ClaimModel{}).Where("id = ?", id).Count(&count).Error; err != nil {
		return err
	}
	if count == 0 {
		return ErrNotFound
	}
	return ErrClaimNotPending
}

// AddGuestbookEntry stores a visitor message.
func (s *GormStore) AddGuestbookEntry(ctx context.Context, entry domain.GuestbookEntry) error {
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = s.timestamp()
	}
	model := GuestbookModel{
		ID:           entry.ID,
		ToUser:       entry.ToUser,
		Name:         entry.Name,
		PasswordHash: entry.PasswordHash,
		Content:      entry.Content,
		CreatedAt:    entry.CreatedAt,
	}
	return s.db.WithContext(ctx).Create(&model).Error
}

// GetGuestbookEntry returns one entry including its password hash.
func (s *GormStore) GetGuestbookEntry(ctx context.Context, id string) (domain.GuestbookEntry, error) {
	var model GuestbookModel
	if err := s.db.WithContext(ctx).First(&model, "id = ?", id).Error; err != nil {
		return domain.GuestbookEntry{}, notFound(err)
	}
	return guestbookFromModel(model), nil
}

// ListGuestbook returns entries addressed to a card, newest first.
func (s *GormStore) ListGuestbook(ctx context.Context, toUser string, limit int) ([]domain.GuestbookEntry, error) {
	tx := s.db.WithContext(ctx).Where("to_user = ?", toUser).Order("created_at DESC")
	if limit > 0 {
		tx = tx.Limit(limit)
	}
	var models []GuestbookModel
	if err := tx.Find(&models).Error; err != nil {
		return nil, err
	}
	res := make([]domain.GuestbookEntry, 0, len(models))
	for _, m := range models {
		res = append(res, guestbookFromModel(m))
	}
	return res, nil
}

// DeleteGuestbookEntry removes an entry.
func (s *GormStore) DeleteGuestbookEntry(ctx context.Context, id string) error {
	res := s.db.WithContext(ctx).Delete(&GuestbookModel{}, "id = ?", id)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func notFound(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotFound
	}
	return err
}

func cardToModel(c domain.Card) (CardModel, error) {
	raw, err := json.Marshal(c.CardContent)
	if err != nil {
		return CardModel{}, fmt.Errorf("encode card content: %w", err)
	}
	return CardModel{
		ID:         c.ID,
		OwnerEmail: c.OwnerEmail,
		Name:       c.Name,
		Credits:    c.Credits,
		EnableAI:   c.EnableAI,
		Content:    raw,
		CreatedAt:  c.CreatedAt,
		UpdatedAt:  c.UpdatedAt,
	}, nil
}

func cardFromModel(m CardModel) (domain.Card, error) {
	var content domain.CardContent
	if len(m.Content) > 0 {
		if err := json.Unmarshal(m.Content, &content); err != nil {
			return domain.Card{}, fmt.Errorf("decode card %s content: %w", m.ID, err)
		}
	}
	if content.Name == "" {
		content.Name = m.Name
	}
	return domain.Card{
		CardContent: content,
		ID:          m.ID,
		OwnerEmail:  m.OwnerEmail,
		Credits:     m.Credits,
		EnableAI:    m.EnableAI,
		CreatedAt:   m.CreatedAt,
		UpdatedAt:   m.UpdatedAt,
	}, nil
}

func ledgerFromModel(m LedgerModel) domain.LedgerEntry {
	return domain.LedgerEntry{
		ID:     m.ID,
		CardID: m.CardID,
		Type:   domain.LedgerType(m.Type),
		Amount: m.Amount,
		Reason: m.Reason,
		Date:   m.CreatedAt,
	}
}

func claimToModel(c domain.EventClaim) ClaimModel {
	return ClaimModel{
		ID:         c.ID,
		UserID:     c.UserID,
		UserName:   c.UserName,
		Keyword:    c.Keyword,
		Amount:     c.Amount,
		Status:     string(c.Status),
		ClaimedAt:  c.ClaimedAt,
		ApprovedAt: c.ApprovedAt,
		RejectedAt: c.RejectedAt,
	}
}

func claimFromModel(m ClaimModel) domain.EventClaim {
	return domain.EventClaim{
		ID:         m.ID,
		UserID:     m.UserID,
		UserName:   m.UserName,
		Keyword:    m.Keyword,
		Amount:     m.Amount,
		Status:     domain.ClaimStatus(m.Status),
		ClaimedAt:  m.ClaimedAt,
		ApprovedAt: m.ApprovedAt,
		RejectedAt: m.RejectedAt,
	}
}

func guestbookFromModel(m GuestbookModel) domain.GuestbookEntry {
	return domain.GuestbookEntry{
		ID:           m.ID,
		ToUser:       m.ToUser,
		Name:         m.Name,
		PasswordHash: m.PasswordHash,
		Content:      m.Content,
		CreatedAt:    m.CreatedAt,
	}
}
