package store

import (
	"time"

	"gorm.io/datatypes"
)

// GORM models used for persistence.
type CardModel struct {
	ID         string         `gorm:"primaryKey"`
	OwnerEmail string         `gorm:"uniqueIndex;not null"`
	Name       string         `gorm:"not null"`
	Credits    int64          `gorm:"not null;default:0"`
	EnableAI   bool           `gorm:"not null;default:false"`
	Content    datatypes.JSON `gorm:"not null"`
	CreatedAt  time.Time      `gorm:"not null"`
	UpdatedAt  time.Time      `gorm:"not null"`
}

type LedgerModel struct {
	ID        string    `gorm:"primaryKey"`
	CardID    string    `gorm:"not null;index:idx_ledger_card_date,priority:1"`
	Type      string    `gorm:"not null"`
	Amount    int64     `gorm:"not null"`
	Reason    string    `gorm:"not null"`
	CreatedAt time.Time `gorm:"not null;index:idx_ledger_card_date,priority:2"`
}

// EventConfigModel has a single row keyed by eventConfigID.
type EventConfigModel struct {
	ID        string `gorm:"primaryKey"`
	IsActive  bool   `gorm:"not null"`
	Keyword   string
	PrizeMsg  string
	MinToken  int64
	MaxToken  int64
	UpdatedAt time.Time
}

type ClaimModel struct {
	ID         string    `gorm:"primaryKey"`
	UserID     string    `gorm:"not null;index"`
	UserName   string    `gorm:"not null"`
	Keyword    string    `gorm:"not null"`
	Amount     int64     `gorm:"not null"`
	Status     string    `gorm:"not null;index"`
	ClaimedAt  time.Time `gorm:"not null;index"`
	ApprovedAt *time.Time
	RejectedAt *time.Time
}

type GuestbookModel struct {
	ID           string    `gorm:"primaryKey"`
	ToUser       string    `gorm:"not null;index:idx_guestbook_to_created,priority:1"`
	Name         string    `gorm:"not null"`
	PasswordHash string    `gorm:"not null"`
	Content      string    `gorm:"type:text;not null"`
	CreatedAt    time.Time `gorm:"not null;index:idx_guestbook_to_created,priority:2"`
}
