package domain

import "time"

type LedgerType string

const (
	LedgerDebit LedgerType = "debit"
	LedgerGrant LedgerType = "grant"
)

type ClaimStatus string

const (
	ClaimPending  ClaimStatus = "pending"
	ClaimApproved ClaimStatus = "approved"
	ClaimRejected ClaimStatus = "rejected"
)

// Built-in section ids. Custom sections use their own "custom_*" ids.
const (
	SectionProfile  = "profile"
	SectionLinks    = "links"
	SectionHistory  = "history"
	SectionProjects = "projects"
)

type Colors struct {
	Background string `json:"background"`
	Theme      string `json:"theme"`
}

type Features struct {
	Quiz        bool `json:"quiz"`
	Synergy     bool `json:"synergy"`
	Translation bool `json:"translation"`
}

type SectionConfig struct {
	Title         string `json:"title"`
	IsDefaultOpen *bool  `json:"isDefaultOpen,omitempty"`
}

type Link struct {
	Type  string `json:"type"`
	Value string `json:"value"`
}

type HistoryItem struct {
	Date  string `json:"date"`
	Title string `json:"title"`
	Desc  string `json:"desc"`
}

type Project struct {
	Title string `json:"title"`
	Link  string `json:"link"`
	Desc  string `json:"desc"`
}

type Item struct {
	Title string `json:"title"`
	Desc  string `json:"desc"`
}

type CustomSection struct {
	ID    string `json:"id"`
	Title string `json:"title"`
	Items []Item `json:"items"`
}

// CardContent is the owner-editable part of a card.
type CardContent struct {
	Name           string                   `json:"name"`
	Role           string                   `json:"role"`
	Intro          string                   `json:"intro"`
	ProfileImg     string                   `json:"profile_img"`
	TMIData        string                   `json:"tmi_data,omitempty"`
	OwnerMBTI      string                   `json:"ownerMbti"`
	Colors         *Colors                  `json:"colors,omitempty"`
	Features       *Features                `json:"features,omitempty"`
	SectionOrder   []string                 `json:"section_order"`
	SectionConfig  map[string]SectionConfig `json:"section_config"`
	Links          []Link                   `json:"links"`
	History        []HistoryItem            `json:"history"`
	Projects       []Project                `json:"projects"`
	CustomSections []CustomSection          `json:"custom_sections"`
	Certifications []Item                   `json:"certifications"`
	Awards         []Item                   `json:"awards"`
	Research       []Item                   `json:"research"`
}

// Card is one business card. Credits change only through ledger transactions.
type Card struct {
	CardContent
	ID         string    `json:"id"`
	OwnerEmail string    `json:"owner_email,omitempty"`
	Credits    int64     `json:"credits"`
	EnableAI   bool      `json:"enable_ai"`
	CreatedAt  time.Time `json:"createdAt"`
	UpdatedAt  time.Time `json:"updatedAt"`
}

// PublicCard is what visitors see: no owner email, balance or chatbot notes.
type PublicCard struct {
	CardContent
	ID       string `json:"id"`
	EnableAI bool   `json:"enable_ai"`
}

// CardSummary is the super-admin list view of a card.
type CardSummary struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	OwnerEmail string `json:"owner_email"`
	Credits    int64  `json:"credits"`
}

type LedgerEntry struct {
	ID     string     `json:"id"`
	CardID string     `json:"cardId"`
	Type   LedgerType `json:"type"`
	Amount int64      `json:"amount"`
	Reason string     `json:"reason"`
	Date   time.Time  `json:"date"`
}

type EventConfig struct {
	IsActive  bool      `json:"isActive"`
	Keyword   string    `json:"keyword"`
	PrizeMsg  string    `json:"prizeMsg"`
	MinToken  int64     `json:"minToken"`
	MaxToken  int64     `json:"maxToken"`
	UpdatedAt time.Time `json:"updatedAt"`
}

type EventClaim struct {
	ID         string      `json:"id"`
	UserID     string      `json:"userId"`
	UserName   string      `json:"userName"`
	Keyword    string      `json:"keyword"`
	Amount     int64       `json:"amount"`
	Status     ClaimStatus `json:"status"`
	ClaimedAt  time.Time   `json:"claimedAt"`
	ApprovedAt *time.Time  `json:"approvedAt,omitempty"`
	RejectedAt *time.Time  `json:"rejectedAt,omitempty"`
}

type GuestbookEntry struct {
	ID           string    `json:"id"`
	ToUser       string    `json:"to_user"`
	Name         string    `json:"name"`
	PasswordHash string    `json:"-"`
	Content      string    `json:"content"`
	CreatedAt    time.Time `json:"createdAt"`
}
