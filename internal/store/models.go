package store

import (
	"time"

	"gorm.io/datatypes"
)

// GORM models used for persistence.
type UserModel struct {
	ID           string `gorm:"primaryKey"`
	ExternalID   string `gorm:"uniqueIndex;not null"`
	Email        string `gorm:"not null"`
	Name         string
	College      string
	Course       string
	Role         string    `gorm:"not null"`
	TokenBalance int64     `gorm:"not null;default:0"`
	CreatedAt    time.Time `gorm:"not null"`
	UpdatedAt    time.Time `gorm:"not null"`
}

type ContentModel struct {
	ID          string `gorm:"primaryKey"`
	CreatorID   string `gorm:"not null;index"`
	Title       string `gorm:"not null"`
	Subject     string `gorm:"index"`
	Topic       string `gorm:"index"`
	Description string
	ContentType string    `gorm:"not null"`
	StorageKey  string    `gorm:"not null"`
	PriceTokens int64     `gorm:"not null"`
	Rating      float64   `gorm:"not null;default:0"`
	CreatedAt   time.Time `gorm:"not null"`
}

// PurchaseModel carries the storage-level uniqueness constraint that
// closes the duplicate-unlock race: two concurrent unlocks for the same
// pair cannot both insert.
type PurchaseModel struct {
	ID          string    `gorm:"primaryKey"`
	UserID      string    `gorm:"not null;uniqueIndex:idx_purchase_user_content"`
	ContentID   string    `gorm:"not null;uniqueIndex:idx_purchase_user_content"`
	TokensSpent int64     `gorm:"not null"`
	CreatedAt   time.Time `gorm:"not null;index"`
}

type EarningModel struct {
	ID           string    `gorm:"primaryKey"`
	CreatorID    string    `gorm:"not null;index"`
	ContentID    string    `gorm:"not null"`
	TokensEarned int64     `gorm:"not null"`
	CreatedAt    time.Time `gorm:"not null;index"`
}

type ExamInputModel struct {
	ID            string    `gorm:"primaryKey"`
	UserID        string    `gorm:"not null;index"`
	SyllabusKey   string    `gorm:"not null"`
	PastPapersKey string    `gorm:"not null"`
	CreatedAt     time.Time `gorm:"not null"`
}

type ExamPredictionModel struct {
	ID        string         `gorm:"primaryKey"`
	UserID    string         `gorm:"not null;index"`
	InputID   string         `gorm:"not null"`
	Topics    datatypes.JSON `gorm:"type:jsonb"`
	CreatedAt time.Time      `gorm:"not null"`
}
