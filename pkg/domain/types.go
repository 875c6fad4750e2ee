package domain

import "time"

type UserRole string

const (
	RoleStudent UserRole = "student"
	RoleCreator UserRole = "creator"
	RoleAdmin   UserRole = "admin"
)

type ContentType string

const (
	TypeVideo ContentType = "video"
	TypePDF   ContentType = "pdf"
	TypeNotes ContentType = "notes"
)

// DefaultTokenBalance is granted to every user on first verified sign-in.
const DefaultTokenBalance int64 = 100

type User struct {
	ID           string    `json:"id"`
	ExternalID   string    `json:"-"`
	Email        string    `json:"email"`
	Name         string    `json:"name,omitempty"`
	College      string    `json:"college,omitempty"`
	Course       string    `json:"course,omitempty"`
	Role         UserRole  `json:"role"`
	TokenBalance int64     `json:"tokenBalance"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

type Content struct {
	ID          string      `json:"id"`
	CreatorID   string      `json:"creatorId"`
	Title       string      `json:"title"`
	Subject     string      `json:"subject"`
	Topic       string      `json:"topic"`
	Description string      `json:"description,omitempty"`
	ContentType ContentType `json:"contentType"`
	StorageKey  string      `json:"-"`
	PriceTokens int64       `json:"priceTokens"`
	Rating      float64     `json:"rating"`
	CreatedAt   time.Time   `json:"createdAt"`
}

// Purchase is the sole record of an unlocked piece of content.
// At most one row exists per (UserID, ContentID) pair.
type Purchase struct {
	ID          string    `json:"id"`
	UserID      string    `json:"userId"`
	ContentID   string    `json:"contentId"`
	TokensSpent int64     `json:"tokensSpent"`
	CreatedAt   time.Time `json:"createdAt"`
}

// Earning records the creator share credited for one Purchase.
type Earning struct {
	ID           string    `json:"id"`
	CreatorID    string    `json:"creatorId"`
	ContentID    string    `json:"contentId"`
	TokensEarned int64     `json:"tokensEarned"`
	CreatedAt    time.Time `json:"createdAt"`
}

// Distribution is the three-way split of one purchase price.
// Creator + Platform + AIPool always equals the price exactly.
type Distribution struct {
	Creator  int64 `json:"creator"`
	Platform int64 `json:"platform"`
	AIPool   int64 `json:"aiPool"`
}

type UnlockResult struct {
	Content      Content      `json:"content"`
	AccessURL    string       `json:"accessUrl,omitempty"`
	NewBalance   int64        `json:"newBalance"`
	Distribution Distribution `json:"distribution"`
}

type SpendResult struct {
	PreviousBalance int64  `json:"previousBalance"`
	NewBalance      int64  `json:"newBalance"`
	AmountSpent     int64  `json:"amountSpent"`
	Reason          string `json:"reason"`
}

type TransactionKind string

const (
	TxPurchase TransactionKind = "purchase"
	TxEarning  TransactionKind = "earning"
)

// Transaction is the wallet-history projection of a Purchase or Earning.
type Transaction struct {
	ID           string          `json:"id"`
	Type         TransactionKind `json:"type"`
	Amount       int64           `json:"amount"`
	ContentID    string          `json:"contentId"`
	ContentTitle string          `json:"contentTitle,omitempty"`
	Date         time.Time       `json:"date"`
}

type ExamInput struct {
	ID            string    `json:"id"`
	UserID        string    `json:"userId"`
	SyllabusKey   string    `json:"syllabusKey"`
	PastPapersKey string    `json:"pastPapersKey"`
	CreatedAt     time.Time `json:"createdAt"`
}

type TopicPrediction struct {
	Topic      string `json:"topic"`
	Confidence int    `json:"confidence"`
	Reasoning  string `json:"reasoning"`
}

type ExamPrediction struct {
	ID        string            `json:"id"`
	UserID    string            `json:"userId"`
	InputID   string            `json:"inputId"`
	Topics    []TopicPrediction `json:"topics"`
	CreatedAt time.Time         `json:"createdAt"`
}
