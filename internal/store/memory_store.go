package store

import (
	"sync"

	"studyvault/pkg/domain"
)

// MemoryStore keeps the ledger in-process. A single mutex covers every
// operation, which gives ApplyUnlock and ApplySpend the same atomicity
// contract as the Postgres transactions in GormStore. Used by tests and
// local development.
type MemoryStore struct {
	mu          sync.RWMutex
	users       map[string]domain.User
	byExternal  map[string]string // external subject -> user ID
	content     map[string]domain.Content
	contentIDs  []string
	purchases   map[string]domain.Purchase // key: purchaseKey(user, content)
	earnings    map[string][]domain.Earning
	examInputs  map[string]domain.ExamInput
	predictions map[string][]domain.ExamPrediction
}

// NewMemoryStore initializes an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		users:       make(map[string]domain.User),
		byExternal:  make(map[string]string),
		content:     make(map[string]domain.Content),
		purchases:   make(map[string]domain.Purchase),
		earnings:    make(map[string][]domain.Earning),
		examInputs:  make(map[string]domain.ExamInput),
		predictions: make(map[string][]domain.ExamPrediction),
	}
}

func purchaseKey(userID, contentID string) string {
	return userID + "/" + contentID
}

// SaveUser stores or replaces a user record.
func (m *MemoryStore) SaveUser(u domain.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if existing, ok := m.users[u.ID]; ok {
		// Balances change only through the ledger operations.
		u.TokenBalance = existing.TokenBalance
	}
	m.users[u.ID] = u
	if u.ExternalID != "" {
		m.byExternal[u.ExternalID] = u.ID
	}
	return nil
}

// GetUserByID returns a user by internal ID.
func (m *MemoryStore) GetUserByID(id string) (domain.User, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	u, ok := m.users[id]
	return u, ok, nil
}

// GetUserByExternalID returns a user by identity-provider subject.
func (m *MemoryStore) GetUserByExternalID(externalID string) (domain.User, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	id, ok := m.byExternal[externalID]
	if !ok {
		return domain.User{}, false, nil
	}
	u, ok := m.users[id]
	return u, ok, nil
}

// SaveContent stores a catalog entry and tracks insertion order.
func (m *MemoryStore) SaveContent(c domain.Content) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.content[c.ID]; !exists {
		m.contentIDs = append(m.contentIDs, c.ID)
	}
	m.content[c.ID] = c
	return nil
}

// GetContent retrieves a catalog entry.
func (m *MemoryStore) GetContent(id string) (domain.Content, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.content[id]
	return c, ok, nil
}

// ListContent returns entries matching the filter, newest first.
func (m *MemoryStore) ListContent(f ContentFilter) ([]domain.Content, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	res := make([]domain.Content, 0, len(m.contentIDs))
	for i := len(m.contentIDs) - 1; i >= 0; i-- {
		c, ok := m.content[m.contentIDs[i]]
		if !ok {
			continue
		}
		if f.Subject != "" && c.Subject != f.Subject {
			continue
		}
		if f.Topic != "" && c.Topic != f.Topic {
			continue
		}
		if f.ContentType != "" && c.ContentType != f.ContentType {
			continue
		}
		res = append(res, c)
	}
	return res, nil
}

// HasPurchase reports whether a purchase exists for the pair.
func (m *MemoryStore) HasPurchase(userID, contentID string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.purchases[purchaseKey(userID, contentID)]
	return ok, nil
}

// ListPurchasesByUser returns a buyer's purchases.
func (m *MemoryStore) ListPurchasesByUser(userID string) ([]domain.Purchase, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var res []domain.Purchase
	for _, p := range m.purchases {
		if p.UserID == userID {
			res = append(res, p)
		}
	}
	return res, nil
}

// ListEarningsByCreator returns a creator's earnings.
func (m *MemoryStore) ListEarningsByCreator(creatorID string) ([]domain.Earning, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]domain.Earning(nil), m.earnings[creatorID]...), nil
}

// ApplyUnlock applies the whole unlock effect under one lock hold:
// duplicate check, balance re-check, debit, credit, purchase, earning.
func (m *MemoryStore) ApplyUnlock(mu UnlockMutation) (UnlockReceipt, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, dup := m.purchases[purchaseKey(mu.BuyerID, mu.ContentID)]; dup {
		return UnlockReceipt{}, ErrDuplicatePurchase
	}
	buyer, ok := m.users[mu.BuyerID]
	if !ok {
		return UnlockReceipt{}, ErrUserNotFound
	}
	creator, ok := m.users[mu.CreatorID]
	if !ok {
		return UnlockReceipt{}, ErrUserNotFound
	}
	if buyer.TokenBalance < mu.Price {
		return UnlockReceipt{}, &InsufficientFundsError{Required: mu.Price, Available: buyer.TokenBalance}
	}

	buyer.TokenBalance -= mu.Price
	buyer.UpdatedAt = mu.Now
	m.users[mu.BuyerID] = buyer

	creator = m.users[mu.CreatorID]
	creator.TokenBalance += mu.Split.Creator
	creator.UpdatedAt = mu.Now
	m.users[mu.CreatorID] = creator

	m.purchases[purchaseKey(mu.BuyerID, mu.ContentID)] = domain.Purchase{
		ID:          mu.PurchaseID,
		UserID:      mu.BuyerID,
		ContentID:   mu.ContentID,
		TokensSpent: mu.Price,
		CreatedAt:   mu.Now,
	}
	m.earnings[mu.CreatorID] = append(m.earnings[mu.CreatorID], domain.Earning{
		ID:           mu.EarningID,
		CreatorID:    mu.CreatorID,
		ContentID:    mu.ContentID,
		TokensEarned: mu.Split.Creator,
		CreatedAt:    mu.Now,
	})
	return UnlockReceipt{NewBalance: m.users[mu.BuyerID].TokenBalance}, nil
}

// ApplySpend debits a balance under the same lock.
func (m *MemoryStore) ApplySpend(userID string, amount int64) (SpendReceipt, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[userID]
	if !ok {
		return SpendReceipt{}, ErrUserNotFound
	}
	if u.TokenBalance < amount {
		return SpendReceipt{}, &InsufficientFundsError{Required: amount, Available: u.TokenBalance}
	}
	prev := u.TokenBalance
	u.TokenBalance -= amount
	m.users[userID] = u
	return SpendReceipt{PreviousBalance: prev, NewBalance: u.TokenBalance}, nil
}

// SaveExamInput stores an uploaded syllabus/past-papers pair.
func (m *MemoryStore) SaveExamInput(in domain.ExamInput) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.examInputs[in.ID] = in
	return nil
}

// GetExamInput retrieves one exam input.
func (m *MemoryStore) GetExamInput(id string) (domain.ExamInput, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	in, ok := m.examInputs[id]
	return in, ok, nil
}

// SavePrediction stores a prediction.
func (m *MemoryStore) SavePrediction(p domain.ExamPrediction) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.predictions[p.UserID] = append(m.predictions[p.UserID], p)
	return nil
}

// ListPredictionsByUser returns a user's predictions, newest first.
func (m *MemoryStore) ListPredictionsByUser(userID string) ([]domain.ExamPrediction, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	stored := m.predictions[userID]
	res := make([]domain.ExamPrediction, 0, len(stored))
	for i := len(stored) - 1; i >= 0; i-- {
		res = append(res, stored[i])
	}
	return res, nil
}
