package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"studyvault/pkg/domain"
)

// GormStore implements Store using GORM + Postgres.
type GormStore struct {
	db *gorm.DB
}

// NewGormStore opens the DB and runs auto-migrations. TranslateError is
// enabled so unique-index violations surface as gorm.ErrDuplicatedKey.
func NewGormStore(dsn string) (*GormStore, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{TranslateError: true})
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if err := db.AutoMigrate(
		&UserModel{},
		&ContentModel{},
		&PurchaseModel{},
		&EarningModel{},
		&ExamInputModel{},
		&ExamPredictionModel{},
	); err != nil {
		return nil, fmt.Errorf("auto migrate: %w", err)
	}
	return &GormStore{db: db}, nil
}

// SaveUser registers or updates a user. The token balance is written
// only on insert; established balances change exclusively through
// ApplyUnlock and ApplySpend.
func (s *GormStore) SaveUser(u domain.User) error {
	model := userToModel(u)
	return s.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"email", "name", "college", "course", "role", "updated_at"}),
	}).Create(&model).Error
}

// GetUserByID returns a user by internal ID.
func (s *GormStore) GetUserByID(id string) (domain.User, bool, error) {
	var model UserModel
	if err := s.db.First(&model, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.User{}, false, nil
		}
		return domain.User{}, false, err
	}
	return userFromModel(model), true, nil
}

// GetUserByExternalID returns a user by identity-provider subject.
func (s *GormStore) GetUserByExternalID(externalID string) (domain.User, bool, error) {
	var model UserModel
	if err := s.db.First(&model, "external_id = ?", externalID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.User{}, false, nil
		}
		return domain.User{}, false, err
	}
	return userFromModel(model), true, nil
}

// SaveContent stores a new catalog entry.
func (s *GormStore) SaveContent(c domain.Content) error {
	model := contentToModel(c)
	return s.db.Create(&model).Error
}

// GetContent retrieves a catalog entry.
func (s *GormStore) GetContent(id string) (domain.Content, bool, error) {
	var model ContentModel
	if err := s.db.First(&model, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.Content{}, false, nil
		}
		return domain.Content{}, false, err
	}
	return contentFromModel(model), true, nil
}

// ListContent returns catalog entries matching the filter, newest first.
func (s *GormStore) ListContent(f ContentFilter) ([]domain.Content, error) {
	tx := s.db.Order("created_at DESC")
	if f.Subject != "" {
		tx = tx.Where("subject = ?", f.Subject)
	}
	if f.Topic != "" {
		tx = tx.Where("topic = ?", f.Topic)
	}
	if f.ContentType != "" {
		tx = tx.Where("content_type = ?", string(f.ContentType))
	}
	var models []ContentModel
	if err := tx.Find(&models).Error; err != nil {
		return nil, err
	}
	res := make([]domain.Content, 0, len(models))
	for _, m := range models {
		res = append(res, contentFromModel(m))
	}
	return res, nil
}

// HasPurchase reports whether a purchase row exists for the pair.
func (s *GormStore) HasPurchase(userID, contentID string) (bool, error) {
	var count int64
	err := s.db.Model(&PurchaseModel{}).
		Where("user_id = ? AND content_id = ?", userID, contentID).
		Count(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// ListPurchasesByUser returns a buyer's purchases, newest first.
func (s *GormStore) ListPurchasesByUser(userID string) ([]domain.Purchase, error) {
	var models []PurchaseModel
	if err := s.db.Where("user_id = ?", userID).Order("created_at DESC").Find(&models).Error; err != nil {
		return nil, err
	}
	res := make([]domain.Purchase, 0, len(models))
	for _, m := range models {
		res = append(res, purchaseFromModel(m))
	}
	return res, nil
}

// ListEarningsByCreator returns a creator's earnings, newest first.
func (s *GormStore) ListEarningsByCreator(creatorID string) ([]domain.Earning, error) {
	var models []EarningModel
	if err := s.db.Where("creator_id = ?", creatorID).Order("created_at DESC").Find(&models).Error; err != nil {
		return nil, err
	}
	res := make([]domain.Earning, 0, len(models))
	for _, m := range models {
		res = append(res, earningFromModel(m))
	}
	return res, nil
}

// ApplyUnlock commits the whole unlock effect in one transaction: both
// balance rows are locked FOR UPDATE, the buyer's balance is re-checked
// against the price, then debit, credit, purchase, and earning are
// written. Any failure rolls the unit back.
func (s *GormStore) ApplyUnlock(m UnlockMutation) (UnlockReceipt, error) {
	var receipt UnlockReceipt
	err := s.db.Transaction(func(tx *gorm.DB) error {
		// Lock in sorted ID order so crossing purchases between two
		// users cannot deadlock.
		locked := make(map[string]*UserModel, 2)
		ids := []string{m.BuyerID}
		if m.CreatorID != m.BuyerID {
			ids = append(ids, m.CreatorID)
		}
		sort.Strings(ids)
		for _, id := range ids {
			var u UserModel
			if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&u, "id = ?", id).Error; err != nil {
				if errors.Is(err, gorm.ErrRecordNotFound) {
					return ErrUserNotFound
				}
				return err
			}
			locked[id] = &u
		}

		buyer := locked[m.BuyerID]
		if buyer.TokenBalance < m.Price {
			return &InsufficientFundsError{Required: m.Price, Available: buyer.TokenBalance}
		}

		newBalance := buyer.TokenBalance - m.Price
		if err := tx.Model(&UserModel{}).Where("id = ?", m.BuyerID).
			Updates(map[string]any{"token_balance": newBalance, "updated_at": m.Now}).Error; err != nil {
			return err
		}
		creator := locked[m.CreatorID]
		if err := tx.Model(&UserModel{}).Where("id = ?", m.CreatorID).
			Updates(map[string]any{"token_balance": creator.TokenBalance + m.Split.Creator, "updated_at": m.Now}).Error; err != nil {
			return err
		}

		purchase := PurchaseModel{
			ID:          m.PurchaseID,
			UserID:      m.BuyerID,
			ContentID:   m.ContentID,
			TokensSpent: m.Price,
			CreatedAt:   m.Now,
		}
		if err := tx.Create(&purchase).Error; err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return ErrDuplicatePurchase
			}
			return err
		}

		earning := EarningModel{
			ID:           m.EarningID,
			CreatorID:    m.CreatorID,
			ContentID:    m.ContentID,
			TokensEarned: m.Split.Creator,
			CreatedAt:    m.Now,
		}
		if err := tx.Create(&earning).Error; err != nil {
			return err
		}

		receipt = UnlockReceipt{NewBalance: newBalance}
		return nil
	})
	if err != nil {
		return UnlockReceipt{}, err
	}
	return receipt, nil
}

// ApplySpend debits a balance atomically with a commit-time re-check.
func (s *GormStore) ApplySpend(userID string, amount int64) (SpendReceipt, error) {
	var receipt SpendReceipt
	err := s.db.Transaction(func(tx *gorm.DB) error {
		var u UserModel
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&u, "id = ?", userID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrUserNotFound
			}
			return err
		}
		if u.TokenBalance < amount {
			return &InsufficientFundsError{Required: amount, Available: u.TokenBalance}
		}
		newBalance := u.TokenBalance - amount
		if err := tx.Model(&UserModel{}).Where("id = ?", userID).
			Update("token_balance", newBalance).Error; err != nil {
			return err
		}
		receipt = SpendReceipt{PreviousBalance: u.TokenBalance, NewBalance: newBalance}
		return nil
	})
	if err != nil {
		return SpendReceipt{}, err
	}
	return receipt, nil
}

// SaveExamInput stores an uploaded syllabus/past-papers pair.
func (s *GormStore) SaveExamInput(in domain.ExamInput) error {
	model := ExamInputModel{
		ID:            in.ID,
		UserID:        in.UserID,
		SyllabusKey:   in.SyllabusKey,
		PastPapersKey: in.PastPapersKey,
		CreatedAt:     in.CreatedAt,
	}
	return s.db.Create(&model).Error
}

// GetExamInput retrieves one exam input.
func (s *GormStore) GetExamInput(id string) (domain.ExamInput, bool, error) {
	var model ExamInputModel
	if err := s.db.First(&model, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.ExamInput{}, false, nil
		}
		return domain.ExamInput{}, false, err
	}
	return examInputFromModel(model), true, nil
}

// SavePrediction stores a prediction with its topics as jsonb.
func (s *GormStore) SavePrediction(p domain.ExamPrediction) error {
	topics, err := json.Marshal(p.Topics)
	if err != nil {
		return fmt.Errorf("encode topics: %w", err)
	}
	model := ExamPredictionModel{
		ID:        p.ID,
		UserID:    p.UserID,
		InputID:   p.InputID,
		Topics:    topics,
		CreatedAt: p.CreatedAt,
	}
	return s.db.Create(&model).Error
}

// ListPredictionsByUser returns a user's predictions, newest first.
func (s *GormStore) ListPredictionsByUser(userID string) ([]domain.ExamPrediction, error) {
	var models []ExamPredictionModel
	if err := s.db.Where("user_id = ?", userID).Order("created_at DESC").Find(&models).Error; err != nil {
		return nil, err
	}
	res := make([]domain.ExamPrediction, 0, len(models))
	for _, m := range models {
		p, err := predictionFromModel(m)
		if err != nil {
			return nil, err
		}
		res = append(res, p)
	}
	return res, nil
}

func userToModel(u domain.User) UserModel {
	return UserModel{
		ID:           u.ID,
		ExternalID:   u.ExternalID,
		Email:        u.Email,
		Name:         u.Name,
		College:      u.College,
		Course:       u.Course,
		Role:         string(u.Role),
		TokenBalance: u.TokenBalance,
		CreatedAt:    u.CreatedAt,
		UpdatedAt:    u.UpdatedAt,
	}
}

func userFromModel(m UserModel) domain.User {
	return domain.User{
		ID:           m.ID,
		ExternalID:   m.ExternalID,
		Email:        m.Email,
		Name:         m.Name,
		College:      m.College,
		Course:       m.Course,
		Role:         domain.UserRole(m.Role),
		TokenBalance: m.TokenBalance,
		CreatedAt:    m.CreatedAt,
		UpdatedAt:    m.UpdatedAt,
	}
}

func contentToModel(c domain.Content) ContentModel {
	return ContentModel{
		ID:          c.ID,
		CreatorID:   c.CreatorID,
		Title:       c.Title,
		Subject:     c.Subject,
		Topic:       c.Topic,
		Description: c.Description,
		ContentType: string(c.ContentType),
		StorageKey:  c.StorageKey,
		PriceTokens: c.PriceTokens,
		Rating:      c.Rating,
		CreatedAt:   c.CreatedAt,
	}
}

func contentFromModel(m ContentModel) domain.Content {
	return domain.Content{
		ID:          m.ID,
		CreatorID:   m.CreatorID,
		Title:       m.Title,
		Subject:     m.Subject,
		Topic:       m.Topic,
		Description: m.Description,
		ContentType: domain.ContentType(m.ContentType),
		StorageKey:  m.StorageKey,
		PriceTokens: m.PriceTokens,
		Rating:      m.Rating,
		CreatedAt:   m.CreatedAt,
	}
}

func purchaseFromModel(m PurchaseModel) domain.Purchase {
	return domain.Purchase{
		ID:          m.ID,
		UserID:      m.UserID,
		ContentID:   m.ContentID,
		TokensSpent: m.TokensSpent,
		CreatedAt:   m.CreatedAt,
	}
}

func earningFromModel(m EarningModel) domain.Earning {
	return domain.Earning{
		ID:           m.ID,
		CreatorID:    m.CreatorID,
		ContentID:    m.ContentID,
		TokensEarned: m.TokensEarned,
		CreatedAt:    m.CreatedAt,
	}
}

func examInputFromModel(m ExamInputModel) domain.ExamInput {
	return domain.ExamInput{
		ID:            m.ID,
		UserID:        m.UserID,
		SyllabusKey:   m.SyllabusKey,
		PastPapersKey: m.PastPapersKey,
		CreatedAt:     m.CreatedAt,
	}
}

func predictionFromModel(m ExamPredictionModel) (domain.ExamPrediction, error) {
	p := domain.ExamPrediction{
		ID:        m.ID,
		UserID:    m.UserID,
		InputID:   m.InputID,
		CreatedAt: m.CreatedAt,
	}
	if len(m.Topics) > 0 {
		if err := json.Unmarshal(m.Topics, &p.Topics); err != nil {
			return domain.ExamPrediction{}, fmt.Errorf("decode topics: %w", err)
		}
	}
	return p, nil
}
