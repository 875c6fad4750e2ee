package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"studyvault/internal/ledger"
	"studyvault/internal/store"
	"studyvault/internal/usertoken"
	"studyvault/internal/util"
	"studyvault/pkg/ai"
	"studyvault/pkg/domain"
	"studyvault/pkg/storage"
)

const defaultAccessTTL = 2 * time.Hour

// Config wires the application dependencies.
type Config struct {
	Store     store.Store
	Objects   storage.ObjectStore
	Buckets   storage.Buckets
	Ledger    *ledger.Service
	Predictor *ai.TopicPredictor
	AccessTTL time.Duration
}

// App carries the non-ledger operations: catalog, profiles, exam mode.
// Everything that moves tokens lives in the ledger service.
type App struct {
	store     store.Store
	objects   storage.ObjectStore
	buckets   storage.Buckets
	ledger    *ledger.Service
	predictor *ai.TopicPredictor
	accessTTL time.Duration
}

// New constructs the application core.
func New(cfg Config) (*App, error) {
	if cfg.Store == nil {
		return nil, errors.New("app: store required")
	}
	if cfg.Ledger == nil {
		return nil, errors.New("app: ledger service required")
	}
	ttl := cfg.AccessTTL
	if ttl <= 0 {
		ttl = defaultAccessTTL
	}
	return &App{
		store:     cfg.Store,
		objects:   cfg.Objects,
		buckets:   cfg.Buckets,
		ledger:    cfg.Ledger,
		predictor: cfg.Predictor,
		accessTTL: ttl,
	}, nil
}

// EnsureUser resolves the verified identity to a local user, creating
// one with the default token grant on first sight. Role hints from the
// provider are honored for student/creator; admin is assigned manually.
func (a *App) EnsureUser(id usertoken.Identity) (domain.User, error) {
	user, ok, err := a.store.GetUserByExternalID(id.Subject)
	if err != nil {
		return domain.User{}, fmt.Errorf("lookup user: %w", err)
	}
	if ok {
		return user, nil
	}
	role := domain.RoleStudent
	if id.Role == string(domain.RoleCreator) {
		role = domain.RoleCreator
	}
	now := time.Now().UTC()
	user = domain.User{
		ID:           util.NewID(),
		ExternalID:   id.Subject,
		Email:        id.Email,
		Role:         role,
		TokenBalance: domain.DefaultTokenBalance,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := a.store.SaveUser(user); err != nil {
		return domain.User{}, fmt.Errorf("save user: %w", err)
	}
	return user, nil
}

// OnboardInput carries profile fields. A role-only update is allowed
// for initial role selection; a full onboarding needs all three
// profile fields.
type OnboardInput struct {
	Name    string
	College string
	Course  string
	Role    string
}

// Onboard updates the user's profile and/or role.
func (a *App) Onboard(user domain.User, in OnboardInput) (domain.User, error) {
	role := user.Role
	if in.Role != "" {
		parsed, ok := parseRole(in.Role)
		if !ok {
			return domain.User{}, fmt.Errorf("invalid role %q", in.Role)
		}
		role = parsed
	}
	if in.Name == "" && in.College == "" && in.Course == "" {
		if in.Role == "" {
			return domain.User{}, errors.New("nothing to update")
		}
		user.Role = role
	} else {
		if in.Name == "" || in.College == "" || in.Course == "" {
			return domain.User{}, errors.New("name, college, and course are required for full onboarding")
		}
		user.Name = in.Name
		user.College = in.College
		user.Course = in.Course
		user.Role = role
	}
	user.UpdatedAt = time.Now().UTC()
	if err := a.store.SaveUser(user); err != nil {
		return domain.User{}, fmt.Errorf("save user: %w", err)
	}
	return user, nil
}

func parseRole(role string) (domain.UserRole, bool) {
	switch strings.ToLower(strings.TrimSpace(role)) {
	case string(domain.RoleStudent):
		return domain.RoleStudent, true
	case string(domain.RoleCreator):
		return domain.RoleCreator, true
	default:
		// Admin is never self-assigned through onboarding.
		return "", false
	}
}

// UploadContentInput carries a creator upload.
type UploadContentInput struct {
	Title       string
	Subject     string
	Topic       string
	Description string
	ContentType string
	PriceTokens int64
	Filename    string
	File        io.Reader
	Size        int64
	MimeType    string
}

// UploadContent stores the file in the bucket routed by content type
// and creates the catalog entry. Price and storage key are immutable
// after this point.
func (a *App) UploadContent(ctx context.Context, creator domain.User, in UploadContentInput) (domain.Content, error) {
	if in.Title == "" || in.Subject == "" || in.Topic == "" {
		return domain.Content{}, errors.New("title, subject, and topic are required")
	}
	contentType, ok := parseContentType(in.ContentType)
	if !ok {
		return domain.Content{}, fmt.Errorf("invalid content type %q", in.ContentType)
	}
	if in.PriceTokens <= 0 {
		return domain.Content{}, errors.New("priceTokens must be positive")
	}
	if in.File == nil || in.Filename == "" {
		return domain.Content{}, errors.New("file is required")
	}

	key := creator.ID + "/" + uuid.NewString() + strings.ToLower(filepath.Ext(in.Filename))
	bucket := a.buckets.ForContentType(contentType)
	if err := a.objects.Put(ctx, bucket, key, in.File, in.Size, in.MimeType); err != nil {
		return domain.Content{}, fmt.Errorf("upload file: %w", err)
	}

	content := domain.Content{
		ID:          util.NewID(),
		CreatorID:   creator.ID,
		Title:       in.Title,
		Subject:     in.Subject,
		Topic:       in.Topic,
		Description: in.Description,
		ContentType: contentType,
		StorageKey:  key,
		PriceTokens: in.PriceTokens,
		CreatedAt:   time.Now().UTC(),
	}
	if err := a.store.SaveContent(content); err != nil {
		return domain.Content{}, fmt.Errorf("save content: %w", err)
	}
	return content, nil
}

func parseContentType(t string) (domain.ContentType, bool) {
	switch strings.ToLower(strings.TrimSpace(t)) {
	case string(domain.TypeVideo):
		return domain.TypeVideo, true
	case string(domain.TypePDF):
		return domain.TypePDF, true
	case string(domain.TypeNotes):
		return domain.TypeNotes, true
	default:
		return "", false
	}
}

// ContentDetail is the catalog view for one user: the entry plus their
// entitlement, with an access URL only when entitled.
type ContentDetail struct {
	domain.Content
	HasUnlocked bool   `json:"hasUnlocked"`
	AccessURL   string `json:"accessUrl,omitempty"`
}

// GetContentDetail returns the entry with entitlement resolved. The
// access URL here is how a buyer re-derives a grant that failed right
// after an unlock committed.
func (a *App) GetContentDetail(ctx context.Context, user domain.User, contentID string) (ContentDetail, error) {
	content, ok, err := a.store.GetContent(contentID)
	if err != nil {
		return ContentDetail{}, fmt.Errorf("get content: %w", err)
	}
	if !ok {
		return ContentDetail{}, ErrContentNotFound
	}
	unlocked, err := a.ledger.HasUnlocked(user.ID, contentID)
	if err != nil {
		return ContentDetail{}, err
	}
	detail := ContentDetail{Content: content, HasUnlocked: unlocked}
	if unlocked && a.objects != nil {
		url, err := a.objects.PresignGet(ctx, a.buckets.ForContentType(content.ContentType), content.StorageKey, a.accessTTL)
		if err != nil {
			util.LoggerFromContext(ctx).Warn("presign content url", "content_id", contentID, "err", err)
		} else {
			detail.AccessURL = url
		}
	}
	return detail, nil
}

// Recommendations lists catalog entries matching the filters.
func (a *App) Recommendations(f store.ContentFilter) ([]domain.Content, error) {
	return a.store.ListContent(f)
}

// RecommendedContent returns de-duplicated catalog entries for a set of
// predicted topics.
func (a *App) RecommendedContent(topics []string) ([]domain.Content, error) {
	seen := make(map[string]struct{})
	var res []domain.Content
	for _, topic := range topics {
		topic = strings.TrimSpace(topic)
		if topic == "" {
			continue
		}
		matches, err := a.store.ListContent(store.ContentFilter{Topic: topic})
		if err != nil {
			return nil, fmt.Errorf("list content for topic %q: %w", topic, err)
		}
		for _, c := range matches {
			if _, dup := seen[c.ID]; dup {
				continue
			}
			seen[c.ID] = struct{}{}
			res = append(res, c)
		}
	}
	return res, nil
}
