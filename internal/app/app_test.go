package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"studyvault/internal/ledger"
	"studyvault/internal/store"
	"studyvault/internal/usertoken"
	"studyvault/pkg/ai"
	"studyvault/pkg/domain"
	"studyvault/pkg/storage"
)

type memObjects struct {
	mu   sync.Mutex
	data map[string][]byte
}

func newMemObjects() *memObjects {
	return &memObjects{data: make(map[string][]byte)}
}

func (m *memObjects) objectKey(bucket, key string) string { return bucket + "/" + key }

func (m *memObjects) Put(_ context.Context, bucket, key string, r io.Reader, _ int64, _ string) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[m.objectKey(bucket, key)] = data
	return nil
}

func (m *memObjects) Get(_ context.Context, bucket, key string) (io.ReadCloser, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.data[m.objectKey(bucket, key)]
	if !ok {
		return nil, fmt.Errorf("object %s not found", key)
	}
	return io.NopCloser(strings.NewReader(string(data))), nil
}

func (m *memObjects) PresignGet(_ context.Context, bucket, key string, _ time.Duration) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.data[m.objectKey(bucket, key)]; !ok {
		return "", fmt.Errorf("object %s not found", key)
	}
	return "https://files.test/" + bucket + "/" + key, nil
}

func (m *memObjects) Delete(_ context.Context, bucket, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, m.objectKey(bucket, key))
	return nil
}

type fakeGenerator struct {
	response string
	err      error
}

func (f *fakeGenerator) GenerateText(_ context.Context, _, _ string) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	return f.response, nil
}

var testBuckets = storage.Buckets{Videos: "videos", Notes: "notes", Exam: "exam"}

func newTestApp(t *testing.T, gen ai.TextGenerator) (*App, store.Store, *memObjects) {
	t.Helper()
	st := store.NewMemoryStore()
	objects := newMemObjects()
	ledgerSvc, err := ledger.New(ledger.Config{Store: st, Grants: nil})
	if err != nil {
		t.Fatalf("ledger.New: %v", err)
	}
	var predictor *ai.TopicPredictor
	if gen != nil {
		predictor = ai.NewTopicPredictor(gen)
	}
	app, err := New(Config{
		Store:     st,
		Objects:   objects,
		Buckets:   testBuckets,
		Ledger:    ledgerSvc,
		Predictor: predictor,
	})
	if err != nil {
		t.Fatalf("app.New: %v", err)
	}
	return app, st, objects
}

func TestEnsureUserCreatesWithDefaultBalance(t *testing.T) {
	app, _, _ := newTestApp(t, nil)

	user, err := app.EnsureUser(usertoken.Identity{Subject: "ext-1", Email: "a@uni.test"})
	if err != nil {
		t.Fatalf("EnsureUser: %v", err)
	}
	if user.TokenBalance != domain.DefaultTokenBalance {
		t.Fatalf("balance = %d, want %d", user.TokenBalance, domain.DefaultTokenBalance)
	}
	if user.Role != domain.RoleStudent {
		t.Fatalf("role = %q, want student", user.Role)
	}

	again, err := app.EnsureUser(usertoken.Identity{Subject: "ext-1", Email: "a@uni.test"})
	if err != nil {
		t.Fatalf("EnsureUser again: %v", err)
	}
	if again.ID != user.ID {
		t.Fatalf("second call created a new user: %s vs %s", again.ID, user.ID)
	}
}

func TestEnsureUserHonorsCreatorRoleHint(t *testing.T) {
	app, _, _ := newTestApp(t, nil)

	user, err := app.EnsureUser(usertoken.Identity{Subject: "ext-2", Role: "creator"})
	if err != nil {
		t.Fatalf("EnsureUser: %v", err)
	}
	if user.Role != domain.RoleCreator {
		t.Fatalf("role = %q, want creator", user.Role)
	}

	// Admin cannot be claimed through the identity provider.
	other, err := app.EnsureUser(usertoken.Identity{Subject: "ext-3", Role: "admin"})
	if err != nil {
		t.Fatalf("EnsureUser: %v", err)
	}
	if other.Role != domain.RoleStudent {
		t.Fatalf("role = %q, want student", other.Role)
	}
}

func TestOnboard(t *testing.T) {
	app, st, _ := newTestApp(t, nil)
	user, err := app.EnsureUser(usertoken.Identity{Subject: "ext-1"})
	if err != nil {
		t.Fatalf("EnsureUser: %v", err)
	}

	updated, err := app.Onboard(user, OnboardInput{Name: "Asha", College: "IIT", Course: "CS", Role: "creator"})
	if err != nil {
		t.Fatalf("Onboard: %v", err)
	}
	if updated.Name != "Asha" || updated.College != "IIT" || updated.Course != "CS" {
		t.Fatalf("profile not applied: %+v", updated)
	}
	if updated.Role != domain.RoleCreator {
		t.Fatalf("role = %q, want creator", updated.Role)
	}

	stored, ok, err := st.GetUserByID(user.ID)
	if err != nil || !ok {
		t.Fatalf("GetUserByID: ok=%v err=%v", ok, err)
	}
	if stored.Name != "Asha" {
		t.Fatalf("stored name = %q", stored.Name)
	}
	if stored.TokenBalance != domain.DefaultTokenBalance {
		t.Fatalf("onboarding changed the balance: %d", stored.TokenBalance)
	}
}

func TestOnboardRoleOnly(t *testing.T) {
	app, _, _ := newTestApp(t, nil)
	user, _ := app.EnsureUser(usertoken.Identity{Subject: "ext-1"})

	updated, err := app.Onboard(user, OnboardInput{Role: "creator"})
	if err != nil {
		t.Fatalf("Onboard role-only: %v", err)
	}
	if updated.Role != domain.RoleCreator {
		t.Fatalf("role = %q, want creator", updated.Role)
	}
}

func TestOnboardRejectsBadInput(t *testing.T) {
	app, _, _ := newTestApp(t, nil)
	user, _ := app.EnsureUser(usertoken.Identity{Subject: "ext-1"})

	if _, err := app.Onboard(user, OnboardInput{Role: "admin"}); err == nil {
		t.Fatal("expected error for self-assigned admin role")
	}
	if _, err := app.Onboard(user, OnboardInput{Name: "Asha"}); err == nil {
		t.Fatal("expected error for partial profile")
	}
	if _, err := app.Onboard(user, OnboardInput{}); err == nil {
		t.Fatal("expected error for empty onboarding")
	}
}

func TestUploadContent(t *testing.T) {
	app, st, objects := newTestApp(t, nil)
	creator, _ := app.EnsureUser(usertoken.Identity{Subject: "ext-c", Role: "creator"})

	content, err := app.UploadContent(context.Background(), creator, UploadContentInput{
		Title:       "Linear Algebra Crash Course",
		Subject:     "Mathematics",
		Topic:       "Linear Algebra",
		ContentType: "video",
		PriceTokens: 15,
		Filename:    "lecture.mp4",
		File:        strings.NewReader("video-bytes"),
		Size:        int64(len("video-bytes")),
		MimeType:    "video/mp4",
	})
	if err != nil {
		t.Fatalf("UploadContent: %v", err)
	}
	if content.CreatorID != creator.ID {
		t.Fatalf("creatorID = %q", content.CreatorID)
	}
	if !strings.HasPrefix(content.StorageKey, creator.ID+"/") || !strings.HasSuffix(content.StorageKey, ".mp4") {
		t.Fatalf("unexpected storage key %q", content.StorageKey)
	}
	if _, err := objects.Get(context.Background(), testBuckets.Videos, content.StorageKey); err != nil {
		t.Fatalf("uploaded object missing from videos bucket: %v", err)
	}
	stored, ok, err := st.GetContent(content.ID)
	if err != nil || !ok {
		t.Fatalf("GetContent: ok=%v err=%v", ok, err)
	}
	if stored.PriceTokens != 15 {
		t.Fatalf("price = %d", stored.PriceTokens)
	}
}

func TestUploadContentRejectsBadInput(t *testing.T) {
	app, _, _ := newTestApp(t, nil)
	creator, _ := app.EnsureUser(usertoken.Identity{Subject: "ext-c", Role: "creator"})

	base := UploadContentInput{
		Title: "T", Subject: "S", Topic: "X",
		ContentType: "pdf", PriceTokens: 5,
		Filename: "f.pdf", File: strings.NewReader("x"), Size: 1,
	}

	bad := base
	bad.ContentType = "podcast"
	if _, err := app.UploadContent(context.Background(), creator, bad); err == nil {
		t.Fatal("expected error for invalid content type")
	}

	bad = base
	bad.PriceTokens = 0
	if _, err := app.UploadContent(context.Background(), creator, bad); err == nil {
		t.Fatal("expected error for non-positive price")
	}

	bad = base
	bad.Title = ""
	if _, err := app.UploadContent(context.Background(), creator, bad); err == nil {
		t.Fatal("expected error for missing title")
	}
}

func TestGetContentDetail(t *testing.T) {
	app, _, _ := newTestApp(t, nil)
	creator, _ := app.EnsureUser(usertoken.Identity{Subject: "ext-c", Role: "creator"})
	student, _ := app.EnsureUser(usertoken.Identity{Subject: "ext-s"})

	content, err := app.UploadContent(context.Background(), creator, UploadContentInput{
		Title: "Notes", Subject: "Physics", Topic: "Optics",
		ContentType: "notes", PriceTokens: 15,
		Filename: "notes.pdf", File: strings.NewReader("pdf"), Size: 3,
	})
	if err != nil {
		t.Fatalf("UploadContent: %v", err)
	}

	locked, err := app.GetContentDetail(context.Background(), student, content.ID)
	if err != nil {
		t.Fatalf("GetContentDetail: %v", err)
	}
	if locked.HasUnlocked || locked.AccessURL != "" {
		t.Fatalf("locked view leaked access: %+v", locked)
	}

	if _, err := app.ledger.Unlock(context.Background(), student.ID, content.ID); err != nil {
		t.Fatalf("Unlock: %v", err)
	}

	unlocked, err := app.GetContentDetail(context.Background(), student, content.ID)
	if err != nil {
		t.Fatalf("GetContentDetail after unlock: %v", err)
	}
	if !unlocked.HasUnlocked {
		t.Fatal("expected HasUnlocked after purchase")
	}
	if !strings.Contains(unlocked.AccessURL, content.StorageKey) {
		t.Fatalf("access URL %q does not reference the object", unlocked.AccessURL)
	}

	// Creators see their own content as unlocked without a purchase.
	own, err := app.GetContentDetail(context.Background(), creator, content.ID)
	if err != nil {
		t.Fatalf("GetContentDetail as creator: %v", err)
	}
	if !own.HasUnlocked || own.AccessURL == "" {
		t.Fatalf("creator view missing access: %+v", own)
	}

	if _, err := app.GetContentDetail(context.Background(), student, "missing"); !errors.Is(err, ErrContentNotFound) {
		t.Fatalf("err = %v, want ErrContentNotFound", err)
	}
}

func TestRecommendedContentDeduplicates(t *testing.T) {
	app, _, _ := newTestApp(t, nil)
	creator, _ := app.EnsureUser(usertoken.Identity{Subject: "ext-c", Role: "creator"})

	upload := func(title, topic string) {
		t.Helper()
		_, err := app.UploadContent(context.Background(), creator, UploadContentInput{
			Title: title, Subject: "CS", Topic: topic,
			ContentType: "pdf", PriceTokens: 5,
			Filename: "f.pdf", File: strings.NewReader("x"), Size: 1,
		})
		if err != nil {
			t.Fatalf("UploadContent: %v", err)
		}
	}
	upload("Graphs I", "Graphs")
	upload("Graphs II", "Graphs")
	upload("DP", "Dynamic Programming")

	res, err := app.RecommendedContent([]string{"Graphs", "Graphs", "", "Dynamic Programming"})
	if err != nil {
		t.Fatalf("RecommendedContent: %v", err)
	}
	if len(res) != 3 {
		t.Fatalf("got %d results, want 3", len(res))
	}
	seen := make(map[string]bool)
	for _, c := range res {
		if seen[c.ID] {
			t.Fatalf("duplicate content %s", c.ID)
		}
		seen[c.ID] = true
	}
}

func TestUploadExamFiles(t *testing.T) {
	app, st, objects := newTestApp(t, nil)
	student, _ := app.EnsureUser(usertoken.Identity{Subject: "ext-s"})

	input, err := app.UploadExamFiles(context.Background(), student,
		ExamFile{Filename: "syllabus.txt", File: strings.NewReader("Unit 1: Trees"), Size: 13},
		ExamFile{Filename: "papers.txt", File: strings.NewReader("Q1 on trees"), Size: 11},
	)
	if err != nil {
		t.Fatalf("UploadExamFiles: %v", err)
	}
	if input.UserID != student.ID {
		t.Fatalf("userID = %q", input.UserID)
	}
	for _, key := range []string{input.SyllabusKey, input.PastPapersKey} {
		if _, err := objects.Get(context.Background(), testBuckets.Exam, key); err != nil {
			t.Fatalf("exam object %q missing: %v", key, err)
		}
	}
	stored, ok, err := st.GetExamInput(input.ID)
	if err != nil || !ok {
		t.Fatalf("GetExamInput: ok=%v err=%v", ok, err)
	}
	if stored.SyllabusKey != input.SyllabusKey {
		t.Fatalf("stored syllabus key mismatch")
	}
}

func TestPredictTopics(t *testing.T) {
	gen := &fakeGenerator{response: `[{"topic": "Binary Trees", "confidence": 90, "reasoning": "Appears in every paper"}]`}
	app, st, _ := newTestApp(t, gen)
	student, _ := app.EnsureUser(usertoken.Identity{Subject: "ext-s"})

	input, err := app.UploadExamFiles(context.Background(), student,
		ExamFile{Filename: "syllabus.txt", File: strings.NewReader("Unit 1: Trees"), Size: 13},
		ExamFile{Filename: "papers.txt", File: strings.NewReader("Q1 on trees"), Size: 11},
	)
	if err != nil {
		t.Fatalf("UploadExamFiles: %v", err)
	}

	prediction, err := app.PredictTopics(context.Background(), student, input.ID)
	if err != nil {
		t.Fatalf("PredictTopics: %v", err)
	}
	if len(prediction.Topics) != 1 || prediction.Topics[0].Topic != "Binary Trees" {
		t.Fatalf("unexpected topics %+v", prediction.Topics)
	}
	if prediction.Topics[0].Confidence != 90 {
		t.Fatalf("confidence = %d", prediction.Topics[0].Confidence)
	}

	list, err := st.ListPredictionsByUser(student.ID)
	if err != nil {
		t.Fatalf("ListPredictionsByUser: %v", err)
	}
	if len(list) != 1 {
		t.Fatalf("got %d stored predictions, want 1", len(list))
	}
}

func TestPredictTopicsAccessControl(t *testing.T) {
	gen := &fakeGenerator{response: `[]`}
	app, _, _ := newTestApp(t, gen)
	owner, _ := app.EnsureUser(usertoken.Identity{Subject: "ext-a"})
	other, _ := app.EnsureUser(usertoken.Identity{Subject: "ext-b"})

	input, err := app.UploadExamFiles(context.Background(), owner,
		ExamFile{Filename: "s.txt", File: strings.NewReader("s"), Size: 1},
		ExamFile{Filename: "p.txt", File: strings.NewReader("p"), Size: 1},
	)
	if err != nil {
		t.Fatalf("UploadExamFiles: %v", err)
	}

	if _, err := app.PredictTopics(context.Background(), other, input.ID); !errors.Is(err, ErrForbidden) {
		t.Fatalf("err = %v, want ErrForbidden", err)
	}
	if _, err := app.PredictTopics(context.Background(), owner, "missing"); !errors.Is(err, ErrExamInputNotFound) {
		t.Fatalf("err = %v, want ErrExamInputNotFound", err)
	}
}
