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
	"golang.org/x/sync/errgroup"

	"studyvault/internal/util"
	"studyvault/pkg/domain"
)

// ExamFile is one uploaded exam document (syllabus or past papers).
type ExamFile struct {
	Filename string
	File     io.Reader
	Size     int64
	MimeType string
}

// UploadExamFiles stores the syllabus and past-papers documents for the
// user and records the input pair. The two uploads run concurrently;
// if either fails nothing is recorded.
func (a *App) UploadExamFiles(ctx context.Context, user domain.User, syllabus, pastPapers ExamFile) (domain.ExamInput, error) {
	if syllabus.File == nil || pastPapers.File == nil {
		return domain.ExamInput{}, errors.New("both syllabus and past papers are required")
	}
	syllabusKey := user.ID + "/syllabus/" + uuid.NewString() + strings.ToLower(filepath.Ext(syllabus.Filename))
	papersKey := user.ID + "/pastpapers/" + uuid.NewString() + strings.ToLower(filepath.Ext(pastPapers.Filename))

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := a.objects.Put(gctx, a.buckets.Exam, syllabusKey, syllabus.File, syllabus.Size, syllabus.MimeType); err != nil {
			return fmt.Errorf("upload syllabus: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		if err := a.objects.Put(gctx, a.buckets.Exam, papersKey, pastPapers.File, pastPapers.Size, pastPapers.MimeType); err != nil {
			return fmt.Errorf("upload past papers: %w", err)
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return domain.ExamInput{}, err
	}

	input := domain.ExamInput{
		ID:            util.NewID(),
		UserID:        user.ID,
		SyllabusKey:   syllabusKey,
		PastPapersKey: papersKey,
		CreatedAt:     time.Now().UTC(),
	}
	if err := a.store.SaveExamInput(input); err != nil {
		return domain.ExamInput{}, fmt.Errorf("save exam input: %w", err)
	}
	return input, nil
}

// PredictTopics downloads the stored exam documents, extracts their
// text, and asks the model for likely topics. The result is persisted
// so re-reads do not re-run the model.
func (a *App) PredictTopics(ctx context.Context, user domain.User, inputID string) (domain.ExamPrediction, error) {
	if a.predictor == nil {
		return domain.ExamPrediction{}, errors.New("topic prediction is not configured")
	}
	input, ok, err := a.store.GetExamInput(inputID)
	if err != nil {
		return domain.ExamPrediction{}, fmt.Errorf("get exam input: %w", err)
	}
	if !ok {
		return domain.ExamPrediction{}, ErrExamInputNotFound
	}
	if input.UserID != user.ID {
		return domain.ExamPrediction{}, ErrForbidden
	}

	syllabusText, err := a.examText(ctx, input.SyllabusKey)
	if err != nil {
		return domain.ExamPrediction{}, fmt.Errorf("read syllabus: %w", err)
	}
	papersText, err := a.examText(ctx, input.PastPapersKey)
	if err != nil {
		return domain.ExamPrediction{}, fmt.Errorf("read past papers: %w", err)
	}

	topics, err := a.predictor.Predict(ctx, syllabusText, papersText)
	if err != nil {
		return domain.ExamPrediction{}, fmt.Errorf("predict topics: %w", err)
	}

	prediction := domain.ExamPrediction{
		ID:        util.NewID(),
		UserID:    user.ID,
		InputID:   input.ID,
		Topics:    topics,
		CreatedAt: time.Now().UTC(),
	}
	if err := a.store.SavePrediction(prediction); err != nil {
		return domain.ExamPrediction{}, fmt.Errorf("save prediction: %w", err)
	}
	return prediction, nil
}

// ListPredictions returns the user's past predictions, newest first.
func (a *App) ListPredictions(user domain.User) ([]domain.ExamPrediction, error) {
	return a.store.ListPredictionsByUser(user.ID)
}

func (a *App) examText(ctx context.Context, key string) (string, error) {
	rc, err := a.objects.Get(ctx, a.buckets.Exam, key)
	if err != nil {
		return "", err
	}
	defer rc.Close()
	return extractDocumentText(rc, key)
}
