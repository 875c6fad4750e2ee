package server

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"studyvault/internal/app"
	"studyvault/internal/ledger"
	"studyvault/internal/ratelimit"
	"studyvault/internal/store"
	"studyvault/internal/usertoken"
	"studyvault/internal/util"
	"studyvault/pkg/domain"
)

// Config wires required dependencies for the HTTP server.
type Config struct {
	App            *app.App
	Ledger         *ledger.Service
	TokenVerifier  *usertoken.Verifier
	UnlockLimiter  *ratelimit.FixedWindowLimiter
	MaxUploadBytes int64
}

// Server exposes the marketplace HTTP endpoints.
type Server struct {
	app            *app.App
	ledger         *ledger.Service
	tokenVerifier  *usertoken.Verifier
	unlockLimiter  *ratelimit.FixedWindowLimiter
	mux            *http.ServeMux
	maxUploadBytes int64
}

// New constructs the server with routes configured.
func New(cfg Config) (*Server, error) {
	if cfg.App == nil {
		return nil, errors.New("server: app required")
	}
	if cfg.Ledger == nil {
		return nil, errors.New("server: ledger service required")
	}
	maxUploadBytes := cfg.MaxUploadBytes
	if maxUploadBytes <= 0 {
		maxUploadBytes = 200 * 1024 * 1024
	}
	s := &Server{
		app:            cfg.App,
		ledger:         cfg.Ledger,
		tokenVerifier:  cfg.TokenVerifier,
		unlockLimiter:  cfg.UnlockLimiter,
		mux:            http.NewServeMux(),
		maxUploadBytes: maxUploadBytes,
	}
	s.routes()
	return s, nil
}

// Router returns the configured handler.
func (s *Server) Router() http.Handler {
	return util.WithRequestID(util.WithRequestLog("studyvault", util.WithSecurityHeaders(util.WithCORS(s.mux))))
}

func (s *Server) routes() {
	s.mux.HandleFunc("/healthz", s.handleHealth)

	// user
	s.mux.Handle("/api/user/profile", s.withUser(s.handleProfile))
	s.mux.Handle("/api/user/onboard", s.withUser(s.handleOnboard))

	// wallet
	s.mux.Handle("/api/wallet/balance", s.withUser(s.handleBalance))
	s.mux.Handle("/api/wallet/spend", s.withUser(s.handleSpend))
	s.mux.Handle("/api/wallet/transactions", s.withUser(s.handleTransactions))

	// content
	s.mux.Handle("/api/content/upload", s.withCreator(s.handleUploadContent))
	s.mux.Handle("/api/content/recommendations", s.withUser(s.handleRecommendations))
	s.mux.Handle("/api/content/", s.withUser(s.handleContentByID))

	// exam mode
	s.mux.Handle("/api/exam/upload", s.withUser(s.handleExamUpload))
	s.mux.Handle("/api/exam/predict", s.withUser(s.handlePredict))
	s.mux.Handle("/api/exam/predictions", s.withUser(s.handleListPredictions))
	s.mux.Handle("/api/exam/recommended-content", s.withUser(s.handleRecommendedContent))
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type userHandler func(http.ResponseWriter, *http.Request, domain.User)

func (s *Server) withUser(next userHandler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.tokenVerifier == nil {
			writeError(w, http.StatusInternalServerError, "auth not configured")
			return
		}
		token, ok := bearerToken(r)
		if !ok {
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		identity, err := s.tokenVerifier.Verify(token)
		if err != nil {
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		user, err := s.app.EnsureUser(identity)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "internal error")
			return
		}
		next(w, r, user)
	})
}

func (s *Server) withCreator(next userHandler) http.Handler {
	return s.withUser(func(w http.ResponseWriter, r *http.Request, user domain.User) {
		if user.Role != domain.RoleCreator && user.Role != domain.RoleAdmin {
			writeError(w, http.StatusForbidden, "creator role required")
			return
		}
		next(w, r, user)
	})
}

func (s *Server) handleProfile(w http.ResponseWriter, r *http.Request, user domain.User) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	writeJSON(w, http.StatusOK, user)
}

type onboardRequest struct {
	Name    string `json:"name"`
	College string `json:"college"`
	Course  string `json:"course"`
	Role    string `json:"role"`
}

func (s *Server) handleOnboard(w http.ResponseWriter, r *http.Request, user domain.User) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	var req onboardRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	updated, err := s.app.Onboard(user, app.OnboardInput{
		Name:    strings.TrimSpace(req.Name),
		College: strings.TrimSpace(req.College),
		Course:  strings.TrimSpace(req.Course),
		Role:    req.Role,
	})
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

func (s *Server) handleBalance(w http.ResponseWriter, r *http.Request, user domain.User) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	balance, err := s.ledger.Balance(user.ID)
	if err != nil {
		s.writeLedgerError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"tokenBalance": balance})
}

type spendRequest struct {
	Amount int64  `json:"amount"`
	Reason string `json:"reason"`
}

func (s *Server) handleSpend(w http.ResponseWriter, r *http.Request, user domain.User) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	if !s.allowRate(w, user.ID) {
		return
	}
	var req spendRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	result, err := s.ledger.Spend(user.ID, req.Amount, req.Reason)
	if err != nil {
		s.writeLedgerError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleTransactions(w http.ResponseWriter, r *http.Request, user domain.User) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	txs, err := s.ledger.Transactions(user)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"items": txs,
		"count": len(txs),
	})
}

func (s *Server) handleUploadContent(w http.ResponseWriter, r *http.Request, user domain.User) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	if s.maxUploadBytes > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, s.maxUploadBytes)
	}
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		writeError(w, http.StatusBadRequest, "invalid form data")
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "file is required (field: file)")
		return
	}
	defer file.Close()

	price, err := parsePrice(r.FormValue("priceTokens"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	content, err := s.app.UploadContent(r.Context(), user, app.UploadContentInput{
		Title:       strings.TrimSpace(r.FormValue("title")),
		Subject:     strings.TrimSpace(r.FormValue("subject")),
		Topic:       strings.TrimSpace(r.FormValue("topic")),
		Description: strings.TrimSpace(r.FormValue("description")),
		ContentType: r.FormValue("contentType"),
		PriceTokens: price,
		Filename:    header.Filename,
		File:        file,
		Size:        header.Size,
		MimeType:    header.Header.Get("Content-Type"),
	})
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, content)
}

func (s *Server) handleRecommendations(w http.ResponseWriter, r *http.Request, _ domain.User) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	filter := store.ContentFilter{
		Subject:     strings.TrimSpace(r.URL.Query().Get("subject")),
		Topic:       strings.TrimSpace(r.URL.Query().Get("topic")),
		ContentType: domain.ContentType(strings.TrimSpace(r.URL.Query().Get("contentType"))),
	}
	items, err := s.app.Recommendations(filter)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"items": items,
		"count": len(items),
	})
}

// /api/content/{id} or /api/content/{id}/unlock
func (s *Server) handleContentByID(w http.ResponseWriter, r *http.Request, user domain.User) {
	path := strings.TrimPrefix(r.URL.Path, "/api/content/")
	parts := strings.SplitN(path, "/", 2)
	id := parts[0]
	if id == "" {
		notFound(w, "not found")
		return
	}
	if len(parts) == 2 && parts[1] == "unlock" {
		s.handleUnlock(w, r, user, id)
		return
	}
	if len(parts) == 2 {
		notFound(w, "not found")
		return
	}
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	detail, err := s.app.GetContentDetail(r.Context(), user, id)
	if err != nil {
		if errors.Is(err, app.ErrContentNotFound) {
			notFound(w, "content not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusOK, detail)
}

func (s *Server) handleUnlock(w http.ResponseWriter, r *http.Request, user domain.User, contentID string) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	if !s.allowRate(w, user.ID) {
		return
	}
	result, err := s.ledger.Unlock(r.Context(), user.ID, contentID)
	if err != nil {
		s.writeLedgerError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleExamUpload(w http.ResponseWriter, r *http.Request, user domain.User) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	if s.maxUploadBytes > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, s.maxUploadBytes)
	}
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		writeError(w, http.StatusBadRequest, "invalid form data")
		return
	}
	syllabus, syllabusHeader, err := r.FormFile("syllabus")
	if err != nil {
		writeError(w, http.StatusBadRequest, "syllabus file is required (field: syllabus)")
		return
	}
	defer syllabus.Close()
	papers, papersHeader, err := r.FormFile("pastPapers")
	if err != nil {
		writeError(w, http.StatusBadRequest, "past papers file is required (field: pastPapers)")
		return
	}
	defer papers.Close()

	input, err := s.app.UploadExamFiles(r.Context(), user,
		app.ExamFile{
			Filename: syllabusHeader.Filename,
			File:     syllabus,
			Size:     syllabusHeader.Size,
			MimeType: syllabusHeader.Header.Get("Content-Type"),
		},
		app.ExamFile{
			Filename: papersHeader.Filename,
			File:     papers,
			Size:     papersHeader.Size,
			MimeType: papersHeader.Header.Get("Content-Type"),
		},
	)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, input)
}

type predictRequest struct {
	InputID string `json:"inputId"`
}

func (s *Server) handlePredict(w http.ResponseWriter, r *http.Request, user domain.User) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	var req predictRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if strings.TrimSpace(req.InputID) == "" {
		writeError(w, http.StatusBadRequest, "inputId is required")
		return
	}
	prediction, err := s.app.PredictTopics(r.Context(), user, req.InputID)
	if err != nil {
		switch {
		case errors.Is(err, app.ErrExamInputNotFound):
			notFound(w, "exam input not found")
		case errors.Is(err, app.ErrForbidden):
			writeError(w, http.StatusForbidden, "forbidden")
		default:
			writeError(w, http.StatusBadGateway, "topic prediction failed")
		}
		return
	}
	writeJSON(w, http.StatusOK, prediction)
}

func (s *Server) handleListPredictions(w http.ResponseWriter, r *http.Request, user domain.User) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	predictions, err := s.app.ListPredictions(user)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"items": predictions,
		"count": len(predictions),
	})
}

// Topics come either from the query string or from the user's latest
// prediction.
func (s *Server) handleRecommendedContent(w http.ResponseWriter, r *http.Request, user domain.User) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	var topics []string
	if raw := strings.TrimSpace(r.URL.Query().Get("topics")); raw != "" {
		for _, topic := range strings.Split(raw, ",") {
			if topic = strings.TrimSpace(topic); topic != "" {
				topics = append(topics, topic)
			}
		}
	} else {
		predictions, err := s.app.ListPredictions(user)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "internal error")
			return
		}
		if len(predictions) > 0 {
			for _, t := range predictions[0].Topics {
				topics = append(topics, t.Topic)
			}
		}
	}
	items, err := s.app.RecommendedContent(topics)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"items": items,
		"count": len(items),
	})
}

func (s *Server) allowRate(w http.ResponseWriter, userID string) bool {
	if s.unlockLimiter == nil {
		return true
	}
	if s.unlockLimiter.Allow(userID) {
		return true
	}
	w.Header().Set("Retry-After", "60")
	writeError(w, http.StatusTooManyRequests, "too many requests")
	return false
}

// writeLedgerError maps ledger failures onto HTTP statuses. An
// insufficient balance carries the shortfall so clients can show how
// many tokens are missing.
func (s *Server) writeLedgerError(w http.ResponseWriter, err error) {
	var insufficient *store.InsufficientFundsError
	switch {
	case errors.As(err, &insufficient):
		writeJSON(w, http.StatusBadRequest, errorResponse{
			Error:     "insufficient tokens",
			Code:      "WALLET_INSUFFICIENT_TOKENS",
			Required:  insufficient.Required,
			Available: insufficient.Available,
		})
	case errors.Is(err, ledger.ErrAlreadyPurchased):
		writeError(w, http.StatusConflict, "content already purchased")
	case errors.Is(err, ledger.ErrContentNotFound):
		notFound(w, "content not found")
	case errors.Is(err, ledger.ErrUserNotFound):
		notFound(w, "user not found")
	case errors.Is(err, ledger.ErrInvalidAmount):
		writeError(w, http.StatusBadRequest, "amount must be positive")
	default:
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func bearerToken(r *http.Request) (string, bool) {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	if header == "" {
		return "", false
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return "", false
	}
	token := strings.TrimSpace(parts[1])
	if token == "" {
		return "", false
	}
	return token, true
}

func parsePrice(raw string) (int64, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, errors.New("priceTokens is required")
	}
	var price int64
	for _, c := range raw {
		if c < '0' || c > '9' {
			return 0, errors.New("priceTokens must be a positive integer")
		}
		price = price*10 + int64(c-'0')
		if price > 1<<40 {
			return 0, errors.New("priceTokens is too large")
		}
	}
	if price <= 0 {
		return 0, errors.New("priceTokens must be a positive integer")
	}
	return price, nil
}

func methodNotAllowed(w http.ResponseWriter) {
	writeError(w, http.StatusMethodNotAllowed, "method not allowed")
}

func notFound(w http.ResponseWriter, msg string) {
	writeError(w, http.StatusNotFound, msg)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

type errorResponse struct {
	Error     string `json:"error"`
	Code      string `json:"code"`
	Required  int64  `json:"required,omitempty"`
	Available int64  `json:"available,omitempty"`
	RequestID string `json:"requestId,omitempty"`
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{
		Error:     msg,
		Code:      errorCode(status, msg),
		RequestID: strings.TrimSpace(w.Header().Get("X-Request-Id")),
	})
}

func errorCode(status int, msg string) string {
	message := strings.ToLower(strings.TrimSpace(msg))
	switch {
	case message == "unauthorized":
		return "AUTH_INVALID_TOKEN"
	case message == "auth not configured":
		return "SYSTEM_INTERNAL_ERROR"
	case message == "creator role required":
		return "USER_CREATOR_REQUIRED"
	case message == "forbidden":
		return "USER_FORBIDDEN"
	case message == "content not found":
		return "CONTENT_NOT_FOUND"
	case message == "content already purchased":
		return "CONTENT_ALREADY_PURCHASED"
	case message == "user not found":
		return "USER_NOT_FOUND"
	case message == "amount must be positive":
		return "WALLET_INVALID_AMOUNT"
	case message == "exam input not found":
		return "EXAM_INPUT_NOT_FOUND"
	case message == "topic prediction failed":
		return "EXAM_PREDICTION_FAILED"
	case message == "too many requests":
		return "SYSTEM_RATE_LIMITED"
	case message == "invalid form data":
		return "CONTENT_INVALID_UPLOAD_FORM"
	case message == "invalid json body":
		return "SYSTEM_INVALID_REQUEST"
	case message == "method not allowed":
		return "SYSTEM_METHOD_NOT_ALLOWED"
	case message == "not found":
		return "SYSTEM_NOT_FOUND"
	}

	switch status {
	case http.StatusBadRequest:
		return "SYSTEM_INVALID_REQUEST"
	case http.StatusUnauthorized:
		return "AUTH_INVALID_TOKEN"
	case http.StatusForbidden:
		return "USER_FORBIDDEN"
	case http.StatusNotFound:
		return "SYSTEM_NOT_FOUND"
	case http.StatusMethodNotAllowed:
		return "SYSTEM_METHOD_NOT_ALLOWED"
	case http.StatusConflict:
		return "SYSTEM_CONFLICT"
	case http.StatusTooManyRequests:
		return "SYSTEM_RATE_LIMITED"
	case http.StatusBadGateway:
		return "SYSTEM_UPSTREAM_ERROR"
	default:
		return "SYSTEM_INTERNAL_ERROR"
	}
}
