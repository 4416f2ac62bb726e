package main

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"dealflow/auth"
	"dealflow/checklist"
	"dealflow/document"
	"dealflow/listing"
	"dealflow/progress"
	"dealflow/steps"
)

type ctxKey string

const (
	ctxKeyUserID ctxKey = "user_id"
	ctxKeyRole   ctxKey = "role"
	ctxKeyName   ctxKey = "name"
)

type progressService interface {
	Get(ctx context.Context, role steps.Role, ownerID string) (progress.View, error)
	SelectListing(ctx context.Context, role steps.Role, ownerID, listingID string) (progress.View, error)
	CompleteStep(ctx context.Context, role steps.Role, ownerID string, stepID int) (progress.View, error)
	RecordUpload(ctx context.Context, role steps.Role, ownerID string, req progress.UploadRequest) (document.Document, error)
	RecordDownload(ctx context.Context, role steps.Role, ownerID string, stepID int) (document.Document, error)
}

type checklistService interface {
	Get(ctx context.Context, listingID string) (checklist.Checklist, error)
	Toggle(ctx context.Context, req checklist.ToggleRequest) (checklist.Checklist, error)
}

// Server carries the HTTP handlers. Fields are set by main or directly by
// tests.
type Server struct {
	authService      *auth.Service
	listingService   *listing.Service
	progressService  progressService
	checklistService checklistService
	logger           *slog.Logger
}

func (s *Server) log() *slog.Logger {
	if s.logger == nil {
		return slog.Default()
	}
	return s.logger
}

// Routes registers every endpoint. Everything but register and login
// requires a bearer token.
func (s *Server) Routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/auth/register", s.handleRegister)
	mux.HandleFunc("/api/auth/login", s.handleLogin)
	mux.Handle("/api/auth/me", s.requireAuth(http.HandlerFunc(s.handleMe)))
	mux.Handle("/api/listings", s.requireAuth(http.HandlerFunc(s.handleListings)))
	mux.Handle("/api/listings/", s.requireAuth(http.HandlerFunc(s.handleListingDetail)))
	mux.Handle("/api/progress", s.requireAuth(http.HandlerFunc(s.handleProgress)))
	mux.Handle("/api/progress/", s.requireAuth(http.HandlerFunc(s.handleProgressAction)))
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	return s.logRequests(mux)
}

func (s *Server) requireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || strings.TrimSpace(token) == "" {
			writeError(w, http.StatusUnauthorized, "missing bearer token")
			return
		}
		claims, err := s.authService.VerifyToken(strings.TrimSpace(token))
		if err != nil {
			writeError(w, http.StatusUnauthorized, "invalid token")
			return
		}
		ctx := context.WithValue(r.Context(), ctxKeyUserID, claims.UserID)
		ctx = context.WithValue(ctx, ctxKeyRole, claims.Role)
		ctx = context.WithValue(ctx, ctxKeyName, claims.Name)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		s.log().InfoContext(r.Context(), "http request",
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.Int("status", rec.status),
			slog.Duration("duration", time.Since(start)),
		)
	})
}

func userIDFrom(ctx context.Context) string {
	v, _ := ctx.Value(ctxKeyUserID).(string)
	return v
}

func roleFrom(ctx context.Context) auth.Role {
	v, _ := ctx.Value(ctxKeyRole).(auth.Role)
	return v
}

func nameFrom(ctx context.Context) string {
	v, _ := ctx.Value(ctxKeyName).(string)
	return v
}

// stepRole maps the session to a progress owner. Brokers and agents have no
// step list.
func stepRole(w http.ResponseWriter, r *http.Request) (steps.Role, string, bool) {
	userID := userIDFrom(r.Context())
	if userID == "" {
		writeError(w, http.StatusUnauthorized, "unauthenticated")
		return "", "", false
	}
	role := steps.Role(roleFrom(r.Context()))
	if !role.Valid() {
		writeError(w, http.StatusForbidden, "progress is only tracked for buyers and sellers")
		return "", "", false
	}
	return role, userID, true
}

// Auth

type userResponse struct {
	ID       string `json:"id"`
	Email    string `json:"email"`
	FullName string `json:"fullName"`
	Role     string `json:"role"`
}

func toUserResponse(u auth.User) userResponse {
	return userResponse{ID: u.ID, Email: u.Email, FullName: u.FullName, Role: string(u.Role)}
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	var req auth.RegisterRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json body")
		return
	}
	user, err := s.authService.Register(r.Context(), req)
	if err != nil {
		switch {
		case errors.Is(err, auth.ErrWeakPassword), errors.Is(err, auth.ErrMissingFields), errors.Is(err, auth.ErrInvalidRole):
			writeError(w, http.StatusBadRequest, err.Error())
		case errors.Is(err, auth.ErrDuplicateEmail):
			writeError(w, http.StatusConflict, err.Error())
		default:
			s.internalError(w, r, "register", err)
		}
		return
	}
	writeJSON(w, http.StatusCreated, toUserResponse(*user))
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	var req auth.LoginRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json body")
		return
	}
	result, err := s.authService.Login(r.Context(), req)
	if err != nil {
		if errors.Is(err, auth.ErrInvalidCredentials) {
			writeError(w, http.StatusUnauthorized, err.Error())
			return
		}
		s.internalError(w, r, "login", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"token": result.Token,
		"user":  toUserResponse(result.User),
	})
}

func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	userID := userIDFrom(r.Context())
	if userID == "" {
		writeError(w, http.StatusUnauthorized, "unauthenticated")
		return
	}
	user, err := s.authService.GetUserByID(r.Context(), userID)
	if err != nil {
		if errors.Is(err, auth.ErrUserNotFound) {
			writeError(w, http.StatusNotFound, err.Error())
			return
		}
		s.internalError(w, r, "me", err)
		return
	}
	writeJSON(w, http.StatusOK, toUserResponse(*user))
}

// Listings

type listingResponse struct {
	ID        string  `json:"id"`
	Title     string  `json:"title"`
	SellerID  *string `json:"sellerId"`
	BrokerID  *string `json:"brokerId"`
	AgentID   *string `json:"agentId"`
	Status    string  `json:"status"`
	CreatedAt string  `json:"createdAt"`
}

func toListingResponse(l listing.Listing) listingResponse {
	return listingResponse{
		ID:        l.ID,
		Title:     l.Title,
		SellerID:  l.SellerID,
		BrokerID:  l.BrokerID,
		AgentID:   l.AgentID,
		Status:    string(l.Status),
		CreatedAt: l.CreatedAt.UTC().Format(time.RFC3339),
	}
}

func (s *Server) handleListings(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = n
	}
	items, err := s.listingService.List(r.Context(), limit)
	if err != nil {
		s.internalError(w, r, "list listings", err)
		return
	}
	out := make([]listingResponse, 0, len(items))
	for _, l := range items {
		out = append(out, toListingResponse(l))
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": out, "total": len(out)})
}

// handleListingDetail serves /api/listings/{id} and /api/listings/{id}/checklist.
func (s *Server) handleListingDetail(w http.ResponseWriter, r *http.Request) {
	rest := strings.Trim(strings.TrimPrefix(r.URL.Path, "/api/listings/"), "/")
	parts := strings.Split(rest, "/")
	if rest == "" || len(parts) > 2 {
		writeError(w, http.StatusBadRequest, "invalid listing path")
		return
	}
	listingID := parts[0]
	if _, err := uuid.Parse(listingID); err != nil {
		writeError(w, http.StatusBadRequest, "invalid listing id")
		return
	}

	if len(parts) == 1 {
		if r.Method != http.MethodGet {
			writeError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}
		l, err := s.listingService.GetByID(r.Context(), listingID)
		if err != nil {
			s.listingError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, toListingResponse(l))
		return
	}

	if parts[1] != "checklist" {
		writeError(w, http.StatusNotFound, "not found")
		return
	}
	switch r.Method {
	case http.MethodGet:
		s.handleGetChecklist(w, r, listingID)
	case http.MethodPatch:
		s.handleToggleChecklist(w, r, listingID)
	default:
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

func (s *Server) listingError(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, listing.ErrNotFound) {
		writeError(w, http.StatusNotFound, "listing not found")
		return
	}
	s.internalError(w, r, "get listing", err)
}

// Checklist

type checklistResponse struct {
	Checklist     []checklist.Category `json:"checklist"`
	LastUpdatedBy *string              `json:"lastUpdatedBy"`
	UpdatedAt     time.Time            `json:"updatedAt"`
}

func toChecklistResponse(c checklist.Checklist, party checklist.Party) checklistResponse {
	cats := c.Categories
	if party != "" {
		cats = c.Partition(party)
	}
	if cats == nil {
		cats = []checklist.Category{}
	}
	return checklistResponse{Checklist: cats, LastUpdatedBy: c.LastUpdatedBy, UpdatedAt: c.UpdatedAt}
}

func (s *Server) handleGetChecklist(w http.ResponseWriter, r *http.Request, listingID string) {
	party := checklist.Party(r.URL.Query().Get("party"))
	if party != "" && !party.Valid() {
		writeError(w, http.StatusBadRequest, "party must be buyer, seller or broker")
		return
	}
	if _, err := s.listingService.GetByID(r.Context(), listingID); err != nil {
		s.listingError(w, r, err)
		return
	}
	c, err := s.checklistService.Get(r.Context(), listingID)
	if err != nil {
		s.checklistError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toChecklistResponse(c, party))
}

type toggleRequest struct {
	CategoryID string `json:"categoryId"`
	ItemID     string `json:"itemId"`
	UserRole   string `json:"userRole"`
}

func (s *Server) handleToggleChecklist(w http.ResponseWriter, r *http.Request, listingID string) {
	userID := userIDFrom(r.Context())
	if userID == "" {
		writeError(w, http.StatusUnauthorized, "unauthenticated")
		return
	}
	var body toggleRequest
	if err := decodeJSON(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json body")
		return
	}
	if body.CategoryID == "" || body.ItemID == "" {
		writeError(w, http.StatusBadRequest, "categoryId and itemId are required")
		return
	}
	if body.UserRole != "" && !auth.Role(body.UserRole).Valid() {
		writeError(w, http.StatusBadRequest, "unknown userRole")
		return
	}
	if _, err := s.listingService.GetByID(r.Context(), listingID); err != nil {
		s.listingError(w, r, err)
		return
	}

	c, err := s.checklistService.Toggle(r.Context(), checklist.ToggleRequest{
		ListingID:  listingID,
		CategoryID: body.CategoryID,
		ItemID:     body.ItemID,
		ActorID:    userID,
		ActorName:  nameFrom(r.Context()),
		ActorRole:  string(roleFrom(r.Context())),
	})
	if err != nil {
		s.checklistError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toChecklistResponse(c, ""))
}

func (s *Server) checklistError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, checklist.ErrItemNotFound), errors.Is(err, checklist.ErrNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, checklist.ErrInvalidRequest):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, checklist.ErrMissingActor):
		writeError(w, http.StatusUnauthorized, err.Error())
	default:
		s.internalError(w, r, "checklist", err)
	}
}

// Progress

type documentResponse struct {
	ID           string     `json:"id"`
	Type         string     `json:"type"`
	Category     string     `json:"category"`
	Operation    string     `json:"operationType"`
	StepID       *int       `json:"stepId"`
	Status       string     `json:"status"`
	FileName     *string    `json:"fileName"`
	FileSize     *int64     `json:"fileSize"`
	UploadedAt   *time.Time `json:"uploadedAt"`
	DownloadedAt *time.Time `json:"downloadedAt"`
}

func toDocumentResponse(d document.Document) documentResponse {
	return documentResponse{
		ID:           d.ID,
		Type:         string(d.Type),
		Category:     string(d.Category),
		Operation:    string(d.Operation),
		StepID:       d.StepID,
		Status:       string(d.Status),
		FileName:     d.FileName,
		FileSize:     d.FileSize,
		UploadedAt:   d.UploadedAt,
		DownloadedAt: d.DownloadedAt,
	}
}

type stepResponse struct {
	ID                  int                `json:"id"`
	Title               string             `json:"title"`
	Completed           bool               `json:"completed"`
	Accessible          bool               `json:"accessible"`
	DocumentRequirement steps.Requirement  `json:"documentRequirement"`
	Documents           []documentResponse `json:"documents"`
}

type progressResponse struct {
	CurrentStep       int            `json:"currentStep"`
	CompletedSteps    []int          `json:"completedSteps"`
	SelectedListingID *string        `json:"selectedListingId"`
	Steps             []stepResponse `json:"steps"`
}

func toProgressResponse(v progress.View) progressResponse {
	out := progressResponse{
		CurrentStep:       v.CurrentStep,
		CompletedSteps:    v.CompletedSteps,
		SelectedListingID: v.SelectedListingID,
		Steps:             make([]stepResponse, 0, len(v.Steps)),
	}
	if out.CompletedSteps == nil {
		out.CompletedSteps = []int{}
	}
	for _, st := range v.Steps {
		docs := make([]documentResponse, 0, len(st.Documents))
		for _, d := range st.Documents {
			docs = append(docs, toDocumentResponse(d))
		}
		out.Steps = append(out.Steps, stepResponse{
			ID:                  st.ID,
			Title:               st.Title,
			Completed:           st.Completed,
			Accessible:          st.Accessible,
			DocumentRequirement: st.Requirement,
			Documents:           docs,
		})
	}
	return out
}

func (s *Server) handleProgress(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	role, ownerID, ok := stepRole(w, r)
	if !ok {
		return
	}
	view, err := s.progressService.Get(r.Context(), role, ownerID)
	if err != nil {
		s.progressError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toProgressResponse(view))
}

// handleProgressAction serves the write endpoints under /api/progress/.
func (s *Server) handleProgressAction(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	role, ownerID, ok := stepRole(w, r)
	if !ok {
		return
	}

	rest := strings.Trim(strings.TrimPrefix(r.URL.Path, "/api/progress/"), "/")
	parts := strings.Split(rest, "/")
	switch {
	case rest == "listing":
		s.handleSelectListing(w, r, role, ownerID)
	case rest == "uploads":
		s.handleUpload(w, r, role, ownerID)
	case rest == "downloads":
		s.handleDownload(w, r, role, ownerID)
	case len(parts) == 3 && parts[0] == "steps" && parts[2] == "complete":
		stepID, err := strconv.Atoi(parts[1])
		if err != nil {
			writeError(w, http.StatusBadRequest, "step id must be an integer")
			return
		}
		view, err := s.progressService.CompleteStep(r.Context(), role, ownerID, stepID)
		if err != nil {
			s.progressError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, toProgressResponse(view))
	default:
		writeError(w, http.StatusNotFound, "not found")
	}
}

func (s *Server) handleSelectListing(w http.ResponseWriter, r *http.Request, role steps.Role, ownerID string) {
	var body struct {
		ListingID string `json:"listingId"`
	}
	if err := decodeJSON(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json body")
		return
	}
	if _, err := uuid.Parse(body.ListingID); err != nil {
		writeError(w, http.StatusBadRequest, "invalid listingId")
		return
	}
	view, err := s.progressService.SelectListing(r.Context(), role, ownerID, body.ListingID)
	if err != nil {
		s.progressError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toProgressResponse(view))
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request, role steps.Role, ownerID string) {
	var body struct {
		StepID   *int   `json:"stepId"`
		FileName string `json:"fileName"`
		FileSize int64  `json:"fileSize"`
	}
	if err := decodeJSON(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json body")
		return
	}
	if body.StepID == nil {
		writeError(w, http.StatusBadRequest, "stepId is required")
		return
	}
	if body.FileSize < 0 {
		writeError(w, http.StatusBadRequest, "fileSize must not be negative")
		return
	}
	doc, err := s.progressService.RecordUpload(r.Context(), role, ownerID, progress.UploadRequest{
		StepID:   *body.StepID,
		FileName: strings.TrimSpace(body.FileName),
		FileSize: body.FileSize,
	})
	if err != nil {
		s.progressError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toDocumentResponse(doc))
}

func (s *Server) handleDownload(w http.ResponseWriter, r *http.Request, role steps.Role, ownerID string) {
	var body struct {
		StepID *int `json:"stepId"`
	}
	if err := decodeJSON(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json body")
		return
	}
	if body.StepID == nil {
		writeError(w, http.StatusBadRequest, "stepId is required")
		return
	}
	doc, err := s.progressService.RecordDownload(r.Context(), role, ownerID, *body.StepID)
	if err != nil {
		s.progressError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toDocumentResponse(doc))
}

func (s *Server) progressError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, listing.ErrNotFound):
		writeError(w, http.StatusNotFound, "listing not found")
	case errors.Is(err, progress.ErrListingNotOwned):
		writeError(w, http.StatusForbidden, err.Error())
	case errors.Is(err, progress.ErrStepLocked), errors.Is(err, progress.ErrOperationNotAllowed):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, progress.ErrInvalidStep), errors.Is(err, progress.ErrInvalidRole),
		errors.Is(err, progress.ErrMissingOwner), errors.Is(err, document.ErrOwnerMissing):
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		s.internalError(w, r, "progress", err)
	}
}

// Helpers

func (s *Server) internalError(w http.ResponseWriter, r *http.Request, op string, err error) {
	s.log().ErrorContext(r.Context(), "request failed", slog.String("op", op), slog.Any("error", err))
	writeError(w, http.StatusInternalServerError, "internal error")
}

func decodeJSON(r *http.Request, dst any) error {
	return json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(dst)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
