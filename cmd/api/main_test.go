package main

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"dealflow/auth"
	"dealflow/checklist"
	"dealflow/document"
	"dealflow/listing"
	"dealflow/progress"
	"dealflow/steps"
)

const (
	listingID = "6f1c2d9e-4b7a-4c1e-9a55-0b8e2f3d4c10"
	buyerID   = "0d4e8c4a-2f8b-4a6e-8f0a-7b1c9e2d3f41"
)

type stubListingRepo struct {
	listing  listing.Listing
	listings []listing.Listing
	err      error
}

func (s *stubListingRepo) GetByID(_ context.Context, _ string) (listing.Listing, error) {
	return s.listing, s.err
}

func (s *stubListingRepo) List(_ context.Context, limit int) ([]listing.Listing, error) {
	if s.err != nil {
		return nil, s.err
	}
	if limit <= 0 || limit > len(s.listings) {
		limit = len(s.listings)
	}
	out := make([]listing.Listing, limit)
	copy(out, s.listings[:limit])
	return out, nil
}

type stubProgressService struct {
	view       progress.View
	err        error
	doc        document.Document
	gotRole    steps.Role
	gotOwner   string
	gotStep    int
	gotListing string
	gotUpload  progress.UploadRequest
}

func (s *stubProgressService) Get(_ context.Context, role steps.Role, ownerID string) (progress.View, error) {
	s.gotRole, s.gotOwner = role, ownerID
	return s.view, s.err
}

func (s *stubProgressService) SelectListing(_ context.Context, role steps.Role, ownerID, listingID string) (progress.View, error) {
	s.gotRole, s.gotOwner, s.gotListing = role, ownerID, listingID
	return s.view, s.err
}

func (s *stubProgressService) CompleteStep(_ context.Context, role steps.Role, ownerID string, stepID int) (progress.View, error) {
	s.gotRole, s.gotOwner, s.gotStep = role, ownerID, stepID
	return s.view, s.err
}

func (s *stubProgressService) RecordUpload(_ context.Context, role steps.Role, ownerID string, req progress.UploadRequest) (document.Document, error) {
	s.gotRole, s.gotOwner, s.gotUpload = role, ownerID, req
	return s.doc, s.err
}

func (s *stubProgressService) RecordDownload(_ context.Context, role steps.Role, ownerID string, stepID int) (document.Document, error) {
	s.gotRole, s.gotOwner, s.gotStep = role, ownerID, stepID
	return s.doc, s.err
}

type stubChecklistService struct {
	checklist checklist.Checklist
	err       error
	toggled   checklist.ToggleRequest
}

func (s *stubChecklistService) Get(_ context.Context, _ string) (checklist.Checklist, error) {
	return s.checklist, s.err
}

func (s *stubChecklistService) Toggle(_ context.Context, req checklist.ToggleRequest) (checklist.Checklist, error) {
	s.toggled = req
	return s.checklist, s.err
}

type stubUserRepo struct {
	users map[string]auth.User
}

func (stubUserRepo) CreateUser(context.Context, auth.CreateUserParams) (auth.User, error) {
	return auth.User{}, errors.New("not implemented")
}

func (stubUserRepo) GetUserByEmail(context.Context, string) (auth.User, error) {
	return auth.User{}, auth.ErrUserNotFound
}

func (r stubUserRepo) GetUserByID(_ context.Context, id string) (auth.User, error) {
	u, ok := r.users[id]
	if !ok {
		return auth.User{}, auth.ErrUserNotFound
	}
	return u, nil
}

func withSession(req *http.Request, userID string, role auth.Role, name string) *http.Request {
	ctx := context.WithValue(req.Context(), ctxKeyUserID, userID)
	ctx = context.WithValue(ctx, ctxKeyRole, role)
	ctx = context.WithValue(ctx, ctxKeyName, name)
	return req.WithContext(ctx)
}

func sampleView() progress.View {
	snap, _ := steps.Progress(steps.RoleBuyer, steps.Context{SelectedListingID: listingID})
	view := progress.View{
		Role:              steps.RoleBuyer,
		OwnerID:           buyerID,
		SelectedListingID: func() *string { v := listingID; return &v }(),
		CurrentStep:       snap.CurrentStep,
		CompletedSteps:    snap.CompletedSteps,
	}
	for _, st := range snap.Steps {
		view.Steps = append(view.Steps, progress.StepView{State: st})
	}
	return view
}

func TestHandleProgress_Success(t *testing.T) {
	svc := &stubProgressService{view: sampleView()}
	server := &Server{progressService: svc}

	req := withSession(httptest.NewRequest(http.MethodGet, "/api/progress", nil), buyerID, auth.RoleBuyer, "Bea")
	rec := httptest.NewRecorder()

	server.handleProgress(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var resp progressResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.CurrentStep != 2 || len(resp.Steps) != steps.StepCount {
		t.Fatalf("unexpected payload: %+v", resp)
	}
	cbr := resp.Steps[4]
	if cbr.DocumentRequirement.Type != document.TypeCBRCIM || cbr.DocumentRequirement.Operation != document.OperationDownload {
		t.Fatalf("unexpected requirement: %+v", cbr.DocumentRequirement)
	}
	if cbr.Documents == nil {
		t.Fatal("documents must render as an empty list")
	}
	if svc.gotRole != steps.RoleBuyer || svc.gotOwner != buyerID {
		t.Fatalf("service called with %s/%s", svc.gotRole, svc.gotOwner)
	}
}

func TestHandleProgress_ForbidBroker(t *testing.T) {
	server := &Server{progressService: &stubProgressService{}}
	req := withSession(httptest.NewRequest(http.MethodGet, "/api/progress", nil), "u1", auth.RoleBroker, "Dana")
	rec := httptest.NewRecorder()

	server.handleProgress(rec, req)

	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", rec.Code)
	}
}

func TestHandleProgress_Unauthenticated(t *testing.T) {
	server := &Server{progressService: &stubProgressService{}}
	rec := httptest.NewRecorder()

	server.handleProgress(rec, httptest.NewRequest(http.MethodGet, "/api/progress", nil))

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}

func TestHandleProgressAction_CompleteStep(t *testing.T) {
	svc := &stubProgressService{view: sampleView()}
	server := &Server{progressService: svc}

	req := withSession(httptest.NewRequest(http.MethodPost, "/api/progress/steps/8/complete", nil), buyerID, auth.RoleBuyer, "Bea")
	rec := httptest.NewRecorder()

	server.handleProgressAction(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if svc.gotStep != 8 {
		t.Fatalf("expected step 8, got %d", svc.gotStep)
	}
}

func TestHandleProgressAction_ErrorMapping(t *testing.T) {
	cases := []struct {
		err  error
		path string
		body string
		want int
	}{
		{progress.ErrStepLocked, "/api/progress/steps/9/complete", "", http.StatusConflict},
		{progress.ErrInvalidStep, "/api/progress/steps/42/complete", "", http.StatusBadRequest},
		{progress.ErrOperationNotAllowed, "/api/progress/uploads", `{"stepId":1,"fileName":"a.pdf"}`, http.StatusConflict},
		{progress.ErrListingNotOwned, "/api/progress/listing", `{"listingId":"` + listingID + `"}`, http.StatusForbidden},
		{listing.ErrNotFound, "/api/progress/listing", `{"listingId":"` + listingID + `"}`, http.StatusNotFound},
		{errors.New("boom"), "/api/progress/downloads", `{"stepId":4}`, http.StatusInternalServerError},
	}
	for _, tc := range cases {
		server := &Server{progressService: &stubProgressService{err: tc.err}}
		req := withSession(httptest.NewRequest(http.MethodPost, tc.path, strings.NewReader(tc.body)), buyerID, auth.RoleBuyer, "Bea")
		rec := httptest.NewRecorder()

		server.handleProgressAction(rec, req)

		if rec.Code != tc.want {
			t.Fatalf("%s with %v: expected %d, got %d", tc.path, tc.err, tc.want, rec.Code)
		}
	}
}

func TestHandleProgressAction_Validation(t *testing.T) {
	cases := []struct {
		method string
		path   string
		body   string
		want   int
	}{
		{http.MethodGet, "/api/progress/listing", "", http.StatusMethodNotAllowed},
		{http.MethodPost, "/api/progress/steps/abc/complete", "", http.StatusBadRequest},
		{http.MethodPost, "/api/progress/listing", `{"listingId":"not-a-uuid"}`, http.StatusBadRequest},
		{http.MethodPost, "/api/progress/uploads", `{"fileName":"a.pdf"}`, http.StatusBadRequest},
		{http.MethodPost, "/api/progress/uploads", `{"stepId":2,"fileSize":-1}`, http.StatusBadRequest},
		{http.MethodPost, "/api/progress/downloads", `{`, http.StatusBadRequest},
		{http.MethodPost, "/api/progress/unknown", "", http.StatusNotFound},
	}
	for _, tc := range cases {
		server := &Server{progressService: &stubProgressService{}}
		req := withSession(httptest.NewRequest(tc.method, tc.path, strings.NewReader(tc.body)), buyerID, auth.RoleSeller, "Sam")
		rec := httptest.NewRecorder()

		server.handleProgressAction(rec, req)

		if rec.Code != tc.want {
			t.Fatalf("%s %s: expected %d, got %d", tc.method, tc.path, tc.want, rec.Code)
		}
	}
}

func TestHandleUpload_Success(t *testing.T) {
	step := 2
	svc := &stubProgressService{doc: document.Document{ID: "d1", Type: document.TypeNDA, Category: document.CategoryBuyerUpload, StepID: &step, Status: document.StatusCompleted}}
	server := &Server{progressService: svc}

	req := withSession(httptest.NewRequest(http.MethodPost, "/api/progress/uploads",
		strings.NewReader(`{"stepId":2,"fileName":" nda.pdf ","fileSize":2048}`)), buyerID, auth.RoleBuyer, "Bea")
	rec := httptest.NewRecorder()

	server.handleProgressAction(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d", rec.Code)
	}
	if svc.gotUpload.StepID != 2 || svc.gotUpload.FileName != "nda.pdf" || svc.gotUpload.FileSize != 2048 {
		t.Fatalf("unexpected upload request %+v", svc.gotUpload)
	}
	var resp documentResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.ID != "d1" || resp.Type != "NDA" {
		t.Fatalf("unexpected payload %+v", resp)
	}
}

func TestHandleChecklist_Get(t *testing.T) {
	now := time.Date(2024, 11, 2, 9, 0, 0, 0, time.UTC)
	server := &Server{
		listingService:   listing.NewService(&stubListingRepo{listing: listing.Listing{ID: listingID}}),
		checklistService: &stubChecklistService{checklist: checklist.Seed(listingID, now)},
	}

	req := withSession(httptest.NewRequest(http.MethodGet, "/api/listings/"+listingID+"/checklist", nil), "u1", auth.RoleAgent, "Pat")
	rec := httptest.NewRecorder()

	server.handleListingDetail(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var resp struct {
		Checklist     []checklist.Category `json:"checklist"`
		LastUpdatedBy *string              `json:"lastUpdatedBy"`
		UpdatedAt     time.Time            `json:"updatedAt"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(resp.Checklist) != 4 || resp.LastUpdatedBy != nil || !resp.UpdatedAt.Equal(now) {
		t.Fatalf("unexpected payload: %+v", resp)
	}

	req = withSession(httptest.NewRequest(http.MethodGet, "/api/listings/"+listingID+"/checklist?party=broker", nil), "u1", auth.RoleAgent, "Pat")
	rec = httptest.NewRecorder()
	server.handleListingDetail(rec, req)
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode partition: %v", err)
	}
	for _, cat := range resp.Checklist {
		for _, it := range cat.Items {
			if it.Responsible != checklist.PartyBroker {
				t.Fatalf("partition view leaked %s item %s", it.Responsible, it.ID)
			}
		}
	}
}

func TestHandleChecklist_Toggle(t *testing.T) {
	svc := &stubChecklistService{checklist: checklist.Seed(listingID, time.Now())}
	server := &Server{
		listingService:   listing.NewService(&stubListingRepo{listing: listing.Listing{ID: listingID}}),
		checklistService: svc,
	}

	body := strings.NewReader(`{"categoryId":"exhibits","itemId":"exh_lease","userRole":"seller"}`)
	req := withSession(httptest.NewRequest(http.MethodPatch, "/api/listings/"+listingID+"/checklist", body), buyerID, auth.RoleBuyer, "Bea Buyer")
	rec := httptest.NewRecorder()

	server.handleListingDetail(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	got := svc.toggled
	if got.ListingID != listingID || got.ActorID != buyerID || got.ActorName != "Bea Buyer" || got.ActorRole != "buyer" {
		t.Fatalf("actor must come from the session: %+v", got)
	}
}

func TestHandleChecklist_Errors(t *testing.T) {
	cases := []struct {
		name    string
		path    string
		method  string
		body    string
		repoErr error
		svcErr  error
		want    int
	}{
		{"no checklist", "/api/listings/" + listingID + "/checklist", http.MethodPatch, `{"categoryId":"exhibits","itemId":"exh_lease"}`, nil, checklist.ErrNotFound, http.StatusNotFound},
		{"missing actor", "/api/listings/" + listingID + "/checklist", http.MethodPatch, `{"categoryId":"exhibits","itemId":"exh_lease"}`, nil, checklist.ErrMissingActor, http.StatusUnauthorized},
		{"missing ids", "/api/listings/" + listingID + "/checklist", http.MethodPatch, `{"categoryId":"exhibits"}`, nil, nil, http.StatusBadRequest},
		{"bad role", "/api/listings/" + listingID + "/checklist", http.MethodPatch, `{"categoryId":"a","itemId":"b","userRole":"admin"}`, nil, nil, http.StatusBadRequest},
		{"missing listing", "/api/listings/" + listingID + "/checklist", http.MethodGet, "", listing.ErrNotFound, nil, http.StatusNotFound},
		{"bad party", "/api/listings/" + listingID + "/checklist?party=agent", http.MethodGet, "", nil, nil, http.StatusBadRequest},
		{"bad id", "/api/listings/abc/checklist", http.MethodGet, "", nil, nil, http.StatusBadRequest},
		{"wrong method", "/api/listings/" + listingID + "/checklist", http.MethodDelete, "", nil, nil, http.StatusMethodNotAllowed},
		{"store failure", "/api/listings/" + listingID + "/checklist", http.MethodGet, "", nil, errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		server := &Server{
			listingService:   listing.NewService(&stubListingRepo{listing: listing.Listing{ID: listingID}, err: tc.repoErr}),
			checklistService: &stubChecklistService{err: tc.svcErr},
		}
		req := withSession(httptest.NewRequest(tc.method, tc.path, strings.NewReader(tc.body)), "u1", auth.RoleBroker, "Dana")
		rec := httptest.NewRecorder()

		server.handleListingDetail(rec, req)

		if rec.Code != tc.want {
			t.Fatalf("%s: expected %d, got %d", tc.name, tc.want, rec.Code)
		}
	}
}

func TestHandleListings_List(t *testing.T) {
	now := time.Now().UTC()
	seller := "s1"
	server := &Server{
		listingService: listing.NewService(&stubListingRepo{
			listings: []listing.Listing{
				{ID: "l1", Title: "Corner Bakery", SellerID: &seller, Status: listing.StatusActive, CreatedAt: now},
				{ID: "l2", Title: "Auto Shop", SellerID: &seller, Status: listing.StatusSold, CreatedAt: now},
			},
		}),
	}

	req := withSession(httptest.NewRequest(http.MethodGet, "/api/listings?limit=1", nil), buyerID, auth.RoleBuyer, "Bea")
	rec := httptest.NewRecorder()

	server.handleListings(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var payload struct {
		Items []listingResponse `json:"items"`
		Total int               `json:"total"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decode list response: %v", err)
	}
	if len(payload.Items) != 1 || payload.Total != 1 || payload.Items[0].ID != "l1" {
		t.Fatalf("unexpected payload: %+v", payload)
	}
}

func TestRequireAuth(t *testing.T) {
	authSvc := auth.NewService(stubUserRepo{}, "test-secret")
	server := &Server{authService: authSvc}

	var seen struct {
		userID string
		role   auth.Role
		name   string
	}
	protected := server.requireAuth(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen.userID = userIDFrom(r.Context())
		seen.role = roleFrom(r.Context())
		seen.name = nameFrom(r.Context())
		w.WriteHeader(http.StatusNoContent)
	}))

	rec := httptest.NewRecorder()
	protected.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/progress", nil))
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/progress", nil)
	req.Header.Set("Authorization", "Bearer garbage")
	protected.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for bad token, got %d", rec.Code)
	}

	token, err := authSvc.IssueToken(auth.User{ID: buyerID, FullName: "Bea Buyer", Role: auth.RoleBuyer})
	if err != nil {
		t.Fatalf("issue token: %v", err)
	}
	rec = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodGet, "/api/progress", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	protected.ServeHTTP(rec, req)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected 204 with valid token, got %d", rec.Code)
	}
	if seen.userID != buyerID || seen.role != auth.RoleBuyer || seen.name != "Bea Buyer" {
		t.Fatalf("unexpected session %+v", seen)
	}
}

func TestHandleLogin_InvalidCredentials(t *testing.T) {
	server := &Server{authService: auth.NewService(stubUserRepo{}, "test-secret")}
	req := httptest.NewRequest(http.MethodPost, "/api/auth/login", strings.NewReader(`{"email":"x@example.com","password":"whatever1"}`))
	rec := httptest.NewRecorder()

	server.handleLogin(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}

func TestHandleMe(t *testing.T) {
	server := &Server{authService: auth.NewService(stubUserRepo{users: map[string]auth.User{
		buyerID: {ID: buyerID, Email: "bea@example.com", FullName: "Bea Buyer", Role: auth.RoleBuyer},
	}}, "test-secret")}

	rec := httptest.NewRecorder()
	server.handleMe(rec, withSession(httptest.NewRequest(http.MethodGet, "/api/auth/me", nil), buyerID, auth.RoleBuyer, "Bea Buyer"))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var got userResponse
	if err := json.NewDecoder(rec.Body).Decode(&got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.ID != buyerID || got.Email != "bea@example.com" || got.Role != "buyer" {
		t.Fatalf("unexpected profile: %+v", got)
	}

	rec = httptest.NewRecorder()
	server.handleMe(rec, withSession(httptest.NewRequest(http.MethodGet, "/api/auth/me", nil), "gone", auth.RoleBuyer, "Ghost"))
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for a deleted user, got %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	server.handleMe(rec, httptest.NewRequest(http.MethodGet, "/api/auth/me", nil))
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without a session, got %d", rec.Code)
	}
}
