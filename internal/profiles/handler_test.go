package profiles

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/hearthweave/geocass/internal/common"
	"github.com/hearthweave/geocass/internal/middleware"
	"github.com/hearthweave/geocass/internal/models"
)

// ---------------------------------------------------------------------------
// Mocks
// ---------------------------------------------------------------------------

type stubService struct {
	Service
	synced  *SyncRequest
	removed string
	profile *models.Profile
	err     error
}

func (s *stubService) Sync(_ context.Context, acc *models.Account, req SyncRequest) (*SyncResult, error) {
	if s.err != nil {
		return nil, s.err
	}
	s.synced = &req
	p := &models.Profile{ID: uuid.New(), Handle: req.Handle, UpdatedAt: time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)}
	return &SyncResult{Profile: p, URL: s.URL(acc.Username, req.Handle)}, nil
}

func (s *stubService) Remove(_ context.Context, _ *models.Account, handle string) error {
	s.removed = handle
	return s.err
}

func (s *stubService) Whoami(_ context.Context, acc *models.Account) (*Whoami, error) {
	return &Whoami{Account: acc, Profiles: []*models.Profile{s.profile}}, nil
}

func (s *stubService) GetPublic(context.Context, string, string) (*models.Profile, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.profile, nil
}

func (s *stubService) URL(username, handle string) string {
	return "https://geocass.test/" + username + "/" + handle
}

func newTestHandler(t *testing.T, svc Service, maxBody int64) *Handler {
	t.Helper()
	v, err := NewValidator()
	if err != nil {
		t.Fatalf("NewValidator: %v", err)
	}
	return NewHandler(svc, v, maxBody, quietLog)
}

func authed(r *http.Request) *http.Request {
	acc := &models.Account{ID: uuid.New(), Username: "wren", DisplayName: "Wren"}
	p := &models.Principal{Account: acc, Key: &models.APIKey{ID: uuid.New(), AccountID: acc.ID}}
	return r.WithContext(middleware.WithPrincipal(r.Context(), p))
}

func withParams(r *http.Request, kv ...string) *http.Request {
	rctx := chi.NewRouteContext()
	for i := 0; i+1 < len(kv); i += 2 {
		rctx.URLParams.Add(kv[i], kv[i+1])
	}
	return r.WithContext(context.WithValue(r.Context(), chi.RouteCtxKey, rctx))
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) common.ErrorResponse {
	t.Helper()
	var body common.ErrorResponse
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode error body: %v", err)
	}
	return body
}

const syncBody = `{
	"daemon_handle": "sol",
	"display_name": "Sol",
	"homepage": {"pages": [{"slug": "index", "title": "Home", "html": "<p>hi</p>"}], "stylesheet": "p{}"},
	"tags": ["poetry"]
}`

// ---------------------------------------------------------------------------
// Tests
// ---------------------------------------------------------------------------

func TestHandler_Sync(t *testing.T) {
	svc := &stubService{}
	h := newTestHandler(t, svc, 1<<20)

	req := authed(httptest.NewRequest(http.MethodPost, "/api/v1/sync", strings.NewReader(syncBody)))
	rec := httptest.NewRecorder()
	h.Sync(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var resp SyncResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !resp.Success || resp.URL != "https://geocass.test/wren/sol" || resp.DaemonID == "" {
		t.Errorf("unexpected response: %+v", resp)
	}
	if svc.synced == nil || svc.synced.Homepage.Stylesheet != "p{}" || svc.synced.Tags[0] != "poetry" {
		t.Errorf("request not decoded: %+v", svc.synced)
	}
}

func TestHandler_SyncRejectsSchemaViolations(t *testing.T) {
	svc := &stubService{}
	h := newTestHandler(t, svc, 1<<20)

	body := `{"daemon_handle": "Sol!", "display_name": "Sol", "homepage": {}}`
	req := authed(httptest.NewRequest(http.MethodPost, "/api/v1/sync", strings.NewReader(body)))
	rec := httptest.NewRecorder()
	h.Sync(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
	if code := decodeError(t, rec).Code; code != common.CodeInvalidInput {
		t.Errorf("expected %s, got %s", common.CodeInvalidInput, code)
	}
	if svc.synced != nil {
		t.Error("service must not be called for an invalid body")
	}
}

func TestHandler_SyncBodyTooLarge(t *testing.T) {
	svc := &stubService{}
	h := newTestHandler(t, svc, 64)

	req := authed(httptest.NewRequest(http.MethodPost, "/api/v1/sync", strings.NewReader(syncBody)))
	rec := httptest.NewRecorder()
	h.Sync(rec, req)

	if rec.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("expected 413, got %d", rec.Code)
	}
	if svc.synced != nil {
		t.Error("service must not be called for an oversized body")
	}
}

func TestHandler_SyncRequiresPrincipal(t *testing.T) {
	h := newTestHandler(t, &stubService{}, 1<<20)

	rec := httptest.NewRecorder()
	h.Sync(rec, httptest.NewRequest(http.MethodPost, "/api/v1/sync", strings.NewReader(syncBody)))

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}

func TestHandler_Delete(t *testing.T) {
	svc := &stubService{}
	h := newTestHandler(t, svc, 1<<20)

	req := withParams(authed(httptest.NewRequest(http.MethodDelete, "/api/v1/daemon/sol", nil)), "handle", "sol")
	rec := httptest.NewRecorder()
	h.Delete(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if svc.removed != "sol" {
		t.Errorf("expected sol removed, got %q", svc.removed)
	}
}

func TestHandler_DeleteUnknown(t *testing.T) {
	svc := &stubService{err: common.ErrNotFound}
	h := newTestHandler(t, svc, 1<<20)

	req := withParams(authed(httptest.NewRequest(http.MethodDelete, "/api/v1/daemon/nope", nil)), "handle", "nope")
	rec := httptest.NewRecorder()
	h.Delete(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}

func TestHandler_Whoami(t *testing.T) {
	svc := &stubService{profile: &models.Profile{ID: uuid.New(), Handle: "sol", Username: "wren", Visibility: models.VisibilityPrivate}}
	h := newTestHandler(t, svc, 1<<20)

	rec := httptest.NewRecorder()
	h.Whoami(rec, authed(httptest.NewRequest(http.MethodGet, "/api/v1/whoami", nil)))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var resp WhoamiResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.User.Username != "wren" || len(resp.Daemons) != 1 {
		t.Fatalf("unexpected response: %+v", resp)
	}
	if d := resp.Daemons[0]; d.URL != "https://geocass.test/wren/sol" || d.Visibility != models.VisibilityPrivate || d.Tags == nil {
		t.Errorf("unexpected daemon: %+v", d)
	}
}

func TestHandler_Get(t *testing.T) {
	svc := &stubService{profile: &models.Profile{
		ID:         uuid.New(),
		Handle:     "sol",
		Username:   "wren",
		Visibility: models.VisibilityPublic,
		Homepage:   &models.Homepage{Pages: []models.Page{{Slug: "index", Title: "Home", HTML: "<p>secret markup</p>"}}},
		Identity:   &models.IdentityMeta{Values: []string{"care"}},
	}}
	h := newTestHandler(t, svc, 1<<20)

	req := withParams(httptest.NewRequest(http.MethodGet, "/api/v1/daemon/wren/sol", nil), "username", "wren", "handle", "sol")
	rec := httptest.NewRecorder()
	h.Get(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if strings.Contains(rec.Body.String(), "secret markup") {
		t.Error("detail response must not embed page HTML")
	}
	var resp DetailResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(resp.Pages) != 1 || resp.Pages[0].Slug != "index" || resp.Identity == nil {
		t.Errorf("unexpected detail: %+v", resp)
	}
}

func TestHandler_GetPrivateIsNotFound(t *testing.T) {
	h := newTestHandler(t, &stubService{err: common.ErrNotFound}, 1<<20)

	req := withParams(httptest.NewRequest(http.MethodGet, "/api/v1/daemon/wren/hidden", nil), "username", "wren", "handle", "hidden")
	rec := httptest.NewRecorder()
	h.Get(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}
