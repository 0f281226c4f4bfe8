package httpserver

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/TIGERVENENO/persona-feedback-engine/internal/adapter/security"
	"github.com/TIGERVENENO/persona-feedback-engine/internal/config"
	"github.com/TIGERVENENO/persona-feedback-engine/internal/domain"
	"github.com/TIGERVENENO/persona-feedback-engine/internal/usecase"
)

// Hand-rolled in-memory fakes for the HTTP layer's handler
// dependencies, local to this package since the usecase layer's test
// fakes are unexported to their own package.

type fakeUserRepo struct {
	byEmail map[string]domain.User
	nextID  int
}

func newFakeUserRepo() *fakeUserRepo { return &fakeUserRepo{byEmail: map[string]domain.User{}} }

func (f *fakeUserRepo) Create(_ domain.Context, u domain.User) (string, error) {
	if _, ok := f.byEmail[u.Email]; ok {
		return "", domain.NewAppError(domain.CodeEmailAlreadyExists, "email already registered")
	}
	f.nextID++
	u.ID = "user-" + string(rune('0'+f.nextID))
	u.Active = true
	f.byEmail[u.Email] = u
	return u.ID, nil
}

func (f *fakeUserRepo) GetByEmail(_ domain.Context, email string) (domain.User, error) {
	u, ok := f.byEmail[email]
	if !ok {
		return domain.User{}, domain.ErrNotFound
	}
	return u, nil
}

func (f *fakeUserRepo) GetByID(_ domain.Context, id string) (domain.User, error) {
	for _, u := range f.byEmail {
		if u.ID == id {
			return u, nil
		}
	}
	return domain.User{}, domain.ErrNotFound
}

type fakeProductRepo struct {
	owned map[string]domain.Product
}

func newFakeProductRepo() *fakeProductRepo { return &fakeProductRepo{owned: map[string]domain.Product{}} }

func (f *fakeProductRepo) Create(_ domain.Context, p domain.Product) (string, error) {
	p.ID = "product-1"
	f.owned[p.ID] = p
	return p.ID, nil
}

func (f *fakeProductRepo) GetOwned(_ domain.Context, _, id string) (domain.Product, error) {
	p, ok := f.owned[id]
	if !ok {
		return domain.Product{}, domain.ErrNotFound
	}
	return p, nil
}

func (f *fakeProductRepo) ListOwnedByIDs(_ domain.Context, _ string, ids []string) ([]domain.Product, error) {
	var out []domain.Product
	for _, id := range ids {
		if p, ok := f.owned[id]; ok {
			out = append(out, p)
		}
	}
	return out, nil
}

func newTestServer() (*Server, *fakeUserRepo) {
	users := newFakeUserRepo()
	tm := security.NewTokenManager("test-secret")
	return &Server{
		Cfg:      config.Config{BcryptCost: 4, JWTTTL: time.Hour},
		Users:    users,
		Products: newFakeProductRepo(),
		Query:    usecase.NewQueryService(nil),
		Tokens:   tm,
	}, users
}

func doRequest(t *testing.T, r http.Handler, method, path string, body any, bearer string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("failed to encode request body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func TestHandleRegister_Success(t *testing.T) {
	s, _ := newTestServer()
	router := chi.NewRouter()
	s.Routes(router)

	rec := doRequest(t, router, http.MethodPost, "/auth/register", registerRequest{Email: "a@example.com", Password: "hunter222"}, "")
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	var resp authResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp.UserID == "" || resp.Token == "" {
		t.Fatalf("expected a populated user id and token, got %+v", resp)
	}
}

func TestHandleRegister_DuplicateEmailIsBadRequest(t *testing.T) {
	s, _ := newTestServer()
	router := chi.NewRouter()
	s.Routes(router)

	doRequest(t, router, http.MethodPost, "/auth/register", registerRequest{Email: "a@example.com", Password: "hunter222"}, "")
	rec := doRequest(t, router, http.MethodPost, "/auth/register", registerRequest{Email: "a@example.com", Password: "hunter222"}, "")
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 on duplicate email, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestHandleRegister_ValidationFailureIsBadRequest(t *testing.T) {
	s, _ := newTestServer()
	router := chi.NewRouter()
	s.Routes(router)

	rec := doRequest(t, router, http.MethodPost, "/auth/register", registerRequest{Email: "not-an-email", Password: "short"}, "")
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 on invalid input, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestHandleLogin_WrongPasswordIsBadRequest(t *testing.T) {
	s, _ := newTestServer()
	router := chi.NewRouter()
	s.Routes(router)

	doRequest(t, router, http.MethodPost, "/auth/register", registerRequest{Email: "a@example.com", Password: "hunter222"}, "")
	rec := doRequest(t, router, http.MethodPost, "/auth/login", loginRequest{Email: "a@example.com", Password: "wrong-password"}, "")
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 on bad credentials, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestHandleLogin_SuccessIssuesToken(t *testing.T) {
	s, _ := newTestServer()
	router := chi.NewRouter()
	s.Routes(router)

	doRequest(t, router, http.MethodPost, "/auth/register", registerRequest{Email: "a@example.com", Password: "hunter222"}, "")
	rec := doRequest(t, router, http.MethodPost, "/auth/login", loginRequest{Email: "a@example.com", Password: "hunter222"}, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestProtectedRoute_RejectsMissingBearerWithUnauthorized(t *testing.T) {
	s, _ := newTestServer()
	router := chi.NewRouter()
	s.Routes(router)

	rec := doRequest(t, router, http.MethodPost, "/products", createProductRequest{Name: "Widget"}, "")
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for a missing bearer token, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestProtectedRoute_AcceptsValidBearer(t *testing.T) {
	s, _ := newTestServer()
	router := chi.NewRouter()
	s.Routes(router)

	reg := doRequest(t, router, http.MethodPost, "/auth/register", registerRequest{Email: "a@example.com", Password: "hunter222"}, "")
	var auth authResponse
	if err := json.Unmarshal(reg.Body.Bytes(), &auth); err != nil {
		t.Fatalf("failed to decode register response: %v", err)
	}

	rec := doRequest(t, router, http.MethodPost, "/products", createProductRequest{Name: "Widget"}, auth.Token)
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201 with a valid bearer token, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestHandleHealthz_AlwaysOK(t *testing.T) {
	s, _ := newTestServer()
	router := chi.NewRouter()
	s.Routes(router)

	rec := doRequest(t, router, http.MethodGet, "/healthz", nil, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}

func TestHandleReadyz_FailsClosedWhenDBUnavailable(t *testing.T) {
	s, _ := newTestServer()
	s.DBCheck = func(_ domain.Context) error { return domain.NewAppError(domain.CodeInternal, "db down") }
	router := chi.NewRouter()
	s.Routes(router)

	rec := doRequest(t, router, http.MethodGet, "/readyz", nil, "")
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 when the db check fails, got %d", rec.Code)
	}
}

func TestHandleReadyz_OKWhenNoChecksConfigured(t *testing.T) {
	s, _ := newTestServer()
	router := chi.NewRouter()
	s.Routes(router)

	rec := doRequest(t, router, http.MethodGet, "/readyz", nil, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 when no readiness checks are wired, got %d", rec.Code)
	}
}
