package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/ashmarby/folioline-core/internal/bridge"
	"github.com/ashmarby/folioline-core/internal/identity"
	"github.com/ashmarby/folioline-core/internal/infrastructure/config"
	"github.com/ashmarby/folioline-core/internal/infrastructure/database"
	"github.com/ashmarby/folioline-core/internal/infrastructure/logging"
	"github.com/ashmarby/folioline-core/internal/portfolio"
	"github.com/ashmarby/folioline-core/internal/realtime"
	_ "github.com/ashmarby/folioline-core/migrations"
)

const testSecret = "test-secret-key-at-least-32-characters-long"

// testEnv is a fully wired server over a temp-file database, served by
// httptest.
type testEnv struct {
	srv        *Server
	http       *httptest.Server
	users      identity.Repository
	portfolios portfolio.Repository
	registry   *realtime.Registry
}

// newTestEnv builds the whole stack the way main does, minus relay and
// analytics.
func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	db, err := database.Open(database.Config{
		Path:        filepath.Join(t.TempDir(), "folioline.db"),
		WALMode:     true,
		BusyTimeout: 5,
	})
	if err != nil {
		t.Fatalf("opening test database: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	if err := db.Migrate(context.Background()); err != nil {
		t.Fatalf("migrating test database: %v", err)
	}

	logger := logging.Default()
	users := identity.NewSQLiteRepository(db.DB)
	portfolios := portfolio.NewSQLiteRepository(db.DB)
	registry := realtime.NewRegistry()
	dispatcher := realtime.NewDispatcher(registry, logger)
	notifier := bridge.NewNotifier(dispatcher, nil, nil, logger)

	srv, err := New(Deps{
		WS: config.WebSocketConfig{
			Path:           "/api/v1/ws",
			MaxMessageSize: 4096,
			PingInterval:   30,
			PongTimeout:    10,
			SendBufferSize: 64,
		},
		Security: config.SecurityConfig{
			JWT: config.JWTConfig{Secret: testSecret, AccessTokenTTL: 15},
		},
		Logger:     logger,
		Auth:       identity.NewAuthenticator(users, testSecret),
		Users:      users,
		Portfolios: portfolios,
		Registry:   registry,
		Notifier:   notifier,
		Version:    "test",
	})
	if err != nil {
		t.Fatalf("creating server: %v", err)
	}

	ts := httptest.NewServer(srv.buildRouter())
	t.Cleanup(ts.Close)

	return &testEnv{
		srv:        srv,
		http:       ts,
		users:      users,
		portfolios: portfolios,
		registry:   registry,
	}
}

// createUser registers a user directly in the store and returns it.
func (env *testEnv) createUser(t *testing.T, email, password string) *identity.User {
	t.Helper()

	hash, err := identity.HashPassword(password)
	if err != nil {
		t.Fatalf("HashPassword: %v", err)
	}
	user := &identity.User{Email: email, Name: "Test User", PasswordHash: hash}
	if err := env.users.Create(context.Background(), user); err != nil {
		t.Fatalf("creating user: %v", err)
	}
	return user
}

// login performs a real login and returns the access token.
func (env *testEnv) login(t *testing.T, email, password string) string {
	t.Helper()

	body, _ := json.Marshal(map[string]string{"email": email, "password": password}) //nolint:errcheck // static input
	resp, err := http.Post(env.http.URL+"/api/v1/auth/login", "application/json", bytes.NewReader(body))
	if err != nil {
		t.Fatalf("login request: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("login status = %d", resp.StatusCode)
	}
	var out loginResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("decoding login response: %v", err)
	}
	return out.AccessToken
}

// request performs an HTTP request with optional bearer token and JSON body.
func (env *testEnv) request(t *testing.T, method, path, token string, body any) *http.Response {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshalling body: %v", err)
		}
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}

	req, err := http.NewRequest(method, env.http.URL+path, reader)
	if err != nil {
		t.Fatalf("building request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("request %s %s: %v", method, path, err)
	}
	return resp
}

func decodeBody[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	defer resp.Body.Close()

	var out T
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	return out
}

// ─── Health and auth ────────────────────────────────────────────────

func TestHealthEndpoint(t *testing.T) {
	env := newTestEnv(t)

	resp, err := http.Get(env.http.URL + "/api/v1/health")
	if err != nil {
		t.Fatalf("GET /health: %v", err)
	}
	body := decodeBody[map[string]any](t, resp)
	if body["status"] != "ok" {
		t.Errorf("status = %v", body["status"])
	}
}

func TestLoginAndMe(t *testing.T) {
	env := newTestEnv(t)
	user := env.createUser(t, "ella@example.com", "correct horse battery staple")

	token := env.login(t, "ella@example.com", "correct horse battery staple")

	resp := env.request(t, http.MethodGet, "/api/v1/auth/me", token, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("GET /auth/me status = %d", resp.StatusCode)
	}
	me := decodeBody[identity.Identity](t, resp)
	if me.UserID != user.ID || me.Email != "ella@example.com" {
		t.Errorf("me = %+v", me)
	}
}

func TestLoginWrongPassword(t *testing.T) {
	env := newTestEnv(t)
	env.createUser(t, "ella@example.com", "right password")

	body, _ := json.Marshal(map[string]string{"email": "ella@example.com", "password": "wrong"}) //nolint:errcheck // static input
	resp, err := http.Post(env.http.URL+"/api/v1/auth/login", "application/json", bytes.NewReader(body))
	if err != nil {
		t.Fatalf("login request: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", resp.StatusCode)
	}
}

func TestProtectedRouteRequiresAuth(t *testing.T) {
	env := newTestEnv(t)

	resp := env.request(t, http.MethodPost, "/api/v1/portfolios", "", map[string]string{"title": "x", "slug": "x"})
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", resp.StatusCode)
	}
}

// ─── Portfolio REST ─────────────────────────────────────────────────

func TestPortfolioLifecycle(t *testing.T) {
	env := newTestEnv(t)
	env.createUser(t, "owner@example.com", "password12345")
	token := env.login(t, "owner@example.com", "password12345")

	// Create
	resp := env.request(t, http.MethodPost, "/api/v1/portfolios", token, map[string]string{
		"title": "Design Work",
		"slug":  "design-work",
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create status = %d", resp.StatusCode)
	}
	created := decodeBody[portfolio.Portfolio](t, resp)

	// Publish via PATCH
	resp = env.request(t, http.MethodPatch, "/api/v1/portfolios/"+created.ID, token, map[string]any{
		"published": true,
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("update status = %d", resp.StatusCode)
	}
	updated := decodeBody[portfolio.Portfolio](t, resp)
	if !updated.Published {
		t.Error("portfolio not published after PATCH")
	}

	// Public read by slug
	resp = env.request(t, http.MethodGet, "/api/v1/portfolios/slug/design-work", "", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("public read status = %d", resp.StatusCode)
	}
	resp.Body.Close()

	// Section create
	resp = env.request(t, http.MethodPost, "/api/v1/portfolios/"+created.ID+"/sections", token, map[string]any{
		"kind":     "projects",
		"title":    "Projects",
		"content":  "…",
		"position": 1,
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("section create status = %d", resp.StatusCode)
	}
	section := decodeBody[portfolio.Section](t, resp)

	// Section update
	resp = env.request(t, http.MethodPatch,
		fmt.Sprintf("/api/v1/portfolios/%s/sections/%s", created.ID, section.ID), token, map[string]any{
			"kind":  "projects",
			"title": "Case Studies",
		})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("section update status = %d", resp.StatusCode)
	}
	resp.Body.Close()
}

func TestUpdatePortfolioNotOwner(t *testing.T) {
	env := newTestEnv(t)
	env.createUser(t, "owner@example.com", "password12345")
	env.createUser(t, "other@example.com", "password12345")
	ownerToken := env.login(t, "owner@example.com", "password12345")
	otherToken := env.login(t, "other@example.com", "password12345")

	resp := env.request(t, http.MethodPost, "/api/v1/portfolios", ownerToken, map[string]string{
		"title": "Mine", "slug": "mine",
	})
	created := decodeBody[portfolio.Portfolio](t, resp)

	resp = env.request(t, http.MethodPatch, "/api/v1/portfolios/"+created.ID, otherToken, map[string]any{
		"title": "Hijacked",
	})
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("status = %d, want 403", resp.StatusCode)
	}
}

func TestDraftHiddenFromStrangers(t *testing.T) {
	env := newTestEnv(t)
	env.createUser(t, "owner@example.com", "password12345")
	token := env.login(t, "owner@example.com", "password12345")

	resp := env.request(t, http.MethodPost, "/api/v1/portfolios", token, map[string]string{
		"title": "Draft", "slug": "draft",
	})
	created := decodeBody[portfolio.Portfolio](t, resp)

	// Stranger gets 404, not 403, so drafts are not probeable.
	resp = env.request(t, http.MethodGet, "/api/v1/portfolios/"+created.ID, "", nil)
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("stranger read status = %d, want 404", resp.StatusCode)
	}

	// Owner still sees it.
	resp = env.request(t, http.MethodGet, "/api/v1/portfolios/"+created.ID, token, nil)
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("owner read status = %d, want 200", resp.StatusCode)
	}
}

func TestRecordView(t *testing.T) {
	env := newTestEnv(t)
	env.createUser(t, "owner@example.com", "password12345")
	token := env.login(t, "owner@example.com", "password12345")

	resp := env.request(t, http.MethodPost, "/api/v1/portfolios", token, map[string]string{
		"title": "Work", "slug": "work",
	})
	created := decodeBody[portfolio.Portfolio](t, resp)

	resp = env.request(t, http.MethodPost, "/api/v1/portfolios/"+created.ID+"/views", "", map[string]any{
		"unique": true,
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("view status = %d", resp.StatusCode)
	}
	analytics := decodeBody[portfolio.Analytics](t, resp)
	if analytics.Views != 1 || analytics.UniqueVisitors != 1 {
		t.Errorf("counters = %d/%d, want 1/1", analytics.Views, analytics.UniqueVisitors)
	}
}

func TestSubmitContactFormValidation(t *testing.T) {
	env := newTestEnv(t)
	env.createUser(t, "owner@example.com", "password12345")
	token := env.login(t, "owner@example.com", "password12345")

	resp := env.request(t, http.MethodPost, "/api/v1/portfolios", token, map[string]string{
		"title": "Work", "slug": "work",
	})
	created := decodeBody[portfolio.Portfolio](t, resp)

	resp = env.request(t, http.MethodPost, "/api/v1/portfolios/"+created.ID+"/contact", "", map[string]string{
		"sender_name": "Visitor",
	})
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400 for missing fields", resp.StatusCode)
	}
}
