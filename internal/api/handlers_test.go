package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"clipriver/internal/auth"
	"clipriver/internal/models"
	"clipriver/internal/observability/metrics"
	"clipriver/internal/storage"
)

func newTestHandler(t *testing.T) (*Handler, *storage.Storage) {
	t.Helper()

	dir := t.TempDir()
	media, err := storage.NewMediaStore(filepath.Join(dir, "media"))
	if err != nil {
		t.Fatalf("NewMediaStore: %v", err)
	}
	store, err := storage.NewStorage(filepath.Join(dir, "store.json"), storage.WithMediaStore(media))
	if err != nil {
		t.Fatalf("NewStorage: %v", err)
	}

	handler := NewHandler(store, auth.NewSessionManager(time.Hour))
	handler.Media = media
	handler.Metrics = metrics.New()
	return handler, store
}

func createTestUser(t *testing.T, store *storage.Storage, userName, email string, role models.Role) models.User {
	t.Helper()
	user, err := store.CreateUser(storage.CreateUserParams{
		UserName:  userName,
		FirstName: "Test",
		LastName:  "Account",
		Email:     email,
		Password:  "swordfish-9",
		Role:      role,
	})
	if err != nil {
		t.Fatalf("CreateUser(%s): %v", email, err)
	}
	return user
}

func jsonRequest(t *testing.T, method, target string, payload any) *http.Request {
	t.Helper()
	var body *bytes.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			t.Fatalf("marshal payload: %v", err)
		}
		body = bytes.NewReader(raw)
	} else {
		body = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, target, body)
	req.Header.Set("Content-Type", "application/json")
	return req
}

func asUser(req *http.Request, user models.User) *http.Request {
	return req.WithContext(ContextWithUser(req.Context(), user))
}

func decodeEnvelope(t *testing.T, rec *httptest.ResponseRecorder, data any) envelope {
	t.Helper()
	var env envelope
	raw := rec.Body.Bytes()
	if err := json.Unmarshal(raw, &env); err != nil {
		t.Fatalf("decode envelope: %v\n%s", err, raw)
	}
	if data != nil {
		var outer struct {
			Data json.RawMessage `json:"data"`
		}
		if err := json.Unmarshal(raw, &outer); err != nil {
			t.Fatalf("decode data wrapper: %v", err)
		}
		if err := json.Unmarshal(outer.Data, data); err != nil {
			t.Fatalf("decode data: %v\n%s", err, outer.Data)
		}
	}
	return env
}

func TestHealthReportsServices(t *testing.T) {
	handler, _ := newTestHandler(t)

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	handler.Health(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d: %s", rec.Code, http.StatusOK, rec.Body.String())
	}

	var payload struct {
		Status   string `json:"status"`
		Services []struct {
			Component string `json:"component"`
			Status    string `json:"status"`
		} `json:"services"`
	}
	env := decodeEnvelope(t, rec, &payload)
	if !env.Success {
		t.Fatal("expected success=true")
	}
	if payload.Status != "ok" {
		t.Fatalf("status = %q, want ok", payload.Status)
	}
	if len(payload.Services) != 2 {
		t.Fatalf("services = %d, want storage and sessions", len(payload.Services))
	}
}

func TestAuthenticateRequestRejectsStaleSession(t *testing.T) {
	handler, store := newTestHandler(t)
	user := createTestUser(t, store, "drift", "drift@example.com", models.RoleUser)

	token, _, err := handler.Sessions.Create(user.ID)
	if err != nil {
		t.Fatalf("Create session: %v", err)
	}

	// A password change after session issuance invalidates the token.
	time.Sleep(10 * time.Millisecond)
	if _, err := store.ChangePassword(user.ID, "swordfish-9", "new-password-1"); err != nil {
		t.Fatalf("ChangePassword: %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/v1/users/current-user", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	if _, err := handler.AuthenticateRequest(req); err == nil {
		t.Fatal("expected stale session to be rejected")
	}

	if _, ok, _ := handler.Sessions.Validate(token); ok {
		t.Fatal("expected stale session to be revoked")
	}
}

func TestAuthenticateRequestDeletedUser(t *testing.T) {
	handler, store := newTestHandler(t)
	user := createTestUser(t, store, "ghost", "ghost@example.com", models.RoleUser)

	token, _, err := handler.Sessions.Create(user.ID)
	if err != nil {
		t.Fatalf("Create session: %v", err)
	}
	if err := store.DeleteUser(user.ID); err != nil {
		t.Fatalf("DeleteUser: %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/v1/users/current-user", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	_, err = handler.AuthenticateRequest(req)
	if err == nil {
		t.Fatal("expected deleted account to be rejected")
	}
	var reqErr *RequestError
	if !errors.As(err, &reqErr) {
		t.Fatalf("err = %T, want *RequestError", err)
	}
	if reqErr.Status != http.StatusNotFound {
		t.Fatalf("status = %d, want %d", reqErr.Status, http.StatusNotFound)
	}

	if _, ok, _ := handler.Sessions.Validate(token); ok {
		t.Fatal("expected session for deleted account to be revoked")
	}
}

func TestUserFromContextRoundTrip(t *testing.T) {
	user := models.User{ID: "u1", UserName: "rook"}
	ctx := ContextWithUser(context.Background(), user)

	got, ok := UserFromContext(ctx)
	if !ok {
		t.Fatal("expected user in context")
	}
	if got.ID != "u1" {
		t.Fatalf("ID = %q, want u1", got.ID)
	}
	if _, ok := UserFromContext(context.Background()); ok {
		t.Fatal("expected no user in a bare context")
	}
}
