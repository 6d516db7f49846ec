package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestServiceDisabledWhenNoToken(t *testing.T) {
	svc, err := NewService("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if svc.Enabled() {
		t.Error("expected a disabled service for an empty token")
	}

	called := false
	handler := svc.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if !called {
		t.Error("expected request to pass through when auth is disabled")
	}
	if rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}
}

func TestMiddlewareRejectsMissingCredential(t *testing.T) {
	svc, err := NewService("s3cret")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	handler := svc.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("handler should not run without a credential")
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Errorf("expected 401, got %d", rec.Code)
	}
}

func TestMiddlewareAcceptsRawSharedSecret(t *testing.T) {
	svc, err := NewService("s3cret")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	called := false
	handler := svc.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer s3cret")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if !called || rec.Code != http.StatusOK {
		t.Errorf("expected the raw shared secret to authenticate, got code %d", rec.Code)
	}
}

func TestIssueSessionAndMiddlewareAcceptsIt(t *testing.T) {
	svc, err := NewService("s3cret")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	token, err := svc.IssueSession("s3cret")
	if err != nil {
		t.Fatalf("issue session failed: %v", err)
	}

	called := false
	handler := svc.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if !called || rec.Code != http.StatusOK {
		t.Errorf("expected the session token to authenticate, got code %d", rec.Code)
	}
}

func TestIssueSessionRejectsWrongCredential(t *testing.T) {
	svc, err := NewService("s3cret")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if _, err := svc.IssueSession("wrong"); err == nil {
		t.Error("expected an error for the wrong credential")
	}
}
