package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(UserIDFromContext(r.Context())))
	})
}

func TestVerifier_IssueAndVerifyRoundTrip(t *testing.T) {
	v := NewVerifier("test-secret")
	token, err := v.Issue("user-1", time.Hour)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}

	uid, err := v.VerifyToken(token)
	if err != nil {
		t.Fatalf("VerifyToken: %v", err)
	}
	if uid != "user-1" {
		t.Errorf("uid = %q, want %q", uid, "user-1")
	}
}

func TestVerifier_RejectsExpiredToken(t *testing.T) {
	v := NewVerifier("test-secret")
	token, _ := v.Issue("user-1", -time.Minute)

	if _, err := v.VerifyToken(token); err == nil {
		t.Fatal("expected expired token to be rejected")
	}
}

func TestVerifier_RejectsWrongSecret(t *testing.T) {
	v1 := NewVerifier("secret-a")
	v2 := NewVerifier("secret-b")

	token, _ := v1.Issue("user-1", time.Hour)
	if _, err := v2.VerifyToken(token); err == nil {
		t.Fatal("expected token signed with a different secret to be rejected")
	}
}

func TestJWTOnly_MissingToken(t *testing.T) {
	v := NewVerifier("test-secret")
	handler := JWTOnly(v)(okHandler())

	req := httptest.NewRequest(http.MethodGet, "/api/query", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusUnauthorized)
	}
}

func TestJWTOnly_ValidToken(t *testing.T) {
	v := NewVerifier("test-secret")
	token, _ := v.Issue("user-42", time.Hour)
	handler := JWTOnly(v)(okHandler())

	req := httptest.NewRequest(http.MethodGet, "/api/query", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}
	if rec.Body.String() != "user-42" {
		t.Errorf("body = %q, want %q", rec.Body.String(), "user-42")
	}
}

func TestInternalOrJWT_InternalPath(t *testing.T) {
	v := NewVerifier("test-secret")
	handler := InternalOrJWT(v, "internal-secret")(okHandler())

	req := httptest.NewRequest(http.MethodGet, "/api/query", nil)
	req.Header.Set("X-Internal-Auth", "internal-secret")
	req.Header.Set("X-User-ID", "user-7")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}
	if rec.Body.String() != "user-7" {
		t.Errorf("body = %q, want %q", rec.Body.String(), "user-7")
	}
}

func TestInternalOrJWT_WrongInternalToken(t *testing.T) {
	v := NewVerifier("test-secret")
	handler := InternalOrJWT(v, "internal-secret")(okHandler())

	req := httptest.NewRequest(http.MethodGet, "/api/query", nil)
	req.Header.Set("X-Internal-Auth", "wrong-secret")
	req.Header.Set("X-User-ID", "user-7")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusUnauthorized)
	}
}

func TestInternalOrJWT_FallsBackToJWT(t *testing.T) {
	v := NewVerifier("test-secret")
	token, _ := v.Issue("user-9", time.Hour)
	handler := InternalOrJWT(v, "internal-secret")(okHandler())

	req := httptest.NewRequest(http.MethodGet, "/api/query", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}
	if rec.Body.String() != "user-9" {
		t.Errorf("body = %q, want %q", rec.Body.String(), "user-9")
	}
}

func TestInternalOrJWT_RejectsOversizedUserID(t *testing.T) {
	v := NewVerifier("test-secret")
	handler := InternalOrJWT(v, "internal-secret")(okHandler())

	oversized := make([]byte, 300)
	for i := range oversized {
		oversized[i] = 'a'
	}

	req := httptest.NewRequest(http.MethodGet, "/api/query", nil)
	req.Header.Set("X-Internal-Auth", "internal-secret")
	req.Header.Set("X-User-ID", string(oversized))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusBadRequest)
	}
}
