package middleware

import (
	"crypto/rand"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"log/slog"
	"math/big"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/MicahParks/keyfunc/v3"
	"github.com/golang-jwt/jwt/v5"
)

// testKeyID — идентификатор ключа для тестов.
const testKeyID = "test-key"

// generateTestKey генерирует RSA ключ для тестов.
func generateTestKey(t *testing.T) *rsa.PrivateKey {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("генерация RSA ключа: %v", err)
	}
	return key
}

// generateTestToken генерирует JWT токен для тестов.
func generateTestToken(t *testing.T, key *rsa.PrivateKey, claims jwt.RegisteredClaims) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	token.Header["kid"] = testKeyID
	signed, err := token.SignedString(key)
	if err != nil {
		t.Fatalf("подпись токена: %v", err)
	}
	return signed
}

// buildJWKSetJSON строит JWKS JSON из RSA публичного ключа.
func buildJWKSetJSON(pub *rsa.PublicKey, kid string) json.RawMessage {
	nB64 := base64.RawURLEncoding.EncodeToString(pub.N.Bytes())
	eB64 := base64.RawURLEncoding.EncodeToString(big.NewInt(int64(pub.E)).Bytes())

	jwks := map[string]any{
		"keys": []map[string]any{
			{
				"kty": "RSA",
				"kid": kid,
				"use": "sig",
				"alg": "RS256",
				"n":   nB64,
				"e":   eB64,
			},
		},
	}

	data, _ := json.Marshal(jwks)
	return data
}

// newTestJWTAuth создаёт JWTAuth с RSA ключом для тестов.
func newTestJWTAuth(t *testing.T, key *rsa.PrivateKey) *JWTAuth {
	t.Helper()
	jwksJSON := buildJWKSetJSON(&key.PublicKey, testKeyID)
	kf, err := keyfunc.NewJWKSetJSON(jwksJSON)
	if err != nil {
		t.Fatalf("создание keyfunc из JWKS JSON: %v", err)
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
	return NewJWTAuthWithKeyfunc(kf, time.Minute, logger)
}

// authedRequest выполняет запрос через middleware и возвращает записанный ответ
// и идентификатор владельца, попавший в контекст.
func authedRequest(t *testing.T, auth *JWTAuth, authHeader string) (*httptest.ResponseRecorder, int64) {
	t.Helper()
	var gotUserID int64
	handler := auth.Middleware()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUserID = UserIDFromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/files", nil)
	if authHeader != "" {
		req.Header.Set("Authorization", authHeader)
	}
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec, gotUserID
}

// TestJWTAuth_ValidToken проверяет валидный JWT и попадание id владельца в контекст.
func TestJWTAuth_ValidToken(t *testing.T) {
	key := generateTestKey(t)
	auth := newTestJWTAuth(t, key)

	token := generateTestToken(t, key, jwt.RegisteredClaims{
		Subject:   "42",
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	})

	rec, userID := authedRequest(t, auth, "Bearer "+token)
	if rec.Code != http.StatusOK {
		t.Fatalf("статус = %d, ожидался 200, тело: %s", rec.Code, rec.Body.String())
	}
	if userID != 42 {
		t.Errorf("user id из контекста = %d, ожидался 42", userID)
	}
}

// TestJWTAuth_MissingHeader проверяет 401 без заголовка Authorization.
func TestJWTAuth_MissingHeader(t *testing.T) {
	auth := newTestJWTAuth(t, generateTestKey(t))

	rec, _ := authedRequest(t, auth, "")
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("статус = %d, ожидался 401", rec.Code)
	}
}

// TestJWTAuth_BadScheme проверяет 401 при неверной схеме авторизации.
func TestJWTAuth_BadScheme(t *testing.T) {
	auth := newTestJWTAuth(t, generateTestKey(t))

	rec, _ := authedRequest(t, auth, "Basic dXNlcjpwYXNz")
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("статус = %d, ожидался 401", rec.Code)
	}
}

// TestJWTAuth_ExpiredToken проверяет 401 для просроченного токена.
func TestJWTAuth_ExpiredToken(t *testing.T) {
	key := generateTestKey(t)
	// Leeway = 0, чтобы просроченный токен не проходил
	jwksJSON := buildJWKSetJSON(&key.PublicKey, testKeyID)
	kf, err := keyfunc.NewJWKSetJSON(jwksJSON)
	if err != nil {
		t.Fatalf("создание keyfunc: %v", err)
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
	auth := NewJWTAuthWithKeyfunc(kf, 0, logger)

	token := generateTestToken(t, key, jwt.RegisteredClaims{
		Subject:   "42",
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Hour)),
	})

	rec, _ := authedRequest(t, auth, "Bearer "+token)
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("статус = %d, ожидался 401", rec.Code)
	}
}

// TestJWTAuth_NonNumericSubject проверяет 401 для нечислового sub.
func TestJWTAuth_NonNumericSubject(t *testing.T) {
	key := generateTestKey(t)
	auth := newTestJWTAuth(t, key)

	token := generateTestToken(t, key, jwt.RegisteredClaims{
		Subject:   "user@example.com",
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	})

	rec, _ := authedRequest(t, auth, "Bearer "+token)
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("статус = %d, ожидался 401", rec.Code)
	}
}

// TestJWTAuth_WrongKey проверяет 401 для токена, подписанного другим ключом.
func TestJWTAuth_WrongKey(t *testing.T) {
	auth := newTestJWTAuth(t, generateTestKey(t))
	otherKey := generateTestKey(t)

	token := generateTestToken(t, otherKey, jwt.RegisteredClaims{
		Subject:   "42",
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	})

	rec, _ := authedRequest(t, auth, "Bearer "+token)
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("статус = %d, ожидался 401", rec.Code)
	}
}

// TestNormalizePath проверяет нормализацию путей для метрик.
func TestNormalizePath(t *testing.T) {
	tests := []struct {
		path string
		want string
	}{
		{"/api/v1/files", "/api/v1/files"},
		{"/api/v1/files/upload", "/api/v1/files/upload"},
		{"/api/v1/files/42", "/api/v1/files/{id}"},
		{"/api/v1/files/123456789", "/api/v1/files/{id}"},
		{"/api/v1/files/abc", "/api/v1/files/abc"},
		{"/health/live", "/health/live"},
		{"/metrics", "/metrics"},
	}

	for _, tt := range tests {
		if got := normalizePath(tt.path); got != tt.want {
			t.Errorf("normalizePath(%q) = %q, ожидалось %q", tt.path, got, tt.want)
		}
	}
}
