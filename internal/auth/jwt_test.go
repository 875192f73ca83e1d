package auth

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"
	"github.com/you/go-flightgrid/internal/config"
)

func testConfig() *config.Config {
	return &config.Config{JWTSecret: "s3cret", JWTUser: "demo", JWTPassword: "demo123"}
}

func newRouter(cfg *config.Config) http.Handler {
	r := chi.NewRouter()
	r.Post("/auth/login", LoginHandler(cfg))
	r.Group(func(r chi.Router) {
		r.Use(Middleware(cfg, nil))
		r.Get("/private", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusNoContent)
		})
	})
	return r
}

func TestLogin(t *testing.T) {
	h := newRouter(testConfig())

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/auth/login",
		strings.NewReader(`{"username":"demo","password":"demo123"}`)))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), `"token":"`)

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/auth/login",
		strings.NewReader(`{"username":"demo","password":"nope"}`)))
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/auth/login", strings.NewReader(`{`)))
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestMiddleware(t *testing.T) {
	cfg := testConfig()
	h := newRouter(cfg)
	good, err := IssueToken(cfg, "demo", time.Now())
	require.NoError(t, err)
	expired, err := IssueToken(cfg, "demo", time.Now().Add(-2*time.Hour))
	require.NoError(t, err)
	otherKey, err := IssueToken(&config.Config{JWTSecret: "other"}, "demo", time.Now())
	require.NoError(t, err)
	none, err := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.MapClaims{"sub": "demo"}).
		SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	cases := []struct {
		name   string
		header string
		query  string
		want   int
	}{
		{"header", "Bearer " + good, "", http.StatusNoContent},
		{"query", "", "?token=" + good, http.StatusNoContent},
		{"missing", "", "", http.StatusUnauthorized},
		{"not bearer", "Basic abc", "", http.StatusUnauthorized},
		{"expired", "Bearer " + expired, "", http.StatusUnauthorized},
		{"wrong key", "Bearer " + otherKey, "", http.StatusUnauthorized},
		{"alg none", "Bearer " + none, "", http.StatusUnauthorized},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/private"+tc.query, nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)
			require.Equal(t, tc.want, rec.Code)
		})
	}
}
