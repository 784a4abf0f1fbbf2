package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCORS(t *testing.T) {
	const (
		site   = "https://rdv.example.ma"
		portal = "https://portal.example.ma"
	)
	policy := CORSPolicy{PublicOrigins: []string{site, " "}, PortalOrigins: []string{portal + "/"}}

	tests := []struct {
		name        string
		policy      CORSPolicy
		method      string
		path        string
		origin      string
		preflight   bool
		wantOrigin  string
		wantMethods string
		wantStatus  int
		wantHandler bool
	}{
		{"site on public api", policy, http.MethodPost, "/bookings", site, false, site, "GET, POST, OPTIONS", http.StatusOK, true},
		{"portal on public api", policy, http.MethodGet, "/doctors", portal, false, portal, "GET, POST, OPTIONS", http.StatusOK, true},
		{"portal on portal api", policy, http.MethodGet, "/portal/appointments", portal, false, portal, "GET, POST, PUT, PATCH, DELETE, OPTIONS", http.StatusOK, true},
		{"site on portal api", policy, http.MethodGet, "/portal/appointments", site, false, "", "", http.StatusOK, true},
		{"site preflight to portal", policy, http.MethodOptions, "/portal/appointments", site, true, "", "", http.StatusForbidden, false},
		{"portal preflight", policy, http.MethodOptions, "/portal/doctors/doc-1/blocked", portal, true, portal, "GET, POST, PUT, PATCH, DELETE, OPTIONS", http.StatusNoContent, false},
		{"unknown origin", policy, http.MethodGet, "/bookings", "https://evil.example", false, "", "", http.StatusOK, true},
		{"public wildcard", CORSPolicy{PublicOrigins: []string{" * "}}, http.MethodPost, "/bookings", "https://any.example", false, "https://any.example", "GET, POST, OPTIONS", http.StatusOK, true},
		{"wildcard never opens the portal", CORSPolicy{PublicOrigins: []string{"*"}, PortalOrigins: []string{"*"}}, http.MethodGet, "/portal/appointments", "https://any.example", false, "", "", http.StatusOK, true},
		{"no origin", policy, http.MethodGet, "/bookings", "", false, "", "", http.StatusOK, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			called := false
			next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				called = true
				w.WriteHeader(http.StatusOK)
			})
			req := httptest.NewRequest(tt.method, tt.path, nil)
			if tt.origin != "" {
				req.Header.Set("Origin", tt.origin)
			}
			if tt.preflight {
				req.Header.Set("Access-Control-Request-Method", http.MethodPost)
			}
			rec := httptest.NewRecorder()
			CORS(tt.policy)(next).ServeHTTP(rec, req)

			assert.Equal(t, tt.wantHandler, called)
			assert.Equal(t, tt.wantStatus, rec.Code)
			assert.Equal(t, tt.wantOrigin, rec.Header().Get("Access-Control-Allow-Origin"))
			assert.Equal(t, tt.wantMethods, rec.Header().Get("Access-Control-Allow-Methods"))
			if tt.origin != "" {
				assert.Equal(t, "Origin", rec.Header().Get("Vary"))
			}
		})
	}
}

func TestCORSPublicSurfaceOmitsAuthorization(t *testing.T) {
	policy := CORSPolicy{PublicOrigins: []string{"https://rdv.example.ma"}, PortalOrigins: []string{"https://portal.example.ma"}}
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {})

	req := httptest.NewRequest(http.MethodGet, "/doctors", nil)
	req.Header.Set("Origin", "https://rdv.example.ma")
	rec := httptest.NewRecorder()
	CORS(policy)(next).ServeHTTP(rec, req)
	assert.NotContains(t, rec.Header().Get("Access-Control-Allow-Headers"), "Authorization")

	req = httptest.NewRequest(http.MethodGet, "/portal/directory/clinic", nil)
	req.Header.Set("Origin", "https://portal.example.ma")
	rec = httptest.NewRecorder()
	CORS(policy)(next).ServeHTTP(rec, req)
	assert.Contains(t, rec.Header().Get("Access-Control-Allow-Headers"), "Authorization")
	assert.Contains(t, rec.Header().Get("Access-Control-Expose-Headers"), "Retry-After")
}
