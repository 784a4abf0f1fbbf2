package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wolfman30/clinic-booking/internal/tenancy"
)

func signStaffToken(t *testing.T, secret string, claims StaffClaims) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(secret))
	require.NoError(t, err)
	return signed
}

func validClaims() StaffClaims {
	return StaffClaims{
		ClinicID: "clinic-1",
		DoctorID: "doc-1",
		Role:     "doctor",
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "user-1",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(5 * time.Minute)),
		},
	}
}

func TestStaffJWTRejects(t *testing.T) {
	expired := validClaims()
	expired.ExpiresAt = jwt.NewNumericDate(time.Now().Add(-time.Minute))
	noExpiry := validClaims()
	noExpiry.ExpiresAt = nil
	noClinic := validClaims()
	noClinic.ClinicID = ""

	tests := []struct {
		name   string
		secret string
		header string
		want   int
	}{
		{"auth disabled", "", "Bearer x", http.StatusUnauthorized},
		{"missing header", "secret", "", http.StatusUnauthorized},
		{"not bearer", "secret", "Basic abc", http.StatusUnauthorized},
		{"wrong key", "secret", "Bearer " + signStaffToken(t, "other", validClaims()), http.StatusUnauthorized},
		{"expired", "secret", "Bearer " + signStaffToken(t, "secret", expired), http.StatusUnauthorized},
		{"no expiry", "secret", "Bearer " + signStaffToken(t, "secret", noExpiry), http.StatusUnauthorized},
		{"no clinic", "secret", "Bearer " + signStaffToken(t, "secret", noClinic), http.StatusForbidden},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/portal/appointments", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			StaffJWT(tt.secret)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				t.Fatal("handler must not run")
			})).ServeHTTP(rec, req)
			assert.Equal(t, tt.want, rec.Code)
		})
	}
}

func TestStaffJWTSetsScope(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/portal/appointments", nil)
	req.Header.Set("Authorization", "Bearer "+signStaffToken(t, "secret", validClaims()))
	rec := httptest.NewRecorder()

	var got tenancy.Staff
	StaffJWT("secret")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var ok bool
		got, ok = tenancy.StaffFromContext(r.Context())
		require.True(t, ok)
		w.WriteHeader(http.StatusOK)
	})).ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, tenancy.Staff{UserID: "user-1", ClinicID: "clinic-1", DoctorID: "doc-1", Role: "doctor"}, got)
}
