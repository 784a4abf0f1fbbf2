package middleware

import (
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	"github.com/wolfman30/clinic-booking/internal/tenancy"
)

// StaffClaims are the portal token claims. Subject is the staff user id.
type StaffClaims struct {
	ClinicID string `json:"clinic_id"`
	DoctorID string `json:"doctor_id,omitempty"`
	Role     string `json:"role"`
	jwt.RegisteredClaims
}

// StaffJWT enforces an HMAC-signed staff token and puts the staff scope on
// the request context.
func StaffJWT(secret string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if secret == "" {
				http.Error(w, "staff auth disabled", http.StatusUnauthorized)
				return
			}
			auth := r.Header.Get("Authorization")
			if auth == "" || !strings.HasPrefix(auth, "Bearer ") {
				http.Error(w, "missing authorization header", http.StatusUnauthorized)
				return
			}
			tokenString := strings.TrimPrefix(auth, "Bearer ")
			claims := StaffClaims{}
			token, err := jwt.ParseWithClaims(tokenString, &claims, func(token *jwt.Token) (any, error) {
				if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
					return nil, jwt.ErrSignatureInvalid
				}
				return []byte(secret), nil
			}, jwt.WithExpirationRequired())
			if err != nil || !token.Valid {
				http.Error(w, "invalid token", http.StatusUnauthorized)
				return
			}
			if strings.TrimSpace(claims.ClinicID) == "" {
				http.Error(w, "token has no clinic", http.StatusForbidden)
				return
			}
			ctx := tenancy.WithStaff(r.Context(), tenancy.Staff{
				UserID:   claims.Subject,
				ClinicID: claims.ClinicID,
				DoctorID: claims.DoctorID,
				Role:     claims.Role,
			})
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
