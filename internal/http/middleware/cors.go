package middleware

import (
	"net/http"
	"strings"
)

// CORSPolicy splits browser access between the two front ends. The booking
// site only reaches the public API; the staff portal, which sends a bearer
// token, also reaches /portal. "*" is honoured for PublicOrigins only.
type CORSPolicy struct {
	PublicOrigins []string
	PortalOrigins []string
}

type originSet struct {
	any     bool
	origins map[string]struct{}
}

func newOriginSet(list []string, wildcard bool) originSet {
	set := originSet{origins: map[string]struct{}{}}
	for _, origin := range list {
		origin = strings.TrimRight(strings.TrimSpace(origin), "/")
		switch {
		case origin == "":
		case origin == "*":
			set.any = wildcard
		default:
			set.origins[origin] = struct{}{}
		}
	}
	return set
}

func (s originSet) allows(origin string) bool {
	if s.any {
		return true
	}
	_, ok := s.origins[origin]
	return ok
}

type corsSurface struct {
	methods string
	headers string
}

var (
	publicSurface = corsSurface{methods: "GET, POST, OPTIONS", headers: "Content-Type, X-Request-ID"}
	portalSurface = corsSurface{methods: "GET, POST, PUT, PATCH, DELETE, OPTIONS", headers: "Authorization, Content-Type, X-Request-ID"}
)

// CORS answers cross-origin requests per CORSPolicy. A preflight from an
// origin that may not reach the path gets 403.
func CORS(policy CORSPolicy) func(http.Handler) http.Handler {
	public := newOriginSet(policy.PublicOrigins, true)
	portal := newOriginSet(policy.PortalOrigins, false)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := strings.TrimSpace(r.Header.Get("Origin"))
			if origin == "" {
				next.ServeHTTP(w, r)
				return
			}
			w.Header().Add("Vary", "Origin")

			surface, allowed := publicSurface, public.allows(origin) || portal.allows(origin)
			if isPortalPath(r.URL.Path) {
				surface, allowed = portalSurface, portal.allows(origin)
			}
			preflight := r.Method == http.MethodOptions && r.Header.Get("Access-Control-Request-Method") != ""

			if !allowed {
				if preflight {
					w.WriteHeader(http.StatusForbidden)
					return
				}
				next.ServeHTTP(w, r)
				return
			}

			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Access-Control-Allow-Methods", surface.methods)
			w.Header().Set("Access-Control-Allow-Headers", surface.headers)
			w.Header().Set("Access-Control-Expose-Headers", "X-Request-ID, Retry-After")
			w.Header().Set("Access-Control-Max-Age", "600")
			if preflight {
				w.WriteHeader(http.StatusNoContent)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func isPortalPath(path string) bool {
	return path == "/portal" || strings.HasPrefix(path, "/portal/")
}
