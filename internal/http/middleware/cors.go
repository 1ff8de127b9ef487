package middleware

import (
	"net/http"
	"strings"
)

const (
	corsAllowedHeaders = "Authorization, Content-Type, X-Line-ID-Token, X-Line-User-Id, X-Request-ID"
	corsAllowedMethods = "GET, POST, PUT, PATCH, DELETE, OPTIONS"
)

// originPolicy matches exact origins, "*" and single-label wildcards such as
// "https://*.salon.example" (LIFF and admin console hosts).
type originPolicy struct {
	any      bool
	exact    map[string]struct{}
	suffixes []string // "https://" + ".salon.example" pairs, scheme first
}

func newOriginPolicy(origins []string) originPolicy {
	p := originPolicy{exact: map[string]struct{}{}}
	for _, origin := range origins {
		origin = strings.TrimRight(strings.TrimSpace(origin), "/")
		switch {
		case origin == "":
		case origin == "*":
			p.any = true
		case strings.Contains(origin, "://*."):
			scheme, host, _ := strings.Cut(origin, "://*")
			p.suffixes = append(p.suffixes, scheme+"://", host)
		default:
			p.exact[origin] = struct{}{}
		}
	}
	return p
}

func (p originPolicy) allows(origin string) bool {
	if origin == "" {
		return false
	}
	if p.any {
		return true
	}
	if _, ok := p.exact[origin]; ok {
		return true
	}
	for i := 0; i+1 < len(p.suffixes); i += 2 {
		scheme, suffix := p.suffixes[i], p.suffixes[i+1]
		rest, ok := strings.CutPrefix(origin, scheme)
		if !ok || !strings.HasSuffix(rest, suffix) {
			continue
		}
		label := strings.TrimSuffix(rest, suffix)
		if label != "" && !strings.ContainsAny(label, ".:/") {
			return true
		}
	}
	return false
}

// CORS echoes allowed origins back and answers preflight requests. A
// preflight from an origin that is not allowed is rejected with 403.
func CORS(allowedOrigins []string) func(http.Handler) http.Handler {
	policy := newOriginPolicy(allowedOrigins)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := strings.TrimSpace(r.Header.Get("Origin"))
			allowed := policy.allows(origin)
			if allowed {
				h := w.Header()
				h.Set("Access-Control-Allow-Origin", origin)
				h.Add("Vary", "Origin")
				h.Set("Access-Control-Allow-Headers", corsAllowedHeaders)
				h.Set("Access-Control-Allow-Methods", corsAllowedMethods)
				h.Set("Access-Control-Expose-Headers", "X-Request-ID")
				h.Set("Access-Control-Max-Age", "600")
			}

			if r.Method == http.MethodOptions && origin != "" && r.Header.Get("Access-Control-Request-Method") != "" {
				if !allowed {
					w.WriteHeader(http.StatusForbidden)
					return
				}
				w.WriteHeader(http.StatusNoContent)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// OriginMatcher exposes the CORS origin rules, for websocket upgrades.
func OriginMatcher(origins []string) func(origin string) bool {
	return newOriginPolicy(origins).allows
}
