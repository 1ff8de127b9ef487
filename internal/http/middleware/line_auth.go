package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"
)

// Headers the LIFF front end sends.
const (
	LineIDTokenHeader = "X-Line-ID-Token"
	LineUserIDHeader  = "X-Line-User-Id"
)

// ErrInvalidLineToken marks a token LINE refused. Verifiers wrap it so the
// middleware can tell a bad token from an unreachable verifier.
var ErrInvalidLineToken = errors.New("invalid LINE id token")

// LineTokenVerifier resolves a LIFF ID token to the LINE user id it was
// issued to.
type LineTokenVerifier interface {
	Verify(ctx context.Context, idToken string) (string, error)
}

// LineTokenVerifierFunc adapts a function to LineTokenVerifier.
type LineTokenVerifierFunc func(ctx context.Context, idToken string) (string, error)

func (f LineTokenVerifierFunc) Verify(ctx context.Context, idToken string) (string, error) {
	return f(ctx, idToken)
}

// LineAuth puts the caller's verified LINE user id into the request context.
// The id comes from the ID token in X-Line-ID-Token. A request without a
// token is anonymous. X-Line-User-Id is honoured only when trustUserHeader is
// set, which is meant for local development.
func LineAuth(verifier LineTokenVerifier, trustUserHeader bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			var id string
			if token := strings.TrimSpace(r.Header.Get(LineIDTokenHeader)); token != "" {
				if verifier == nil {
					http.Error(w, "LINE login not configured", http.StatusUnauthorized)
					return
				}
				sub, err := verifier.Verify(r.Context(), token)
				switch {
				case errors.Is(err, ErrInvalidLineToken):
					http.Error(w, "invalid LINE id token", http.StatusUnauthorized)
					return
				case err != nil:
					http.Error(w, "LINE login unavailable", http.StatusServiceUnavailable)
					return
				}
				id = strings.TrimSpace(sub)
			} else if trustUserHeader {
				id = strings.TrimSpace(r.Header.Get(LineUserIDHeader))
			}
			if id != "" {
				r = r.WithContext(context.WithValue(r.Context(), lineUserKey, id))
			}
			next.ServeHTTP(w, r)
		})
	}
}

// LineUserIDFromContext returns the caller's LINE user id, if any.
func LineUserIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(lineUserKey).(string)
	return id
}
