// Package auth identifies the user behind a request.
package auth

import (
	"net/http"

	"github.com/debemdeboas/archive-editor/internal/model"
	"github.com/rs/zerolog"
)

var authLogger zerolog.Logger

func SetLogger(l zerolog.Logger) {
	authLogger = l
}

type AuthProvider interface {
	// WithHeaderAuthorization resolves the user of every request, if any.
	// It never rejects a request by itself.
	WithHeaderAuthorization() func(http.Handler) http.Handler

	GetUserIDFromSession(r *http.Request) (model.UserID, error)

	// EnforceUserAndGetID writes a 401 response when there is no user.
	EnforceUserAndGetID(w http.ResponseWriter, r *http.Request) (model.UserID, error)

	HandleWebhookUser(w http.ResponseWriter, r *http.Request)
}

// RequireUser wraps next so that it only runs for authenticated requests.
func RequireUser(p AuthProvider, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, err := p.EnforceUserAndGetID(w, r); err != nil {
			return
		}
		next.ServeHTTP(w, r)
	})
}
