package auth

import (
	"context"
	"errors"
	"net/http"

	"github.com/debemdeboas/archive-editor/internal/config"
	"github.com/debemdeboas/archive-editor/internal/model"
	"github.com/rs/zerolog"
)

var ErrNoUser = errors.New("no user ID in context")

type ContextKey string

const ContextKeyUserID ContextKey = "userID"

func ContextWithUserID(ctx context.Context, userID model.UserID) context.Context {
	return context.WithValue(ctx, ContextKeyUserID, userID)
}

func UserIDFromContext(ctx context.Context) (model.UserID, bool) {
	userID, ok := ctx.Value(ContextKeyUserID).(model.UserID)
	return userID, ok && userID != ""
}

// userFromContext is shared by providers that resolve the user in their
// middleware.
func userFromContext(r *http.Request) (model.UserID, error) {
	userID, ok := UserIDFromContext(r.Context())
	if !ok {
		return "", ErrNoUser
	}
	return userID, nil
}

func enforceUser(w http.ResponseWriter, r *http.Request, p AuthProvider) (model.UserID, error) {
	userID, err := p.GetUserIDFromSession(r)
	if err != nil {
		zerolog.Ctx(r.Context()).Warn().Err(err).Str("path", r.URL.Path).Msg("Unauthorized access attempt")
		http.Error(w, config.ErrUnauthorized, http.StatusUnauthorized)
		return "", err
	}
	return userID, nil
}

// StaticAuthProvider treats every request as coming from one user. It is
// used when authentication is disabled.
type StaticAuthProvider struct {
	UserID model.UserID
}

func (p StaticAuthProvider) WithHeaderAuthorization() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			next.ServeHTTP(w, r.WithContext(ContextWithUserID(r.Context(), p.UserID)))
		})
	}
}

func (p StaticAuthProvider) GetUserIDFromSession(r *http.Request) (model.UserID, error) {
	return userFromContext(r)
}

func (p StaticAuthProvider) EnforceUserAndGetID(w http.ResponseWriter, r *http.Request) (model.UserID, error) {
	return enforceUser(w, r, p)
}

func (p StaticAuthProvider) HandleWebhookUser(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
}
