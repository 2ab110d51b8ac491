package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/clerk/clerk-sdk-go/v2"
	clerkhttp "github.com/clerk/clerk-sdk-go/v2/http"
	clerkuser "github.com/clerk/clerk-sdk-go/v2/user"
	"github.com/debemdeboas/archive-editor/internal/config"
	"github.com/debemdeboas/archive-editor/internal/db"
	"github.com/debemdeboas/archive-editor/internal/model"
	"github.com/rs/zerolog"
)

// ClerkAuthProvider authenticates requests with Clerk session tokens and
// mirrors Clerk users into the users table through webhooks.
type ClerkAuthProvider struct {
	db db.DB

	cookieExtractor clerkhttp.AuthorizationOption
	lookupUser      func(ctx context.Context, id string) (*clerk.User, error)
}

func NewClerkAuthProvider(clerkKey string, database db.DB) *ClerkAuthProvider {
	clerk.SetKey(clerkKey)

	return &ClerkAuthProvider{
		db: database,
		cookieExtractor: clerkhttp.AuthorizationJWTExtractor(func(r *http.Request) string {
			cookie, err := r.Cookie(config.CookieSession)
			if err != nil || cookie == nil {
				return ""
			}
			return cookie.Value
		}),
		lookupUser: clerkuser.Get,
	}
}

func (c *ClerkAuthProvider) WithHeaderAuthorization() func(http.Handler) http.Handler {
	return clerkhttp.WithHeaderAuthorization(c.cookieExtractor)
}

func (c *ClerkAuthProvider) GetUserIDFromSession(r *http.Request) (model.UserID, error) {
	claims, ok := clerk.SessionClaimsFromContext(r.Context())
	if !ok {
		return "", errors.New("failed to get session claims from context")
	}

	usr, err := c.lookupUser(r.Context(), claims.Subject)
	if err != nil {
		return "", fmt.Errorf("error fetching clerk user: %w", err)
	}
	return model.UserID(usr.ID), nil
}

func (c *ClerkAuthProvider) EnforceUserAndGetID(w http.ResponseWriter, r *http.Request) (model.UserID, error) {
	return enforceUser(w, r, c)
}

type webhookPayload struct {
	Data struct {
		clerk.User
	} `json:"data"`

	Type string `json:"type"`
}

func (c *ClerkAuthProvider) HandleWebhookUser(w http.ResponseWriter, r *http.Request) {
	l := zerolog.Ctx(r.Context())

	var payload webhookPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		l.Warn().Err(err).Msg("Error decoding webhook payload")
		http.Error(w, config.ErrInvalidBody, http.StatusBadRequest)
		return
	}

	usr := payload.Data.User
	ul := l.With().Str("type", payload.Type).Str("user_id", usr.ID).Logger()

	switch payload.Type {
	case "user.created":
		// Usernames come from the X account the user signed up with.
		if len(usr.ExternalAccounts) == 0 {
			ul.Warn().Msg("No external accounts found for user")
			http.Error(w, "No external accounts found", http.StatusBadRequest)
			return
		}
		account := usr.ExternalAccounts[0]
		if !strings.EqualFold(account.Provider, "oauth_x") {
			ul.Warn().Str("provider", account.Provider).Msg("Invalid provider for user")
			http.Error(w, "Invalid provider", http.StatusBadRequest)
			return
		}

		if _, err := c.db.Exec("INSERT INTO users (id, username) VALUES (?, ?)", usr.ID, account.Username); err != nil {
			ul.Error().Err(err).Msg("Error inserting user")
			http.Error(w, "Error saving user", http.StatusInternalServerError)
			return
		}
		ul.Info().Msg("User created")
		w.WriteHeader(http.StatusCreated)

	case "user.updated":
		ul.Debug().Msg("User updated webhook received")
		w.WriteHeader(http.StatusNoContent)

	case "user.deleted":
		if _, err := c.db.Exec("DELETE FROM users WHERE id = ?", usr.ID); err != nil {
			ul.Error().Err(err).Msg("Error deleting user")
			http.Error(w, "Error deleting user", http.StatusInternalServerError)
			return
		}
		ul.Info().Msg("User deleted")
		w.WriteHeader(http.StatusNoContent)

	default:
		http.Error(w, "Invalid event type", http.StatusBadRequest)
	}
}
