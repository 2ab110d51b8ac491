package auth

import (
	"net/http"

	"github.com/debemdeboas/archive-editor/internal/routes"
)

// RegisterEd25519AuthRoutes registers the challenge/verify endpoints.
func RegisterEd25519AuthRoutes(mux *http.ServeMux, provider *Ed25519AuthProvider) {
	mux.HandleFunc(routes.AuthChallenge, Ed25519ChallengeHandler(provider))
	mux.HandleFunc(routes.AuthVerify, Ed25519VerifyHandler(provider))
}
