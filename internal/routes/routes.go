// Package routes defines HTTP route patterns for the application.
package routes

// Service routes
const (
	RobotsPath  = "/robots.txt"
	HealthPath  = "/healthz"
	SSEPath     = "/sse"
	WebhookUser = "/webhook/user"

	// Auth routes
	AuthChallenge = "/auth/challenge"
	AuthVerify    = "/auth/verify"
)

// Editor session API. Patterns use net/http method matching.
const (
	SessionsOpen   = "POST /api/sessions"
	SessionsList   = "GET /api/sessions"
	SessionGet     = "GET /api/sessions/{id}"
	SessionClose   = "DELETE /api/sessions/{id}"
	SessionDraft   = "PATCH /api/sessions/{id}/draft"
	SessionInput   = "POST /api/sessions/{id}/input"
	SessionSelect  = "POST /api/sessions/{id}/selection"
	SessionKey     = "POST /api/sessions/{id}/key"
	SessionPointer = "POST /api/sessions/{id}/pointer"
	SessionSave    = "POST /api/sessions/{id}/save"
	SessionPublish = "POST /api/sessions/{id}/publish"
	SessionUnpub   = "POST /api/sessions/{id}/unpublish"
	SlideAppend    = "POST /api/sessions/{id}/slides"
	SlideUpdate    = "PUT /api/sessions/{id}/slides/{index}"
	SlideDelete    = "DELETE /api/sessions/{id}/slides/{index}"
	SessionConfirm = "POST /api/sessions/{id}/confirm"
	SessionPreview = "GET /api/sessions/{id}/preview"
)
