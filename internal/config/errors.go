package config

const (
	// Database errors
	ErrInitializeDatabase = "Failed to initialize database"
	ErrInitializingPosts  = "Error initializing posts"
	ErrReloadingPosts     = "Error reloading posts"

	// Auth errors
	ErrAuthHeaderRequired     = "Authorization header required"
	ErrInvalidSignatureFormat = "Invalid signature format"
	ErrInvalidSignature       = "Invalid signature"
	ErrUnauthorized           = "Unauthorized"
	ErrForbidden              = "Forbidden"
	ErrInternalServerError    = "Internal server error"
	ErrRefreshChallenge       = "Failed to refresh challenge"

	// Session errors
	ErrSessionNotFound   = "Session not found"
	ErrPostNotFound      = "Post not found"
	ErrInvalidBody       = "Invalid request body"
	ErrInvalidSlideIndex = "Invalid slide index"
	ErrNoPendingConfirm  = "No pending confirmation"
	ErrSessionParam      = "Session parameter required"
	ErrStreamUnsupported = "Streaming unsupported"
)
