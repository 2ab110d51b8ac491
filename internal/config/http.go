package config

const (
	HCType        = "Content-Type"
	HCacheControl = "Cache-Control"

	CTypePlain       = "text/plain"
	CTypeJSON        = "application/json"
	CTypeEventStream = "text/event-stream"
)

const (
	HTTPErrMethodNotAllowed = "Method not allowed"
)

const (
	CookieAuthToken = "auth_token"
	CookieSession   = "__session"
)
