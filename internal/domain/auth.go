package domain

// ============================================================
// Auth
// ============================================================

// LoginRequest carries the form fields of POST /auth/login.
type LoginRequest struct {
	Username string
	Password string
}

// TokenClaims is the verified content of a bearer token.
type TokenClaims struct {
	Subject string
	TokenID string
}
