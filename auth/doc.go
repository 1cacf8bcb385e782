// Package auth provides bearer authentication for the exercise API.
//
// Callers authenticate with either a static API key or a short-lived
// JWT, both carrying one of two roles: reviewers may start and resume
// threads, observers may only read. When neither keys nor a JWT secret
// are configured the server runs open, which is intended for local
// development only.
//
// # API Keys
//
// Generate a key, record its hash with a role, and hand the secret to
// the caller:
//
//	key, err := auth.GenerateAPIKey(auth.APIKeyConfig{})
//	// key.Secret: "ck_aBc123..." (shown once)
//	// key.Hash:   stored in the keyring
//
//	ring := auth.NewKeyring()
//	ring.Add(key.Hash, auth.RoleReviewer)
//
//	role, ok := ring.Lookup(presentedSecret)
//
// Keyring entries load from configuration as "hash:role" pairs via
// AddEntry.
//
// # Reviewer Tokens
//
// Short-lived tokens carry the role as a claim:
//
//	cfg := auth.JWTConfig{
//	    Secret: []byte("your-32-byte-or-longer-secret-key"),
//	    Issuer: "careflow",
//	}
//
//	token, err := auth.GenerateReviewerToken(cfg, "dr-lopez", auth.RoleReviewer)
//	claims, err := auth.ValidateReviewerToken(cfg, token)
//	// claims.Subject identifies the reviewer in transcripts
//
// Custom claim types can embed BaseClaims and use the generic
// GenerateAccessTokenWithClaims / ValidateAccessTokenAs pair.
package auth
