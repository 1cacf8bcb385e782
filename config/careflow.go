package config

import (
	"fmt"
	"strings"

	"github.com/randalmurphal/careflow/auth"
)

// Configuration keys.
const (
	// KeyDBPath is the SQLite database path for the checkpoint store.
	KeyDBPath = "db_path"

	// KeyStore selects the checkpoint backend: "sqlite" or "redis".
	KeyStore = "store"

	// KeyRedisAddr is the Redis address when store is "redis".
	KeyRedisAddr = "redis_addr"

	// KeyRedisNamespace prefixes all Redis keys.
	KeyRedisNamespace = "redis_namespace"

	// KeyListenAddr is the HTTP server bind address.
	KeyListenAddr = "listen_addr"

	// KeyMode is the default thread mode: "interactive" or "autonomous".
	KeyMode = "mode"

	// KeyMaxRevisions is the default revision budget per thread.
	KeyMaxRevisions = "max_revisions"

	// KeyGateTimeout is how long a thread may wait at the human gate.
	KeyGateTimeout = "gate_timeout"

	// KeyReaperInterval is how often stale gates are swept.
	KeyReaperInterval = "reaper_interval"

	// KeyArtifactDir is the base directory for rendered artifacts.
	KeyArtifactDir = "artifact_dir"

	// KeyTranscriptDir is the base directory for thread transcripts.
	KeyTranscriptDir = "transcript_dir"

	// KeyModel overrides the per-stage model selection.
	KeyModel = "model"

	// KeyClaudeBinary is the path to the claude CLI binary.
	KeyClaudeBinary = "claude_binary"

	// KeyWebhookURL receives workflow notifications as JSON POSTs.
	KeyWebhookURL = "webhook_url"

	// KeySlackWebhookURL receives workflow notifications as Slack messages.
	KeySlackWebhookURL = "slack_webhook_url"

	// KeyJWTSecret signs reviewer tokens. Empty disables JWT auth.
	KeyJWTSecret = "jwt_secret"

	// KeyAPIKeyHash holds comma-separated "hash:role" keyring entries.
	// Empty together with an empty jwt_secret runs the server open.
	KeyAPIKeyHash = "api_key_hash"

	// KeyLogLevel sets the slog level: debug, info, warn, or error.
	KeyLogLevel = "log_level"
)

// Defaults returns the built-in value for every configuration key.
func Defaults() map[string]string {
	return map[string]string{
		KeyDBPath:          ".careflow/careflow.db",
		KeyStore:           "sqlite",
		KeyRedisAddr:       "localhost:6379",
		KeyRedisNamespace:  "careflow",
		KeyListenAddr:      ":8080",
		KeyMode:            "interactive",
		KeyMaxRevisions:    "3",
		KeyGateTimeout:     "24h",
		KeyReaperInterval:  "1m",
		KeyArtifactDir:     ".careflow",
		KeyTranscriptDir:   ".careflow",
		KeyModel:           "",
		KeyClaudeBinary:    "claude",
		KeyWebhookURL:      "",
		KeySlackWebhookURL: "",
		KeyJWTSecret:       "",
		KeyAPIKeyHash:      "",
		KeyLogLevel:        "info",
	}
}

// AllKeys returns every known configuration key.
func AllKeys() []string {
	defaults := Defaults()
	keys := make([]string, 0, len(defaults))
	for k := range defaults {
		keys = append(keys, k)
	}
	return keys
}

// NewCareflowResolver wires the resolver for this application:
// CAREFLOW_* environment variables over careflow.yaml in workDir over
// ~/.config/careflow/config.yaml over built-in defaults.
func NewCareflowResolver(workDir string) *Resolver {
	return NewResolver(ResolverConfig{
		EnvPrefix:       "CAREFLOW_",
		GlobalConfigDir: "careflow",
		LocalConfigName: "careflow.yaml",
		WorkDir:         workDir,
		Defaults:        Defaults(),
		ValidGlobalKeys: AllKeys(),
		ValidLocalKeys:  AllKeys(),
	})
}

// Validate checks the resolved values against what the server can
// actually run with. The first problem found is returned.
func (c *Resolved) Validate() error {
	switch c.Get(KeyStore) {
	case "sqlite", "redis":
	default:
		return fmt.Errorf("config %s: %q is not sqlite or redis", KeyStore, c.Get(KeyStore))
	}

	switch c.Get(KeyMode) {
	case "interactive", "autonomous":
	default:
		return fmt.Errorf("config %s: %q is not interactive or autonomous", KeyMode, c.Get(KeyMode))
	}

	if n, err := c.Int(KeyMaxRevisions); err != nil {
		return err
	} else if n < 1 {
		return fmt.Errorf("config %s: must be at least 1, got %d", KeyMaxRevisions, n)
	}

	for _, key := range []string{KeyGateTimeout, KeyReaperInterval} {
		d, err := c.Duration(key)
		if err != nil {
			return err
		}
		if d <= 0 {
			return fmt.Errorf("config %s: must be positive, got %s", key, d)
		}
	}

	switch c.Get(KeyLogLevel) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("config %s: %q is not debug, info, warn, or error", KeyLogLevel, c.Get(KeyLogLevel))
	}

	if secret := c.Get(KeyJWTSecret); secret != "" && len(secret) < 32 {
		return fmt.Errorf("config %s: %v", KeyJWTSecret, auth.ErrSecretTooShort)
	}

	if entries := c.Get(KeyAPIKeyHash); entries != "" {
		ring := auth.NewKeyring()
		for _, entry := range strings.Split(entries, ",") {
			if err := ring.AddEntry(strings.TrimSpace(entry)); err != nil {
				return fmt.Errorf("config %s: %w", KeyAPIKeyHash, err)
			}
		}
	}

	return nil
}

// Keyring builds the API keyring from the api_key_hash entries.
// Call Validate first; malformed entries fail here too.
func (c *Resolved) Keyring() (*auth.Keyring, error) {
	ring := auth.NewKeyring()
	entries := c.Get(KeyAPIKeyHash)
	if entries == "" {
		return ring, nil
	}
	for _, entry := range strings.Split(entries, ",") {
		if err := ring.AddEntry(strings.TrimSpace(entry)); err != nil {
			return nil, fmt.Errorf("config %s: %w", KeyAPIKeyHash, err)
		}
	}
	return ring, nil
}
