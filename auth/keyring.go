package auth

import (
	"fmt"
	"strings"
)

// Keyring maps API key hashes to roles. Secrets never touch the
// keyring: entries are configured as "sha256hex:role" pairs and lookups
// hash the presented secret first.
type Keyring struct {
	keys map[string]Role
}

// NewKeyring creates an empty keyring.
func NewKeyring() *Keyring {
	return &Keyring{keys: make(map[string]Role)}
}

// Add registers a key hash with its role.
func (k *Keyring) Add(hash string, role Role) error {
	if !role.Valid() {
		return fmt.Errorf("%w: %q", ErrUnknownRole, role)
	}
	if hash == "" {
		return fmt.Errorf("%w: empty key hash", ErrInvalidAPIKey)
	}
	k.keys[strings.ToLower(hash)] = role
	return nil
}

// AddEntry parses and registers a "hash:role" configuration entry.
func (k *Keyring) AddEntry(entry string) error {
	hash, roleStr, ok := strings.Cut(entry, ":")
	if !ok {
		return fmt.Errorf("%w: entry %q is not hash:role", ErrInvalidAPIKey, entry)
	}
	role, err := ParseRole(strings.TrimSpace(roleStr))
	if err != nil {
		return err
	}
	return k.Add(strings.TrimSpace(hash), role)
}

// Lookup resolves a presented secret to its role.
func (k *Keyring) Lookup(secret string) (Role, bool) {
	role, ok := k.keys[HashToken(secret)]
	return role, ok
}

// Len returns how many keys are registered.
func (k *Keyring) Len() int {
	return len(k.keys)
}
