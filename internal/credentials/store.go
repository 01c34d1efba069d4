package credentials

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// ErrNotFound indicates that no usable credential record exists and the
// operator must be prompted for a new one.
var ErrNotFound = errors.New("credential record not found")

// Credentials holds the three secrets required by the Composer API.
type Credentials struct {
	APIKey    string `json:"api_key"`
	APISecret string `json:"api_secret"`
	AccountID string `json:"account_id"`
}

// Valid reports whether all three fields are present.
func (c Credentials) Valid() bool {
	return c.APIKey != "" && c.APISecret != "" && c.AccountID != ""
}

// Store persists a single credential record as a JSON file.
//
// The record is written in plaintext. The file is created with 0600
// permissions, but anyone with access to the account can read the secrets;
// delete the file to revoke local access.
type Store struct {
	path string
}

// NewStore creates a store backed by the given file path.
func NewStore(path string) *Store {
	return &Store{path: path}
}

// Path returns the location of the persisted record.
func (s *Store) Path() string {
	return s.path
}

// Load reads the persisted record. A missing, unreadable, corrupt or
// incomplete record is reported as ErrNotFound so the caller re-captures
// rather than running with a broken secret.
func (s *Store) Load() (Credentials, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return Credentials{}, ErrNotFound
		}
		return Credentials{}, fmt.Errorf("reading credential record %s: %v: %w", s.path, err, ErrNotFound)
	}

	var creds Credentials
	if err := json.Unmarshal(data, &creds); err != nil {
		return Credentials{}, fmt.Errorf("credential record %s is corrupt (%v): %w", s.path, err, ErrNotFound)
	}
	if !creds.Valid() {
		return Credentials{}, fmt.Errorf("credential record %s is incomplete: %w", s.path, ErrNotFound)
	}

	return creds, nil
}

// Save overwrites the persisted record with the given credentials.
func (s *Store) Save(creds Credentials) error {
	if !creds.Valid() {
		return fmt.Errorf("refusing to save incomplete credentials")
	}

	if dir := filepath.Dir(s.path); dir != "." {
		if err := os.MkdirAll(dir, 0700); err != nil {
			return fmt.Errorf("failed to create credential directory: %w", err)
		}
	}

	data, err := json.MarshalIndent(creds, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode credentials: %w", err)
	}

	if err := os.WriteFile(s.path, data, 0600); err != nil {
		return fmt.Errorf("failed to write credential record: %w", err)
	}

	return nil
}

// Delete removes the persisted record. Deleting an absent record is not an
// error; this is the documented recovery path after an authentication
// failure.
func (s *Store) Delete() error {
	if err := os.Remove(s.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete credential record: %w", err)
	}
	return nil
}
