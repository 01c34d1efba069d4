package auth

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/sabarim/composerdata/internal/credentials"
)

// ErrInvalidCredentials indicates the provider rejected the stored
// credentials. This is never retried; the operator has to delete the
// credential record and re-authenticate.
var ErrInvalidCredentials = errors.New("invalid credentials")

// Session is a validated signing context derived from stored credentials.
// It is established once per process, never persisted, and safe to share
// read-only across fetches.
type Session struct {
	creds credentials.Credentials
}

// AccountID returns the account the session authenticates for.
func (s *Session) AccountID() string {
	return s.creds.AccountID
}

// Sign adds the Composer authentication headers to a request.
func (s *Session) Sign(req *http.Request) {
	req.Header.Set("Authorization", "Bearer "+s.creds.APISecret)
	req.Header.Set("x-api-key-id", s.creds.APIKey)
	req.Header.Set("x-origin", "public-api")
}

// Establish validates the credentials with a single probe request against
// the account's symphony list and returns a signing session. A 401/403
// class response yields ErrInvalidCredentials; any other failure is
// transient and safe for the caller to retry.
func Establish(ctx context.Context, creds credentials.Credentials, liveBaseURL string, httpClient *http.Client, log zerolog.Logger) (*Session, error) {
	session := &Session{creds: creds}

	url := fmt.Sprintf("%s/portfolio/accounts/%s/symphonies", liveBaseURL, creds.AccountID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create probe request: %w", err)
	}
	session.Sign(req)

	log.Debug().Str("url", url).Msg("probing credentials")
	resp, err := httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("credential probe failed: %w", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		log.Info().Str("account", creds.AccountID).Msg("credentials validated")
		return session, nil
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return nil, fmt.Errorf("%w: probe returned status %d", ErrInvalidCredentials, resp.StatusCode)
	default:
		return nil, fmt.Errorf("credential probe returned status %d", resp.StatusCode)
	}
}
