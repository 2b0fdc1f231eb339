package remote

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrAuthMissing means no bearer token is available for an
	// authenticated call. The caller has to log in again.
	ErrAuthMissing = errors.New("no auth token available")
	// ErrUnauthorized is matched by APIErrors with status 401.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrUnreachable wraps transport failures.
	ErrUnreachable = errors.New("remote service unreachable")
)

// OfflineMessage is the message of the synthesized response the cache layer
// returns when neither the network nor the cache can answer.
const OfflineMessage = "offline"

// APIError is a non-2xx answer or an envelope with error set.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("HTTP %d: %s", e.Status, http.StatusText(e.Status))
	}
	return fmt.Sprintf("HTTP %d: %s", e.Status, e.Message)
}

// Is lets errors.Is(err, ErrUnauthorized) match 401 responses.
func (e *APIError) Is(target error) bool {
	return target == ErrUnauthorized && e.Status == http.StatusUnauthorized
}

// Offline reports whether the error is the cache layer's synthesized
// offline answer rather than a real server response.
func (e *APIError) Offline() bool {
	return e.Status == http.StatusServiceUnavailable && e.Message == OfflineMessage
}

// IsOffline reports whether err means the service could not be reached,
// either at the transport or through the cache layer's offline answer.
func IsOffline(err error) bool {
	if errors.Is(err, ErrUnreachable) {
		return true
	}
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Offline()
}
