package patentsview

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrInvalidRange wird geliefert, wenn ein Jahresbereich angefordert wurde, der keine gültigen Grenzen hat.
	ErrInvalidRange = errors.New("ungültiger jahresbereich")
	// ErrEmptyInput wird geliefert, wenn eine ID-Abfrage ohne IDs gebaut werden soll.
	ErrEmptyInput = errors.New("keine identifier angegeben")
)

// APIError beschreibt eine Nicht-2xx-Antwort der PatentsView-API.
type APIError struct {
	StatusCode int
	Body       string
	Reason     string
}

func (e *APIError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("patentsview api status %d: %s", e.StatusCode, e.Reason)
	}
	return fmt.Sprintf("patentsview api status %d: %s", e.StatusCode, e.Body)
}

// AuthenticationError ist ein 403 der API. Falsche Zugangsdaten reparieren sich nicht von selbst.
type AuthenticationError struct {
	APIError
}

func (e *AuthenticationError) Error() string {
	return "patentsview authentifizierung fehlgeschlagen: " + e.APIError.Error()
}

func (e *AuthenticationError) Unwrap() error {
	return &e.APIError
}

// ThrottledError wird geliefert, wenn die API auch nach dem Warten auf Retry-After noch mit 429 antwortet.
type ThrottledError struct {
	RetryAfter time.Duration
	Attempts   int
}

func (e *ThrottledError) Error() string {
	return fmt.Sprintf("patentsview api drosselt weiterhin nach %d versuchen (retry-after %s)", e.Attempts, e.RetryAfter)
}
