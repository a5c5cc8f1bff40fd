package auth

import (
	"errors"
	"net/http"
)

// Error taxonomy for login, session and authorization failures.
// Wrap these with fmt.Errorf("...: %w", Err...) and classify with errors.Is.
var (
	ErrConfiguration             = errors.New("identity provider is not configured")
	ErrInvalidSession            = errors.New("no login in progress, please sign in again")
	ErrAuthenticationFailed      = errors.New("authentication failed, please sign in again")
	ErrUnauthenticated           = errors.New("authentication required")
	ErrForbidden                 = errors.New("insufficient permissions")
	ErrPrivilegeEscalationDenied = errors.New("role assignment not permitted")
	ErrNotFound                  = errors.New("not found")
	ErrInvalidRole               = errors.New("invalid role")
)

var classified = []struct {
	err    error
	status int
}{
	{ErrConfiguration, http.StatusInternalServerError},
	{ErrInvalidSession, http.StatusBadRequest},
	{ErrAuthenticationFailed, http.StatusInternalServerError},
	{ErrUnauthenticated, http.StatusUnauthorized},
	{ErrPrivilegeEscalationDenied, http.StatusForbidden},
	{ErrForbidden, http.StatusForbidden},
	{ErrNotFound, http.StatusNotFound},
	{ErrInvalidRole, http.StatusBadRequest},
}

func classify(err error) (error, int) {
	for _, c := range classified {
		if errors.Is(err, c.err) {
			return c.err, c.status
		}
	}
	return nil, http.StatusInternalServerError
}

// HTTPStatus maps err onto the status code returned to the client.
// Unclassified errors are 500.
func HTTPStatus(err error) int {
	_, status := classify(err)
	return status
}

// PublicMessage returns text that is safe to show to the client.
// Wrapped detail is never included.
func PublicMessage(err error) string {
	sentinel, _ := classify(err)
	if sentinel == nil {
		return "internal server error"
	}
	return sentinel.Error()
}
