package gateway

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
)

var (
	ErrConnectivity    = errors.New("network unreachable")
	ErrUnauthorized    = errors.New("unauthorized")
	ErrForbidden       = errors.New("permission denied")
	ErrNotFound        = errors.New("resource not found")
	ErrConflict        = errors.New("resource already exists")
	ErrBadRequest      = errors.New("invalid request")
	ErrServer          = errors.New("server error")
	ErrRequest         = errors.New("request rejected")
	ErrRefreshFailed   = errors.New("access token refresh failed")
	ErrInvalidResponse = errors.New("invalid response body")
)

// APIError is a rejection reported by the backend. It unwraps to one of the
// category sentinels so callers can match with errors.Is.
type APIError struct {
	Status  int
	Code    string
	Message string
	Details json.RawMessage
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("api error %d %s: %s", e.Status, e.Code, e.Message)
	}
	return fmt.Sprintf("api error %d: %s", e.Status, e.Message)
}

func (e *APIError) Unwrap() error {
	if e.Status >= http.StatusBadRequest {
		return categoryForStatus(e.Status)
	}
	if category, ok := codeCategories[e.Code]; ok {
		return category
	}
	return ErrRequest
}

func categoryForStatus(status int) error {
	switch {
	case status == http.StatusBadRequest:
		return ErrBadRequest
	case status == http.StatusUnauthorized:
		return ErrUnauthorized
	case status == http.StatusForbidden:
		return ErrForbidden
	case status == http.StatusNotFound:
		return ErrNotFound
	case status == http.StatusConflict:
		return ErrConflict
	case status >= http.StatusInternalServerError:
		return ErrServer
	default:
		return ErrRequest
	}
}

var codeCategories = map[string]error{
	"INVALID_PARAMS":           ErrBadRequest,
	"UNAUTHORIZED":             ErrUnauthorized,
	"LOGIN_EXPIRED":            ErrUnauthorized,
	"INVALID_TOKEN":            ErrUnauthorized,
	"FORBIDDEN":                ErrForbidden,
	"NO_PERMISSION":            ErrForbidden,
	"NO_SERVER_PERMISSION":     ErrForbidden,
	"INVALID_ORIGIN":           ErrForbidden,
	"NOT_FOUND":                ErrNotFound,
	"USER_NOT_FOUND":           ErrNotFound,
	"FRIEND_REQUEST_NOT_FOUND": ErrNotFound,
	"SERVER_NOT_FOUND":         ErrNotFound,
	"CHANNEL_NOT_FOUND":        ErrNotFound,
	"ROOM_NOT_FOUND":           ErrNotFound,
	"USERNAME_EXISTS":          ErrConflict,
	"EMAIL_EXISTS":             ErrConflict,
	"FRIEND_EXISTS":            ErrConflict,
	"FRIEND_REQUEST_EXISTS":    ErrConflict,
	"INTERNAL_SERVER":          ErrServer,
}

// isUnauthorized reports a 401 response or the synthetic 401 raised for an
// expired token. Envelope codes alone never start a refresh.
func isUnauthorized(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Status == http.StatusUnauthorized
}
