package apiclient

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/go-resty/resty/v2"
)

var (
	// ErrUnauthorized reports that the backend rejected the session, even after a refresh.
	ErrUnauthorized = errors.New("apiclient: unauthorized")
	// ErrNotFound reports a missing remote resource.
	ErrNotFound = errors.New("apiclient: not found")
)

// APIError is a non-2xx answer from the backend.
type APIError struct {
	Status  int
	Code    string
	Message string
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("api: [%d] %s: %s", e.Status, e.Code, e.Message)
	}
	return fmt.Sprintf("api: [%d] %s", e.Status, e.Message)
}

// StatusCode exposes the upstream HTTP status.
func (e *APIError) StatusCode() int {
	return e.Status
}

func (e *APIError) Unwrap() error {
	switch e.Status {
	case http.StatusUnauthorized:
		return ErrUnauthorized
	case http.StatusNotFound:
		return ErrNotFound
	}
	return nil
}

type errorBody struct {
	Code    string `json:"code"`
	Error   string `json:"error"`
	Message string `json:"message"`
	Detail  string `json:"detail"`
}

func parseError(resp *resty.Response) error {
	apiErr := &APIError{Status: resp.StatusCode()}
	var body errorBody
	if err := json.Unmarshal(resp.Body(), &body); err == nil {
		apiErr.Code = body.Code
		for _, msg := range []string{body.Message, body.Error, body.Detail} {
			if msg != "" {
				apiErr.Message = msg
				break
			}
		}
	}
	if apiErr.Message == "" {
		apiErr.Message = http.StatusText(apiErr.Status)
	}
	return apiErr
}

// IsUnauthorized reports whether err means the user must sign in again.
func IsUnauthorized(err error) bool {
	return errors.Is(err, ErrUnauthorized)
}

// IsNotFound reports whether err is a remote 404.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsValidation reports whether the backend rejected the payload.
func IsValidation(err error) bool {
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		return false
	}
	return apiErr.Status == http.StatusBadRequest || apiErr.Status == http.StatusUnprocessableEntity
}
