package github

import (
	"errors"
	"fmt"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/google/go-github/v75/github"
)

var (
	// ErrRateLimitExceeded is returned when the GitHub API rate limit is exceeded
	ErrRateLimitExceeded = errors.New("github rate limit exceeded")

	// ErrUnauthorized is returned when authentication fails
	ErrUnauthorized = errors.New("github authentication failed")

	// ErrNotFound is returned when a resource is not found
	ErrNotFound = errors.New("github resource not found")

	// ErrForbidden is returned when access is forbidden
	ErrForbidden = errors.New("github access forbidden")

	// ErrServerError is returned when GitHub returns a server error
	ErrServerError = errors.New("github server error")

	// ErrBadRequest is returned when the request is malformed
	ErrBadRequest = errors.New("github bad request")

	// ErrDanglingReference is returned when a page contains a node that
	// references an object GitHub can no longer resolve, typically a deleted
	// migration source.
	ErrDanglingReference = errors.New("github dangling reference")
)

// APIError wraps GitHub API errors with additional context
type APIError struct {
	StatusCode int
	Message    string
	Operation  string
	BaseURL    string
	Err        error
}

func (e *APIError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("github %s failed (status %d): %s", e.Operation, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("github %s failed: %s", e.Operation, e.Message)
}

func (e *APIError) Unwrap() error {
	return e.Err
}

// GraphQL error messages that GitHub returns with a 200 status
var graphQLPatterns = []struct {
	pattern string
	err     error
}{
	{"Could not resolve to a MigrationSource", ErrDanglingReference},
	{"Could not resolve to a node", ErrDanglingReference},
	{"Could not resolve to an Enterprise", ErrNotFound},
	{"Could not resolve to an Organization", ErrNotFound},
	{"Resource not accessible", ErrForbidden},
	{"secondary rate limit", ErrRateLimitExceeded},
	{"API rate limit exceeded", ErrRateLimitExceeded},
}

// WrapError converts an error from the REST or GraphQL client into an *APIError
func WrapError(err error, operation, baseURL string) error {
	if err == nil {
		return nil
	}

	var existing *APIError
	if errors.As(err, &existing) {
		return err
	}

	apiErr := &APIError{
		Message:   err.Error(),
		Operation: operation,
		BaseURL:   baseURL,
		Err:       err,
	}

	var rateErr *github.RateLimitError
	var abuseErr *github.AbuseRateLimitError
	var ghErr *github.ErrorResponse
	switch {
	case errors.As(err, &rateErr):
		apiErr.StatusCode = http.StatusForbidden
		apiErr.Err = fmt.Errorf("%w: %w", ErrRateLimitExceeded, err)
		return apiErr
	case errors.As(err, &abuseErr):
		apiErr.StatusCode = http.StatusForbidden
		apiErr.Err = fmt.Errorf("%w: %w", ErrRateLimitExceeded, err)
		return apiErr
	case errors.As(err, &ghErr) && ghErr.Response != nil:
		apiErr.StatusCode = ghErr.Response.StatusCode
		apiErr.Message = ghErr.Message
		if mapped := mapErrorType(ghErr.Response.StatusCode, ghErr.Response.Header); mapped != nil {
			apiErr.Err = fmt.Errorf("%w: %w", mapped, err)
		}
		return apiErr
	}

	// GraphQL transport errors carry the HTTP status only in their text
	if code := extractStatusCodeFromError(err); code > 0 {
		apiErr.StatusCode = code
		if mapped := mapErrorType(code, nil); mapped != nil {
			apiErr.Err = fmt.Errorf("%w: %w", mapped, err)
		}
		return apiErr
	}

	for _, p := range graphQLPatterns {
		if strings.Contains(err.Error(), p.pattern) {
			apiErr.Err = fmt.Errorf("%w: %w", p.err, err)
			return apiErr
		}
	}

	return apiErr
}

// mapErrorType maps HTTP status codes to sentinel errors
func mapErrorType(statusCode int, header http.Header) error {
	switch statusCode {
	case http.StatusUnauthorized:
		return ErrUnauthorized
	case http.StatusForbidden:
		if header != nil && header.Get("X-RateLimit-Remaining") == "0" {
			return ErrRateLimitExceeded
		}
		return ErrForbidden
	case http.StatusNotFound:
		return ErrNotFound
	case http.StatusBadRequest:
		return ErrBadRequest
	case http.StatusTooManyRequests:
		return ErrRateLimitExceeded
	case http.StatusInternalServerError,
		http.StatusBadGateway,
		http.StatusServiceUnavailable,
		http.StatusGatewayTimeout:
		return ErrServerError
	default:
		return nil
	}
}

var statusPatterns = []struct {
	pattern string
	code    int
}{
	{"500 Internal Server Error", http.StatusInternalServerError},
	{"502 Bad Gateway", http.StatusBadGateway},
	{"503 Service Unavailable", http.StatusServiceUnavailable},
	{"504 Gateway Timeout", http.StatusGatewayTimeout},
	{"429 Too Many Requests", http.StatusTooManyRequests},
	{"403 Forbidden", http.StatusForbidden},
	{"401 Unauthorized", http.StatusUnauthorized},
	{"404 Not Found", http.StatusNotFound},
	{"400 Bad Request", http.StatusBadRequest},
}

var non200Pattern = regexp.MustCompile(`non-200 OK status code: (\d{3})`)

// extractStatusCodeFromError finds an HTTP status in an error message.
// The GraphQL client reports non-200 responses only as text.
func extractStatusCodeFromError(err error) int {
	if err == nil {
		return 0
	}
	msg := err.Error()
	if m := non200Pattern.FindStringSubmatch(msg); m != nil {
		code, _ := strconv.Atoi(m[1])
		return code
	}
	for _, p := range statusPatterns {
		if strings.Contains(msg, p.pattern) {
			return p.code
		}
	}
	return 0
}

// StatusCode returns the HTTP status carried by err, or 0
func StatusCode(err error) int {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode
	}
	return 0
}

// IsRateLimitError checks if an error is a rate limit error
func IsRateLimitError(err error) bool {
	return errors.Is(err, ErrRateLimitExceeded)
}

// IsSecondaryRateLimitError checks for GitHub's abuse-detection limit
func IsSecondaryRateLimitError(err error) bool {
	if err == nil {
		return false
	}
	var abuseErr *github.AbuseRateLimitError
	if errors.As(err, &abuseErr) {
		return true
	}
	return strings.Contains(strings.ToLower(err.Error()), "secondary rate limit")
}

// IsRateLimitBlockedError checks for go-github refusing to send a request
// until the known reset time
func IsRateLimitBlockedError(err error) bool {
	var rateErr *github.RateLimitError
	return errors.As(err, &rateErr)
}

// ParseRateLimitResetTime extracts when a rate limit lifts, if err says so
func ParseRateLimitResetTime(err error) (time.Time, bool) {
	var rateErr *github.RateLimitError
	if errors.As(err, &rateErr) && !rateErr.Rate.Reset.Time.IsZero() {
		return rateErr.Rate.Reset.Time, true
	}
	var abuseErr *github.AbuseRateLimitError
	if errors.As(err, &abuseErr) && abuseErr.RetryAfter != nil {
		return time.Now().Add(*abuseErr.RetryAfter), true
	}
	return time.Time{}, false
}

// IsRetryableError checks if an error is retryable
func IsRetryableError(err error) bool {
	if errors.Is(err, ErrRateLimitExceeded) || errors.Is(err, ErrServerError) {
		return true
	}
	switch StatusCode(err) {
	case http.StatusTooManyRequests,
		http.StatusInternalServerError,
		http.StatusBadGateway,
		http.StatusServiceUnavailable,
		http.StatusGatewayTimeout:
		return true
	}
	return false
}

// IsAuthError checks if an error is an authentication error
func IsAuthError(err error) bool {
	return errors.Is(err, ErrUnauthorized)
}

// IsForbiddenError checks if the credential lacks permission
func IsForbiddenError(err error) bool {
	return errors.Is(err, ErrForbidden)
}

// IsNotFoundError checks if an error is a not found error
func IsNotFoundError(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsDanglingReferenceError checks if a page referenced an unresolvable node
func IsDanglingReferenceError(err error) bool {
	return errors.Is(err, ErrDanglingReference)
}
