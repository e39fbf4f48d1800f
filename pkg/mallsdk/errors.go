package mallsdk

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// ============================================================================
// Sentinel Errors
// ============================================================================

var (
	// ErrNoRefreshToken is returned by a refresh attempt when no refresh token
	// is stored. No side effects occur.
	ErrNoRefreshToken = errors.New("mallsdk: no refresh token available")

	// ErrRefreshFailed matches every *RefreshError.
	ErrRefreshFailed = errors.New("mallsdk: token refresh failed")

	// ErrSessionExpired matches every *APIError whose outcome ended the
	// session.
	ErrSessionExpired = errors.New("mallsdk: session expired")

	// ErrLoginFailed is returned when the gateway accepted a login request
	// but issued no token.
	ErrLoginFailed = errors.New("mallsdk: login failed")
)

// ============================================================================
// Outcome
// ============================================================================

// Outcome is what a response means for the caller and the session.
type Outcome int

const (
	// OutcomeSuccess passes the response through.
	OutcomeSuccess Outcome = iota
	// OutcomeRecoverable rejects the call but leaves the session intact.
	OutcomeRecoverable
	// OutcomeFatalSession rejects the call, clears credentials and
	// redirects to the login route.
	OutcomeFatalSession
)

func (o Outcome) String() string {
	switch o {
	case OutcomeSuccess:
		return "success"
	case OutcomeRecoverable:
		return "recoverable"
	case OutcomeFatalSession:
		return "fatal_session"
	default:
		return "unknown"
	}
}

// ============================================================================
// APIError
// ============================================================================

// APIError is the rejection every pipelined call fails with once a response
// (or the lack of one) has been classified.
type APIError struct {
	Method string
	Path   string

	// Status is the HTTP status, 0 when no response arrived.
	Status int

	Class   Classification
	Outcome Outcome

	// Message is the user-facing text, "" for silent failures.
	Message string

	// ServerMessage is the message field of the response body, if any.
	ServerMessage string

	// Body is the raw response body.
	Body []byte

	// Err is the transport error when no response arrived.
	Err error
}

// Error implements the error interface.
func (e *APIError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s %s: %s", e.Method, e.Path, e.Class)
	if e.ServerMessage != "" {
		fmt.Fprintf(&b, ": %s", e.ServerMessage)
	}
	if e.Err != nil {
		fmt.Fprintf(&b, ": %v", e.Err)
	}
	return b.String()
}

// Unwrap exposes the underlying transport error.
func (e *APIError) Unwrap() error { return e.Err }

// Is makes session-fatal errors match ErrSessionExpired.
func (e *APIError) Is(target error) bool {
	return target == ErrSessionExpired && e.Outcome == OutcomeFatalSession
}

// AsAPIError unwraps err into an *APIError.
func AsAPIError(err error) (*APIError, bool) {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr, true
	}
	return nil, false
}

// ============================================================================
// RefreshError
// ============================================================================

// RefreshError describes a failed call to the refresh endpoint.
type RefreshError struct {
	// Status is the HTTP status, 0 when no response arrived.
	Status int
	// Code and Msg come from the envelope when one was returned.
	Code int
	Msg  string
	Err  error
}

// Error implements the error interface.
func (e *RefreshError) Error() string {
	switch {
	case e.Err != nil:
		return fmt.Sprintf("token refresh failed: %v", e.Err)
	case e.Msg != "":
		return fmt.Sprintf("token refresh failed: status=%d code=%d: %s", e.Status, e.Code, e.Msg)
	default:
		return fmt.Sprintf("token refresh failed: status=%d code=%d", e.Status, e.Code)
	}
}

func (e *RefreshError) Unwrap() error { return e.Err }

func (e *RefreshError) Is(target error) bool { return target == ErrRefreshFailed }

// ============================================================================
// Error Body Parsing
// ============================================================================

// errorBody is the union of the error shapes the gateway and its services
// produce.
type errorBody struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Msg     string `json:"msg"`
}

// parseErrorBody returns the server-supplied message and the text that
// auth-failure detection inspects. Non-JSON bodies are inspected raw.
func parseErrorBody(body []byte) (message, text string) {
	var eb errorBody
	if err := json.Unmarshal(body, &eb); err != nil {
		return "", string(body)
	}

	for _, m := range []string{eb.Message, eb.Msg, eb.Error} {
		if m != "" {
			message = m
			break
		}
	}

	text = strings.Join([]string{eb.Error, eb.Message, eb.Msg}, " ")
	if strings.TrimSpace(text) == "" {
		text = string(body)
	}
	return message, text
}
