package mallsdk

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"syscall"
)

// Kind is the failure taxonomy every response is sorted into.
type Kind int

const (
	KindUnknown Kind = iota
	KindNetworkUnreachable
	KindTimeout
	KindUnauthorized
	KindForbidden
	KindNotFound
	KindServerError
	KindGatewayError
)

func (k Kind) String() string {
	switch k {
	case KindNetworkUnreachable:
		return "NetworkUnreachable"
	case KindTimeout:
		return "Timeout"
	case KindUnauthorized:
		return "Unauthorized"
	case KindForbidden:
		return "Forbidden"
	case KindNotFound:
		return "NotFound"
	case KindServerError:
		return "ServerError"
	case KindGatewayError:
		return "GatewayError"
	default:
		return "Unknown"
	}
}

// Classification is a Kind plus the HTTP status it was derived from (0 for
// transport failures).
type Classification struct {
	Kind Kind
	Code int
}

func (c Classification) String() string {
	if c.Code == 0 {
		return c.Kind.String()
	}
	return fmt.Sprintf("%s(%d)", c.Kind, c.Code)
}

// ClassifyTransport sorts a failure that produced no response.
func ClassifyTransport(err error) Classification {
	if err == nil {
		return Classification{Kind: KindUnknown}
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return Classification{Kind: KindTimeout}
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return Classification{Kind: KindTimeout}
	}

	if errors.Is(err, context.Canceled) {
		return Classification{Kind: KindUnknown}
	}

	var (
		opErr  *net.OpError
		dnsErr *net.DNSError
	)
	switch {
	case errors.As(err, &dnsErr),
		errors.As(err, &opErr),
		errors.Is(err, syscall.ECONNREFUSED),
		errors.Is(err, syscall.ECONNRESET),
		errors.Is(err, syscall.ENETUNREACH),
		errors.Is(err, syscall.EHOSTUNREACH):
		return Classification{Kind: KindNetworkUnreachable}
	}

	return Classification{Kind: KindUnknown}
}

// ClassifyStatus sorts a non-2xx HTTP status.
func ClassifyStatus(status int) Classification {
	c := Classification{Code: status}
	switch {
	case status == http.StatusUnauthorized:
		c.Kind = KindUnauthorized
	case status == http.StatusForbidden:
		c.Kind = KindForbidden
	case status == http.StatusNotFound:
		c.Kind = KindNotFound
	case status == http.StatusBadGateway,
		status == http.StatusServiceUnavailable,
		status == http.StatusGatewayTimeout:
		c.Kind = KindGatewayError
	case status >= 500:
		c.Kind = KindServerError
	default:
		c.Kind = KindUnknown
	}
	return c
}

// authFailureMarkers are matched case-insensitively against the error text
// of a 500 response.
var authFailureMarkers = []string{"token", "expired", "unauthorized", "jwt", "authentication error"}

// LooksLikeAuthFailure reports whether a response means the session is no
// longer valid. 401 and 403 always do. Some backend services surface
// authentication failures as a plain 500, so for that status the error text
// is sniffed for auth markers. Swap this for a structured error code once
// the gateway provides one.
func LooksLikeAuthFailure(status int, text string) bool {
	switch status {
	case http.StatusUnauthorized, http.StatusForbidden:
		return true
	case http.StatusInternalServerError:
		lower := strings.ToLower(text)
		for _, marker := range authFailureMarkers {
			if strings.Contains(lower, marker) {
				return true
			}
		}
	}
	return false
}

// User-facing messages.
const (
	MsgTimeout            = "Request timeout. Please check your connection."
	MsgNetworkUnreachable = "Network error. Please check if the gateway is running."
	MsgConnectFailed      = "Unable to connect to server. Please try again later."
	MsgSessionExpired     = "Your session has expired. Please login again."
	MsgAuthFailed         = "Authentication failed. Please login again."
	MsgPleaseLogin        = "Please login"
	MsgAccessDenied       = "Access denied"
	MsgServerError        = "Internal server error. Please try again later."
	MsgBadGateway         = "Bad gateway. Service may be temporarily unavailable."
	MsgUnavailable        = "Service temporarily unavailable. Please try again later."
	MsgGatewayTimeout     = "Gateway timeout. Please check your connection and try again."
	MsgGeneric            = "Something went wrong..."
)

// MessageFor returns the user-facing message for a recoverable failure, or
// "" for failures that stay silent (404). serverMsg is the message the
// server supplied, used for statuses without a fixed message.
func MessageFor(c Classification, serverMsg string) string {
	if c.Code == 0 {
		switch c.Kind {
		case KindTimeout:
			return MsgTimeout
		case KindNetworkUnreachable:
			return MsgNetworkUnreachable
		default:
			return MsgConnectFailed
		}
	}

	switch c.Code {
	case http.StatusUnauthorized:
		return MsgPleaseLogin
	case http.StatusForbidden:
		return MsgAccessDenied
	case http.StatusNotFound:
		return ""
	case http.StatusInternalServerError:
		return MsgServerError
	case http.StatusBadGateway:
		return MsgBadGateway
	case http.StatusServiceUnavailable:
		return MsgUnavailable
	case http.StatusGatewayTimeout:
		return MsgGatewayTimeout
	}

	if serverMsg != "" {
		return serverMsg
	}
	return MsgGeneric
}

// sessionMessage picks the wording for a session-fatal response.
func sessionMessage(text string) string {
	if strings.Contains(strings.ToLower(text), "expired") {
		return MsgSessionExpired
	}
	return MsgAuthFailed
}
