package mallsdk

import (
	"context"
	"errors"
	"net/http"

	"github.com/wh01sJake/mall-cloud/pkg/slogx"
)

// Exchange is one request and what came back. Response steps read and
// amend it in order.
type Exchange struct {
	Request *http.Request

	// Response is nil when the transport failed; Err then holds the cause.
	Response *http.Response
	Body     []byte
	Err      error

	Class         Classification
	Outcome       Outcome
	ServerMessage string

	// Message is the notification text; Silent suppresses it.
	Message string
	Silent  bool

	// Redirect is set when the session ended and the user must log in.
	Redirect bool
}

// ResponseStep inspects or amends an exchange. Returning an error aborts the
// remaining steps and fails the call with it.
type ResponseStep func(ex *Exchange) error

// Status returns the HTTP status or 0.
func (ex *Exchange) Status() int {
	if ex.Response == nil {
		return 0
	}
	return ex.Response.StatusCode
}

func (ex *Exchange) apiError() *APIError {
	return &APIError{
		Method:        ex.Request.Method,
		Path:          ex.Request.URL.Path,
		Status:        ex.Status(),
		Class:         ex.Class,
		Outcome:       ex.Outcome,
		Message:       ex.Message,
		ServerMessage: ex.ServerMessage,
		Body:          ex.Body,
		Err:           ex.Err,
	}
}

// classifyStep applies the classification rules in order: transport
// failure, session-fatal status, then the status table.
func classifyStep(ex *Exchange) error {
	if ex.Response == nil {
		ex.Class = ClassifyTransport(ex.Err)
		ex.Outcome = OutcomeRecoverable
		ex.Message = MessageFor(ex.Class, "")
		// The caller gave up; nothing to tell the user.
		if errors.Is(ex.Err, context.Canceled) {
			ex.Silent = true
		}
		return nil
	}

	status := ex.Response.StatusCode
	if status >= 200 && status < 300 {
		ex.Class = Classification{Code: status}
		ex.Outcome = OutcomeSuccess
		return nil
	}

	message, text := parseErrorBody(ex.Body)
	ex.ServerMessage = message

	if LooksLikeAuthFailure(status, text) {
		ex.Class = ClassifyStatus(status)
		if ex.Class.Kind == KindServerError {
			ex.Class.Kind = KindUnauthorized
		}
		ex.Outcome = OutcomeFatalSession
		ex.Message = sessionMessage(text)
		ex.Redirect = true
		return nil
	}

	ex.Class = ClassifyStatus(status)
	ex.Outcome = OutcomeRecoverable
	ex.Message = MessageFor(ex.Class, message)
	if ex.Class.Kind == KindNotFound {
		ex.Silent = true
	}
	return nil
}

// sessionStep clears stored credentials once the session has ended.
func (c *Client) sessionStep(ex *Exchange) error {
	if ex.Outcome != OutcomeFatalSession {
		return nil
	}

	ctx := context.WithoutCancel(ex.Request.Context())
	logger := slogx.FromContext(ctx)
	logger.Warn("session ended by server",
		"path", ex.Request.URL.Path,
		"status", ex.Status(),
		"class", ex.Class.String(),
	)
	if err := c.store.Clear(ctx); err != nil {
		logger.Error("failed to clear credentials", "error", err)
	}
	return nil
}

func (c *Client) notifyStep(ex *Exchange) error {
	if ex.Outcome == OutcomeSuccess || ex.Silent || ex.Message == "" {
		return nil
	}

	level := LevelError
	if ex.Outcome == OutcomeFatalSession {
		level = LevelWarning
	}
	c.notifier.Notify(Notification{Level: level, Message: ex.Message, Class: ex.Class})
	return nil
}

func (c *Client) redirectStep(ex *Exchange) error {
	if ex.Redirect {
		c.redirectToLogin()
	}
	return nil
}
