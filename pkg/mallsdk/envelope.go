package mallsdk

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
)

// Envelope is the body shape every gateway endpoint answers 2xx with.
// Code 0 means success.
type Envelope struct {
	Code int             `json:"code"`
	Data json.RawMessage `json:"data,omitempty"`
	Msg  string          `json:"msg,omitempty"`
}

// OK reports whether the envelope carries a success code.
func (e *Envelope) OK() bool { return e != nil && e.Code == 0 }

// EnvelopeError is an application-level failure: HTTP succeeded but the
// envelope code is non-zero.
type EnvelopeError struct {
	Code int
	Msg  string
}

// Error implements the error interface.
func (e *EnvelopeError) Error() string {
	if e.Msg == "" {
		return fmt.Sprintf("request failed with code %d", e.Code)
	}
	return fmt.Sprintf("request failed with code %d: %s", e.Code, e.Msg)
}

// DecodeData unmarshals the envelope payload into T. A non-zero code is
// returned as *EnvelopeError. Absent or null data yields the zero T.
func DecodeData[T any](env *Envelope) (T, error) {
	var out T
	if env == nil {
		return out, fmt.Errorf("nil envelope")
	}
	if env.Code != 0 {
		return out, &EnvelopeError{Code: env.Code, Msg: env.Msg}
	}

	data := bytes.TrimSpace(env.Data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return out, nil
	}
	if err := json.Unmarshal(data, &out); err != nil {
		return out, fmt.Errorf("failed to decode response data: %w", err)
	}
	return out, nil
}

// Call performs a pipelined request and decodes the envelope payload.
func Call[T any](ctx context.Context, c *Client, method, path string, body any) (T, error) {
	env, err := c.Do(ctx, method, path, body)
	if err != nil {
		var zero T
		return zero, err
	}
	return DecodeData[T](env)
}

// Get performs a pipelined GET.
func (c *Client) Get(ctx context.Context, path string) (*Envelope, error) {
	return c.Do(ctx, http.MethodGet, path, nil)
}

// Post performs a pipelined POST with a JSON (or form, see Do) body.
func (c *Client) Post(ctx context.Context, path string, body any) (*Envelope, error) {
	return c.Do(ctx, http.MethodPost, path, body)
}

// Put performs a pipelined PUT.
func (c *Client) Put(ctx context.Context, path string, body any) (*Envelope, error) {
	return c.Do(ctx, http.MethodPut, path, body)
}

// Patch performs a pipelined PATCH.
func (c *Client) Patch(ctx context.Context, path string, body any) (*Envelope, error) {
	return c.Do(ctx, http.MethodPatch, path, body)
}

// Delete performs a pipelined DELETE.
func (c *Client) Delete(ctx context.Context, path string) (*Envelope, error) {
	return c.Do(ctx, http.MethodDelete, path, nil)
}
