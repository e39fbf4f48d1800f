/*
Package mallsdk is the session-aware HTTP client for the mall API gateway.

# Overview

Every call goes through two ordered pipelines around the transport:

  - Request steps set headers, wait on the optional rate limiter and attach
    the bearer token. A token within the refresh horizon is refreshed first.
  - Response steps classify the outcome, end the session on auth failures,
    notify the user and redirect to the login route.

	client := mallsdk.NewClient("http://localhost:8080/api",
		mallsdk.WithStore(store),
		mallsdk.WithNavigator(router),
	)

	res, err := client.Login(ctx, "alice", "secret")

	orders, err := mallsdk.Call[[]Order](ctx, client, http.MethodGet, "/order/list", nil)

# Refresh

Refreshes are coordinated by a Refresher: concurrent callers that need a
fresh token share one call to the refresh endpoint and receive the same
token or the same error. A failed refresh clears the stored credentials and
redirects once. The refresh call itself is sent on the bare HTTP client so
it can never recurse into the pipelines.

Responses are never retried after a 401. Refresh is proactive only.

# Errors

Pipelined calls fail with *APIError carrying the Classification and Outcome.
Session-fatal errors match ErrSessionExpired:

	if errors.Is(err, mallsdk.ErrSessionExpired) {
		// credentials are gone; the navigator is on the login route
	}

A 2xx response whose envelope code is non-zero surfaces from DecodeData and
Call as *EnvelopeError.
*/
package mallsdk
