package callback

import (
	"net/http"

	"github.com/transmitsecurity/bindid-go/oidc"
)

// SuccessResponseFunc is used by callback handlers to create a http
// response when the authentication flow completes.  The result carries the
// resolved user, subject identity and verified claims; the function should
// use the http.ResponseWriter to send back whatever content (headers,
// html, a redirect to the application) it wishes.
type SuccessResponseFunc func(result *oidc.Result, w http.ResponseWriter, req *http.Request)

// ErrorResponseFunc is used by callback handlers to create a http response
// when the authentication flow fails.  The error maps to an opaque code
// and message via oidc.ErrorCode and oidc.ErrorMessage; implementations
// must not surface internal error detail to the browser.
type ErrorResponseFunc func(e error, w http.ResponseWriter, req *http.Request)

// RedirectOnError returns an ErrorResponseFunc that sends the browser back
// to the login entry point with the opaque error code and a short message
// appended as query parameters.
func RedirectOnError(loginURL string) ErrorResponseFunc {
	return func(e error, w http.ResponseWriter, req *http.Request) {
		http.Redirect(w, req, oidc.ErrorRedirectURL(loginURL, e), http.StatusFound)
	}
}
