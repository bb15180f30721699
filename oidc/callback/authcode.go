package callback

import (
	"net/http"

	"github.com/transmitsecurity/bindid-go/oidc"
)

// Login creates a handler for the login entry point which kicks off a
// BindID authentication: it builds a single-use authentication URL and
// redirects the browser to the IdP's authorization endpoint.  The
// ErrorResponseFunc is used when the URL cannot be built (for example when
// the session store is unavailable).
func Login(auth *oidc.Authenticator, eFn ErrorResponseFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		authURL, err := auth.AuthURL(req.Context())
		if err != nil {
			eFn(err, w, req)
			return
		}
		noCacheHeaders(w)
		http.Redirect(w, req, authURL, http.StatusFound)
	}
}

// AuthCode creates a handler for the redirect URI: it reads the code,
// state and error query parameters from the IdP's redirect and runs the
// callback flow.  The SuccessResponseFunc renders a response for a
// completed authentication; the ErrorResponseFunc for a failed one.
//
// Parameters are read from either the body or query string; form values
// take priority when both are present.
func AuthCode(auth *oidc.Authenticator, sFn SuccessResponseFunc, eFn ErrorResponseFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		cbReq := oidc.CallbackRequest{
			Code:             req.FormValue("code"),
			State:            req.FormValue("state"),
			Error:            req.FormValue("error"),
			ErrorDescription: req.FormValue("error_description"),
		}
		result, err := auth.Callback(req.Context(), cbReq)
		if err != nil {
			eFn(err, w, req)
			return
		}
		sFn(result, w, req)
	}
}

func noCacheHeaders(w http.ResponseWriter) {
	w.Header().Set("Cache-Control", "no-cache, no-store, must-revalidate")
	w.Header().Set("Pragma", "no-cache")
	w.Header().Set("Expires", "0")
}
