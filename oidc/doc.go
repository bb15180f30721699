/*
oidc implements the BindID relying-party side of the OIDC authorization
code flow: building single-use authentication URLs, processing redirect
URI callbacks, exchanging authorization codes for tokens, verifying
id_tokens against the IdP's published signing keys, and mapping verified
subject identities to local users.

Primary types provided by the package

* AuthSession: one in-flight authentication attempt, keyed by its state
value and bound to a nonce.  Sessions live in a SessionStore, expire after
a configurable ttl, and are consumed exactly once when the callback
arrives.

* Config: the explicit configuration for the flow (client id/secret,
scope, endpoints for the production or sandbox BindID environment,
session ttl, multifactor policy, supported signing algorithms).

* Authenticator: drives the flow.  AuthURL starts a login;
Callback validates the authentication response, exchanges the code,
verifies the id_token (signature first, claims second), and hands the
verified identity to an IdentityBinder.

* IdentityBinder: the boundary to the host application, which maps
subject identities (issuer + "@" + sub) to local users and establishes
local sessions.

The callback package provides http.HandlerFunc glue for the login and
redirect URI endpoints.  The userstore package provides a sqlite-backed
IdentityBinder.
*/
package oidc
