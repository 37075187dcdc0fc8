// Package auth is the authentication and authorization core of the framework:
// multi-strategy sign-in, session issuance, and ability-based authorization.
//
// Providers:
//   - A closed set of provider kinds (credentials, oauth, email) implement the
//     Provider interface. Credentials providers verify passwords against a
//     UserStore, OAuth providers run the authorization-code dance through the
//     oauth2 subpackage, and the email provider mints single-use magic-link
//     tokens and delegates delivery to the embedding application.
//
// Sessions:
//   - SessionStrategy abstracts how the authenticated principal travels with
//     the request: an opaque identifier backed by a server-side SessionStore,
//     or a signed JWT cookie produced by the token codec. Sessions are values;
//     a refresh always issues a new session and a new cookie.
//
// Manager:
//   - Manager orchestrates CSRF validation, provider invocation, callback
//     enrichment, session issuance, remember-token rotation, and event
//     publication. Route handlers stay thin; all flow decisions live here.
//
// Authorization lives in the gate subpackage: an explicit registry of named
// abilities (role rules or per-resource policies) evaluated per request.
package auth
