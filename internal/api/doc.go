// Package api hosts the HTTP handlers that front the Clipriver REST API.
//
// The handlers assembled by Handler coordinate request validation, session
// awareness, and response shaping while delegating persistence to
// storage.Repository implementations injected at construction time. Session
// lifecycle management comes from auth.SessionManager instances passed into
// the handler; the package does not reach for globals or singletons and
// expects callers to supply fully configured dependencies.
//
// Media files, outbound mail, and public-IP discovery are also injected so
// uploads, password-reset delivery, and login-address tracking stay testable
// without coupling the package to specific runtime wiring.
//
// Every response uses a uniform JSON envelope carrying the HTTP status, a
// success flag, and either a data payload or a message. Handlers assume the
// middleware chain in internal/server has already attached any authenticated
// user to the request context; routes that can also be reached directly fall
// back to validating the session token themselves.
package api
