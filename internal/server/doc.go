// Package server assembles the HTTP surface of the platform: it mounts the
// API handlers on a mux, wraps them in the middleware chain (security
// headers, request IDs, request logging, audit logging, metrics, and session
// authentication), and owns the http.Server lifecycle including graceful
// shutdown and optional TLS.
package server
