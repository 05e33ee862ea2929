// Package auth provides authentication for the server's two surfaces.
//
// APIKeyInterceptor(mode, header, key) guards the gRPC receiver: in apikey
// mode a missing or wrong key fails with codes.Unauthenticated, every other
// mode passes through.
//
// HTTPMiddleware(cfg) guards the REST API and WebSocket hub with either the
// API key header or an HS256 bearer token (golang-jwt). The fleet health
// endpoint stays open so load balancers can probe it.
package auth
