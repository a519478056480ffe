// Package auth provides optional bearer-token authentication for the gateway.
//
// When auth.jwt_secret is configured, the compile and vars endpoints require
// an HS256-signed JWT in the Authorization header:
//
//	Authorization: Bearer <token>
//
// The token's "sub" claim names the caller. It is attached to the request
// context and recorded in the compilation audit log. Tokens are minted with
// the "document-gateway token" command:
//
//	document-gateway token --subject ci-bot --ttl 720h
//
// The bundled demo routes and the health, metrics and stats routes never
// require a token.
package auth
