/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package auth

import "context"

type claimsKey struct{}

// AnonymousClient names callers on servers running without a signing key.
const AnonymousClient = "anonymous"

// WithClaims attaches verified claims to ctx.
func WithClaims(ctx context.Context, claims *Claims) context.Context {
	return context.WithValue(ctx, claimsKey{}, claims)
}

// ClaimsFromContext returns the claims attached by Middleware, if any.
func ClaimsFromContext(ctx context.Context) (*Claims, bool) {
	claims, ok := ctx.Value(claimsKey{}).(*Claims)
	return claims, ok && claims != nil
}

// ClientID identifies the caller for logs. Tokens without a cid fall back
// to the subject.
func ClientID(ctx context.Context) string {
	claims, ok := ClaimsFromContext(ctx)
	switch {
	case !ok:
		return AnonymousClient
	case claims.ClientID != "":
		return claims.ClientID
	case claims.Subject != "":
		return claims.Subject
	}
	return AnonymousClient
}
