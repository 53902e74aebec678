// Package auth provides authentication and authorization primitives.
//
// This package implements:
//   - HS256 bearer token issue/verify (TokenCodec)
//   - Identity resolution from credentials, including the non-production
//     bypass strategy chain (IdentityResolver)
//   - The two-role gate (RequireRole, RequireAdmin)
//
// Whether bypass exists is decided once when the resolver is built.
package auth
