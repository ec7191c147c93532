// Package auth implements the request authorization pipeline.
//
// A Gate authenticates the caller (bearer token or the development identity),
// resolves the tenant named by the request, then checks global and tenant
// roles, in that order. The first failing step decides the Outcome:
//   - authentication failures never reveal whether a tenant exists
//   - tenant failures never reveal membership or role information
//
// Allowed outcomes carry an immutable RequestContext for downstream handlers.
package auth
