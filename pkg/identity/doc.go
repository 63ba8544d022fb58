// Package identity provides accounts, roles, capabilities, and API tokens.
//
// # Overview
//
// Every request acts on behalf of a user with one of three role tiers:
//
//   - admin: unrestricted access to everything
//   - management: sees and steers all projects, assigns work
//   - project_user: only sees work they organize, participate in, or are assigned
//
// On top of the role tier, nine per-user capabilities gate areas of the
// system (projects, events, decisions, deliverables, invitations,
// progress tracking, calendar, time tracker, reports). Capabilities are
// a bit-set resolved from account defaults plus stored overrides.
//
// # Capability Checks
//
// Checks fail closed: an unknown capability name is never granted, and
// admins implicitly hold every known capability.
//
//	if !user.HasCapability(identity.CapViewReports) {
//		// denied
//	}
//
// Grants and revocations are idempotent and restricted to admins and
// management; mutating an unknown capability is a reported error.
//
// # API Tokens
//
// Tokens are random 256-bit values with the concord_ prefix, stored
// only as SHA-256 hashes. The plaintext is returned exactly once at
// issuance.
//
//	token, plaintext, err := svc.IssueToken(ctx, actor, userID, "ci")
//
// # Related Packages
//
//   - pkg/authz: Entity-level authorization built on roles and relationships
//   - pkg/middleware: Resolves bearer tokens to request actors
package identity
