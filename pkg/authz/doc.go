// Package authz decides who may do what to which entity.
//
// The policy is a declarative table keyed by (entity kind, action), composed
// from small predicate combinators over a Target that carries the entity's
// relationship facts (ownership chain, organizer, assignee, invitee). Deny is
// the default; the table enumerates the allows. Participation questions that
// cannot be answered from a Target alone go through MembershipChecker, which
// the workflow store implements.
//
// Scope produces the matching list filter for every (actor, kind) pair, as a
// SQL fragment plus an equivalent in-memory predicate. The two are kept in
// lockstep with the view rule of the policy table so that a row visible in a
// list is always viewable individually, and vice versa.
//
// Role tiers collapse most of the table: admins pass everything, management
// reaches entities through the project ownership chain, and project users
// reach only what they organize, participate in, or are assigned.
package authz
