// Package tracker holds the core workflow entities: projects, the events
// held under them, the decisions those events produce, and the deliverables
// the decisions spawn.
//
// Every read is filtered through the authorization policy's visibility
// predicate and every targeted operation re-checks the policy against the
// entity's ownership chain, so listings and direct fetches can never
// disagree about what an actor may see. Writes with side effects (event
// creation with participants, decision fan-out, assignment notifications)
// commit in a single transaction with their notifications.
package tracker
