// Package invitations runs the event invitation state machine.
//
// An invitation is unique per (event, invitee) and starts pending. The
// invitee, and only the invitee, responds: accept joins the event's
// participant list, decline leaves it (removing the invitee if they were a
// participant by other means). Either answer may be given again later and
// simply overwrites the stored status.
//
// A response, its participant-list mutation, and the notifications it fans
// out commit in a single transaction. Accepts notify the event organizer
// and, when distinct, the project creator; declines notify the organizer
// only.
//
// Inviting an already-invited user is idempotent and returns the existing
// row, so callers never need to pre-check for duplicates.
package invitations
