// Package notify creates and serves in-app notifications.
//
// Workflow packages emit notifications inside their own transactions through
// Service.Emit, then call Committed after the commit so cached unread counts
// are dropped. Read-state changes (mark read, mark all read, delete) are only
// ever performed by the recipient and invalidate the cache immediately.
//
// The unread badge count is cached in redis with a short TTL when a cache is
// configured. The database is the source of truth; cache failures degrade to
// a direct count.
//
// Sweeper backs the reminder binary: it turns deliverables coming due into
// deliverable_due notifications, at most one per deliverable per day.
package notify
