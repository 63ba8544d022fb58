// Package audit keeps a trail of mutating API requests.
//
// The Recorder middleware writes one row per completed POST, PUT, PATCH or
// DELETE request, carrying the actor, route, status and request ID. Reads
// are never recorded. Administrators can list and purge the trail through
// the handlers in this package.
package audit
