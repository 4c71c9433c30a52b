package jobs

import "errors"

// ErrNoItems is returned by CreateJob when the target selection resolves to
// zero line items.
var ErrNoItems = errors.New("no line items to reprice")

// ErrUndoExpired is returned when the undo window has lapsed for the source job.
var ErrUndoExpired = errors.New("undo window expired")

// ErrUndoSuperseded is returned when a newer job exists for the organization.
// The countdown shown to clients is advisory; a newer job is the
// authoritative cutoff because its snapshot supersedes the old one.
var ErrUndoSuperseded = errors.New("a newer job supersedes the undo snapshot")

// ErrNotUndoable is returned when the source job is not a completed forward
// job. Undo jobs keep no snapshot of their own, so an undo cannot be undone.
var ErrNotUndoable = errors.New("job cannot be undone")
