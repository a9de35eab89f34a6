package store

import (
	"errors"
	"fmt"

	"mhcal/internal/recurrence"
)

var (
	// ErrNotFound is returned for a uid the store does not hold.
	ErrNotFound = errors.New("store: not found")
	// ErrEmptyUID rejects entries that cannot be keyed.
	ErrEmptyUID = errors.New("store: entry has no uid")
)

// IndexCorruptionError means the slot index disagrees with the entries it
// indexes. The mutation that found it is abandoned with the store left as
// it was.
type IndexCorruptionError struct {
	UID    string
	Key    recurrence.SlotKey
	Reason string
}

func (e *IndexCorruptionError) Error() string {
	if e.Key == "" {
		return fmt.Sprintf("store: index corrupt for %q: %s", e.UID, e.Reason)
	}
	return fmt.Sprintf("store: index corrupt for %q at %s: %s", e.UID, e.Key, e.Reason)
}

func notFound(uid string) error {
	return fmt.Errorf("%w: %s", ErrNotFound, uid)
}
