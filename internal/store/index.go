package store

import (
	"slices"

	"mhcal/internal/recurrence"
)

// index maps slot keys to the uids filed under them, and remembers which
// keys each uid was filed under so it can be unfiled without its entry.
type index struct {
	buckets   map[recurrence.SlotKey]map[string]struct{}
	keysByUID map[string][]recurrence.SlotKey
}

func newIndex() *index {
	return &index{
		buckets:   make(map[recurrence.SlotKey]map[string]struct{}),
		keysByUID: make(map[string][]recurrence.SlotKey),
	}
}

// check reports whether uid can be removed cleanly. It never mutates.
func (ix *index) check(uid string) error {
	keys, ok := ix.keysByUID[uid]
	if !ok {
		return &IndexCorruptionError{UID: uid, Reason: "entry has no index record"}
	}
	for _, k := range keys {
		if _, ok := ix.buckets[k][uid]; !ok {
			return &IndexCorruptionError{UID: uid, Key: k, Reason: "missing from bucket"}
		}
	}
	return nil
}

// add files uid under keys. Duplicate keys are collapsed.
func (ix *index) add(uid string, keys []recurrence.SlotKey) {
	keys = slices.Clone(keys)
	slices.Sort(keys)
	keys = slices.Compact(keys)
	for _, k := range keys {
		b := ix.buckets[k]
		if b == nil {
			b = make(map[string]struct{})
			ix.buckets[k] = b
		}
		b[uid] = struct{}{}
	}
	ix.keysByUID[uid] = keys
}

// remove unfiles uid. Callers run check first.
func (ix *index) remove(uid string) {
	for _, k := range ix.keysByUID[uid] {
		b := ix.buckets[k]
		delete(b, uid)
		if len(b) == 0 {
			delete(ix.buckets, k)
		}
	}
	delete(ix.keysByUID, uid)
}

// probe returns the distinct uids filed under any of keys.
func (ix *index) probe(keys []recurrence.SlotKey) map[string]struct{} {
	out := make(map[string]struct{})
	for _, k := range keys {
		for uid := range ix.buckets[k] {
			out[uid] = struct{}{}
		}
	}
	return out
}

func (ix *index) memberships() int {
	n := 0
	for _, b := range ix.buckets {
		n += len(b)
	}
	return n
}
