// Package event implements the timeout/cancellation registry each worker
// layers over its ring: a hash map keyed on the full 64-bit completion tag.
package event

// Entry is the value stored per registered tag.
type Entry struct {
	TimeoutNs           int64
	SubmissionTimestamp int64
}

// Registry maps completion tags to their timeout bookkeeping. It is
// worker-local and single-writer, exactly like the Buffer and Sequence
// Pools; a plain Go map is sufficient since there is no cross-goroutine
// contention to avoid, unlike the Tarantool-style open-addressing hash
// table it is grounded on.
type Registry struct {
	entries map[uint64]Entry
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{entries: make(map[uint64]Entry)}
}

// Register inserts a new event, tracking when it was submitted and the
// timeout after which it should be considered expired. A timeoutNs of 0
// means the event never expires via Registry bookkeeping (but the original
// op still eventually produces a CQE).
func (r *Registry) Register(tag uint64, timeoutNs, nowNs int64) {
	r.entries[tag] = Entry{TimeoutNs: timeoutNs, SubmissionTimestamp: nowNs}
}

// Remove deletes an event, e.g. on CQE reception or explicit cancellation.
// Removing an absent tag is a no-op.
func (r *Registry) Remove(tag uint64) {
	delete(r.entries, tag)
}

// Len reports how many events are currently registered.
func (r *Registry) Len() int {
	return len(r.entries)
}

// Lookup returns the entry for tag, if any.
func (r *Registry) Lookup(tag uint64) (Entry, bool) {
	e, ok := r.entries[tag]
	return e, ok
}

// CheckTimeouts scans every registered entry and returns the tags whose
// (now - submission) has reached or exceeded their timeout. The caller is
// responsible for submitting an async-cancel SQE per returned tag and then
// calling Remove; CheckTimeouts does not mutate the registry itself, so a
// timed-out entry stays registered until the caller has staged its
// cancellation and removed it.
func (r *Registry) CheckTimeouts(nowNs int64) []uint64 {
	var expired []uint64
	for tag, e := range r.entries {
		if e.TimeoutNs <= 0 {
			continue
		}
		if nowNs-e.SubmissionTimestamp >= e.TimeoutNs {
			expired = append(expired, tag)
		}
	}
	return expired
}

// FdTags returns every registered tag for which the caller-supplied matches
// predicate reports true (the registry has no knowledge of tag layout,
// which lives in internal/tag). With a predicate that compares a tag's fd
// bits, this backs cancel_by_fd.
func (r *Registry) FdTags(matches func(tag uint64) bool) []uint64 {
	var tags []uint64
	for tag := range r.entries {
		if matches(tag) {
			tags = append(tags, tag)
		}
	}
	return tags
}
