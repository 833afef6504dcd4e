package billing

import "hash/fnv"

// hasDuplicates reports whether ids contains a repeated entry. Batch billing
// runs this on every call, so it probes a fixed open-addressed table instead
// of allocating a map. Ids are non-empty by the time this runs; the empty
// string marks a free slot.
func hasDuplicates(ids []string) bool {
	size := uint64(512)
	if len(ids) > 200 {
		size = 1024
	}
	table := make([]string, size)
	mask := size - 1

	for _, id := range ids {
		h := fnv.New64a()
		h.Write([]byte(id))
		slot := h.Sum64() & mask
		for table[slot] != "" {
			if table[slot] == id {
				return true
			}
			slot = (slot + 1) & mask
		}
		table[slot] = id
	}
	return false
}
