package coordinator

const defaultDedupeWindow = 1024

// dedupe remembers the most recent message IDs in a fixed ring.
type dedupe struct {
	ids  map[string]struct{}
	ring []string
	next int
}

func newDedupe(size int) *dedupe {
	if size <= 0 {
		size = defaultDedupeWindow
	}
	return &dedupe{ids: make(map[string]struct{}, size), ring: make([]string, size)}
}

// seen records id and reports whether it was already recorded.
func (d *dedupe) seen(id string) bool {
	if id == "" {
		return false
	}
	if _, ok := d.ids[id]; ok {
		return true
	}
	if evicted := d.ring[d.next]; evicted != "" {
		delete(d.ids, evicted)
	}
	d.ring[d.next] = id
	d.ids[id] = struct{}{}
	d.next = (d.next + 1) % len(d.ring)
	return false
}
