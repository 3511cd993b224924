package session

// history is a linear back/forward stack of settled locations, mirroring
// browser history. Pushing while not at the tip truncates the forward run.
type history struct {
	entries []Location
	pos     int
}

func newHistory() *history {
	return &history{pos: -1}
}

// Push appends a settled location and moves the cursor onto it. Pushing the
// location already under the cursor is a no-op so retries do not pile up.
func (h *history) Push(loc Location) {
	if h.pos >= 0 && h.entries[h.pos] == loc {
		return
	}
	h.entries = append(h.entries[:h.pos+1], loc)
	h.pos = len(h.entries) - 1
}

// Back moves the cursor one step towards the oldest entry.
func (h *history) Back() (Location, bool) {
	if h.pos <= 0 {
		return Location{}, false
	}
	h.pos--
	return h.entries[h.pos], true
}

// Forward moves the cursor one step towards the newest entry.
func (h *history) Forward() (Location, bool) {
	if h.pos < 0 || h.pos >= len(h.entries)-1 {
		return Location{}, false
	}
	h.pos++
	return h.entries[h.pos], true
}

// Current returns the location under the cursor.
func (h *history) Current() (Location, bool) {
	if h.pos < 0 {
		return Location{}, false
	}
	return h.entries[h.pos], true
}
