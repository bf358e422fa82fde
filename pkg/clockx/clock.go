package clockx

// slot states. A slot is tracked iff it is referenced or eligible.
type state uint8

const (
	untracked state = iota
	referenced      // tracked, ref bit set: survives the next pass of the hand
	eligible        // tracked, ref bit clear: next victim the hand reaches
)

// Clock implements CLOCK (second-chance) replacement for a fixed number of slots.
// Only slots handed to Unpin are candidates; Pin and Victim drop them again.
type Clock struct {
	states []state
	hand   int
	size   int // number of tracked slots
}

func New(capacity int) *Clock {
	if capacity <= 0 {
		capacity = 1
	}
	return &Clock{states: make([]state, capacity)}
}

func (c *Clock) Capacity() int { return len(c.states) }

func (c *Clock) inRange(id int) bool { return id >= 0 && id < len(c.states) }

// Unpin makes slot a candidate with its ref bit set. Calling it again on a
// tracked slot refreshes the ref bit.
func (c *Clock) Unpin(id int) {
	if !c.inRange(id) {
		return
	}
	if c.states[id] == untracked {
		c.size++
	}
	c.states[id] = referenced
}

// Pin removes slot from the candidates regardless of its ref bit.
func (c *Clock) Pin(id int) {
	if !c.inRange(id) || c.states[id] == untracked {
		return
	}
	c.states[id] = untracked
	c.size--
}

// Victim returns victim slot id and ok flag, and stops tracking the victim.
// Referenced slots passed by the hand lose their ref bit. With at least one
// tracked slot the second pass is guaranteed to find a victim, so the scan
// is bounded by two sweeps.
func (c *Clock) Victim() (id int, ok bool) {
	n := len(c.states)
	if c.size == 0 {
		return -1, false
	}

	for range 2 * n {
		idx := c.hand
		c.hand = (c.hand + 1) % n

		switch c.states[idx] {
		case referenced:
			// Second chance.
			c.states[idx] = eligible
		case eligible:
			c.states[idx] = untracked
			c.size--
			return idx, true
		}
	}

	return -1, false
}

func (c *Clock) Size() int { return c.size }

// Tracked reports whether slot is an eviction candidate.
func (c *Clock) Tracked(id int) bool {
	return c.inRange(id) && c.states[id] != untracked
}

// Referenced reports whether slot is tracked with its ref bit set.
func (c *Clock) Referenced(id int) bool {
	return c.inRange(id) && c.states[id] == referenced
}

// Hand is the slot the next Victim call starts from.
func (c *Clock) Hand() int { return c.hand }
