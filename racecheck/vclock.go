package racecheck

// vclock maps a thread to its logical time. Threads past the end of the
// slice are at time 0.
type vclock []uint64

func (c vclock) get(t Thread) uint64 {
	if int(t) < len(c) {
		return c[t]
	}
	return 0
}

func (c *vclock) grow(n int) {
	if n > len(*c) {
		*c = append(*c, make([]uint64, n-len(*c))...)
	}
}

// tick advances t's own entry.
func (c *vclock) tick(t Thread) {
	c.grow(int(t) + 1)
	(*c)[t]++
}

// join sets c to the pointwise maximum of c and o.
func (c *vclock) join(o vclock) {
	c.grow(len(o))
	for i, v := range o {
		if v > (*c)[i] {
			(*c)[i] = v
		}
	}
}

func (c vclock) clone() vclock {
	return append(vclock(nil), c...)
}

// before reports whether c happens before or equals o.
func (c vclock) before(o vclock) bool {
	for i, v := range c {
		if v > o.get(Thread(i)) {
			return false
		}
	}
	return true
}
