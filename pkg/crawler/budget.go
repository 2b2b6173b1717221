package crawler

// Budget is the hard page ceiling. Every fetch attempt consumes one slot.
type Budget struct {
	max  int
	used int
}

// NewBudget creates a Budget with max slots
func NewBudget(max int) *Budget {
	return &Budget{max: max}
}

// Consume takes one slot, returning false once the ceiling is reached
func (b *Budget) Consume() bool {
	if b.used >= b.max {
		return false
	}
	b.used++
	return true
}

func (b *Budget) Used() int { return b.used }

func (b *Budget) Max() int { return b.max }

func (b *Budget) Remaining() int { return b.max - b.used }

func (b *Budget) Exhausted() bool { return b.used >= b.max }

// VisitedSet records attempted URLs in attempt order.
// A URL can be forgotten once so the retry phase may attempt it again.
type VisitedSet struct {
	seen      map[string]bool
	forgotten map[string]bool
	order     []string
}

func NewVisitedSet() *VisitedSet {
	return &VisitedSet{seen: make(map[string]bool), forgotten: make(map[string]bool)}
}

// Add marks u visited; returns false if it already is
func (v *VisitedSet) Add(u string) bool {
	if v.seen[u] {
		return false
	}
	if !v.forgotten[u] {
		v.order = append(v.order, u)
	}
	v.seen[u] = true
	return true
}

func (v *VisitedSet) Contains(u string) bool { return v.seen[u] }

// Forget removes u so it can be attempted again. Each URL can be forgotten at most once.
func (v *VisitedSet) Forget(u string) bool {
	if !v.seen[u] || v.forgotten[u] {
		return false
	}
	delete(v.seen, u)
	v.forgotten[u] = true
	return true
}

// Retryable reports whether u was attempted and has not been forgotten yet
func (v *VisitedSet) Retryable(u string) bool { return v.seen[u] && !v.forgotten[u] }

// Order returns the URLs in first-attempt order
func (v *VisitedSet) Order() []string {
	return append([]string(nil), v.order...)
}

func (v *VisitedSet) Len() int { return len(v.seen) }
