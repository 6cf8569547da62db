package naming

import "sync"

// CollisionResolver tracks which source owns each planned output path within
// one run. The first claim wins; planning over a sorted source list therefore
// makes ownership independent of worker scheduling. All methods are
// goroutine-safe.
type CollisionResolver struct {
	mu     sync.Mutex
	owners map[string]string // output path → source that owns it
}

// NewCollisionResolver creates a ready-to-use resolver.
func NewCollisionResolver() *CollisionResolver {
	return &CollisionResolver{owners: make(map[string]string)}
}

// Claim records source as the owner of output. It returns true when the
// output was unclaimed or already owned by source; otherwise it returns false
// together with the current owner.
func (cr *CollisionResolver) Claim(source, output string) (string, bool) {
	cr.mu.Lock()
	defer cr.mu.Unlock()

	owner, exists := cr.owners[output]
	if !exists || owner == source {
		cr.owners[output] = source
		return source, true
	}
	return owner, false
}

// Len reports how many output paths have been claimed.
func (cr *CollisionResolver) Len() int {
	cr.mu.Lock()
	defer cr.mu.Unlock()
	return len(cr.owners)
}
