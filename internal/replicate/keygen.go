// Package replicate implements the server-side replication manager: the
// per-connection state machine that decides which objects, entities and
// components a client knows about, serializes the actions that bring
// the client's view in sync, and reconciles delivery/drop outcomes
// reported by the acknowledgement tracker.
package replicate

// localKeyGenerator hands out uint16 local keys, recycling keys freed by
// deletion before minting new ones.
type localKeyGenerator struct {
	next  uint16
	freed []uint16
}

func newLocalKeyGenerator() *localKeyGenerator {
	return &localKeyGenerator{}
}

// generate returns an unused local key, preferring a recycled one.
func (g *localKeyGenerator) generate() LocalKey {
	if n := len(g.freed); n > 0 {
		k := g.freed[n-1]
		g.freed = g.freed[:n-1]
		return LocalKey(k)
	}
	k := g.next
	g.next++
	return LocalKey(k)
}

// recycle marks key available for reuse by a future generate call.
func (g *localKeyGenerator) recycle(key LocalKey) {
	g.freed = append(g.freed, uint16(key))
}
