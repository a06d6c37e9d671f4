package listing

import (
	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/aluiziolira/ri-harvester/models"
)

// RepeatGuard remembers links from recent pages. A page made only of
// remembered links means the server is clamping past the last page.
type RepeatGuard struct {
	seen *lru.Cache[string, struct{}]
}

// NewRepeatGuard returns a guard remembering up to size links, or nil when
// size is not positive.
func NewRepeatGuard(size int) *RepeatGuard {
	if size <= 0 {
		return nil
	}
	cache, err := lru.New[string, struct{}](size)
	if err != nil {
		return nil
	}
	return &RepeatGuard{seen: cache}
}

// Repeated reports whether every link was seen before and records them.
func (g *RepeatGuard) Repeated(links []models.Link) bool {
	if g == nil || len(links) == 0 {
		return false
	}
	repeated := true
	for _, l := range links {
		if !g.seen.Contains(l.URL) {
			repeated = false
		}
		g.seen.Add(l.URL, struct{}{})
	}
	return repeated
}
