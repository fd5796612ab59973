package chunk

import (
	"context"

	"github.com/rs/zerolog"
)

// enforceRequestCaps dissolves group chunks until every split point needs no
// more chunks than maxInitialRequests (entries) or maxAsyncRequests (dynamic
// imports) allow. The lowest priority chunk a split point needs goes first;
// its modules return to their originating chunks. Enforced chunks are never
// dissolved. A cap of zero is unlimited.
//
// Modules of one group chunk can originate from several split points, so a
// dissolution may raise another split point's count. Passes repeat until
// nothing is dissolved.
func (p *plan) enforceRequestCaps(ctx context.Context) {
	for p.capPass(ctx) {
	}
}

func (p *plan) capPass(ctx context.Context) bool {
	logger := zerolog.Ctx(ctx)
	dissolved := false

	for i, sp := range p.points {
		limit := p.policy.MaxAsyncRequests
		if sp.initial {
			limit = p.policy.MaxInitialRequests
		}
		if limit <= 0 {
			continue
		}

		for {
			needed := p.requests(i)
			if len(needed) <= limit {
				break
			}

			victim := p.lowestPriorityGroup(needed)
			if victim < 0 {
				logger.Warn().
					Str("split_point", sp.name).
					Int("requests", len(needed)).
					Int("limit", limit).
					Msg("Request cap exceeded by enforced chunks")
				break
			}

			logger.Debug().
				Str("split_point", sp.name).
				Str("chunk", p.groups[victim].Name).
				Msg("Dissolving chunk to satisfy request cap")
			p.dissolve(victim)
			dissolved = true
		}
	}

	return dissolved
}

// requests returns the chunks split point i counts against its cap. Entry
// chunks are already loaded when a dynamic import runs, so async split points
// do not count them.
func (p *plan) requests(i int) map[string]bool {
	needed := make(map[string]bool)
	for _, m := range p.closures[i] {
		name := p.chunkOf(m)
		if !p.points[i].initial && p.isEntryChunk(name) {
			continue
		}
		needed[name] = true
	}
	return needed
}

func (p *plan) isEntryChunk(name string) bool {
	for _, sp := range p.points {
		if sp.initial && sp.name == name {
			return true
		}
	}
	return false
}

// lowestPriorityGroup returns the index of the needed, non-enforced group chunk
// with the lowest priority, the most recently created one on ties, or -1.
func (p *plan) lowestPriorityGroup(needed map[string]bool) int {
	victim := -1
	for i, c := range p.groups {
		if c.Enforced || !needed[c.Name] {
			continue
		}
		if victim < 0 || c.Priority <= p.groups[victim].Priority {
			victim = i
		}
	}
	return victim
}

func (p *plan) dissolve(i int) {
	for _, m := range p.groups[i].Modules {
		delete(p.owner, m)
	}
	p.groups = append(p.groups[:i:i], p.groups[i+1:]...)
}
