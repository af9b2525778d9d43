package discovery

import (
	"cmp"
	"slices"
	"strings"
)

// merger accumulates dependents, keeping the first occurrence of each
// repository.
type merger struct {
	seen map[string]bool
	all  []DependentRepository
}

func newMerger() *merger {
	return &merger{seen: make(map[string]bool)}
}

// add appends deps that have not been seen before and reports how many
// were new.
func (m *merger) add(deps []DependentRepository) int {
	n := 0
	for _, d := range deps {
		key := strings.ToLower(d.FullName)
		if m.seen[key] {
			continue
		}
		m.seen[key] = true
		m.all = append(m.all, d)
		n++
	}
	return n
}

// sorted returns a copy of the merged dependents ordered by stars
// descending. Ties keep merge order.
func (m *merger) sorted() []DependentRepository {
	out := slices.Clone(m.all)
	slices.SortStableFunc(out, func(a, b DependentRepository) int { return cmp.Compare(b.Stars, a.Stars) })
	return out
}

// paginateResults returns the 1-based page of deps and whether more follow.
// A page past the end yields an empty, non-nil slice. The offset is checked
// by division first so arbitrarily large page numbers cannot overflow it.
func paginateResults(deps []DependentRepository, page, size int) ([]DependentRepository, bool) {
	if page < 1 || size < 1 || page-1 > len(deps)/size {
		return []DependentRepository{}, false
	}
	start := (page - 1) * size
	if start >= len(deps) {
		return []DependentRepository{}, false
	}
	end := min(start+size, len(deps))
	return deps[start:end], end < len(deps)
}
