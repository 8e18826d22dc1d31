package loader

import (
	"sort"
	"strings"
)

// Exports maps symbol names to addresses. Keys are non-empty and values are
// non-zero.
type Exports map[string]uint64

// Find looks up a symbol by exact name, falling back to a case-insensitive
// match.
func (e Exports) Find(name string) (uint64, bool) {
	if addr, ok := e[name]; ok {
		return addr, true
	}
	for n, addr := range e {
		if strings.EqualFold(n, name) {
			return addr, true
		}
	}
	return 0, false
}

// Matching returns all symbols matching a predicate.
func (e Exports) Matching(predicate func(name string) bool) Exports {
	result := make(Exports)
	for name, addr := range e {
		if predicate(name) {
			result[name] = addr
		}
	}
	return result
}

// BySubstring finds symbols containing substr, ignoring case.
func (e Exports) BySubstring(substr string) Exports {
	substr = strings.ToLower(substr)
	return e.Matching(func(name string) bool {
		return strings.Contains(strings.ToLower(name), substr)
	})
}

// Export is a single named address.
type Export struct {
	Name string
	Addr uint64
}

// Sorted returns the exports ordered by address, then name.
func (e Exports) Sorted() []Export {
	out := make([]Export, 0, len(e))
	for name, addr := range e {
		out = append(out, Export{Name: name, Addr: addr})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Addr != out[j].Addr {
			return out[i].Addr < out[j].Addr
		}
		return out[i].Name < out[j].Name
	})
	return out
}
