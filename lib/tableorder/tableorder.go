// Package tableorder orders tables so that every table comes after the tables its foreign keys reference.
package tableorder

import (
	"fmt"
	"slices"
	"strings"
)

// Edge is a foreign key relationship. Dependent holds a foreign key referencing Referenced.
type Edge struct {
	Dependent  string
	Referenced string
}

// CycleError is returned when tables reference each other, directly or through other tables, so that no order can be
// determined.
type CycleError struct {
	// Tables that could not be ordered, sorted by name.
	Tables []string
}

func (e *CycleError) Error() string {
	return fmt.Sprintf("tables have mutual foreign keys: no order can be determined for: %s", strings.Join(e.Tables, ", "))
}

// Order returns tables ordered so that for every edge the referenced table precedes the dependent table. Tables that
// become orderable at the same time are sorted by name.
//
// Edges with an endpoint that is not in tables are ignored. A table referencing itself can never be ordered and
// results in a *CycleError, as does any other cycle. No partial ordering is returned on error.
func Order(tables []string, edges []Edge) ([]string, error) {
	unresolved := make(map[string]map[string]struct{}, len(tables))
	for _, t := range tables {
		unresolved[t] = make(map[string]struct{})
	}

	for _, e := range edges {
		deps, ok := unresolved[e.Dependent]
		if !ok {
			continue
		}
		if _, ok := unresolved[e.Referenced]; !ok {
			continue
		}
		deps[e.Referenced] = struct{}{}
	}

	ordered := make([]string, 0, len(unresolved))
	for len(unresolved) > 0 {
		var ready []string
		for t, deps := range unresolved {
			if len(deps) == 0 {
				ready = append(ready, t)
			}
		}

		if len(ready) == 0 {
			remaining := make([]string, 0, len(unresolved))
			for t := range unresolved {
				remaining = append(remaining, t)
			}
			slices.Sort(remaining)
			return nil, &CycleError{Tables: remaining}
		}

		slices.Sort(ready)
		for _, t := range ready {
			delete(unresolved, t)
		}
		for _, deps := range unresolved {
			for _, t := range ready {
				delete(deps, t)
			}
		}

		ordered = append(ordered, ready...)
	}

	return ordered, nil
}
