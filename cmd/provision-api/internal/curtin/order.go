package curtin

import (
	"sort"
	"strings"

	"github.com/provision-stack/provision-api/cmd/provision-api/internal/metal"
)

// Order sorts the operations so that every id an operation references appears
// at an earlier position. Operations with no remaining constraint keep their
// relative input order, so the output is deterministic and diffable. A
// reference to an id no operation defines, or a dependency cycle, aborts with
// a malformed graph error.
func Order(ops []Operation) ([]Operation, error) {
	index := make(map[string]int, len(ops))
	for i := range ops {
		if _, ok := index[ops[i].ID]; !ok {
			index[ops[i].ID] = i
		}
	}

	indegree := make([]int, len(ops))
	dependents := make([][]int, len(ops))
	for i := range ops {
		deps, err := ops[i].dependencies()
		if err != nil {
			return nil, err
		}
		for _, dep := range deps {
			j, ok := index[dep]
			if !ok {
				return nil, metal.MalformedGraph("operation %q references unknown id %q", ops[i].ID, dep)
			}
			indegree[i]++
			dependents[j] = append(dependents[j], i)
		}
	}

	ordered := make([]Operation, 0, len(ops))
	emitted := make([]bool, len(ops))
	for len(ordered) < len(ops) {
		next := -1
		for i := range ops {
			if !emitted[i] && indegree[i] == 0 {
				next = i
				break
			}
		}
		if next == -1 {
			var remaining []string
			for i := range ops {
				if !emitted[i] {
					remaining = append(remaining, ops[i].ID)
				}
			}
			sort.Strings(remaining)
			return nil, metal.MalformedGraph("storage graph has cyclic dependencies between %s", strings.Join(remaining, ", "))
		}
		emitted[next] = true
		ordered = append(ordered, ops[next])
		for _, d := range dependents[next] {
			indegree[d]--
		}
	}
	return ordered, nil
}
