package pipeline

import (
	"github.com/refaktor/jnigen/digraphutils"
	"github.com/refaktor/jnigen/ir"
)

// GraphFile is the dependency graph written with Options.Graph.
const GraphFile = "jnigen_deps.dot"

// dependencyGraph returns DOT code of the units of m, the struct mirrors
// they pass and the mirrors those embed. Mirrors no unit reaches are
// drawn dashed.
func dependencyGraph(m *ir.Model) []byte {
	units := map[string]*ir.Unit{}
	var roots []string
	for _, u := range m.Units {
		units[u.FQCN] = u
		roots = append(roots, u.FQCN)
	}
	edges := func(fqcn string) []string {
		if u, ok := units[fqcn]; ok {
			return u.UsedStructs()
		}
		return m.Embedded(fqcn)
	}

	nodes := digraphutils.Sorted(roots, edges)
	used := digraphutils.Reachable(roots, edges)
	for _, s := range m.Structs {
		if _, ok := used[s.FQCN]; !ok {
			nodes = append(nodes, s.FQCN)
		}
	}

	return digraphutils.DOTCode("jnigen", nodes, edges,
		func(fqcn string) string { return fqcn },
		func(fqcn string) string {
			if _, ok := units[fqcn]; ok {
				return "style=bold"
			}
			if s := m.Struct(fqcn); s != nil && s.Skipped() {
				return "style=dashed, color=gray"
			}
			if _, ok := used[fqcn]; !ok {
				return "style=dashed"
			}
			return ""
		})
}
