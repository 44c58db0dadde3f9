// Package digraphutils provides utilities for directed graphs, represented as
// a list of node keys and a function returning a node's edges.
package digraphutils

import (
	"slices"
	"strconv"

	"github.com/refaktor/jnigen/emit/emitio"
)

// Reachable returns every node reachable from roots, roots included.
func Reachable[K comparable](roots []K, edges func(K) []K) map[K]struct{} {
	reachable := map[K]struct{}{}
	nodes := slices.Clone(roots)
	var newNodes []K
	for len(nodes) > 0 {
		for _, node := range nodes {
			if _, ok := reachable[node]; ok {
				continue
			}
			reachable[node] = struct{}{}
			newNodes = append(newNodes, edges(node)...)
		}
		nodes, newNodes = newNodes, nodes[:0]
	}
	return reachable
}

// Sorted returns the nodes reachable from roots in breadth-first order
// of discovery, roots first.
func Sorted[K comparable](roots []K, edges func(K) []K) []K {
	seen := map[K]struct{}{}
	var res []K
	queue := slices.Clone(roots)
	for len(queue) > 0 {
		node := queue[0]
		queue = queue[1:]
		if _, ok := seen[node]; ok {
			continue
		}
		seen[node] = struct{}{}
		res = append(res, node)
		queue = append(queue, edges(node)...)
	}
	return res
}

// DOTCode generates graphviz DOT code to visualize a graph.
// nodes are all nodes included in the graph; edges to other nodes are
// dropped. label returns a node's label and attrs any further attributes
// (without brackets), or "".
func DOTCode[K comparable](name string, nodes []K, edges func(K) []K, label func(K) string, attrs func(K) string) []byte {
	var cb emitio.CodeBuilder
	cb.Linef(`digraph %v {`, strconv.Quote(name))
	cb.Indent++
	cb.Linef(`node [shape=box];`)
	ids := make(map[K]int, len(nodes))
	for id, key := range nodes {
		ids[key] = id
		a := "label=" + strconv.Quote(label(key))
		if attrs != nil {
			if extra := attrs(key); extra != "" {
				a += ", " + extra
			}
		}
		cb.Linef(`n%v [%v];`, id, a)
	}
	for id, key := range nodes {
		for _, edg := range edges(key) {
			to, ok := ids[edg]
			if !ok {
				continue
			}
			cb.Linef(`n%v -> n%v;`, id, to)
		}
	}
	cb.Indent--
	cb.Linef(`}`)
	return []byte(cb.String())
}
