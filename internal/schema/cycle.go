package schema

import (
	"fmt"
	"slices"
	"strings"
)

// extendsGraph maps a type name to the parent it extends.
// Every declared type is a node, even without a parent.
type extendsGraph map[string][]string

func buildExtendsGraph(doc *Document) extendsGraph {
	graph := make(extendsGraph, len(doc.Types))
	for _, t := range doc.Types {
		if t.Name == "" {
			continue
		}
		if graph[t.Name] == nil {
			graph[t.Name] = []string{}
		}
		if t.Extends != "" {
			graph[t.Name] = append(graph[t.Name], t.Extends)
		}
	}
	return graph
}

// extendsCycles reports every loop in the extends relation, including a
// type extending itself. Each loop is reported once, against the type that
// sorts first within it.
func extendsCycles(doc *Document) []ValidationError {
	graph := buildExtendsGraph(doc)

	var errs []ValidationError
	for _, scc := range tarjanSCC(graph) {
		if len(scc) == 1 && !hasSelfLoop(scc[0], graph) {
			continue
		}
		slices.Sort(scc)
		path := cyclePath(scc[0], graph)
		first, _ := doc.Lookup(scc[0])
		errs = append(errs, ValidationError{
			Field:   fmt.Sprintf("types[%d].extends", indexOf(doc, scc[0])),
			Message: "extends cycle: " + strings.Join(path, " -> "),
			Code:    ErrCodeExtendsCycle,
			Line:    first.Line,
		})
	}
	slices.SortFunc(errs, func(a, b ValidationError) int { return strings.Compare(a.Field, b.Field) })
	return errs
}

func hasSelfLoop(node string, graph extendsGraph) bool {
	return slices.Contains(graph[node], node)
}

// tarjanSCC finds strongly connected components using Tarjan's algorithm.
// Nodes are visited in sorted order so results are deterministic.
func tarjanSCC(graph extendsGraph) [][]string {
	var (
		index   = 0
		stack   []string
		indices = make(map[string]int)
		lowlink = make(map[string]int)
		onStack = make(map[string]bool)
		sccs    [][]string
	)

	var strongConnect func(string)
	strongConnect = func(v string) {
		indices[v] = index
		lowlink[v] = index
		index++
		stack = append(stack, v)
		onStack[v] = true

		for _, w := range graph[v] {
			if _, known := graph[w]; !known {
				continue // unknown parents are reported elsewhere
			}
			if _, visited := indices[w]; !visited {
				strongConnect(w)
				lowlink[v] = min(lowlink[v], lowlink[w])
			} else if onStack[w] {
				lowlink[v] = min(lowlink[v], indices[w])
			}
		}

		if lowlink[v] == indices[v] {
			var scc []string
			for {
				w := stack[len(stack)-1]
				stack = stack[:len(stack)-1]
				onStack[w] = false
				scc = append(scc, w)
				if w == v {
					break
				}
			}
			sccs = append(sccs, scc)
		}
	}

	nodes := make([]string, 0, len(graph))
	for node := range graph {
		nodes = append(nodes, node)
	}
	slices.Sort(nodes)
	for _, node := range nodes {
		if _, visited := indices[node]; !visited {
			strongConnect(node)
		}
	}
	return sccs
}

// cyclePath follows extends edges from start until it returns to start.
func cyclePath(start string, graph extendsGraph) []string {
	path := []string{start}
	current := start
	for range len(graph) {
		next := graph[current]
		if len(next) == 0 {
			break
		}
		current = next[0]
		path = append(path, current)
		if current == start {
			break
		}
	}
	return path
}

func indexOf(doc *Document, name string) int {
	for i, t := range doc.Types {
		if t.Name == name {
			return i
		}
	}
	return -1
}

// definitionOrder returns type indexes with every parent before its
// children; declaration order is kept otherwise. The document must be
// free of unknown parents and cycles.
func definitionOrder(doc *Document) []int {
	order := make([]int, 0, len(doc.Types))
	placed := make(map[string]bool, len(doc.Types))
	var place func(i int)
	place = func(i int) {
		t := doc.Types[i]
		if placed[t.Name] {
			return
		}
		placed[t.Name] = true
		if t.Extends != "" {
			if p := indexOf(doc, t.Extends); p >= 0 {
				place(p)
			}
		}
		order = append(order, i)
	}
	for i := range doc.Types {
		place(i)
	}
	return order
}
