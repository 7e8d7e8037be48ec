package domain

import "sort"

// DependencyGraph maps a task id to the ids it depends on.
type DependencyGraph map[string][]string

// NewDependencyGraph builds a graph from tasks.
func NewDependencyGraph(tasks []*Task) DependencyGraph {
	g := make(DependencyGraph, len(tasks))
	for _, t := range tasks {
		g[t.ID] = append([]string(nil), t.DependsOn...)
	}
	return g
}

// DetectCycle returns the cycle path if one exists, or nil if the graph is acyclic.
// Uses DFS with coloring: white (unvisited), gray (in progress), black (done).
// Edges to ids missing from the graph are ignored.
func (g DependencyGraph) DetectCycle() []string {
	const (
		white = 0
		gray  = 1
		black = 2
	)

	color := make(map[string]int, len(g))
	parent := make(map[string]string, len(g))

	var dfs func(node string) []string
	dfs = func(node string) []string {
		color[node] = gray
		for _, next := range g[node] {
			if _, known := g[next]; !known {
				continue
			}
			if color[next] == gray {
				cycle := []string{next, node}
				cur := node
				for cur != next {
					cur = parent[cur]
					cycle = append(cycle, cur)
				}
				for i, j := 0, len(cycle)-1; i < j; i, j = i+1, j-1 {
					cycle[i], cycle[j] = cycle[j], cycle[i]
				}
				return cycle
			}
			if color[next] == white {
				parent[next] = node
				if cycle := dfs(next); cycle != nil {
					return cycle
				}
			}
		}
		color[node] = black
		return nil
	}

	// Sort keys for deterministic detection
	ids := make([]string, 0, len(g))
	for id := range g {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	for _, id := range ids {
		if color[id] == white {
			if cycle := dfs(id); cycle != nil {
				return cycle
			}
		}
	}
	return nil
}
