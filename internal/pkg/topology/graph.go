package topology

import (
	"fmt"
	"sort"
)

// Graph is the bus adjacency list of a Network. Parallel edges appear once per edge.
type Graph struct {
	adjacencyList map[string][]string
}

// NewGraph returns an empty Graph.
func NewGraph() *Graph {
	return &Graph{adjacencyList: make(map[string][]string)}
}

// AddNode adds a bus. Bus ids are unique.
func (g *Graph) AddNode(id string) error {
	if _, exists := g.adjacencyList[id]; exists {
		return fmt.Errorf("node %q already exists in graph", id)
	}
	g.adjacencyList[id] = make([]string, 0)
	return nil
}

// AddEdge connects two existing buses in both directions.
func (g *Graph) AddEdge(a, b string) error {
	if _, exists := g.adjacencyList[a]; !exists {
		return fmt.Errorf("start node %q does not exist in graph", a)
	}
	if _, exists := g.adjacencyList[b]; !exists {
		return fmt.Errorf("end node %q does not exist in graph", b)
	}
	g.adjacencyList[a] = append(g.adjacencyList[a], b)
	g.adjacencyList[b] = append(g.adjacencyList[b], a)
	return nil
}

// Edges returns a copy of the neighbours of id.
func (g *Graph) Edges(id string) []string {
	return append([]string(nil), g.adjacencyList[id]...)
}

// Reachable returns the set of buses connected to from, from included.
func (g *Graph) Reachable(from string) map[string]bool {
	visited := map[string]bool{}
	if _, exists := g.adjacencyList[from]; !exists {
		return visited
	}
	visited[from] = true
	queue := []string{from}
	for len(queue) > 0 {
		curr := queue[0]
		queue = queue[1:]
		for _, next := range g.adjacencyList[curr] {
			if !visited[next] {
				visited[next] = true
				queue = append(queue, next)
			}
		}
	}
	return visited
}

// Islands returns the buses not reachable from from, sorted.
func (g *Graph) Islands(from string) []string {
	reached := g.Reachable(from)
	var out []string
	for id := range g.adjacencyList {
		if !reached[id] {
			out = append(out, id)
		}
	}
	sort.Strings(out)
	return out
}
