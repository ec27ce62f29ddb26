package registry

import "sort"

// DetectCycles walks the direct links of every scanned file and returns
// each reference cycle found, closed with its first file.
func (t *DependencyTracker) DetectCycles() [][]string {
	t.mu.RLock()
	graph := make(map[string][]string, len(t.links))
	for f, deps := range t.links {
		graph[f] = append([]string(nil), deps...)
	}
	t.mu.RUnlock()

	files := make([]string, 0, len(graph))
	for f := range graph {
		files = append(files, f)
	}
	sort.Strings(files)

	var cycles [][]string
	visited := make(map[string]bool)
	recStack := make(map[string]bool)

	for _, f := range files {
		if !visited[f] {
			if cycle := detectCycleDFS(f, graph, visited, recStack, nil); cycle != nil {
				cycles = append(cycles, cycle)
			}
		}
	}
	return cycles
}

func detectCycleDFS(file string, graph map[string][]string, visited, recStack map[string]bool, path []string) []string {
	visited[file] = true
	recStack[file] = true
	path = append(path, file)

	for _, dep := range graph[file] {
		if !visited[dep] {
			if cycle := detectCycleDFS(dep, graph, visited, recStack, path); cycle != nil {
				return cycle
			}
		} else if recStack[dep] {
			for i, p := range path {
				if p == dep {
					cycle := make([]string, len(path)-i+1)
					copy(cycle, path[i:])
					cycle[len(cycle)-1] = dep
					return cycle
				}
			}
		}
	}

	recStack[file] = false
	return nil
}
