package store

// wouldCycle reports whether adding edges "from depends on each of
// blockedBy" would create a cycle in the blocked-by graph, given the
// current graph described by all. all must include `from` itself if it
// already exists (its existing blocked_by edges are ignored in favor of
// the proposed blockedBy set, since callers pass the full desired set).
func wouldCycle(all map[string]*Task, from string, blockedBy map[string]struct{}) bool {
	// A cycle exists iff `from` is reachable from any node in blockedBy
	// by following blocked_by edges forward (i.e. from is a transitive
	// blocker of one of its own blockers).
	visited := map[string]bool{}
	var dfs func(id string) bool
	dfs = func(id string) bool {
		if id == from {
			return true
		}
		if visited[id] {
			return false
		}
		visited[id] = true
		t, ok := all[id]
		if !ok {
			return false
		}
		for dep := range t.BlockedBy {
			if dfs(dep) {
				return true
			}
		}
		return false
	}
	for dep := range blockedBy {
		if dfs(dep) {
			return true
		}
	}
	return false
}

// InTransitiveBlockedBy reports whether id appears anywhere in the
// transitive closure of start's blocked_by graph, per the invariant in §8:
// ¬(T.short_id ∈ transitive_closure(T.blocked_by)).
func InTransitiveBlockedBy(all map[string]*Task, start, id string) bool {
	visited := map[string]bool{}
	var dfs func(cur string) bool
	dfs = func(cur string) bool {
		t, ok := all[cur]
		if !ok {
			return false
		}
		for dep := range t.BlockedBy {
			if dep == id {
				return true
			}
			if visited[dep] {
				continue
			}
			visited[dep] = true
			if dfs(dep) {
				return true
			}
		}
		return false
	}
	return dfs(start)
}
