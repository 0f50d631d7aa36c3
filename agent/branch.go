package agent

// buildBranchPath joins a parent branch and a child label with ".". Either
// side may be empty.
func buildBranchPath(parent, child string) string {
	if parent == "" {
		return child
	}
	if child == "" {
		return parent
	}
	return parent + "." + child
}
