// Package taxonomy holds the skill hierarchy and answers structural questions
// about it: ancestry, siblings, strands and materialized paths.
package taxonomy

import (
	"fmt"
	"sort"
	"strings"

	"github.com/collinhord/rock-ai-hackathon-2025-sub002/internal/types"
)

// PathSeparator joins node names in a materialized path.
const PathSeparator = " > "

// Tree is an immutable index over a set of taxonomy nodes.
type Tree struct {
	nodes    map[string]*types.TaxonomyNode
	children map[string][]string
	ids      []string
	issues   []types.IntegrityIssue
}

// IntegrityError wraps the structural issues of a tree.
type IntegrityError struct {
	Issues []types.IntegrityIssue
}

func (e *IntegrityError) Error() string {
	if len(e.Issues) == 1 {
		i := e.Issues[0]
		return fmt.Sprintf("taxonomy integrity: %s at %s: %s", i.Kind, i.Ref, i.Detail)
	}
	return fmt.Sprintf("taxonomy integrity: %d issues (first: %s at %s)", len(e.Issues), e.Issues[0].Kind, e.Issues[0].Ref)
}

// Build indexes nodes and checks hierarchy invariants. Violations are returned as
// issues on the tree; the tree stays usable, with unresolvable parents treated as roots.
func Build(nodes []types.TaxonomyNode) *Tree {
	t := &Tree{
		nodes:    make(map[string]*types.TaxonomyNode, len(nodes)),
		children: make(map[string][]string),
	}

	for i := range nodes {
		n := nodes[i]
		if _, dup := t.nodes[n.ID]; dup {
			t.issue(types.IntegrityDuplicateID, n.ID, "node id appears more than once; later row ignored")
			continue
		}
		t.nodes[n.ID] = &n
		t.ids = append(t.ids, n.ID)
	}
	sort.Strings(t.ids)

	for _, id := range t.ids {
		n := t.nodes[id]
		if n.ParentID == "" {
			if n.Level != types.LevelStrand {
				t.issue(types.IntegrityMissingParent, id, fmt.Sprintf("%s node has no parent", n.Level))
			}
			continue
		}
		parent, ok := t.nodes[n.ParentID]
		if !ok {
			t.issue(types.IntegrityOrphan, id, fmt.Sprintf("parent %s not found", n.ParentID))
			n.ParentID = ""
			continue
		}
		if n.Level != parent.Level+1 {
			t.issue(types.IntegrityLevelSkip, id,
				fmt.Sprintf("%s node under %s parent %s", n.Level, parent.Level, parent.ID))
		}
		t.children[n.ParentID] = append(t.children[n.ParentID], id)
	}

	t.breakCycles()

	for _, id := range t.ids {
		if n := t.nodes[id]; n.Path == "" {
			n.Path = t.materialize(id)
		}
	}
	return t
}

func (t *Tree) issue(kind types.IntegrityKind, ref, detail string) {
	t.issues = append(t.issues, types.IntegrityIssue{Kind: kind, Ref: ref, Detail: detail})
}

// breakCycles detaches the lowest id in each parent cycle so every walk terminates.
func (t *Tree) breakCycles() {
	state := make(map[string]int) // 0 unvisited, 1 on stack, 2 done
	for _, start := range t.ids {
		if state[start] != 0 {
			continue
		}
		var path []string
		cur := start
		for cur != "" && state[cur] == 0 {
			state[cur] = 1
			path = append(path, cur)
			cur = t.nodes[cur].ParentID
		}
		if cur != "" && state[cur] == 1 {
			// cur is on the current path: everything from cur onwards is a cycle.
			var cycle []string
			for i := len(path) - 1; i >= 0; i-- {
				cycle = append(cycle, path[i])
				if path[i] == cur {
					break
				}
			}
			sort.Strings(cycle)
			victim := cycle[0]
			t.issue(types.IntegrityCycle, victim, "parent chain loops through "+strings.Join(cycle, ", "))
			t.detach(victim)
		}
		for _, id := range path {
			state[id] = 2
		}
	}
}

func (t *Tree) detach(id string) {
	n := t.nodes[id]
	kids := t.children[n.ParentID]
	for i, k := range kids {
		if k == id {
			t.children[n.ParentID] = append(kids[:i:i], kids[i+1:]...)
			break
		}
	}
	n.ParentID = ""
}

func (t *Tree) materialize(id string) string {
	var names []string
	for _, a := range append([]string{id}, t.Ancestors(id)...) {
		names = append(names, t.nodes[a].Name)
	}
	for i, j := 0, len(names)-1; i < j; i, j = i+1, j-1 {
		names[i], names[j] = names[j], names[i]
	}
	return strings.Join(names, PathSeparator)
}

// Issues returns the integrity problems found while building the tree.
func (t *Tree) Issues() []types.IntegrityIssue { return t.issues }

// Err returns an *IntegrityError if the tree has issues.
func (t *Tree) Err() error {
	if len(t.issues) == 0 {
		return nil
	}
	return &IntegrityError{Issues: t.issues}
}

// Len is the number of nodes.
func (t *Tree) Len() int { return len(t.ids) }

// IDs returns node ids in sorted order.
func (t *Tree) IDs() []string { return t.ids }

// Node looks up a node by id.
func (t *Tree) Node(id string) (*types.TaxonomyNode, bool) {
	n, ok := t.nodes[id]
	return n, ok
}

// Nodes returns copies of all nodes sorted by id.
func (t *Tree) Nodes() []types.TaxonomyNode {
	out := make([]types.TaxonomyNode, 0, len(t.ids))
	for _, id := range t.ids {
		out = append(out, *t.nodes[id])
	}
	return out
}

// Children returns the direct children of id, sorted.
func (t *Tree) Children(id string) []string {
	kids := append([]string(nil), t.children[id]...)
	sort.Strings(kids)
	return kids
}

// Ancestors returns the parent chain of id, nearest first.
func (t *Tree) Ancestors(id string) []string {
	var out []string
	seen := map[string]bool{id: true}
	n, ok := t.nodes[id]
	for ok && n.ParentID != "" && !seen[n.ParentID] {
		out = append(out, n.ParentID)
		seen[n.ParentID] = true
		n, ok = t.nodes[n.ParentID]
	}
	return out
}

// IsAncestor reports whether a is a proper ancestor of b.
func (t *Tree) IsAncestor(a, b string) bool {
	for _, anc := range t.Ancestors(b) {
		if anc == a {
			return true
		}
	}
	return false
}

// Strand returns the root ancestor of id (id itself for a root).
func (t *Tree) Strand(id string) string {
	anc := t.Ancestors(id)
	if len(anc) == 0 {
		return id
	}
	return anc[len(anc)-1]
}

// Relation classifies the structural relation between two nodes.
func (t *Tree) Relation(a, b string) types.Relation {
	if t.IsAncestor(a, b) || t.IsAncestor(b, a) {
		return types.RelationAncestor
	}
	na, okA := t.nodes[a]
	nb, okB := t.nodes[b]
	if !okA || !okB {
		return types.RelationUnrelatedLevel
	}
	if na.ParentID != "" && na.ParentID == nb.ParentID {
		return types.RelationSiblings
	}
	if t.Strand(a) != t.Strand(b) {
		return types.RelationCrossBranch
	}
	return types.RelationUnrelatedLevel
}

// StructuralNeighbors lists every node that is an ancestor or sibling of id.
// Together over all ids this covers every ancestor/descendant and sibling pair.
func (t *Tree) StructuralNeighbors(id string) []string {
	out := t.Ancestors(id)
	if n, ok := t.nodes[id]; ok && n.ParentID != "" {
		for _, sib := range t.children[n.ParentID] {
			if sib != id {
				out = append(out, sib)
			}
		}
	}
	return out
}

// WithMerge returns a new tree in which absorbed is removed and its children are
// re-pointed to survivor.
func (t *Tree) WithMerge(survivor, absorbed string) (*Tree, error) {
	if survivor == absorbed {
		return nil, fmt.Errorf("cannot merge node %s into itself", survivor)
	}
	if _, ok := t.nodes[survivor]; !ok {
		return nil, fmt.Errorf("node not found: %s", survivor)
	}
	if _, ok := t.nodes[absorbed]; !ok {
		return nil, fmt.Errorf("node not found: %s", absorbed)
	}
	if t.IsAncestor(absorbed, survivor) {
		return nil, fmt.Errorf("cannot merge ancestor %s into its descendant %s", absorbed, survivor)
	}

	// The absorbed subtree moves under survivor and shifts level accordingly.
	delta := t.nodes[survivor].Level - t.nodes[absorbed].Level
	nodes := make([]types.TaxonomyNode, 0, len(t.ids)-1)
	for _, id := range t.ids {
		if id == absorbed {
			continue
		}
		n := *t.nodes[id]
		if t.IsAncestor(absorbed, id) {
			n.Level += delta
		}
		if n.ParentID == absorbed {
			n.ParentID = survivor
		}
		n.Path = ""
		nodes = append(nodes, n)
	}
	return Build(nodes), nil
}

// ResolveParents fills empty parent ids from materialized paths: a node whose path
// is "A > B > C" gets the node with path "A > B" as its parent.
func ResolveParents(nodes []types.TaxonomyNode) []types.TaxonomyNode {
	byPath := make(map[string]string, len(nodes))
	for _, n := range nodes {
		if n.Path != "" {
			byPath[normalizePath(n.Path)] = n.ID
		}
	}
	out := make([]types.TaxonomyNode, len(nodes))
	for i, n := range nodes {
		if n.ParentID == "" && n.Path != "" {
			p := normalizePath(n.Path)
			if idx := strings.LastIndex(p, PathSeparator); idx > 0 {
				if parent, ok := byPath[p[:idx]]; ok {
					n.ParentID = parent
				}
			}
		}
		out[i] = n
	}
	return out
}

func normalizePath(p string) string {
	parts := strings.Split(p, ">")
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	return strings.Join(parts, PathSeparator)
}
