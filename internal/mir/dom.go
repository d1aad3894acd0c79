package mir

// DominatorTree answers dominance queries for one function. It is a
// precomputed analysis: after the function is transformed it must be
// rebuilt.
type DominatorTree struct {
	fn       *Function
	idom     map[*Block]*Block
	children map[*Block][]*Block
	rpoIndex map[*Block]int
}

// NewDominatorTree computes the dominator tree of f using the
// iterative reverse-postorder algorithm.
func NewDominatorTree(f *Function) *DominatorTree {
	entry := f.Entry()
	t := &DominatorTree{
		fn:       f,
		idom:     make(map[*Block]*Block),
		children: make(map[*Block][]*Block),
		rpoIndex: make(map[*Block]int),
	}
	if entry == nil {
		return t
	}

	var rpo []*Block
	seen := make(map[*Block]bool)
	var dfs func(b *Block)
	dfs = func(b *Block) {
		seen[b] = true
		for _, s := range b.Successors() {
			if !seen[s] {
				dfs(s)
			}
		}
		rpo = append(rpo, b)
	}
	dfs(entry)
	for i, j := 0, len(rpo)-1; i < j; i, j = i+1, j-1 {
		rpo[i], rpo[j] = rpo[j], rpo[i]
	}
	for i, b := range rpo {
		t.rpoIndex[b] = i
	}

	preds := f.Predecessors()
	t.idom[entry] = entry
	for changed := true; changed; {
		changed = false
		for _, b := range rpo[1:] {
			var newIdom *Block
			for _, p := range preds[b] {
				if t.idom[p] == nil {
					continue
				}
				if newIdom == nil {
					newIdom = p
				} else {
					newIdom = t.intersect(p, newIdom)
				}
			}
			if newIdom != nil && t.idom[b] != newIdom {
				t.idom[b] = newIdom
				changed = true
			}
		}
	}
	delete(t.idom, entry)

	for b, parent := range t.idom {
		t.children[parent] = append(t.children[parent], b)
	}
	// Deterministic child order follows the reverse postorder.
	for _, kids := range t.children {
		for i := 1; i < len(kids); i++ {
			for j := i; j > 0 && t.rpoIndex[kids[j]] < t.rpoIndex[kids[j-1]]; j-- {
				kids[j], kids[j-1] = kids[j-1], kids[j]
			}
		}
	}
	return t
}

func (t *DominatorTree) intersect(a, b *Block) *Block {
	for a != b {
		for t.rpoIndex[a] > t.rpoIndex[b] {
			a = t.idom[a]
		}
		for t.rpoIndex[b] > t.rpoIndex[a] {
			b = t.idom[b]
		}
	}
	return a
}

// Root returns the entry block.
func (t *DominatorTree) Root() *Block { return t.fn.Entry() }

// IDom returns the immediate dominator of b, or nil for the entry and
// for unreachable blocks.
func (t *DominatorTree) IDom(b *Block) *Block { return t.idom[b] }

// Children lists the blocks immediately dominated by b.
func (t *DominatorTree) Children(b *Block) []*Block { return t.children[b] }

// Dominates reports whether a dominates b. Every block dominates
// itself.
func (t *DominatorTree) Dominates(a, b *Block) bool {
	for cur := b; cur != nil; {
		if cur == a {
			return true
		}
		next := t.idom[cur]
		if next == cur {
			return false
		}
		cur = next
	}
	return false
}

// Reachable reports whether b is reachable from the entry.
func (t *DominatorTree) Reachable(b *Block) bool {
	_, ok := t.rpoIndex[b]
	return ok
}

// OrderedBlocks returns the blocks in dominance order: a preorder walk
// of the dominator tree, so every block appears after all of its
// dominators.
func (t *DominatorTree) OrderedBlocks() []*Block {
	var out []*Block
	t.Walk(t.Root(), func(b *Block) bool {
		out = append(out, b)
		return true
	})
	return out
}

// Walk visits the dominator subtree rooted at from in preorder. When
// visit returns false the block's dominated children are pruned from
// the walk.
func (t *DominatorTree) Walk(from *Block, visit func(*Block) bool) {
	if from == nil {
		return
	}
	if !visit(from) {
		return
	}
	for _, child := range t.children[from] {
		t.Walk(child, visit)
	}
}
