package mir

// LoopInfo records the natural-loop nesting depth of each block,
// derived from back edges in the dominator tree. Like the dominator
// tree it is invalidated by any CFG transformation.
type LoopInfo struct {
	depth map[*Block]int
}

// NewLoopInfo finds the natural loops of f. An edge tail->head is a
// back edge when head dominates tail; the loop body is everything that
// reaches a tail without passing through the header. Multiple back
// edges to one header form a single loop.
func NewLoopInfo(f *Function, dom *DominatorTree) *LoopInfo {
	info := &LoopInfo{depth: make(map[*Block]int)}
	preds := f.Predecessors()

	tails := make(map[*Block][]*Block)
	for _, tail := range f.Blocks {
		for _, head := range tail.Successors() {
			if dom.Dominates(head, tail) {
				tails[head] = append(tails[head], tail)
			}
		}
	}

	for head, loopTails := range tails {
		// Flood backwards from the tails, bounded by the header.
		body := map[*Block]bool{head: true}
		stack := append([]*Block(nil), loopTails...)
		for len(stack) > 0 {
			b := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			if body[b] {
				continue
			}
			body[b] = true
			stack = append(stack, preds[b]...)
		}
		for b := range body {
			info.depth[b]++
		}
	}
	return info
}

// Depth returns the loop nesting depth of b; zero outside any loop.
func (l *LoopInfo) Depth(b *Block) int { return l.depth[b] }
