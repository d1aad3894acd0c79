package mir

// ColdBlockInfo classifies blocks that are only reachable through
// branch edges hinted as unlikely: error and slow paths.
type ColdBlockInfo struct {
	cold map[*Block]bool
}

// NewColdBlockInfo computes cold blocks for f by flooding from the
// entry along warm edges only; any reachable block the flood misses is
// cold.
func NewColdBlockInfo(f *Function) *ColdBlockInfo {
	info := &ColdBlockInfo{cold: make(map[*Block]bool)}
	entry := f.Entry()
	if entry == nil {
		return info
	}

	warm := make(map[*Block]bool)
	stack := []*Block{entry}
	for len(stack) > 0 {
		b := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if warm[b] {
			continue
		}
		warm[b] = true
		var coldSucc *Block
		if cb, ok := b.Terminator().(*CondBr); ok {
			coldSucc = cb.ColdSuccessor()
		}
		for _, s := range b.Successors() {
			if s != coldSucc {
				stack = append(stack, s)
			}
		}
	}

	for _, b := range f.Blocks {
		if !warm[b] {
			info.cold[b] = true
		}
	}
	return info
}

// IsCold reports whether b sits on a statically cold path.
func (c *ColdBlockInfo) IsCold(b *Block) bool { return c.cold[b] }
