package bsp

// DecompressVisibility expands a run-length encoded PVS stream (§6): a
// non-zero byte is copied as-is; a zero byte is followed by a one-byte count
// of additional zero bytes to emit. numLeaves bounds the output bit count
// (rounded up to a whole byte) so a short stream still yields a
// correctly-sized bitset, zero-filled past the stream's end; a nil stream
// yields an all-visible (all 0xff) bitset.
func DecompressVisibility(compressed []byte, numLeaves int) []byte {
	outLen := (numLeaves + 7) >> 3
	out := make([]byte, outLen)

	if compressed == nil {
		// No compressed data means "everything visible" by convention;
		// MarkLeaves passes nil for a leaf whose VisOffset is < 0.
		for i := range out {
			out[i] = 0xff
		}
		return out
	}

	i := 0
	for i < outLen {
		if len(compressed) == 0 {
			out[i] = 0
			i++
			continue
		}
		b := compressed[0]
		compressed = compressed[1:]
		if b != 0 {
			out[i] = b
			i++
			continue
		}
		run := 0
		if len(compressed) > 0 {
			run = int(compressed[0])
			compressed = compressed[1:]
		}
		for j := 0; j < 1+run && i < outLen; j++ {
			out[i] = 0
			i++
		}
	}
	return out
}

// MarkLeaves stamps every leaf in viewLeaf's PVS (and its ancestor chain of
// nodes) with counter, so Walk can reject unstamped subtrees in O(1) (§4.1). It is only
// worth calling when the view leaf changed since the previous frame.
func (w *World) MarkLeaves(viewLeaf int, counter int32) {
	leaf := &w.Leaves[viewLeaf]

	var vis []byte
	if leaf.VisOffset < 0 {
		vis = DecompressVisibility(nil, len(w.Leaves))
	} else {
		vis = DecompressVisibility(w.Visibility[leaf.VisOffset:], len(w.Leaves))
	}

	for i := range w.Leaves {
		byteIdx := i >> 3
		if byteIdx >= len(vis) {
			break
		}
		if vis[byteIdx]&(1<<(uint(i)&7)) == 0 {
			continue
		}
		w.stampAncestors(i, counter)
	}
}

// stampAncestors marks leaf i and walks its parent chain up to the root,
// stopping early once it finds an already-stamped node (its ancestors must
// already be stamped too).
func (w *World) stampAncestors(leafIdx int, counter int32) {
	l := &w.Leaves[leafIdx]
	l.VisibleFrame = counter

	nodeIdx := l.Parent
	for nodeIdx >= 0 {
		n := &w.Nodes[nodeIdx]
		if n.VisibleFrame == counter {
			break
		}
		n.VisibleFrame = counter
		nodeIdx = n.Parent
	}
}

// FindLeaf descends the BSP from the head node, returning the index of the
// leaf containing pos (§4.1: "≥ 0 goes into child[0]").
func (w *World) FindLeaf(pos [3]float32) int {
	ref := w.HeadNode
	for ref >= 0 {
		n := &w.Nodes[ref]
		p := &w.Planes[n.Plane]
		d := p.Normal.X()*pos[0] + p.Normal.Y()*pos[1] + p.Normal.Z()*pos[2] - p.Dist
		if d >= 0 {
			ref = n.Children[0]
		} else {
			ref = n.Children[1]
		}
	}
	return LeafIndex(ref)
}
