package raster

import "github.com/tesseract-forge/qraster/qfixed"

// insertNewIEdges merges the scanline's newly-active edge list (already
// sorted ascending by XStart) into the active edge list rooted at
// edgeHead, preserving ascending order (§4.4).
func (f *Frame) insertNewIEdges(toAdd int32) {
	for toAdd != none {
		next := f.edge(toAdd).Next
		cur := edgeHead
		for f.edge(f.edge(cur).Next).XStart < f.edge(toAdd).XStart {
			cur = f.edge(cur).Next
		}
		list := f.edge(cur).Next

		add := f.edge(toAdd)
		add.Next = list
		add.Prev = cur
		f.edge(list).Prev = toAdd
		f.edge(cur).Next = toAdd

		toAdd = next
	}
}

// leadingEdge activates the isurface a left edge belongs to, inserting it
// into the z-sorted active-surface list and emitting a span for whatever
// surface it displaces from the top (§4.4).
func (f *Frame) leadingEdge(idx int32, y int32) {
	ie := f.edge(idx)
	if ie.ISurfaceOffsets[1] == none {
		return
	}
	isurfIdx := ie.ISurfaceOffsets[1]
	isurf := &f.ISurfaces[isurfIdx]

	isurf.SpanState++
	if isurf.SpanState != 1 {
		return
	}

	topIdx := f.ISurfaces[1].Next
	top := &f.ISurfaces[topIdx]

	newTop := false
	switch {
	case isurf.Key < top.Key:
		newTop = true
	case isurf.Key == top.Key && isurf.IsInSubmodel:
		x := qfixed.X20(ie.XStart - 0xfffff).Float()
		newInvZ := isurf.ZiD + isurf.ZiStepX*x + isurf.ZiStepY*float32(y)
		curInvZ := top.ZiD + top.ZiStepX*x + top.ZiStepY*float32(y)
		if newInvZ*(1-CoplanarHysteresis) >= curInvZ {
			newTop = true
		} else if newInvZ*(1+CoplanarHysteresis) >= curInvZ && isurf.ZiStepX >= top.ZiStepX {
			newTop = true
		}
	}

	if !newTop {
		// continuesearch: advance until isurf's key no longer trails top's,
		// then re-check every time a same-key tie needs another round of the
		// isInSubmodel z-test (mirrors the original's goto continuesearch,
		// which re-enters this same advance-then-test loop rather than just
		// the tie-break check).
	continueSearch:
		for {
			topIdx = top.Next
			top = &f.ISurfaces[topIdx]
			if isurf.Key <= top.Key {
				break
			}
		}
		if isurf.Key == top.Key {
			if !isurf.IsInSubmodel {
				goto continueSearch
			}
			x := qfixed.X20(ie.XStart - 0xfffff).Float()
			newInvZ := isurf.ZiD + isurf.ZiStepX*x + isurf.ZiStepY*float32(y)
			curInvZ := top.ZiD + top.ZiStepX*x + top.ZiStepY*float32(y)
			switch {
			case newInvZ*(1-CoplanarHysteresis) >= curInvZ:
				// gotposition
			case newInvZ*(1+CoplanarHysteresis) >= curInvZ && isurf.ZiStepX >= top.ZiStepX:
				// gotposition
			default:
				goto continueSearch
			}
		}
	} else {
		px := int32(ie.XStart >> 20)
		if px > top.XLast {
			spanIdx := f.allocSpan()
			span := &f.Spans[spanIdx]
			span.XStart = top.XLast
			span.Count = px - span.XStart
			span.Y = y
			span.Next = top.Spans
			top.Spans = spanIdx
		}
		isurf.XLast = px
	}

	isurf.Next = topIdx
	isurf.Prev = top.Prev
	f.ISurfaces[top.Prev].Next = isurfIdx
	top.Prev = isurfIdx
}

// trailingEdge deactivates the isurface a right edge belongs to, emitting
// a span if it was the topmost (visible) surface (§4.4).
func (f *Frame) trailingEdge(idx int32, y int32) {
	ie := f.edge(idx)
	isurfIdx := ie.ISurfaceOffsets[0]
	isurf := &f.ISurfaces[isurfIdx]

	isurf.SpanState--
	if isurf.SpanState != 0 {
		return
	}

	if isurfIdx == f.ISurfaces[1].Next {
		px := int32(ie.XStart >> 20)
		if px > isurf.XLast {
			spanIdx := f.allocSpan()
			span := &f.Spans[spanIdx]
			span.XStart = isurf.XLast
			span.Count = px - span.XStart
			span.Y = y
			span.Next = isurf.Spans
			isurf.Spans = spanIdx
		}
		f.ISurfaces[isurf.Next].XLast = px
	}

	f.ISurfaces[isurf.Prev].Next = isurf.Next
	f.ISurfaces[isurf.Next].Prev = isurf.Prev
}

// cleanupSpan closes out the scanline: whatever surface remains on top
// gets a final span out to the screen edge, and every active surface's
// SpanState is reset for the next scanline (§4.4).
func (f *Frame) cleanupSpan(screenEndX, y int32) {
	isurfIdx := f.ISurfaces[1].Next
	isurf := &f.ISurfaces[isurfIdx]
	if isurf.XLast < screenEndX {
		spanIdx := f.allocSpan()
		span := &f.Spans[spanIdx]
		span.XStart = isurf.XLast
		span.Count = screenEndX - span.XStart
		span.Y = y
		span.Next = isurf.Spans
		isurf.Spans = spanIdx
	}
	for {
		isurf.SpanState = 0
		isurfIdx = isurf.Next
		isurf = &f.ISurfaces[isurfIdx]
		if isurfIdx == 1 {
			break
		}
	}
}

// generateSpan walks the active edge list for one scanline, alternating
// trailing/leading edge handling to partition it into spans (§4.4).
func (f *Frame) generateSpan(screenStartX, screenEndX, y int32) {
	f.ISurfaces[1].Next = 1
	f.ISurfaces[1].Prev = 1
	f.ISurfaces[1].XLast = screenStartX

	for idx := f.edge(edgeHead).Next; idx != edgeTail; idx = f.edge(idx).Next {
		ie := f.edge(idx)
		if ie.ISurfaceOffsets[0] != none {
			f.trailingEdge(idx, y)
		}
		if ie.ISurfaceOffsets[1] != none {
			f.leadingEdge(idx, y)
		}
	}

	f.cleanupSpan(screenEndX, y)
}

// removeEdges unlinks a scanline's expiring edges from the active list.
func (f *Frame) removeEdges(idx int32) {
	for idx != none {
		ie := f.edge(idx)
		f.edge(ie.Prev).Next = ie.Next
		f.edge(ie.Next).Prev = ie.Prev
		idx = ie.NextRemove
	}
}

// stepActiveIEdgeX advances every active edge's x by one scanline's step.
// An edge's x is only allowed to decrease relative to its neighbors when
// the scanline moves down (x_step can be negative for a leaning edge), so
// any edge whose new x falls below its predecessor's must be pulled out
// and reinserted further back in the list to keep it sorted (§4.4).
func (f *Frame) stepActiveIEdgeX() {
	idx := f.edge(edgeHead).Next
	for idx != edgeTail {
		var ie *IEdge
		for {
			ie = f.edge(idx)
			ie.XStart += ie.XStep
			if ie.XStart < f.edge(ie.Prev).XStart {
				break
			}
			idx = ie.Next
			if idx == edgeAfterTail {
				return
			}
		}

		next := ie.Next
		f.edge(ie.Prev).Next = ie.Next
		f.edge(ie.Next).Prev = ie.Prev

		temp := f.edge(ie.Prev).Prev
		for f.edge(temp).XStart > ie.XStart {
			temp = f.edge(temp).Prev
		}
		ie.Next = f.edge(temp).Next
		ie.Prev = temp
		f.edge(ie.Next).Prev = idx
		f.edge(temp).Next = idx

		idx = next
	}
}

// ScanEdge sweeps scanlines y0..y0+height-1 across [x0, x0+width), merging
// each scanline's new edges, generating spans, retiring expired edges, and
// stepping survivors' x for the next scanline (§4.4). flush is called
// whenever the span arena nears its budget, mirroring the source
// material's "draw now, reset spans" overflow handling; flush should
// render every surface's current Spans list, after which ScanEdge resets
// the span arena and every isurface's Spans itself.
func (f *Frame) ScanEdge(x0, y0, width, height int, maxSpans int, flush func()) {
	screenStartX := int32(x0)
	screenEndX := int32(x0 + width)

	f.head = IEdge{Next: edgeTail, Prev: edgeSentinel, XStart: qfixed.X20(screenStartX) << 20}
	f.tail = IEdge{Next: edgeAfterTail, Prev: edgeHead, XStart: (qfixed.X20(screenEndX) << 20) + 0xfffff}
	f.afterTail = IEdge{Next: edgeSentinel, Prev: edgeTail, XStart: -1}
	// A value no real edge's fixed20 x can reach, so nothing ever sorts past
	// it; the source material's literal "2000 << 24" overflows a 32-bit int,
	// so this uses the largest representable fixed20 x directly instead.
	f.sentinel = IEdge{Prev: edgeAfterTail, XStart: 0x7fffffff}

	bottomY := y0 + height - 1
	y := y0
	for ; y < bottomY; y++ {
		f.ISurfaces[1].SpanState = 1
		if head := f.NewIEdges[y]; head != none {
			f.insertNewIEdges(head)
		}
		f.generateSpan(screenStartX, screenEndX, int32(y))

		if len(f.Spans) >= maxSpans {
			flush()
			f.Spans = f.Spans[:1]
			for i := 1; i < len(f.ISurfaces); i++ {
				f.ISurfaces[i].Spans = none
			}
		}

		if rm := f.RemoveIEdges[y]; rm != none {
			f.removeEdges(rm)
		}
		if f.edge(edgeHead).Next != edgeTail {
			f.stepActiveIEdgeX()
		}
	}

	f.ISurfaces[1].SpanState = 1
	if head := f.NewIEdges[y]; head != none {
		f.insertNewIEdges(head)
	}
	f.generateSpan(screenStartX, screenEndX, int32(y))

	flush()
}
