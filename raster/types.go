// Package raster turns visible BSP surfaces into screen-space spans: it
// clips each face against the active frustum planes, emits screen-space
// edges into a per-frame arena, sorts them into an active edge list per
// scanline, and partitions each scanline into horizontal spans bounded by
// the edge crossings (§4.3, §4.4).
package raster

import "github.com/tesseract-forge/qraster/qfixed"

// Sentinel indices used in place of nil pointers. 0 means "no isurface" in
// IEdge.ISurfaceOffsets (mirrors the source material's pointer-as-bool use)
// and "no span" in ESpan chains. The four edgeXxx constants identify the
// four fixed sentinel edges ScanEdge threads into the active edge list
// instead of allocating them in the arena.
const (
	none          int32 = 0
	edgeHead      int32 = -1
	edgeTail      int32 = -2
	edgeAfterTail int32 = -3
	edgeSentinel  int32 = -4
)

// IEdge is a screen-space edge clipped and projected for one scanline
// range. Prev/Next/NextRemove are arena indices (or one of the edgeXxx
// sentinels) standing in for the source material's intrusive doubly
// linked list.
type IEdge struct {
	Prev, Next, NextRemove int32
	Owner                  int32 // index into World.Edges, or -1 for a synthetic edge

	XStart qfixed.X20
	XStep  qfixed.X20

	// ISurfaceOffsets[0] is the trailing (right) edge's owning isurface,
	// ISurfaceOffsets[1] the leading (left) edge's. Emission sets exactly one;
	// reEmitIEdge fills the other when a second surface shares the edge.
	ISurfaceOffsets [2]int32

	NearInvZ float32
}

// ISurface is a clipped, projected face queued for span generation. Next/
// Prev link it into the scanline's active-surface list (index 1, the
// background surface, is both ends of that circular list). Spans is the
// head of its emitted-span list for the current flush window.
type ISurface struct {
	Next, Prev int32
	Spans      int32

	SurfaceIndex int32 // index into World.Surfaces, -1 for synthetic (background)

	Key          int32
	XLast        int32
	SpanState    int32
	Flags        int32
	NearestInvZ  float32
	IsInSubmodel bool

	// 1/z plane gradient: invZ(x, y) = ZiStepX*x + ZiStepY*y + ZiD.
	ZiStepX, ZiStepY, ZiD float32
}

// ESpan is one horizontal pixel run on a single scanline.
type ESpan struct {
	Next           int32
	XStart, Y, Count int32
}

// BackgroundFlags marks the dummy surface that is always active (§4.4),
// standing in for unfilled screen area once a frame's visible surfaces are
// drawn.
const BackgroundFlags = 1 << 30

// Frame is the per-frame arena feeding edge/span generation. It is reset
// (not reallocated) at the start of every frame; all cross references are
// stable arena indices, never pointers, so the arena can be grown with
// append without invalidating already-emitted data (Design Note §9).
type Frame struct {
	Edges     []IEdge
	ISurfaces []ISurface
	Spans     []ESpan

	head, tail, afterTail, sentinel IEdge

	// NewIEdges[y] / RemoveIEdges[y] are arena indices (none = empty) of
	// edge lists to insert/retire when the scanline sweep reaches y.
	NewIEdges    []int32
	RemoveIEdges []int32

	NearestInvZ  float32
	FrameCount   int32
	OutOfIEdges  int32
	SurfaceCount int32

	MaxEdges    int
	MaxSurfaces int
}

// NewFrame allocates a Frame sized for screenHeight scanlines, with
// maxEdges/maxSurfaces as the soft overflow budget the original fixed its
// stack arrays to (§4.3's "span/edge pool overflow" edge case).
func NewFrame(screenHeight, maxEdges, maxSurfaces int) *Frame {
	f := &Frame{
		MaxEdges:    maxEdges,
		MaxSurfaces: maxSurfaces,
	}
	f.NewIEdges = make([]int32, screenHeight)
	f.RemoveIEdges = make([]int32, screenHeight)
	f.Reset()
	return f
}

// Reset clears the arena for a new frame without releasing its backing
// storage.
func (f *Frame) Reset() {
	f.FrameCount++
	f.OutOfIEdges = 0
	f.SurfaceCount = 0
	f.NearestInvZ = 0

	if cap(f.Edges) == 0 {
		f.Edges = make([]IEdge, 1, f.MaxEdges+1)
	} else {
		f.Edges = f.Edges[:1]
	}
	if cap(f.ISurfaces) == 0 {
		f.ISurfaces = make([]ISurface, 2, f.MaxSurfaces+2)
	} else {
		f.ISurfaces = f.ISurfaces[:2]
	}
	// isurfaces[1] is the background: always active, sorts behind every
	// real key, never produces a span gap of its own.
	f.ISurfaces[1] = ISurface{SurfaceIndex: -1, Flags: BackgroundFlags, Key: 0x7fffffff}

	if cap(f.Spans) == 0 {
		f.Spans = make([]ESpan, 1, 4096)
	} else {
		f.Spans = f.Spans[:1]
	}

	for i := range f.NewIEdges {
		f.NewIEdges[i] = none
		f.RemoveIEdges[i] = none
	}
}

// edge resolves an arena index or sentinel to its backing IEdge.
func (f *Frame) edge(i int32) *IEdge {
	switch i {
	case edgeHead:
		return &f.head
	case edgeTail:
		return &f.tail
	case edgeAfterTail:
		return &f.afterTail
	case edgeSentinel:
		return &f.sentinel
	default:
		return &f.Edges[i]
	}
}

// allocEdge appends a zero IEdge and returns its index, or -1 if the arena
// has hit its soft budget (mirrors the "outOfIEdges" overflow counter).
func (f *Frame) allocEdge() int32 {
	if len(f.Edges) > f.MaxEdges {
		return -1
	}
	f.Edges = append(f.Edges, IEdge{})
	return int32(len(f.Edges) - 1)
}

func (f *Frame) allocSurface() int32 {
	if len(f.ISurfaces) > f.MaxSurfaces+1 {
		return -1
	}
	f.ISurfaces = append(f.ISurfaces, ISurface{})
	return int32(len(f.ISurfaces) - 1)
}

func (f *Frame) allocSpan() int32 {
	f.Spans = append(f.Spans, ESpan{})
	return int32(len(f.Spans) - 1)
}
