package raster

import (
	"github.com/go-gl/mathgl/mgl32"

	"github.com/tesseract-forge/qraster/bsp"
	"github.com/tesseract-forge/qraster/camera"
	"github.com/tesseract-forge/qraster/qfixed"
)

// ClipPlane is one active frustum plane for a single RenderFace call,
// carrying its original frustum-plane index so the left/right edge-patch
// re-clip can tell which planes it already passed (§4.3).
type ClipPlane struct {
	Normal    mgl32.Vec3
	Distance  float32
	LeftEdge  bool
	RightEdge bool
	OrigIndex int
}

// BuildClipPlanes returns the active planes in ascending frustum-plane
// order, filtered by clipflag's set bits. The original links these as a
// singly linked list built by prepending in descending index order, which
// produces the same ascending final order this returns.
func BuildClipPlanes(cam *camera.Camera, clipflag int) []ClipPlane {
	var planes []ClipPlane
	for i := 0; i < 4; i++ {
		if clipflag&(1<<uint(i)) == 0 {
			continue
		}
		n, d := cam.WorldPlane(i)
		planes = append(planes, ClipPlane{
			Normal:    n,
			Distance:  d,
			LeftEdge:  i == cam.LeftEdgePlane(),
			RightEdge: i == cam.RightEdgePlane(),
			OrigIndex: i,
		})
	}
	return planes
}

// after returns the sub-list of planes whose OrigIndex is greater than
// idx, i.e. the planes that would follow plane idx in the original's
// singly linked clip list.
func after(planes []ClipPlane, idx int) []ClipPlane {
	for i, p := range planes {
		if p.OrigIndex > idx {
			return planes[i:]
		}
	}
	return nil
}

// surfaceClipResult tracks whether the convex face clip produced a
// left/right screen-edge crossing, and if so the enter/exit points needed
// to stitch a synthetic vertical fill edge (§4.3).
type surfaceClipResult struct {
	leftEdgeClipped, rightEdgeClipped           bool
	vertLeftEnter, vertLeftExit                 mgl32.Vec3
	vertRightEnter, vertRightExit                mgl32.Vec3
}

type edgeClipResult struct {
	v0, v1         mgl32.Vec3
	v0Unclipped    bool
	fullyClipped   bool
}

// needCache mirrors the tri-state the original threads through ClipEdge by
// pointer: start at "fully clipped" (the frame-tagged form is applied by
// the caller once clipping finishes), degrade to partially-clipped the
// moment any plane actually cuts the edge.
type cacheState struct {
	partial bool
}

// clipEdge clips segment v0-v1 against planes in order, recording
// left/right screen-edge crossings into scr (§4.3's convex-face
// assumption: each plane cuts a convex face at most once, so at most one
// enter/exit pair is produced per edge).
func clipEdge(v0, v1 mgl32.Vec3, planes []ClipPlane, scr *surfaceClipResult, needCache *cacheState) edgeClipResult {
	result := edgeClipResult{v0Unclipped: true}

	for _, p := range planes {
		d0 := v0.Dot(p.Normal) - p.Distance
		d1 := v1.Dot(p.Normal) - p.Distance

		switch {
		case d0 >= 0 && d1 >= 0:
			// both points unclipped by this plane, continue

		case d0 >= 0 && d1 < 0:
			needCache.partial = true
			t := d0 / (d0 - d1)
			newPoint := v0.Add(v1.Sub(v0).Mul(t))
			v1 = newPoint
			if p.LeftEdge {
				scr.leftEdgeClipped = true
				scr.vertLeftExit = newPoint
			} else if p.RightEdge {
				scr.rightEdgeClipped = true
				scr.vertRightExit = newPoint
			}

		case d0 < 0 && d1 < 0:
			result.v0Unclipped = false
			result.fullyClipped = true
			result.v0, result.v1 = v0, v1
			return result

		default: // d0 < 0, d1 >= 0
			result.v0Unclipped = false
			needCache.partial = true
			t := d0 / (d0 - d1)
			newPoint := v0.Add(v1.Sub(v0).Mul(t))
			v0 = newPoint
			if p.LeftEdge {
				scr.leftEdgeClipped = true
				scr.vertLeftEnter = newPoint
			} else if p.RightEdge {
				scr.rightEdgeClipped = true
				scr.vertRightEnter = newPoint
			}
		}
	}

	result.v0, result.v1 = v0, v1
	return result
}

// lastVertData caches the previous edge's second projected vertex so
// adjacent edges sharing a vertex (the common case walking a face's edge
// loop) skip re-projecting it (§4.3).
type lastVertData struct {
	screenX1, screenY1 float32
	viewInvZ1          float32
	ceilScreenY1        int32
	valid              bool
}

// emitIEdge transforms and projects v0/v1 (already clipped, in world space)
// into screen space and, unless they land on the same scanline, allocates an
// IEdge into the scanline's new-edge list (§4.3). onlyNearInvZ restricts the
// call to updating Frame.NearestInvZ only, used for the synthetic right
// screen-edge patch which never needs stepping data.
// emitIEdge returns (emitted, horizontal): emitted matches the original's
// boolean return (counts toward "did this face emit anything"); horizontal
// reports the degenerate same-scanline case, which the caller must cache
// as fully-clipped-this-frame rather than as a reusable arena offset.
func (f *Frame) emitIEdge(v0, v1 mgl32.Vec3, cam *camera.Camera, lvd *lastVertData, onlyNearInvZ bool, owner int32) (emitted bool, horizontal bool) {
	var screenX0, screenY0, viewInvZ0 float32
	var ceilY0 int32

	if lvd.valid {
		screenX0, screenY0, viewInvZ0, ceilY0 = lvd.screenX1, lvd.screenY1, lvd.viewInvZ1, lvd.ceilScreenY1
	} else {
		screenX0, screenY0, viewInvZ0 = cam.Project(cam.TransformPoint(v0))
		ceilY0 = ceilInt32(screenY0)
	}

	screenX1, screenY1, viewInvZ1 := cam.Project(cam.TransformPoint(v1))
	ceilY1 := ceilInt32(screenY1)

	nearInv := viewInvZ0
	if viewInvZ1 > nearInv {
		nearInv = viewInvZ1
	}
	if nearInv > f.NearestInvZ {
		f.NearestInvZ = nearInv
	}

	lvd.screenX1, lvd.screenY1, lvd.viewInvZ1, lvd.ceilScreenY1 = screenX1, screenY1, viewInvZ1, ceilY1

	if onlyNearInvZ {
		return false, false
	}

	if ceilY0 == ceilY1 {
		return true, true
	}

	idx := f.allocEdge()
	if idx < 0 {
		return false, false
	}
	ie := f.edge(idx)
	ie.Owner = owner
	ie.NearInvZ = viewInvZ0

	var topY, bottomY int32
	var xStart, xStep float32

	if ceilY0 < ceilY1 {
		// trailing (right) edge
		topY = ceilY0
		bottomY = ceilY1 - 1
		xStep = (screenX1 - screenX0) / (screenY1 - screenY0)
		xStart = screenX0 + (float32(ceilY0)-screenY0)*xStep
		ie.ISurfaceOffsets[0] = int32(len(f.ISurfaces)) // current (not-yet-allocated) surface index
		ie.ISurfaceOffsets[1] = none
	} else {
		// leading (left) edge
		topY = ceilY1
		bottomY = ceilY0 - 1
		xStep = (screenX0 - screenX1) / (screenY0 - screenY1)
		xStart = screenX1 + (float32(ceilY1)-screenY1)*xStep
		ie.ISurfaceOffsets[1] = int32(len(f.ISurfaces))
		ie.ISurfaceOffsets[0] = none
	}

	ie.XStep = qfixed.FromFloat20(xStep)
	ie.XStart = qfixed.FromFloat20(xStart) + 0xfffff

	xCheck := ie.XStart
	if ie.ISurfaceOffsets[0] != none {
		xCheck++
	}

	head := f.NewIEdges[topY]
	if head == none || xCheck < f.edge(head).XStart {
		ie.Next = head
		f.NewIEdges[topY] = idx
	} else {
		temp := head
		for f.edge(temp).Next != none && f.edge(f.edge(temp).Next).XStart < xCheck {
			temp = f.edge(temp).Next
		}
		ie.Next = f.edge(temp).Next
		f.edge(temp).Next = idx
	}

	ie.NextRemove = f.RemoveIEdges[bottomY]
	f.RemoveIEdges[bottomY] = idx

	return true, false
}

func ceilInt32(v float32) int32 {
	i := int32(v)
	if float32(i) < v {
		i++
	}
	return i
}

// reEmitIEdge re-links a previously emitted, still-cached IEdge to the
// surface currently being clipped, used when a shared edge was emitted as
// fully-inside for an earlier surface this frame (§4.1 edge caching).
func (f *Frame) reEmitIEdge(cachedIdx int32) bool {
	ie := f.edge(cachedIdx)
	if ie.ISurfaceOffsets[0] == none {
		ie.ISurfaceOffsets[0] = int32(len(f.ISurfaces))
	} else {
		ie.ISurfaceOffsets[1] = int32(len(f.ISurfaces))
	}
	if ie.NearInvZ > f.NearestInvZ {
		f.NearestInvZ = ie.NearInvZ
	}
	return true
}

// RenderFace clips a visible surface's edge loop against the active
// frustum planes, emits screen-space IEdges per scanline, and (if any edge
// survived clipping) appends an ISurface carrying the 1/z plane gradient
// used for z-sort and perspective correction (§4.3). keyCounter is the
// monotonic sequence shared with bsp.World.Walk's leaf/node key stamping.
func (f *Frame) RenderFace(w *bsp.World, surfIndex int32, surf *bsp.Surface, cam *camera.Camera, isInSubmodel bool, clipflag int, keyCounter *int32) {
	if len(f.ISurfaces) > f.MaxSurfaces+1 {
		return
	}
	if len(f.Edges)+int(surf.NumEdge)+4 >= f.MaxEdges {
		f.OutOfIEdges += surf.NumEdge
		return
	}

	planes := BuildClipPlanes(cam, clipflag)

	var scr surfaceClipResult
	var lvd lastVertData
	f.NearestInvZ = 0
	edgeEmitted := false

	for i := int32(0); i < surf.NumEdge; i++ {
		se := w.SurfaceEdges[surf.FirstEdge+i]
		edgeIndex := se
		startVert, endVert := 0, 1
		if edgeIndex <= 0 {
			edgeIndex = -edgeIndex
			startVert, endVert = 1, 0
		}

		edge := &w.Edges[edgeIndex]

		if !isInSubmodel {
			if edge.IEdgeCacheState&bsp.EdgeFullyClipped != 0 {
				if edge.IEdgeCacheState&bsp.EdgeFrameCountMask == uint32(f.FrameCount) {
					lvd.valid = false
					continue
				}
			} else {
				cachedIdx := int32(edge.IEdgeCacheState)
				if cachedIdx > 0 && cachedIdx < int32(len(f.Edges)) && f.Edges[cachedIdx].Owner == edgeIndex {
					edgeEmitted = f.reEmitIEdge(cachedIdx) || edgeEmitted
					lvd.valid = false
					continue
				}
			}
		}

		v0 := w.Vertices[edge.V[startVert]].Position
		v1 := w.Vertices[edge.V[endVert]].Position

		var needCache cacheState
		ecr := clipEdge(v0, v1, planes, &scr, &needCache)
		lvd.valid = lvd.valid && ecr.v0Unclipped

		horizontal := false
		if !ecr.fullyClipped {
			var emitted bool
			emitted, horizontal = f.emitIEdge(ecr.v0, ecr.v1, cam, &lvd, false, edgeIndex)
			if emitted {
				edgeEmitted = true
			}
		}

		switch {
		case needCache.partial:
			edge.IEdgeCacheState = bsp.EdgePartiallyClipped
		case ecr.fullyClipped:
			edge.IEdgeCacheState = bsp.EdgeFullyClipped | (uint32(f.FrameCount) & bsp.EdgeFrameCountMask)
		case horizontal:
			edge.IEdgeCacheState = bsp.EdgeFullyClipped | (uint32(f.FrameCount) & bsp.EdgeFrameCountMask)
		default:
			edge.IEdgeCacheState = uint32(len(f.Edges) - 1)
		}
		lvd.valid = true
	}

	if scr.leftEdgeClipped {
		var needCache cacheState
		ecr := clipEdge(scr.vertLeftExit, scr.vertLeftEnter, after(planes, cam.LeftEdgePlane()), &scr, &needCache)
		lvd.valid = false
		if !ecr.fullyClipped {
			if emitted, _ := f.emitIEdge(ecr.v0, ecr.v1, cam, &lvd, false, -1); emitted {
				edgeEmitted = true
			}
		}
	}
	if scr.rightEdgeClipped {
		var needCache cacheState
		ecr := clipEdge(scr.vertRightExit, scr.vertRightEnter, after(planes, cam.RightEdgePlane()), &scr, &needCache)
		lvd.valid = false
		if !ecr.fullyClipped {
			if emitted, _ := f.emitIEdge(ecr.v0, ecr.v1, cam, &lvd, true, -1); emitted {
				edgeEmitted = true
			}
		}
	}

	if !edgeEmitted {
		return
	}

	f.SurfaceCount++

	idx := f.allocSurface()
	if idx < 0 {
		return
	}
	is := &f.ISurfaces[idx]
	is.SurfaceIndex = surfIndex
	is.NearestInvZ = f.NearestInvZ
	is.Flags = surf.Flags
	is.IsInSubmodel = isInSubmodel
	is.SpanState = 0
	is.Key = *keyCounter
	*keyCounter++
	is.Spans = none

	plane := &w.Planes[surf.Plane]
	normalView := cam.TransformDirection(plane.Normal)
	distanceInv := 1.0 / (plane.Dist - cam.Position().Dot(plane.Normal))

	is.ZiStepX = normalView.X() * cam.ScaleInvZ * distanceInv
	is.ZiStepY = -normalView.Y() * cam.ScaleInvZ * distanceInv
	is.ZiD = normalView.Z()*distanceInv - cam.ScreenCenter.X()*is.ZiStepX - cam.ScreenCenter.Y()*is.ZiStepY
}
