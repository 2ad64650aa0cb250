package bsp

import "github.com/go-gl/mathgl/mgl32"

// FrustumPlane is one of the camera's world-space frustum planes.
type FrustumPlane struct {
	Normal   mgl32.Vec3
	Distance float32
}

// Frustum is the view state Walk needs for AABB culling and
// plane-side tests (§4.1, §4.2). camera.Camera implements this.
type Frustum interface {
	Position() mgl32.Vec3
	Plane(i int) FrustumPlane
	// RejectAccept returns, for clip plane i, the 6 minmax component indices
	// used to pick the reject corner (first 3) and accept corner (last 3)
	// of an AABB, per the precomputed 4x6 table in §4.2.
	RejectAccept(i int) [6]int
}

// VisitFunc is called once per front-to-back-ordered, visibility-stamped,
// plane-side-filtered surface. surfIndex is its index into World.Surfaces.
// backSide reports whether the camera is behind the surface's plane
// (PLANE_BACK case, §4.1). clipflag is the (possibly narrowed) frustum
// mask to pass on to face clipping (§4.3).
type VisitFunc func(surfIndex int32, surf *Surface, backSide bool, clipflag int)

// Walk descends the BSP from head (World.HeadNode for the top-level call),
// front-to-back relative to the camera, skipping nodes and leaves that
// MarkLeaves did not stamp with pvsCounter or that fail frustum culling. Each
// visited leaf stamps its surfaces' VisibleFrame with frameCounter, and a
// node dispatches those of its surfaces that carry this frame's stamp. keyCounter is shared with the caller's per-face
// ISurface emission so that isurface.key and leaf.key are drawn from one
// monotonically increasing sequence or the front-to-back key ordering used
// for occlusion (§8 property 1) breaks.
func (w *World) Walk(head int32, cam Frustum, pvsCounter int32, frameCounter int32, clipflag int, keyCounter *int32, visit VisitFunc) {
	w.recurse(head, cam, pvsCounter, frameCounter, clipflag, keyCounter, visit)
}

func (w *World) recurse(ref int32, cam Frustum, pvsCounter int32, frameCounter int32, clipflag int, keyCounter *int32, visit VisitFunc) {
	if ref < 0 {
		w.recurseLeaf(LeafIndex(ref), cam, pvsCounter, clipflag, frameCounter, keyCounter)
		return
	}

	node := &w.Nodes[ref]
	if node.VisibleFrame != pvsCounter {
		return
	}

	if clipflag != 0 {
		if !w.aabbAccepted(node.Min, node.Max, cam, &clipflag) {
			return
		}
	}

	side := 0
	d := w.planeDistance(node.Plane, cam.Position())
	if d < 0 {
		side = 1
	}

	w.recurse(node.Children[side], cam, pvsCounter, frameCounter, clipflag, keyCounter, visit)

	if count := node.NumSurface; count > 0 {
		first := node.FirstSurface
		switch {
		case d < -BackfaceEpsilon:
			for i := int32(0); i < count; i++ {
				si := first + i
				s := &w.Surfaces[si]
				if s.Flags&SurfPlaneBack != 0 && s.VisibleFrame == frameCounter {
					visit(si, s, true, clipflag)
				}
			}
		case d > BackfaceEpsilon:
			for i := int32(0); i < count; i++ {
				si := first + i
				s := &w.Surfaces[si]
				if s.Flags&SurfPlaneBack == 0 && s.VisibleFrame == frameCounter {
					visit(si, s, false, clipflag)
				}
			}
		}
		(*keyCounter)++
	}

	w.recurse(node.Children[1-side], cam, pvsCounter, frameCounter, clipflag, keyCounter, visit)
}

func (w *World) recurseLeaf(leafIdx int, cam Frustum, pvsCounter int32, clipflag int, frameCounter int32, keyCounter *int32) {
	leaf := &w.Leaves[leafIdx]
	if leaf.VisibleFrame != pvsCounter {
		return
	}
	if clipflag != 0 {
		if !w.aabbAccepted(leaf.Min, leaf.Max, cam, &clipflag) {
			return
		}
	}

	for i := int32(0); i < leaf.NumMark; i++ {
		si := w.MarkSurfaces[leaf.FirstMark+i]
		w.Surfaces[si].VisibleFrame = frameCounter
	}

	leaf.Key = *keyCounter
	(*keyCounter)++
}

// planeDistance evaluates dot(pos, normal) - dist, with the axial-plane
// shortcuts the original takes for PLANE_X/Y/Z (§4.1 "These cases are so
// unnecessary!" — kept anyway, it is measurably cheaper than the general dot
// product and the source material leans on it throughout).
func (w *World) planeDistance(planeIdx int32, pos mgl32.Vec3) float64 {
	p := &w.Planes[planeIdx]
	switch p.Type {
	case PlaneX:
		return float64(pos.X() - p.Dist)
	case PlaneY:
		return float64(pos.Y() - p.Dist)
	case PlaneZ:
		return float64(pos.Z() - p.Dist)
	default:
		return float64(pos.Dot(p.Normal) - p.Dist)
	}
}

// aabbAccepted tests an AABB (stored as int16 minmax, §3) against every
// active bit of clipflag, clearing bits the box is fully inside of so
// descendants skip that plane (§4.1/§4.2). Returns false if the box is
// fully outside any active plane.
func (w *World) aabbAccepted(min, max [3]int16, cam Frustum, clipflag *int) bool {
	minmax := [6]float32{
		float32(min[0]), float32(min[1]), float32(min[2]),
		float32(max[0]), float32(max[1]), float32(max[2]),
	}

	for i := 0; i < 4; i++ {
		bit := 1 << uint(i)
		if *clipflag&bit == 0 {
			continue
		}

		idx := cam.RejectAccept(i)
		plane := cam.Plane(i)

		reject := mgl32.Vec3{minmax[idx[0]], minmax[idx[1]], minmax[idx[2]]}
		d := reject.Dot(plane.Normal) - plane.Distance
		if d <= 0 {
			return false
		}

		accept := mgl32.Vec3{minmax[idx[3]], minmax[idx[4]], minmax[idx[5]]}
		d = accept.Dot(plane.Normal) - plane.Distance
		if d >= 0 {
			*clipflag &^= bit
		}
	}
	return true
}
