// Package camera implements the view-dependent projection state (§4.2): the
// world-to-view basis, screen projection constants, and the four frustum
// planes (plus their precomputed AABB reject/accept index table) used by
// bsp.World.Walk for view-frustum culling.
package camera

import (
	"math"

	"github.com/go-gl/mathgl/mgl32"

	"github.com/tesseract-forge/qraster/bsp"
)

// Rect is a screen rectangle in pixels.
type Rect struct {
	X, Y, Width, Height int
}

type frustumPlane = bsp.FrustumPlane

// Camera holds everything the rasterizer pipeline derives once per frame
// from a position/orientation: the orthonormal basis, screen projection
// scale, and world-space frustum planes (§4.2).
type Camera struct {
	Pos    mgl32.Vec3
	Angles mgl32.Vec3 // pitch, yaw, roll in degrees

	Rotx, Roty, Rotz mgl32.Vec3 // orthonormal basis rows

	ScreenCenter mgl32.Vec2
	ScreenMin    mgl32.Vec2
	ScreenMax    mgl32.Vec2

	NearZ      float32
	ScaleZ     float32
	ScaleInvZ  float32

	viewPlanes  [4]frustumPlane // view-space, fixed per fovx/aspect
	worldPlanes [4]frustumPlane // rotated into world space each frame

	// leftEdge/rightEdge flag which of the 4 planes the face clipper must
	// recognize specifically to emit synthetic vertical fill edges (§4.3).
	leftEdge, rightEdge int

	// indices[i] is the 6-entry reject/accept component table for plane i
	// (§4.2): indices[i][0:3] picks the reject corner, [3:6] the accept
	// corner, chosen per-component by the sign of the plane's normal.
	indices [4][6]int
}

// New builds a camera for the given screen rect and horizontal field of
// view (degrees), matching ResetCamera in the source material: screenCenter
// is biased by half a pixel so it lands exactly between pixels on an
// even-width screen, or on the center pixel for an odd width.
func New(rect Rect, fovxDeg float32) *Camera {
	c := &Camera{NearZ: 1.0}

	c.ScreenCenter = mgl32.Vec2{
		float32(rect.X) + float32(rect.Width)/2 - 0.5,
		float32(rect.Y) + float32(rect.Height)/2 - 0.5,
	}
	c.ScreenMin = mgl32.Vec2{float32(rect.X) - 0.5, float32(rect.Y) - 0.5}
	c.ScreenMax = mgl32.Vec2{
		float32(rect.X) + float32(rect.Width) - 0.5,
		float32(rect.Y) + float32(rect.Height) - 0.5,
	}

	tanx := float32(math.Tan(float64(fovxDeg) * 0.5 * math.Pi / 180))
	c.ScaleZ = float32(rect.Width) * 0.5 / tanx
	c.ScaleInvZ = 1.0 / c.ScaleZ

	invAspect := float32(rect.Height) / float32(rect.Width)
	tany := tanx * invAspect

	c.viewPlanes[0] = frustumPlane{Normal: mgl32.Vec3{1 / tanx, 0, 1}.Normalize()} // left
	c.viewPlanes[1] = frustumPlane{Normal: mgl32.Vec3{-1 / tanx, 0, 1}.Normalize()} // right
	c.viewPlanes[2] = frustumPlane{Normal: mgl32.Vec3{0, -1 / tany, 1}.Normalize()} // top
	c.viewPlanes[3] = frustumPlane{Normal: mgl32.Vec3{0, 1 / tany, 1}.Normalize()}  // bottom

	c.leftEdge = 0
	c.rightEdge = 1

	return c
}

// SetOrientation rebuilds the orthonormal basis from Euler angles (pitch,
// yaw, roll in degrees), matching AngleVectors in the source material:
// Rotx is forward, Roty is right, Rotz is up.
func (c *Camera) SetOrientation(pos, angles mgl32.Vec3) {
	c.Pos = pos
	c.Angles = angles

	pitch := float64(angles.X()) * math.Pi / 180
	yaw := float64(angles.Y()) * math.Pi / 180
	roll := float64(angles.Z()) * math.Pi / 180

	sp, cp := math.Sincos(pitch)
	sy, cy := math.Sincos(yaw)
	sr, cr := math.Sincos(roll)

	c.Rotx = mgl32.Vec3{
		float32(cp * cy),
		float32(cp * sy),
		float32(-sp),
	}
	c.Roty = mgl32.Vec3{
		float32(-sr*sp*cy - cr*-sy),
		float32(-sr*sp*sy - cr*cy),
		float32(-sr * cp),
	}
	c.Rotz = mgl32.Vec3{
		float32(cr*sp*cy + -sr*-sy),
		float32(cr*sp*sy + -sr*cy),
		float32(cr * cp),
	}
}

// TransformPoint transforms a world point into view space. Quake's world is
// z-up; view space is y-up, so y and z are swapped relative to a plain
// rotation (§4.2).
func (c *Camera) TransformPoint(p mgl32.Vec3) mgl32.Vec3 {
	pt := p.Sub(c.Pos)
	return mgl32.Vec3{
		c.Roty.Dot(pt), // right -> screen x
		c.Rotz.Dot(pt), // up -> screen y
		c.Rotx.Dot(pt), // forward -> depth
	}
}

// TransformDirection transforms a world direction into view space (no
// translation), with the same axis assignment as TransformPoint.
func (c *Camera) TransformDirection(d mgl32.Vec3) mgl32.Vec3 {
	return mgl32.Vec3{
		d.Dot(c.Roty),
		d.Dot(c.Rotz),
		d.Dot(c.Rotx),
	}
}

// Project maps a view-space point to screen coordinates and clamps it to
// the screen rect (half-pixel biased), per §4.2 and §8 property 5. z is
// snapped up to NearZ first so near-degenerate input never produces an
// infinite or flipped projection (§7 "numerically degenerate inputs").
func (c *Camera) Project(v mgl32.Vec3) (x, y, invZ float32) {
	z := v.Z()
	if z < c.NearZ {
		z = c.NearZ
	}
	invZ = 1.0 / z
	scale := c.ScaleZ * invZ
	x = c.ScreenCenter.X() + scale*v.X()
	y = c.ScreenCenter.Y() - scale*v.Y()
	x = clamp(c.ScreenMin.X(), c.ScreenMax.X(), x)
	y = clamp(c.ScreenMin.Y(), c.ScreenMax.Y(), y)
	return x, y, invZ
}

// Unproject maps screen coordinates plus a recorded view depth back to the
// world point that projected there, inverting Project for any point whose
// screen position was not clamped (§8 property 5).
func (c *Camera) Unproject(x, y, z float32) mgl32.Vec3 {
	vx := (x - c.ScreenCenter.X()) * z * c.ScaleInvZ
	vy := (c.ScreenCenter.Y() - y) * z * c.ScaleInvZ
	return c.Pos.
		Add(c.Roty.Mul(vx)).
		Add(c.Rotz.Mul(vy)).
		Add(c.Rotx.Mul(z))
}

func clamp(min, max, v float32) float32 {
	if v < min {
		return min
	}
	if v > max {
		return max
	}
	return v
}

// TransformFrustum rotates the camera's fixed view-space frustum planes
// into world space; the camera position lies on every plane by
// construction (§4.2).
func (c *Camera) TransformFrustum() {
	for i := 0; i < 4; i++ {
		n := c.viewPlanes[i].Normal
		worldNormal := mgl32.Vec3{
			n.X()*c.Roty.X() + n.Y()*c.Rotz.X() + n.Z()*c.Rotx.X(),
			n.X()*c.Roty.Y() + n.Y()*c.Rotz.Y() + n.Z()*c.Rotx.Y(),
			n.X()*c.Roty.Z() + n.Y()*c.Rotz.Z() + n.Z()*c.Rotx.Z(),
		}
		c.worldPlanes[i] = frustumPlane{
			Normal:   worldNormal,
			Distance: c.Pos.Dot(worldNormal),
		}
	}
}

// SetupFrustumIndices builds the 4x6 reject/accept component-index table
// (§4.2): for plane i, component j, a negative normal component picks the
// AABB's min side as the reject corner (and max as accept); a non-negative
// component picks the opposite.
func (c *Camera) SetupFrustumIndices() {
	for i := 0; i < 4; i++ {
		n := c.worldPlanes[i].Normal
		for j := 0; j < 3; j++ {
			if n[j] < 0 {
				c.indices[i][j] = j
				c.indices[i][j+3] = j + 3
			} else {
				c.indices[i][j] = j + 3
				c.indices[i][j+3] = j
			}
		}
	}
}

// Position, Plane, and RejectAccept implement bsp.Frustum.
func (c *Camera) Position() mgl32.Vec3 { return c.Pos }

func (c *Camera) Plane(i int) bsp.FrustumPlane {
	return c.worldPlanes[i]
}

func (c *Camera) RejectAccept(i int) [6]int {
	return c.indices[i]
}

var _ bsp.Frustum = (*Camera)(nil)

// LeftEdgePlane and RightEdgePlane report which world-space frustum plane
// index corresponds to the left/right screen edges, needed by the face
// clipper to know when a clip produced an enter/exit pair worth stitching
// into a synthetic vertical edge (§4.3).
func (c *Camera) LeftEdgePlane() int  { return c.leftEdge }
func (c *Camera) RightEdgePlane() int { return c.rightEdge }

// WorldPlane returns the i'th world-space frustum plane (normal, distance).
func (c *Camera) WorldPlane(i int) (mgl32.Vec3, float32) {
	p := c.worldPlanes[i]
	return p.Normal, p.Distance
}
