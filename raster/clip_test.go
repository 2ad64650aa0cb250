package raster

import (
	"testing"

	"github.com/go-gl/mathgl/mgl32"

	"github.com/tesseract-forge/qraster/bsp"
	"github.com/tesseract-forge/qraster/camera"
)

// quadWorld builds a single axis-aligned quad facing the camera at x=10, big
// enough to stay well inside the frustum without needing real clip planes.
func quadWorld() *bsp.World {
	return &bsp.World{
		Vertices: []bsp.Vertex{
			{Position: mgl32.Vec3{10, -4, -4}},
			{Position: mgl32.Vec3{10, 4, -4}},
			{Position: mgl32.Vec3{10, 4, 4}},
			{Position: mgl32.Vec3{10, -4, 4}},
		},
		Edges: []bsp.Edge{
			{}, // index 0 reserved, unused, per the signed-SurfaceEdges convention
			{V: [2]uint16{0, 1}},
			{V: [2]uint16{1, 2}},
			{V: [2]uint16{2, 3}},
			{V: [2]uint16{3, 0}},
		},
		SurfaceEdges: []int32{1, 2, 3, 4},
		Planes: []bsp.Plane{
			{Normal: mgl32.Vec3{-1, 0, 0}, Dist: -10},
		},
		Surfaces: []bsp.Surface{
			{Plane: 0, FirstEdge: 0, NumEdge: 4},
			{Plane: 0, FirstEdge: 0, NumEdge: 4},
		},
	}
}

func testCamera() *camera.Camera {
	c := camera.New(camera.Rect{X: 0, Y: 0, Width: 320, Height: 200}, 90)
	c.SetOrientation(mgl32.Vec3{0, 0, 0}, mgl32.Vec3{0, 0, 0})
	return c
}

// TestEdgeCacheIdempotent verifies that clipping the same edge twice within
// one frame (once for each of two surfaces sharing it) reuses the cached
// IEdge the second time rather than re-clipping and re-emitting it (§4.1
// edge caching, §8 property 3): the arena must not grow by a second full set
// of edges for the second surface.
func TestEdgeCacheIdempotent(t *testing.T) {
	w := quadWorld()
	cam := testCamera()

	f := NewFrame(200, 64, 16)

	var keyCounter int32
	f.RenderFace(w, 0, &w.Surfaces[0], cam, false, 0, &keyCounter)

	edgesAfterFirst := len(f.Edges)
	if edgesAfterFirst <= 1 {
		t.Fatalf("first RenderFace call emitted no edges, got arena len %d", edgesAfterFirst)
	}

	f.RenderFace(w, 1, &w.Surfaces[1], cam, false, 0, &keyCounter)

	if len(f.Edges) != edgesAfterFirst {
		t.Errorf("second RenderFace call on the same shared edges grew the arena from %d to %d, want reuse via reEmitIEdge", edgesAfterFirst, len(f.Edges))
	}

	if len(f.ISurfaces) != 4 {
		t.Errorf("expected two emitted isurfaces (plus background + nil sentinel), got %d entries", len(f.ISurfaces))
	}
}

// TestRenderFaceSkipsWhenEdgeArenaNearFull verifies the soft-overflow path:
// a face whose edge count would overrun the arena budget is dropped and
// counted rather than partially emitted (§4.3, §7(b)).
func TestRenderFaceSkipsWhenEdgeArenaNearFull(t *testing.T) {
	w := quadWorld()
	cam := testCamera()

	f := NewFrame(200, 2, 16) // too small for a 4-edge face plus slack

	var keyCounter int32
	f.RenderFace(w, 0, &w.Surfaces[0], cam, false, 0, &keyCounter)

	if f.OutOfIEdges == 0 {
		t.Errorf("expected OutOfIEdges to record the dropped face's edge count, got 0")
	}
	if len(f.ISurfaces) != 2 {
		t.Errorf("dropped face should not have allocated an isurface, arena has %d entries", len(f.ISurfaces))
	}
}
