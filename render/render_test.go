package render

import (
	"bytes"
	"testing"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tesseract-forge/qraster/bsp"
	"github.com/tesseract-forge/qraster/camera"
	"github.com/tesseract-forge/qraster/light"
	"github.com/tesseract-forge/qraster/sky"
)

func newTestFB(w, h int) *FrameBuffer {
	return &FrameBuffer{
		Width:         w,
		Height:        h,
		BytesPerPixel: 1,
		BytesPerRow:   w,
		Pixels:        make([]byte, w*h),
	}
}

// identityColormap passes the texel through unshaded, so framebuffer pixels
// equal texture palette indices regardless of lighting.
func identityColormap() light.Colormap {
	cm := make(light.Colormap, 256*64)
	for row := 0; row < 64; row++ {
		for texel := 0; texel < 256; texel++ {
			cm[row*256+texel] = byte(texel)
		}
	}
	return cm
}

// emptyWorld is scenario S1: a single empty leaf, nothing to draw.
func emptyWorld() *bsp.World {
	return &bsp.World{
		Leaves:   []bsp.Leaf{{Contents: bsp.ContentsEmpty, VisOffset: -1, Parent: -1}},
		HeadNode: bsp.LeafRef(0),
	}
}

// wallWorld is a minimal drawable world: one textured wall at x=10 facing a
// camera at the origin looking down +X, small enough to stay inside the
// frustum. The wall projects to roughly x in [80,240), y in [20,180) on a
// 320x200 screen at fov 90.
func wallWorld(leafContents int32) *bsp.World {
	tex := &bsp.Texture{Name: "wall", Width: 64, Height: 64}
	for i := 0; i < bsp.MipLevels; i++ {
		side := 64 >> i
		mip := make([]byte, side*side)
		for j := range mip {
			mip[j] = 7
		}
		tex.Mip[i] = mip
	}

	return &bsp.World{
		Vertices: []bsp.Vertex{
			{Position: mgl32.Vec3{10, 5, -5}},  // A: screen left-bottom
			{Position: mgl32.Vec3{10, -5, -5}}, // B: screen right-bottom
			{Position: mgl32.Vec3{10, -5, 5}},  // C: screen right-top
			{Position: mgl32.Vec3{10, 5, 5}},   // D: screen left-top
		},
		Edges: []bsp.Edge{
			{}, // index 0 reserved
			{V: [2]uint16{3, 2}}, // D -> C, top
			{V: [2]uint16{2, 1}}, // C -> B, right
			{V: [2]uint16{1, 0}}, // B -> A, bottom
			{V: [2]uint16{0, 3}}, // A -> D, left
		},
		SurfaceEdges: []int32{1, 2, 3, 4},
		Planes: []bsp.Plane{
			{Normal: mgl32.Vec3{-1, 0, 0}, Dist: -10, Type: bsp.PlaneAnyX},
		},
		TexInfos: []bsp.TexInfo{{
			UAxis:     mgl32.Vec3{0, 1, 0},
			VAxis:     mgl32.Vec3{0, 0, 1},
			Texture:   tex,
			MipAdjust: 1,
		}},
		Surfaces: []bsp.Surface{{
			Plane:     0,
			TexInfo:   0,
			FirstEdge: 0,
			NumEdge:   4,
			Styles:    [bsp.MaxLightMaps]uint8{0, 255, 255, 255},
			Samples:   bytes.Repeat([]byte{255}, 9),
			UVExtents: [2]int16{32, 32},
		}},
		Nodes: []bsp.Node{{
			Plane:      0,
			Children:   [2]int32{bsp.LeafRef(0), bsp.LeafRef(1)},
			Min:        [3]int16{-100, -100, -100},
			Max:        [3]int16{100, 100, 100},
			NumSurface: 1,
			Parent:     -1,
		}},
		Leaves: []bsp.Leaf{
			{
				Contents:  leafContents,
				Min:       [3]int16{-100, -100, -100},
				Max:       [3]int16{100, 100, 100},
				VisOffset: -1,
				FirstMark: 0,
				NumMark:   1,
				Parent:    0,
			},
			{
				Contents:  bsp.ContentsSolid,
				Min:       [3]int16{-100, -100, -100},
				Max:       [3]int16{100, 100, 100},
				VisOffset: -1,
				Parent:    0,
			},
		},
		MarkSurfaces: []int32{0},
		HeadNode:     0,
	}
}

// TestRenderEmptyWorld is scenario S1: one empty leaf renders as solid
// background color, an all-zero z-buffer, and zero emitted edges.
func TestRenderEmptyWorld(t *testing.T) {
	fb := newTestFB(640, 480)
	cfg := DefaultConfig(camera.Rect{Width: 640, Height: 480}, 90)
	cfg.BackgroundColor = 12

	r := New(cfg, fb, nil)
	err := r.RenderView(emptyWorld(), mgl32.Vec3{}, mgl32.Vec3{}, 0.016)
	require.NoError(t, err)

	for i, p := range fb.Pixels {
		if p != 12 {
			t.Fatalf("pixel %d = %d, want background 12", i, p)
		}
	}
	for i, z := range r.ZBuffer {
		if z != 0 {
			t.Fatalf("z[%d] = %v, want 0", i, z)
		}
	}
	assert.Equal(t, 1, len(r.Frame.Edges), "empty world must emit no IEdges")
}

// TestRenderSingleWall drives the full pipeline over one visible textured
// face: the wall's screen region samples its texture, the rest stays
// background, and the z-buffer carries the wall's 1/z plane.
func TestRenderSingleWall(t *testing.T) {
	fb := newTestFB(320, 200)
	cfg := DefaultConfig(camera.Rect{Width: 320, Height: 200}, 90)
	cfg.BackgroundColor = 12

	r := New(cfg, fb, nil)
	r.Colormap = identityColormap()

	w := wallWorld(bsp.ContentsEmpty)
	err := r.RenderView(w, mgl32.Vec3{}, mgl32.Vec3{}, 0.016)
	require.NoError(t, err)

	// Wall interior.
	assert.Equal(t, byte(7), fb.Pixels[100*320+160], "screen center should sample the wall texture")
	assert.Equal(t, byte(7), fb.Pixels[30*320+100])
	assert.Equal(t, byte(7), fb.Pixels[170*320+220])

	// Just outside the wall's projected bounds.
	assert.Equal(t, byte(12), fb.Pixels[100*320+70], "left of the wall should be background")
	assert.Equal(t, byte(12), fb.Pixels[100*320+250], "right of the wall should be background")
	assert.Equal(t, byte(12), fb.Pixels[10*320+160], "above the wall should be background")
	assert.Equal(t, byte(12), fb.Pixels[190*320+160], "below the wall should be background")

	assert.InDelta(t, 0.1, r.ZBuffer[100*320+160], 1e-4, "wall is 10 units away, 1/z = 0.1")
	assert.Zero(t, r.ZBuffer[10*320+160], "background z stays 0")

	// Every scanline the wall crosses must carry a wall span.
	for y := 25; y < 175; y += 25 {
		if fb.Pixels[y*320+160] != 7 {
			t.Errorf("scanline %d center = %d, want wall texel 7", y, fb.Pixels[y*320+160])
		}
	}

	assert.True(t, w.Surfaces[0].VisibleFrame > 0, "drawn surface must have been PVS-stamped this frame")
	assert.Zero(t, r.Stats.EdgeOverflowCount)
}

// TestRenderUnderwaterWarps is scenario S5: when the view leaf is water,
// the frame is the sine-warped version of what the dry render produces.
func TestRenderUnderwaterWarps(t *testing.T) {
	dryFB := newTestFB(320, 200)
	cfg := DefaultConfig(camera.Rect{Width: 320, Height: 200}, 90)
	cfg.BackgroundColor = 12

	dry := New(cfg, dryFB, nil)
	dry.Colormap = identityColormap()
	require.NoError(t, dry.RenderView(wallWorld(bsp.ContentsEmpty), mgl32.Vec3{}, mgl32.Vec3{}, 0.016))

	wetFB := newTestFB(320, 200)
	wet := New(cfg, wetFB, nil)
	wet.Colormap = identityColormap()
	require.NoError(t, wet.RenderView(wallWorld(bsp.ContentsWater), mgl32.Vec3{}, mgl32.Vec3{}, 0.016))

	expected := make([]byte, len(dryFB.Pixels))
	sky.Warp(expected, dryFB.Pixels, 320, 200, 320)

	assert.Equal(t, expected, wetFB.Pixels)
	assert.NotEqual(t, dryFB.Pixels, wetFB.Pixels, "the warp must actually displace pixels")
}

func TestRenderViewNoLeavesIsFatal(t *testing.T) {
	fb := newTestFB(64, 64)
	r := New(DefaultConfig(camera.Rect{Width: 64, Height: 64}, 90), fb, nil)

	err := r.RenderView(&bsp.World{}, mgl32.Vec3{}, mgl32.Vec3{}, 0.016)
	require.Error(t, err)

	var fatal *FatalError
	assert.ErrorAs(t, err, &fatal)
}

func TestRenderTwoFramesReusesCache(t *testing.T) {
	fb := newTestFB(320, 200)
	cfg := DefaultConfig(camera.Rect{Width: 320, Height: 200}, 90)
	r := New(cfg, fb, nil)
	r.Colormap = identityColormap()

	w := wallWorld(bsp.ContentsEmpty)
	require.NoError(t, r.RenderView(w, mgl32.Vec3{}, mgl32.Vec3{}, 0.016))
	require.True(t, w.Surfaces[0].CacheSpots[0].Valid)

	require.NoError(t, r.RenderView(w, mgl32.Vec3{}, mgl32.Vec3{}, 0.016))
	assert.True(t, w.Surfaces[0].CacheSpots[0].Valid)
	assert.Equal(t, byte(7), fb.Pixels[100*320+160])
}
