package sky

import (
	"testing"

	"github.com/go-gl/mathgl/mgl32"

	"github.com/tesseract-forge/qraster/camera"
	"github.com/tesseract-forge/qraster/qfixed"
)

// dualPanelTexture builds a 256x128 sky: the left (foreground) panel is
// black except one marker pixel, the right (background) panel is a constant
// color, so composite motion is observable pixel by pixel.
func dualPanelTexture(markerX, markerY int, marker, background byte) []byte {
	tex := make([]byte, Size*textureWidth)
	for y := 0; y < Size; y++ {
		for x := 0; x < Size; x++ {
			tex[y*textureWidth+Size+x] = background
		}
	}
	tex[markerY*textureWidth+markerX] = marker
	return tex
}

// sampleAt reads the composited canvas at integer texel (x, y) through the
// drawer's own fixed 16.16 addressing.
func sampleAt(c *Canvas, x, y int) byte {
	return c.Sample(qfixed.FromFloat16(float32(x)), qfixed.FromFloat16(float32(y)))
}

func TestAnimateCompositesForegroundOverBackground(t *testing.T) {
	c := &Canvas{}
	c.Init(dualPanelTexture(40, 70, 9, 5))
	c.Animate()

	if got := sampleAt(c, 40, 70); got != 9 {
		t.Errorf("marker pixel = %d, want foreground 9", got)
	}
	if got := sampleAt(c, 0, 0); got != 5 {
		t.Errorf("transparent foreground pixel = %d, want background 5", got)
	}
}

// TestAnimateShiftMovesComposite pins scenario behavior: after the shift
// advances, the composite differs from frame 0 by exactly the shift offset
// modulo 128 on both axes.
func TestAnimateShiftMovesComposite(t *testing.T) {
	c := &Canvas{}
	c.Init(dualPanelTexture(40, 70, 9, 5))

	// 100 frames at 0.6 per frame.
	for i := 0; i < 100; i++ {
		c.Advance()
	}
	c.Animate()

	shift := int(c.Shift)
	wantX := (40 - shift) & sizeMask
	wantY := (70 - shift) & sizeMask

	if got := sampleAt(c, wantX, wantY); got != 9 {
		t.Errorf("marker after shift %d: pixel at (%d,%d) = %d, want 9", shift, wantX, wantY, got)
	}
	if got := sampleAt(c, 40, 70); got != 5 {
		t.Errorf("original marker position should be background again, got %d", got)
	}
}

func TestSampleWrapsAt128(t *testing.T) {
	c := &Canvas{}
	c.Init(dualPanelTexture(0, 0, 9, 5))
	c.Animate()

	if got, want := sampleAt(c, 128, 128), sampleAt(c, 0, 0); got != want {
		t.Errorf("Sample(128,128) = %d, want wrap to Sample(0,0) = %d", got, want)
	}
}

func testCamera(angles mgl32.Vec3) *camera.Camera {
	c := camera.New(camera.Rect{Width: 320, Height: 200}, 90)
	c.SetOrientation(mgl32.Vec3{}, angles)
	return c
}

// TestDirectionFollowsViewBasis: the ray through the screen center is the
// camera's forward vector, and pixels right of center pull the ray toward
// the camera's right vector — for a non-identity orientation too.
func TestDirectionFollowsViewBasis(t *testing.T) {
	tests := []struct {
		name        string
		angles      mgl32.Vec3
		wantForward mgl32.Vec3
	}{
		{"identity looks down +X", mgl32.Vec3{0, 0, 0}, mgl32.Vec3{1, 0, 0}},
		{"yaw 90 looks down +Y", mgl32.Vec3{0, 90, 0}, mgl32.Vec3{0, 1, 0}},
		{"yaw 180 looks down -X", mgl32.Vec3{0, 180, 0}, mgl32.Vec3{-1, 0, 0}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cam := testCamera(tt.angles)

			center := Direction(cam, cam.ScreenCenter.X(), cam.ScreenCenter.Y())
			for i := 0; i < 3; i++ {
				if diff := center[i] - tt.wantForward[i]; diff > 1e-5 || diff < -1e-5 {
					t.Fatalf("center ray = %v, want forward %v", center, tt.wantForward)
				}
			}

			right := Direction(cam, cam.ScreenCenter.X()+100, cam.ScreenCenter.Y())
			if dot := right.Dot(cam.Roty); dot <= 0 {
				t.Errorf("ray right of center should lean toward the right vector, dot = %v", dot)
			}
			if dot := right.Dot(cam.Rotx); dot <= 0 {
				t.Errorf("ray right of center should still point forward, dot = %v", dot)
			}
		})
	}
}

func TestUVAtCenterIsShiftPlusForward(t *testing.T) {
	cam := testCamera(mgl32.Vec3{0, 90, 0}) // forward = +Y, so dir.X ~ 0, dir.Y ~ 1

	u, v := UV(cam, cam.ScreenCenter.X(), cam.ScreenCenter.Y(), 2)

	if got := u.Float(); got > 2.01 || got < 1.99 {
		t.Errorf("u = %v, want ~2 (shift only, no x component in the ray)", got)
	}
	if got := v.Float(); got > 322.01 || got < 321.99 {
		t.Errorf("v = %v, want ~322 (shift + 320*dir.Y)", got)
	}
}

func TestWarpSourcesWithinAmplitude(t *testing.T) {
	const w, h = 64, 48
	src := make([]byte, w*h)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			src[y*w+x] = byte(y) // row id, so the output reveals its source row
		}
	}

	dst := make([]byte, w*h)
	Warp(dst, src, w, h, w)

	stretchY := float32(h) / float32(h+2*WarpAmplitude)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			srcRow := int(dst[y*w+x])
			lo := int((float32(y) - WarpAmplitude) * stretchY)
			hi := int((float32(y) + WarpAmplitude) * stretchY)
			if lo < 0 {
				lo = 0
			}
			if srcRow < lo || srcRow > hi {
				t.Fatalf("pixel (%d,%d) sourced from row %d, outside [%d,%d]", x, y, srcRow, lo, hi)
			}
		}
	}
}

// TestWarpInPlaceSafe: warping a buffer onto itself must equal warping into
// a separate destination (the two-pass temp copy).
func TestWarpInPlaceSafe(t *testing.T) {
	const w, h = 32, 32
	src := make([]byte, w*h)
	for i := range src {
		src[i] = byte(i * 7)
	}

	separate := make([]byte, w*h)
	Warp(separate, src, w, h, w)

	inPlace := make([]byte, w*h)
	copy(inPlace, src)
	Warp(inPlace, inPlace, w, h, w)

	for i := range separate {
		if separate[i] != inPlace[i] {
			t.Fatalf("pixel %d differs: separate %d, in-place %d", i, separate[i], inPlace[i])
		}
	}
}
