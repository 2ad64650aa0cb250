// Package sky implements the sky compositor and the underwater screen warp
// (§4.8): splitting a dual-panel 256x128 sky texture into a scrolling
// composite canvas, and a bounded sine-distortion post-process applied when
// the viewpoint is inside water.
package sky

import (
	"math"

	"github.com/tesseract-forge/qraster/camera"
	"github.com/tesseract-forge/qraster/qfixed"

	"github.com/go-gl/mathgl/mgl32"
)

const (
	// Size is one panel's width/height; the source texture packs two
	// Size x Size panels side by side (§4.8).
	Size = 128
	sizeMask = Size - 1
	// textureWidth is the scan width the low-level drawers need: the
	// composited canvas and the foreground strip both use it so sampling
	// never crosses a row boundary (matches SkyInit/SkyAnimate in the
	// source material).
	textureWidth = Size * 2
	// foreignWidth is the foreground strip's row stride: Size plus three
	// wrapped-around columns (the source material's "SKY_WEIRD_NUMBER").
	// Animate wraps its column index with sizeMask, so the extra columns
	// are not read.
	foreignWidth = 131
	// ShiftPerFrame is how far the sky scrolls each frame (§4.8, §2).
	ShiftPerFrame = 0.6
	// uvScale is the sky-space UV multiplier ("C" in §4.5, "sky_multiplier"
	// in the source material).
	uvScale = 320.0
)

// Canvas holds the composited sky texture the span drawer samples plus the
// foreground strip and its transparency mask it composites from.
type Canvas struct {
	newSky    [Size * textureWidth]byte
	leftSky   [Size * foreignWidth]byte
	leftMask  [Size * foreignWidth]byte
	Shift     float32
}

// Init splits a 256x128 dual-panel sky texture (background left half,
// foreground right half with black=transparent) into the canvas's working
// layout (§4.8). tex is row-major palette indices, textureWidth*Size bytes.
func (c *Canvas) Init(tex []byte) {
	for y := 0; y < Size; y++ {
		src := tex[y*textureWidth+Size : y*textureWidth+textureWidth]
		copy(c.newSky[y*textureWidth+Size:y*textureWidth+textureWidth], src)
	}

	for y := 0; y < Size; y++ {
		for x := 0; x < foreignWidth; x++ {
			color := tex[y*textureWidth+(x&sizeMask)]
			c.leftSky[y*foreignWidth+x] = color
			if color == 0 {
				c.leftMask[y*foreignWidth+x] = 0xff
			} else {
				c.leftMask[y*foreignWidth+x] = 0
			}
		}
	}
}

// Animate recomposites the canvas's left half for the current shift,
// overlaying the foreground (masked where non-transparent) over the
// background (§4.8).
func (c *Canvas) Animate() {
	shift := int32(c.Shift)
	for y := 0; y < Size; y++ {
		rightRow := ((int32(y)+shift)&sizeMask)*foreignWidth
		for x := 0; x < Size; x++ {
			rightOff := rightRow + ((int32(x)+shift)&sizeMask)
			leftTexel := c.newSky[y*textureWidth+Size+x]
			rightTexel := c.leftSky[rightOff]
			rightMask := c.leftMask[rightOff]
			c.newSky[y*textureWidth+x] = (leftTexel & rightMask) | rightTexel
		}
	}
}

// Advance moves the sky shift forward one frame's worth (§2, §4.8).
func (c *Canvas) Advance() { c.Shift += ShiftPerFrame }

// Direction returns the normalized world-space ray through screen pixel
// (x,y), flattening the horizon by scaling the up component 3x before
// normalizing (§4.5). Rotx carries the view depth and Roty the horizontal
// screen offset, per camera.Camera's basis roles (forward/right/up).
func Direction(cam *camera.Camera, x, y float32) mgl32.Vec3 {
	wu := x - cam.ScreenCenter.X()
	wv := cam.ScreenCenter.Y() - y
	wz := cam.ScaleZ

	dir := mgl32.Vec3{
		wz*cam.Rotx.X() + wu*cam.Roty.X() + wv*cam.Rotz.X(),
		wz*cam.Rotx.Y() + wu*cam.Roty.Y() + wv*cam.Rotz.Y(),
		wz*cam.Rotx.Z() + wu*cam.Roty.Z() + wv*cam.Rotz.Z(),
	}
	dir[2] *= 3
	return dir.Normalize()
}

// UV converts a screen pixel to sky-space fixed 16.16 texture coordinates
// (§4.5): (shift + C*dir.{x,y}) as a 16.16 value.
func UV(cam *camera.Camera, x, y, shift float32) (u, v qfixed.Tex16) {
	dir := Direction(cam, x, y)
	u = qfixed.FromFloat16(shift + uvScale*dir.X())
	v = qfixed.FromFloat16(shift + uvScale*dir.Y())
	return
}

// Sample returns the composited sky texel at fixed 16.16 (u,v), matching
// §4.5's addressing: ((v&0x7F0000)>>8) + ((u&0x7F0000)>>16).
func (c *Canvas) Sample(u, v qfixed.Tex16) byte {
	idx := ((int32(v) & 0x7F0000) >> 8) + ((int32(u) & 0x7F0000) >> 16)
	return c.newSky[idx]
}

// DrawSpan samples the sky canvas at 32-pixel intervals along a span,
// interpolating the fixed-point UV between samples (§4.5).
func DrawSpan(span rasterSpan, cam *camera.Camera, canvas *Canvas, shift float32, row []byte) {
	const sampleStride = 32
	x, count, y := span.XStart, span.Count, span.Y

	for count > 0 {
		sub := count
		if sub > sampleStride {
			sub = sampleStride
		}

		u0, v0 := UV(cam, float32(x), float32(y), shift)
		var uStep, vStep qfixed.Tex16
		if sub > 1 {
			u1, v1 := UV(cam, float32(x+sub), float32(y), shift)
			uStep = (u1 - u0) / qfixed.Tex16(sub)
			vStep = (v1 - v0) / qfixed.Tex16(sub)
		}

		u, v := u0, v0
		for i := int32(0); i < sub; i++ {
			row[x+i] = canvas.Sample(u, v)
			u += uStep
			v += vStep
		}

		x += sub
		count -= sub
	}
}

// rasterSpan is the minimal shape sky.DrawSpan needs from raster.ESpan;
// kept local so sky does not import raster (raster would need to import
// sky's Canvas for the reverse direction, creating a cycle — render wires
// the two together instead).
type rasterSpan struct {
	XStart, Y, Count int32
}

// Span adapts a raster.ESpan-shaped value into the local span type used by
// DrawSpan.
func Span(xStart, y, count int32) rasterSpan {
	return rasterSpan{XStart: xStart, Y: y, Count: count}
}

const (
	// WarpAmplitude bounds the water-warp sine distortion, in pixels
	// (§4.8, §8 scenario S5: "up to amplitude ~4 pixels away").
	WarpAmplitude = 4
	warpCycle     = 256
)

var warpSine [warpCycle]float32

func init() {
	for i := range warpSine {
		warpSine[i] = WarpAmplitude * float32(math.Sin(float64(i)*2*math.Pi/warpCycle))
	}
}

// Warp applies the bounded sine distortion to a palette-indexed framebuffer
// row-major plane, two-pass via an internal temp buffer so it is safe even
// when dst and src share backing storage (§4.8).
func Warp(dst, src []byte, width, height, stride int) {
	stretchX := float32(width) / float32(width+2*WarpAmplitude)
	stretchY := float32(height) / float32(height+2*WarpAmplitude)

	tmp := make([]byte, len(src))
	copy(tmp, src)

	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			sx := int((float32(x) + warpSine[y&(warpCycle-1)]) * stretchX)
			sy := int((float32(y) + warpSine[x&(warpCycle-1)]) * stretchY)
			sx = clampInt(sx, 0, width-1)
			sy = clampInt(sy, 0, height-1)
			dst[y*stride+x] = tmp[sy*stride+sx]
		}
	}
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
