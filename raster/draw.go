package raster

import (
	"math"

	"github.com/tesseract-forge/qraster/bsp"
	"github.com/tesseract-forge/qraster/camera"
	"github.com/tesseract-forge/qraster/qfixed"
)

// CoplanarHysteresis is the 1% margin the scanline sweeper uses to break
// ties between coplanar submodel surfaces sharing a key (§4.4, §9 Open
// Questions — empirical, pinned rather than re-derived).
const CoplanarHysteresis = 0.01

// Gradients describes the linear per-pixel stepping of u/z and v/z in
// screen space for one surface at a chosen mip level (§4.5). Evaluating the
// gradient at a screen pixel (x,y) yields u/z and v/z directly; the origin
// terms fold in the screen-center bias so callers never subtract it
// per-pixel.
type Gradients struct {
	Mip int

	UInvZStepX, UInvZStepY float32
	VInvZStepX, VInvZStepY float32
	uInvZOrigin, vInvZOrigin float32

	UAdjust, VAdjust qfixed.Tex16
	UExtent, VExtent int32
}

// CalcGradients derives a surface's texture gradients from its texinfo
// axes, the camera's view basis, and the chosen mip level (§4.5). UAdjust/
// VAdjust fold in the camera's displacement along each texture axis and the
// surface's texel-space origin, so a sampled (u,v) lands directly in the
// cache block CacheSurface filled (§4.6).
func CalcGradients(cam *camera.Camera, texinfo *bsp.TexInfo, surf *bsp.Surface, mip int) Gradients {
	mipScale := float32(1) / float32(int32(1)<<uint(mip))

	uAxisView := cam.TransformDirection(texinfo.UAxis)
	vAxisView := cam.TransformDirection(texinfo.VAxis)

	g := Gradients{Mip: mip}
	g.UInvZStepX = uAxisView.X() * cam.ScaleInvZ * mipScale
	g.UInvZStepY = -uAxisView.Y() * cam.ScaleInvZ * mipScale
	g.VInvZStepX = vAxisView.X() * cam.ScaleInvZ * mipScale
	g.VInvZStepY = -vAxisView.Y() * cam.ScaleInvZ * mipScale

	g.uInvZOrigin = cam.ScreenCenter.X()*g.UInvZStepX + cam.ScreenCenter.Y()*g.UInvZStepY - uAxisView.Z()*mipScale
	g.vInvZOrigin = cam.ScreenCenter.X()*g.VInvZStepX + cam.ScreenCenter.Y()*g.VInvZStepY - vAxisView.Z()*mipScale

	camDispU := cam.Position().Dot(texinfo.UAxis)
	camDispV := cam.Position().Dot(texinfo.VAxis)

	uMin := int32(surf.UVMin[0]) >> uint(mip)
	vMin := int32(surf.UVMin[1]) >> uint(mip)

	g.UAdjust = qfixed.FromFloat16((camDispU+texinfo.UOffset)*mipScale) - qfixed.Tex16(uMin<<16)
	g.VAdjust = qfixed.FromFloat16((camDispV+texinfo.VOffset)*mipScale) - qfixed.Tex16(vMin<<16)

	if surf.IsTiled() {
		g.UExtent = 1 << 30
		g.VExtent = 1 << 30
	} else {
		g.UExtent = (int32(surf.UVExtents[0]) >> uint(mip)) - 1
		g.VExtent = (int32(surf.UVExtents[1]) >> uint(mip)) - 1
	}
	return g
}

func (g *Gradients) sample(is *ISurface, x, y float32) (uInvZ, vInvZ, invZ float32) {
	uInvZ = g.UInvZStepX*x + g.UInvZStepY*y - g.uInvZOrigin
	vInvZ = g.VInvZStepX*x + g.VInvZStepY*y - g.vInvZOrigin
	invZ = is.ZiStepX*x + is.ZiStepY*y + is.ZiD
	return
}

func (g *Gradients) uv(is *ISurface, x, y float32) (qfixed.Tex16, qfixed.Tex16) {
	uInvZ, vInvZ, invZ := g.sample(is, x, y)
	z := float32(0)
	if invZ != 0 {
		z = 1 / invZ
	}
	return qfixed.FromFloat16(uInvZ*z) + g.UAdjust, qfixed.FromFloat16(vInvZ*z) + g.VAdjust
}

func clampTex(v, extent int32) int32 {
	if extent <= 0 {
		return 0
	}
	switch {
	case v < 0:
		return 0
	case v > extent:
		return extent
	default:
		return v
	}
}

// DrawOpaqueSpan draws one span from a lit cache block, recomputing the
// true perspective-correct (u,v) every 8 pixels via one reciprocal divide
// and linearly interpolating in between (§4.5).
func DrawOpaqueSpan(span *ESpan, g *Gradients, is *ISurface, block *CacheBlock, row []byte) {
	const stride = 8
	x, count, y := span.XStart, span.Count, span.Y

	for count > 0 {
		sub := count
		if sub > stride {
			sub = stride
		}

		u, v := g.uv(is, float32(x), float32(y))
		var uStep, vStep qfixed.Tex16
		if sub > 1 {
			u2, v2 := g.uv(is, float32(x+sub), float32(y))
			if sub == stride {
				uStep = (u2 - u) >> 3
				vStep = (v2 - v) >> 3
			} else {
				uStep = (u2 - u) / qfixed.Tex16(sub-1)
				vStep = (v2 - v) / qfixed.Tex16(sub-1)
			}
		}

		for i := int32(0); i < sub; i++ {
			ui := clampTex(u.Int(), g.UExtent)
			vi := clampTex(v.Int(), g.VExtent)
			row[x+i] = block.Pixels[int(vi)*block.Width+int(ui)]
			u += uStep
			v += vStep
		}

		x += sub
		count -= sub
	}
}

// TurbCycle is the wrap period of the turbulent distortion sine table and
// of the water texture itself (§4.5: "wrapping modulo the texture size
// (64)").
const TurbCycle = 64

var turbSine [TurbCycle]int32

func init() {
	for i := range turbSine {
		turbSine[i] = int32(8 * math.Sin(float64(i)*2*math.Pi/TurbCycle))
	}
}

// DrawTurbulentSpan draws one span of a turbulent (water) surface: like
// DrawOpaqueSpan but with a 16-pixel reciprocal stride and an additive
// sine-wave distortion of u and v, each indexed by the other coordinate
// plus the frame counter (§4.5).
func DrawTurbulentSpan(span *ESpan, g *Gradients, is *ISurface, block *CacheBlock, frameCount int32, row []byte) {
	const stride = 16
	x, count, y := span.XStart, span.Count, span.Y

	for count > 0 {
		sub := count
		if sub > stride {
			sub = stride
		}

		u, v := g.uv(is, float32(x), float32(y))
		var uStep, vStep qfixed.Tex16
		if sub > 1 {
			u2, v2 := g.uv(is, float32(x+sub), float32(y))
			if sub == stride {
				uStep = (u2 - u) >> 4
				vStep = (v2 - v) >> 4
			} else {
				uStep = (u2 - u) / qfixed.Tex16(sub-1)
				vStep = (v2 - v) / qfixed.Tex16(sub-1)
			}
		}

		for i := int32(0); i < sub; i++ {
			ui, vi := u.Int(), v.Int()
			turbU := ui + turbSine[uint32(vi+frameCount)&(TurbCycle-1)]
			turbV := vi + turbSine[uint32(ui+frameCount)&(TurbCycle-1)]
			sx := int((turbU%TurbCycle + TurbCycle) % TurbCycle)
			sy := int((turbV%TurbCycle + TurbCycle) % TurbCycle)
			row[x+i] = block.Pixels[sy*block.Width+sx]
			u += uStep
			v += vStep
		}

		x += sub
		count -= sub
	}
}

// DrawZSpan writes a span's 1/z plane gradient into the z-buffer (§4.5).
// The renderer does not consult the z-buffer for visibility — span drawing
// is already occlusion-correct — it is produced for later composition
// (sprites, alias models) which is out of this core's scope.
func DrawZSpan(span *ESpan, is *ISurface, zrow []float32) {
	x := span.XStart
	for i := int32(0); i < span.Count; i++ {
		px := float32(x + i)
		zrow[x+i] = is.ZiD + is.ZiStepX*px + is.ZiStepY*float32(span.Y)
	}
}

// CacheBlock is the minimal view of a surface-cache block the span drawers
// need; cache.Data satisfies this shape without raster importing cache
// (which itself imports bsp and light, not raster).
type CacheBlock struct {
	Width  int
	Pixels []byte
}
