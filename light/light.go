// Package light implements lighting animation (§4.7): named light styles
// whose wave strings drive per-frame brightness, dynamic point lights marked
// against the BSP each frame, the block-light accumulation a surface's
// lightmap feeds into the surface cache's convolution (§4.6), and the
// colormap shading LUT referenced by that convolution.
package light

import "github.com/tesseract-forge/qraster/bsp"

const (
	MaxStyles     = 64
	MaxLights     = 32
	BlockLightMax = 18 // 18x18 cap on a surface's block-light grid (§3, §4.7)
)

// Style is a named light-style brightness track (§4.7): wave[i] in 'a'..'z'
// maps linearly to brightness 0..550 in steps of 22 ('m' gives 264), sampled
// at 10 steps a second.
type Style struct {
	Wave    string
	Current float32
}

// Animate sets Current from the wave string at the given time. A
// zero-length wave is the convention for "always fully lit".
func (s *Style) Animate(time float32) {
	if len(s.Wave) == 0 {
		s.Current = 256
		return
	}
	idx := int(time*10) % len(s.Wave)
	if idx < 0 {
		idx += len(s.Wave)
	}
	s.Current = float32(s.Wave[idx]-'a') * 22
}

// AnimateStyles advances every style in place for the current frame time.
func AnimateStyles(styles *[MaxStyles]Style, time float32) {
	for i := range styles {
		styles[i].Animate(time)
	}
}

// DynamicLight is a temporary point light (§3, §4.7): Active lights are
// descended against the BSP each frame by MarkSurfaces before the world
// walk.
type DynamicLight struct {
	Position       [3]float32
	Radius         float32
	MinLight       float32
	Duration       float32
	ElapsedTime    float32
	Active         bool
}

// System bundles the style table and dynamic light pool a renderer carries
// across frames.
type System struct {
	Styles [MaxStyles]Style
	Lights [MaxLights]DynamicLight
}

// Tick advances every active light's elapsed time and deactivates any whose
// Duration has expired.
func (sys *System) Tick(dt float32) {
	for i := range sys.Lights {
		l := &sys.Lights[i]
		if !l.Active {
			continue
		}
		l.ElapsedTime += dt
		if l.Duration > 0 && l.ElapsedTime >= l.Duration {
			l.Active = false
		}
	}
}

// MarkSurfaces descends the BSP from World.HeadNode for every active light,
// tagging each surface whose plane passes within the light's radius with
// bit 1<<lightIndex in LightBits (§4.7). A surface whose LightFrame is
// stale has its bits reset to the fresh set rather than accumulating bits
// left over from an earlier frame.
func (sys *System) MarkSurfaces(w *bsp.World, frameCount int32) {
	for i := range sys.Lights {
		l := &sys.Lights[i]
		if !l.Active {
			continue
		}
		markRecurse(w, w.HeadNode, l, int32(i), frameCount)
	}
}

func markRecurse(w *bsp.World, ref int32, l *DynamicLight, lightIndex int32, frameCount int32) {
	if ref < 0 {
		return
	}
	node := &w.Nodes[ref]
	plane := &w.Planes[node.Plane]
	dist := plane.Normal.X()*l.Position[0] + plane.Normal.Y()*l.Position[1] + plane.Normal.Z()*l.Position[2] - plane.Dist

	if dist > l.Radius {
		markRecurse(w, node.Children[0], l, lightIndex, frameCount)
		return
	}
	if dist < -l.Radius {
		markRecurse(w, node.Children[1], l, lightIndex, frameCount)
		return
	}

	for i := int32(0); i < node.NumSurface; i++ {
		si := node.FirstSurface + i
		s := &w.Surfaces[si]
		if s.LightFrame != frameCount {
			s.LightFrame = frameCount
			s.LightBits = 0
		}
		s.LightBits |= 1 << uint(lightIndex)
	}
	markRecurse(w, node.Children[0], l, lightIndex, frameCount)
	markRecurse(w, node.Children[1], l, lightIndex, frameCount)
}

// BuildBlockLights accumulates one surface's block-light grid (§3, §4.7):
// every active lightmap style's raw samples scaled by the style's current
// brightness, plus every flagged dynamic light's contribution via the
// Manhattan-ish distance approximation. out must be sized smax*tmax (the
// caller derives smax/tmax from the surface's uv extents) and is fully
// overwritten.
//
// The finished values are inverted and scaled so the integer part of each
// 8.8 cell indexes the colormap row directly: 0 is fullbright, 63 darkest.
// A cell that accumulated zero light therefore comes out at the darkest row,
// and an over-saturated cell pins at fullbright.
func BuildBlockLights(surf *bsp.Surface, texinfo *bsp.TexInfo, sys *System, smax, tmax int, out []int32) {
	for i := range out {
		out[i] = 0
	}

	n := smax * tmax
	samples := surf.Samples
	for mapIdx := 0; mapIdx < bsp.MaxLightMaps; mapIdx++ {
		style := surf.Styles[mapIdx]
		if style == 255 {
			break
		}
		if int(style) >= MaxStyles || len(samples) < n {
			break
		}
		scale := sys.Styles[style].Current / 256
		for i := 0; i < n; i++ {
			out[i] += int32(float32(samples[i]) * scale * 256)
		}
		samples = samples[n:]
	}

	for li := range sys.Lights {
		l := &sys.Lights[li]
		if !l.Active || surf.LightBits&(1<<uint(li)) == 0 {
			continue
		}
		addDynamicLight(surf, texinfo, l, smax, tmax, out)
	}

	for i := 0; i < n; i++ {
		t := (255*256 - out[i]) >> 2
		if t < 64 {
			t = 64
		}
		out[i] = t
	}
}

// addDynamicLight projects a light's world position into the surface's
// texture space and adds its falloff contribution to every 16-texel block
// cell within reach (§4.7).
func addDynamicLight(surf *bsp.Surface, texinfo *bsp.TexInfo, l *DynamicLight, smax, tmax int, out []int32) {
	pos := texinfo.UAxis.X()*l.Position[0] + texinfo.UAxis.Y()*l.Position[1] + texinfo.UAxis.Z()*l.Position[2]
	lu := pos + texinfo.UOffset - float32(surf.UVMin[0])
	pos = texinfo.VAxis.X()*l.Position[0] + texinfo.VAxis.Y()*l.Position[1] + texinfo.VAxis.Z()*l.Position[2]
	lv := pos + texinfo.VOffset - float32(surf.UVMin[1])

	for t := 0; t < tmax; t++ {
		dv := lv - float32(t*16+8)
		if dv < 0 {
			dv = -dv
		}
		for s := 0; s < smax; s++ {
			du := lu - float32(s*16+8)
			if du < 0 {
				du = -du
			}

			var dist float32
			if du > dv {
				dist = du + dv/2
			} else {
				dist = dv + du/2
			}

			energy := l.Radius - dist
			if energy <= 0 || energy < l.MinLight {
				continue
			}
			out[t*smax+s] += int32(energy) * 256
		}
	}
}

// Colormap is the 256x64 shade x texel -> palette-index LUT (§4.6,
// §GLOSSARY): row*256+texel gives the shaded palette index, row 0 brightest
// and row 63 darkest.
type Colormap []byte

// Shade looks up the palette index for a texel at the given shade row,
// clamping row to the valid 0..63 range.
func (c Colormap) Shade(row int, texel byte) byte {
	if row < 0 {
		row = 0
	}
	if row > 63 {
		row = 63
	}
	return c[row*256+int(texel)]
}
