// Package cache implements the surface cache (§4.6): a ring allocator over a
// fixed byte budget that materializes a face's lit texture — its texture
// mip convolved with its interpolated, shaded lightmap — on demand, and
// keeps that block valid across frames until the rover sweeps over it.
//
// This is not an LRU: allocation walks forward from a rover cursor,
// coalescing whatever free or stale blocks it passes until there's enough
// room, per §4.6's "retention policy" note.
package cache

import (
	"errors"

	"github.com/tesseract-forge/qraster/bsp"
	"github.com/tesseract-forge/qraster/light"
)

const (
	// HeaderSize models the per-block bookkeeping bytes the original C
	// allocator pays for out of the same budget; kept here so the split
	// threshold and starvation checks size the same way (§4.6).
	HeaderSize = 16
	// SplitSlack is the minimum leftover, beyond the new block's own
	// header, worth carving into a separate free block (§4.6).
	SplitSlack = 256
	// BytesPerPixelHeuristic backs the SURFACE_CACHE_SIZE = 16*w*h sizing
	// rule (§4.6). Not theoretically bounded by the working set; carried
	// as-is per the §9 Open Question rather than re-derived.
	BytesPerPixelHeuristic = 16
)

// ErrStarved is returned when a requested block is larger than the cache's
// entire budget — a fatal condition per §7(b).
var ErrStarved = errors.New("cache: block larger than surface cache budget")

// Data is the materialized lit texture handed back to the span drawer.
type Data struct {
	Width, Height int
	Pixels        []byte
}

type block struct {
	next, prev int32
	free       bool
	size       int // payload bytes, header excluded

	ownerSurf int32 // -1 when free
	ownerMip  int
	width, height int
	brightAdjusts [4]float32

	data []byte
}

func blockTotal(b *block) int { return b.size + HeaderSize }

// Cache is the surface-cache ring allocator. Block 0 is an unused nil
// sentinel, matching the arena convention used throughout this module
// (Design Note §9).
type Cache struct {
	budget int
	blocks []block
	rover  int32
}

// New allocates a cache with the given byte budget, sized by the caller
// using BytesPerPixelHeuristic against the framebuffer dimensions.
func New(budget int) *Cache {
	c := &Cache{budget: budget}
	c.blocks = make([]block, 2)
	c.blocks[1] = block{next: 1, prev: 1, free: true, size: budget - HeaderSize, ownerSurf: -1}
	c.rover = 1
	return c
}

// Flush relinks every block into one free block spanning the whole budget
// and clears every live owner's cachespot, per §4.6's "flush on mode
// change" (resolution change, palette remap).
func (c *Cache) Flush(w *bsp.World) {
	for i := range c.blocks {
		b := &c.blocks[i]
		if i == 0 || b.free {
			continue
		}
		if b.ownerSurf >= 0 {
			w.Surfaces[b.ownerSurf].CacheSpots[b.ownerMip] = bsp.CacheSpot{}
		}
	}
	c.blocks = c.blocks[:2]
	c.blocks[1] = block{next: 1, prev: 1, free: true, size: c.budget - HeaderSize, ownerSurf: -1}
	c.rover = 1
}

// alloc implements §4.6's allocation algorithm: starting at the rover, walk
// forward merging blocks (evicting any live owner it passes over) until the
// accumulated size covers total, then either split the remainder into a new
// free block or absorb it whole.
func (c *Cache) alloc(w *bsp.World, ownerSurf int32, ownerMip, width, height, payload int) (int32, error) {
	total := (payload + HeaderSize + 3) &^ 3
	if total > c.budget {
		return 0, ErrStarved
	}

	start := c.rover
	cur := start
	acc := 0
	for steps := 0; ; steps++ {
		if steps > len(c.blocks)+1 {
			return 0, ErrStarved
		}
		b := &c.blocks[cur]
		if !b.free && b.ownerSurf >= 0 {
			w.Surfaces[b.ownerSurf].CacheSpots[b.ownerMip] = bsp.CacheSpot{}
		}
		acc += blockTotal(b)
		if acc >= total {
			break
		}
		cur = c.blocks[cur].next
	}

	mergedSize := acc
	next := c.blocks[cur].next
	prev := c.blocks[start].prev
	c.blocks[prev].next = start
	c.blocks[start].prev = prev
	c.blocks[start].next = next
	c.blocks[next].prev = start

	b := &c.blocks[start]
	*b = block{ownerSurf: ownerSurf, ownerMip: ownerMip, width: width, height: height, next: b.next, prev: b.prev}

	leftover := mergedSize - total
	if leftover > HeaderSize+SplitSlack {
		b.size = total - HeaderSize
		freeIdx := int32(len(c.blocks))
		c.blocks = append(c.blocks, block{free: true, size: leftover - HeaderSize, ownerSurf: -1})
		b = &c.blocks[start] // append may have moved the backing array
		fb := &c.blocks[freeIdx]
		fb.next = b.next
		fb.prev = start
		c.blocks[b.next].prev = freeIdx
		b.next = freeIdx
		c.rover = freeIdx
	} else {
		b.size = mergedSize - HeaderSize
		c.rover = b.next
	}

	b.data = make([]byte, payload)
	return start, nil
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}

func max(a, b int) int {
	if a > b {
		return a
	}
	return b
}

// CacheSurface returns a surface's lit texture at the given mip level,
// rebuilding it only if invalid (§4.6, §8 property 6): the surface has no
// cachespot at this mip, a dynamic light was flagged this frame, or any of
// its four lightmap styles' brightness changed since the block was built.
func (c *Cache) CacheSurface(w *bsp.World, sys *light.System, surfIndex int32, mip int, frameCount int32, colormap light.Colormap) (*Data, error) {
	surf := &w.Surfaces[surfIndex]
	adjusts := currentBrightAdjusts(surf, sys)

	if spot := surf.CacheSpots[mip]; spot.Valid {
		b := &c.blocks[spot.Block]
		if !b.free && b.ownerSurf == surfIndex && b.ownerMip == mip &&
			surf.LightFrame != frameCount && b.brightAdjusts == adjusts {
			return &Data{Width: b.width, Height: b.height, Pixels: b.data}, nil
		}
	}

	texinfo := &w.TexInfos[surf.TexInfo]
	tex := texinfo.Texture

	texW := int(tex.Width) >> uint(mip)
	texH := int(tex.Height) >> uint(mip)
	if texW < 1 {
		texW = 1
	}
	if texH < 1 {
		texH = 1
	}

	// Tiled surfaces (sky/turb) carry the uv_min=16384/uv_extents=-8192
	// sentinel (§3) and have no meaningful lightmap to convolve — the cache
	// block is just the raw mip texture, sampled through the brightest
	// colormap row, so the turbulent drawer's own distortion is the only
	// thing applied on top (§4.5, §4.6).
	tiled := surf.IsTiled()

	width, height := texW, texH
	if !tiled {
		width = int(surf.UVExtents[0]) >> uint(mip)
		height = int(surf.UVExtents[1]) >> uint(mip)
		if width < 1 {
			width = 1
		}
		if height < 1 {
			height = 1
		}
	}

	idx, err := c.alloc(w, surfIndex, mip, width, height, width*height)
	if err != nil {
		return nil, err
	}
	b := &c.blocks[idx]
	b.brightAdjusts = adjusts
	surf.CacheSpots[mip] = bsp.CacheSpot{Valid: true, Block: int(idx)}

	if tiled {
		mipTex := tex.Mip[mip]
		for i := 0; i < width*height && i < len(mipTex); i++ {
			b.data[i] = colormap.Shade(0, mipTex[i])
		}
		return &Data{Width: width, Height: height, Pixels: b.data}, nil
	}

	smax := int(surf.UVExtents[0])/16 + 1
	tmax := int(surf.UVExtents[1])/16 + 1
	blockLights := make([]int32, smax*tmax)
	light.BuildBlockLights(surf, texinfo, sys, smax, tmax, blockLights)

	mipTex := tex.Mip[mip]
	uBase := int(surf.UVMin[0]) >> uint(mip)
	vBase := int(surf.UVMin[1]) >> uint(mip)

	// Lightmap cells are 16 full-resolution texels; row/col are mip-scaled,
	// so the cell size in this space is 16>>mip.
	for row := 0; row < height; row++ {
		cellRow := float32(row<<uint(mip)) / 16
		t0 := int(cellRow)
		tf := cellRow - float32(t0)
		if t0 >= tmax-1 {
			t0 = max(tmax-2, 0)
			tf = 1
		}
		t1 := min(t0+1, tmax-1)

		for col := 0; col < width; col++ {
			cellCol := float32(col<<uint(mip)) / 16
			s0 := int(cellCol)
			sf := cellCol - float32(s0)
			if s0 >= smax-1 {
				s0 = max(smax-2, 0)
				sf = 1
			}
			s1 := min(s0+1, smax-1)

			l00 := float32(blockLights[t0*smax+s0])
			l10 := float32(blockLights[t0*smax+s1])
			l01 := float32(blockLights[t1*smax+s0])
			l11 := float32(blockLights[t1*smax+s1])

			top := l00 + (l10-l00)*sf
			bot := l01 + (l11-l01)*sf
			lval := top + (bot-top)*tf

			shade := int(lval) >> 8

			texX := (((col + uBase) % texW) + texW) % texW
			texY := (((row + vBase) % texH) + texH) % texH
			texel := mipTex[texY*texW+texX]

			b.data[row*width+col] = colormap.Shade(shade, texel)
		}
	}

	return &Data{Width: width, Height: height, Pixels: b.data}, nil
}

func currentBrightAdjusts(surf *bsp.Surface, sys *light.System) [4]float32 {
	var out [4]float32
	for i, style := range surf.Styles {
		if style == 255 || int(style) >= light.MaxStyles {
			continue
		}
		out[i] = sys.Styles[style].Current
	}
	return out
}
