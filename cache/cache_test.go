package cache

import (
	"bytes"
	"errors"
	"testing"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tesseract-forge/qraster/bsp"
	"github.com/tesseract-forge/qraster/light"
)

// grayColormap maps (row, texel) -> row, so a cached pixel directly reveals
// which shade row the lightmap convolution picked.
func grayColormap() light.Colormap {
	cm := make(light.Colormap, 256*64)
	for row := 0; row < 64; row++ {
		for texel := 0; texel < 256; texel++ {
			cm[row*256+texel] = byte(row)
		}
	}
	return cm
}

// litWorld builds a one-surface world with a 64x64 texture and a 32x32
// lightmapped extent (3x3 block-light grid), fully lit by style 0.
func litWorld() (*bsp.World, *light.System) {
	tex := &bsp.Texture{Name: "wall", Width: 64, Height: 64}
	for i := 0; i < bsp.MipLevels; i++ {
		side := 64 >> i
		mip := make([]byte, side*side)
		for j := range mip {
			mip[j] = 7
		}
		tex.Mip[i] = mip
	}

	w := &bsp.World{
		TexInfos: []bsp.TexInfo{{
			UAxis:   mgl32.Vec3{0, 1, 0},
			VAxis:   mgl32.Vec3{0, 0, 1},
			Texture: tex,
		}},
		Surfaces: []bsp.Surface{{
			TexInfo:   0,
			Styles:    [bsp.MaxLightMaps]uint8{0, 255, 255, 255},
			Samples:   bytes.Repeat([]byte{255}, 9),
			UVExtents: [2]int16{32, 32},
		}},
	}

	sys := &light.System{}
	sys.Styles[0].Current = 256 // fully lit

	return w, sys
}

// TestCacheSurfaceReturnsExistingBlock pins the cache validity contract:
// unchanged style brightness, no dynamic light this frame, and a live
// cachespot must return the existing block with no rebuild.
func TestCacheSurfaceReturnsExistingBlock(t *testing.T) {
	w, sys := litWorld()
	c := New(1 << 20)
	cm := grayColormap()

	d1, err := c.CacheSurface(w, sys, 0, 0, 1, cm)
	require.NoError(t, err)
	require.True(t, w.Surfaces[0].CacheSpots[0].Valid)

	// Scribble on the block; a cached return must hand back the same
	// storage, scribble included; a rebuild would overwrite it.
	d1.Pixels[0] = 99

	d2, err := c.CacheSurface(w, sys, 0, 0, 2, cm)
	require.NoError(t, err)
	assert.Same(t, &d1.Pixels[0], &d2.Pixels[0])
	assert.Equal(t, byte(99), d2.Pixels[0])
}

// TestCacheSurfaceRebuildsOnStyleChange checks the other half of validity:
// a style brightness change invalidates the block even though the cachespot
// is still live.
func TestCacheSurfaceRebuildsOnStyleChange(t *testing.T) {
	w, sys := litWorld()
	c := New(1 << 20)
	cm := grayColormap()

	d1, err := c.CacheSurface(w, sys, 0, 0, 1, cm)
	require.NoError(t, err)
	assert.Equal(t, byte(0), d1.Pixels[0], "fully lit surface should shade through the brightest row")

	sys.Styles[0].Current = 0 // style went dark

	d2, err := c.CacheSurface(w, sys, 0, 0, 2, cm)
	require.NoError(t, err)
	assert.Equal(t, byte(63), d2.Pixels[0], "dark style should shade through the darkest row")
}

// TestCacheSurfaceRebuildsWhenDynamicLightFlagged: a surface whose
// LightFrame matches the current frame was touched by a dynamic light and
// must be rebuilt.
func TestCacheSurfaceRebuildsWhenDynamicLightFlagged(t *testing.T) {
	w, sys := litWorld()
	c := New(1 << 20)
	cm := grayColormap()

	d1, err := c.CacheSurface(w, sys, 0, 0, 1, cm)
	require.NoError(t, err)
	d1.Pixels[0] = 99

	w.Surfaces[0].LightFrame = 2 // dynamic light marked this surface on frame 2

	d2, err := c.CacheSurface(w, sys, 0, 0, 2, cm)
	require.NoError(t, err)
	assert.Equal(t, byte(0), d2.Pixels[0], "rebuild must overwrite the scribbled block")
}

// TestAllocEvictsPassedOwners: when the rover sweeps over a live block to
// satisfy a new allocation, the evicted surface loses its cachespot.
func TestAllocEvictsPassedOwners(t *testing.T) {
	w, sys := litWorld()
	// Room for one 32x32 block plus header, not two.
	c := New(32*32 + HeaderSize + 64)
	cm := grayColormap()

	w.Surfaces = append(w.Surfaces, w.Surfaces[0])

	_, err := c.CacheSurface(w, sys, 0, 0, 1, cm)
	require.NoError(t, err)
	require.True(t, w.Surfaces[0].CacheSpots[0].Valid)

	_, err = c.CacheSurface(w, sys, 1, 0, 1, cm)
	require.NoError(t, err)

	assert.False(t, w.Surfaces[0].CacheSpots[0].Valid, "evicted surface should have lost its cachespot")
	assert.True(t, w.Surfaces[1].CacheSpots[0].Valid)
}

// TestFlushClearsAllSpots covers the mode-change path: every live owner's
// cachespot is cleared and the whole budget is free again.
func TestFlushClearsAllSpots(t *testing.T) {
	w, sys := litWorld()
	c := New(1 << 20)
	cm := grayColormap()

	_, err := c.CacheSurface(w, sys, 0, 0, 1, cm)
	require.NoError(t, err)
	require.True(t, w.Surfaces[0].CacheSpots[0].Valid)

	c.Flush(w)

	assert.False(t, w.Surfaces[0].CacheSpots[0].Valid)
}

// TestAllocStarvedIsFatal: a block bigger than the whole budget is the §7(b)
// fatal condition, not a silent drop.
func TestAllocStarvedIsFatal(t *testing.T) {
	w, sys := litWorld()
	c := New(64)

	_, err := c.CacheSurface(w, sys, 0, 0, 1, grayColormap())
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrStarved))
}

// TestCacheSurfaceMippedLightmapCoversGrid: at mip>0 the convolution's cell
// size shrinks to 16>>mip mip-texels, so the far edge of the block must
// still reach the far block-light cells. A surface lit only along its t=0
// cell row must come out bright at the top and dark at the bottom of a
// mip-1 block, not bright-interpolated all the way down.
func TestCacheSurfaceMippedLightmapCoversGrid(t *testing.T) {
	w, sys := litWorld()
	c := New(1 << 20)
	cm := grayColormap()

	// 3x3 block-light grid: top cell row fully lit, the rest unlit.
	w.Surfaces[0].Samples = []byte{
		255, 255, 255,
		0, 0, 0,
		0, 0, 0,
	}

	d, err := c.CacheSurface(w, sys, 0, 1, 1, cm)
	require.NoError(t, err)
	require.Equal(t, 16, d.Width)
	require.Equal(t, 16, d.Height)

	assert.Equal(t, byte(0), d.Pixels[0], "top-left texel sits on the lit cell row")
	assert.Equal(t, byte(63), d.Pixels[15*16], "bottom-left texel sits between unlit cell rows")
}

// TestCacheSurfaceTiledUsesMipDimensions: sky/turb surfaces carry the
// "ignore extents" sentinel, so the block is sized from the texture mip
// itself, sampled fullbright.
func TestCacheSurfaceTiledUsesMipDimensions(t *testing.T) {
	w, sys := litWorld()
	c := New(1 << 20)
	cm := grayColormap()

	w.Surfaces[0].Flags = bsp.SurfDrawTurb
	w.Surfaces[0].UVMin = [2]int16{bsp.TiledUVMin, bsp.TiledUVMin}
	w.Surfaces[0].UVExtents = [2]int16{bsp.TiledUVExtents, bsp.TiledUVExtents}

	d, err := c.CacheSurface(w, sys, 0, 1, 1, cm)
	require.NoError(t, err)
	assert.Equal(t, 32, d.Width)
	assert.Equal(t, 32, d.Height)
	assert.Equal(t, byte(0), d.Pixels[0], "tiled surfaces sample through the fullbright row")
}
