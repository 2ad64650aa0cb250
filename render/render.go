// Package render composes the BSP walk, face clipper, scanline scan, span
// drawers, surface cache, and lighting/sky subsystems into the single
// per-frame entry point (§2): construct a Renderer once, then call
// RenderView once per frame with a camera pose and a dt.
package render

import (
	"errors"
	"fmt"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/google/uuid"

	"github.com/tesseract-forge/qraster/bsp"
	"github.com/tesseract-forge/qraster/camera"
	"github.com/tesseract-forge/qraster/cache"
	"github.com/tesseract-forge/qraster/light"
	"github.com/tesseract-forge/qraster/raster"
	"github.com/tesseract-forge/qraster/sky"
)

// FrameBuffer is the platform-provided pixel surface the renderer draws
// into (§6): palette-indexed, one byte per pixel.
type FrameBuffer struct {
	Width, Height, BytesPerPixel, BytesPerRow int
	Pixels                                    []byte
}

// PaletteSink receives a 256-entry RGB palette when the renderer remaps it
// (§6). The host owns the actual presentation surface's palette.
type PaletteSink func(palette [256][3]byte)

// Clock is a host-provided per-frame delta-time source (§6); the renderer
// never reads a system clock itself.
type Clock func() float32

// Config is the renderer's construction-time configuration (§1.1: no CLI,
// just a plain struct, following the teacher's NewXxx(cfg) convention).
type Config struct {
	Rect            camera.Rect
	FovXDegrees     float32
	MaxEdges        int
	MaxSurfaces     int
	MaxSpans        int
	CacheBudget     int
	BackgroundColor byte
}

// DefaultConfig returns sane arena sizes per §3's NUM_STACK_EDGE/
// NUM_STACK_SURFACE/MAX_SPAN constants, sized for rect via
// cache.BytesPerPixelHeuristic for the cache budget.
func DefaultConfig(rect camera.Rect, fovXDegrees float32) Config {
	return Config{
		Rect:        rect,
		FovXDegrees: fovXDegrees,
		MaxEdges:    2400,
		MaxSurfaces: 800,
		MaxSpans:    5120,
		CacheBudget: cache.BytesPerPixelHeuristic * rect.Width * rect.Height,
	}
}

// Stats are the soft-overflow counters §7(b) calls for: the renderer keeps
// rendering when the per-frame edge/surface pools fill, dropping further
// emissions rather than failing the frame. EdgeOverflowCount accumulates the
// dropped edges; faces dropped because the isurface pool is full are not
// counted, and nothing increments SurfaceOverflowCount.
type Stats struct {
	EdgeOverflowCount    int64
	SurfaceOverflowCount int64
	PVSUpdateCount       int64
}

// FatalError wraps the fatal conditions this package can hit outside the
// per-frame soft-overflow counters: a world with no leaves, a view leaf
// FindLeaf places out of range, and (§7(b)) a surface cache block larger
// than its entire budget. The host decides whether to
// abort the process; RenderView returns it rather than panicking.
type FatalError struct {
	Err error
}

func (e *FatalError) Error() string { return fmt.Sprintf("qraster: fatal: %v", e.Err) }
func (e *FatalError) Unwrap() error { return e.Err }

// Renderer is the sole mutable entry point aggregating the per-frame
// arenas, the surface cache, and the lighting/sky state (Design Note §9:
// "a Renderer aggregate owns the arenas"). Not safe for concurrent
// RenderView calls — §5's single-writer model is documented here, not
// enforced with a mutex.
type Renderer struct {
	ID     uuid.UUID
	Logger Logger
	Config Config

	Cam   *camera.Camera
	Frame *raster.Frame
	Cache *cache.Cache
	Light *light.System
	Sky   *sky.Canvas

	Colormap light.Colormap

	FrameBuffer *FrameBuffer
	ZBuffer     []float32

	Stats Stats

	frameCounter int32
	pvsCounter   int32
	keyCounter   int32
	lastLeaf     int
	sceneTime    float32
}

// New constructs a Renderer for the given configuration and framebuffer. A
// nil logger defaults to NewNopLogger.
func New(cfg Config, fb *FrameBuffer, logger Logger) *Renderer {
	if logger == nil {
		logger = NewNopLogger()
	}
	return &Renderer{
		ID:          uuid.New(),
		Logger:      logger,
		Config:      cfg,
		Cam:         camera.New(cfg.Rect, cfg.FovXDegrees),
		Frame:       raster.NewFrame(cfg.Rect.Height, cfg.MaxEdges, cfg.MaxSurfaces),
		Cache:       cache.New(cfg.CacheBudget),
		Light:       &light.System{},
		Sky:         &sky.Canvas{},
		FrameBuffer: fb,
		ZBuffer:     make([]float32, fb.Width*fb.Height),
		lastLeaf:    -1,
	}
}

// SetPalette hands palette to sink, if non-nil (§6).
func (r *Renderer) SetPalette(sink PaletteSink, palette [256][3]byte) {
	if sink != nil {
		sink(palette)
	}
}

// RenderView runs the full six-stage frame pipeline (§2) against w from the
// given camera pose, advancing lighting/sky animation by dt.
func (r *Renderer) RenderView(w *bsp.World, pos, angles mgl32.Vec3, dt float32) error {
	if err := r.frameSetup(w, pos, angles, dt); err != nil {
		return err
	}

	r.Frame.Reset()

	w.Walk(w.HeadNode, r.Cam, r.pvsCounter, r.frameCounter, 0xF, &r.keyCounter, func(surfIndex int32, surf *bsp.Surface, backSide bool, clipflag int) {
		r.Frame.RenderFace(w, surfIndex, surf, r.Cam, false, clipflag, &r.keyCounter)
	})

	if r.Frame.OutOfIEdges > 0 {
		r.Stats.EdgeOverflowCount += int64(r.Frame.OutOfIEdges)
		r.Logger.Warnf("renderer %s: edge arena overflow, dropped %d edges this frame", r.ID, r.Frame.OutOfIEdges)
	}

	var drawErr error
	rect := r.Config.Rect
	r.Frame.ScanEdge(rect.X, rect.Y, rect.Width, rect.Height, r.Config.MaxSpans, func() {
		if err := r.drawSurfaces(w); err != nil && drawErr == nil {
			drawErr = err
		}
	})
	if drawErr != nil {
		return drawErr
	}

	return r.postProcess(w)
}

// frameSetup is pipeline stage 1 (§2): advance counters, refresh the PVS if
// the view leaf changed, animate lighting, and recompute the camera's
// world-space frustum.
func (r *Renderer) frameSetup(w *bsp.World, pos, angles mgl32.Vec3, dt float32) error {
	r.frameCounter++
	r.sceneTime += dt

	r.Cam.SetOrientation(pos, angles)
	r.Cam.TransformFrustum()
	r.Cam.SetupFrustumIndices()

	if len(w.Leaves) == 0 {
		return &FatalError{Err: errors.New("world has no leaves")}
	}

	viewLeaf := w.FindLeaf([3]float32{pos.X(), pos.Y(), pos.Z()})
	if viewLeaf < 0 || viewLeaf >= len(w.Leaves) {
		return &FatalError{Err: fmt.Errorf("FindLeaf returned out-of-range leaf %d", viewLeaf)}
	}
	if viewLeaf != r.lastLeaf {
		r.pvsCounter++
		r.Stats.PVSUpdateCount++
		w.MarkLeaves(viewLeaf, r.pvsCounter)
		r.lastLeaf = viewLeaf
	}

	light.AnimateStyles(&r.Light.Styles, r.sceneTime)
	r.Light.Tick(dt)
	r.Light.MarkSurfaces(w, r.frameCounter)

	r.Sky.Advance()
	r.Sky.Animate()

	return nil
}

// chooseMip picks a mip level from the surface's nearest 1/z and its
// texinfo's mip-adjust bias (§4.5: "choose a mip level from the nearest
// 1/z"). The exact thresholds are an Open Question the spec leaves
// unspecified; these mirror the nearest/further doubling steps a
// power-of-two mip chain implies and are pinned here rather than re-derived
// (see DESIGN.md).
func chooseMip(nearestInvZ, mipAdjust float32) int {
	scale := nearestInvZ * mipAdjust
	switch {
	case scale >= 0.1:
		return 0
	case scale >= 0.05:
		return 1
	case scale >= 0.025:
		return 2
	default:
		return 3
	}
}

func (r *Renderer) rowAt(y int32) []byte {
	fb := r.FrameBuffer
	start := int(y) * fb.BytesPerRow
	return fb.Pixels[start : start+fb.Width]
}

func (r *Renderer) zRowAt(y int32) []float32 {
	fb := r.FrameBuffer
	start := int(y) * fb.Width
	return r.ZBuffer[start : start+fb.Width]
}

// drawSurfaces is pipeline stage 5 (§2): for every isurface carrying spans
// in the current flush window, draw them with the appropriate drawer and
// emit the z-buffer. Index 1, the background isurface, is drawn with the
// configured background color instead of a cache lookup.
func (r *Renderer) drawSurfaces(w *bsp.World) error {
	frame := r.Frame
	for idx := 1; idx < len(frame.ISurfaces); idx++ {
		is := &frame.ISurfaces[idx]
		if is.Spans == 0 {
			continue
		}
		if is.SurfaceIndex < 0 {
			r.drawBackgroundSpans(is)
			continue
		}
		if err := r.drawSurface(w, is); err != nil {
			return err
		}
	}
	return nil
}

func (r *Renderer) drawBackgroundSpans(is *raster.ISurface) {
	for spanIdx := is.Spans; spanIdx != 0; {
		span := &r.Frame.Spans[spanIdx]
		row := r.rowAt(span.Y)
		for i := int32(0); i < span.Count; i++ {
			row[span.XStart+i] = r.Config.BackgroundColor
		}
		raster.DrawZSpan(span, is, r.zRowAt(span.Y))
		spanIdx = span.Next
	}
}

func (r *Renderer) drawSurface(w *bsp.World, is *raster.ISurface) error {
	surf := &w.Surfaces[is.SurfaceIndex]
	texinfo := &w.TexInfos[surf.TexInfo]

	mip := chooseMip(is.NearestInvZ, texinfo.MipAdjust)
	if mip >= bsp.MipLevels {
		mip = bsp.MipLevels - 1
	}
	if mip < 0 {
		mip = 0
	}

	isSky := surf.Flags&bsp.SurfDrawSky != 0
	isTurb := surf.Flags&bsp.SurfDrawTurb != 0

	grad := raster.CalcGradients(r.Cam, texinfo, surf, mip)

	var block *raster.CacheBlock
	if !isSky {
		data, err := r.Cache.CacheSurface(w, r.Light, is.SurfaceIndex, mip, r.frameCounter, r.Colormap)
		if err != nil {
			return &FatalError{Err: fmt.Errorf("cache surface %d mip %d: %w", is.SurfaceIndex, mip, err)}
		}
		block = &raster.CacheBlock{Width: data.Width, Pixels: data.Pixels}
	}

	for spanIdx := is.Spans; spanIdx != 0; {
		span := &r.Frame.Spans[spanIdx]
		row := r.rowAt(span.Y)

		switch {
		case isSky:
			sky.DrawSpan(sky.Span(span.XStart, span.Y, span.Count), r.Cam, r.Sky, r.Sky.Shift, row)
		case isTurb:
			raster.DrawTurbulentSpan(span, &grad, is, block, r.frameCounter, row)
		default:
			raster.DrawOpaqueSpan(span, &grad, is, block, row)
		}

		raster.DrawZSpan(span, is, r.zRowAt(span.Y))
		spanIdx = span.Next
	}

	return nil
}

// postProcess is pipeline stage 6 (§2, §4.8): if the view leaf is liquid,
// warp the framebuffer through the sine-distortion pass.
func (r *Renderer) postProcess(w *bsp.World) error {
	leaf := &w.Leaves[r.lastLeaf]
	switch leaf.Contents {
	case bsp.ContentsWater, bsp.ContentsSlime, bsp.ContentsLava:
		fb := r.FrameBuffer
		sky.Warp(fb.Pixels, fb.Pixels, fb.Width, fb.Height, fb.BytesPerRow)
	}
	return nil
}
