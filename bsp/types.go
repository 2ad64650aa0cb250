// Package bsp holds the read-only world model (§3 of the design spec): the
// BSP tree, its planes/surfaces/edges, and the potentially-visible-set walk
// that stamps surfaces as visible for a frame (§4.1). Loading this data from
// a .bsp file is an external collaborator's job and is not implemented here.
package bsp

import "github.com/go-gl/mathgl/mgl32"

// Plane axis classification, mirroring the original's PLANE_X..PLANE_ANYZ.
const (
	PlaneX = iota
	PlaneY
	PlaneZ
	PlaneAnyX
	PlaneAnyY
	PlaneAnyZ
)

// Texinfo/surface flag bits, packed into a single flags field per §3.
const (
	TexSpecial         = 1 << 0
	SurfPlaneBack      = 1 << 1
	SurfDrawSky        = 1 << 2
	SurfDrawSprite     = 1 << 3
	SurfDrawTurb       = 1 << 4
	SurfDrawTiled      = 1 << 5
	SurfDrawBackground = 1 << 6
)

// Leaf content types. This package does not interpret them; render treats
// Water, Slime and Lava as liquid for the underwater warp, and the rest are
// carried for fidelity with the source material.
const (
	ContentsEmpty = -(iota + 1)
	ContentsSolid
	ContentsWater
	ContentsSlime
	ContentsLava
	ContentsSky
)

const (
	MipLevels    = 4
	MaxLightMaps = 4
)

// TiledUVMin and TiledUVExtents are the uv_min/uv_extents sentinel values of
// a tiled surface (sky/turbulent), which has no meaningful texel-space bound.
const (
	TiledUVMin     = 16384
	TiledUVExtents = -8192
)

// BackfaceEpsilon is the plane-side dead zone used to decide which side of a
// node's plane faces the camera (§4.1).
const BackfaceEpsilon = 0.01

type Vertex struct {
	Position mgl32.Vec3
}

// Edge cache states packed into IEdgeCacheState, see Design Note §9.
const (
	EdgeFullyClipped      uint32 = 0x80000000
	EdgeFrameCountMask    uint32 = 0x7fffffff
	EdgePartiallyClipped  uint32 = EdgeFrameCountMask
)

// Edge is an undirected pair of vertex indices. IEdgeCacheState is mutated by
// the face clipper (raster package) across a frame: either a tagged
// "fully/partially clipped this frame" marker, or the arena offset of an
// IEdge already emitted this frame for another surface.
type Edge struct {
	V                [2]uint16
	IEdgeCacheState uint32
}

// Plane is a world-space plane equation (Ax+By+Cz=D) plus the sign-bits
// precomputed for fast bounding-box classification.
type Plane struct {
	Normal   mgl32.Vec3
	Dist     float32
	Type     uint8
	SignBits uint8
}

type Texture struct {
	Name    string
	Width   uint32
	Height  uint32
	// Mip[i] holds palette-index texels for mip level i, row-major,
	// Width>>i by Height>>i.
	Mip [MipLevels][]byte
}

type TexInfo struct {
	UAxis, VAxis     mgl32.Vec3
	UOffset, VOffset float32
	Texture          *Texture
	MipAdjust        float32
	Flags            int32
}

// CacheSpot is a weak reference into the surface cache (§3, §4.6): Valid is
// false when the spot has been evicted or never built.
type CacheSpot struct {
	Valid bool
	Block int
}

type Surface struct {
	Plane    int32 // index into World.Planes
	TexInfo  int32 // index into World.TexInfos
	FirstEdge int32
	NumEdge   int32

	Styles  [MaxLightMaps]uint8
	Samples []byte // raw lightmap samples, already demuxed per style

	UVMin     [2]int16
	UVExtents [2]int16

	VisibleFrame int32
	LightFrame   int32
	LightBits    uint32
	Flags        int32

	CacheSpots [MipLevels]CacheSpot
}

// IsTiled reports whether this surface is a sky or turbulent surface (by its
// flags), the kind whose uv extents carry the "ignore extents" sentinel (§3).
func (s *Surface) IsTiled() bool {
	return s.Flags&(SurfDrawSky|SurfDrawTurb) != 0
}

// Node is a BSP interior node: contents == 0 always (the invariant from §3).
type Node struct {
	Plane    int32
	Children [2]int32 // >=0: index into Nodes; <0: leaf, see LeafIndex
	Min, Max [3]int16
	FirstSurface, NumSurface int32
	VisibleFrame             int32
	Parent                   int32 // index into Nodes, -1 if root
}

// Leaf is a BSP leaf: contents < 0 always (the invariant from §3).
type Leaf struct {
	Contents     int32
	Min, Max     [3]int16
	VisOffset    int32 // offset into World.Visibility, -1 = no compressed vis (fully visible)
	FirstMark    int32
	NumMark      int32
	Key          int32
	VisibleFrame int32
	Parent       int32 // index into Nodes
}

// World is the read-only brush model consumed by a frame (§3). Loading it
// from a BSP29 file is out of scope for this package; callers construct one
// directly (tests build small worlds by hand; a real engine's asset loader
// would populate one from disk).
type World struct {
	Vertices     []Vertex
	Edges        []Edge
	SurfaceEdges []int32 // signed index into Edges; sign selects direction
	Planes       []Plane
	TexInfos     []TexInfo
	Surfaces     []Surface
	Nodes        []Node
	Leaves       []Leaf
	MarkSurfaces []int32 // indices into Surfaces, referenced by Leaf.FirstMark/NumMark

	Visibility []byte // all leaves' compressed PVS, concatenated

	HeadNode int32 // index into Nodes, or a leaf ref (<0) for a one-leaf world
}

// LeafIndex decodes a negative child/head reference into a Leaves index.
func LeafIndex(ref int32) int {
	return int(-ref - 1)
}

// LeafRef encodes a Leaves index as a negative child/head reference.
func LeafRef(index int) int32 {
	return int32(-index - 1)
}
