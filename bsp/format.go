package bsp

// On-disk formats the world model is loaded from. Loading is an external
// collaborator's job (§1); these constants and record shapes document the
// bit-exact layouts (§6) a loader must target so World slices line up with
// what this package expects. All integers are little-endian.

// BSPVersion is the only supported BSP file version.
const BSPVersion = 29

// Lump indices in a BSP29 file's 15-entry directory (§6).
const (
	LumpEntities = iota
	LumpPlanes
	LumpTextures
	LumpVertices
	LumpVisibility
	LumpNodes
	LumpTexInfo
	LumpFaces
	LumpLighting
	LumpClipNodes
	LumpLeaves
	LumpMarkSurfaces
	LumpEdges
	LumpSurfEdges
	LumpModels

	LumpCount = 15
)

// LumpEntry is one directory entry: a byte offset from the start of the file
// and the lump's length in bytes.
type LumpEntry struct {
	Offset int32
	Length int32
}

// FaceRecord is the on-disk face layout (§6). A loader expands these into
// Surface values: PlaneOffset/TexInfoOffset become indices, Side becomes the
// SurfPlaneBack flag bit, and LightOffset locates the face's raw samples
// within the lighting lump (-1 for no lightmap).
type FaceRecord struct {
	PlaneOffset   int16
	Side          int16
	FirstEdge     int32
	NumEdge       int16
	TexInfoOffset int16
	Styles        [MaxLightMaps]uint8
	LightOffset   int32
}

// FaceRecordSize is FaceRecord's on-disk stride; a faces lump whose length
// is not a multiple of this is corrupt input (§7).
const FaceRecordSize = 20

// Pack file layout (§6): the magic, a directory locator, then at
// DirectoryOffset a run of PackFileEntry records.
const (
	PackMagic         = "PACK"
	PackNameLength    = 56
	PackFileEntrySize = PackNameLength + 8
)

// PackFileEntry is one pack directory record: a NUL-padded name and the
// file's position and length within the pack.
type PackFileEntry struct {
	Name         [PackNameLength]byte
	FilePosition int32
	FileLength   int32
}
