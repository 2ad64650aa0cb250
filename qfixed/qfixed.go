// Package qfixed implements the fixed-point formats the rasterizer pipeline
// depends on: fixed20 (20 fraction bits) for screen-space x (sub-pixel edge
// stepping), 16.16 for texture coordinates, and 8.8 for light interpolation.
// All three are signed; shifts are arithmetic, matching the source
// material's "all arithmetic is signed" note.
package qfixed

// X20 is the "fixed20" value (20 fraction bits) used for screen-space x
// coordinates and edge x_step/x_start accumulation, matching the original
// renderer's FloatToFixed20/Fixed20ToFloat scale.
type X20 int32

const x20Shift = 20

// FromFloat20 converts a float32 to fixed20.
func FromFloat20(v float32) X20 {
	return X20(v * (1 << x20Shift))
}

// Float returns the value as a float32.
func (x X20) Float() float32 {
	return float32(x) / (1 << x20Shift)
}

// Int returns the integer (pixel) part, rounding toward negative infinity
// via an arithmetic shift.
func (x X20) Int() int32 {
	return int32(x) >> x20Shift
}

// Tex16 is a 16.16 fixed-point value used for texture u/v coordinates.
type Tex16 int32

const tex16Shift = 16

func FromFloat16(v float32) Tex16 {
	return Tex16(v * (1 << tex16Shift))
}

func (t Tex16) Float() float32 {
	return float32(t) / (1 << tex16Shift)
}

// Int returns the texel (integer) part.
func (t Tex16) Int() int32 {
	return int32(t) >> tex16Shift
}

// Frac returns the fractional part as a 0..65535 value.
func (t Tex16) Frac() int32 {
	return int32(t) & 0xFFFF
}

// Light8 is an 8.8 fixed-point value used for bilinear light interpolation.
type Light8 int32

const light8Shift = 8

func FromFloat8(v float32) Light8 {
	return Light8(v * (1 << light8Shift))
}

func (l Light8) Float() float32 {
	return float32(l) / (1 << light8Shift)
}

func (l Light8) Int() int32 {
	return int32(l) >> light8Shift
}
