package math

import "github.com/x448/float16"

// Half is an IEEE 754 binary16 value.
type Half = float16.Float16

// ToHalf rounds f to the nearest half precision value.
func ToHalf(f float32) Half {
	return float16.Fromfloat32(f)
}

// FromHalf widens h back to float32.
func FromHalf(h Half) float32 {
	return h.Float32()
}

// Half4 is a four component half precision row.
type Half4 [4]Half

func NewHalf4(v Vec4) Half4 {
	return Half4{ToHalf(v.X), ToHalf(v.Y), ToHalf(v.Z), ToHalf(v.W)}
}

func (h Half4) Vec4() Vec4 {
	return Vec4{FromHalf(h[0]), FromHalf(h[1]), FromHalf(h[2]), FromHalf(h[3])}
}

// PackHalf2 stores lo in the low 16 bits and hi in the high 16 bits.
func PackHalf2(lo, hi float32) uint32 {
	return uint32(ToHalf(lo).Bits()) | uint32(ToHalf(hi).Bits())<<16
}

// UnpackHalf2 is the inverse of PackHalf2.
func UnpackHalf2(packed uint32) (lo, hi float32) {
	lo = float16.Frombits(uint16(packed & 0xFFFF)).Float32()
	hi = float16.Frombits(uint16(packed >> 16)).Float32()
	return lo, hi
}
