package wheel

import "fmt"

// MaxBufferSize is the largest region size the wheel header's 32-bit
// aligned_size field can ever describe: Align*(2^32-1) bytes, a little
// under 256 GiB. Region sizes must stay strictly below it.
const MaxBufferSize = uint64(Align) * uint64(^uint32(0))

// ValidateSize checks a candidate total region size (header quantum plus
// payload area) against the construction-time sanity constraints of the
// wheel layout: a multiple of Align, at least two quanta (one header, one
// slice), and strictly under MaxBufferSize.
func ValidateSize(size uint64) error {
	if size%Align != 0 {
		return fmt.Errorf("size %d is not a multiple of Align (%d)", size, Align)
	}
	if size < 2*Align {
		return fmt.Errorf("size %d is smaller than the minimum of 2*Align (%d)", size, 2*Align)
	}
	if size >= MaxBufferSize {
		return fmt.Errorf("size %d is not strictly less than MaxBufferSize (%d)", size, MaxBufferSize)
	}
	return nil
}

// AlignedSize returns the capacity of the usable payload area in Align
// units for a region of the given total size. Callers must validate size
// first with ValidateSize.
func AlignedSize(size uint64) uint32 {
	return uint32((size - Align) / Align)
}

// unitsFor returns the number of Align-sized quanta needed to hold a slice
// header plus size bytes of payload, rounded up.
func unitsFor(size int) int {
	total := sliceHeaderSize + size
	if rem := total % Align; rem != 0 {
		total += Align - rem
	}
	return total / Align
}
