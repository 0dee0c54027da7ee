package fat

import "encoding/binary"

// readU16LE reads a little-endian uint16 at `offset` in `data`. It makes no
// assumptions about alignment.
func readU16LE(data []byte, offset int) uint16 {
	return binary.LittleEndian.Uint16(data[offset : offset+2])
}

// readU32LE reads a little-endian uint32 at `offset` in `data`. It makes no
// assumptions about alignment.
func readU32LE(data []byte, offset int) uint32 {
	return binary.LittleEndian.Uint32(data[offset : offset+4])
}

func writeU16LE(data []byte, offset int, value uint16) {
	binary.LittleEndian.PutUint16(data[offset:offset+2], value)
}

func isPowerOfTwo(value uint) bool {
	return value != 0 && value&(value-1) == 0
}
