package screen

// Buffer address encode/decode, per spec.md §3 "Addressing" and §6's byte
// layout table. Two encodings share the wire:
//
//   - 12-bit: both bytes are looked up in codes/decodes, a 64-entry table of
//     "I/O codes" from GA23-0059 Figure C-1 (adapted from the teacher's
//     screen.go getpos/codes and response.go decodeBufAddr/decodes, which
//     only ever needed the encode and decode halves of this respectively
//     since the teacher only ever wrote screens and read responses). None
//     of these codes have their top two bits both zero.
//   - 14-bit: the top two bits of the first byte are always zero, and the
//     remaining 14 bits (6 from the first byte, 8 from the second) are the
//     address, packed directly with no lookup table.
//
// A first byte with top bits 00 therefore unambiguously means 14-bit; any
// other pattern means 12-bit. That is how DecodeBufferAddress tells the two
// apart without needing the negotiated mode as outside context (spec.md §8
// property 9).

// codes are the 3270 6-bit-to-byte I/O codes for 12-bit addressing, in order
// for 6-bit values 0-63. Adapted verbatim from the teacher's screen.go.
var codes = [64]byte{
	0x40, 0xc1, 0xc2, 0xc3, 0xc4, 0xc5, 0xc6, 0xc7, 0xc8,
	0xc9, 0x4a, 0x4b, 0x4c, 0x4d, 0x4e, 0x4f, 0x50, 0xd1, 0xd2, 0xd3, 0xd4,
	0xd5, 0xd6, 0xd7, 0xd8, 0xd9, 0x5a, 0x5b, 0x5c, 0x5d, 0x5e, 0x5f, 0x60,
	0x61, 0xe2, 0xe3, 0xe4, 0xe5, 0xe6, 0xe7, 0xe8, 0xe9, 0x6a, 0x6b, 0x6c,
	0x6d, 0x6e, 0x6f, 0xf0, 0xf1, 0xf2, 0xf3, 0xf4, 0xf5, 0xf6, 0xf7, 0xf8,
	0xf9, 0x7a, 0x7b, 0x7c, 0x7d, 0x7e, 0x7f,
}

// decodes is the inverse of codes: decodes[b] is the 6-bit value that
// encodes to byte b, or invalidCode if b is not a valid 12-bit I/O code.
var decodes [256]byte

const invalidCode = 0xFF

func init() {
	for i := range decodes {
		decodes[i] = invalidCode
	}
	for sixbit, b := range codes {
		decodes[b] = byte(sixbit)
	}
}

// EncodeBufferAddress encodes a linear buffer address as the shortest form
// that fits: 12-bit unless fourteenBit is true, matching spec.md §4.4's
// "14-bit if the host set the corresponding BIND bit, else 12-bit".
func EncodeBufferAddress(addr int, fourteenBit bool) [2]byte {
	if fourteenBit {
		return [2]byte{byte((addr >> 8) & 0x3F), byte(addr & 0xFF)}
	}
	hi := (addr >> 6) & 0x3F
	lo := addr & 0x3F
	return [2]byte{codes[hi], codes[lo]}
}

// DecodeBufferAddress decodes a 2-byte address pair, auto-detecting 12-bit
// vs 14-bit from the top two bits of the first byte (both 0 means 14-bit).
func DecodeBufferAddress(raw [2]byte) (addr int, fourteenBit bool, ok bool) {
	if raw[0]&0xC0 == 0 {
		// 14-bit: 6 bits from byte0, 8 bits from byte1.
		return int(raw[0]&0x3F)<<8 | int(raw[1]), true, true
	}
	hi := decodes[raw[0]]
	lo := decodes[raw[1]]
	if hi == invalidCode || lo == invalidCode {
		return 0, false, false
	}
	return int(hi)<<6 | int(lo), false, true
}

// EncodeAttributeByte encodes a 6-bit basic-3270 attribute value (as
// returned by Cell.RawAttr) through the same codes[] table
// EncodeBufferAddress uses, for the SF/SFE orders internal/dsbuild writes.
func EncodeAttributeByte(attr byte) byte {
	return codes[attr&0x3F]
}

// DecodeAttributeByte decodes a wire basic-3270 attribute byte (as carried
// by the SF/SFE orders) through the same 6-bit I/O code table
// DecodeBufferAddress uses, into the bit layout Cell.AttrField expects.
func DecodeAttributeByte(raw byte) (attr byte, ok bool) {
	v := decodes[raw]
	if v == invalidCode {
		return 0, false
	}
	return v, true
}
