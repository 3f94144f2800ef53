// Package dsbuild implements the outbound 3270 Data-Stream Builder:
// Read Modified and Read Buffer replies, per spec.md §4.4. It mirrors
// internal/dsparse's order vocabulary in the opposite direction, the way the
// teacher's screen.go WriteScreen (sba/sf/ic helpers) builds outbound screens
// using the same byte vocabulary response.go reads back.
package dsbuild

import (
	"github.com/go3270/pure3270/internal/dsparse"
	"github.com/go3270/pure3270/internal/screen"
)

// cursorSensitiveAID reports whether aid is Clear or PA1-PA3, whose replies
// suppress the field body per spec.md §4.4 ("Cursor-sensitive AIDs... emit
// only the AID and cursor; the body is suppressed").
func cursorSensitiveAID(aid byte) bool {
	switch aid {
	case 0x6D, 0x6C, 0x6E, 0x6B: // Clear, PA1, PA2, PA3
		return true
	default:
		return false
	}
}

// BuildReadModified constructs an AID + cursor + modified-fields reply, per
// spec.md §4.4. includeAllUnprotected selects RMA semantics (every
// unprotected field regardless of MDT) over RM semantics (MDT-set fields
// only).
func BuildReadModified(buf *screen.Buffer, aid byte, cursorAddr int, includeAllUnprotected bool) []byte {
	out := make([]byte, 0, 16)
	out = append(out, aid)
	addrBytes := screen.EncodeBufferAddress(cursorAddr, buf.FourteenBit())
	out = append(out, addrBytes[0], addrBytes[1])

	if cursorSensitiveAID(aid) {
		return out
	}

	for _, mf := range buf.ModifiedFields(includeAllUnprotected) {
		if mf.Addr >= 0 {
			out = append(out, dsparse.OrderSBA)
			sba := screen.EncodeBufferAddress(mf.Addr, buf.FourteenBit())
			out = append(out, sba[0], sba[1])
		}
		out = append(out, mf.Content...)
	}
	return out
}

// BuildReadBuffer constructs an AID + cursor + full-buffer-dump reply
// (attributes as SF orders, extended attributes as SA orders), per
// spec.md §4.4.
func BuildReadBuffer(buf *screen.Buffer, aid byte, cursorAddr int) []byte {
	out := make([]byte, 0, buf.Size()+16)
	out = append(out, aid)
	addrBytes := screen.EncodeBufferAddress(cursorAddr, buf.FourteenBit())
	out = append(out, addrBytes[0], addrBytes[1])

	if cursorSensitiveAID(aid) {
		return out
	}

	for _, c := range buf.Cells() {
		if c.IsAttribute() {
			out = append(out, dsparse.OrderSF, screen.EncodeAttributeByte(c.RawAttr()))
			continue
		}
		if c.AttrExtended != 0 {
			switch c.AttrExtended {
			case screen.ExtTypeHighlighting:
				out = append(out, dsparse.OrderSA, screen.ExtTypeHighlighting, c.AttrHighlight)
			case screen.ExtTypeForeground, screen.ExtTypeBackground:
				out = append(out, dsparse.OrderSA, c.AttrExtended, c.AttrColor)
			case screen.ExtTypeCharset:
				out = append(out, dsparse.OrderSA, screen.ExtTypeCharset, c.AttrCharset)
			}
		}
		out = append(out, c.CharByte)
	}
	return out
}
