// Package codepage provides bidirectional EBCDIC<->UTF-8 translation for the
// IBM code pages a 3270 host may negotiate. It is a pure, allocation-cheap
// translation layer: no I/O, no package-level mutable state beyond the
// read-only tables built once at init time.
package codepage

import (
	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/transform"
)

// Table is an EBCDIC<->UTF-8 translator for one IBM code page.
//
// Unmappable bytes decode to U+FFFD; unmappable runes encode to 0x6F, used
// here as the substitute byte (it decodes as '?' in CP037/CP1047).
type Table struct {
	id  string
	enc encoding.Encoding

	// decodeTable and encodeTable are precomputed for the 256 single-byte
	// cases so Decode/Encode are plain table lookups and never run a
	// transform.Transformer; enc is the encoding the tables were built from
	// and is not consulted by Decode/Encode.
	decodeTable [256]rune
	encodeTable map[rune]byte
}

const ebcdicSubstitute = 0x6F

// newTable builds a Table from a golang.org/x/text/encoding.Encoding by
// exhaustively decoding every byte value once. This keeps Decode/Encode as
// pure array/map lookups instead of invoking the transform.Transformer on
// every call.
func newTable(id string, enc encoding.Encoding) *Table {
	t := &Table{id: id, enc: enc, encodeTable: make(map[rune]byte, 256)}
	dec := enc.NewDecoder()
	for b := 0; b < 256; b++ {
		out, _, err := transform.String(dec, string([]byte{byte(b)}))
		if err != nil || out == "" {
			t.decodeTable[b] = 0xFFFD
			continue
		}
		r := []rune(out)[0]
		t.decodeTable[b] = r
		if _, exists := t.encodeTable[r]; !exists {
			t.encodeTable[r] = byte(b)
		}
	}
	return t
}

// ID returns the name of this codepage, e.g. "037" or "1047".
func (t *Table) ID() string { return t.id }

// Decode converts EBCDIC bytes into a UTF-8 string.
func (t *Table) Decode(e []byte) string {
	runes := make([]rune, len(e))
	for i, b := range e {
		runes[i] = t.decodeTable[b]
	}
	return string(runes)
}

// Encode converts a UTF-8 string into EBCDIC bytes. Runes with no mapping in
// this code page become the EBCDIC substitute byte.
func (t *Table) Encode(s string) []byte {
	out := make([]byte, 0, len(s))
	for _, r := range s {
		if b, ok := t.encodeTable[r]; ok {
			out = append(out, b)
			continue
		}
		out = append(out, ebcdicSubstitute)
	}
	return out
}

// TranslateByte returns the UTF-8 rune for a single EBCDIC byte.
func (t *Table) TranslateByte(b byte) rune { return t.decodeTable[b] }

// Reverse returns the EBCDIC byte for a single rune, or the substitute byte
// if the code page has no mapping for it.
func (t *Table) Reverse(r rune) byte {
	if b, ok := t.encodeTable[r]; ok {
		return b
	}
	return ebcdicSubstitute
}

// Default is the default code page (IBM CP037, US/Canada), matching
// spec.md's default.
var Default = CP037

var (
	CP037  = newTable("037", charmap.CodePage037)
	CP1047 = newTable("1047", charmap.CodePage1047)
	CP1140 = newTable("1140", charmap.CodePage1140)
	CP1141 = newTable("1141", charmap.CodePage1141)
	CP1142 = newTable("1142", charmap.CodePage1142)
	CP1143 = newTable("1143", charmap.CodePage1143)
	CP1144 = newTable("1144", charmap.CodePage1144)
	CP1145 = newTable("1145", charmap.CodePage1145)
	CP1146 = newTable("1146", charmap.CodePage1146)
	CP1147 = newTable("1147", charmap.CodePage1147)
	CP1148 = newTable("1148", charmap.CodePage1148)
	CP1149 = newTable("1149", charmap.CodePage1149)
)

// byName is the lookup used by config validation (ConfigError on unknown
// code page names). Only the code pages golang.org/x/text/encoding/charmap
// ships as IBM EBCDIC tables are registered; spec.md's "cp273, cp285, ..."
// enum is a hook, not a promise every historical code page is present.
var byName = map[string]*Table{
	"cp037":  CP037,
	"cp1047": CP1047,
	"cp1140": CP1140,
	"cp1141": CP1141,
	"cp1142": CP1142,
	"cp1143": CP1143,
	"cp1144": CP1144,
	"cp1145": CP1145,
	"cp1146": CP1146,
	"cp1147": CP1147,
	"cp1148": CP1148,
	"cp1149": CP1149,
}

// Lookup returns the Table registered under name (e.g. "cp037"), and false
// if no such code page is registered.
func Lookup(name string) (*Table, bool) {
	t, ok := byName[name]
	return t, ok
}
