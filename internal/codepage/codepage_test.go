package codepage

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRoundTripAllBytes(t *testing.T) {
	// Property 1 (spec.md §8): for any EBCDIC byte in the installed code
	// page, encode(decode(b)) == b, except explicit unmappables which must
	// round-trip to the substitute byte rather than panic or silently drop.
	for b := 0; b < 256; b++ {
		r := CP037.TranslateByte(byte(b))
		got := CP037.Reverse(r)
		if r == 0xFFFD {
			assert.Equal(t, byte(ebcdicSubstitute), got, "unmappable byte 0x%02x", b)
			continue
		}
		assert.Equal(t, byte(b), got, "byte 0x%02x did not round-trip", b)
	}
}

func TestDecodeEncodeHello(t *testing.T) {
	encoded := CP037.Encode("HELLO")
	require.Len(t, encoded, 5)
	decoded := CP037.Decode(encoded)
	assert.Equal(t, "HELLO", decoded)
}

func TestUnmappableRuneEncodesToSubstitute(t *testing.T) {
	assert.Equal(t, byte(ebcdicSubstitute), CP037.Reverse('☃')) // snowman
}

func TestLookup(t *testing.T) {
	tbl, ok := Lookup("cp037")
	require.True(t, ok)
	assert.Equal(t, "037", tbl.ID())

	_, ok = Lookup("cp999")
	assert.False(t, ok)
}

func TestID(t *testing.T) {
	assert.Equal(t, "1047", CP1047.ID())
}
