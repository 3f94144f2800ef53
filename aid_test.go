package pure3270

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAIDStringKnownValues(t *testing.T) {
	assert.Equal(t, "Enter", AIDEnter.String())
	assert.Equal(t, "Clear", AIDClear.String())
	assert.Equal(t, "PA1", AIDPA1.String())
	assert.Equal(t, "PF1", AIDPF1.String())
	assert.Equal(t, "PF24", AIDPF24.String())
	assert.Equal(t, "[none]", AIDNone.String())
}

func TestAIDStringUnknownValue(t *testing.T) {
	assert.Equal(t, "[unknown]", AID(0x01).String())
}

func TestAIDCursorSensitive(t *testing.T) {
	for _, a := range []AID{AIDClear, AIDPA1, AIDPA2, AIDPA3} {
		assert.True(t, a.cursorSensitive(), a.String())
	}
	for _, a := range []AID{AIDEnter, AIDPF1, AIDPF24} {
		assert.False(t, a.cursorSensitive(), a.String())
	}
}
