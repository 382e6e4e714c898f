package htmlutil

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestToText(t *testing.T) {
	assert.Equal(t, "Peak at 12:00 (4.20 kW)", ToText("Peak at <strong>12:00</strong>\n (4.20 kW)"))
	assert.Equal(t, "R&D", ToText("R&amp;D"))
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "short", Truncate("short", 10))
	assert.Equal(t, "abcd...", Truncate("abcdefghij", 7))
	assert.Equal(t, "ab", Truncate("abcdef", 2))
	assert.Equal(t, "héllo wo...", Truncate("héllo world again", 11))
}
