package search

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFormatTimestamp_SRTUsesCommaSeparator(t *testing.T) {
	assert.Equal(t, "01:02:03,456", formatTimestamp(3_723_456, CaptionSRT))
}

func TestFormatTimestamp_VTTUsesDotSeparator(t *testing.T) {
	assert.Equal(t, "00:00:04,500", formatTimestamp(4500, CaptionSRT))
	assert.Equal(t, "00:00:04.500", formatTimestamp(4500, CaptionVTT))
}
