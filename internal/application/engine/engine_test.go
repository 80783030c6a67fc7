package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTruncateStr(t *testing.T) {
	assert.Equal(t, "short", TruncateStr("short", 10))
	assert.Equal(t, "Will BTC ...", TruncateStr("Will BTC go up today?", 12))
}

func TestShortID(t *testing.T) {
	assert.Equal(t, "0x5f2c1e0b8...", ShortID("0x5f2c1e0b8a1d4c3e9f7a6b5c4d3e2f1a"))
	assert.Equal(t, "paper-1", ShortID("paper-1"))
}
