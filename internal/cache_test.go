package internal

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMemcacheRoundtrip(t *testing.T) {
	InitMemcache()

	_, found := GetMemcached("decodewarnAA:BB:CC:DD:EE:0142")
	assert.False(t, found)

	SetMemcached("decodewarnAA:BB:CC:DD:EE:0142", true)
	value, found := GetMemcached("decodewarnAA:BB:CC:DD:EE:0142")
	assert.True(t, found)
	assert.Equal(t, true, value)
}

func TestInitMemcacheDropsEntries(t *testing.T) {
	InitMemcache()
	SetMemcached("key", "value")
	InitMemcache()

	_, found := GetMemcached("key")
	assert.False(t, found)
}
