package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestYen(t *testing.T) {
	assert.Equal(t, "0", yen(0))
	assert.Equal(t, "999", yen(999))
	assert.Equal(t, "1,000", yen(1000))
	assert.Equal(t, "12,000,000,000", yen(12_000_000_000))
	assert.Equal(t, "-5,000", yen(-5000))
}
