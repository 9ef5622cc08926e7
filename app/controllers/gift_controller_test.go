package controllers

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestVerifyCacheKeyTrimsToken(t *testing.T) {
	assert.Equal(t, "giftmile:verify:abc123", verifyCacheKey("abc123"))
	// A token submitted with surrounding whitespace must resolve to the same
	// key as the one the verify handler cached under.
	assert.Equal(t, verifyCacheKey("abc123"), verifyCacheKey("  abc123\n"))
}
