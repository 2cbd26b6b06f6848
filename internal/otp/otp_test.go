package otp

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGenerateProducesFourDigits(t *testing.T) {
	for i := 0; i < 100; i++ {
		code := Generate()
		assert.Len(t, code, 4)
		for _, r := range code {
			assert.True(t, r >= '0' && r <= '9', "unexpected rune %q in %q", r, code)
		}
	}
}
