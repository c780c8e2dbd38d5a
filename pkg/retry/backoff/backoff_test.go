package backoff

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestConstant(t *testing.T) {
	s := Constant(250 * time.Millisecond)

	for _, attempts := range []uint{1, 2, 10, 1000} {
		assert.Equal(t, 250*time.Millisecond, s(attempts))
	}
}

func TestExponential(t *testing.T) {
	s := Exponential(2*time.Second, 3.0)

	for attempts, expected := range []time.Duration{
		2 * time.Second,
		6 * time.Second,
		18 * time.Second,
		54 * time.Second,
	} {
		assert.Equal(t, expected, s(uint(attempts+1)))
	}

	// Attempt zero is treated as the first attempt.
	assert.Equal(t, 2*time.Second, s(0))
}

func TestExponential_Saturates(t *testing.T) {
	s := BinaryExponential(time.Second)

	assert.EqualValues(t, math.MaxInt64, s(64))
	assert.EqualValues(t, math.MaxInt64, s(10_000))
	assert.True(t, s(30) > 0)
}

func TestBinaryExponential(t *testing.T) {
	s := BinaryExponential(time.Second)

	assert.Equal(t, time.Second, s(1))
	assert.Equal(t, 2*time.Second, s(2))
	assert.Equal(t, 8*time.Second, s(4))

	exp := Exponential(time.Second, 2)
	for i := uint(1); i < 20; i++ {
		assert.Equal(t, exp(i), s(i))
	}
}
