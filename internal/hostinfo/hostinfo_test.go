package hostinfo

import (
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLogical(t *testing.T) {
	testCases := []struct {
		description string
		probe       Prober
		expect      int
	}{
		{
			description: "positive probe value wins",
			probe:       func() int { return 12 },
			expect:      12,
		},
		{
			description: "zero falls back to static default",
			probe:       func() int { return 0 },
			expect:      DefaultFallback,
		},
		{
			description: "negative falls back to static default",
			probe:       func() int { return -1 },
			expect:      DefaultFallback,
		},
		{
			description: "nil prober queries the runtime",
			probe:       nil,
			expect:      runtime.NumCPU(),
		},
	}
	for _, testCase := range testCases {
		assert.Equal(t, testCase.expect, Logical(testCase.probe), testCase.description)
	}
}
