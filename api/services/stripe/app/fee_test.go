package app

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func Test_ComputeFee(t *testing.T) {
	cases := []struct {
		name       string
		gross, pct int64
		want       FeeSplit
	}{
		{"round amount", 1000, 20, FeeSplit{PlatformFee: 200, CreatorNet: 800}},
		{"floors the fee", 999, 20, FeeSplit{PlatformFee: 199, CreatorNet: 800}},
		{"small amount", 1, 20, FeeSplit{PlatformFee: 0, CreatorNet: 1}},
		{"zero percent", 500, 0, FeeSplit{PlatformFee: 0, CreatorNet: 500}},
		{"full percent", 500, 100, FeeSplit{PlatformFee: 500, CreatorNet: 0}},
		{"percent above 100 is capped", 500, 150, FeeSplit{PlatformFee: 500, CreatorNet: 0}},
		{"zero gross", 0, 20, FeeSplit{}},
		{"negative gross", -10, 20, FeeSplit{}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, ComputeFee(tc.gross, tc.pct))
		})
	}
}

func Test_ComputeFee_Conservation(t *testing.T) {
	for _, pct := range []int64{0, 1, 7, 15, 20, 33, 50, 99, 100} {
		for gross := int64(1); gross <= 5000; gross += 37 {
			split := ComputeFee(gross, pct)
			assert.Equal(t, gross, split.PlatformFee+split.CreatorNet, "gross=%d pct=%d", gross, pct)
			assert.Equal(t, pct*gross/100, split.PlatformFee, "gross=%d pct=%d", gross, pct)
			assert.GreaterOrEqual(t, split.CreatorNet, int64(0))
		}
	}
}
