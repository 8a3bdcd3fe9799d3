package app

// FeeSplit divides a gross amount in minor currency units.
type FeeSplit struct {
	PlatformFee int64
	CreatorNet  int64
}

// ComputeFee returns floor(feePercent * gross / 100) as the platform fee and
// the non-negative remainder as the creator net. Integer arithmetic only.
func ComputeFee(gross, feePercent int64) FeeSplit {
	if gross <= 0 || feePercent <= 0 {
		return FeeSplit{PlatformFee: 0, CreatorNet: max(0, gross)}
	}
	if feePercent > 100 {
		feePercent = 100
	}
	fee := feePercent * gross / 100
	return FeeSplit{PlatformFee: fee, CreatorNet: max(0, gross-fee)}
}
