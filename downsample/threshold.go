package downsample

import (
	"fmt"
	"math"

	"github.com/grailbio/base/errors"
)

// Threshold converts keep-probability p into the uint32 cutoff against
// which draws are compared.  p must be in [0,1].
//
// p == 1 maps to math.MaxUint32 directly, so that keeping everything never
// depends on floating point rounding.  Otherwise the result is
// floor(p*MaxUint32+0.5), clamped to the uint32 range.
func Threshold(p float64) (uint32, error) {
	if !(p >= 0 && p <= 1) {
		return 0, errors.E(errors.Invalid, fmt.Sprintf("value of p must be in [0,1] but is %v", p))
	}
	if p == 1 {
		return math.MaxUint32, nil
	}
	v := math.Floor(p*float64(math.MaxUint32) + 0.5)
	v = math.Max(0, math.Min(v, float64(math.MaxUint32)))
	return uint32(v), nil
}
