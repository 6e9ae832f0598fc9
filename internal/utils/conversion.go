/*

This file contains the display conversion the web layer uses to report
native smallest-unit amounts as decimal USD values.

*/

package utils

import (
	"fmt"
	"math"

	sdkmath "cosmossdk.io/math"

	"github.com/dotindex/core/internal/types"
)

// SDKIntToFloat64 scales a native smallest-unit amount down by precision
// decimal places. Display only; protocol math never round-trips through
// floats.
func SDKIntToFloat64(amount sdkmath.Int, precision int) (float64, error) {
	if precision < 0 || precision > 18 {
		return 0, fmt.Errorf("convert to float: precision %d: %w", precision, types.ErrInvalidParameter)
	}
	if amount.IsNil() || amount.IsNegative() {
		return 0, fmt.Errorf("convert to float: amount: %w", types.ErrInvalidParameter)
	}

	factor := sdkmath.LegacyNewDec(10).Power(uint64(precision))
	value, err := sdkmath.LegacyNewDecFromInt(amount).Quo(factor).Float64()
	if err != nil {
		return 0, fmt.Errorf("convert to float: %w", err)
	}
	if math.IsNaN(value) || math.IsInf(value, 0) {
		return 0, fmt.Errorf("convert to float: non-finite result: %w", types.ErrInvalidParameter)
	}
	return value, nil
}
