package orderv1

import (
	"fmt"
	"math"

	"github.com/byteball/btc-exchange/pkg/errors"
)

// Prices are quoted in BTC/GB. With 1 BTC = 1e8 satoshis and 1 GB = 1e9
// bytes, satoshis = bytes * price * 1e8 / 1e9 = bytes * price / 10.

// SatoshisToBytes converts a satoshi amount to bytes at the given price,
// rounding to the nearest byte.
func SatoshisToBytes(satoshis int64, price float64) (int64, error) {
	if satoshis <= 0 || price <= 0 {
		return 0, errors.NewErrorDetails(
			fmt.Sprintf("wrong inputs to SatoshisToBytes amount=%d, price=%v", satoshis, price),
			string(errors.InvariantViolation), "conversion")
	}
	return int64(math.Round(10 * float64(satoshis) / price)), nil
}

// BytesToSatoshis converts a byte amount to satoshis at the given price,
// rounding to the nearest satoshi. A zero result is possible for tiny byte
// amounts and must be rejected by the caller where the satoshi leg is
// mandatory.
func BytesToSatoshis(bytes int64, price float64) (int64, error) {
	if bytes <= 0 || price <= 0 {
		return 0, errors.NewErrorDetails(
			fmt.Sprintf("wrong inputs to BytesToSatoshis amount=%d, price=%v", bytes, price),
			string(errors.InvariantViolation), "conversion")
	}
	return int64(math.Round(float64(bytes) * price / 10)), nil
}
