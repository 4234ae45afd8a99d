// Copyright (c) 2025 The IbisWallet developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package unit

import (
	"errors"
	"math"
	"math/big"

	"github.com/btcsuite/btcd/btcutil"
)

const (
	// SatsPerKilo is the number of satoshis in a kilo-satoshi.
	SatsPerKilo = 1000

	// floatStringPrecision is the number of decimal places to use when
	// converting a fee rate to a string.
	floatStringPrecision = 2
)

// ErrInvalidFeeRate is returned when a fee rate string cannot be parsed
// or encodes a negative rate.
var ErrInvalidFeeRate = errors.New("invalid fee rate")

// MinRelayFeeRate is the minimum fee rate relayed by default mempool
// policies, expressed in sat/vb.
var MinRelayFeeRate = SatPerVByteFromUint64(1)

// SatPerVByte represents a fee rate in sat/vbyte. The fee rate is encoded
// as a big.Rat to allow for fractional (sub-satoshi) fee rates.
type SatPerVByte struct {
	*big.Rat
}

// NewSatPerVByte creates a new fee rate in sat/vb. The given fee and
// vbytes are used to calculate the fee rate.
func NewSatPerVByte(fee btcutil.Amount, vb VByte) SatPerVByte {
	if vb == 0 {
		return SatPerVByte{big.NewRat(0, 1)}
	}

	return SatPerVByte{
		big.NewRat(int64(fee), safeUint64ToInt64(uint64(vb))),
	}
}

// SatPerVByteFromUint64 creates a new fee rate in sat/vb from a whole
// number of satoshis per vbyte.
func SatPerVByteFromUint64(rate uint64) SatPerVByte {
	return SatPerVByte{big.NewRat(safeUint64ToInt64(rate), 1)}
}

// ParseSatPerVByte parses a decimal string such as "12" or "1.5" into a
// fee rate in sat/vb.
func ParseSatPerVByte(s string) (SatPerVByte, error) {
	r, ok := new(big.Rat).SetString(s)
	if !ok || r.Sign() < 0 {
		return SatPerVByte{}, ErrInvalidFeeRate
	}

	return SatPerVByte{r}, nil
}

// FeeForVSize calculates the fee resulting from this fee rate and the
// given size in vbytes, rounding up to the nearest satoshi.
func (s SatPerVByte) FeeForVSize(vb VByte) btcutil.Amount {
	feeRat := new(big.Rat).Mul(
		s.rat(), big.NewRat(safeUint64ToInt64(uint64(vb)), 1),
	)

	return ceilToAmount(feeRat)
}

// Ceil returns the fee rate rounded up to the next whole satoshi per
// vbyte.
func (s SatPerVByte) Ceil() SatPerVByte {
	r := s.rat()

	num := new(big.Int).Set(r.Num())
	den := r.Denom()
	num.Add(num, den)
	num.Sub(num, big.NewInt(1))
	num.Div(num, den)

	return SatPerVByte{new(big.Rat).SetInt(num)}
}

// FeePerKVByte converts the current fee rate from sat/vb to sat/kvb.
func (s SatPerVByte) FeePerKVByte() SatPerKVByte {
	kvbRate := new(big.Rat).Mul(s.rat(), big.NewRat(SatsPerKilo, 1))

	return SatPerKVByte{kvbRate}
}

// String returns a human-readable string of the fee rate.
func (s SatPerVByte) String() string {
	return s.rat().FloatString(floatStringPrecision) + " sat/vb"
}

// IsZero returns true if the fee rate is uninitialized or zero.
func (s SatPerVByte) IsZero() bool {
	return s.Rat == nil || s.Rat.Sign() == 0
}

// Equal returns true if the fee rate is equal to the other fee rate.
func (s SatPerVByte) Equal(other SatPerVByte) bool {
	return s.rat().Cmp(other.rat()) == 0
}

// GreaterThan returns true if the fee rate is greater than the other fee
// rate.
func (s SatPerVByte) GreaterThan(other SatPerVByte) bool {
	return s.rat().Cmp(other.rat()) > 0
}

// GreaterThanOrEqual returns true if the fee rate is greater than or
// equal to the other fee rate.
func (s SatPerVByte) GreaterThanOrEqual(other SatPerVByte) bool {
	return s.rat().Cmp(other.rat()) >= 0
}

// LessThan returns true if the fee rate is less than the other fee rate.
func (s SatPerVByte) LessThan(other SatPerVByte) bool {
	return s.rat().Cmp(other.rat()) < 0
}

// rat returns the underlying big.Rat, treating the zero value as a zero
// rate.
func (s SatPerVByte) rat() *big.Rat {
	if s.Rat == nil {
		return big.NewRat(0, 1)
	}

	return s.Rat
}

// SatPerKVByte represents a fee rate in sat/kvb. The fee rate is encoded
// as a big.Rat to allow for fractional (sub-satoshi) fee rates.
type SatPerKVByte struct {
	*big.Rat
}

// NewSatPerKVByte creates a new fee rate in sat/kvb. The given fee and
// kvbytes are used to calculate the fee rate.
func NewSatPerKVByte(fee btcutil.Amount, kvb VByte) SatPerKVByte {
	if kvb == 0 {
		return SatPerKVByte{big.NewRat(0, 1)}
	}

	return SatPerKVByte{
		big.NewRat(
			int64(fee)*SatsPerKilo,
			safeUint64ToInt64(uint64(kvb)),
		),
	}
}

// FeePerVByte converts the current fee rate from sat/kvb to sat/vb.
func (s SatPerKVByte) FeePerVByte() SatPerVByte {
	vbRate := new(big.Rat).Mul(s.rat(), big.NewRat(1, SatsPerKilo))

	return SatPerVByte{vbRate}
}

// FeeForVSize calculates the fee resulting from this fee rate and the
// given size in vbytes, rounding up to the nearest satoshi.
func (s SatPerKVByte) FeeForVSize(vb VByte) btcutil.Amount {
	return s.FeePerVByte().FeeForVSize(vb)
}

// String returns a human-readable string of the fee rate.
func (s SatPerKVByte) String() string {
	return s.rat().FloatString(floatStringPrecision) + " sat/kvb"
}

// rat returns the underlying big.Rat, treating the zero value as a zero
// rate.
func (s SatPerKVByte) rat() *big.Rat {
	if s.Rat == nil {
		return big.NewRat(0, 1)
	}

	return s.Rat
}

// ceilToAmount converts a big.Rat of satoshis to a btcutil.Amount,
// rounding any fractional part up to the next whole satoshi.
//
// The rounding logic is based on the ceiling division formula:
// (numerator + denominator - 1) / denominator.
func ceilToAmount(r *big.Rat) btcutil.Amount {
	num := new(big.Int).Set(r.Num())
	den := r.Denom()
	num.Add(num, den)
	num.Sub(num, big.NewInt(1))
	num.Div(num, den)

	return btcutil.Amount(num.Int64())
}

// safeUint64ToInt64 converts a uint64 to an int64, clamping values that
// would overflow.
func safeUint64ToInt64(v uint64) int64 {
	if v > math.MaxInt64 {
		return math.MaxInt64
	}

	return int64(v)
}
