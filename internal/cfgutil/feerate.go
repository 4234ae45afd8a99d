// Copyright (c) 2025 The IbisWallet developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package cfgutil

import (
	"github.com/aeonBTC/IbisWallet-sub000/unit"
)

// FeeRateFlag embeds a unit.SatPerVByte and implements the
// flags.Marshaler and Unmarshaler interfaces so fractional fee rates
// such as "1.5" can be used as config struct fields.
type FeeRateFlag struct {
	unit.SatPerVByte
}

// NewFeeRateFlag creates a FeeRateFlag with a default rate.
func NewFeeRateFlag(defaultValue unit.SatPerVByte) *FeeRateFlag {
	return &FeeRateFlag{defaultValue}
}

// MarshalFlag satisfies the flags.Marshaler interface.
func (f *FeeRateFlag) MarshalFlag() (string, error) {
	return f.SatPerVByte.String(), nil
}

// UnmarshalFlag satisfies the flags.Unmarshaler interface.
func (f *FeeRateFlag) UnmarshalFlag(value string) error {
	rate, err := unit.ParseSatPerVByte(value)
	if err != nil {
		return err
	}
	f.SatPerVByte = rate
	return nil
}
