// Copyright (c) 2025 The IbisWallet developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package unit provides a set of types for dealing with bitcoin fee and
// size units.
package unit

import (
	"fmt"

	"github.com/btcsuite/btcd/blockchain"
)

// WeightUnit defines a unit to express the transaction size. One weight
// unit is 1/4_000_000 of the max block size. The tx weight is calculated
// using `Base tx size * 3 + Total tx size`.
type WeightUnit uint64

// ToVB converts a value expressed in weight units to virtual bytes.
//
// According to BIP141: Virtual transaction size is defined as Transaction
// weight / 4 (rounded up to the next integer).
func (wu WeightUnit) ToVB() VByte {
	return VByte(
		(uint64(wu) + blockchain.WitnessScaleFactor - 1) /
			blockchain.WitnessScaleFactor,
	)
}

// String returns the string representation of the weight unit.
func (wu WeightUnit) String() string {
	return fmt.Sprintf("%d wu", uint64(wu))
}

// VByte defines a unit to express the transaction size. One virtual byte
// is 1/4th of a weight unit.
type VByte uint64

// ToWU converts a value expressed in virtual bytes to weight units.
func (vb VByte) ToWU() WeightUnit {
	return WeightUnit(uint64(vb) * blockchain.WitnessScaleFactor)
}

// String returns the string representation of the virtual byte.
func (vb VByte) String() string {
	return fmt.Sprintf("%d vb", uint64(vb))
}
