// Copyright (c) 2025 The IbisWallet developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package address

import "strings"

// bech32Charset is the 32-symbol data alphabet defined by BIP173.
const bech32Charset = "qpzry9x8gf2tvdw0s3jn54khce6mua7"

const (
	// bech32Const is the checksum residue of a valid bech32 string.
	bech32Const = 1

	// bech32mConst is the checksum residue of a valid bech32m string,
	// defined by BIP350.
	bech32mConst = 0x2bc830a3

	// bech32MaxLen is the maximum total length of a bech32 string.
	bech32MaxLen = 90

	// bech32ChecksumLen is the number of trailing checksum characters.
	bech32ChecksumLen = 6

	// maxWitnessVersion is the highest segwit witness version.
	maxWitnessVersion = 16
)

// bech32Generator holds the coefficients of the BCH generator polynomial
// used by the bech32 checksum.
var bech32Generator = [5]uint32{
	0x3b6a57b2, 0x26508e6d, 0x1ea119fa, 0x3d4233dd, 0x2a1462b3,
}

// validateBech32 verifies a bech32 or bech32m address string. The
// checksum family is chosen by the witness version the first data
// character encodes: version 0 uses bech32, versions 1 through 16 use
// bech32m.
func validateBech32(addr string) error {
	// Mixed case is rejected before any charset work so an attacker
	// cannot smuggle a look-alike character past a case fold.
	var hasLower, hasUpper bool
	for i := 0; i < len(addr); i++ {
		c := addr[i]
		switch {
		case c >= 'a' && c <= 'z':
			hasLower = true
		case c >= 'A' && c <= 'Z':
			hasUpper = true
		}
	}
	if hasLower && hasUpper {
		return ErrMixedCase
	}

	s := strings.ToLower(addr)
	if len(s) > bech32MaxLen {
		return ErrInvalidLength
	}

	// The separator is the last '1' in the string. It cannot be the
	// first character and must leave at least a witness version plus
	// the six checksum characters behind it.
	sep := strings.LastIndexByte(s, '1')
	if sep < 1 {
		return ErrUnknownFormat
	}
	if len(s)-sep-1 < bech32ChecksumLen+1 {
		return ErrInvalidLength
	}

	hrp := s[:sep]
	if !knownHRP(hrp) {
		return ErrUnknownFormat
	}

	data := make([]byte, 0, len(s)-sep-1)
	for i := sep + 1; i < len(s); i++ {
		idx := strings.IndexByte(bech32Charset, s[i])
		if idx < 0 {
			return ErrInvalidCharacter
		}

		data = append(data, byte(idx))
	}

	witnessVersion := data[0]
	if witnessVersion > maxWitnessVersion {
		return ErrUnknownFormat
	}

	expected := uint32(bech32mConst)
	if witnessVersion == 0 {
		expected = bech32Const
	}

	if bech32Polymod(hrpExpand(hrp), data) != expected {
		return ErrInvalidChecksum
	}

	return nil
}

// knownHRP reports whether the human-readable part belongs to a bitcoin
// network this wallet handles.
func knownHRP(hrp string) bool {
	for _, known := range segwitHRPs {
		if hrp == known {
			return true
		}
	}

	return false
}

// hrpExpand expands the human-readable part for checksum computation:
// the high bits of each character, a zero separator, then the low bits.
func hrpExpand(hrp string) []byte {
	expanded := make([]byte, 0, len(hrp)*2+1)
	for i := 0; i < len(hrp); i++ {
		expanded = append(expanded, hrp[i]>>5)
	}
	expanded = append(expanded, 0)
	for i := 0; i < len(hrp); i++ {
		expanded = append(expanded, hrp[i]&31)
	}

	return expanded
}

// bech32Polymod runs the BCH generator polynomial over the expanded
// human-readable part followed by the data characters and returns the
// 30-bit residue.
func bech32Polymod(hrpExpanded, data []byte) uint32 {
	chk := uint32(1)
	process := func(values []byte) {
		for _, v := range values {
			top := chk >> 25
			chk = (chk&0x1ffffff)<<5 ^ uint32(v)
			for i := 0; i < 5; i++ {
				if (top>>uint(i))&1 == 1 {
					chk ^= bech32Generator[i]
				}
			}
		}
	}

	process(hrpExpanded)
	process(data)

	return chk
}
