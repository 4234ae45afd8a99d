// Copyright (c) 2025 The IbisWallet developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package address

import (
	"bytes"
	"crypto/sha256"
	"math/big"
)

// base58Alphabet is the 58-character alphabet shared by all Base58Check
// encodings. It omits 0, O, I and l to avoid visual ambiguity.
const base58Alphabet = "123456789ABCDEFGHJKLMNPQRSTUVWXYZ" +
	"abcdefghijkmnopqrstuvwxyz"

// base58CheckMinLen is the minimum decoded length of a Base58Check
// address: a version byte, a 20-byte hash and the 4-byte checksum.
const base58CheckMinLen = 25

// base58Index maps an ASCII code point to its value in the base58
// alphabet, or -1 when it is not part of the alphabet.
var base58Index [128]int8

func init() {
	for i := range base58Index {
		base58Index[i] = -1
	}
	for i := 0; i < len(base58Alphabet); i++ {
		base58Index[base58Alphabet[i]] = int8(i)
	}
}

// validateBase58Check decodes a Base58Check string and verifies its
// trailing 4-byte double-SHA256 checksum.
func validateBase58Check(addr string) error {
	// Rebuild the big-integer value the string encodes.
	num := new(big.Int)
	radix := big.NewInt(58)
	for i := 0; i < len(addr); i++ {
		c := addr[i]
		if c >= 128 || base58Index[c] < 0 {
			return ErrInvalidCharacter
		}

		num.Mul(num, radix)
		num.Add(num, big.NewInt(int64(base58Index[c])))
	}

	// Each leading '1' character encodes one leading zero byte that the
	// big-integer representation cannot carry.
	leadingZeros := 0
	for leadingZeros < len(addr) && addr[leadingZeros] == '1' {
		leadingZeros++
	}

	value := num.Bytes()
	decoded := make([]byte, leadingZeros+len(value))
	copy(decoded[leadingZeros:], value)

	if len(decoded) < base58CheckMinLen {
		return ErrInvalidLength
	}

	// The last four bytes are the checksum over everything before them.
	payload := decoded[:len(decoded)-4]
	checksum := decoded[len(decoded)-4:]

	first := sha256.Sum256(payload)
	second := sha256.Sum256(first[:])
	if !bytes.Equal(second[:4], checksum) {
		return ErrInvalidChecksum
	}

	return nil
}
