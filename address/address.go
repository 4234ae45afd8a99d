// Copyright (c) 2025 The IbisWallet developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package address validates checksum-bearing bitcoin address strings as
// typed by a user. It implements the Base58Check, Bech32 and Bech32m
// checksum algorithms directly so that validation requires no network
// parameters and carries no state.
package address

import (
	"errors"
	"strings"
)

var (
	// ErrInvalidCharacter is returned when an address contains a
	// character outside its encoding's alphabet.
	ErrInvalidCharacter = errors.New("address contains invalid character")

	// ErrInvalidLength is returned when an address decodes to an
	// invalid length or violates the encoding's length limits.
	ErrInvalidLength = errors.New("address has invalid length")

	// ErrInvalidChecksum is returned when an address's checksum does
	// not match its payload.
	ErrInvalidChecksum = errors.New("address checksum mismatch")

	// ErrMixedCase is returned when a bech32 address mixes upper and
	// lower case characters.
	ErrMixedCase = errors.New("address mixes upper and lower case")

	// ErrUnknownFormat is returned when an address matches no known
	// encoding family.
	ErrUnknownFormat = errors.New("unknown address format")
)

// segwitHRPs lists the human-readable parts accepted for bech32 family
// addresses: mainnet, testnet and regtest.
var segwitHRPs = []string{"bc", "tb", "bcrt"}

// Validate checks the checksum of the given address string. A nil return
// means the address is well formed. The returned error is one of the
// package sentinels and describes the first failure encountered.
//
// The encoding family is chosen by prefix: "1", "3", "m", "n" and "2"
// dispatch to Base58Check, while a known human-readable part followed by
// the "1" separator dispatches to bech32/bech32m. Bech32 dispatch is
// case-insensitive, but mixed case fails before any charset check.
func Validate(addr string) error {
	if addr == "" {
		return ErrUnknownFormat
	}

	lower := strings.ToLower(addr)
	for _, hrp := range segwitHRPs {
		if strings.HasPrefix(lower, hrp+"1") {
			return validateBech32(addr)
		}
	}

	switch addr[0] {
	case '1', '3', 'm', 'n', '2':
		return validateBase58Check(addr)
	}

	return ErrUnknownFormat
}

// Format describes the script family an address prefix indicates.
type Format uint8

const (
	// FormatUnknown is returned for unrecognized prefixes.
	FormatUnknown Format = iota

	// FormatP2PKH is a pay-to-pubkey-hash legacy address.
	FormatP2PKH

	// FormatP2SH is a pay-to-script-hash legacy address.
	FormatP2SH

	// FormatSegWitV0 is a native segwit v0 address (p2wpkh or p2wsh).
	FormatSegWitV0

	// FormatTaproot is a segwit v1 (p2tr) address.
	FormatTaproot
)

// String returns the format name.
func (f Format) String() string {
	switch f {
	case FormatP2PKH:
		return "p2pkh"
	case FormatP2SH:
		return "p2sh"
	case FormatSegWitV0:
		return "segwit v0"
	case FormatTaproot:
		return "taproot"
	default:
		return "unknown"
	}
}

// Network describes the network an address prefix indicates.
type Network uint8

const (
	// NetworkUnknown is returned for unrecognized prefixes.
	NetworkUnknown Network = iota

	// NetworkMainnet is the main bitcoin network.
	NetworkMainnet

	// NetworkTestnet covers the test networks.
	NetworkTestnet

	// NetworkRegtest is a local regression test network.
	NetworkRegtest
)

// String returns the network name.
func (n Network) String() string {
	switch n {
	case NetworkMainnet:
		return "mainnet"
	case NetworkTestnet:
		return "testnet"
	case NetworkRegtest:
		return "regtest"
	default:
		return "unknown"
	}
}

// Info reports the script format and network indicated by an address
// prefix. It inspects the prefix only and performs no checksum work, so
// it is suitable for display hints while the user is still typing. Use
// Validate to decide whether the address is actually well formed.
func Info(addr string) (Format, Network) {
	lower := strings.ToLower(addr)

	switch {
	case strings.HasPrefix(lower, "bc1p"):
		return FormatTaproot, NetworkMainnet
	case strings.HasPrefix(lower, "bc1"):
		return FormatSegWitV0, NetworkMainnet
	case strings.HasPrefix(lower, "tb1p"):
		return FormatTaproot, NetworkTestnet
	case strings.HasPrefix(lower, "tb1"):
		return FormatSegWitV0, NetworkTestnet
	case strings.HasPrefix(lower, "bcrt1p"):
		return FormatTaproot, NetworkRegtest
	case strings.HasPrefix(lower, "bcrt1"):
		return FormatSegWitV0, NetworkRegtest
	}

	if addr == "" {
		return FormatUnknown, NetworkUnknown
	}

	switch addr[0] {
	case '1':
		return FormatP2PKH, NetworkMainnet
	case '3':
		return FormatP2SH, NetworkMainnet
	case 'm', 'n':
		return FormatP2PKH, NetworkTestnet
	case '2':
		return FormatP2SH, NetworkTestnet
	}

	return FormatUnknown, NetworkUnknown
}
