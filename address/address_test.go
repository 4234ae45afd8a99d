// Copyright (c) 2025 The IbisWallet developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package address

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

// TestValidateBase58Check checks Base58Check dispatch and the three
// distinct failure modes: bad alphabet character, short decoded length
// and checksum mismatch.
func TestValidateBase58Check(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name        string
		addr        string
		expectedErr error
	}{
		{
			name: "valid mainnet p2pkh",
			addr: "1A1zP1eP5QGefi2DMPTfTL5SLmv7DivfNa",
		},
		{
			name: "valid mainnet p2sh",
			addr: "3J98t1WpEZ73CNmQviecrnyiWrnqRhWNLy",
		},
		{
			name: "valid testnet p2pkh",
			addr: "mipcBbFg9gMiCh81Kj8tqqdgoZub1ZJRfn",
		},
		{
			name: "valid testnet p2sh",
			addr: "2MzQwSSnBHWHqSAqtTVQ6v47XtaisrJa1Vc",
		},
		{
			name:        "character outside alphabet",
			addr:        "1A1zP1eP5QGefi2DMPTfTL5SLmv7DivfN0",
			expectedErr: ErrInvalidCharacter,
		},
		{
			name:        "non-ascii character",
			addr:        "1A1zP1eP5QGefi2DMPTfTL5SLmv7Divfé",
			expectedErr: ErrInvalidCharacter,
		},
		{
			name:        "decodes too short",
			addr:        "1111",
			expectedErr: ErrInvalidLength,
		},
		{
			name:        "flipped final character",
			addr:        "1A1zP1eP5QGefi2DMPTfTL5SLmv7DivfNb",
			expectedErr: ErrInvalidChecksum,
		},
		{
			name:        "flipped middle character",
			addr:        "1A1zP1eP5QGefi2DMPTfTL5SLmv8DivfNa",
			expectedErr: ErrInvalidChecksum,
		},
	}

	for _, tc := range testCases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			err := Validate(tc.addr)
			if tc.expectedErr == nil {
				require.NoError(t, err)
				return
			}

			require.ErrorIs(t, err, tc.expectedErr)
		})
	}
}

// TestValidateBech32 checks bech32/bech32m dispatch, case handling and
// the failure modes for the segwit address family.
func TestValidateBech32(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name        string
		addr        string
		expectedErr error
	}{
		{
			name: "valid mainnet p2wpkh",
			addr: "bc1qw508d6qejxtdg4y5r3zarvary0c5xw7kv8f3t4",
		},
		{
			name: "valid mainnet p2wpkh all uppercase",
			addr: "BC1QW508D6QEJXTDG4Y5R3ZARVARY0C5XW7KV8F3T4",
		},
		{
			name: "valid testnet p2wsh",
			addr: "tb1qrp33g0q5c5txsp9arysrx4k6zdkfs4nce4xj0" +
				"gdcccefvpysxf3q0sl5k7",
		},
		{
			name: "valid mainnet p2tr",
			addr: "bc1p0xlxvlhemja6c4dqv22uapctqupfhlxm9h8z3k2" +
				"e72q4k9hcz7vqzk5jj0",
		},
		{
			name: "valid long witness program",
			addr: "bc1pw508d6qejxtdg4y5r3zarvary0c5xw7kw508d6q" +
				"ejxtdg4y5r3zarvary0c5xw7kt5nd6y",
		},
		{
			name: "mixed case",
			addr: "bc1qW508d6qejxtdg4y5r3zarvary0c5xw7kv8f3t4",
			expectedErr: ErrMixedCase,
		},
		{
			name: "flipped data character",
			addr: "bc1qw508d6qejxtdg4y5r3zarvary0c5xw7kv8f3t5",
			expectedErr: ErrInvalidChecksum,
		},
		{
			name: "character outside charset",
			addr: "bc1qw508d6qejxtdg4y5r3zarvary0c5xw7kv8f3tb",
			expectedErr: ErrInvalidCharacter,
		},
		{
			name:        "too few data characters",
			addr:        "bc1q",
			expectedErr: ErrInvalidLength,
		},
		{
			name: "exceeds maximum length",
			addr: "bc1q" + strings.Repeat("q", 90),
			expectedErr: ErrInvalidLength,
		},
		{
			name: "witness version above 16",
			addr: "bc1aw508d6qejxtdg4y5r3zarvary0c5xw7kv8f3t4",
			expectedErr: ErrUnknownFormat,
		},
	}

	for _, tc := range testCases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			err := Validate(tc.addr)
			if tc.expectedErr == nil {
				require.NoError(t, err)
				return
			}

			require.ErrorIs(t, err, tc.expectedErr)
		})
	}
}

// TestBech32FamilyDispatch checks that a valid bech32m string only
// satisfies the bech32m residue, never the plain bech32 one, so the
// checksum family cannot be bypassed by re-labelling the address.
func TestBech32FamilyDispatch(t *testing.T) {
	t.Parallel()

	const addr = "bc1p0xlxvlhemja6c4dqv22uapctqupfhlxm9h8z3k2" +
		"e72q4k9hcz7vqzk5jj0"

	sep := strings.LastIndexByte(addr, '1')
	hrp := addr[:sep]

	data := make([]byte, 0, len(addr)-sep-1)
	for i := sep + 1; i < len(addr); i++ {
		idx := strings.IndexByte(bech32Charset, addr[i])
		require.GreaterOrEqual(t, idx, 0)
		data = append(data, byte(idx))
	}

	residue := bech32Polymod(hrpExpand(hrp), data)
	require.Equal(t, uint32(bech32mConst), residue)
	require.NotEqual(t, uint32(bech32Const), residue)
}

// TestValidateUnknownFormat checks prefixes that match no encoding
// family.
func TestValidateUnknownFormat(t *testing.T) {
	t.Parallel()

	for _, addr := range []string{
		"",
		"4A1zP1eP5QGefi2DMPTfTL5SLmv7DivfNa",
		"xc1qw508d6qejxtdg4y5r3zarvary0c5xw7kv8f3t4",
		"hello world",
	} {
		require.ErrorIs(t, Validate(addr), ErrUnknownFormat, addr)
	}
}

// TestInfo checks the prefix-only display hints.
func TestInfo(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		addr    string
		format  Format
		network Network
	}{
		{"1A1zP1eP5QGefi2DMPTfTL5SLmv7DivfNa", FormatP2PKH, NetworkMainnet},
		{"3J98t1WpEZ73CNmQviecrnyiWrnqRhWNLy", FormatP2SH, NetworkMainnet},
		{"mipcBbFg9gMiCh81Kj8tqqdgoZub1ZJRfn", FormatP2PKH, NetworkTestnet},
		{"2MzQwSSnBHWHqSAqtTVQ6v47XtaisrJa1Vc", FormatP2SH, NetworkTestnet},
		{"bc1qw508d6qejxtdg4y5r3zarvary0c5xw7kv8f3t4", FormatSegWitV0, NetworkMainnet},
		{"bc1p0xlxvlhemja6c4dqv22uapctqupfhlxm9h8z3k2e72q4k9hcz7vqzk5jj0", FormatTaproot, NetworkMainnet},
		{"bcrt1qunknown", FormatSegWitV0, NetworkRegtest},
		{"zzz", FormatUnknown, NetworkUnknown},
	}

	for _, tc := range testCases {
		format, network := Info(tc.addr)
		require.Equal(t, tc.format, format, tc.addr)
		require.Equal(t, tc.network, network, tc.addr)
	}
}
