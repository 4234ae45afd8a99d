// Copyright (c) 2025 The IbisWallet developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package wallet

import (
	"context"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
	"github.com/lightningnetwork/lnd/fn/v2"

	"github.com/aeonBTC/IbisWallet-sub000/unit"
)

// Recipient is a validated destination and amount within a draft.
type Recipient struct {
	// Address is the destination address string. It has passed
	// checksum validation.
	Address string

	// Amount is the value to send.
	Amount btcutil.Amount
}

// Utxo describes one unspent output of the wallet as loaded from
// storage.
type Utxo struct {
	// OutPoint identifies the output.
	OutPoint wire.OutPoint

	// Amount is the output value.
	Amount btcutil.Amount

	// Confirmed reports whether the funding transaction is confirmed.
	Confirmed bool

	// Frozen reports whether the user has excluded this coin from
	// spending.
	Frozen bool

	// Label is an optional user-assigned coin label.
	Label fn.Option[string]
}

// DryRunRequest is the draft projection handed to the engine for cost
// estimation or commit. It contains only valid recipients.
type DryRunRequest struct {
	// Recipients are the validated destinations and amounts.
	Recipients []Recipient

	// FeeRate is the desired fee rate.
	FeeRate unit.SatPerVByte

	// CoinSelection restricts the spendable set to these outpoints.
	// Empty means the engine selects coins itself.
	CoinSelection []wire.OutPoint

	// MaxSend indicates the recipient sweeps all available funds; its
	// amount is then an estimate the engine replaces.
	MaxSend bool

	// Label is an optional transaction memo.
	Label fn.Option[string]
}

// DryRunResult is the engine's feasibility and cost verdict for one
// draft snapshot. Results are recomputed whole on every relevant change,
// never mutated in place.
type DryRunResult struct {
	// Fee is the total transaction fee.
	Fee btcutil.Amount

	// VSize is the estimated virtual size.
	VSize unit.VByte

	// Change is the change output value, zero when HasChange is
	// false.
	Change btcutil.Amount

	// HasChange reports whether the transaction carries a change
	// output.
	HasChange bool

	// RecipientAmount is the exact amount delivered to the recipient.
	// Under max-send this replaces the heuristic estimate.
	RecipientAmount btcutil.Amount

	// Err carries the engine's failure verbatim when the draft is not
	// fundable: ErrInsufficientFunds, ErrBelowDustLimit or
	// ErrBackendUnavailable. It is never reinterpreted locally.
	Err error
}

// Engine is the external wallet engine that performs coin selection,
// signing and broadcast. It is the sole authority on whether a draft is
// fundable; everything this package computes locally is advisory.
type Engine interface {
	// DryRun constructs the transaction without broadcasting it and
	// reports its cost. An infeasible draft is reported through
	// DryRunResult.Err, not through the error return, which is
	// reserved for request-level failures.
	DryRun(ctx context.Context, req *DryRunRequest) (*DryRunResult,
		error)

	// CommitSend signs and broadcasts the transaction the request
	// describes and returns its txid.
	CommitSend(ctx context.Context, req *DryRunRequest) (
		*chainhash.Hash, error)

	// CommitPsbtCreate constructs the transaction the request
	// describes and returns it as an unsigned PSBT payload for an
	// external signer. Used by watch-only wallets.
	CommitPsbtCreate(ctx context.Context, req *DryRunRequest) (
		[]byte, error)

	// BroadcastSigned broadcasts an externally signed transaction and
	// returns its txid.
	BroadcastSigned(ctx context.Context, payload []byte) (
		*chainhash.Hash, error)
}

// Broadcaster is the subset of Engine a signing session needs.
type Broadcaster interface {
	// BroadcastSigned broadcasts an externally signed transaction and
	// returns its txid.
	BroadcastSigned(ctx context.Context, payload []byte) (
		*chainhash.Hash, error)
}

// CoinSource loads the wallet's current unspent set from secure
// storage.
type CoinSource interface {
	// ListUnspent returns the wallet's unspent outputs.
	ListUnspent(ctx context.Context) ([]Utxo, error)
}

// DraftStore persists the active draft so an interrupted session can be
// restored after a restart.
type DraftStore interface {
	// SaveDraft stores the record, replacing any previous one.
	SaveDraft(record *DraftRecord) error

	// LoadDraft returns the stored record, or ErrNoActiveDraft when
	// none exists.
	LoadDraft() (*DraftRecord, error)

	// ClearDraft removes the stored record. Clearing an empty store
	// is not an error.
	ClearDraft() error
}
