// Copyright (c) 2025 The IbisWallet developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package wallet

import (
	"errors"
	"strconv"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/wire"
	"github.com/btcsuite/btcwallet/wallet/txrules"
	"github.com/lightningnetwork/lnd/fn/v2"

	"github.com/aeonBTC/IbisWallet-sub000/address"
	"github.com/aeonBTC/IbisWallet-sub000/unit"
)

// Mode selects the recipient projection of a draft. The two modes are
// mutually exclusive views over one ordered row list.
type Mode uint8

const (
	// ModeSingle edits exactly one recipient.
	ModeSingle Mode = iota

	// ModeMulti edits two or more recipient rows.
	ModeMulti
)

// String returns the mode name.
func (m Mode) String() string {
	switch m {
	case ModeSingle:
		return "single"
	case ModeMulti:
		return "multi"
	default:
		return "unknown"
	}
}

// State is the position of a draft in its flow.
type State uint8

const (
	// StateEmpty is a draft with no edits yet.
	StateEmpty State = iota

	// StateEditing is a draft with edits but no estimation armed.
	StateEditing

	// StateEstimating is a draft whose debounce window is armed or
	// whose dry-run request is in flight.
	StateEstimating

	// StateEstimated is a draft holding a dry-run result for its
	// current contents. The result itself may carry an engine error.
	StateEstimated

	// StateCommitting is a draft with a commit outstanding.
	StateCommitting

	// StateDone is a draft whose commit succeeded. Its contents have
	// been cleared.
	StateDone

	// StateFailed is a draft whose commit failed. Editing resumes the
	// flow.
	StateFailed
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case StateEmpty:
		return "empty"
	case StateEditing:
		return "editing"
	case StateEstimating:
		return "estimating"
	case StateEstimated:
		return "estimated"
	case StateCommitting:
		return "committing"
	case StateDone:
		return "done"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Row is one editable recipient entry as typed by the user. A row only
// counts toward the committed recipient list once its address passes
// validation and its amount parses to a positive, non-dust sat integer;
// until then it stays editable but is excluded from aggregation and
// estimation.
type Row struct {
	// Address is the raw destination string.
	Address string

	// Amount is the raw amount string, whole satoshis.
	Amount string
}

// errRowInvalid marks a row that does not yet parse to a recipient. It
// is internal: an invalid row is not an error condition, it is simply
// not aggregated.
var errRowInvalid = errors.New("row not yet valid")

// recipientScriptSize is the script size assumed for the dust check on
// recipient amounts. A pay-to-pubkey-hash script yields the canonical
// 546 sat floor.
const recipientScriptSize = 25

// parseRow converts a raw row into a recipient, or reports why it does
// not count yet.
func parseRow(row Row) (Recipient, error) {
	if err := address.Validate(row.Address); err != nil {
		return Recipient{}, err
	}

	sats, err := strconv.ParseUint(row.Amount, 10, 63)
	if err != nil || sats == 0 {
		return Recipient{}, errRowInvalid
	}

	amount := btcutil.Amount(sats)
	if amount > btcutil.MaxSatoshi {
		return Recipient{}, errRowInvalid
	}

	dusty := txrules.IsDustAmount(
		amount, recipientScriptSize, txrules.DefaultRelayFeePerKb,
	)
	if dusty {
		return Recipient{}, errRowInvalid
	}

	return Recipient{Address: row.Address, Amount: amount}, nil
}

// DraftRecord is the persistable form of a draft: the raw editable
// fields, without any derived or estimated state.
type DraftRecord struct {
	// Mode is the recipient projection in use.
	Mode Mode

	// Rows are the raw recipient rows.
	Rows []Row

	// FeeRate is the selected fee rate.
	FeeRate unit.SatPerVByte

	// CoinSelection is the explicit coin-control selection, empty for
	// automatic selection.
	CoinSelection []wire.OutPoint

	// MaxSend reports whether the sweep-all flag is set.
	MaxSend bool

	// Label is the optional transaction memo.
	Label fn.Option[string]
}

// DraftSnapshot is an immutable view of the draft at one generation.
// Dependents consume snapshots; they never observe partial mutation.
type DraftSnapshot struct {
	// Generation is the monotonic edit counter the snapshot was taken
	// at.
	Generation uint64

	// State is the flow state.
	State State

	// Mode is the recipient projection in use.
	Mode Mode

	// Rows are the raw recipient rows, valid or not.
	Rows []Row

	// Recipients are the rows that currently parse to valid
	// recipients, in row order.
	Recipients []Recipient

	// FeeRate is the selected fee rate.
	FeeRate unit.SatPerVByte

	// CoinSelection is the explicit coin-control selection.
	CoinSelection []wire.OutPoint

	// MaxSend reports whether the sweep-all flag is set.
	MaxSend bool

	// Label is the optional transaction memo.
	Label fn.Option[string]

	// TotalSending is the sum of valid recipient amounts.
	TotalSending btcutil.Amount

	// SpendableBalance is the advisory balance derived from the
	// loaded unspent set, respecting coin control and frozen coins.
	// Display only: the dry-run engine is the feasibility authority.
	SpendableBalance btcutil.Amount

	// Estimate is the latest dry-run result for this generation, nil
	// while none has resolved.
	Estimate *DryRunResult

	// CanCommit reports whether the draft may be committed right now.
	CanCommit bool
}

// ValidRecipientCount returns the number of rows that currently count
// toward the committed recipient list.
func (s *DraftSnapshot) ValidRecipientCount() int {
	return len(s.Recipients)
}
