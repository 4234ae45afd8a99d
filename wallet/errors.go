// Copyright (c) 2025 The IbisWallet developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package wallet

import "errors"

var (
	// ErrDraftNotReady is returned when a commit is requested but the
	// latest dry-run has not succeeded for the current draft state.
	ErrDraftNotReady = errors.New("draft is not ready to commit")

	// ErrCommitInFlight is returned when a commit is requested while
	// another commit on the same draft is still outstanding.
	ErrCommitInFlight = errors.New("commit already in flight")

	// ErrFeeRateBelowMinimum is returned when a fee rate below the
	// network minimum relay rate is set on a draft.
	ErrFeeRateBelowMinimum = errors.New(
		"fee rate below network minimum",
	)

	// ErrUnknownCoinSelected is returned when a coin-control selection
	// names an outpoint that is not part of the wallet's unspent set.
	ErrUnknownCoinSelected = errors.New(
		"selected coin not in unspent set",
	)

	// ErrFrozenCoinSelected is returned when a coin-control selection
	// names a frozen coin.
	ErrFrozenCoinSelected = errors.New("selected coin is frozen")

	// ErrSingleModeOnly is returned when an operation that requires
	// the single-recipient projection is attempted in multi mode, or
	// vice versa.
	ErrSingleModeOnly = errors.New(
		"operation not available in this recipient mode",
	)

	// ErrRowOutOfRange is returned when a recipient row index does not
	// exist.
	ErrRowOutOfRange = errors.New("recipient row out of range")

	// ErrInsufficientFunds is surfaced verbatim from the engine when a
	// dry-run cannot fund the draft.
	ErrInsufficientFunds = errors.New("insufficient funds")

	// ErrBelowDustLimit is surfaced verbatim from the engine when a
	// dry-run produces an output below the dust limit.
	ErrBelowDustLimit = errors.New("output below dust limit")

	// ErrBackendUnavailable is surfaced verbatim from the engine when
	// the network backend cannot serve a dry-run or broadcast.
	ErrBackendUnavailable = errors.New("network backend unavailable")

	// ErrUnparseableSignedPayload is returned when a payload handed
	// back from an external signer is neither a partially signed
	// transaction nor a finalized raw transaction.
	ErrUnparseableSignedPayload = errors.New(
		"unparseable signed payload",
	)

	// ErrForeignTransaction is returned when a signed payload parses
	// but spends inputs that do not belong to the session's unsigned
	// transaction.
	ErrForeignTransaction = errors.New(
		"signed payload does not match session transaction",
	)

	// ErrBroadcastFailed is returned when broadcasting a signed
	// transaction fails. The failure is terminal for the session.
	ErrBroadcastFailed = errors.New("broadcast failed")

	// ErrBroadcastIrrevocable is returned when a cancel is attempted
	// after broadcasting has begun.
	ErrBroadcastIrrevocable = errors.New(
		"broadcast already started and cannot be canceled",
	)

	// ErrInvalidPhase is returned when a session operation is called
	// from a phase it is not legal in.
	ErrInvalidPhase = errors.New("operation not legal in this phase")

	// ErrSessionCanceled records an explicit user cancel on a signing
	// session.
	ErrSessionCanceled = errors.New("signing session canceled")

	// ErrNoActiveDraft is returned when no persisted draft exists to
	// restore.
	ErrNoActiveDraft = errors.New("no active draft")
)
