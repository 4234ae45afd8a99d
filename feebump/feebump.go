// Copyright (c) 2025 The IbisWallet developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package feebump reconciles a fee-bump request (RBF or CPFP) against
// wallet funds. Estimation is a pure function over the request: it holds
// no state and is cheap enough to re-evaluate on every input change.
package feebump

import (
	"errors"

	"github.com/btcsuite/btcd/btcutil"

	"github.com/aeonBTC/IbisWallet-sub000/unit"
)

var (
	// ErrNotHigherThanCurrent is returned when the target fee rate is
	// not strictly greater than the transaction's current effective
	// rate. Relay policy would reject such a replacement outright.
	ErrNotHigherThanCurrent = errors.New(
		"target fee rate not higher than current rate",
	)

	// ErrInsufficientFunds is returned by BumpResult.Check when the
	// available funds cannot cover the bump.
	ErrInsufficientFunds = errors.New(
		"insufficient funds for fee bump",
	)

	// ErrInvalidRequest is returned when a request is malformed: a
	// zero transaction size or a non-positive target rate.
	ErrInvalidRequest = errors.New("invalid bump request")
)

const (
	// cpfpChildVSize is the conservative virtual size assumed for the
	// CPFP child transaction: one input spending the parent output
	// plus wallet inputs folded into the same estimate.
	cpfpChildVSize unit.VByte = 150

	// DustFloor is the minimum output value, in satoshis, that the
	// child transaction must retain as change for it to be relayable.
	DustFloor btcutil.Amount = 546
)

// Method selects the fee-bump strategy.
type Method uint8

const (
	// MethodRBF replaces the unconfirmed transaction with a
	// higher-fee version.
	MethodRBF Method = iota

	// MethodCPFP spends an output of the unconfirmed transaction with
	// a fee high enough to pay for both.
	MethodCPFP
)

// String returns the method name.
func (m Method) String() string {
	switch m {
	case MethodRBF:
		return "rbf"
	case MethodCPFP:
		return "cpfp"
	default:
		return "unknown"
	}
}

// BumpRequest bundles the fee, size and balance figures a fee bump is
// evaluated against.
type BumpRequest struct {
	// Method is the bump strategy to evaluate.
	Method Method

	// CurrentFee is the total fee the unconfirmed transaction pays.
	CurrentFee btcutil.Amount

	// CurrentFeeRate is the transaction's current effective fee rate.
	// When unset it is derived from CurrentFee and TxVSize.
	CurrentFeeRate unit.SatPerVByte

	// TxVSize is the virtual size of the unconfirmed transaction.
	TxVSize unit.VByte

	// WalletBalance is the spendable wallet balance available to fund
	// the bump, excluding the transaction being bumped.
	WalletBalance btcutil.Amount

	// ParentOutput is the value of the unconfirmed output the CPFP
	// child would spend. Ignored for RBF.
	ParentOutput btcutil.Amount

	// TargetFeeRate is the desired effective fee rate after the bump.
	TargetFeeRate unit.SatPerVByte
}

// effectiveRate returns the rate the target must beat.
func (r *BumpRequest) effectiveRate() unit.SatPerVByte {
	if !r.CurrentFeeRate.IsZero() {
		return r.CurrentFeeRate
	}

	return unit.NewSatPerVByte(r.CurrentFee, r.TxVSize)
}

// BumpResult reports the economics of a fee bump.
type BumpResult struct {
	// AdditionalCost is the extra amount, beyond the fee already
	// committed, that the bump will cost.
	AdditionalCost btcutil.Amount

	// Affordable reports whether the available funds cover the
	// additional cost, including any reserved change floor.
	Affordable bool

	// WillConsolidate reports whether the bump must pull additional
	// wallet UTXOs in because the parent output alone cannot carry
	// it. Always false for RBF.
	WillConsolidate bool
}

// Check converts an unaffordable result into ErrInsufficientFunds for
// callers that treat affordability as a hard requirement.
func (r *BumpResult) Check() error {
	if !r.Affordable {
		return ErrInsufficientFunds
	}

	return nil
}

// Estimate evaluates a fee-bump request and returns its economics.
// Policy violations (malformed request, target rate not above the
// current rate) are returned as errors; an unaffordable but well-formed
// bump is reported through BumpResult.Affordable instead.
func Estimate(req *BumpRequest) (*BumpResult, error) {
	if req == nil || req.TxVSize == 0 || req.TargetFeeRate.IsZero() {
		return nil, ErrInvalidRequest
	}

	if !req.TargetFeeRate.GreaterThan(req.effectiveRate()) {
		return nil, ErrNotHigherThanCurrent
	}

	switch req.Method {
	case MethodRBF:
		return estimateRBF(req), nil
	case MethodCPFP:
		return estimateCPFP(req), nil
	default:
		return nil, ErrInvalidRequest
	}
}

// estimateRBF prices a replacement: the whole transaction pays the
// target rate, and the fee already committed counts toward it.
func estimateRBF(req *BumpRequest) *BumpResult {
	newTotalFee := req.TargetFeeRate.FeeForVSize(req.TxVSize)

	additionalCost := newTotalFee - req.CurrentFee
	if additionalCost < 0 {
		additionalCost = 0
	}

	return &BumpResult{
		AdditionalCost: additionalCost,
		Affordable:     additionalCost <= req.WalletBalance,
	}
}

// estimateCPFP prices a child transaction of cpfpChildVSize vbytes at
// the target rate rounded up to a whole sat/vb. The child is funded by
// the parent output plus, when that is not enough on its own, wallet
// UTXOs pulled in by consolidation. DustFloor satoshis stay reserved so
// the child's change output remains relayable.
func estimateCPFP(req *BumpRequest) *BumpResult {
	effectiveRate := req.TargetFeeRate.Ceil()
	additionalCost := effectiveRate.FeeForVSize(cpfpChildVSize)

	availableFunds := req.ParentOutput + req.WalletBalance
	required := additionalCost + DustFloor

	return &BumpResult{
		AdditionalCost:  additionalCost,
		Affordable:      availableFunds >= required,
		WillConsolidate: req.ParentOutput <= required,
	}
}
