// Copyright (c) 2025 The IbisWallet developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package wallet

import (
	"bytes"
	"context"
	"sync"

	"github.com/btcsuite/btcd/blockchain"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/btcutil/psbt"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"

	"github.com/aeonBTC/IbisWallet-sub000/unit"
)

// PsbtPhase is the position of a signing session in its handshake. A
// session moves strictly forward; the only backward-looking affordance
// is retrying a signed payload that failed to parse.
type PsbtPhase uint8

const (
	// PhaseExporting holds the unsigned payload, ready for transport
	// to the external signer.
	PhaseExporting PsbtPhase = iota

	// PhaseAwaitingSigned waits for the signer's return payload.
	PhaseAwaitingSigned

	// PhaseConfirmingBroadcast holds the signed transaction and its
	// reconciled totals, awaiting the user's final confirmation.
	PhaseConfirmingBroadcast

	// PhaseBroadcasting has handed the signed transaction to the
	// engine. From here the session cannot be canceled.
	PhaseBroadcasting

	// PhaseDone is a session whose broadcast succeeded.
	PhaseDone

	// PhaseFailed is a terminal failure: canceled, or broadcast
	// rejected. The flow must be restarted from a fresh draft.
	PhaseFailed
)

// String returns the phase name.
func (p PsbtPhase) String() string {
	switch p {
	case PhaseExporting:
		return "exporting"
	case PhaseAwaitingSigned:
		return "awaiting_signed"
	case PhaseConfirmingBroadcast:
		return "confirming_broadcast"
	case PhaseBroadcasting:
		return "broadcasting"
	case PhaseDone:
		return "done"
	case PhaseFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// SignedTotals are the final numbers of the signed transaction,
// recomputed from the signer's payload rather than trusted from the
// original draft. A signer may alter fee or change; these figures are
// what will actually be broadcast.
type SignedTotals struct {
	// TotalInput is the sum of the spent input values.
	TotalInput btcutil.Amount

	// TotalOutput is the sum of the output values.
	TotalOutput btcutil.Amount

	// Fee is TotalInput less TotalOutput.
	Fee btcutil.Amount

	// VSize is the virtual size of the signed transaction.
	VSize unit.VByte

	// FeeRate is the effective fee rate of the signed transaction.
	FeeRate unit.SatPerVByte
}

// PsbtSession ferries an unsigned transaction to an external signer and
// reconciles the signed result before broadcast. It is created on a
// watch-only commit and discarded once done, failed or canceled.
type PsbtSession struct {
	broadcaster Broadcaster

	mtx sync.Mutex

	phase PsbtPhase

	// unsignedPayload is the serialized unsigned PSBT produced by the
	// engine.
	unsignedPayload []byte

	// prevOuts maps each input outpoint of the unsigned transaction
	// to the output it spends, taken from the unsigned packet. Used
	// to value the inputs of the signed return.
	prevOuts map[wire.OutPoint]*wire.TxOut

	// signedTx is the fully signed transaction extracted from the
	// signer's payload, nil until one has been accepted.
	signedTx *wire.MsgTx

	// signedPayload is the raw serialized form of signedTx as handed
	// to the engine for broadcast.
	signedPayload []byte

	totals *SignedTotals
	txid   *chainhash.Hash
	err    error
}

// NewPsbtSession opens a signing session over the engine's unsigned
// PSBT payload.
func NewPsbtSession(unsignedPayload []byte,
	broadcaster Broadcaster) (*PsbtSession, error) {

	packet, err := psbt.NewFromRawBytes(
		bytes.NewReader(unsignedPayload), false,
	)
	if err != nil {
		return nil, err
	}

	prevOuts := make(
		map[wire.OutPoint]*wire.TxOut, len(packet.UnsignedTx.TxIn),
	)
	for i, txIn := range packet.UnsignedTx.TxIn {
		input := packet.Inputs[i]

		switch {
		case input.WitnessUtxo != nil:
			prevOuts[txIn.PreviousOutPoint] = input.WitnessUtxo

		case input.NonWitnessUtxo != nil:
			prevTx := input.NonWitnessUtxo
			idx := txIn.PreviousOutPoint.Index
			if idx >= uint32(len(prevTx.TxOut)) {
				return nil, psbt.ErrInvalidPsbtFormat
			}
			prevOuts[txIn.PreviousOutPoint] = prevTx.TxOut[idx]

		default:
			return nil, psbt.ErrInvalidPsbtFormat
		}
	}

	return &PsbtSession{
		broadcaster:     broadcaster,
		phase:           PhaseExporting,
		unsignedPayload: unsignedPayload,
		prevOuts:        prevOuts,
	}, nil
}

// Phase returns the current handshake phase.
func (s *PsbtSession) Phase() PsbtPhase {
	s.mtx.Lock()
	defer s.mtx.Unlock()

	return s.phase
}

// Err returns the terminal error of a failed session, nil otherwise.
func (s *PsbtSession) Err() error {
	s.mtx.Lock()
	defer s.mtx.Unlock()

	return s.err
}

// Export returns the unsigned payload for transport to the signer and
// advances the session to awaiting the signed return. Exporting again
// while still awaiting is legal and returns the same payload, so the
// payload can be re-displayed or saved through multiple channels.
func (s *PsbtSession) Export() ([]byte, error) {
	s.mtx.Lock()
	defer s.mtx.Unlock()

	if s.phase != PhaseExporting && s.phase != PhaseAwaitingSigned {
		return nil, ErrInvalidPhase
	}

	s.phase = PhaseAwaitingSigned

	payload := make([]byte, len(s.unsignedPayload))
	copy(payload, s.unsignedPayload)

	return payload, nil
}

// AcceptSignedPayload ingests the signer's return: either a signed
// PSBT or a finalized raw transaction. On success the session advances
// to broadcast confirmation with totals recomputed from the signed
// payload. An unparseable payload returns
// ErrUnparseableSignedPayload and leaves the session awaiting, so the
// user can retry with a corrected payload.
func (s *PsbtSession) AcceptSignedPayload(payload []byte) error {
	s.mtx.Lock()
	defer s.mtx.Unlock()

	if s.phase != PhaseAwaitingSigned {
		return ErrInvalidPhase
	}

	signedTx, err := s.extractSignedTx(payload)
	if err != nil {
		return err
	}

	totals, err := s.reconcileTotals(signedTx)
	if err != nil {
		return err
	}

	var raw bytes.Buffer
	if err := signedTx.Serialize(&raw); err != nil {
		return ErrUnparseableSignedPayload
	}

	s.signedTx = signedTx
	s.signedPayload = raw.Bytes()
	s.totals = totals
	s.phase = PhaseConfirmingBroadcast

	return nil
}

// extractSignedTx parses the signer's payload as a PSBT first, then as
// a raw wire transaction.
func (s *PsbtSession) extractSignedTx(payload []byte) (*wire.MsgTx,
	error) {

	packet, err := psbt.NewFromRawBytes(bytes.NewReader(payload), false)
	if err == nil {
		if err := psbt.MaybeFinalizeAll(packet); err != nil {
			return nil, ErrUnparseableSignedPayload
		}

		signedTx, err := psbt.Extract(packet)
		if err != nil {
			return nil, ErrUnparseableSignedPayload
		}

		return signedTx, nil
	}

	// Some signers return the finalized raw transaction instead of a
	// PSBT.
	signedTx := &wire.MsgTx{}
	err = signedTx.Deserialize(bytes.NewReader(payload))
	if err != nil || len(signedTx.TxIn) == 0 {
		return nil, ErrUnparseableSignedPayload
	}

	return signedTx, nil
}

// reconcileTotals values the signed transaction against the unsigned
// packet's inputs. Every input of the signed transaction must spend an
// outpoint of the unsigned one; anything else is a different
// transaction and is rejected.
func (s *PsbtSession) reconcileTotals(signedTx *wire.MsgTx) (
	*SignedTotals, error) {

	var totalInput btcutil.Amount
	for _, txIn := range signedTx.TxIn {
		prevOut, ok := s.prevOuts[txIn.PreviousOutPoint]
		if !ok {
			return nil, ErrForeignTransaction
		}

		totalInput += btcutil.Amount(prevOut.Value)
	}

	var totalOutput btcutil.Amount
	for _, txOut := range signedTx.TxOut {
		totalOutput += btcutil.Amount(txOut.Value)
	}

	if totalOutput > totalInput {
		return nil, ErrForeignTransaction
	}

	fee := totalInput - totalOutput
	weight := blockchain.GetTransactionWeight(btcutil.NewTx(signedTx))
	vsize := unit.WeightUnit(weight).ToVB()

	return &SignedTotals{
		TotalInput:  totalInput,
		TotalOutput: totalOutput,
		Fee:         fee,
		VSize:       vsize,
		FeeRate:     unit.NewSatPerVByte(fee, vsize),
	}, nil
}

// Totals returns the reconciled totals of the signed transaction, or
// ErrInvalidPhase before a signed payload has been accepted.
func (s *PsbtSession) Totals() (*SignedTotals, error) {
	s.mtx.Lock()
	defer s.mtx.Unlock()

	if s.totals == nil {
		return nil, ErrInvalidPhase
	}

	totals := *s.totals

	return &totals, nil
}

// ConfirmBroadcast hands the signed transaction to the engine. Legal
// only from the confirmation phase. A broadcast failure is terminal
// for the session: re-signing with different parameters would
// invalidate the existing signatures, so the flow must be restarted
// explicitly.
func (s *PsbtSession) ConfirmBroadcast(ctx context.Context) (
	*chainhash.Hash, error) {

	s.mtx.Lock()
	if s.phase != PhaseConfirmingBroadcast {
		s.mtx.Unlock()
		return nil, ErrInvalidPhase
	}

	s.phase = PhaseBroadcasting
	payload := s.signedPayload
	s.mtx.Unlock()

	txid, err := s.broadcaster.BroadcastSigned(ctx, payload)

	s.mtx.Lock()
	defer s.mtx.Unlock()

	if err != nil {
		log.Errorf("Broadcast of signed transaction failed: %v", err)

		s.phase = PhaseFailed
		s.err = ErrBroadcastFailed

		return nil, ErrBroadcastFailed
	}

	s.phase = PhaseDone
	s.txid = txid

	log.Infof("Signed transaction broadcast as %v", txid)

	return txid, nil
}

// Txid returns the broadcast transaction id once the session is done.
func (s *PsbtSession) Txid() (*chainhash.Hash, error) {
	s.mtx.Lock()
	defer s.mtx.Unlock()

	if s.phase != PhaseDone {
		return nil, ErrInvalidPhase
	}

	return s.txid, nil
}

// Cancel abandons the session. Legal from any phase before broadcast
// has started; once the signed transaction has been handed to the
// network the session is irrevocable.
func (s *PsbtSession) Cancel() error {
	s.mtx.Lock()
	defer s.mtx.Unlock()

	switch s.phase {
	case PhaseExporting, PhaseAwaitingSigned, PhaseConfirmingBroadcast:
		s.phase = PhaseFailed
		s.err = ErrSessionCanceled

		return nil

	case PhaseBroadcasting, PhaseDone:
		return ErrBroadcastIrrevocable

	default:
		return ErrInvalidPhase
	}
}
