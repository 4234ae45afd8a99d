// Copyright (c) 2025 The IbisWallet developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package wallet

import (
	"context"
	"errors"
	"strconv"
	"sync"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
	"github.com/lightningnetwork/lnd/fn/v2"

	"github.com/aeonBTC/IbisWallet-sub000/unit"
)

// Orchestrator owns the single active send draft of a flow. It mediates
// user edits, debounces dry-run estimation against the external engine,
// and gates commit on the engine's verdict.
//
// All exported methods are safe for concurrent use; reads return
// immutable snapshots. Exactly one dry-run request is in flight per
// draft: a qualifying edit supersedes any armed debounce window and any
// pending request, and a stale result whose generation tag no longer
// matches the draft is discarded.
type Orchestrator struct {
	cfg    *config
	engine Engine
	coins  CoinSource

	mtx sync.Mutex

	state         State
	mode          Mode
	rows          []Row
	feeRate       unit.SatPerVByte
	coinSelection []wire.OutPoint
	maxSend       bool
	label         fn.Option[string]

	// generation counts qualifying edits. Estimation requests and
	// results are tagged with it; a mismatch means superseded.
	generation  uint64
	estimate    *DryRunResult
	estimateGen uint64

	committing bool

	// utxos is the unspent set last loaded from the coin source. Used
	// for coin-control validation and advisory balance only.
	utxos []Utxo

	ctx    context.Context
	cancel context.CancelFunc
}

// NewOrchestrator creates an orchestrator over the given engine and
// coin source. The draft starts empty; call Restore to pick up a
// persisted draft.
func NewOrchestrator(engine Engine, coins CoinSource,
	opts ...Option) *Orchestrator {

	cfg := defaultConfig()
	for _, opt := range opts {
		opt(cfg)
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Orchestrator{
		cfg:     cfg,
		engine:  engine,
		coins:   coins,
		state:   StateEmpty,
		mode:    ModeSingle,
		rows:    []Row{{}},
		feeRate: cfg.minFeeRate,
		ctx:     ctx,
		cancel:  cancel,
	}
}

// Stop abandons any armed debounce window and pending request. The
// draft itself is untouched; a persisted draft survives for Restore.
func (o *Orchestrator) Stop() {
	o.cancel()
}

// RefreshCoins reloads the unspent set from the coin source. A coin
// selection that no longer resolves against the fresh set is dropped.
func (o *Orchestrator) RefreshCoins(ctx context.Context) error {
	utxos, err := o.coins.ListUnspent(ctx)
	if err != nil {
		return err
	}

	o.mtx.Lock()
	defer o.mtx.Unlock()

	o.utxos = utxos

	if len(o.coinSelection) > 0 {
		if o.validateSelection(o.coinSelection) != nil {
			log.Infof("Coin selection no longer spendable, " +
				"reverting to automatic selection")
			o.coinSelection = nil
			o.noteEdit()
		}
	}

	return nil
}

// Restore loads a persisted draft, if any, and the current unspent set.
// A restored draft re-enters the flow in the editing state; estimation
// re-arms on the first edit or can be forced with Reestimate.
func (o *Orchestrator) Restore(ctx context.Context) error {
	if err := o.RefreshCoins(ctx); err != nil {
		return err
	}

	if o.cfg.store == nil {
		return nil
	}

	record, err := o.cfg.store.LoadDraft()
	switch {
	case errors.Is(err, ErrNoActiveDraft):
		return nil
	case err != nil:
		return err
	}

	o.mtx.Lock()
	defer o.mtx.Unlock()

	o.mode = record.Mode
	o.rows = append([]Row(nil), record.Rows...)
	if len(o.rows) == 0 {
		o.rows = []Row{{}}
	}
	o.feeRate = record.FeeRate
	o.coinSelection = append(
		[]wire.OutPoint(nil), record.CoinSelection...,
	)
	o.maxSend = record.MaxSend
	o.label = record.Label
	o.state = StateEditing

	return nil
}

// Discard clears the draft and its persisted record atomically and
// returns the flow to the empty state.
func (o *Orchestrator) Discard() error {
	o.mtx.Lock()
	defer o.mtx.Unlock()

	if o.committing {
		return ErrCommitInFlight
	}

	return o.clearDraftLocked()
}

// SetRecipient sets the single-mode recipient row from raw user input.
func (o *Orchestrator) SetRecipient(addr, amount string) error {
	o.mtx.Lock()
	defer o.mtx.Unlock()

	if o.mode != ModeSingle {
		return ErrSingleModeOnly
	}

	o.rows[0] = Row{Address: addr, Amount: amount}
	o.noteEdit()

	return nil
}

// SetRow replaces the multi-mode recipient row at the given index.
func (o *Orchestrator) SetRow(index int, row Row) error {
	o.mtx.Lock()
	defer o.mtx.Unlock()

	if o.mode != ModeMulti {
		return ErrSingleModeOnly
	}
	if index < 0 || index >= len(o.rows) {
		return ErrRowOutOfRange
	}

	o.rows[index] = row
	o.noteEdit()

	return nil
}

// AddRow appends an empty multi-mode recipient row.
func (o *Orchestrator) AddRow() error {
	o.mtx.Lock()
	defer o.mtx.Unlock()

	if o.mode != ModeMulti {
		return ErrSingleModeOnly
	}

	o.rows = append(o.rows, Row{})
	o.noteEdit()

	return nil
}

// RemoveRow deletes the multi-mode recipient row at the given index.
// The last remaining row cannot be removed.
func (o *Orchestrator) RemoveRow(index int) error {
	o.mtx.Lock()
	defer o.mtx.Unlock()

	if o.mode != ModeMulti {
		return ErrSingleModeOnly
	}
	if index < 0 || index >= len(o.rows) || len(o.rows) == 1 {
		return ErrRowOutOfRange
	}

	o.rows = append(o.rows[:index], o.rows[index+1:]...)
	o.noteEdit()

	return nil
}

// SwitchMode changes the recipient projection. The new mode is seeded
// once from the old one; the old mode's partial state is discarded.
func (o *Orchestrator) SwitchMode(mode Mode) {
	o.mtx.Lock()
	defer o.mtx.Unlock()

	if mode == o.mode {
		return
	}

	switch mode {
	case ModeMulti:
		// Seed the row list with the single row plus one empty row
		// to edit.
		o.rows = []Row{o.rows[0], {}}

		// Max-send does not carry into multi mode.
		o.maxSend = false

	case ModeSingle:
		// Seed from the first row that already parses, falling back
		// to the first row as typed.
		seed := o.rows[0]
		for _, row := range o.rows {
			if _, err := parseRow(row); err == nil {
				seed = row
				break
			}
		}
		o.rows = []Row{seed}
	}

	o.mode = mode
	o.noteEdit()
}

// SetFeeRate sets the draft fee rate. Rates below the network minimum
// are rejected.
func (o *Orchestrator) SetFeeRate(rate unit.SatPerVByte) error {
	if rate.LessThan(o.cfg.minFeeRate) {
		return ErrFeeRateBelowMinimum
	}

	o.mtx.Lock()
	defer o.mtx.Unlock()

	o.feeRate = rate
	o.applyMaxSendHeuristicLocked()
	o.noteEdit()

	return nil
}

// SetCoinSelection restricts spending to the given outpoints. Every
// outpoint must belong to the loaded unspent set and must not be
// frozen. An empty selection restores automatic coin selection.
func (o *Orchestrator) SetCoinSelection(outpoints []wire.OutPoint) error {
	o.mtx.Lock()
	defer o.mtx.Unlock()

	if err := o.validateSelection(outpoints); err != nil {
		return err
	}

	o.coinSelection = append([]wire.OutPoint(nil), outpoints...)
	o.applyMaxSendHeuristicLocked()
	o.noteEdit()

	return nil
}

// SetMaxSend toggles the sweep-all flag. Enabling it computes an
// instant heuristic amount for the recipient; the engine's exact figure
// replaces it when the next dry-run resolves. Max-send is a single-mode
// operation.
func (o *Orchestrator) SetMaxSend(enabled bool) error {
	o.mtx.Lock()
	defer o.mtx.Unlock()

	if o.mode != ModeSingle {
		return ErrSingleModeOnly
	}
	if o.maxSend == enabled {
		return nil
	}

	o.maxSend = enabled
	if enabled {
		o.applyMaxSendHeuristicLocked()
	}
	o.noteEdit()

	return nil
}

// SetLabel sets the optional transaction memo. Labels do not affect
// estimation, so no dry-run is re-issued.
func (o *Orchestrator) SetLabel(label string) {
	o.mtx.Lock()
	defer o.mtx.Unlock()

	if label == "" {
		o.label = fn.None[string]()
	} else {
		o.label = fn.Some(label)
	}

	o.persistLocked()
}

// CancelEstimation abandons any armed debounce window or pending
// dry-run and returns the flow to the editing state with estimation
// cleared. Callers also use this when the backend connection drops.
func (o *Orchestrator) CancelEstimation() {
	o.mtx.Lock()
	defer o.mtx.Unlock()

	if o.state != StateEstimating && o.state != StateEstimated {
		return
	}

	// Bumping the generation invalidates the armed window and any
	// in-flight request.
	o.generation++
	o.estimate = nil
	o.state = StateEditing
}

// Reestimate re-arms estimation for the current draft contents without
// an edit, for example after Restore or after the backend reconnects.
func (o *Orchestrator) Reestimate() {
	o.mtx.Lock()
	defer o.mtx.Unlock()

	o.noteEdit()
}

// Snapshot returns an immutable view of the draft.
func (o *Orchestrator) Snapshot() *DraftSnapshot {
	o.mtx.Lock()
	defer o.mtx.Unlock()

	return o.snapshotLocked()
}

// CanCommit reports whether the draft may be committed right now: the
// latest dry-run for the current contents succeeded and no commit is in
// flight.
func (o *Orchestrator) CanCommit() bool {
	o.mtx.Lock()
	defer o.mtx.Unlock()

	return o.canCommitLocked()
}

// Commit hands the draft to the engine for signing and broadcast. On
// success the draft clears atomically and the txid is returned. At most
// one commit may be outstanding per draft.
func (o *Orchestrator) Commit(ctx context.Context) (*chainhash.Hash,
	error) {

	req, err := o.beginCommit()
	if err != nil {
		return nil, err
	}

	txid, err := o.engine.CommitSend(ctx, req)

	o.mtx.Lock()
	defer o.mtx.Unlock()

	o.committing = false
	if err != nil {
		o.state = StateFailed
		return nil, err
	}

	if err := o.clearDraftLocked(); err != nil {
		log.Errorf("Unable to clear committed draft: %v", err)
	}
	o.state = StateDone

	log.Infof("Draft committed as %v", txid)

	return txid, nil
}

// CommitPsbt hands the draft to the engine as an unsigned PSBT and
// opens a signing session over it, for watch-only wallets. The draft
// clears atomically; the committed transaction description lives on in
// the session.
func (o *Orchestrator) CommitPsbt(ctx context.Context) (*PsbtSession,
	error) {

	req, err := o.beginCommit()
	if err != nil {
		return nil, err
	}

	payload, err := o.engine.CommitPsbtCreate(ctx, req)

	o.mtx.Lock()
	defer o.mtx.Unlock()

	o.committing = false
	if err != nil {
		o.state = StateFailed
		return nil, err
	}

	session, err := NewPsbtSession(payload, o.engine)
	if err != nil {
		o.state = StateFailed
		return nil, err
	}

	if err := o.clearDraftLocked(); err != nil {
		log.Errorf("Unable to clear committed draft: %v", err)
	}
	o.state = StateDone

	return session, nil
}

// beginCommit validates commit preconditions and flips the draft into
// the committing state, returning the request to hand to the engine.
func (o *Orchestrator) beginCommit() (*DryRunRequest, error) {
	o.mtx.Lock()
	defer o.mtx.Unlock()

	if o.committing {
		return nil, ErrCommitInFlight
	}
	if !o.canCommitLocked() {
		return nil, ErrDraftNotReady
	}

	o.committing = true
	o.state = StateCommitting

	return o.buildRequestLocked(), nil
}

// noteEdit registers a qualifying edit: the generation advances, any
// previous estimate is superseded, the draft persists, and when the
// draft has at least one valid recipient a fresh debounce window is
// armed.
//
// Callers hold o.mtx.
func (o *Orchestrator) noteEdit() {
	o.generation++
	o.estimate = nil

	o.persistLocked()

	recipients := o.validRecipientsLocked()
	if len(recipients) == 0 {
		o.state = StateEditing
		return
	}

	o.state = StateEstimating
	go o.estimateAfterQuiescence(o.generation)
}

// estimateAfterQuiescence waits out the debounce window and, if the
// draft has not changed since, issues the single dry-run request for
// this generation. A result whose generation no longer matches the
// draft is discarded, not merged.
func (o *Orchestrator) estimateAfterQuiescence(generation uint64) {
	select {
	case <-o.cfg.clock.TickAfter(o.cfg.debounceWindow):
	case <-o.ctx.Done():
		return
	}

	o.mtx.Lock()

	// A later edit restarted the window; this one is superseded.
	if generation != o.generation || o.state != StateEstimating {
		o.mtx.Unlock()
		return
	}

	req := o.buildRequestLocked()
	o.mtx.Unlock()

	result, err := o.engine.DryRun(o.ctx, req)
	if err != nil {
		// A request-level failure, including a timeout inside the
		// engine, is an error result, never a crash.
		result = &DryRunResult{Err: err}
	}

	o.mtx.Lock()
	defer o.mtx.Unlock()

	// Stale result: the draft moved on while the request was in
	// flight.
	if generation != o.generation || o.state != StateEstimating {
		log.Debugf("Discarding stale dry-run result for "+
			"generation %d (current %d)", generation,
			o.generation)
		return
	}

	o.estimate = result
	o.estimateGen = generation
	o.state = StateEstimated

	// Under max-send the engine's exact recipient amount replaces the
	// heuristic. The replacement does not count as an edit; applying
	// the same result again is a no-op.
	if o.maxSend && result.Err == nil {
		exact := strconv.FormatInt(
			int64(result.RecipientAmount), 10,
		)
		if o.rows[0].Amount != exact {
			o.rows[0].Amount = exact
			o.persistLocked()
		}
	}
}

// buildRequestLocked projects the draft into the request handed to the
// engine.
//
// Callers hold o.mtx.
func (o *Orchestrator) buildRequestLocked() *DryRunRequest {
	return &DryRunRequest{
		Recipients: o.validRecipientsLocked(),
		FeeRate:    o.feeRate,
		CoinSelection: append(
			[]wire.OutPoint(nil), o.coinSelection...,
		),
		MaxSend: o.maxSend,
		Label:   o.label,
	}
}

// validRecipientsLocked returns the rows that currently parse to valid
// recipients, in row order.
//
// Callers hold o.mtx.
func (o *Orchestrator) validRecipientsLocked() []Recipient {
	recipients := make([]Recipient, 0, len(o.rows))
	for _, row := range o.rows {
		recipient, err := parseRow(row)
		if err != nil {
			continue
		}

		recipients = append(recipients, recipient)
	}

	return recipients
}

// canCommitLocked reports commit eligibility: the latest dry-run
// matches the current generation and succeeded, the recipient count
// fits the mode, every row parses, and no commit is outstanding.
//
// Callers hold o.mtx.
func (o *Orchestrator) canCommitLocked() bool {
	if o.committing {
		return false
	}
	if o.state != StateEstimated || o.estimate == nil {
		return false
	}
	if o.estimateGen != o.generation || o.estimate.Err != nil {
		return false
	}

	recipients := o.validRecipientsLocked()
	if len(recipients) != len(o.rows) {
		return false
	}

	switch o.mode {
	case ModeSingle:
		return len(recipients) == 1
	case ModeMulti:
		return len(recipients) >= 2
	default:
		return false
	}
}

// snapshotLocked materializes an immutable view of the draft.
//
// Callers hold o.mtx.
func (o *Orchestrator) snapshotLocked() *DraftSnapshot {
	recipients := o.validRecipientsLocked()

	var total btcutil.Amount
	for _, recipient := range recipients {
		total += recipient.Amount
	}

	var estimate *DryRunResult
	if o.estimate != nil {
		copied := *o.estimate
		estimate = &copied
	}

	return &DraftSnapshot{
		Generation: o.generation,
		State:      o.state,
		Mode:       o.mode,
		Rows:       append([]Row(nil), o.rows...),
		Recipients: recipients,
		FeeRate:    o.feeRate,
		CoinSelection: append(
			[]wire.OutPoint(nil), o.coinSelection...,
		),
		MaxSend:          o.maxSend,
		Label:            o.label,
		TotalSending:     total,
		SpendableBalance: o.spendableLocked(),
		Estimate:         estimate,
		CanCommit:        o.canCommitLocked(),
	}
}

// spendableLocked sums the advisory spendable balance: the explicit
// coin selection when one is set, otherwise every confirmed, unfrozen
// coin.
//
// Callers hold o.mtx.
func (o *Orchestrator) spendableLocked() btcutil.Amount {
	if len(o.coinSelection) > 0 {
		selected := make(
			map[wire.OutPoint]struct{}, len(o.coinSelection),
		)
		for _, outpoint := range o.coinSelection {
			selected[outpoint] = struct{}{}
		}

		var total btcutil.Amount
		for _, utxo := range o.utxos {
			if _, ok := selected[utxo.OutPoint]; ok {
				total += utxo.Amount
			}
		}

		return total
	}

	var total btcutil.Amount
	for _, utxo := range o.utxos {
		if utxo.Confirmed && !utxo.Frozen {
			total += utxo.Amount
		}
	}

	return total
}

// applyMaxSendHeuristicLocked recomputes the instant max-send estimate:
// the advisory spendable balance less the fee for the assumed sweep
// size. The engine's exact figure replaces it once the dry-run
// resolves.
//
// Callers hold o.mtx.
func (o *Orchestrator) applyMaxSendHeuristicLocked() {
	if !o.maxSend || o.mode != ModeSingle {
		return
	}

	spendable := o.spendableLocked()
	fee := o.feeRate.FeeForVSize(o.cfg.heuristicVSize)

	amount := spendable - fee
	if amount < 0 {
		amount = 0
	}

	o.rows[0].Amount = strconv.FormatInt(int64(amount), 10)
}

// validateSelection checks a coin-control selection against the loaded
// unspent set.
//
// Callers hold o.mtx.
func (o *Orchestrator) validateSelection(
	outpoints []wire.OutPoint) error {

	byOutpoint := make(map[wire.OutPoint]*Utxo, len(o.utxos))
	for i := range o.utxos {
		byOutpoint[o.utxos[i].OutPoint] = &o.utxos[i]
	}

	for _, outpoint := range outpoints {
		utxo, ok := byOutpoint[outpoint]
		if !ok {
			return ErrUnknownCoinSelected
		}
		if utxo.Frozen {
			return ErrFrozenCoinSelected
		}
	}

	return nil
}

// persistLocked writes the draft record through the store, when one is
// attached. Persistence failures are logged, not fatal: the in-memory
// draft remains authoritative.
//
// Callers hold o.mtx.
func (o *Orchestrator) persistLocked() {
	if o.cfg.store == nil {
		return
	}

	record := &DraftRecord{
		Mode:          o.mode,
		Rows:          append([]Row(nil), o.rows...),
		FeeRate:       o.feeRate,
		CoinSelection: append([]wire.OutPoint(nil), o.coinSelection...),
		MaxSend:       o.maxSend,
		Label:         o.label,
	}

	if err := o.cfg.store.SaveDraft(record); err != nil {
		log.Warnf("Unable to persist draft: %v", err)
	}
}

// clearDraftLocked resets the draft contents and removes the persisted
// record.
//
// Callers hold o.mtx.
func (o *Orchestrator) clearDraftLocked() error {
	o.generation++
	o.rows = []Row{{}}
	o.coinSelection = nil
	o.maxSend = false
	o.label = fn.None[string]()
	o.estimate = nil
	o.state = StateEmpty

	if o.cfg.store != nil {
		return o.cfg.store.ClearDraft()
	}

	return nil
}
