// Copyright (c) 2025 The IbisWallet developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package wallet

import (
	"context"
	"testing"
	"time"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
	"github.com/lightningnetwork/lnd/clock"
	"github.com/stretchr/testify/require"

	"github.com/aeonBTC/IbisWallet-sub000/unit"
)

const (
	// testAddrP2WPKH is a valid mainnet bech32 address used as a
	// recipient in tests.
	testAddrP2WPKH = "bc1qw508d6qejxtdg4y5r3zarvary0c5xw7kv8f3t4"

	// testAddrP2PKH is a valid mainnet base58 address.
	testAddrP2PKH = "1A1zP1eP5QGefi2DMPTfTL5SLmv7DivfNa"

	// testTimeout bounds every wait in these tests.
	testTimeout = 5 * time.Second
)

// mockEngine implements Engine with test-controlled resolution: every
// DryRun call signals its request on calls and then blocks until the
// test pushes a result onto results, so the test decides exactly when
// and in which order estimation requests resolve.
type mockEngine struct {
	calls   chan *DryRunRequest
	results chan *DryRunResult

	commitSend func(*DryRunRequest) (*chainhash.Hash, error)
}

func newMockEngine() *mockEngine {
	return &mockEngine{
		calls:   make(chan *DryRunRequest, 10),
		results: make(chan *DryRunResult, 10),
	}
}

func (m *mockEngine) DryRun(ctx context.Context,
	req *DryRunRequest) (*DryRunResult, error) {

	m.calls <- req

	select {
	case result := <-m.results:
		return result, nil

	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (m *mockEngine) CommitSend(_ context.Context,
	req *DryRunRequest) (*chainhash.Hash, error) {

	if m.commitSend != nil {
		return m.commitSend(req)
	}

	return &chainhash.Hash{1}, nil
}

func (m *mockEngine) CommitPsbtCreate(context.Context,
	*DryRunRequest) ([]byte, error) {

	return nil, ErrBackendUnavailable
}

func (m *mockEngine) BroadcastSigned(context.Context,
	[]byte) (*chainhash.Hash, error) {

	return nil, ErrBackendUnavailable
}

// mockCoinSource serves a fixed unspent set.
type mockCoinSource struct {
	utxos []Utxo
}

func (m *mockCoinSource) ListUnspent(context.Context) ([]Utxo, error) {
	return m.utxos, nil
}

// testUtxos returns the canonical unspent set used across tests: two
// spendable coins worth 110_000 sats in total, one frozen coin and one
// unconfirmed coin.
func testUtxos() []Utxo {
	return []Utxo{
		{
			OutPoint: wire.OutPoint{
				Hash:  chainhash.Hash{1},
				Index: 0,
			},
			Amount:    60_000,
			Confirmed: true,
		},
		{
			OutPoint: wire.OutPoint{
				Hash:  chainhash.Hash{1},
				Index: 1,
			},
			Amount:    50_000,
			Confirmed: true,
		},
		{
			OutPoint: wire.OutPoint{
				Hash:  chainhash.Hash{2},
				Index: 0,
			},
			Amount:    30_000,
			Confirmed: true,
			Frozen:    true,
		},
		{
			OutPoint: wire.OutPoint{
				Hash:  chainhash.Hash{3},
				Index: 0,
			},
			Amount: 40_000,
		},
	}
}

// testHarness bundles an orchestrator with its mocked collaborators and
// a test clock whose tick registrations are observable.
type testHarness struct {
	t      *testing.T
	engine *mockEngine
	clock  *clock.TestClock
	ticks  chan time.Duration
	start  time.Time
	o      *Orchestrator
}

func newTestHarness(t *testing.T, opts ...Option) *testHarness {
	t.Helper()

	engine := newMockEngine()
	coins := &mockCoinSource{utxos: testUtxos()}

	start := time.Unix(1_700_000_000, 0)
	ticks := make(chan time.Duration, 10)
	testClock := clock.NewTestClockWithTickSignal(start, ticks)

	opts = append([]Option{WithClock(testClock)}, opts...)
	o := NewOrchestrator(engine, coins, opts...)
	t.Cleanup(o.Stop)

	require.NoError(t, o.RefreshCoins(context.Background()))

	return &testHarness{
		t:      t,
		engine: engine,
		clock:  testClock,
		ticks:  ticks,
		start:  start,
		o:      o,
	}
}

// waitTickArmed blocks until a debounce window has been armed.
func (h *testHarness) waitTickArmed() {
	h.t.Helper()

	select {
	case <-h.ticks:
	case <-time.After(testTimeout):
		h.t.Fatal("debounce window never armed")
	}
}

// expire advances the test clock past the debounce window.
func (h *testHarness) expire() {
	h.start = h.start.Add(defaultDebounceWindow + time.Millisecond)
	h.clock.SetTime(h.start)
}

// waitDryRun blocks until a dry-run request reaches the engine and
// returns it.
func (h *testHarness) waitDryRun() *DryRunRequest {
	h.t.Helper()

	select {
	case req := <-h.engine.calls:
		return req
	case <-time.After(testTimeout):
		h.t.Fatal("dry-run request never issued")
		return nil
	}
}

// resolve pushes a result for a blocked dry-run call and waits for the
// orchestrator to apply or discard it.
func (h *testHarness) resolve(result *DryRunResult) {
	h.t.Helper()

	h.engine.results <- result
}

// waitState polls until the draft reaches the wanted state.
func (h *testHarness) waitState(want State) {
	h.t.Helper()

	require.Eventually(h.t, func() bool {
		return h.o.Snapshot().State == want
	}, testTimeout, time.Millisecond)
}

// estimateDraft runs one full estimation round for the current draft
// contents, resolving with the given result.
func (h *testHarness) estimateDraft(result *DryRunResult) {
	h.t.Helper()

	h.waitTickArmed()
	h.expire()
	h.waitDryRun()
	h.resolve(result)
	h.waitState(StateEstimated)
}

// TestDebounceCoalescesEdits asserts that a burst of edits inside the
// debounce window produces exactly one dry-run request, carrying the
// last edit's values.
func TestDebounceCoalescesEdits(t *testing.T) {
	t.Parallel()

	h := newTestHarness(t)

	// Three rapid edits. Each one arms a fresh window.
	require.NoError(t, h.o.SetRecipient(testAddrP2WPKH, "10000"))
	h.waitTickArmed()
	require.NoError(t, h.o.SetRecipient(testAddrP2WPKH, "20000"))
	h.waitTickArmed()
	require.NoError(t, h.o.SetRecipient(testAddrP2WPKH, "30000"))
	h.waitTickArmed()

	// Let every armed window expire at once. Only the last edit's
	// window is still current; the two superseded ones must not reach
	// the engine.
	h.expire()

	req := h.waitDryRun()
	require.Len(t, req.Recipients, 1)
	require.Equal(t, btcutil.Amount(30_000), req.Recipients[0].Amount)

	h.resolve(&DryRunResult{
		Fee:             1500,
		VSize:           141,
		RecipientAmount: 30_000,
	})
	h.waitState(StateEstimated)

	select {
	case req := <-h.engine.calls:
		t.Fatalf("unexpected extra dry-run request: %v", req)
	case <-time.After(20 * time.Millisecond):
	}
}

// TestStaleResultDiscarded asserts that a dry-run result arriving after
// the draft has moved on is discarded rather than merged.
func TestStaleResultDiscarded(t *testing.T) {
	t.Parallel()

	h := newTestHarness(t)

	require.NoError(t, h.o.SetRecipient(testAddrP2WPKH, "10000"))
	h.waitTickArmed()
	h.expire()

	// First request is now blocked inside the engine.
	h.waitDryRun()

	// The draft moves on while the request is in flight.
	require.NoError(t, h.o.SetRecipient(testAddrP2WPKH, "20000"))
	h.waitTickArmed()

	// Resolve the superseded request. Its result must not surface.
	h.resolve(&DryRunResult{Fee: 111, RecipientAmount: 10_000})

	// Resolve the current request normally.
	h.expire()
	h.waitDryRun()
	h.resolve(&DryRunResult{Fee: 222, RecipientAmount: 20_000})

	h.waitState(StateEstimated)

	snapshot := h.o.Snapshot()
	require.NotNil(t, snapshot.Estimate)
	require.Equal(t, btcutil.Amount(222), snapshot.Estimate.Fee)
}

// TestMaxSendHeuristicAndExactAmount asserts that enabling max-send
// installs an instant heuristic amount, that the engine's exact figure
// replaces it exactly once, and that re-resolving with the same figure
// is idempotent.
func TestMaxSendHeuristicAndExactAmount(t *testing.T) {
	t.Parallel()

	h := newTestHarness(t)

	require.NoError(t, h.o.SetRecipient(testAddrP2WPKH, "10000"))
	h.waitTickArmed()

	require.NoError(t, h.o.SetMaxSend(true))
	h.waitTickArmed()

	// Spendable balance is 110_000 (frozen and unconfirmed coins
	// excluded); at the 1 sat/vb minimum rate the assumed sweep costs
	// 150 sats.
	snapshot := h.o.Snapshot()
	require.True(t, snapshot.MaxSend)
	require.Equal(t, "109850", snapshot.Rows[0].Amount)

	// The engine's exact amount replaces the heuristic.
	h.expire()
	h.waitDryRun()
	h.resolve(&DryRunResult{Fee: 1000, RecipientAmount: 49_000})
	h.waitState(StateEstimated)

	snapshot = h.o.Snapshot()
	require.Equal(t, "49000", snapshot.Rows[0].Amount)
	generation := snapshot.Generation

	// A second resolution with the same figure changes nothing.
	h.o.Reestimate()
	h.estimateDraft(&DryRunResult{Fee: 1000, RecipientAmount: 49_000})

	snapshot = h.o.Snapshot()
	require.Equal(t, "49000", snapshot.Rows[0].Amount)
	require.Equal(t, generation+1, snapshot.Generation)
}

// TestMultiRecipientRowCounting asserts that an invalid row is excluded
// from the valid recipient count and the sending total but remains
// editable, and that one further valid row raises the count by exactly
// one.
func TestMultiRecipientRowCounting(t *testing.T) {
	t.Parallel()

	h := newTestHarness(t)
	h.o.SwitchMode(ModeMulti)

	require.NoError(t, h.o.SetRow(0, Row{
		Address: testAddrP2WPKH,
		Amount:  "10000",
	}))
	require.NoError(t, h.o.SetRow(1, Row{
		Address: "bc1qnotanaddress",
		Amount:  "5000",
	}))

	snapshot := h.o.Snapshot()
	require.Equal(t, 1, snapshot.ValidRecipientCount())
	require.Equal(t, btcutil.Amount(10_000), snapshot.TotalSending)
	require.Len(t, snapshot.Rows, 2)

	// The malformed row stays editable: fixing it in place counts it.
	require.NoError(t, h.o.SetRow(1, Row{
		Address: testAddrP2PKH,
		Amount:  "5000",
	}))

	snapshot = h.o.Snapshot()
	require.Equal(t, 2, snapshot.ValidRecipientCount())
	require.Equal(t, btcutil.Amount(15_000), snapshot.TotalSending)

	// One further valid row raises the count by exactly one.
	require.NoError(t, h.o.AddRow())
	require.NoError(t, h.o.SetRow(2, Row{
		Address: testAddrP2WPKH,
		Amount:  "7000",
	}))

	snapshot = h.o.Snapshot()
	require.Equal(t, 3, snapshot.ValidRecipientCount())
	require.Equal(t, btcutil.Amount(22_000), snapshot.TotalSending)
}

// TestModeSwitchSeeding asserts that switching projections seeds the
// new mode from the old one exactly once.
func TestModeSwitchSeeding(t *testing.T) {
	t.Parallel()

	h := newTestHarness(t)

	require.NoError(t, h.o.SetRecipient(testAddrP2WPKH, "10000"))

	// Single to multi: the single row carries over, plus one empty
	// row to edit.
	h.o.SwitchMode(ModeMulti)

	snapshot := h.o.Snapshot()
	require.Equal(t, ModeMulti, snapshot.Mode)
	require.Len(t, snapshot.Rows, 2)
	require.Equal(t, testAddrP2WPKH, snapshot.Rows[0].Address)
	require.Equal(t, Row{}, snapshot.Rows[1])

	// Multi back to single: the first valid row wins.
	require.NoError(t, h.o.SetRow(1, Row{
		Address: testAddrP2PKH,
		Amount:  "5000",
	}))
	h.o.SwitchMode(ModeSingle)

	snapshot = h.o.Snapshot()
	require.Equal(t, ModeSingle, snapshot.Mode)
	require.Len(t, snapshot.Rows, 1)
	require.Equal(t, testAddrP2WPKH, snapshot.Rows[0].Address)

	// Single-mode only operations are rejected in multi mode.
	h.o.SwitchMode(ModeMulti)
	require.ErrorIs(t, h.o.SetMaxSend(true), ErrSingleModeOnly)
	require.ErrorIs(
		t, h.o.SetRecipient(testAddrP2WPKH, "1"), ErrSingleModeOnly,
	)
}

// TestFeeRateFloor asserts that rates below the configured minimum are
// rejected.
func TestFeeRateFloor(t *testing.T) {
	t.Parallel()

	h := newTestHarness(t)

	below, err := unit.ParseSatPerVByte("0.5")
	require.NoError(t, err)
	require.ErrorIs(
		t, h.o.SetFeeRate(below), ErrFeeRateBelowMinimum,
	)

	ok, err := unit.ParseSatPerVByte("2.5")
	require.NoError(t, err)
	require.NoError(t, h.o.SetFeeRate(ok))

	require.True(t, h.o.Snapshot().FeeRate.Equal(ok))
}

// TestCoinSelectionValidation asserts that coin control only accepts
// known, unfrozen coins, and that the advisory balance follows the
// selection.
func TestCoinSelectionValidation(t *testing.T) {
	t.Parallel()

	h := newTestHarness(t)

	// Unknown outpoint.
	err := h.o.SetCoinSelection([]wire.OutPoint{{
		Hash:  chainhash.Hash{9},
		Index: 9,
	}})
	require.ErrorIs(t, err, ErrUnknownCoinSelected)

	// Frozen coin.
	err = h.o.SetCoinSelection([]wire.OutPoint{{
		Hash:  chainhash.Hash{2},
		Index: 0,
	}})
	require.ErrorIs(t, err, ErrFrozenCoinSelected)

	// Valid selection narrows the advisory balance.
	selection := []wire.OutPoint{{Hash: chainhash.Hash{1}, Index: 0}}
	require.NoError(t, h.o.SetCoinSelection(selection))

	snapshot := h.o.Snapshot()
	require.Equal(t, selection, snapshot.CoinSelection)
	require.Equal(t, btcutil.Amount(60_000), snapshot.SpendableBalance)

	// Clearing the selection restores the full spendable balance.
	require.NoError(t, h.o.SetCoinSelection(nil))
	require.Equal(
		t, btcutil.Amount(110_000),
		h.o.Snapshot().SpendableBalance,
	)
}

// TestCommitGating asserts that commit is refused until an estimate for
// the current draft contents has succeeded, that a successful commit
// clears the draft, and that commit is not reentrant.
func TestCommitGating(t *testing.T) {
	t.Parallel()

	h := newTestHarness(t)
	ctx := context.Background()

	// Nothing to commit yet.
	require.False(t, h.o.CanCommit())
	_, err := h.o.Commit(ctx)
	require.ErrorIs(t, err, ErrDraftNotReady)

	require.NoError(t, h.o.SetRecipient(testAddrP2WPKH, "10000"))
	h.estimateDraft(&DryRunResult{
		Fee:             1410,
		VSize:           141,
		RecipientAmount: 10_000,
	})
	require.True(t, h.o.CanCommit())

	// An edit invalidates the estimate until the next one resolves.
	require.NoError(t, h.o.SetRecipient(testAddrP2WPKH, "20000"))
	require.False(t, h.o.CanCommit())
	h.estimateDraft(&DryRunResult{
		Fee:             1410,
		VSize:           141,
		RecipientAmount: 20_000,
	})
	require.True(t, h.o.CanCommit())

	// A failed estimate blocks commit.
	h.o.Reestimate()
	h.estimateDraft(&DryRunResult{Err: ErrInsufficientFunds})
	require.False(t, h.o.CanCommit())

	// Back to a passing estimate, then commit for real.
	h.o.Reestimate()
	h.estimateDraft(&DryRunResult{
		Fee:             1410,
		VSize:           141,
		RecipientAmount: 20_000,
	})

	// Block the first commit inside the engine to prove the second
	// one is refused.
	commitGate := make(chan struct{})
	commitEntered := make(chan struct{})
	h.engine.commitSend = func(*DryRunRequest) (*chainhash.Hash,
		error) {

		close(commitEntered)
		<-commitGate
		return &chainhash.Hash{7}, nil
	}

	commitErr := make(chan error, 1)
	go func() {
		_, err := h.o.Commit(ctx)
		commitErr <- err
	}()

	select {
	case <-commitEntered:
	case <-time.After(testTimeout):
		t.Fatal("commit never reached the engine")
	}

	_, err = h.o.Commit(ctx)
	require.ErrorIs(t, err, ErrCommitInFlight)

	close(commitGate)
	require.NoError(t, <-commitErr)

	// Success clears the draft atomically.
	snapshot := h.o.Snapshot()
	require.Equal(t, StateDone, snapshot.State)
	require.Equal(t, []Row{{}}, snapshot.Rows)
	require.False(t, snapshot.CanCommit)
}

// TestCommitFailureKeepsDraft asserts that a failed commit leaves the
// draft intact so the user can edit and retry.
func TestCommitFailureKeepsDraft(t *testing.T) {
	t.Parallel()

	h := newTestHarness(t)

	require.NoError(t, h.o.SetRecipient(testAddrP2WPKH, "10000"))
	h.estimateDraft(&DryRunResult{Fee: 1410, RecipientAmount: 10_000})

	h.engine.commitSend = func(*DryRunRequest) (*chainhash.Hash,
		error) {

		return nil, ErrBackendUnavailable
	}

	_, err := h.o.Commit(context.Background())
	require.ErrorIs(t, err, ErrBackendUnavailable)

	snapshot := h.o.Snapshot()
	require.Equal(t, StateFailed, snapshot.State)
	require.Equal(t, testAddrP2WPKH, snapshot.Rows[0].Address)

	// Editing resumes the flow.
	require.NoError(t, h.o.SetRecipient(testAddrP2WPKH, "9000"))
	require.Equal(t, StateEstimating, h.o.Snapshot().State)
}

// TestCancelEstimation asserts that canceling estimation returns the
// flow to editing with the estimate cleared and abandons the armed
// window.
func TestCancelEstimation(t *testing.T) {
	t.Parallel()

	h := newTestHarness(t)

	require.NoError(t, h.o.SetRecipient(testAddrP2WPKH, "10000"))
	h.waitTickArmed()

	h.o.CancelEstimation()

	snapshot := h.o.Snapshot()
	require.Equal(t, StateEditing, snapshot.State)
	require.Nil(t, snapshot.Estimate)

	// The abandoned window must not produce a request.
	h.expire()
	select {
	case req := <-h.engine.calls:
		t.Fatalf("canceled estimation issued a request: %v", req)
	case <-time.After(20 * time.Millisecond):
	}
}

// TestRowBoundsAndRemoval asserts row index validation and that the
// last multi-mode row cannot be removed.
func TestRowBoundsAndRemoval(t *testing.T) {
	t.Parallel()

	h := newTestHarness(t)
	h.o.SwitchMode(ModeMulti)

	require.ErrorIs(t, h.o.SetRow(2, Row{}), ErrRowOutOfRange)
	require.ErrorIs(t, h.o.RemoveRow(-1), ErrRowOutOfRange)

	require.NoError(t, h.o.RemoveRow(1))
	require.ErrorIs(t, h.o.RemoveRow(0), ErrRowOutOfRange)
}

// TestDryRunErrorSurfacedVerbatim asserts that an engine error result
// is carried through the snapshot untouched.
func TestDryRunErrorSurfacedVerbatim(t *testing.T) {
	t.Parallel()

	h := newTestHarness(t)

	require.NoError(t, h.o.SetRecipient(testAddrP2WPKH, "10000"))
	h.estimateDraft(&DryRunResult{Err: ErrBelowDustLimit})

	snapshot := h.o.Snapshot()
	require.Equal(t, StateEstimated, snapshot.State)
	require.ErrorIs(t, snapshot.Estimate.Err, ErrBelowDustLimit)
	require.False(t, snapshot.CanCommit)
}

// TestRestoreAcrossRestart asserts that an interrupted draft persists
// through its store and is picked up again by a fresh orchestrator.
func TestRestoreAcrossRestart(t *testing.T) {
	t.Parallel()

	store := newTestStore(t)
	ctx := context.Background()

	h := newTestHarness(t, WithDraftStore(store))

	rate, err := unit.ParseSatPerVByte("3")
	require.NoError(t, err)
	require.NoError(t, h.o.SetFeeRate(rate))
	require.NoError(t, h.o.SetRecipient(testAddrP2WPKH, "10000"))
	h.o.SetLabel("rent")

	// Simulate a restart: a fresh orchestrator over the same store.
	h.o.Stop()

	restarted := newTestHarness(t, WithDraftStore(store))
	require.NoError(t, restarted.o.Restore(ctx))

	snapshot := restarted.o.Snapshot()
	require.Equal(t, StateEditing, snapshot.State)
	require.Equal(t, testAddrP2WPKH, snapshot.Rows[0].Address)
	require.Equal(t, "10000", snapshot.Rows[0].Amount)
	require.True(t, snapshot.FeeRate.Equal(rate))
	require.Equal(t, "rent", snapshot.Label.UnwrapOr(""))

	// A restored draft re-estimates on demand.
	restarted.o.Reestimate()
	restarted.estimateDraft(&DryRunResult{
		Fee:             423,
		RecipientAmount: 10_000,
	})
	require.True(t, restarted.o.CanCommit())

	// Commit clears the persisted record too.
	_, err = restarted.o.Commit(ctx)
	require.NoError(t, err)

	_, err = store.LoadDraft()
	require.ErrorIs(t, err, ErrNoActiveDraft)
}

// TestDiscardClearsDraft asserts that discard resets the draft to the
// empty state.
func TestDiscardClearsDraft(t *testing.T) {
	t.Parallel()

	h := newTestHarness(t)

	require.NoError(t, h.o.SetRecipient(testAddrP2WPKH, "10000"))
	require.NoError(t, h.o.Discard())

	snapshot := h.o.Snapshot()
	require.Equal(t, StateEmpty, snapshot.State)
	require.Equal(t, []Row{{}}, snapshot.Rows)
	require.Zero(t, snapshot.TotalSending)
}
