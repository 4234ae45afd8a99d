// Copyright (c) 2025 The IbisWallet developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package wallet

import (
	"time"

	"github.com/lightningnetwork/lnd/clock"

	"github.com/aeonBTC/IbisWallet-sub000/unit"
)

const (
	// defaultDebounceWindow is the quiescence window after an edit
	// before a dry-run request is issued. Edits inside the window
	// restart it.
	defaultDebounceWindow = 150 * time.Millisecond

	// defaultHeuristicVSize is the transaction size assumed when
	// computing the instant max-send estimate, before the engine's
	// exact figure arrives.
	defaultHeuristicVSize unit.VByte = 150
)

// config bundles the orchestrator knobs.
type config struct {
	debounceWindow time.Duration
	heuristicVSize unit.VByte
	minFeeRate     unit.SatPerVByte
	clock          clock.Clock
	store          DraftStore
}

// defaultConfig returns the production configuration.
func defaultConfig() *config {
	return &config{
		debounceWindow: defaultDebounceWindow,
		heuristicVSize: defaultHeuristicVSize,
		minFeeRate:     unit.MinRelayFeeRate,
		clock:          clock.NewDefaultClock(),
	}
}

// Option configures an Orchestrator.
type Option func(*config)

// WithDebounceWindow overrides the estimation debounce window.
func WithDebounceWindow(window time.Duration) Option {
	return func(cfg *config) {
		cfg.debounceWindow = window
	}
}

// WithClock overrides the clock used for the debounce window. Tests use
// this to make the window deterministic.
func WithClock(c clock.Clock) Option {
	return func(cfg *config) {
		cfg.clock = c
	}
}

// WithMinFeeRate overrides the minimum acceptable fee rate.
func WithMinFeeRate(rate unit.SatPerVByte) Option {
	return func(cfg *config) {
		cfg.minFeeRate = rate
	}
}

// WithDraftStore attaches a store that persists the draft across
// restarts. Without one the draft lives only in memory.
func WithDraftStore(store DraftStore) Option {
	return func(cfg *config) {
		cfg.store = store
	}
}
