// Copyright (c) 2025 The IbisWallet developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package main

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/btcsuite/btcwallet/walletdb"
	"github.com/jessevdk/go-flags"

	"github.com/aeonBTC/IbisWallet-sub000/address"
	"github.com/aeonBTC/IbisWallet-sub000/feebump"
	"github.com/aeonBTC/IbisWallet-sub000/internal/cfgutil"
	"github.com/aeonBTC/IbisWallet-sub000/unit"
	"github.com/aeonBTC/IbisWallet-sub000/wallet"

	_ "github.com/btcsuite/btcwallet/walletdb/bdb"
)

var newlineBytes = []byte{'\n'}

func fatalf(format string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, format, args...)
	os.Stderr.Write(newlineBytes)
	os.Exit(1)
}

// Flags.
var opts = struct {
	Bump         string               `long:"bump" description:"Evaluate a fee bump: rbf or cpfp"`
	CurrentFee   *cfgutil.AmountFlag  `long:"currentfee" description:"Total fee of the transaction to bump"`
	CurrentRate  *cfgutil.FeeRateFlag `long:"currentrate" description:"Known fee rate of the transaction to bump, sat/vb"`
	TxVSize      uint64               `long:"vsize" description:"Virtual size of the transaction to bump"`
	Balance      *cfgutil.AmountFlag  `long:"balance" description:"Spendable wallet balance for the bump"`
	ParentOutput *cfgutil.AmountFlag  `long:"parentoutput" description:"Our output value on the parent (cpfp only)"`
	TargetRate   *cfgutil.FeeRateFlag `long:"targetrate" description:"Desired fee rate, sat/vb"`
	DraftDataDir string               `long:"draftdatadir" description:"Data directory containing a persisted send draft to inspect"`
}{
	CurrentFee:   cfgutil.NewAmountFlag(0),
	CurrentRate:  cfgutil.NewFeeRateFlag(unit.SatPerVByte{}),
	Balance:      cfgutil.NewAmountFlag(0),
	ParentOutput: cfgutil.NewAmountFlag(0),
	TargetRate:   cfgutil.NewFeeRateFlag(unit.SatPerVByte{}),
}

func main() {
	addresses, err := flags.Parse(&opts)
	if err != nil {
		os.Exit(1)
	}

	for _, addr := range addresses {
		checkAddress(addr)
	}

	if opts.Bump != "" {
		evaluateBump()
	}

	if opts.DraftDataDir != "" {
		inspectDraft()
	}
}

// checkAddress validates one raw address string and prints the verdict
// together with the format and network hints.
func checkAddress(addr string) {
	format, network := address.Info(addr)

	err := address.Validate(addr)
	if err != nil {
		fmt.Printf("%s: INVALID (%v)\n", addr, err)
		return
	}

	fmt.Printf("%s: ok, %v on %v\n", addr, format, network)
}

// evaluateBump runs the fee-bump calculator over the flag inputs.
func evaluateBump() {
	var method feebump.Method
	switch opts.Bump {
	case "rbf":
		method = feebump.MethodRBF
	case "cpfp":
		method = feebump.MethodCPFP
	default:
		fatalf("unknown bump method %q, want rbf or cpfp", opts.Bump)
	}

	req := &feebump.BumpRequest{
		Method:        method,
		CurrentFee:    opts.CurrentFee.Amount,
		TxVSize:       unit.VByte(opts.TxVSize),
		WalletBalance: opts.Balance.Amount,
		ParentOutput:  opts.ParentOutput.Amount,
		TargetFeeRate: opts.TargetRate.SatPerVByte,
	}
	if !opts.CurrentRate.SatPerVByte.IsZero() {
		req.CurrentFeeRate = opts.CurrentRate.SatPerVByte
	}

	result, err := feebump.Estimate(req)
	if err != nil {
		fatalf("fee bump not possible: %v", err)
	}

	fmt.Printf("%s bump to %v: additional cost %v\n",
		opts.Bump, opts.TargetRate.SatPerVByte, result.AdditionalCost)
	if !result.Affordable {
		fmt.Println("warning: bump is not affordable with the " +
			"given balance")
	}
	if result.WillConsolidate {
		fmt.Println("note: child will consolidate the parent " +
			"output with other wallet funds")
	}
}

// inspectDraft opens the persisted draft in the given data directory
// and prints a summary of what a restarted session would restore.
func inspectDraft() {
	dbPath := filepath.Join(opts.DraftDataDir, "draft.db")
	exists, err := cfgutil.FileExists(dbPath)
	if err != nil {
		fatalf("%v", err)
	}
	if !exists {
		fatalf("no draft database at %v", dbPath)
	}

	db, err := walletdb.Open("bdb", dbPath, true, 10*time.Second)
	if err != nil {
		fatalf("unable to open draft database: %v", err)
	}
	defer db.Close()

	store, err := wallet.NewDbDraftStore(db)
	if err != nil {
		fatalf("%v", err)
	}

	record, err := store.LoadDraft()
	if err != nil {
		fatalf("unable to load draft: %v", err)
	}

	fmt.Printf("persisted draft: %v mode, fee rate %v, max send %v\n",
		record.Mode, record.FeeRate, record.MaxSend)
	for i, row := range record.Rows {
		fmt.Printf("  row %d: %q amount %q\n", i, row.Address,
			row.Amount)
	}
	for _, outpoint := range record.CoinSelection {
		fmt.Printf("  selected coin: %v\n", outpoint)
	}
	record.Label.WhenSome(func(label string) {
		fmt.Printf("  label: %q\n", label)
	})
}
