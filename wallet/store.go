// Copyright (c) 2025 The IbisWallet developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package wallet

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"math/big"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
	"github.com/btcsuite/btcwallet/walletdb"
	"github.com/lightningnetwork/lnd/fn/v2"

	"github.com/aeonBTC/IbisWallet-sub000/unit"
)

var (
	// draftBucketKey is the top-level bucket that holds the active
	// draft.
	draftBucketKey = []byte("senddraft")

	// draftRecordKey is the key of the single serialized draft record
	// within the bucket.
	draftRecordKey = []byte("record")

	// byteOrder is the endianness used for all serialized integers.
	byteOrder = binary.LittleEndian
)

// draftRecordVersion is bumped whenever the serialization below changes
// incompatibly. Records with an unknown version are treated as absent.
const draftRecordVersion = 1

// DbDraftStore persists the active draft in a walletdb namespace so an
// interrupted session survives a restart.
type DbDraftStore struct {
	db walletdb.DB
}

// A compile time check to ensure DbDraftStore implements DraftStore.
var _ DraftStore = (*DbDraftStore)(nil)

// NewDbDraftStore creates a draft store over the given database,
// creating its bucket if needed.
func NewDbDraftStore(db walletdb.DB) (*DbDraftStore, error) {
	err := walletdb.Update(db, func(tx walletdb.ReadWriteTx) error {
		_, err := tx.CreateTopLevelBucket(draftBucketKey)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("unable to create draft bucket: %w",
			err)
	}

	return &DbDraftStore{db: db}, nil
}

// SaveDraft stores the record, replacing any previous one.
func (s *DbDraftStore) SaveDraft(record *DraftRecord) error {
	var buf bytes.Buffer
	if err := serializeDraftRecord(&buf, record); err != nil {
		return err
	}

	return walletdb.Update(s.db, func(tx walletdb.ReadWriteTx) error {
		bucket := tx.ReadWriteBucket(draftBucketKey)
		return bucket.Put(draftRecordKey, buf.Bytes())
	})
}

// LoadDraft returns the stored record, or ErrNoActiveDraft when none
// exists.
func (s *DbDraftStore) LoadDraft() (*DraftRecord, error) {
	var record *DraftRecord
	err := walletdb.View(s.db, func(tx walletdb.ReadTx) error {
		bucket := tx.ReadBucket(draftBucketKey)
		if bucket == nil {
			return ErrNoActiveDraft
		}

		raw := bucket.Get(draftRecordKey)
		if raw == nil {
			return ErrNoActiveDraft
		}

		var err error
		record, err = deserializeDraftRecord(bytes.NewReader(raw))
		return err
	})
	if err != nil {
		return nil, err
	}

	return record, nil
}

// ClearDraft removes the stored record. Clearing an empty store is not
// an error.
func (s *DbDraftStore) ClearDraft() error {
	return walletdb.Update(s.db, func(tx walletdb.ReadWriteTx) error {
		bucket := tx.ReadWriteBucket(draftBucketKey)
		if bucket == nil {
			return nil
		}

		return bucket.Delete(draftRecordKey)
	})
}

// serializeDraftRecord writes the record in its versioned binary form:
//
//	version || mode || maxSend ||
//	numRows || (address || amount)* ||
//	feeRate (rational string) ||
//	numOutpoints || (hash || index)* ||
//	hasLabel || [label]
//
// Strings are length-prefixed with a uint32.
func serializeDraftRecord(w *bytes.Buffer, record *DraftRecord) error {
	w.WriteByte(draftRecordVersion)
	w.WriteByte(byte(record.Mode))

	if record.MaxSend {
		w.WriteByte(1)
	} else {
		w.WriteByte(0)
	}

	writeUint32(w, uint32(len(record.Rows)))
	for _, row := range record.Rows {
		writeString(w, row.Address)
		writeString(w, row.Amount)
	}

	if record.FeeRate.Rat != nil {
		writeString(w, record.FeeRate.RatString())
	} else {
		writeString(w, "0")
	}

	writeUint32(w, uint32(len(record.CoinSelection)))
	for _, outpoint := range record.CoinSelection {
		w.Write(outpoint.Hash[:])
		writeUint32(w, outpoint.Index)
	}

	label := record.Label.UnwrapOr("")
	if record.Label.IsSome() {
		w.WriteByte(1)
		writeString(w, label)
	} else {
		w.WriteByte(0)
	}

	return nil
}

// deserializeDraftRecord reads a record back from its binary form. An
// unknown version or a malformed payload is reported as
// ErrNoActiveDraft so a stale record never wedges the flow.
func deserializeDraftRecord(r *bytes.Reader) (*DraftRecord, error) {
	version, err := r.ReadByte()
	if err != nil || version != draftRecordVersion {
		return nil, ErrNoActiveDraft
	}

	modeByte, err := r.ReadByte()
	if err != nil {
		return nil, ErrNoActiveDraft
	}

	maxSendByte, err := r.ReadByte()
	if err != nil {
		return nil, ErrNoActiveDraft
	}

	record := &DraftRecord{
		Mode:    Mode(modeByte),
		MaxSend: maxSendByte == 1,
	}

	numRows, err := readUint32(r)
	if err != nil {
		return nil, ErrNoActiveDraft
	}
	for i := uint32(0); i < numRows; i++ {
		address, err := readString(r)
		if err != nil {
			return nil, ErrNoActiveDraft
		}

		amount, err := readString(r)
		if err != nil {
			return nil, ErrNoActiveDraft
		}

		record.Rows = append(record.Rows, Row{
			Address: address,
			Amount:  amount,
		})
	}

	rateStr, err := readString(r)
	if err != nil {
		return nil, ErrNoActiveDraft
	}
	rat, ok := new(big.Rat).SetString(rateStr)
	if !ok {
		return nil, ErrNoActiveDraft
	}
	record.FeeRate = unit.SatPerVByte{Rat: rat}

	numOutpoints, err := readUint32(r)
	if err != nil {
		return nil, ErrNoActiveDraft
	}
	for i := uint32(0); i < numOutpoints; i++ {
		var hash chainhash.Hash
		if _, err := io.ReadFull(r, hash[:]); err != nil {
			return nil, ErrNoActiveDraft
		}

		index, err := readUint32(r)
		if err != nil {
			return nil, ErrNoActiveDraft
		}

		record.CoinSelection = append(
			record.CoinSelection, wire.OutPoint{
				Hash:  hash,
				Index: index,
			},
		)
	}

	hasLabel, err := r.ReadByte()
	if err != nil {
		return nil, ErrNoActiveDraft
	}
	if hasLabel == 1 {
		label, err := readString(r)
		if err != nil {
			return nil, ErrNoActiveDraft
		}
		record.Label = fn.Some(label)
	}

	return record, nil
}

func writeUint32(w *bytes.Buffer, value uint32) {
	var scratch [4]byte
	byteOrder.PutUint32(scratch[:], value)
	w.Write(scratch[:])
}

func readUint32(r *bytes.Reader) (uint32, error) {
	var scratch [4]byte
	if _, err := io.ReadFull(r, scratch[:]); err != nil {
		return 0, err
	}

	return byteOrder.Uint32(scratch[:]), nil
}

func writeString(w *bytes.Buffer, value string) {
	writeUint32(w, uint32(len(value)))
	w.WriteString(value)
}

func readString(r *bytes.Reader) (string, error) {
	length, err := readUint32(r)
	if err != nil {
		return "", err
	}
	if length > uint32(r.Len()) {
		return "", io.ErrUnexpectedEOF
	}

	raw := make([]byte, length)
	if _, err := io.ReadFull(r, raw); err != nil {
		return "", err
	}

	return string(raw), nil
}
