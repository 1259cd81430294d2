package app

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"receiptd/internal/codec"
	"receiptd/internal/state"
	"receiptd/internal/types"
)

// journal is the issuance log plus every committed checkpoint. Leaves are
// never removed, so purged receipts stay provable against old roots. On
// disk it is an append-only sequence of journalRecord items.
type journal struct {
	Leaves      []types.Leaf
	Committed   uint64
	Checkpoints []types.Checkpoint

	out  *os.File
	size int64
}

// journalRecord holds exactly one of its fields.
type journalRecord struct {
	Leaf       *types.Leaf       `cbor:"1,keyasint,omitempty"`
	Checkpoint *types.Checkpoint `cbor:"2,keyasint,omitempty"`
}

// loadJournal replays the journal file and keeps it open for appends. A
// record cut short by a crash is dropped and truncated away.
func (e *Engine) loadJournal() error {
	if err := os.MkdirAll(filepath.Dir(e.journalPath), 0o755); err != nil {
		return fmt.Errorf("app: journal dir: %w", err)
	}
	f, err := os.OpenFile(e.journalPath, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return fmt.Errorf("app: open journal: %w", err)
	}

	var j journal
	dec := codec.NewCBORDecoder(f)
	for {
		var rec journalRecord
		err := dec.Decode(&rec)
		if errors.Is(err, io.EOF) {
			break
		}
		if errors.Is(err, io.ErrUnexpectedEOF) {
			e.logger.Warn("journal tail dropped",
				zap.String("path", e.journalPath),
				zap.Int64("offset", j.size))
			break
		}
		if err != nil {
			f.Close()
			return fmt.Errorf("app: decode journal %s at %d: %w", e.journalPath, j.size, err)
		}
		switch {
		case rec.Leaf != nil:
			j.Leaves = append(j.Leaves, *rec.Leaf)
		case rec.Checkpoint != nil:
			j.Checkpoints = append(j.Checkpoints, *rec.Checkpoint)
			j.Committed += rec.Checkpoint.LeafCount
		default:
			f.Close()
			return fmt.Errorf("app: journal %s has an empty record at %d", e.journalPath, j.size)
		}
		j.size = int64(dec.NumBytesRead())
	}
	if j.Committed > uint64(len(j.Leaves)) {
		f.Close()
		return fmt.Errorf("app: journal %s commits %d of %d leaves", e.journalPath, j.Committed, len(j.Leaves))
	}
	if err := f.Truncate(j.size); err != nil {
		f.Close()
		return fmt.Errorf("app: truncate journal: %w", err)
	}
	if _, err := f.Seek(j.size, io.SeekStart); err != nil {
		f.Close()
		return fmt.Errorf("app: seek journal: %w", err)
	}
	j.out = f
	e.journal = j
	e.logger.Info("journal loaded",
		zap.Int("leaves", len(j.Leaves)),
		zap.Int("checkpoints", len(j.Checkpoints)))
	return nil
}

// appendJournal runs under e.mu after the change is already applied, so a
// write failure is logged rather than returned. A failed write is cut
// back so the next record starts on a clean boundary.
func (e *Engine) appendJournal(rec journalRecord) {
	out := e.journal.out
	if out == nil {
		return
	}
	b, err := codec.MarshalCBOR(rec)
	if err == nil {
		_, err = out.Write(b)
	}
	if err != nil {
		e.logger.Error("append journal", zap.String("path", e.journalPath), zap.Error(err))
		if terr := out.Truncate(e.journal.size); terr == nil {
			_, _ = out.Seek(e.journal.size, io.SeekStart)
		}
		return
	}
	e.journal.size += int64(len(b))
}

func (e *Engine) closeJournal() error {
	if e.journal.out == nil {
		return nil
	}
	err := e.journal.out.Close()
	e.journal.out = nil
	return err
}

func (e *Engine) loadSnapshot() error {
	mem := e.backend.(*state.MemoryBackend)
	b, err := os.ReadFile(e.snapshotPath)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("app: read snapshot: %w", err)
	}
	var s state.Snapshot
	if err := codec.DecodeCBOR(b, &s); err != nil {
		return fmt.Errorf("app: decode snapshot %s: %w", e.snapshotPath, err)
	}
	mem.Restore(s)
	e.logger.Info("snapshot restored",
		zap.Int("receipts", len(s.Receipts)),
		zap.Uint64("next_id", s.NextID))
	return nil
}

// saveSnapshot rewrites the whole memory state. Its cost grows with the
// ledger; the sqlite and redis backends write per operation instead.
func (e *Engine) saveSnapshot() {
	if e.snapshotPath == "" {
		return
	}
	mem := e.backend.(*state.MemoryBackend)
	b, err := codec.MarshalCBOR(mem.Snapshot())
	if err == nil {
		err = writeFileAtomic(e.snapshotPath, b)
	}
	if err != nil {
		e.logger.Error("save snapshot", zap.String("path", e.snapshotPath), zap.Error(err))
	}
}

func writeFileAtomic(path string, b []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	f, err := os.CreateTemp(dir, filepath.Base(path)+".tmp-*")
	if err != nil {
		return err
	}
	tmp := f.Name()
	if _, err := f.Write(b); err != nil {
		f.Close()
		os.Remove(tmp)
		return err
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return err
	}
	return os.Rename(tmp, path)
}
