package ledger

import (
	"bytes"
	"crypto/ed25519"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sync"
)

// Ledger is an append-only JSONL file of signed, hash-chained entries.
type Ledger struct {
	mu      sync.Mutex
	entries []*Entry
	path    string
}

// OpenLedger loads an existing ledger file or creates an empty one.
// File format: JSON lines (one entry per line).
func OpenLedger(path string) (*Ledger, error) {
	l := &Ledger{path: path}

	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY, 0o644)
		if err != nil {
			return nil, err
		}
		_ = f.Close()
		return l, nil
	}
	if err != nil {
		return nil, err
	}

	dec := json.NewDecoder(bytes.NewReader(data))
	for dec.More() {
		var e Entry
		if err := dec.Decode(&e); err != nil {
			return nil, fmt.Errorf("failed to decode ledger entry: %w", err)
		}
		l.entries = append(l.entries, &e)
	}
	return l, nil
}

// Path is the backing file.
func (l *Ledger) Path() string { return l.path }

// AppendRecord signs and persists a new entry. Index and prev hash are
// assigned under the lock, so concurrent runs always extend the chain head.
func (l *Ledger) AppendRecord(rec Record, priv ed25519.PrivateKey) (*Entry, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	prev := ""
	if n := len(l.entries); n > 0 {
		prev = l.entries[n-1].Hash
	}
	e, err := NewEntry(len(l.entries), prev, rec)
	if err != nil {
		return nil, err
	}
	if err := l.appendLocked(e, priv); err != nil {
		return nil, err
	}
	return e, nil
}

func (l *Ledger) appendLocked(e *Entry, priv ed25519.PrivateKey) error {
	if len(priv) != ed25519.PrivateKeySize {
		return fmt.Errorf("private key is empty or malformed, cannot sign entry")
	}

	// recompute so the stored hash always matches canonical fields
	h, err := e.ComputeHash()
	if err != nil {
		return fmt.Errorf("cannot recompute entry hash: %w", err)
	}
	e.Hash = h

	if e.Index != len(l.entries) {
		return fmt.Errorf("index mismatch: expected %d, got %d", len(l.entries), e.Index)
	}
	if n := len(l.entries); n > 0 && e.PrevHash != l.entries[n-1].Hash {
		return fmt.Errorf("prevHash mismatch: expected %s, got %s", l.entries[n-1].Hash, e.PrevHash)
	}

	e.Signature = hex.EncodeToString(ed25519.Sign(priv, []byte(e.Hash)))
	e.PubKey = hex.EncodeToString(priv.Public().(ed25519.PublicKey))

	f, err := os.OpenFile(l.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("open ledger file: %w", err)
	}
	defer f.Close()

	if err := json.NewEncoder(f).Encode(e); err != nil {
		return fmt.Errorf("write ledger file: %w", err)
	}
	l.entries = append(l.entries, e)
	return nil
}

// NextIndex returns the next entry index
func (l *Ledger) NextIndex() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}

// LastHash returns the last entry hash (or empty if none)
func (l *Ledger) LastHash() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.entries) == 0 {
		return ""
	}
	return l.entries[len(l.entries)-1].Hash
}

// Entries returns the in-memory entries. The pointers are shared with the
// ledger; VerifyChain will notice any modification made through them.
func (l *Ledger) Entries() []*Entry {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]*Entry(nil), l.entries...)
}

// ForRun returns the entries recorded for one run, in order.
func (l *Ledger) ForRun(runID string) []*Entry {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []*Entry
	for _, e := range l.entries {
		if e.RunID == runID {
			out = append(out, e)
		}
	}
	return out
}
