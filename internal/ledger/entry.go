package ledger

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"
)

// Entry is a tamper-evident record for one executed step of a run
type Entry struct {
	Index     int    `json:"index"`
	Timestamp string `json:"timestamp"`
	RunID     string `json:"runId"`
	Tag       string `json:"tag"`
	Step      string `json:"step"`
	Status    string `json:"status"`
	LogPath   string `json:"logPath"`
	LogHash   string `json:"logHash"`
	PrevHash  string `json:"prevHash"`
	Hash      string `json:"hash"`
	AgentID   string `json:"agentId"`
	Signature string `json:"signature"`
	PubKey    string `json:"pubKey"`
}

// canonicalData returns the JSON bytes used to compute the entry hash.
// It excludes Hash, Signature and PubKey.
func (e *Entry) canonicalData() ([]byte, error) {
	view := struct {
		Index     int    `json:"index"`
		Timestamp string `json:"timestamp"`
		RunID     string `json:"runId"`
		Tag       string `json:"tag"`
		Step      string `json:"step"`
		Status    string `json:"status"`
		LogPath   string `json:"logPath"`
		LogHash   string `json:"logHash"`
		PrevHash  string `json:"prevHash"`
		AgentID   string `json:"agentId"`
	}{
		Index:     e.Index,
		Timestamp: e.Timestamp,
		RunID:     e.RunID,
		Tag:       e.Tag,
		Step:      e.Step,
		Status:    e.Status,
		LogPath:   e.LogPath,
		LogHash:   e.LogHash,
		PrevHash:  e.PrevHash,
		AgentID:   e.AgentID,
	}
	return json.Marshal(view)
}

// ComputeHash calculates SHA256 over canonicalData
func (e *Entry) ComputeHash() (string, error) {
	data, err := e.canonicalData()
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}

// Record is the caller-supplied part of an entry.
type Record struct {
	RunID   string
	Tag     string
	Step    string
	Status  string
	LogPath string
	LogHash string
	AgentID string
}

// NewEntry constructs an entry and computes its hash (no signature yet)
func NewEntry(index int, prevHash string, rec Record) (*Entry, error) {
	e := &Entry{
		Index:     index,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		RunID:     rec.RunID,
		Tag:       rec.Tag,
		Step:      rec.Step,
		Status:    rec.Status,
		LogPath:   rec.LogPath,
		LogHash:   rec.LogHash,
		PrevHash:  prevHash,
		AgentID:   rec.AgentID,
	}
	h, err := e.ComputeHash()
	if err != nil {
		return nil, fmt.Errorf("compute entry hash: %w", err)
	}
	e.Hash = h
	return e, nil
}
