package events

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/gowebpki/jcs"
)

// AuditEntry is a tamper-evident record of one event.
type AuditEntry struct {
	Seq          uint64          `json:"seq"`
	EventID      string          `json:"event_id"`
	Type         Type            `json:"type"`
	Timestamp    time.Time       `json:"timestamp"`
	Payload      json.RawMessage `json:"payload"`
	PreviousHash string          `json:"previous_hash"`
	Hash         string          `json:"hash"`
}

// AuditChain links every emitted event to its predecessor by hash.
type AuditChain struct {
	mu      sync.Mutex
	entries []AuditEntry
}

func NewAuditChain() *AuditChain {
	return &AuditChain{}
}

func (c *AuditChain) Emit(_ context.Context, ev Event) error {
	payload, err := json.Marshal(ev.Payload)
	if err != nil {
		return fmt.Errorf("audit: encode payload: %w", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	prev := ""
	if n := len(c.entries); n > 0 {
		prev = c.entries[n-1].Hash
	}
	entry := AuditEntry{
		Seq:          uint64(len(c.entries)),
		EventID:      ev.ID,
		Type:         ev.Type,
		Timestamp:    ev.Timestamp.UTC(),
		Payload:      payload,
		PreviousHash: prev,
	}
	hash, err := entryHash(&entry)
	if err != nil {
		return err
	}
	entry.Hash = hash
	c.entries = append(c.entries, entry)
	return nil
}

// Entries returns a copy of the chain.
func (c *AuditChain) Entries() []AuditEntry {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]AuditEntry, len(c.entries))
	copy(out, c.entries)
	return out
}

// Head returns the hash of the latest entry, or "" for an empty chain.
func (c *AuditChain) Head() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.entries) == 0 {
		return ""
	}
	return c.entries[len(c.entries)-1].Hash
}

// Verify recomputes every link and content hash.
func (c *AuditChain) Verify() error {
	return VerifyEntries(c.Entries())
}

// VerifyEntries checks an exported chain.
func VerifyEntries(entries []AuditEntry) error {
	for i := range entries {
		e := entries[i]
		if i == 0 && e.PreviousHash != "" {
			return fmt.Errorf("audit: genesis entry has previous hash")
		}
		if i > 0 && e.PreviousHash != entries[i-1].Hash {
			return fmt.Errorf("audit: chain broken at seq %d", e.Seq)
		}
		got, err := entryHash(&e)
		if err != nil {
			return err
		}
		if got != e.Hash {
			return fmt.Errorf("audit: content mismatch at seq %d", e.Seq)
		}
	}
	return nil
}

// entryHash is sha256 over the RFC 8785 form of the entry without its hash.
func entryHash(e *AuditEntry) (string, error) {
	unsigned := *e
	unsigned.Hash = ""
	raw, err := json.Marshal(unsigned)
	if err != nil {
		return "", fmt.Errorf("audit: marshal entry: %w", err)
	}
	canonical, err := jcs.Transform(raw)
	if err != nil {
		return "", fmt.Errorf("audit: canonicalize entry: %w", err)
	}
	sum := sha256.Sum256(canonical)
	return hex.EncodeToString(sum[:]), nil
}
