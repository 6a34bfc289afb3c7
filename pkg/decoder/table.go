package decoder

import (
	"context"
	"fmt"
	"sync"

	"github.com/BurntSushi/toml"

	"stream-proxy-go/pkg/types"
)

// Entry is one recorded decoding.
type Entry struct {
	ID        string `toml:"id"`
	Data      string `toml:"data"`
	Plaintext string `toml:"plaintext"`
}

type tableFile struct {
	Payloads []Entry `toml:"payload"`
}

// Table answers from recorded (id, cipher text) pairs. It is safe for
// concurrent use.
type Table struct {
	mu      sync.RWMutex
	entries map[string]string
}

// NewTable creates a table holding entries.
func NewTable(entries ...Entry) *Table {
	t := &Table{entries: make(map[string]string, len(entries))}
	for _, e := range entries {
		t.Add(e)
	}
	return t
}

// LoadTable reads a TOML fixture file:
//
//	[[payload]]
//	id = "k1"
//	data = "ENC"
//	plaintext = "https://tmstr1.{v1}/pl/x/master.m3u8 or https://tmstr2.{v2}/pl/x/master.m3u8"
func LoadTable(path string) (*Table, error) {
	var f tableFile
	if _, err := toml.DecodeFile(path, &f); err != nil {
		return nil, fmt.Errorf("reading decoder table %s: %w", path, err)
	}
	return NewTable(f.Payloads...), nil
}

// Add records an entry, replacing any previous one for the same payload.
func (t *Table) Add(e Entry) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.entries[tableKey(e.ID, e.Data)] = e.Plaintext
}

// Len returns the number of recorded entries.
func (t *Table) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.entries)
}

// Decode implements interfaces.Decoder.
func (t *Table) Decode(_ context.Context, payload types.EncodedPayload) (string, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out, ok := t.entries[tableKey(payload.ID, payload.CipherText)]
	if !ok {
		return "", fmt.Errorf("%w: no table entry for id %q", ErrNoDecoding, payload.ID)
	}
	return out, nil
}

func tableKey(id, data string) string {
	return id + "\x00" + data
}
