// Package state persists per-feed cache validators between runs.
package state

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/jerobins/syngen/internal/model"
)

// Store reads and writes conditional-fetch state files. When DryRun is set
// every write is suppressed, so a verification pass leaves disk untouched.
type Store struct {
	DryRun bool
}

// Load returns the validators recorded at path. A missing, unreadable or
// corrupt file is not an error: the zero state means "fetch unconditionally".
func (s Store) Load(path string) model.ConditionalState {
	data, err := os.ReadFile(path)
	if err != nil {
		return model.ConditionalState{}
	}
	var st model.ConditionalState
	if err := json.Unmarshal(data, &st); err != nil {
		return model.ConditionalState{}
	}
	return st
}

// Save writes the validators to path, creating the file if needed. Only the
// two recognized fields are persisted.
func (s Store) Save(path string, st model.ConditionalState) error {
	if s.DryRun {
		return nil
	}
	data, err := json.Marshal(st)
	if err != nil {
		return fmt.Errorf("encode state: %w", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("write state %s: %w", path, err)
	}
	return nil
}
