package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/answer42/agentcore/internal/corekit"
)

// filePaperStore treats paperID as a path to a raw text file on disk. Each
// stage's result is written alongside it as "<paperID>.<stage>.json" so a
// run's output can be inspected without a database. It is the CLI's
// standalone substitute for whatever document store the host platform
// runs in production.
type filePaperStore struct{}

func newFilePaperStore() *filePaperStore { return &filePaperStore{} }

func (s *filePaperStore) LoadBytes(ctx context.Context, paperID string) ([]byte, error) {
	data, err := os.ReadFile(paperID)
	if err != nil {
		return nil, corekit.NewStageError(corekit.KindInvalidInput, fmt.Sprintf("reading paper file %q", paperID), err)
	}
	return data, nil
}

func (s *filePaperStore) LoadMetadata(ctx context.Context, paperID string) (map[string]interface{}, error) {
	metaPath := paperID + ".meta.json"
	data, err := os.ReadFile(metaPath)
	if err != nil {
		return map[string]interface{}{}, nil
	}
	var meta map[string]interface{}
	if err := json.Unmarshal(data, &meta); err != nil {
		return map[string]interface{}{}, nil
	}
	return meta, nil
}

func (s *filePaperStore) SaveResults(ctx context.Context, paperID string, stage corekit.StageKind, payload interface{}) error {
	data, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		return err
	}
	outPath := fmt.Sprintf("%s.%s.json", paperID, stage)
	if err := os.MkdirAll(filepath.Dir(outPath), 0o755); err != nil {
		return err
	}
	return os.WriteFile(outPath, data, 0o644)
}

// freeLedger grants every reservation unconditionally and is the CLI's
// substitute for the billing system a hosted deployment would wire in
// place of it; submit/status/watch/cancel never need paid quota to
// exercise the pipeline end to end.
type freeLedger struct {
	mu     sync.Mutex
	nextID int
}

func newFreeLedger() *freeLedger { return &freeLedger{} }

func (l *freeLedger) Reserve(ctx context.Context, userID string, stage corekit.StageKind, amount float64) (string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.nextID++
	return fmt.Sprintf("res-%d", l.nextID), nil
}

func (l *freeLedger) Commit(ctx context.Context, reservationID string) error { return nil }

func (l *freeLedger) Release(ctx context.Context, reservationID string) error { return nil }
