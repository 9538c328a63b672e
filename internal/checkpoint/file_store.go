package checkpoint

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/flowkernel/kernel/internal/kernelerr"
)

// FileStore persists one checkpoint per workflow as <workflow_id>.state.json
// under Dir, created on demand.
type FileStore struct {
	mu  sync.Mutex
	Dir string
}

// NewFileStore constructs a FileStore rooted at dir.
func NewFileStore(dir string) *FileStore {
	return &FileStore{Dir: dir}
}

func (f *FileStore) path(id string) string {
	return filepath.Join(f.Dir, id+".state.json")
}

func (f *FileStore) Save(_ context.Context, id string, env Envelope) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := os.MkdirAll(f.Dir, 0o755); err != nil {
		return fmt.Errorf("create checkpoint directory: %w", err)
	}
	data, err := json.MarshalIndent(env, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal checkpoint envelope: %w", err)
	}
	if err := os.WriteFile(f.path(id), data, 0o644); err != nil {
		return fmt.Errorf("write checkpoint file: %w", err)
	}
	return nil
}

func (f *FileStore) Load(_ context.Context, id string) (Envelope, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	data, err := os.ReadFile(f.path(id))
	if err != nil {
		if os.IsNotExist(err) {
			return Envelope{}, kernelerr.New(kernelerr.NotFound, "no checkpoint for workflow %q", id)
		}
		return Envelope{}, fmt.Errorf("read checkpoint file: %w", err)
	}
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return Envelope{}, fmt.Errorf("unmarshal checkpoint envelope: %w", err)
	}
	return env, nil
}

func (f *FileStore) Delete(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	err := os.Remove(f.path(id))
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("delete checkpoint file: %w", err)
	}
	return nil
}

func (f *FileStore) List(_ context.Context) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	entries, err := os.ReadDir(f.Dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("list checkpoint directory: %w", err)
	}
	var out []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		if strings.HasSuffix(name, ".state.json") {
			out = append(out, strings.TrimSuffix(name, ".state.json"))
		}
	}
	return out, nil
}
