package sweep

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"

	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"
)

// Store persists the set of finished combination keys.
type Store interface {
	// Load returns the saved set, empty when nothing was saved yet.
	Load() (map[string]bool, error)
	// Save replaces the saved set.
	Save(done map[string]bool) error
}

// FileStore keeps the done set in a single file as a protobuf ListValue
// of keys. Every save rewrites the whole file.
type FileStore struct {
	Path string
}

// Load reads the done set. A missing file is an empty set.
func (s FileStore) Load() (map[string]bool, error) {
	data, err := os.ReadFile(s.Path)
	if errors.Is(err, fs.ErrNotExist) {
		return map[string]bool{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read checkpoint: %w", err)
	}
	var list structpb.ListValue
	if err := proto.Unmarshal(data, &list); err != nil {
		return nil, fmt.Errorf("decode checkpoint %s: %w", s.Path, err)
	}
	done := make(map[string]bool, len(list.GetValues()))
	for _, v := range list.GetValues() {
		key := v.GetStringValue()
		if key == "" {
			return nil, fmt.Errorf("decode checkpoint %s: non-string entry", s.Path)
		}
		done[key] = true
	}
	return done, nil
}

// Save writes done to a temporary file and renames it over Path.
func (s FileStore) Save(done map[string]bool) error {
	keys := make([]string, 0, len(done))
	for k := range done {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	list := &structpb.ListValue{Values: make([]*structpb.Value, 0, len(keys))}
	for _, k := range keys {
		list.Values = append(list.Values, structpb.NewStringValue(k))
	}
	data, err := proto.MarshalOptions{Deterministic: true}.Marshal(list)
	if err != nil {
		return fmt.Errorf("encode checkpoint: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(s.Path), 0o755); err != nil {
		return fmt.Errorf("create checkpoint directory: %w", err)
	}
	tmp := s.Path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write checkpoint: %w", err)
	}
	if err := os.Rename(tmp, s.Path); err != nil {
		return fmt.Errorf("replace checkpoint: %w", err)
	}
	return nil
}
