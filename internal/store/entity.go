package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// writeFileAtomic writes data to a sibling temp file then renames it over
// path, so a reader never observes a partial write.
func writeFileAtomic(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create dir for %s: %w", path, err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("replace %s: %w", path, err)
	}
	return nil
}

// WriteEntity atomically replaces the file at kind/key.json with data.
func (s *Store) WriteEntity(kind, key string, data []byte) error {
	if err := writeFileAtomic(s.path(kind, key, ".json"), data); err != nil {
		return fmt.Errorf("write entity %s/%s: %w", kind, key, err)
	}
	return nil
}

// ReadEntity returns the raw bytes at kind/key.json, or ok=false if absent.
func (s *Store) ReadEntity(kind, key string) (data []byte, ok bool, err error) {
	data, err = os.ReadFile(s.path(kind, key, ".json"))
	if errors.Is(err, os.ErrNotExist) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("read %s/%s: %w", kind, key, err)
	}
	return data, true, nil
}

// ListEntities returns every key present under kind, ordered by filename.
func (s *Store) ListEntities(kind string) ([]string, error) {
	dir := filepath.Join(s.home, filepath.FromSlash(kind))
	entries, err := os.ReadDir(dir)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", kind, err)
	}

	keys := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		if ext := filepath.Ext(name); ext != ".json" && ext != ".md" {
			continue
		}
		keys = append(keys, strings.TrimSuffix(name, filepath.Ext(name)))
	}
	sort.Strings(keys)
	return keys, nil
}

// DeleteEntity removes kind/key.json, reporting whether it existed.
func (s *Store) DeleteEntity(kind, key string) (bool, error) {
	err := os.Remove(s.path(kind, key, ".json"))
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("delete %s/%s: %w", kind, key, err)
	}
	return true, nil
}

// WriteJSON marshals v and stores it at kind/key.json via WriteEntity.
func WriteJSON[T any](s *Store, kind, key string, v T) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal %s/%s: %w", kind, key, err)
	}
	return s.WriteEntity(kind, key, data)
}

// ReadJSON loads and unmarshals kind/key.json. ok is false if the entity
// does not exist.
func ReadJSON[T any](s *Store, kind, key string) (v T, ok bool, err error) {
	data, ok, err := s.ReadEntity(kind, key)
	if err != nil || !ok {
		return v, ok, err
	}
	if err := json.Unmarshal(data, &v); err != nil {
		return v, false, fmt.Errorf("unmarshal %s/%s: %w", kind, key, err)
	}
	return v, true, nil
}

// ListJSON loads and unmarshals every entity under kind, ordered by key.
// An entity that fails to parse is logged and skipped rather than failing
// the whole listing, matching the reference store's best-effort scan.
func ListJSON[T any](s *Store, kind string) ([]T, error) {
	keys, err := s.ListEntities(kind)
	if err != nil {
		return nil, err
	}

	out := make([]T, 0, len(keys))
	for _, key := range keys {
		v, ok, err := ReadJSON[T](s, kind, key)
		if err != nil {
			s.log.Error().Err(err).Str("kind", kind).Str("key", key).Msg("failed to parse entity, skipping")
			continue
		}
		if ok {
			out = append(out, v)
		}
	}
	return out, nil
}
