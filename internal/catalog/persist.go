package catalog

import (
	"encoding/gob"
	"fmt"
	"os"
	"path/filepath"

	"github.com/fmiobs/obsengine/internal/models"
)

// Persist serializes snapshot.Stations to path, writing to a temp file
// in the same directory and renaming into place so a reader never
// observes a partially-written file.
func Persist(snapshot *Snapshot, path string) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("catalog: create temp snapshot file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	enc := gob.NewEncoder(tmp)
	if err := enc.Encode(snapshot.Stations); err != nil {
		tmp.Close()
		return fmt.Errorf("catalog: encode snapshot: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("catalog: close temp snapshot file: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("catalog: rename snapshot into place: %w", err)
	}
	return nil
}

// Load deserializes a snapshot previously written by Persist. A missing
// file is not an error: the caller should fall through to populating the
// catalog from the preloader instead.
func Load(path string) (*Snapshot, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return NewSnapshot(nil), nil
		}
		return nil, fmt.Errorf("catalog: open snapshot file: %w", err)
	}
	defer f.Close()

	var stations []models.Station
	dec := gob.NewDecoder(f)
	if err := dec.Decode(&stations); err != nil {
		return nil, fmt.Errorf("catalog: decode snapshot: %w", err)
	}
	return NewSnapshot(stations), nil
}
