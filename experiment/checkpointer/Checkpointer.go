// Package checkpointer implements persistence of the stateful
// components of a training run
package checkpointer

import (
	"bytes"
	"encoding/gob"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
)

// Persistable is a component whose state can be stored to and
// restored from durable storage. Restoring a component from a path
// that does not exist must leave the component in its freshly
// initialized state and return an error satisfying IsNotExist.
type Persistable interface {
	Store(path string) error
	Restore(path string) error
}

// IsNotExist returns whether an error returned by Restore reports that
// there was no persisted state to restore. Such errors are recoverable
// and mean the run is a first run.
func IsNotExist(err error) bool {
	return errors.Is(err, fs.ErrNotExist)
}

// StoreGob gob-encodes values, in order, into the file at path. The
// data is first written to a temporary file in the same directory
// which is then renamed to path, so that readers never observe a
// partially written file.
func StoreGob(path string, values ...interface{}) error {
	var buf bytes.Buffer
	enc := gob.NewEncoder(&buf)
	for i, v := range values {
		if err := enc.Encode(v); err != nil {
			return fmt.Errorf("store: could not encode value %v: %v", i, err)
		}
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("store: could not create directory %v: %v", dir,
			err)
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("store: could not create file: %v", err)
	}
	if _, err := tmp.Write(buf.Bytes()); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("store: could not write %v: %v", path, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("store: could not close %v: %v", path, err)
	}
	return os.Rename(tmp.Name(), path)
}

// RestoreGob decodes values, in the order they were stored by
// StoreGob, from the file at path. If the file does not exist, the
// returned error satisfies IsNotExist and no value is modified.
//
// Values are first decoded into the pointers given, so callers that
// must not be left half-restored on a decoding error should decode
// into temporaries.
func RestoreGob(path string, values ...interface{}) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("restore: %w", err)
	}

	dec := gob.NewDecoder(bytes.NewReader(data))
	for i, v := range values {
		if err := dec.Decode(v); err != nil {
			return fmt.Errorf("restore: could not decode value %v of %v: %v",
				i, path, err)
		}
	}
	return nil
}
