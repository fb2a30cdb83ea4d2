// internal/store/file.go
package store

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"

	"github.com/cherryCheese/HouWu-CMM/internal/crc"
)

// fileDoc is the on-disk layout.
type fileDoc struct {
	Checksum uint16            `yaml:"checksum"`
	Values   map[string]uint32 `yaml:"values"`
}

// File keeps the environment in a YAML file protected by a CRC-16.
// Every Set rewrites the file through a temp file + rename.
type File struct {
	mu     sync.Mutex
	path   string
	values map[string]uint32
	log    logrus.FieldLogger
}

// OpenFile loads path. A missing file or a checksum mismatch yields the
// factory defaults.
func OpenFile(path string, log logrus.FieldLogger) (*File, error) {
	f := &File{path: path, log: log}

	raw, err := os.ReadFile(path)
	switch {
	case os.IsNotExist(err):
		f.values = Defaults()
		return f, nil
	case err != nil:
		return nil, fmt.Errorf("store: read %s: %w", path, err)
	}

	var doc fileDoc
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		log.WithError(err).Warn("store file unreadable, using defaults")
		f.values = Defaults()
		return f, nil
	}

	if sum := checksum(doc.Values); sum != doc.Checksum {
		log.WithFields(logrus.Fields{
			"stored":   fmt.Sprintf("0x%04x", doc.Checksum),
			"computed": fmt.Sprintf("0x%04x", sum),
		}).Warn("store checksum mismatch, using defaults")
		f.values = Defaults()
		return f, nil
	}

	f.values = withDefaults(doc.Values)
	return f, nil
}

func (f *File) Get(key string) uint32 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.values[key]
}

func (f *File) Set(key string, value uint32) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	old, ok := f.values[key]
	if ok && old == value {
		return nil
	}

	f.values[key] = value
	if err := f.flush(); err != nil {
		// memory must match disk
		if ok {
			f.values[key] = old
		} else {
			delete(f.values, key)
		}
		return err
	}
	return nil
}

func (f *File) flush() error {
	doc := fileDoc{
		Checksum: checksum(f.values),
		Values:   f.values,
	}

	out, err := yaml.Marshal(&doc)
	if err != nil {
		return fmt.Errorf("store: encode: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(f.path), ".env-*")
	if err != nil {
		return fmt.Errorf("store: temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(out); err != nil {
		tmp.Close()
		return fmt.Errorf("store: write: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("store: close: %w", err)
	}
	if err := os.Rename(tmp.Name(), f.path); err != nil {
		return fmt.Errorf("store: rename: %w", err)
	}
	return nil
}

// checksum covers "key=value\n" lines in key order.
func checksum(values map[string]uint32) uint16 {
	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	sum := crc.SeedImage
	for _, k := range keys {
		sum = crc.CRC16Env(sum, []byte(fmt.Sprintf("%s=%d\n", k, values[k])), crc.PolyCCITT)
	}
	return sum
}
