package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"

	"github.com/contentsquare/reqengine/config"
	"github.com/contentsquare/reqengine/log"
)

// fileSystemDisk is the file_system DiskStore backend: one
// hash(key).cache file per entry under dir, adapted from the teacher's
// cache/filesystem_cache.go.
type fileSystemDisk struct {
	dir            string
	obfuscationKey string
	logger         log.Logger

	mu sync.Mutex

	items atomic.Uint64
	size  atomic.Int64
}

func newFileSystemDisk(cfg config.FileSystemConfig, obfuscationKey string, logger log.Logger) (*fileSystemDisk, error) {
	if cfg.Dir == "" {
		return nil, fmt.Errorf("cache: file_system.dir must not be empty")
	}
	if err := os.MkdirAll(cfg.Dir, 0o700); err != nil {
		return nil, fmt.Errorf("cache: cannot create %q: %w", cfg.Dir, err)
	}
	if logger == nil {
		logger = log.Nop
	}
	return &fileSystemDisk{dir: cfg.Dir, obfuscationKey: obfuscationKey, logger: logger}, nil
}

func (f *fileSystemDisk) path(key string) string {
	sum := sha256.Sum256([]byte(key))
	return filepath.Join(f.dir, hex.EncodeToString(sum[:16])+".cache")
}

func (f *fileSystemDisk) Get(key string) (*Entry, error) {
	fp := f.path(key)

	f.mu.Lock()
	raw, err := os.ReadFile(fp)
	f.mu.Unlock()
	if err != nil {
		return nil, ErrMissing
	}

	e, err := decode(raw, f.obfuscationKey)
	if err != nil {
		f.logger.Errorf(context.Background(), "cache: corrupt file %q: %s, deleting", fp, err)
		_ = os.Remove(fp)
		return nil, ErrMissing
	}
	return e, nil
}

func (f *fileSystemDisk) Set(e *Entry) error {
	raw, err := encode(e, f.obfuscationKey)
	if err != nil {
		return err
	}

	fp := f.path(e.Key)
	tmp := fp + ".tmp"

	f.mu.Lock()
	defer f.mu.Unlock()

	if err := os.WriteFile(tmp, raw, 0o600); err != nil {
		return fmt.Errorf("cache: cannot write %q: %w", tmp, err)
	}
	if _, err := os.Stat(fp); err == nil {
		if old, err := os.ReadFile(fp); err == nil {
			f.size.Add(-int64(len(old)))
			f.items.Add(^uint64(0))
		}
	}
	if err := os.Rename(tmp, fp); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("cache: cannot rename %q to %q: %w", tmp, fp, err)
	}
	f.size.Add(int64(len(raw)))
	f.items.Add(1)
	return nil
}

func (f *fileSystemDisk) Remove(key string) error {
	fp := f.path(key)
	f.mu.Lock()
	defer f.mu.Unlock()
	info, err := os.Stat(fp)
	if err != nil {
		return nil
	}
	if err := os.Remove(fp); err != nil {
		return fmt.Errorf("cache: cannot remove %q: %w", fp, err)
	}
	f.size.Add(-info.Size())
	f.items.Add(^uint64(0))
	return nil
}

func (f *fileSystemDisk) Clear() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	entries, err := os.ReadDir(f.dir)
	if err != nil {
		return fmt.Errorf("cache: cannot read %q: %w", f.dir, err)
	}
	for _, de := range entries {
		if filepath.Ext(de.Name()) != ".cache" {
			continue
		}
		_ = os.Remove(filepath.Join(f.dir, de.Name()))
	}
	f.size.Store(0)
	f.items.Store(0)
	return nil
}

func (f *fileSystemDisk) Stats() Stats {
	return Stats{Size: uint64(f.size.Load()), Items: f.items.Load()}
}

func (f *fileSystemDisk) Close() error { return nil }
