package cache

import "io"

// DiskStore is the disk tier collaborator interface, pluggable exactly
// like the teacher's cache.Cache interface (which ships file_system and
// redis implementations switched on in cache.NewAsyncCache). Keys are
// opaque strings; implementations own their own on-disk/on-wire encoding
// via encode/decode (cache/envelope.go).
type DiskStore interface {
	io.Closer

	Get(key string) (*Entry, error)
	Set(e *Entry) error
	Remove(key string) error
	Clear() error
	Stats() Stats
}

// Stats summarizes a disk tier's current footprint.
type Stats struct {
	Size  uint64
	Items uint64
}
