package config

import (
	"errors"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// ByteSize is a YAML scalar accepting human-friendly byte sizes like
// "64MB" or "2GB", the same way the teacher's config.ByteSize does.
type ByteSize float64

const (
	_           = iota
	KB ByteSize = 1 << (10 * iota)
	MB
	GB
	TB
)

var (
	bytesPattern  = regexp.MustCompile(`(?i)^(-?\d+(?:\.\d+)?)([KMGT]B?|B)$`)
	errInvalidSize = errors.New("wrong size format: must be a positive integer with a unit of measurement like M, MB, G, GB, T or TB")
)

// UnmarshalYAML implements the yaml.Unmarshaler interface.
func (ds *ByteSize) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var s string
	if err := unmarshal(&s); err != nil {
		return err
	}
	return ds.parse(s)
}

func (ds *ByteSize) parse(s string) error {
	parts := bytesPattern.FindStringSubmatch(strings.TrimSpace(s))
	if len(parts) < 3 {
		return errInvalidSize
	}

	value, err := strconv.ParseFloat(parts[1], 64)
	if err != nil || value <= 0 {
		return errInvalidSize
	}

	unit := strings.ToUpper(parts[2])
	switch unit[:1] {
	case "T":
		*ds = ByteSize(value) * TB
	case "G":
		*ds = ByteSize(value) * GB
	case "M":
		*ds = ByteSize(value) * MB
	case "K":
		*ds = ByteSize(value) * KB
	default:
		*ds = ByteSize(value)
	}
	return nil
}

// Bytes returns the size as an int64 byte count.
func (ds ByteSize) Bytes() int64 { return int64(ds) }

// Duration is a YAML scalar wrapping time.Duration so config files write
// "30s"/"5m" the way the teacher's config.Duration does (the teacher ships
// this type in a file the retrieval pack did not keep; reconstructed here
// to the same contract its config.go callers expect).
type Duration time.Duration

// UnmarshalYAML implements the yaml.Unmarshaler interface.
func (d *Duration) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var s string
	if err := unmarshal(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	*d = Duration(parsed)
	return nil
}

// MarshalYAML implements the yaml.Marshaler interface.
func (d Duration) MarshalYAML() (interface{}, error) {
	return time.Duration(d).String(), nil
}

func (d Duration) String() string { return time.Duration(d).String() }

// Value returns the wrapped time.Duration.
func (d Duration) Value() time.Duration { return time.Duration(d) }

// Environment collapses the two overlapping environment enums found in the
// source into one, per the Open Question decision in SPEC_FULL.md §9.
type Environment string

const (
	Development Environment = "development"
	Testing     Environment = "testing"
	Staging     Environment = "staging"
	Production  Environment = "production"
)
