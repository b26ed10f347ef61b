package cache

import (
	"bytes"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"

	"github.com/klauspost/compress/gzip"
	"golang.org/x/crypto/chacha20poly1305"
)

// envelope is the on-disk JSON structure described in SPEC_FULL.md §4.3.
type envelope struct {
	Key            string   `json:"key"`
	Data           string   `json:"data"`
	ExpiresAtMs    int64    `json:"expiresAtMs"`
	PriorityOrdinal int     `json:"priorityOrdinal"`
	Size           int64    `json:"size"`
	AccessCount    uint64   `json:"accessCount"`
	LastAccessedAtMs int64  `json:"lastAccessedAtMs"`
	Tags           []string `json:"tags"`
	Compressed     bool     `json:"compressed"`
	Obfuscated     bool     `json:"obfuscated"`
	Backend        string   `json:"backend,omitempty"`
}

// encode serializes e to the on-disk byte representation: the payload is
// optionally obfuscated (AEAD-sealed, see below) and placed in the JSON
// envelope's `data` field, and the JSON is then optionally gzip-wrapped,
// matching the outer-to-inner order in SPEC_FULL.md §4.3
// ("if compressed, the outer bytes are GZIP of the JSON"). The `data`
// field is always base64-encoded per SPEC_FULL.md §4.3's envelope
// definition: encoding/json otherwise mangles arbitrary binary payloads
// (and AEAD-sealed ciphertext) by replacing invalid UTF-8 runs with
// U+FFFD, silently corrupting the entry.
func encode(e *Entry, obfuscationKey string) ([]byte, error) {
	payload := e.Payload
	if e.Obfuscated {
		sealed, err := seal(payload, obfuscationKey)
		if err != nil {
			return nil, fmt.Errorf("cache: cannot obfuscate entry %q: %w", e.Key, err)
		}
		payload = sealed
	}

	env := envelope{
		Key:              e.Key,
		Data:             base64.StdEncoding.EncodeToString(payload),
		ExpiresAtMs:      e.ExpiresAt.UnixMilli(),
		PriorityOrdinal:  e.Priority.Ordinal(),
		Size:             e.Size,
		AccessCount:      e.AccessCount,
		LastAccessedAtMs: e.LastAccessedAt.UnixMilli(),
		Tags:             e.Tags,
		Compressed:       e.Compressed,
		Obfuscated:       e.Obfuscated,
	}

	raw, err := json.Marshal(env)
	if err != nil {
		return nil, fmt.Errorf("cache: cannot marshal entry %q: %w", e.Key, err)
	}

	if e.Compressed {
		var buf bytes.Buffer
		gw := gzip.NewWriter(&buf)
		if _, err := gw.Write(raw); err != nil {
			return nil, fmt.Errorf("cache: cannot gzip entry %q: %w", e.Key, err)
		}
		if err := gw.Close(); err != nil {
			return nil, fmt.Errorf("cache: cannot gzip entry %q: %w", e.Key, err)
		}
		return buf.Bytes(), nil
	}

	return raw, nil
}

// decode is the inverse of encode. Any failure means the on-disk file is
// corrupt; the caller deletes it and reports a miss, per SPEC_FULL.md §4.3.
func decode(raw []byte, obfuscationKey string) (*Entry, error) {
	jsonBytes := raw
	if looksGzipped(raw) {
		gr, err := gzip.NewReader(bytes.NewReader(raw))
		if err != nil {
			return nil, fmt.Errorf("cache: cannot open gzip stream: %w", err)
		}
		defer gr.Close()
		decompressed, err := io.ReadAll(gr)
		if err != nil {
			return nil, fmt.Errorf("cache: cannot read gzip stream: %w", err)
		}
		jsonBytes = decompressed
	}

	var env envelope
	if err := json.Unmarshal(jsonBytes, &env); err != nil {
		return nil, fmt.Errorf("cache: cannot unmarshal entry: %w", err)
	}

	data, err := base64.StdEncoding.DecodeString(env.Data)
	if err != nil {
		return nil, fmt.Errorf("cache: cannot base64-decode entry %q: %w", env.Key, err)
	}
	if env.Obfuscated {
		opened, err := open(data, obfuscationKey)
		if err != nil {
			return nil, fmt.Errorf("cache: cannot open obfuscated entry %q: %w", env.Key, err)
		}
		data = opened
	}

	return &Entry{
		Key:            env.Key,
		Payload:        data,
		ExpiresAt:      msToTime(env.ExpiresAtMs),
		Priority:       priorityFromOrdinal(env.PriorityOrdinal),
		Size:           env.Size,
		AccessCount:    env.AccessCount,
		LastAccessedAt: msToTime(env.LastAccessedAtMs),
		Tags:           env.Tags,
		Compressed:     env.Compressed,
		Obfuscated:     env.Obfuscated,
	}, nil
}

func looksGzipped(b []byte) bool {
	return len(b) >= 2 && b[0] == 0x1f && b[1] == 0x8b
}

// seal/open implement the real AEAD replacing the source's XOR
// "obfuscation", per the implementer's choice documented in SPEC_FULL.md
// §9: the on-disk `obfuscated` flag semantics are unchanged, but the bytes
// are genuinely encrypted with chacha20poly1305 keyed from a SHA-256
// derivation of CacheConfig.ObfuscationKey.
func seal(plaintext []byte, key string) ([]byte, error) {
	aead, err := newAEAD(key)
	if err != nil {
		return nil, err
	}
	nonce := make([]byte, aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, err
	}
	return aead.Seal(nonce, nonce, plaintext, nil), nil
}

func open(ciphertext []byte, key string) ([]byte, error) {
	aead, err := newAEAD(key)
	if err != nil {
		return nil, err
	}
	if len(ciphertext) < aead.NonceSize() {
		return nil, fmt.Errorf("ciphertext too short")
	}
	nonce, sealed := ciphertext[:aead.NonceSize()], ciphertext[aead.NonceSize():]
	return aead.Open(nil, nonce, sealed, nil)
}

func newAEAD(key string) (interface {
	NonceSize() int
	Overhead() int
	Seal(dst, nonce, plaintext, additionalData []byte) []byte
	Open(dst, nonce, ciphertext, additionalData []byte) ([]byte, error)
}, error) {
	sum := sha256.Sum256([]byte(key))
	return chacha20poly1305.New(sum[:])
}
