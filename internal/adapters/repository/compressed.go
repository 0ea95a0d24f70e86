package repository

import (
	"bytes"
	"context"
	"errors"
	"fmt"

	"github.com/klauspost/compress/zstd"
)

// zstdMagic prefixes every zstd frame. JSON payloads never start with it,
// so values written before compression was enabled stay readable.
var zstdMagic = []byte{0x28, 0xb5, 0x2f, 0xfd}

// CompressedBackend stores values zstd-compressed in the wrapped backend.
// Locks and event logs pass through untouched.
type CompressedBackend struct {
	Backend
	encoder *zstd.Encoder
	decoder *zstd.Decoder
}

// Compressed wraps b so that collection values are stored compressed.
func Compressed(b Backend) (*CompressedBackend, error) {
	encoder, err := zstd.NewWriter(nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create zstd encoder: %w", err)
	}
	decoder, err := zstd.NewReader(nil, zstd.WithDecoderConcurrency(0))
	if err != nil {
		return nil, fmt.Errorf("failed to create zstd decoder: %w", err)
	}
	return &CompressedBackend{Backend: b, encoder: encoder, decoder: decoder}, nil
}

func (c *CompressedBackend) compress(val []byte) []byte {
	return c.encoder.EncodeAll(val, make([]byte, 0, len(val)/2))
}

func (c *CompressedBackend) decompress(val []byte) ([]byte, error) {
	if !bytes.HasPrefix(val, zstdMagic) {
		return val, nil
	}
	return c.decoder.DecodeAll(val, nil)
}

func (c *CompressedBackend) Get(ctx context.Context, collection, key string) ([]byte, error) {
	raw, err := c.Backend.Get(ctx, collection, key)
	if err != nil {
		return nil, err
	}
	val, err := c.decompress(raw)
	return val, Wrap("decompress", collection, key, err)
}

func (c *CompressedBackend) Put(ctx context.Context, collection, key string, value []byte) error {
	return c.Backend.Put(ctx, collection, key, c.compress(value))
}

func (c *CompressedBackend) Values(ctx context.Context, collection string) ([][]byte, error) {
	raws, err := c.Backend.Values(ctx, collection)
	if err != nil {
		return nil, err
	}
	out := make([][]byte, 0, len(raws))
	for _, raw := range raws {
		val, err := c.decompress(raw)
		if err != nil {
			return nil, Wrap("decompress", collection, "", err)
		}
		out = append(out, val)
	}
	return out, nil
}

func (c *CompressedBackend) Entries(ctx context.Context, collection string) ([]Entry, error) {
	raws, err := c.Backend.Entries(ctx, collection)
	if err != nil {
		return nil, err
	}
	for i := range raws {
		val, err := c.decompress(raws[i].Value)
		if err != nil {
			return nil, Wrap("decompress", collection, raws[i].Key, err)
		}
		raws[i].Value = val
	}
	return raws, nil
}

// PutIf compares against the decompressed current value and swaps on the
// raw stored bytes, so the condition stays exact whatever encoding the
// current value was written with.
func (c *CompressedBackend) PutIf(ctx context.Context, collection, key string, expected, value []byte) (bool, error) {
	if expected == nil {
		return c.Backend.PutIf(ctx, collection, key, nil, c.compress(value))
	}
	raw, err := c.Backend.Get(ctx, collection, key)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return false, nil
		}
		return false, err
	}
	current, err := c.decompress(raw)
	if err != nil {
		return false, Wrap("decompress", collection, key, err)
	}
	if !bytes.Equal(current, expected) {
		return false, nil
	}
	return c.Backend.PutIf(ctx, collection, key, raw, c.compress(value))
}

func (c *CompressedBackend) Replace(ctx context.Context, collection, oldKey, newKey string, value []byte) error {
	return c.Backend.Replace(ctx, collection, oldKey, newKey, c.compress(value))
}

func (c *CompressedBackend) Name() string {
	return c.Backend.Name() + "+zstd"
}

func (c *CompressedBackend) Close() error {
	_ = c.encoder.Close()
	c.decoder.Close()
	return c.Backend.Close()
}
