package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"

	"github.com/klauspost/compress/zstd"
)

// ContentTypeZstd marks zstd-compressed artefacts.
const ContentTypeZstd = "application/zstd"

// PutCompressed stores data zstd-compressed under objectKey.
func PutCompressed(ctx context.Context, store ObjectStorage, bucket, objectKey string, data []byte) error {
	enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return fmt.Errorf("create zstd encoder failed: %w", err)
	}
	compressed := enc.EncodeAll(data, nil)
	_ = enc.Close()
	return store.PutObject(ctx, bucket, objectKey, bytes.NewReader(compressed), int64(len(compressed)), ContentTypeZstd)
}

// GetCompressed reads and decompresses an object written by PutCompressed.
func GetCompressed(ctx context.Context, store ObjectStorage, bucket, objectKey string) ([]byte, error) {
	rc, err := store.GetObject(ctx, bucket, objectKey)
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	dec, err := zstd.NewReader(rc)
	if err != nil {
		return nil, fmt.Errorf("create zstd decoder failed: %w", err)
	}
	defer dec.Close()

	data, err := io.ReadAll(dec)
	if err != nil {
		return nil, fmt.Errorf("decompress object failed: %w", err)
	}
	return data, nil
}
