// Package store persists encoded ensemble artifacts.
package store

import (
	"bytes"
	"context"
	"errors"
	"fmt"

	"github.com/hed1ad/spendguard/pkg/detectors/iforest"
)

// ErrNotFound is returned when no artifact exists under a key.
var ErrNotFound = errors.New("artifact not found")

// Store saves and loads opaque artifact blobs by key.
type Store interface {
	Save(ctx context.Context, key string, data []byte) error
	Load(ctx context.Context, key string) ([]byte, error)
}

// HealthChecker is implemented by stores backed by a remote service.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// SaveEnsemble encodes e and saves it under key. It returns the encoded size.
func SaveEnsemble(ctx context.Context, s Store, key string, e *iforest.Ensemble) (int, error) {
	var buf bytes.Buffer
	if err := iforest.Encode(&buf, e); err != nil {
		return 0, err
	}
	if err := s.Save(ctx, key, buf.Bytes()); err != nil {
		return 0, fmt.Errorf("save %s: %w", key, err)
	}
	return buf.Len(), nil
}

// LoadEnsemble loads and decodes the ensemble stored under key.
func LoadEnsemble(ctx context.Context, s Store, key string) (*iforest.Ensemble, error) {
	data, err := s.Load(ctx, key)
	if err != nil {
		return nil, err
	}
	e, err := iforest.Unmarshal(data)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", key, err)
	}
	return e, nil
}
