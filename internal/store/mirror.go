package store

import (
	"context"
	"time"

	"github.com/miradorstack/cardinality-observer/internal/cache"
	"github.com/miradorstack/cardinality-observer/internal/models"
	"github.com/miradorstack/cardinality-observer/internal/utils"
)

// DefaultMirrorPrefix namespaces mirrored signal keys.
const DefaultMirrorPrefix = "cardinality-observer:signal"

// MirrorStore publishes the encoded signal under a cache key so remote
// reconcilers can read it without sharing a filesystem.
type MirrorStore struct {
	provider cache.Provider
	key      string
	ttl      time.Duration
}

// NewMirrorStore mirrors signals of one pipeline to prefix:pipeline.
func NewMirrorStore(provider cache.Provider, prefix, pipeline string, ttl time.Duration) *MirrorStore {
	if prefix == "" {
		prefix = DefaultMirrorPrefix
	}
	return &MirrorStore{provider: provider, key: prefix + ":" + pipeline, ttl: ttl}
}

// Key returns the cache key signals are written to.
func (m *MirrorStore) Key() string { return m.key }

// Write stores the YAML document under the mirror key.
func (m *MirrorStore) Write(ctx context.Context, signal models.ControlSignal) error {
	data, err := Encode(signal)
	if err != nil {
		return utils.NewAppError(utils.KindPersist, "mirror.write", "encode signal", err)
	}
	if err := m.provider.Set(ctx, m.key, data, m.ttl); err != nil {
		return utils.NewAppError(utils.KindPersist, "mirror.write", "publish signal", err)
	}
	return nil
}

// Read fetches and decodes the mirrored signal.
func (m *MirrorStore) Read(ctx context.Context) (models.ControlSignal, error) {
	data, err := m.provider.Get(ctx, m.key)
	if err != nil {
		return models.ControlSignal{}, err
	}
	return Decode(data)
}
