package metadata

import (
	"context"
	"fmt"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/finsight-hq/finsight-engine/pkg/apperrors"
)

// Store holds the current metadata snapshot and swaps it atomically on
// refresh. Readers always see a complete snapshot; resolutions that started
// before a refresh keep the snapshot they started with.
type Store struct {
	loader  *Loader
	logger  *zap.Logger
	current atomic.Pointer[Snapshot]
}

// NewStore creates a store over a loader. No snapshot is available until
// Load succeeds.
func NewStore(loader *Loader, logger *zap.Logger) *Store {
	return &Store{loader: loader, logger: logger}
}

// NewStaticStore wraps an already-built snapshot. Refresh is unavailable;
// callers that need it construct the store over a loader instead.
func NewStaticStore(snap *Snapshot) *Store {
	s := &Store{logger: zap.NewNop()}
	s.current.Store(snap)
	return s
}

// Load performs the initial metadata load. The engine refuses to serve
// resolutions until this has succeeded once.
func (s *Store) Load(ctx context.Context) error {
	if err := s.Refresh(ctx); err != nil {
		return fmt.Errorf("%w: %v", apperrors.ErrMetadataLoad, err)
	}
	return nil
}

// Refresh loads a fresh snapshot and swaps it in. On failure the previous
// snapshot stays current.
func (s *Store) Refresh(ctx context.Context) error {
	if s.loader == nil {
		return fmt.Errorf("%w: store has no loader", apperrors.ErrMetadataLoad)
	}
	snap, err := s.loader.Load(ctx)
	if err != nil {
		s.logger.Error("Metadata refresh failed", zap.Error(err))
		return err
	}

	s.current.Store(snap)
	s.logger.Info("Metadata snapshot loaded",
		zap.Int("companies", len(snap.Companies())),
		zap.Int("regular_heads", len(snap.RegularHeads())),
		zap.Int("ratio_heads", len(snap.RatioHeads())),
		zap.Int("terms", len(snap.Terms())),
		zap.Int("consolidations", len(snap.Consolidations())),
		zap.Time("loaded_at", snap.LoadedAt()))
	return nil
}

// Current returns the active snapshot, or nil before the first successful
// load.
func (s *Store) Current() *Snapshot {
	return s.current.Load()
}
