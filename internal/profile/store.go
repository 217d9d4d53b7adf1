package profile

import (
	"fmt"
	"sync/atomic"

	"transcript-pipeline/internal/logger"
	"transcript-pipeline/internal/types"
)

// Store holds an immutable snapshot of loaded profiles. Reload builds a new
// snapshot and swaps it atomically; readers never see a half-loaded state.
type Store struct {
	profilesDir string
	promptsDir  string
	snapshot    atomic.Pointer[map[string]*types.ProcessingProfile]
}

// NewStore loads the initial snapshot from disk.
func NewStore(profilesDir, promptsDir string) (*Store, error) {
	s := &Store{profilesDir: profilesDir, promptsDir: promptsDir}
	if err := s.Reload(); err != nil {
		return nil, err
	}
	return s, nil
}

// NewStaticStore wraps an in-memory profile set; used by tests and embedded
// setups that do not read configuration from disk.
func NewStaticStore(profiles map[string]*types.ProcessingProfile) *Store {
	s := &Store{}
	s.snapshot.Store(&profiles)
	return s
}

// Reload re-reads every profile from disk and swaps the snapshot. On error
// the previous snapshot stays in place.
func (s *Store) Reload() error {
	if s.profilesDir == "" {
		return fmt.Errorf("profile store is static, cannot reload")
	}
	profiles, err := LoadDir(s.profilesDir, s.promptsDir)
	if err != nil {
		return err
	}
	s.snapshot.Store(&profiles)
	logger.New().WithField("component", "profile").
		WithField("profiles", len(profiles)).Info("profile snapshot loaded")
	return nil
}

// Get returns the named profile from the current snapshot, or nil.
func (s *Store) Get(name string) *types.ProcessingProfile {
	snap := s.snapshot.Load()
	if snap == nil {
		return nil
	}
	return (*snap)[name]
}

// Names lists the profiles in the current snapshot.
func (s *Store) Names() []string {
	snap := s.snapshot.Load()
	if snap == nil {
		return nil
	}
	names := make([]string, 0, len(*snap))
	for name := range *snap {
		names = append(names, name)
	}
	return names
}
