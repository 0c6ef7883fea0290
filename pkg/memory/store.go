package memory

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/dotsetgreg/dotpersona/pkg/logger"
	"github.com/dotsetgreg/dotpersona/pkg/personality"
)

const (
	profilePrefix = "user_"
	profileSuffix = ".json"
	backupSuffix  = ".backup"
)

// Options configures a Store.
type Options struct {
	Dir        string
	Bounds     personality.Bounds
	Capacities personality.Capacities
}

// Store is the per-user profile store: one JSON file per user, a read cache,
// and one write token per user. It is the only owner of UserProfile state.
type Store struct {
	dir    string
	bounds personality.Bounds
	caps   personality.Capacities
	now    func() time.Time

	cacheMu sync.RWMutex
	cache   map[string]personality.UserProfile

	locksMu sync.Mutex
	locks   map[string]*sync.Mutex

	loads singleflight.Group

	// readFile and writeFile are swapped in tests to inject I/O faults.
	readFile  func(name string) ([]byte, error)
	writeFile func(name string, data []byte, perm os.FileMode) error
}

// NewStore creates the profile directory if needed.
func NewStore(opts Options) (*Store, error) {
	if strings.TrimSpace(opts.Dir) == "" {
		return nil, fmt.Errorf("memory: profile directory is required")
	}
	if err := os.MkdirAll(opts.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("create profile dir: %w", err)
	}
	if opts.Bounds == nil {
		opts.Bounds = personality.DefaultBounds()
	}
	if opts.Capacities.History <= 0 {
		opts.Capacities.History = personality.DefaultStoreHistory
	}
	if opts.Capacities.Progression <= 0 {
		opts.Capacities.Progression = personality.DefaultProgression
	}
	return &Store{
		dir:       opts.Dir,
		bounds:    opts.Bounds,
		caps:      opts.Capacities,
		now:       time.Now,
		cache:     map[string]personality.UserProfile{},
		locks:     map[string]*sync.Mutex{},
		readFile:  os.ReadFile,
		writeFile: os.WriteFile,
	}, nil
}

// SetClock overrides the time source.
func (s *Store) SetClock(now func() time.Time) { s.now = now }

func (s *Store) Dir() string { return s.dir }

// GetProfile returns the profile for userID from cache, then disk, then a
// fresh default. Read errors are logged and never returned.
func (s *Store) GetProfile(ctx context.Context, userID string) personality.UserProfile {
	if strings.TrimSpace(userID) == "" {
		return personality.NewProfile(userID, s.now(), s.caps)
	}
	if p, ok := s.cached(userID); ok {
		return p
	}
	v, _, _ := s.loads.Do(userID, func() (interface{}, error) {
		mu := s.userLock(userID)
		mu.Lock()
		defer mu.Unlock()
		p, _ := s.loadLocked(ctx, userID)
		return p, nil
	})
	return v.(personality.UserProfile).Clone()
}

// UpdateProfile persists profile as the new record for userID.
func (s *Store) UpdateProfile(ctx context.Context, userID string, profile personality.UserProfile) error {
	if strings.TrimSpace(userID) == "" {
		return ErrEmptyUserID
	}
	mu := s.userLock(userID)
	mu.Lock()
	defer mu.Unlock()

	profile = profile.Clone()
	profile.Normalize(userID, s.bounds, s.caps, s.now())
	return s.persistLocked(ctx, userID, profile)
}

// Update runs fn on the current profile and persists the result while
// holding the user's write token, so concurrent updates are not lost.
// Nothing is written if fn returns an error.
func (s *Store) Update(ctx context.Context, userID string, fn func(*personality.UserProfile) error) (personality.UserProfile, error) {
	if strings.TrimSpace(userID) == "" {
		return personality.UserProfile{}, ErrEmptyUserID
	}
	mu := s.userLock(userID)
	mu.Lock()
	defer mu.Unlock()

	current, ok := s.cached(userID)
	if !ok {
		loaded, err := s.loadLocked(ctx, userID)
		if err != nil {
			return personality.UserProfile{}, err
		}
		current = loaded.Clone()
	}
	if err := fn(&current); err != nil {
		return personality.UserProfile{}, err
	}
	current.Normalize(userID, s.bounds, s.caps, s.now())
	if err := s.persistLocked(ctx, userID, current); err != nil {
		return personality.UserProfile{}, err
	}
	return current.Clone(), nil
}

// AddConversationEntry appends e to the user's history at store capacity.
func (s *Store) AddConversationEntry(ctx context.Context, userID string, e personality.ConversationEntry) error {
	_, err := s.Update(ctx, userID, func(p *personality.UserProfile) error {
		if e.Timestamp.IsZero() {
			e.Timestamp = s.now().UTC()
		}
		p.AppendHistory(e, s.caps.History)
		p.LastUpdated = s.now().UTC()
		return nil
	})
	return err
}

// UpdateEvolutionMetrics records one adaptation's deltas.
func (s *Store) UpdateEvolutionMetrics(ctx context.Context, userID string, deltas personality.Deltas, stabilityWindow int) error {
	_, err := s.Update(ctx, userID, func(p *personality.UserProfile) error {
		now := s.now().UTC()
		p.EvolutionMetrics.Record(now, deltas, stabilityWindow)
		p.LastUpdated = now
		return nil
	})
	return err
}

// ClearCache drops every cached profile. The next read goes to disk.
func (s *Store) ClearCache() {
	s.cacheMu.Lock()
	s.cache = map[string]personality.UserProfile{}
	s.cacheMu.Unlock()
	logger.DebugC("memory", "Profile cache cleared")
}

// ListUsers returns every user id known on disk or in cache, sorted.
func (s *Store) ListUsers(ctx context.Context) ([]string, error) {
	seen := map[string]struct{}{}
	entries, err := os.ReadDir(s.dir)
	if err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("list profiles: %w", err)
	}
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if id, ok := userIDFromFile(entry.Name()); ok {
			seen[id] = struct{}{}
		}
	}
	s.cacheMu.RLock()
	for id := range s.cache {
		seen[id] = struct{}{}
	}
	s.cacheMu.RUnlock()

	out := make([]string, 0, len(seen))
	for id := range seen {
		out = append(out, id)
	}
	sort.Strings(out)
	return out, nil
}

func (s *Store) known(userID string) bool {
	if _, ok := s.cached(userID); ok {
		return true
	}
	_, err := os.Stat(s.profilePath(userID))
	return err == nil
}

func (s *Store) cached(userID string) (personality.UserProfile, bool) {
	s.cacheMu.RLock()
	defer s.cacheMu.RUnlock()
	p, ok := s.cache[userID]
	if !ok {
		return personality.UserProfile{}, false
	}
	return p.Clone(), true
}

func (s *Store) setCache(userID string, p personality.UserProfile) {
	s.cacheMu.Lock()
	s.cache[userID] = p.Clone()
	s.cacheMu.Unlock()
}

// userLock returns the write token for userID. Tokens are never removed so
// every writer for one user contends on the same mutex.
func (s *Store) userLock(userID string) *sync.Mutex {
	s.locksMu.Lock()
	defer s.locksMu.Unlock()
	mu, ok := s.locks[userID]
	if !ok {
		mu = &sync.Mutex{}
		s.locks[userID] = mu
	}
	return mu
}

// loadLocked reads the profile from disk. Only a decoded record or a fresh
// profile for a missing file is cached. A record that cannot be read returns
// a default with ErrReadFailed; an undecodable one returns a default that
// the next write replaces. Caller holds the user's write token.
func (s *Store) loadLocked(ctx context.Context, userID string) (personality.UserProfile, error) {
	if p, ok := s.cached(userID); ok {
		return p, nil
	}
	now := s.now()
	profile := personality.NewProfile(userID, now, s.caps)

	raw, err := s.readFile(s.profilePath(userID))
	switch {
	case err == nil:
		decoded, decErr := personality.Unmarshal(raw, userID, s.bounds, s.caps, now)
		if decErr != nil {
			logger.WarnCF("memory", "Unreadable profile, starting fresh", map[string]interface{}{
				"user_id": userID,
				"error":   decErr.Error(),
			})
			return profile, nil
		}
		profile = decoded
	case errors.Is(err, os.ErrNotExist):
	default:
		logger.WarnCF("memory", "Profile read failed, using defaults", map[string]interface{}{
			"user_id": userID,
			"error":   err.Error(),
		})
		return profile, fmt.Errorf("%w: %s: %v", ErrReadFailed, userID, err)
	}
	s.setCache(userID, profile)
	return profile, nil
}

// persistLocked writes profile using backup, write, drop-backup. On a failed
// write the previous record is restored from the backup. Caller holds the
// user's write token.
func (s *Store) persistLocked(ctx context.Context, userID string, profile personality.UserProfile) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := personality.Marshal(profile)
	if err != nil {
		return fmt.Errorf("encode profile %s: %w", userID, err)
	}

	primary := s.profilePath(userID)
	backup := primary + backupSuffix

	hadPrimary := false
	if _, statErr := os.Stat(primary); statErr == nil {
		if err := copyFile(primary, backup); err != nil {
			return fmt.Errorf("back up profile %s: %w", userID, err)
		}
		hadPrimary = true
	}

	if err := s.writeFile(primary, data, 0o644); err != nil {
		if hadPrimary {
			if restoreErr := copyFile(backup, primary); restoreErr != nil {
				logger.ErrorCF("memory", "Profile restore failed", map[string]interface{}{
					"user_id": userID,
					"error":   restoreErr.Error(),
				})
				return fmt.Errorf("%w: %s: %v (restore: %v)", ErrWriteFailed, userID, err, restoreErr)
			}
			_ = os.Remove(backup)
		} else {
			_ = os.Remove(primary)
		}
		logger.ErrorCF("memory", "Profile write failed, previous record kept", map[string]interface{}{
			"user_id": userID,
			"error":   err.Error(),
		})
		return fmt.Errorf("%w: %s: %v", ErrWriteFailed, userID, err)
	}

	if hadPrimary {
		_ = os.Remove(backup)
	}
	s.setCache(userID, profile)
	return nil
}

func (s *Store) profilePath(userID string) string {
	return filepath.Join(s.dir, profileFileName(userID))
}

func profileFileName(userID string) string {
	return profilePrefix + url.PathEscape(userID) + profileSuffix
}

func userIDFromFile(name string) (string, bool) {
	if !strings.HasPrefix(name, profilePrefix) || !strings.HasSuffix(name, profileSuffix) {
		return "", false
	}
	escaped := strings.TrimSuffix(strings.TrimPrefix(name, profilePrefix), profileSuffix)
	id, err := url.PathUnescape(escaped)
	if err != nil || id == "" {
		return "", false
	}
	return id, true
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		_ = out.Close()
		return err
	}
	if err := out.Sync(); err != nil {
		_ = out.Close()
		return err
	}
	return out.Close()
}
