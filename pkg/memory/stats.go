package memory

import (
	"context"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/dotsetgreg/dotpersona/pkg/personality"
)

const (
	activeWindow     = 7 * 24 * time.Hour
	statsConcurrency = 8
)

type UserStats struct {
	UserID                   string                     `json:"user_id" yaml:"user_id"`
	ConversationCount        int                        `json:"conversation_count" yaml:"conversation_count"`
	DaysActive               int                        `json:"days_active" yaml:"days_active"`
	CreatedAt                time.Time                  `json:"created_at" yaml:"created_at"`
	LastUpdated              time.Time                  `json:"last_updated" yaml:"last_updated"`
	PersonalityVector        personality.Vector         `json:"personality_vector" yaml:"personality_vector"`
	TotalAdaptations         int                        `json:"total_adaptations" yaml:"total_adaptations"`
	LargestPersonalityChange float64                    `json:"largest_personality_change" yaml:"largest_personality_change"`
	StabilityScore           float64                    `json:"stability_score" yaml:"stability_score"`
	ProgressionLength        int                        `json:"progression_length" yaml:"progression_length"`
	QualityMetrics           personality.QualityMetrics `json:"quality_metrics" yaml:"quality_metrics"`
}

type DimensionSummary struct {
	Average float64 `json:"average" yaml:"average"`
	Min     float64 `json:"min" yaml:"min"`
	Max     float64 `json:"max" yaml:"max"`
}

type GlobalStats struct {
	TotalUsers           int                                        `json:"total_users" yaml:"total_users"`
	TotalConversations   int                                        `json:"total_conversations" yaml:"total_conversations"`
	AverageConversations float64                                    `json:"average_conversations" yaml:"average_conversations"`
	ActiveUsers7d        int                                        `json:"active_users_7d" yaml:"active_users_7d"`
	Personality          map[personality.Dimension]DimensionSummary `json:"personality" yaml:"personality"`
}

// UserStats summarizes one known user. Unknown users yield ErrUserNotFound.
func (s *Store) UserStats(ctx context.Context, userID string) (UserStats, error) {
	if !s.known(userID) {
		return UserStats{}, fmt.Errorf("%w: %s", ErrUserNotFound, userID)
	}
	return s.statsFor(s.GetProfile(ctx, userID)), nil
}

func (s *Store) statsFor(p personality.UserProfile) UserStats {
	return UserStats{
		UserID:                   p.UserID,
		ConversationCount:        p.ConversationCount,
		DaysActive:               p.DaysActive(s.now()),
		CreatedAt:                p.CreatedAt,
		LastUpdated:              p.LastUpdated,
		PersonalityVector:        p.PersonalityVector.Clone(),
		TotalAdaptations:         p.EvolutionMetrics.TotalAdaptations,
		LargestPersonalityChange: p.EvolutionMetrics.LargestPersonalityChange,
		StabilityScore:           p.EvolutionMetrics.StabilityScore,
		ProgressionLength:        p.EvolutionMetrics.LearningProgression.Len(),
		QualityMetrics:           p.QualityMetrics,
	}
}

// GlobalStats aggregates conversation counts and personality values over all
// known users. Profiles are loaded concurrently.
func (s *Store) GlobalStats(ctx context.Context) (GlobalStats, error) {
	users, err := s.ListUsers(ctx)
	if err != nil {
		return GlobalStats{}, err
	}

	profiles := make([]personality.UserProfile, len(users))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(statsConcurrency)
	for i, id := range users {
		i, id := i, id
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			profiles[i] = s.GetProfile(gctx, id)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return GlobalStats{}, err
	}

	out := GlobalStats{
		TotalUsers:  len(profiles),
		Personality: map[personality.Dimension]DimensionSummary{},
	}
	if len(profiles) == 0 {
		return out, nil
	}

	now := s.now()
	sums := map[personality.Dimension]float64{}
	for _, d := range personality.Dimensions {
		out.Personality[d] = DimensionSummary{Min: math.Inf(1), Max: math.Inf(-1)}
	}
	for _, p := range profiles {
		out.TotalConversations += p.ConversationCount
		if now.Sub(p.LastUpdated) <= activeWindow {
			out.ActiveUsers7d++
		}
		for _, d := range personality.Dimensions {
			v := p.PersonalityVector.Get(d)
			sums[d] += v
			sum := out.Personality[d]
			sum.Min = math.Min(sum.Min, v)
			sum.Max = math.Max(sum.Max, v)
			out.Personality[d] = sum
		}
	}
	n := float64(len(profiles))
	out.AverageConversations = float64(out.TotalConversations) / n
	for _, d := range personality.Dimensions {
		sum := out.Personality[d]
		sum.Average = sums[d] / n
		out.Personality[d] = sum
	}
	return out, nil
}

type BackupReport struct {
	Dir   string `json:"dir" yaml:"dir"`
	Files int    `json:"files" yaml:"files"`
}

// BackupAll copies every persisted profile into dir. Each copy is taken
// under the user's write token so no half-written record is captured.
func (s *Store) BackupAll(ctx context.Context, dir string) (BackupReport, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return BackupReport{}, fmt.Errorf("create backup dir: %w", err)
	}
	users, err := s.ListUsers(ctx)
	if err != nil {
		return BackupReport{}, err
	}

	var (
		mu     sync.Mutex
		copied int
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(statsConcurrency)
	for _, id := range users {
		id := id
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			lock := s.userLock(id)
			lock.Lock()
			defer lock.Unlock()

			src := s.profilePath(id)
			if _, err := os.Stat(src); os.IsNotExist(err) {
				return nil
			}
			if err := copyFile(src, filepath.Join(dir, profileFileName(id))); err != nil {
				return fmt.Errorf("back up %s: %w", id, err)
			}
			mu.Lock()
			copied++
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return BackupReport{Dir: dir, Files: copied}, err
	}
	return BackupReport{Dir: dir, Files: copied}, nil
}

type CacheStats struct {
	CachedUsers int `json:"cached_users" yaml:"cached_users"`
	WriteTokens int `json:"write_tokens" yaml:"write_tokens"`
}

func (s *Store) CacheStats() CacheStats {
	s.cacheMu.RLock()
	cached := len(s.cache)
	s.cacheMu.RUnlock()
	s.locksMu.Lock()
	tokens := len(s.locks)
	s.locksMu.Unlock()
	return CacheStats{CachedUsers: cached, WriteTokens: tokens}
}
