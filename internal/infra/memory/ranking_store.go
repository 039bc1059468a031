package memory

import (
	"context"
	"sort"
	"sync"

	"quiz-battle/internal/domain"
)

// RankingStore keeps one ranked set per contest in process memory.
// Ties are ordered by the sequence in which users first entered the set.
type RankingStore struct {
	mu     sync.Mutex
	boards map[string]*board
}

type board struct {
	nextSeq int64
	entries map[string]*rankEntry
}

type rankEntry struct {
	userID string
	score  int
	seq    int64
}

func NewRankingStore() *RankingStore {
	return &RankingStore{boards: make(map[string]*board)}
}

func (s *RankingStore) Upsert(_ context.Context, contestID, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entryLocked(contestID, userID)
	return nil
}

func (s *RankingStore) Increment(_ context.Context, contestID, userID string, delta int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entryLocked(contestID, userID).score += delta
	return nil
}

func (s *RankingStore) TopN(_ context.Context, contestID string, n int) ([]domain.RankedEntry, error) {
	s.mu.Lock()
	b, ok := s.boards[contestID]
	if !ok {
		s.mu.Unlock()
		return []domain.RankedEntry{}, nil
	}
	entries := make([]rankEntry, 0, len(b.entries))
	for _, e := range b.entries {
		entries = append(entries, *e)
	}
	s.mu.Unlock()

	sort.Slice(entries, func(i, j int) bool {
		if entries[i].score != entries[j].score {
			return entries[i].score > entries[j].score
		}
		return entries[i].seq < entries[j].seq
	})
	if n > 0 && len(entries) > n {
		entries = entries[:n]
	}

	out := make([]domain.RankedEntry, 0, len(entries))
	for _, e := range entries {
		out = append(out, domain.RankedEntry{UserID: e.userID, Score: e.score})
	}
	return out, nil
}

func (s *RankingStore) Clear(_ context.Context, contestID string) error {
	s.mu.Lock()
	delete(s.boards, contestID)
	s.mu.Unlock()
	return nil
}

func (s *RankingStore) entryLocked(contestID, userID string) *rankEntry {
	b, ok := s.boards[contestID]
	if !ok {
		b = &board{entries: make(map[string]*rankEntry)}
		s.boards[contestID] = b
	}
	e, ok := b.entries[userID]
	if !ok {
		b.nextSeq++
		e = &rankEntry{userID: userID, seq: b.nextSeq}
		b.entries[userID] = e
	}
	return e
}
