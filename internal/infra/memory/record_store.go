package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"quiz-battle/internal/app"
	"quiz-battle/internal/domain"
)

type submissionKey struct {
	userID     string
	questionID string
}

type resultKey struct {
	contestID string
	userID    string
}

// RecordStore is an in-memory implementation of app.RecordStore. It also serves as
// the ContestLoader behind the contest cache.
type RecordStore struct {
	mu           sync.RWMutex
	now          func() time.Time
	contests     map[string]domain.Contest
	participants map[string]map[string]domain.Participant
	submissions  map[submissionKey]domain.Submission
	byQuestion   map[string][]submissionKey
	results      map[resultKey]domain.Result
	users        map[string]string
	userBatches  map[string][]string
}

func NewRecordStore() *RecordStore {
	return &RecordStore{
		now:          time.Now,
		contests:     make(map[string]domain.Contest),
		participants: make(map[string]map[string]domain.Participant),
		submissions:  make(map[submissionKey]domain.Submission),
		byQuestion:   make(map[string][]submissionKey),
		results:      make(map[resultKey]domain.Result),
		users:        make(map[string]string),
		userBatches:  make(map[string][]string),
	}
}

// PutContest inserts or replaces a contest; questions are sorted by OrderIndex.
func (s *RecordStore) PutContest(contest domain.Contest) {
	contest = cloneContest(contest)
	sort.SliceStable(contest.Questions, func(i, j int) bool {
		return contest.Questions[i].OrderIndex < contest.Questions[j].OrderIndex
	})
	for i := range contest.Questions {
		contest.Questions[i].ContestID = contest.ID
	}
	if contest.Status == "" {
		contest.Status = domain.StatusDraft
	}

	s.mu.Lock()
	s.contests[contest.ID] = contest
	s.mu.Unlock()
}

// DeleteContest removes a contest as an administrator would.
func (s *RecordStore) DeleteContest(contestID string) {
	s.mu.Lock()
	delete(s.contests, contestID)
	s.mu.Unlock()
}

// SetStatus forces a status regardless of lifecycle order.
func (s *RecordStore) SetStatus(contestID string, status domain.ContestStatus) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if c, ok := s.contests[contestID]; ok {
		c.Status = status
		s.contests[contestID] = c
	}
}

// PutUser records a display name and batch memberships.
func (s *RecordStore) PutUser(userID, name string, batchIDs ...string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users[userID] = name
	s.userBatches[userID] = append([]string(nil), batchIDs...)
}

// Participants returns the members of a contest ordered by join time.
func (s *RecordStore) Participants(contestID string) []domain.Participant {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.Participant, 0, len(s.participants[contestID]))
	for _, p := range s.participants[contestID] {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].JoinedAt.Before(out[j].JoinedAt) })
	return out
}

func (s *RecordStore) LoadContest(_ context.Context, contestID string) (domain.Contest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	contest, ok := s.contests[contestID]
	if !ok {
		return domain.Contest{}, domain.ErrContestNotFound
	}
	return cloneContest(contest), nil
}

func (s *RecordStore) GetContestStatus(_ context.Context, contestID string) (domain.ContestStatus, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	contest, ok := s.contests[contestID]
	if !ok {
		return "", domain.ErrContestNotFound
	}
	return contest.Status, nil
}

func (s *RecordStore) AddParticipant(_ context.Context, contestID, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.contests[contestID]; !ok {
		return domain.ErrContestNotFound
	}
	members, ok := s.participants[contestID]
	if !ok {
		members = make(map[string]domain.Participant)
		s.participants[contestID] = members
	}
	if _, ok := members[userID]; !ok {
		members[userID] = domain.Participant{ContestID: contestID, UserID: userID, JoinedAt: s.now()}
	}
	return nil
}

func (s *RecordStore) CreateSubmissionIfAbsent(_ context.Context, submission domain.Submission) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.contests[submission.ContestID]; !ok {
		return domain.ErrContestNotFound
	}
	key := submissionKey{userID: submission.UserID, questionID: submission.QuestionID}
	if _, ok := s.submissions[key]; ok {
		return domain.ErrDuplicateSubmission
	}
	submission.OptionIDs = append([]string(nil), submission.OptionIDs...)
	s.submissions[key] = submission
	qk := submission.ContestID + "/" + submission.QuestionID
	s.byQuestion[qk] = append(s.byQuestion[qk], key)
	return nil
}

// Submission returns the stored answer for (user, question).
func (s *RecordStore) Submission(userID, questionID string) (domain.Submission, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sub, ok := s.submissions[submissionKey{userID: userID, questionID: questionID}]
	return sub, ok
}

func (s *RecordStore) FindSubmissions(_ context.Context, contestID, questionID string) ([]domain.Submission, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	keys := s.byQuestion[contestID+"/"+questionID]
	out := make([]domain.Submission, 0, len(keys))
	for _, k := range keys {
		out = append(out, s.submissions[k])
	}
	return out, nil
}

func (s *RecordStore) UpdateContestStatusIf(_ context.Context, contestID string, unless, to domain.ContestStatus) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.updateStatusLocked(contestID, unless, to), nil
}

func (s *RecordStore) UpsertResult(_ context.Context, result domain.Result) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.results[resultKey{contestID: result.ContestID, userID: result.UserID}] = result
	return nil
}

func (s *RecordStore) ListResults(_ context.Context, contestID string) ([]domain.Result, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []domain.Result
	for k, r := range s.results {
		if k.contestID == contestID {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Rank < out[j].Rank })
	return out, nil
}

func (s *RecordStore) ResolveUserNames(_ context.Context, userIDs []string) (map[string]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	names := make(map[string]string, len(userIDs))
	for _, id := range userIDs {
		if name, ok := s.users[id]; ok {
			names[id] = name
		}
	}
	return names, nil
}

func (s *RecordStore) UserBatchIDs(_ context.Context, userID string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]string(nil), s.userBatches[userID]...), nil
}

func (s *RecordStore) PromoteWaiting(_ context.Context, startBefore time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for id, c := range s.contests {
		if c.Status == domain.StatusPublished && !c.StartTime.After(startBefore) {
			c.Status = domain.StatusWaiting
			s.contests[id] = c
			n++
		}
	}
	return n, nil
}

func (s *RecordStore) PromoteLive(_ context.Context, now time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for id, c := range s.contests {
		if c.Status == domain.StatusWaiting && !c.StartTime.After(now) && c.EndTime().After(now) {
			c.Status = domain.StatusLive
			s.contests[id] = c
			n++
		}
	}
	return n, nil
}

func (s *RecordStore) ListEnded(_ context.Context, now time.Time) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var ids []string
	for id, c := range s.contests {
		if c.Status.Streamable() && !c.EndTime().After(now) {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids, nil
}

// InTx serializes fn against every other store operation and applies its writes only if fn succeeds.
func (s *RecordStore) InTx(_ context.Context, fn func(tx app.FinalizeTx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx := &recordTx{store: s, statuses: make(map[string]domain.ContestStatus)}
	if err := fn(tx); err != nil {
		return err
	}
	for id, status := range tx.statuses {
		c := s.contests[id]
		c.Status = status
		s.contests[id] = c
	}
	for _, r := range tx.results {
		s.results[resultKey{contestID: r.ContestID, userID: r.UserID}] = r
	}
	return nil
}

func (s *RecordStore) updateStatusLocked(contestID string, unless, to domain.ContestStatus) int64 {
	c, ok := s.contests[contestID]
	if !ok || c.Status == unless {
		return 0
	}
	c.Status = to
	s.contests[contestID] = c
	return 1
}

// recordTx stages writes while RecordStore.InTx holds the store lock.
type recordTx struct {
	store    *RecordStore
	statuses map[string]domain.ContestStatus
	results  []domain.Result
}

func (tx *recordTx) UpdateContestStatusIf(_ context.Context, contestID string, unless, to domain.ContestStatus) (int64, error) {
	c, ok := tx.store.contests[contestID]
	if !ok {
		return 0, nil
	}
	current := c.Status
	if staged, ok := tx.statuses[contestID]; ok {
		current = staged
	}
	if current == unless {
		return 0, nil
	}
	tx.statuses[contestID] = to
	return 1, nil
}

func (tx *recordTx) UpsertResult(_ context.Context, result domain.Result) error {
	tx.results = append(tx.results, result)
	return nil
}

func cloneContest(c domain.Contest) domain.Contest {
	c.BatchIDs = append([]string(nil), c.BatchIDs...)
	questions := make([]domain.Question, len(c.Questions))
	for i, q := range c.Questions {
		q.Options = append([]domain.Option(nil), q.Options...)
		questions[i] = q
	}
	c.Questions = questions
	return c
}
