package app

import (
	"context"
	"errors"
	"reflect"
	"sort"
	"sync"
	"time"

	"traffic-quiz-service/internal/domain"
	"traffic-quiz-service/internal/logger"
)

// MergeResults reconciles the local and remote histories. Remote entries win on
// id collisions, except that a local full payload survives when the remote copy
// is metadata-only. Every topic ends up newest first and bounded to HistoryLimit.
func MergeResults(local, remote domain.ResultsByTopic) domain.ResultsByTopic {
	merged := make(map[string]map[string]domain.TestResult)
	put := func(key string, r domain.TestResult, authoritative bool) {
		key = domain.TopicKey(key)
		r.TopicID = key
		bucket, ok := merged[key]
		if !ok {
			bucket = make(map[string]domain.TestResult)
			merged[key] = bucket
		}
		existing, seen := bucket[r.ID]
		switch {
		case !seen:
			bucket[r.ID] = r
		case authoritative:
			if !r.IsFull() && existing.IsFull() {
				r.ResultPayload = existing.ResultPayload
			}
			bucket[r.ID] = r
		case r.IsFull() && !existing.IsFull():
			existing.ResultPayload = r.ResultPayload
			bucket[r.ID] = existing
		}
	}

	for key, list := range local {
		for _, r := range list {
			put(key, r, false)
		}
	}
	for key, list := range remote {
		for _, r := range list {
			put(key, r, true)
		}
	}

	out := make(domain.ResultsByTopic, len(merged))
	for key, bucket := range merged {
		list := make([]domain.TestResult, 0, len(bucket))
		for _, r := range bucket {
			list = append(list, r)
		}
		out[key] = bound(list)
	}
	return out
}

// GroupByTopic buckets a flat list of results by normalized topic key.
func GroupByTopic(results []domain.TestResult) domain.ResultsByTopic {
	out := make(domain.ResultsByTopic)
	for _, r := range results {
		key := domain.TopicKey(r.TopicID)
		r.TopicID = key
		out[key] = append(out[key], r)
	}
	for key, list := range out {
		out[key] = bound(list)
	}
	return out
}

func bound(list []domain.TestResult) []domain.TestResult {
	domain.SortNewestFirst(list)
	if len(list) > domain.HistoryLimit {
		list = list[:domain.HistoryLimit]
	}
	return list
}

// TopicStats summarizes a topic's retained history.
type TopicStats struct {
	TopicID  string `json:"topicId"`
	Attempts int    `json:"attempts"`
	Best     int    `json:"best"`
	Last     int    `json:"last"`
	Average  int    `json:"average"`
}

// ResultService owns the merged result view per user.
type ResultService struct {
	local  LocalResultCache
	remote RemoteResultStore
	misses ErrorHistory
	log    *logger.Logger
	now    func() time.Time

	mu    sync.RWMutex
	views map[int64]domain.ResultsByTopic
}

func NewResultService(local LocalResultCache, remote RemoteResultStore, misses ErrorHistory, log *logger.Logger) *ResultService {
	if isNilValue(misses) {
		misses = nil
	}
	return &ResultService{
		local:  local,
		remote: remote,
		misses: misses,
		log:    log.With("component", "results"),
		now:    time.Now,
		views:  make(map[int64]domain.ResultsByTopic),
	}
}

// Sync merges the local and remote histories and writes the merged view back.
// Either source failing degrades to an empty map for that side.
func (s *ResultService) Sync(ctx context.Context, userID int64) (domain.ResultsByTopic, error) {
	local, err := s.local.Load(ctx, userID)
	if err != nil {
		s.log.Warn("local results unreadable, continuing without", "user_id", userID, "error", err)
		local = domain.ResultsByTopic{}
	}

	remote := domain.ResultsByTopic{}
	rows, err := s.remote.ListByUser(ctx, userID)
	if err != nil {
		s.log.Warn("remote results unavailable, using local only", "user_id", userID, "error", err)
	} else {
		remote = GroupByTopic(rows)
	}

	merged := MergeResults(local, remote)
	s.persist(ctx, userID, merged)
	s.setView(userID, merged)
	return merged.Clone(), nil
}

// Record appends a finished test to the user's history, persists it locally and
// remotely, and feeds wrong answers into the error history.
func (s *ResultService) Record(ctx context.Context, userID int64, result domain.TestResult) (domain.ResultsByTopic, error) {
	result.TopicID = domain.TopicKey(result.TopicID)
	if result.ID == "" {
		result.ID = domain.NewResult(result.TopicID, 0, 0, 0, 0, nil, s.now()).ID
	}
	if result.DateTime.IsZero() {
		result.DateTime = s.now().UTC()
	}
	if err := result.Validate(); err != nil {
		return nil, err
	}

	view, ok := s.view(userID)
	if !ok {
		loaded, err := s.local.Load(ctx, userID)
		if err != nil {
			s.log.Warn("local results unreadable before record", "user_id", userID, "error", err)
			loaded = domain.ResultsByTopic{}
		}
		view = loaded
	}
	view = MergeResults(view, domain.ResultsByTopic{result.TopicID: {result}})

	s.persist(ctx, userID, view)
	s.setView(userID, view)

	if err := s.remote.Insert(ctx, userID, result); err != nil {
		s.log.Warn("remote insert failed, result kept locally", "user_id", userID, "result_id", result.ID, "error", err)
	}
	if missed := result.MissedQuestionIDs(); len(missed) > 0 && s.misses != nil {
		if err := s.misses.RecordMisses(ctx, userID, result.TopicID, missed); err != nil {
			s.log.Warn("error history update failed", "user_id", userID, "topic", result.TopicID, "error", err)
		}
	}
	return view.Clone(), nil
}

// Review returns a full result for the answer review screen.
func (s *ResultService) Review(ctx context.Context, userID int64, topic any, resultID string) (domain.TestResult, error) {
	view, ok := s.view(userID)
	if !ok {
		var err error
		if view, err = s.Sync(ctx, userID); err != nil {
			return domain.TestResult{}, err
		}
	}
	for _, r := range view.Get(topic) {
		if r.ID != resultID {
			continue
		}
		if !r.IsFull() {
			return r, domain.ErrResultPayloadUnavailable
		}
		return r, nil
	}
	return domain.TestResult{}, domain.ErrResultNotFound
}

// Current returns the last merged view held for the user.
func (s *ResultService) Current(userID int64) domain.ResultsByTopic {
	view, _ := s.view(userID)
	return view.Clone()
}

// Stats computes per-topic aggregates over the retained history.
func (s *ResultService) Stats(userID int64) []TopicStats {
	view, _ := s.view(userID)
	stats := make([]TopicStats, 0, len(view))
	for key, list := range view {
		if len(list) == 0 {
			continue
		}
		st := TopicStats{TopicID: key, Attempts: len(list), Last: list[0].Percentage}
		sum := 0
		for _, r := range list {
			sum += r.Percentage
			if r.Percentage > st.Best {
				st.Best = r.Percentage
			}
		}
		st.Average = (sum + len(list)/2) / len(list)
		stats = append(stats, st)
	}
	sort.Slice(stats, func(i, j int) bool { return stats[i].TopicID < stats[j].TopicID })
	return stats
}

func (s *ResultService) persist(ctx context.Context, userID int64, results domain.ResultsByTopic) {
	err := s.local.Save(ctx, userID, results)
	if errors.Is(err, domain.ErrStorageQuotaExceeded) {
		s.log.Info("local cache full, saving metadata only", "user_id", userID)
		err = s.local.Save(ctx, userID, results.Summaries())
	}
	if err != nil {
		s.log.Warn("local results write failed", "user_id", userID, "error", err)
	}
}

func (s *ResultService) view(userID int64) (domain.ResultsByTopic, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.views[userID]
	return v, ok
}

func (s *ResultService) setView(userID int64, v domain.ResultsByTopic) {
	s.mu.Lock()
	s.views[userID] = v
	s.mu.Unlock()
}

// isNilValue catches typed nil pointers stored in an interface.
func isNilValue(v any) bool {
	if v == nil {
		return true
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Pointer, reflect.Map, reflect.Slice, reflect.Func, reflect.Chan, reflect.Interface:
		return rv.IsNil()
	}
	return false
}
