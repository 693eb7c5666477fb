package domain

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// HistoryLimit is the number of results kept per topic.
const HistoryLimit = 5

// ResultSummary is the metadata every result carries, local or remote.
type ResultSummary struct {
	ID         string    `json:"id"`
	TopicID    string    `json:"topicId"`
	Correct    int       `json:"correct"`
	Total      int       `json:"total"`
	Answered   int       `json:"answered"`
	Percentage int       `json:"percentage"`
	TimeSpent  int       `json:"time"`
	DateTime   time.Time `json:"dateTime"`
}

// ResultPayload is the full question/answer data only the originating session holds.
type ResultPayload struct {
	Questions   []Question   `json:"questions,omitempty"`
	UserAnswers []UserAnswer `json:"userAnswers,omitempty"`
}

// TestResult is either a Summary (payload nil) or a Full result.
type TestResult struct {
	ResultSummary
	*ResultPayload
}

// NewResult builds a locally generated full result at completion time.
func NewResult(topic any, correct, total, answered, timeSpent int, payload *ResultPayload, now time.Time) TestResult {
	key := TopicKey(topic)
	return TestResult{
		ResultSummary: ResultSummary{
			ID:         fmt.Sprintf("%s-%d-%s", key, now.UnixMilli(), uuid.NewString()[:8]),
			TopicID:    key,
			Correct:    correct,
			Total:      total,
			Answered:   answered,
			Percentage: ResolvePercentage(nil, correct, total),
			TimeSpent:  timeSpent,
			DateTime:   now.UTC(),
		},
		ResultPayload: payload,
	}
}

// Validate checks the counters of a result.
func (s ResultSummary) Validate() error {
	switch {
	case s.Total < 0:
		return fmt.Errorf("%w: total %d is negative", ErrInvalidResult, s.Total)
	case s.Correct < 0 || s.Correct > s.Total:
		return fmt.Errorf("%w: correct %d outside 0..%d", ErrInvalidResult, s.Correct, s.Total)
	case s.Answered < 0 || s.Answered > s.Total:
		return fmt.Errorf("%w: answered %d outside 0..%d", ErrInvalidResult, s.Answered, s.Total)
	case s.TimeSpent < 0:
		return fmt.Errorf("%w: time %d is negative", ErrInvalidResult, s.TimeSpent)
	case s.Percentage < 0 || s.Percentage > 100:
		return fmt.Errorf("%w: percentage %d outside 0..100", ErrInvalidResult, s.Percentage)
	}
	return nil
}

// IsFull reports whether the question/answer payload is present.
func (r TestResult) IsFull() bool {
	return r.ResultPayload != nil && (len(r.ResultPayload.Questions) > 0 || len(r.ResultPayload.UserAnswers) > 0)
}

// Payload returns the full payload, or an empty one for a Summary result.
func (r TestResult) Payload() ResultPayload {
	if r.ResultPayload == nil {
		return ResultPayload{}
	}
	return *r.ResultPayload
}

// Summary drops the payload.
func (r TestResult) Summary() TestResult {
	return TestResult{ResultSummary: r.ResultSummary}
}

// MissedQuestionIDs lists the questions answered wrongly in a full result.
func (r TestResult) MissedQuestionIDs() []string {
	var ids []string
	for _, a := range r.Payload().UserAnswers {
		if !a.Correct && a.QuestionID != "" {
			ids = append(ids, a.QuestionID)
		}
	}
	return ids
}

// ResolvePercentage prefers a stored percentage and recomputes only when it is absent.
func ResolvePercentage(stored *int, correct, total int) int {
	if stored != nil {
		return *stored
	}
	if total <= 0 {
		return 0
	}
	return int(math.Round(float64(correct) / float64(total) * 100))
}

// TopicKey normalizes a topic identifier so that 42, "42" and " 42 " share a bucket.
// UUID topics are rendered in canonical lowercase form.
func TopicKey(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return canonicalString(t)
	case int:
		return strconv.Itoa(t)
	case int32:
		return strconv.FormatInt(int64(t), 10)
	case int64:
		return strconv.FormatInt(t, 10)
	case uint:
		return strconv.FormatUint(uint64(t), 10)
	case uint32:
		return strconv.FormatUint(uint64(t), 10)
	case uint64:
		return strconv.FormatUint(t, 10)
	case float32:
		return formatFloat(float64(t))
	case float64:
		return formatFloat(t)
	case uuid.UUID:
		return t.String()
	case fmt.Stringer:
		return canonicalString(t.String())
	default:
		return canonicalString(fmt.Sprint(t))
	}
}

func canonicalString(s string) string {
	s = strings.TrimSpace(s)
	if len(s) == 36 {
		if u, err := uuid.Parse(s); err == nil {
			return u.String()
		}
	}
	return s
}

func formatFloat(f float64) string {
	if f == math.Trunc(f) && !math.IsInf(f, 0) {
		return strconv.FormatInt(int64(f), 10)
	}
	return strconv.FormatFloat(f, 'f', -1, 64)
}

// ResultsByTopic maps a normalized topic key to its newest-first history.
type ResultsByTopic map[string][]TestResult

// Get looks a topic up by any representation of its key.
func (m ResultsByTopic) Get(topic any) []TestResult {
	return m[TopicKey(topic)]
}

// Summaries returns a metadata-only copy, used when a full write does not fit.
func (m ResultsByTopic) Summaries() ResultsByTopic {
	out := make(ResultsByTopic, len(m))
	for k, list := range m {
		trimmed := make([]TestResult, len(list))
		for i, r := range list {
			trimmed[i] = r.Summary()
		}
		out[k] = trimmed
	}
	return out
}

// Clone copies the map and its slices. Payload pointers are shared.
func (m ResultsByTopic) Clone() ResultsByTopic {
	out := make(ResultsByTopic, len(m))
	for k, list := range m {
		out[k] = append([]TestResult(nil), list...)
	}
	return out
}

// SortNewestFirst orders results by DateTime descending, then id descending.
func SortNewestFirst(list []TestResult) {
	sort.SliceStable(list, func(i, j int) bool {
		if !list[i].DateTime.Equal(list[j].DateTime) {
			return list[i].DateTime.After(list[j].DateTime)
		}
		return list[i].ID > list[j].ID
	})
}
