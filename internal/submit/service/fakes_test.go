package service

import (
	"bytes"
	"context"
	"errors"
	"io"
	"sort"
	"sync"
	"testing"
	"time"

	"ucode/internal/common/cache"
	"ucode/internal/common/db"
	"ucode/internal/judge/lifecycle"
	"ucode/internal/judge/limits"
	"ucode/internal/judge/model"
	"ucode/internal/judge/poller"
	"ucode/internal/submit/repository"
	pkgrepo "ucode/pkg/repository"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

type fakeDB struct {
	transactions int
}

func (f *fakeDB) Query(context.Context, string, ...any) (db.Rows, error) {
	return nil, errors.New("not supported")
}
func (f *fakeDB) QueryRow(context.Context, string, ...any) db.Row { return nil }
func (f *fakeDB) Exec(context.Context, string, ...any) (db.Result, error) {
	return nil, errors.New("not supported")
}
func (f *fakeDB) Transaction(_ context.Context, fn func(tx db.Transaction) error) error {
	f.transactions++
	return fn(nil)
}
func (f *fakeDB) Ping(context.Context) error { return nil }
func (f *fakeDB) Close() error              { return nil }

type fakeSubmissionRepo struct {
	mu         sync.Mutex
	rows       map[string]*repository.Submission
	reads      int
	readErr    error
	lastFilter repository.SubmissionFilter
	// script, when set, replaces the status of every read in order; the last
	// entry repeats.
	script []lifecycle.Status
}

func newFakeSubmissionRepo() *fakeSubmissionRepo {
	return &fakeSubmissionRepo{rows: make(map[string]*repository.Submission)}
}

func (f *fakeSubmissionRepo) Create(_ context.Context, _ db.Transaction, s *repository.Submission) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := *s
	f.rows[s.ID] = &cp
	return nil
}

func (f *fakeSubmissionRepo) GetByID(_ context.Context, _ db.Transaction, id string) (*repository.Submission, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.readErr != nil {
		return nil, f.readErr
	}
	row, ok := f.rows[id]
	if !ok {
		return nil, repository.ErrSubmissionNotFound
	}
	if len(f.script) > 0 {
		idx := f.reads
		if idx >= len(f.script) {
			idx = len(f.script) - 1
		}
		row.Status = f.script[idx]
	}
	f.reads++
	cp := *row
	return &cp, nil
}

func (f *fakeSubmissionRepo) List(_ context.Context, filter repository.SubmissionFilter, opts pkgrepo.ListOptions) ([]*repository.Submission, int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lastFilter = filter
	var matched []*repository.Submission
	for _, row := range f.rows {
		if filter.UserID > 0 && row.UserID != filter.UserID {
			continue
		}
		if filter.ProblemID > 0 && row.ProblemID != filter.ProblemID {
			continue
		}
		if filter.Kind != "" && row.Kind != filter.Kind {
			continue
		}
		matched = append(matched, row)
	}
	sort.Slice(matched, func(i, j int) bool { return matched[i].ID < matched[j].ID })
	total := int64(len(matched))
	if opts.Offset() >= len(matched) {
		return []*repository.Submission{}, total, nil
	}
	end := opts.Offset() + opts.Limit()
	if end > len(matched) {
		end = len(matched)
	}
	return matched[opts.Offset():end], total, nil
}

func (f *fakeSubmissionRepo) MarkRunning(_ context.Context, _ db.Transaction, id string, at time.Time) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	row, ok := f.rows[id]
	if !ok || row.Status != lifecycle.Pending {
		return false, nil
	}
	row.Status = lifecycle.Running
	row.StartedAt = &at
	return true, nil
}

func (f *fakeSubmissionRepo) ApplyResult(_ context.Context, _ db.Transaction, id string, u repository.ResultUpdate) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	row, ok := f.rows[id]
	if !ok {
		return repository.ErrSubmissionNotFound
	}
	if row.Status.IsTerminal() {
		return repository.ErrSubmissionTerminal
	}
	o := u.Outcome
	row.Status = o.Status
	row.TotalTestCases = o.TotalTestCases
	row.PassedTestCases = o.PassedTestCases
	row.CompareResult = o.CompareResult
	row.TimeMs = o.TimeMs
	row.MemoryKB = o.MemoryKB
	if o.ErrorMessage != "" {
		msg := o.ErrorMessage
		row.ErrorMessage = &msg
	}
	score, maxScore, verdict := u.Score.Score, u.Score.MaxScore, string(u.Score.Verdict)
	row.Score, row.MaxScore, row.Verdict = &score, &maxScore, &verdict
	row.CompletedAt = &u.CompletedAt
	return nil
}

func (f *fakeSubmissionRepo) Delete(_ context.Context, _ db.Transaction, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.rows[id]; !ok {
		return repository.ErrSubmissionNotFound
	}
	delete(f.rows, id)
	return nil
}

func (f *fakeSubmissionRepo) get(id string) *repository.Submission {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.rows[id]
}

type fakeGradingRepo struct {
	records []*repository.AssignmentProblemSubmission
}

func (f *fakeGradingRepo) Insert(_ context.Context, _ db.Transaction, r *repository.AssignmentProblemSubmission) error {
	last := 0
	for _, existing := range f.records {
		if existing.SubmissionID == r.SubmissionID {
			return repository.ErrGradingRecordExists
		}
		if existing.AssignmentUserID == r.AssignmentUserID && existing.ProblemID == r.ProblemID && existing.Attempt > last {
			last = existing.Attempt
		}
	}
	r.Attempt = last + 1
	r.ID = int64(len(f.records) + 1)
	cp := *r
	f.records = append(f.records, &cp)
	return nil
}

func (f *fakeGradingRepo) GetBySubmission(_ context.Context, _ db.Transaction, id string) (*repository.AssignmentProblemSubmission, error) {
	for _, r := range f.records {
		if r.SubmissionID == id {
			return r, nil
		}
	}
	return nil, repository.ErrGradingRecordNotFound
}

type assignmentKey struct{ assignmentID, id int64 }

type fakeCatalog struct {
	problems    map[int64]limits.ProblemLimits
	maxScores   map[assignmentKey]int
	enrollments map[assignmentKey]int64
}

func newFakeCatalog() *fakeCatalog {
	return &fakeCatalog{
		problems:    map[int64]limits.ProblemLimits{42: {TimeLimitMs: 1000, MemoryLimitKB: 65536}},
		maxScores:   map[assignmentKey]int{{3, 42}: 50},
		enrollments: map[assignmentKey]int64{{3, 7}: 11},
	}
}

func (f *fakeCatalog) GetProblemLimits(_ context.Context, problemID int64) (limits.ProblemLimits, error) {
	pl, ok := f.problems[problemID]
	if !ok {
		return limits.ProblemLimits{}, repository.ErrProblemNotFound
	}
	return pl, nil
}

func (f *fakeCatalog) GetAssignmentMaxScore(_ context.Context, assignmentID, problemID int64) (int, error) {
	v, ok := f.maxScores[assignmentKey{assignmentID, problemID}]
	if !ok {
		return 0, repository.ErrAssignmentProblemNotFound
	}
	return v, nil
}

func (f *fakeCatalog) GetAssignmentUserID(_ context.Context, assignmentID, userID int64) (int64, error) {
	v, ok := f.enrollments[assignmentKey{assignmentID, userID}]
	if !ok {
		return 0, repository.ErrNotEnrolled
	}
	return v, nil
}

type dispatched struct {
	topic   string
	message model.JudgeMessage
}

type fakeDispatcher struct {
	sent []dispatched
	err  error
}

func (f *fakeDispatcher) Dispatch(_ context.Context, topic string, message model.JudgeMessage) error {
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, dispatched{topic: topic, message: message})
	return nil
}

type fakeLanguageRepo struct {
	langs     map[string]*limits.LanguageConfig
	overrides map[[2]int64]*limits.ProblemLanguageOverride
	nextID    int64
}

func newFakeLanguageRepo() *fakeLanguageRepo {
	return &fakeLanguageRepo{
		langs: map[string]*limits.LanguageConfig{
			"cpp": {ID: 1, Code: "cpp", Name: "C++17", DefaultTimeFactor: 1.0, DefaultMemoryKB: 262144,
				Template: limits.Template{Head: "#include <cstdio>", Body: "int main() {}", Tail: ""}},
		},
		overrides: make(map[[2]int64]*limits.ProblemLanguageOverride),
		nextID:    2,
	}
}

func (f *fakeLanguageRepo) GetByCode(_ context.Context, code string) (*limits.LanguageConfig, error) {
	lang, ok := f.langs[code]
	if !ok {
		return nil, repository.ErrLanguageNotFound
	}
	cp := *lang
	return &cp, nil
}

func (f *fakeLanguageRepo) Save(_ context.Context, lang *limits.LanguageConfig) (int64, error) {
	if existing, ok := f.langs[lang.Code]; ok {
		lang.ID = existing.ID
	} else {
		lang.ID = f.nextID
		f.nextID++
	}
	cp := *lang
	f.langs[lang.Code] = &cp
	return lang.ID, nil
}

func (f *fakeLanguageRepo) GetOverride(_ context.Context, problemID, languageID int64) (*limits.ProblemLanguageOverride, error) {
	o, ok := f.overrides[[2]int64{problemID, languageID}]
	if !ok {
		return nil, repository.ErrOverrideNotFound
	}
	return o, nil
}

func (f *fakeLanguageRepo) SaveOverride(_ context.Context, o *limits.ProblemLanguageOverride) error {
	cp := *o
	f.overrides[[2]int64{o.ProblemID, o.LanguageID}] = &cp
	return nil
}

type memStorage struct {
	mu      sync.Mutex
	objects map[string][]byte
	putErr  error
}

func newMemStorage() *memStorage {
	return &memStorage{objects: make(map[string][]byte)}
}

func (m *memStorage) PutObject(_ context.Context, bucket, key string, r io.Reader, _ int64, _ string) error {
	if m.putErr != nil {
		return m.putErr
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[bucket+"/"+key] = data
	return nil
}

func (m *memStorage) GetObject(_ context.Context, bucket, key string) (io.ReadCloser, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.objects[bucket+"/"+key]
	if !ok {
		return nil, errors.New("object not found")
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (m *memStorage) RemoveObject(_ context.Context, bucket, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.objects, bucket+"/"+key)
	return nil
}

type harness struct {
	svc         *SubmitService
	languages   *LanguageService
	db          *fakeDB
	submissions *fakeSubmissionRepo
	grading     *fakeGradingRepo
	catalog     *fakeCatalog
	langRepo    *fakeLanguageRepo
	dispatcher  *fakeDispatcher
	storage     *memStorage
	cache       cache.Cache
	redis       *miniredis.Miniredis
	sleeps      []time.Duration
}

func newHarness(t *testing.T, mutate func(*Config)) *harness {
	t.Helper()
	mr := miniredis.RunT(t)
	redisCache, err := cache.NewRedisCacheWithClient(redis.NewClient(&redis.Options{Addr: mr.Addr()}))
	require.NoError(t, err)
	t.Cleanup(func() { _ = redisCache.Close() })

	h := &harness{
		db:          &fakeDB{},
		submissions: newFakeSubmissionRepo(),
		grading:     &fakeGradingRepo{},
		catalog:     newFakeCatalog(),
		langRepo:    newFakeLanguageRepo(),
		dispatcher:  &fakeDispatcher{},
		storage:     newMemStorage(),
		cache:       redisCache,
		redis:       mr,
	}
	h.languages, err = NewLanguageService(LanguageServiceConfig{LanguageRepo: h.langRepo, CatalogRepo: h.catalog})
	require.NoError(t, err)

	cfg := Config{
		DB:             h.db,
		SubmissionRepo: h.submissions,
		GradingRepo:    h.grading,
		CatalogRepo:    h.catalog,
		Dispatcher:     h.dispatcher,
		Limits:         h.languages,
		Storage:        h.storage,
		Cache:          h.cache,
		Topics:         TopicConfig{Graded: "judge.graded", Practice: "judge.practice", Run: "judge.run", Status: "judge.status"},
		SourceBucket:   "sources",
		MaxCodeBytes:   1024,
		Wait:           poller.Config{MaxAttempts: 5, Interval: time.Second},
		Sleep: func(_ context.Context, d time.Duration) error {
			h.sleeps = append(h.sleeps, d)
			return nil
		},
	}
	if mutate != nil {
		mutate(&cfg)
	}
	h.svc, err = NewSubmitService(cfg)
	require.NoError(t, err)
	return h
}

func int64Ptr(v int64) *int64 { return &v }
