package logquery_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/mutugading/logquery/internal/application/logquery"
	"github.com/mutugading/logquery/internal/domain/logrecord"
	"github.com/mutugading/logquery/pkg/circuitbreaker"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// MockRepository is a mock implementation of logrecord.Repository
type MockRepository struct {
	mock.Mock
}

func (m *MockRepository) Count(ctx context.Context, filter logrecord.Filter) (int64, error) {
	args := m.Called(ctx, filter)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockRepository) Find(ctx context.Context, filter logrecord.Filter, page logrecord.PageRequest) ([]*logrecord.Log, error) {
	args := m.Called(ctx, filter, page)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*logrecord.Log), args.Error(1)
}

// MockPageCache is a mock implementation of logquery.PageCache
type MockPageCache struct {
	mock.Mock
}

func (m *MockPageCache) GetPage(ctx context.Context, key string) (*logrecord.Page, bool, error) {
	args := m.Called(ctx, key)
	if args.Get(0) == nil {
		return nil, args.Bool(1), args.Error(2)
	}
	return args.Get(0).(*logrecord.Page), args.Bool(1), args.Error(2)
}

func (m *MockPageCache) SetPage(ctx context.Context, key string, page *logrecord.Page) error {
	args := m.Called(ctx, key, page)
	return args.Error(0)
}

func makeLogs(n int) []*logrecord.Log {
	base := time.Date(2024, 4, 29, 12, 0, 0, 0, time.UTC)
	logs := make([]*logrecord.Log, n)
	for i := range logs {
		created := base.Add(time.Duration(i) * time.Second)
		logs[i] = logrecord.ReconstructLog(uuid.New(), "system", "info", fmt.Sprintf("record %d", i+1), created, created)
	}
	return logs
}

func buildQuery(t *testing.T, params logquery.Params) logquery.Query {
	t.Helper()
	q, err := logquery.NewBuilder(20, 100).Build(params)
	require.NoError(t, err)
	return q
}

func TestService_List(t *testing.T) {
	t.Run("success - second page of 25 info records", func(t *testing.T) {
		repo := new(MockRepository)
		svc := logquery.NewService(repo)
		ctx := context.Background()

		q := buildQuery(t, logquery.Params{"level": "info", "page": "2", "limit": "10"})
		all := makeLogs(25)

		repo.On("Count", mock.Anything, q.Filter).Return(int64(25), nil)
		repo.On("Find", mock.Anything, q.Filter, logrecord.PageRequest{Page: 2, Limit: 10, SortOrder: logrecord.SortAscending}).
			Return(all[10:20], nil)

		page, err := svc.List(ctx, q)

		require.NoError(t, err)
		assert.Equal(t, int64(25), page.TotalRows)
		assert.Equal(t, int64(3), page.TotalPages)
		assert.Equal(t, 2, page.Page)
		assert.Equal(t, 10, page.Limit)
		require.Len(t, page.Logs, 10)
		assert.Equal(t, "record 11", page.Logs[0].Message())
		assert.Equal(t, "record 20", page.Logs[9].Message())
		repo.AssertExpectations(t)
	})

	t.Run("success - no matches yields empty page", func(t *testing.T) {
		repo := new(MockRepository)
		svc := logquery.NewService(repo)

		q := buildQuery(t, logquery.Params{"level": "critical"})
		repo.On("Count", mock.Anything, q.Filter).Return(int64(0), nil)
		repo.On("Find", mock.Anything, q.Filter, q.Page).Return(nil, nil)

		page, err := svc.List(context.Background(), q)

		require.NoError(t, err)
		assert.Equal(t, int64(0), page.TotalRows)
		assert.Equal(t, int64(0), page.TotalPages)
		assert.NotNil(t, page.Logs)
		assert.Empty(t, page.Logs)
	})

	t.Run("error - count failure aborts the request", func(t *testing.T) {
		repo := new(MockRepository)
		svc := logquery.NewService(repo)
		dbErr := errors.New("connection reset by peer")

		q := buildQuery(t, logquery.Params{})
		repo.On("Count", mock.Anything, q.Filter).Return(int64(0), dbErr)
		repo.On("Find", mock.Anything, q.Filter, q.Page).Return(makeLogs(3), nil).Maybe()

		page, err := svc.List(context.Background(), q)

		assert.Nil(t, page)
		var serr *logrecord.StorageError
		require.True(t, errors.As(err, &serr))
		assert.Equal(t, "count", serr.Op)
		assert.ErrorIs(t, err, dbErr)
	})

	t.Run("error - fetch failure aborts the request", func(t *testing.T) {
		repo := new(MockRepository)
		svc := logquery.NewService(repo)
		dbErr := errors.New("i/o timeout")

		q := buildQuery(t, logquery.Params{})
		repo.On("Count", mock.Anything, q.Filter).Return(int64(40), nil).Maybe()
		repo.On("Find", mock.Anything, q.Filter, q.Page).Return(nil, dbErr)

		page, err := svc.List(context.Background(), q)

		assert.Nil(t, page)
		var serr *logrecord.StorageError
		require.True(t, errors.As(err, &serr))
		assert.Equal(t, "find", serr.Op)
	})
}

func TestService_List_CircuitBreaker(t *testing.T) {
	repo := new(MockRepository)
	settings := circuitbreaker.DefaultSettings("log-store")
	settings.MaxFailures = 2
	settings.OpenTimeout = time.Hour
	cb := circuitbreaker.New(settings)
	svc := logquery.NewService(repo, logquery.WithCircuitBreaker(cb))

	q := buildQuery(t, logquery.Params{})
	dbErr := errors.New("connection refused")
	repo.On("Count", mock.Anything, q.Filter).Return(int64(0), dbErr)
	repo.On("Find", mock.Anything, q.Filter, q.Page).Return(nil, dbErr)

	// A failed request counts once, however many reads it issued.
	_, err := svc.List(context.Background(), q)
	require.Error(t, err)
	require.Equal(t, circuitbreaker.StateClosed, cb.State())

	_, err = svc.List(context.Background(), q)
	require.Error(t, err)
	require.Equal(t, circuitbreaker.StateOpen, cb.State())

	callsBefore := len(repo.Calls)
	_, err = svc.List(context.Background(), q)

	var serr *logrecord.StorageError
	require.True(t, errors.As(err, &serr))
	assert.ErrorIs(t, err, circuitbreaker.ErrCircuitOpen)
	assert.Len(t, repo.Calls, callsBefore, "open circuit must not reach storage")
}

// flakyRepository fails every call until healed.
type flakyRepository struct {
	mu     sync.Mutex
	broken bool
	logs   []*logrecord.Log
}

func (r *flakyRepository) setBroken(broken bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.broken = broken
}

func (r *flakyRepository) fail(ctx context.Context) error {
	r.mu.Lock()
	broken := r.broken
	r.mu.Unlock()
	if !broken {
		return nil
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(5 * time.Millisecond):
		return errors.New("connection refused")
	}
}

func (r *flakyRepository) Count(ctx context.Context, _ logrecord.Filter) (int64, error) {
	if err := r.fail(ctx); err != nil {
		return 0, err
	}
	return int64(len(r.logs)), nil
}

func (r *flakyRepository) Find(ctx context.Context, _ logrecord.Filter, _ logrecord.PageRequest) ([]*logrecord.Log, error) {
	if err := r.fail(ctx); err != nil {
		return nil, err
	}
	return r.logs, nil
}

func TestService_List_CircuitBreakerRecovers(t *testing.T) {
	repo := &flakyRepository{broken: true, logs: makeLogs(3)}
	settings := circuitbreaker.DefaultSettings("log-store")
	settings.MaxFailures = 1
	settings.OpenTimeout = 20 * time.Millisecond
	cb := circuitbreaker.New(settings)
	svc := logquery.NewService(repo, logquery.WithCircuitBreaker(cb))
	q := buildQuery(t, logquery.Params{})

	_, err := svc.List(context.Background(), q)
	require.Error(t, err)
	require.Equal(t, circuitbreaker.StateOpen, cb.State())

	repo.setBroken(false)
	time.Sleep(2 * settings.OpenTimeout)

	page, err := svc.List(context.Background(), q)
	require.NoError(t, err)
	assert.Equal(t, int64(3), page.TotalRows)
	assert.Len(t, page.Logs, 3)
	assert.Equal(t, circuitbreaker.StateClosed, cb.State())

	for i := 0; i < 10; i++ {
		_, err := svc.List(context.Background(), q)
		require.NoError(t, err)
	}
}

func TestService_List_CircuitBreakerHalfOpenFailureReopens(t *testing.T) {
	repo := &flakyRepository{broken: true}
	settings := circuitbreaker.DefaultSettings("log-store")
	settings.MaxFailures = 1
	settings.OpenTimeout = 20 * time.Millisecond
	cb := circuitbreaker.New(settings)
	svc := logquery.NewService(repo, logquery.WithCircuitBreaker(cb))
	q := buildQuery(t, logquery.Params{})

	_, err := svc.List(context.Background(), q)
	require.Error(t, err)

	time.Sleep(2 * settings.OpenTimeout)

	_, err = svc.List(context.Background(), q)
	require.Error(t, err)
	assert.NotErrorIs(t, err, circuitbreaker.ErrCircuitOpen)
	assert.Equal(t, circuitbreaker.StateOpen, cb.State())
}

func TestService_List_Cache(t *testing.T) {
	t.Run("hit skips storage", func(t *testing.T) {
		repo := new(MockRepository)
		cache := new(MockPageCache)
		svc := logquery.NewService(repo, logquery.WithCache(cache))

		q := buildQuery(t, logquery.Params{"level": "error"})
		cached := &logrecord.Page{Logs: makeLogs(2), Page: 1, Limit: 20, TotalRows: 2, TotalPages: 1}
		cache.On("GetPage", mock.Anything, logquery.CacheKey(q)).Return(cached, true, nil)

		page, err := svc.List(context.Background(), q)

		require.NoError(t, err)
		assert.Same(t, cached, page)
		repo.AssertNotCalled(t, "Count", mock.Anything, mock.Anything)
		repo.AssertNotCalled(t, "Find", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("miss stores the result", func(t *testing.T) {
		repo := new(MockRepository)
		cache := new(MockPageCache)
		svc := logquery.NewService(repo, logquery.WithCache(cache))

		q := buildQuery(t, logquery.Params{})
		key := logquery.CacheKey(q)
		cache.On("GetPage", mock.Anything, key).Return(nil, false, nil)
		cache.On("SetPage", mock.Anything, key, mock.AnythingOfType("*logrecord.Page")).Return(nil)
		repo.On("Count", mock.Anything, q.Filter).Return(int64(1), nil)
		repo.On("Find", mock.Anything, q.Filter, q.Page).Return(makeLogs(1), nil)

		page, err := svc.List(context.Background(), q)

		require.NoError(t, err)
		assert.Equal(t, int64(1), page.TotalRows)
		cache.AssertExpectations(t)
	})

	t.Run("cache failures fall through to storage", func(t *testing.T) {
		repo := new(MockRepository)
		cache := new(MockPageCache)
		svc := logquery.NewService(repo, logquery.WithCache(cache))

		q := buildQuery(t, logquery.Params{})
		cache.On("GetPage", mock.Anything, mock.Anything).Return(nil, false, errors.New("redis down"))
		cache.On("SetPage", mock.Anything, mock.Anything, mock.Anything).Return(errors.New("redis down"))
		repo.On("Count", mock.Anything, q.Filter).Return(int64(3), nil)
		repo.On("Find", mock.Anything, q.Filter, q.Page).Return(makeLogs(3), nil)

		page, err := svc.List(context.Background(), q)

		require.NoError(t, err)
		assert.Len(t, page.Logs, 3)
	})

	t.Run("storage errors are not cached", func(t *testing.T) {
		repo := new(MockRepository)
		cache := new(MockPageCache)
		svc := logquery.NewService(repo, logquery.WithCache(cache))

		q := buildQuery(t, logquery.Params{})
		cache.On("GetPage", mock.Anything, mock.Anything).Return(nil, false, nil)
		repo.On("Count", mock.Anything, q.Filter).Return(int64(0), errors.New("boom"))
		repo.On("Find", mock.Anything, q.Filter, q.Page).Return(nil, nil).Maybe()

		_, err := svc.List(context.Background(), q)

		require.Error(t, err)
		cache.AssertNotCalled(t, "SetPage", mock.Anything, mock.Anything, mock.Anything)
	})
}

func TestCacheKey_DistinguishesQueries(t *testing.T) {
	a := buildQuery(t, logquery.Params{"level": "info", "page": "1"})
	b := buildQuery(t, logquery.Params{"level": "info", "page": "2"})
	c := buildQuery(t, logquery.Params{"level": "INFO", "page": "1"})

	assert.NotEqual(t, logquery.CacheKey(a), logquery.CacheKey(b))
	assert.Equal(t, logquery.CacheKey(a), logquery.CacheKey(c))
}

func TestCacheKey_DelimitersInValuesDoNotCollide(t *testing.T) {
	tests := []struct {
		name  string
		left  logquery.Params
		right logquery.Params
	}{
		{
			name:  "level swallows type",
			left:  logquery.Params{"level": "x|t=y", "type": ""},
			right: logquery.Params{"level": "x", "type": "y|t="},
		},
		{
			name:  "type swallows message",
			left:  logquery.Params{"type": "a|m=b"},
			right: logquery.Params{"type": "a", "message": "b"},
		},
		{
			name:  "quotes in message",
			left:  logquery.Params{"message": `disk","t":"x`},
			right: logquery.Params{"message": "disk", "type": "x"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			left := buildQuery(t, tt.left)
			right := buildQuery(t, tt.right)
			assert.NotEqual(t, logquery.CacheKey(left), logquery.CacheKey(right))
		})
	}
}
