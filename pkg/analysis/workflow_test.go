package analysis

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/objectrekognition/rekognition-server/pkg/detection"
	"github.com/objectrekognition/rekognition-server/pkg/metrics"
	"github.com/objectrekognition/rekognition-server/pkg/model"
	"github.com/objectrekognition/rekognition-server/pkg/server/store"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type mockDetector struct {
	mock.Mock
}

func (m *mockDetector) Analyze(ctx context.Context, key string, data []byte) (model.LabelSet, error) {
	args := m.Called(ctx, key, data)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(model.LabelSet), args.Error(1)
}

// memStore is an in-memory store.ResultsStore with optional injected errors.
type memStore struct {
	mu        sync.Mutex
	results   map[string]store.Result
	existsErr error
	createErr error
	creates   int
}

func newMemStore() *memStore {
	return &memStore{results: map[string]store.Result{}}
}

func (s *memStore) ResultExists(_ context.Context, digest string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.existsErr != nil {
		return false, s.existsErr
	}
	_, ok := s.results[digest]
	return ok, nil
}

func (s *memStore) FetchResult(_ context.Context, digest string) (*store.Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.results[digest]
	if !ok {
		return nil, store.ErrResultNotFound
	}
	return &r, nil
}

func (s *memStore) CreateResult(_ context.Context, result store.Result) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.creates++
	if s.createErr != nil {
		return s.createErr
	}
	if _, ok := s.results[result.Digest]; ok {
		return store.ErrResultExists
	}
	s.results[result.Digest] = result
	return nil
}

func (s *memStore) ListResults(context.Context, int, int) ([]store.Result, error) {
	return nil, nil
}

var catLabels = model.LabelSet{{Name: "Cat", Confidence: 97, Instances: []model.Instance{}, Parents: []string{"Animal"}}}

func quietLogger() *logrus.Logger {
	log, _ := test.NewNullLogger()
	return log
}

func TestProcess_AnalyzesOncePerContent(t *testing.T) {
	ctx := context.Background()
	detector := &mockDetector{}
	results := newMemStore()
	data := []byte("cat image bytes")
	digest := model.ContentDigest(data)

	detector.On("Analyze", mock.Anything, detection.StagingKey(digest, "cat.jpg"), data).Return(catLabels, nil).Once()

	w := New(detector, results, WithLogger(quietLogger()))

	first := w.Process(ctx, []Upload{{Filename: "cat.jpg", Data: data}})
	require.Len(t, first, 1)
	assert.Equal(t, StatusAnalyzed, first[0].Status)
	assert.Equal(t, catLabels, first[0].Labels)

	second := w.Process(ctx, []Upload{{Filename: "renamed.jpg", Data: data}})
	require.Len(t, second, 1)
	assert.Equal(t, StatusAlreadyAnalyzed, second[0].Status)
	assert.Equal(t, "renamed.jpg", second[0].Filename)
	assert.Equal(t, catLabels, second[0].Labels)

	detector.AssertNumberOfCalls(t, "Analyze", 1)
}

func TestProcess_SameFilenameDifferentContent(t *testing.T) {
	detector := &mockDetector{}
	detector.On("Analyze", mock.Anything, mock.Anything, mock.Anything).Return(catLabels, nil)

	w := New(detector, newMemStore(), WithLogger(quietLogger()))
	out := w.Process(context.Background(), []Upload{
		{Filename: "photo.jpg", Data: []byte("one")},
		{Filename: "photo.jpg", Data: []byte("two")},
	})

	assert.Equal(t, StatusAnalyzed, out[0].Status)
	assert.Equal(t, StatusAnalyzed, out[1].Status)
	detector.AssertNumberOfCalls(t, "Analyze", 2)
}

func TestProcess_EmptyFilename(t *testing.T) {
	detector := &mockDetector{}
	results := newMemStore()

	w := New(detector, results, WithLogger(quietLogger()))
	out := w.Process(context.Background(), []Upload{{Filename: "", Data: []byte("data")}})

	require.Len(t, out, 1)
	assert.Equal(t, FileResult{Status: StatusNoSelectedFile}, out[0])
	detector.AssertNotCalled(t, "Analyze", mock.Anything, mock.Anything, mock.Anything)
	assert.Zero(t, results.creates)
}

func TestProcess_DetectionFailure(t *testing.T) {
	detector := &mockDetector{}
	results := newMemStore()
	detErr := &detection.DetectionError{Key: "k", Message: "failed to detect labels: boom", Err: errors.New("boom")}
	detector.On("Analyze", mock.Anything, mock.Anything, []byte("bad")).Return(nil, detErr)
	detector.On("Analyze", mock.Anything, mock.Anything, []byte("good")).Return(catLabels, nil)

	w := New(detector, results, WithLogger(quietLogger()))
	out := w.Process(context.Background(), []Upload{
		{Filename: "bad.jpg", Data: []byte("bad")},
		{Filename: "good.jpg", Data: []byte("good")},
	})

	require.Len(t, out, 2)
	assert.Equal(t, StatusError, out[0].Status)
	assert.Equal(t, detErr.Error(), out[0].Error)
	assert.Nil(t, out[0].Labels)
	assert.Equal(t, StatusAnalyzed, out[1].Status)
	assert.Equal(t, 1, results.creates)
}

func TestProcess_PersistenceFailure(t *testing.T) {
	detector := &mockDetector{}
	results := newMemStore()
	results.createErr = errors.New("disk full")
	detector.On("Analyze", mock.Anything, mock.Anything, mock.Anything).Return(catLabels, nil)

	log, hook := test.NewNullLogger()
	w := New(detector, results, WithLogger(log))
	out := w.Process(context.Background(), []Upload{{Filename: "cat.jpg", Data: []byte("x")}})

	require.Len(t, out, 1)
	assert.Equal(t, StatusAnalyzed, out[0].Status)
	assert.Equal(t, catLabels, out[0].Labels)
	assert.Equal(t, "result not cached: disk full", out[0].Warning)
	require.NotNil(t, hook.LastEntry())
	assert.Equal(t, logrus.ErrorLevel, hook.LastEntry().Level)
}

func TestProcess_LostRaceIsNotAWarning(t *testing.T) {
	detector := &mockDetector{}
	results := newMemStore()
	results.createErr = store.ErrResultExists
	detector.On("Analyze", mock.Anything, mock.Anything, mock.Anything).Return(catLabels, nil)

	w := New(detector, results, WithLogger(quietLogger()))
	out := w.Process(context.Background(), []Upload{{Filename: "cat.jpg", Data: []byte("x")}})

	assert.Equal(t, StatusAnalyzed, out[0].Status)
	assert.Empty(t, out[0].Warning)
}

func TestProcess_StoreReadErrorIsAMiss(t *testing.T) {
	detector := &mockDetector{}
	results := newMemStore()
	results.existsErr = errors.New("connection reset")
	detector.On("Analyze", mock.Anything, mock.Anything, mock.Anything).Return(catLabels, nil)

	w := New(detector, results, WithLogger(quietLogger()))
	out := w.Process(context.Background(), []Upload{{Filename: "cat.jpg", Data: []byte("x")}})

	assert.Equal(t, StatusAnalyzed, out[0].Status)
	detector.AssertNumberOfCalls(t, "Analyze", 1)
}

func TestProcess_PreservesOrder(t *testing.T) {
	for _, concurrency := range []int{1, 4} {
		t.Run(fmt.Sprintf("concurrency %d", concurrency), func(t *testing.T) {
			detector := &mockDetector{}
			detector.On("Analyze", mock.Anything, mock.Anything, mock.Anything).
				Run(func(args mock.Arguments) {
					// Later files finish first.
					data := args.Get(2).([]byte)
					time.Sleep(time.Duration(10-int(data[0]-'0')) * time.Millisecond)
				}).
				Return(catLabels, nil)

			m, err := metrics.New(prometheus.NewRegistry())
			require.NoError(t, err)
			w := New(detector, newMemStore(), WithConcurrency(concurrency), WithMetrics(m), WithLogger(quietLogger()))

			var uploads []Upload
			for i := 0; i < 8; i++ {
				uploads = append(uploads, Upload{Filename: fmt.Sprintf("file-%d.jpg", i), Data: []byte{byte('0' + i)}})
			}
			uploads = append(uploads, Upload{Filename: ""})

			out := w.Process(context.Background(), uploads)
			require.Len(t, out, len(uploads))
			for i := 0; i < 8; i++ {
				assert.Equal(t, fmt.Sprintf("file-%d.jpg", i), out[i].Filename)
				assert.Equal(t, StatusAnalyzed, out[i].Status)
			}
			assert.Equal(t, StatusNoSelectedFile, out[8].Status)
			assert.Equal(t, 8.0, testutil.ToFloat64(m.FileResults.WithLabelValues(string(StatusAnalyzed))))
		})
	}
}

func TestProcess_ConcurrentDuplicatesStoreOnce(t *testing.T) {
	detector := &mockDetector{}
	detector.On("Analyze", mock.Anything, mock.Anything, mock.Anything).Return(catLabels, nil)
	results := newMemStore()

	w := New(detector, results, WithConcurrency(8), WithLogger(quietLogger()))
	uploads := make([]Upload, 8)
	for i := range uploads {
		uploads[i] = Upload{Filename: fmt.Sprintf("copy-%d.jpg", i), Data: []byte("same bytes")}
	}

	out := w.Process(context.Background(), uploads)
	for _, r := range out {
		assert.Contains(t, []Status{StatusAnalyzed, StatusAlreadyAnalyzed}, r.Status)
		assert.Empty(t, r.Warning)
	}
	assert.Len(t, results.results, 1)
}

func TestNew_ClampsConcurrency(t *testing.T) {
	w := New(&mockDetector{}, newMemStore(), WithConcurrency(0))
	assert.Equal(t, 1, w.concurrency)
}
