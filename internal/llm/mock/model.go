package mock

import (
	"context"
	"iter"
	"sync"

	"github.com/harora-WM/chaos-engineering-api/pkg/models"
)

// MockModel satisfies models.TextModel for testing.
type MockModel struct {
	Name_        string
	ModelID_     string
	GenerateFunc func(ctx context.Context, req models.GenerateRequest) (string, error)
	StreamFunc   func(ctx context.Context, req models.GenerateRequest) iter.Seq2[string, error]

	mu       sync.Mutex
	requests []models.GenerateRequest
}

func (m *MockModel) Name() string    { return m.Name_ }
func (m *MockModel) ModelID() string { return m.ModelID_ }

func (m *MockModel) Generate(ctx context.Context, req models.GenerateRequest) (string, error) {
	m.record(req)
	if m.GenerateFunc != nil {
		return m.GenerateFunc(ctx, req)
	}
	return "", nil
}

func (m *MockModel) Stream(ctx context.Context, req models.GenerateRequest) iter.Seq2[string, error] {
	m.record(req)
	if m.StreamFunc != nil {
		return m.StreamFunc(ctx, req)
	}
	return func(func(string, error) bool) {}
}

// Requests returns every request received, in order.
func (m *MockModel) Requests() []models.GenerateRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]models.GenerateRequest, len(m.requests))
	copy(out, m.requests)
	return out
}

func (m *MockModel) record(req models.GenerateRequest) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requests = append(m.requests, req)
}

// NewMockModel returns a MockModel that answers every call with reply.
func NewMockModel(reply string) *MockModel {
	return &MockModel{
		Name_:    "mock",
		ModelID_: "mock-v1",
		GenerateFunc: func(_ context.Context, _ models.GenerateRequest) (string, error) {
			return reply, nil
		},
		StreamFunc: func(_ context.Context, _ models.GenerateRequest) iter.Seq2[string, error] {
			return Fragments(nil, reply)
		},
	}
}

// NewFailingModel returns a MockModel that always returns err.
func NewFailingModel(err error) *MockModel {
	return &MockModel{
		Name_:    "mock-failing",
		ModelID_: "mock-v1",
		GenerateFunc: func(_ context.Context, _ models.GenerateRequest) (string, error) {
			return "", err
		},
		StreamFunc: func(_ context.Context, _ models.GenerateRequest) iter.Seq2[string, error] {
			return func(yield func(string, error) bool) { yield("", err) }
		},
	}
}

// NewFlakyModel fails the first failures blocking calls with err and then
// returns reply.
func NewFlakyModel(failures int, err error, reply string) *MockModel {
	var mu sync.Mutex
	calls := 0
	return &MockModel{
		Name_:    "mock-flaky",
		ModelID_: "mock-v1",
		GenerateFunc: func(_ context.Context, _ models.GenerateRequest) (string, error) {
			mu.Lock()
			defer mu.Unlock()
			calls++
			if calls <= failures {
				return "", err
			}
			return reply, nil
		},
	}
}

// NewTimeoutModel returns a MockModel that blocks until ctx is done.
func NewTimeoutModel() *MockModel {
	return &MockModel{
		Name_:    "mock-timeout",
		ModelID_: "mock-v1",
		GenerateFunc: func(ctx context.Context, _ models.GenerateRequest) (string, error) {
			<-ctx.Done()
			return "", ctx.Err()
		},
	}
}

// Stream tracks whether a fragment sequence was released by its consumer.
type Stream struct {
	mu     sync.Mutex
	closed bool
	sent   int
}

// Closed reports whether the sequence ran its cleanup.
func (s *Stream) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// Sent reports how many fragments were delivered.
func (s *Stream) Sent() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sent
}

// Fragments returns a sequence yielding each fragment in order. When s is
// non-nil it records delivery and cleanup, mirroring a provider stream
// handle being closed.
func Fragments(s *Stream, fragments ...string) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		if s != nil {
			defer func() {
				s.mu.Lock()
				s.closed = true
				s.mu.Unlock()
			}()
		}
		for _, f := range fragments {
			if s != nil {
				s.mu.Lock()
				s.sent++
				s.mu.Unlock()
			}
			if !yield(f, nil) {
				return
			}
		}
	}
}

// NewStreamingModel returns a MockModel whose Stream yields fragments and
// records cleanup on s.
func NewStreamingModel(s *Stream, fragments ...string) *MockModel {
	return &MockModel{
		Name_:    "mock-streaming",
		ModelID_: "mock-v1",
		StreamFunc: func(_ context.Context, _ models.GenerateRequest) iter.Seq2[string, error] {
			return Fragments(s, fragments...)
		},
	}
}

// Compile-time check that MockModel implements TextModel.
var _ models.TextModel = (*MockModel)(nil)
