// Package plan sequences an index sample, prompt assembly and the model call
// into a chaos engineering plan.
package plan

import (
	"context"
	"encoding/json"
	"fmt"
	"iter"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/harora-WM/chaos-engineering-api/internal/llm"
	"github.com/harora-WM/chaos-engineering-api/internal/prompt"
	"github.com/harora-WM/chaos-engineering-api/pkg/models"
)

// IndexReader fetches the sample a plan is generated from.
type IndexReader interface {
	FetchSample(ctx context.Context, index string) models.IndexFetchResult
}

// RunRecorder persists an audit record for each generation.
type RunRecorder interface {
	CreateRun(ctx context.Context, run *models.GenerationRun) error
}

// Service generates chaos engineering plans. It holds no per-request state.
type Service struct {
	invoker  *llm.Invoker
	builder  *prompt.Builder
	recorder RunRecorder
	now      func() time.Time
}

// Option configures a Service.
type Option func(*Service)

// WithRecorder records every generation through r. A nil r disables recording.
func WithRecorder(r RunRecorder) Option {
	return func(s *Service) { s.recorder = r }
}

// WithClock replaces time.Now, mainly for tests.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// NewService creates a Service.
func NewService(invoker *llm.Invoker, builder *prompt.Builder, opts ...Option) *Service {
	if builder == nil {
		builder = prompt.NewBuilder(prompt.Options{})
	}
	s := &Service{
		invoker: invoker,
		builder: builder,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Generate fetches a sample of index, builds the prompt and makes a blocking
// model call. Failures are reported through the metrics, never returned.
func (s *Service) Generate(ctx context.Context, reader IndexReader, index string, opts models.AnalysisOptions) (string, models.GenerationMetrics) {
	metrics := models.GenerationMetrics{StartTime: s.now().UTC()}

	plan, err := s.generate(ctx, reader, index, opts)
	if err != nil {
		metrics.Error = err.Error()
		plan = ""
	} else {
		metrics.Success = true
		n := utf8.RuneCountInString(plan)
		metrics.PlanLength = &n
	}

	metrics.EndTime = s.now().UTC()
	metrics.DurationSeconds = metrics.EndTime.Sub(metrics.StartTime).Seconds()

	s.record(ctx, s.newRun(index, models.ModeSync, opts, metrics))
	return plan, metrics
}

func (s *Service) generate(ctx context.Context, reader IndexReader, index string, opts models.AnalysisOptions) (string, error) {
	p, err := s.prompt(ctx, reader, index, opts)
	if err != nil {
		return "", err
	}

	plan, err := s.invoker.Invoke(ctx, p)
	if err != nil {
		return "", err
	}
	if plan == "" {
		return "", llm.ErrEmptyResponse
	}
	return plan, nil
}

// GenerateStreaming is the incremental form of Generate. A fetch failure is
// yielded as a single {"error": ...} fragment and ends the sequence without
// an error. Model failures are yielded once as errors.
func (s *Service) GenerateStreaming(ctx context.Context, reader IndexReader, index string, opts models.AnalysisOptions) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		metrics := models.GenerationMetrics{StartTime: s.now().UTC()}
		var (
			length  int
			failure error
			stopped bool
		)
		defer func() {
			metrics.EndTime = s.now().UTC()
			metrics.DurationSeconds = metrics.EndTime.Sub(metrics.StartTime).Seconds()
			switch {
			case failure != nil:
				metrics.Error = failure.Error()
			case stopped:
				metrics.Error = "stream closed by consumer"
			default:
				metrics.Success = true
				metrics.PlanLength = &length
			}
			s.record(context.WithoutCancel(ctx), s.newRun(index, models.ModeStream, opts, metrics))
		}()

		p, err := s.prompt(ctx, reader, index, opts)
		if err != nil {
			failure = err
			yield(ErrorFragment(err.Error()), nil)
			return
		}

		for text, err := range s.invoker.InvokeStreaming(ctx, p) {
			if err != nil {
				failure = err
				yield("", err)
				return
			}
			length += utf8.RuneCountInString(text)
			if !yield(text, nil) {
				stopped = true
				return
			}
		}
	}
}

func (s *Service) prompt(ctx context.Context, reader IndexReader, index string, opts models.AnalysisOptions) (string, error) {
	result := reader.FetchSample(ctx, index)
	if !result.Success {
		return "", fmt.Errorf("Failed to fetch index data: %s", result.Error)
	}

	p, err := s.builder.Build(index, result, opts)
	if err != nil {
		return "", fmt.Errorf("building prompt: %w", err)
	}
	return p, nil
}

// ErrorFragment renders msg as the structured error fragment used on the
// streaming path.
func ErrorFragment(msg string) string {
	var sb strings.Builder
	enc := json.NewEncoder(&sb)
	enc.SetEscapeHTML(false)
	_ = enc.Encode(map[string]string{"error": msg})
	return strings.TrimSuffix(sb.String(), "\n")
}

func (s *Service) newRun(index, mode string, opts models.AnalysisOptions, m models.GenerationMetrics) *models.GenerationRun {
	run := &models.GenerationRun{
		ID:                          uuid.New(),
		IndexName:                   index,
		Mode:                        mode,
		Focus:                       opts.Focus,
		IncludeSecurity:             opts.IncludeSecurity,
		IncludeExternalDependencies: opts.IncludeExternalDependencies,
		Success:                     m.Success,
		PlanLength:                  m.PlanLength,
		DurationSeconds:             m.DurationSeconds,
		StartedAt:                   m.StartTime,
		EndedAt:                     m.EndTime,
	}
	if run.Focus == "" {
		run.Focus = "All"
	}
	if m.Error != "" {
		msg := m.Error
		run.ErrorMessage = &msg
	}
	if model := s.invoker.Model(); model != nil {
		run.Provider = model.Name()
		run.ModelID = model.ModelID()
	}
	return run
}

func (s *Service) record(ctx context.Context, run *models.GenerationRun) {
	if s.recorder == nil {
		return
	}
	if err := s.recorder.CreateRun(ctx, run); err != nil {
		slog.Error("recording generation run failed",
			"run_id", run.ID,
			"index", run.IndexName,
			"error", err,
		)
	}
}
