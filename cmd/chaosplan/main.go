// Command chaosplan samples an OpenSearch index and writes a chaos
// engineering plan for it from the terminal.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"maps"
	"os"
	"os/signal"
	"path/filepath"
	"slices"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/harora-WM/chaos-engineering-api/internal/analysis"
	"github.com/harora-WM/chaos-engineering-api/internal/config"
	"github.com/harora-WM/chaos-engineering-api/internal/llm"
	"github.com/harora-WM/chaos-engineering-api/internal/llm/provider"
	"github.com/harora-WM/chaos-engineering-api/internal/opensearch"
	"github.com/harora-WM/chaos-engineering-api/internal/plan"
	"github.com/harora-WM/chaos-engineering-api/internal/prompt"
	"github.com/harora-WM/chaos-engineering-api/pkg/models"
)

// stdoutPath makes the plan go to stdout instead of a file.
const stdoutPath = "-"

var errUsage = errors.New("usage")

type options struct {
	conn      models.OpenSearchConnection
	selection models.ModelSelection
	analysis  models.AnalysisOptions
	index     string
	out       string
	stream    bool
	list      bool
	test      bool
}

func main() {
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelWarn,
	})))

	if err := run(os.Args[1:]); err != nil {
		if !errors.Is(err, errUsage) {
			fmt.Fprintln(os.Stderr, "error:", err)
		}
		os.Exit(1)
	}
}

func run(args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	opts, err := parseFlags(args, cfg.OpenSearch, os.Stderr)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a := &app{
		client:   opensearch.NewHTTPClient(opts.conn, cfg.OpenSearch.Timeout),
		invokers: lazyInvokers(cfg.Model),
		builder:  prompt.NewBuilder(prompt.Options{MaxMessageBytes: cfg.Prompt.MaxMessageBytes}),
		stdout:   os.Stdout,
		info:     os.Stderr,
		now:      time.Now,
	}
	return a.run(ctx, opts)
}

func parseFlags(args []string, defaults config.OpenSearchConfig, stderr io.Writer) (options, error) {
	fs := flag.NewFlagSet("chaosplan", flag.ContinueOnError)
	fs.SetOutput(stderr)

	var opts options
	def := models.DefaultAnalysisOptions()
	fs.StringVar(&opts.conn.Endpoint, "endpoint", defaults.Endpoint, "OpenSearch endpoint URL")
	fs.StringVar(&opts.conn.Username, "username", defaults.Username, "OpenSearch username")
	fs.StringVar(&opts.conn.Password, "password", defaults.Password, "OpenSearch password")
	fs.StringVar(&opts.index, "index", "", "index to sample")
	fs.StringVar(&opts.analysis.Focus, "focus", def.Focus, "focus area (e.g. Network, Database)")
	fs.BoolVar(&opts.analysis.IncludeSecurity, "security", def.IncludeSecurity, "include security scenarios")
	fs.BoolVar(&opts.analysis.IncludeExternalDependencies, "external", def.IncludeExternalDependencies, "include external dependency scenarios")
	fs.StringVar(&opts.selection.Model, "model", "", "model ID override")
	fs.StringVar(&opts.selection.Region, "region", "", "Bedrock region override")
	fs.BoolVar(&opts.stream, "stream", false, "echo the plan as it is generated")
	fs.StringVar(&opts.out, "out", "", `output file ("-" for stdout only)`)
	fs.BoolVar(&opts.list, "list", false, "list indices and exit")
	fs.BoolVar(&opts.test, "test", false, "test OpenSearch and model connectivity and exit")

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return options{}, errUsage
		}
		return options{}, fmt.Errorf("%w: %w", errUsage, err)
	}

	if opts.conn.Endpoint == "" {
		return options{}, errors.New("-endpoint or DEFAULT_OPENSEARCH_ENDPOINT is required")
	}
	if !opts.list && !opts.test && opts.index == "" {
		return options{}, errors.New("-index is required")
	}
	if strings.TrimSpace(opts.analysis.Focus) == "" {
		opts.analysis.Focus = def.Focus
	}
	return opts, nil
}

// lazyInvokers builds the model client on first use so -list never touches
// provider credentials.
func lazyInvokers(cfg config.ModelConfig) provider.Factory {
	return func(ctx context.Context, sel models.ModelSelection) (*llm.Invoker, error) {
		applied := provider.Apply(cfg, sel)
		model, err := provider.NewModel(ctx, applied)
		if err != nil {
			return nil, fmt.Errorf("create model client: %w", err)
		}
		return llm.NewInvoker(model, llm.WithAttemptTimeout(applied.InvokeTimeout)), nil
	}
}

type app struct {
	client   opensearch.Client
	invokers provider.Factory
	builder  *prompt.Builder
	stdout   io.Writer // plan text
	info     io.Writer // progress and summaries
	dir      string    // output directory; empty means the working directory
	now      func() time.Time
}

func (a *app) run(ctx context.Context, opts options) error {
	switch {
	case opts.test:
		return a.testConnections(ctx, opts.selection)
	case opts.list:
		return a.listIndices(ctx)
	default:
		return a.generate(ctx, opts)
	}
}

func (a *app) testConnections(ctx context.Context, sel models.ModelSelection) error {
	osOK, osMsg := a.client.TestConnection(ctx)
	fmt.Fprintf(a.info, "OpenSearch: %s %s\n", status(osOK), osMsg)

	modelOK, modelMsg := false, ""
	invoker, err := a.invokers(ctx, sel)
	if err != nil {
		modelMsg = "Failed to initialize model client: " + err.Error()
	} else {
		modelOK, modelMsg = invoker.TestConnection(ctx)
	}
	fmt.Fprintf(a.info, "Model:      %s %s\n", status(modelOK), modelMsg)

	if !osOK || !modelOK {
		return errors.New("connection test failed")
	}
	return nil
}

func status(ok bool) string {
	if ok {
		return "[ok]"
	}
	return "[FAILED]"
}

func (a *app) listIndices(ctx context.Context) error {
	indices, err := a.client.ListIndices(ctx)
	if err != nil {
		return fmt.Errorf("Failed to get indices: %w", err)
	}
	opensearch.SortByDocCount(indices)

	tw := tabwriter.NewWriter(a.stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "INDEX\tHEALTH\tSTATUS\tDOCS\tSIZE")
	for _, idx := range indices {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", idx.Index, idx.Health, idx.Status, idx.DocsCount, idx.StoreSize)
	}
	return tw.Flush()
}

// fetchedSample serves an already fetched sample so generation does not
// query the cluster a second time.
type fetchedSample models.IndexFetchResult

func (f fetchedSample) FetchSample(context.Context, string) models.IndexFetchResult {
	return models.IndexFetchResult(f)
}

func (a *app) generate(ctx context.Context, opts options) error {
	result := a.client.FetchSample(ctx, opts.index)
	if !result.Success {
		return fmt.Errorf("Failed to fetch index data: %s", result.Error)
	}
	a.printSummary(opts.index, result)

	invoker, err := a.invokers(ctx, opts.selection)
	if err != nil {
		return err
	}
	svc := plan.NewService(invoker, a.builder, plan.WithClock(a.now))

	fmt.Fprintf(a.info, "\nGenerating chaos plan with %s (%s)...\n",
		llm.DisplayName(invoker.Model().Name()), invoker.Model().ModelID())

	var text string
	if opts.stream {
		text, err = a.stream(ctx, svc, result, opts)
	} else {
		var metrics models.GenerationMetrics
		text, metrics = svc.Generate(ctx, fetchedSample(result), opts.index, opts.analysis)
		if !metrics.Success {
			return errors.New(metrics.Error)
		}
		fmt.Fprintf(a.info, "Plan generated in %.1fs (%d characters)\n", metrics.DurationSeconds, *metrics.PlanLength)
	}
	if err != nil {
		return err
	}

	return a.write(opts, text)
}

func (a *app) stream(ctx context.Context, svc *plan.Service, result models.IndexFetchResult, opts options) (string, error) {
	var sb strings.Builder
	for fragment, err := range svc.GenerateStreaming(ctx, fetchedSample(result), opts.index, opts.analysis) {
		if err != nil {
			return "", err
		}
		sb.WriteString(fragment)
		if _, err := io.WriteString(a.stdout, fragment); err != nil {
			return "", err
		}
	}
	fmt.Fprintln(a.stdout)

	if sb.Len() == 0 {
		return "", llm.ErrEmptyResponse
	}
	return sb.String(), nil
}

func (a *app) write(opts options, text string) error {
	if opts.out == stdoutPath {
		if !opts.stream {
			_, err := fmt.Fprintln(a.stdout, text)
			return err
		}
		return nil
	}

	path := opts.out
	if path == "" {
		path = filepath.Join(a.dir, planFileName(opts.index, a.now()))
	}
	if err := os.WriteFile(path, []byte(text), 0o644); err != nil {
		return fmt.Errorf("write plan: %w", err)
	}
	fmt.Fprintf(a.info, "Plan written to %s\n", path)
	return nil
}

func planFileName(index string, t time.Time) string {
	return fmt.Sprintf("chaos_plan_%s_%s.md", index, t.Format("20060102_150405"))
}

func (a *app) printSummary(index string, result models.IndexFetchResult) {
	summary := analysis.Summarize(a.builder.Normalize(result.Documents), analysis.DefaultTopPatterns)

	fmt.Fprintf(a.info, "Index %s: sampled %d of %d documents\n", index, result.SampleSize, result.TotalHits)
	fmt.Fprintf(a.info, "Levels:   %s\n", formatCounts(summary.ByLevel))
	fmt.Fprintf(a.info, "Services: %s\n", formatCounts(summary.ByService))
	if len(summary.TopPatterns) == 0 {
		return
	}
	fmt.Fprintln(a.info, "Top message patterns:")
	for _, p := range summary.TopPatterns {
		fmt.Fprintf(a.info, "  %4dx [%s] %s\n", p.Count, p.Level, p.Pattern)
	}
}

// formatCounts renders counts as "key=n" pairs, largest first.
func formatCounts(counts map[string]int) string {
	if len(counts) == 0 {
		return "none"
	}
	keys := slices.Sorted(maps.Keys(counts))
	slices.SortStableFunc(keys, func(a, b string) int { return counts[b] - counts[a] })

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%d", k, counts[k]))
	}
	return strings.Join(parts, " ")
}
