package synth

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/basket/udo/internal/ledger"
	"github.com/basket/udo/internal/link"
	"github.com/basket/udo/internal/memory"
	otelPkg "github.com/basket/udo/internal/otel"
	"github.com/basket/udo/internal/shared"
)

// Writer keeps the context file in sync with the current project.
type Writer struct {
	path         string
	summaryChars int
	logger       *slog.Logger
	metrics      *otelPkg.Metrics
}

// WriterConfig configures a Writer. Metrics may be nil.
type WriterConfig struct {
	Path         string
	SummaryChars int
	Logger       *slog.Logger
	Metrics      *otelPkg.Metrics
}

func NewWriter(cfg WriterConfig) *Writer {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Writer{
		path:         cfg.Path,
		summaryChars: cfg.SummaryChars,
		logger:       logger,
		metrics:      cfg.Metrics,
	}
}

// Path returns the context file location.
func (w *Writer) Path() string { return w.path }

// Update renders the context for p and replaces the context file. A nil
// project writes the NoProject document.
func (w *Writer) Update(ctx context.Context, p *link.Project, l *ledger.Ledger) (string, error) {
	start := time.Now()
	defer w.metrics.ObserveOp(ctx, "context.update", start)

	doc := Render(p, Gather(p, l, w.summaryChars))
	if err := memory.WriteFileAtomic(w.path, []byte(doc)); err != nil {
		return "", fmt.Errorf("synth: write context: %w", err)
	}
	active := p != nil
	if w.metrics != nil {
		otelPkg.Inc(ctx, w.metrics.ContextRenders, attribute.Bool("project", active))
	}
	w.logger.Debug("context file updated", append(shared.LogAttrs(ctx),
		"path", w.path, "project", active, "bytes", len(doc))...)
	return doc, nil
}

// Clear removes the context file. A missing file is not an error.
func (w *Writer) Clear(ctx context.Context) error {
	if err := os.Remove(w.path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("synth: clear context: %w", err)
	}
	w.logger.Debug("context file cleared", append(shared.LogAttrs(ctx), "path", w.path)...)
	return nil
}
