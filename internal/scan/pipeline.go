package scan

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/subtrack/nativebridge/internal/logger"
	"github.com/subtrack/nativebridge/internal/metrics"
)

// Options configures a Pipeline.
type Options struct {
	// MaxConcurrency bounds the recognition tasks running at once.
	// Zero runs one task per page, all at the same time.
	MaxConcurrency int
	Metrics        *metrics.Metrics
}

// Pipeline drives a capture followed by per-page recognition.
// At most one interactive scan runs per pipeline.
type Pipeline struct {
	scanner    Scanner
	recognizer Recognizer
	opts       Options
	logger     *logger.Logger

	busy atomic.Bool
}

func NewPipeline(scanner Scanner, recognizer Recognizer, opts Options, log *logger.Logger) *Pipeline {
	return &Pipeline{
		scanner:    scanner,
		recognizer: recognizer,
		opts:       opts,
		logger:     log.WithComponent("scan"),
	}
}

// ScanDocument captures pages from the scanner and returns the recognized
// texts in page order. A cancelled capture yields an empty, non-nil slice.
//
// Once capture has completed every recognition task runs to completion, even
// if ctx is cancelled.
func (p *Pipeline) ScanDocument(ctx context.Context) ([]string, error) {
	if err := p.checkAvailable(); err != nil {
		return nil, err
	}
	if !p.busy.CompareAndSwap(false, true) {
		p.opts.Metrics.ScanFinished(metrics.OutcomeBusy)
		return nil, &Error{Kind: KindBusy, Message: "a document scan is already in progress"}
	}
	defer p.busy.Store(false)

	var texts []string
	err := p.logger.LogOperation(ctx, "scan_document", func() error {
		capture, err := p.capture(ctx)
		if err != nil {
			p.opts.Metrics.ScanFinished(metrics.OutcomeFailed)
			return err
		}
		if capture.Cancelled {
			p.logger.WithContext(ctx).Info("document scan cancelled")
			p.opts.Metrics.ScanFinished(metrics.OutcomeCancelled)
			texts = []string{}
			return nil
		}

		texts = p.RecognizePages(ctx, capture.Pages)
		p.opts.Metrics.ScanFinished(metrics.OutcomeSuccess)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return texts, nil
}

// checkAvailable fails fast, before any capture work, when the host has no scanner.
func (p *Pipeline) checkAvailable() error {
	if p.scanner.Available() {
		return nil
	}
	p.opts.Metrics.ScanFinished(metrics.OutcomeUnavailable)
	return &Error{Kind: KindUnavailable, Message: "Document scanner not available"}
}

// capture runs the scanner. A failing or panicking scanner yields a
// KindScanFailed error with a non-empty message.
func (p *Pipeline) capture(ctx context.Context) (c Capture, err error) {
	defer func() {
		if r := recover(); r != nil {
			p.logger.WithContext(ctx).Error("scanner panicked", slog.String("panic", fmt.Sprint(r)))
			c, err = Capture{}, &Error{Kind: KindScanFailed, Message: fmt.Sprintf("capture panicked: %v", r)}
		}
	}()

	c, err = p.scanner.Capture(ctx)
	if err != nil {
		message := err.Error()
		if message == "" {
			message = "capture failed without a diagnostic"
		}
		return Capture{}, &Error{Kind: KindScanFailed, Message: message, Err: err}
	}
	return c, nil
}

// RecognizePages recognizes every page concurrently and returns the texts of
// the pages that produced any, in page order.
func (p *Pipeline) RecognizePages(ctx context.Context, pages []Page) []string {
	s := newSession(len(pages))
	ctx = logger.WithScanID(context.WithoutCancel(ctx), s.id)
	log := p.logger.WithContext(ctx)
	start := time.Now()

	var g errgroup.Group
	if p.opts.MaxConcurrency > 0 {
		g.SetLimit(p.opts.MaxConcurrency)
	}
	for i, page := range pages {
		g.Go(func() error {
			text, ok := p.recognize(ctx, log, page)
			s.complete(i, text, ok)
			return nil
		})
	}

	<-s.done
	texts := s.texts()

	took := time.Since(start)
	p.opts.Metrics.RecognitionTook(took)
	p.opts.Metrics.PagesRecognized(len(texts), len(pages)-len(texts))
	log.Info("pages recognized",
		slog.Int("pages", len(pages)),
		slog.Int("recognized", len(texts)),
		slog.Duration("duration", took))
	return texts
}

// recognize runs the recognizer on one page. Errors, panics and blank text
// all count as absence.
func (p *Pipeline) recognize(ctx context.Context, log *logger.Logger, page Page) (text string, ok bool) {
	defer func() {
		if r := recover(); r != nil {
			log.Error("recognizer panicked",
				slog.Int("page", page.Index),
				slog.String("panic", fmt.Sprint(r)))
			text, ok = "", false
		}
	}()

	text, err := p.recognizer.Recognize(ctx, page)
	if err != nil {
		log.Warn("page recognition failed",
			slog.Int("page", page.Index),
			slog.String("name", page.Name),
			slog.String("error", err.Error()))
		return "", false
	}
	if strings.TrimSpace(text) == "" {
		return "", false
	}
	return text, true
}
