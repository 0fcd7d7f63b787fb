package usecase

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/kirillkom/case-intake/internal/core/domain"
	"github.com/kirillkom/case-intake/internal/core/ports"
)

const (
	DefaultPollAttempts     = 20
	DefaultPollBaseInterval = 2 * time.Second

	pollGrowthFactor = 1.5
	pollMaxFactor    = 8.0
)

type PollerConfig struct {
	MaxAttempts  int
	BaseInterval time.Duration
}

// Sleeper blocks for d or until ctx is done.
type Sleeper func(ctx context.Context, d time.Duration) error

// PollDelay is the wait before attempt n (n >= 1): base * min(1.5^n, 8).
func PollDelay(base time.Duration, attempt int) time.Duration {
	factor := math.Min(math.Pow(pollGrowthFactor, float64(attempt)), pollMaxFactor)
	return time.Duration(float64(base) * factor)
}

type ExtractionPoller struct {
	extraction ports.ExtractionService
	docs       ports.DocumentStore
	cfg        PollerConfig
	sleep      Sleeper
	observer   Observer
}

func NewExtractionPoller(
	extraction ports.ExtractionService,
	docs ports.DocumentStore,
	cfg PollerConfig,
	observer Observer,
) *ExtractionPoller {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = DefaultPollAttempts
	}
	if cfg.BaseInterval <= 0 {
		cfg.BaseInterval = DefaultPollBaseInterval
	}
	return &ExtractionPoller{
		extraction: extraction,
		docs:       docs,
		cfg:        cfg,
		sleep:      sleepContext,
		observer:   observerOrNoop(observer),
	}
}

// WithSleeper replaces the wait between attempts.
func (p *ExtractionPoller) WithSleeper(sleep Sleeper) *ExtractionPoller {
	if sleep != nil {
		p.sleep = sleep
	}
	return p
}

// AwaitClassification polls until the extraction service reports a document
// type. Any failure, including exhausting the attempt budget, yields a nil
// result; the error only describes why.
func (p *ExtractionPoller) AwaitClassification(ctx context.Context, documentID string) (*domain.ExtractionResult, error) {
	var lastStatus domain.DocumentStatus

	for attempt := 1; attempt <= p.cfg.MaxAttempts; attempt++ {
		if err := p.sleep(ctx, PollDelay(p.cfg.BaseInterval, attempt)); err != nil {
			p.observer.ObservePoll(attempt, false)
			return nil, domain.WrapError(domain.ErrExtractionFailed, "await classification", err)
		}

		status, err := p.extraction.Status(ctx, documentID)
		if err != nil {
			p.observer.ObservePoll(attempt, false)
			return nil, domain.WrapError(domain.ErrExtractionFailed, "await classification", fmt.Errorf("attempt %d: %w", attempt, err))
		}
		if status.ProcessingError != "" {
			p.observer.ObservePoll(attempt, false)
			return nil, domain.WrapError(domain.ErrExtractionFailed, "await classification", errors.New(status.ProcessingError))
		}
		if status.Status == domain.DocumentFailed {
			p.observer.ObservePoll(attempt, false)
			return nil, domain.WrapError(domain.ErrExtractionFailed, "await classification", errors.New("extraction service reported failed status"))
		}

		if docType := domain.ExtractedType(status.ExtractedData); docType != "" {
			p.observer.ObservePoll(attempt, true)
			return &domain.ExtractionResult{
				DocumentID:        documentID,
				DocumentType:      docType,
				ExtractedData:     status.ExtractedData,
				ValidationResults: status.ValidationResults,
				Attempts:          attempt,
			}, nil
		}

		if status.Status != lastStatus {
			lastStatus = status.Status
			p.mirrorStatus(ctx, documentID, status.Status)
		}
	}

	p.observer.ObservePoll(p.cfg.MaxAttempts, false)
	return nil, domain.WrapError(
		domain.ErrExtractionTimeout,
		"await classification",
		fmt.Errorf("no document type after %d attempts", p.cfg.MaxAttempts),
	)
}

// mirrorStatus copies in-flight statuses onto the document record. Terminal
// statuses are owned by the pipeline.
func (p *ExtractionPoller) mirrorStatus(ctx context.Context, documentID string, status domain.DocumentStatus) {
	if p.docs == nil {
		return
	}
	switch status {
	case domain.DocumentProcessing, domain.DocumentDetecting, domain.DocumentValidating:
		_ = p.docs.UpdateStatus(ctx, documentID, status, "")
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
