package usecase

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/kirillkom/case-intake/internal/core/domain"
	"github.com/kirillkom/case-intake/internal/core/ports"
)

const (
	warnVerificationIncomplete = "cross verification could not be completed"
	warnNotificationFailed     = "verification report email could not be sent"
)

type caseVerifier interface {
	Verify(ctx context.Context, c *domain.Case) (*domain.VerificationReport, error)
}

type reportNotifier interface {
	Notify(ctx context.Context, c *domain.Case, report *domain.VerificationReport) error
}

type GateResult struct {
	Fired    bool
	Report   *domain.VerificationReport
	Warnings []string
}

type CompletionGate struct {
	cases    ports.CaseStore
	verifier caseVerifier
	notifier reportNotifier
	observer Observer
	logger   *slog.Logger
}

func NewCompletionGate(
	cases ports.CaseStore,
	verifier caseVerifier,
	notifier reportNotifier,
	observer Observer,
	logger *slog.Logger,
) *CompletionGate {
	if logger == nil {
		logger = slog.Default()
	}
	return &CompletionGate{
		cases:    cases,
		verifier: verifier,
		notifier: notifier,
		observer: observerOrNoop(observer),
		logger:   logger,
	}
}

// OnBatchSettled runs once per batch, after every document task has reached
// a terminal state. completed is true only for the batch holding the commit
// that satisfied the last slot, so concurrent batches on one case fire at
// most once between them.
func (g *CompletionGate) OnBatchSettled(ctx context.Context, caseID string, completed bool) (GateResult, error) {
	if !completed {
		g.observer.ObserveGate(false)
		return GateResult{}, nil
	}
	c, err := g.cases.Get(ctx, caseID)
	if err != nil {
		return GateResult{}, fmt.Errorf("fetch case for completion gate: %w", err)
	}
	if !c.AllSlotsSatisfied() {
		g.observer.ObserveGate(false)
		return GateResult{}, nil
	}

	g.observer.ObserveGate(true)
	g.logger.Info("completion_gate_fired", "case_id", c.ID)

	result := GateResult{Fired: true}
	report, err := g.verifier.Verify(ctx, c)
	if err != nil {
		g.logger.Error("cross_verification_failed", "case_id", c.ID, "error", err)
		result.Warnings = append(result.Warnings, warnVerificationIncomplete)
	}
	if report == nil {
		return result, nil
	}
	result.Report = report

	err = g.notifier.Notify(ctx, c, report)
	g.observer.ObserveNotification(err)
	if err != nil {
		result.Warnings = append(result.Warnings, warnNotificationFailed)
	}
	return result, nil
}
