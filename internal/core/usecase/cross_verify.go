package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/kirillkom/case-intake/internal/core/domain"
	"github.com/kirillkom/case-intake/internal/core/ports"
)

const defaultOrganizeConcurrency = 4

type CrossVerifier struct {
	docs                ports.DocumentStore
	cases               ports.CaseStore
	analysis            ports.AnalysisService
	organizeConcurrency int
	logger              *slog.Logger
}

func NewCrossVerifier(
	docs ports.DocumentStore,
	cases ports.CaseStore,
	analysis ports.AnalysisService,
	organizeConcurrency int,
	logger *slog.Logger,
) *CrossVerifier {
	if organizeConcurrency <= 0 {
		organizeConcurrency = defaultOrganizeConcurrency
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &CrossVerifier{
		docs:                docs,
		cases:               cases,
		analysis:            analysis,
		organizeConcurrency: organizeConcurrency,
		logger:              logger,
	}
}

// Verify runs cross-document analysis over the accepted documents and
// organizes them into every active questionnaire template. Organization
// failures are joined; the report is returned whenever analysis succeeded.
func (v *CrossVerifier) Verify(ctx context.Context, c *domain.Case) (*domain.VerificationReport, error) {
	accepted, err := v.acceptedDocuments(ctx, c)
	if err != nil {
		return nil, err
	}

	var report *domain.VerificationReport
	var verifyErr error
	raw, err := v.analysis.CrossVerify(ctx, domain.CrossVerifyRequest{CaseID: c.ID, Documents: accepted})
	if err != nil {
		verifyErr = fmt.Errorf("cross verify case %s: %w", c.ID, err)
	} else {
		report = NormalizeReport(raw)
		v.logger.Info("cross_verification_completed",
			"case_id", c.ID,
			"documents", len(accepted),
			"mismatch", len(report.MismatchErrors),
			"missing", len(report.MissingErrors),
			"summarization", len(report.SummarizationErrors),
		)
	}

	return report, errors.Join(verifyErr, v.organize(ctx, c))
}

func (v *CrossVerifier) acceptedDocuments(ctx context.Context, c *domain.Case) ([]domain.AcceptedDocument, error) {
	docs, err := v.docs.ListByCase(ctx, c.ID)
	if err != nil {
		return nil, fmt.Errorf("list case documents: %w", err)
	}

	out := make([]domain.AcceptedDocument, 0, len(docs))
	for _, doc := range docs {
		if doc.SlotID == "" {
			continue
		}
		slot, ok := c.SlotByID(doc.SlotID)
		if !ok {
			continue
		}
		out = append(out, domain.AcceptedDocument{
			DocumentID:    doc.ID,
			Name:          doc.Filename,
			SlotName:      slot.Name,
			DocumentType:  doc.DocumentType(),
			ExtractedData: doc.ExtractedData,
		})
	}
	return out, nil
}

func (v *CrossVerifier) organize(ctx context.Context, c *domain.Case) error {
	templates, err := v.cases.ActiveQuestionnaireTemplates(ctx, c.CategoryID)
	if err != nil {
		return fmt.Errorf("list questionnaire templates: %w", err)
	}

	var (
		mu   sync.Mutex
		errs []error
		g    errgroup.Group
	)
	g.SetLimit(v.organizeConcurrency)
	for _, templateID := range templates {
		g.Go(func() error {
			if err := v.organizeTemplate(ctx, c.ID, templateID); err != nil {
				v.logger.Warn("questionnaire_organize_failed", "case_id", c.ID, "template_id", templateID, "error", err)
				mu.Lock()
				errs = append(errs, err)
				mu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()
	return errors.Join(errs...)
}

func (v *CrossVerifier) organizeTemplate(ctx context.Context, caseID, templateID string) error {
	organized, err := v.analysis.Organize(ctx, caseID, templateID)
	if err != nil {
		return fmt.Errorf("organize template %s: %w", templateID, err)
	}
	if err := v.cases.SavePrefill(ctx, domain.QuestionnairePrefill{
		CaseID:     caseID,
		TemplateID: templateID,
		Data:       organized,
	}); err != nil {
		return fmt.Errorf("save prefill for template %s: %w", templateID, err)
	}
	return nil
}

// NormalizeReport keeps finding order, drops findings without a type and
// never returns nil lists.
func NormalizeReport(raw domain.VerificationReport) *domain.VerificationReport {
	return &domain.VerificationReport{
		MismatchErrors:      normalizeFindings(raw.MismatchErrors),
		MissingErrors:       normalizeFindings(raw.MissingErrors),
		SummarizationErrors: normalizeFindings(raw.SummarizationErrors),
	}
}

func normalizeFindings(in []domain.Finding) []domain.Finding {
	out := make([]domain.Finding, 0, len(in))
	for _, finding := range in {
		finding.Type = strings.TrimSpace(finding.Type)
		if finding.Type == "" {
			continue
		}
		if finding.Details.IsText() {
			finding.Details.Text = strings.TrimSpace(finding.Details.Text)
		}
		out = append(out, finding)
	}
	return out
}
