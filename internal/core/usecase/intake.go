package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/kirillkom/case-intake/internal/core/domain"
	"github.com/kirillkom/case-intake/internal/core/ports"
)

const (
	defaultMaxConcurrentDocuments = 8
	compensationTimeout           = 15 * time.Second
)

var tracer = otel.Tracer("github.com/kirillkom/case-intake/internal/core/usecase")

type batchGate interface {
	OnBatchSettled(ctx context.Context, caseID string, completed bool) (GateResult, error)
}

type IntakeConfig struct {
	MaxConcurrentDocuments int
	Poller                 PollerConfig
	OrganizeConcurrency    int
}

type IntakeDeps struct {
	Cases      ports.CaseStore
	Documents  ports.DocumentStore
	Batches    ports.BatchStore
	Storage    ports.ObjectStorage
	Extraction ports.ExtractionService
	Analysis   ports.AnalysisService
	Mail       ports.MailService
	Locker     ports.CaseLocker
	Inspector  ports.DocumentInspector
	Observer   Observer
	Logger     *slog.Logger
}

type IntakeUseCase struct {
	cases      ports.CaseStore
	docs       ports.DocumentStore
	batches    ports.BatchStore
	storage    ports.ObjectStorage
	extraction ports.ExtractionService
	locker     ports.CaseLocker

	validator     *UploadValidator
	poller        *ExtractionPoller
	matcher       *DocumentTypeMatcher
	slotValidator SlotValidator
	updater       *CaseStateUpdater
	gate          batchGate

	cfg      IntakeConfig
	observer Observer
	logger   *slog.Logger
}

func NewIntakeUseCase(deps IntakeDeps, cfg IntakeConfig) *IntakeUseCase {
	if cfg.MaxConcurrentDocuments <= 0 {
		cfg.MaxConcurrentDocuments = defaultMaxConcurrentDocuments
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	observer := observerOrNoop(deps.Observer)

	verifier := NewCrossVerifier(deps.Documents, deps.Cases, deps.Analysis, cfg.OrganizeConcurrency, logger)
	notifier := NewNotificationDispatcher(deps.Mail, logger)

	return &IntakeUseCase{
		cases:      deps.Cases,
		docs:       deps.Documents,
		batches:    deps.Batches,
		storage:    deps.Storage,
		extraction: deps.Extraction,
		locker:     deps.Locker,

		validator: NewUploadValidator(deps.Documents, deps.Storage).WithInspector(deps.Inspector),
		poller:    NewExtractionPoller(deps.Extraction, deps.Documents, cfg.Poller, observer),
		matcher:   NewDocumentTypeMatcher(nil),
		updater:   NewCaseStateUpdater(deps.Cases, deps.Documents),
		gate:      NewCompletionGate(deps.Cases, verifier, notifier, observer, logger),

		cfg:      cfg,
		observer: observer,
		logger:   logger,
	}
}

// WithSleeper replaces the poller's wait between attempts.
func (uc *IntakeUseCase) WithSleeper(sleep Sleeper) *IntakeUseCase {
	uc.poller.WithSleeper(sleep)
	return uc
}

// Upload validates every file against the case and persists the accepted
// ones as a batch. Rejected files count as failed uploads; when nothing was
// accepted the first rejection is returned.
func (uc *IntakeUseCase) Upload(ctx context.Context, caseID string, files []domain.UploadFile) (*domain.Batch, error) {
	caseID = strings.TrimSpace(caseID)
	if caseID == "" {
		return nil, domain.WrapError(domain.ErrInvalidInput, "upload", errors.New("case id is required"))
	}
	if len(files) == 0 {
		return nil, domain.WrapError(domain.ErrInvalidInput, "upload", errors.New("at least one file is required"))
	}

	c, err := uc.cases.Get(ctx, caseID)
	if err != nil {
		return nil, fmt.Errorf("fetch case: %w", err)
	}

	batch := &domain.Batch{
		ID:          uuid.NewString(),
		CaseID:      c.ID,
		DocumentIDs: make([]string, 0, len(files)),
		Submitted:   len(files),
		Status:      domain.BatchQueued,
		CreatedAt:   time.Now().UTC(),
	}

	var firstErr error
	for _, file := range files {
		doc, err := uc.validator.Accept(ctx, file, c)
		if err != nil {
			batch.Rejected++
			if firstErr == nil {
				firstErr = err
			}
			uc.logger.Warn("upload_rejected",
				"case_id", c.ID,
				"filename", file.Filename,
				"mime_type", file.MimeType,
				"reason", rejectionReason(err),
				"error", err,
			)
			continue
		}
		batch.DocumentIDs = append(batch.DocumentIDs, doc.ID)
	}

	if len(batch.DocumentIDs) == 0 {
		return nil, firstErr
	}

	if err := uc.batches.CreateBatch(ctx, batch); err != nil {
		for _, id := range batch.DocumentIDs {
			uc.discard(ctx, id, err)
		}
		return nil, fmt.Errorf("create batch: %w", err)
	}
	return batch, nil
}

// ProcessBatch runs every document of the batch concurrently, waits for all
// of them to settle, then runs the completion gate once and re-reads the case.
func (uc *IntakeUseCase) ProcessBatch(ctx context.Context, batch domain.Batch) (*domain.BatchResult, error) {
	if strings.TrimSpace(batch.CaseID) == "" {
		return nil, domain.WrapError(domain.ErrInvalidInput, "process batch", errors.New("case id is required"))
	}

	ctx, span := tracer.Start(ctx, "intake.process_batch", trace.WithAttributes(
		attribute.String("batch.id", batch.ID),
		attribute.String("case.id", batch.CaseID),
		attribute.Int("batch.documents", len(batch.DocumentIDs)),
	))
	defer span.End()

	outcomes := make([]domain.DocumentOutcome, len(batch.DocumentIDs))
	var g errgroup.Group
	g.SetLimit(uc.cfg.MaxConcurrentDocuments)
	for i, documentID := range batch.DocumentIDs {
		g.Go(func() error {
			outcomes[i] = uc.processDocument(ctx, documentID)
			return nil
		})
	}
	_ = g.Wait()

	result := &domain.BatchResult{
		BatchID:  batch.ID,
		CaseID:   batch.CaseID,
		Failed:   batch.Rejected,
		Outcomes: outcomes,
	}
	completed := false
	for _, outcome := range outcomes {
		if outcome.Status == domain.OutcomeCommitted {
			result.Succeeded++
			completed = completed || outcome.CompletesCase
		} else {
			result.Failed++
		}
	}

	gate, err := uc.gate.OnBatchSettled(ctx, batch.CaseID, completed)
	if err != nil {
		uc.logger.Error("completion_gate_error", "case_id", batch.CaseID, "batch_id", batch.ID, "error", err)
		result.Warnings = append(result.Warnings, warnVerificationIncomplete)
	}
	result.GateFired = gate.Fired
	result.Report = gate.Report
	result.Warnings = append(result.Warnings, gate.Warnings...)

	refreshed, err := uc.cases.Get(ctx, batch.CaseID)
	if err != nil {
		uc.logger.Warn("case_refresh_failed", "case_id", batch.CaseID, "error", err)
	} else {
		result.Case = refreshed
	}
	result.SettledAt = time.Now().UTC()

	if err := uc.batches.SettleBatch(ctx, result); err != nil {
		uc.logger.Warn("batch_settle_persist_failed", "batch_id", batch.ID, "error", err)
	}

	span.SetAttributes(
		attribute.Int("batch.succeeded", result.Succeeded),
		attribute.Int("batch.failed", result.Failed),
		attribute.Bool("gate.fired", result.GateFired),
	)
	uc.logger.Info("batch_settled",
		"batch_id", batch.ID,
		"case_id", batch.CaseID,
		"succeeded", result.Succeeded,
		"failed", result.Failed,
		"gate_fired", result.GateFired,
	)
	return result, nil
}

func (uc *IntakeUseCase) processDocument(ctx context.Context, documentID string) domain.DocumentOutcome {
	ctx, span := tracer.Start(ctx, "intake.process_document", trace.WithAttributes(
		attribute.String("document.id", documentID),
	))
	defer span.End()

	start := time.Now()
	outcome, err := uc.runDocument(ctx, documentID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, rejectionReason(err))
		uc.discard(ctx, documentID, err)
		outcome = domain.DocumentOutcome{
			DocumentID: documentID,
			Status:     domain.OutcomeDeleted,
			Reason:     rejectionReason(err),
		}
	}
	span.SetAttributes(attribute.String("document.outcome", string(outcome.Status)))
	uc.observer.ObserveDocument(string(outcome.Status), time.Since(start))
	return outcome
}

// runDocument is the per-document chain: submit, poll, then match, validate
// and commit inside the case critical section.
func (uc *IntakeUseCase) runDocument(ctx context.Context, documentID string) (domain.DocumentOutcome, error) {
	doc, err := uc.docs.GetByID(ctx, documentID)
	if err != nil {
		return domain.DocumentOutcome{}, fmt.Errorf("fetch document: %w", err)
	}

	if err := uc.extraction.Submit(ctx, doc); err != nil {
		return domain.DocumentOutcome{}, domain.WrapError(domain.ErrExtractionFailed, "submit for extraction", err)
	}
	if err := uc.docs.UpdateStatus(ctx, doc.ID, domain.DocumentProcessing, ""); err != nil {
		uc.logger.Warn("document_status_update_failed", "document_id", doc.ID, "status", domain.DocumentProcessing, "error", err)
	}

	result, err := uc.poller.AwaitClassification(ctx, doc.ID)
	if err != nil {
		return domain.DocumentOutcome{}, err
	}
	if err := uc.docs.SaveExtraction(ctx, doc.ID, *result); err != nil {
		return domain.DocumentOutcome{}, fmt.Errorf("save extraction: %w", err)
	}
	doc.ExtractedData = result.ExtractedData
	doc.ValidationResults = result.ValidationResults

	slot, completes, err := uc.claimSlot(ctx, doc, result.DocumentType)
	if err != nil {
		return domain.DocumentOutcome{}, err
	}
	return domain.DocumentOutcome{
		DocumentID:    doc.ID,
		Status:        domain.OutcomeCommitted,
		SlotID:        slot.ID,
		CompletesCase: completes,
	}, nil
}

// claimSlot matches, validates and commits under the case lock. completes
// reports whether this commit satisfied the last open slot; commits are
// serialized per case, so exactly one commit can observe that transition.
func (uc *IntakeUseCase) claimSlot(ctx context.Context, doc *domain.UploadedDocument, documentType string) (domain.ChecklistSlot, bool, error) {
	unlock, err := uc.locker.Lock(ctx, doc.CaseID)
	if err != nil {
		return domain.ChecklistSlot{}, false, fmt.Errorf("lock case: %w", err)
	}
	defer unlock()

	c, err := uc.cases.Get(ctx, doc.CaseID)
	if err != nil {
		return domain.ChecklistSlot{}, false, fmt.Errorf("fetch case: %w", err)
	}

	matched, tier := uc.matcher.MatchWithTier(documentType, c.Slots)
	if matched == nil {
		return domain.ChecklistSlot{}, false, domain.WrapError(
			domain.ErrNoMatchingSlot,
			"match document type",
			fmt.Errorf("no pending slot for %q", documentType),
		)
	}

	if err := uc.docs.UpdateStatus(ctx, doc.ID, domain.DocumentValidating, ""); err != nil {
		uc.logger.Warn("document_status_update_failed", "document_id", doc.ID, "status", domain.DocumentValidating, "error", err)
	}
	if err := uc.slotValidator.Validate(doc, *matched); err != nil {
		return domain.ChecklistSlot{}, false, err
	}
	if err := uc.updater.Commit(ctx, doc, *matched); err != nil {
		return domain.ChecklistSlot{}, false, err
	}
	completes := completedBy(c, matched.ID)

	uc.logger.Info("document_committed",
		"case_id", doc.CaseID,
		"document_id", doc.ID,
		"slot_id", matched.ID,
		"slot_name", matched.Name,
		"document_type", documentType,
		"match_tier", string(tier),
		"completes_case", completes,
	)
	return *matched, completes, nil
}

// completedBy reports whether c, read under the case lock while slotID was
// still pending, has every slot satisfied once slotID is uploaded.
func completedBy(c *domain.Case, slotID string) bool {
	after := domain.Case{Slots: make([]domain.ChecklistSlot, len(c.Slots))}
	copy(after.Slots, c.Slots)
	for i := range after.Slots {
		if after.Slots[i].ID == slotID {
			after.Slots[i].Status = domain.SlotUploaded
		}
	}
	return after.AllSlotsSatisfied()
}

// discard removes a rejected document and its stored file. Compensation runs
// on a context detached from cancellation so shutdown does not leave orphans.
func (uc *IntakeUseCase) discard(ctx context.Context, documentID string, cause error) {
	cleanupCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), compensationTimeout)
	defer cancel()

	uc.logger.Warn("document_rejected",
		"document_id", documentID,
		"reason", rejectionReason(cause),
		"error", cause,
	)

	var storagePath string
	if doc, err := uc.docs.GetByID(cleanupCtx, documentID); err == nil {
		storagePath = doc.StoragePath
	}
	if err := uc.docs.Delete(cleanupCtx, documentID); err != nil && !domain.IsKind(err, domain.ErrDocumentNotFound) {
		uc.logger.Error("document_delete_failed", "document_id", documentID, "error", err)
	}
	if storagePath != "" {
		if err := uc.storage.Delete(cleanupCtx, storagePath); err != nil {
			uc.logger.Warn("object_delete_failed", "document_id", documentID, "storage_path", storagePath, "error", err)
		}
	}
}

func (uc *IntakeUseCase) GetCase(ctx context.Context, caseID string) (*domain.Case, error) {
	return uc.cases.Get(ctx, caseID)
}

func (uc *IntakeUseCase) GetDocument(ctx context.Context, documentID string) (*domain.UploadedDocument, error) {
	return uc.docs.GetByID(ctx, documentID)
}

func (uc *IntakeUseCase) GetBatch(ctx context.Context, batchID string) (*domain.BatchRecord, error) {
	return uc.batches.GetBatch(ctx, batchID)
}

func rejectionReason(err error) string {
	if kind := domain.RejectionKind(err); kind != nil {
		return kind.Error()
	}
	return "processing error"
}
