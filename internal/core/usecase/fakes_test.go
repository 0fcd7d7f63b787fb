package usecase

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/kirillkom/case-intake/internal/core/domain"
)

func noSleep(context.Context, time.Duration) error { return nil }

// memoryStore implements CaseStore, DocumentStore and BatchStore.
type memoryStore struct {
	mu sync.Mutex

	cases     map[string]*domain.Case
	docs      map[string]*domain.UploadedDocument
	batches   map[string]*domain.BatchRecord
	templates map[string][]string
	prefills  []domain.QuestionnairePrefill

	deleted        []string
	slotPatches    map[string]int
	doubleClaims   []string
	createErr      error
	patchSlotErr   error
	prefillErrs    map[string]error
	statusUpdates  map[string][]domain.DocumentStatus
	caseGetCount   int
	settledResults []*domain.BatchResult
}

func newMemoryStore(cases ...*domain.Case) *memoryStore {
	s := &memoryStore{
		cases:         make(map[string]*domain.Case),
		docs:          make(map[string]*domain.UploadedDocument),
		batches:       make(map[string]*domain.BatchRecord),
		templates:     make(map[string][]string),
		slotPatches:   make(map[string]int),
		prefillErrs:   make(map[string]error),
		statusUpdates: make(map[string][]domain.DocumentStatus),
	}
	for _, c := range cases {
		s.cases[c.ID] = c
	}
	return s
}

func (s *memoryStore) Get(_ context.Context, caseID string) (*domain.Case, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.caseGetCount++
	c, ok := s.cases[caseID]
	if !ok {
		return nil, domain.WrapError(domain.ErrCaseNotFound, "get case", fmt.Errorf("id=%s", caseID))
	}
	out := *c
	out.Slots = make([]domain.ChecklistSlot, len(c.Slots))
	copy(out.Slots, c.Slots)
	for i := range out.Slots {
		out.Slots[i].DocumentID = ""
		for _, doc := range s.docs {
			if doc.SlotID == out.Slots[i].ID {
				out.Slots[i].DocumentID = doc.ID
			}
		}
	}
	return &out, nil
}

func (s *memoryStore) PatchSlotStatus(_ context.Context, caseID, slotID string, status domain.SlotStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.patchSlotErr != nil {
		return s.patchSlotErr
	}
	c, ok := s.cases[caseID]
	if !ok {
		return domain.ErrCaseNotFound
	}
	for i := range c.Slots {
		if c.Slots[i].ID == slotID {
			c.Slots[i].Status = status
			s.slotPatches[slotID]++
			return nil
		}
	}
	return fmt.Errorf("slot %s not found", slotID)
}

func (s *memoryStore) ActiveQuestionnaireTemplates(_ context.Context, categoryID string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.templates[categoryID]...), nil
}

func (s *memoryStore) SavePrefill(_ context.Context, prefill domain.QuestionnairePrefill) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.prefillErrs[prefill.TemplateID]; err != nil {
		return err
	}
	s.prefills = append(s.prefills, prefill)
	return nil
}

func (s *memoryStore) Create(_ context.Context, doc *domain.UploadedDocument) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.createErr != nil {
		return s.createErr
	}
	copyDoc := *doc
	s.docs[doc.ID] = &copyDoc
	return nil
}

func (s *memoryStore) GetByID(_ context.Context, id string) (*domain.UploadedDocument, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc, ok := s.docs[id]
	if !ok {
		return nil, domain.WrapError(domain.ErrDocumentNotFound, "get document", fmt.Errorf("id=%s", id))
	}
	copyDoc := *doc
	return &copyDoc, nil
}

func (s *memoryStore) ListByCase(_ context.Context, caseID string) ([]domain.UploadedDocument, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.UploadedDocument
	for _, doc := range s.docs {
		if doc.CaseID == caseID {
			out = append(out, *doc)
		}
	}
	return out, nil
}

func (s *memoryStore) UpdateStatus(_ context.Context, id string, status domain.DocumentStatus, errMessage string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc, ok := s.docs[id]
	if !ok {
		return domain.ErrDocumentNotFound
	}
	doc.Status = status
	doc.ProcessingError = errMessage
	s.statusUpdates[id] = append(s.statusUpdates[id], status)
	return nil
}

func (s *memoryStore) SaveExtraction(_ context.Context, id string, result domain.ExtractionResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc, ok := s.docs[id]
	if !ok {
		return domain.ErrDocumentNotFound
	}
	doc.ExtractedData = result.ExtractedData
	doc.ValidationResults = result.ValidationResults
	doc.Status = domain.DocumentDetecting
	return nil
}

func (s *memoryStore) Patch(_ context.Context, id, slotID, documentTypeID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc, ok := s.docs[id]
	if !ok {
		return domain.ErrDocumentNotFound
	}
	for otherID, other := range s.docs {
		if otherID != id && other.SlotID == slotID {
			s.doubleClaims = append(s.doubleClaims, slotID)
		}
	}
	doc.SlotID = slotID
	doc.DocumentTypeID = documentTypeID
	doc.Status = domain.DocumentUploaded
	return nil
}

func (s *memoryStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.docs[id]; !ok {
		return domain.ErrDocumentNotFound
	}
	delete(s.docs, id)
	s.deleted = append(s.deleted, id)
	return nil
}

func (s *memoryStore) CreateBatch(_ context.Context, batch *domain.Batch) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.batches[batch.ID] = &domain.BatchRecord{Batch: *batch}
	return nil
}

func (s *memoryStore) SettleBatch(_ context.Context, result *domain.BatchResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.settledResults = append(s.settledResults, result)
	record, ok := s.batches[result.BatchID]
	if !ok {
		return domain.ErrBatchNotFound
	}
	record.Status = domain.BatchSettled
	record.Succeeded = result.Succeeded
	record.Failed = result.Failed
	record.GateFired = result.GateFired
	settledAt := result.SettledAt
	record.SettledAt = &settledAt
	return nil
}

func (s *memoryStore) GetBatch(_ context.Context, id string) (*domain.BatchRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	record, ok := s.batches[id]
	if !ok {
		return nil, domain.ErrBatchNotFound
	}
	copyRecord := *record
	return &copyRecord, nil
}

func (s *memoryStore) slot(caseID, slotID string) domain.ChecklistSlot {
	c, _ := s.Get(context.Background(), caseID)
	slot, _ := c.SlotByID(slotID)
	return slot
}

func (s *memoryStore) documentCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.docs)
}

type memoryObjects struct {
	mu      sync.Mutex
	objects map[string][]byte
	saveErr error
}

func newMemoryObjects() *memoryObjects {
	return &memoryObjects{objects: make(map[string][]byte)}
}

func (m *memoryObjects) Save(_ context.Context, key string, data io.Reader) error {
	if m.saveErr != nil {
		return m.saveErr
	}
	raw, err := io.ReadAll(data)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[key] = raw
	return nil
}

func (m *memoryObjects) Open(_ context.Context, key string) (io.ReadCloser, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	raw, ok := m.objects[key]
	if !ok {
		return nil, errors.New("object not found")
	}
	return io.NopCloser(bytes.NewReader(raw)), nil
}

func (m *memoryObjects) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.objects, key)
	return nil
}

func (m *memoryObjects) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.objects)
}

// extractionScript describes how the fake extraction service answers for
// one uploaded filename.
type extractionScript struct {
	documentType      string
	pendingPolls      int
	processingError   string
	failed            bool
	fetchErr          error
	never             bool
	fields            map[string]any
	validationResults []domain.ValidationResult
}

type scriptedExtraction struct {
	mu        sync.Mutex
	scripts   map[string]extractionScript
	byDocID   map[string]string
	polls     map[string]int
	submitErr error
}

func newScriptedExtraction(scripts map[string]extractionScript) *scriptedExtraction {
	return &scriptedExtraction{
		scripts: scripts,
		byDocID: make(map[string]string),
		polls:   make(map[string]int),
	}
}

func (e *scriptedExtraction) Submit(_ context.Context, doc *domain.UploadedDocument) error {
	if e.submitErr != nil {
		return e.submitErr
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.byDocID[doc.ID] = doc.Filename
	return nil
}

func (e *scriptedExtraction) Status(_ context.Context, documentID string) (domain.ExtractionStatus, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.polls[documentID]++
	script, ok := e.scripts[e.byDocID[documentID]]
	if !ok {
		script, ok = e.scripts[documentID]
	}
	if !ok {
		return domain.ExtractionStatus{}, errors.New("unknown document")
	}
	switch {
	case script.fetchErr != nil:
		return domain.ExtractionStatus{}, script.fetchErr
	case script.processingError != "":
		return domain.ExtractionStatus{Status: domain.DocumentProcessing, ProcessingError: script.processingError}, nil
	case script.failed:
		return domain.ExtractionStatus{Status: domain.DocumentFailed}, nil
	case script.never || e.polls[documentID] <= script.pendingPolls:
		return domain.ExtractionStatus{Status: domain.DocumentProcessing}, nil
	}
	data := map[string]any{domain.DocumentTypeKey: script.documentType}
	for k, v := range script.fields {
		data[k] = v
	}
	return domain.ExtractionStatus{
		Status:            domain.DocumentDetecting,
		ExtractedData:     data,
		ValidationResults: script.validationResults,
	}, nil
}

func (e *scriptedExtraction) pollCount(documentID string) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.polls[documentID]
}

type fakeAnalysis struct {
	mu           sync.Mutex
	verifyCalls  atomic.Int32
	lastRequest  domain.CrossVerifyRequest
	report       domain.VerificationReport
	verifyErr    error
	organizeErrs map[string]error
	organized    []string
}

func (a *fakeAnalysis) CrossVerify(_ context.Context, req domain.CrossVerifyRequest) (domain.VerificationReport, error) {
	a.verifyCalls.Add(1)
	a.mu.Lock()
	a.lastRequest = req
	a.mu.Unlock()
	if a.verifyErr != nil {
		return domain.VerificationReport{}, a.verifyErr
	}
	return a.report, nil
}

func (a *fakeAnalysis) Organize(_ context.Context, caseID, templateID string) (domain.OrganizedDocuments, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.organized = append(a.organized, templateID)
	if err := a.organizeErrs[templateID]; err != nil {
		return domain.OrganizedDocuments{}, err
	}
	return domain.OrganizedDocuments{
		RawDocuments: map[string]any{"case_id": caseID},
		ProcessedInformation: map[string]map[string]any{
			"Passport": {"full_name": "Jane Doe"},
		},
	}, nil
}

type fakeMail struct {
	mu       sync.Mutex
	drafts   []domain.MailDraftRequest
	sent     []domain.MailMessage
	draftErr error
	sendErr  error
}

func (m *fakeMail) Draft(_ context.Context, req domain.MailDraftRequest) (domain.MailDraft, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.drafts = append(m.drafts, req)
	if m.draftErr != nil {
		return domain.MailDraft{}, m.draftErr
	}
	return domain.MailDraft{Subject: "Verification report", Body: "body"}, nil
}

func (m *fakeMail) Send(_ context.Context, msg domain.MailMessage) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.sendErr != nil {
		return m.sendErr
	}
	m.sent = append(m.sent, msg)
	return nil
}

type caseLocks struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func newCaseLocks() *caseLocks {
	return &caseLocks{locks: make(map[string]*sync.Mutex)}
}

func (l *caseLocks) Lock(_ context.Context, caseID string) (func(), error) {
	l.mu.Lock()
	m, ok := l.locks[caseID]
	if !ok {
		m = &sync.Mutex{}
		l.locks[caseID] = m
	}
	l.mu.Unlock()
	m.Lock()
	return m.Unlock, nil
}

type countingObserver struct {
	mu           sync.Mutex
	documents    map[string]int
	pollAttempts []int
	gateFired    int
	gateSkipped  int
	notifyFailed int
}

func newCountingObserver() *countingObserver {
	return &countingObserver{documents: make(map[string]int)}
}

func (o *countingObserver) ObserveDocument(outcome string, _ time.Duration) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.documents[outcome]++
}

func (o *countingObserver) ObservePoll(attempts int, _ bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.pollAttempts = append(o.pollAttempts, attempts)
}

func (o *countingObserver) ObserveGate(fired bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if fired {
		o.gateFired++
		return
	}
	o.gateSkipped++
}

func (o *countingObserver) ObserveNotification(err error) {
	if err == nil {
		return
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	o.notifyFailed++
}

func passportResumeCase() *domain.Case {
	return &domain.Case{
		ID:           "case-1",
		CategoryID:   "visa",
		Status:       domain.CasePending,
		ContactEmail: "client@example.com",
		ManagerEmail: "manager@example.com",
		Slots: []domain.ChecklistSlot{
			{ID: "slot-passport", Name: "Passport", Required: true, Status: domain.SlotPending, DocumentTypeID: "type-passport"},
			{ID: "slot-resume", Name: "Resume", Required: true, Status: domain.SlotPending, DocumentTypeID: "type-resume"},
		},
	}
}

func pdf(name string) domain.UploadFile {
	return domain.UploadFile{Filename: name, MimeType: "application/pdf", Body: []byte("%PDF-1.4 " + name)}
}
