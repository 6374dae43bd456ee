package service

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/noah-isme/herbtrace-api/internal/models"
	"github.com/noah-isme/herbtrace-api/internal/repository"
)

// memoryStore backs every workflow store with maps guarded by one mutex. Stage writes touch
// one slot only, mirroring the jsonb_set update of the SQL repository.
type memoryStore struct {
	mu       sync.Mutex
	seq      int
	lots     map[string]*models.Lot
	lotOrder []string
	harvests map[string]*models.Harvest
	tests    map[string]*models.TestResult
	batches  map[string]*models.ProcessingBatch
	certs    map[string]*models.Certificate
}

func newMemoryStore() *memoryStore {
	return &memoryStore{
		lots:     map[string]*models.Lot{},
		harvests: map[string]*models.Harvest{},
		tests:    map[string]*models.TestResult{},
		batches:  map[string]*models.ProcessingBatch{},
		certs:    map[string]*models.Certificate{},
	}
}

func (m *memoryStore) stores() WorkflowStores {
	return WorkflowStores{
		Lots:         memLots{m},
		Harvests:     memHarvests{m},
		TestResults:  memTests{m},
		Batches:      memBatches{m},
		Certificates: memCerts{m},
	}
}

func (m *memoryStore) tick() time.Time {
	m.seq++
	return time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC).Add(time.Duration(m.seq) * time.Second)
}

func cloneLot(l *models.Lot) *models.Lot {
	out := *l
	out.HarvestIDs = append([]string{}, l.HarvestIDs...)
	out.TestResultIDs = append([]string{}, l.TestResultIDs...)
	out.ProcessingBatchIDs = append([]string{}, l.ProcessingBatchIDs...)
	out.CertificateIDs = append([]string{}, l.CertificateIDs...)
	return &out
}

type memLots struct{ *memoryStore }

func (s memLots) Create(_ context.Context, lot *models.Lot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range s.lotOrder {
		existing := s.lots[id]
		if existing.Key() == lot.Key() || existing.LookupCode == lot.LookupCode {
			return repository.ErrDuplicate
		}
	}
	if lot.ID == "" {
		lot.ID = uuid.NewString()
	}
	if lot.Variety == "" {
		lot.Variety = models.DefaultVariety
	}
	if lot.QualityGrade == "" {
		lot.QualityGrade = models.GradeC
	}
	if lot.Status == "" {
		lot.Status = models.LotStatusHarvested
	}
	now := s.tick()
	lot.CreatedAt, lot.UpdatedAt = now, now
	s.lots[lot.ID] = cloneLot(lot)
	s.lotOrder = append(s.lotOrder, lot.ID)
	return nil
}

func (s memLots) find(match func(*models.Lot) bool) (*models.Lot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range s.lotOrder {
		if lot := s.lots[id]; match(lot) {
			return cloneLot(lot), nil
		}
	}
	return nil, sql.ErrNoRows
}

func (s memLots) FindByID(_ context.Context, id string) (*models.Lot, error) {
	return s.find(func(l *models.Lot) bool { return l.ID == id })
}

func (s memLots) FindByLookupCode(_ context.Context, code string) (*models.Lot, error) {
	return s.find(func(l *models.Lot) bool { return l.LookupCode == code })
}

func (s memLots) FindByBatchID(_ context.Context, batchID string) (*models.Lot, error) {
	return s.find(func(l *models.Lot) bool { return l.BatchID == batchID })
}

func (s memLots) FindByKey(_ context.Context, key models.LotKey) (*models.Lot, error) {
	return s.find(func(l *models.Lot) bool { return l.Key() == key })
}

func (s memLots) FindByHarvest(_ context.Context, harvestIDs ...string) (*models.Lot, error) {
	return s.find(func(l *models.Lot) bool {
		for _, id := range harvestIDs {
			if l.HasHarvest(id) {
				return true
			}
		}
		return false
	})
}

func (s memLots) update(lotID string, fn func(*models.Lot)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	lot, ok := s.lots[lotID]
	if !ok {
		return sql.ErrNoRows
	}
	fn(lot)
	lot.UpdatedAt = s.tick()
	return nil
}

func (s memLots) AppendLink(_ context.Context, lotID string, link models.LotLink, childID string) error {
	return s.update(lotID, func(l *models.Lot) {
		switch link {
		case models.LinkHarvest:
			l.HarvestIDs = append(l.HarvestIDs, childID)
		case models.LinkTestResult:
			l.TestResultIDs = append(l.TestResultIDs, childID)
		case models.LinkProcessingBatch:
			l.ProcessingBatchIDs = append(l.ProcessingBatchIDs, childID)
		case models.LinkCertificate:
			l.CertificateIDs = append(l.CertificateIDs, childID)
		}
	})
}

func (s memLots) AddQuantity(_ context.Context, lotID string, kilograms float64) error {
	return s.update(lotID, func(l *models.Lot) { l.Quantity += kilograms })
}

func (s memLots) MarkStage(_ context.Context, lotID string, stage models.Stage, record models.StageRecord, status models.LotStatus, updatedBy string) error {
	return s.update(lotID, func(l *models.Lot) {
		l.WorkflowStatus.Set(stage, record)
		if status != "" {
			l.Status = status
		}
		l.UpdatedBy = updatedBy
	})
}

func (s memLots) Finalize(_ context.Context, lotID, lookupCode string, snapshot models.FinalSnapshot) error {
	return s.update(lotID, func(l *models.Lot) {
		l.LookupCode = lookupCode
		l.FinalSnapshot = &snapshot
	})
}

func (s memLots) ListPending(_ context.Context, stage models.Stage, limit int, after *models.LotCursor) ([]models.Lot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	matched := []models.Lot{}
	for _, id := range s.lotOrder {
		lot := s.lots[id]
		if !lot.WorkflowStatus.IsPendingFor(stage) || !after.After(*lot) {
			continue
		}
		matched = append(matched, *cloneLot(lot))
		if limit > 0 && len(matched) == limit {
			break
		}
	}
	return matched, nil
}

func (s memLots) List(_ context.Context, filter models.LotFilter) ([]models.Lot, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var matched []models.Lot
	for i := len(s.lotOrder) - 1; i >= 0; i-- {
		lot := s.lots[s.lotOrder[i]]
		if filter.Status != "" && lot.Status != filter.Status {
			continue
		}
		if filter.Species != "" && lot.Species != filter.Species {
			continue
		}
		if filter.FarmerID != "" && lot.FarmerID != filter.FarmerID {
			continue
		}
		matched = append(matched, *cloneLot(lot))
	}
	_, size, offset := models.Normalize(filter.Page, filter.PageSize, 200)
	return paginate(matched, size, offset), len(matched), nil
}

func paginate[T any](items []T, limit, offset int) []T {
	if offset >= len(items) {
		return []T{}
	}
	end := offset + limit
	if limit <= 0 || end > len(items) {
		end = len(items)
	}
	return items[offset:end]
}

type memHarvests struct{ *memoryStore }

func (s memHarvests) Create(_ context.Context, harvest *models.Harvest) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if harvest.ID == "" {
		harvest.ID = uuid.NewString()
	}
	now := s.tick()
	harvest.CreatedAt, harvest.UpdatedAt = now, now
	copied := *harvest
	s.harvests[harvest.ID] = &copied
	return nil
}

func (s memHarvests) FindByID(_ context.Context, id string) (*models.Harvest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	h, ok := s.harvests[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	copied := *h
	return &copied, nil
}

func (s memHarvests) ListByIDs(_ context.Context, ids []string) ([]models.Harvest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []models.Harvest{}
	for _, id := range ids {
		if h, ok := s.harvests[id]; ok {
			out = append(out, *h)
		}
	}
	return out, nil
}

func (s memHarvests) List(_ context.Context, filter models.HarvestFilter) ([]models.Harvest, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var matched []models.Harvest
	for _, h := range s.harvests {
		if filter.FarmerID != "" && h.FarmerID != filter.FarmerID {
			continue
		}
		if filter.Status != "" && h.Status != filter.Status {
			continue
		}
		matched = append(matched, *h)
	}
	sort.Slice(matched, func(i, j int) bool { return matched[i].CreatedAt.After(matched[j].CreatedAt) })
	_, size, offset := models.Normalize(filter.Page, filter.PageSize, 200)
	return paginate(matched, size, offset), len(matched), nil
}

func (s memHarvests) UpdateStatus(_ context.Context, ids []string, status models.HarvestStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range ids {
		if h, ok := s.harvests[id]; ok {
			h.Status = status
		}
	}
	return nil
}

type memTests struct{ *memoryStore }

func (s memTests) Create(_ context.Context, result *models.TestResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if result.ID == "" {
		result.ID = uuid.NewString()
	}
	result.CreatedAt = s.tick()
	copied := *result
	s.tests[result.ID] = &copied
	return nil
}

func (s memTests) FindByID(_ context.Context, id string) (*models.TestResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tests[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	copied := *t
	return &copied, nil
}

func (s memTests) ListByIDs(_ context.Context, ids []string) ([]models.TestResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []models.TestResult{}
	for _, id := range ids {
		if t, ok := s.tests[id]; ok {
			out = append(out, *t)
		}
	}
	return out, nil
}

func (s memTests) List(_ context.Context, filter models.TestResultFilter) ([]models.TestResult, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var matched []models.TestResult
	for _, t := range s.tests {
		if filter.LotID == "" || t.LotID == filter.LotID {
			matched = append(matched, *t)
		}
	}
	sort.Slice(matched, func(i, j int) bool { return matched[i].CreatedAt.After(matched[j].CreatedAt) })
	_, size, offset := models.Normalize(filter.Page, filter.PageSize, 200)
	return paginate(matched, size, offset), len(matched), nil
}

type memBatches struct{ *memoryStore }

func cloneBatch(b *models.ProcessingBatch) *models.ProcessingBatch {
	out := *b
	out.HarvestIDs = append([]string{}, b.HarvestIDs...)
	out.Steps = append(models.ProcessingSteps{}, b.Steps...)
	return &out
}

func (s memBatches) Create(_ context.Context, batch *models.ProcessingBatch) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if batch.ID == "" {
		batch.ID = uuid.NewString()
	}
	if batch.Steps == nil {
		batch.Steps = models.ProcessingSteps{}
	}
	now := s.tick()
	batch.CreatedAt, batch.UpdatedAt = now, now
	s.batches[batch.ID] = cloneBatch(batch)
	return nil
}

func (s memBatches) FindByID(_ context.Context, id string) (*models.ProcessingBatch, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.batches[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return cloneBatch(b), nil
}

func (s memBatches) AppendStep(_ context.Context, batchID string, step models.ProcessingStep) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.batches[batchID]
	if !ok {
		return sql.ErrNoRows
	}
	b.Steps = append(b.Steps, step)
	return nil
}

func (s memBatches) Finish(_ context.Context, params repository.FinishBatchParams) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.batches[params.ID]
	if !ok || isFinished(b.Status) {
		return sql.ErrNoRows
	}
	end := params.EndDate
	b.Status = params.Status
	b.EndDate = &end
	if params.OutputQuantity != nil {
		b.OutputQuantity = params.OutputQuantity
	}
	if params.OutputUnit != nil {
		b.OutputUnit = params.OutputUnit
	}
	if params.Packaging != nil {
		b.Packaging = params.Packaging
	}
	if params.QualityControl != nil {
		b.QualityControl = params.QualityControl
	}
	return nil
}

func (s memBatches) List(_ context.Context, filter models.BatchFilter) ([]models.ProcessingBatch, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var matched []models.ProcessingBatch
	for _, b := range s.batches {
		if filter.Status == "" || b.Status == filter.Status {
			matched = append(matched, *cloneBatch(b))
		}
	}
	_, size, offset := models.Normalize(filter.Page, filter.PageSize, 200)
	return paginate(matched, size, offset), len(matched), nil
}

func (s memBatches) RecentSteps(_ context.Context, limit int) ([]models.RecentStep, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var steps []models.RecentStep
	for _, b := range s.batches {
		for _, step := range b.Steps {
			steps = append(steps, models.RecentStep{BatchID: b.ID, ProcessingStep: step})
		}
	}
	sort.Slice(steps, func(i, j int) bool { return steps[i].Timestamp.After(steps[j].Timestamp) })
	return paginate(steps, limit, 0), nil
}

type memCerts struct{ *memoryStore }

func (s memCerts) Create(_ context.Context, cert *models.Certificate) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.certs {
		if existing.Number == cert.Number {
			return repository.ErrDuplicate
		}
	}
	if cert.ID == "" {
		cert.ID = uuid.NewString()
	}
	cert.CreatedAt = s.tick()
	copied := *cert
	s.certs[cert.ID] = &copied
	return nil
}

func (s memCerts) ListByIDs(_ context.Context, ids []string) ([]models.Certificate, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []models.Certificate{}
	for _, id := range ids {
		if c, ok := s.certs[id]; ok {
			out = append(out, *c)
		}
	}
	return out, nil
}

// inlineTx runs the function directly and counts outcomes.
type inlineTx struct {
	commits   atomic.Int32
	rollbacks atomic.Int32
}

func (t *inlineTx) WithinTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if err := fn(ctx); err != nil {
		t.rollbacks.Add(1)
		return err
	}
	t.commits.Add(1)
	return nil
}

type recordingNotifier struct {
	mu     sync.Mutex
	events []models.Event
}

func (n *recordingNotifier) Emit(event models.Event) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, event)
}

func (n *recordingNotifier) types() []models.EventType {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]models.EventType, 0, len(n.events))
	for _, e := range n.events {
		out = append(out, e.Type)
	}
	return out
}

type recordingAudit struct {
	mu      sync.Mutex
	actions []string
	err     error
}

func (a *recordingAudit) CreateAuditLog(_ context.Context, log *models.AuditLog) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.actions = append(a.actions, log.Action)
	return a.err
}

func sequentialCodes() CodeGenerator {
	var n atomic.Int64
	return func(prefix string) string {
		return fmt.Sprintf("%s-%d", prefix, n.Add(1))
	}
}
