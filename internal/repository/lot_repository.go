package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/noah-isme/herbtrace-api/internal/models"
	"github.com/noah-isme/herbtrace-api/pkg/database"
)

const lotColumns = `id, species, variety, farmer_id, farmer_name, quantity, unit, quality_grade, status,
	lookup_code, batch_id, origin, harvest_ids, test_result_ids, processing_batch_ids, certificate_ids,
	workflow_status, final_snapshot, updated_by, created_at, updated_at`

// LotRepository persists lots and their workflow status.
type LotRepository struct {
	db *sqlx.DB
}

// NewLotRepository constructs the repository.
func NewLotRepository(db *sqlx.DB) *LotRepository {
	return &LotRepository{db: db}
}

// Create inserts a new lot row.
func (r *LotRepository) Create(ctx context.Context, lot *models.Lot) error {
	if lot.ID == "" {
		lot.ID = uuid.NewString()
	}
	if lot.Variety == "" {
		lot.Variety = models.DefaultVariety
	}
	if lot.Unit == "" {
		lot.Unit = models.UnitKilogram
	}
	if lot.QualityGrade == "" {
		lot.QualityGrade = models.GradeC
	}
	if lot.Status == "" {
		lot.Status = models.LotStatusHarvested
	}
	for _, ids := range []*pq.StringArray{&lot.HarvestIDs, &lot.TestResultIDs, &lot.ProcessingBatchIDs, &lot.CertificateIDs} {
		if *ids == nil {
			*ids = pq.StringArray{}
		}
	}
	now := time.Now().UTC()
	if lot.CreatedAt.IsZero() {
		lot.CreatedAt = now
	}
	lot.UpdatedAt = now

	const query = `INSERT INTO lots (` + lotColumns + `)
	VALUES (:id, :species, :variety, :farmer_id, :farmer_name, :quantity, :unit, :quality_grade, :status,
	:lookup_code, :batch_id, :origin, :harvest_ids, :test_result_ids, :processing_batch_ids, :certificate_ids,
	:workflow_status, :final_snapshot, :updated_by, :created_at, :updated_at)`
	if _, err := database.Conn(ctx, r.db).NamedExecContext(ctx, query, lot); err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("create lot: %w", ErrDuplicate)
		}
		return fmt.Errorf("create lot: %w", err)
	}
	return nil
}

// FindByID fetches a lot by identifier.
func (r *LotRepository) FindByID(ctx context.Context, id string) (*models.Lot, error) {
	return r.findOne(ctx, "id = $1", id)
}

// FindByLookupCode fetches the lot currently carrying code.
func (r *LotRepository) FindByLookupCode(ctx context.Context, code string) (*models.Lot, error) {
	return r.findOne(ctx, "lookup_code = $1", code)
}

// FindByBatchID fetches the lot by its accumulated batch identifier.
func (r *LotRepository) FindByBatchID(ctx context.Context, batchID string) (*models.Lot, error) {
	return r.findOne(ctx, "batch_id = $1", batchID)
}

// FindByKey fetches the lot a harvest with key merges into.
func (r *LotRepository) FindByKey(ctx context.Context, key models.LotKey) (*models.Lot, error) {
	return r.findOne(ctx, "species = $1 AND variety = $2 AND farmer_id = $3", key.Species, key.Variety, key.FarmerID)
}

// FindByHarvest fetches the oldest lot linking any of harvestIDs.
func (r *LotRepository) FindByHarvest(ctx context.Context, harvestIDs ...string) (*models.Lot, error) {
	return r.findOne(ctx, "harvest_ids && $1::text[]", pq.Array(harvestIDs))
}

func (r *LotRepository) findOne(ctx context.Context, where string, args ...interface{}) (*models.Lot, error) {
	query := `SELECT ` + lotColumns + ` FROM lots WHERE ` + where + ` ORDER BY created_at LIMIT 1`
	var lot models.Lot
	if err := database.Conn(ctx, r.db).GetContext(ctx, &lot, query, args...); err != nil {
		return nil, err
	}
	return &lot, nil
}

// AppendLink appends childID to one of the lot's link lists.
func (r *LotRepository) AppendLink(ctx context.Context, lotID string, link models.LotLink, childID string) error {
	column := link.Column()
	if column == "" {
		return fmt.Errorf("append lot link: unknown link %q", link)
	}
	query := fmt.Sprintf(`UPDATE lots SET %[1]s = array_append(%[1]s, $2), updated_at = NOW() WHERE id = $1`, column)
	return r.execOne(ctx, "append lot link", query, lotID, childID)
}

// AddQuantity accumulates kilograms onto the lot quantity.
func (r *LotRepository) AddQuantity(ctx context.Context, lotID string, kilograms float64) error {
	const query = `UPDATE lots SET quantity = quantity + $2, updated_at = NOW() WHERE id = $1`
	return r.execOne(ctx, "add lot quantity", query, lotID, kilograms)
}

// MarkStage overwrites one workflow slot and optionally advances the lot status. Only the
// named slot is written, so concurrent updates to other slots are preserved.
func (r *LotRepository) MarkStage(ctx context.Context, lotID string, stage models.Stage, record models.StageRecord, status models.LotStatus, updatedBy string) error {
	if !stage.Valid() {
		return fmt.Errorf("mark stage: unknown stage %q", stage)
	}
	const query = `UPDATE lots SET
	workflow_status = jsonb_set(workflow_status, $2::text[], $3::jsonb, true),
	status = COALESCE(NULLIF($4, ''), status),
	updated_by = $5,
	updated_at = NOW()
	WHERE id = $1`
	return r.execOne(ctx, "mark stage", query, lotID, pq.Array([]string{string(stage)}), record, string(status), updatedBy)
}

// Finalize reissues the lookup code and stores the final snapshot.
func (r *LotRepository) Finalize(ctx context.Context, lotID, lookupCode string, snapshot models.FinalSnapshot) error {
	const query = `UPDATE lots SET lookup_code = $2, final_snapshot = $3, updated_at = NOW() WHERE id = $1`
	return r.execOne(ctx, "finalize lot", query, lotID, lookupCode, snapshot)
}

// ListPending returns up to limit lots waiting on stage, oldest first. Pages are keyed on
// (created_at, id) after the given cursor so lots completed between pages never shift the window.
func (r *LotRepository) ListPending(ctx context.Context, stage models.Stage, limit int, after *models.LotCursor) ([]models.Lot, error) {
	if !stage.Valid() {
		return nil, fmt.Errorf("list pending: unknown stage %q", stage)
	}
	conditions := []string{fmt.Sprintf("NOT %s", stageCompleted(stage))}
	if prev, ok := stage.Previous(); ok {
		conditions = append(conditions, stageCompleted(prev))
	}
	args := []interface{}{limit}
	if after != nil {
		conditions = append(conditions, "(created_at, id) > ($2, $3)")
		args = append(args, after.CreatedAt, after.ID)
	}
	query := `SELECT ` + lotColumns + ` FROM lots WHERE ` + strings.Join(conditions, " AND ") +
		` ORDER BY created_at, id LIMIT $1`

	var lots []models.Lot
	if err := database.Conn(ctx, r.db).SelectContext(ctx, &lots, query, args...); err != nil {
		return nil, fmt.Errorf("list pending lots: %w", err)
	}
	return lots, nil
}

func stageCompleted(stage models.Stage) string {
	return fmt.Sprintf("COALESCE((workflow_status->'%s'->>'completed')::boolean, false)", stage)
}

// List returns lots matching filter (latest first) and the total count.
func (r *LotRepository) List(ctx context.Context, filter models.LotFilter) ([]models.Lot, int, error) {
	conditions := make([]string, 0, 3)
	args := make([]interface{}, 0, 5)
	if filter.Status != "" {
		args = append(args, filter.Status)
		conditions = append(conditions, fmt.Sprintf("status = $%d", len(args)))
	}
	if filter.Species != "" {
		args = append(args, filter.Species)
		conditions = append(conditions, fmt.Sprintf("species = $%d", len(args)))
	}
	if filter.FarmerID != "" {
		args = append(args, filter.FarmerID)
		conditions = append(conditions, fmt.Sprintf("farmer_id = $%d", len(args)))
	}
	where := ""
	if len(conditions) > 0 {
		where = " WHERE " + strings.Join(conditions, " AND ")
	}

	conn := database.Conn(ctx, r.db)
	var total int
	if err := conn.GetContext(ctx, &total, `SELECT COUNT(*) FROM lots`+where, args...); err != nil {
		return nil, 0, fmt.Errorf("count lots: %w", err)
	}

	_, size, offset := models.Normalize(filter.Page, filter.PageSize, 200)
	args = append(args, size, offset)
	query := fmt.Sprintf(`SELECT %s FROM lots%s ORDER BY created_at DESC, id LIMIT $%d OFFSET $%d`, lotColumns, where, len(args)-1, len(args))
	var lots []models.Lot
	if err := conn.SelectContext(ctx, &lots, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list lots: %w", err)
	}
	return lots, total, nil
}

// Count returns the number of lots.
func (r *LotRepository) Count(ctx context.Context) (int, error) {
	var total int
	if err := database.Conn(ctx, r.db).GetContext(ctx, &total, `SELECT COUNT(*) FROM lots`); err != nil {
		return 0, fmt.Errorf("count lots: %w", err)
	}
	return total, nil
}

func (r *LotRepository) execOne(ctx context.Context, op, query string, args ...interface{}) error {
	result, err := database.Conn(ctx, r.db).ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return requireRow(result, op)
}
