package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/herbtrace-api/internal/models"
	"github.com/noah-isme/herbtrace-api/pkg/database"
)

const batchColumns = `id, lot_id, harvest_ids, category, facility_id, start_date, end_date, status, steps,
	output_quantity, output_unit, packaging, quality_control, created_at, updated_at`

// ProcessingBatchRepository persists processing batches and their step logs.
type ProcessingBatchRepository struct {
	db *sqlx.DB
}

// NewProcessingBatchRepository constructs the repository.
func NewProcessingBatchRepository(db *sqlx.DB) *ProcessingBatchRepository {
	return &ProcessingBatchRepository{db: db}
}

// Create inserts a batch.
func (r *ProcessingBatchRepository) Create(ctx context.Context, batch *models.ProcessingBatch) error {
	if batch.ID == "" {
		batch.ID = uuid.NewString()
	}
	if batch.Status == "" {
		batch.Status = models.BatchStatusPending
	}
	if batch.Steps == nil {
		batch.Steps = models.ProcessingSteps{}
	}
	now := time.Now().UTC()
	batch.CreatedAt = now
	batch.UpdatedAt = now

	const query = `INSERT INTO processing_batches (` + batchColumns + `)
	VALUES (:id, :lot_id, :harvest_ids, :category, :facility_id, :start_date, :end_date, :status, :steps,
	:output_quantity, :output_unit, :packaging, :quality_control, :created_at, :updated_at)`
	if _, err := database.Conn(ctx, r.db).NamedExecContext(ctx, query, batch); err != nil {
		return fmt.Errorf("create processing batch: %w", err)
	}
	return nil
}

// FindByID fetches a batch by identifier.
func (r *ProcessingBatchRepository) FindByID(ctx context.Context, id string) (*models.ProcessingBatch, error) {
	var batch models.ProcessingBatch
	if err := database.Conn(ctx, r.db).GetContext(ctx, &batch, `SELECT `+batchColumns+` FROM processing_batches WHERE id = $1`, id); err != nil {
		return nil, err
	}
	return &batch, nil
}

// AppendStep appends one step to the batch's step log.
func (r *ProcessingBatchRepository) AppendStep(ctx context.Context, batchID string, step models.ProcessingStep) error {
	payload, err := json.Marshal([]models.ProcessingStep{step})
	if err != nil {
		return fmt.Errorf("marshal processing step: %w", err)
	}
	const query = `UPDATE processing_batches SET steps = steps || $2::jsonb, updated_at = NOW() WHERE id = $1`
	result, err := database.Conn(ctx, r.db).ExecContext(ctx, query, batchID, payload)
	if err != nil {
		return fmt.Errorf("append processing step: %w", err)
	}
	return requireRow(result, "append processing step")
}

// FinishBatchParams groups the columns written when a batch closes.
type FinishBatchParams struct {
	ID             string                 `db:"id"`
	Status         models.BatchStatus     `db:"status"`
	EndDate        time.Time              `db:"end_date"`
	OutputQuantity *float64               `db:"output_quantity"`
	OutputUnit     *string                `db:"output_unit"`
	Packaging      *models.Packaging      `db:"packaging"`
	QualityControl *models.QualityControl `db:"quality_control"`
}

// Finish closes a batch that is still open.
func (r *ProcessingBatchRepository) Finish(ctx context.Context, params FinishBatchParams) error {
	const query = `UPDATE processing_batches SET
	status = :status,
	end_date = :end_date,
	output_quantity = COALESCE(:output_quantity, output_quantity),
	output_unit = COALESCE(:output_unit, output_unit),
	packaging = COALESCE(:packaging, packaging),
	quality_control = COALESCE(:quality_control, quality_control),
	updated_at = NOW()
	WHERE id = :id AND status IN ('pending', 'in_progress')`
	result, err := database.Conn(ctx, r.db).NamedExecContext(ctx, query, params)
	if err != nil {
		return fmt.Errorf("finish processing batch: %w", err)
	}
	return requireRow(result, "finish processing batch")
}

// List returns batches matching filter with the total count. Completed batches are
// ordered by end date.
func (r *ProcessingBatchRepository) List(ctx context.Context, filter models.BatchFilter) ([]models.ProcessingBatch, int, error) {
	where, args := "", make([]interface{}, 0, 3)
	order := "start_date DESC, id"
	if filter.Status != "" {
		args = append(args, filter.Status)
		where = appendCondition(where, fmt.Sprintf("status = $%d", len(args)))
		if filter.Status == models.BatchStatusCompleted {
			order = "end_date DESC NULLS LAST, start_date DESC, id"
		}
	}
	conn := database.Conn(ctx, r.db)
	var total int
	if err := conn.GetContext(ctx, &total, `SELECT COUNT(*) FROM processing_batches`+where, args...); err != nil {
		return nil, 0, fmt.Errorf("count processing batches: %w", err)
	}
	_, size, offset := models.Normalize(filter.Page, filter.PageSize, 200)
	args = append(args, size, offset)
	query := fmt.Sprintf(`SELECT %s FROM processing_batches%s ORDER BY %s LIMIT $%d OFFSET $%d`, batchColumns, where, order, len(args)-1, len(args))
	var batches []models.ProcessingBatch
	if err := conn.SelectContext(ctx, &batches, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list processing batches: %w", err)
	}
	return batches, total, nil
}

type recentStepRow struct {
	BatchID string          `db:"batch_id"`
	Step    json.RawMessage `db:"step"`
}

// RecentSteps returns the latest steps across all batches, newest first.
func (r *ProcessingBatchRepository) RecentSteps(ctx context.Context, limit int) ([]models.RecentStep, error) {
	if limit <= 0 {
		limit = 20
	}
	const query = `SELECT b.id AS batch_id, s.step
	FROM processing_batches b
	CROSS JOIN LATERAL jsonb_array_elements(b.steps) AS s(step)
	ORDER BY (s.step->>'timestamp')::timestamptz DESC
	LIMIT $1`
	var rows []recentStepRow
	if err := database.Conn(ctx, r.db).SelectContext(ctx, &rows, query, limit); err != nil {
		return nil, fmt.Errorf("list recent steps: %w", err)
	}
	steps := make([]models.RecentStep, 0, len(rows))
	for _, row := range rows {
		var step models.ProcessingStep
		if err := json.Unmarshal(row.Step, &step); err != nil {
			return nil, fmt.Errorf("decode processing step of batch %s: %w", row.BatchID, err)
		}
		steps = append(steps, models.RecentStep{BatchID: row.BatchID, ProcessingStep: step})
	}
	return steps, nil
}

// Count returns the number of batches.
func (r *ProcessingBatchRepository) Count(ctx context.Context) (int, error) {
	var total int
	if err := database.Conn(ctx, r.db).GetContext(ctx, &total, `SELECT COUNT(*) FROM processing_batches`); err != nil {
		return 0, fmt.Errorf("count processing batches: %w", err)
	}
	return total, nil
}

func requireRow(result sql.Result, op string) error {
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s rows: %w", op, err)
	}
	if rows == 0 {
		return sql.ErrNoRows
	}
	return nil
}
