package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/noah-isme/herbtrace-api/internal/models"
	"github.com/noah-isme/herbtrace-api/pkg/database"
)

const testResultColumns = `id, lot_id, harvest_id, category, measurements, quality_grade, technician_id, technician_name,
	test_date, status, signature, notes, created_at`

// TestResultRepository persists lab test results.
type TestResultRepository struct {
	db *sqlx.DB
}

// NewTestResultRepository constructs the repository.
func NewTestResultRepository(db *sqlx.DB) *TestResultRepository {
	return &TestResultRepository{db: db}
}

// Create inserts a test result.
func (r *TestResultRepository) Create(ctx context.Context, result *models.TestResult) error {
	if result.ID == "" {
		result.ID = uuid.NewString()
	}
	if result.Status == "" {
		result.Status = models.TestStatusCompleted
	}
	if result.Measurements == nil {
		result.Measurements = models.Measurements{}
	}
	result.CreatedAt = time.Now().UTC()

	const query = `INSERT INTO test_results (` + testResultColumns + `)
	VALUES (:id, :lot_id, :harvest_id, :category, :measurements, :quality_grade, :technician_id, :technician_name,
	:test_date, :status, :signature, :notes, :created_at)`
	if _, err := database.Conn(ctx, r.db).NamedExecContext(ctx, query, result); err != nil {
		return fmt.Errorf("create test result: %w", err)
	}
	return nil
}

// FindByID fetches a test result by identifier.
func (r *TestResultRepository) FindByID(ctx context.Context, id string) (*models.TestResult, error) {
	var result models.TestResult
	if err := database.Conn(ctx, r.db).GetContext(ctx, &result, `SELECT `+testResultColumns+` FROM test_results WHERE id = $1`, id); err != nil {
		return nil, err
	}
	return &result, nil
}

// ListByIDs returns the test results named by ids in the order given.
func (r *TestResultRepository) ListByIDs(ctx context.Context, ids []string) ([]models.TestResult, error) {
	if len(ids) == 0 {
		return []models.TestResult{}, nil
	}
	const query = `SELECT ` + testResultColumns + ` FROM test_results WHERE id = ANY($1::text[]) ORDER BY array_position($1::text[], id)`
	var results []models.TestResult
	if err := database.Conn(ctx, r.db).SelectContext(ctx, &results, query, pq.Array(ids)); err != nil {
		return nil, fmt.Errorf("list test results by id: %w", err)
	}
	return results, nil
}

// List returns test results, optionally scoped to a lot, with the total count.
func (r *TestResultRepository) List(ctx context.Context, filter models.TestResultFilter) ([]models.TestResult, int, error) {
	where, args := "", make([]interface{}, 0, 3)
	if filter.LotID != "" {
		args = append(args, filter.LotID)
		where = appendCondition(where, fmt.Sprintf("lot_id = $%d", len(args)))
	}
	conn := database.Conn(ctx, r.db)
	var total int
	if err := conn.GetContext(ctx, &total, `SELECT COUNT(*) FROM test_results`+where, args...); err != nil {
		return nil, 0, fmt.Errorf("count test results: %w", err)
	}
	_, size, offset := models.Normalize(filter.Page, filter.PageSize, 200)
	args = append(args, size, offset)
	query := fmt.Sprintf(`SELECT %s FROM test_results%s ORDER BY test_date DESC, id LIMIT $%d OFFSET $%d`, testResultColumns, where, len(args)-1, len(args))
	var results []models.TestResult
	if err := conn.SelectContext(ctx, &results, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list test results: %w", err)
	}
	return results, total, nil
}
