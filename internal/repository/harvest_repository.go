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

const harvestColumns = `id, lot_id, farmer_id, farmer_name, species, variety, quantity, unit, latitude, longitude,
	address, region, country, harvest_date, photo_ref, notes, weather, status, created_at, updated_at`

// HarvestRepository persists farmer harvest submissions.
type HarvestRepository struct {
	db *sqlx.DB
}

// NewHarvestRepository constructs the repository.
func NewHarvestRepository(db *sqlx.DB) *HarvestRepository {
	return &HarvestRepository{db: db}
}

// Create inserts a new harvest row.
func (r *HarvestRepository) Create(ctx context.Context, harvest *models.Harvest) error {
	if harvest.ID == "" {
		harvest.ID = uuid.NewString()
	}
	if harvest.Status == "" {
		harvest.Status = models.HarvestStatusPendingTesting
	}
	if harvest.Unit == "" {
		harvest.Unit = models.UnitKilogram
	}
	now := time.Now().UTC()
	harvest.CreatedAt = now
	harvest.UpdatedAt = now

	const query = `INSERT INTO harvests (` + harvestColumns + `)
	VALUES (:id, :lot_id, :farmer_id, :farmer_name, :species, :variety, :quantity, :unit, :latitude, :longitude,
	:address, :region, :country, :harvest_date, :photo_ref, :notes, :weather, :status, :created_at, :updated_at)`
	if _, err := database.Conn(ctx, r.db).NamedExecContext(ctx, query, harvest); err != nil {
		return fmt.Errorf("create harvest: %w", err)
	}
	return nil
}

// FindByID fetches a harvest by identifier.
func (r *HarvestRepository) FindByID(ctx context.Context, id string) (*models.Harvest, error) {
	var harvest models.Harvest
	if err := database.Conn(ctx, r.db).GetContext(ctx, &harvest, `SELECT `+harvestColumns+` FROM harvests WHERE id = $1`, id); err != nil {
		return nil, err
	}
	return &harvest, nil
}

// ListByIDs returns the harvests named by ids in the order given.
func (r *HarvestRepository) ListByIDs(ctx context.Context, ids []string) ([]models.Harvest, error) {
	if len(ids) == 0 {
		return []models.Harvest{}, nil
	}
	const query = `SELECT ` + harvestColumns + ` FROM harvests WHERE id = ANY($1::text[]) ORDER BY array_position($1::text[], id)`
	var harvests []models.Harvest
	if err := database.Conn(ctx, r.db).SelectContext(ctx, &harvests, query, pq.Array(ids)); err != nil {
		return nil, fmt.Errorf("list harvests by id: %w", err)
	}
	return harvests, nil
}

// List returns harvests matching filter (latest first) and the total count.
func (r *HarvestRepository) List(ctx context.Context, filter models.HarvestFilter) ([]models.Harvest, int, error) {
	where, args := "", make([]interface{}, 0, 4)
	if filter.FarmerID != "" {
		args = append(args, filter.FarmerID)
		where = appendCondition(where, fmt.Sprintf("farmer_id = $%d", len(args)))
	}
	if filter.Status != "" {
		args = append(args, filter.Status)
		where = appendCondition(where, fmt.Sprintf("status = $%d", len(args)))
	}

	conn := database.Conn(ctx, r.db)
	var total int
	if err := conn.GetContext(ctx, &total, `SELECT COUNT(*) FROM harvests`+where, args...); err != nil {
		return nil, 0, fmt.Errorf("count harvests: %w", err)
	}
	_, size, offset := models.Normalize(filter.Page, filter.PageSize, 200)
	args = append(args, size, offset)
	query := fmt.Sprintf(`SELECT %s FROM harvests%s ORDER BY created_at DESC, id LIMIT $%d OFFSET $%d`, harvestColumns, where, len(args)-1, len(args))
	var harvests []models.Harvest
	if err := conn.SelectContext(ctx, &harvests, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list harvests: %w", err)
	}
	return harvests, total, nil
}

// UpdateStatus advances the status of the given harvests.
func (r *HarvestRepository) UpdateStatus(ctx context.Context, ids []string, status models.HarvestStatus) error {
	if len(ids) == 0 {
		return nil
	}
	const query = `UPDATE harvests SET status = $2, updated_at = NOW() WHERE id = ANY($1::text[])`
	if _, err := database.Conn(ctx, r.db).ExecContext(ctx, query, pq.Array(ids), status); err != nil {
		return fmt.Errorf("update harvest status: %w", err)
	}
	return nil
}

// Count returns the number of harvests.
func (r *HarvestRepository) Count(ctx context.Context) (int, error) {
	var total int
	if err := database.Conn(ctx, r.db).GetContext(ctx, &total, `SELECT COUNT(*) FROM harvests`); err != nil {
		return 0, fmt.Errorf("count harvests: %w", err)
	}
	return total, nil
}

func appendCondition(where, cond string) string {
	if where == "" {
		return " WHERE " + cond
	}
	return where + " AND " + cond
}
