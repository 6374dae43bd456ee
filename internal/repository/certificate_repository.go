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

const certificateColumns = `id, lot_id, harvest_id, test_result_id, category, number, issuer_id, issued_at, expires_at,
	status, signature, content, created_at`

// CertificateRepository persists issued certificates.
type CertificateRepository struct {
	db *sqlx.DB
}

// NewCertificateRepository constructs the repository.
func NewCertificateRepository(db *sqlx.DB) *CertificateRepository {
	return &CertificateRepository{db: db}
}

// Create inserts a certificate. A reused number yields ErrDuplicate.
func (r *CertificateRepository) Create(ctx context.Context, cert *models.Certificate) error {
	if cert.ID == "" {
		cert.ID = uuid.NewString()
	}
	if cert.Status == "" {
		cert.Status = models.CertificateActive
	}
	now := time.Now().UTC()
	if cert.IssuedAt.IsZero() {
		cert.IssuedAt = now
	}
	cert.CreatedAt = now

	const query = `INSERT INTO certificates (` + certificateColumns + `)
	VALUES (:id, :lot_id, :harvest_id, :test_result_id, :category, :number, :issuer_id, :issued_at, :expires_at,
	:status, :signature, :content, :created_at)`
	if _, err := database.Conn(ctx, r.db).NamedExecContext(ctx, query, cert); err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicate
		}
		return fmt.Errorf("create certificate: %w", err)
	}
	return nil
}

// ListByIDs returns the certificates named by ids in the order given.
func (r *CertificateRepository) ListByIDs(ctx context.Context, ids []string) ([]models.Certificate, error) {
	if len(ids) == 0 {
		return []models.Certificate{}, nil
	}
	const query = `SELECT ` + certificateColumns + ` FROM certificates WHERE id = ANY($1::text[]) ORDER BY array_position($1::text[], id)`
	var certs []models.Certificate
	if err := database.Conn(ctx, r.db).SelectContext(ctx, &certs, query, pq.Array(ids)); err != nil {
		return nil, fmt.Errorf("list certificates by id: %w", err)
	}
	return certs, nil
}
