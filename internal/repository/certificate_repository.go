package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/noah-isme/nodues-api/internal/models"
)

const certificateColumns = `id, request_id, student_id, number, file_path, issued_by, issued_at`

// ErrCertificateExists is returned when a certificate was already issued for the request.
var ErrCertificateExists = errors.New("certificate already issued")

// CertificateRepository stores issued certificates.
type CertificateRepository struct {
	db *sqlx.DB
}

// NewCertificateRepository constructs the repository.
func NewCertificateRepository(db *sqlx.DB) *CertificateRepository {
	return &CertificateRepository{db: db}
}

// GetByRequestID returns the certificate issued for a request.
func (r *CertificateRepository) GetByRequestID(ctx context.Context, requestID string) (*models.Certificate, error) {
	return r.getOne(ctx, `SELECT `+certificateColumns+` FROM certificates WHERE request_id = $1`, requestID)
}

// GetByID returns a certificate by identifier.
func (r *CertificateRepository) GetByID(ctx context.Context, id string) (*models.Certificate, error) {
	return r.getOne(ctx, `SELECT `+certificateColumns+` FROM certificates WHERE id = $1`, id)
}

// Create inserts a certificate. The unique index on request_id keeps issuance single per request.
func (r *CertificateRepository) Create(ctx context.Context, cert *models.Certificate) error {
	if cert.ID == "" {
		cert.ID = uuid.NewString()
	}
	if cert.IssuedAt.IsZero() {
		cert.IssuedAt = time.Now().UTC()
	}
	const query = `INSERT INTO certificates (` + certificateColumns + `)
	VALUES (:id, :request_id, :student_id, :number, :file_path, :issued_by, :issued_at)`
	if _, err := r.db.NamedExecContext(ctx, query, cert); err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" {
			return ErrCertificateExists
		}
		return fmt.Errorf("create certificate: %w", err)
	}
	return nil
}

func (r *CertificateRepository) getOne(ctx context.Context, query string, arg string) (*models.Certificate, error) {
	var cert models.Certificate
	if err := r.db.GetContext(ctx, &cert, query, arg); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get certificate: %w", err)
	}
	return &cert, nil
}
