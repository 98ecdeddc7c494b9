package service

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/noah-isme/nodues-api/internal/dto"
	"github.com/noah-isme/nodues-api/internal/models"
	"github.com/noah-isme/nodues-api/internal/repository"
	appErrors "github.com/noah-isme/nodues-api/pkg/errors"
	"github.com/noah-isme/nodues-api/pkg/export"
	"github.com/noah-isme/nodues-api/pkg/storage"
)

type certificateStore interface {
	GetByRequestID(ctx context.Context, requestID string) (*models.Certificate, error)
	GetByID(ctx context.Context, id string) (*models.Certificate, error)
	Create(ctx context.Context, cert *models.Certificate) error
}

type certificateRequestSource interface {
	Get(ctx context.Context, id string) (*models.ClearanceRequest, error)
}

type certificateStudentLookup interface {
	FindByID(ctx context.Context, id string) (*models.Student, error)
}

type certificateRenderer interface {
	Render(doc export.CertificateDocument) ([]byte, error)
}

type fileStorage interface {
	Save(filename string, data []byte) (string, error)
	Open(filename string) (*os.File, error)
	Delete(filename string) error
}

// CertificateConfig tunes certificate issuance.
type CertificateConfig struct {
	APIPrefix  string
	IssuerName string
}

// CertificateService issues no-dues certificates for fully approved requests and serves them through signed
// download links.
type CertificateService struct {
	store    certificateStore
	requests certificateRequestSource
	students certificateStudentLookup
	renderer certificateRenderer
	files    fileStorage
	signer   *storage.SignedURLSigner
	audit    auditLogger
	metrics  *MetricsService
	logger   *zap.Logger
	cfg      CertificateConfig
	now      func() time.Time
}

// NewCertificateService constructs a CertificateService.
func NewCertificateService(store certificateStore, requests certificateRequestSource, students certificateStudentLookup, files fileStorage, signer *storage.SignedURLSigner, audit auditLogger, metrics *MetricsService, logger *zap.Logger, cfg CertificateConfig, renderer certificateRenderer) *CertificateService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if renderer == nil {
		renderer = export.NewCertificateRenderer("")
	}
	if cfg.APIPrefix == "" {
		cfg.APIPrefix = "/api/v1"
	}
	return &CertificateService{
		store:    store,
		requests: requests,
		students: students,
		renderer: renderer,
		files:    files,
		signer:   signer,
		audit:    audit,
		metrics:  metrics,
		logger:   logger,
		cfg:      cfg,
		now:      time.Now,
	}
}

// Issue returns the certificate for an approved request, creating it on first call. Students may only
// issue their own certificate.
func (s *CertificateService) Issue(ctx context.Context, requestID string, actor *models.JWTClaims) (*dto.CertificateResponse, error) {
	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}
	req, err := s.requests.Get(ctx, requestID)
	if err != nil {
		return nil, err
	}
	if actor.Role == models.RoleStudent && actor.StudentID != req.StudentID {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "certificate belongs to another student")
	}

	existing, err := s.store.GetByRequestID(ctx, req.ID)
	switch {
	case err == nil:
		return s.respond(existing)
	case !errors.Is(err, repository.ErrNotFound):
		return nil, appErrors.Persistence(err, "failed to load certificate")
	}

	if !IsEligibleForCertificate(req) {
		return nil, appErrors.ErrNotEligible
	}

	student, err := s.students.FindByID(ctx, req.StudentID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, appErrors.ErrStudentNotFound
		}
		return nil, appErrors.Persistence(err, "failed to load student")
	}

	issuedAt := s.now().UTC()
	cert := &models.Certificate{
		ID:        uuid.NewString(),
		RequestID: req.ID,
		StudentID: req.StudentID,
		Number:    certificateNumber(issuedAt),
		IssuedBy:  actor.UserID,
		IssuedAt:  issuedAt,
	}
	payload, err := s.renderer.Render(certificateDocument(cert, req, student, s.cfg.IssuerName))
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render certificate")
	}
	path, err := s.files.Save(fmt.Sprintf("%d/%s.pdf", issuedAt.Year(), cert.ID), payload)
	if err != nil {
		return nil, appErrors.Persistence(err, "failed to store certificate")
	}
	cert.FilePath = path

	if err := s.store.Create(ctx, cert); err != nil {
		if delErr := s.files.Delete(path); delErr != nil {
			s.logger.Warn("failed to remove orphaned certificate file", zap.String("path", path), zap.Error(delErr))
		}
		if errors.Is(err, repository.ErrCertificateExists) {
			winner, getErr := s.store.GetByRequestID(ctx, req.ID)
			if getErr != nil {
				return nil, appErrors.Persistence(getErr, "failed to load certificate")
			}
			return s.respond(winner)
		}
		return nil, appErrors.Persistence(err, "failed to save certificate")
	}

	s.metrics.RecordCertificateIssued()
	if s.audit != nil {
		if err := s.audit.CreateAuditLog(ctx, &models.AuditLog{
			UserID:     &actor.UserID,
			Action:     models.AuditActionIssueCertificate,
			Resource:   "certificate",
			ResourceID: &cert.ID,
			NewValues:  []byte(fmt.Sprintf(`{"number":%q,"requestId":%q}`, cert.Number, cert.RequestID)),
		}); err != nil {
			s.logger.Warn("failed to write audit log", zap.String("action", models.AuditActionIssueCertificate), zap.Error(err))
		}
	}
	return s.respond(cert)
}

// ResolveDownload validates a signed token and opens the referenced certificate file. The caller closes it.
func (s *CertificateService) ResolveDownload(ctx context.Context, token string) (*models.Certificate, *os.File, error) {
	parsed, err := s.signer.Parse(token)
	if err != nil {
		if errors.Is(err, storage.ErrTokenExpired) {
			return nil, nil, appErrors.Clone(appErrors.ErrUnauthorized, "download link expired")
		}
		return nil, nil, appErrors.Wrap(err, appErrors.ErrUnauthorized.Code, appErrors.ErrUnauthorized.Status, "invalid download link")
	}
	cert, err := s.store.GetByID(ctx, parsed.ResourceID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, nil, appErrors.Clone(appErrors.ErrNotFound, "certificate not found")
		}
		return nil, nil, appErrors.Persistence(err, "failed to load certificate")
	}
	if cert.FilePath != parsed.Path {
		return nil, nil, appErrors.Clone(appErrors.ErrUnauthorized, "invalid download link")
	}
	file, err := s.files.Open(cert.FilePath)
	if err != nil {
		return nil, nil, appErrors.Persistence(err, "failed to open certificate")
	}
	return cert, file, nil
}

func (s *CertificateService) respond(cert *models.Certificate) (*dto.CertificateResponse, error) {
	token, expiresAt, err := s.signer.Generate(cert.ID, cert.FilePath)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to sign download link")
	}
	url := fmt.Sprintf("%s/certificates/download/%s", strings.TrimRight(s.cfg.APIPrefix, "/"), token)
	return &dto.CertificateResponse{
		Certificate:   *cert,
		DownloadToken: token,
		DownloadURL:   url,
		ExpiresAt:     expiresAt,
	}, nil
}

func certificateNumber(issuedAt time.Time) string {
	suffix := strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
	return fmt.Sprintf("NDC-%d-%s", issuedAt.Year(), strings.ToUpper(suffix))
}

func certificateDocument(cert *models.Certificate, req *models.ClearanceRequest, student *models.Student, issuer string) export.CertificateDocument {
	lines := make([]export.CertificateLine, 0, len(req.DepartmentStatuses))
	for _, key := range req.DepartmentStatuses.Keys() {
		entry := req.DepartmentStatuses[key]
		lines = append(lines, export.CertificateLine{
			Department: key,
			Status:     string(entry.Status),
			ClearedBy:  entry.UpdatedBy,
			ClearedAt:  entry.UpdatedAt,
		})
	}
	name := student.FullName
	if student.RollNumber != "" {
		name = fmt.Sprintf("%s (%s)", student.FullName, student.RollNumber)
	}
	return export.CertificateDocument{
		Number:      cert.Number,
		StudentID:   cert.StudentID,
		StudentName: name,
		RequestID:   cert.RequestID,
		IssuerName:  issuer,
		IssuedAt:    cert.IssuedAt,
		Lines:       lines,
	}
}
