package dto

import (
	"time"

	"github.com/noah-isme/nodues-api/internal/models"
)

// CertificateResponse returns the issued certificate and a signed download link.
type CertificateResponse struct {
	Certificate   models.Certificate `json:"certificate"`
	DownloadToken string             `json:"downloadToken"`
	DownloadURL   string             `json:"downloadUrl"`
	ExpiresAt     time.Time          `json:"expiresAt"`
}
