package handler

import (
	"context"
	"fmt"
	"net/http"
	"os"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/nodues-api/internal/dto"
	"github.com/noah-isme/nodues-api/internal/models"
	appErrors "github.com/noah-isme/nodues-api/pkg/errors"
	"github.com/noah-isme/nodues-api/pkg/response"
)

type certificateIssuer interface {
	Issue(ctx context.Context, requestID string, actor *models.JWTClaims) (*dto.CertificateResponse, error)
	ResolveDownload(ctx context.Context, token string) (*models.Certificate, *os.File, error)
}

// CertificateHandler issues and serves no-dues certificates.
type CertificateHandler struct {
	service certificateIssuer
}

// NewCertificateHandler constructs the handler.
func NewCertificateHandler(svc certificateIssuer) *CertificateHandler {
	return &CertificateHandler{service: svc}
}

// Issue godoc
// @Summary Issue the certificate for an approved request
// @Tags Certificates
// @Produce json
// @Param id path string true "Request ID"
// @Success 200 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /clearances/{id}/certificate [post]
func (h *CertificateHandler) Issue(c *gin.Context) {
	res, err := h.service.Issue(c.Request.Context(), c.Param("id"), claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, res, nil)
}

// Download godoc
// @Summary Download a certificate through a signed link
// @Tags Certificates
// @Produce application/pdf
// @Param token path string true "Signed token"
// @Success 200 {file} file
// @Failure 401 {object} response.Envelope
// @Router /certificates/download/{token} [get]
func (h *CertificateHandler) Download(c *gin.Context) {
	cert, file, err := h.service.ResolveDownload(c.Request.Context(), c.Param("token"))
	if err != nil {
		response.Error(c, err)
		return
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		response.Error(c, appErrors.Persistence(err, "failed to read certificate"))
		return
	}
	c.Header("Cache-Control", "no-store")
	c.DataFromReader(http.StatusOK, info.Size(), "application/pdf", file, map[string]string{
		"Content-Disposition": fmt.Sprintf("attachment; filename=%q", cert.Number+".pdf"),
	})
}
