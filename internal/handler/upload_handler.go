package handler

import (
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/edutech/college-api/internal/service"
	appErrors "github.com/edutech/college-api/pkg/errors"
	"github.com/edutech/college-api/pkg/response"
)

// UploadHandler exposes file upload and signed download endpoints.
type UploadHandler struct {
	uploads *service.UploadService
}

// NewUploadHandler constructs UploadHandler.
func NewUploadHandler(uploads *service.UploadService) *UploadHandler {
	return &UploadHandler{uploads: uploads}
}

// Upload godoc
// @Summary Upload a course material file
// @Tags Uploads
// @Security BearerAuth
// @Accept multipart/form-data
// @Produce json
// @Param file formData file true "File to upload"
// @Success 201 {object} response.Envelope
// @Router /uploads [post]
func (h *UploadHandler) Upload(c *gin.Context) {
	p, ok := principalFromContext(c)
	if !ok {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	fileHeader, err := c.FormFile("file")
	if err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "missing file field"))
		return
	}
	file, err := fileHeader.Open()
	if err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrInternal.Code, http.StatusInternalServerError, "failed to read upload"))
		return
	}
	defer file.Close() //nolint:errcheck

	stored, err := h.uploads.Store(c.Request.Context(), p, fileHeader.Filename, fileHeader.Size, file)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, stored)
}

// Download godoc
// @Summary Download a file by signed token
// @Tags Uploads
// @Produce octet-stream
// @Param token path string true "Signed download token"
// @Success 200 {file} binary
// @Router /uploads/{token} [get]
func (h *UploadHandler) Download(c *gin.Context) {
	file, contentType, err := h.uploads.Open(c.Param("token"))
	if err != nil {
		response.Error(c, err)
		return
	}
	defer file.Close() //nolint:errcheck

	c.Header("Content-Type", contentType)
	c.Status(http.StatusOK)
	_, _ = io.Copy(c.Writer, file)
}

// Refresh godoc
// @Summary Re-sign an expiring download token
// @Tags Uploads
// @Security BearerAuth
// @Produce json
// @Param token path string true "Download token"
// @Success 200 {object} response.Envelope
// @Router /uploads/{token}/refresh [post]
func (h *UploadHandler) Refresh(c *gin.Context) {
	if _, ok := principalFromContext(c); !ok {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	refreshed, err := h.uploads.Refresh(c.Param("token"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, refreshed, nil)
}
