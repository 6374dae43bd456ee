package handler

import (
	"context"
	"io"
	"mime"
	"net/http"
	"path/filepath"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/herbtrace-api/internal/dto"
	"github.com/noah-isme/herbtrace-api/pkg/response"
	"github.com/noah-isme/herbtrace-api/pkg/storage"
)

type photoService interface {
	Link(ctx context.Context, harvestID string) (*dto.PhotoLink, error)
	Open(token string) (io.ReadCloser, storage.Object, error)
}

// PhotoHandler issues and serves signed harvest photo links.
type PhotoHandler struct {
	service photoService
}

// NewPhotoHandler constructs a PhotoHandler.
func NewPhotoHandler(svc photoService) *PhotoHandler {
	return &PhotoHandler{service: svc}
}

// Link godoc
// @Summary Issue a signed photo link
// @Tags Photos
// @Produce json
// @Security BearerAuth
// @Param id path string true "Harvest ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /harvests/{id}/photo [get]
func (h *PhotoHandler) Link(c *gin.Context) {
	link, err := h.service.Link(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, link, nil)
}

// Serve godoc
// @Summary Stream a harvest photo
// @Tags Photos
// @Produce octet-stream
// @Param token path string true "Signed token"
// @Success 200 {file} file
// @Failure 403 {object} response.Envelope
// @Router /photos/{token} [get]
func (h *PhotoHandler) Serve(c *gin.Context) {
	reader, obj, err := h.service.Open(c.Param("token"))
	if err != nil {
		response.Error(c, err)
		return
	}
	defer reader.Close()

	c.Header("Cache-Control", "private, max-age=300")
	c.Header("Last-Modified", obj.ModTime.UTC().Format(http.TimeFormat))
	contentType := mime.TypeByExtension(filepath.Ext(obj.Ref))
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	c.DataFromReader(http.StatusOK, obj.Size, contentType, reader, nil)
}
