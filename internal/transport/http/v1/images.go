package v1

import (
	"bytes"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/xiaot623/agentui/internal/domain"
	"github.com/xiaot623/agentui/internal/images"
)

// Room for the multipart envelope on top of the file itself.
const multipartOverhead = 1 << 20

// UploadImage handles POST /api/images (multipart field "file", optional "ttlSeconds").
func (h *Handler) UploadImage(c echo.Context) error {
	maxBytes := h.images.MaxUploadBytes()
	c.Request().Body = http.MaxBytesReader(c.Response(), c.Request().Body, maxBytes+multipartOverhead)

	fh, err := c.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return errorJSON(c, http.StatusRequestEntityTooLarge, images.ErrTooLarge.Error())
		}
		return errorJSON(c, http.StatusBadRequest, "missing file field")
	}
	if fh.Size > maxBytes {
		return errorJSON(c, http.StatusRequestEntityTooLarge, images.ErrTooLarge.Error())
	}

	ttl := h.defaultTTL
	if raw := c.FormValue("ttlSeconds"); raw != "" {
		secs, err := strconv.Atoi(raw)
		if err != nil || secs < 0 || int64(secs) > domain.MaxTimeoutSeconds {
			return errorJSON(c, http.StatusBadRequest, "ttlSeconds must be a non-negative integer")
		}
		ttl = time.Duration(secs) * time.Second
	}

	f, err := fh.Open()
	if err != nil {
		return errorJSON(c, http.StatusBadRequest, "failed to read file")
	}
	defer f.Close()

	head := make([]byte, 512)
	n, err := io.ReadFull(f, head)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		return errorJSON(c, http.StatusBadRequest, "failed to read file")
	}
	head = head[:n]

	mimeType := http.DetectContentType(head)
	if !strings.HasPrefix(mimeType, "image/") {
		return errorJSON(c, http.StatusUnsupportedMediaType, "file is not an image: "+mimeType)
	}

	var expiresAt time.Time
	if ttl > 0 {
		expiresAt = time.Now().UTC().Add(ttl)
	}

	img, err := h.images.Put(c.Request().Context(), io.MultiReader(bytes.NewReader(head), f), mimeType, expiresAt)
	if err != nil {
		if errors.Is(err, images.ErrTooLarge) {
			return errorJSON(c, http.StatusRequestEntityTooLarge, err.Error())
		}
		return errorJSON(c, http.StatusInternalServerError, err.Error())
	}
	h.metrics.ImageStored()

	return c.JSON(http.StatusCreated, domain.UploadImageResponse{
		ID:       img.ID,
		URL:      "/api/images/" + img.ID,
		MimeType: img.MimeType,
		Size:     img.Size,
	})
}

// GetImage handles GET /api/images/:id.
func (h *Handler) GetImage(c echo.Context) error {
	img, rc, err := h.images.Open(c.Request().Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, images.ErrNotFound) {
			return errorJSON(c, http.StatusNotFound, err.Error())
		}
		return errorJSON(c, http.StatusInternalServerError, err.Error())
	}
	defer rc.Close()

	c.Response().Header().Set(echo.HeaderContentLength, strconv.FormatInt(img.Size, 10))
	c.Response().Header().Set("Cache-Control", "private, max-age=300")
	return c.Stream(http.StatusOK, img.MimeType, rc)
}
