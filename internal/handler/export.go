package handler

import (
	"bytes"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/klauspost/compress/gzip"
	"github.com/labstack/echo/v4"

	"github.com/logward/logward/internal/errs"
	"github.com/logward/logward/internal/export"
	"github.com/logward/logward/internal/model"
	"github.com/logward/logward/internal/response"
)

// ExportLogs handles GET /logs/export. The result set is streamed to the
// client page by page; with archive=true it is uploaded to object storage
// instead and the object key is returned.
func (h *LogHandler) ExportLogs(c echo.Context) error {
	key, err := h.resolveTenant(c, "", "")
	if err != nil {
		return response.Error(c, err)
	}
	f, _, err := h.parseFilter(c, false)
	if err != nil {
		return response.Error(c, err)
	}
	format := c.QueryParam("format")

	if v := c.QueryParam("archive"); v != "" {
		toArchive, err := strconv.ParseBool(v)
		if err != nil {
			return response.Error(c, errs.New(errs.KindInvalidFilter, "archive must be a boolean"))
		}
		if toArchive {
			return h.exportToArchive(c, key, f)
		}
	}
	return h.exportToResponse(c, key, f, format)
}

func (h *LogHandler) exportToResponse(c echo.Context, tenantKey string, f model.Filter, format string) error {
	contentType := "application/json"
	if format == export.FormatCSV {
		contentType = "text/csv"
	}

	var w io.Writer = c.Response().Writer
	var zw *gzip.Writer
	if wantsGzip(c) {
		c.Response().Header().Set(echo.HeaderContentEncoding, "gzip")
		zw = gzip.NewWriter(w)
		w = zw
	}
	enc, err := export.NewEncoder(format, w)
	if err != nil {
		return response.Error(c, err)
	}

	c.Response().Header().Set(echo.HeaderContentType, contentType)
	c.Response().WriteHeader(http.StatusOK)

	if err := h.Logs.Export(c.Request().Context(), tenantKey, f, enc.Write); err != nil {
		// headers are already on the wire; the best we can do is cut the stream
		return err
	}
	if err := enc.Close(); err != nil {
		return err
	}
	if zw != nil {
		return zw.Close()
	}
	return nil
}

// exportToArchive buffers the JSON export and hands it to object storage.
func (h *LogHandler) exportToArchive(c echo.Context, tenantKey string, f model.Filter) error {
	var buf bytes.Buffer
	enc, err := export.NewEncoder(export.FormatJSON, &buf)
	if err != nil {
		return response.Error(c, err)
	}
	if err := h.Logs.Export(c.Request().Context(), tenantKey, f, enc.Write); err != nil {
		return response.Error(c, err)
	}
	if err := enc.Close(); err != nil {
		return response.Error(c, errs.Wrap(errs.KindInternal, "encode export batch", err))
	}
	objectKey, err := h.Archive.Upload(c.Request().Context(), tenantKey, buf.Bytes())
	if err != nil {
		return response.Error(c, err)
	}
	return response.Created(c, map[string]string{"key": objectKey})
}

// ListArchive handles GET /logs/archive.
func (h *LogHandler) ListArchive(c echo.Context) error {
	key, err := h.resolveTenant(c, "", "")
	if err != nil {
		return response.Error(c, err)
	}
	objects, err := h.Archive.List(c.Request().Context(), key)
	if err != nil {
		return response.Error(c, err)
	}
	return response.OK(c, map[string]any{"objects": objects})
}

func wantsGzip(c echo.Context) bool {
	if v := c.QueryParam("gzip"); v != "" {
		want, err := strconv.ParseBool(v)
		return err == nil && want
	}
	return strings.Contains(c.Request().Header.Get(echo.HeaderAcceptEncoding), "gzip")
}
