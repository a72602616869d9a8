// Package handler binds the HTTP surface to the log service. Handlers
// resolve the tenant exactly once per request and pass the canonical key
// down; nothing below this layer sees raw organization references.
package handler

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/logward/logward/internal/archive"
	"github.com/logward/logward/internal/errs"
	"github.com/logward/logward/internal/model"
	"github.com/logward/logward/internal/response"
	"github.com/logward/logward/internal/retention"
	"github.com/logward/logward/internal/service"
	"github.com/logward/logward/internal/tenant"
)

// QuotaAdmin is the slice of the tenant repository the admin endpoints use.
type QuotaAdmin interface {
	UpsertQuota(ctx context.Context, q model.TenantQuota) error
	QuotaByTenant(ctx context.Context, tenantKey string) (*model.TenantQuota, error)
}

// LogHandler serves every /logs route.
type LogHandler struct {
	Logs      *service.Logs
	Resolver  *tenant.Resolver
	Retention *retention.Manager
	Quotas    QuotaAdmin
	Archive   *archive.Client
}

type ingestRequest struct {
	model.RawRecord
	OrganizationID   string `json:"organization_id,omitempty"`
	OrganizationName string `json:"organization_name,omitempty"`
}

// resolveTenant reads the organization reference from query parameters,
// falling back to the supplied body values, and resolves it once for the
// request.
func (h *LogHandler) resolveTenant(c echo.Context, bodyID, bodyName string) (string, error) {
	ref := tenant.Ref{
		ID:   c.QueryParam("organization_id"),
		Name: c.QueryParam("organization_name"),
	}
	if ref.ID == "" && ref.Name == "" {
		ref.ID, ref.Name = bodyID, bodyName
	}
	return h.Resolver.Resolve(c.Request().Context(), ref)
}

// CreateLog handles POST /logs.
func (h *LogHandler) CreateLog(c echo.Context) error {
	var req ingestRequest
	if err := c.Bind(&req); err != nil {
		return response.Error(c, errs.New(errs.KindValidation, "request body is not a valid log record"))
	}
	key, err := h.resolveTenant(c, req.OrganizationID, req.OrganizationName)
	if err != nil {
		return response.Error(c, err)
	}
	id, err := h.Logs.Ingest(c.Request().Context(), key, req.RawRecord)
	if err != nil {
		return response.Error(c, err)
	}
	return response.Created(c, map[string]string{"id": id.String()})
}

type bulkItem struct {
	Index int                     `json:"index"`
	ID    string                  `json:"id,omitempty"`
	Error *response.ErrorEnvelope `json:"error,omitempty"`
}

// BulkIngest handles POST /logs/bulk. The response is 200 even on partial
// failure; each item carries its own outcome at the input index.
func (h *LogHandler) BulkIngest(c echo.Context) error {
	key, err := h.resolveTenant(c, "", "")
	if err != nil {
		return response.Error(c, err)
	}
	var raws []model.RawRecord
	if err := c.Bind(&raws); err != nil {
		return response.Error(c, errs.New(errs.KindValidation, "request body must be an array of log records"))
	}
	outcomes, err := h.Logs.IngestBatch(c.Request().Context(), key, raws)
	if err != nil {
		return response.Error(c, err)
	}
	items := make([]bulkItem, len(outcomes))
	for i, o := range outcomes {
		items[i].Index = o.Index
		if o.Err != nil {
			env := response.Envelope(o.Err)
			items[i].Error = &env
			continue
		}
		items[i].ID = o.ID.String()
	}
	return response.OK(c, map[string]any{"results": items})
}

// ListLogs handles GET /logs.
func (h *LogHandler) ListLogs(c echo.Context) error {
	key, err := h.resolveTenant(c, "", "")
	if err != nil {
		return response.Error(c, err)
	}
	f, page, err := h.parseFilter(c, true)
	if err != nil {
		return response.Error(c, err)
	}
	result, err := h.Logs.Search(c.Request().Context(), key, f, page)
	if err != nil {
		return response.Error(c, err)
	}
	return response.OK(c, result)
}

// GetLog handles GET /logs/:id.
func (h *LogHandler) GetLog(c echo.Context) error {
	key, err := h.resolveTenant(c, "", "")
	if err != nil {
		return response.Error(c, err)
	}
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return response.Error(c, errs.New(errs.KindInvalidFilter, "id must be a valid UUID"))
	}
	rec, err := h.Logs.Get(c.Request().Context(), key, id)
	if err != nil {
		return response.Error(c, err)
	}
	return response.OK(c, rec)
}

// DeleteLog handles DELETE /logs/:id, the administrative single-record purge.
func (h *LogHandler) DeleteLog(c echo.Context) error {
	key, err := h.resolveTenant(c, "", "")
	if err != nil {
		return response.Error(c, err)
	}
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return response.Error(c, errs.New(errs.KindInvalidFilter, "id must be a valid UUID"))
	}
	if err := h.Logs.Delete(c.Request().Context(), key, id); err != nil {
		return response.Error(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

// ListServices handles GET /logs/services.
func (h *LogHandler) ListServices(c echo.Context) error {
	key, err := h.resolveTenant(c, "", "")
	if err != nil {
		return response.Error(c, err)
	}
	services, err := h.Logs.RecentServices(c.Request().Context(), key)
	if err != nil {
		return response.Error(c, err)
	}
	return response.OK(c, map[string]any{"services": services})
}

// GetMetrics handles GET /logs/metrics.
func (h *LogHandler) GetMetrics(c echo.Context) error {
	key, err := h.resolveTenant(c, "", "")
	if err != nil {
		return response.Error(c, err)
	}
	f, _, err := h.parseFilter(c, false)
	if err != nil {
		return response.Error(c, err)
	}
	report, err := h.Logs.Metrics(c.Request().Context(), key, f)
	if err != nil {
		return response.Error(c, err)
	}
	return response.OK(c, report)
}

// parseFilter reads filter (and optionally pagination) query parameters. An
// omitted page_size falls back to the service's configured default so the
// offset and the eventual query limit agree.
func (h *LogHandler) parseFilter(c echo.Context, withPage bool) (model.Filter, model.Page, error) {
	var f model.Filter
	var page model.Page

	f.Service = c.QueryParam("service")
	f.ServicePrefix = c.QueryParam("service_prefix")
	f.Search = c.QueryParam("search")
	f.CorrelationID = c.QueryParam("correlation_id")

	if v := c.QueryParam("min_level"); v != "" {
		level, ok := model.ParseLevel(v)
		if !ok {
			return f, page, errs.New(errs.KindInvalidFilter, "min_level must be one of DEBUG, INFO, WARNING, ERROR, CRITICAL")
		}
		f.MinLevel = level
	}
	var err error
	if f.Start, err = parseTimeParam(c, "start"); err != nil {
		return f, page, err
	}
	if f.End, err = parseTimeParam(c, "end"); err != nil {
		return f, page, err
	}
	if f.MinDurationMS, err = parseFloatParam(c, "min_duration"); err != nil {
		return f, page, err
	}
	if f.MaxDurationMS, err = parseFloatParam(c, "max_duration"); err != nil {
		return f, page, err
	}
	if v := c.QueryParam("tags"); v != "" {
		f.Tags = map[string]string{}
		for _, pair := range strings.Split(v, ",") {
			k, val, ok := strings.Cut(pair, ":")
			if !ok || k == "" {
				return f, page, errs.New(errs.KindInvalidFilter, "tags must be comma-separated key:value pairs")
			}
			f.Tags[k] = val
		}
	}

	if withPage {
		pageNum := 1
		if v := c.QueryParam("page"); v != "" {
			pageNum, err = strconv.Atoi(v)
			if err != nil || pageNum < 1 {
				return f, page, errs.New(errs.KindInvalidFilter, "page must be a positive integer")
			}
		}
		if v := c.QueryParam("page_size"); v != "" {
			page.Limit, err = strconv.Atoi(v)
			if err != nil || page.Limit < 1 {
				return f, page, errs.New(errs.KindInvalidFilter, "page_size must be a positive integer")
			}
		}
		if page.Limit == 0 {
			page.Limit = h.Logs.DefaultPageSize()
		}
		page.Offset = (pageNum - 1) * page.Limit
	}
	return f, page, nil
}

func parseTimeParam(c echo.Context, name string) (*time.Time, error) {
	v := c.QueryParam(name)
	if v == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339, v)
	if err != nil {
		return nil, errs.Newf(errs.KindInvalidFilter, "%s must be an RFC 3339 timestamp", name)
	}
	return &t, nil
}

func parseFloatParam(c echo.Context, name string) (*float64, error) {
	v := c.QueryParam(name)
	if v == "" {
		return nil, nil
	}
	fv, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return nil, errs.Newf(errs.KindInvalidFilter, "%s must be a number", name)
	}
	return &fv, nil
}
