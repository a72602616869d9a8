package handler

import (
	"strconv"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/logward/logward/internal/errs"
	"github.com/logward/logward/internal/model"
	"github.com/logward/logward/internal/response"
)

type quotaRequest struct {
	OrganizationID   string `json:"organization_id,omitempty"`
	OrganizationName string `json:"organization_name,omitempty"`
	MaxAgeSeconds    int64  `json:"max_age_seconds"`
	MaxRecords       *int64 `json:"max_records,omitempty"`
}

// PutQuota handles PUT /logs/retention: set or replace a tenant's policy.
func (h *LogHandler) PutQuota(c echo.Context) error {
	var req quotaRequest
	if err := c.Bind(&req); err != nil {
		return response.Error(c, errs.New(errs.KindValidation, "request body is not a valid retention policy"))
	}
	key, err := h.resolveTenant(c, req.OrganizationID, req.OrganizationName)
	if err != nil {
		return response.Error(c, err)
	}
	if req.MaxAgeSeconds < 1 {
		return response.Error(c, errs.Validation([]errs.FieldError{
			{Field: "max_age_seconds", Reason: "must be at least 1"},
		}))
	}
	if req.MaxRecords != nil && *req.MaxRecords < 1 {
		return response.Error(c, errs.Validation([]errs.FieldError{
			{Field: "max_records", Reason: "must be at least 1"},
		}))
	}
	quota := model.TenantQuota{
		TenantKey:  key,
		MaxAge:     time.Duration(req.MaxAgeSeconds) * time.Second,
		MaxRecords: req.MaxRecords,
	}
	if err := h.Quotas.UpsertQuota(c.Request().Context(), quota); err != nil {
		return response.Error(c, err)
	}
	return response.OK(c, quotaView(quota))
}

// GetQuota handles GET /logs/retention.
func (h *LogHandler) GetQuota(c echo.Context) error {
	key, err := h.resolveTenant(c, "", "")
	if err != nil {
		return response.Error(c, err)
	}
	quota, err := h.Quotas.QuotaByTenant(c.Request().Context(), key)
	if err != nil {
		return response.Error(c, err)
	}
	if quota == nil {
		return response.Error(c, errs.New(errs.KindNotFound, "no retention policy configured for tenant"))
	}
	return response.OK(c, quotaView(*quota))
}

// SweepRetention handles DELETE /logs/retention: an on-demand sweep. The
// optional older_than_days parameter overrides the stored policy, matching
// the administrative cleanup contract; without it the stored policy applies.
func (h *LogHandler) SweepRetention(c echo.Context) error {
	key, err := h.resolveTenant(c, "", "")
	if err != nil {
		return response.Error(c, err)
	}
	var maxAge time.Duration
	if v := c.QueryParam("older_than_days"); v != "" {
		days, err := strconv.Atoi(v)
		if err != nil || days < 1 {
			return response.Error(c, errs.New(errs.KindInvalidFilter, "older_than_days must be a positive integer"))
		}
		maxAge = time.Duration(days) * 24 * time.Hour
	}
	deleted, err := h.Retention.Sweep(c.Request().Context(), key, maxAge)
	if err != nil {
		// report progress made before the failure; the sweep is retryable
		if errs.Retryable(err) {
			return c.JSON(statusPartialSweep, map[string]any{
				"deleted": deleted,
				"error":   response.Envelope(err),
			})
		}
		return response.Error(c, err)
	}
	return response.OK(c, map[string]int64{"deleted": deleted})
}

const statusPartialSweep = 503

func quotaView(q model.TenantQuota) map[string]any {
	view := map[string]any{
		"tenant_key":      q.TenantKey,
		"max_age_seconds": int64(q.MaxAge.Seconds()),
	}
	if q.MaxRecords != nil {
		view["max_records"] = *q.MaxRecords
	}
	return view
}
