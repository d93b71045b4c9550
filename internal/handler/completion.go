package handler

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/screenlens/demo-gateway/internal/circuitbreaker"
	"github.com/screenlens/demo-gateway/internal/models"
	"github.com/screenlens/demo-gateway/internal/service"
	"github.com/screenlens/demo-gateway/internal/upstream"
)

const upsellMessage = "You've used all your free requests for today. Come back tomorrow or add your own API key in settings."

// requestMeta is the out-of-band identification block clients embed in the
// payload under "_meta".
type requestMeta struct {
	ClientUUID        string `json:"clientUuid"`
	DeviceFingerprint string `json:"deviceFingerprint"`
	ParallelCount     int64  `json:"parallelCount"`
}

// CompletionHandler is the metered endpoint: resolve identity, enforce the
// daily quota, forward the sanitized payload upstream and commit usage on
// success. Stateless; every bit of coordination lives in the store.
type CompletionHandler struct {
	quota    *service.QuotaService
	upstream *upstream.Client
}

// NewCompletionHandler accepts a nil quota service: that is the unconfigured
// state, and the handler fails closed with CONFIG_ERROR rather than letting
// unmetered traffic through.
func NewCompletionHandler(quota *service.QuotaService, upstream *upstream.Client) *CompletionHandler {
	return &CompletionHandler{
		quota:    quota,
		upstream: upstream,
	}
}

// Preflight answers the browser's CORS preflight with empty success. The
// permissive headers come from the CORS middleware.
func (h *CompletionHandler) Preflight(c *gin.Context) {
	c.Status(http.StatusOK)
}

func (h *CompletionHandler) Complete(c *gin.Context) {
	if h.quota == nil || h.upstream == nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Server configuration error",
			"code":  service.CodeConfigError,
		})
		return
	}

	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Failed to read request body",
			"code":  service.CodeInvalidBody,
		})
		return
	}

	var payload map[string]json.RawMessage
	if err := json.Unmarshal(body, &payload); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Request body must be a JSON object",
			"code":  service.CodeInvalidBody,
		})
		return
	}

	var meta requestMeta
	if raw, ok := payload["_meta"]; ok {
		if err := json.Unmarshal(raw, &meta); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{
				"error": "Request body must be a JSON object",
				"code":  service.CodeInvalidBody,
			})
			return
		}
	}

	if meta.ClientUUID == "" || meta.DeviceFingerprint == "" {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Missing client identification",
			"code":    service.CodeMissingID,
			"message": "Please update your extension to the latest version.",
		})
		return
	}

	// The metadata block never reaches the upstream.
	delete(payload, "_meta")
	sanitized, err := json.Marshal(payload)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to encode upstream payload",
			"code":  service.CodeInternalError,
		})
		return
	}

	ctx := c.Request.Context()

	decision, err := h.quota.Reserve(ctx, meta.ClientUUID, meta.DeviceFingerprint, meta.ParallelCount)
	if err != nil {
		h.renderReserveError(c, err)
		return
	}

	c.Set("identity_id", decision.Identity.ID)

	result, err := h.upstream.Complete(ctx, sanitized)
	if err != nil {
		if errors.Is(err, circuitbreaker.ErrCircuitOpen) {
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"error": "Upstream temporarily unavailable",
				"code":  service.CodeUpstreamUnavailable,
			})
			return
		}
		c.JSON(http.StatusBadGateway, gin.H{
			"error": "Upstream request failed",
			"code":  service.CodeUpstreamError,
		})
		return
	}

	// Upstream rejections pass through verbatim so their error detail
	// survives; no usage is committed.
	if !result.Succeeded() {
		c.Data(result.StatusCode, "application/json", result.Body)
		return
	}

	updated, err := h.quota.Commit(ctx, decision)
	if err != nil {
		var limitErr *service.LimitError
		if errors.As(err, &limitErr) {
			// A concurrent request landed the final unit first.
			h.renderLimitError(c, limitErr)
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Server configuration error",
			"code":  service.CodeConfigError,
		})
		return
	}

	h.renderEnriched(c, result, decision, updated)
}

func (h *CompletionHandler) renderReserveError(c *gin.Context, err error) {
	var limitErr *service.LimitError
	if errors.As(err, &limitErr) {
		h.renderLimitError(c, limitErr)
		return
	}

	// Anything else at this stage means the store let us down; fail closed.
	c.JSON(http.StatusInternalServerError, gin.H{
		"error": "Server configuration error",
		"code":  service.CodeConfigError,
	})
}

func (h *CompletionHandler) renderLimitError(c *gin.Context, limitErr *service.LimitError) {
	switch limitErr.Code {
	case service.CodeDeviceLimitExceeded:
		c.JSON(http.StatusTooManyRequests, gin.H{
			"error":   "Device limit reached",
			"code":    limitErr.Code,
			"usage":   limitErr.Usage,
			"limit":   limitErr.Limit,
			"message": upsellMessage,
		})
	case service.CodeVelocityExceeded:
		c.JSON(http.StatusTooManyRequests, gin.H{
			"error":   "Too many requests",
			"code":    limitErr.Code,
			"message": "Please slow down and try again in a moment.",
		})
	default:
		c.JSON(http.StatusTooManyRequests, gin.H{
			"error":   "Daily limit reached",
			"code":    service.CodeLimitExceeded,
			"usage":   limitErr.Usage,
			"limit":   limitErr.Limit,
			"message": upsellMessage,
		})
	}
}

func (h *CompletionHandler) renderEnriched(c *gin.Context, result *upstream.Result, decision *service.Decision, updated int64) {
	// An unparseable upstream body cannot be enriched; return it as-is.
	if result.JSON == nil {
		c.Data(result.StatusCode, "application/json", result.Body)
		return
	}

	limit := decision.Policy.DailyLimit
	remaining := int64(models.UnlimitedQuota)
	if limit != models.UnlimitedQuota {
		remaining = limit - updated
		if remaining < 0 {
			remaining = 0
		}
	}

	result.JSON["_demo"] = gin.H{
		"usage":     updated,
		"limit":     limit,
		"remaining": remaining,
		"deviceId":  truncatedDeviceID(decision.Identity.DeviceSignature),
	}

	c.JSON(result.StatusCode, result.JSON)
}

// truncatedDeviceID keeps the full signature out of responses and logs; four
// characters are enough for support correlation.
func truncatedDeviceID(signature string) string {
	if len(signature) <= 4 {
		return signature
	}
	return signature[:4] + "…"
}
