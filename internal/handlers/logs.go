package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/headwalluk/headlog-sub000/internal/ingest"
	"github.com/headwalluk/headlog-sub000/internal/logger"
)

// LogsHandler wires the ingestion service to the ingest routes.
type LogsHandler struct {
	service *ingest.Service
}

// NewLogsHandler builds a LogsHandler bound to the given ingestion
// service.
func NewLogsHandler(service *ingest.Service) *LogsHandler {
	return &LogsHandler{service: service}
}

// Ingest handles POST /api/logs.
func (h *LogsHandler) Ingest(c *gin.Context) {
	records, err := readRecordArray(c)
	if err != nil {
		respondBodyError(c, err)
		return
	}

	result, err := h.service.IngestBatch(c.Request.Context(), records)
	if err != nil {
		if result.Received == 0 {
			badRequest(c, err.Error())
			return
		}
		logger.Ingest().Error().Err(err).Msg("ingest batch failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "storage", "message": "internal error"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status":    "ok",
		"received":  result.Received,
		"processed": result.Processed,
	})
}

// IngestUpstreamBatch handles POST /api/logs/batch, the receiver
// endpoint for upstream-forwarded batches.
func (h *LogsHandler) IngestUpstreamBatch(c *gin.Context) {
	batchUUIDHeader := c.GetHeader("X-Batch-UUID")
	sourceInstance := c.GetHeader("X-Source-Instance")
	if batchUUIDHeader == "" || sourceInstance == "" {
		badRequest(c, "X-Batch-UUID and X-Source-Instance headers are required")
		return
	}

	batchUUID, err := parseBatchUUID(batchUUIDHeader)
	if err != nil {
		badRequest(c, "X-Batch-UUID must be a valid uuid")
		return
	}

	records, err := readRecordArray(c)
	if err != nil {
		respondBodyError(c, err)
		return
	}

	result, err := h.service.IngestUpstreamBatch(c.Request.Context(), records, batchUUID, sourceInstance)
	if err != nil {
		if result.Received == 0 {
			badRequest(c, err.Error())
			return
		}
		logger.Ingest().Error().Err(err).Msg("ingest upstream batch failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "storage", "message": "internal error"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status":    "ok",
		"received":  result.Received,
		"processed": result.Processed,
	})
}

func readRecordArray(c *gin.Context) ([]json.RawMessage, error) {
	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		return nil, err
	}

	var records []json.RawMessage
	if err := json.Unmarshal(body, &records); err != nil {
		return nil, err
	}
	return records, nil
}

// respondBodyError maps body-read failures to their status codes: a
// tripped MaxBytesReader limit is 413, anything else (including
// non-array JSON) is 400.
func respondBodyError(c *gin.Context, err error) {
	var maxBytesErr *http.MaxBytesError
	if errors.As(err, &maxBytesErr) {
		c.AbortWithStatusJSON(http.StatusRequestEntityTooLarge, gin.H{
			"error":   "payload_too_large",
			"message": "request body exceeds the maximum allowed size",
		})
		return
	}
	badRequest(c, err.Error())
}

func badRequest(c *gin.Context, message string) {
	c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{
		"error":   "bad_request",
		"message": message,
	})
}
