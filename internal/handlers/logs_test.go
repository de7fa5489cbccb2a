package handlers

import (
	"bytes"
	"compress/gzip"
	"database/sql"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/headwalluk/headlog-sub000/internal/db"
	"github.com/headwalluk/headlog-sub000/internal/ingest"
	"github.com/headwalluk/headlog-sub000/internal/middleware"
)

func newTestIngestHandler(t *testing.T) (*LogsHandler, sqlmock.Sqlmock, *sql.DB) {
	t.Helper()
	mockDB, mock, err := sqlmock.New()
	require.NoError(t, err)

	database := db.NewDatabaseForTesting(mockDB)
	websites := db.NewWebsiteCache(database)
	hosts := db.NewHostCache(database, nil)
	codes := db.NewHTTPCodeCache(database, nil)
	service := ingest.NewService(database, websites, hosts, codes)
	return NewLogsHandler(service), mock, mockDB
}

func TestLogsHandler_Ingest_RejectsNonArrayBody(t *testing.T) {
	gin.SetMode(gin.TestMode)
	h, _, mockDB := newTestIngestHandler(t)
	defer mockDB.Close()

	router := gin.New()
	router.POST("/api/logs", h.Ingest)

	req := httptest.NewRequest(http.MethodPost, "/api/logs", strings.NewReader(`{"not":"an array"}`))
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestLogsHandler_Ingest_EmptyArrayIsBadRequest(t *testing.T) {
	gin.SetMode(gin.TestMode)
	h, _, mockDB := newTestIngestHandler(t)
	defer mockDB.Close()

	router := gin.New()
	router.POST("/api/logs", h.Ingest)

	req := httptest.NewRequest(http.MethodPost, "/api/logs", strings.NewReader(`[]`))
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestLogsHandler_Ingest_SuccessfulNewDomain(t *testing.T) {
	gin.SetMode(gin.TestMode)
	h, mock, mockDB := newTestIngestHandler(t)
	defer mockDB.Close()

	mock.ExpectExec(`INSERT IGNORE INTO websites`).WithArgs("example.com").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(`SELECT id FROM websites WHERE domain = \?`).WithArgs("example.com").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(1))

	mock.ExpectExec(`INSERT IGNORE INTO hosts`).WithArgs("web01").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(`SELECT id FROM hosts WHERE hostname = \?`).WithArgs("web01").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(3))

	mock.ExpectExec(`INSERT INTO log_records`).WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec(`UPDATE websites\s+SET last_activity_at`).WillReturnResult(sqlmock.NewResult(0, 1))

	router := gin.New()
	router.POST("/api/logs", h.Ingest)

	body := `[{"source_file":"/var/www/example.com/log/access.log","host":"web01","remote":"1.2.3.4"}]`
	req := httptest.NewRequest(http.MethodPost, "/api/logs", strings.NewReader(body))
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"processed":1`)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLogsHandler_Ingest_GzipBatchAcrossTwoDomains(t *testing.T) {
	gin.SetMode(gin.TestMode)
	h, mock, mockDB := newTestIngestHandler(t)
	defer mockDB.Close()

	mock.MatchExpectationsInOrder(false)

	mock.ExpectExec(`INSERT IGNORE INTO websites`).WithArgs("a.example.com").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(`SELECT id FROM websites WHERE domain = \?`).WithArgs("a.example.com").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(1))
	mock.ExpectExec(`INSERT IGNORE INTO websites`).WithArgs("b.example.com").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(`SELECT id FROM websites WHERE domain = \?`).WithArgs("b.example.com").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(2))

	mock.ExpectExec(`INSERT IGNORE INTO hosts`).WithArgs("web01").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(`SELECT id FROM hosts WHERE hostname = \?`).WithArgs("web01").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(3))

	mock.ExpectExec(`INSERT INTO log_records`).WillReturnResult(sqlmock.NewResult(1, 3))
	mock.ExpectExec(`UPDATE websites\s+SET last_activity_at`).WithArgs(sqlmock.AnyArg(), 1, sqlmock.AnyArg()).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`UPDATE websites\s+SET last_activity_at`).WithArgs(sqlmock.AnyArg(), 2, sqlmock.AnyArg()).WillReturnResult(sqlmock.NewResult(0, 1))

	router := gin.New()
	router.Use(middleware.GzipRequest())
	router.POST("/api/logs", h.Ingest)

	// S3: gzip batch of 3 records spanning two distinct domains.
	body := `[
		{"source_file":"/var/www/a.example.com/log/access.log","host":"web01","log_timestamp":"2026-01-01T10:00:00Z"},
		{"source_file":"/var/www/a.example.com/log/access.log","host":"web01","log_timestamp":"2026-01-01T12:00:00Z"},
		{"source_file":"/var/www/b.example.com/log/access.log","host":"web01","log_timestamp":"2026-01-01T09:00:00Z"}
	]`
	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	_, err := gz.Write([]byte(body))
	require.NoError(t, err)
	require.NoError(t, gz.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/logs", &buf)
	req.Header.Set("Content-Encoding", "gzip")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"processed":3`)
}

func TestLogsHandler_IngestUpstreamBatch_RequiresHeaders(t *testing.T) {
	gin.SetMode(gin.TestMode)
	h, _, mockDB := newTestIngestHandler(t)
	defer mockDB.Close()

	router := gin.New()
	router.POST("/api/logs/batch", h.IngestUpstreamBatch)

	req := httptest.NewRequest(http.MethodPost, "/api/logs/batch", strings.NewReader(`[]`))
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestLogsHandler_IngestUpstreamBatch_RejectsInvalidUUID(t *testing.T) {
	gin.SetMode(gin.TestMode)
	h, _, mockDB := newTestIngestHandler(t)
	defer mockDB.Close()

	router := gin.New()
	router.POST("/api/logs/batch", h.IngestUpstreamBatch)

	req := httptest.NewRequest(http.MethodPost, "/api/logs/batch", strings.NewReader(`[]`))
	req.Header.Set("X-Batch-UUID", "not-a-uuid")
	req.Header.Set("X-Source-Instance", "node-1")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestLogsHandler_IngestUpstreamBatch_DuplicateIsNoOp(t *testing.T) {
	gin.SetMode(gin.TestMode)
	h, mock, mockDB := newTestIngestHandler(t)
	defer mockDB.Close()

	mock.ExpectQuery(`SELECT record_count FROM batch_deduplication`).
		WillReturnRows(sqlmock.NewRows([]string{"record_count"}).AddRow(5))

	router := gin.New()
	router.POST("/api/logs/batch", h.IngestUpstreamBatch)

	body := `[{"source_file":"/var/www/a.example.com/log/access.log"}]`
	req := httptest.NewRequest(http.MethodPost, "/api/logs/batch", strings.NewReader(body))
	req.Header.Set("X-Batch-UUID", "550e8400-e29b-41d4-a716-446655440000")
	req.Header.Set("X-Source-Instance", "node-1")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"processed":5`)
	assert.NoError(t, mock.ExpectationsWereMet())
}
