// Package ingest implements the log ingestion pipeline: parsing,
// website/host/code resolution, and bulk persistence of incoming batches.
package ingest

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/headwalluk/headlog-sub000/internal/db"
	"github.com/headwalluk/headlog-sub000/internal/logger"
)

// Record is one raw log entry as submitted by an edge agent. All fields
// besides SourceFile and Host are optional.
type Record struct {
	SourceFile   string          `json:"source_file"`
	Host         string          `json:"host"`
	LogTimestamp json.RawMessage `json:"log_timestamp"`
	Remote       string          `json:"remote"`
	Client       string          `json:"client"`
	Code         string          `json:"code"`
}

// Result is the response shape for a successful ingest call.
type Result struct {
	Received  int `json:"received"`
	Processed int `json:"processed"`
}

// Service resolves and persists batches of log records.
type Service struct {
	database *db.Database
	websites *db.WebsiteCache
	hosts    *db.HostCache
	codes    *db.HTTPCodeCache
}

// NewService builds an ingestion service bound to the given database and
// warmed lookup caches.
func NewService(database *db.Database, websites *db.WebsiteCache, hosts *db.HostCache, codes *db.HTTPCodeCache) *Service {
	return &Service{database: database, websites: websites, hosts: hosts, codes: codes}
}

// IngestBatch normalizes and resolves each record, then persists the
// batch with a single bulk insert. Malformed individual records are
// skipped and logged without failing the call; it returns an error only
// for an empty array or a failed bulk insert.
func (s *Service) IngestBatch(ctx context.Context, rawRecords []json.RawMessage) (Result, error) {
	result := Result{Received: len(rawRecords)}
	if len(rawRecords) == 0 {
		return result, fmt.Errorf("expected non-empty array of log records")
	}

	inputs := make([]db.LogRecordInput, 0, len(rawRecords))
	for _, raw := range rawRecords {
		var rec Record
		if err := json.Unmarshal(raw, &rec); err != nil {
			logger.Ingest().Warn().Err(err).Msg("skipping malformed record: invalid json")
			continue
		}

		input, ok := s.resolveRecord(ctx, rec, raw)
		if !ok {
			continue
		}
		inputs = append(inputs, input)
	}

	affected, err := db.BulkInsertLogRecords(ctx, s.database, inputs)
	if err != nil {
		return result, fmt.Errorf("bulk insert log records: %w", err)
	}

	result.Processed = int(affected)
	return result, nil
}

func (s *Service) resolveRecord(ctx context.Context, rec Record, raw json.RawMessage) (db.LogRecordInput, bool) {
	domain, logType, ok := parseSourceFile(rec.SourceFile)
	if !ok {
		logger.Ingest().Warn().Str("source_file", rec.SourceFile).Msg("skipping record: unparseable source_file")
		return db.LogRecordInput{}, false
	}

	if rec.Host == "" {
		logger.Ingest().Warn().Str("source_file", rec.SourceFile).Msg("skipping record: missing host")
		return db.LogRecordInput{}, false
	}

	websiteID, err := s.websites.FindOrCreate(ctx, domain)
	if err != nil {
		logger.Ingest().Error().Err(err).Str("domain", domain).Msg("skipping record: website resolution failed")
		return db.LogRecordInput{}, false
	}

	hostID, err := s.hosts.Resolve(ctx, rec.Host)
	if err != nil {
		logger.Ingest().Error().Err(err).Str("host", rec.Host).Msg("skipping record: host resolution failed")
		return db.LogRecordInput{}, false
	}

	codeID, err := s.codes.Resolve(ctx, rec.Code)
	if err != nil {
		logger.Ingest().Error().Err(err).Str("code", rec.Code).Msg("skipping record: code resolution failed")
		return db.LogRecordInput{}, false
	}

	remote := remoteAddress(rec)
	ts := parseTimestamp(rec.LogTimestamp)

	return db.LogRecordInput{
		WebsiteID: websiteID,
		LogType:   logType,
		Timestamp: ts,
		HostID:    hostID,
		CodeID:    codeID,
		Remote:    remote,
		RawData:   raw,
	}, true
}

// parseSourceFile extracts the domain and log type from a path of the
// form /var/www/<domain>/log/<access|error>.log. The domain is the
// segment right after "/var/www/"; a path without that marker or with an
// empty segment is rejected. Any suffix other than access.log or
// error.log is classified as an error log.
func parseSourceFile(path string) (domain, logType string, ok bool) {
	const marker = "/var/www/"
	idx := strings.Index(path, marker)
	if idx == -1 {
		return "", "", false
	}
	rest := path[idx+len(marker):]
	slash := strings.IndexByte(rest, '/')
	if slash <= 0 {
		return "", "", false
	}
	domain = rest[:slash]

	switch {
	case strings.HasSuffix(path, "/access.log"):
		logType = "access"
	case strings.HasSuffix(path, "/error.log"):
		logType = "error"
	default:
		logger.Ingest().Warn().Str("source_file", path).Msg("unrecognized log suffix, defaulting to error")
		logType = "error"
	}

	return domain, logType, true
}

// remoteAddress extracts the client IP, falling back to the client alias
// with any trailing :port stripped.
func remoteAddress(rec Record) sql.NullString {
	remote := rec.Remote
	if remote == "" {
		remote = rec.Client
		if idx := strings.LastIndexByte(remote, ':'); idx != -1 {
			remote = remote[:idx]
		}
	}
	if remote == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: remote, Valid: true}
}

// parseTimestamp accepts either an ISO-8601 string or a numeric
// seconds-since-epoch value; absent or unparseable values fall back to
// the current time.
func parseTimestamp(raw json.RawMessage) time.Time {
	if len(raw) == 0 {
		return time.Now().UTC()
	}

	var asString string
	if err := json.Unmarshal(raw, &asString); err == nil {
		if t, err := time.Parse(time.RFC3339, asString); err == nil {
			return t.UTC()
		}
	}

	var asNumber float64
	if err := json.Unmarshal(raw, &asNumber); err == nil {
		return time.Unix(int64(asNumber), 0).UTC()
	}

	return time.Now().UTC()
}
