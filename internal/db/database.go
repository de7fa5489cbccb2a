// Package db owns the connection pool to the MariaDB/MySQL-compatible
// store and the versioned migration runner applied at boot.
package db

import (
	"database/sql"
	"fmt"
	"regexp"
	"time"

	_ "github.com/go-sql-driver/mysql"
)

// Config describes how to reach the database server.
type Config struct {
	Host         string
	Port         string
	User         string
	Password     string
	DBName       string
	MaxOpenConns int
	MaxIdleConns int
}

var identPattern = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)
var hostPattern = regexp.MustCompile(`^[a-zA-Z0-9.-]+$`)
var portPattern = regexp.MustCompile(`^[0-9]+$`)

// validateConfig guards against configuration values reaching a DSN
// string unescaped. The driver itself parameterizes query args, but the
// DSN components are assembled by string formatting, so they are
// restricted to safe character classes up front.
func validateConfig(cfg Config) error {
	if !hostPattern.MatchString(cfg.Host) {
		return fmt.Errorf("invalid DB_HOST value")
	}
	if !portPattern.MatchString(cfg.Port) {
		return fmt.Errorf("invalid DB_PORT value")
	}
	if !identPattern.MatchString(cfg.User) {
		return fmt.Errorf("invalid DB_USER value")
	}
	if !identPattern.MatchString(cfg.DBName) {
		return fmt.Errorf("invalid DB_NAME value")
	}
	return nil
}

// Database wraps the pooled *sql.DB handle.
type Database struct {
	db *sql.DB
}

// NewDatabase opens a pooled connection to the configured MySQL-compatible
// server and tunes the pool (default 10 open connections).
func NewDatabase(cfg Config) (*Database, error) {
	if err := validateConfig(cfg); err != nil {
		return nil, err
	}

	dsn := fmt.Sprintf("%s:%s@tcp(%s:%s)/%s?parseTime=true&loc=UTC",
		cfg.User, cfg.Password, cfg.Host, cfg.Port, cfg.DBName)

	sqlDB, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	maxOpen := cfg.MaxOpenConns
	if maxOpen <= 0 {
		maxOpen = 10
	}
	maxIdle := cfg.MaxIdleConns
	if maxIdle <= 0 {
		maxIdle = 5
	}

	sqlDB.SetMaxOpenConns(maxOpen)
	sqlDB.SetMaxIdleConns(maxIdle)
	sqlDB.SetConnMaxLifetime(5 * time.Minute)
	sqlDB.SetConnMaxIdleTime(1 * time.Minute)

	if err := sqlDB.Ping(); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	return &Database{db: sqlDB}, nil
}

// NewDatabaseForTesting wraps an already-open *sql.DB (typically a
// go-sqlmock handle) so db package methods can be exercised without a
// live server.
func NewDatabaseForTesting(sqlDB *sql.DB) *Database {
	return &Database{db: sqlDB}
}

// DB exposes the underlying pool for packages that need raw access.
func (d *Database) DB() *sql.DB {
	return d.db
}

// Close releases the pool.
func (d *Database) Close() error {
	return d.db.Close()
}

// migrationStatements is the ordered, idempotent DDL applied at boot.
// Each statement must tolerate being re-run (IF NOT EXISTS / INSERT
// IGNORE) since Migrate runs on every worker-zero startup, not just once.
var migrationStatements = []string{
	`CREATE TABLE IF NOT EXISTS websites (
		id INT AUTO_INCREMENT PRIMARY KEY,
		domain VARCHAR(255) NOT NULL,
		is_ssl BOOLEAN NOT NULL DEFAULT TRUE,
		is_dev BOOLEAN NOT NULL DEFAULT FALSE,
		owner_email VARCHAR(255) NULL,
		admin_email VARCHAR(255) NULL,
		last_activity_at TIMESTAMP NULL,
		created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
		updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP ON UPDATE CURRENT_TIMESTAMP,
		UNIQUE KEY uq_websites_domain (domain)
	) ENGINE=InnoDB`,

	`CREATE TABLE IF NOT EXISTS hosts (
		id SMALLINT UNSIGNED AUTO_INCREMENT PRIMARY KEY,
		hostname VARCHAR(255) NOT NULL,
		UNIQUE KEY uq_hosts_hostname (hostname)
	) ENGINE=InnoDB`,

	`CREATE TABLE IF NOT EXISTS http_codes (
		id SMALLINT UNSIGNED AUTO_INCREMENT PRIMARY KEY,
		code VARCHAR(16) NOT NULL,
		description VARCHAR(255) NOT NULL DEFAULT '',
		UNIQUE KEY uq_http_codes_code (code)
	) ENGINE=InnoDB`,

	`INSERT IGNORE INTO http_codes (id, code, description) VALUES
		(0, 'N/A', 'No status (error log entry)'),
		(200, '200', 'OK'),
		(201, '201', 'Created'),
		(204, '204', 'No Content'),
		(301, '301', 'Moved Permanently'),
		(302, '302', 'Found'),
		(304, '304', 'Not Modified'),
		(400, '400', 'Bad Request'),
		(401, '401', 'Unauthorized'),
		(403, '403', 'Forbidden'),
		(404, '404', 'Not Found'),
		(429, '429', 'Too Many Requests'),
		(500, '500', 'Internal Server Error'),
		(502, '502', 'Bad Gateway'),
		(503, '503', 'Service Unavailable')`,

	`CREATE TABLE IF NOT EXISTS api_keys (
		id INT AUTO_INCREMENT PRIMARY KEY,
		key_hash VARCHAR(255) NOT NULL,
		description VARCHAR(255) NOT NULL DEFAULT '',
		is_active BOOLEAN NOT NULL DEFAULT TRUE,
		last_used_at TIMESTAMP NULL,
		created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
		UNIQUE KEY uq_api_keys_hash (key_hash)
	) ENGINE=InnoDB`,

	`CREATE TABLE IF NOT EXISTS log_records (
		id BIGINT AUTO_INCREMENT PRIMARY KEY,
		website_id INT NOT NULL,
		log_type ENUM('access','error') NOT NULL,
		timestamp TIMESTAMP NOT NULL,
		host_id SMALLINT UNSIGNED NOT NULL,
		code_id SMALLINT UNSIGNED NOT NULL DEFAULT 0,
		remote VARCHAR(64) NULL,
		raw_data JSON NOT NULL,
		created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
		archived_at TIMESTAMP NULL,
		upstream_batch_uuid BINARY(16) NULL,
		KEY idx_log_records_website (website_id),
		KEY idx_log_records_archived (archived_at),
		KEY idx_log_records_created (created_at),
		CONSTRAINT fk_log_records_website FOREIGN KEY (website_id) REFERENCES websites(id) ON DELETE CASCADE,
		CONSTRAINT fk_log_records_host FOREIGN KEY (host_id) REFERENCES hosts(id),
		CONSTRAINT fk_log_records_code FOREIGN KEY (code_id) REFERENCES http_codes(id)
	) ENGINE=InnoDB`,

	`CREATE TABLE IF NOT EXISTS upstream_sync_batches (
		id BIGINT AUTO_INCREMENT PRIMARY KEY,
		batch_uuid BINARY(16) NOT NULL,
		started_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
		completed_at TIMESTAMP NULL,
		record_count INT NOT NULL DEFAULT 0,
		status ENUM('pending','in_progress','completed','failed') NOT NULL DEFAULT 'pending',
		error_message TEXT NULL,
		retry_count INT NOT NULL DEFAULT 0,
		UNIQUE KEY uq_upstream_sync_batches_uuid (batch_uuid),
		KEY idx_upstream_sync_batches_status (status)
	) ENGINE=InnoDB`,

	`CREATE TABLE IF NOT EXISTS batch_deduplication (
		id BIGINT AUTO_INCREMENT PRIMARY KEY,
		batch_uuid BINARY(16) NOT NULL,
		source_instance VARCHAR(255) NOT NULL,
		received_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
		record_count INT NOT NULL DEFAULT 0,
		UNIQUE KEY uq_batch_dedup (batch_uuid, source_instance)
	) ENGINE=InnoDB`,
}

// Migrate applies the ordered migration statements. It is intended to be
// called only on worker-zero, before the HTTP surface begins accepting
// traffic.
func (d *Database) Migrate() error {
	for i, stmt := range migrationStatements {
		if _, err := d.db.Exec(stmt); err != nil {
			return fmt.Errorf("migration step %d: %w", i, err)
		}
	}
	return nil
}
