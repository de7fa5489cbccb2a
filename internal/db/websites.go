package db

import (
	"context"
	"database/sql"
	"sync"
	"time"
)

// Website is the persisted row for a distinct domain observed in ingested
// log records.
type Website struct {
	ID             int
	Domain         string
	IsSSL          bool
	IsDev          bool
	OwnerEmail     sql.NullString
	AdminEmail     sql.NullString
	LastActivityAt sql.NullTime
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// WebsiteCache resolves a domain to its website id, auto-provisioning a
// new row (ssl=true, dev=false defaults) the first time a domain is
// observed. Shaped like HostCache/HTTPCodeCache but with a richer insert,
// since a Website carries more than a bare name.
type WebsiteCache struct {
	db *Database
	mu sync.RWMutex
	m  map[string]int
}

// NewWebsiteCache builds an empty cache; it is warmed lazily since the
// domain space can be large and cold lookups are already a single
// indexed SELECT.
func NewWebsiteCache(database *Database) *WebsiteCache {
	return &WebsiteCache{db: database, m: make(map[string]int)}
}

// FindOrCreate resolves domain to a website id, creating the row with
// default attributes on first observation.
func (c *WebsiteCache) FindOrCreate(ctx context.Context, domain string) (int, error) {
	c.mu.RLock()
	if id, ok := c.m[domain]; ok {
		c.mu.RUnlock()
		return id, nil
	}
	c.mu.RUnlock()

	c.mu.Lock()
	defer c.mu.Unlock()

	if id, ok := c.m[domain]; ok {
		return id, nil
	}

	if _, err := c.db.DB().ExecContext(ctx,
		`INSERT IGNORE INTO websites (domain, is_ssl, is_dev) VALUES (?, TRUE, FALSE)`, domain); err != nil {
		return 0, err
	}

	var id int
	if err := c.db.DB().QueryRowContext(ctx, `SELECT id FROM websites WHERE domain = ?`, domain).Scan(&id); err != nil {
		return 0, err
	}

	c.m[domain] = id
	return id, nil
}

// GetWebsiteByDomain fetches a website's full row.
func GetWebsiteByDomain(ctx context.Context, database *Database, domain string) (*Website, error) {
	row := database.DB().QueryRowContext(ctx, `
		SELECT id, domain, is_ssl, is_dev, owner_email, admin_email, last_activity_at, created_at, updated_at
		FROM websites WHERE domain = ?`, domain)
	return scanWebsite(row)
}

func scanWebsite(row *sql.Row) (*Website, error) {
	w := &Website{}
	err := row.Scan(&w.ID, &w.Domain, &w.IsSSL, &w.IsDev, &w.OwnerEmail, &w.AdminEmail, &w.LastActivityAt, &w.CreatedAt, &w.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return w, nil
}

// ListWebsites returns a page of websites ordered by domain.
func ListWebsites(ctx context.Context, database *Database, limit, offset int) ([]*Website, error) {
	rows, err := database.DB().QueryContext(ctx, `
		SELECT id, domain, is_ssl, is_dev, owner_email, admin_email, last_activity_at, created_at, updated_at
		FROM websites ORDER BY domain LIMIT ? OFFSET ?`, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*Website
	for rows.Next() {
		w := &Website{}
		if err := rows.Scan(&w.ID, &w.Domain, &w.IsSSL, &w.IsDev, &w.OwnerEmail, &w.AdminEmail, &w.LastActivityAt, &w.CreatedAt, &w.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, w)
	}
	return out, rows.Err()
}

// UpdateWebsiteMetadata applies a partial update (owner/admin contacts,
// ssl/dev flags) to an existing website row.
func UpdateWebsiteMetadata(ctx context.Context, database *Database, domain string, isSSL, isDev *bool, ownerEmail, adminEmail *string) (sql.Result, error) {
	// The field set is small enough to build the dynamic UPDATE inline.
	query := `UPDATE websites SET updated_at = CURRENT_TIMESTAMP`
	args := []interface{}{}
	if isSSL != nil {
		query += `, is_ssl = ?`
		args = append(args, *isSSL)
	}
	if isDev != nil {
		query += `, is_dev = ?`
		args = append(args, *isDev)
	}
	if ownerEmail != nil {
		query += `, owner_email = ?`
		args = append(args, *ownerEmail)
	}
	if adminEmail != nil {
		query += `, admin_email = ?`
		args = append(args, *adminEmail)
	}
	query += ` WHERE domain = ?`
	args = append(args, domain)

	return database.DB().ExecContext(ctx, query, args...)
}

// DeleteWebsite removes a website and, via the ON DELETE CASCADE
// foreign key, every log record that belongs to it.
func DeleteWebsite(ctx context.Context, database *Database, domain string) (sql.Result, error) {
	return database.DB().ExecContext(ctx, `DELETE FROM websites WHERE domain = ?`, domain)
}

// PurgeInactiveWebsites deletes websites whose last_activity_at predates
// cutoff, cascading to their log records via the schema's foreign key.
// Websites whose last_activity_at was never set are not deleted.
func PurgeInactiveWebsites(ctx context.Context, database *Database, cutoff time.Time) (int64, error) {
	result, err := database.DB().ExecContext(ctx, `
		DELETE FROM websites WHERE last_activity_at IS NOT NULL AND last_activity_at < ?`, cutoff)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

// execer is satisfied by both *sql.DB and *sql.Tx, letting the
// last-activity touch run either standalone or inside a caller's
// transaction.
type execer interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

// TouchLastActivity raises last_activity_at to ts if it is newer than the
// currently stored value (or the column is still NULL).
func TouchLastActivity(ctx context.Context, database *Database, websiteID int, ts time.Time) error {
	return touchLastActivity(ctx, database.DB(), websiteID, ts)
}

// TouchLastActivityTx is the transactional sibling of TouchLastActivity,
// for callers (the upstream-batch receiver) that must raise
// last_activity_at inside the same transaction as the records that drove
// it, so the two never drift if the transaction rolls back.
func TouchLastActivityTx(ctx context.Context, tx *sql.Tx, websiteID int, ts time.Time) error {
	return touchLastActivity(ctx, tx, websiteID, ts)
}

func touchLastActivity(ctx context.Context, exec execer, websiteID int, ts time.Time) error {
	_, err := exec.ExecContext(ctx, `
		UPDATE websites
		SET last_activity_at = ?
		WHERE id = ? AND (last_activity_at IS NULL OR last_activity_at < ?)`,
		ts, websiteID, ts)
	return err
}
