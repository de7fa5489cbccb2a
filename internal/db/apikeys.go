package db

import (
	"context"
	"time"
)

// ActiveAPIKey is a row from the api_keys table used by the authenticator
// to scan for a matching Bearer token. The plaintext key is never stored
// or logged; only the bcrypt hash persists.
type ActiveAPIKey struct {
	ID          int
	KeyHash     string
	Description string
}

// ListActiveAPIKeys loads every currently-active key's id and hash. The
// authenticator scans this set with a constant-time bcrypt compare,
// short-circuiting on the first match.
func ListActiveAPIKeys(ctx context.Context, database *Database) ([]ActiveAPIKey, error) {
	rows, err := database.DB().QueryContext(ctx, `
		SELECT id, key_hash, description FROM api_keys WHERE is_active = TRUE`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []ActiveAPIKey
	for rows.Next() {
		var k ActiveAPIKey
		if err := rows.Scan(&k.ID, &k.KeyHash, &k.Description); err != nil {
			return nil, err
		}
		out = append(out, k)
	}
	return out, rows.Err()
}

// TouchAPIKeyLastUsed updates last_used_at for a matched key. Callers
// invoke this from a detached goroutine; a failure here is logged by the
// caller and never fails the originating request.
func TouchAPIKeyLastUsed(ctx context.Context, database *Database, id int) error {
	_, err := database.DB().ExecContext(ctx, `UPDATE api_keys SET last_used_at = ? WHERE id = ?`, time.Now().UTC(), id)
	return err
}
