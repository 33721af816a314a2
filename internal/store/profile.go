package store

import (
	"context"
	"database/sql"
	"time"
)

// UpsertProfile inserts or updates a profile record.
func (db *DB) UpsertProfile(ctx context.Context, p *Profile) error {
	now := time.Now().UnixMilli()
	_, err := db.ExecContext(ctx, `
		INSERT INTO profiles (id, role, full_name, company_name, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			role = excluded.role,
			full_name = excluded.full_name,
			company_name = excluded.company_name,
			updated_at = excluded.updated_at`,
		p.ID, string(p.Role), p.FullName, p.CompanyName, now, now)
	return err
}

// GetProfile returns a single profile by id, or nil if it does not exist.
func (db *DB) GetProfile(ctx context.Context, id string) (*Profile, error) {
	var (
		p    Profile
		role string
	)
	err := db.QueryRowContext(ctx, `
		SELECT id, role, full_name, company_name
		FROM profiles WHERE id = ?`, id).
		Scan(&p.ID, &role, &p.FullName, &p.CompanyName)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if p.Role, err = ParseRole(role); err != nil {
		return nil, err
	}
	return &p, nil
}
