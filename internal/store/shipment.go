package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
)

// CreateShipment inserts a new shipment. ID, Status and CreatedAt are filled
// in when empty.
func (db *DB) CreateShipment(ctx context.Context, s *Shipment) error {
	if s.ID == "" {
		s.ID = uuid.New().String()
	}
	if s.Status == "" {
		s.Status = "pending"
	}
	if s.CreatedAt.IsZero() {
		s.CreatedAt = time.Now()
	}
	_, err := db.ExecContext(ctx, `
		INSERT INTO shipments (id, client_id, transporter_id, origin_city, destination_city, status, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		s.ID, s.ClientID, nullable(s.TransporterID), s.OriginCity, s.DestinationCity, s.Status, s.CreatedAt.UnixMilli())
	return err
}

// AssignTransporter attaches a transporter to a shipment, opening its conversation.
func (db *DB) AssignTransporter(ctx context.Context, shipmentID, transporterID string) error {
	res, err := db.ExecContext(ctx, `
		UPDATE shipments SET transporter_id = ?, status = 'assigned' WHERE id = ?`,
		transporterID, shipmentID)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// GetShipment returns a single shipment by id, or nil if it does not exist.
func (db *DB) GetShipment(ctx context.Context, id string) (*Shipment, error) {
	var (
		s           Shipment
		transporter sql.NullString
		createdAt   int64
	)
	err := db.QueryRowContext(ctx, `
		SELECT id, client_id, transporter_id, origin_city, destination_city, status, created_at
		FROM shipments WHERE id = ?`, id).
		Scan(&s.ID, &s.ClientID, &transporter, &s.OriginCity, &s.DestinationCity, &s.Status, &createdAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	s.TransporterID = transporter.String
	s.CreatedAt = time.UnixMilli(createdAt)
	return &s, nil
}

func nullable(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
