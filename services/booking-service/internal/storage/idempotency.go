package storage

import (
	"context"

	"github.com/jackc/pgx/v5"

	"github.com/md-rashed-zaman/apptflow/libs/db"
)

type IdempotencyRecord struct {
	BusinessID      string
	IdempotencyKey  string
	AppointmentID   string
	StatusCode      int
	ResponsePayload []byte
}

// Finalized reports whether a response has been stored for the key.
func (r IdempotencyRecord) Finalized() bool {
	return r.StatusCode > 0
}

// LookupIdempotency reads a key without locking it.
func (s *Store) LookupIdempotency(ctx context.Context, businessID, key string) (IdempotencyRecord, bool, error) {
	rec, err := selectIdempotency(ctx, s.db, businessID, key, false)
	if db.IsNotFound(err) {
		return IdempotencyRecord{}, false, nil
	}
	if err != nil {
		return IdempotencyRecord{}, false, err
	}
	return rec, true, nil
}

// lockIdempotencyKey creates the key row if needed and locks it for the rest
// of the transaction, so concurrent requests with one key serialize.
func lockIdempotencyKey(ctx context.Context, tx pgx.Tx, businessID, key string) (IdempotencyRecord, error) {
	if _, err := tx.Exec(ctx, `
		INSERT INTO booking_idempotency_keys (business_id, idempotency_key)
		VALUES ($1, $2)
		ON CONFLICT (business_id, idempotency_key) DO NOTHING
	`, businessID, key); err != nil {
		return IdempotencyRecord{}, err
	}
	return selectIdempotency(ctx, tx, businessID, key, true)
}

func finalizeIdempotency(ctx context.Context, q db.DBTX, businessID, key, appointmentID string, statusCode int, response []byte) error {
	_, err := q.Exec(ctx, `
		UPDATE booking_idempotency_keys
		SET appointment_id = NULLIF($3, '')::uuid,
			status_code = $4,
			response_payload = $5,
			updated_at = now()
		WHERE business_id = $1 AND idempotency_key = $2
	`, businessID, key, appointmentID, statusCode, response)
	return err
}

func selectIdempotency(ctx context.Context, q db.DBTX, businessID, key string, forUpdate bool) (IdempotencyRecord, error) {
	sql := `
		SELECT business_id::text,
			idempotency_key,
			COALESCE(appointment_id::text, ''),
			COALESCE(status_code, 0),
			COALESCE(response_payload::text, '')
		FROM booking_idempotency_keys
		WHERE business_id = $1 AND idempotency_key = $2`
	if forUpdate {
		sql += `
		FOR UPDATE`
	}
	var rec IdempotencyRecord
	var responseText string
	err := q.QueryRow(ctx, sql, businessID, key).Scan(
		&rec.BusinessID,
		&rec.IdempotencyKey,
		&rec.AppointmentID,
		&rec.StatusCode,
		&responseText,
	)
	if err != nil {
		return IdempotencyRecord{}, err
	}
	if responseText != "" {
		rec.ResponsePayload = []byte(responseText)
	}
	return rec, nil
}
