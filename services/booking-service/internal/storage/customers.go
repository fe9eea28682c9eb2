package storage

import (
	"context"
	"time"

	"github.com/md-rashed-zaman/apptflow/libs/db"
	"github.com/md-rashed-zaman/apptflow/services/booking-service/internal/model"
)

// findOrCreateCustomer matches a live customer of the business by phone, then
// by email. Consents given on this booking are granted on a matched customer;
// they are never revoked here.
func findOrCreateCustomer(ctx context.Context, q db.DBTX, c model.Customer, now time.Time) (string, error) {
	var id string
	err := q.QueryRow(ctx, `
		SELECT id
		FROM customers
		WHERE business_id = $1
			AND deleted_at IS NULL
			AND ((phone = $2 AND $2 <> '') OR (email = $3 AND $3 <> ''))
		ORDER BY (phone = $2 AND $2 <> '') DESC, created_at
		LIMIT 1
	`, c.BusinessID, c.Phone, c.Email).Scan(&id)
	switch {
	case err == nil:
		_, err = q.Exec(ctx, `
			UPDATE customers
			SET consent_sms = consent_sms OR $2,
				consent_sms_at = CASE WHEN $2 AND NOT consent_sms THEN $4 ELSE consent_sms_at END,
				consent_email = consent_email OR $3,
				consent_email_at = CASE WHEN $3 AND NOT consent_email THEN $4 ELSE consent_email_at END
			WHERE id = $1
		`, id, c.ConsentSMS, c.ConsentEmail, now)
		return id, err
	case !db.IsNotFound(err):
		return "", err
	}

	err = q.QueryRow(ctx, `
		INSERT INTO customers
			(business_id, full_name, phone, email, consent_sms, consent_sms_at, consent_email, consent_email_at)
		VALUES ($1, $2, NULLIF($3, ''), NULLIF($4, ''), $5,
			CASE WHEN $5 THEN $7::timestamptz END, $6, CASE WHEN $6 THEN $7::timestamptz END)
		RETURNING id
	`, c.BusinessID, c.FullName, c.Phone, c.Email, c.ConsentSMS, c.ConsentEmail, now).Scan(&id)
	return id, err
}
