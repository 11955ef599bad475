package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/ekameshwar10/Laundry-track/internal/domain"
	"github.com/ekameshwar10/Laundry-track/internal/ledger"
)

// Archiver mirrors the in-memory log to postgres and rehydrates it at
// startup. The running process never reads from here on the hot path.
type Archiver struct {
	db *sql.DB
}

func New(ctx context.Context, databaseURL string) (*Archiver, error) {
	db, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return nil, err
	}

	db.SetMaxIdleConns(4)
	db.SetMaxOpenConns(10)
	db.SetConnMaxLifetime(30 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 6*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, err
	}

	a := &Archiver{db: db}
	if err := a.ensureSchema(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return a, nil
}

func (a *Archiver) Close() error {
	return a.db.Close()
}

func (a *Archiver) ensureSchema(ctx context.Context) error {
	_, err := a.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS records (
			id                  TEXT PRIMARY KEY,
			seq                 BIGSERIAL,
			collector_id        TEXT NOT NULL,
			collector_name      TEXT NOT NULL,
			customer            TEXT NOT NULL,
			type                TEXT NOT NULL,
			items               JSONB NOT NULL,
			in_charge           TEXT NOT NULL,
			signature           TEXT NOT NULL DEFAULT '',
			created_at          TIMESTAMPTZ NOT NULL,
			verification_status TEXT NOT NULL DEFAULT 'pending',
			verified_items      JSONB,
			verified_by         TEXT NOT NULL DEFAULT '',
			verified_at         TIMESTAMPTZ,
			remark              TEXT NOT NULL DEFAULT ''
		)
	`)
	return err
}

// LoadRecords returns every archived record in original insertion order.
func (a *Archiver) LoadRecords(ctx context.Context) ([]domain.Record, error) {
	rows, err := a.db.QueryContext(ctx, `
		SELECT id, collector_id, collector_name, customer, type, items, in_charge,
		       signature, created_at, verification_status, verified_items,
		       verified_by, verified_at, remark
		FROM records
		ORDER BY seq
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	records := make([]domain.Record, 0, 128)
	for rows.Next() {
		var (
			rec          domain.Record
			itemsJSON    []byte
			verifiedJSON []byte
			verifiedAt   sql.NullTime
		)
		if err := rows.Scan(&rec.ID, &rec.CollectorID, &rec.CollectorName, &rec.Customer,
			&rec.Type, &itemsJSON, &rec.InCharge, &rec.Signature, &rec.CreatedAt,
			&rec.VerificationStatus, &verifiedJSON, &rec.VerifiedBy, &verifiedAt, &rec.Remark); err != nil {
			return nil, err
		}
		if err := json.Unmarshal(itemsJSON, &rec.Items); err != nil {
			return nil, err
		}
		if len(verifiedJSON) > 0 {
			if err := json.Unmarshal(verifiedJSON, &rec.VerifiedItems); err != nil {
				return nil, err
			}
		}
		if verifiedAt.Valid {
			at := verifiedAt.Time.UTC()
			rec.VerifiedAt = &at
		}
		rec.CreatedAt = rec.CreatedAt.UTC()
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return records, nil
}

func (a *Archiver) SaveRecord(ctx context.Context, rec domain.Record) error {
	itemsJSON, err := json.Marshal(rec.Items)
	if err != nil {
		return err
	}
	_, err = a.db.ExecContext(ctx, `
		INSERT INTO records (id, collector_id, collector_name, customer, type, items,
		                     in_charge, signature, created_at, verification_status)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
	`, rec.ID, rec.CollectorID, rec.CollectorName, rec.Customer, rec.Type, itemsJSON,
		rec.InCharge, rec.Signature, rec.CreatedAt, rec.VerificationStatus)
	if err != nil && isUniqueViolation(err) {
		// Replay after a partial failure; the row is already there.
		return nil
	}
	return err
}

func (a *Archiver) SaveVerification(ctx context.Context, rec domain.Record) error {
	verifiedJSON, err := json.Marshal(rec.VerifiedItems)
	if err != nil {
		return err
	}
	res, err := a.db.ExecContext(ctx, `
		UPDATE records
		SET verification_status = $2, verified_items = $3, verified_by = $4,
		    verified_at = $5, remark = $6
		WHERE id = $1
	`, rec.ID, rec.VerificationStatus, verifiedJSON, rec.VerifiedBy, rec.VerifiedAt, rec.Remark)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ledger.ErrNotFound
	}
	return nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}
