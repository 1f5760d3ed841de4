package ledger

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/lib/pq"

	"github.com/Vorion-Labs/cognigate/pkg/contracts"
	"github.com/Vorion-Labs/cognigate/pkg/crypto"
)

// SQLLedger is the durable implementation over database/sql. It supports both
// Postgres (lib/pq) and SQLite (modernc.org/sqlite); both accept $N
// placeholders.
//
// Append uses optimistic concurrency: the tail is read in a transaction, the
// sealed record is inserted, and the UNIQUE constraint on sequence arbitrates
// races. A losing writer re-reads the tail and retries.
type SQLLedger struct {
	db     *sql.DB
	signer crypto.Signer
	clock  func() time.Time
}

// maxAppendRetries bounds local recovery from tail conflicts before the
// conflict is surfaced to the caller.
const maxAppendRetries = 3

const chainSchema = `
CREATE TABLE IF NOT EXISTS truth_chain (
	sequence BIGINT PRIMARY KEY,
	id TEXT NOT NULL UNIQUE,
	record_type TEXT NOT NULL,
	subject_type TEXT NOT NULL,
	subject_id TEXT NOT NULL,
	payload TEXT NOT NULL,
	provenance TEXT NOT NULL,
	event_time TEXT NOT NULL,
	recorded_time TEXT NOT NULL,
	previous_hash TEXT NOT NULL,
	hash TEXT NOT NULL UNIQUE,
	signature TEXT NOT NULL,
	signature_type TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_truth_chain_subject ON truth_chain(subject_id);
`

// NewSQLLedger creates a SQL-backed chain.
func NewSQLLedger(db *sql.DB, signer crypto.Signer) *SQLLedger {
	return &SQLLedger{db: db, signer: signer, clock: time.Now}
}

// WithClock overrides the clock for deterministic testing.
func (l *SQLLedger) WithClock(clock func() time.Time) *SQLLedger {
	l.clock = clock
	return l
}

// Init creates the schema.
func (l *SQLLedger) Init(ctx context.Context) error {
	_, err := l.db.ExecContext(ctx, chainSchema)
	return err
}

func (l *SQLLedger) Append(ctx context.Context, cand contracts.Candidate) (contracts.Record, error) {
	var lastErr error
	for attempt := 0; attempt <= maxAppendRetries; attempt++ {
		rec, err := l.tryAppend(ctx, cand)
		if err == nil {
			return rec, nil
		}
		if !errors.Is(err, contracts.ErrConflict) {
			return contracts.Record{}, err
		}
		lastErr = err
	}
	return contracts.Record{}, lastErr
}

func (l *SQLLedger) tryAppend(ctx context.Context, cand contracts.Candidate) (contracts.Record, error) {
	tx, err := l.db.BeginTx(ctx, nil)
	if err != nil {
		return contracts.Record{}, err
	}
	defer func() { _ = tx.Rollback() }()

	var (
		tailSeq  uint64
		tailHash string
		empty    bool
	)
	row := tx.QueryRowContext(ctx, `SELECT sequence, hash FROM truth_chain ORDER BY sequence DESC LIMIT 1`)
	if err := row.Scan(&tailSeq, &tailHash); err != nil {
		if !errors.Is(err, sql.ErrNoRows) {
			return contracts.Record{}, err
		}
		empty = true
	}

	rec, err := seal(cand, tailSeq, tailHash, empty, l.signer, l.clock())
	if err != nil {
		return contracts.Record{}, err
	}

	payloadJSON, err := contracts.EncodePayload(rec.Payload)
	if err != nil {
		return contracts.Record{}, err
	}
	provJSON, err := json.Marshal(rec.Provenance)
	if err != nil {
		return contracts.Record{}, fmt.Errorf("encode provenance: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO truth_chain
			(sequence, id, record_type, subject_type, subject_id, payload, provenance,
			 event_time, recorded_time, previous_hash, hash, signature, signature_type)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
		rec.Sequence, rec.ID, string(rec.RecordType), rec.Subject.Type, rec.Subject.ID,
		string(payloadJSON), string(provJSON),
		rec.EventTime.Format(time.RFC3339Nano), rec.RecordedTime.Format(time.RFC3339Nano),
		rec.PreviousHash, rec.Hash, rec.Signature, rec.SignatureType,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return contracts.Record{}, fmt.Errorf("sequence %d already taken: %w", rec.Sequence, contracts.ErrConflict)
		}
		return contracts.Record{}, err
	}

	if err := tx.Commit(); err != nil {
		if isUniqueViolation(err) {
			return contracts.Record{}, fmt.Errorf("commit lost tail race: %w", contracts.ErrConflict)
		}
		return contracts.Record{}, err
	}
	return rec, nil
}

const selectColumns = `sequence, id, record_type, subject_type, subject_id, payload, provenance,
	event_time, recorded_time, previous_hash, hash, signature, signature_type`

func (l *SQLLedger) Get(ctx context.Context, id string) (contracts.Record, error) {
	row := l.db.QueryRowContext(ctx,
		`SELECT `+selectColumns+` FROM truth_chain WHERE id = $1`, id)
	return scanRecord(row)
}

func (l *SQLLedger) GetBySequence(ctx context.Context, seq uint64) (contracts.Record, error) {
	row := l.db.QueryRowContext(ctx,
		`SELECT `+selectColumns+` FROM truth_chain WHERE sequence = $1`, seq)
	return scanRecord(row)
}

func (l *SQLLedger) Head(ctx context.Context) (contracts.Record, error) {
	row := l.db.QueryRowContext(ctx,
		`SELECT `+selectColumns+` FROM truth_chain ORDER BY sequence DESC LIMIT 1`)
	return scanRecord(row)
}

func (l *SQLLedger) Range(ctx context.Context, first, last uint64) ([]contracts.Record, error) {
	rows, err := l.db.QueryContext(ctx,
		`SELECT `+selectColumns+` FROM truth_chain WHERE sequence >= $1 AND sequence <= $2 ORDER BY sequence ASC`,
		first, last)
	if err != nil {
		return nil, err
	}
	return scanRecords(rows)
}

func (l *SQLLedger) BySubject(ctx context.Context, subjectID string) ([]contracts.Record, error) {
	rows, err := l.db.QueryContext(ctx,
		`SELECT `+selectColumns+` FROM truth_chain WHERE subject_id = $1 ORDER BY sequence ASC`,
		subjectID)
	if err != nil {
		return nil, err
	}
	return scanRecords(rows)
}

func (l *SQLLedger) VerifyChainIntegrity(ctx context.Context, rec contracts.Record) error {
	return verifyChain(ctx, l, rec)
}

func (l *SQLLedger) Mutate(ctx context.Context, id string) error {
	return contracts.ErrImmutabilityViolation
}

func (l *SQLLedger) Delete(ctx context.Context, id string) error {
	return contracts.ErrImmutabilityViolation
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (contracts.Record, error) {
	var (
		rec                     contracts.Record
		recordType              string
		payloadJSON, provJSON   string
		eventTime, recordedTime string
	)
	err := row.Scan(&rec.Sequence, &rec.ID, &recordType, &rec.Subject.Type, &rec.Subject.ID,
		&payloadJSON, &provJSON, &eventTime, &recordedTime,
		&rec.PreviousHash, &rec.Hash, &rec.Signature, &rec.SignatureType)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return contracts.Record{}, contracts.ErrNotFound
		}
		return contracts.Record{}, err
	}

	rec.RecordType = contracts.RecordType(recordType)
	if rec.Payload, err = contracts.DecodePayload(rec.RecordType, []byte(payloadJSON)); err != nil {
		return contracts.Record{}, fmt.Errorf("corrupt payload: %w", err)
	}
	if err := json.Unmarshal([]byte(provJSON), &rec.Provenance); err != nil {
		return contracts.Record{}, fmt.Errorf("corrupt provenance: %w", err)
	}
	if rec.EventTime, err = time.Parse(time.RFC3339Nano, eventTime); err != nil {
		return contracts.Record{}, fmt.Errorf("corrupt event_time: %w", err)
	}
	if rec.RecordedTime, err = time.Parse(time.RFC3339Nano, recordedTime); err != nil {
		return contracts.Record{}, fmt.Errorf("corrupt recorded_time: %w", err)
	}
	return rec, nil
}

func scanRecords(rows *sql.Rows) ([]contracts.Record, error) {
	defer func() { _ = rows.Close() }()

	var out []contracts.Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "23505"
	}
	return strings.Contains(strings.ToLower(err.Error()), "unique")
}
