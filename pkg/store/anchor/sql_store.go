package anchor

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/Vorion-Labs/cognigate/pkg/contracts"
)

// SQLStore is the database/sql implementation. Same placeholder convention as
// the chain store: $N works on both Postgres and SQLite.
type SQLStore struct {
	db *sql.DB
}

const anchorSchema = `
CREATE TABLE IF NOT EXISTS chain_anchors (
	id TEXT PRIMARY KEY,
	first_sequence BIGINT NOT NULL,
	last_sequence BIGINT NOT NULL,
	merkle_root TEXT NOT NULL,
	status TEXT NOT NULL,
	witness_tx_ref TEXT UNIQUE,
	log_index BIGINT,
	block_ref TEXT,
	created_at TEXT NOT NULL,
	confirmed_at TEXT,
	UNIQUE (first_sequence, last_sequence)
);
`

// NewSQLStore creates a SQL-backed anchor store.
func NewSQLStore(db *sql.DB) *SQLStore {
	return &SQLStore{db: db}
}

// Init creates the schema.
func (s *SQLStore) Init(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, anchorSchema)
	return err
}

func (s *SQLStore) Save(ctx context.Context, a contracts.Anchor) error {
	var confirmedAt any
	if a.ConfirmedAt != nil {
		confirmedAt = formatTime(*a.ConfirmedAt)
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO chain_anchors
			(id, first_sequence, last_sequence, merkle_root, status,
			 witness_tx_ref, log_index, block_ref, created_at, confirmed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		a.ID, a.FirstSequence, a.LastSequence, a.MerkleRoot, string(a.Status),
		a.WitnessTxRef, a.LogIndex, a.BlockRef, formatTime(a.CreatedAt), confirmedAt,
	)
	return err
}

const anchorColumns = `id, first_sequence, last_sequence, merkle_root, status,
	witness_tx_ref, log_index, block_ref, created_at, confirmed_at`

func (s *SQLStore) ForSequence(ctx context.Context, seq uint64) (contracts.Anchor, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+anchorColumns+` FROM chain_anchors
		 WHERE first_sequence <= $1 AND last_sequence >= $1 AND status = $2`,
		seq, string(contracts.AnchorConfirmed))
	return scanAnchor(row)
}

func (s *SQLStore) LastAnchoredSequence(ctx context.Context) (uint64, bool, error) {
	var last sql.NullInt64
	row := s.db.QueryRowContext(ctx, `SELECT MAX(last_sequence) FROM chain_anchors`)
	if err := row.Scan(&last); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, false, nil
		}
		return 0, false, err
	}
	if !last.Valid {
		return 0, false, nil
	}
	return uint64(last.Int64), true, nil
}

func (s *SQLStore) List(ctx context.Context) ([]contracts.Anchor, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+anchorColumns+` FROM chain_anchors ORDER BY first_sequence ASC`)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var out []contracts.Anchor
	for rows.Next() {
		a, err := scanAnchor(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAnchor(row rowScanner) (contracts.Anchor, error) {
	var (
		a                     contracts.Anchor
		status                string
		txRef, blockRef       sql.NullString
		logIndex              sql.NullInt64
		createdAt, confirmedA sql.NullString
	)
	err := row.Scan(&a.ID, &a.FirstSequence, &a.LastSequence, &a.MerkleRoot, &status,
		&txRef, &logIndex, &blockRef, &createdAt, &confirmedA)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return contracts.Anchor{}, contracts.ErrNotFound
		}
		return contracts.Anchor{}, err
	}

	a.Status = contracts.AnchorStatus(status)
	a.WitnessTxRef = txRef.String
	a.LogIndex = logIndex.Int64
	a.BlockRef = blockRef.String
	if createdAt.Valid {
		if a.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAt.String); err != nil {
			return contracts.Anchor{}, err
		}
	}
	if confirmedA.Valid && confirmedA.String != "" {
		t, err := time.Parse(time.RFC3339Nano, confirmedA.String)
		if err != nil {
			return contracts.Anchor{}, err
		}
		a.ConfirmedAt = &t
	}
	return a, nil
}

var _ Store = (*SQLStore)(nil)
