package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/forge-tickets/internal/domain"
)

// ChangeLogStore is the append-only store of ticket Changes. It is the
// sole source of ticket truth: snapshots are always rebuilt from it.
// Appends are linearizable per ticket; appends to different tickets
// proceed independently.
type ChangeLogStore interface {
	// CreateTicket assigns the next ticket number for the repository and
	// records the creation change as sequence 1.
	CreateTicket(ctx context.Context, repository string, first domain.Change) (int64, error)

	// Append records a change and returns its sequence number.
	Append(ctx context.Context, repository string, number int64, change domain.Change) (int64, error)

	// ReadAll returns the full ordered change sequence for a ticket.
	// Returns pgx.ErrNoRows when the ticket does not exist.
	ReadAll(ctx context.Context, repository string, number int64) ([]domain.Change, error)

	// ListNumbers returns every ticket number in the repository.
	ListNumbers(ctx context.Context, repository string) ([]int64, error)

	// ListRepositories returns every repository that has issued tickets.
	ListRepositories(ctx context.Context) ([]string, error)

	// WithTicketLock runs fn while holding an exclusive cross-process
	// lock on the ticket. No other append or lock holder for the same
	// ticket can interleave with fn.
	WithTicketLock(ctx context.Context, repository string, number int64, fn func(context.Context) error) error
}

type changeLogStore struct {
	pool *pgxpool.Pool
}

// NewChangeLogStore instantiates the postgres-backed store.
func NewChangeLogStore(pool *pgxpool.Pool) ChangeLogStore {
	return &changeLogStore{pool: pool}
}

func ticketLockKey(repository string, number int64) string {
	return fmt.Sprintf("%s#%d", repository, number)
}

// lockHeldKey marks a context whose caller already holds the ticket lock,
// so the append inside a merge critical section does not deadlock on its
// own lock.
type lockHeldKey struct{}

func holdsTicketLock(ctx context.Context, key string) bool {
	held, _ := ctx.Value(lockHeldKey{}).(string)
	return held == key
}

func (s *changeLogStore) CreateTicket(ctx context.Context, repository string, first domain.Change) (int64, error) {
	payload, err := json.Marshal(first)
	if err != nil {
		return 0, fmt.Errorf("encode change: %w", err)
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, repository); err != nil {
		return 0, err
	}

	var number int64
	const counterQuery = `
        INSERT INTO ticket_counters (repository, last_number) VALUES ($1, 1)
        ON CONFLICT (repository) DO UPDATE SET last_number = ticket_counters.last_number + 1
        RETURNING last_number`
	if err := tx.QueryRow(ctx, counterQuery, repository).Scan(&number); err != nil {
		return 0, err
	}

	const insertQuery = `
        INSERT INTO ticket_changes (repository, ticket_number, seq, author, created_at, change)
        VALUES ($1, $2, 1, $3, $4, $5)`
	if _, err := tx.Exec(ctx, insertQuery, repository, number, first.Author, first.Date, payload); err != nil {
		return 0, err
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, err
	}
	return number, nil
}

func (s *changeLogStore) Append(ctx context.Context, repository string, number int64, change domain.Change) (int64, error) {
	payload, err := json.Marshal(change)
	if err != nil {
		return 0, fmt.Errorf("encode change: %w", err)
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	if key := ticketLockKey(repository, number); !holdsTicketLock(ctx, key) {
		if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, key); err != nil {
			return 0, err
		}
	}

	var exists bool
	if err := tx.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM ticket_changes WHERE repository=$1 AND ticket_number=$2)`,
		repository, number).Scan(&exists); err != nil {
		return 0, err
	}
	if !exists {
		return 0, pgx.ErrNoRows
	}

	var seq int64
	const insertQuery = `
        INSERT INTO ticket_changes (repository, ticket_number, seq, author, created_at, change)
        SELECT $1, $2, COALESCE(MAX(seq), 0) + 1, $3, $4, $5
        FROM ticket_changes WHERE repository = $1 AND ticket_number = $2
        RETURNING seq`
	if err := tx.QueryRow(ctx, insertQuery, repository, number, change.Author, change.Date, payload).Scan(&seq); err != nil {
		return 0, err
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, err
	}
	return seq, nil
}

func (s *changeLogStore) ReadAll(ctx context.Context, repository string, number int64) ([]domain.Change, error) {
	const query = `
        SELECT change FROM ticket_changes
        WHERE repository = $1 AND ticket_number = $2
        ORDER BY seq`
	rows, err := s.pool.Query(ctx, query, repository, number)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	changes := make([]domain.Change, 0)
	for rows.Next() {
		var payload []byte
		if err := rows.Scan(&payload); err != nil {
			return nil, err
		}
		var change domain.Change
		if err := json.Unmarshal(payload, &change); err != nil {
			return nil, fmt.Errorf("decode change: %w", err)
		}
		changes = append(changes, change)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(changes) == 0 {
		return nil, pgx.ErrNoRows
	}
	return changes, nil
}

func (s *changeLogStore) ListNumbers(ctx context.Context, repository string) ([]int64, error) {
	const query = `
        SELECT DISTINCT ticket_number FROM ticket_changes
        WHERE repository = $1 ORDER BY ticket_number`
	rows, err := s.pool.Query(ctx, query, repository)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	numbers := make([]int64, 0)
	for rows.Next() {
		var number int64
		if err := rows.Scan(&number); err != nil {
			return nil, err
		}
		numbers = append(numbers, number)
	}
	return numbers, rows.Err()
}

func (s *changeLogStore) ListRepositories(ctx context.Context) ([]string, error) {
	const query = `SELECT repository FROM ticket_counters ORDER BY repository`
	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	repositories := make([]string, 0)
	for rows.Next() {
		var repository string
		if err := rows.Scan(&repository); err != nil {
			return nil, err
		}
		repositories = append(repositories, repository)
	}
	return repositories, rows.Err()
}

func (s *changeLogStore) WithTicketLock(ctx context.Context, repository string, number int64, fn func(context.Context) error) error {
	conn, err := s.pool.Acquire(ctx)
	if err != nil {
		return err
	}
	defer conn.Release()

	key := ticketLockKey(repository, number)
	if _, err := conn.Exec(ctx, `SELECT pg_advisory_lock(hashtext($1))`, key); err != nil {
		return err
	}
	defer func() {
		// unlock on a fresh context so a cancelled request still releases
		_, _ = conn.Exec(context.WithoutCancel(ctx), `SELECT pg_advisory_unlock(hashtext($1))`, key)
	}()

	return fn(context.WithValue(ctx, lockHeldKey{}, key))
}
