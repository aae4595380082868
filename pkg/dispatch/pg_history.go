package dispatch

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dmitrymomot/notifykit/pkg/notification"
)

// PostgresConfig holds connection settings for the Postgres delivery
// history store.
type PostgresConfig struct {
	ConnectionString string        `env:"DISPATCH_PG_CONN_URL,required"`
	MaxOpenConns     int32         `env:"DISPATCH_PG_MAX_OPEN_CONNS" envDefault:"10"`
	MaxIdleConns     int32         `env:"DISPATCH_PG_MAX_IDLE_CONNS" envDefault:"5"`
	RetryAttempts    int           `env:"DISPATCH_PG_RETRY_ATTEMPTS" envDefault:"3"`
	RetryInterval    time.Duration `env:"DISPATCH_PG_RETRY_INTERVAL" envDefault:"5s"`
}

// historyTableDDL is the schema the Postgres history store expects.
// Applied idempotently on connect.
const historyTableDDL = `
CREATE TABLE IF NOT EXISTS delivery_attempts (
	id              BIGSERIAL PRIMARY KEY,
	notification_id TEXT        NOT NULL,
	recipient_id    TEXT        NOT NULL,
	channel         TEXT        NOT NULL,
	is_success      BOOLEAN     NOT NULL,
	delivery_id     TEXT        NOT NULL DEFAULT '',
	error_message   TEXT        NOT NULL DEFAULT '',
	attempted_at    TIMESTAMPTZ NOT NULL,
	completed_at    TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS delivery_attempts_notification_idx
	ON delivery_attempts (notification_id, attempted_at);
`

// PostgresHistoryStore persists delivery attempts in Postgres. Attempts
// are append-only; ordering comes from the attempted_at column.
type PostgresHistoryStore struct {
	pool *pgxpool.Pool
}

// NewPostgresHistoryStore wraps an existing connection pool and ensures
// the attempts table exists.
func NewPostgresHistoryStore(ctx context.Context, pool *pgxpool.Pool) (*PostgresHistoryStore, error) {
	if _, err := pool.Exec(ctx, historyTableDDL); err != nil {
		return nil, errors.Join(ErrHistoryUnavailable, err)
	}
	return &PostgresHistoryStore{pool: pool}, nil
}

// ConnectPostgresHistoryStore connects to Postgres with retry and returns
// a history store backed by the pool.
func ConnectPostgresHistoryStore(ctx context.Context, cfg PostgresConfig) (*PostgresHistoryStore, error) {
	connConfig, err := pgxpool.ParseConfig(cfg.ConnectionString)
	if err != nil {
		return nil, errors.Join(ErrHistoryUnavailable, err)
	}
	connConfig.MaxConns = cfg.MaxOpenConns
	connConfig.MinConns = cfg.MaxIdleConns

	for i := 0; i < cfg.RetryAttempts; i++ {
		pool, err := pgxpool.NewWithConfig(ctx, connConfig)
		if err == nil {
			if err = pool.Ping(ctx); err == nil {
				return NewPostgresHistoryStore(ctx, pool)
			}
			pool.Close()
		}

		select {
		case <-ctx.Done():
			return nil, errors.Join(ErrHistoryUnavailable, ctx.Err())
		case <-time.After(time.Duration(i+1) * cfg.RetryInterval):
		}
	}

	return nil, ErrHistoryUnavailable
}

// Close closes the underlying connection pool.
func (s *PostgresHistoryStore) Close() {
	s.pool.Close()
}

func (s *PostgresHistoryStore) Append(ctx context.Context, notificationID string, attempts ...notification.DeliveryAttempt) error {
	if len(attempts) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	for _, attempt := range attempts {
		batch.Queue(
			`INSERT INTO delivery_attempts
				(notification_id, recipient_id, channel, is_success, delivery_id, error_message, attempted_at, completed_at)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
			notificationID,
			attempt.RecipientID,
			string(attempt.Channel),
			attempt.IsSuccess,
			attempt.DeliveryID,
			attempt.ErrorMessage,
			attempt.AttemptedAt,
			attempt.CompletedAt,
		)
	}

	results := s.pool.SendBatch(ctx, batch)
	defer results.Close()

	for n := 0; n < len(attempts); n++ {
		if _, err := results.Exec(); err != nil {
			return errors.Join(ErrHistoryUnavailable, err)
		}
	}
	return nil
}

func (s *PostgresHistoryStore) List(ctx context.Context, notificationID string) ([]notification.DeliveryAttempt, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT notification_id, recipient_id, channel, is_success, delivery_id, error_message, attempted_at, completed_at
		 FROM delivery_attempts
		 WHERE notification_id = $1
		 ORDER BY attempted_at ASC`,
		notificationID,
	)
	if err != nil {
		return nil, errors.Join(ErrHistoryUnavailable, err)
	}
	defer rows.Close()

	var out []notification.DeliveryAttempt
	for rows.Next() {
		var attempt notification.DeliveryAttempt
		var channel string
		if err := rows.Scan(
			&attempt.NotificationID,
			&attempt.RecipientID,
			&channel,
			&attempt.IsSuccess,
			&attempt.DeliveryID,
			&attempt.ErrorMessage,
			&attempt.AttemptedAt,
			&attempt.CompletedAt,
		); err != nil {
			return nil, errors.Join(ErrHistoryUnavailable, err)
		}
		attempt.Channel = notification.Channel(channel)
		out = append(out, attempt)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Join(ErrHistoryUnavailable, err)
	}
	return out, nil
}
