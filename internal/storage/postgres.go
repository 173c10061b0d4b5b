package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresConfig describes how the Postgres backend initialises its
// connection pool.
type PostgresConfig struct {
	DSN                 string
	MaxConnections      int32
	MinConnections      int32
	MaxConnLifetime     time.Duration
	MaxConnIdleTime     time.Duration
	HealthCheckInterval time.Duration
	ConnectTimeout      time.Duration
	ApplicationName     string
}

// postgresCollections maps the dataset's collections onto their document
// tables. Each table is (id TEXT PRIMARY KEY, doc JSONB NOT NULL).
var postgresCollections = []string{
	"users",
	"videos",
	"comments",
	"replies",
	"playlists",
	"categories",
}

// NewPostgresStorage opens a Postgres-backed store. The document schema is
// created on first use; the full dataset is hydrated into memory at startup
// and every mutation is written back in a single transaction.
func NewPostgresStorage(ctx context.Context, cfg PostgresConfig, opts ...Option) (*Storage, error) {
	if strings.TrimSpace(cfg.DSN) == "" {
		return nil, fmt.Errorf("postgres dsn required")
	}

	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres config: %w", err)
	}
	if cfg.MaxConnections > 0 {
		poolCfg.MaxConns = cfg.MaxConnections
	}
	if cfg.MinConnections > 0 {
		poolCfg.MinConns = cfg.MinConnections
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	if cfg.MaxConnIdleTime > 0 {
		poolCfg.MaxConnIdleTime = cfg.MaxConnIdleTime
	}
	if cfg.HealthCheckInterval > 0 {
		poolCfg.HealthCheckPeriod = cfg.HealthCheckInterval
	}
	if cfg.ConnectTimeout > 0 {
		poolCfg.ConnConfig.ConnectTimeout = cfg.ConnectTimeout
	}
	if cfg.ApplicationName != "" {
		if poolCfg.ConnConfig.RuntimeParams == nil {
			poolCfg.ConnConfig.RuntimeParams = make(map[string]string)
		}
		poolCfg.ConnConfig.RuntimeParams["application_name"] = cfg.ApplicationName
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("open postgres pool: %w", err)
	}

	b := &postgresBackend{pool: pool}
	if err := b.ensureSchema(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	store, err := newStorage(b, opts...)
	if err != nil {
		pool.Close()
		return nil, err
	}
	return store, nil
}

type postgresBackend struct {
	pool *pgxpool.Pool
}

func (b *postgresBackend) ensureSchema(ctx context.Context) error {
	for _, table := range postgresCollections {
		ddl := fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (id TEXT PRIMARY KEY, doc JSONB NOT NULL)", table)
		if _, err := b.pool.Exec(ctx, ddl); err != nil {
			return fmt.Errorf("create table %s: %w", table, err)
		}
	}
	return nil
}

func (b *postgresBackend) loadDataset() (dataset, error) {
	ctx := context.Background()
	data := newDataset()
	for _, table := range postgresCollections {
		rows, err := b.pool.Query(ctx, fmt.Sprintf("SELECT id, doc FROM %s", table))
		if err != nil {
			return dataset{}, fmt.Errorf("load %s: %w", table, err)
		}
		for rows.Next() {
			var id string
			var doc []byte
			if err := rows.Scan(&id, &doc); err != nil {
				rows.Close()
				return dataset{}, fmt.Errorf("scan %s row: %w", table, err)
			}
			if err := decodeDocument(&data, table, id, doc); err != nil {
				rows.Close()
				return dataset{}, err
			}
		}
		if err := rows.Err(); err != nil {
			rows.Close()
			return dataset{}, fmt.Errorf("iterate %s: %w", table, err)
		}
		rows.Close()
	}
	return data, nil
}

func decodeDocument(data *dataset, table, id string, doc []byte) error {
	var err error
	switch table {
	case "users":
		user := data.Users[id]
		if err = json.Unmarshal(doc, &user); err == nil {
			data.Users[id] = user
		}
	case "videos":
		video := data.Videos[id]
		if err = json.Unmarshal(doc, &video); err == nil {
			data.Videos[id] = video
		}
	case "comments":
		comment := data.Comments[id]
		if err = json.Unmarshal(doc, &comment); err == nil {
			data.Comments[id] = comment
		}
	case "replies":
		reply := data.Replies[id]
		if err = json.Unmarshal(doc, &reply); err == nil {
			data.Replies[id] = reply
		}
	case "playlists":
		playlist := data.Playlists[id]
		if err = json.Unmarshal(doc, &playlist); err == nil {
			data.Playlists[id] = playlist
		}
	case "categories":
		category := data.Categories[id]
		if err = json.Unmarshal(doc, &category); err == nil {
			data.Categories[id] = category
		}
	default:
		return fmt.Errorf("unknown collection %s", table)
	}
	if err != nil {
		return fmt.Errorf("decode %s document %s: %w", table, id, err)
	}
	return nil
}

// persistDataset rewrites every collection inside one transaction, matching
// the replace-the-file semantics of the JSON backend.
func (b *postgresBackend) persistDataset(data dataset) error {
	ctx := context.Background()
	tx, err := b.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return fmt.Errorf("begin persist transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	for _, table := range postgresCollections {
		if _, err := tx.Exec(ctx, fmt.Sprintf("DELETE FROM %s", table)); err != nil {
			return fmt.Errorf("clear %s: %w", table, err)
		}
	}

	batch := &pgx.Batch{}
	queued := 0
	queue := func(table, id string, doc any) error {
		encoded, err := json.Marshal(doc)
		if err != nil {
			return fmt.Errorf("encode %s document %s: %w", table, id, err)
		}
		batch.Queue(fmt.Sprintf("INSERT INTO %s (id, doc) VALUES ($1, $2)", table), id, encoded)
		queued++
		return nil
	}

	for id, user := range data.Users {
		if err := queue("users", id, user); err != nil {
			return err
		}
	}
	for id, video := range data.Videos {
		if err := queue("videos", id, video); err != nil {
			return err
		}
	}
	for id, comment := range data.Comments {
		if err := queue("comments", id, comment); err != nil {
			return err
		}
	}
	for id, reply := range data.Replies {
		if err := queue("replies", id, reply); err != nil {
			return err
		}
	}
	for id, playlist := range data.Playlists {
		if err := queue("playlists", id, playlist); err != nil {
			return err
		}
	}
	for id, category := range data.Categories {
		if err := queue("categories", id, category); err != nil {
			return err
		}
	}

	if queued > 0 {
		results := tx.SendBatch(ctx, batch)
		for i := 0; i < queued; i++ {
			if _, err := results.Exec(); err != nil {
				_ = results.Close()
				return fmt.Errorf("insert document: %w", err)
			}
		}
		if err := results.Close(); err != nil {
			return fmt.Errorf("flush batch: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit persist transaction: %w", err)
	}
	return nil
}

func (b *postgresBackend) ping(ctx context.Context) error {
	return b.pool.Ping(ctx)
}

func (b *postgresBackend) close(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		b.pool.Close()
		close(done)
	}()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-done:
		return nil
	}
}
