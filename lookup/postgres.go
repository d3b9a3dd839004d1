package lookup

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/SanteonNL/ehealth-ingest/lib/otel"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

var _ Backend = &Postgres{}

// PostgresConfig holds the configuration of the Postgres lookup backend.
// Every target type is stored in its own table, which holds the registry identifier and the local key.
type PostgresConfig struct {
	URL      string `koanf:"url"`
	MaxConns int32  `koanf:"maxconns"`
	MinConns int32  `koanf:"minconns"`
	// Tables maps target types to (optionally schema-qualified) table names, specified as target=table.
	// Unmapped targets use the target name.
	Tables []string `koanf:"tables"`
	// ExternalColumn is the column holding the registry identifier.
	ExternalColumn string `koanf:"externalcolumn"`
	// LocalColumn is the column holding the local reference.
	LocalColumn  string        `koanf:"localcolumn"`
	QueryTimeout time.Duration `koanf:"querytimeout"`
}

func DefaultPostgresConfig() PostgresConfig {
	return PostgresConfig{
		MaxConns:       10,
		MinConns:       1,
		ExternalColumn: "ehealth_uuid",
		LocalColumn:    "id",
		QueryTimeout:   10 * time.Second,
	}
}

func (c PostgresConfig) Validate() error {
	if c.URL == "" {
		return errors.New("postgres: url is not configured")
	}
	if c.ExternalColumn == "" || c.LocalColumn == "" {
		return errors.New("postgres: external and local column must be configured")
	}
	if c.MinConns > c.MaxConns {
		return errors.New("postgres: minconns exceeds maxconns")
	}
	if _, err := parseTargetMap(c.Tables); err != nil {
		return fmt.Errorf("postgres: tables: %w", err)
	}
	return nil
}

// querier is the part of pgxpool.Pool used by the lookup.
type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Ping(ctx context.Context) error
}

// Postgres resolves identifiers with one query per target type against the local database.
type Postgres struct {
	db     querier
	close  func()
	config PostgresConfig
	tables map[string]string

	mux sync.Mutex
	// columnTypes caches the type of the external column per table.
	columnTypes map[string]string
}

// NewPostgres connects to the database and verifies the connection.
func NewPostgres(ctx context.Context, config PostgresConfig) (*Postgres, error) {
	tables, err := parseTargetMap(config.Tables)
	if err != nil {
		return nil, err
	}
	poolConfig, err := pgxpool.ParseConfig(config.URL)
	if err != nil {
		return nil, fmt.Errorf("parse database url: %w", err)
	}
	poolConfig.MaxConns = config.MaxConns
	poolConfig.MinConns = config.MinConns
	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("create connection pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return &Postgres{
		db:          pool,
		close:       pool.Close,
		config:      config,
		tables:      tables,
		columnTypes: map[string]string{},
	}, nil
}

func (p *Postgres) LookupMany(ctx context.Context, target string, externalIDs []string) (map[string]string, error) {
	trace.SpanFromContext(ctx).SetAttributes(attribute.String(otel.LookupBackend, BackendPostgres))
	if p.config.QueryTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.config.QueryTimeout)
		defer cancel()
	}
	table := p.table(target)
	columnType, err := p.columnType(ctx, table)
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", target, err)
	}
	log.Ctx(ctx).Debug().Msgf("Looking up %d %s identifier(s)", len(externalIDs), target)
	result, err := p.lookup(ctx, p.query(table, columnType), externalIDs)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && strings.HasPrefix(pgErr.Code, "22") {
		// An identifier that doesn't parse as the column type can't match, so compare as text instead.
		log.Ctx(ctx).Debug().Msgf("Identifier(s) not valid as %s, looking up %s as text", columnType, target)
		result, err = p.lookup(ctx, p.query(table, ""), externalIDs)
	}
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", target, err)
	}
	return result, nil
}

func (p *Postgres) lookup(ctx context.Context, query string, externalIDs []string) (map[string]string, error) {
	rows, err := p.db.Query(ctx, query, externalIDs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	result := map[string]string{}
	for rows.Next() {
		var externalID, local string
		if err := rows.Scan(&externalID, &local); err != nil {
			return nil, fmt.Errorf("scan: %w", err)
		}
		result[externalID] = local
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func (p *Postgres) table(target string) string {
	if mapped, ok := p.tables[target]; ok {
		return mapped
	}
	return target
}

// columnType returns the SQL type of the external column of the given table.
func (p *Postgres) columnType(ctx context.Context, table string) (string, error) {
	p.mux.Lock()
	columnType, ok := p.columnTypes[table]
	p.mux.Unlock()
	if ok {
		return columnType, nil
	}
	err := p.db.QueryRow(ctx, columnTypeQuery, pgx.Identifier(strings.Split(table, ".")).Sanitize(), p.config.ExternalColumn).Scan(&columnType)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", fmt.Errorf("column %s not found in %s", p.config.ExternalColumn, table)
	} else if err != nil {
		return "", fmt.Errorf("column type: %w", err)
	}
	p.mux.Lock()
	p.columnTypes[table] = columnType
	p.mux.Unlock()
	return columnType, nil
}

const columnTypeQuery = `SELECT format_type(atttypid, atttypmod) FROM pg_attribute WHERE attrelid = to_regclass($1) AND attname = $2 AND NOT attisdropped`

// query selects the local references of the given identifiers. The identifiers are cast to the column type,
// so an index on the external column is used. Without a column type both sides are compared as text.
func (p *Postgres) query(table, columnType string) string {
	external := pgx.Identifier{p.config.ExternalColumn}.Sanitize()
	condition := fmt.Sprintf("%s = ANY($1::%s[])", external, columnType)
	if columnType == "" {
		condition = fmt.Sprintf("%s::text = ANY($1::text[])", external)
	}
	return fmt.Sprintf("SELECT %s::text, %s::text FROM %s WHERE %s",
		external, pgx.Identifier{p.config.LocalColumn}.Sanitize(), pgx.Identifier(strings.Split(table, ".")).Sanitize(), condition)
}

// Ping checks the database connection.
func (p *Postgres) Ping(ctx context.Context) error {
	return p.db.Ping(ctx)
}

func (p *Postgres) Close() {
	if p.close != nil {
		p.close()
	}
}
