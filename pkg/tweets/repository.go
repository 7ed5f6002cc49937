package tweets

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/golang-migrate/migrate/v4"
	migratepg "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	_ "github.com/lib/pq"
)

// RepositoryConfig holds connection settings for the tweet database.
type RepositoryConfig struct {
	ConnectionString string
	MaxConnections   int32
	ConnectTimeout   time.Duration
	MigrationsPath   string
}

// Repository provides PostgreSQL storage for tweets. It is safe for
// concurrent use; the pool owns all connections.
type Repository struct {
	pool   *pgxpool.Pool
	config *RepositoryConfig
}

// NewRepository creates a connection pool and verifies connectivity.
func NewRepository(ctx context.Context, config *RepositoryConfig) (*Repository, error) {
	if config == nil {
		return nil, fmt.Errorf("repository config is required")
	}
	if config.ConnectionString == "" {
		return nil, fmt.Errorf("connection string is required")
	}

	if config.MaxConnections == 0 {
		config.MaxConnections = 10
	}
	if config.ConnectTimeout == 0 {
		config.ConnectTimeout = 30 * time.Second
	}
	if config.MigrationsPath == "" {
		config.MigrationsPath = "file://migrations"
	}

	poolConfig, err := pgxpool.ParseConfig(config.ConnectionString)
	if err != nil {
		return nil, fmt.Errorf("failed to parse connection string: %w", err)
	}
	poolConfig.MaxConns = config.MaxConnections
	poolConfig.MaxConnLifetime = 1 * time.Hour
	poolConfig.MaxConnIdleTime = 30 * time.Minute

	timeoutCtx, cancel := context.WithTimeout(ctx, config.ConnectTimeout)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(timeoutCtx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}
	if err := pool.Ping(timeoutCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &Repository{pool: pool, config: config}, nil
}

// Close closes the connection pool.
func (r *Repository) Close() {
	if r.pool != nil {
		r.pool.Close()
	}
}

// Ping verifies database connectivity.
func (r *Repository) Ping(ctx context.Context) error {
	return r.pool.Ping(ctx)
}

// MigrateToLatest applies all pending schema migrations.
func (r *Repository) MigrateToLatest() error {
	migrationDB, err := sql.Open("postgres", r.config.ConnectionString)
	if err != nil {
		return fmt.Errorf("failed to open migration connection: %w", err)
	}
	defer migrationDB.Close()

	driver, err := migratepg.WithInstance(migrationDB, &migratepg.Config{})
	if err != nil {
		return fmt.Errorf("failed to create migration driver: %w", err)
	}

	m, err := migrate.NewWithDatabaseInstance(r.config.MigrationsPath, "postgres", driver)
	if err != nil {
		return fmt.Errorf("failed to create migrator: %w", err)
	}
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("failed to apply migrations: %w", err)
	}
	return nil
}

const tweetColumns = `
	id, user_id, created_at, content, source, raw_data,
	in_reply_to_status_id, in_reply_to_screen_name, in_reply_to_user_id,
	quoted_status_id, country_code, lang, latitude, longitude`

// Save upserts a tweet. Saving the same tweet twice leaves the row in the
// state of the last call.
func (r *Repository) Save(ctx context.Context, tweet *Tweet) error {
	query := `
		INSERT INTO tweets (` + tweetColumns + `
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14
		)
		ON CONFLICT (id) DO UPDATE SET
			user_id = EXCLUDED.user_id,
			created_at = EXCLUDED.created_at,
			content = EXCLUDED.content,
			source = EXCLUDED.source,
			raw_data = EXCLUDED.raw_data,
			in_reply_to_status_id = EXCLUDED.in_reply_to_status_id,
			in_reply_to_screen_name = EXCLUDED.in_reply_to_screen_name,
			in_reply_to_user_id = EXCLUDED.in_reply_to_user_id,
			quoted_status_id = EXCLUDED.quoted_status_id,
			country_code = EXCLUDED.country_code,
			lang = EXCLUDED.lang,
			latitude = EXCLUDED.latitude,
			longitude = EXCLUDED.longitude`

	var (
		replyStatusID, replyUserID *int64
		replyScreenName            *string
		latitude, longitude        *float64
		countryCode, lang          *string
	)
	if reply := tweet.InReplyTo; reply != nil {
		replyStatusID = &reply.StatusID
		replyScreenName = &reply.ScreenName
		replyUserID = &reply.UserID
	}
	if loc := tweet.Location; loc != nil {
		latitude = &loc.Latitude
		longitude = &loc.Longitude
	}
	if tweet.CountryCode != "" {
		countryCode = &tweet.CountryCode
	}
	if tweet.Lang != "" {
		lang = &tweet.Lang
	}

	_, err := r.pool.Exec(ctx, query,
		tweet.ID,
		tweet.UserID,
		tweet.CreatedAt,
		tweet.Content,
		tweet.Source,
		tweet.RawData,
		replyStatusID,
		replyScreenName,
		replyUserID,
		tweet.QuotedStatusID,
		countryCode,
		lang,
		latitude,
		longitude,
	)
	if err != nil {
		return fmt.Errorf("failed to save tweet %d: %w", tweet.ID, err)
	}
	return nil
}

// DeleteByID removes a tweet. Returns the number of rows deleted; deleting
// an unknown id is not an error.
func (r *Repository) DeleteByID(ctx context.Context, id int64) (int64, error) {
	tag, err := r.pool.Exec(ctx, `DELETE FROM tweets WHERE id = $1`, id)
	if err != nil {
		return 0, fmt.Errorf("failed to delete tweet %d: %w", id, err)
	}
	return tag.RowsAffected(), nil
}

// FindByID loads a single tweet, or nil when it does not exist.
func (r *Repository) FindByID(ctx context.Context, id int64) (*Tweet, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+tweetColumns+` FROM tweets WHERE id = $1`, id)
	tweet, err := scanTweet(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to load tweet %d: %w", id, err)
	}
	return tweet, nil
}

// FindByIDs loads the given tweets, preserving the order of ids. Unknown
// ids are skipped.
func (r *Repository) FindByIDs(ctx context.Context, ids []int64) ([]Tweet, error) {
	if len(ids) == 0 {
		return []Tweet{}, nil
	}

	rows, err := r.pool.Query(ctx, `SELECT `+tweetColumns+` FROM tweets WHERE id = ANY($1)`, ids)
	if err != nil {
		return nil, fmt.Errorf("failed to load tweets: %w", err)
	}
	defer rows.Close()

	byID := make(map[int64]Tweet, len(ids))
	for rows.Next() {
		tweet, err := scanTweet(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan tweet: %w", err)
		}
		byID[tweet.ID] = *tweet
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate tweets: %w", err)
	}

	result := make([]Tweet, 0, len(byID))
	for _, id := range ids {
		if tweet, ok := byID[id]; ok {
			result = append(result, tweet)
		}
	}
	return result, nil
}

// FindReplies loads all tweets whose reply target is one of the given ids.
// This is the reply-edge relation the hierarchy resolver traverses.
func (r *Repository) FindReplies(ctx context.Context, parentIDs []int64) ([]Tweet, error) {
	if len(parentIDs) == 0 {
		return []Tweet{}, nil
	}

	rows, err := r.pool.Query(ctx,
		`SELECT `+tweetColumns+` FROM tweets WHERE in_reply_to_status_id = ANY($1)`, parentIDs)
	if err != nil {
		return nil, fmt.Errorf("failed to load replies: %w", err)
	}
	defer rows.Close()

	var result []Tweet
	for rows.Next() {
		tweet, err := scanTweet(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan reply: %w", err)
		}
		result = append(result, *tweet)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate replies: %w", err)
	}
	return result, nil
}

func scanTweet(row pgx.Row) (*Tweet, error) {
	var (
		tweet                      Tweet
		replyStatusID, replyUserID *int64
		replyScreenName            *string
		countryCode, lang          *string
		latitude, longitude        *float64
	)
	err := row.Scan(
		&tweet.ID,
		&tweet.UserID,
		&tweet.CreatedAt,
		&tweet.Content,
		&tweet.Source,
		&tweet.RawData,
		&replyStatusID,
		&replyScreenName,
		&replyUserID,
		&tweet.QuotedStatusID,
		&countryCode,
		&lang,
		&latitude,
		&longitude,
	)
	if err != nil {
		return nil, err
	}

	tweet.CreatedAt = tweet.CreatedAt.UTC()
	if replyStatusID != nil && replyScreenName != nil && replyUserID != nil {
		tweet.InReplyTo = &InReplyTo{
			StatusID:   *replyStatusID,
			ScreenName: *replyScreenName,
			UserID:     *replyUserID,
		}
	}
	if countryCode != nil {
		tweet.CountryCode = *countryCode
	}
	if lang != nil {
		tweet.Lang = *lang
	}
	if latitude != nil && longitude != nil {
		tweet.Location = &Location{Latitude: *latitude, Longitude: *longitude}
	}
	return &tweet, nil
}
