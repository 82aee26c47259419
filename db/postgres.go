package db

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq"

	"shortlink-service/models"
)

type PostgresDB struct {
	db *sql.DB
}

func NewPostgresDB(databaseURL string) (*PostgresDB, error) {
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Sized for a read-heavy workload where most lookups hit the L1 cache
	// and the pool absorbs cache misses plus aggregator batches.
	db.SetMaxOpenConns(100)
	db.SetMaxIdleConns(25)
	db.SetConnMaxLifetime(5 * time.Minute)
	db.SetConnMaxIdleTime(1 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &PostgresDB{db: db}, nil
}

func (p *PostgresDB) Close() error {
	return p.db.Close()
}

// Ping checks database connectivity.
func (p *PostgresDB) Ping(ctx context.Context) error {
	return p.db.PingContext(ctx)
}

// Migrate creates the schema if it does not exist. The rollup tables carry
// the primary keys that the ON CONFLICT upserts below depend on.
func (p *PostgresDB) Migrate(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS links (
			short_code      VARCHAR(30) PRIMARY KEY,
			original_url    TEXT NOT NULL,
			is_custom_alias BOOLEAN NOT NULL DEFAULT FALSE,
			is_active       BOOLEAN NOT NULL DEFAULT TRUE,
			click_count     BIGINT NOT NULL DEFAULT 0,
			created_at      TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
		`CREATE TABLE IF NOT EXISTS clicks (
			event_id     UUID PRIMARY KEY,
			short_code   VARCHAR(30) NOT NULL,
			clicked_at   TIMESTAMPTZ NOT NULL,
			visitor_hash VARCHAR(64) NOT NULL,
			user_agent   TEXT NOT NULL DEFAULT '',
			referer      TEXT NOT NULL DEFAULT '',
			country      VARCHAR(100) NOT NULL DEFAULT '',
			device_type  VARCHAR(50) NOT NULL DEFAULT '',
			browser      VARCHAR(100) NOT NULL DEFAULT '',
			os           VARCHAR(100) NOT NULL DEFAULT ''
		)`,
		`CREATE INDEX IF NOT EXISTS idx_clicks_code_time ON clicks (short_code, clicked_at)`,
		`CREATE TABLE IF NOT EXISTS click_rollups_daily (
			short_code VARCHAR(30) NOT NULL,
			day        DATE NOT NULL,
			clicks     BIGINT NOT NULL DEFAULT 0,
			PRIMARY KEY (short_code, day)
		)`,
		`CREATE TABLE IF NOT EXISTS click_rollups_device (
			short_code VARCHAR(30) NOT NULL,
			key        VARCHAR(100) NOT NULL,
			clicks     BIGINT NOT NULL DEFAULT 0,
			PRIMARY KEY (short_code, key)
		)`,
		`CREATE TABLE IF NOT EXISTS click_rollups_browser (
			short_code VARCHAR(30) NOT NULL,
			key        VARCHAR(100) NOT NULL,
			clicks     BIGINT NOT NULL DEFAULT 0,
			PRIMARY KEY (short_code, key)
		)`,
		`CREATE TABLE IF NOT EXISTS click_rollups_country (
			short_code VARCHAR(30) NOT NULL,
			key        VARCHAR(100) NOT NULL,
			clicks     BIGINT NOT NULL DEFAULT 0,
			PRIMARY KEY (short_code, key)
		)`,
		`CREATE TABLE IF NOT EXISTS click_rollups_referrer (
			short_code VARCHAR(30) NOT NULL,
			key        VARCHAR(500) NOT NULL,
			clicks     BIGINT NOT NULL DEFAULT 0,
			PRIMARY KEY (short_code, key)
		)`,
	}

	for _, stmt := range stmts {
		if _, err := p.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to run migration: %w", err)
		}
	}
	return nil
}

// CreateLink inserts a link if and only if its short code is free. The
// insert is a single conditional statement so two concurrent creators can
// never both succeed for the same code; the loser gets ErrCodeTaken.
func (p *PostgresDB) CreateLink(ctx context.Context, link *models.Link) error {
	query := `INSERT INTO links (short_code, original_url, is_custom_alias, is_active, created_at)
	          VALUES ($1, $2, $3, TRUE, NOW())
	          ON CONFLICT (short_code) DO NOTHING
	          RETURNING created_at`

	err := p.db.QueryRowContext(ctx, query, link.ShortCode, link.OriginalURL, link.IsCustomAlias).
		Scan(&link.CreatedAt)
	if err == sql.ErrNoRows {
		return models.ErrCodeTaken
	}
	if err != nil {
		return fmt.Errorf("failed to create link: %w", err)
	}
	link.IsActive = true
	return nil
}

// GetLinkByCode returns the record for a short code, active or not.
// Callers on the redirect path must check IsActive themselves.
func (p *PostgresDB) GetLinkByCode(ctx context.Context, shortCode string) (*models.Link, error) {
	query := `SELECT short_code, original_url, is_custom_alias, is_active, click_count, created_at
	          FROM links WHERE short_code = $1`

	link := &models.Link{}
	err := p.db.QueryRowContext(ctx, query, shortCode).
		Scan(&link.ShortCode, &link.OriginalURL, &link.IsCustomAlias, &link.IsActive,
			&link.ClickCount, &link.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, models.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get link: %w", err)
	}
	return link, nil
}

// ListLinks returns links ordered by creation time, newest first.
func (p *PostgresDB) ListLinks(ctx context.Context, offset, limit int) ([]*models.Link, error) {
	query := `SELECT short_code, original_url, is_custom_alias, is_active, click_count, created_at
	          FROM links ORDER BY created_at DESC LIMIT $1 OFFSET $2`

	rows, err := p.db.QueryContext(ctx, query, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to query links: %w", err)
	}
	defer rows.Close()

	var links []*models.Link
	for rows.Next() {
		link := &models.Link{}
		if err := rows.Scan(&link.ShortCode, &link.OriginalURL, &link.IsCustomAlias,
			&link.IsActive, &link.ClickCount, &link.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan link: %w", err)
		}
		links = append(links, link)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}

	return links, nil
}

// GetActiveLinks returns all active links, used to pre-populate the L1 cache
// at startup.
func (p *PostgresDB) GetActiveLinks(ctx context.Context) ([]*models.Link, error) {
	query := `SELECT short_code, original_url, is_custom_alias, is_active, click_count, created_at
	          FROM links WHERE is_active ORDER BY created_at DESC`

	rows, err := p.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query active links: %w", err)
	}
	defer rows.Close()

	var links []*models.Link
	for rows.Next() {
		link := &models.Link{}
		if err := rows.Scan(&link.ShortCode, &link.OriginalURL, &link.IsCustomAlias,
			&link.IsActive, &link.ClickCount, &link.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan link: %w", err)
		}
		links = append(links, link)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}

	return links, nil
}

// DeactivateLink soft-deletes a link. Idempotent: deactivating an inactive
// link succeeds. The record and its code remain; codes are never recycled.
func (p *PostgresDB) DeactivateLink(ctx context.Context, shortCode string) error {
	query := `UPDATE links SET is_active = FALSE WHERE short_code = $1`

	res, err := p.db.ExecContext(ctx, query, shortCode)
	if err != nil {
		return fmt.Errorf("failed to deactivate link: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to deactivate link: %w", err)
	}
	if n == 0 {
		return models.ErrNotFound
	}
	return nil
}

// IncrementClickCount bumps the display click counter. The raw click log is
// the source of truth; this field is an eventually-consistent cache, so the
// bump is best-effort. The arithmetic happens in SQL, never read-modify-write.
func (p *PostgresDB) IncrementClickCount(ctx context.Context, shortCode string, delta int64) error {
	query := `UPDATE links SET click_count = click_count + $2 WHERE short_code = $1`

	if _, err := p.db.ExecContext(ctx, query, shortCode, delta); err != nil {
		return fmt.Errorf("failed to increment click count: %w", err)
	}
	return nil
}

// BatchInsertClickEvents appends a batch of raw click events.
func (p *PostgresDB) BatchInsertClickEvents(ctx context.Context, events []*models.ClickEvent) error {
	if len(events) == 0 {
		return nil
	}

	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO clicks
		(event_id, short_code, clicked_at, visitor_hash, user_agent, referer, country, device_type, browser, os)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (event_id) DO NOTHING`)
	if err != nil {
		return fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer stmt.Close()

	for _, event := range events {
		_, err := stmt.ExecContext(ctx, event.EventID, event.ShortCode, event.ClickedAt,
			event.VisitorHash, event.UserAgent, event.Referer, event.Country,
			event.DeviceType, event.Browser, event.OS)
		if err != nil {
			return fmt.Errorf("failed to insert event: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}

// IncrementDailyRollup adds n clicks to a (short_code, day) bucket. The
// upsert increments in place so concurrent aggregator workers never lose
// updates.
func (p *PostgresDB) IncrementDailyRollup(ctx context.Context, shortCode string, day time.Time, n int64) error {
	query := `INSERT INTO click_rollups_daily (short_code, day, clicks)
	          VALUES ($1, $2, $3)
	          ON CONFLICT (short_code, day)
	          DO UPDATE SET clicks = click_rollups_daily.clicks + EXCLUDED.clicks`

	if _, err := p.db.ExecContext(ctx, query, shortCode, day.UTC().Format("2006-01-02"), n); err != nil {
		return fmt.Errorf("failed to update daily rollup: %w", err)
	}
	return nil
}

const (
	deviceRollups   = "click_rollups_device"
	browserRollups  = "click_rollups_browser"
	countryRollups  = "click_rollups_country"
	referrerRollups = "click_rollups_referrer"
)

func (p *PostgresDB) IncrementDeviceRollup(ctx context.Context, shortCode, key string, n int64) error {
	return p.incrementRollup(ctx, deviceRollups, shortCode, key, n)
}

func (p *PostgresDB) IncrementBrowserRollup(ctx context.Context, shortCode, key string, n int64) error {
	return p.incrementRollup(ctx, browserRollups, shortCode, key, n)
}

func (p *PostgresDB) IncrementCountryRollup(ctx context.Context, shortCode, key string, n int64) error {
	return p.incrementRollup(ctx, countryRollups, shortCode, key, n)
}

func (p *PostgresDB) IncrementReferrerRollup(ctx context.Context, shortCode, key string, n int64) error {
	return p.incrementRollup(ctx, referrerRollups, shortCode, key, n)
}

func (p *PostgresDB) incrementRollup(ctx context.Context, table, shortCode, key string, n int64) error {
	// table is always one of the constants above, never caller input.
	query := fmt.Sprintf(`INSERT INTO %s (short_code, key, clicks)
	          VALUES ($1, $2, $3)
	          ON CONFLICT (short_code, key)
	          DO UPDATE SET clicks = %s.clicks + EXCLUDED.clicks`, table, table)

	if _, err := p.db.ExecContext(ctx, query, shortCode, key, n); err != nil {
		return fmt.Errorf("failed to update %s: %w", table, err)
	}
	return nil
}

// GetTotalClicks sums the daily rollups for a code.
func (p *PostgresDB) GetTotalClicks(ctx context.Context, shortCode string) (int64, error) {
	query := `SELECT COALESCE(SUM(clicks), 0) FROM click_rollups_daily WHERE short_code = $1`

	var total int64
	if err := p.db.QueryRowContext(ctx, query, shortCode).Scan(&total); err != nil {
		return 0, fmt.Errorf("failed to get total clicks: %w", err)
	}
	return total, nil
}

// GetClicksSince sums daily rollups for buckets on or after the given day.
func (p *PostgresDB) GetClicksSince(ctx context.Context, shortCode string, since time.Time) (int64, error) {
	query := `SELECT COALESCE(SUM(clicks), 0) FROM click_rollups_daily
	          WHERE short_code = $1 AND day >= $2`

	var total int64
	err := p.db.QueryRowContext(ctx, query, shortCode, since.UTC().Format("2006-01-02")).Scan(&total)
	if err != nil {
		return 0, fmt.Errorf("failed to get clicks since %s: %w", since.Format("2006-01-02"), err)
	}
	return total, nil
}

// GetDailySeries returns the per-day click series on or after the given day.
func (p *PostgresDB) GetDailySeries(ctx context.Context, shortCode string, since time.Time) ([]models.TimePoint, error) {
	query := `SELECT day, clicks FROM click_rollups_daily
	          WHERE short_code = $1 AND day >= $2
	          ORDER BY day ASC`

	rows, err := p.db.QueryContext(ctx, query, shortCode, since.UTC().Format("2006-01-02"))
	if err != nil {
		return nil, fmt.Errorf("failed to query daily series: %w", err)
	}
	defer rows.Close()

	var points []models.TimePoint
	for rows.Next() {
		var point models.TimePoint
		if err := rows.Scan(&point.Day, &point.Count); err != nil {
			return nil, fmt.Errorf("failed to scan time point: %w", err)
		}
		points = append(points, point)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}

	return points, nil
}

// GetUniqueVisitors counts distinct visitor hashes in the raw click log.
func (p *PostgresDB) GetUniqueVisitors(ctx context.Context, shortCode string) (int64, error) {
	query := `SELECT COUNT(DISTINCT visitor_hash) FROM clicks WHERE short_code = $1`

	var count int64
	if err := p.db.QueryRowContext(ctx, query, shortCode).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to get unique visitors: %w", err)
	}
	return count, nil
}

func (p *PostgresDB) GetDeviceBreakdown(ctx context.Context, shortCode string, limit int) ([]models.BreakdownEntry, error) {
	return p.breakdown(ctx, deviceRollups, shortCode, limit)
}

func (p *PostgresDB) GetBrowserBreakdown(ctx context.Context, shortCode string, limit int) ([]models.BreakdownEntry, error) {
	return p.breakdown(ctx, browserRollups, shortCode, limit)
}

func (p *PostgresDB) GetCountryBreakdown(ctx context.Context, shortCode string, limit int) ([]models.BreakdownEntry, error) {
	return p.breakdown(ctx, countryRollups, shortCode, limit)
}

func (p *PostgresDB) GetReferrerBreakdown(ctx context.Context, shortCode string, limit int) ([]models.BreakdownEntry, error) {
	return p.breakdown(ctx, referrerRollups, shortCode, limit)
}

func (p *PostgresDB) breakdown(ctx context.Context, table, shortCode string, limit int) ([]models.BreakdownEntry, error) {
	query := fmt.Sprintf(`SELECT key, clicks FROM %s
	          WHERE short_code = $1 ORDER BY clicks DESC LIMIT $2`, table)

	rows, err := p.db.QueryContext(ctx, query, shortCode, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query %s: %w", table, err)
	}
	defer rows.Close()

	var entries []models.BreakdownEntry
	for rows.Next() {
		var e models.BreakdownEntry
		if err := rows.Scan(&e.Key, &e.Count); err != nil {
			return nil, fmt.Errorf("failed to scan breakdown entry: %w", err)
		}
		entries = append(entries, e)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}

	return entries, nil
}
