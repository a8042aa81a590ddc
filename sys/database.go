package sys

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

var DB *sql.DB

func InitDatabase(ctx context.Context, dataSourceName string) error {
	var err error
	DB, err = sql.Open("sqlite3", dataSourceName)
	if err != nil {
		return err
	}

	DB.SetMaxOpenConns(5)

	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA busy_timeout=5000;",
		"PRAGMA cache_size=-2000;",
	}

	initCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	for _, p := range pragmas {
		if _, err := DB.ExecContext(initCtx, p); err != nil {
			return fmt.Errorf(MsgDatabasePragmaError, p, err)
		}
	}

	tx, err := DB.BeginTx(initCtx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	tableQueries := []string{
		`CREATE TABLE IF NOT EXISTS bot_config (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL,
			updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS resolver_cache (
			query TEXT PRIMARY KEY,
			title TEXT NOT NULL,
			artist TEXT,
			duration_ms INTEGER DEFAULT 0,
			playback_url TEXT NOT NULL,
			source_url TEXT,
			album_art_url TEXT,
			expires_at DATETIME NOT NULL,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE INDEX IF NOT EXISTS idx_resolver_cache_expires ON resolver_cache(expires_at)`,
	}

	for _, q := range tableQueries {
		if _, err := tx.ExecContext(initCtx, q); err != nil {
			return fmt.Errorf(MsgDatabaseTableError, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return err
	}

	LogDatabase(MsgDatabaseInitSuccess)
	return nil
}

func CloseDatabase() {
	if DB != nil {
		DB.Close()
	}
}

// BotConfig helpers are used by the loader for mode tracking and for
// guild-adjustable settings.
func GetBotConfig(ctx context.Context, key string) (string, error) {
	var value string
	err := DB.QueryRowContext(ctx, "SELECT value FROM bot_config WHERE key = ?", key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", nil
	}
	return value, err
}

func SetBotConfig(ctx context.Context, key, value string) error {
	_, err := DB.ExecContext(ctx, `
		INSERT INTO bot_config (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = CURRENT_TIMESTAMP
	`, key, value)
	return err
}

// CachedTrack is a resolved track stored in the resolver cache. Playback
// URLs have time-limited validity, so every row carries an expiry.
type CachedTrack struct {
	Title       string
	Artist      string
	DurationMs  int64
	PlaybackURL string
	SourceURL   string
	AlbumArtURL string
}

func GetCachedTrack(ctx context.Context, query string) (*CachedTrack, error) {
	row := DB.QueryRowContext(ctx, `
		SELECT title, artist, duration_ms, playback_url, source_url, album_art_url
		FROM resolver_cache WHERE query = ? AND expires_at > CURRENT_TIMESTAMP
	`, query)

	var t CachedTrack
	var artist, sourceURL, artURL sql.NullString
	err := row.Scan(&t.Title, &artist, &t.DurationMs, &t.PlaybackURL, &sourceURL, &artURL)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	t.Artist = artist.String
	t.SourceURL = sourceURL.String
	t.AlbumArtURL = artURL.String
	return &t, nil
}

func PutCachedTrack(ctx context.Context, query string, t *CachedTrack, ttl time.Duration) error {
	_, err := DB.ExecContext(ctx, `
		INSERT INTO resolver_cache (query, title, artist, duration_ms, playback_url, source_url, album_art_url, expires_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(query) DO UPDATE SET
			title = excluded.title,
			artist = excluded.artist,
			duration_ms = excluded.duration_ms,
			playback_url = excluded.playback_url,
			source_url = excluded.source_url,
			album_art_url = excluded.album_art_url,
			expires_at = excluded.expires_at
	`, query, t.Title, t.Artist, t.DurationMs, t.PlaybackURL, t.SourceURL, t.AlbumArtURL,
		time.Now().UTC().Add(ttl))
	return err
}

func PruneResolverCache(ctx context.Context) (int64, error) {
	res, err := DB.ExecContext(ctx, "DELETE FROM resolver_cache WHERE expires_at <= CURRENT_TIMESTAMP")
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func init() {
	RegisterDaemon(LogDatabase, func(ctx context.Context) (bool, func(), func()) {
		run := func() {
			ticker := time.NewTicker(10 * time.Minute)
			defer ticker.Stop()
			for {
				select {
				case <-ctx.Done():
					return
				case <-ticker.C:
					if n, err := PruneResolverCache(ctx); err == nil && n > 0 {
						LogDatabase(MsgDatabaseCachePrune, n)
					}
				}
			}
		}
		return true, run, nil
	})
}
