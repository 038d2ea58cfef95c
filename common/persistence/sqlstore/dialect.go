package sqlstore

import (
	"github.com/forbiddencoding/deal-notifier/common/persistence/models"
	"github.com/forbiddencoding/deal-notifier/common/persistence/sqlstore/migrations"
	"io/fs"
	"time"
)

// Dialect carries the statements that differ between the database/sql backends.
type Dialect struct {
	Name string

	migrations fs.FS
	timeArg    func(time.Time) any

	insertWatchQuery    string
	insertJobQuery      string
	markWatchSeenQuery  string
	markJobSeenQuery    string
	incrementStatsQuery string
}

const (
	insertWatchColumns = `watches (id, owner_id, query, max_price, created_at)
VALUES (:id, :owner_id, :query, :max_price, :created_at)`

	insertJobColumns = `category_jobs (
    id, guild_id, slug, name, channel_id, schedule_type, schedule_time, schedule_day, schedule_date,
    min_temperature, max_price, status, created_at
)
VALUES (
    :id, :guild_id, :slug, :name, :channel_id, :schedule_type, :schedule_time, :schedule_day, :schedule_date,
    :min_temperature, :max_price, :status, :created_at
)`

	markWatchSeenColumns = `watch_seen_deals (watch_id, deal_id, seen_at) VALUES (:scope_id, :deal_id, :seen_at)`
	markJobSeenColumns   = `category_seen_deals (job_id, deal_id, seen_at) VALUES (:scope_id, :deal_id, :seen_at)`

	insertStatsColumns = `category_job_stats (job_id, stat_date, deals_found, deals_sent, scrape_errors)
VALUES (:job_id, :stat_date, :deals_found, :deals_sent, :scrape_errors)`
)

func sub(fsys fs.FS, dir string) fs.FS {
	s, err := fs.Sub(fsys, dir)
	if err != nil {
		panic(err)
	}
	return s
}

var (
	MySQL = &Dialect{
		Name:       "mysql",
		migrations: sub(migrations.Files, "mysql"),
		timeArg: func(t time.Time) any {
			return t.UTC()
		},
		insertWatchQuery:   "INSERT IGNORE INTO " + insertWatchColumns,
		insertJobQuery:     "INSERT IGNORE INTO " + insertJobColumns,
		markWatchSeenQuery: "INSERT IGNORE INTO " + markWatchSeenColumns,
		markJobSeenQuery:   "INSERT IGNORE INTO " + markJobSeenColumns,
		incrementStatsQuery: "INSERT INTO " + insertStatsColumns + `
ON DUPLICATE KEY UPDATE
    deals_found = deals_found + VALUES(deals_found),
    deals_sent = deals_sent + VALUES(deals_sent),
    scrape_errors = scrape_errors + VALUES(scrape_errors)`,
	}

	SQLite = &Dialect{
		Name:       "sqlite",
		migrations: sub(migrations.Files, "sqlite"),
		timeArg: func(t time.Time) any {
			return t.UTC().Format(models.SQLiteTimeLayout)
		},
		insertWatchQuery:   "INSERT OR IGNORE INTO " + insertWatchColumns,
		insertJobQuery:     "INSERT OR IGNORE INTO " + insertJobColumns,
		markWatchSeenQuery: "INSERT OR IGNORE INTO " + markWatchSeenColumns,
		markJobSeenQuery:   "INSERT OR IGNORE INTO " + markJobSeenColumns,
		incrementStatsQuery: "INSERT INTO " + insertStatsColumns + `
ON CONFLICT (job_id, stat_date) DO UPDATE SET
    deals_found = deals_found + excluded.deals_found,
    deals_sent = deals_sent + excluded.deals_sent,
    scrape_errors = scrape_errors + excluded.scrape_errors`,
	}
)
