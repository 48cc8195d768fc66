package store

import (
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
)

const schema = `
	PRAGMA busy_timeout       = 10000;
	PRAGMA journal_mode       = WAL;
	PRAGMA journal_size_limit = 200000000;
	PRAGMA synchronous        = NORMAL;
	PRAGMA foreign_keys       = ON;
	PRAGMA temp_store         = MEMORY;
	PRAGMA cache_size         = -16000;

	create table if not exists shares (
		id integer primary key autoincrement not null,
		hash text not null unique,
		course_id text not null,
		lesson_id text not null,
		user_name text not null,
		path text not null,
		duration_ms integer not null,
		sample_rate integer not null,
		score text,
		created_at integer not null
	);

	create index if not exists shares_lesson_id on shares (lesson_id);`

// OpenDB opens (creating if needed) the SQLite database at path and applies
// the schema
func OpenDB(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite3", "file:"+path)
	if err != nil {
		return nil, fmt.Errorf("opening sqlite database %s: %w", path, err)
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("applying schema: %w", err)
	}

	return db, nil
}
