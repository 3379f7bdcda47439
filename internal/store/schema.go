package store

// Star schema: deduplicated dimension tables referenced by surrogate id from
// the two fact tables. Every natural key carries a uniqueness constraint so
// that concurrent resolve-or-create stays race-free (insert-or-ignore, then
// re-select). The places key uses an expression index so that an absent dir
// compares as the single no-value marker rather than as distinct NULLs.
const schemaSQL = `
CREATE TABLE IF NOT EXISTS users (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	username TEXT UNIQUE NOT NULL
);

CREATE TABLE IF NOT EXISTS urls (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	url TEXT UNIQUE NOT NULL,
	title TEXT
);

CREATE TABLE IF NOT EXISTS browsing_events (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	type TEXT NOT NULL,
	url_id INTEGER NOT NULL REFERENCES urls(id),
	timestamp INTEGER NOT NULL,
	user_id INTEGER REFERENCES users(id)
);

CREATE INDEX IF NOT EXISTS idx_browsing_events_timestamp
	ON browsing_events(timestamp);

CREATE TABLE IF NOT EXISTS projects (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	name TEXT UNIQUE NOT NULL
);

CREATE TABLE IF NOT EXISTS buffers (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	name TEXT UNIQUE NOT NULL
);

CREATE TABLE IF NOT EXISTS places (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	host TEXT NOT NULL,
	dir TEXT
);

CREATE UNIQUE INDEX IF NOT EXISTS ux_places_host_dir
	ON places(host, COALESCE(dir, ''));

CREATE TABLE IF NOT EXISTS emacs_commands (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	name TEXT UNIQUE NOT NULL
);

CREATE TABLE IF NOT EXISTS emacs_major_modes (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	name TEXT UNIQUE NOT NULL
);

CREATE TABLE IF NOT EXISTS emacs_events (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	timestamp INTEGER NOT NULL,
	session_id TEXT NOT NULL,
	command_id INTEGER NOT NULL REFERENCES emacs_commands(id),
	buffer_id INTEGER NOT NULL REFERENCES buffers(id),
	place_id INTEGER NOT NULL REFERENCES places(id),
	major_mode_id INTEGER NOT NULL REFERENCES emacs_major_modes(id),
	project_id INTEGER REFERENCES projects(id)
);

CREATE INDEX IF NOT EXISTS idx_emacs_events_timestamp
	ON emacs_events(timestamp);

CREATE INDEX IF NOT EXISTS idx_emacs_events_project_id
	ON emacs_events(project_id);
`
