package db

import (
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS messages (
id INTEGER PRIMARY KEY,
src INTEGER,
text TEXT,
media TEXT,
date INTEGER,
fwd_src INTEGER,
fwd_date INTEGER,
reply_id INTEGER
);
CREATE TABLE IF NOT EXISTS users (
id INTEGER PRIMARY KEY,
username TEXT,
first_name TEXT,
last_name TEXT
);
CREATE TABLE IF NOT EXISTS config (id INTEGER PRIMARY KEY, val INTEGER);
CREATE INDEX IF NOT EXISTS idx_messages_date ON messages(date);
`

// Connect открывает журнал и создаёт схему при первом запуске.
func Connect(path string) (*sql.DB, error) {
	d, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	// Один писатель — цикл обработки; пул соединений не нужен.
	d.SetMaxOpenConns(1)
	if _, err := d.Exec(schema); err != nil {
		d.Close()
		return nil, fmt.Errorf("bootstrap schema: %w", err)
	}
	return d, nil
}
