// Package storage provides SQLite-based persistence for resolved host addresses.
package storage

import (
	"database/sql"
	"fmt"
	"net/netip"
	"strings"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/mpersano/kasui/internal/infra"
)

// Database wraps a SQLite connection with thread-safe access.
type Database struct {
	db *sql.DB
	mu sync.Mutex
}

var _ infra.AddressStore = (*Database)(nil)

// New creates a new database connection at the specified path.
func New(path string) (*Database, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Enable WAL mode for better concurrency
	if _, err := db.Exec("PRAGMA journal_mode=WAL;"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS address_cache (
			host TEXT NOT NULL PRIMARY KEY,
			addrs TEXT NOT NULL,
			resolved_at INTEGER NOT NULL
		)
	`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create address_cache table: %w", err)
	}

	return &Database{db: db}, nil
}

// Close closes the database connection.
func (d *Database) Close() error {
	return d.db.Close()
}

// All returns every stored entry keyed by host. Rows whose addresses no
// longer parse are skipped.
func (d *Database) All() (map[string]infra.AddressEntry, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	rows, err := d.db.Query("SELECT host, addrs, resolved_at FROM address_cache")
	if err != nil {
		return nil, fmt.Errorf("query error: %w", err)
	}
	defer rows.Close()

	entries := make(map[string]infra.AddressEntry)
	for rows.Next() {
		var (
			host, addrs string
			resolvedAt  int64
		)
		if err := rows.Scan(&host, &addrs, &resolvedAt); err != nil {
			return nil, fmt.Errorf("scan error: %w", err)
		}

		parsed, err := decodeAddrs(addrs)
		if err != nil {
			continue
		}
		entries[host] = infra.AddressEntry{
			Addrs:      parsed,
			ResolvedAt: time.Unix(resolvedAt, 0),
		}
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return entries, nil
}

// Save stores the entry for host, replacing any previous one.
func (d *Database) Save(host string, entry infra.AddressEntry) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	_, err := d.db.Exec(`
		INSERT INTO address_cache (host, addrs, resolved_at)
		VALUES (?, ?, ?)
		ON CONFLICT(host) DO UPDATE SET
			addrs = excluded.addrs,
			resolved_at = excluded.resolved_at
	`, host, encodeAddrs(entry.Addrs), entry.ResolvedAt.Unix())

	if err != nil {
		return fmt.Errorf("insert error: %w", err)
	}

	return nil
}

// Remove deletes the entry for host.
func (d *Database) Remove(host string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	_, err := d.db.Exec("DELETE FROM address_cache WHERE host = ?", host)
	if err != nil {
		return fmt.Errorf("delete error: %w", err)
	}

	return nil
}

func encodeAddrs(addrs []netip.Addr) string {
	parts := make([]string, len(addrs))
	for i, a := range addrs {
		parts[i] = a.String()
	}
	return strings.Join(parts, ",")
}

func decodeAddrs(s string) ([]netip.Addr, error) {
	if s == "" {
		return nil, fmt.Errorf("empty address list")
	}
	var addrs []netip.Addr
	for _, part := range strings.Split(s, ",") {
		a, err := netip.ParseAddr(part)
		if err != nil {
			return nil, err
		}
		addrs = append(addrs, a)
	}
	return addrs, nil
}
