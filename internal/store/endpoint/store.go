// Package endpoint persists the quoting server address. Every save appends a
// row and the newest row is the active endpoint.
package endpoint

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	_ "modernc.org/sqlite"
)

const (
	DefaultAddress = "ws://localhost"
	DefaultPort    = "8080"

	// IncompleteMessage is shown when either field is left empty.
	IncompleteMessage = "Please enter both server address and port."
)

var (
	ErrNotConfigured = errors.New("server endpoint not configured")
	ErrIncomplete    = errors.New("server address and port are both required")
	ErrInvalid       = errors.New("invalid server endpoint")
)

// Endpoint is dialled as "{Address}:{Port}".
type Endpoint struct {
	ID        int64     `json:"id"`
	Address   string    `json:"address"`
	Port      string    `json:"port"`
	CreatedAt time.Time `json:"created_at"`
}

func (e Endpoint) URL() string {
	return e.Address + ":" + e.Port
}

// Normalize trims both fields and rejects the endpoint if either is empty,
// the address is not a ws/wss URL without a port, or the port is not 1-65535.
func Normalize(address, port string) (Endpoint, error) {
	ep := Endpoint{Address: strings.TrimSpace(address), Port: strings.TrimSpace(port)}
	if ep.Address == "" || ep.Port == "" {
		return Endpoint{}, ErrIncomplete
	}
	if err := ep.Validate(); err != nil {
		return Endpoint{}, err
	}
	return ep, nil
}

// Validate checks that URL() is dialable as a websocket endpoint.
func (e Endpoint) Validate() error {
	n, err := strconv.Atoi(e.Port)
	if err != nil || n < 1 || n > 65535 {
		return fmt.Errorf("%w: port %q must be a number between 1 and 65535", ErrInvalid, e.Port)
	}
	u, err := url.Parse(e.Address)
	if err != nil {
		return fmt.Errorf("%w: address %q: %v", ErrInvalid, e.Address, err)
	}
	if u.Scheme != "ws" && u.Scheme != "wss" {
		return fmt.Errorf("%w: address %q must start with ws:// or wss://", ErrInvalid, e.Address)
	}
	if u.Host == "" || u.Port() != "" || u.Path != "" || u.RawQuery != "" {
		return fmt.Errorf("%w: address %q must be scheme and host only", ErrInvalid, e.Address)
	}
	return nil
}

type Store struct {
	mu sync.Mutex
	db *sql.DB
}

// Open opens or creates the sqlite database at path.
func Open(path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("endpoint store path cannot be empty")
	}
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&cache=shared", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	if err := ensureSchema(db); err != nil {
		db.Close()
		return nil, err
	}
	return &Store{db: db}, nil
}

// NewWithDB wraps an already prepared database.
func NewWithDB(db *sql.DB) *Store {
	return &Store{db: db}
}

func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}

// Load returns the newest endpoint, or ErrNotConfigured.
func (s *Store) Load(ctx context.Context) (Endpoint, error) {
	db, err := s.handle()
	if err != nil {
		return Endpoint{}, err
	}
	var (
		ep        Endpoint
		createdAt int64
	)
	row := db.QueryRowContext(ctx, `SELECT id, address, port, created_at FROM server_config ORDER BY id DESC LIMIT 1`)
	if err := row.Scan(&ep.ID, &ep.Address, &ep.Port, &createdAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Endpoint{}, ErrNotConfigured
		}
		return Endpoint{}, fmt.Errorf("load endpoint: %w", err)
	}
	if createdAt > 0 {
		ep.CreatedAt = time.UnixMilli(createdAt)
	}
	return ep, nil
}

// Save validates and appends the endpoint, returning it with its row id.
func (s *Store) Save(ctx context.Context, address, port string) (Endpoint, error) {
	ep, err := Normalize(address, port)
	if err != nil {
		return Endpoint{}, err
	}
	db, err := s.handle()
	if err != nil {
		return Endpoint{}, err
	}
	ep.CreatedAt = time.Now()
	res, err := db.ExecContext(ctx,
		`INSERT INTO server_config (address, port, created_at) VALUES (?, ?, ?)`,
		ep.Address, ep.Port, ep.CreatedAt.UnixMilli())
	if err != nil {
		return Endpoint{}, fmt.Errorf("save endpoint: %w", err)
	}
	if id, err := res.LastInsertId(); err == nil {
		ep.ID = id
	}
	return ep, nil
}

func (s *Store) handle() (*sql.DB, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db == nil {
		return nil, fmt.Errorf("endpoint store is closed")
	}
	return s.db, nil
}

func ensureSchema(db *sql.DB) error {
	stmt := `
	CREATE TABLE IF NOT EXISTS server_config (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		address TEXT NOT NULL,
		port TEXT NOT NULL,
		created_at INTEGER NOT NULL DEFAULT 0
	);`
	_, err := db.Exec(stmt)
	return err
}
