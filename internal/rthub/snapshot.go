package rthub

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/EgorLis/palermobot/internal/store"
)

const snapshotSchema = `CREATE TABLE IF NOT EXISTS snapshot (
	id       INTEGER PRIMARY KEY CHECK (id = 1),
	document TEXT    NOT NULL,
	version  INTEGER NOT NULL,
	saved_at INTEGER NOT NULL
)`

// Snapshots хранит последний снимок дерева в SQLite.
type Snapshots struct {
	db *sql.DB
}

func OpenSnapshots(path string) (*Snapshots, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("rthub: snapshot path is required")
	}
	dsn := filepath.Clean(path) + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("rthub: open sqlite db: %w", err)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("rthub: ping sqlite db: %w", err)
	}
	if _, err := db.Exec(snapshotSchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("rthub: create snapshot table: %w", err)
	}
	return &Snapshots{db: db}, nil
}

func (s *Snapshots) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Load возвращает сохранённый документ; nil, если снимков ещё не было.
func (s *Snapshots) Load(ctx context.Context) (map[string]any, error) {
	var raw string
	err := s.db.QueryRowContext(ctx, `SELECT document FROM snapshot WHERE id = 1`).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("rthub: load snapshot: %w", err)
	}
	var doc map[string]any
	if err := json.Unmarshal([]byte(raw), &doc); err != nil {
		return nil, fmt.Errorf("rthub: decode snapshot: %w", err)
	}
	return doc, nil
}

func (s *Snapshots) Save(ctx context.Context, doc any, version uint64) error {
	if doc == nil {
		doc = map[string]any{}
	}
	raw, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("rthub: encode snapshot: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `INSERT INTO snapshot (id, document, version, saved_at)
		VALUES (1, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET document = excluded.document,
			version = excluded.version, saved_at = excluded.saved_at`,
		string(raw), int64(version), time.Now().UTC().UnixMilli())
	if err != nil {
		return fmt.Errorf("rthub: save snapshot: %w", err)
	}
	return nil
}

// Versioned — хранилище со счётчиком записей (memstore.Store).
type Versioned interface {
	store.Store
	Version() uint64
}

// RunSnapshots сохраняет дерево раз в interval, если оно менялось, и ещё
// раз при остановке ctx. Ошибки логируются, цикл продолжается.
func RunSnapshots(ctx context.Context, st Versioned, snaps *Snapshots, interval time.Duration, log *slog.Logger) {
	if log == nil {
		log = slog.Default()
	}
	t := time.NewTicker(interval)
	defer t.Stop()

	var saved uint64
	save := func(ctx context.Context) {
		v := st.Version()
		if v == saved {
			return
		}
		doc, err := st.Get(ctx, "")
		if err != nil {
			log.Error("rthub: snapshot read failed", "err", err)
			return
		}
		if err := snaps.Save(ctx, doc, v); err != nil {
			log.Error("rthub: snapshot failed", "err", err)
			return
		}
		saved = v
		log.Debug("rthub: snapshot saved", "version", v)
	}

	for {
		select {
		case <-ctx.Done():
			final, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			save(final)
			cancel()
			return
		case <-t.C:
			save(ctx)
		}
	}
}
