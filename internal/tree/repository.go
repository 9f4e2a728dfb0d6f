package tree

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/zefau/huesync/internal/infrastructure/database"
	"github.com/zefau/huesync/internal/infrastructure/logging"
)

const (
	// snapshotQueueSize bounds the pending-persist backlog. A full sync
	// pass touches a few hundred nodes, so this absorbs several passes
	// before anything is dropped.
	snapshotQueueSize = 4096

	// persistTimeout caps each database write.
	persistTimeout = 5 * time.Second
)

// Repository persists tree nodes to the tree_nodes table so the tree,
// including real_bri brightness shadows, survives restarts.
//
// Persistence is asynchronous: the Observer callback enqueues changed
// nodes and Run drains the queue in the background. When the queue is
// full the node is dropped; losing a snapshot write only costs the
// restored value after a crash, while blocking the sync pass on SQLite
// would stall polling.
type Repository struct {
	db      *database.DB
	logger  *logging.Logger
	queue   chan Node
	dropped atomic.Int64
}

// NewRepository creates a repository on an open database.
func NewRepository(db *database.DB, logger *logging.Logger) *Repository {
	if logger == nil {
		logger = logging.Default()
	}
	return &Repository{
		db:     db,
		logger: logger,
		queue:  make(chan Node, snapshotQueueSize),
	}
}

// Restore loads every persisted node into the store.
//
// Call it before attaching Observer: restored nodes would otherwise be
// re-persisted immediately. The first poll overwrites restored bridge
// state with fresh values; what restore actually preserves across a
// restart is the values the bridge does not hold, the real_bri shadows
// above all.
//
// Parameters:
//   - ctx: Context for timeout/cancellation
//   - store: Tree to populate
//
// Returns:
//   - int: Number of nodes restored
//   - error: If the snapshot cannot be read
func (r *Repository) Restore(ctx context.Context, store *MemoryStore) (int, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT path, type, role, description, unit, min_value, max_value, writable, value
		FROM tree_nodes
		ORDER BY path
	`)
	if err != nil {
		return 0, fmt.Errorf("querying tree snapshot: %w", err)
	}
	defer rows.Close()

	count := 0
	for rows.Next() {
		var (
			n        Node
			min, max sql.NullFloat64
			writable int
			value    sql.NullString
		)
		if err := rows.Scan(&n.Path, &n.Meta.Type, &n.Meta.Role, &n.Meta.Description,
			&n.Meta.Unit, &min, &max, &writable, &value); err != nil {
			return count, fmt.Errorf("scanning tree node: %w", err)
		}
		if min.Valid {
			n.Meta.Min = &min.Float64
		}
		if max.Valid {
			n.Meta.Max = &max.Float64
		}
		n.Meta.Writable = writable != 0

		var v any
		if value.Valid && value.String != "" {
			if err := json.Unmarshal([]byte(value.String), &v); err != nil {
				r.logger.Warn("discarding unreadable snapshot value", "path", n.Path, "error", err)
				v = nil
			}
		}

		store.Set(n.Path, &n.Meta, v)
		count++
	}
	if err := rows.Err(); err != nil {
		return count, fmt.Errorf("iterating tree snapshot: %w", err)
	}

	r.logger.Info("tree snapshot restored", "nodes", count)
	return count, nil
}

// Observer returns a change callback that enqueues nodes for
// persistence. Attach it to the store with OnChange after Restore.
func (r *Repository) Observer() func(Change) {
	return func(c Change) {
		node := Node{
			Path:      c.Path,
			Meta:      c.Meta,
			Value:     c.Value,
			UpdatedAt: time.Now().UTC(),
		}
		select {
		case r.queue <- node:
		default:
			if d := r.dropped.Add(1); d == 1 || d%1000 == 0 {
				r.logger.Warn("snapshot queue full, dropping node", "path", c.Path, "dropped", d)
			}
		}
	}
}

// Run drains the persistence queue until ctx is cancelled, then flushes
// whatever is still queued before returning. Run it as a goroutine and
// wait for it during shutdown.
func (r *Repository) Run(ctx context.Context) {
	for {
		select {
		case n := <-r.queue:
			r.persist(n)
		case <-ctx.Done():
			r.flush()
			return
		}
	}
}

// flush persists everything currently queued.
func (r *Repository) flush() {
	for {
		select {
		case n := <-r.queue:
			r.persist(n)
		default:
			return
		}
	}
}

// persist upserts a single node. Errors are logged, not returned: a
// failed snapshot write must not take down the drain loop.
func (r *Repository) persist(n Node) {
	ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
	defer cancel()

	var value any
	if n.Value != nil {
		encoded, err := json.Marshal(n.Value)
		if err != nil {
			r.logger.Error("encoding node value for snapshot", "path", n.Path, "error", err)
			return
		}
		value = string(encoded)
	}

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO tree_nodes (path, type, role, description, unit, min_value, max_value, writable, value, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(path) DO UPDATE SET
			type = excluded.type,
			role = excluded.role,
			description = excluded.description,
			unit = excluded.unit,
			min_value = excluded.min_value,
			max_value = excluded.max_value,
			writable = excluded.writable,
			value = excluded.value,
			updated_at = excluded.updated_at
	`,
		n.Path, n.Meta.Type, n.Meta.Role, n.Meta.Description, n.Meta.Unit,
		n.Meta.Min, n.Meta.Max, boolToInt(n.Meta.Writable), value,
		n.UpdatedAt.Format(time.RFC3339),
	)
	if err != nil {
		r.logger.Error("persisting tree node", "path", n.Path, "error", err)
	}
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
