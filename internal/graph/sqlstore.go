package graph

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"
)

// Mirror persists graph snapshots to a SQLite database so tooling can query
// the last analysis without the server running. The store itself stays the
// source of truth; the mirror is rewritten wholesale on each persist.
type Mirror struct {
	db   *sql.DB
	path string
}

const mirrorSchema = `
CREATE TABLE IF NOT EXISTS code_nodes (
	id             TEXT PRIMARY KEY,
	kind           TEXT NOT NULL,
	name           TEXT NOT NULL,
	qualified_path TEXT NOT NULL,
	source_file    TEXT,
	start_line     INTEGER,
	unresolved     INTEGER NOT NULL DEFAULT 0
);
CREATE TABLE IF NOT EXISTS code_edges (
	id        TEXT PRIMARY KEY,
	source_id TEXT NOT NULL,
	target_id TEXT NOT NULL,
	kind      TEXT NOT NULL,
	FOREIGN KEY (source_id) REFERENCES code_nodes (id),
	FOREIGN KEY (target_id) REFERENCES code_nodes (id)
);
CREATE INDEX IF NOT EXISTS idx_nodes_kind ON code_nodes (kind);
CREATE INDEX IF NOT EXISTS idx_edges_kind ON code_edges (kind);
`

// OpenMirror opens (creating if needed) the SQLite mirror at path.
func OpenMirror(path string) (*Mirror, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create mirror directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open mirror database: %w", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enable WAL mode: %w", err)
	}
	if _, err := db.Exec(mirrorSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("init mirror schema: %w", err)
	}
	return &Mirror{db: db, path: path}, nil
}

// Persist replaces the mirror's contents with the given snapshot in one
// SQL transaction.
func (m *Mirror) Persist(snap *Snapshot) error {
	tx, err := m.db.Begin()
	if err != nil {
		return fmt.Errorf("begin persist: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec("DELETE FROM code_edges"); err != nil {
		return fmt.Errorf("clear edges: %w", err)
	}
	if _, err := tx.Exec("DELETE FROM code_nodes"); err != nil {
		return fmt.Errorf("clear nodes: %w", err)
	}

	insNode, err := tx.Prepare(`INSERT INTO code_nodes
		(id, kind, name, qualified_path, source_file, start_line, unresolved)
		VALUES (?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare node insert: %w", err)
	}
	defer insNode.Close()
	for _, n := range snap.Nodes() {
		unresolved := 0
		if n.Unresolved {
			unresolved = 1
		}
		if _, err := insNode.Exec(n.ID, string(n.Kind), n.Name, n.QualifiedPath,
			n.SourceFile, n.Span.StartLine, unresolved); err != nil {
			return fmt.Errorf("insert node %s: %w", n.QualifiedPath, err)
		}
	}

	insEdge, err := tx.Prepare(`INSERT INTO code_edges
		(id, source_id, target_id, kind) VALUES (?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare edge insert: %w", err)
	}
	defer insEdge.Close()
	for _, e := range snap.Edges() {
		if _, err := insEdge.Exec(e.ID, e.SourceID, e.TargetID, string(e.Kind)); err != nil {
			return fmt.Errorf("insert edge %s: %w", e.ID, err)
		}
	}

	return tx.Commit()
}

// Load reads the mirror back into a fresh Store.
func (m *Mirror) Load() (*Store, error) {
	store := NewStore()

	rows, err := m.db.Query(`SELECT id, kind, name, qualified_path, source_file,
		start_line, unresolved FROM code_nodes`)
	if err != nil {
		return nil, fmt.Errorf("query nodes: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var n Node
		var kind string
		var sourceFile sql.NullString
		var unresolved int
		if err := rows.Scan(&n.ID, &kind, &n.Name, &n.QualifiedPath,
			&sourceFile, &n.Span.StartLine, &unresolved); err != nil {
			return nil, fmt.Errorf("scan node: %w", err)
		}
		n.Kind = NodeKind(kind)
		n.SourceFile = sourceFile.String
		n.Unresolved = unresolved != 0
		store.UpsertNode(n)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate nodes: %w", err)
	}

	erows, err := m.db.Query(`SELECT id, source_id, target_id, kind FROM code_edges`)
	if err != nil {
		return nil, fmt.Errorf("query edges: %w", err)
	}
	defer erows.Close()
	for erows.Next() {
		var e Edge
		var kind string
		if err := erows.Scan(&e.ID, &e.SourceID, &e.TargetID, &kind); err != nil {
			return nil, fmt.Errorf("scan edge: %w", err)
		}
		e.Kind = EdgeKind(kind)
		if _, err := store.UpsertEdge(e); err != nil {
			return nil, fmt.Errorf("edge %s: %w", e.ID, err)
		}
	}
	if err := erows.Err(); err != nil {
		return nil, fmt.Errorf("iterate edges: %w", err)
	}

	return store, nil
}

// Close releases the underlying database handle.
func (m *Mirror) Close() error {
	return m.db.Close()
}
