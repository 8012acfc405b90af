package store

import (
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/klauspost/compress/zstd"

	"remig/internal/errors"
	"remig/internal/graph"
)

// SnapshotStore persists graph snapshots keyed by their canonical hash.
// Facts are stored as zstd-compressed canonical JSON; large dependency
// graphs compress well because component ids repeat across edges.
type SnapshotStore struct {
	db      *DB
	encoder *zstd.Encoder
	decoder *zstd.Decoder
}

func NewSnapshotStore(db *DB) (*SnapshotStore, error) {
	enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return nil, fmt.Errorf("failed to create zstd encoder: %w", err)
	}
	dec, err := zstd.NewReader(nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create zstd decoder: %w", err)
	}
	return &SnapshotStore{db: db, encoder: enc, decoder: dec}, nil
}

// Put stores a snapshot. Storing the same hash twice is a no-op: the hash
// is derived from the canonical facts, so the blob cannot differ.
func (s *SnapshotStore) Put(g *graph.Graph) error {
	raw, err := json.Marshal(g.Facts())
	if err != nil {
		return fmt.Errorf("failed to marshal snapshot facts: %w", err)
	}
	blob := s.encoder.EncodeAll(raw, nil)

	return s.db.WithTx(func(tx *sql.Tx) error {
		_, err := tx.Exec(
			`INSERT INTO snapshots (hash, facts) VALUES (?, ?)
			 ON CONFLICT(hash) DO NOTHING`,
			g.Hash(), blob,
		)
		if err != nil {
			return fmt.Errorf("failed to store snapshot: %w", err)
		}
		return nil
	})
}

// Get rebuilds the graph stored under the given hash
func (s *SnapshotStore) Get(hash string) (*graph.Graph, error) {
	var blob []byte
	err := s.db.conn.QueryRow(`SELECT facts FROM snapshots WHERE hash = ?`, hash).Scan(&blob)
	if err == sql.ErrNoRows {
		return nil, errors.New(errors.SnapshotMissing, "no stored snapshot for this hash", nil).
			WithDetail("hash", hash)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load snapshot: %w", err)
	}

	raw, err := s.decoder.DecodeAll(blob, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to decompress snapshot: %w", err)
	}
	var facts graph.Facts
	if err := json.Unmarshal(raw, &facts); err != nil {
		return nil, fmt.Errorf("failed to unmarshal snapshot facts: %w", err)
	}

	g, err := graph.Build(facts)
	if err != nil {
		return nil, fmt.Errorf("stored snapshot no longer builds: %w", err)
	}
	if g.Hash() != hash {
		return nil, errors.New(errors.SnapshotMissing, "stored snapshot hash mismatch", nil).
			WithDetail("want", hash).
			WithDetail("got", g.Hash())
	}
	return g, nil
}
