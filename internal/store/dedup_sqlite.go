package store

import (
	"context"
	"fmt"
	"time"
)

var _ DedupRepo = (*SQLiteStore)(nil)

func (s *SQLiteStore) RecordInbound(ctx context.Context, messageID, sessionID string) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO inbound_dedup (message_id, session_id, received_at) VALUES (?, ?, ?)`,
		messageID, sessionID, s.now(),
	)
	if err != nil {
		return false, fmt.Errorf("record inbound failed: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("dedup rows affected check failed: %w", err)
	}
	return n > 0, nil
}

func (s *SQLiteStore) MarkProcessed(ctx context.Context, messageID string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE inbound_dedup SET processed_at = ? WHERE message_id = ?`,
		s.now(), messageID,
	)
	if err != nil {
		return fmt.Errorf("mark processed failed: %w", err)
	}
	return nil
}

func (s *SQLiteStore) PruneDedup(ctx context.Context, cutoff time.Time) (int, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM inbound_dedup WHERE received_at < ?`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("prune dedup failed: %w", err)
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}
