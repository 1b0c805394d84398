package store

import (
	"context"
	"fmt"
	"time"
)

var _ DedupRepo = (*PostgresStore)(nil)

func (s *PostgresStore) RecordInbound(ctx context.Context, messageID, sessionID string) (bool, error) {
	result, err := s.db.ExecContext(ctx,
		`INSERT INTO inbound_dedup (message_id, session_id, received_at) VALUES ($1, $2, $3) ON CONFLICT (message_id) DO NOTHING`,
		messageID, sessionID, s.now(),
	)
	if err != nil {
		return false, fmt.Errorf("record inbound failed: %w", err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("dedup rows affected check failed: %w", err)
	}
	return n > 0, nil
}

func (s *PostgresStore) MarkProcessed(ctx context.Context, messageID string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE inbound_dedup SET processed_at = $1 WHERE message_id = $2`,
		s.now(), messageID,
	)
	if err != nil {
		return fmt.Errorf("mark processed failed: %w", err)
	}
	return nil
}

func (s *PostgresStore) PruneDedup(ctx context.Context, cutoff time.Time) (int, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM inbound_dedup WHERE received_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("prune dedup failed: %w", err)
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}
