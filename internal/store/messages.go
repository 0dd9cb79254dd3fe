package store

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/MikeSquared-Agency/chathub/internal/chat"
)

// AppendMessage archives a relayed message. A message with the same
// (conversation, author, ts) overwrites the earlier row.
func (s *Store) AppendMessage(ctx context.Context, convID string, msg chat.Message) error {
	id, err := uuid.Parse(msg.ID)
	if err != nil {
		id = uuid.New()
	}

	var sentToAI bool
	if msg.Meta != nil {
		sentToAI = msg.Meta.SentToAI
	}

	_, err = s.pool.Exec(ctx, `
		INSERT INTO chat_messages (id, conversation_id, author, role, body, ts, model_id, sent_to_ai)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (conversation_id, author, ts) DO UPDATE
		SET role = EXCLUDED.role, body = EXCLUDED.body,
		    model_id = EXCLUDED.model_id, sent_to_ai = EXCLUDED.sent_to_ai`,
		id, convID, msg.Author, string(msg.Role), msg.Text, msg.TS, msg.ModelID(), sentToAI,
	)
	if err != nil {
		return fmt.Errorf("insert message: %w", err)
	}
	return nil
}

// RecentMessages returns the newest limit messages of a conversation,
// oldest first.
func (s *Store) RecentMessages(ctx context.Context, convID string, limit int) ([]chat.Message, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, author, role, body, ts, model_id, sent_to_ai FROM (
			SELECT id, author, role, body, ts, model_id, sent_to_ai
			FROM chat_messages
			WHERE conversation_id = $1
			ORDER BY ts DESC
			LIMIT $2
		) recent
		ORDER BY ts ASC`,
		convID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query messages: %w", err)
	}
	defer rows.Close()

	var msgs []chat.Message
	for rows.Next() {
		var (
			m        chat.Message
			id       uuid.UUID
			role     string
			modelID  string
			sentToAI bool
		)
		if err := rows.Scan(&id, &m.Author, &role, &m.Text, &m.TS, &modelID, &sentToAI); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		m.ID = id.String()
		m.Role = chat.Role(role)
		if modelID != "" || sentToAI {
			m.Meta = &chat.Meta{ModelID: modelID, SentToAI: sentToAI}
		}
		msgs = append(msgs, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate messages: %w", err)
	}
	return msgs, nil
}
