package cockroach

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"callfeed-backend/internal/domain"
	"callfeed-backend/internal/service/history"
)

// ConversationRepository handles conversation lookups and the free-text
// search the call list delegates to
type ConversationRepository struct {
	pool *pgxpool.Pool
}

// NewConversationRepository creates a new conversation repository
func NewConversationRepository(pool *pgxpool.Pool) *ConversationRepository {
	return &ConversationRepository{pool: pool}
}

// Create inserts a new conversation and returns its row id
func (r *ConversationRepository) Create(ctx context.Context, conv *domain.Conversation) error {
	query := `
		INSERT INTO conversations (type, title, created_at)
		VALUES ($1, $2, $3)
		RETURNING id
	`

	err := r.pool.QueryRow(ctx, query, conv.Type, conv.Title, conv.CreatedAt).Scan(&conv.ID)
	if err != nil {
		return fmt.Errorf("failed to create conversation: %w", err)
	}

	return nil
}

// GetByID retrieves a conversation by row id. Absent ids yield
// history.ErrConversationNotFound.
func (r *ConversationRepository) GetByID(ctx context.Context, id int64) (*domain.Conversation, error) {
	query := `
		SELECT id, type, title, created_at
		FROM conversations
		WHERE id = $1
	`

	conv := &domain.Conversation{}
	err := r.pool.QueryRow(ctx, query, id).Scan(
		&conv.ID,
		&conv.Type,
		&conv.Title,
		&conv.CreatedAt,
	)

	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, history.ErrConversationNotFound
		}
		return nil, fmt.Errorf("failed to get conversation: %w", err)
	}

	return conv, nil
}

// AddParticipant attaches a participant to a conversation
func (r *ConversationRepository) AddParticipant(ctx context.Context, p *domain.ConversationParticipant) error {
	query := `
		INSERT INTO conversation_participants (conversation_id, handle, display_name, joined_at)
		VALUES ($1, $2, $3, $4)
	`

	_, err := r.pool.Exec(ctx, query, p.ConversationID, p.Handle, p.DisplayName, p.JoinedAt)
	if err != nil {
		return fmt.Errorf("failed to add participant: %w", err)
	}

	return nil
}

// MatchConversations resolves a search term to the conversation ids whose
// title or participant text matches. Implements history.SearchIndex.
func (r *ConversationRepository) MatchConversations(ctx context.Context, term string) ([]int64, error) {
	query := `
		SELECT DISTINCT c.id
		FROM conversations c
		LEFT JOIN conversation_participants p ON c.id = p.conversation_id
		WHERE c.title ILIKE '%' || $1 || '%'
		   OR p.handle ILIKE '%' || $1 || '%'
		   OR p.display_name ILIKE '%' || $1 || '%'
	`

	rows, err := r.pool.Query(ctx, query, term)
	if err != nil {
		return nil, fmt.Errorf("failed to search conversations: %w", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan conversation id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read conversation matches: %w", err)
	}

	return ids, nil
}
