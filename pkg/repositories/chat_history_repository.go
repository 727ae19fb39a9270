package repositories

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/resortgenius/concierge-engine/pkg/apperrors"
	"github.com/resortgenius/concierge-engine/pkg/database"
	"github.com/resortgenius/concierge-engine/pkg/models"
)

var errNoTenantScope = errors.New("no tenant scope in context")

// ChatHistoryRepository provides data access for guest conversations.
// Every method runs on the tenant scope in ctx, so rows of other tenants are
// invisible to it.
type ChatHistoryRepository interface {
	CreateSession(ctx context.Context, userID, title string) (*models.ChatSession, error)
	// EnsureSession creates the session if it does not exist yet.
	EnsureSession(ctx context.Context, sessionID uuid.UUID, userID, title string) error
	AppendMessage(ctx context.Context, sessionID uuid.UUID, role models.ChatRole, content string) (*models.ChatMessage, error)
	ListSessions(ctx context.Context, userID string, limit int) ([]*models.ChatSession, error)
	GetSession(ctx context.Context, sessionID uuid.UUID, userID string) (*models.ChatSession, error)
	ListMessages(ctx context.Context, sessionID uuid.UUID) ([]*models.ChatMessage, error)
	DeleteSession(ctx context.Context, sessionID uuid.UUID, userID string) error
}

type chatHistoryRepository struct{}

// NewChatHistoryRepository creates a new ChatHistoryRepository.
func NewChatHistoryRepository() ChatHistoryRepository {
	return &chatHistoryRepository{}
}

var _ ChatHistoryRepository = (*chatHistoryRepository)(nil)

func (r *chatHistoryRepository) CreateSession(ctx context.Context, userID, title string) (*models.ChatSession, error) {
	scope, ok := database.GetTenantScope(ctx)
	if !ok {
		return nil, errNoTenantScope
	}
	if title == "" {
		title = models.DefaultSessionTitle
	}

	s := &models.ChatSession{
		ID:     uuid.New(),
		OrgID:  scope.Tenant,
		UserID: userID,
		Title:  title,
	}

	query := `
		INSERT INTO chat_sessions (session_id, org_id, user_id, title)
		VALUES ($1, $2, $3, $4)
		RETURNING created_at, updated_at`

	err := scope.Conn.QueryRow(ctx, query, s.ID, s.OrgID, s.UserID, s.Title).Scan(&s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to create chat session: %w", err)
	}
	return s, nil
}

func (r *chatHistoryRepository) EnsureSession(ctx context.Context, sessionID uuid.UUID, userID, title string) error {
	scope, ok := database.GetTenantScope(ctx)
	if !ok {
		return errNoTenantScope
	}
	if title == "" {
		title = models.DefaultSessionTitle
	}

	query := `
		INSERT INTO chat_sessions (session_id, org_id, user_id, title)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (session_id) DO NOTHING`

	if _, err := scope.Conn.Exec(ctx, query, sessionID, scope.Tenant, userID, title); err != nil {
		return fmt.Errorf("failed to ensure chat session: %w", err)
	}
	return nil
}

func (r *chatHistoryRepository) AppendMessage(ctx context.Context, sessionID uuid.UUID, role models.ChatRole, content string) (*models.ChatMessage, error) {
	scope, ok := database.GetTenantScope(ctx)
	if !ok {
		return nil, errNoTenantScope
	}
	if !models.IsValidChatRole(role) {
		return nil, fmt.Errorf("invalid chat role %q: %w", role, apperrors.ErrInvalidInput)
	}

	m := &models.ChatMessage{
		ID:        uuid.New(),
		SessionID: sessionID,
		OrgID:     scope.Tenant,
		Role:      role,
		Content:   content,
	}

	// The CTE bumps the session's updated_at in the same statement; no row
	// comes back when the session is not visible to this tenant.
	query := `
		WITH touched AS (
			UPDATE chat_sessions SET updated_at = now()
			WHERE session_id = $2
			RETURNING session_id
		)
		INSERT INTO chat_messages (message_id, session_id, org_id, role, content)
		SELECT $1, session_id, $3, $4, $5 FROM touched
		RETURNING created_at`

	err := scope.Conn.QueryRow(ctx, query, m.ID, m.SessionID, m.OrgID, string(m.Role), m.Content).Scan(&m.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("session %s: %w", sessionID, apperrors.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to append chat message: %w", err)
	}
	return m, nil
}

func (r *chatHistoryRepository) ListSessions(ctx context.Context, userID string, limit int) ([]*models.ChatSession, error) {
	scope, ok := database.GetTenantScope(ctx)
	if !ok {
		return nil, errNoTenantScope
	}
	if limit <= 0 {
		limit = 50
	}

	query := `
		SELECT s.session_id, s.org_id, s.user_id, s.title, s.created_at, s.updated_at,
		       (SELECT COUNT(*) FROM chat_messages m WHERE m.session_id = s.session_id)
		FROM chat_sessions s
		WHERE s.user_id = $1
		ORDER BY s.updated_at DESC
		LIMIT $2`

	rows, err := scope.Conn.Query(ctx, query, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list chat sessions: %w", err)
	}
	defer rows.Close()

	sessions := make([]*models.ChatSession, 0)
	for rows.Next() {
		s := &models.ChatSession{}
		if err := rows.Scan(&s.ID, &s.OrgID, &s.UserID, &s.Title, &s.CreatedAt, &s.UpdatedAt, &s.MessageCount); err != nil {
			return nil, fmt.Errorf("failed to scan chat session: %w", err)
		}
		sessions = append(sessions, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating chat sessions: %w", err)
	}
	return sessions, nil
}

func (r *chatHistoryRepository) GetSession(ctx context.Context, sessionID uuid.UUID, userID string) (*models.ChatSession, error) {
	scope, ok := database.GetTenantScope(ctx)
	if !ok {
		return nil, errNoTenantScope
	}

	query := `
		SELECT session_id, org_id, user_id, title, created_at, updated_at
		FROM chat_sessions
		WHERE session_id = $1 AND user_id = $2`

	s := &models.ChatSession{}
	err := scope.Conn.QueryRow(ctx, query, sessionID, userID).Scan(&s.ID, &s.OrgID, &s.UserID, &s.Title, &s.CreatedAt, &s.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("session %s: %w", sessionID, apperrors.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get chat session: %w", err)
	}
	return s, nil
}

func (r *chatHistoryRepository) ListMessages(ctx context.Context, sessionID uuid.UUID) ([]*models.ChatMessage, error) {
	scope, ok := database.GetTenantScope(ctx)
	if !ok {
		return nil, errNoTenantScope
	}

	query := `
		SELECT message_id, session_id, org_id, role, content, created_at
		FROM chat_messages
		WHERE session_id = $1
		ORDER BY created_at ASC`

	rows, err := scope.Conn.Query(ctx, query, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to list chat messages: %w", err)
	}
	defer rows.Close()

	messages := make([]*models.ChatMessage, 0)
	for rows.Next() {
		m := &models.ChatMessage{}
		var role string
		if err := rows.Scan(&m.ID, &m.SessionID, &m.OrgID, &role, &m.Content, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan chat message: %w", err)
		}
		m.Role = models.ChatRole(role)
		messages = append(messages, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating chat messages: %w", err)
	}
	return messages, nil
}

func (r *chatHistoryRepository) DeleteSession(ctx context.Context, sessionID uuid.UUID, userID string) error {
	scope, ok := database.GetTenantScope(ctx)
	if !ok {
		return errNoTenantScope
	}

	tag, err := scope.Conn.Exec(ctx, `DELETE FROM chat_sessions WHERE session_id = $1 AND user_id = $2`, sessionID, userID)
	if err != nil {
		return fmt.Errorf("failed to delete chat session: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("session %s: %w", sessionID, apperrors.ErrNotFound)
	}
	return nil
}
