package services

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/resortgenius/concierge-engine/pkg/apperrors"
	"github.com/resortgenius/concierge-engine/pkg/models"
	"github.com/resortgenius/concierge-engine/pkg/repositories"
	"github.com/resortgenius/concierge-engine/pkg/tenant"
)

// SessionDetail is a session with its messages in order.
type SessionDetail struct {
	Session  *models.ChatSession   `json:"session"`
	Messages []*models.ChatMessage `json:"messages"`
}

// HistoryService exposes a guest's conversations. Callers must run it with a
// tenant scope on ctx.
type HistoryService interface {
	CreateSession(ctx context.Context, userID, title string) (*models.ChatSession, error)
	ListSessions(ctx context.Context, userID string, limit int) ([]*models.ChatSession, error)
	GetSession(ctx context.Context, userID, sessionID string) (*SessionDetail, error)
	DeleteSession(ctx context.Context, userID, sessionID string) error
}

type historyService struct {
	repo   repositories.ChatHistoryRepository
	logger *zap.Logger
}

// NewHistoryService creates a HistoryService.
func NewHistoryService(repo repositories.ChatHistoryRepository, logger *zap.Logger) HistoryService {
	return &historyService{
		repo:   repo,
		logger: logger.Named("history-service"),
	}
}

var _ HistoryService = (*historyService)(nil)

func (s *historyService) CreateSession(ctx context.Context, userID, title string) (*models.ChatSession, error) {
	if _, err := tenant.Require(ctx); err != nil {
		return nil, err
	}
	session, err := s.repo.CreateSession(ctx, userID, strings.TrimSpace(title))
	if err != nil {
		s.logger.Error("Failed to create chat session", zap.String("user_id", userID), zap.Error(err))
		return nil, err
	}
	return session, nil
}

func (s *historyService) ListSessions(ctx context.Context, userID string, limit int) ([]*models.ChatSession, error) {
	if _, err := tenant.Require(ctx); err != nil {
		return nil, err
	}
	if limit > 100 {
		limit = 100
	}
	return s.repo.ListSessions(ctx, userID, limit)
}

func (s *historyService) GetSession(ctx context.Context, userID, sessionID string) (*SessionDetail, error) {
	if _, err := tenant.Require(ctx); err != nil {
		return nil, err
	}
	id, err := parseExistingSessionID(sessionID)
	if err != nil {
		return nil, err
	}

	session, err := s.repo.GetSession(ctx, id, userID)
	if err != nil {
		return nil, err
	}
	messages, err := s.repo.ListMessages(ctx, id)
	if err != nil {
		s.logger.Error("Failed to list chat messages", zap.String("session_id", sessionID), zap.Error(err))
		return nil, err
	}
	session.MessageCount = len(messages)
	return &SessionDetail{Session: session, Messages: messages}, nil
}

func (s *historyService) DeleteSession(ctx context.Context, userID, sessionID string) error {
	if _, err := tenant.Require(ctx); err != nil {
		return err
	}
	id, err := parseExistingSessionID(sessionID)
	if err != nil {
		return err
	}
	return s.repo.DeleteSession(ctx, id, userID)
}

func parseExistingSessionID(raw string) (uuid.UUID, error) {
	id, err := uuid.Parse(strings.TrimSpace(raw))
	if err != nil {
		return uuid.Nil, fmt.Errorf("invalid session id %q: %w", raw, apperrors.ErrInvalidInput)
	}
	return id, nil
}
