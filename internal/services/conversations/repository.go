// Package conversations persists chat threads and their messages.
package conversations

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"github.com/podscribe/podscribe/internal/models"
)

// ErrConversationNotFound is returned when no conversation matches the
// lookup, or it belongs to a different user.
var ErrConversationNotFound = errors.New("conversation not found")

// Repository defines conversation persistence operations. Every read is
// scoped to the owning user.
type Repository interface {
	CreateConversation(ctx context.Context, userID, title string, podcastID, episodeID *string) (*models.Conversation, error)
	GetConversation(ctx context.Context, userID, conversationID string) (*models.Conversation, error)
	ListConversations(ctx context.Context, userID string, limit int) ([]models.Conversation, error)
	DeleteConversation(ctx context.Context, userID, conversationID string) error

	AppendMessage(ctx context.Context, conversationID string, role models.MessageRole, content string, citations models.CitationList) (*models.ChatMessage, error)
	GetMessages(ctx context.Context, userID, conversationID string) ([]models.ChatMessage, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository creates a gorm-backed conversation repository.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) CreateConversation(ctx context.Context, userID, title string, podcastID, episodeID *string) (*models.Conversation, error) {
	conversation := &models.Conversation{
		UserID:    userID,
		Title:     title,
		PodcastID: podcastID,
		EpisodeID: episodeID,
	}
	if err := r.db.WithContext(ctx).Create(conversation).Error; err != nil {
		return nil, fmt.Errorf("creating conversation: %w", err)
	}
	return conversation, nil
}

func (r *repository) GetConversation(ctx context.Context, userID, conversationID string) (*models.Conversation, error) {
	var conversation models.Conversation
	err := r.db.WithContext(ctx).
		Where("id = ? AND user_id = ?", conversationID, userID).
		First(&conversation).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrConversationNotFound
		}
		return nil, fmt.Errorf("getting conversation %s: %w", conversationID, err)
	}
	return &conversation, nil
}

func (r *repository) ListConversations(ctx context.Context, userID string, limit int) ([]models.Conversation, error) {
	var conversations []models.Conversation
	query := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("updated_at DESC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	if err := query.Find(&conversations).Error; err != nil {
		return nil, fmt.Errorf("listing conversations for user %s: %w", userID, err)
	}
	return conversations, nil
}

func (r *repository) DeleteConversation(ctx context.Context, userID, conversationID string) error {
	result := r.db.WithContext(ctx).
		Where("id = ? AND user_id = ?", conversationID, userID).
		Delete(&models.Conversation{})
	if result.Error != nil {
		return fmt.Errorf("deleting conversation %s: %w", conversationID, result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrConversationNotFound
	}
	return nil
}

func (r *repository) AppendMessage(ctx context.Context, conversationID string, role models.MessageRole, content string, citations models.CitationList) (*models.ChatMessage, error) {
	message := &models.ChatMessage{
		ConversationID: conversationID,
		Role:           role,
		Content:        content,
		Citations:      citations,
	}
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(message).Error; err != nil {
			return err
		}
		// Bump the thread so it sorts to the top of the list.
		return tx.Model(&models.Conversation{}).
			Where("id = ?", conversationID).
			Update("updated_at", tx.NowFunc()).Error
	})
	if err != nil {
		return nil, fmt.Errorf("appending message to conversation %s: %w", conversationID, err)
	}
	return message, nil
}

func (r *repository) GetMessages(ctx context.Context, userID, conversationID string) ([]models.ChatMessage, error) {
	if _, err := r.GetConversation(ctx, userID, conversationID); err != nil {
		return nil, err
	}
	var messages []models.ChatMessage
	err := r.db.WithContext(ctx).
		Where("conversation_id = ?", conversationID).
		Order("created_at ASC").
		Find(&messages).Error
	if err != nil {
		return nil, fmt.Errorf("getting messages for conversation %s: %w", conversationID, err)
	}
	return messages, nil
}
