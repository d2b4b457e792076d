package store

import (
	"errors"
	"strings"

	"gorm.io/gorm"

	"OmniChat/models"
)

var (
	ErrNotFound  = errors.New("conversation not found")
	ErrForbidden = errors.New("conversation owned by another user")
	ErrBadRole   = errors.New("invalid message role")
)

// Store is the durable conversation/message collection. Every read or
// mutation that takes a userID enforces ownership; AppendMessage and
// ListMessages trust the caller to have resolved ownership already (the
// orchestrator's implicit-creation path).
type Store struct {
	db *gorm.DB
}

func New(db *gorm.DB) *Store {
	return &Store{db: db}
}

func (s *Store) CreateConversation(userID, title string) (*models.Conversation, error) {
	conv := models.Conversation{UserID: userID, Title: strings.TrimSpace(title)}
	if err := s.db.Create(&conv).Error; err != nil {
		return nil, err
	}
	return &conv, nil
}

// ListConversations returns the user's conversations ordered by creation time
// ascending.
func (s *Store) ListConversations(userID string) ([]models.Conversation, error) {
	var convs []models.Conversation
	err := s.db.Where("user_id = ?", userID).Order("created_at ASC").Find(&convs).Error
	if err != nil {
		return nil, err
	}
	return convs, nil
}

// GetConversation loads a conversation the user owns. A missing row is
// ErrNotFound; a row owned by someone else is ErrForbidden, without exposing
// any of its fields.
func (s *Store) GetConversation(userID, id string) (*models.Conversation, error) {
	var conv models.Conversation
	if err := s.db.Where("id = ?", id).First(&conv).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if conv.UserID != userID {
		return nil, ErrForbidden
	}
	return &conv, nil
}

func (s *Store) RenameConversation(userID, id, newTitle string) (*models.Conversation, error) {
	conv, err := s.GetConversation(userID, id)
	if err != nil {
		return nil, err
	}
	newTitle = strings.TrimSpace(newTitle)
	if newTitle == conv.Title {
		// rename to the current title is a no-op
		return conv, nil
	}
	if err := s.db.Model(conv).Update("title", newTitle).Error; err != nil {
		return nil, err
	}
	conv.Title = newTitle
	return conv, nil
}

// DeleteConversation removes a conversation and all of its messages in one
// transaction.
func (s *Store) DeleteConversation(userID, id string) error {
	conv, err := s.GetConversation(userID, id)
	if err != nil {
		return err
	}
	return s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("conversation_id = ?", conv.ID).Delete(&models.Message{}).Error; err != nil {
			return err
		}
		return tx.Delete(conv).Error
	})
}

func (s *Store) AppendMessage(conversationID, role, content string) (*models.Message, error) {
	if !models.ValidRole(role) {
		return nil, ErrBadRole
	}
	msg := models.Message{ConversationID: conversationID, Role: role, Content: content}
	if err := s.db.Create(&msg).Error; err != nil {
		return nil, err
	}
	return &msg, nil
}

// ListMessages returns a conversation's messages ordered by creation time
// ascending.
func (s *Store) ListMessages(conversationID string) ([]models.Message, error) {
	var msgs []models.Message
	err := s.db.Where("conversation_id = ?", conversationID).Order("created_at ASC").Find(&msgs).Error
	if err != nil {
		return nil, err
	}
	return msgs, nil
}

// ListMessagesForUser is the ownership-checked listing used by the HTTP
// surface.
func (s *Store) ListMessagesForUser(userID, conversationID string) ([]models.Message, error) {
	if _, err := s.GetConversation(userID, conversationID); err != nil {
		return nil, err
	}
	return s.ListMessages(conversationID)
}
