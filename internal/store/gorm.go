package store

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/noxco7/nickname-messenger-backend/internal/apperr"
	"github.com/noxco7/nickname-messenger-backend/internal/identity"
	"github.com/noxco7/nickname-messenger-backend/internal/models"
)

// DB is the gorm-backed store adapter.
type DB struct {
	db *gorm.DB
}

func New(db *gorm.DB) *DB {
	return &DB{db: db}
}

func translate(err error, what string) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return apperr.Wrap(apperr.KindNotFound, what+" not found", err)
	}
	return apperr.Wrap(apperr.KindTransient, "storage failure", err)
}

func (s *DB) CreateDirect(ctx context.Context, conv *models.Conversation) (*models.Conversation, error) {
	existing, err := s.byPair(ctx, conv.ParticipantLo, conv.ParticipantHi)
	if err == nil {
		return existing, nil
	}
	if !apperr.IsKind(err, apperr.KindNotFound) {
		return nil, err
	}

	if err := s.db.WithContext(ctx).Create(conv).Error; err != nil {
		// Lost the race against a concurrent create for the same pair:
		// the existing record wins.
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return s.byPair(ctx, conv.ParticipantLo, conv.ParticipantHi)
		}
		return nil, translate(err, "conversation")
	}
	return conv, nil
}

func (s *DB) byPair(ctx context.Context, lo, hi string) (*models.Conversation, error) {
	var conv models.Conversation
	err := s.db.WithContext(ctx).
		Where("participant_lo = ? AND participant_hi = ?", lo, hi).
		First(&conv).Error
	if err != nil {
		return nil, translate(err, "conversation")
	}
	return &conv, nil
}

func (s *DB) ConversationByID(ctx context.Context, id string) (*models.Conversation, error) {
	var conv models.Conversation
	if err := s.db.WithContext(ctx).First(&conv, "id = ?", id).Error; err != nil {
		return nil, translate(err, "conversation")
	}
	return &conv, nil
}

func (s *DB) ConversationsFor(ctx context.Context, id identity.Canonical, limit, offset int) ([]models.Conversation, error) {
	var convs []models.Conversation
	q := s.db.WithContext(ctx).
		Where("(participant_lo = ? OR participant_hi = ?) AND is_active = ?", string(id), string(id), true).
		Order("last_message_at desc").
		Offset(offset)
	if limit > 0 {
		q = q.Limit(limit)
	}
	err := q.Find(&convs).Error
	if err != nil {
		return nil, translate(err, "conversations")
	}
	return convs, nil
}

func (s *DB) UpdateSummary(ctx context.Context, id, messageID string, at time.Time) error {
	res := s.db.WithContext(ctx).Model(&models.Conversation{}).
		Where("id = ?", id).
		Updates(map[string]any{"last_message_id": messageID, "last_message_at": at})
	if res.Error != nil {
		return translate(res.Error, "conversation")
	}
	if res.RowsAffected == 0 {
		return apperr.New(apperr.KindNotFound, "conversation not found")
	}
	return nil
}

func (s *DB) SetActive(ctx context.Context, id string, active bool) error {
	res := s.db.WithContext(ctx).Model(&models.Conversation{}).
		Where("id = ?", id).
		Update("is_active", active)
	if res.Error != nil {
		return translate(res.Error, "conversation")
	}
	if res.RowsAffected == 0 {
		return apperr.New(apperr.KindNotFound, "conversation not found")
	}
	return nil
}

func (s *DB) CreateMessage(ctx context.Context, msg *models.Message) error {
	if err := s.db.WithContext(ctx).Create(msg).Error; err != nil {
		return translate(err, "message")
	}
	return nil
}

func (s *DB) MessageByID(ctx context.Context, id string) (*models.Message, error) {
	var msg models.Message
	if err := s.db.WithContext(ctx).First(&msg, "id = ?", id).Error; err != nil {
		return nil, translate(err, "message")
	}
	return &msg, nil
}

func (s *DB) History(ctx context.Context, conversationID string, limit, offset int) ([]models.Message, error) {
	var msgs []models.Message
	err := s.db.WithContext(ctx).
		Where("conversation_id = ?", conversationID).
		Order("seq desc").
		Limit(limit).Offset(offset).
		Find(&msgs).Error
	if err != nil {
		return nil, translate(err, "messages")
	}
	reverse(msgs)
	return msgs, nil
}

func (s *DB) UnreadBy(ctx context.Context, conversationID string, reader identity.Canonical) ([]models.Message, error) {
	read := s.db.Model(&models.ReadReceipt{}).
		Select("message_id").
		Where("reader_id = ?", string(reader))

	var msgs []models.Message
	err := s.db.WithContext(ctx).
		Where("conversation_id = ? AND sender_id <> ?", conversationID, string(reader)).
		Where("id NOT IN (?)", read).
		Order("seq asc").
		Find(&msgs).Error
	if err != nil {
		return nil, translate(err, "messages")
	}
	return msgs, nil
}

func (s *DB) SetDeliveryState(ctx context.Context, id string, state models.DeliveryState) error {
	res := s.db.WithContext(ctx).Model(&models.Message{}).
		Where("id = ?", id).
		Update("delivery_state", state)
	if res.Error != nil {
		return translate(res.Error, "message")
	}
	if res.RowsAffected == 0 {
		return apperr.New(apperr.KindNotFound, "message not found")
	}
	return nil
}

func (s *DB) AddReceipt(ctx context.Context, messageID string, reader identity.Canonical, at time.Time) (bool, error) {
	receipt := models.ReadReceipt{MessageID: messageID, ReaderID: string(reader), ReadAt: at}
	res := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&receipt)
	if res.Error != nil {
		return false, translate(res.Error, "receipt")
	}
	return res.RowsAffected > 0, nil
}

func (s *DB) CreateUser(ctx context.Context, u *models.User) error {
	if err := s.db.WithContext(ctx).Create(u).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return apperr.Wrap(apperr.KindConflict, "nickname already taken", err)
		}
		return translate(err, "user")
	}
	return nil
}

func (s *DB) UserByID(ctx context.Context, id identity.Canonical) (*models.User, error) {
	var u models.User
	if err := s.db.WithContext(ctx).First(&u, "id = ?", string(id)).Error; err != nil {
		return nil, translate(err, "user")
	}
	return &u, nil
}

// DisplayName satisfies identity.Directory.
func (s *DB) DisplayName(ctx context.Context, id identity.Canonical) (string, error) {
	u, err := s.UserByID(ctx, id)
	if err != nil {
		return "", err
	}
	if u.DisplayName != "" {
		return u.DisplayName, nil
	}
	return u.ID, nil
}

func (s *DB) SetPresence(ctx context.Context, id identity.Canonical, online bool, at time.Time) error {
	res := s.db.WithContext(ctx).Model(&models.User{}).
		Where("id = ?", string(id)).
		Updates(map[string]any{"is_online": online, "last_seen": at})
	if res.Error != nil {
		return translate(res.Error, "user")
	}
	if res.RowsAffected == 0 {
		return apperr.New(apperr.KindNotFound, "user not found")
	}
	return nil
}

func (s *DB) DeviceTokens(ctx context.Context, id identity.Canonical) ([]string, error) {
	var tokens []string
	err := s.db.WithContext(ctx).Model(&models.DeviceEndpoint{}).
		Where("owner_id = ?", string(id)).
		Pluck("token", &tokens).Error
	if err != nil {
		return nil, translate(err, "device endpoints")
	}
	return tokens, nil
}

func (s *DB) AddDeviceToken(ctx context.Context, id identity.Canonical, token string) error {
	endpoint := models.DeviceEndpoint{OwnerID: string(id), Token: token}
	err := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&endpoint).Error
	if err != nil {
		return translate(err, "device endpoint")
	}
	return nil
}

func (s *DB) RemoveDeviceTokens(ctx context.Context, id identity.Canonical, tokens []string) error {
	if len(tokens) == 0 {
		return nil
	}
	err := s.db.WithContext(ctx).
		Where("owner_id = ? AND token IN ?", string(id), tokens).
		Delete(&models.DeviceEndpoint{}).Error
	if err != nil {
		return translate(err, "device endpoints")
	}
	return nil
}

func reverse(msgs []models.Message) {
	for i, j := 0, len(msgs)-1; i < j; i, j = i+1, j-1 {
		msgs[i], msgs[j] = msgs[j], msgs[i]
	}
}
