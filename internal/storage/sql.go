package storage

import (
	"context"
	"errors"
	"fmt"
	"protalent/backend/internal/models"
	"strconv"
	"time"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormLogger "gorm.io/gorm/logger"
)

type chatRow struct {
	ID         uint           `gorm:"primaryKey"`
	Users      pq.StringArray `gorm:"type:text[];not null"`
	Key        string         `gorm:"column:pair_key;size:520;not null;uniqueIndex"`
	LastText   *string        `gorm:"type:text"`
	LastSender *string        `gorm:"size:255"`
	LastAt     *time.Time
	CreatedAt  time.Time
	UpdatedAt  time.Time `gorm:"index"`
}

func (chatRow) TableName() string { return "chats" }

func (r *chatRow) toModel() *models.Chat {
	chat := &models.Chat{
		ID:        strconv.FormatUint(uint64(r.ID), 10),
		Users:     []string(r.Users),
		Key:       r.Key,
		CreatedAt: r.CreatedAt,
		UpdatedAt: r.UpdatedAt,
	}
	if r.LastText != nil {
		chat.LastMessage = &models.LastMessage{Text: *r.LastText}
		if r.LastSender != nil {
			chat.LastMessage.Sender = *r.LastSender
		}
		if r.LastAt != nil {
			chat.LastMessage.Timestamp = *r.LastAt
		}
	}
	return chat
}

type messageRow struct {
	ID        uint      `gorm:"primaryKey"`
	ChatID    uint      `gorm:"not null;index:idx_messages_chat_ts,priority:1"`
	Chat      chatRow   `gorm:"foreignKey:ChatID;constraint:OnDelete:CASCADE"`
	Sender    string    `gorm:"size:255;not null"`
	Receiver  string    `gorm:"size:255;not null;index:idx_messages_receiver_read,priority:1"`
	Text      string    `gorm:"type:text;not null"`
	Read      bool      `gorm:"not null;default:false;index:idx_messages_receiver_read,priority:2"`
	Timestamp time.Time `gorm:"not null;index:idx_messages_chat_ts,priority:2"`
}

func (messageRow) TableName() string { return "messages" }

func (r *messageRow) toModel() models.Message {
	return models.Message{
		ID:        strconv.FormatUint(uint64(r.ID), 10),
		ChatID:    strconv.FormatUint(uint64(r.ChatID), 10),
		Sender:    r.Sender,
		Receiver:  r.Receiver,
		Text:      r.Text,
		Read:      r.Read,
		Timestamp: r.Timestamp,
	}
}

// SQLStore keeps chats and messages in PostgreSQL through gorm.
type SQLStore struct {
	db     *gorm.DB
	logger *zap.SugaredLogger
	opts   options
}

// NewSQLStore opens dsn with the postgres driver.
func NewSQLStore(logger *zap.SugaredLogger, dsn string, opts ...Option) (*SQLStore, error) {
	o := defaultOptions()
	for _, opt := range opts {
		opt.apply(&o)
	}

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: gormLogger.Default.LogMode(gormLogger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	logger.Info("connected to postgres")

	return &SQLStore{db: db, logger: logger, opts: o}, nil
}

// NewSQLStoreFromDB wraps an already opened gorm connection.
func NewSQLStoreFromDB(logger *zap.SugaredLogger, db *gorm.DB, opts ...Option) *SQLStore {
	o := defaultOptions()
	for _, opt := range opts {
		opt.apply(&o)
	}
	return &SQLStore{db: db, logger: logger, opts: o}
}

// EnsureIndexes migrates the chats and messages tables together with their indexes.
func (s *SQLStore) EnsureIndexes(ctx context.Context) error {
	ctx, cancel := s.opts.withTimeout(ctx)
	defer cancel()

	if err := s.db.WithContext(ctx).AutoMigrate(&chatRow{}, &messageRow{}); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	return nil
}

func parseID(id string) (uint, bool) {
	n, err := strconv.ParseUint(id, 10, 64)
	if err != nil || n == 0 {
		return 0, false
	}
	return uint(n), true
}

func (s *SQLStore) FindChatByParticipants(ctx context.Context, a, b string) (*models.Chat, error) {
	if err := validatePair(a, b); err != nil {
		return nil, err
	}
	ctx, cancel := s.opts.withTimeout(ctx)
	defer cancel()

	var row chatRow
	err := s.db.WithContext(ctx).Where("pair_key = ?", models.ParticipantsKey(a, b)).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrChatNotFound
	}
	if err != nil {
		return nil, err
	}
	return row.toModel(), nil
}

func (s *SQLStore) CreateChat(ctx context.Context, a, b string, last *models.LastMessage) (*models.Chat, error) {
	return s.upsertChat(ctx, a, b, last, false)
}

func (s *SQLStore) UpsertChatSnapshot(ctx context.Context, a, b string, last models.LastMessage) (*models.Chat, error) {
	return s.upsertChat(ctx, a, b, &last, true)
}

// upsertChat inserts with ON CONFLICT DO NOTHING on pair_key. A concurrent
// insert of the same pair blocks on the unique index until the winner commits,
// so the following select always sees exactly one row.
func (s *SQLStore) upsertChat(ctx context.Context, a, b string, last *models.LastMessage, overwrite bool) (*models.Chat, error) {
	if err := validatePair(a, b); err != nil {
		return nil, err
	}
	ctx, cancel := s.opts.withTimeout(ctx)
	defer cancel()

	key := models.ParticipantsKey(a, b)
	var row chatRow
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		now := time.Now().UTC()
		candidate := chatRow{
			Users:     pq.StringArray{a, b},
			Key:       key,
			CreatedAt: now,
			UpdatedAt: now,
		}
		if last != nil {
			candidate.LastText, candidate.LastSender, candidate.LastAt = &last.Text, &last.Sender, &last.Timestamp
		}

		err := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "pair_key"}},
			DoNothing: true,
		}).Create(&candidate).Error
		if err != nil {
			return err
		}

		if err := tx.Where("pair_key = ?", key).First(&row).Error; err != nil {
			return err
		}

		if overwrite && row.ID != candidate.ID {
			err := tx.Model(&row).Updates(map[string]interface{}{
				"last_text":   last.Text,
				"last_sender": last.Sender,
				"last_at":     last.Timestamp,
				"updated_at":  now,
			}).Error
			if err != nil {
				return err
			}
			row.LastText, row.LastSender, row.LastAt = &last.Text, &last.Sender, &last.Timestamp
			row.UpdatedAt = now
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return row.toModel(), nil
}

func (s *SQLStore) UpdateChatSnapshot(ctx context.Context, chatID string, last models.LastMessage) error {
	id, ok := parseID(chatID)
	if !ok {
		return ErrChatNotFound
	}
	ctx, cancel := s.opts.withTimeout(ctx)
	defer cancel()

	res := s.db.WithContext(ctx).Model(&chatRow{}).Where("id = ?", id).Updates(map[string]interface{}{
		"last_text":   last.Text,
		"last_sender": last.Sender,
		"last_at":     last.Timestamp,
		"updated_at":  time.Now().UTC(),
	})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrChatNotFound
	}
	return nil
}

func (s *SQLStore) GetChat(ctx context.Context, chatID string) (*models.Chat, error) {
	id, ok := parseID(chatID)
	if !ok {
		return nil, ErrChatNotFound
	}
	ctx, cancel := s.opts.withTimeout(ctx)
	defer cancel()

	var row chatRow
	err := s.db.WithContext(ctx).First(&row, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrChatNotFound
	}
	if err != nil {
		return nil, err
	}
	return row.toModel(), nil
}

func (s *SQLStore) ListChats(ctx context.Context, userID string) ([]models.Chat, error) {
	return s.findChats(ctx, "? = ANY(users)", userID)
}

func (s *SQLStore) SearchChats(ctx context.Context, userID, participant string) ([]models.Chat, error) {
	return s.findChats(ctx, "? = ANY(users) AND ? = ANY(users)", userID, participant)
}

func (s *SQLStore) findChats(ctx context.Context, query string, args ...interface{}) ([]models.Chat, error) {
	ctx, cancel := s.opts.withTimeout(ctx)
	defer cancel()

	var rows []chatRow
	err := s.db.WithContext(ctx).Where(query, args...).Order("updated_at DESC").Order("id").Find(&rows).Error
	if err != nil {
		return nil, err
	}

	chats := make([]models.Chat, 0, len(rows))
	for i := range rows {
		chats = append(chats, *rows[i].toModel())
	}
	return chats, nil
}

func (s *SQLStore) DeleteChat(ctx context.Context, chatID, caller string) error {
	id, ok := parseID(chatID)
	if !ok {
		return ErrChatNotFound
	}
	ctx, cancel := s.opts.withTimeout(ctx)
	defer cancel()

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var row chatRow
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&row, id).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrChatNotFound
		}
		if err != nil {
			return err
		}
		if !row.toModel().HasParticipant(caller) {
			return ErrNotParticipant
		}

		if err := tx.Where("chat_id = ?", id).Delete(&messageRow{}).Error; err != nil {
			return err
		}
		return tx.Delete(&chatRow{}, id).Error
	})
}

func (s *SQLStore) InsertMessage(ctx context.Context, chatID, sender, receiver, text string) (*models.Message, error) {
	id, ok := parseID(chatID)
	if !ok {
		return nil, ErrChatNotFound
	}
	ctx, cancel := s.opts.withTimeout(ctx)
	defer cancel()

	row := messageRow{
		ChatID:    id,
		Sender:    sender,
		Receiver:  receiver,
		Text:      text,
		Timestamp: time.Now().UTC(),
	}
	if err := s.db.WithContext(ctx).Omit("Chat").Create(&row).Error; err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.ForeignKeyViolation {
			return nil, ErrChatNotFound
		}
		return nil, err
	}

	msg := row.toModel()
	return &msg, nil
}

func (s *SQLStore) ListMessages(ctx context.Context, chatID string, limit, skip int64) ([]models.Message, error) {
	id, ok := parseID(chatID)
	if !ok {
		return []models.Message{}, nil
	}
	ctx, cancel := s.opts.withTimeout(ctx)
	defer cancel()

	q := s.db.WithContext(ctx).Where("chat_id = ?", id).Order(`"timestamp"`).Order("id").Offset(int(skip))
	if limit > 0 {
		q = q.Limit(int(limit))
	}

	var rows []messageRow
	if err := q.Find(&rows).Error; err != nil {
		return nil, err
	}

	msgs := make([]models.Message, 0, len(rows))
	for i := range rows {
		msgs = append(msgs, rows[i].toModel())
	}
	return msgs, nil
}

func (s *SQLStore) MarkRead(ctx context.Context, chatID, receiver string) (int64, error) {
	id, ok := parseID(chatID)
	if !ok {
		return 0, nil
	}
	ctx, cancel := s.opts.withTimeout(ctx)
	defer cancel()

	res := s.db.WithContext(ctx).Model(&messageRow{}).
		Where(`chat_id = ? AND receiver = ? AND "read" = ?`, id, receiver, false).
		Update("read", true)
	return res.RowsAffected, res.Error
}

func (s *SQLStore) DeleteMessage(ctx context.Context, chatID, messageID, caller string) error {
	cid, ok := parseID(chatID)
	if !ok {
		return ErrMessageNotFound
	}
	mid, ok := parseID(messageID)
	if !ok {
		return ErrMessageNotFound
	}
	ctx, cancel := s.opts.withTimeout(ctx)
	defer cancel()

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var row messageRow
		err := tx.Where("id = ? AND chat_id = ?", mid, cid).First(&row).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrMessageNotFound
		}
		if err != nil {
			return err
		}
		if row.Sender != caller {
			return ErrNotSender
		}
		return tx.Delete(&messageRow{}, mid).Error
	})
}

func (s *SQLStore) CountUnreadByChat(ctx context.Context, receiver string) ([]models.UnreadCount, error) {
	ctx, cancel := s.opts.withTimeout(ctx)
	defer cancel()

	var rows []struct {
		ChatID uint
		Unread int64
	}
	err := s.db.WithContext(ctx).Model(&messageRow{}).
		Select("chat_id, count(*) AS unread").
		Where(`receiver = ? AND "read" = ?`, receiver, false).
		Group("chat_id").
		Order("chat_id").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}

	counts := make([]models.UnreadCount, 0, len(rows))
	for _, r := range rows {
		counts = append(counts, models.UnreadCount{
			ChatID: strconv.FormatUint(uint64(r.ChatID), 10),
			Unread: r.Unread,
		})
	}
	return counts, nil
}

func (s *SQLStore) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	ctx, cancel := s.opts.withTimeout(ctx)
	defer cancel()
	return sqlDB.PingContext(ctx)
}

func (s *SQLStore) Close(context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
