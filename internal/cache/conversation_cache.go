package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	redisv9 "github.com/redis/go-redis/v9"

	"gopherai-docchat/internal/model"
)

// redisCommander is the subset of *redis.Client the cache relies on.
type redisCommander interface {
	HSet(ctx context.Context, key string, values ...interface{}) *redisv9.IntCmd
	HGetAll(ctx context.Context, key string) *redisv9.MapStringStringCmd
	Exists(ctx context.Context, keys ...string) *redisv9.IntCmd
	RPush(ctx context.Context, key string, values ...interface{}) *redisv9.IntCmd
	LRange(ctx context.Context, key string, start, stop int64) *redisv9.StringSliceCmd
	Del(ctx context.Context, keys ...string) *redisv9.IntCmd
	Expire(ctx context.Context, key string, expiration time.Duration) *redisv9.BoolCmd
}

// ConversationCache stores sessions in redis: one hash for the session and its
// document, one list for the turns. A positive ttl is refreshed on every write.
type ConversationCache struct {
	client    redisCommander
	keyPrefix string
	ttl       time.Duration
	now       func() time.Time
}

type storedTurn struct {
	Question  string    `json:"question"`
	Answer    string    `json:"answer"`
	CreatedAt time.Time `json:"created_at"`
}

func NewConversationCache(client redisCommander, keyPrefix string, ttl time.Duration) *ConversationCache {
	if keyPrefix == "" {
		keyPrefix = "docchat"
	}
	if ttl < 0 {
		ttl = 0
	}
	return &ConversationCache{
		client:    client,
		keyPrefix: keyPrefix,
		ttl:       ttl,
		now:       time.Now,
	}
}

func (c *ConversationCache) CreateSession(ctx context.Context) (*model.Session, error) {
	session := model.Session{
		ID:        uuid.NewString(),
		CreatedAt: c.now(),
	}
	key := c.sessionKey(session.ID)
	if err := c.client.HSet(ctx, key,
		"id", session.ID,
		"created_at", session.CreatedAt.Format(time.RFC3339Nano),
	).Err(); err != nil {
		return nil, fmt.Errorf("redis create session failed: %w", err)
	}
	if err := c.touch(ctx, session.ID); err != nil {
		return nil, err
	}
	return &session, nil
}

func (c *ConversationCache) SetDocument(ctx context.Context, sessionID string, doc model.Document) error {
	if err := c.ensureSession(ctx, sessionID); err != nil {
		return err
	}
	if doc.CreatedAt.IsZero() {
		doc.CreatedAt = c.now()
	}
	if err := c.client.HSet(ctx, c.sessionKey(sessionID), map[string]interface{}{
		"filename":       doc.Filename,
		"text":           doc.Text,
		"pages":          doc.Pages,
		"size":           doc.Size,
		"fingerprint":    doc.Fingerprint,
		"doc_created_at": doc.CreatedAt.Format(time.RFC3339Nano),
	}).Err(); err != nil {
		return fmt.Errorf("redis set document failed: %w", err)
	}
	if err := c.client.Del(ctx, c.turnsKey(sessionID)).Err(); err != nil {
		return fmt.Errorf("redis reset turns failed: %w", err)
	}
	return c.touch(ctx, sessionID)
}

func (c *ConversationCache) Document(ctx context.Context, sessionID string) (*model.Document, error) {
	fields, err := c.client.HGetAll(ctx, c.sessionKey(sessionID)).Result()
	if err != nil {
		return nil, fmt.Errorf("redis get document failed: %w", err)
	}
	if len(fields) == 0 {
		return nil, model.ErrSessionNotFound
	}
	text, ok := fields["text"]
	if !ok {
		return nil, model.ErrNoDocument
	}

	doc := &model.Document{
		SessionID:   sessionID,
		Filename:    fields["filename"],
		Text:        text,
		Fingerprint: fields["fingerprint"],
	}
	doc.Pages, _ = strconv.Atoi(fields["pages"])
	doc.Size, _ = strconv.ParseInt(fields["size"], 10, 64)
	doc.CreatedAt, _ = time.Parse(time.RFC3339Nano, fields["doc_created_at"])
	return doc, nil
}

func (c *ConversationCache) AppendTurn(ctx context.Context, sessionID, question, answer string) (*model.Turn, error) {
	if err := c.ensureSession(ctx, sessionID); err != nil {
		return nil, err
	}
	stored := storedTurn{Question: question, Answer: answer, CreatedAt: c.now()}
	payload, err := json.Marshal(stored)
	if err != nil {
		return nil, fmt.Errorf("marshal turn failed: %w", err)
	}
	length, err := c.client.RPush(ctx, c.turnsKey(sessionID), payload).Result()
	if err != nil {
		return nil, fmt.Errorf("redis append turn failed: %w", err)
	}
	if err := c.touch(ctx, sessionID); err != nil {
		return nil, err
	}
	return &model.Turn{
		Index:     int(length) - 1,
		Question:  stored.Question,
		Answer:    stored.Answer,
		CreatedAt: stored.CreatedAt,
	}, nil
}

// History returns turns in list order; the index is the list position.
func (c *ConversationCache) History(ctx context.Context, sessionID string) ([]model.Turn, error) {
	if err := c.ensureSession(ctx, sessionID); err != nil {
		return nil, err
	}
	raw, err := c.client.LRange(ctx, c.turnsKey(sessionID), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("redis get history failed: %w", err)
	}
	turns := make([]model.Turn, 0, len(raw))
	for i, item := range raw {
		var stored storedTurn
		if err := json.Unmarshal([]byte(item), &stored); err != nil {
			return nil, fmt.Errorf("unmarshal cached turn %d failed: %w", i, err)
		}
		turns = append(turns, model.Turn{
			Index:     i,
			Question:  stored.Question,
			Answer:    stored.Answer,
			CreatedAt: stored.CreatedAt,
		})
	}
	return turns, nil
}

func (c *ConversationCache) DeleteSession(ctx context.Context, sessionID string) error {
	deleted, err := c.client.Del(ctx, c.sessionKey(sessionID), c.turnsKey(sessionID)).Result()
	if err != nil {
		return fmt.Errorf("redis delete session failed: %w", err)
	}
	if deleted == 0 {
		return model.ErrSessionNotFound
	}
	return nil
}

func (c *ConversationCache) ensureSession(ctx context.Context, sessionID string) error {
	exists, err := c.client.Exists(ctx, c.sessionKey(sessionID)).Result()
	if err != nil {
		return fmt.Errorf("redis check session failed: %w", err)
	}
	if exists == 0 {
		return model.ErrSessionNotFound
	}
	return nil
}

func (c *ConversationCache) touch(ctx context.Context, sessionID string) error {
	if c.ttl <= 0 {
		return nil
	}
	for _, key := range []string{c.sessionKey(sessionID), c.turnsKey(sessionID)} {
		if err := c.client.Expire(ctx, key, c.ttl).Err(); err != nil {
			return fmt.Errorf("redis expire %s failed: %w", key, err)
		}
	}
	return nil
}

func (c *ConversationCache) sessionKey(sessionID string) string {
	return fmt.Sprintf("%s:session:%s", c.keyPrefix, sessionID)
}

func (c *ConversationCache) turnsKey(sessionID string) string {
	return fmt.Sprintf("%s:session:%s:turns", c.keyPrefix, sessionID)
}
