package repository

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"gopherai-docchat/internal/model"
)

type conversation struct {
	session  model.Session
	document *model.Document
	turns    []model.Turn
}

// ConversationRepository keeps sessions in process memory. Nothing is evicted.
type ConversationRepository struct {
	mu       sync.RWMutex
	sessions map[string]*conversation
	now      func() time.Time
}

func NewConversationRepository() *ConversationRepository {
	return &ConversationRepository{
		sessions: make(map[string]*conversation),
		now:      time.Now,
	}
}

func (r *ConversationRepository) CreateSession(_ context.Context) (*model.Session, error) {
	session := model.Session{
		ID:        uuid.NewString(),
		CreatedAt: r.now(),
	}

	r.mu.Lock()
	r.sessions[session.ID] = &conversation{session: session}
	r.mu.Unlock()

	return &session, nil
}

func (r *ConversationRepository) SetDocument(_ context.Context, sessionID string, doc model.Document) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	conv, ok := r.sessions[sessionID]
	if !ok {
		return model.ErrSessionNotFound
	}
	doc.SessionID = sessionID
	if doc.CreatedAt.IsZero() {
		doc.CreatedAt = r.now()
	}
	conv.document = &doc
	conv.turns = nil
	return nil
}

func (r *ConversationRepository) Document(_ context.Context, sessionID string) (*model.Document, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	conv, ok := r.sessions[sessionID]
	if !ok {
		return nil, model.ErrSessionNotFound
	}
	if conv.document == nil {
		return nil, model.ErrNoDocument
	}
	doc := *conv.document
	return &doc, nil
}

func (r *ConversationRepository) AppendTurn(_ context.Context, sessionID, question, answer string) (*model.Turn, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	conv, ok := r.sessions[sessionID]
	if !ok {
		return nil, model.ErrSessionNotFound
	}
	turn := model.Turn{
		Index:     len(conv.turns),
		Question:  strings.TrimSpace(question),
		Answer:    answer,
		CreatedAt: r.now(),
	}
	conv.turns = append(conv.turns, turn)
	return &turn, nil
}

// History returns a copy of the session's turns in append order.
func (r *ConversationRepository) History(_ context.Context, sessionID string) ([]model.Turn, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	conv, ok := r.sessions[sessionID]
	if !ok {
		return nil, model.ErrSessionNotFound
	}
	turns := make([]model.Turn, len(conv.turns))
	copy(turns, conv.turns)
	return turns, nil
}

func (r *ConversationRepository) DeleteSession(_ context.Context, sessionID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.sessions[sessionID]; !ok {
		return model.ErrSessionNotFound
	}
	delete(r.sessions, sessionID)
	return nil
}

func (r *ConversationRepository) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}
