package app

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/crypto/blake2b"

	"gopherai-docchat/internal/model"
	"gopherai-docchat/internal/pkg/pdfextract"
)

// ConversationStore keeps one document and its ordered turns per session.
// Implementations return model.ErrSessionNotFound for unknown ids.
type ConversationStore interface {
	CreateSession(ctx context.Context) (*model.Session, error)
	SetDocument(ctx context.Context, sessionID string, doc model.Document) error
	Document(ctx context.Context, sessionID string) (*model.Document, error)
	AppendTurn(ctx context.Context, sessionID, question, answer string) (*model.Turn, error)
	History(ctx context.Context, sessionID string) ([]model.Turn, error)
	DeleteSession(ctx context.Context, sessionID string) error
}

type AnswerGateway interface {
	Ask(ctx context.Context, documentText string, history []model.Turn, question string) (string, error)
	AskStream(ctx context.Context, documentText string, history []model.Turn, question string, onChunk func(string) error) (string, error)
}

type SessionTokens interface {
	Issue(sessionID string) (string, error)
	Parse(token string) (string, error)
}

type TurnPublisher interface {
	Publish(ctx context.Context, event model.TurnEvent) error
}

type DocumentChatService struct {
	store     ConversationStore
	gateway   AnswerGateway
	tokens    SessionTokens
	publisher TurnPublisher
	logger    *zap.Logger
	locks     *sessionLocks
}

// NewDocumentChatService wires the service. publisher may be nil.
func NewDocumentChatService(
	store ConversationStore,
	gateway AnswerGateway,
	tokens SessionTokens,
	publisher TurnPublisher,
	logger *zap.Logger,
) *DocumentChatService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DocumentChatService{
		store:     store,
		gateway:   gateway,
		tokens:    tokens,
		publisher: publisher,
		logger:    logger,
		locks:     newSessionLocks(),
	}
}

type UploadInput struct {
	Filename string
	Content  io.Reader
	// SessionToken, when set, replaces the document of that session and clears its history.
	SessionToken string
}

type UploadResult struct {
	SessionToken string          `json:"session_token"`
	SessionID    string          `json:"session_id"`
	Document     *model.Document `json:"document"`
	Characters   int             `json:"characters"`
}

type AskInput struct {
	SessionToken string
	Question     string
}

type AskResult struct {
	SessionID string      `json:"session_id"`
	Answer    string      `json:"answer"`
	Turn      *model.Turn `json:"turn"`
}

type HistoryResult struct {
	SessionID string          `json:"session_id"`
	Document  *model.Document `json:"document"`
	Turns     []model.Turn    `json:"turns"`
}

func (s *DocumentChatService) Upload(ctx context.Context, input UploadInput) (*UploadResult, error) {
	filename := strings.TrimSpace(filepath.Base(input.Filename))
	if input.Content == nil || filename == "" || filename == "." {
		return nil, fmt.Errorf("%w: missing pdf file", model.ErrInvalidInput)
	}
	if !strings.EqualFold(filepath.Ext(filename), ".pdf") {
		return nil, fmt.Errorf("%w: only .pdf files are supported", model.ErrExtraction)
	}

	// resolve first so a bad token never costs an extraction
	sessionID := ""
	if strings.TrimSpace(input.SessionToken) != "" {
		id, err := s.resolve(input.SessionToken)
		if err != nil {
			return nil, err
		}
		sessionID = id
	}

	raw, err := io.ReadAll(input.Content)
	if err != nil {
		return nil, fmt.Errorf("read upload failed: %w", err)
	}
	extracted, err := pdfextract.ExtractBytes(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", model.ErrExtraction, err)
	}
	sum := blake2b.Sum256(raw)
	doc := model.Document{
		Filename:    filename,
		Text:        extracted.Text,
		Pages:       extracted.Pages,
		Size:        extracted.Size,
		Fingerprint: hex.EncodeToString(sum[:]),
		CreatedAt:   time.Now(),
	}

	if sessionID != "" {
		unlock := s.locks.lock(sessionID)
		err = s.store.SetDocument(ctx, sessionID, doc)
		unlock()
		if err != nil {
			return nil, err
		}
	} else {
		session, err := s.store.CreateSession(ctx)
		if err != nil {
			return nil, err
		}
		sessionID = session.ID
		if err := s.store.SetDocument(ctx, sessionID, doc); err != nil {
			_ = s.store.DeleteSession(ctx, sessionID)
			return nil, err
		}
	}
	doc.SessionID = sessionID

	token, err := s.tokens.Issue(sessionID)
	if err != nil {
		return nil, err
	}

	s.logger.Info("document stored",
		zap.String("session_id", sessionID),
		zap.String("filename", filename),
		zap.Int("pages", doc.Pages),
		zap.Int("characters", doc.Characters()),
		zap.String("fingerprint", doc.Fingerprint),
	)
	return &UploadResult{
		SessionToken: token,
		SessionID:    sessionID,
		Document:     &doc,
		Characters:   doc.Characters(),
	}, nil
}

func (s *DocumentChatService) Ask(ctx context.Context, input AskInput) (*AskResult, error) {
	return s.ask(ctx, input, nil)
}

// AskStream behaves like Ask but forwards answer chunks to onChunk as they arrive.
func (s *DocumentChatService) AskStream(ctx context.Context, input AskInput, onChunk func(string) error) (*AskResult, error) {
	if onChunk == nil {
		return nil, fmt.Errorf("%w: nil chunk handler", model.ErrInvalidInput)
	}
	return s.ask(ctx, input, onChunk)
}

func (s *DocumentChatService) ask(ctx context.Context, input AskInput, onChunk func(string) error) (*AskResult, error) {
	question := strings.TrimSpace(input.Question)
	if question == "" {
		return nil, fmt.Errorf("%w: question is empty", model.ErrInvalidInput)
	}
	sessionID, err := s.resolve(input.SessionToken)
	if err != nil {
		return nil, err
	}

	// held across read, call and append so concurrent questions in one
	// session see each other's turns
	unlock := s.locks.lock(sessionID)
	defer unlock()

	doc, err := s.store.Document(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	history, err := s.store.History(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	var answer string
	if onChunk != nil {
		answer, err = s.gateway.AskStream(ctx, doc.Text, history, question, onChunk)
	} else {
		answer, err = s.gateway.Ask(ctx, doc.Text, history, question)
	}
	if err != nil {
		if !errors.Is(err, model.ErrGateway) {
			err = fmt.Errorf("%w: %w", model.ErrGateway, err)
		}
		s.logger.Warn("gateway call failed",
			zap.String("session_id", sessionID),
			zap.Int("history_len", len(history)),
			zap.Error(err),
		)
		return nil, err
	}

	turn, err := s.store.AppendTurn(ctx, sessionID, question, answer)
	if err != nil {
		return nil, err
	}
	s.publish(ctx, doc, turn)

	return &AskResult{
		SessionID: sessionID,
		Answer:    answer,
		Turn:      turn,
	}, nil
}

func (s *DocumentChatService) History(ctx context.Context, sessionToken string) (*HistoryResult, error) {
	sessionID, err := s.resolve(sessionToken)
	if err != nil {
		return nil, err
	}
	doc, err := s.store.Document(ctx, sessionID)
	if err != nil && !errors.Is(err, model.ErrNoDocument) {
		return nil, err
	}
	turns, err := s.store.History(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	return &HistoryResult{SessionID: sessionID, Document: doc, Turns: turns}, nil
}

// Reset forgets the session, its document and its history.
func (s *DocumentChatService) Reset(ctx context.Context, sessionToken string) error {
	sessionID, err := s.resolve(sessionToken)
	if err != nil {
		return err
	}
	unlock := s.locks.lock(sessionID)
	defer unlock()
	if err := s.store.DeleteSession(ctx, sessionID); err != nil {
		return err
	}
	s.logger.Info("session reset", zap.String("session_id", sessionID))
	return nil
}

func (s *DocumentChatService) resolve(token string) (string, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return "", fmt.Errorf("%w: missing session token", model.ErrSessionNotFound)
	}
	sessionID, err := s.tokens.Parse(token)
	if err != nil {
		return "", fmt.Errorf("%w: %v", model.ErrSessionNotFound, err)
	}
	return sessionID, nil
}

func (s *DocumentChatService) publish(ctx context.Context, doc *model.Document, turn *model.Turn) {
	if s.publisher == nil {
		return
	}
	event := model.TurnEvent{
		SessionID:   doc.SessionID,
		Filename:    doc.Filename,
		Fingerprint: doc.Fingerprint,
		Index:       turn.Index,
		Question:    turn.Question,
		Answer:      turn.Answer,
		CreatedAt:   turn.CreatedAt,
	}
	if err := s.publisher.Publish(ctx, event); err != nil {
		s.logger.Warn("publish turn failed",
			zap.String("session_id", doc.SessionID),
			zap.Int("index", turn.Index),
			zap.Error(err),
		)
	}
}
