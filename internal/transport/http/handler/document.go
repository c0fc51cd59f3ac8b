package handler

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"gopherai-docchat/internal/app"
	"gopherai-docchat/internal/model"
	"gopherai-docchat/internal/transport/http/response"
)

const SessionTokenHeader = "X-Session-Token"

// multipart framing on top of the file itself
const multipartOverhead = 1 << 20

type DocumentHandler struct {
	chat      *app.DocumentChatService
	maxUpload int64
	logger    *zap.Logger
}

type AskRequest struct {
	SessionToken string `json:"session_token" form:"session_token"`
	Question     string `json:"question" form:"question"`
}

type ResetRequest struct {
	SessionToken string `json:"session_token" form:"session_token"`
}

type UploadResponse struct {
	SessionToken string `json:"session_token"`
	SessionID    string `json:"session_id"`
	Filename     string `json:"filename"`
	Pages        int    `json:"pages"`
	Characters   int    `json:"characters"`
	Fingerprint  string `json:"fingerprint"`
}

func NewDocumentHandler(chat *app.DocumentChatService, maxUpload int64, logger *zap.Logger) *DocumentHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DocumentHandler{chat: chat, maxUpload: maxUpload, logger: logger}
}

func (h *DocumentHandler) Upload(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.maxUpload+multipartOverhead)

	fileHeader, err := c.FormFile("pdf")
	if errors.Is(err, http.ErrMissingFile) {
		fileHeader, err = c.FormFile("file")
	}
	if err != nil {
		var tooLarge *http.MaxBytesError
		switch {
		case errors.As(err, &tooLarge):
			h.tooLarge(c)
		case errors.Is(err, http.ErrMissingFile):
			response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "please upload a pdf file")
		default:
			response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "invalid multipart payload")
		}
		return
	}
	if fileHeader.Size > h.maxUpload {
		h.tooLarge(c)
		return
	}

	file, err := fileHeader.Open()
	if err != nil {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "open uploaded file failed")
		return
	}
	defer file.Close()

	result, err := h.chat.Upload(c.Request.Context(), app.UploadInput{
		Filename:     fileHeader.Filename,
		Content:      file,
		SessionToken: sessionToken(c, c.PostForm("session_token")),
	})
	if err != nil {
		h.writeError(c, err)
		return
	}

	response.OK(c, UploadResponse{
		SessionToken: result.SessionToken,
		SessionID:    result.SessionID,
		Filename:     result.Document.Filename,
		Pages:        result.Document.Pages,
		Characters:   result.Characters,
		Fingerprint:  result.Document.Fingerprint,
	})
}

func (h *DocumentHandler) Ask(c *gin.Context) {
	var req AskRequest
	if err := c.ShouldBind(&req); err != nil {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "invalid request payload")
		return
	}

	result, err := h.chat.Ask(c.Request.Context(), app.AskInput{
		SessionToken: sessionToken(c, req.SessionToken),
		Question:     req.Question,
	})
	if err != nil {
		h.writeError(c, err)
		return
	}
	response.OK(c, result)
}

// AskStream answers over Server-Sent Events. Unnamed events carry answer
// chunks; the stream ends with a "done" event holding the stored turn or an
// "error" event. Failures before the first chunk use the JSON envelope.
func (h *DocumentHandler) AskStream(c *gin.Context) {
	var req AskRequest
	if err := c.ShouldBind(&req); err != nil {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "invalid request payload")
		return
	}

	ctx := c.Request.Context()
	started := false
	start := func() {
		if started {
			return
		}
		started = true
		c.Header("Content-Type", "text/event-stream")
		c.Header("Cache-Control", "no-cache")
		c.Header("Connection", "keep-alive")
		c.Header("X-Accel-Buffering", "no")
		c.Status(http.StatusOK)
	}

	result, err := h.chat.AskStream(ctx, app.AskInput{
		SessionToken: sessionToken(c, req.SessionToken),
		Question:     req.Question,
	}, func(chunk string) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		start()
		c.SSEvent("", chunk)
		c.Writer.Flush()
		return nil
	})

	if err != nil {
		if !started {
			h.writeError(c, err)
			return
		}
		status, code, message := classify(err)
		h.logFailure(status, err)
		c.SSEvent("error", gin.H{"code": code, "message": message})
		c.Writer.Flush()
		return
	}

	start()
	c.SSEvent("done", result)
	c.Writer.Flush()
}

func (h *DocumentHandler) History(c *gin.Context) {
	result, err := h.chat.History(c.Request.Context(), sessionToken(c, ""))
	if err != nil {
		h.writeError(c, err)
		return
	}
	response.OK(c, result)
}

func (h *DocumentHandler) Reset(c *gin.Context) {
	var req ResetRequest
	if err := c.ShouldBind(&req); err != nil {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "invalid request payload")
		return
	}
	if err := h.chat.Reset(c.Request.Context(), sessionToken(c, req.SessionToken)); err != nil {
		h.writeError(c, err)
		return
	}
	response.OK(c, gin.H{"reset": true})
}

func (h *DocumentHandler) tooLarge(c *gin.Context) {
	response.Error(c, http.StatusRequestEntityTooLarge, response.CodePayloadTooLarge,
		fmt.Sprintf("file exceeds %d MB limit", h.maxUpload>>20))
}

func (h *DocumentHandler) writeError(c *gin.Context, err error) {
	status, code, message := classify(err)
	h.logFailure(status, err)
	response.Error(c, status, code, message)
}

func (h *DocumentHandler) logFailure(status int, err error) {
	if status >= http.StatusInternalServerError {
		h.logger.Error("request failed", zap.Int("status", status), zap.Error(err))
	}
}

func classify(err error) (status, code int, message string) {
	switch {
	case errors.Is(err, model.ErrInvalidInput):
		return http.StatusBadRequest, response.CodeBadRequest, userMessage(err, model.ErrInvalidInput)
	case errors.Is(err, model.ErrExtraction):
		return http.StatusUnprocessableEntity, response.CodeExtractionFailed, userMessage(err, model.ErrExtraction)
	case errors.Is(err, model.ErrSessionNotFound):
		return http.StatusNotFound, response.CodeSessionNotFound, "session not found, please upload a pdf first"
	case errors.Is(err, model.ErrNoDocument):
		return http.StatusConflict, response.CodeNoDocument, "please upload a pdf first"
	case errors.Is(err, model.ErrGateway):
		return http.StatusBadGateway, response.CodeGatewayFailed, "the ai service failed to answer, please try again"
	default:
		return http.StatusInternalServerError, response.CodeInternalServer, "internal server error"
	}
}

// userMessage strips the sentinel prefix so "invalid input: question is empty"
// reads as "question is empty".
func userMessage(err, sentinel error) string {
	msg := err.Error()
	if rest, ok := strings.CutPrefix(msg, sentinel.Error()+": "); ok {
		return rest
	}
	return msg
}

// sessionToken prefers an explicit body value, then the query string, then
// the X-Session-Token header.
func sessionToken(c *gin.Context, fromBody string) string {
	if token := strings.TrimSpace(fromBody); token != "" {
		return token
	}
	if token := strings.TrimSpace(c.Query("session_token")); token != "" {
		return token
	}
	return strings.TrimSpace(c.GetHeader(SessionTokenHeader))
}
