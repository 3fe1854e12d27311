package http

import (
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"dmchat/internal/domain"
	"dmchat/internal/repository"
	"dmchat/internal/service"
)

// MessageHandler expone mensajes y conversaciones. Todas las respuestas usan
// el sobre {"success": bool, ...}.
type MessageHandler struct {
	logger        *zap.Logger
	messages      *service.MessageService
	conversations *service.ConversationService
}

func NewMessageHandler(logger *zap.Logger, messages *service.MessageService, conversations *service.ConversationService) *MessageHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &MessageHandler{
		logger:        logger,
		messages:      messages,
		conversations: conversations,
	}
}

// Conversations maneja GET /messages/conversations.
func (h *MessageHandler) Conversations(c *gin.Context) {
	c.JSON(http.StatusOK, h.conversations.Recent(c.Request.Context(), currentUserID(c)))
}

// History maneja GET /messages/history/:partnerId. Marca como leído.
func (h *MessageHandler) History(c *gin.Context) {
	entries, err := h.messages.History(c.Request.Context(), currentUserID(c), c.Param("partnerId"))
	if err != nil {
		c.JSON(http.StatusOK, gin.H{"success": false, "messages": []domain.HistoryEntry{}})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "messages": entries})
}

// Send maneja POST /messages, como multipart (receiverId, content, image)
// o como JSON.
func (h *MessageHandler) Send(c *gin.Context) {
	in, err := h.bindSend(c)
	if err != nil {
		h.logger.Warn("invalid send request", zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "invalid request"})
		return
	}
	in.SenderID = currentUserID(c)

	view, err := h.messages.Send(c.Request.Context(), in)
	c.JSON(http.StatusOK, service.NewSendResult(view, err))
}

func (h *MessageHandler) bindSend(c *gin.Context) (service.SendInput, error) {
	if strings.HasPrefix(c.ContentType(), "multipart/") {
		in := service.SendInput{
			ReceiverID: c.PostForm("receiverId"),
			Content:    c.PostForm("content"),
		}
		fh, err := c.FormFile("image")
		if errors.Is(err, http.ErrMissingFile) {
			return in, nil
		}
		if err != nil {
			return in, err
		}
		f, err := fh.Open()
		if err != nil {
			return in, err
		}
		defer f.Close()
		// Un byte de más alcanza para detectar que excede el límite.
		data, err := io.ReadAll(io.LimitReader(f, service.MaxAttachmentBytes+1))
		if err != nil {
			return in, err
		}
		in.Attachment = &service.Attachment{
			Name:        fh.Filename,
			ContentType: fh.Header.Get("Content-Type"),
			Data:        data,
		}
		return in, nil
	}

	var req struct {
		ReceiverID string `json:"receiverId" binding:"required"`
		Content    string `json:"content"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		return service.SendInput{}, err
	}
	return service.SendInput{ReceiverID: req.ReceiverID, Content: req.Content}, nil
}

// Typing maneja POST /messages/typing.
func (h *MessageHandler) Typing(c *gin.Context) {
	var req struct {
		ReceiverID string `json:"receiverId" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "invalid request"})
		return
	}
	delivered, err := h.messages.SignalTyping(currentUserID(c), req.ReceiverID)
	if err != nil {
		c.JSON(http.StatusOK, gin.H{"success": false, "error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "delivered": delivered})
}

// Delete maneja DELETE /messages/:id. Solo el emisor puede borrar.
func (h *MessageHandler) Delete(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "invalid message id"})
		return
	}
	if err := h.messages.Delete(c.Request.Context(), currentUserID(c), id); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"success": false, "error": "message not found"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"success": false, "error": "could not delete message"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

// Unread maneja GET /messages/unread.
func (h *MessageHandler) Unread(c *gin.Context) {
	n, err := h.messages.UnreadTotal(c.Request.Context(), currentUserID(c))
	if err != nil {
		c.JSON(http.StatusOK, gin.H{"success": false, "count": 0})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "count": n})
}

// Partner maneja GET /messages/partners/:id.
func (h *MessageHandler) Partner(c *gin.Context) {
	header, err := h.conversations.PartnerHeader(c.Request.Context(), currentUserID(c), c.Param("id"))
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"success": false, "error": "user not found"})
			return
		}
		h.logger.Error("partner header failed", zap.Error(err))
		c.JSON(http.StatusOK, gin.H{"success": false})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "partner": header})
}
