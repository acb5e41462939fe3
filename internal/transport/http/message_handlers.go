package http

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/wiremsg-server/internal/proto"
	"github.com/vovakirdan/wiremsg-server/internal/service/groups"
	"github.com/vovakirdan/wiremsg-server/internal/service/messaging"
)

// MessageHandlers provides HTTP handlers for direct messages.
type MessageHandlers struct {
	service *messaging.Service
	log     *zerolog.Logger
}

// NewMessageHandlers creates a new message handlers instance.
func NewMessageHandlers(svc *messaging.Service, logger *zerolog.Logger) *MessageHandlers {
	return &MessageHandlers{service: svc, log: logger}
}

// SendDirectRequest is the body of POST /api/messages.
type SendDirectRequest struct {
	Receiver string `json:"receiver" binding:"required"`
	Text     string `json:"text" binding:"required"`
}

// Send stores a direct message and schedules its live push.
// POST /api/messages
func (h *MessageHandlers) Send(c *gin.Context) {
	username, ok := currentUser(c)
	if !ok {
		return
	}

	var req SendDirectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.log.Debug().Err(err).Msg("invalid send message request")
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
		return
	}

	msg, err := h.service.SendDirect(c.Request.Context(), username, req.Receiver, req.Text)
	if err != nil {
		writeSendError(c, h.log, err)
		return
	}

	c.JSON(http.StatusCreated, proto.FromStore(msg))
}

// History returns the conversation between the caller and :peer, oldest first.
// GET /api/messages/:peer?limit=&before=
func (h *MessageHandlers) History(c *gin.Context) {
	username, ok := currentUser(c)
	if !ok {
		return
	}
	q, ok := bindHistoryQuery(c)
	if !ok {
		return
	}

	peer := c.Param("peer")
	msgs, err := h.service.DirectHistory(c.Request.Context(), username, peer, q.Limit, q.Before)
	if err != nil {
		h.log.Error().Err(err).Str("username", username).Str("peer", peer).Msg("failed to load history")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
		return
	}

	c.JSON(http.StatusOK, proto.FromStoreList(msgs))
}

// writeSendError maps ingestion errors onto status codes shared by direct and group sends.
func writeSendError(c *gin.Context, logger *zerolog.Logger, err error) {
	switch {
	case errors.Is(err, messaging.ErrEmptyText), errors.Is(err, messaging.ErrInvalidText):
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error()})
	case errors.Is(err, messaging.ErrTextTooLong):
		c.JSON(http.StatusRequestEntityTooLarge, ErrorResponse{Error: err.Error()})
	case errors.Is(err, messaging.ErrUserNotFound):
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "receiver not found"})
	case errors.Is(err, groups.ErrGroupNotFound):
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "group not found"})
	case errors.Is(err, groups.ErrNotMember):
		c.JSON(http.StatusForbidden, ErrorResponse{Error: "not a member of this group"})
	default:
		logger.Error().Err(err).Msg("failed to store message")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "failed to store message"})
	}
}
