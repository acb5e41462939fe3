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

// GroupHandlers provides HTTP handlers for groups, their rosters and messages.
type GroupHandlers struct {
	groups    *groups.Service
	messaging *messaging.Service
	log       *zerolog.Logger
}

// NewGroupHandlers creates a new group handlers instance.
func NewGroupHandlers(groupSvc *groups.Service, messagingSvc *messaging.Service, logger *zerolog.Logger) *GroupHandlers {
	return &GroupHandlers{
		groups:    groupSvc,
		messaging: messagingSvc,
		log:       logger,
	}
}

// CreateGroupRequest is the body of POST /api/groups.
type CreateGroupRequest struct {
	Name    string   `json:"name" binding:"required"`
	Members []string `json:"members"`
}

// AddMemberRequest is the body of POST /api/groups/:id/members.
type AddMemberRequest struct {
	Username string `json:"username" binding:"required"`
}

// SendGroupRequest is the body of POST /api/groups/:id/messages.
type SendGroupRequest struct {
	Text string `json:"text" binding:"required"`
}

// Create handles group creation. The caller is always a member.
// POST /api/groups
func (h *GroupHandlers) Create(c *gin.Context) {
	username, ok := currentUser(c)
	if !ok {
		return
	}

	var req CreateGroupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.log.Debug().Err(err).Msg("invalid create group request")
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
		return
	}

	group, err := h.groups.Create(c.Request.Context(), req.Name, username, req.Members)
	if err != nil {
		switch {
		case errors.Is(err, groups.ErrInvalidName):
			c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error()})
		case errors.Is(err, groups.ErrNameTaken):
			c.JSON(http.StatusConflict, ErrorResponse{Error: "group already exists"})
		case errors.Is(err, groups.ErrUserNotFound):
			c.JSON(http.StatusNotFound, ErrorResponse{Error: "member not found"})
		default:
			h.log.Error().Err(err).Str("username", username).Str("name", req.Name).Msg("failed to create group")
			c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
		}
		return
	}

	h.log.Info().Int64("group_id", group.ID).Str("creator", username).Msg("group created")
	c.JSON(http.StatusCreated, groupToResponse(group))
}

// List returns the groups the caller belongs to.
// GET /api/groups
func (h *GroupHandlers) List(c *gin.Context) {
	username, ok := currentUser(c)
	if !ok {
		return
	}

	list, err := h.groups.ListForUser(c.Request.Context(), username)
	if err != nil {
		h.log.Error().Err(err).Str("username", username).Msg("failed to list groups")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
		return
	}

	c.JSON(http.StatusOK, groupsToResponse(list))
}

// Members returns the group roster.
// GET /api/groups/:id/members
func (h *GroupHandlers) Members(c *gin.Context) {
	username, ok := currentUser(c)
	if !ok {
		return
	}
	groupID, ok := parseGroupID(c)
	if !ok {
		return
	}

	members, err := h.groups.Members(c.Request.Context(), groupID, username)
	if err != nil {
		h.writeError(c, err, "failed to list members")
		return
	}

	c.JSON(http.StatusOK, members)
}

// AddMember adds a user to the group.
// POST /api/groups/:id/members
func (h *GroupHandlers) AddMember(c *gin.Context) {
	username, ok := currentUser(c)
	if !ok {
		return
	}
	groupID, ok := parseGroupID(c)
	if !ok {
		return
	}

	var req AddMemberRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.log.Debug().Err(err).Msg("invalid add member request")
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
		return
	}

	if err := h.groups.AddMember(c.Request.Context(), groupID, username, req.Username); err != nil {
		h.writeError(c, err, "failed to add member")
		return
	}

	h.log.Info().Int64("group_id", groupID).Str("member", req.Username).Str("by", username).Msg("group member added")
	c.Status(http.StatusNoContent)
}

// RemoveMember removes a user from the group. Members may remove themselves.
// DELETE /api/groups/:id/members/:username
func (h *GroupHandlers) RemoveMember(c *gin.Context) {
	username, ok := currentUser(c)
	if !ok {
		return
	}
	groupID, ok := parseGroupID(c)
	if !ok {
		return
	}

	member := c.Param("username")
	if err := h.groups.RemoveMember(c.Request.Context(), groupID, username, member); err != nil {
		h.writeError(c, err, "failed to remove member")
		return
	}

	h.log.Info().Int64("group_id", groupID).Str("member", member).Str("by", username).Msg("group member removed")
	c.Status(http.StatusNoContent)
}

// Send stores a group message and schedules its fan-out.
// POST /api/groups/:id/messages
func (h *GroupHandlers) Send(c *gin.Context) {
	username, ok := currentUser(c)
	if !ok {
		return
	}
	groupID, ok := parseGroupID(c)
	if !ok {
		return
	}

	var req SendGroupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.log.Debug().Err(err).Msg("invalid send group message request")
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
		return
	}

	msg, err := h.messaging.SendGroup(c.Request.Context(), username, groupID, req.Text)
	if err != nil {
		writeSendError(c, h.log, err)
		return
	}

	c.JSON(http.StatusCreated, proto.FromStore(msg))
}

// History returns the group's messages, oldest first.
// GET /api/groups/:id/messages?limit=&before=
func (h *GroupHandlers) History(c *gin.Context) {
	username, ok := currentUser(c)
	if !ok {
		return
	}
	groupID, ok := parseGroupID(c)
	if !ok {
		return
	}
	q, ok := bindHistoryQuery(c)
	if !ok {
		return
	}

	msgs, err := h.messaging.GroupHistory(c.Request.Context(), username, groupID, q.Limit, q.Before)
	if err != nil {
		h.writeError(c, err, "failed to load group history")
		return
	}

	c.JSON(http.StatusOK, proto.FromStoreList(msgs))
}

func (h *GroupHandlers) writeError(c *gin.Context, err error, msg string) {
	switch {
	case errors.Is(err, groups.ErrGroupNotFound):
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "group not found"})
	case errors.Is(err, groups.ErrNotMember):
		c.JSON(http.StatusForbidden, ErrorResponse{Error: "not a member of this group"})
	case errors.Is(err, groups.ErrUserNotFound):
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "user not found"})
	default:
		h.log.Error().Err(err).Str("path", c.Request.URL.Path).Msg(msg)
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
	}
}
