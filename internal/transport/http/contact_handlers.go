package http

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/wiremsg-server/internal/service/contacts"
)

// ContactHandlers provides HTTP handlers for contact lists.
type ContactHandlers struct {
	service *contacts.Service
	log     *zerolog.Logger
}

// NewContactHandlers creates a new contact handlers instance.
func NewContactHandlers(svc *contacts.Service, logger *zerolog.Logger) *ContactHandlers {
	return &ContactHandlers{service: svc, log: logger}
}

// AddContactRequest is the body of POST /api/contacts.
type AddContactRequest struct {
	Contact string `json:"contact" binding:"required"`
}

// List returns the caller's contacts.
// GET /api/contacts
func (h *ContactHandlers) List(c *gin.Context) {
	username, ok := currentUser(c)
	if !ok {
		return
	}

	list, err := h.service.List(c.Request.Context(), username)
	if err != nil {
		h.log.Error().Err(err).Str("username", username).Msg("failed to list contacts")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
		return
	}

	c.JSON(http.StatusOK, list)
}

// Add puts a user into the caller's contacts.
// POST /api/contacts
func (h *ContactHandlers) Add(c *gin.Context) {
	username, ok := currentUser(c)
	if !ok {
		return
	}

	var req AddContactRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.log.Debug().Err(err).Msg("invalid add contact request")
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
		return
	}

	if err := h.service.Add(c.Request.Context(), username, req.Contact); err != nil {
		switch {
		case errors.Is(err, contacts.ErrCannotAddSelf):
			c.JSON(http.StatusBadRequest, ErrorResponse{Error: "cannot add yourself as a contact"})
		case errors.Is(err, contacts.ErrUserNotFound):
			c.JSON(http.StatusNotFound, ErrorResponse{Error: "user not found"})
		default:
			h.log.Error().Err(err).Str("username", username).Str("contact", req.Contact).Msg("failed to add contact")
			c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
		}
		return
	}

	c.JSON(http.StatusCreated, gin.H{"contact": req.Contact})
}

// Remove deletes a user from the caller's contacts.
// DELETE /api/contacts/:contact
func (h *ContactHandlers) Remove(c *gin.Context) {
	username, ok := currentUser(c)
	if !ok {
		return
	}

	contact := c.Param("contact")
	if err := h.service.Remove(c.Request.Context(), username, contact); err != nil {
		if errors.Is(err, contacts.ErrContactNotFound) {
			c.JSON(http.StatusNotFound, ErrorResponse{Error: "contact not found"})
			return
		}
		h.log.Error().Err(err).Str("username", username).Str("contact", contact).Msg("failed to remove contact")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
		return
	}

	c.Status(http.StatusNoContent)
}
