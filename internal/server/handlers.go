package server

import (
	"github.com/gofiber/fiber/v2"

	"collab-backend/internal/model"
)

type tokenRequest struct {
	ClassroomSlug string `json:"classroomSlug"`
	SessionID     string `json:"sessionId"`
	Kind          string `json:"kind"`
	DisplayName   string `json:"displayName"`
	AvatarRef     string `json:"avatarRef"`
	Role          string `json:"role"`
}

func (s *Server) handleHealth(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"status": "ok",
		"rooms":  s.hub.RoomCount(),
	})
}

// handleIssueToken mints a join token for one room. The identity in
// the token is what the websocket edge will trust; clients never pick
// their own connection id.
func (s *Server) handleIssueToken(c *fiber.Ctx) error {
	var req tokenRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "invalid request body",
		})
	}

	kind := model.RoomKind(req.Kind)
	if !kind.Valid() {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "kind must be \"whiteboard\" or \"chat\"",
		})
	}
	if req.ClassroomSlug == "" || req.SessionID == "" || req.DisplayName == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "classroomSlug, sessionId and displayName are required",
		})
	}
	role := model.Role(req.Role)
	if role != model.RoleStudent && role != model.RoleTutor && role != model.RoleOwner {
		role = model.RoleStudent
	}

	roomKey := model.RoomKey(req.ClassroomSlug, req.SessionID, kind)
	token, err := s.tokens.Issue(roomKey, req.DisplayName, req.AvatarRef, role)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "failed to issue token",
		})
	}

	return c.JSON(fiber.Map{
		"roomKey": roomKey,
		"token":   token,
	})
}

// handleHistory serves the archived chat log of a room, oldest first.
func (s *Server) handleHistory(c *fiber.Ctx) error {
	if s.archiver == nil {
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
			"error": "archive is not configured",
		})
	}

	roomKey := c.Params("roomKey")
	limit := c.QueryInt("limit", 0)

	entries, err := s.archiver.History(c.Context(), roomKey, limit)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "failed to load history",
		})
	}

	return c.JSON(fiber.Map{
		"roomKey": roomKey,
		"entries": entries,
	})
}
