package http

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/kupantip/chat-server/internal/store"
)

// RoomResponse is a room summary rendered for the requesting user.
type RoomResponse struct {
	ID            string           `json:"id"`
	Name          string           `json:"name"`
	IsGroup       bool             `json:"is_group"`
	Members       []MemberResponse `json:"members"`
	LastMessage   *string          `json:"last_message,omitempty"`
	LastMessageAt *time.Time       `json:"last_message_at,omitempty"`
	UnreadCount   int              `json:"unread_count"`
}

// MemberResponse is a room participant.
type MemberResponse struct {
	ID          int64  `json:"id"`
	Handle      string `json:"handle"`
	DisplayName string `json:"display_name"`
}

// MessageResponse is a stored message.
type MessageResponse struct {
	ID                string    `json:"id"`
	RoomID            string    `json:"room_id"`
	SenderID          int64     `json:"sender_id"`
	SenderHandle      string    `json:"sender_handle"`
	SenderDisplayName string    `json:"sender_display_name"`
	Content           string    `json:"content"`
	CreatedAt         time.Time `json:"created_at"`
}

// CreateRoomRequest is the body for POST /chat/rooms.
type CreateRoomRequest struct {
	Name           string  `json:"name"`
	IsGroup        *bool   `json:"is_group,omitempty"`
	ParticipantIDs []int64 `json:"participant_ids"`
}

// CreateDirectRoomRequest is the body for POST /chat/rooms/direct.
type CreateDirectRoomRequest struct {
	RecipientID int64 `json:"recipient_id"`
}

// RenameRoomRequest is the body for PATCH /chat/rooms/:id.
type RenameRoomRequest struct {
	Name string `json:"name"`
}

const maxHistoryPage = 200

func (s *Server) handleListRooms(c *gin.Context) {
	userID := currentUserID(c)

	summaries, err := s.store.ListRoomSummaries(c.Request.Context(), userID)
	if err != nil {
		s.log.Error().Err(err).Int64("user_id", userID).Msg("list rooms failed")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Code: "internal", Msg: "could not list rooms"})
		return
	}

	rooms := make([]RoomResponse, 0, len(summaries))
	for _, summary := range summaries {
		rooms = append(rooms, roomResponse(summary, userID))
	}
	c.JSON(http.StatusOK, rooms)
}

func (s *Server) handleCreateRoom(c *gin.Context) {
	userID := currentUserID(c)

	var req CreateRoomRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Name == "" {
		c.JSON(http.StatusBadRequest, ErrorResponse{Code: "bad_request", Msg: "room name is required"})
		return
	}
	if req.IsGroup != nil && !*req.IsGroup {
		c.JSON(http.StatusBadRequest, ErrorResponse{Code: "bad_request", Msg: "use /chat/rooms/direct for direct chats"})
		return
	}

	room, err := s.store.CreateRoom(c.Request.Context(), req.Name, userID, req.ParticipantIDs)
	if err != nil {
		s.log.Error().Err(err).Msg("create room failed")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Code: "internal", Msg: "could not create room"})
		return
	}

	s.respondRoomSummary(c, http.StatusCreated, room.ID, userID)
}

func (s *Server) handleCreateDirectRoom(c *gin.Context) {
	userID := currentUserID(c)

	var req CreateDirectRoomRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.RecipientID == 0 {
		c.JSON(http.StatusBadRequest, ErrorResponse{Code: "bad_request", Msg: "user_id is required"})
		return
	}
	if req.RecipientID == userID {
		c.JSON(http.StatusBadRequest, ErrorResponse{Code: "bad_request", Msg: "cannot open a direct chat with yourself"})
		return
	}

	if _, err := s.store.GetUserByID(c.Request.Context(), req.RecipientID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			c.JSON(http.StatusNotFound, ErrorResponse{Code: "user_not_found", Msg: "no such user"})
			return
		}
		s.log.Error().Err(err).Msg("direct room user lookup failed")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Code: "internal", Msg: "could not open direct chat"})
		return
	}

	room, err := s.store.CreateDirectRoom(c.Request.Context(), directKey(userID, req.RecipientID), userID, req.RecipientID)
	if err != nil {
		s.log.Error().Err(err).Msg("create direct room failed")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Code: "internal", Msg: "could not open direct chat"})
		return
	}

	s.respondRoomSummary(c, http.StatusOK, room.ID, userID)
}

func (s *Server) handleGetRoom(c *gin.Context) {
	userID := currentUserID(c)
	roomID, ok := s.roomIDParam(c)
	if !ok {
		return
	}
	if !s.requireMember(c, userID, roomID) {
		return
	}

	s.respondRoomSummary(c, http.StatusOK, roomID, userID)
}

func (s *Server) handleRenameRoom(c *gin.Context) {
	userID := currentUserID(c)
	roomID, ok := s.roomIDParam(c)
	if !ok {
		return
	}

	var req RenameRoomRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Name == "" {
		c.JSON(http.StatusBadRequest, ErrorResponse{Code: "bad_request", Msg: "room name is required"})
		return
	}
	if !s.requireMember(c, userID, roomID) {
		return
	}

	room, err := s.store.GetRoomByID(c.Request.Context(), roomID)
	if err != nil {
		s.respondStoreError(c, err, "load room failed")
		return
	}
	if !room.IsGroup {
		c.JSON(http.StatusBadRequest, ErrorResponse{Code: "bad_request", Msg: "direct chats cannot be renamed"})
		return
	}

	if err := s.store.RenameRoom(c.Request.Context(), roomID, req.Name); err != nil {
		s.respondStoreError(c, err, "rename room failed")
		return
	}

	s.respondRoomSummary(c, http.StatusOK, roomID, userID)
}

func (s *Server) handleListMessages(c *gin.Context) {
	userID := currentUserID(c)
	roomID, ok := s.roomIDParam(c)
	if !ok {
		return
	}
	if !s.requireMember(c, userID, roomID) {
		return
	}

	limit := s.cfg.HistoryLimit
	if raw := c.Query("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			c.JSON(http.StatusBadRequest, ErrorResponse{Code: "bad_request", Msg: "invalid limit"})
			return
		}
		limit = min(parsed, maxHistoryPage)
	}

	var beforeID *int64
	if raw := c.Query("before_id"); raw != "" {
		parsed, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			c.JSON(http.StatusBadRequest, ErrorResponse{Code: "bad_request", Msg: "invalid before_id"})
			return
		}
		beforeID = &parsed
	}

	records, err := s.store.ListMessages(c.Request.Context(), roomID, limit, beforeID)
	if err != nil {
		s.respondStoreError(c, err, "list messages failed")
		return
	}

	messages := make([]MessageResponse, 0, len(records))
	for _, rec := range records {
		messages = append(messages, MessageResponse{
			ID:                strconv.FormatInt(rec.ID, 10),
			RoomID:            strconv.FormatInt(rec.RoomID, 10),
			SenderID:          rec.SenderID,
			SenderHandle:      rec.SenderHandle,
			SenderDisplayName: rec.SenderDisplayName,
			Content:           rec.Content,
			CreatedAt:         rec.CreatedAt,
		})
	}
	c.JSON(http.StatusOK, messages)
}

func (s *Server) handleMarkRead(c *gin.Context) {
	userID := currentUserID(c)
	roomID, ok := s.roomIDParam(c)
	if !ok {
		return
	}
	if !s.requireMember(c, userID, roomID) {
		return
	}

	if err := s.store.MarkRead(c.Request.Context(), userID, roomID); err != nil {
		s.respondStoreError(c, err, "mark read failed")
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) roomIDParam(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusNotFound, ErrorResponse{Code: "room_not_found", Msg: "no such room"})
		return 0, false
	}
	return id, true
}

func (s *Server) requireMember(c *gin.Context, userID, roomID int64) bool {
	member, err := s.store.IsMember(c.Request.Context(), userID, roomID)
	if err != nil {
		s.log.Error().Err(err).Int64("room_id", roomID).Msg("membership check failed")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Code: "internal", Msg: "membership check failed"})
		return false
	}
	if !member {
		c.JSON(http.StatusNotFound, ErrorResponse{Code: "room_not_found", Msg: "no such room"})
		return false
	}
	return true
}

// respondRoomSummary renders one room as it appears in the list view.
func (s *Server) respondRoomSummary(c *gin.Context, status int, roomID, userID int64) {
	summaries, err := s.store.ListRoomSummaries(c.Request.Context(), userID)
	if err != nil {
		s.log.Error().Err(err).Int64("room_id", roomID).Msg("load room summary failed")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Code: "internal", Msg: "could not load room"})
		return
	}
	for _, summary := range summaries {
		if summary.ID == roomID {
			c.JSON(status, roomResponse(summary, userID))
			return
		}
	}
	c.JSON(http.StatusNotFound, ErrorResponse{Code: "room_not_found", Msg: "no such room"})
}

func (s *Server) respondStoreError(c *gin.Context, err error, logMsg string) {
	if errors.Is(err, store.ErrNotFound) {
		c.JSON(http.StatusNotFound, ErrorResponse{Code: "room_not_found", Msg: "no such room"})
		return
	}
	s.log.Error().Err(err).Msg(logMsg)
	c.JSON(http.StatusInternalServerError, ErrorResponse{Code: "internal", Msg: "internal error"})
}

func roomResponse(summary *store.RoomSummary, viewerID int64) RoomResponse {
	members := make([]MemberResponse, 0, len(summary.Members))
	for _, m := range summary.Members {
		members = append(members, MemberResponse{ID: m.UserID, Handle: m.Handle, DisplayName: m.DisplayName})
	}

	name := summary.Name
	if !summary.IsGroup {
		// Direct rooms carry no name of their own; show the other side.
		for _, m := range summary.Members {
			if m.UserID != viewerID {
				name = m.DisplayName
				break
			}
		}
	}

	return RoomResponse{
		ID:            strconv.FormatInt(summary.ID, 10),
		Name:          name,
		IsGroup:       summary.IsGroup,
		Members:       members,
		LastMessage:   summary.LastMessage,
		LastMessageAt: summary.LastMessageAt,
		UnreadCount:   summary.UnreadCount,
	}
}

func directKey(a, b int64) string {
	if a > b {
		a, b = b, a
	}
	return fmt.Sprintf("dm:%d:%d", a, b)
}
