package http

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/wiresync-server/internal/core"
)

// RoomHandlers exposes room ids and read-only views of the hub.
type RoomHandlers struct {
	hub *core.Hub
	log *zerolog.Logger
}

// NewRoomHandlers creates a new room handlers instance.
func NewRoomHandlers(hub *core.Hub, logger *zerolog.Logger) *RoomHandlers {
	return &RoomHandlers{
		hub: hub,
		log: logger,
	}
}

// ErrorResponse represents an error response body.
type ErrorResponse struct {
	Error string `json:"error"`
}

// NewRoomResponse carries a freshly generated, shareable room id.
type NewRoomResponse struct {
	Room string `json:"room"`
}

// MemberResponse is one roster entry.
type MemberResponse struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// RoomResponse is a roster snapshot.
type RoomResponse struct {
	Room    string           `json:"room"`
	Members []MemberResponse `json:"members"`
}

// CreateRoom hands out a new room id. Nothing is stored: the room comes into being on first join.
// POST /api/rooms
func (h *RoomHandlers) CreateRoom(c *gin.Context) {
	room := uuid.NewString()
	h.log.Debug().Str("room", room).Msg("room id issued")
	c.JSON(http.StatusCreated, NewRoomResponse{Room: room})
}

// GetRoom returns the current roster of a room.
// GET /api/rooms/:room
func (h *RoomHandlers) GetRoom(c *gin.Context) {
	room := c.Param("room")

	roster, err := h.hub.Roster(c.Request.Context(), room)
	if err != nil {
		h.log.Error().Err(err).Str("room", room).Msg("failed to read roster")
		c.JSON(http.StatusServiceUnavailable, ErrorResponse{Error: "hub unavailable"})
		return
	}
	if len(roster) == 0 {
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "room is empty"})
		return
	}

	members := make([]MemberResponse, 0, len(roster))
	for _, m := range roster {
		members = append(members, MemberResponse{ID: m.ID, Name: m.Name})
	}
	c.JSON(http.StatusOK, RoomResponse{Room: room, Members: members})
}

// Stats reports live room and connection counts.
// GET /api/stats
func (h *RoomHandlers) Stats(c *gin.Context) {
	stats, err := h.hub.Stats(c.Request.Context())
	if err != nil {
		h.log.Error().Err(err).Msg("failed to read stats")
		c.JSON(http.StatusServiceUnavailable, ErrorResponse{Error: "hub unavailable"})
		return
	}
	c.JSON(http.StatusOK, stats)
}
