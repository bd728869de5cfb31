// Package api exposes the room discovery queries over HTTP.
package api

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/pier0x/bottel/internal/v1/registry"
)

// Handler serves the discovery endpoints on top of the registry.
type Handler struct {
	registry *registry.Registry
}

// NewHandler wires the discovery endpoints.
func NewHandler(reg *registry.Registry) *Handler {
	return &Handler{registry: reg}
}

// Register mounts the discovery routes on the group.
func (h *Handler) Register(group *gin.RouterGroup) {
	group.GET("/rooms/active", h.ActiveRooms)
	group.GET("/rooms/watched", h.MostWatchedRooms)
	group.GET("/rooms/search", h.SearchRooms)
}

// ActiveRooms lists the canonical room and every occupied room.
func (h *Handler) ActiveRooms(c *gin.Context) {
	rooms, err := h.registry.ActiveRooms(c.Request.Context())
	if err != nil {
		slog.Error("active rooms query failed", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "discovery unavailable"})
		return
	}
	if rooms == nil {
		rooms = []registry.RoomSummary{}
	}
	c.JSON(http.StatusOK, gin.H{"rooms": rooms})
}

// MostWatchedRooms lists rooms ordered by spectator count.
func (h *Handler) MostWatchedRooms(c *gin.Context) {
	rooms := h.registry.MostWatchedRooms()
	if rooms == nil {
		rooms = []registry.RoomSummary{}
	}
	c.JSON(http.StatusOK, gin.H{"rooms": rooms})
}

// SearchRooms matches public room names and owner usernames.
func (h *Handler) SearchRooms(c *gin.Context) {
	query := c.Query("q")
	if query == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing query parameter q"})
		return
	}

	rooms, err := h.registry.Search(c.Request.Context(), query)
	if err != nil {
		slog.Error("room search failed", "query", query, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "discovery unavailable"})
		return
	}
	if rooms == nil {
		rooms = []registry.RoomSummary{}
	}
	c.JSON(http.StatusOK, gin.H{"rooms": rooms})
}
