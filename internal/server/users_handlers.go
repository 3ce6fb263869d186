package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type upsertRequestPayload struct {
	Email string `json:"email"`
	Name  string `json:"name"`
}

func (h *httpHandler) handleUsersUpsert(c *gin.Context) {
	uid := c.GetString(userIDContextKey)
	if uid == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	var request upsertRequestPayload
	if err := c.ShouldBindJSON(&request); err != nil && c.Request.ContentLength > 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}

	if err := h.usersService.Upsert(c.Request.Context(), uid, request.Email, request.Name); err != nil {
		h.logger.Error("user upsert failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "upsert_failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

func (h *httpHandler) handleUsersStats(c *gin.Context) {
	stats, err := h.usersService.GetStats(c.Request.Context())
	if err != nil {
		h.logger.Error("user stats failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "stats_failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"total": stats.Total, "last24h": stats.Last24h})
}

type userPayload struct {
	UID           string  `json:"uid"`
	Email         *string `json:"email"`
	Name          *string `json:"name"`
	Plan          string  `json:"plan"`
	CreatedDate   string  `json:"created_date"`
	LastLoginDate string  `json:"last_login_date"`
}

func (h *httpHandler) handleUsersList(c *gin.Context) {
	limit := parseLimit(c.Query("limit"))
	profiles, err := h.usersService.List(c.Request.Context(), limit)
	if err != nil {
		h.logger.Error("user list failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "list_failed"})
		return
	}

	payload := make([]userPayload, 0, len(profiles))
	for _, profile := range profiles {
		payload = append(payload, userPayload{
			UID:           profile.UID,
			Email:         profile.Email,
			Name:          profile.Name,
			Plan:          profile.Plan,
			CreatedDate:   profile.CreatedDate,
			LastLoginDate: profile.LastLoginDate,
		})
	}
	c.JSON(http.StatusOK, gin.H{"users": payload})
}
