package server

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/piclumo/backend/internal/gallery"
)

type tokenRequestPayload struct {
	IDToken string `json:"id_token"`
}

type tokenResponsePayload struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int64  `json:"expires_in"`
	TokenType   string `json:"token_type"`
}

func (h *httpHandler) handleTokenExchange(c *gin.Context) {
	var request tokenRequestPayload
	if err := c.ShouldBindJSON(&request); err != nil || strings.TrimSpace(request.IDToken) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}

	identity, err := h.verifier.Verify(c.Request.Context(), request.IDToken)
	if err != nil {
		h.logger.Warn("id token verification failed", zap.Error(err))
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	token, expiresIn, err := h.tokens.IssueToken(c.Request.Context(), identity)
	if err != nil {
		h.logger.Error("failed to issue backend token", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "token_issue_failed"})
		return
	}

	c.JSON(http.StatusOK, tokenResponsePayload{
		AccessToken: token,
		ExpiresIn:   expiresIn,
		TokenType:   "Bearer",
	})
}

type feedItemPayload struct {
	ID        string   `json:"id"`
	NID       string   `json:"nid"`
	ImageURL  string   `json:"image_url"`
	Prompt    *string  `json:"prompt"`
	Votes     int64    `json:"votes"`
	Rand      *float64 `json:"rand,omitempty"`
	CreatedAt string   `json:"created_at,omitempty"`
	UpdatedAt string   `json:"updated_at,omitempty"`
}

type feedResponsePayload struct {
	Items []feedItemPayload `json:"items"`
}

func feedPayload(items []gallery.Item, includeRand bool) feedResponsePayload {
	response := feedResponsePayload{Items: make([]feedItemPayload, 0, len(items))}
	for _, item := range items {
		payload := feedItemPayload{
			ID:        item.ID,
			NID:       item.NID,
			ImageURL:  item.ImageURL,
			Prompt:    item.Prompt,
			Votes:     item.Votes,
			CreatedAt: item.CreatedAt,
			UpdatedAt: item.UpdatedAt,
		}
		if includeRand {
			value := 0.0
			if item.Rand != nil {
				value = *item.Rand
			}
			payload.Rand = &value
		}
		response.Items = append(response.Items, payload)
	}
	return response
}

func (h *httpHandler) handleTopFeed(c *gin.Context) {
	limit := parseLimit(c.Query("limit"))
	items, err := h.galleryService.TopFeed(c.Request.Context(), limit)
	if err != nil {
		h.logger.Error("top feed failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "top_feed_failed"})
		return
	}
	c.JSON(http.StatusOK, feedPayload(items, false))
}

func (h *httpHandler) handleRandomFeed(c *gin.Context) {
	limit := parseLimit(c.Query("limit"))
	items, err := h.galleryService.RandomFeed(c.Request.Context(), limit)
	if err != nil {
		h.logger.Error("random feed failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "random_feed_failed"})
		return
	}
	c.JSON(http.StatusOK, feedPayload(items, true))
}

type votesResponsePayload struct {
	Votes     map[string]int64 `json:"votes"`
	UserVotes map[string]bool  `json:"userVotes"`
}

func (h *httpHandler) handleGetVotes(c *gin.Context) {
	uid, ok := h.requestUserID(c)
	if !ok {
		return
	}

	rawIDs := c.QueryArray("ids")
	externalIDs := make([]gallery.ExternalID, 0, len(rawIDs))
	for _, raw := range rawIDs {
		externalID, err := gallery.NewExternalID(raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
			return
		}
		externalIDs = append(externalIDs, externalID)
	}

	status, err := h.galleryService.GetVotes(c.Request.Context(), uid, externalIDs)
	if err != nil {
		h.logger.Error("vote lookup failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "votes_failed"})
		return
	}

	c.JSON(http.StatusOK, votesResponsePayload{Votes: status.Votes, UserVotes: status.UserVotes})
}

type voteRequestPayload struct {
	ID string `json:"id"`
}

func (h *httpHandler) handleCastVote(c *gin.Context) {
	uid, ok := h.requestUserID(c)
	if !ok {
		return
	}

	var request voteRequestPayload
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}
	externalID, err := gallery.NewExternalID(request.ID)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}

	err = h.galleryService.CastVote(c.Request.Context(), uid, externalID)
	if errors.Is(err, gallery.ErrAlreadyVoted) {
		c.JSON(http.StatusConflict, gin.H{"error": "already_voted"})
		return
	}
	if err != nil {
		h.logger.Error("vote failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "vote_failed"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"ok": true})
}

func (h *httpHandler) handleAssignRand(c *gin.Context) {
	updated, err := h.galleryService.AssignMissingRand(c.Request.Context(), c.GetString(userEmailContextKey))
	if err != nil {
		h.logger.Error("assign rand failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "assign_rand_failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"updated": updated})
}

func (h *httpHandler) handleSeedVotes(c *gin.Context) {
	minVotes := parseInt64(c.Query("min"), 0)
	maxVotes := parseInt64(c.Query("max"), 50)

	updated, err := h.galleryService.SeedVotes(c.Request.Context(), c.GetString(userEmailContextKey), minVotes, maxVotes)
	if err != nil {
		h.logger.Error("seed votes failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "seed_votes_failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"updated": updated,
		"range":   gin.H{"min": minVotes, "max": maxVotes},
	})
}

type setVotesRequestPayload struct {
	ID    string `json:"id"`
	Src   string `json:"src"`
	Votes int64  `json:"votes"`
}

func (h *httpHandler) handleSetVotes(c *gin.Context) {
	var request setVotesRequestPayload
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}
	target := gallery.Target{ID: request.ID, Src: request.Src}
	if target.IsEmpty() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}

	updated, err := h.galleryService.SetVotes(c.Request.Context(), c.GetString(userEmailContextKey), target, request.Votes)
	if errors.Is(err, gallery.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "not_found"})
		return
	}
	if err != nil {
		h.logger.Error("set votes failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "set_votes_failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"updated": updated})
}

type deleteRequestPayload struct {
	ID  string `json:"id"`
	Src string `json:"src"`
}

func (h *httpHandler) handleDelete(c *gin.Context) {
	var request deleteRequestPayload
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}
	target := gallery.Target{ID: request.ID, Src: request.Src}
	if target.IsEmpty() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}

	deleted, err := h.galleryService.Delete(c.Request.Context(), c.GetString(userEmailContextKey), target)
	if errors.Is(err, gallery.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "not_found"})
		return
	}
	if err != nil {
		h.logger.Error("delete failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "delete_failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"deleted": deleted})
}

func (h *httpHandler) handlePublish(c *gin.Context) {
	limit := int(parseInt64(c.Query("limit"), 0))
	report, err := h.galleryService.PublishRecent(c.Request.Context(), c.GetString(userEmailContextKey), limit)
	if err != nil {
		h.logger.Error("publish failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "publish_failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"scanned": report.Scanned, "published": report.Published})
}

func (h *httpHandler) requestUserID(c *gin.Context) (gallery.UserID, bool) {
	uid, err := gallery.NewUserID(c.GetString(userIDContextKey))
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return "", false
	}
	return uid, true
}

func parseLimit(raw string) int {
	if raw == "" {
		return 0
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		return 0
	}
	return value
}

func parseInt64(raw string, fallback int64) int64 {
	if raw == "" {
		return fallback
	}
	value, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return fallback
	}
	return value
}
