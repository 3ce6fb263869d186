package server

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/piclumo/backend/internal/auth"
	"github.com/piclumo/backend/internal/gallery"
	"github.com/piclumo/backend/internal/users"
)

const (
	userIDContextKey    = "piclumo_user_id"
	userEmailContextKey = "piclumo_user_email"
)

var (
	errMissingIdentityVerifier = errors.New("identity verifier dependency required")
	errMissingTokenManager     = errors.New("token manager dependency required")
	errMissingGalleryService   = errors.New("gallery service dependency required")
	errMissingUsersService     = errors.New("users service dependency required")
	errMissingOwnerEmail       = errors.New("owner email required")
	errInvalidAuthorization    = errors.New("authorization header missing or invalid")
)

// IdentityVerifier validates upstream identity-provider ID tokens.
type IdentityVerifier interface {
	Verify(ctx context.Context, token string) (auth.IdentityClaims, error)
}

// TokenManager issues and validates backend bearer tokens.
type TokenManager interface {
	IssueToken(ctx context.Context, identity auth.IdentityClaims) (string, int64, error)
	ValidateToken(token string) (auth.TokenClaims, error)
}

// Dependencies wires the HTTP layer to its collaborators.
type Dependencies struct {
	IdentityVerifier IdentityVerifier
	TokenManager     TokenManager
	GalleryService   *gallery.Service
	UsersService     *users.Service
	OwnerEmail       string
	Logger           *zap.Logger
}

// NewHTTPHandler builds the gin router exposing the public feeds, the
// authenticated voting surface, and the owner-only admin console routes.
func NewHTTPHandler(deps Dependencies) (http.Handler, error) {
	if deps.IdentityVerifier == nil {
		return nil, errMissingIdentityVerifier
	}
	if deps.TokenManager == nil {
		return nil, errMissingTokenManager
	}
	if deps.GalleryService == nil {
		return nil, errMissingGalleryService
	}
	if deps.UsersService == nil {
		return nil, errMissingUsersService
	}
	ownerEmail := strings.ToLower(strings.TrimSpace(deps.OwnerEmail))
	if ownerEmail == "" {
		return nil, errMissingOwnerEmail
	}

	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(cors.New(cors.Config{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowHeaders: []string{"Authorization", "Content-Type"},
		MaxAge:       12 * time.Hour,
	}))

	handler := &httpHandler{
		verifier:       deps.IdentityVerifier,
		tokens:         deps.TokenManager,
		galleryService: deps.GalleryService,
		usersService:   deps.UsersService,
		ownerEmail:     ownerEmail,
		logger:         logger,
	}

	router.POST("/auth/token", handler.handleTokenExchange)
	router.GET("/gallery/top", handler.handleTopFeed)
	router.GET("/gallery/random", handler.handleRandomFeed)

	protected := router.Group("/")
	protected.Use(handler.authorizeRequest)
	protected.GET("/gallery/votes", handler.handleGetVotes)
	protected.POST("/gallery/vote", handler.handleCastVote)
	protected.POST("/users/upsert", handler.handleUsersUpsert)

	owner := protected.Group("/")
	owner.Use(handler.requireOwner)
	owner.GET("/users/stats", handler.handleUsersStats)
	owner.GET("/users/list", handler.handleUsersList)
	owner.POST("/admin/gallery/assign-rand", handler.handleAssignRand)
	owner.POST("/admin/gallery/seed-votes", handler.handleSeedVotes)
	owner.POST("/admin/gallery/set-votes", handler.handleSetVotes)
	owner.POST("/admin/gallery/delete", handler.handleDelete)
	owner.POST("/admin/gallery/publish", handler.handlePublish)

	return router, nil
}

type httpHandler struct {
	verifier       IdentityVerifier
	tokens         TokenManager
	galleryService *gallery.Service
	usersService   *users.Service
	ownerEmail     string
	logger         *zap.Logger
}

func (h *httpHandler) authorizeRequest(c *gin.Context) {
	header := c.GetHeader("Authorization")
	if !strings.HasPrefix(header, "Bearer ") {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": errInvalidAuthorization.Error()})
		return
	}
	token := strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
	if token == "" {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": errInvalidAuthorization.Error()})
		return
	}
	claims, err := h.tokens.ValidateToken(token)
	if err != nil {
		h.logger.Warn("token validation failed", zap.Error(err))
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	c.Set(userIDContextKey, claims.UserID)
	c.Set(userEmailContextKey, claims.Email)
	c.Next()
}

func (h *httpHandler) requireOwner(c *gin.Context) {
	email := strings.ToLower(strings.TrimSpace(c.GetString(userEmailContextKey)))
	if email == "" || email != h.ownerEmail {
		c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "forbidden"})
		return
	}
	c.Next()
}
