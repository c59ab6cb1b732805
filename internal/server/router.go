package server

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/retainhq/retain/backend/internal/sync"
	"github.com/retainhq/retain/backend/internal/users"
	"go.uber.org/zap"
)

const (
	userIDContextKey   = "retain_user_id"
	clientIDContextKey = "retain_client_id"
)

var (
	errMissingTokenManager  = errors.New("token manager dependency required")
	errMissingSyncService   = errors.New("sync service dependency required")
	errMissingUsersService  = errors.New("users service dependency required")
	errInvalidAuthorization = errors.New("authorization header missing or invalid")
)

// TokenManager validates the bearer tokens minted by the identity layer.
type TokenManager interface {
	ValidateToken(token string) (userID string, clientID string, err error)
}

// Dependencies wires the HTTP handler to its collaborators.
type Dependencies struct {
	TokenManager TokenManager
	SyncService  *sync.Service
	UsersService *users.Service
	Logger       *zap.Logger
}

// NewHTTPHandler builds the gin router exposing the sync surface.
func NewHTTPHandler(deps Dependencies) (http.Handler, error) {
	if deps.TokenManager == nil {
		return nil, errMissingTokenManager
	}
	if deps.SyncService == nil {
		return nil, errMissingSyncService
	}
	if deps.UsersService == nil {
		return nil, errMissingUsersService
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
		tokens:       deps.TokenManager,
		syncService:  deps.SyncService,
		usersService: deps.UsersService,
		logger:       logger,
	}

	router.GET("/healthz", handler.handleHealth)

	protected := router.Group("/api")
	protected.Use(handler.authorizeRequest)
	protected.POST("/sync", handler.handleApply)
	protected.GET("/sync", handler.handlePull)

	return router, nil
}

type httpHandler struct {
	tokens       TokenManager
	syncService  *sync.Service
	usersService *users.Service
	logger       *zap.Logger
}

func (h *httpHandler) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

type applyRequestPayload struct {
	Operations []sync.Envelope `json:"operations"`
}

type applyResponsePayload struct {
	Success bool `json:"success"`
}

type pullResponsePayload struct {
	Ops []sync.Envelope `json:"ops"`
}

func (h *httpHandler) handleApply(c *gin.Context) {
	userID := c.GetString(userIDContextKey)
	clientID := c.GetString(clientIDContextKey)
	if userID == "" || clientID == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	var request applyRequestPayload
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}

	if err := h.syncService.Apply(c.Request.Context(), userID, clientID, request.Operations); err != nil {
		h.respondApplyError(c, err)
		return
	}

	c.JSON(http.StatusOK, applyResponsePayload{Success: true})
}

func (h *httpHandler) respondApplyError(c *gin.Context, err error) {
	var schemaErr *sync.SchemaError
	switch {
	case errors.Is(err, sync.ErrTooManyOperations):
		c.JSON(http.StatusBadRequest, gin.H{"error": "too_many_operations"})
	case errors.As(err, &schemaErr):
		c.JSON(http.StatusBadRequest, gin.H{
			"error":  "invalid_operation",
			"index":  schemaErr.Index,
			"reason": schemaErr.Reason,
		})
	case errors.Is(err, sync.ErrUserNotFound):
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unknown_user"})
	case errors.Is(err, sync.ErrReferentialIntegrity):
		c.JSON(http.StatusConflict, gin.H{"error": "referential_integrity"})
	default:
		h.logger.Error("sync apply failed", zap.Error(err))
		response := gin.H{"error": "apply_failed"}
		var serviceErr *sync.ServiceError
		if errors.As(err, &serviceErr) {
			response["code"] = serviceErr.Code()
		}
		c.JSON(http.StatusInternalServerError, response)
	}
}

func (h *httpHandler) handlePull(c *gin.Context) {
	userID := c.GetString(userIDContextKey)
	clientID := c.GetString(clientIDContextKey)
	if userID == "" || clientID == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	sinceSeqNo := int64(0)
	if raw := c.Query("seq_no"); raw != "" {
		parsed, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || parsed < 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_seq_no"})
			return
		}
		sinceSeqNo = parsed
	}

	ops, err := h.syncService.Pull(c.Request.Context(), userID, clientID, sinceSeqNo)
	if err != nil {
		h.logger.Error("sync pull failed", zap.Error(err))
		response := gin.H{"error": "pull_failed"}
		var serviceErr *sync.ServiceError
		if errors.As(err, &serviceErr) {
			response["code"] = serviceErr.Code()
		}
		c.JSON(http.StatusInternalServerError, response)
		return
	}

	if ops == nil {
		ops = []sync.Envelope{}
	}
	c.JSON(http.StatusOK, pullResponsePayload{Ops: ops})
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
	userID, clientID, err := h.tokens.ValidateToken(token)
	if err != nil {
		h.logger.Warn("token validation failed", zap.Error(err))
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	if err := h.usersService.EnsureClient(c.Request.Context(), userID, clientID); err != nil {
		h.logger.Error("client registration failed", zap.Error(err),
			zap.String("user_id", userID),
			zap.String("client_id", clientID))
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "client_registration_failed"})
		return
	}

	c.Set(userIDContextKey, userID)
	c.Set(clientIDContextKey, clientID)
	c.Next()
}
