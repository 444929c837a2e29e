package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/layer-3/walletauth/adapters/graphql"
	"github.com/layer-3/walletauth/internal/devbackend"
	"github.com/layer-3/walletauth/schema"
)

// Backend is what the handlers serve
type Backend interface {
	Handle(ctx context.Context, op schema.Operation, variables json.RawMessage, accessToken string) (any, error)
	GrantAccess(employeeID, ownerID string, expiresAt *time.Time) error
	InvalidateSessions(walletID string)
}

// Handlers contains HTTP handlers for the development backend
type Handlers struct {
	backend Backend
	logger  zerolog.Logger
}

// NewHandlers creates new handlers
func NewHandlers(backend Backend, logger zerolog.Logger) *Handlers {
	return &Handlers{
		backend: backend,
		logger:  logger,
	}
}

type graphQLRequest struct {
	OperationName string          `json:"operationName" binding:"required"`
	Query         string          `json:"query"`
	Variables     json.RawMessage `json:"variables"`
}

func errorResponse(code, message string) graphql.Response {
	return graphql.Response{Errors: []graphql.Error{{
		Message:    message,
		Extensions: &graphql.Extensions{Code: code},
	}}}
}

// GraphQL dispatches an operation by its name and answers with a GraphQL envelope
func (h *Handlers) GraphQL(c *gin.Context) {
	var req graphQLRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorResponse(devbackend.CodeValidationFailed, "Invalid request"))
		return
	}

	data, err := h.backend.Handle(c.Request.Context(), schema.Operation(req.OperationName), req.Variables, c.GetString(accessTokenKey))
	if err != nil {
		var domainErr *devbackend.Error
		if errors.As(err, &domainErr) {
			h.logger.Debug().Str("operation", req.OperationName).Str("code", domainErr.Code).Msg(domainErr.Message)
			c.JSON(http.StatusOK, errorResponse(domainErr.Code, domainErr.Message))
			return
		}
		h.logger.Error().Err(err).Str("operation", req.OperationName).Msg("operation failed")
		c.JSON(http.StatusInternalServerError, errorResponse(devbackend.CodeUnexpected, "Internal error"))
		return
	}

	raw, err := json.Marshal(data)
	if err != nil {
		h.logger.Error().Err(err).Str("operation", req.OperationName).Msg("failed to encode data")
		c.JSON(http.StatusInternalServerError, errorResponse(devbackend.CodeUnexpected, "Internal error"))
		return
	}
	c.JSON(http.StatusOK, graphql.Response{Data: raw})
}

// GrantAccess lets an employee wallet act for an owner wallet
func (h *Handlers) GrantAccess(c *gin.Context) {
	var req struct {
		EmployeeWalletPubKeyID string     `json:"employee_wallet_pub_key_id" binding:"required,uuid"`
		OwnerWalletPubKeyID    string     `json:"owner_wallet_pub_key_id" binding:"required,uuid"`
		AccessExpiresAt        *time.Time `json:"access_expires_at"`
	}

	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return
	}

	if err := h.backend.GrantAccess(req.EmployeeWalletPubKeyID, req.OwnerWalletPubKeyID, req.AccessExpiresAt); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"granted": true})
}

// InvalidateSessions rejects every refresh token issued so far to a wallet
func (h *Handlers) InvalidateSessions(c *gin.Context) {
	var req struct {
		WalletPubKeyID string `uri:"wallet_pub_key_id" binding:"required,uuid"`
	}

	if err := c.ShouldBindUri(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return
	}

	h.backend.InvalidateSessions(req.WalletPubKeyID)
	c.JSON(http.StatusOK, gin.H{"invalidated": true})
}

// Health reports liveness
func (h *Handlers) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
