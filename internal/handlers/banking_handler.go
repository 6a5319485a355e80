package handlers

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"finbridge/internal/cache"
	apperrors "finbridge/internal/errors"
	"finbridge/internal/logger"
	"finbridge/internal/pagination"
	"finbridge/internal/provider"
	"finbridge/internal/services"
)

// BankingHandler handles bank connection linking, syncing, and inspection.
type BankingHandler struct {
	client      provider.Client
	states      cache.StateStorer
	connections services.ConnectionServicer
	syncer      services.SyncServicer
	audit       services.AuditServicer
	frontendURL string
}

// NewBankingHandler creates a new BankingHandler.
func NewBankingHandler(
	client provider.Client,
	states cache.StateStorer,
	connections services.ConnectionServicer,
	syncer services.SyncServicer,
	audit services.AuditServicer,
	frontendURL string,
) *BankingHandler {
	return &BankingHandler{
		client:      client,
		states:      states,
		connections: connections,
		syncer:      syncer,
		audit:       audit,
		frontendURL: frontendURL,
	}
}

// LinkResponse carries the provider authorization URL to redirect the user to.
type LinkResponse struct {
	AuthorizationURL string `json:"authorization_url"`
}

// Link starts the OAuth flow for a new bank connection.
// @Summary     Start bank linking
// @Description Generate a provider authorization URL for linking a bank
// @Tags        banking
// @Produce     json
// @Security    BearerAuth
// @Param       return_to query string false "Frontend path to return to after linking"
// @Success     200 {object} LinkResponse "Authorization URL"
// @Failure     401 {object} ErrorResponse "Unauthorized"
// @Failure     500 {object} ErrorResponse "Server error"
// @Router      /banking/link [get]
func (h *BankingHandler) Link(c *gin.Context) {
	userID, err := getUserID(c)
	if err != nil {
		respondWithError(c, err)
		return
	}

	state := uuid.NewString()
	nonce := uuid.NewString()
	err = h.states.Put(c.Request.Context(), state, cache.OAuthState{
		UserID:   userID,
		ReturnTo: c.Query("return_to"),
		Nonce:    nonce,
	})
	if err != nil {
		respondWithError(c, apperrors.Wrap(apperrors.ErrInternalServer, err))
		return
	}

	c.JSON(http.StatusOK, LinkResponse{
		AuthorizationURL: h.client.BuildAuthorizationURL(state, nonce),
	})
}

// Callback completes the OAuth flow. The provider redirects the user's
// browser here, so there is no Authorization header: identity comes from the
// single-use state token, and all outcomes are communicated by redirecting
// back to the frontend rather than with JSON.
// @Summary     OAuth callback
// @Description Complete bank linking after provider authorization
// @Tags        banking
// @Param       code  query string false "Authorization code"
// @Param       state query string true  "State token issued at link time"
// @Param       error query string false "Provider error code"
// @Success     302 "Redirect back to the frontend"
// @Router      /banking/callback [get]
func (h *BankingHandler) Callback(c *gin.Context) {
	stateToken := c.Query("state")
	if stateToken == "" {
		h.redirectWithError(c, "", "invalid_state")
		return
	}

	state, err := h.states.Take(c.Request.Context(), stateToken)
	if err != nil {
		if !errors.Is(err, cache.ErrStateNotFound) {
			logger.Get().Errorw("failed to load oauth state", "error", err)
		}
		h.redirectWithError(c, "", "invalid_state")
		return
	}

	if providerErr := c.Query("error"); providerErr != "" {
		h.redirectWithError(c, state.ReturnTo, "provider_denied")
		return
	}
	code := c.Query("code")
	if code == "" {
		h.redirectWithError(c, state.ReturnTo, "missing_code")
		return
	}

	ctx := c.Request.Context()
	tokens, err := h.client.ExchangeCode(ctx, code)
	if err != nil {
		logger.Get().Errorw("code exchange failed", "user_id", state.UserID, "error", err)
		h.redirectWithError(c, state.ReturnTo, "exchange_failed")
		return
	}

	meta, err := h.client.GetMetadata(ctx, tokens.AccessToken)
	if err != nil {
		logger.Get().Errorw("metadata fetch failed", "user_id", state.UserID, "error", err)
		h.redirectWithError(c, state.ReturnTo, "link_failed")
		return
	}

	accounts, err := h.client.ListAccounts(ctx, tokens.AccessToken)
	if err != nil {
		logger.Get().Errorw("account listing failed", "user_id", state.UserID, "error", err)
		h.redirectWithError(c, state.ReturnTo, "link_failed")
		return
	}

	conn, err := h.connections.CreateOrUpdateFromCallback(ctx, state.UserID, meta, tokens, accounts)
	if err != nil {
		logger.Get().Errorw("connection creation failed", "user_id", state.UserID, "error", err)
		h.redirectWithError(c, state.ReturnTo, "link_failed")
		return
	}

	h.audit.Log(state.UserID, "connection.linked", "bank_connection", conn.ID, c.ClientIP(), map[string]interface{}{
		"institution": conn.InstitutionName,
	})

	// Kick off the initial sync in the background. The user should not
	// wait on a two-year backfill before seeing the success redirect.
	go func(userID, connectionID uint) {
		if _, err := h.syncer.SyncConnection(context.Background(), userID, connectionID); err != nil {
			logger.Get().Warnw("initial sync failed", "connection_id", connectionID, "error", err)
		}
	}(state.UserID, conn.ID)

	h.redirectSuccess(c, state.ReturnTo, conn.ID)
}

// ListConnections lists the user's bank connections.
// @Summary     List bank connections
// @Tags        banking
// @Produce     json
// @Security    BearerAuth
// @Success     200 {object} map[string]interface{} "Connections"
// @Failure     401 {object} ErrorResponse "Unauthorized"
// @Router      /banking/connections [get]
func (h *BankingHandler) ListConnections(c *gin.Context) {
	userID, err := getUserID(c)
	if err != nil {
		respondWithError(c, err)
		return
	}

	connections, err := h.connections.ListConnections(userID)
	if err != nil {
		respondWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"connections": connections})
}

// GetConnection returns one bank connection with its linked accounts.
// @Summary     Get bank connection
// @Tags        banking
// @Produce     json
// @Security    BearerAuth
// @Param       id path int true "Connection ID"
// @Success     200 {object} map[string]interface{} "Connection"
// @Failure     404 {object} ErrorResponse "Connection not found"
// @Router      /banking/connections/{id} [get]
func (h *BankingHandler) GetConnection(c *gin.Context) {
	userID, err := getUserID(c)
	if err != nil {
		respondWithError(c, err)
		return
	}
	connectionID, err := parsePathID(c, "id")
	if err != nil {
		respondWithError(c, err)
		return
	}

	conn, err := h.connections.GetConnection(userID, connectionID)
	if err != nil {
		respondWithError(c, err)
		return
	}
	accounts, err := h.connections.ListLinkedAccounts(conn.ID)
	if err != nil {
		respondWithError(c, err)
		return
	}
	conn.Accounts = accounts

	c.JSON(http.StatusOK, gin.H{"connection": conn})
}

// Sync triggers a sync for one connection.
// @Summary     Sync a bank connection
// @Description Fetch, categorize, and import new transactions for the connection
// @Tags        banking
// @Produce     json
// @Security    BearerAuth
// @Param       id path int true "Connection ID"
// @Success     200 {object} services.SyncResult "Sync outcome"
// @Failure     404 {object} ErrorResponse "Connection not found"
// @Failure     409 {object} ErrorResponse "Connection not active or sync already running"
// @Router      /banking/connections/{id}/sync [post]
func (h *BankingHandler) Sync(c *gin.Context) {
	userID, err := getUserID(c)
	if err != nil {
		respondWithError(c, err)
		return
	}
	connectionID, err := parsePathID(c, "id")
	if err != nil {
		respondWithError(c, err)
		return
	}

	result, err := h.syncer.SyncConnection(c.Request.Context(), userID, connectionID)
	if err != nil {
		respondWithError(c, err)
		return
	}

	h.audit.Log(userID, "connection.sync", "bank_connection", connectionID, c.ClientIP(), map[string]interface{}{
		"sync_id": result.SyncID,
		"status":  result.Status,
	})

	c.JSON(http.StatusOK, result)
}

// SyncAll triggers a sync for every active connection of the user.
// @Summary     Sync all bank connections
// @Tags        banking
// @Produce     json
// @Security    BearerAuth
// @Success     200 {object} map[string]interface{} "Per-connection outcomes"
// @Failure     401 {object} ErrorResponse "Unauthorized"
// @Router      /banking/sync [post]
func (h *BankingHandler) SyncAll(c *gin.Context) {
	userID, err := getUserID(c)
	if err != nil {
		respondWithError(c, err)
		return
	}

	results, err := h.syncer.SyncAllConnections(c.Request.Context(), userID)
	if err != nil {
		respondWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"results": results})
}

// SyncHistory lists past sync runs for a connection.
// @Summary     Sync history
// @Tags        banking
// @Produce     json
// @Security    BearerAuth
// @Param       id        path  int true  "Connection ID"
// @Param       page      query int false "Page number"
// @Param       page_size query int false "Page size"
// @Success     200 {object} map[string]interface{} "Sync runs"
// @Failure     404 {object} ErrorResponse "Connection not found"
// @Router      /banking/connections/{id}/history [get]
func (h *BankingHandler) SyncHistory(c *gin.Context) {
	userID, err := getUserID(c)
	if err != nil {
		respondWithError(c, err)
		return
	}
	connectionID, err := parsePathID(c, "id")
	if err != nil {
		respondWithError(c, err)
		return
	}

	var page pagination.PageRequest
	if err := c.ShouldBindQuery(&page); err != nil {
		respondWithError(c, apperrors.WithMessage(apperrors.ErrInvalidInput, err.Error()))
		return
	}

	history, err := h.syncer.ListSyncHistory(userID, connectionID, page)
	if err != nil {
		respondWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, history)
}

// Disconnect revokes and disconnects a bank connection.
// @Summary     Disconnect a bank connection
// @Description Revoke provider access and disable the connection; imported transactions are kept
// @Tags        banking
// @Security    BearerAuth
// @Param       id path int true "Connection ID"
// @Success     204 "Disconnected"
// @Failure     404 {object} ErrorResponse "Connection not found"
// @Router      /banking/connections/{id} [delete]
func (h *BankingHandler) Disconnect(c *gin.Context) {
	userID, err := getUserID(c)
	if err != nil {
		respondWithError(c, err)
		return
	}
	connectionID, err := parsePathID(c, "id")
	if err != nil {
		respondWithError(c, err)
		return
	}

	if err := h.connections.Disconnect(c.Request.Context(), userID, connectionID); err != nil {
		respondWithError(c, err)
		return
	}

	h.audit.Log(userID, "connection.disconnected", "bank_connection", connectionID, c.ClientIP(), nil)

	c.Status(http.StatusNoContent)
}

// Balance proxies a live balance read for a linked account.
// @Summary     Live account balance
// @Tags        banking
// @Produce     json
// @Security    BearerAuth
// @Param       id        path int true "Connection ID"
// @Param       accountID path int true "Linked bank account ID"
// @Success     200 {object} map[string]interface{} "Balance"
// @Failure     404 {object} ErrorResponse "Connection or account not found"
// @Failure     502 {object} ErrorResponse "Provider unavailable"
// @Router      /banking/connections/{id}/accounts/{accountID}/balance [get]
func (h *BankingHandler) Balance(c *gin.Context) {
	userID, err := getUserID(c)
	if err != nil {
		respondWithError(c, err)
		return
	}
	connectionID, err := parsePathID(c, "id")
	if err != nil {
		respondWithError(c, err)
		return
	}
	bankAccountID, err := parsePathID(c, "accountID")
	if err != nil {
		respondWithError(c, err)
		return
	}

	balance, err := h.connections.FetchLinkedBalance(c.Request.Context(), userID, connectionID, bankAccountID)
	if err != nil {
		respondWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"balance": balance})
}

// redirectSuccess sends the browser back to the frontend after linking.
func (h *BankingHandler) redirectSuccess(c *gin.Context, returnTo string, connectionID uint) {
	target := h.frontendTarget(returnTo)
	q := url.Values{}
	q.Set("status", "connected")
	q.Set("connection_id", strconv.FormatUint(uint64(connectionID), 10))
	c.Redirect(http.StatusFound, target+"?"+q.Encode())
}

// redirectWithError sends the browser back to the frontend with an error
// message. Callback failures never render JSON; the user is mid-redirect.
func (h *BankingHandler) redirectWithError(c *gin.Context, returnTo, message string) {
	target := h.frontendTarget(returnTo)
	q := url.Values{}
	q.Set("status", "error")
	q.Set("message", message)
	c.Redirect(http.StatusFound, target+"?"+q.Encode())
}

// frontendTarget joins the configured frontend base URL with a relative
// return path. Absolute return paths are ignored to keep redirects on our
// own frontend.
func (h *BankingHandler) frontendTarget(returnTo string) string {
	if returnTo == "" || returnTo[0] != '/' {
		return h.frontendURL
	}
	return h.frontendURL + returnTo
}
