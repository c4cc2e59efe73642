package http_api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/core-coin/praemium/internal/models"
)

// ErrorResponse is the body of every failed request.
type ErrorResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
	Kind    string `json:"kind,omitempty"`
}

// NonceResponse carries what a wallet needs to compose a sign-in message.
type NonceResponse struct {
	Success   bool   `json:"success"`
	Nonce     string `json:"nonce"`
	Domain    string `json:"domain"`
	Statement string `json:"statement"`
}

// VerifyRequest is a signed sign-in message.
type VerifyRequest struct {
	Message   string `json:"message" binding:"required"`
	Signature string `json:"signature" binding:"required"`
}

// VerifyResponse carries the session token issued for the signing wallet.
type VerifyResponse struct {
	Success bool   `json:"success"`
	Token   string `json:"token"`
	Owner   string `json:"owner"`
}

// PortfolioResponse is the account with its assets.
type PortfolioResponse struct {
	Success bool `json:"success"`
	*models.Portfolio
}

// BalanceResponse is the checkpointed balance with its projection inputs.
type BalanceResponse struct {
	Success bool `json:"success"`
	*models.BalanceView
}

// BuildRequest lists the assets to stake or unstake. Claims send no assets.
type BuildRequest struct {
	Mints []string `json:"mints"`
}

// BuildResponse carries the co-signed transaction for the wallet to sign.
type BuildResponse struct {
	Success bool `json:"success"`
	*models.PendingTransaction
}

// TransitionRequest reports a confirmed transaction.
type TransitionRequest struct {
	Action    string   `json:"action" binding:"required"`
	Mints     []string `json:"mints"`
	Signature string   `json:"signature" binding:"required"`
}

// TransitionResponse reports what the record store change did.
type TransitionResponse struct {
	Success bool `json:"success"`
	*models.TransitionResult
}

// statusOf maps an error kind to its HTTP status.
func statusOf(kind models.ErrorKind) int {
	switch kind {
	case models.KindInvalidRequest:
		return http.StatusBadRequest
	case models.KindUnauthorized:
		return http.StatusUnauthorized
	case models.KindNotFound:
		return http.StatusNotFound
	case models.KindConfirmationFailed:
		return http.StatusConflict
	case models.KindBuildFailed, models.KindSimulationFailed, models.KindSubmissionFailed:
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

// abort writes err as an ErrorResponse. Causes are logged, never sent.
func (s *HTTPServer) abort(c *gin.Context, err error) {
	kind := models.KindOf(err)
	status := statusOf(kind)
	if status >= http.StatusInternalServerError {
		s.logger.Errorw("Request failed", "path", c.FullPath(), "error", err)
	} else {
		s.logger.Debugw("Request rejected", "path", c.FullPath(), "error", err)
	}

	c.AbortWithStatusJSON(status, ErrorResponse{
		Success: false,
		Error:   models.UserMessage(err),
		Kind:    string(kind),
	})
}

func (s *HTTPServer) nonce(c *gin.Context) {
	c.JSON(http.StatusOK, NonceResponse{
		Success:   true,
		Nonce:     s.sessions.IssueNonce(),
		Domain:    s.sessions.Domain(),
		Statement: s.sessions.Statement(),
	})
}

func (s *HTTPServer) verify(c *gin.Context) {
	var req VerifyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.abort(c, models.NewError(models.KindInvalidRequest, "Invalid request body: "+err.Error(), err))
		return
	}

	token, owner, err := s.sessions.VerifySignIn(req.Message, req.Signature)
	if err != nil {
		s.abort(c, err)
		return
	}
	c.JSON(http.StatusOK, VerifyResponse{Success: true, Token: token, Owner: owner})
}

func (s *HTTPServer) login(c *gin.Context) {
	portfolio, err := s.praemium.Login(c.Request.Context(), c.GetString(ownerKey))
	if err != nil {
		s.abort(c, err)
		return
	}
	c.JSON(http.StatusOK, PortfolioResponse{Success: true, Portfolio: portfolio})
}

func (s *HTTPServer) assets(c *gin.Context) {
	portfolio, err := s.praemium.GetPortfolio(c.Request.Context(), c.GetString(ownerKey))
	if err != nil {
		s.abort(c, err)
		return
	}
	c.JSON(http.StatusOK, PortfolioResponse{Success: true, Portfolio: portfolio})
}

func (s *HTTPServer) balance(c *gin.Context) {
	view, err := s.praemium.GetBalance(c.Request.Context(), c.GetString(ownerKey))
	if err != nil {
		s.abort(c, err)
		return
	}
	c.JSON(http.StatusOK, BalanceResponse{Success: true, BalanceView: view})
}

func (s *HTTPServer) buildTransaction(c *gin.Context) {
	action, err := models.ParseAction(c.Param("action"))
	if err != nil {
		s.abort(c, err)
		return
	}
	var req BuildRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			s.abort(c, models.NewError(models.KindInvalidRequest, "Invalid request body: "+err.Error(), err))
			return
		}
	}

	pending, err := s.praemium.BuildTransaction(c.Request.Context(), action, c.GetString(ownerKey), req.Mints)
	if err != nil {
		s.abort(c, err)
		return
	}
	c.JSON(http.StatusOK, BuildResponse{Success: true, PendingTransaction: pending})
}

func (s *HTTPServer) persistTransition(c *gin.Context) {
	var req TransitionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.abort(c, models.NewError(models.KindInvalidRequest, "Invalid request body: "+err.Error(), err))
		return
	}
	action, err := models.ParseAction(req.Action)
	if err != nil {
		s.abort(c, err)
		return
	}

	result, err := s.praemium.PersistStateTransition(c.Request.Context(), models.StateTransition{
		Owner:     c.GetString(ownerKey),
		Action:    action,
		Mints:     req.Mints,
		Signature: req.Signature,
	})
	if err != nil {
		s.abort(c, err)
		return
	}
	c.JSON(http.StatusOK, TransitionResponse{Success: true, TransitionResult: result})
}
