// Package casauth implements the auth gateway HTTP surface.
//
// The gateway answers two questions for the launcher web app:
//   - "is this SSO ticket genuine?"  (GET /validate_ticket)
//   - "is this request authenticated?"  (GET /)
//
// A successful ticket validation mints a session token and sets it as the
// "token" cookie; later requests present that cookie. The gateway never
// consults the directory - eligibility is the launcher's concern.
package casauth

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/yousefmoazzam/hebi-launcher/internal/auth"
	"github.com/yousefmoazzam/hebi-launcher/internal/cas"
	"github.com/yousefmoazzam/hebi-launcher/internal/logger"
)

// Handler holds the gateway's collaborators.
type Handler struct {
	cas    *cas.Client
	tokens *auth.TokenManager
}

// NewHandler creates a gateway handler.
func NewHandler(casClient *cas.Client, tokens *auth.TokenManager) *Handler {
	return &Handler{cas: casClient, tokens: tokens}
}

// RegisterRoutes attaches the gateway endpoints to a router.
func (h *Handler) RegisterRoutes(router *gin.Engine) {
	router.GET("/", h.CheckCookie)
	router.GET("/validate_ticket", h.ValidateTicket)
}

// CheckCookie reports whether the requestor has been authenticated.
//
// No cookie at all is an unauthorised access attempt and is answered with
// 403. A cookie that fails verification is surfaced as an auth error. A
// verified token without a username yields authenticated=false.
func (h *Handler) CheckCookie(c *gin.Context) {
	cookie, err := c.Cookie(auth.CookieName)
	if err != nil {
		c.AbortWithStatus(http.StatusForbidden)
		return
	}

	username, err := h.tokens.Verify(cookie)
	if err == auth.ErrNoUsername {
		c.JSON(http.StatusOK, gin.H{
			"has_requestor_been_authenticated": false,
		})
		return
	}
	if err != nil {
		logger.HTTP().Warn().Err(err).Msg("Session token failed verification")
		c.JSON(http.StatusUnauthorized, gin.H{
			"has_requestor_been_authenticated": false,
			"error":                            err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"has_requestor_been_authenticated": true,
		"username":                         username,
	})
}

// ValidateTicket forwards the SSO ticket to the CAS server and, on success,
// mints a session token and sets it as a cookie on the response.
func (h *Handler) ValidateTicket(c *gin.Context) {
	ticket := c.Query("ticket")

	result, err := h.cas.ValidateTicket(c.Request.Context(), ticket)
	if err != nil {
		logger.HTTP().Error().Err(err).Msg("CAS serviceValidate request failed")
		c.JSON(http.StatusOK, gin.H{
			"validated": false,
			"desc":      cas.ErrInvalidServerResponse,
		})
		return
	}

	if !result.Validated {
		resp := gin.H{
			"validated": false,
			"desc":      result.Description,
		}
		if result.Code != "" {
			resp["code"] = result.Code
		}
		c.JSON(http.StatusOK, resp)
		return
	}

	token, err := h.tokens.Mint(result.User)
	if err != nil {
		logger.HTTP().Error().Err(err).Str("user", result.User).Msg("Failed to mint session token")
		c.JSON(http.StatusInternalServerError, gin.H{
			"validated": false,
			"desc":      "token signing failed",
		})
		return
	}

	logger.HTTP().Info().Str("user", result.User).Msg("Ticket validated, session token issued")

	c.SetCookie(auth.CookieName, token, 0, "/", "", false, false)
	c.JSON(http.StatusOK, gin.H{
		"validated": true,
		"user":      result.User,
		"token":     token,
		"desc":      "successful authentication",
	})
}
