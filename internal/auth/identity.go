package auth

import (
	"github.com/gin-gonic/gin"
)

// ResolveFedID determines which user a lifecycle request is about.
//
// Precedence: an explicit "fedid" query parameter wins over the token in the
// request cookie. The query-parameter path exists so an administrative caller
// can act on behalf of a user; the cookie path is the normal browser flow.
func ResolveFedID(c *gin.Context, tokens *TokenManager) (string, error) {
	if fedid := c.Query("fedid"); fedid != "" {
		return fedid, nil
	}

	cookie, err := c.Cookie(CookieName)
	if err != nil {
		return "", err
	}
	return tokens.Verify(cookie)
}
