package server

import (
	"crypto/subtle"
	"strings"

	"github.com/labstack/echo/v4"

	"edgegate/internal/core"
)

// BearerAuth returns middleware enforcing the gateway master key. When no
// key is configured the gateway runs open and the middleware passes every
// request through.
func BearerAuth(masterKey string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if masterKey == "" {
				return next(c)
			}

			header := c.Request().Header.Get(echo.HeaderAuthorization)
			if header == "" {
				return writeError(c, core.NewAuthenticationError("missing authorization header"))
			}

			token, ok := strings.CutPrefix(header, "Bearer ")
			if !ok {
				return writeError(c, core.NewAuthenticationError("authorization header must use the Bearer scheme"))
			}

			if subtle.ConstantTimeCompare([]byte(token), []byte(masterKey)) != 1 {
				return writeError(c, core.NewAuthenticationError("invalid API key"))
			}

			return next(c)
		}
	}
}
