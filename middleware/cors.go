package middleware

import (
	"net/http"
	"strings"

	"github.com/ZhengyiNLP/sister-expense-tracker/pkg/appenv"

	"github.com/gin-gonic/gin"
)

type CORSOptions struct {
	Env              appenv.Env
	AllowedOrigins   []string
	AllowCredentials bool
}

// CORSMiddleware configures CORS headers.
//   - In local and test environments any origin ("*") is allowed.
//   - Elsewhere the incoming Origin is reflected only if it is listed in
//     AllowedOrigins, with Access-Control-Allow-Credentials when enabled.
func CORSMiddleware(opts CORSOptions) gin.HandlerFunc {
	allowedOrigins := make(map[string]struct{})
	for _, o := range opts.AllowedOrigins {
		if origin := strings.TrimSpace(o); origin != "" {
			allowedOrigins[origin] = struct{}{}
		}
	}

	permissive := opts.Env.Relaxed()
	allowedMethods := "GET, POST, DELETE, OPTIONS"
	allowedHeaders := "Origin, Content-Type, Authorization, X-Request-ID"

	return func(c *gin.Context) {
		origin := c.Request.Header.Get("Origin")
		c.Header("Vary", "Origin")

		switch {
		case permissive:
			c.Header("Access-Control-Allow-Origin", "*")
			c.Header("Access-Control-Allow-Methods", allowedMethods)
			c.Header("Access-Control-Allow-Headers", allowedHeaders)
		case origin != "":
			if _, ok := allowedOrigins[origin]; ok {
				c.Header("Access-Control-Allow-Origin", origin)
				c.Header("Access-Control-Allow-Methods", allowedMethods)
				c.Header("Access-Control-Allow-Headers", allowedHeaders)
				if opts.AllowCredentials {
					c.Header("Access-Control-Allow-Credentials", "true")
				}
			}
		}

		if c.Request.Method == http.MethodOptions {
			// preflight; a disallowed origin gets no headers and the browser blocks it
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}
