package handlers

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/ZhengyiNLP/sister-expense-tracker/middleware"
	"github.com/ZhengyiNLP/sister-expense-tracker/pkg/authtoken"
	"github.com/ZhengyiNLP/sister-expense-tracker/pkg/notify"
	"github.com/ZhengyiNLP/sister-expense-tracker/pkg/password"
	"github.com/ZhengyiNLP/sister-expense-tracker/repository"
	"github.com/ZhengyiNLP/sister-expense-tracker/types"

	"github.com/gin-gonic/gin"
)

// Deps are the collaborators the HTTP API is built from.
type Deps struct {
	Repos    *repository.Repositories
	Tokens   *authtoken.Manager
	Hasher   *password.Hasher
	Notifier notify.Notifier
	Logger   *slog.Logger
	CORS     middleware.CORSOptions
	// Now defaults to time.Now.
	Now func() time.Time
}

func NewRouter(d Deps) *gin.Engine {
	if d.Now == nil {
		d.Now = time.Now
	}
	if d.Logger == nil {
		d.Logger = slog.Default()
	}

	r := gin.New()
	r.Use(middleware.RequestIDMiddleware(d.Logger))
	r.Use(middleware.LoggerMiddleware())
	r.Use(gin.CustomRecovery(func(c *gin.Context, recovered any) {
		middleware.Logger(c).Error("panic recovered", slog.Any("panic", recovered))
		c.AbortWithStatusJSON(http.StatusInternalServerError, types.NewErrorResponse(types.ErrorCodeInternal, "Internal server error"))
	}))
	r.Use(middleware.CORSMiddleware(d.CORS))
	r.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, types.NewErrorResponse(types.ErrorCodeNotFound, "Route not found"))
	})

	authHandler := NewAuthHandler(d.Repos.Users, d.Tokens, d.Hasher, d.Notifier).WithClock(d.Now)
	recordsHandler := NewRecordsHandler(d.Repos.Records).WithClock(d.Now)

	api := r.Group("/api")
	api.GET("/health", HealthCheck)

	// both the short and the /auth prefixed paths are served
	api.POST("/register", authHandler.Register)
	api.POST("/login", authHandler.Login)
	authPublic := api.Group("/auth")
	{
		authPublic.POST("/register", authHandler.Register)
		authPublic.POST("/login", authHandler.Login)
		authPublic.POST("/forgot-password", authHandler.ForgotPassword)
		authPublic.POST("/reset-password", authHandler.ResetPassword)
	}

	auth := api.Group("/", AuthMiddleware(d.Tokens))
	{
		auth.GET("/user", authHandler.GetCurrentUser)

		auth.GET("/records", recordsHandler.GetRecords)
		auth.POST("/records", recordsHandler.CreateRecord)
		auth.DELETE("/records", recordsHandler.DeleteAllRecords)
		auth.DELETE("/records/:id", recordsHandler.DeleteRecord)
	}

	return r
}

// internalError logs err with the request id and answers with a generic 500.
func internalError(c *gin.Context, msg string, err error) {
	middleware.Logger(c).ErrorContext(c.Request.Context(), msg, slog.Any("error", err))
	_ = c.Error(err)
	c.JSON(http.StatusInternalServerError, types.NewErrorResponse(types.ErrorCodeInternal, "Internal server error"))
}
