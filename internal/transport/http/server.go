package http

import (
	_ "embed"
	"net/http"

	"github.com/gin-gonic/gin"

	"gopherai-docchat/internal/bootstrap"
	"gopherai-docchat/internal/transport/http/handler"
	"gopherai-docchat/internal/transport/http/middleware"
)

//go:embed web/index.html
var indexPage []byte

func NewRouter(app *bootstrap.App) *gin.Engine {
	gin.SetMode(app.Config.App.GinMode)
	router := gin.New()
	router.Use(middleware.RequestLogger(app.Logger), gin.Recovery())
	router.MaxMultipartMemory = app.Config.Upload.MaxBytes

	healthHandler := handler.NewHealthHandler(app)
	documentHandler := handler.NewDocumentHandler(app.Chat, app.Config.Upload.MaxBytes, app.Logger)

	router.GET("/", func(c *gin.Context) {
		c.Data(http.StatusOK, "text/html; charset=utf-8", indexPage)
	})
	router.GET("/healthz", healthHandler.Check)

	router.POST("/upload", documentHandler.Upload)
	router.POST("/ask", documentHandler.Ask)
	router.POST("/chat", documentHandler.Ask)
	router.POST("/ask/stream", documentHandler.AskStream)
	router.GET("/history", documentHandler.History)
	router.POST("/reset", documentHandler.Reset)

	return router
}
