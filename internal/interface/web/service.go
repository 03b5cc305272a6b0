package web

import (
	"net/http"

	"github.com/ArkLabsHQ/subswap/internal/core/application"
	"github.com/gin-gonic/gin"
)

type service struct {
	svc *application.Service
}

// NewService returns the REST API of the swap daemon.
func NewService(svc *application.Service) http.Handler {
	gin.SetMode(gin.ReleaseMode)

	s := &service{svc}

	router := gin.New()
	router.Use(gin.Recovery(), LoggerMiddleware())

	v1 := router.Group("/v1")
	v1.GET("/quote", s.getQuote)
	v1.POST("/swap/configure", s.configureSwap)
	v1.POST("/swap/submarine", s.createSubmarineSwap)
	v1.POST("/swap/reverse", s.createReverseSwap)
	v1.GET("/swaps", s.listSwaps)
	v1.GET("/swaps/:id", s.getSwap)

	router.GET("/healthz", s.health)

	return router
}
