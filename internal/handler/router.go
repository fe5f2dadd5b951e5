package handler

import (
	"fmt"
	"net/http"

	"github.com/aws/aws-xray-sdk-go/xray"
	"github.com/gin-gonic/gin"
)

// SetupRouter はルーティングを設定したgin.Engineを返します
func SetupRouter(h *Handler, serviceName string) *gin.Engine {
	router := gin.New()
	router.Use(gin.Logger(), gin.Recovery(), tracing(serviceName))

	router.GET("/healthz", h.Health)

	v1 := router.Group("/v1")
	{
		v1.POST("/sessions", h.StartSession)
		v1.DELETE("/sessions", h.EndSession)
		v1.GET("/notifications", h.ListNotifications)
	}

	return router
}

// tracing はリクエストごとにX-Rayのセグメントを開始します
func tracing(serviceName string) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, seg := xray.BeginSegment(c.Request.Context(), serviceName)
		c.Request = c.Request.WithContext(ctx)

		c.Next()

		status := c.Writer.Status()
		if status >= http.StatusInternalServerError {
			seg.Close(fmt.Errorf("%s %s returned %d", c.Request.Method, c.FullPath(), status))
			return
		}
		seg.Close(nil)
	}
}
