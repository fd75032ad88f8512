package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// Health returns the health status
func (s *Server) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":   "healthy",
		"cache":    s.cache.Type(),
		"backends": len(s.store.Snapshot().Backends),
	})
}
