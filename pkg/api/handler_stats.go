package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/codeready-toolchain/modelmux/pkg/stats"
)

// RouterStats handles GET /model-router/stats: the full projection over the
// current telemetry snapshot.
func (s *Server) RouterStats(c *gin.Context) {
	c.JSON(http.StatusOK, stats.Project(s.store.Snapshot()))
}
