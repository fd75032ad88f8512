package api

import (
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/codeready-toolchain/modelmux/pkg/moderation"
)

// Moderate handles POST /moderation, unary or streaming.
func (s *Server) Moderate(c *gin.Context) {
	var req ModerationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "invalid_request",
			Message: "message is required",
		})
		return
	}

	modReq := moderation.Request{
		Message: req.Message,
		Locale:  req.Locale,
		Stream:  req.Stream,
	}

	if req.Stream {
		s.moderateStream(c, modReq)
		return
	}

	resp, err := s.moderation.Moderate(c.Request.Context(), modReq)
	if err != nil {
		writeServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// moderateStream forwards backend chunks as a plain-text stream.
func (s *Server) moderateStream(c *gin.Context, req moderation.Request) {
	chunks, err := s.moderation.ModerateStream(c.Request.Context(), req)
	if err != nil {
		writeServiceError(c, err)
		return
	}

	c.Header("Content-Type", "text/plain; charset=utf-8")
	c.Header("X-Accel-Buffering", "no")
	c.Status(http.StatusOK)

	c.Stream(func(w io.Writer) bool {
		chunk, ok := <-chunks
		if !ok {
			return false
		}
		if chunk.Error != "" {
			_, _ = io.WriteString(w, "\nerror: "+chunk.Error+"\n")
			return false
		}
		_, _ = io.WriteString(w, chunk.Content)
		return !chunk.IsFinal
	})
}

// ModerationMetrics handles GET /moderation: rolling aggregates plus the
// cache adapter state.
func (s *Server) ModerationMetrics(c *gin.Context) {
	c.JSON(http.StatusOK, ModerationOverview{
		Metrics: s.moderation.Metrics().Snapshot(),
		Cache: CacheInfo{
			Type: s.cache.Type(),
			Size: s.cache.Len(),
		},
	})
}
