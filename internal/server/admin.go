// admin.go: Admin surface for inspecting and resetting control-plane state
package server

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// adminResponse is the envelope for admin endpoints.
type adminResponse struct {
	Success   bool        `json:"success"`
	Data      interface{} `json:"data,omitempty"`
	Error     string      `json:"error,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
	RequestID string      `json:"request_id,omitempty"`
}

func (s *Server) adminOK(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, adminResponse{
		Success:   true,
		Data:      data,
		Timestamp: time.Now(),
		RequestID: c.GetString(requestIDKey),
	})
}

func (s *Server) handleRateLimitStatus(c *gin.Context) {
	s.adminOK(c, gin.H{"buckets": s.limiter.Status()})
}

func (s *Server) handleListBreakers(c *gin.Context) {
	s.adminOK(c, gin.H{"breakers": s.breakers.Snapshots()})
}

func (s *Server) handleGetBreaker(c *gin.Context) {
	name := c.Param("name")
	br, ok := s.breakers.Get(name)
	if !ok {
		c.JSON(http.StatusNotFound, adminResponse{
			Success:   false,
			Error:     "unknown breaker: " + name,
			Timestamp: time.Now(),
			RequestID: c.GetString(requestIDKey),
		})
		return
	}
	s.adminOK(c, br.Snapshot())
}

func (s *Server) handleResetBreaker(c *gin.Context) {
	name := c.Param("name")
	br, ok := s.breakers.Get(name)
	if !ok {
		c.JSON(http.StatusNotFound, adminResponse{
			Success:   false,
			Error:     "unknown breaker: " + name,
			Timestamp: time.Now(),
			RequestID: c.GetString(requestIDKey),
		})
		return
	}
	br.Reset()
	s.logger.Info("breaker reset via admin API",
		zap.String("dependency", name),
		zap.String("request_id", c.GetString(requestIDKey)))
	s.adminOK(c, br.Snapshot())
}
