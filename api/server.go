// Package api 审计接口：暴露最近一个周期的信号与拒绝记录
package api

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"

	"quantgate/decision"
)

// Server 只读HTTP接口，不承载任何执行操作
type Server struct {
	router *gin.Engine

	mu     sync.RWMutex
	latest *decision.CycleResult
}

func NewServer() *Server {
	gin.SetMode(gin.ReleaseMode)
	s := &Server{router: gin.New()}
	s.router.Use(gin.Recovery())

	s.router.GET("/api/health", s.handleHealth)
	s.router.GET("/api/signals", s.handleSignals)
	s.router.GET("/api/rejected", s.handleRejected)
	return s
}

// SetResult 周期结束后由引擎调用，替换整个结果对象（读方永远看到一致的快照）
func (s *Server) SetResult(result *decision.CycleResult) {
	s.mu.Lock()
	s.latest = result
	s.mu.Unlock()
}

// Run 阻塞式启动
func (s *Server) Run(addr string) error {
	return s.router.Run(addr)
}

func (s *Server) handleHealth(c *gin.Context) {
	s.mu.RLock()
	var last time.Time
	if s.latest != nil {
		last = s.latest.Timestamp
	}
	s.mu.RUnlock()

	c.JSON(http.StatusOK, gin.H{
		"status":     "ok",
		"last_cycle": last,
	})
}

func (s *Server) handleSignals(c *gin.Context) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.latest == nil {
		c.JSON(http.StatusOK, gin.H{"signals": []any{}, "message": "尚未完成任何周期"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"timestamp": s.latest.Timestamp,
		"signals":   s.latest.Signals,
	})
}

func (s *Server) handleRejected(c *gin.Context) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.latest == nil {
		c.JSON(http.StatusOK, gin.H{"rejected": []any{}})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"timestamp": s.latest.Timestamp,
		"rejected":  s.latest.Rejected,
	})
}
