package monitor

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // monitor is a local diagnostic surface
	},
}

// handleProcsWS streams process table snapshots until the client hangs up.
func (s *Server) handleProcsWS(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		snapshot := s.k.Snapshot()
		procs := make([]procView, 0, len(snapshot))
		for _, in := range snapshot {
			procs = append(procs, toView(in))
		}
		if err := conn.WriteJSON(gin.H{
			"type":  "procs",
			"count": len(procs),
			"procs": procs,
		}); err != nil {
			return
		}
		<-ticker.C
	}
}
