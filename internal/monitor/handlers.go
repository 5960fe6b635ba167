package monitor

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/akislouk/operating-systems-project/internal/kernel/proc"
)

// procView is the JSON shape of one process table record.
type procView struct {
	Pid         int    `json:"pid"`
	PPid        int    `json:"ppid"`
	State       string `json:"state"`
	ThreadCount int    `json:"thread_count"`
	ArgLen      int    `json:"arg_len"`
	Args        string `json:"args,omitempty"`
}

func toView(in proc.Info) procView {
	state := "zombie"
	if in.Alive {
		state = "alive"
	}
	return procView{
		Pid:         int(in.Pid),
		PPid:        int(in.PPid),
		State:       state,
		ThreadCount: in.ThreadCount,
		ArgLen:      in.ArgLen,
		Args:        string(in.Args),
	}
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) handleProcs(c *gin.Context) {
	snapshot := s.k.Snapshot()
	procs := make([]procView, 0, len(snapshot))
	for _, in := range snapshot {
		procs = append(procs, toView(in))
	}
	c.JSON(http.StatusOK, gin.H{
		"count": len(procs),
		"procs": procs,
	})
}
