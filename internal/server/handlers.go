package server

import (
	"context"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/ppiankov/veracity/internal/graph"
	"github.com/ppiankov/veracity/internal/model"
)

type submitRequest struct {
	Claim string `json:"claim" binding:"required"`
}

type reviewRequest struct {
	Overrides []model.ReviewOverride `json:"overrides"`
	Finish    bool                   `json:"finish"`
}

func (s *Server) handleSubmit(c *gin.Context) {
	var req submitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "claim is required"})
		return
	}

	// The run must outlive this request; it is bounded by the pipeline
	// run timeout, not the submission context.
	runID, events, err := s.checker.Submit(context.Background(), req.Claim, identity(c))
	if err != nil {
		writeError(c, err)
		return
	}
	s.keepStream(runID, events)

	c.JSON(http.StatusAccepted, gin.H{
		"run_id": runID,
		"events": "/v1/checks/" + runID + "/events",
	})
}

func (s *Server) handleRunState(c *gin.Context) {
	run, ok := s.checker.Run(c.Param("id"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown run"})
		return
	}
	c.JSON(http.StatusOK, run)
}

// handleEvents streams the run's progress as server-sent events. Each
// stream has a single consumer; a second GET receives 409.
func (s *Server) handleEvents(c *gin.Context) {
	runID := c.Param("id")
	events, ok := s.takeStream(runID)
	if !ok {
		if _, known := s.checker.Run(runID); known {
			c.JSON(http.StatusConflict, gin.H{"error": "event stream already consumed"})
		} else {
			c.JSON(http.StatusNotFound, gin.H{"error": "unknown run"})
		}
		return
	}

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")

	c.Stream(func(w io.Writer) bool {
		select {
		case ev, open := <-events:
			if !open {
				return false
			}
			c.SSEvent(string(ev.Kind), ev)
			return true
		case <-c.Request.Context().Done():
			return false
		}
	})
}

func (s *Server) handleReview(c *gin.Context) {
	runID := c.Param("id")
	var req reviewRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	queue := s.checker.Reviews()
	if !queue.Awaiting(runID) {
		c.JSON(http.StatusConflict, gin.H{"error": "run is not awaiting review"})
		return
	}
	for _, o := range req.Overrides {
		if o.Category != nil && !o.Category.Valid() {
			c.JSON(http.StatusBadRequest, gin.H{"error": "unknown verdict category"})
			return
		}
		if err := queue.Submit(runID, o); err != nil {
			writeError(c, err)
			return
		}
	}
	if req.Finish {
		if err := queue.Finish(runID); err != nil {
			writeError(c, err)
			return
		}
	}
	c.JSON(http.StatusOK, gin.H{"accepted": len(req.Overrides), "finished": req.Finish})
}

func (s *Server) handleGraph(c *gin.Context) {
	run, ok := s.checker.Run(c.Param("id"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown run"})
		return
	}
	if run.Stage != model.StageDone {
		c.JSON(http.StatusConflict, gin.H{"error": "run is not complete"})
		return
	}
	c.JSON(http.StatusOK, graph.Build(run, run.Verdict))
}

func (s *Server) handleHistory(c *gin.Context) {
	store := s.checker.History()
	if store == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "history is disabled"})
		return
	}

	if q := c.Query("q"); q != "" {
		records, err := store.FindSimilar(c.Request.Context(), q)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"records": records})
		return
	}

	records, err := store.Recent(c.Request.Context(), 20)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"records": records})
}

func (s *Server) handleHistoryStats(c *gin.Context) {
	store := s.checker.History()
	if store == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "history is disabled"})
		return
	}
	stats, err := store.GetStats(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, stats)
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
