package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"rss_digest/internal/model"
)

// streamNewsletter relays generation progress as server-sent events:
// "partial" carries the draft so far, then exactly one "done" with the
// stored newsletter or one "error".
func (s *Server) streamNewsletter(c *gin.Context) {
	var req generateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Status(http.StatusOK)

	res, err := s.svc.Stream(c.Request.Context(), owner(c), req.toRequest(), func(d model.Draft) {
		c.SSEvent("partial", d)
		c.Writer.Flush()
	})
	if err != nil {
		status, body := errorStatus(err)
		if status >= http.StatusInternalServerError {
			s.log.Error("stream newsletter", "owner", owner(c), "error", err)
		}
		body["status"] = status
		c.SSEvent("error", body)
		c.Writer.Flush()
		return
	}
	c.SSEvent("done", toResultJSON(res))
	c.Writer.Flush()
}
