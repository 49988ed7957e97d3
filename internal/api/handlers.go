package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"rss_digest/internal/filter"
	"rss_digest/internal/llm"
	"rss_digest/internal/model"
	"rss_digest/internal/newsletter"
	"rss_digest/internal/refresh"
	"rss_digest/internal/storage"
)

const dateLayout = "2006-01-02"

type feedRequest struct {
	URL string `json:"url" binding:"required"`
}

type generateRequest struct {
	FeedIDs []int64      `json:"feed_ids"`
	Start   *time.Time   `json:"start"`
	End     *time.Time   `json:"end"`
	Limit   int          `json:"limit" binding:"gte=0"`
	Rules   []model.Rule `json:"rules"`
}

func (r generateRequest) toRequest() newsletter.Request {
	req := newsletter.Request{FeedIDs: r.FeedIDs, Limit: r.Limit, Rules: r.Rules}
	if r.Start != nil {
		req.Start = r.Start.UTC()
	}
	if r.End != nil {
		req.End = r.End.UTC()
	}
	return req
}

type settingsRequest struct {
	Tone         string `json:"tone" binding:"max=200"`
	Audience     string `json:"audience" binding:"max=200"`
	Language     string `json:"language" binding:"max=100"`
	Instructions string `json:"instructions" binding:"max=4000"`
}

func (s *Server) listFeeds(c *gin.Context) {
	feeds, err := s.svc.Feeds(c.Request.Context(), owner(c))
	if err != nil {
		s.fail(c, err)
		return
	}
	out := make([]feedJSON, 0, len(feeds))
	for _, f := range feeds {
		out = append(out, toFeedJSON(f))
	}
	c.JSON(http.StatusOK, gin.H{"feeds": out})
}

func (s *Server) createFeed(c *gin.Context) {
	var req feedRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	feed, err := s.svc.Subscribe(c.Request.Context(), owner(c), req.URL)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, toFeedJSON(*feed))
}

func (s *Server) validateFeed(c *gin.Context) {
	var req feedRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := s.svc.ValidateFeed(c.Request.Context(), req.URL); err != nil {
		c.JSON(http.StatusOK, gin.H{"valid": false, "error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"valid": true})
}

func (s *Server) deleteFeed(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid feed id"})
		return
	}
	if err := s.svc.Unsubscribe(c.Request.Context(), owner(c), id); err != nil {
		s.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) listArticles(c *gin.Context) {
	req, err := parseArticleQuery(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	res, err := s.svc.Collect(c.Request.Context(), owner(c), req)
	if err != nil {
		s.fail(c, err)
		return
	}
	articles := make([]articleJSON, 0, len(res.Articles))
	for _, a := range res.Articles {
		articles = append(articles, toArticleJSON(a))
	}
	c.JSON(http.StatusOK, gin.H{
		"articles": articles,
		"count":    res.Count,
		"refresh":  toSummaryJSON(res.Summary),
	})
}

func parseArticleQuery(c *gin.Context) (newsletter.Request, error) {
	var req newsletter.Request
	if raw := c.Query("feed_ids"); raw != "" {
		for _, part := range strings.Split(raw, ",") {
			id, err := strconv.ParseInt(strings.TrimSpace(part), 10, 64)
			if err != nil {
				return req, errors.New("feed_ids must be comma-separated integers")
			}
			req.FeedIDs = append(req.FeedIDs, id)
		}
	}
	var err error
	if req.Start, err = parseDate(c.Query("start"), false); err != nil {
		return req, err
	}
	if req.End, err = parseDate(c.Query("end"), true); err != nil {
		return req, err
	}
	if raw := c.Query("limit"); raw != "" {
		if req.Limit, err = strconv.Atoi(raw); err != nil || req.Limit < 0 {
			return req, errors.New("limit must be a non-negative integer")
		}
	}
	return req, nil
}

// parseDate accepts RFC 3339 or a bare date. A bare end date covers the
// whole day.
func parseDate(raw string, endOfDay bool) (time.Time, error) {
	if raw == "" {
		return time.Time{}, nil
	}
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t.UTC(), nil
	}
	t, err := time.Parse(dateLayout, raw)
	if err != nil {
		return time.Time{}, errors.New("dates must be RFC 3339 or YYYY-MM-DD")
	}
	if endOfDay {
		t = t.Add(24*time.Hour - time.Second)
	}
	return t, nil
}

func (s *Server) generateNewsletter(c *gin.Context) {
	var req generateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	res, err := s.svc.Generate(c.Request.Context(), owner(c), req.toRequest())
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, toResultJSON(res))
}

func (s *Server) listNewsletters(c *gin.Context) {
	list, err := s.svc.Newsletters(c.Request.Context(), owner(c))
	if err != nil {
		s.fail(c, err)
		return
	}
	out := make([]newsletterJSON, 0, len(list))
	for _, n := range list {
		out = append(out, toNewsletterJSON(n))
	}
	c.JSON(http.StatusOK, gin.H{"newsletters": out})
}

func (s *Server) getNewsletter(c *gin.Context) {
	n, err := s.svc.Newsletter(c.Request.Context(), owner(c), c.Param("id"))
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, toNewsletterJSON(*n))
}

func (s *Server) deleteNewsletter(c *gin.Context) {
	if err := s.svc.DeleteNewsletter(c.Request.Context(), owner(c), c.Param("id")); err != nil {
		s.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) getSettings(c *gin.Context) {
	st, err := s.svc.Settings(c.Request.Context(), owner(c))
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, toSettingsJSON(*st))
}

func (s *Server) putSettings(c *gin.Context) {
	var req settingsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	st, err := s.svc.UpdateSettings(c.Request.Context(), owner(c), model.Settings{
		Tone:         req.Tone,
		Audience:     req.Audience,
		Language:     req.Language,
		Instructions: req.Instructions,
	})
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, toSettingsJSON(*st))
}

// errorStatus maps service errors to a status and response body.
func errorStatus(err error) (int, gin.H) {
	var noContent *refresh.NoContentError
	switch {
	case errors.As(err, &noContent):
		return http.StatusUnprocessableEntity, gin.H{"error": noContent.Error(), "refresh": toSummaryJSON(noContent.Summary)}
	case errors.Is(err, storage.ErrNotFound):
		return http.StatusNotFound, gin.H{"error": "not found"}
	case errors.Is(err, storage.ErrDuplicate):
		return http.StatusConflict, gin.H{"error": "already subscribed"}
	case errors.Is(err, newsletter.ErrInvalidFeed):
		return http.StatusUnprocessableEntity, gin.H{"error": err.Error()}
	case errors.Is(err, refresh.ErrInvalidRange), errors.Is(err, filter.ErrInvalidRule):
		return http.StatusBadRequest, gin.H{"error": err.Error()}
	case errors.Is(err, llm.ErrInvalidDraft), errors.Is(err, llm.ErrEmptyResponse):
		return http.StatusBadGateway, gin.H{"error": "model returned an unusable draft"}
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, gin.H{"error": "generation timed out"}
	default:
		return http.StatusInternalServerError, gin.H{"error": "internal error"}
	}
}

func (s *Server) fail(c *gin.Context, err error) {
	status, body := errorStatus(err)
	if status >= http.StatusInternalServerError {
		s.log.Error("request failed", "path", c.FullPath(), "owner", owner(c), "error", err)
	}
	c.JSON(status, body)
}
