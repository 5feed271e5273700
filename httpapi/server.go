package httpapi

import (
	"context"
	"log"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"staywatch/engine"
	"staywatch/models"
	"staywatch/storage"
)

// Server exposes search management and execution control over HTTP.
type Server struct {
	store  storage.Store
	engine *engine.Engine
	router *gin.Engine
}

func NewServer(store storage.Store, eng *engine.Engine) *Server {
	s := &Server{
		store:  store,
		engine: eng,
		router: gin.New(),
	}
	s.router.Use(gin.Recovery())
	s.routes()
	return s
}

func (s *Server) routes() {
	api := s.router.Group("/api")

	api.GET("/searches", s.listSearches)
	api.POST("/searches", s.createSearch)
	api.GET("/searches/:id", s.getSearch)
	api.PUT("/searches/:id", s.updateSearch)
	api.DELETE("/searches/:id", s.deleteSearch)

	api.POST("/searches/:id/execute", s.executeSearch)
	api.GET("/searches/:id/results", s.listResults)
	api.GET("/searches/:id/executions/latest", s.latestExecution)
	api.GET("/searches/:id/notifications", s.listNotifications)

	api.GET("/executions/:id", s.getExecution)
	api.POST("/executions/:id/cancel", s.cancelExecution)

	api.POST("/run-due", s.runDue)
	api.GET("/limiters", s.limiterStatus)
}

// Handler returns the underlying handler, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) Run(addr string) error {
	log.Printf("HTTP API listening on %s", addr)
	return s.router.Run(addr)
}

func (s *Server) listSearches(c *gin.Context) {
	enabledOnly := c.Query("enabled") == "true"
	searches, err := s.store.GetAllSearches(c.Request.Context(), enabledOnly)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if searches == nil {
		searches = []models.Search{}
	}
	c.JSON(http.StatusOK, searches)
}

func (s *Server) createSearch(c *gin.Context) {
	var search models.Search
	if err := c.ShouldBindJSON(&search); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if search.Name == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "name is required"})
		return
	}
	if err := s.store.CreateSearch(c.Request.Context(), &search); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusCreated, search)
}

func (s *Server) getSearch(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	search, err := s.store.GetSearch(c.Request.Context(), id)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if search == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "search not found"})
		return
	}
	c.JSON(http.StatusOK, search)
}

func (s *Server) updateSearch(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	existing, err := s.store.GetSearch(c.Request.Context(), id)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if existing == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "search not found"})
		return
	}

	var search models.Search
	if err := c.ShouldBindJSON(&search); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	search.ID = id
	if err := s.store.UpdateSearch(c.Request.Context(), &search); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, search)
}

func (s *Server) deleteSearch(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	if err := s.store.DeleteSearch(c.Request.Context(), id); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.Status(http.StatusNoContent)
}

// executeSearch kicks off the search in the background and returns
// immediately; progress is polled via the executions endpoints.
func (s *Server) executeSearch(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	search, err := s.store.GetSearch(c.Request.Context(), id)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if search == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "search not found"})
		return
	}

	go func() {
		if _, err := s.engine.ExecuteSearch(context.Background(), id); err != nil {
			log.Printf("Error executing search %s: %v", id, err)
		}
	}()
	c.JSON(http.StatusAccepted, gin.H{"status": "started", "search_id": id})
}

func (s *Server) listResults(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))
	results, err := s.store.GetSearchResults(c.Request.Context(), id, limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if results == nil {
		results = []models.SearchResult{}
	}
	c.JSON(http.StatusOK, results)
}

func (s *Server) latestExecution(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	exec, err := s.store.GetLatestExecution(c.Request.Context(), id)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if exec == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "no executions for search"})
		return
	}
	c.JSON(http.StatusOK, exec)
}

func (s *Server) listNotifications(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))
	logs, err := s.store.GetNotificationLogs(c.Request.Context(), id, limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if logs == nil {
		logs = []models.NotificationLog{}
	}
	c.JSON(http.StatusOK, logs)
}

func (s *Server) getExecution(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	exec, err := s.store.GetExecution(c.Request.Context(), id)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if exec == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "execution not found"})
		return
	}
	c.JSON(http.StatusOK, exec)
}

func (s *Server) cancelExecution(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	if !s.engine.Registry().Cancel(id) {
		c.JSON(http.StatusNotFound, gin.H{"error": "execution not running"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "cancelling", "execution_id": id})
}

func (s *Server) runDue(c *gin.Context) {
	go func() {
		if err := s.engine.ExecuteAllDueSearches(context.Background()); err != nil {
			log.Printf("Error running due searches: %v", err)
		}
	}()
	c.JSON(http.StatusAccepted, gin.H{"status": "started"})
}

func (s *Server) limiterStatus(c *gin.Context) {
	probe, search, rate := s.engine.LimiterStatus()
	c.JSON(http.StatusOK, gin.H{
		"probe":             probe,
		"search":            search,
		"requests_per_min":  rate,
		"running_execution": s.engine.Registry().Running(),
	})
}

func parseID(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return uuid.Nil, false
	}
	return id, true
}
