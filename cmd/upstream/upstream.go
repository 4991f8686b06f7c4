package main

import (
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// Item is one element of the demo collection.
type Item struct {
	ID        string                 `json:"id"`
	Data      map[string]interface{} `json:"data"`
	CreatedBy string                 `json:"createdBy,omitempty"`
	CreatedAt time.Time              `json:"createdAt"`
}

type upstream struct {
	name    string
	logger  *slog.Logger
	failing atomic.Bool

	mutex sync.RWMutex
	items map[string]Item
	order []string
}

func newUpstream(name string, log *slog.Logger) *gin.Engine {
	u := &upstream{
		name:   name,
		logger: log,
		items:  make(map[string]Item),
	}

	router := gin.New()
	router.Use(gin.Recovery())

	router.GET("/health", u.handleHealth)
	router.POST("/admin/fail", u.handleFail)

	collection := router.Group("/" + name)
	collection.Use(u.injectFailure)
	collection.GET("", u.handleList)
	collection.POST("", u.handleCreate)
	collection.GET("/:id", u.handleGet)

	return router
}

func (u *upstream) handleHealth(c *gin.Context) {
	status := "healthy"
	if u.failing.Load() {
		status = "unhealthy"
	}
	c.JSON(http.StatusOK, gin.H{"status": status})
}

func (u *upstream) handleFail(c *gin.Context) {
	var req struct {
		Failing bool `json:"failing"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": err.Error()})
		return
	}

	u.failing.Store(req.Failing)
	u.logger.Warn("Failure injection changed", slog.Bool("failing", req.Failing))
	c.JSON(http.StatusOK, gin.H{"failing": req.Failing})
}

func (u *upstream) injectFailure(c *gin.Context) {
	if u.failing.Load() {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"message": "injected failure"})
		return
	}
	c.Next()
}

func (u *upstream) handleList(c *gin.Context) {
	u.mutex.RLock()
	defer u.mutex.RUnlock()

	items := make([]Item, 0, len(u.order))
	for _, id := range u.order {
		items = append(items, u.items[id])
	}
	c.JSON(http.StatusOK, items)
}

func (u *upstream) handleCreate(c *gin.Context) {
	var data map[string]interface{}
	if err := c.ShouldBindJSON(&data); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": "invalid json"})
		return
	}

	item := Item{
		ID:        uuid.NewString(),
		Data:      data,
		CreatedBy: c.GetHeader("X-Forwarded-User"),
		CreatedAt: time.Now(),
	}

	u.mutex.Lock()
	u.items[item.ID] = item
	u.order = append(u.order, item.ID)
	u.mutex.Unlock()

	u.logger.Info("Item created", slog.String("id", item.ID))
	c.JSON(http.StatusCreated, item)
}

func (u *upstream) handleGet(c *gin.Context) {
	u.mutex.RLock()
	item, ok := u.items[c.Param("id")]
	u.mutex.RUnlock()

	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"message": u.name + " item not found"})
		return
	}
	c.JSON(http.StatusOK, item)
}
