package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/vk/burstci/internal/ctxlog"
	"github.com/vk/burstci/internal/model"
	"github.com/vk/burstci/internal/nodeid"
	"github.com/vk/burstci/internal/nodestore"
)

// instanceState is one entry of the /status response.
type instanceState struct {
	ID     string       `json:"id"`
	Status model.Status `json:"status"`
}

// newRouter serves the health and live status endpoints.
func newRouter(ctx context.Context, store nodestore.Store) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())

	logger := ctxlog.FromContext(ctx)
	router.GET("/health", func(c *gin.Context) {
		logger.Debug("Health check endpoint hit.", "remote_addr", c.Request.RemoteAddr, "path", c.Request.URL.Path)
		c.String(http.StatusOK, "OK\n")
	})
	router.GET("/status", func(c *gin.Context) {
		snapshot, err := store.Snapshot(c.Request.Context())
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		states := make([]instanceState, 0, len(snapshot))
		counts := make(map[model.Status]int)
		for id, status := range snapshot {
			states = append(states, instanceState{ID: id, Status: status})
			counts[status]++
		}
		sort.Slice(states, func(i, j int) bool { return states[i].ID < states[j].ID })
		c.JSON(http.StatusOK, gin.H{"instances": states, "counts": counts})
	})
	router.GET("/status/:id", func(c *gin.Context) {
		want, err := nodeid.Parse(c.Param("id"))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		snapshot, err := store.Snapshot(c.Request.Context())
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		for id, status := range snapshot {
			if got, err := nodeid.Parse(id); err != nil || !got.Equal(want) {
				continue
			}
			body := gin.H{"id": id, "status": status}
			if nodeErr, _ := store.GetError(c.Request.Context(), id); nodeErr != nil {
				body["error"] = nodeErr.Error()
			}
			c.JSON(http.StatusOK, body)
			return
		}
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown instance " + want.String()})
	})
	return router
}

// healthCheckServer starts the status server when a port is configured.
func (a *App) healthCheckServer() {
	logger := ctxlog.FromContext(a.ctx)
	if a.config.HealthcheckPort <= 0 {
		logger.Debug("Health check server disabled.")
		return
	}

	addr := fmt.Sprintf(":%d", a.config.HealthcheckPort)
	a.httpServer = &http.Server{
		Addr:              addr,
		Handler:           newRouter(a.ctx, a.store),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("🩺 Health check server starting", "address", fmt.Sprintf("http://localhost%s/health", addr))
		// ListenAndServe returns ErrServerClosed on graceful shutdown.
		if err := a.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("Health check server failed unexpectedly", "error", err)
		}
	}()
}

func (a *App) closeHealthCheckServer() error {
	logger := ctxlog.FromContext(a.ctx)
	if a.httpServer == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.WithoutCancel(a.ctx), 5*time.Second)
	defer cancel()

	logger.Info("🩺 Shutting down health check server...")
	if err := a.httpServer.Shutdown(ctx); err != nil {
		logger.Error("Health check server shutdown failed", "error", err)
		return err
	}
	a.httpServer = nil
	return nil
}
