package handlers

import (
	"context"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"opencode-manager/pkg/auth"
	"opencode-manager/pkg/config"
	"opencode-manager/pkg/k8s"
	"opencode-manager/pkg/models"
	"opencode-manager/pkg/store"

	"github.com/gin-gonic/gin"
)

// ExecWSPath is where the terminal bridge listens
const ExecWSPath = "/ws/kubernetes/exec"

// Handlers contains all HTTP handlers
type Handlers struct {
	config    *config.Config
	store     *store.Store
	auth      *auth.Auth
	connector *k8s.Connector
	manager   *k8s.Manager
}

// New creates a new Handlers instance
func New(cfg *config.Config, store *store.Store, auth *auth.Auth, connector *k8s.Connector, manager *k8s.Manager) *Handlers {
	return &Handlers{
		config:    cfg,
		store:     store,
		auth:      auth,
		connector: connector,
		manager:   manager,
	}
}

// ============== Auth Handlers ==============

// Login handles user login
func (h *Handlers) Login(c *gin.Context) {
	var req struct {
		Username string `json:"username" binding:"required"`
		Password string `json:"password" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}

	if err := h.auth.ValidateCredentials(req.Username, req.Password); err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid credentials"})
		return
	}

	token, err := h.auth.GenerateToken(req.Username)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to generate token"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"token": token})
}

// ============== Config Handlers ==============

// GetClusterConfig returns the Kubernetes integration settings
func (h *Handlers) GetClusterConfig(c *gin.Context) {
	c.JSON(http.StatusOK, h.store.GetClusterConfig())
}

// UpdateClusterConfig persists new settings and rebuilds the client
func (h *Handlers) UpdateClusterConfig(c *gin.Context) {
	var cfg models.ClusterConfig
	if err := c.ShouldBindJSON(&cfg); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request: " + err.Error()})
		return
	}

	if err := h.store.SetClusterConfig(cfg); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to save settings"})
		return
	}

	h.connector.UpdateConfig(cfg)

	c.JSON(http.StatusOK, gin.H{
		"message": "configuration updated",
		"enabled": h.connector.IsEnabled(),
	})
}

// TestConnection checks connectivity against the target namespace
func (h *Handlers) TestConnection(c *gin.Context) {
	var req struct {
		Namespace string `json:"namespace"`
	}
	// Body is optional
	_ = c.ShouldBindJSON(&req)

	ctx, cancel := context.WithTimeout(c.Request.Context(), 10*time.Second)
	defer cancel()

	c.JSON(http.StatusOK, h.connector.TestConnection(ctx, req.Namespace))
}

// ============== Pod Handlers ==============

// ListPods returns all managed pods
func (h *Handlers) ListPods(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 10*time.Second)
	defer cancel()

	pods := h.manager.ListPods(ctx, c.Query("namespace"), c.Query("labelSelector"))
	c.JSON(http.StatusOK, gin.H{"pods": pods, "count": len(pods)})
}

// GetPod returns one managed pod
func (h *Handlers) GetPod(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 10*time.Second)
	defer cancel()

	pod, err := h.manager.GetPod(ctx, c.Param("name"), c.Query("namespace"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if pod == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "pod not found"})
		return
	}
	c.JSON(http.StatusOK, pod)
}

// CreatePod creates a managed pod
func (h *Handlers) CreatePod(c *gin.Context) {
	var req models.CreatePodRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request: " + err.Error()})
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 30*time.Second)
	defer cancel()

	name, err := h.manager.CreatePod(ctx, req)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusCreated, gin.H{"name": name})
}

// DeletePod deletes a managed pod
func (h *Handlers) DeletePod(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 30*time.Second)
	defer cancel()

	ok := h.manager.DeletePod(ctx, c.Param("name"), c.Query("namespace"))
	c.JSON(http.StatusOK, gin.H{"deleted": ok})
}

// GetPodLogs tails a pod's logs
func (h *Handlers) GetPodLogs(c *gin.Context) {
	tailLines, _ := strconv.ParseInt(c.DefaultQuery("tailLines", "100"), 10, 64)

	ctx, cancel := context.WithTimeout(c.Request.Context(), 30*time.Second)
	defer cancel()

	logs, err := h.manager.GetPodLogs(ctx, c.Param("name"), c.Query("namespace"), tailLines)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.String(http.StatusOK, logs)
}

// ExecInPod runs a one-shot command in a pod and returns the
// aggregated output and exit code
func (h *Handlers) ExecInPod(c *gin.Context) {
	var req models.ExecRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request: " + err.Error()})
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Minute)
	defer cancel()

	stream, err := h.manager.ExecInPod(ctx, c.Param("name"), c.Query("namespace"), req.Command)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	result, err := stream.Collect()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, result)
}

// Cleanup reclaims completed pods older than the cutoff
func (h *Handlers) Cleanup(c *gin.Context) {
	var req struct {
		Namespace string `json:"namespace"`
		MaxAgeMs  int64  `json:"maxAgeMs"`
	}
	// Body is optional
	_ = c.ShouldBindJSON(&req)

	ctx, cancel := context.WithTimeout(c.Request.Context(), 60*time.Second)
	defer cancel()

	deleted, err := h.manager.CleanupOldPods(ctx, req.Namespace, time.Duration(req.MaxAgeMs)*time.Millisecond)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"deleted": deleted})
}

// ============== Service Handlers ==============

// ListServices returns all managed services
func (h *Handlers) ListServices(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 10*time.Second)
	defer cancel()

	services := h.manager.ListServices(ctx, c.Query("namespace"))
	c.JSON(http.StatusOK, gin.H{"services": services, "count": len(services)})
}

// GetService returns one managed service
func (h *Handlers) GetService(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 10*time.Second)
	defer cancel()

	svc, err := h.manager.GetService(ctx, c.Param("name"), c.Query("namespace"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if svc == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "service not found"})
		return
	}
	c.JSON(http.StatusOK, svc)
}

// CreateService creates a managed service
func (h *Handlers) CreateService(c *gin.Context) {
	var req models.CreateServiceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request: " + err.Error()})
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 30*time.Second)
	defer cancel()

	name, err := h.manager.CreateService(ctx, req)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusCreated, gin.H{"name": name})
}

// DeleteService deletes a managed service
func (h *Handlers) DeleteService(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 30*time.Second)
	defer cancel()

	ok := h.manager.DeleteService(ctx, c.Param("name"), c.Query("namespace"))
	c.JSON(http.StatusOK, gin.H{"deleted": ok})
}

// ============== Terminal Handlers ==============

// ExecWSURL returns the bridge WebSocket URL for a pod
func (h *Handlers) ExecWSURL(c *gin.Context) {
	pod := c.Query("pod")
	namespace := c.Query("namespace")
	if pod == "" || namespace == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "pod and namespace are required"})
		return
	}

	q := url.Values{}
	q.Set("pod", pod)
	q.Set("namespace", namespace)
	if container := c.Query("container"); container != "" {
		q.Set("container", container)
	}

	c.JSON(http.StatusOK, gin.H{"url": ExecWSPath + "?" + q.Encode()})
}
