package handlers

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"opencode-manager/pkg/auth"
	"opencode-manager/pkg/config"
	"opencode-manager/pkg/k8s"
	"opencode-manager/pkg/models"
	"opencode-manager/pkg/store"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newTestRouter wires the full route table over a disabled cluster
// integration, with auth turned off so handlers are hit directly.
func newTestRouter(t *testing.T) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	cfg := config.DefaultConfig()
	cfg.Auth.Enabled = false
	cfg.DataDir = t.TempDir()

	dataStore, err := store.New(cfg.DataDir, cfg.Cluster)
	require.NoError(t, err)

	authService := auth.New(&cfg.Auth)
	connector := k8s.NewConnector(dataStore.GetClusterConfig(), nil)
	connector.Initialize()
	manager := k8s.NewManager(connector, nil)

	h := New(cfg, dataStore, authService, connector, manager)

	r := gin.New()
	r.Use(authService.Middleware())
	api := r.Group("/api")
	api.POST("/login", h.Login)
	kube := api.Group("/kubernetes")
	kube.GET("/config", h.GetClusterConfig)
	kube.PUT("/config", h.UpdateClusterConfig)
	kube.POST("/test-connection", h.TestConnection)
	kube.GET("/pods", h.ListPods)
	kube.POST("/pods", h.CreatePod)
	kube.GET("/pods/:name", h.GetPod)
	kube.DELETE("/pods/:name", h.DeletePod)
	kube.POST("/cleanup", h.Cleanup)
	kube.GET("/services", h.ListServices)
	kube.GET("/exec-ws-url", h.ExecWSURL)
	return r
}

func doJSON(t *testing.T, r *gin.Engine, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestLogin(t *testing.T) {
	r := newTestRouter(t)

	w := doJSON(t, r, http.MethodPost, "/api/login", gin.H{"username": "admin", "password": "admin123"})
	require.Equal(t, http.StatusOK, w.Code)

	var resp map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.NotEmpty(t, resp["token"])

	w = doJSON(t, r, http.MethodPost, "/api/login", gin.H{"username": "admin", "password": "wrong"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = doJSON(t, r, http.MethodPost, "/api/login", gin.H{"username": "admin"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestClusterConfigRoundTrip(t *testing.T) {
	r := newTestRouter(t)

	w := doJSON(t, r, http.MethodGet, "/api/kubernetes/config", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var cfg models.ClusterConfig
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &cfg))
	assert.False(t, cfg.Enabled)

	update := models.ClusterConfig{Enabled: false, Namespace: "builds", KubeconfigPath: "/tmp/kc"}
	w = doJSON(t, r, http.MethodPut, "/api/kubernetes/config", update)
	require.Equal(t, http.StatusOK, w.Code)

	w = doJSON(t, r, http.MethodGet, "/api/kubernetes/config", nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &cfg))
	assert.Equal(t, "builds", cfg.Namespace)
}

func TestTestConnection_Disabled(t *testing.T) {
	r := newTestRouter(t)

	w := doJSON(t, r, http.MethodPost, "/api/kubernetes/test-connection", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var status models.ConnectionStatus
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &status))
	assert.False(t, status.Connected)
	assert.NotEmpty(t, status.Error)
}

func TestListPods_DisabledReturnsEmpty(t *testing.T) {
	r := newTestRouter(t)

	w := doJSON(t, r, http.MethodGet, "/api/kubernetes/pods", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Pods  []models.PodStatus `json:"pods"`
		Count int                `json:"count"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.NotNil(t, resp.Pods)
	assert.Zero(t, resp.Count)
}

func TestCreatePod_Validation(t *testing.T) {
	r := newTestRouter(t)

	// image is required
	w := doJSON(t, r, http.MethodPost, "/api/kubernetes/pods", gin.H{"name": "runner-1"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestCreatePod_Disabled(t *testing.T) {
	r := newTestRouter(t)

	w := doJSON(t, r, http.MethodPost, "/api/kubernetes/pods", gin.H{"image": "alpine:3"})
	assert.Equal(t, http.StatusInternalServerError, w.Code)
}

func TestGetPod_Disabled(t *testing.T) {
	r := newTestRouter(t)

	w := doJSON(t, r, http.MethodGet, "/api/kubernetes/pods/runner-1", nil)
	assert.Equal(t, http.StatusInternalServerError, w.Code)
}

func TestDeletePod_Disabled(t *testing.T) {
	r := newTestRouter(t)

	w := doJSON(t, r, http.MethodDelete, "/api/kubernetes/pods/runner-1", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var resp map[string]bool
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.False(t, resp["deleted"])
}

func TestCleanup_Disabled(t *testing.T) {
	r := newTestRouter(t)

	w := doJSON(t, r, http.MethodPost, "/api/kubernetes/cleanup", nil)
	assert.Equal(t, http.StatusInternalServerError, w.Code)
}

func TestListServices_DisabledReturnsEmpty(t *testing.T) {
	r := newTestRouter(t)

	w := doJSON(t, r, http.MethodGet, "/api/kubernetes/services", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Services []models.ServiceStatus `json:"services"`
		Count    int                    `json:"count"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Zero(t, resp.Count)
}

func TestExecWSURL(t *testing.T) {
	r := newTestRouter(t)

	w := doJSON(t, r, http.MethodGet, "/api/kubernetes/exec-ws-url?pod=runner-1&namespace=builds&container=runner", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var resp map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Contains(t, resp["url"], ExecWSPath)
	assert.Contains(t, resp["url"], "pod=runner-1")
	assert.Contains(t, resp["url"], "namespace=builds")
	assert.Contains(t, resp["url"], "container=runner")

	w = doJSON(t, r, http.MethodGet, "/api/kubernetes/exec-ws-url?pod=runner-1", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}
