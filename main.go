package main

import (
	"fmt"
	"log"

	"opencode-manager/pkg/auth"
	"opencode-manager/pkg/config"
	"opencode-manager/pkg/handlers"
	"opencode-manager/pkg/k8s"
	"opencode-manager/pkg/store"
	"opencode-manager/pkg/terminal"

	"github.com/gin-gonic/gin"
)

func main() {
	// Load configuration
	cfg, err := config.Load("config.yaml")
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Initialize settings store (persisted cluster config wins over file defaults)
	dataStore, err := store.New(cfg.DataDir, cfg.Cluster)
	if err != nil {
		log.Fatalf("Failed to initialize store: %v", err)
	}

	// Initialize auth
	authService := auth.New(&cfg.Auth)

	// Initialize the cluster connector and resource manager.
	// A failed initialization disables the integration, never the process.
	connector := k8s.NewConnector(dataStore.GetClusterConfig(), nil)
	connector.Initialize()
	manager := k8s.NewManager(connector, nil)

	// Terminal bridge reads the kubeconfig itself on each connection
	bridge := terminal.New(func() string {
		return connector.Config().ResolvedKubeconfigPath()
	}, nil)

	// Initialize handlers
	h := handlers.New(cfg, dataStore, authService, connector, manager)

	// Setup Gin router
	gin.SetMode(gin.ReleaseMode)
	r := gin.Default()

	// Auth middleware
	r.Use(authService.Middleware())

	// API routes
	api := r.Group("/api")
	{
		api.POST("/login", h.Login)

		kube := api.Group("/kubernetes")
		{
			kube.GET("/config", h.GetClusterConfig)
			kube.PUT("/config", h.UpdateClusterConfig)
			kube.POST("/test-connection", h.TestConnection)

			kube.GET("/pods", h.ListPods)
			kube.POST("/pods", h.CreatePod)
			kube.GET("/pods/:name", h.GetPod)
			kube.DELETE("/pods/:name", h.DeletePod)
			kube.GET("/pods/:name/logs", h.GetPodLogs)
			kube.POST("/pods/:name/exec", h.ExecInPod)

			kube.POST("/cleanup", h.Cleanup)

			kube.GET("/services", h.ListServices)
			kube.POST("/services", h.CreateService)
			kube.GET("/services/:name", h.GetService)
			kube.DELETE("/services/:name", h.DeleteService)

			kube.GET("/exec-ws-url", h.ExecWSURL)
		}
	}

	// Terminal bridge WebSocket endpoint
	r.GET(handlers.ExecWSPath, gin.WrapH(bridge))

	// Start server
	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	log.Printf("Starting opencode-manager on http://%s", addr)
	if connector.IsEnabled() {
		log.Printf("Kubernetes integration enabled (namespace: %s)", connector.Config().ResolvedNamespace())
	} else {
		log.Printf("Kubernetes integration disabled")
	}

	if err := r.Run(addr); err != nil {
		log.Fatalf("Failed to start server: %v", err)
	}
}
