// Package k8s manages the cluster client lifecycle and the pods and
// services the agent runs its builds in. A disabled or misconfigured
// cluster integration never stops the rest of the process; callers
// observe it as IsEnabled()==false and failed connection tests.
package k8s

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"sync"
	"sync/atomic"

	"opencode-manager/pkg/models"

	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/rest"
	"k8s.io/client-go/tools/clientcmd"
)

// ErrNotInitialized is returned when a cluster operation is attempted
// while the integration is disabled or the client failed to build.
var ErrNotInitialized = errors.New("kubernetes client not initialized")

// newClientset builds a clientset from a REST config. Tests replace it.
var newClientset = func(cfg *rest.Config) (kubernetes.Interface, error) {
	return kubernetes.NewForConfig(cfg)
}

// connection bundles a live API client with its resolved auth context.
// A connection is immutable once built; config changes swap in a whole
// new value so in-flight calls never observe a partial update.
type connection struct {
	client     kubernetes.Interface
	restConfig *rest.Config
	namespace  string
}

// Connector resolves cluster credentials and owns the client lifecycle
type Connector struct {
	logger *slog.Logger

	mu   sync.Mutex // serializes Initialize and UpdateConfig
	cfg  models.ClusterConfig
	conn atomic.Pointer[connection]
}

// NewConnector creates a connector for the given settings. Call
// Initialize before use.
func NewConnector(cfg models.ClusterConfig, logger *slog.Logger) *Connector {
	if logger == nil {
		logger = slog.Default()
	}
	return &Connector{logger: logger, cfg: cfg}
}

// Initialize builds the API client from the current settings.
// Credential resolution order: kubeconfig file at the configured path,
// then in-cluster service account. If neither works the integration is
// disabled; initialization failure is never fatal to the host process.
func (c *Connector) Initialize() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.initializeLocked()
}

func (c *Connector) initializeLocked() {
	c.conn.Store(nil)

	if !c.cfg.Enabled {
		return
	}

	restConfig, source, err := c.resolveRESTConfig()
	if err != nil {
		c.logger.Warn("kubernetes integration disabled: no usable credentials",
			"kubeconfig", c.cfg.ResolvedKubeconfigPath(), "error", err)
		c.cfg.Enabled = false
		return
	}

	client, err := newClientset(restConfig)
	if err != nil {
		c.logger.Warn("kubernetes integration disabled: client build failed", "error", err)
		c.cfg.Enabled = false
		return
	}

	c.conn.Store(&connection{
		client:     client,
		restConfig: restConfig,
		namespace:  c.cfg.ResolvedNamespace(),
	})
	c.logger.Info("kubernetes client initialized",
		"source", source, "namespace", c.cfg.ResolvedNamespace())
}

// resolveRESTConfig loads credentials from the kubeconfig file if it
// exists, otherwise from the in-cluster service account.
func (c *Connector) resolveRESTConfig() (*rest.Config, string, error) {
	path := c.cfg.ResolvedKubeconfigPath()
	if _, err := os.Stat(path); err == nil {
		restConfig, err := clientcmd.BuildConfigFromFlags("", path)
		if err != nil {
			return nil, "", err
		}
		return restConfig, "kubeconfig", nil
	}

	restConfig, err := rest.InClusterConfig()
	if err != nil {
		return nil, "", err
	}
	return restConfig, "in-cluster", nil
}

// UpdateConfig replaces the settings and rebuilds the client. The
// previous client is always discarded first, even if the new config is
// identical, so stale credentials are never reused.
func (c *Connector) UpdateConfig(cfg models.ClusterConfig) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.conn.Store(nil)
	c.cfg = cfg
	c.initializeLocked()
}

// Config returns the current settings
func (c *Connector) Config() models.ClusterConfig {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cfg
}

// IsEnabled reports whether a usable client is available
func (c *Connector) IsEnabled() bool {
	return c.conn.Load() != nil
}

// current returns the live connection or ErrNotInitialized
func (c *Connector) current() (*connection, error) {
	conn := c.conn.Load()
	if conn == nil {
		return nil, ErrNotInitialized
	}
	return conn, nil
}

// Client returns the API client, or ErrNotInitialized when disabled
func (c *Connector) Client() (kubernetes.Interface, error) {
	conn, err := c.current()
	if err != nil {
		return nil, err
	}
	return conn.client, nil
}

// TestConnection performs a lightweight list against the target
// namespace and reports connectivity. It never mutates state and never
// returns an error; failures are reported in the status.
func (c *Connector) TestConnection(ctx context.Context, namespace string) models.ConnectionStatus {
	conn, err := c.current()
	if err != nil {
		return models.ConnectionStatus{Connected: false, Error: err.Error()}
	}

	ns := namespace
	if ns == "" {
		ns = conn.namespace
	}
	if ns == "" {
		ns = models.DefaultNamespace
	}

	if _, err := conn.client.CoreV1().Pods(ns).List(ctx, metav1.ListOptions{Limit: 1}); err != nil {
		return models.ConnectionStatus{Connected: false, Namespace: ns, Error: err.Error()}
	}
	return models.ConnectionStatus{Connected: true, Namespace: ns}
}
