package models

// DefaultKubeconfigPath is where the manager looks for a kubeconfig
// when the settings store does not specify one.
const DefaultKubeconfigPath = "/workspace/.kube/kubeconfig"

// DefaultNamespace is the namespace used when none is configured.
const DefaultNamespace = "default"

// ClusterConfig represents the Kubernetes integration settings
type ClusterConfig struct {
	Enabled        bool   `json:"enabled" yaml:"enabled"`
	Namespace      string `json:"namespace,omitempty" yaml:"namespace"`
	KubeconfigPath string `json:"kubeconfigPath,omitempty" yaml:"kubeconfig_path"`
}

// ResolvedNamespace returns the configured namespace or the default
func (c ClusterConfig) ResolvedNamespace() string {
	if c.Namespace == "" {
		return DefaultNamespace
	}
	return c.Namespace
}

// ResolvedKubeconfigPath returns the configured kubeconfig path or the default
func (c ClusterConfig) ResolvedKubeconfigPath() string {
	if c.KubeconfigPath == "" {
		return DefaultKubeconfigPath
	}
	return c.KubeconfigPath
}

// ConnectionStatus represents the result of a cluster connection test
type ConnectionStatus struct {
	Connected bool   `json:"connected"`
	Namespace string `json:"namespace,omitempty"`
	Error     string `json:"error,omitempty"`
}
