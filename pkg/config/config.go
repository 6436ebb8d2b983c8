package config

import (
	"os"

	"opencode-manager/pkg/models"

	"github.com/goccy/go-yaml"
)

// Config represents the application configuration
type Config struct {
	Server   ServerConfig         `yaml:"server"`
	Auth     AuthConfig           `yaml:"auth"`
	Cluster  models.ClusterConfig `yaml:"cluster"`
	DataDir  string               `yaml:"data_dir"`
	LogLevel string               `yaml:"log_level"`
}

// ServerConfig represents HTTP server configuration
type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// AuthConfig represents authentication configuration
type AuthConfig struct {
	Enabled   bool   `yaml:"enabled"`
	Username  string `yaml:"username"`
	Password  string `yaml:"password"`
	JWTSecret string `yaml:"jwt_secret"`
}

// DefaultConfig returns the default configuration
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host: "0.0.0.0",
			Port: 8080,
		},
		Auth: AuthConfig{
			Enabled:   true,
			Username:  "admin",
			Password:  "admin123",
			JWTSecret: "opencode-manager-secret-key-change-me",
		},
		Cluster: models.ClusterConfig{
			Enabled:        false,
			Namespace:      models.DefaultNamespace,
			KubeconfigPath: models.DefaultKubeconfigPath,
		},
		DataDir:  "./data",
		LogLevel: "info",
	}
}

// Load loads configuration from a YAML file
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			applyEnvOverrides(cfg)
			return cfg, nil // Return default config if file doesn't exist
		}
		return nil, err
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}

	// Override with environment variables
	applyEnvOverrides(cfg)

	return cfg, nil
}

// applyEnvOverrides overrides configuration with environment variables
func applyEnvOverrides(cfg *Config) {
	if username := os.Getenv("AUTH_USERNAME"); username != "" {
		cfg.Auth.Username = username
	}
	if password := os.Getenv("AUTH_PASSWORD"); password != "" {
		cfg.Auth.Password = password
	}
	if jwtSecret := os.Getenv("AUTH_JWT_SECRET"); jwtSecret != "" {
		cfg.Auth.JWTSecret = jwtSecret
	}
	if kubeconfig := os.Getenv("KUBECONFIG_PATH"); kubeconfig != "" {
		cfg.Cluster.KubeconfigPath = kubeconfig
	}
	if namespace := os.Getenv("K8S_NAMESPACE"); namespace != "" {
		cfg.Cluster.Namespace = namespace
	}
}

// Save saves configuration to a YAML file
func (c *Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}
