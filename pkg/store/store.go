package store

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"

	"opencode-manager/pkg/models"
)

// Store provides JSON file-based persistence for the cluster settings.
// The settings survive restarts so a configured integration comes back
// enabled without re-entering the kubeconfig path.
type Store struct {
	dataDir string
	mu      sync.RWMutex
	cluster models.ClusterConfig
}

// New creates a new Store instance seeded with the given defaults.
// Persisted settings, if present, take precedence over the seed.
func New(dataDir string, defaults models.ClusterConfig) (*Store, error) {
	// Ensure data directory exists
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return nil, err
	}

	s := &Store{
		dataDir: dataDir,
		cluster: defaults,
	}

	// Load existing data
	if err := s.load(); err != nil {
		return nil, err
	}

	return s, nil
}

func (s *Store) clusterFile() string {
	return filepath.Join(s.dataDir, "cluster.json")
}

func (s *Store) load() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.clusterFile())
	if err != nil {
		if os.IsNotExist(err) {
			return nil // No data yet
		}
		return err
	}

	return json.Unmarshal(data, &s.cluster)
}

func (s *Store) save() error {
	data, err := json.MarshalIndent(s.cluster, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(s.clusterFile(), data, 0644)
}

// GetClusterConfig returns the current cluster settings
func (s *Store) GetClusterConfig() models.ClusterConfig {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cluster
}

// SetClusterConfig replaces the cluster settings and persists them
func (s *Store) SetClusterConfig(cfg models.ClusterConfig) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.cluster = cfg
	return s.save()
}
