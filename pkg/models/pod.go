package models

import "time"

// HostPathVolume describes a host directory mounted into a managed pod
type HostPathVolume struct {
	Name      string `json:"name" binding:"required"`
	HostPath  string `json:"hostPath" binding:"required"`
	MountPath string `json:"mountPath" binding:"required"`
}

// CreatePodRequest represents a request to create a managed pod
type CreatePodRequest struct {
	Name       string            `json:"name"`
	Namespace  string            `json:"namespace"`
	Image      string            `json:"image" binding:"required"`
	Command    []string          `json:"command,omitempty"`
	Args       []string          `json:"args,omitempty"`
	WorkingDir string            `json:"workingDir,omitempty"`
	Env        map[string]string `json:"env,omitempty"`
	Labels     map[string]string `json:"labels,omitempty"`
	Volumes    []HostPathVolume  `json:"volumes,omitempty"`
}

// PodStatus is the observed state of a managed pod
type PodStatus struct {
	Name       string            `json:"name"`
	Namespace  string            `json:"namespace"`
	Phase      string            `json:"phase"`
	Ready      bool              `json:"ready"`
	AgeSeconds int64             `json:"ageSeconds"`
	Image      string            `json:"image,omitempty"`
	Labels     map[string]string `json:"labels,omitempty"`
	CreatedAt  time.Time         `json:"createdAt"`
}
