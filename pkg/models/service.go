package models

// ServicePort describes one port exposed by a managed service.
// TargetPort defaults to Port and Protocol defaults to TCP.
type ServicePort struct {
	Port       int32  `json:"port" binding:"required"`
	TargetPort int32  `json:"targetPort,omitempty"`
	Protocol   string `json:"protocol,omitempty"`
}

// CreateServiceRequest represents a request to create a managed service
type CreateServiceRequest struct {
	Name      string            `json:"name" binding:"required"`
	Namespace string            `json:"namespace"`
	Selector  map[string]string `json:"selector" binding:"required"`
	Ports     []ServicePort     `json:"ports" binding:"required"`
	Type      string            `json:"type,omitempty"`
}

// ServiceStatus is the observed state of a managed service
type ServiceStatus struct {
	Name      string            `json:"name"`
	Namespace string            `json:"namespace"`
	Type      string            `json:"type"`
	ClusterIP string            `json:"clusterIP,omitempty"`
	Ports     []ServicePort     `json:"ports,omitempty"`
	Selector  map[string]string `json:"selector,omitempty"`
}
