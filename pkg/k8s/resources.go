package k8s

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"opencode-manager/pkg/models"

	"github.com/google/uuid"
	corev1 "k8s.io/api/core/v1"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/util/intstr"
)

const (
	// Label keys for managed resources.
	LabelApp       = "app"
	LabelManagedBy = "managed-by"

	// ManagerLabelValue marks resources owned by this system. It is the
	// sole selector cleanup is allowed to use.
	ManagerLabelValue = "opencode-manager"

	// ContainerName is the single container in every managed pod.
	ContainerName = "runner"
)

// ManagedBySelector selects only resources this system created.
const ManagedBySelector = LabelManagedBy + "=" + ManagerLabelValue

// Manager performs pod and service CRUD scoped to a namespace.
// All operations require an initialized connector; callers should check
// IsEnabled() or handle ErrNotInitialized.
type Manager struct {
	connector *Connector
	logger    *slog.Logger
}

// NewManager creates a resource manager backed by the given connector
func NewManager(connector *Connector, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{connector: connector, logger: logger}
}

// namespaceFor returns the explicit namespace or the configured default
func (m *Manager) namespaceFor(namespace string) string {
	if namespace != "" {
		return namespace
	}
	return m.connector.Config().ResolvedNamespace()
}

// managedLabels merges caller labels under the manager's own label set.
// The manager labels always win.
func managedLabels(extra map[string]string) map[string]string {
	labels := make(map[string]string, len(extra)+2)
	for k, v := range extra {
		labels[k] = v
	}
	labels[LabelApp] = ManagerLabelValue
	labels[LabelManagedBy] = ManagerLabelValue
	return labels
}

// ============== Pod Operations ==============

// CreatePod builds a managed pod spec and submits it, returning the
// server-assigned name. A missing name gets a generated one.
func (m *Manager) CreatePod(ctx context.Context, req models.CreatePodRequest) (string, error) {
	conn, err := m.connector.current()
	if err != nil {
		return "", err
	}

	name := req.Name
	if name == "" {
		name = "runner-" + uuid.NewString()[:8]
	}
	ns := m.namespaceFor(req.Namespace)

	pod := buildPod(name, ns, req)
	created, err := conn.client.CoreV1().Pods(ns).Create(ctx, pod, metav1.CreateOptions{})
	if err != nil {
		return "", fmt.Errorf("creating pod %s: %w", name, err)
	}

	m.logger.Info("created pod", "pod", created.Name, "namespace", ns, "image", req.Image)
	return created.Name, nil
}

func buildPod(name, namespace string, req models.CreatePodRequest) *corev1.Pod {
	var envVars []corev1.EnvVar
	for k, v := range req.Env {
		envVars = append(envVars, corev1.EnvVar{Name: k, Value: v})
	}

	var volumes []corev1.Volume
	var mounts []corev1.VolumeMount
	for _, v := range req.Volumes {
		volumes = append(volumes, corev1.Volume{
			Name: v.Name,
			VolumeSource: corev1.VolumeSource{
				HostPath: &corev1.HostPathVolumeSource{Path: v.HostPath},
			},
		})
		mounts = append(mounts, corev1.VolumeMount{Name: v.Name, MountPath: v.MountPath})
	}

	return &corev1.Pod{
		ObjectMeta: metav1.ObjectMeta{
			Name:      name,
			Namespace: namespace,
			Labels:    managedLabels(req.Labels),
		},
		Spec: corev1.PodSpec{
			RestartPolicy: corev1.RestartPolicyNever,
			Containers: []corev1.Container{
				{
					Name:         ContainerName,
					Image:        req.Image,
					Command:      req.Command,
					Args:         req.Args,
					WorkingDir:   req.WorkingDir,
					Env:          envVars,
					VolumeMounts: mounts,
				},
			},
			Volumes: volumes,
		},
	}
}

// GetPod returns the observed status of a pod, or nil when it does not
// exist. Only transport failures surface as errors.
func (m *Manager) GetPod(ctx context.Context, name, namespace string) (*models.PodStatus, error) {
	conn, err := m.connector.current()
	if err != nil {
		return nil, err
	}

	ns := m.namespaceFor(namespace)
	pod, err := conn.client.CoreV1().Pods(ns).Get(ctx, name, metav1.GetOptions{})
	if apierrors.IsNotFound(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("getting pod %s: %w", name, err)
	}

	status := podStatus(pod)
	return &status, nil
}

// ListPods lists managed pods. A transport error yields an empty list
// so dashboards stay usable during transient cluster issues.
func (m *Manager) ListPods(ctx context.Context, namespace, labelSelector string) []models.PodStatus {
	conn, err := m.connector.current()
	if err != nil {
		return []models.PodStatus{}
	}

	selector := ManagedBySelector
	if labelSelector != "" {
		selector = selector + "," + labelSelector
	}

	ns := m.namespaceFor(namespace)
	list, err := conn.client.CoreV1().Pods(ns).List(ctx, metav1.ListOptions{LabelSelector: selector})
	if err != nil {
		m.logger.Warn("listing pods failed", "namespace", ns, "error", err)
		return []models.PodStatus{}
	}

	result := make([]models.PodStatus, 0, len(list.Items))
	for i := range list.Items {
		result = append(result, podStatus(&list.Items[i]))
	}
	return result
}

// DeletePod deletes a pod and reports success. Deleting a pod that is
// already gone counts as success so cleanup stays idempotent.
func (m *Manager) DeletePod(ctx context.Context, name, namespace string) bool {
	conn, err := m.connector.current()
	if err != nil {
		return false
	}

	ns := m.namespaceFor(namespace)
	err = conn.client.CoreV1().Pods(ns).Delete(ctx, name, metav1.DeleteOptions{})
	if err != nil && !apierrors.IsNotFound(err) {
		m.logger.Warn("deleting pod failed", "pod", name, "namespace", ns, "error", err)
		return false
	}
	return true
}

// GetPodLogs tails a pod's logs
func (m *Manager) GetPodLogs(ctx context.Context, name, namespace string, tailLines int64) (string, error) {
	conn, err := m.connector.current()
	if err != nil {
		return "", err
	}

	ns := m.namespaceFor(namespace)
	opts := &corev1.PodLogOptions{Container: ContainerName}
	if tailLines > 0 {
		opts.TailLines = &tailLines
	}

	stream, err := conn.client.CoreV1().Pods(ns).GetLogs(name, opts).Stream(ctx)
	if err != nil {
		return "", fmt.Errorf("streaming logs for pod %s: %w", name, err)
	}
	defer stream.Close()

	data, err := io.ReadAll(stream)
	if err != nil {
		return "", fmt.Errorf("reading logs for pod %s: %w", name, err)
	}
	return string(data), nil
}

// podStatus derives the API view of a pod
func podStatus(pod *corev1.Pod) models.PodStatus {
	ready := false
	for _, cond := range pod.Status.Conditions {
		if cond.Type == corev1.PodReady && cond.Status == corev1.ConditionTrue {
			ready = true
			break
		}
	}

	var age int64
	if pod.Status.StartTime != nil {
		age = int64(time.Since(pod.Status.StartTime.Time).Seconds())
	}

	image := ""
	if len(pod.Spec.Containers) > 0 {
		image = pod.Spec.Containers[0].Image
	}

	return models.PodStatus{
		Name:       pod.Name,
		Namespace:  pod.Namespace,
		Phase:      string(pod.Status.Phase),
		Ready:      ready,
		AgeSeconds: age,
		Image:      image,
		Labels:     pod.Labels,
		CreatedAt:  pod.CreationTimestamp.Time,
	}
}

// ============== Service Operations ==============

// CreateService builds a managed service spec and submits it
func (m *Manager) CreateService(ctx context.Context, req models.CreateServiceRequest) (string, error) {
	conn, err := m.connector.current()
	if err != nil {
		return "", err
	}

	ns := m.namespaceFor(req.Namespace)
	svc := buildService(req.Name, ns, req)
	created, err := conn.client.CoreV1().Services(ns).Create(ctx, svc, metav1.CreateOptions{})
	if err != nil {
		return "", fmt.Errorf("creating service %s: %w", req.Name, err)
	}

	m.logger.Info("created service", "service", created.Name, "namespace", ns)
	return created.Name, nil
}

func buildService(name, namespace string, req models.CreateServiceRequest) *corev1.Service {
	svcType := corev1.ServiceTypeClusterIP
	if req.Type != "" {
		svcType = corev1.ServiceType(req.Type)
	}

	ports := make([]corev1.ServicePort, 0, len(req.Ports))
	for _, p := range req.Ports {
		target := p.TargetPort
		if target == 0 {
			target = p.Port
		}
		protocol := corev1.ProtocolTCP
		if p.Protocol != "" {
			protocol = corev1.Protocol(strings.ToUpper(p.Protocol))
		}
		ports = append(ports, corev1.ServicePort{
			Port:       p.Port,
			TargetPort: intstr.FromInt32(target),
			Protocol:   protocol,
		})
	}

	return &corev1.Service{
		ObjectMeta: metav1.ObjectMeta{
			Name:      name,
			Namespace: namespace,
			Labels:    managedLabels(nil),
		},
		Spec: corev1.ServiceSpec{
			Selector: req.Selector,
			Ports:    ports,
			Type:     svcType,
		},
	}
}

// GetService returns the observed status of a service, or nil when it
// does not exist
func (m *Manager) GetService(ctx context.Context, name, namespace string) (*models.ServiceStatus, error) {
	conn, err := m.connector.current()
	if err != nil {
		return nil, err
	}

	ns := m.namespaceFor(namespace)
	svc, err := conn.client.CoreV1().Services(ns).Get(ctx, name, metav1.GetOptions{})
	if apierrors.IsNotFound(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("getting service %s: %w", name, err)
	}

	status := serviceStatus(svc)
	return &status, nil
}

// ListServices lists managed services, degrading to an empty list on
// transport failure
func (m *Manager) ListServices(ctx context.Context, namespace string) []models.ServiceStatus {
	conn, err := m.connector.current()
	if err != nil {
		return []models.ServiceStatus{}
	}

	ns := m.namespaceFor(namespace)
	list, err := conn.client.CoreV1().Services(ns).List(ctx, metav1.ListOptions{LabelSelector: ManagedBySelector})
	if err != nil {
		m.logger.Warn("listing services failed", "namespace", ns, "error", err)
		return []models.ServiceStatus{}
	}

	result := make([]models.ServiceStatus, 0, len(list.Items))
	for i := range list.Items {
		result = append(result, serviceStatus(&list.Items[i]))
	}
	return result
}

// DeleteService deletes a service and reports success
func (m *Manager) DeleteService(ctx context.Context, name, namespace string) bool {
	conn, err := m.connector.current()
	if err != nil {
		return false
	}

	ns := m.namespaceFor(namespace)
	err = conn.client.CoreV1().Services(ns).Delete(ctx, name, metav1.DeleteOptions{})
	if err != nil && !apierrors.IsNotFound(err) {
		m.logger.Warn("deleting service failed", "service", name, "namespace", ns, "error", err)
		return false
	}
	return true
}

func serviceStatus(svc *corev1.Service) models.ServiceStatus {
	ports := make([]models.ServicePort, 0, len(svc.Spec.Ports))
	for _, p := range svc.Spec.Ports {
		ports = append(ports, models.ServicePort{
			Port:       p.Port,
			TargetPort: p.TargetPort.IntVal,
			Protocol:   string(p.Protocol),
		})
	}
	return models.ServiceStatus{
		Name:      svc.Name,
		Namespace: svc.Namespace,
		Type:      string(svc.Spec.Type),
		ClusterIP: svc.Spec.ClusterIP,
		Ports:     ports,
		Selector:  svc.Spec.Selector,
	}
}
