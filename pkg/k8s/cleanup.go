package k8s

import (
	"context"
	"fmt"
	"time"

	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
)

// DefaultMaxPodAge is how long a completed pod may linger before
// cleanup reclaims it.
const DefaultMaxPodAge = 24 * time.Hour

// CleanupOldPods deletes managed pods that completed successfully more
// than maxAge ago and returns how many were deleted. Only pods carrying
// the managed-by label are candidates, and only phase Succeeded is ever
// reclaimed: Running, Pending and Failed pods are left alone regardless
// of age so running work is not interrupted and failure evidence is
// kept. Individual delete failures are skipped, not fatal to the batch.
func (m *Manager) CleanupOldPods(ctx context.Context, namespace string, maxAge time.Duration) (int, error) {
	conn, err := m.connector.current()
	if err != nil {
		return 0, err
	}
	if maxAge <= 0 {
		maxAge = DefaultMaxPodAge
	}

	ns := m.namespaceFor(namespace)
	list, err := conn.client.CoreV1().Pods(ns).List(ctx, metav1.ListOptions{
		LabelSelector: ManagedBySelector,
	})
	if err != nil {
		return 0, fmt.Errorf("listing pods for cleanup: %w", err)
	}

	deleted := 0
	for i := range list.Items {
		pod := &list.Items[i]
		if pod.Status.Phase != corev1.PodSucceeded {
			continue
		}
		if pod.Status.StartTime == nil {
			continue
		}
		if time.Since(pod.Status.StartTime.Time) <= maxAge {
			continue
		}

		if err := conn.client.CoreV1().Pods(ns).Delete(ctx, pod.Name, metav1.DeleteOptions{}); err != nil {
			m.logger.Warn("cleanup: deleting pod failed", "pod", pod.Name, "namespace", ns, "error", err)
			continue
		}
		m.logger.Info("cleanup: deleted expired pod", "pod", pod.Name, "namespace", ns)
		deleted++
	}

	return deleted, nil
}
