package k8s

import (
	"context"
	"fmt"
	"strings"

	appsv1 "k8s.io/api/apps/v1"
	corev1 "k8s.io/api/core/v1"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"

	"github.com/yousefmoazzam/hebi-launcher/internal/logger"
)

// IsNotFound reports whether an orchestrator error means the resource was
// absent. The destroy sequence treats this as success-of-absence.
func IsNotFound(err error) bool {
	return apierrors.IsNotFound(err)
}

// RunningUserPods returns the fedids of all users with a session pod that is
// not being deleted. The launcher's own pod is excluded by its label.
func (c *Client) RunningUserPods(ctx context.Context) ([]string, error) {
	pods, err := c.clientset.CoreV1().Pods(c.namespace).List(ctx, metav1.ListOptions{})
	if err != nil {
		return nil, fmt.Errorf("failed to list pods: %w", err)
	}

	var users []string
	for _, pod := range pods.Items {
		app := pod.Labels["app"]
		// Pods with a deletion timestamp are shutting down and no longer
		// count as running sessions.
		if strings.Contains(app, "launcher") || pod.DeletionTimestamp != nil {
			continue
		}
		if user, ok := UserFromAppLabel(app); ok {
			users = append(users, user)
		}
	}
	return users, nil
}

// IsSessionRunning reports whether a non-deleting session pod exists for
// fedid.
func (c *Client) IsSessionRunning(ctx context.Context, fedid string) (bool, error) {
	users, err := c.RunningUserPods(ctx)
	if err != nil {
		return false, err
	}
	for _, user := range users {
		if user == fedid {
			return true, nil
		}
	}
	return false, nil
}

// UserPodPresent reports whether any pod labelled for fedid exists,
// including pods that are shutting down. This is the start guard: while any
// pod is present a second create would collide.
func (c *Client) UserPodPresent(ctx context.Context, fedid string) (bool, error) {
	pods, err := c.clientset.CoreV1().Pods(c.namespace).List(ctx, metav1.ListOptions{
		LabelSelector: fmt.Sprintf("app=%s", AppLabel(fedid)),
	})
	if err != nil {
		return false, fmt.Errorf("failed to list pods for %s: %w", fedid, err)
	}
	return len(pods.Items) > 0, nil
}

// UserServicePresent reports whether the per-user Service exists.
func (c *Client) UserServicePresent(ctx context.Context, fedid string) (bool, error) {
	services, err := c.clientset.CoreV1().Services(c.namespace).List(ctx, metav1.ListOptions{
		FieldSelector: fmt.Sprintf("metadata.name=%s", ServiceName(fedid)),
	})
	if err != nil {
		return false, fmt.Errorf("failed to list services for %s: %w", fedid, err)
	}
	return len(services.Items) > 0, nil
}

// CreateService submits a rendered Service document.
func (c *Client) CreateService(ctx context.Context, service *corev1.Service) error {
	created, err := c.clientset.CoreV1().Services(c.namespace).Create(ctx, service, metav1.CreateOptions{})
	if err != nil {
		return fmt.Errorf("failed to create service %s: %w", service.Name, err)
	}
	logger.Lifecycle().Info().Str("service", created.Name).Msg("Service created")
	return nil
}

// CreateDeployment submits a rendered Deployment document.
func (c *Client) CreateDeployment(ctx context.Context, deployment *appsv1.Deployment) error {
	created, err := c.clientset.AppsV1().Deployments(c.namespace).Create(ctx, deployment, metav1.CreateOptions{})
	if err != nil {
		return fmt.Errorf("failed to create deployment %s: %w", deployment.Name, err)
	}
	logger.Lifecycle().Info().Str("deployment", created.Name).Msg("Deployment created")
	return nil
}

// deleteOptions returns the delete options shared by the destroy steps:
// no grace period, background propagation.
func deleteOptions() metav1.DeleteOptions {
	grace := int64(0)
	propagation := metav1.DeletePropagationBackground
	return metav1.DeleteOptions{
		GracePeriodSeconds: &grace,
		PropagationPolicy:  &propagation,
	}
}

// DeleteDeployment removes a user's session deployment.
func (c *Client) DeleteDeployment(ctx context.Context, fedid string) error {
	name := DeploymentName(fedid)
	if err := c.clientset.AppsV1().Deployments(c.namespace).Delete(ctx, name, deleteOptions()); err != nil {
		return err
	}
	logger.Lifecycle().Info().Str("deployment", name).Msg("Deployment deleted")
	return nil
}

// DeleteService removes a user's session service.
func (c *Client) DeleteService(ctx context.Context, fedid string) error {
	name := ServiceName(fedid)
	if err := c.clientset.CoreV1().Services(c.namespace).Delete(ctx, name, deleteOptions()); err != nil {
		return err
	}
	logger.Lifecycle().Info().Str("service", name).Msg("Service deleted")
	return nil
}

// WaitForPodRunning blocks until an event on the per-user label selector
// reports phase Running. The caller bounds the wait through ctx; on
// cancellation or watch teardown an error is returned so the caller can roll
// back the partially created session.
func (c *Client) WaitForPodRunning(ctx context.Context, fedid string) error {
	selector := fmt.Sprintf("app=%s", AppLabel(fedid))

	// The pod may already be running by the time the watch starts; check the
	// current state first since the watch only reports subsequent changes.
	pods, err := c.clientset.CoreV1().Pods(c.namespace).List(ctx, metav1.ListOptions{
		LabelSelector: selector,
	})
	if err != nil {
		return fmt.Errorf("failed to list pods for %s: %w", fedid, err)
	}
	for _, pod := range pods.Items {
		if pod.Status.Phase == corev1.PodRunning {
			logger.Lifecycle().Info().Str("fedid", fedid).Msg("Session pod is now running")
			return nil
		}
	}

	watcher, err := c.clientset.CoreV1().Pods(c.namespace).Watch(ctx, metav1.ListOptions{
		LabelSelector: selector,
	})
	if err != nil {
		return fmt.Errorf("failed to watch pods for %s: %w", fedid, err)
	}
	defer watcher.Stop()

	for {
		select {
		case <-ctx.Done():
			return fmt.Errorf("pod for %s did not become ready: %w", fedid, ctx.Err())
		case event, ok := <-watcher.ResultChan():
			if !ok {
				return fmt.Errorf("pod watch for %s ended before phase Running", fedid)
			}
			pod, ok := event.Object.(*corev1.Pod)
			if !ok {
				continue
			}
			if pod.Status.Phase == corev1.PodRunning {
				logger.Lifecycle().Info().Str("fedid", fedid).Msg("Session pod is now running")
				return nil
			}
		}
	}
}
