// Package manifest renders the workload documents submitted for a session.
//
// Given the launch parameters for a user, the renderer returns a
// ready-to-submit Service and Deployment carrying the naming, labelling and
// port contracts the rest of the system depends on. The renderer is an
// interface so the lifecycle controller can be tested with a stub.
package manifest

import (
	"fmt"

	appsv1 "k8s.io/api/apps/v1"
	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/util/intstr"

	"github.com/yousefmoazzam/hebi-launcher/internal/k8s"
)

// Params are the values a session's manifests are rendered from.
type Params struct {
	Fedid string
	UID   int64
	// GID matches UID: the session runs under the user's primary group.
	GID             int64
	ServiceURL      string
	CASServer       string
	WebsocketServer string
}

// Renderer produces the workload documents for a session.
type Renderer interface {
	Service(p Params) *corev1.Service
	Deployment(p Params) *appsv1.Deployment
}

// DefaultRenderer builds typed manifests for the hebi session image.
type DefaultRenderer struct {
	// Image is the session container image.
	Image string
}

// NewRenderer creates a renderer for the given session image.
func NewRenderer(image string) *DefaultRenderer {
	return &DefaultRenderer{Image: image}
}

// Service renders the per-user Service exposing the session pod.
func (r *DefaultRenderer) Service(p Params) *corev1.Service {
	return &corev1.Service{
		ObjectMeta: metav1.ObjectMeta{
			Name:      k8s.ServiceName(p.Fedid),
			Namespace: k8s.Namespace,
			Labels: map[string]string{
				"app": k8s.AppLabel(p.Fedid),
			},
		},
		Spec: corev1.ServiceSpec{
			Selector: map[string]string{
				"app": k8s.AppLabel(p.Fedid),
			},
			Ports: []corev1.ServicePort{
				{
					Name:       "http",
					Port:       k8s.ServicePort,
					TargetPort: intstr.FromInt32(k8s.ServicePort),
					Protocol:   corev1.ProtocolTCP,
				},
			},
		},
	}
}

// Deployment renders the per-user session Deployment. The pod runs under the
// user's uid/gid and is told its own service URL plus the CAS and websocket
// endpoints through the environment.
func (r *DefaultRenderer) Deployment(p Params) *appsv1.Deployment {
	replicas := int32(1)
	return &appsv1.Deployment{
		ObjectMeta: metav1.ObjectMeta{
			Name:      k8s.DeploymentName(p.Fedid),
			Namespace: k8s.Namespace,
			Labels: map[string]string{
				"app": k8s.AppLabel(p.Fedid),
			},
		},
		Spec: appsv1.DeploymentSpec{
			Replicas: &replicas,
			Selector: &metav1.LabelSelector{
				MatchLabels: map[string]string{
					"app": k8s.AppLabel(p.Fedid),
				},
			},
			Template: corev1.PodTemplateSpec{
				ObjectMeta: metav1.ObjectMeta{
					Labels: map[string]string{
						"app": k8s.AppLabel(p.Fedid),
					},
				},
				Spec: corev1.PodSpec{
					SecurityContext: &corev1.PodSecurityContext{
						RunAsUser:  &p.UID,
						RunAsGroup: &p.GID,
					},
					Containers: []corev1.Container{
						{
							Name:  "hebi",
							Image: r.Image,
							Ports: []corev1.ContainerPort{
								{ContainerPort: k8s.ServicePort},
							},
							Env: []corev1.EnvVar{
								{Name: "FEDID", Value: p.Fedid},
								{Name: "UID", Value: fmt.Sprintf("%d", p.UID)},
								{Name: "GID", Value: fmt.Sprintf("%d", p.GID)},
								{Name: "SERVICE", Value: p.ServiceURL},
								{Name: "CAS_SERVER", Value: p.CASServer},
								{Name: "WEBSOCKET_SERVER", Value: p.WebsocketServer},
							},
						},
					},
				},
			},
		},
	}
}

// SessionURL returns the public URL of a user's session.
func SessionURL(fedid string) string {
	return fmt.Sprintf("https://%s/%s/", k8s.IngressHost, fedid)
}
