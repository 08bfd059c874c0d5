// Package k8s wraps the Kubernetes client for hebi session operations.
//
// Purpose:
//   - Provide access to the core/apps/networking APIs the launcher uses
//   - Auto-configuration (in-cluster or local API proxy)
//   - Session resource queries (per-user pods and services)
//   - Create/delete of per-user Deployments and Services
//   - Bounded wait for a session pod to reach phase Running
//   - Serialised read-modify-patch of the shared ingress (ingress.go)
//
// Naming contracts the rest of the system depends on:
//   - Pod/Deployment: hebi-<fedid>, labelled app=hebi-<fedid>
//   - Service: hebi-service-<fedid>, port 8080
//   - Ingress: singleton hebi-ingress, single rule, host hebi.diamond.ac.uk
//
// Thread safety: Kubernetes clients are thread-safe; the ingress mutator
// adds its own mutex because read-modify-patch is not.
package k8s

import (
	"fmt"
	"strings"

	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/rest"
)

const (
	// Namespace is the namespace holding all hebi session resources.
	Namespace = "hebi"

	// FieldManager identifies the launcher's patches to the API server.
	FieldManager = "hebi-launcher"

	// IngressName is the singleton ingress routing all session traffic.
	IngressName = "hebi-ingress"

	// IngressHost is the host of the ingress' single rule.
	IngressHost = "hebi.diamond.ac.uk"

	// ServicePort is the port every per-user Service listens on.
	ServicePort = 8080

	// localAPIProxy is where the API is reachable when running outside the
	// cluster (kubectl proxy).
	localAPIProxy = "http://localhost:8090"
)

// DeploymentName returns the name of a user's session deployment.
func DeploymentName(fedid string) string {
	return "hebi-" + fedid
}

// ServiceName returns the name of a user's session service.
func ServiceName(fedid string) string {
	return "hebi-service-" + fedid
}

// AppLabel returns the app label value shared by a user's pod and
// deployment.
func AppLabel(fedid string) string {
	return "hebi-" + fedid
}

// UserFromAppLabel recovers the fedid from an app label of the form
// hebi-<fedid>. Returns false for labels that do not match the convention.
func UserFromAppLabel(label string) (string, bool) {
	parts := strings.SplitN(label, "-", 2)
	if len(parts) != 2 || parts[0] != "hebi" || parts[1] == "" {
		return "", false
	}
	return parts[1], true
}

// Client provides the launcher's view of the cluster.
type Client struct {
	clientset kubernetes.Interface
	namespace string
}

// NewClient creates a Kubernetes client. When inCluster is true the pod's
// service account configuration is used; otherwise the client talks to a
// local API proxy.
func NewClient(inCluster bool) (*Client, error) {
	var cfg *rest.Config
	if inCluster {
		var err error
		cfg, err = rest.InClusterConfig()
		if err != nil {
			return nil, fmt.Errorf("failed to load in-cluster config: %w", err)
		}
	} else {
		cfg = &rest.Config{Host: localAPIProxy}
	}

	clientset, err := kubernetes.NewForConfig(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create clientset: %w", err)
	}

	return &Client{clientset: clientset, namespace: Namespace}, nil
}

// NewClientWithClientset wraps an existing clientset. Tests use this with
// the fake clientset.
func NewClientWithClientset(clientset kubernetes.Interface) *Client {
	return &Client{clientset: clientset, namespace: Namespace}
}

// Clientset returns the underlying Kubernetes clientset interface.
func (c *Client) Clientset() kubernetes.Interface {
	return c.clientset
}

// NamespaceName returns the namespace this client operates in.
func (c *Client) NamespaceName() string {
	return c.namespace
}
