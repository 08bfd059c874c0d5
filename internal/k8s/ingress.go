package k8s

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/types"

	"github.com/yousefmoazzam/hebi-launcher/internal/logger"
)

// RoutePath returns the ingress path routing a user's session traffic.
func RoutePath(fedid string) string {
	return fmt.Sprintf("/%s(/|$)(.*)", fedid)
}

// IngressMutator performs read-modify-patch mutations of the singleton
// session ingress.
//
// The ingress is shared by every session, so all mutations serialise through
// one mutex held across the whole read -> modify -> patch cycle. Without it,
// two interleaved mutations (say the reaper removing one route while a start
// request adds another) would each patch from a stale read and one route
// change would be lost.
//
// Removing the last route needs care: the API server rejects an empty
// paths list, and patching away the last entry of an annotation set can be
// silently dropped. When deletion empties the list the single rule is
// collapsed to its host-only form instead.
type IngressMutator struct {
	client *Client
	mu     sync.Mutex
}

// NewIngressMutator creates a mutator over the given client.
func NewIngressMutator(client *Client) *IngressMutator {
	return &IngressMutator{client: client}
}

// ingressDoc is the patch document sent back to the API server.
type ingressDoc struct {
	APIVersion string                 `json:"apiVersion"`
	Kind       string                 `json:"kind"`
	Metadata   map[string]interface{} `json:"metadata"`
	Spec       map[string]interface{} `json:"spec"`
}

// read fetches the current ingress and flattens it into a patchable
// document. The spec is round-tripped through JSON so attribute naming
// matches the patch format the API server expects.
func (m *IngressMutator) read(ctx context.Context) (*ingressDoc, error) {
	ingress, err := m.client.clientset.NetworkingV1().Ingresses(m.client.namespace).Get(ctx, IngressName, metav1.GetOptions{})
	if err != nil {
		return nil, fmt.Errorf("failed to get ingress %s: %w", IngressName, err)
	}

	// The apiVersion comes from the very first application of the ingress
	// manifest when managed fields are present.
	apiVersion := "networking.k8s.io/v1"
	if len(ingress.ManagedFields) > 0 && ingress.ManagedFields[0].APIVersion != "" {
		apiVersion = ingress.ManagedFields[0].APIVersion
	}

	specJSON, err := json.Marshal(ingress.Spec)
	if err != nil {
		return nil, fmt.Errorf("failed to encode ingress spec: %w", err)
	}
	spec := map[string]interface{}{}
	if err := json.Unmarshal(specJSON, &spec); err != nil {
		return nil, fmt.Errorf("failed to decode ingress spec: %w", err)
	}

	metadata := map[string]interface{}{
		"name": ingress.Name,
	}
	if ingress.Annotations != nil {
		metadata["annotations"] = ingress.Annotations
	}

	return &ingressDoc{
		APIVersion: apiVersion,
		Kind:       "Ingress",
		Metadata:   metadata,
		Spec:       spec,
	}, nil
}

// patch writes a modified document back with the launcher's field manager.
func (m *IngressMutator) patch(ctx context.Context, doc *ingressDoc) error {
	body, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("failed to encode ingress patch: %w", err)
	}

	_, err = m.client.clientset.NetworkingV1().Ingresses(m.client.namespace).Patch(
		ctx, IngressName, types.StrategicMergePatchType, body,
		metav1.PatchOptions{FieldManager: FieldManager},
	)
	if err != nil {
		return fmt.Errorf("failed to patch ingress %s: %w", IngressName, err)
	}
	return nil
}

// firstRule returns spec.rules[0], which holds every session route.
func firstRule(spec map[string]interface{}) (map[string]interface{}, error) {
	rules, ok := spec["rules"].([]interface{})
	if !ok || len(rules) == 0 {
		return nil, fmt.Errorf("ingress %s has no rules", IngressName)
	}
	rule, ok := rules[0].(map[string]interface{})
	if !ok {
		return nil, fmt.Errorf("ingress %s rule has unexpected shape", IngressName)
	}
	return rule, nil
}

// AddRoute inserts the route for fedid into the ingress.
//
// The operation is idempotent: a route whose path already exists is left
// alone, preserving the invariant that no two routes share a path.
func (m *IngressMutator) AddRoute(ctx context.Context, fedid string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	doc, err := m.read(ctx)
	if err != nil {
		return err
	}

	rule, err := firstRule(doc.Spec)
	if err != nil {
		return err
	}

	// The rule may be in its host-only form (no sessions routed yet);
	// initialise http.paths before appending.
	http, ok := rule["http"].(map[string]interface{})
	if !ok || http == nil {
		http = map[string]interface{}{"paths": []interface{}{}}
		rule["http"] = http
	}
	paths, _ := http["paths"].([]interface{})

	for _, p := range paths {
		route, ok := p.(map[string]interface{})
		if ok && route["path"] == RoutePath(fedid) {
			logger.Ingress().Info().Str("fedid", fedid).Msg("Ingress path already present")
			return nil
		}
	}

	route := map[string]interface{}{
		"path":     RoutePath(fedid),
		"pathType": "Prefix",
		"backend": map[string]interface{}{
			"service": map[string]interface{}{
				"name": ServiceName(fedid),
				"port": map[string]interface{}{
					"number": ServicePort,
				},
			},
		},
	}
	http["paths"] = append(paths, route)

	if err := m.patch(ctx, doc); err != nil {
		return err
	}
	logger.Ingress().Info().Str("fedid", fedid).Msg("Ingress path added")
	return nil
}

// RemoveRoute drops the route for fedid from the ingress. When the last
// route goes, the rule collapses to its host-only form.
func (m *IngressMutator) RemoveRoute(ctx context.Context, fedid string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	doc, err := m.read(ctx)
	if err != nil {
		return err
	}

	rule, err := firstRule(doc.Spec)
	if err != nil {
		return err
	}
	http, ok := rule["http"].(map[string]interface{})
	if !ok || http == nil {
		// Host-only rule; nothing routed, nothing to remove.
		return nil
	}
	paths, _ := http["paths"].([]interface{})

	kept := make([]interface{}, 0, len(paths))
	for _, p := range paths {
		route, ok := p.(map[string]interface{})
		if ok && route["path"] == RoutePath(fedid) {
			continue
		}
		kept = append(kept, p)
	}

	if len(kept) == 0 {
		// An empty paths list is rejected by the API server; replace the
		// rule with the host-only form instead.
		doc.Spec["rules"] = []interface{}{
			map[string]interface{}{"host": IngressHost},
		}
	} else {
		http["paths"] = kept
	}

	if err := m.patch(ctx, doc); err != nil {
		return err
	}
	logger.Ingress().Info().Str("fedid", fedid).Msg("Ingress path removed")
	return nil
}
