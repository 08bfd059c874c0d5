package manifest

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yousefmoazzam/hebi-launcher/internal/k8s"
)

func testParams() Params {
	return Params{
		Fedid:           "abc12345",
		UID:             12345,
		GID:             12345,
		ServiceURL:      SessionURL("abc12345"),
		CASServer:       "https://auth.diamond.ac.uk/cas",
		WebsocketServer: "https://hebi.diamond.ac.uk",
	}
}

func TestServiceManifest(t *testing.T) {
	service := NewRenderer("hebi/session:latest").Service(testParams())

	assert.Equal(t, "hebi-service-abc12345", service.Name)
	assert.Equal(t, k8s.Namespace, service.Namespace)
	assert.Equal(t, "hebi-abc12345", service.Spec.Selector["app"])
	require.Len(t, service.Spec.Ports, 1)
	assert.Equal(t, int32(8080), service.Spec.Ports[0].Port)
}

func TestDeploymentManifest(t *testing.T) {
	deployment := NewRenderer("hebi/session:latest").Deployment(testParams())

	assert.Equal(t, "hebi-abc12345", deployment.Name)
	assert.Equal(t, "hebi-abc12345", deployment.Labels["app"])
	assert.Equal(t, "hebi-abc12345", deployment.Spec.Selector.MatchLabels["app"])
	assert.Equal(t, "hebi-abc12345", deployment.Spec.Template.Labels["app"])

	podSpec := deployment.Spec.Template.Spec
	require.NotNil(t, podSpec.SecurityContext.RunAsUser)
	assert.Equal(t, int64(12345), *podSpec.SecurityContext.RunAsUser)
	require.NotNil(t, podSpec.SecurityContext.RunAsGroup)
	assert.Equal(t, int64(12345), *podSpec.SecurityContext.RunAsGroup)

	require.Len(t, podSpec.Containers, 1)
	container := podSpec.Containers[0]
	assert.Equal(t, "hebi/session:latest", container.Image)
	assert.Equal(t, int32(8080), container.Ports[0].ContainerPort)

	env := map[string]string{}
	for _, v := range container.Env {
		env[v.Name] = v.Value
	}
	assert.Equal(t, "https://hebi.diamond.ac.uk/abc12345/", env["SERVICE"])
	assert.Equal(t, "https://auth.diamond.ac.uk/cas", env["CAS_SERVER"])
	assert.Equal(t, "https://hebi.diamond.ac.uk", env["WEBSOCKET_SERVER"])
}

func TestSessionURL(t *testing.T) {
	assert.Equal(t, "https://hebi.diamond.ac.uk/abc12345/", SessionURL("abc12345"))
}
