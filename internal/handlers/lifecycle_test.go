package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	corev1 "k8s.io/api/core/v1"
	networkingv1 "k8s.io/api/networking/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/runtime"
	"k8s.io/client-go/kubernetes/fake"

	"github.com/yousefmoazzam/hebi-launcher/internal/activity"
	"github.com/yousefmoazzam/hebi-launcher/internal/auth"
	"github.com/yousefmoazzam/hebi-launcher/internal/directory"
	"github.com/yousefmoazzam/hebi-launcher/internal/events"
	"github.com/yousefmoazzam/hebi-launcher/internal/hub"
	"github.com/yousefmoazzam/hebi-launcher/internal/k8s"
	"github.com/yousefmoazzam/hebi-launcher/internal/lifecycle"
	"github.com/yousefmoazzam/hebi-launcher/internal/manifest"
)

const testKey = "launcher-test-signing-key"

type staticDirectory struct {
	record *directory.Record
}

func (d *staticDirectory) Lookup(ctx context.Context, fedid string) (*directory.Record, error) {
	return d.record, nil
}

func testIngress() *networkingv1.Ingress {
	return &networkingv1.Ingress{
		ObjectMeta: metav1.ObjectMeta{Name: k8s.IngressName, Namespace: k8s.Namespace},
		Spec: networkingv1.IngressSpec{
			Rules: []networkingv1.IngressRule{{Host: k8s.IngressHost}},
		},
	}
}

func testPod(fedid string) *corev1.Pod {
	return &corev1.Pod{
		ObjectMeta: metav1.ObjectMeta{
			Name:      k8s.DeploymentName(fedid) + "-pod",
			Namespace: k8s.Namespace,
			Labels:    map[string]string{"app": k8s.AppLabel(fedid)},
		},
		Status: corev1.PodStatus{Phase: corev1.PodRunning},
	}
}

// newTestRouter assembles the launcher HTTP surface over a fake cluster.
func newTestRouter(t *testing.T, record *directory.Record, objects ...runtime.Object) (*gin.Engine, *auth.TokenManager) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	clientset := fake.NewSimpleClientset(objects...)
	cluster := k8s.NewClientWithClientset(clientset)
	tracker := activity.NewTracker()
	store := activity.NewStore(filepath.Join(t.TempDir(), "activity.json"))
	publisher, err := events.NewPublisher("")
	require.NoError(t, err)

	controller := lifecycle.NewController(
		lifecycle.Config{
			PodReadyTimeout:  2 * time.Second,
			InactivityPeriod: 24 * time.Hour,
			CASServer:        "https://auth.diamond.ac.uk/cas",
			WebsocketServer:  "https://hebi.diamond.ac.uk",
		},
		cluster,
		k8s.NewIngressMutator(cluster),
		&staticDirectory{record: record},
		manifest.NewRenderer("hebi/session:latest"),
		tracker,
		store,
		publisher,
	)

	tokens := auth.NewTokenManager(testKey)
	channel := hub.NewHub(func(string) {})
	router := gin.New()
	NewHandler(controller, tokens, channel).RegisterRoutes(router)
	return router, tokens
}

func doRequest(router *gin.Engine, target string, cookies ...*http.Cookie) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, target, nil)
	for _, c := range cookies {
		req.AddCookie(c)
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func decodeBody(t *testing.T, w *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return body
}

func TestSessionInfoWithCookie(t *testing.T) {
	router, tokens := newTestRouter(t, &directory.Record{UID: 12345, IsStaff: true}, testIngress(), testPod("abc12345"))

	token, err := tokens.Mint("abc12345")
	require.NoError(t, err)

	w := doRequest(router, "/k8s/session_info", &http.Cookie{Name: auth.CookieName, Value: token})
	require.Equal(t, http.StatusOK, w.Code)

	body := decodeBody(t, w)
	assert.Equal(t, "abc12345", body["username"])
	assert.Equal(t, true, body["is_session_currently_running"])
}

func TestSessionInfoNoSession(t *testing.T) {
	router, tokens := newTestRouter(t, &directory.Record{UID: 12345, IsStaff: true}, testIngress())

	token, err := tokens.Mint("abc12345")
	require.NoError(t, err)

	w := doRequest(router, "/k8s/session_info", &http.Cookie{Name: auth.CookieName, Value: token})
	require.Equal(t, http.StatusOK, w.Code)

	body := decodeBody(t, w)
	assert.Equal(t, false, body["is_session_currently_running"])
}

func TestSessionInfoWithoutIdentity(t *testing.T) {
	router, _ := newTestRouter(t, &directory.Record{UID: 12345, IsStaff: true}, testIngress())

	w := doRequest(router, "/k8s/session_info")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestStartHebiFedidParameterTakesPrecedence(t *testing.T) {
	// Ineligible record keeps the handler from creating resources; what
	// matters here is whose name comes back.
	router, tokens := newTestRouter(t, &directory.Record{UID: 0, IsUIDRoot: true, IsStaff: true}, testIngress())

	token, err := tokens.Mint("cookieuser")
	require.NoError(t, err)

	w := doRequest(router, "/k8s/start_hebi?fedid=queryuser", &http.Cookie{Name: auth.CookieName, Value: token})
	require.Equal(t, http.StatusOK, w.Code)

	body := decodeBody(t, w)
	assert.Equal(t, "queryuser", body["username"])
	assert.Equal(t, false, body["was_session_launched"])
}

func TestStartHebiInvalidUser(t *testing.T) {
	router, tokens := newTestRouter(t, &directory.Record{UID: 12345, IsStaff: false}, testIngress())

	token, err := tokens.Mint("abc12345")
	require.NoError(t, err)

	w := doRequest(router, "/k8s/start_hebi", &http.Cookie{Name: auth.CookieName, Value: token})
	require.Equal(t, http.StatusOK, w.Code)

	body := decodeBody(t, w)
	assert.Equal(t, false, body["was_session_launched"])
	assert.Contains(t, body["message"], "Invalid user")
	assert.NotNil(t, body["user_ldap_info"])
}

func TestStartHebiRejectsBadUID(t *testing.T) {
	router, tokens := newTestRouter(t, &directory.Record{UID: 12345, IsStaff: true}, testIngress())

	token, err := tokens.Mint("abc12345")
	require.NoError(t, err)

	w := doRequest(router, "/k8s/start_hebi?uid=notanumber", &http.Cookie{Name: auth.CookieName, Value: token})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestStartHebiLaunchesSession(t *testing.T) {
	router, tokens := newTestRouter(t, &directory.Record{UID: 12345, IsStaff: true}, testIngress(), testPod("abc12345"))

	token, err := tokens.Mint("abc12345")
	require.NoError(t, err)

	w := doRequest(router, "/k8s/start_hebi", &http.Cookie{Name: auth.CookieName, Value: token})
	require.Equal(t, http.StatusOK, w.Code)

	body := decodeBody(t, w)
	assert.Equal(t, true, body["was_session_launched"])
	assert.Equal(t, true, body["is_hebi_pod_running"])
}

func TestStopHebiAbsentSession(t *testing.T) {
	router, tokens := newTestRouter(t, &directory.Record{UID: 12345, IsStaff: true}, testIngress())

	token, err := tokens.Mint("abc12345")
	require.NoError(t, err)

	w := doRequest(router, "/k8s/stop_hebi", &http.Cookie{Name: auth.CookieName, Value: token})
	require.Equal(t, http.StatusOK, w.Code)

	body := decodeBody(t, w)
	assert.Equal(t, false, body["was_session_stopped"])
	assert.Equal(t, false, body["did_session_exist"])
}

func TestHealthz(t *testing.T) {
	router, _ := newTestRouter(t, &directory.Record{UID: 12345, IsStaff: true}, testIngress())

	w := doRequest(router, "/healthz")
	assert.Equal(t, http.StatusOK, w.Code)
}
