// Package lifecycle implements the session lifecycle engine: the state
// machine that owns per-user session creation, liveness tracking and the
// reaping of sessions whose activity signal has lapsed.
//
// The controller serves the start/stop/info operations; the periodic tasks
// (heartbeat broadcaster, reaper, snapshot writer) live in tasks.go and run
// against the same controller. All shared state goes through the activity
// tracker's mutex and the ingress mutator's mutex, so handlers and tasks may
// interleave freely at every orchestrator or directory call.
package lifecycle

import (
	"context"
	"fmt"
	"time"

	"github.com/yousefmoazzam/hebi-launcher/internal/activity"
	"github.com/yousefmoazzam/hebi-launcher/internal/directory"
	"github.com/yousefmoazzam/hebi-launcher/internal/events"
	"github.com/yousefmoazzam/hebi-launcher/internal/k8s"
	"github.com/yousefmoazzam/hebi-launcher/internal/logger"
	"github.com/yousefmoazzam/hebi-launcher/internal/manifest"
	"github.com/yousefmoazzam/hebi-launcher/internal/metrics"
)

// Broadcaster is the part of the event channel the controller drives.
type Broadcaster interface {
	BroadcastHeartbeat()
}

// StartResult is the response body of a start request.
type StartResult struct {
	Username           string            `json:"username"`
	WasSessionLaunched bool              `json:"was_session_launched"`
	IsHebiPodRunning   bool              `json:"is_hebi_pod_running,omitempty"`
	Message            string            `json:"message,omitempty"`
	UserLDAPInfo       *directory.Record `json:"user_ldap_info,omitempty"`
}

// StopResult is the response body of a stop request.
type StopResult struct {
	Username          string `json:"username"`
	WasSessionStopped bool   `json:"was_session_stopped"`
	DidSessionExist   bool   `json:"did_session_exist"`
}

// Config carries the controller's tunables.
type Config struct {
	// PodReadyTimeout bounds the wait for a fresh session pod.
	PodReadyTimeout time.Duration

	// InactivityPeriod is the reaper's threshold.
	InactivityPeriod time.Duration

	// CASServer and WebsocketServer are handed to the session pod through
	// its manifest.
	CASServer       string
	WebsocketServer string
}

// Controller orchestrates session create and destroy sequences.
type Controller struct {
	cfg      Config
	cluster  *k8s.Client
	ingress  *k8s.IngressMutator
	dir      directory.Directory
	renderer manifest.Renderer
	tracker  *activity.Tracker
	store    *activity.Store
	events   *events.Publisher
}

// NewController wires the lifecycle engine together.
func NewController(cfg Config, cluster *k8s.Client, ingress *k8s.IngressMutator,
	dir directory.Directory, renderer manifest.Renderer, tracker *activity.Tracker,
	store *activity.Store, publisher *events.Publisher) *Controller {
	return &Controller{
		cfg:      cfg,
		cluster:  cluster,
		ingress:  ingress,
		dir:      dir,
		renderer: renderer,
		tracker:  tracker,
		store:    store,
		events:   publisher,
	}
}

// IsSessionRunning reports whether a non-deleting session pod exists for
// fedid.
func (c *Controller) IsSessionRunning(ctx context.Context, fedid string) (bool, error) {
	return c.cluster.IsSessionRunning(ctx, fedid)
}

// Start launches a session for fedid.
//
// The sequence is: directory gate, presence guard, create service, add
// ingress route, create deployment, wait for the pod. A create-step failure
// is logged and the sequence continues; the presence guard makes the next
// start attempt pick up where this one left off rather than double-create.
// uid overrides the directory uid when non-nil (administrative callers).
func (c *Controller) Start(ctx context.Context, fedid string, uid *int) *StartResult {
	log := logger.Lifecycle()

	record, err := c.dir.Lookup(ctx, fedid)
	if err != nil {
		log.Error().Err(err).Str("fedid", fedid).Msg("Directory lookup failed")
		return &StartResult{
			Username:           fedid,
			WasSessionLaunched: false,
			Message:            fmt.Sprintf("Directory lookup failed: %v", err),
		}
	}
	log.Info().Str("fedid", fedid).Interface("record", record).Msg("Directory record fetched")

	if !record.IsEligible() {
		return &StartResult{
			Username:           fedid,
			WasSessionLaunched: false,
			Message:            "Invalid user, see user_ldap_info for more info",
			UserLDAPInfo:       record,
		}
	}

	sessionUID := record.UID
	if uid != nil {
		sessionUID = *uid
	}

	// A session whose pod and service both exist is already launched;
	// report success-of-presence instead of double-creating.
	podPresent, err := c.cluster.UserPodPresent(ctx, fedid)
	if err != nil {
		log.Error().Err(err).Str("fedid", fedid).Msg("Pod presence check failed")
		return &StartResult{Username: fedid, WasSessionLaunched: false, Message: err.Error()}
	}
	servicePresent, err := c.cluster.UserServicePresent(ctx, fedid)
	if err != nil {
		log.Error().Err(err).Str("fedid", fedid).Msg("Service presence check failed")
		return &StartResult{Username: fedid, WasSessionLaunched: false, Message: err.Error()}
	}
	if podPresent && servicePresent {
		return &StartResult{
			Username:           fedid,
			WasSessionLaunched: false,
			IsHebiPodRunning:   true,
			Message:            "session exists",
		}
	}

	params := manifest.Params{
		Fedid:           fedid,
		UID:             int64(sessionUID),
		GID:             int64(sessionUID),
		ServiceURL:      manifest.SessionURL(fedid),
		CASServer:       c.cfg.CASServer,
		WebsocketServer: c.cfg.WebsocketServer,
	}

	if err := c.cluster.CreateService(ctx, c.renderer.Service(params)); err != nil {
		log.Error().Err(err).Str("fedid", fedid).Msg("Service create failed")
	}

	if err := c.ingress.AddRoute(ctx, fedid); err != nil {
		log.Error().Err(err).Str("fedid", fedid).Msg("Ingress route add failed")
	}

	if err := c.cluster.CreateDeployment(ctx, c.renderer.Deployment(params)); err != nil {
		log.Error().Err(err).Str("fedid", fedid).Msg("Deployment create failed")
	}

	waitCtx, cancel := context.WithTimeout(ctx, c.cfg.PodReadyTimeout)
	defer cancel()
	if err := c.cluster.WaitForPodRunning(waitCtx, fedid); err != nil {
		log.Error().Err(err).Str("fedid", fedid).Msg("Session pod never became ready, rolling back")
		c.destroy(ctx, fedid, "pod not ready")
		return &StartResult{
			Username:           fedid,
			WasSessionLaunched: false,
			Message:            "pod did not become ready",
		}
	}

	// First activity entry, so a session whose browser never connects still
	// ages out instead of living forever below the reaper's radar.
	c.tracker.Touch(fedid)

	metrics.SessionsStarted.Inc()
	c.events.Publish(events.SubjectSessionStarted, fedid, "")

	return &StartResult{
		Username:           fedid,
		WasSessionLaunched: true,
		IsHebiPodRunning:   true,
	}
}

// Stop runs the destroy sequence for a user-requested stop.
func (c *Controller) Stop(ctx context.Context, fedid string) *StopResult {
	result := c.destroy(ctx, fedid, "requested")
	if result.WasSessionStopped {
		metrics.SessionsStopped.Inc()
		c.events.Publish(events.SubjectSessionStopped, fedid, "requested")
	}
	return result
}

// destroy removes a session's resources in order: deployment, service,
// ingress route, activity entry. Each step is logged independently.
//
// A Not Found on the deployment delete means the session never existed (or
// is already gone): the remaining steps are short-circuited and the result
// reports absence. Any other failure stops the sequence; the leftover state
// is picked up by the presence guard on the next start.
func (c *Controller) destroy(ctx context.Context, fedid string, reason string) *StopResult {
	log := logger.Lifecycle()
	result := &StopResult{Username: fedid, WasSessionStopped: false, DidSessionExist: true}

	if err := c.cluster.DeleteDeployment(ctx, fedid); err != nil {
		if k8s.IsNotFound(err) {
			log.Info().Str("fedid", fedid).Msg("No deployment to delete, session did not exist")
			result.DidSessionExist = false
			return result
		}
		log.Error().Err(err).Str("fedid", fedid).Msg("Deployment delete failed, stopping destroy sequence")
		return result
	}

	if err := c.cluster.DeleteService(ctx, fedid); err != nil {
		log.Error().Err(err).Str("fedid", fedid).Msg("Service delete failed, stopping destroy sequence")
		return result
	}

	if err := c.ingress.RemoveRoute(ctx, fedid); err != nil {
		log.Error().Err(err).Str("fedid", fedid).Msg("Ingress route remove failed, stopping destroy sequence")
		return result
	}

	c.tracker.Remove(fedid)

	log.Info().Str("fedid", fedid).Str("reason", reason).Msg("Session resources destroyed")
	result.WasSessionStopped = true
	return result
}
