// Package config loads launcher configuration from the environment.
//
// All configuration is read once at startup into a Config struct and passed
// explicitly to the components that need it. There is no global config state;
// tests construct a Config literal directly.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Defaults for the periodic tasks, in the units the environment variables use.
const (
	DefaultHeartbeatIntervalSecs     = 20
	DefaultInactiveCheckIntervalSecs = 120
	DefaultSnapshotIntervalSecs      = 300
	DefaultPodReadyTimeoutSecs       = 120
)

// DefaultActivityFilePath is where the activity snapshot lives on the
// persistent volume mounted into the launcher pod.
const DefaultActivityFilePath = "/persistent_data/all_sessions_activity.json"

// Config holds all environment-driven settings for both services.
type Config struct {
	// JWTKey is the symmetric signing secret shared by the launcher and the
	// auth gateway.
	JWTKey string

	// InCluster selects the in-cluster Kubernetes configuration when "True".
	// Any other value points the client at a local API proxy.
	InCluster bool

	// ProductionMode binds the HTTP server to loopback only; otherwise the
	// server binds all interfaces with development niceties enabled.
	ProductionMode bool

	// HeartbeatInterval is how often a heartbeat-request is broadcast to all
	// connected session clients.
	HeartbeatInterval time.Duration

	// InactiveCheckInterval is how often running sessions are checked against
	// the activity map.
	InactiveCheckInterval time.Duration

	// InactivityPeriod is the threshold beyond which a session with no
	// activity signal is reaped. Configured as days + hours.
	InactivityPeriod time.Duration

	// SnapshotInterval is how often the activity map is written to disk.
	SnapshotInterval time.Duration

	// PodReadyTimeout bounds the wait for a freshly created session pod to
	// reach phase Running.
	PodReadyTimeout time.Duration

	// ActivityFilePath is the snapshot file on the durable volume.
	ActivityFilePath string

	// CASServerURL is the base URL of the enterprise SSO server.
	CASServerURL string

	// ServiceURL is the fixed service URL registered with the SSO server.
	ServiceURL string

	// LDAPServerURL is the directory server used for eligibility checks.
	LDAPServerURL string

	// NATSURL enables lifecycle event publishing when non-empty.
	NATSURL string

	// LogLevel and LogPretty configure the zerolog output.
	LogLevel  string
	LogPretty bool
}

// Load reads the environment into a Config. JWT_KEY is the only variable
// that must be present; everything else falls back to the documented default.
func Load() (*Config, error) {
	jwtKey := os.Getenv("JWT_KEY")
	if jwtKey == "" {
		return nil, fmt.Errorf("JWT_KEY must be set")
	}

	inactivityHrs := getEnvInt("SESSION_INACTIVITY_PERIOD_HRS", 0)
	inactivityDays := getEnvInt("SESSION_INACTIVITY_PERIOD_DAYS", 1)

	cfg := &Config{
		JWTKey:         jwtKey,
		InCluster:      os.Getenv("IN_CLUSTER") == "True",
		ProductionMode: os.Getenv("FLASK_MODE") == "production",

		HeartbeatInterval:     secsEnv("ALL_SESSIONS_CHECK_INTERVAL", DefaultHeartbeatIntervalSecs),
		InactiveCheckInterval: secsEnv("INACTIVE_SESSION_CHECK_INTERVAL", DefaultInactiveCheckIntervalSecs),
		SnapshotInterval:      secsEnv("WRITE_SESSION_ACTIVITY_INTERVAL", DefaultSnapshotIntervalSecs),
		PodReadyTimeout:       secsEnv("POD_READY_TIMEOUT", DefaultPodReadyTimeoutSecs),

		InactivityPeriod: time.Duration(inactivityDays)*24*time.Hour +
			time.Duration(inactivityHrs)*time.Hour,

		ActivityFilePath: getEnv("SESSION_ACTIVITY_FILE_PATH", DefaultActivityFilePath),

		CASServerURL:  getEnv("CAS_SERVER", "https://auth.diamond.ac.uk/cas"),
		ServiceURL:    getEnv("CAS_SERVICE_URL", "https://hebi.diamond.ac.uk/launcher/"),
		LDAPServerURL: getEnv("LDAP_SERVER_URL", "ldap://ldap.diamond.ac.uk"),

		NATSURL: os.Getenv("NATS_URL"),

		LogLevel:  getEnv("LOG_LEVEL", "info"),
		LogPretty: getEnv("LOG_PRETTY", "false") == "true",
	}

	return cfg, nil
}

// getEnv returns the value of key or a default when unset.
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvInt returns the integer value of key or a default when unset or
// unparseable.
func getEnvInt(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return defaultValue
	}
	return n
}

// secsEnv reads an integer-seconds environment variable as a duration.
func secsEnv(key string, defaultSecs int) time.Duration {
	return time.Duration(getEnvInt(key, defaultSecs)) * time.Second
}
