package events

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDisabledPublisher(t *testing.T) {
	publisher, err := NewPublisher("")
	require.NoError(t, err)
	defer publisher.Close()

	assert.False(t, publisher.Enabled())

	// Publishing through a disabled publisher is a no-op, not a panic.
	publisher.Publish(SubjectSessionStarted, "abc12345", "")
	publisher.Publish(SubjectSessionReaped, "abc12345", "inactive")
}

func TestPublisherConnectFailure(t *testing.T) {
	_, err := NewPublisher("nats://127.0.0.1:1")
	assert.Error(t, err)
}
