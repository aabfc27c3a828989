package settings

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaults(t *testing.T) {
	s := Default()

	assert.Equal(t, 50*time.Millisecond, s.AlertBackoffMillis)
	assert.Equal(t, 2, s.AlertBackoffCount)
	assert.Equal(t, 250*time.Millisecond, s.MoveAlertsBackoffMillis)
	assert.Equal(t, 3, s.MoveAlertsBackoffCount)
	assert.True(t, s.HistoryEnabled)
	assert.True(t, s.ClusterVerifySSL)
	assert.Equal(t, []string{"webhook", "slack", "chime", "sns"}, s.AllowList)
	assert.Empty(t, s.HostDenyList)
}

func TestFromEnv(t *testing.T) {
	s := FromEnv(map[string]string{
		"CLUSTER_URL":                "https://search.internal:9200",
		"CLUSTER_USERNAME":           "runner",
		"CLUSTER_PASSWORD":           "secret",
		"CLUSTER_VERIFY_SSL":         "false",
		"ALERT_HISTORY_ENABLED":      "false",
		"ALERT_BACKOFF_MILLIS":       "75",
		"ALERT_BACKOFF_COUNT":        "4",
		"MOVE_ALERTS_BACKOFF_MILLIS": "500",
		"MOVE_ALERTS_BACKOFF_COUNT":  "2",
		"DESTINATION_ALLOW_LIST":     "webhook, slack",
		"DESTINATION_HOST_DENY_LIST": "*.internal, 10.0.*",
		"DESTINATION_SNS_ACCESS_KEY": "AKIAEXAMPLE",
		"DESTINATION_SNS_SECRET_KEY": "shh",
		"DESTINATION_SNS_ENABLED":    "true",
		"LOG_LEVEL":                  "debug",
	})

	assert.Equal(t, "https://search.internal:9200", s.ClusterURL)
	assert.Equal(t, "runner", s.ClusterUsername)
	assert.False(t, s.ClusterVerifySSL)
	assert.False(t, s.HistoryEnabled)
	assert.Equal(t, 75*time.Millisecond, s.AlertBackoffMillis)
	assert.Equal(t, 4, s.AlertBackoffCount)
	assert.Equal(t, 500*time.Millisecond, s.MoveAlertsBackoffMillis)
	assert.Equal(t, 2, s.MoveAlertsBackoffCount)
	assert.Equal(t, []string{"webhook", "slack"}, s.AllowList)
	assert.Equal(t, []string{"*.internal", "10.0.*"}, s.HostDenyList)
	assert.Equal(t, "AKIAEXAMPLE", s.AWS.AccessKey)
	assert.True(t, s.AWS.SNSEnabled)
	assert.Equal(t, "debug", s.LogLevel)
}

func TestFromEnvMalformedValuesFallBack(t *testing.T) {
	s := FromEnv(map[string]string{
		"ALERT_BACKOFF_MILLIS":      "not-a-number",
		"ALERT_BACKOFF_COUNT":       "0",
		"MOVE_ALERTS_BACKOFF_COUNT": "-1",
		"ALERT_HISTORY_ENABLED":     "maybe",
	})

	def := Default()
	assert.Equal(t, def.AlertBackoffMillis, s.AlertBackoffMillis)
	assert.Equal(t, def.AlertBackoffCount, s.AlertBackoffCount)
	assert.Equal(t, def.MoveAlertsBackoffCount, s.MoveAlertsBackoffCount)
	assert.Equal(t, def.HistoryEnabled, s.HistoryEnabled)
}

func TestBackoffPolicies(t *testing.T) {
	s := Default()
	s.AlertBackoffMillis = 20 * time.Millisecond
	s.AlertBackoffCount = 5

	policy := s.AlertBackoff()
	assert.Equal(t, 5, policy.Attempts())
	assert.Equal(t, 20*time.Millisecond, policy.Delay())

	move := s.MoveAlertsBackoff()
	assert.Equal(t, s.MoveAlertsBackoffCount, move.Attempts())
}

func TestStoreSwapsSnapshots(t *testing.T) {
	store := NewStore(Default())

	first := store.Snapshot()
	require.Equal(t, 2, first.AlertBackoffCount)

	next := Default()
	next.AlertBackoffCount = 9
	store.Replace(next)

	// The old snapshot keeps its values; new readers see the update.
	assert.Equal(t, 2, first.AlertBackoffCount)
	assert.Equal(t, 9, store.Snapshot().AlertBackoffCount)
}
