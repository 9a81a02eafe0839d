package activitymap_test

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"testing"
	"time"

	auth "github.com/goliatone/go-clinic-auth"
	"github.com/goliatone/go-clinic-auth/activitymap"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeStatusChange(t *testing.T) {
	ts := time.Date(2026, 1, 10, 9, 30, 0, 0, time.UTC)
	event := auth.ActivityEvent{
		EventType:  auth.ActivityEventUserStatusChanged,
		Actor:      auth.ActorRef{ID: "admin-42", Type: "admin"},
		UserID:     "user-100",
		FromStatus: auth.UserStatusActive,
		ToStatus:   auth.UserStatusSuspended,
		Metadata:   map[string]any{"reason": "unpaid invoices"},
		OccurredAt: ts,
	}

	out := activitymap.Normalize(event)

	assert.Equal(t, "admin-42", out.ActorID)
	assert.Equal(t, string(auth.ActivityEventUserStatusChanged), out.Verb)
	assert.Equal(t, "user", out.ObjectType)
	assert.Equal(t, "user-100", out.ObjectID)
	assert.Equal(t, "clinic.auth", out.Channel)
	assert.True(t, out.OccurredAt.Equal(ts))
	assert.Equal(t, "unpaid invoices", out.Metadata["reason"])
	assert.Equal(t, "admin", out.Metadata[activitymap.MetadataKeyActorType])
	assert.Equal(t, string(auth.UserStatusActive), out.Metadata[activitymap.MetadataKeyFromStatus])
	assert.Equal(t, string(auth.UserStatusSuspended), out.Metadata[activitymap.MetadataKeyToStatus])
}

func TestNormalizeMasksLoginIdentifier(t *testing.T) {
	event := auth.ActivityEvent{
		EventType: auth.ActivityEventLoginFailure,
		Metadata:  map[string]any{activitymap.MetadataKeyIdentifier: "dr.house@clinic.test"},
	}

	out := activitymap.Normalize(event)
	assert.Equal(t, "d***@clinic.test", out.Metadata[activitymap.MetadataKeyIdentifier])
	assert.Equal(t, "system", out.ActorID)
	assert.False(t, out.OccurredAt.IsZero())

	raw := activitymap.Normalize(event, activitymap.WithRawIdentifiers())
	assert.Equal(t, "dr.house@clinic.test", raw.Metadata[activitymap.MetadataKeyIdentifier])

	// the source event is never mutated
	assert.Equal(t, "dr.house@clinic.test", event.Metadata[activitymap.MetadataKeyIdentifier])
}

func TestNormalizeOptionOverrides(t *testing.T) {
	out := activitymap.Normalize(auth.ActivityEvent{
		EventType: auth.ActivityEventLogoutAll,
	},
		activitymap.WithDefaultChannel("audit"),
		activitymap.WithDefaultObjectType("session"),
		activitymap.WithActorFallback("cron"),
	)

	assert.Equal(t, "audit", out.Channel)
	assert.Equal(t, "session", out.ObjectType)
	assert.Equal(t, "cron", out.ActorID)
	assert.Nil(t, out.Metadata)
}

func TestNormalizeActorFallsBackToUser(t *testing.T) {
	out := activitymap.Normalize(auth.ActivityEvent{
		EventType: auth.ActivityEventLoginSuccess,
		UserID:    "user-7",
	})
	assert.Equal(t, "user-7", out.ActorID)
}

func TestMaskEmail(t *testing.T) {
	assert.Equal(t, "a***@b.com", activitymap.MaskEmail("alice@b.com"))
	assert.Equal(t, "***", activitymap.MaskEmail("not-an-email"))
	assert.Equal(t, "***", activitymap.MaskEmail("@b.com"))
}

func TestSlogSinkRecord(t *testing.T) {
	var buf bytes.Buffer
	sink := activitymap.NewSlogSink(slog.New(slog.NewJSONHandler(&buf, nil)))

	err := sink.Record(context.Background(), auth.ActivityEvent{
		EventType: auth.ActivityEventLoginFailure,
		Metadata:  map[string]any{activitymap.MetadataKeyIdentifier: "pat@clinic.test"},
	})
	require.NoError(t, err)

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "activity", line["msg"])
	assert.Equal(t, string(auth.ActivityEventLoginFailure), line["verb"])
	assert.Equal(t, "clinic.auth", line["channel"])

	metadata, ok := line["metadata"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "p***@clinic.test", metadata["identifier"])
}
