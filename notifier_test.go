package auth_test

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"

	auth "github.com/goliatone/go-clinic-auth"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type logLine struct {
	level string
	text  string
}

type recordingLogger struct {
	mu    sync.Mutex
	lines []logLine
}

func (l *recordingLogger) record(level, format string, args ...any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.lines = append(l.lines, logLine{level: level, text: fmt.Sprintf(format, args...)})
}

func (l *recordingLogger) Debug(format string, args ...any) { l.record("debug", format, args...) }
func (l *recordingLogger) Info(format string, args ...any)  { l.record("info", format, args...) }
func (l *recordingLogger) Warn(format string, args ...any)  { l.record("warn", format, args...) }
func (l *recordingLogger) Error(format string, args ...any) { l.record("error", format, args...) }

func (l *recordingLogger) all() []logLine {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]logLine(nil), l.lines...)
}

func TestDefaultNotifierNeverLogsCredentials(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	repo := auth.NewRepositoryManager(db.DB)
	logs := &recordingLogger{}

	auther := auth.NewAuthenticator(repo, newTestConfig()).
		WithLogger(logs).
		WithSynchronousNotifications()

	_, err := auther.Register(ctx, auth.RegisterUserMessage{
		Email:     "dr@x.com",
		Password:  testPassword,
		Role:      string(auth.RoleDoctor),
		FirstName: "Test",
		LastName:  "User",
	})
	require.NoError(t, err)
	require.NoError(t, auther.ForgotPassword(ctx, auth.ForgotPasswordMessage{Email: "dr@x.com"}))

	reset := &auth.PasswordReset{}
	require.NoError(t, db.DB.NewSelect().Model(reset).Where("email = ?", "dr@x.com").Limit(1).Scan(ctx))

	var notices int
	for _, line := range logs.all() {
		assert.NotContains(t, line.text, reset.ID.String(), "reset id leaked at %s", line.level)
		assert.NotContains(t, line.text, "eyJ", "verification token leaked at %s", line.level)
		assert.NotContains(t, line.text, "dr@x.com", "email leaked at %s", line.level)

		if strings.Contains(line.text, "reset token") || strings.Contains(line.text, "email verification") {
			notices++
			assert.Equal(t, "debug", line.level)
		}
	}
	assert.Equal(t, 2, notices)
}

func TestMaskSecret(t *testing.T) {
	secret := "6a1b7f4e-43c1-4d0b-8f55-2f1f25a4a8de"
	masked := auth.MaskSecret(secret)
	assert.NotContains(t, masked, secret[:8])
	assert.Equal(t, "********", masked)
	assert.Equal(t, "d***@clinic.test", auth.MaskEmail("dr.house@clinic.test"))
}
