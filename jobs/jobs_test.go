package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/smtp"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/hibiken/asynq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	jobmetrics "github.com/conformapro/conformapro/internal/jobs"
	"github.com/conformapro/conformapro/internal/rbac"
)

type recordingMailer struct {
	sent []SendEmailPayload
	err  error
}

func (m *recordingMailer) Send(_ context.Context, msg SendEmailPayload) error {
	m.sent = append(m.sent, msg)
	return m.err
}

func TestSendEmailJobDeliversPayload(t *testing.T) {
	mailer := &recordingMailer{}
	job := &SendEmailJob{Mailer: mailer, Metrics: jobmetrics.NewMetrics(prometheus.NewRegistry())}

	task, err := NewSendEmailTask(SendEmailPayload{To: "jane@acme.test", Subject: "Bienvenue", Body: "hello"})
	require.NoError(t, err)
	require.NoError(t, job.Handle(context.Background(), task))
	require.Len(t, mailer.sent, 1)
	assert.Equal(t, "jane@acme.test", mailer.sent[0].To)
}

func TestSendEmailJobSkipsRetryOnBadPayload(t *testing.T) {
	job := &SendEmailJob{Mailer: &recordingMailer{}}
	err := job.Handle(context.Background(), asynq.NewTask(TaskTypeSendEmail, []byte("{")))
	assert.ErrorIs(t, err, asynq.SkipRetry)
}

func TestSendEmailJobPropagatesMailerError(t *testing.T) {
	boom := errors.New("relay down")
	job := &SendEmailJob{Mailer: &recordingMailer{err: boom}}
	task, err := NewSendEmailTask(SendEmailPayload{To: "jane@acme.test"})
	require.NoError(t, err)
	assert.ErrorIs(t, job.Handle(context.Background(), task), boom)
}

func TestSMTPMailerFormatsMessage(t *testing.T) {
	var gotTo []string
	var gotMsg string
	mailer := NewSMTPMailer("mail.local", 2525, "no-reply@acme.test", "", "")
	mailer.send = func(addr string, _ smtp.Auth, from string, to []string, msg []byte) error {
		assert.Equal(t, "mail.local:2525", addr)
		assert.Equal(t, "no-reply@acme.test", from)
		gotTo = to
		gotMsg = string(msg)
		return nil
	}

	require.NoError(t, mailer.Send(context.Background(), SendEmailPayload{To: "a@acme.test", Subject: "Invitation", Body: "corps"}))
	assert.Equal(t, []string{"a@acme.test"}, gotTo)
	assert.Contains(t, gotMsg, "Subject: Invitation\r\n")
	assert.True(t, strings.HasSuffix(gotMsg, "\r\n\r\ncorps"))
	assert.Nil(t, mailer.Auth)
}

func TestSMTPMailerRejectsHeaderInjection(t *testing.T) {
	mailer := NewSMTPMailer("mail.local", 25, "no-reply@acme.test", "", "")
	mailer.send = func(string, smtp.Auth, string, []string, []byte) error {
		t.Fatal("send must not be called")
		return nil
	}
	err := mailer.Send(context.Background(), SendEmailPayload{To: "a@acme.test\r\nBcc: x@evil.test", Subject: "x"})
	assert.Error(t, err)
}

type stubMembers struct {
	users []string
	err   error
}

func (s stubMembers) UserIDsByRole(context.Context, string) ([]string, error) {
	return s.users, s.err
}

type stubResolver struct {
	invalidated []string
	failing     map[string]bool
}

func (s *stubResolver) Invalidate(_ context.Context, userID string) {
	s.invalidated = append(s.invalidated, userID)
}

func (s *stubResolver) Resolve(_ context.Context, userID string) rbac.AccessState {
	if s.failing[userID] {
		return rbac.FetchFailed(userID, errors.New("db down"))
	}
	return rbac.Loaded(rbac.AccessContext{UserID: userID})
}

func warmupTask(t *testing.T, roleID string) *asynq.Task {
	t.Helper()
	task, err := NewAccessWarmupTask(AccessWarmupPayload{RoleID: roleID})
	require.NoError(t, err)
	return task
}

func TestAccessWarmupResolvesEveryMember(t *testing.T) {
	registry := prometheus.NewRegistry()
	metrics := jobmetrics.NewMetrics(registry)
	resolver := &stubResolver{}
	job := &AccessWarmupJob{
		Members:  stubMembers{users: []string{"u1", "u2", "u3"}},
		Resolver: resolver,
		Metrics:  metrics,
	}

	require.NoError(t, job.Handle(context.Background(), warmupTask(t, "role-1")))
	assert.Equal(t, []string{"u1", "u2", "u3"}, resolver.invalidated)

	count, err := testutil.GatherAndCount(registry, "conformapro_access_contexts_warmed_total")
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestAccessWarmupReportsPartialFailure(t *testing.T) {
	job := &AccessWarmupJob{
		Members:  stubMembers{users: []string{"u1", "u2"}},
		Resolver: &stubResolver{failing: map[string]bool{"u2": true}},
	}
	err := job.Handle(context.Background(), warmupTask(t, "role-1"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "1 of 2")
}

func TestAccessWarmupBadPayload(t *testing.T) {
	job := &AccessWarmupJob{Members: stubMembers{}, Resolver: &stubResolver{}}
	payload, _ := json.Marshal(AccessWarmupPayload{})
	err := job.Handle(context.Background(), asynq.NewTask(TaskTypeAccessWarmup, payload))
	assert.ErrorIs(t, err, asynq.SkipRetry)
}

func TestAccessWarmupNotConfigured(t *testing.T) {
	var job *AccessWarmupJob
	assert.Error(t, job.Handle(context.Background(), warmupTask(t, "role-1")))
}

type stubInspector struct {
	info *asynq.QueueInfo
	err  error
}

func (s stubInspector) GetQueueInfo(string) (*asynq.QueueInfo, error) {
	return s.info, s.err
}

func TestHealthEndpoint(t *testing.T) {
	cases := []struct {
		name      string
		inspector QueueInspector
		status    int
		pending   int
	}{
		{name: "no inspector", status: http.StatusOK},
		{name: "queue info", inspector: stubInspector{info: &asynq.QueueInfo{Queue: QueueDefault, Pending: 4}}, status: http.StatusOK, pending: 4},
		{name: "redis down", inspector: stubInspector{err: errors.New("dial tcp")}, status: http.StatusServiceUnavailable},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			r := chi.NewRouter()
			NewHandler(tc.inspector, nil).MountRoutes(r)
			rr := httptest.NewRecorder()
			r.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/health", nil))
			require.Equal(t, tc.status, rr.Code)
			if tc.status != http.StatusOK {
				return
			}
			var body queueHealth
			require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
			assert.Equal(t, QueueDefault, body.Queue)
			assert.Equal(t, tc.pending, body.Pending)
		})
	}
}

func TestNewWorkerRequiresHandlers(t *testing.T) {
	_, err := NewWorker(WorkerConfig{RedisOpts: asynq.RedisClientOpt{Addr: "127.0.0.1:0"}})
	assert.Error(t, err)
}
