package perf

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"

	jobmetrics "github.com/conformapro/conformapro/internal/jobs"
	"github.com/conformapro/conformapro/internal/rbac"
	"github.com/conformapro/conformapro/jobs"
)

type staticMembers []string

func (m staticMembers) UserIDsByRole(context.Context, string) ([]string, error) { return m, nil }

type flakyResolver struct {
	failEvery int
	calls     int
}

func (r *flakyResolver) Invalidate(context.Context, string) {}

func (r *flakyResolver) Resolve(_ context.Context, userID string) rbac.AccessState {
	r.calls++
	if r.failEvery > 0 && r.calls%r.failEvery == 0 {
		return rbac.FetchFailed(userID, errors.New("timeout"))
	}
	return rbac.Loaded(rbac.AccessContext{UserID: userID})
}

func TestAccessWarmupThroughputAndReliability(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics := jobmetrics.NewMetrics(reg)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	members := make(staticMembers, 500)
	for i := range members {
		members[i] = fmt.Sprintf("user-%03d", i)
	}
	task, err := jobs.NewAccessWarmupTask(jobs.AccessWarmupPayload{RoleID: "role-1"})
	if err != nil {
		t.Fatalf("build task: %v", err)
	}

	healthy := &jobs.AccessWarmupJob{Members: members, Resolver: &flakyResolver{}, Logger: logger, Metrics: metrics}
	for i := 0; i < 20; i++ {
		if err := healthy.Handle(context.Background(), task); err != nil {
			t.Fatalf("unexpected warmup error: %v", err)
		}
	}

	// One degraded run where every hundredth resolution fails.
	degraded := &jobs.AccessWarmupJob{Members: members, Resolver: &flakyResolver{failEvery: 100}, Logger: logger, Metrics: metrics}
	if err := degraded.Handle(context.Background(), task); err == nil {
		t.Fatal("expected partial failure to surface")
	}

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("failed to gather metrics: %v", err)
	}

	success := metricValue(t, families, "conformapro_jobs_total", map[string]string{"job": jobs.TaskTypeAccessWarmup, "status": "success"})
	failure := metricValue(t, families, "conformapro_jobs_total", map[string]string{"job": jobs.TaskTypeAccessWarmup, "status": "failure"})
	if success != 20 || failure != 1 {
		t.Fatalf("unexpected run counts: success=%f failure=%f", success, failure)
	}

	warmed := metricValue(t, families, "conformapro_access_contexts_warmed_total", map[string]string{})
	if want := float64(20*500 + 495); warmed != want {
		t.Fatalf("warmed contexts = %f, want %f", warmed, want)
	}

	mean := histogramMean(t, families, "conformapro_job_duration_seconds", map[string]string{"job": jobs.TaskTypeAccessWarmup})
	if mean > 0.5 {
		t.Fatalf("warmup duration above budget: %f", mean)
	}
}

func metricValue(t *testing.T, families []*dto.MetricFamily, name string, labels map[string]string) float64 {
	t.Helper()
	for _, fam := range families {
		if fam.GetName() != name {
			continue
		}
		for _, metric := range fam.GetMetric() {
			if hasLabels(metric, labels) {
				if fam.GetType() == dto.MetricType_COUNTER {
					return metric.GetCounter().GetValue()
				}
				if fam.GetType() == dto.MetricType_GAUGE {
					return metric.GetGauge().GetValue()
				}
			}
		}
	}
	t.Fatalf("metric %s with labels %v not found", name, labels)
	return 0
}

func histogramMean(t *testing.T, families []*dto.MetricFamily, name string, labels map[string]string) float64 {
	t.Helper()
	for _, fam := range families {
		if fam.GetName() != name {
			continue
		}
		for _, metric := range fam.GetMetric() {
			if hasLabels(metric, labels) {
				hist := metric.GetHistogram()
				if hist == nil || hist.GetSampleCount() == 0 {
					t.Fatalf("histogram %s missing samples", name)
				}
				return hist.GetSampleSum() / float64(hist.GetSampleCount())
			}
		}
	}
	t.Fatalf("histogram %s with labels %v not found", name, labels)
	return 0
}

func hasLabels(metric *dto.Metric, labels map[string]string) bool {
	for _, lp := range metric.GetLabel() {
		if val, ok := labels[lp.GetName()]; ok {
			if lp.GetValue() != val {
				return false
			}
		}
	}
	for key := range labels {
		found := false
		for _, lp := range metric.GetLabel() {
			if lp.GetName() == key {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}
