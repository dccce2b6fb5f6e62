package jobs

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/hibiken/asynq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-distribution/internal/integrity"
	jobmetrics "github.com/odyssey-erp/odyssey-distribution/internal/jobs"
	"github.com/odyssey-erp/odyssey-distribution/internal/reporting"
)

var discard = slog.New(slog.NewTextHandler(io.Discard, nil))

type fakeChecker struct {
	checked []string
	all     int
	err     error
}

func (f *fakeChecker) Check(_ context.Context, company string) (integrity.Report, error) {
	f.checked = append(f.checked, company)
	return integrity.Report{CompanyCode: company}, f.err
}

func (f *fakeChecker) CheckAll(context.Context) ([]integrity.Report, error) {
	f.all++
	return []integrity.Report{{CompanyCode: "ACME"}, {CompanyCode: "BETA"}}, f.err
}

func TestIntegrityJobScopesByPayload(t *testing.T) {
	checker := &fakeChecker{}
	metrics := jobmetrics.NewMetrics(prometheus.NewRegistry())
	job := NewIntegrityJob(checker, discard, metrics)

	task, err := NewIntegrityTask(IntegrityPayload{CompanyCode: " acme "})
	require.NoError(t, err)
	require.NoError(t, job.Handle(context.Background(), task))
	require.Equal(t, []string{"ACME"}, checker.checked)

	require.NoError(t, job.Handle(context.Background(), asynq.NewTask(TaskLedgerIntegrity, nil)))
	require.Equal(t, 1, checker.all)

	err = job.Handle(context.Background(), asynq.NewTask(TaskLedgerIntegrity, []byte("{")))
	require.ErrorIs(t, err, asynq.SkipRetry)

	checker.err = errors.New("db down")
	require.Error(t, job.Handle(context.Background(), asynq.NewTask(TaskLedgerIntegrity, nil)))
}

func TestJobMetricsCountRunsAndIssues(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics := jobmetrics.NewMetrics(reg)
	checker := &fakeChecker{err: errors.New("boom")}
	job := NewIntegrityJob(checker, discard, metrics)
	require.Error(t, job.Handle(context.Background(), asynq.NewTask(TaskLedgerIntegrity, nil)))

	metrics.AddIntegrityIssues(integrity.KindStock, "ACME", 3)
	metrics.AddIntegrityIssues(integrity.KindCash, "ACME", 0)

	runs, err := testutil.GatherAndCount(reg, "odyssey_jobs_total", "odyssey_jobs_failures_total")
	require.NoError(t, err)
	require.Equal(t, 2, runs)
	issues, err := testutil.GatherAndCount(reg, "odyssey_ledger_integrity_issues_total")
	require.NoError(t, err)
	require.Equal(t, 1, issues)

	var nilMetrics *jobmetrics.Metrics
	require.NoError(t, nilMetrics.Track("x").End(nil))
	nilMetrics.AddIntegrityIssues("stock", "ACME", 1)
}

type fakeCleaner struct {
	retention time.Duration
	deleted   int64
	err       error
}

func (f *fakeCleaner) Cleanup(_ context.Context, olderThan time.Duration) (int64, error) {
	f.retention = olderThan
	return f.deleted, f.err
}

func TestCleanupJobUsesRetention(t *testing.T) {
	store := &fakeCleaner{deleted: 4}
	job := NewCleanupJob(store, 720*time.Hour, discard, nil)

	require.NoError(t, job.Handle(context.Background(), asynq.NewTask(TaskIdempotencyCleanup, nil)))
	require.Equal(t, 720*time.Hour, store.retention)

	task, err := NewCleanupTask(CleanupPayload{RetentionHours: 48})
	require.NoError(t, err)
	require.NoError(t, job.Handle(context.Background(), task))
	require.Equal(t, 48*time.Hour, store.retention)

	store.err = errors.New("locked")
	require.ErrorContains(t, job.Handle(context.Background(), task), "locked")
}

type fakeDashboards struct {
	failFor map[string]bool
	warmed  []string
}

func (f *fakeDashboards) Dashboard(_ context.Context, company string, _ time.Time) (reporting.Dashboard, error) {
	if f.failFor[company] {
		return reporting.Dashboard{}, errors.New("redis down")
	}
	f.warmed = append(f.warmed, company)
	return reporting.Dashboard{}, nil
}

type companyList []string

func (c companyList) Companies(context.Context) ([]string, error) { return c, nil }

func TestWarmupJobSkipsFailingCompanies(t *testing.T) {
	reports := &fakeDashboards{failFor: map[string]bool{"BETA": true}}
	job := NewWarmupJob(reports, companyList{"ACME", "BETA"}, discard, nil)
	require.NoError(t, job.Handle(context.Background(), asynq.NewTask(TaskReportWarmup, nil)))
	require.Equal(t, []string{"ACME"}, reports.warmed)

	task, err := NewWarmupTask(WarmupPayload{Companies: []string{"BETA"}})
	require.NoError(t, err)
	require.Error(t, job.Handle(context.Background(), task))
}

type recordingEnqueuer struct {
	tasks []*asynq.Task
}

func (r *recordingEnqueuer) EnqueueContext(_ context.Context, task *asynq.Task, _ ...asynq.Option) (*asynq.TaskInfo, error) {
	r.tasks = append(r.tasks, task)
	return &asynq.TaskInfo{Type: task.Type(), Queue: QueueDefault}, nil
}

func (r *recordingEnqueuer) Close() error { return nil }

func TestClientEnqueuesTypedTasks(t *testing.T) {
	rec := &recordingEnqueuer{}
	client := NewClientWith(rec)
	ctx := context.Background()

	_, err := client.EnqueueIntegrity(ctx, IntegrityPayload{CompanyCode: "ACME"})
	require.NoError(t, err)
	_, err = client.EnqueueCleanup(ctx, CleanupPayload{})
	require.NoError(t, err)
	_, err = client.EnqueueWarmup(ctx, WarmupPayload{})
	require.NoError(t, err)

	require.Len(t, rec.tasks, 3)
	require.Equal(t, TaskLedgerIntegrity, rec.tasks[0].Type())
	require.JSONEq(t, `{"company_code":"ACME"}`, string(rec.tasks[0].Payload()))
	require.Equal(t, TaskIdempotencyCleanup, rec.tasks[1].Type())
	require.Equal(t, TaskReportWarmup, rec.tasks[2].Type())
	require.NoError(t, client.Close())
}

type fakeInspector struct {
	info *asynq.QueueInfo
	err  error
}

func (f fakeInspector) GetQueueInfo(string) (*asynq.QueueInfo, error) { return f.info, f.err }

func TestHandlerReportsQueueHealth(t *testing.T) {
	serve := func(h *Handler) *httptest.ResponseRecorder {
		r := chi.NewRouter()
		h.MountRoutes(r)
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
		return rec
	}

	rec := serve(NewHandler(fakeInspector{info: &asynq.QueueInfo{Queue: "default", Pending: 3, Archived: 1}}, discard))
	require.Equal(t, http.StatusOK, rec.Code)
	require.JSONEq(t, `{"queue":"default","pending":3,"active":0,"retry":0,"failed":1}`, rec.Body.String())

	rec = serve(NewHandler(fakeInspector{err: errors.New("no redis")}, discard))
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)

	rec = serve(NewHandler(nil, discard))
	require.Equal(t, http.StatusOK, rec.Code)
}
