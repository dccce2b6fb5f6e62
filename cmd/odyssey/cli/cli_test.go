package cli

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-distribution/internal/integrity"
	"github.com/odyssey-erp/odyssey-distribution/internal/ledger"
	"github.com/odyssey-erp/odyssey-distribution/internal/reporting"
	"github.com/odyssey-erp/odyssey-distribution/internal/testing/memstore"
	"github.com/odyssey-erp/odyssey-distribution/jobs"
)

func run(t *testing.T, env *Env, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	env.Out = &out
	cmd := NewRootCommand(env)
	cmd.SetArgs(args)
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func integrityEnv(store *memstore.Store) *Env {
	return &Env{
		Integrity: func(context.Context) (Checker, func(), error) {
			return integrity.NewService(store, nil, nil), func() {}, nil
		},
	}
}

func TestIntegrityCommandReportsDrift(t *testing.T) {
	store := memstore.New()
	store.PutProduct(ledger.Product{CompanyCode: "ACME", Code: "P", Name: "Widget", IsActive: true})
	store.PutCustomer(ledger.Customer{CompanyCode: "BETA", Code: "C", Name: "Toko", IsActive: true})

	out, err := run(t, integrityEnv(store), "integrity")
	require.NoError(t, err)
	require.Contains(t, out, "ACME")
	require.Contains(t, out, "ok")

	store.PutProduct(ledger.Product{CompanyCode: "ACME", Code: "P", Name: "Widget", CurrentStock: 3, IsActive: true})
	out, err = run(t, integrityEnv(store), "integrity", "--company", "acme")
	require.ErrorIs(t, err, ErrDriftFound)
	require.Contains(t, out, "stock")
	require.NotContains(t, out, "BETA")

	out, err = run(t, integrityEnv(store), "integrity", "--json")
	require.ErrorIs(t, err, ErrDriftFound)
	require.Contains(t, out, `"product_code": "P"`)
}

func TestMigrateCommand(t *testing.T) {
	called := false
	out, err := run(t, &Env{Migrate: func(context.Context) error { called = true; return nil }}, "migrate")
	require.NoError(t, err)
	require.True(t, called)
	require.Contains(t, out, "schema applied")

	_, err = run(t, &Env{}, "migrate")
	require.Error(t, err)
}

type recordingEnqueuer struct{ tasks []*asynq.Task }

func (r *recordingEnqueuer) EnqueueContext(_ context.Context, task *asynq.Task, _ ...asynq.Option) (*asynq.TaskInfo, error) {
	r.tasks = append(r.tasks, task)
	return &asynq.TaskInfo{ID: "t1", Type: task.Type(), Queue: jobs.QueueDefault}, nil
}

func (r *recordingEnqueuer) Close() error { return nil }

type fakeInspector struct{}

func (fakeInspector) GetQueueInfo(string) (*asynq.QueueInfo, error) {
	return &asynq.QueueInfo{Queue: jobs.QueueDefault, Pending: 2, Scheduled: 1}, nil
}

func (fakeInspector) ListScheduledTasks(string, ...asynq.ListOption) ([]*asynq.TaskInfo, error) {
	return []*asynq.TaskInfo{{ID: "s1", Type: jobs.TaskLedgerIntegrity, NextProcessAt: time.Date(2026, 3, 11, 2, 0, 0, 0, time.UTC)}}, nil
}

func (fakeInspector) Close() error { return nil }

func TestJobsCommands(t *testing.T) {
	enq := &recordingEnqueuer{}
	env := &Env{Jobs: func() (*JobsCLI, error) {
		return NewJobsCLIWith(jobs.NewClientWith(enq), fakeInspector{}), nil
	}}

	out, err := run(t, env, "jobs", "trigger", jobs.TaskLedgerIntegrity, "--company", "ACME")
	require.NoError(t, err)
	require.Contains(t, out, "enqueued ledger:integrity id=t1")
	require.JSONEq(t, `{"company_code":"ACME"}`, string(enq.tasks[0].Payload()))

	_, err = run(t, env, "jobs", "trigger", "mail:send")
	require.ErrorContains(t, err, "unsupported job")

	out, err = run(t, env, "jobs", "stats")
	require.NoError(t, err)
	require.Contains(t, out, `"pending":2`)

	out, err = run(t, env, "jobs", "scheduled")
	require.NoError(t, err)
	require.Contains(t, out, "2026-03-11T02:00:00Z")
}

func TestCacheBumpCommand(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()
	cache := reporting.NewCache(client, time.Minute)
	env := &Env{Cache: func(context.Context) (CacheBumper, func(), error) { return cache, func() {}, nil }}
	ver, err := cache.Version(context.Background(), "ACME")
	require.NoError(t, err)
	require.EqualValues(t, 1, ver)

	out, err := run(t, env, "cache", "bump", "acme")
	require.NoError(t, err)
	require.Contains(t, out, "ACME")
	ver, err = cache.Version(context.Background(), "ACME")
	require.NoError(t, err)
	require.EqualValues(t, 2, ver)

	env.Cache = func(context.Context) (CacheBumper, func(), error) { return nil, nil, errors.New("no redis") }
	_, err = run(t, env, "cache", "bump", "acme")
	require.Error(t, err)
}
