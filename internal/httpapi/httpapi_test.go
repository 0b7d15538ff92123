package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"reminderd/internal/reminder"
	"reminderd/internal/scheduler"
	logx "reminderd/pkg/logx"
)

type fakeScheduler struct {
	triggers atomic.Int32
	result   reminder.BatchResult
}

func (f *fakeScheduler) Status() scheduler.Status {
	return scheduler.Status{Running: true, Schedule: "*/15 * * * *"}
}

func (f *fakeScheduler) Trigger(ctx context.Context) reminder.BatchResult {
	f.triggers.Add(1)
	return f.result
}

func do(t *testing.T, h http.Handler, method, target string, hdr map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, nil)
	for k, v := range hdr {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestHealthReportsSchedulerStatus(t *testing.T) {
	e := NewHandler(&fakeScheduler{}, "", nil, logx.Nop())

	rec := do(t, e, http.MethodGet, "/api/health", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var body healthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "healthy", body.Status)
	assert.True(t, body.Scheduler.Running)
	assert.WithinDuration(t, time.Now(), body.Timestamp, time.Minute)
}

func TestHealthDegraded(t *testing.T) {
	e := NewHandler(&fakeScheduler{}, "", func() error { return errors.New("watcher down") }, logx.Nop())

	rec := do(t, e, http.MethodGet, "/api/health", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"status":"degraded"`)
	assert.Contains(t, rec.Body.String(), "watcher down")
}

func TestCheckReturnsCountsOnly(t *testing.T) {
	fs := &fakeScheduler{result: reminder.BatchResult{Attempted: 3, Succeeded: 2, Failed: 1}}
	e := NewHandler(fs, "", nil, logx.Nop())

	rec := do(t, e, http.MethodPost, "/api/scheduler/check", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Message string         `json:"message"`
		Result  map[string]any `json:"result"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "Manual check completed", body.Message)
	assert.EqualValues(t, 3, body.Result["attempted"])
	assert.EqualValues(t, 1, body.Result["failed"])
	assert.EqualValues(t, 1, fs.triggers.Load())
}

func TestCheckHidesBatchError(t *testing.T) {
	fs := &fakeScheduler{result: reminder.BatchResult{Err: errors.New("list due tasks: disk I/O error")}}
	e := NewHandler(fs, "", nil, logx.Nop())

	rec := do(t, e, http.MethodPost, "/api/scheduler/check", nil)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, rec.Body.String(), "Failed to run manual check")
	assert.NotContains(t, rec.Body.String(), "disk")
}

func TestCheckRequiresPost(t *testing.T) {
	e := NewHandler(&fakeScheduler{}, "", nil, logx.Nop())
	rec := do(t, e, http.MethodGet, "/api/scheduler/check", nil)
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestBearerAuth(t *testing.T) {
	fs := &fakeScheduler{}
	e := NewHandler(fs, "s3cret", nil, logx.Nop())

	rec := do(t, e, http.MethodGet, "/api/scheduler/status", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "Bearer", rec.Header().Get("WWW-Authenticate"))

	rec = do(t, e, http.MethodGet, "/api/scheduler/status", map[string]string{"Authorization": "Bearer wrong"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = do(t, e, http.MethodGet, "/api/scheduler/status", map[string]string{"Authorization": "Bearer s3cret"})
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"running":true`)

	rec = do(t, e, http.MethodGet, "/api/scheduler/status?token=s3cret", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestServiceLifecycle(t *testing.T) {
	svc := New(Config{Enabled: true, Addr: "127.0.0.1:0"}, &fakeScheduler{}, nil, logx.Nop())
	ctx := context.Background()
	svc.Start(ctx)
	svc.Start(ctx)

	wctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	addr, err := svc.Addr(wctx)
	require.NoError(t, err)

	resp, err := http.Get("http://" + addr + "/api/scheduler/status")
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	stopCtx, stopCancel := context.WithTimeout(ctx, 2*time.Second)
	defer stopCancel()
	svc.Stop(stopCtx)
	assert.Nil(t, svc.Supervisor())
}

func TestServiceReconfigureDisables(t *testing.T) {
	svc := New(Config{Enabled: true, Addr: "127.0.0.1:0"}, &fakeScheduler{}, nil, logx.Nop())
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	svc.Start(ctx)
	_, err := svc.Addr(ctx)
	require.NoError(t, err)

	svc.Reconfigure(ctx, Config{Enabled: false})
	assert.False(t, svc.Enabled())
	assert.Nil(t, svc.Supervisor())
}

func TestServiceRefusesPublicBindWithoutToken(t *testing.T) {
	svc := New(Config{Enabled: true, Addr: "0.0.0.0:0"}, &fakeScheduler{}, nil, logx.Nop())
	svc.Start(context.Background())
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		svc.Stop(ctx)
	})

	sup := svc.Supervisor()
	require.NotNil(t, sup)
	require.Eventually(t, func() bool { return sup.Err() != nil }, 2*time.Second, 10*time.Millisecond)
	assert.True(t, strings.Contains(sup.Err().Error(), "insecure bind"))
}

func TestIsLoopbackAddr(t *testing.T) {
	for addr, want := range map[string]bool{
		"127.0.0.1:3000": true,
		"localhost:80":   true,
		"[::1]:3000":     true,
		":3000":          false,
		"0.0.0.0:3000":   false,
		"10.0.0.5:3000":  false,
	} {
		assert.Equal(t, want, isLoopbackAddr(addr), addr)
	}
}
