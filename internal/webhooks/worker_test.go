package webhooks

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"reliefops/internal/store"
)

type recordStore struct {
	*store.Memory
	mu    sync.Mutex
	marks []markRec
	fails []failRec
}

type markRec struct {
	ID            string
	Success       bool
	Code, Latency int
	LastErr       string
}

type failRec struct {
	ID            string
	Code, Latency int
	LastErr       string
}

func (r *recordStore) MarkWebhookDelivery(ctx context.Context, id string, success bool, nextAttemptAt *time.Time, lastError string, responseCode int, latencyMs int) error {
	r.mu.Lock()
	r.marks = append(r.marks, markRec{ID: id, Success: success, Code: responseCode, Latency: latencyMs, LastErr: lastError})
	r.mu.Unlock()
	return r.Memory.MarkWebhookDelivery(ctx, id, success, nextAttemptAt, lastError, responseCode, latencyMs)
}

func (r *recordStore) FailWebhookDelivery(ctx context.Context, id string, lastError string, responseCode int, latencyMs int) error {
	r.mu.Lock()
	r.fails = append(r.fails, failRec{ID: id, Code: responseCode, Latency: latencyMs, LastErr: lastError})
	r.mu.Unlock()
	return r.Memory.FailWebhookDelivery(ctx, id, lastError, responseCode, latencyMs)
}

func TestWorkerProcessOnceSignsAndMarksSuccess(t *testing.T) {
	var gotSig, gotType string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotSig = r.Header.Get("X-Signature")
		gotType = r.Header.Get("X-Event-Type")
		w.WriteHeader(200)
	}))
	defer srv.Close()

	rs := &recordStore{Memory: store.NewMemory()}
	w := NewWorker(rs, nil, 3, time.Second)
	w.HTTP = srv.Client()
	body := []byte(`{"id":"evt1"}`)
	id, err := rs.Memory.EnqueueWebhook(context.Background(), "t1", "", "need.created", srv.URL, "secret", body)
	if err != nil || id == "" {
		t.Fatalf("enqueue failed: %v", err)
	}

	w.processOnce()

	if gotType != "need.created" {
		t.Fatalf("missing event type header: %q", gotType)
	}
	if gotSig != SignHMAC("secret", body) {
		t.Fatalf("bad signature: %q", gotSig)
	}
	if len(rs.marks) == 0 || !rs.marks[0].Success {
		t.Fatalf("expected mark success, got: %+v", rs.marks)
	}
}

func TestWorkerProcessOnceDeadLettersAtMaxAttempts(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(500) }))
	defer srv.Close()

	rs := &recordStore{Memory: store.NewMemory()}
	w := NewWorker(rs, nil, 1, time.Second)
	w.HTTP = srv.Client()
	_, _ = rs.Memory.EnqueueWebhook(context.Background(), "t1", "", "task.advanced", srv.URL, "", []byte(`{}`))

	w.processOnce()

	if len(rs.fails) == 0 {
		t.Fatalf("expected delivery dead-lettered")
	}
	dlq, _, err := rs.Memory.ListWebhookDLQ(context.Background(), "t1", "", "", 10)
	if err != nil || len(dlq) != 1 {
		t.Fatalf("expected one DLQ row, got %d (err=%v)", len(dlq), err)
	}
}

func TestWorkerRetrySchedulesBackoff(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(503) }))
	defer srv.Close()

	rs := &recordStore{Memory: store.NewMemory()}
	w := NewWorker(rs, nil, 5, time.Second)
	w.HTTP = srv.Client()
	_, _ = rs.Memory.EnqueueWebhook(context.Background(), "t1", "", "task.advanced", srv.URL, "", []byte(`{}`))

	w.processOnce()

	if len(rs.marks) != 1 || rs.marks[0].Success {
		t.Fatalf("expected retry mark, got: %+v", rs.marks)
	}
	// Backed off: not due again immediately.
	due, err := rs.Memory.FetchDueWebhookDeliveries(context.Background(), 10)
	if err != nil || len(due) != 0 {
		t.Fatalf("expected no due deliveries, got %d (err=%v)", len(due), err)
	}
}

func TestSignatureRoundTrip(t *testing.T) {
	body := []byte(`{"hello":"world"}`)
	sig := SignHMAC("s3cret", body)
	if !VerifyHMAC("s3cret", body, sig) {
		t.Fatal("signature should verify")
	}
	if VerifyHMAC("other", body, sig) {
		t.Fatal("wrong secret should not verify")
	}
	if VerifyHMAC("s3cret", []byte(`{}`), sig) {
		t.Fatal("tampered body should not verify")
	}
}
