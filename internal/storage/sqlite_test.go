package storage

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"testing"
	"time"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(":memory:")
	if err != nil {
		t.Fatalf("Open(:memory:) failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// TestMigrationsIdempotent runs Open twice on the same database and verifies
// the schema_version count stays correct (migration not re-applied).
func TestMigrationsIdempotent(t *testing.T) {
	dir := t.TempDir()

	s1, err := Open(dir)
	if err != nil {
		t.Fatalf("first Open failed: %v", err)
	}
	v1, err := s1.AppliedMigrations()
	if err != nil {
		t.Fatalf("AppliedMigrations: %v", err)
	}
	s1.Close()

	s2, err := Open(dir)
	if err != nil {
		t.Fatalf("second Open failed: %v", err)
	}
	defer s2.Close()

	v2, err := s2.AppliedMigrations()
	if err != nil {
		t.Fatalf("AppliedMigrations: %v", err)
	}
	if len(v1) != len(v2) {
		t.Errorf("migration count changed: %d -> %d", len(v1), len(v2))
	}
}

func TestIndexesExist(t *testing.T) {
	s := openTestStore(t)

	indexes := []string{"idx_drafts_created", "idx_drafts_kind", "idx_samples_created", "idx_jobs_status_run_after"}
	for _, idx := range indexes {
		var count int
		err := s.db.QueryRow("SELECT COUNT(*) FROM sqlite_master WHERE type='index' AND name=?", idx).Scan(&count)
		if err != nil {
			t.Fatalf("querying sqlite_master for %q: %v", idx, err)
		}
		if count != 1 {
			t.Errorf("index %q not found in sqlite_master", idx)
		}
	}
}

// --- Drafts ---

func TestSaveAndGetDraft(t *testing.T) {
	s := openTestStore(t)

	want := Draft{
		ID:        "d-001",
		CreatedAt: time.Now().UTC().Truncate(time.Millisecond),
		Kind:      "reply",
		Input:     "Shipping on Fridays is fine actually.",
		Tone:      "witty",
		Model:     "anthropic/claude-sonnet-4",
		Items:     []string{"Bold take.", "Only with good rollbacks."},
		Questions: []string{"Who is on call?"},
		RawOutput: "raw",
	}
	if err := s.SaveDraft(want); err != nil {
		t.Fatalf("SaveDraft: %v", err)
	}

	got, err := s.GetDraft("d-001")
	if err != nil {
		t.Fatalf("GetDraft: %v", err)
	}
	if !got.CreatedAt.Equal(want.CreatedAt) {
		t.Errorf("CreatedAt = %v, want %v", got.CreatedAt, want.CreatedAt)
	}
	got.CreatedAt = want.CreatedAt
	if !reflect.DeepEqual(got, want) {
		t.Errorf("GetDraft = %+v, want %+v", got, want)
	}
}

func TestSaveDraft_NilSlicesStoredEmpty(t *testing.T) {
	s := openTestStore(t)

	if err := s.SaveDraft(Draft{ID: "d-nil", CreatedAt: time.Now(), Kind: "ideas"}); err != nil {
		t.Fatalf("SaveDraft: %v", err)
	}
	got, err := s.GetDraft("d-nil")
	if err != nil {
		t.Fatalf("GetDraft: %v", err)
	}
	if got.Items == nil || len(got.Items) != 0 {
		t.Errorf("Items = %#v, want empty non-nil", got.Items)
	}
}

func TestGetDraftNotFound(t *testing.T) {
	s := openTestStore(t)

	if _, err := s.GetDraft("missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestListDrafts_OrderAndKindFilter(t *testing.T) {
	s := openTestStore(t)

	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	kinds := []string{"reply", "post", "reply", "ideas"}
	for i, k := range kinds {
		d := Draft{
			ID:        fmt.Sprintf("d-%d", i),
			CreatedAt: base.Add(time.Duration(i) * 500 * time.Millisecond),
			Kind:      k,
		}
		if err := s.SaveDraft(d); err != nil {
			t.Fatalf("SaveDraft: %v", err)
		}
	}

	all, err := s.ListDrafts("", 10)
	if err != nil {
		t.Fatalf("ListDrafts: %v", err)
	}
	if len(all) != 4 || all[0].ID != "d-3" || all[3].ID != "d-0" {
		t.Errorf("ListDrafts order = %v", draftIDs(all))
	}

	replies, err := s.ListDrafts("reply", 10)
	if err != nil {
		t.Fatalf("ListDrafts(reply): %v", err)
	}
	if !reflect.DeepEqual(draftIDs(replies), []string{"d-2", "d-0"}) {
		t.Errorf("replies = %v, want [d-2 d-0]", draftIDs(replies))
	}

	limited, _ := s.ListDrafts("", 2)
	if len(limited) != 2 {
		t.Errorf("limit 2 returned %d", len(limited))
	}
}

func draftIDs(ds []Draft) []string {
	ids := make([]string, len(ds))
	for i, d := range ds {
		ids[i] = d.ID
	}
	return ids
}

// --- Writing samples ---

func TestSampleLifecycle(t *testing.T) {
	s := openTestStore(t)

	now := time.Now().UTC()
	if err := s.SaveSample(Sample{ID: "s-text", CreatedAt: now, Raw: "plain", Content: "plain", Normalized: true}); err != nil {
		t.Fatalf("SaveSample text: %v", err)
	}
	if err := s.SaveSample(Sample{ID: "s-html", CreatedAt: now.Add(time.Second), ContentType: "html", Raw: "<p>hi</p>"}); err != nil {
		t.Fatalf("SaveSample html: %v", err)
	}

	got, err := s.GetSample("s-text")
	if err != nil {
		t.Fatalf("GetSample: %v", err)
	}
	if got.ContentType != "text" {
		t.Errorf("ContentType = %q, want default text", got.ContentType)
	}

	ready, err := s.ListSamples(10, true)
	if err != nil {
		t.Fatalf("ListSamples: %v", err)
	}
	if len(ready) != 1 || ready[0].ID != "s-text" {
		t.Errorf("normalized samples = %+v", ready)
	}

	if err := s.UpdateSampleContent("s-html", "hi"); err != nil {
		t.Fatalf("UpdateSampleContent: %v", err)
	}
	ready, _ = s.ListSamples(10, true)
	if len(ready) != 2 || ready[0].ID != "s-html" || ready[0].Content != "hi" {
		t.Errorf("after normalize = %+v", ready)
	}

	if err := s.DeleteSample("s-text"); err != nil {
		t.Fatalf("DeleteSample: %v", err)
	}
	if err := s.DeleteSample("s-text"); !errors.Is(err, ErrNotFound) {
		t.Errorf("second DeleteSample err = %v, want ErrNotFound", err)
	}
	if err := s.UpdateSampleContent("missing", "x"); !errors.Is(err, ErrNotFound) {
		t.Errorf("UpdateSampleContent(missing) err = %v, want ErrNotFound", err)
	}
}

// --- Key/value ---

func TestKVRoundTrip(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	if _, ok, err := s.Get(ctx, "scheduled_posts"); err != nil || ok {
		t.Fatalf("Get(unset) = ok %v err %v, want false nil", ok, err)
	}

	if err := s.Set(ctx, "scheduled_posts", []byte(`[1]`)); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if err := s.Set(ctx, "scheduled_posts", []byte(`[1,2]`)); err != nil {
		t.Fatalf("Set overwrite: %v", err)
	}

	v, ok, err := s.Get(ctx, "scheduled_posts")
	if err != nil || !ok {
		t.Fatalf("Get = ok %v err %v", ok, err)
	}
	if string(v) != `[1,2]` {
		t.Errorf("value = %s, want [1,2]", v)
	}
}

func TestKVPersistsAcrossReopen(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	s1, err := Open(dir)
	if err != nil {
		t.Fatal(err)
	}
	if err := s1.Set(ctx, "settings", []byte(`{"tone":"dry"}`)); err != nil {
		t.Fatal(err)
	}
	s1.Close()

	s2, err := Open(dir)
	if err != nil {
		t.Fatal(err)
	}
	defer s2.Close()
	v, ok, err := s2.Get(ctx, "settings")
	if err != nil || !ok || string(v) != `{"tone":"dry"}` {
		t.Errorf("after reopen Get = %s ok=%v err=%v", v, ok, err)
	}
}

// --- Jobs ---

func TestEnqueueAndClaimJob(t *testing.T) {
	s := openTestStore(t)

	job := Job{
		ID:          "j-claim-1",
		Type:        "sample_normalize",
		PayloadJSON: `{"sample_id":"s1"}`,
	}
	if err := s.EnqueueJob(job); err != nil {
		t.Fatalf("EnqueueJob: %v", err)
	}

	got, err := s.ClaimNextJob([]string{"sample_normalize"})
	if err != nil {
		t.Fatalf("ClaimNextJob: %v", err)
	}
	if got == nil {
		t.Fatal("ClaimNextJob returned nil")
	}
	if got.ID != "j-claim-1" {
		t.Errorf("ID = %q, want %q", got.ID, "j-claim-1")
	}
	if got.Status != "running" {
		t.Errorf("Status = %q, want %q", got.Status, "running")
	}
	if got.MaxAttempts != 3 {
		t.Errorf("MaxAttempts = %d, want 3", got.MaxAttempts)
	}
}

func TestClaimNextJob_Empty(t *testing.T) {
	s := openTestStore(t)

	got, err := s.ClaimNextJob([]string{"sample_normalize"})
	if err != nil {
		t.Fatalf("ClaimNextJob: %v", err)
	}
	if got != nil {
		t.Errorf("expected nil, got %+v", got)
	}
}

func TestClaimNextJob_RespectRunAfter(t *testing.T) {
	s := openTestStore(t)

	job := Job{
		ID:          "j-future",
		Type:        "sample_normalize",
		PayloadJSON: `{}`,
		RunAfter:    time.Now().UTC().Add(1 * time.Hour),
	}
	if err := s.EnqueueJob(job); err != nil {
		t.Fatalf("EnqueueJob: %v", err)
	}

	got, err := s.ClaimNextJob([]string{"sample_normalize"})
	if err != nil {
		t.Fatalf("ClaimNextJob: %v", err)
	}
	if got != nil {
		t.Errorf("expected nil for future run_after, got %+v", got)
	}
}

func TestClaimNextJob_TypeFilter(t *testing.T) {
	s := openTestStore(t)

	if err := s.EnqueueJob(Job{ID: "j-a", Type: "a", PayloadJSON: `{}`}); err != nil {
		t.Fatalf("EnqueueJob a: %v", err)
	}
	if err := s.EnqueueJob(Job{ID: "j-b", Type: "b", PayloadJSON: `{}`}); err != nil {
		t.Fatalf("EnqueueJob b: %v", err)
	}

	got, err := s.ClaimNextJob([]string{"b"})
	if err != nil {
		t.Fatalf("ClaimNextJob: %v", err)
	}
	if got == nil || got.Type != "b" {
		t.Errorf("claimed %+v, want type b", got)
	}
}

func TestCompleteJob(t *testing.T) {
	s := openTestStore(t)

	if err := s.EnqueueJob(Job{ID: "j-complete", Type: "x", PayloadJSON: `{}`}); err != nil {
		t.Fatalf("EnqueueJob: %v", err)
	}
	if _, err := s.ClaimNextJob([]string{"x"}); err != nil {
		t.Fatalf("ClaimNextJob: %v", err)
	}
	if err := s.CompleteJob("j-complete"); err != nil {
		t.Fatalf("CompleteJob: %v", err)
	}
	if n, _ := s.CountJobs("completed"); n != 1 {
		t.Errorf("completed jobs = %d, want 1", n)
	}
	if err := s.CompleteJob("missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("CompleteJob(missing) err = %v, want ErrNotFound", err)
	}
}

func TestFailJob_BackoffThenFailed(t *testing.T) {
	s := openTestStore(t)

	if err := s.EnqueueJob(Job{ID: "j-fail", Type: "x", PayloadJSON: `{}`, MaxAttempts: 2}); err != nil {
		t.Fatalf("EnqueueJob: %v", err)
	}
	if _, err := s.ClaimNextJob([]string{"x"}); err != nil {
		t.Fatalf("ClaimNextJob: %v", err)
	}

	before := time.Now().UTC()
	if err := s.FailJob("j-fail", "boom"); err != nil {
		t.Fatalf("FailJob: %v", err)
	}

	var status, lastError, runAfterStr string
	var attempts int
	if err := s.db.QueryRow(`SELECT status, attempts, last_error, run_after FROM jobs WHERE id = 'j-fail'`).
		Scan(&status, &attempts, &lastError, &runAfterStr); err != nil {
		t.Fatalf("SELECT: %v", err)
	}
	if status != "pending" || attempts != 1 || lastError != "boom" {
		t.Errorf("after first failure status=%q attempts=%d last_error=%q", status, attempts, lastError)
	}
	runAfter, err := time.Parse(time.RFC3339, runAfterStr)
	if err != nil {
		t.Fatalf("parsing run_after: %v", err)
	}
	if !runAfter.After(before) {
		t.Errorf("run_after %v should be after %v", runAfter, before)
	}

	if err := s.FailJob("j-fail", "boom again"); err != nil {
		t.Fatalf("FailJob: %v", err)
	}
	if n, _ := s.CountJobs("failed"); n != 1 {
		t.Errorf("failed jobs = %d, want 1", n)
	}
}

func TestResetRunningJobs(t *testing.T) {
	s := openTestStore(t)

	if err := s.EnqueueJob(Job{ID: "j-stuck", Type: "x", PayloadJSON: `{}`}); err != nil {
		t.Fatalf("EnqueueJob: %v", err)
	}
	if _, err := s.ClaimNextJob([]string{"x"}); err != nil {
		t.Fatalf("ClaimNextJob: %v", err)
	}

	n, err := s.ResetRunningJobs()
	if err != nil {
		t.Fatalf("ResetRunningJobs: %v", err)
	}
	if n != 1 {
		t.Errorf("reset %d jobs, want 1", n)
	}
	got, _ := s.ClaimNextJob([]string{"x"})
	if got == nil || got.ID != "j-stuck" {
		t.Errorf("reset job not claimable again: %+v", got)
	}
}
