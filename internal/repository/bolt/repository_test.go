package bolt

import (
	"path/filepath"
	"testing"
	"time"

	"mediajukebox/internal/domain"
)

func openTestRepo(t *testing.T) *Repository {
	t.Helper()
	repo, err := Open(filepath.Join(t.TempDir(), "queue.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { _ = repo.Close() })
	return repo
}

func submit(t *testing.T, repo *Repository, url, by string) domain.QueueItem {
	t.Helper()
	item := domain.NewQueueItem(url, by, "", time.Now())
	pos, err := repo.Enqueue(item)
	if err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	item.Position = pos
	return item
}

func TestEnqueueAssignsIncreasingPositions(t *testing.T) {
	repo := openTestRepo(t)

	a := submit(t, repo, "https://example.com/a.mp4", "alice")
	b := submit(t, repo, "https://example.com/b.mp4", "bob")
	c := submit(t, repo, "https://example.com/c.mp4", "carol")

	if a.Position != 1 || b.Position != 2 || c.Position != 3 {
		t.Fatalf("positions = %d, %d, %d; want 1, 2, 3", a.Position, b.Position, c.Position)
	}
}

func TestDequeueReturnsLowestPositionWithoutRemoving(t *testing.T) {
	repo := openTestRepo(t)

	a := submit(t, repo, "https://example.com/a.mp4", "alice")
	submit(t, repo, "https://example.com/b.mp4", "bob")

	got, ok, err := repo.Dequeue()
	if err != nil || !ok {
		t.Fatalf("Dequeue: ok=%v err=%v", ok, err)
	}
	if got.ID != a.ID {
		t.Fatalf("dequeued %s, want %s", got.ID, a.ID)
	}

	// Non-destructive: the same item comes back until its status changes.
	again, ok, err := repo.Dequeue()
	if err != nil || !ok || again.ID != a.ID {
		t.Fatalf("second Dequeue: got %s ok=%v err=%v, want %s", again.ID, ok, err, a.ID)
	}
}

func TestDequeueEmpty(t *testing.T) {
	repo := openTestRepo(t)

	_, ok, err := repo.Dequeue()
	if err != nil {
		t.Fatalf("Dequeue: %v", err)
	}
	if ok {
		t.Fatal("Dequeue on empty store returned an item")
	}
}

func TestDuplicateURLsKeepOrder(t *testing.T) {
	repo := openTestRepo(t)

	a := submit(t, repo, "https://example.com/same.mp4", "alice")
	b := submit(t, repo, "https://example.com/same.mp4", "bob")

	queue, err := repo.GetQueue(10)
	if err != nil {
		t.Fatalf("GetQueue: %v", err)
	}
	if len(queue) != 2 || queue[0].ID != a.ID || queue[1].ID != b.ID {
		t.Fatalf("queue order wrong: %+v", queue)
	}
}

func TestPositionsResumeAfterDrain(t *testing.T) {
	repo := openTestRepo(t)

	a := submit(t, repo, "https://example.com/a.mp4", "alice")
	if err := repo.UpdateStatus(a.ID, domain.StatusDone, ""); err != nil {
		t.Fatalf("UpdateStatus: %v", err)
	}

	// Position allocation only considers pending rows.
	b := submit(t, repo, "https://example.com/b.mp4", "bob")
	if b.Position != 1 {
		t.Fatalf("position after drain = %d, want 1", b.Position)
	}
}

func TestUpdateItemPersistsEnrichedFields(t *testing.T) {
	repo := openTestRepo(t)

	item := submit(t, repo, "https://example.com/a.mp4", "alice")
	item.FilePath = "/media/" + item.ID + ".mp4"
	item.Title = "Hello"
	item.DurationSeconds = 42
	item.Status = domain.StatusPlaying

	if err := repo.UpdateItem(item); err != nil {
		t.Fatalf("UpdateItem: %v", err)
	}

	np, ok, err := repo.GetNowPlaying()
	if err != nil || !ok {
		t.Fatalf("GetNowPlaying: ok=%v err=%v", ok, err)
	}
	if np.Title != "Hello" || np.DurationSeconds != 42 || np.FilePath != item.FilePath {
		t.Fatalf("enriched fields lost: %+v", np)
	}
}

func TestGetQueueLimit(t *testing.T) {
	repo := openTestRepo(t)
	for range 7 {
		submit(t, repo, "https://example.com/x.mp4", "alice")
	}

	queue, err := repo.GetQueue(5)
	if err != nil {
		t.Fatalf("GetQueue: %v", err)
	}
	if len(queue) != 5 {
		t.Fatalf("len = %d, want 5", len(queue))
	}
	for i := 1; i < len(queue); i++ {
		if queue[i-1].Position >= queue[i].Position {
			t.Fatalf("queue not in position order: %+v", queue)
		}
	}
}

func TestPositionOf(t *testing.T) {
	repo := openTestRepo(t)

	submit(t, repo, "https://example.com/a.mp4", "alice")
	b := submit(t, repo, "https://example.com/b.mp4", "bob")
	c := submit(t, repo, "https://example.com/c.mp4", "carol")

	if rank, err := repo.PositionOf(b.ID); err != nil || rank != 2 {
		t.Fatalf("PositionOf(b) = %d, %v; want 2", rank, err)
	}
	if rank, err := repo.PositionOf(c.ID); err != nil || rank != 3 {
		t.Fatalf("PositionOf(c) = %d, %v; want 3", rank, err)
	}
	if _, err := repo.PositionOf("no-such-id"); err == nil {
		t.Fatal("PositionOf unknown id: want error")
	}
}

func TestClearPendingLeavesInFlightRows(t *testing.T) {
	repo := openTestRepo(t)

	playing := submit(t, repo, "https://example.com/a.mp4", "alice")
	if err := repo.UpdateStatus(playing.ID, domain.StatusPlaying, ""); err != nil {
		t.Fatalf("UpdateStatus: %v", err)
	}
	submit(t, repo, "https://example.com/b.mp4", "bob")
	submit(t, repo, "https://example.com/c.mp4", "carol")

	removed, err := repo.ClearPending()
	if err != nil {
		t.Fatalf("ClearPending: %v", err)
	}
	if removed != 2 {
		t.Fatalf("removed = %d, want 2", removed)
	}

	if _, ok, _ := repo.Dequeue(); ok {
		t.Fatal("pending rows survived clear")
	}
	np, ok, err := repo.GetNowPlaying()
	if err != nil || !ok || np.ID != playing.ID {
		t.Fatalf("playing row affected by clear: ok=%v err=%v", ok, err)
	}
}

func TestRemove(t *testing.T) {
	repo := openTestRepo(t)
	item := submit(t, repo, "https://example.com/a.mp4", "alice")

	existed, err := repo.Remove(item.ID)
	if err != nil || !existed {
		t.Fatalf("Remove: existed=%v err=%v", existed, err)
	}
	existed, err = repo.Remove(item.ID)
	if err != nil || existed {
		t.Fatalf("second Remove: existed=%v err=%v", existed, err)
	}
}

func TestRepairInterrupted(t *testing.T) {
	repo := openTestRepo(t)

	downloading := submit(t, repo, "https://example.com/a.mp4", "alice")
	playing := submit(t, repo, "https://example.com/b.mp4", "bob")
	pending := submit(t, repo, "https://example.com/c.mp4", "carol")
	done := submit(t, repo, "https://example.com/d.mp4", "dave")

	if err := repo.UpdateStatus(downloading.ID, domain.StatusDownloading, ""); err != nil {
		t.Fatal(err)
	}
	if err := repo.UpdateStatus(playing.ID, domain.StatusPlaying, ""); err != nil {
		t.Fatal(err)
	}
	if err := repo.UpdateStatus(done.ID, domain.StatusDone, ""); err != nil {
		t.Fatal(err)
	}

	repaired, err := repo.RepairInterrupted()
	if err != nil {
		t.Fatalf("RepairInterrupted: %v", err)
	}
	if repaired != 2 {
		t.Fatalf("repaired = %d, want 2", repaired)
	}

	queue, err := repo.GetQueue(0)
	if err != nil {
		t.Fatalf("GetQueue: %v", err)
	}
	if len(queue) != 1 || queue[0].ID != pending.ID {
		t.Fatalf("pending set after repair: %+v", queue)
	}
	if _, ok, _ := repo.GetNowPlaying(); ok {
		t.Fatal("playing row survived repair")
	}

	for _, id := range []string{downloading.ID, playing.ID} {
		got, err := repo.Get(id)
		if err != nil {
			t.Fatalf("Get(%s): %v", id, err)
		}
		if got.Status != domain.StatusFailed || got.ErrorMessage != domain.ReasonInterrupted {
			t.Fatalf("repaired row = %s %q, want failed %q", got.Status, got.ErrorMessage, domain.ReasonInterrupted)
		}
	}
}

func TestRepairedRowsCarryInterruptedReason(t *testing.T) {
	repo := openTestRepo(t)

	item := submit(t, repo, "https://example.com/a.mp4", "alice")
	if err := repo.UpdateStatus(item.ID, domain.StatusPlaying, ""); err != nil {
		t.Fatal(err)
	}
	if _, err := repo.RepairInterrupted(); err != nil {
		t.Fatal(err)
	}

	// Reopen to confirm the rewrite was durable.
	path := repo.db.Path()
	if err := repo.Close(); err != nil {
		t.Fatal(err)
	}
	reopened, err := Open(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer reopened.Close()

	got, err := reopened.Get(item.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Status != domain.StatusFailed {
		t.Fatalf("status = %s, want failed", got.Status)
	}
	if got.ErrorMessage != domain.ReasonInterrupted {
		t.Fatalf("error message = %q, want %q", got.ErrorMessage, domain.ReasonInterrupted)
	}
}
