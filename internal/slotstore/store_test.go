package slotstore

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/interviewrt/core/internal/clockid"
)

// Shared Postgres for all tests in this package: CI supplies
// CI_DATABASE_URL, local dev starts one testcontainer per package run.
var (
	sharedConnStr string
	containerOnce sync.Once
	containerErr  error
)

func testDatabaseURL(t *testing.T) string {
	t.Helper()
	if ciDatabaseURL := os.Getenv("CI_DATABASE_URL"); ciDatabaseURL != "" {
		return ciDatabaseURL
	}

	containerOnce.Do(func() {
		ctx := context.Background()
		pgContainer, err := postgres.Run(ctx,
			"postgres:17-alpine",
			postgres.WithDatabase("slots_test"),
			postgres.WithUsername("test"),
			postgres.WithPassword("test"),
			testcontainers.WithWaitStrategy(
				wait.ForLog("database system is ready to accept connections").
					WithOccurrence(2).
					WithStartupTimeout(30*time.Second)),
		)
		if err != nil {
			containerErr = fmt.Errorf("start postgres container: %w", err)
			return
		}
		sharedConnStr, containerErr = pgContainer.ConnectionString(ctx, "sslmode=disable")
	})
	if containerErr != nil {
		t.Skipf("postgres unavailable (set CI_DATABASE_URL or run docker): %v", containerErr)
	}
	return sharedConnStr
}

func newTestStore(t *testing.T) *Store {
	t.Helper()
	url := testDatabaseURL(t)
	clock := clockid.NewFakeClock(time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC))
	zone, err := time.LoadLocation("Asia/Kolkata")
	require.NoError(t, err)
	store, err := New(context.Background(), url, clock, zone)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func timeOfDay(t *testing.T, hhmm string) time.Time {
	t.Helper()
	parsed, err := time.Parse("15:04", hhmm)
	require.NoError(t, err)
	return parsed
}

// testSlot builds a slot on a per-test company so tests sharing the
// database never trip each other's overlap checks.
func testSlot(t *testing.T, start, end string, capacity int) Slot {
	return Slot{
		Company:  "co-" + t.Name(),
		Job:      "backend engineer",
		Date:     time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC),
		Start:    timeOfDay(t, start),
		End:      timeOfDay(t, end),
		Capacity: capacity,
		AIType:   "Technical",
	}
}

func TestBookEnforcesCapacity(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	slotID, err := store.CreateSlot(ctx, testSlot(t, "10:00", "10:10", 2))
	require.NoError(t, err)

	iv1, err := store.CreateInterview(ctx, "cand-1", "job-1")
	require.NoError(t, err)
	iv2, err := store.CreateInterview(ctx, "cand-2", "job-1")
	require.NoError(t, err)
	iv3, err := store.CreateInterview(ctx, "cand-3", "job-1")
	require.NoError(t, err)

	_, err = store.Book(ctx, slotID, iv1, "")
	require.NoError(t, err)
	booking2, err := store.Book(ctx, slotID, iv2, "")
	require.NoError(t, err)

	// Third caller hits the capacity compare-and-set.
	_, err = store.Book(ctx, slotID, iv3, "")
	require.ErrorIs(t, err, ErrSlotFull)

	slot := findSlot(t, store, slotID)
	require.Equal(t, 2, slot.BookedCount)
	require.Equal(t, SlotFullStat, slot.Status)

	// Release reopens the slot and the parked caller gets in.
	require.NoError(t, store.Release(ctx, booking2))
	slot = findSlot(t, store, slotID)
	require.Equal(t, 1, slot.BookedCount)
	require.Equal(t, SlotAvailable, slot.Status)

	_, err = store.Book(ctx, slotID, iv3, "")
	require.NoError(t, err)
}

func TestConcurrentBookingOverCapacity(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	const capacity = 2
	const callers = 3
	slotID, err := store.CreateSlot(ctx, testSlot(t, "11:00", "11:10", capacity))
	require.NoError(t, err)

	interviews := make([]string, callers)
	for i := range interviews {
		interviews[i], err = store.CreateInterview(ctx, fmt.Sprintf("cand-%d", i), "job-1")
		require.NoError(t, err)
	}

	errs := make([]error, callers)
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = store.Book(ctx, slotID, interviews[i], "")
		}(i)
	}
	wg.Wait()

	succeeded, full := 0, 0
	for _, err := range errs {
		switch {
		case err == nil:
			succeeded++
		case errors.Is(err, ErrSlotFull):
			full++
		default:
			t.Fatalf("unexpected booking error: %v", err)
		}
	}
	require.Equal(t, capacity, succeeded)
	require.Equal(t, callers-capacity, full)

	slot := findSlot(t, store, slotID)
	require.Equal(t, capacity, slot.BookedCount)
	require.Equal(t, SlotFullStat, slot.Status)
}

func TestReleaseDecrementsExactlyOnce(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	slotID, err := store.CreateSlot(ctx, testSlot(t, "12:00", "12:10", 3))
	require.NoError(t, err)
	iv, err := store.CreateInterview(ctx, "cand-1", "job-1")
	require.NoError(t, err)
	bookingID, err := store.Book(ctx, slotID, iv, "")
	require.NoError(t, err)

	require.NoError(t, store.Release(ctx, bookingID))
	require.NoError(t, store.Release(ctx, bookingID))

	slot := findSlot(t, store, slotID)
	require.Equal(t, 0, slot.BookedCount)
}

func TestCreateSlotOverlapRules(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	_, err := store.CreateSlot(ctx, testSlot(t, "10:00", "10:10", 1))
	require.NoError(t, err)

	// Overlapping window, same company and track.
	_, err = store.CreateSlot(ctx, testSlot(t, "10:05", "10:15", 1))
	require.ErrorIs(t, err, ErrOverlapsExisting)

	// Adjacent half-open windows do not overlap.
	_, err = store.CreateSlot(ctx, testSlot(t, "10:10", "10:20", 1))
	require.NoError(t, err)

	// Same window on a different track is an independent capacity pool.
	behavioral := testSlot(t, "10:00", "10:10", 1)
	behavioral.AIType = "Behavioral"
	_, err = store.CreateSlot(ctx, behavioral)
	require.NoError(t, err)
}

func TestCreateSlotFullSlotDoesNotBlockOverlap(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	slotID, err := store.CreateSlot(ctx, testSlot(t, "14:00", "14:10", 1))
	require.NoError(t, err)
	iv, err := store.CreateInterview(ctx, "cand-1", "job-1")
	require.NoError(t, err)
	_, err = store.Book(ctx, slotID, iv, "")
	require.NoError(t, err)

	// The first slot is Full now, so an overlapping window may be
	// opened to take more candidates.
	_, err = store.CreateSlot(ctx, testSlot(t, "14:05", "14:15", 2))
	require.NoError(t, err)
}

func TestBookSchedulesInterviewWindowInUTC(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	slotID, err := store.CreateSlot(ctx, testSlot(t, "15:00", "15:10", 1))
	require.NoError(t, err)
	iv, err := store.CreateInterview(ctx, "cand-1", "job-1")
	require.NoError(t, err)
	_, err = store.Book(ctx, slotID, iv, "")
	require.NoError(t, err)

	interview, err := store.GetInterview(ctx, iv)
	require.NoError(t, err)
	// 15:00 IST is 09:30 UTC.
	require.Equal(t, time.Date(2026, 3, 2, 9, 30, 0, 0, time.UTC), interview.ScheduledStartUTC.UTC())
	require.Equal(t, time.Date(2026, 3, 2, 9, 40, 0, 0, time.UTC), interview.ScheduledEndUTC.UTC())
}

func TestInterviewTerminalStatus(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	iv, err := store.CreateInterview(ctx, "cand-1", "job-1")
	require.NoError(t, err)
	require.NoError(t, store.AttachSession(ctx, iv, "sess-1"))

	require.NoError(t, store.CompleteInterview(ctx, iv))
	interview, err := store.GetInterview(ctx, iv)
	require.NoError(t, err)
	require.Equal(t, "Completed", interview.Status)

	// Terminal transitions are once-only: a later abandon attempt
	// (e.g. the janitor racing finalize) does not overwrite.
	require.NoError(t, store.AbandonInterview(ctx, iv))
	interview, err = store.GetInterview(ctx, iv)
	require.NoError(t, err)
	require.Equal(t, "Completed", interview.Status)

	require.ErrorIs(t, store.CompleteInterview(ctx, "no-such-interview"), ErrInterviewNotFound)
}

func findSlot(t *testing.T, store *Store, slotID string) Slot {
	t.Helper()
	from := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	to := time.Date(2026, 3, 3, 0, 0, 0, 0, time.UTC)
	slots, err := store.SearchAvailable(context.Background(), "co-"+t.Name(), "Technical", from, to)
	require.NoError(t, err)
	for _, s := range slots {
		if s.ID == slotID {
			return s
		}
	}
	t.Fatalf("slot %s not found", slotID)
	return Slot{}
}