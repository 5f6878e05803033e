package store

import (
	"errors"
	"sync"
	"testing"

	"github.com/oopstls/clippy-server/internal/models"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	return New(t.TempDir())
}

func intPtr(v int) *int { return &v }

func TestAppend_AssignsIncreasingIDs(t *testing.T) {
	s := newTestStore(t)

	var lastID int64
	for i := 0; i < 5; i++ {
		msg, err := s.Append("r1", "alice", models.TypeText, "hello", nil)
		if err != nil {
			t.Fatalf("Append() error = %v", err)
		}
		if msg.ID <= lastID {
			t.Errorf("Append() id = %d, want > %d", msg.ID, lastID)
		}
		lastID = msg.ID
	}
}

func TestAppend_TimestampsFollowIDOrder(t *testing.T) {
	s := newTestStore(t)

	for i := 0; i < 10; i++ {
		if _, err := s.Append("r1", "alice", models.TypeText, "x", nil); err != nil {
			t.Fatalf("Append() error = %v", err)
		}
	}
	msgs, err := s.FetchFrom("r1", 1)
	if err != nil {
		t.Fatalf("FetchFrom() error = %v", err)
	}
	for i := 1; i < len(msgs); i++ {
		if msgs[i].ID <= msgs[i-1].ID {
			t.Errorf("ids not ascending: %d after %d", msgs[i].ID, msgs[i-1].ID)
		}
		if msgs[i].Timestamp.Before(msgs[i-1].Timestamp) {
			t.Errorf("timestamp decreased between id %d and %d", msgs[i-1].ID, msgs[i].ID)
		}
	}
}

func TestAppend_ImageForcesNilClipReg(t *testing.T) {
	s := newTestStore(t)

	msg, err := s.Append("r1", "alice", models.TypeImage, "aGVsbG8=", intPtr(3))
	if err != nil {
		t.Fatalf("Append() error = %v", err)
	}
	if msg.ClipReg != nil {
		t.Errorf("image message ClipReg = %v, want nil", *msg.ClipReg)
	}

	got, err := s.FetchOne("r1", msg.ID)
	if err != nil {
		t.Fatalf("FetchOne() error = %v", err)
	}
	if got.ClipReg != nil {
		t.Errorf("persisted image ClipReg = %v, want nil", *got.ClipReg)
	}
}

func TestAppend_ClipRegValidation(t *testing.T) {
	tests := []struct {
		name    string
		clipReg *int
		wantErr bool
	}{
		{name: "absent", clipReg: nil, wantErr: false},
		{name: "min", clipReg: intPtr(0), wantErr: false},
		{name: "max", clipReg: intPtr(5), wantErr: false},
		{name: "too large", clipReg: intPtr(7), wantErr: true},
		{name: "negative", clipReg: intPtr(-1), wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestStore(t)
			_, err := s.Append("r1", "alice", models.TypeText, "hi", tt.clipReg)
			if (err != nil) != tt.wantErr {
				t.Fatalf("Append() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr {
				if !errors.Is(err, ErrValidation) {
					t.Errorf("Append() error = %v, want ErrValidation", err)
				}
				// no row must have been written
				msgs, ferr := s.FetchFrom("r1", 1)
				if ferr != nil {
					t.Fatalf("FetchFrom() error = %v", ferr)
				}
				if len(msgs) != 0 {
					t.Errorf("rejected append wrote %d rows, want 0", len(msgs))
				}
			}
		})
	}
}

func TestAppend_UnknownTypeRejected(t *testing.T) {
	s := newTestStore(t)

	_, err := s.Append("r1", "alice", "video", "x", nil)
	if !errors.Is(err, ErrValidation) {
		t.Errorf("Append() error = %v, want ErrValidation", err)
	}
}

func TestOpen_BadRoomKey(t *testing.T) {
	s := newTestStore(t)

	for _, room := range []string{"", "..", "a/b", "a\\b", "r m"} {
		if _, err := s.Open(room); !errors.Is(err, ErrStorage) {
			t.Errorf("Open(%q) error = %v, want ErrStorage", room, err)
		}
	}
}

func TestFetchFrom_RangeAndIdempotency(t *testing.T) {
	s := newTestStore(t)

	for i := 0; i < 5; i++ {
		if _, err := s.Append("r1", "alice", models.TypeText, "m", nil); err != nil {
			t.Fatalf("Append() error = %v", err)
		}
	}

	first, err := s.FetchFrom("r1", 3)
	if err != nil {
		t.Fatalf("FetchFrom() error = %v", err)
	}
	if len(first) != 3 {
		t.Fatalf("FetchFrom(3) returned %d messages, want 3", len(first))
	}
	if first[0].ID != 3 {
		t.Errorf("FetchFrom(3) first id = %d, want 3", first[0].ID)
	}

	second, err := s.FetchFrom("r1", 3)
	if err != nil {
		t.Fatalf("FetchFrom() error = %v", err)
	}
	if len(second) != len(first) {
		t.Fatalf("repeated FetchFrom returned %d messages, want %d", len(second), len(first))
	}
	for i := range first {
		if first[i].ID != second[i].ID || !first[i].Timestamp.Equal(second[i].Timestamp) {
			t.Errorf("repeated FetchFrom diverged at index %d", i)
		}
	}
}

func TestFetchOne_NotFound(t *testing.T) {
	s := newTestStore(t)

	if _, err := s.Append("r1", "alice", models.TypeText, "m", nil); err != nil {
		t.Fatalf("Append() error = %v", err)
	}
	if _, err := s.FetchOne("r1", 99); !errors.Is(err, ErrNotFound) {
		t.Errorf("FetchOne(99) error = %v, want ErrNotFound", err)
	}
}

func TestRelease_DataSurvivesReopen(t *testing.T) {
	s := newTestStore(t)

	want, err := s.Append("r1", "alice", models.TypeText, "keep me", intPtr(2))
	if err != nil {
		t.Fatalf("Append() error = %v", err)
	}

	s.Release("r1")
	if rooms := s.Rooms(); len(rooms) != 0 {
		t.Fatalf("Rooms() after Release = %v, want empty", rooms)
	}

	msgs, err := s.FetchFrom("r1", 1)
	if err != nil {
		t.Fatalf("FetchFrom() after reopen error = %v", err)
	}
	if len(msgs) != 1 {
		t.Fatalf("FetchFrom() after reopen returned %d messages, want 1", len(msgs))
	}
	got := msgs[0]
	if got.ID != want.ID || got.Content != "keep me" || got.UserID != "alice" {
		t.Errorf("reopened message = %+v, want %+v", got, want)
	}
	if got.ClipReg == nil || *got.ClipReg != 2 {
		t.Errorf("reopened ClipReg = %v, want 2", got.ClipReg)
	}
}

func TestAppend_ConcurrentSendersUniqueIDs(t *testing.T) {
	s := newTestStore(t)

	const senders = 8
	const perSender = 10

	var wg sync.WaitGroup
	for i := 0; i < senders; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < perSender; j++ {
				if _, err := s.Append("r1", "u", models.TypeText, "m", nil); err != nil {
					t.Errorf("Append() error = %v", err)
					return
				}
			}
		}()
	}
	wg.Wait()

	msgs, err := s.FetchFrom("r1", 1)
	if err != nil {
		t.Fatalf("FetchFrom() error = %v", err)
	}
	if len(msgs) != senders*perSender {
		t.Fatalf("got %d messages, want %d", len(msgs), senders*perSender)
	}
	seen := make(map[int64]struct{}, len(msgs))
	for _, m := range msgs {
		if _, dup := seen[m.ID]; dup {
			t.Errorf("duplicate id %d", m.ID)
		}
		seen[m.ID] = struct{}{}
	}
}

func TestRooms_IndependentPerRoomSequences(t *testing.T) {
	s := newTestStore(t)

	a, err := s.Append("r1", "alice", models.TypeText, "m", nil)
	if err != nil {
		t.Fatalf("Append() error = %v", err)
	}
	b, err := s.Append("r2", "bob", models.TypeText, "m", nil)
	if err != nil {
		t.Fatalf("Append() error = %v", err)
	}
	if a.ID != 1 || b.ID != 1 {
		t.Errorf("per-room sequences not independent: r1=%d r2=%d, want 1 and 1", a.ID, b.ID)
	}

	rooms := s.Rooms()
	if len(rooms) != 2 || rooms[0] != "r1" || rooms[1] != "r2" {
		t.Errorf("Rooms() = %v, want [r1 r2]", rooms)
	}
}
