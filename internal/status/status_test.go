package status

import (
	"encoding/json"
	"sync"
	"testing"
)

// =============================================================================
// Store semantics
// =============================================================================

func TestNewStoreIsIdle(t *testing.T) {
	s := NewStore()
	st := s.Snapshot()

	if st.Running || st.Completed || st.BenchmarkStarted || st.WatcherStarted {
		t.Errorf("new store should have all flags false, got %+v", st)
	}
	if st.RunID != "" || st.Error != "" || st.ArtifactRef != "" {
		t.Errorf("new store should have empty strings, got %+v", st)
	}
}

func TestUpdateIsVisibleToSnapshot(t *testing.T) {
	s := NewStore()
	s.Update(func(st *RunStatus) {
		st.RunID = "run-1"
		st.Running = true
		st.BenchmarkStarted = true
	})

	st := s.Snapshot()
	if st.RunID != "run-1" || !st.Running || !st.BenchmarkStarted {
		t.Errorf("update not reflected in snapshot: %+v", st)
	}
}

func TestSnapshotIsACopy(t *testing.T) {
	s := NewStore()
	s.Update(func(st *RunStatus) { st.RunID = "run-1" })

	st := s.Snapshot()
	st.RunID = "mutated"

	if got := s.Snapshot().RunID; got != "run-1" {
		t.Errorf("mutating a snapshot leaked into the store: %q", got)
	}
}

func TestResetRestoresIdle(t *testing.T) {
	s := NewStore()
	s.Update(func(st *RunStatus) {
		st.RunID = "run-1"
		st.Running = true
		st.Completed = true
		st.Error = "boom"
		st.ArtifactRef = "/static/x.png?t=1"
		st.BenchmarkStarted = true
		st.WatcherStarted = true
	})
	s.Reset()

	if st := s.Snapshot(); st != (RunStatus{}) {
		t.Errorf("reset should zero every field, got %+v", st)
	}
}

func TestConcurrentUpdatesAndSnapshots(t *testing.T) {
	s := NewStore()
	var wg sync.WaitGroup

	for i := 0; i < 8; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				s.Update(func(st *RunStatus) { st.Running = !st.Running })
			}
		}()
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				_ = s.Snapshot()
			}
		}()
	}
	wg.Wait()
}

// =============================================================================
// Watcher view
// =============================================================================

func TestWatcherViewPublishArtifact(t *testing.T) {
	s := NewStore()
	s.Update(func(st *RunStatus) {
		st.RunID = "run-1"
		st.Running = true
	})

	v := s.WatcherView()
	v.MarkStarted()
	v.PublishArtifact("/static/chart.png?t=42")

	st := s.Snapshot()
	if !st.WatcherStarted {
		t.Error("MarkStarted should set WatcherStarted")
	}
	if st.ArtifactRef != "/static/chart.png?t=42" {
		t.Errorf("ArtifactRef = %q", st.ArtifactRef)
	}
	// The view must not disturb coordinator-owned fields
	if st.RunID != "run-1" || !st.Running {
		t.Errorf("watcher view touched coordinator fields: %+v", st)
	}
}

// =============================================================================
// Wire payload
// =============================================================================

func TestPayloadNullMapping(t *testing.T) {
	tests := []struct {
		name    string
		status  RunStatus
		wantErr any // nil or string
		wantRef any
	}{
		{
			name:    "idle",
			status:  RunStatus{},
			wantErr: nil,
			wantRef: nil,
		},
		{
			name:    "failed with error",
			status:  RunStatus{Error: "exit status 1"},
			wantErr: "exit status 1",
			wantRef: nil,
		},
		{
			name:    "completed with artifact",
			status:  RunStatus{Completed: true, ArtifactRef: "/static/chart.png?t=7"},
			wantErr: nil,
			wantRef: "/static/chart.png?t=7",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data, err := json.Marshal(tt.status.Payload())
			if err != nil {
				t.Fatalf("marshal: %v", err)
			}

			var decoded map[string]any
			if err := json.Unmarshal(data, &decoded); err != nil {
				t.Fatalf("unmarshal: %v", err)
			}

			for _, key := range []string{"run_id", "running", "completed", "error", "artifact_ref", "benchmark_started", "watcher_started"} {
				if _, ok := decoded[key]; !ok {
					t.Errorf("payload missing field %q", key)
				}
			}
			if got := decoded["error"]; got != tt.wantErr {
				t.Errorf("error = %v, want %v", got, tt.wantErr)
			}
			if got := decoded["artifact_ref"]; got != tt.wantRef {
				t.Errorf("artifact_ref = %v, want %v", got, tt.wantRef)
			}
		})
	}
}
