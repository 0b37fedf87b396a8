// Package status holds the shared run status for avatar-walrus.
//
// One Store exists per process. The coordinator is the only full writer;
// the artifact watcher receives a WatcherView restricted to the fields it
// owns. Readers always get value copies, never live references.
package status

import "sync"

// RunStatus is the observable state of the current (or last) benchmark run.
type RunStatus struct {
	RunID            string
	Running          bool
	Completed        bool
	Error            string
	ArtifactRef      string
	BenchmarkStarted bool
	WatcherStarted   bool
}

// Payload is the wire shape returned by GET /api/status.
type Payload struct {
	RunID            string  `json:"run_id"`
	Running          bool    `json:"running"`
	Completed        bool    `json:"completed"`
	Error            *string `json:"error"`
	ArtifactRef      *string `json:"artifact_ref"`
	BenchmarkStarted bool    `json:"benchmark_started"`
	WatcherStarted   bool    `json:"watcher_started"`
}

// Payload converts the status to its JSON wire shape. Empty strings map to
// JSON null per the polling contract.
func (s RunStatus) Payload() Payload {
	p := Payload{
		RunID:            s.RunID,
		Running:          s.Running,
		Completed:        s.Completed,
		BenchmarkStarted: s.BenchmarkStarted,
		WatcherStarted:   s.WatcherStarted,
	}
	if s.Error != "" {
		e := s.Error
		p.Error = &e
	}
	if s.ArtifactRef != "" {
		r := s.ArtifactRef
		p.ArtifactRef = &r
	}
	return p
}

// Store is a mutex-guarded holder for RunStatus.
type Store struct {
	mu     sync.Mutex
	status RunStatus
}

// NewStore creates a Store holding the all-default idle status.
func NewStore() *Store {
	return &Store{}
}

// Snapshot returns a point-in-time copy of the current status.
func (s *Store) Snapshot() RunStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// Update applies a single atomic mutation to the status.
// The mutator must not block or call back into the store.
func (s *Store) Update(fn func(*RunStatus)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fn(&s.status)
}

// Reset restores the all-default idle status.
func (s *Store) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.status = RunStatus{}
}

// WatcherView returns the restricted write capability handed to the
// artifact watcher. The watcher may only publish artifact refs and mark
// itself started; everything else stays coordinator-owned.
func (s *Store) WatcherView() *WatcherView {
	return &WatcherView{store: s}
}

// WatcherView is the watcher's write capability on the Store.
type WatcherView struct {
	store *Store
}

// PublishArtifact records a new versioned artifact reference.
func (v *WatcherView) PublishArtifact(ref string) {
	v.store.Update(func(st *RunStatus) {
		st.ArtifactRef = ref
	})
}

// MarkStarted records that the watcher loop is running.
func (v *WatcherView) MarkStarted() {
	v.store.Update(func(st *RunStatus) {
		st.WatcherStarted = true
	})
}

// Snapshot mirrors Store.Snapshot for the watcher's read path.
func (v *WatcherView) Snapshot() RunStatus {
	return v.store.Snapshot()
}
