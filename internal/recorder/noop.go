package recorder

// NoopRecorder is a no-op implementation used when SQLite is not configured.
type NoopRecorder struct{}

func NewNoopRecorder() *NoopRecorder { return &NoopRecorder{} }

func (n *NoopRecorder) RecordTick(_ *TickEvent) error                { return nil }
func (n *NoopRecorder) RecordLoad(_ *LoadEvent) error                { return nil }
func (n *NoopRecorder) RecordRestart(_ *RestartEvent) error          { return nil }
func (n *NoopRecorder) RecentRestarts(_ int) ([]RestartEvent, error) { return nil, nil }
func (n *NoopRecorder) Close() error                                 { return nil }
