package pipeline

import "sync/atomic"

// Stats aggregates counters across concurrent file workers.
type Stats struct {
	FilesProcessed atomic.Int64
	FilesSkipped   atomic.Int64
	FilesFailed    atomic.Int64
	RecordsParsed  atomic.Int64
	BadKeysFound   atomic.Int64
}

// Snapshot is a point-in-time copy of the counters, safe to log or compare.
type Snapshot struct {
	FilesProcessed int64
	FilesSkipped   int64
	FilesFailed    int64
	RecordsParsed  int64
	BadKeysFound   int64
}

func (s *Stats) Snapshot() Snapshot {
	return Snapshot{
		FilesProcessed: s.FilesProcessed.Load(),
		FilesSkipped:   s.FilesSkipped.Load(),
		FilesFailed:    s.FilesFailed.Load(),
		RecordsParsed:  s.RecordsParsed.Load(),
		BadKeysFound:   s.BadKeysFound.Load(),
	}
}
