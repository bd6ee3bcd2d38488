package domain

import "fmt"

// SyncSummary counts what a discussion sync run did.
type SyncSummary struct {
	Created  int
	Existing int
	Reopened int
	Removed  int
	Pruned   int
	Total    int
	Written  bool
}

func (s SyncSummary) String() string {
	return fmt.Sprintf("Done. created=%d skipped=%d reopened=%d removed=%d pruned=%d total=%d index_written=%t",
		s.Created, s.Existing, s.Reopened, s.Removed, s.Pruned, s.Total, s.Written)
}

// SweepSummary counts what a stale pull request sweep did.
type SweepSummary struct {
	Scanned      int
	Closed       int
	StoppedEarly bool
}

func (s SweepSummary) String() string {
	return fmt.Sprintf("Done. Scanned=%d closed=%d", s.Scanned, s.Closed)
}

