package checkpoint

import (
	"fmt"

	"github.com/raydb/raydb/internal/delta"
	"github.com/raydb/raydb/internal/pager"
	"github.com/raydb/raydb/internal/snapshot"
	"github.com/raydb/raydb/internal/txn"
)

// RunBlocking implements spec.md §4.7's blocking checkpoint: fold whatever
// is currently committed into a fresh snapshot generation and install it,
// synchronously and under the transaction manager's single-writer lock for
// the whole operation. txMgr.RunBlockingCheckpoint rejects outright (without
// calling the closure below) if the database is read-only or a transaction
// is mid-flight.
func RunBlocking(pgr *pager.Pager, txMgr *txn.Manager, includeInEdges bool, nowUnixNs int64) error {
	return txMgr.RunBlockingCheckpoint(func(committed *delta.Delta, snapStart, snapCount, activeGen uint64) (uint64, uint64, uint64, error) {
		snap, err := parseCurrentSnapshot(pgr, snapStart, snapCount)
		if err != nil {
			return 0, 0, 0, err
		}

		in := CollectGraphData(snap, committed, includeInEdges)
		in.Generation = activeGen + 1
		in.CreatedUnixNs = uint64(nowUnixNs)

		buf, err := snapshot.Build(in)
		if err != nil {
			return 0, 0, 0, fmt.Errorf("checkpoint: build snapshot: %w", err)
		}

		newStart, numPages, err := writeSnapshot(pgr, buf)
		if err != nil {
			return 0, 0, 0, err
		}
		return newStart, numPages, in.Generation, nil
	})
}

// parseCurrentSnapshot mmaps and parses the active snapshot, or returns nil
// when the database has never had one checkpointed yet (snapCount == 0).
func parseCurrentSnapshot(pgr *pager.Pager, snapStart, snapCount uint64) (*snapshot.Snapshot, error) {
	if snapCount == 0 {
		return nil, nil
	}
	// pgr owns this mapping's lifetime (cached, invalidated on the next
	// write/allocate over these pages); Parse keeps region.Bytes() without
	// copying, so this must not Close it.
	region, err := pgr.MMapRange(snapStart, snapCount)
	if err != nil {
		return nil, fmt.Errorf("checkpoint: mmap current snapshot: %w", err)
	}
	snap, err := snapshot.Parse(region.Bytes(), false)
	if err != nil {
		return nil, fmt.Errorf("checkpoint: parse current snapshot: %w", err)
	}
	return snap, nil
}

// writeSnapshot allocates enough pages for buf (zero-padding the final
// page), writes and fsyncs it, and returns (firstPage, pageCount).
func writeSnapshot(pgr *pager.Pager, buf []byte) (firstPage, pageCount uint64, err error) {
	pageSize := uint64(pgr.PageSize())
	pageCount = (uint64(len(buf)) + pageSize - 1) / pageSize
	if pageCount == 0 {
		pageCount = 1
	}
	firstPage, err = pgr.AllocatePages(pageCount)
	if err != nil {
		return 0, 0, fmt.Errorf("checkpoint: allocate snapshot pages: %w", err)
	}

	for i := uint64(0); i < pageCount; i++ {
		page := make([]byte, pageSize)
		start := i * pageSize
		end := start + pageSize
		if end > uint64(len(buf)) {
			end = uint64(len(buf))
		}
		copy(page, buf[start:end])
		if err := pgr.WritePage(firstPage+i, page); err != nil {
			return 0, 0, fmt.Errorf("checkpoint: write snapshot page %d: %w", firstPage+i, err)
		}
	}
	if err := pgr.Sync(); err != nil {
		return 0, 0, fmt.Errorf("checkpoint: sync snapshot: %w", err)
	}
	return firstPage, pageCount, nil
}
