package history

// enforceQuotaLocked implements the quota controller (C4). Called with
// idx.mu held for write, immediately after an Append. While either quota is
// exceeded it drops the oldest entry (position 0, since entries are
// globally ordered by insertion), unless doing so would strip the only
// remaining entry of a live file — in which case trimming stops and the
// pressure hook (if any) is invoked (§7 QuotaExhausted: logged, not
// returned to the caller).
//
// A MaxHistory or MaxQuota of zero or less disables that half of the dual
// quota.
func (idx *Index) enforceQuotaLocked() {
	for len(idx.entries) > 0 {
		exceedsCount := idx.limits.MaxHistory > 0 && len(idx.entries) > idx.limits.MaxHistory
		exceedsQuota := idx.limits.MaxQuota > 0 && idx.liveQuotaLocked() > idx.limits.MaxQuota
		if !exceedsCount && !exceedsQuota {
			return
		}

		oldest := idx.entries[0]
		positions := idx.lastByFile[oldest.File]
		soleEntryForFile := len(positions) == 1

		if oldest.Live() && soleEntryForFile {
			if idx.onQuotaPressure != nil {
				idx.onQuotaPressure(oldest.File)
			}
			return
		}

		idx.dropOldestLocked()
	}
}

// dropOldestLocked removes entries[0], rebuilds the derived lookup, and
// queues the dropped checksum for blob deletion if nothing else in the
// index still references it.
func (idx *Index) dropOldestLocked() {
	dropped := idx.entries[0]
	idx.entries = idx.entries[1:]
	idx.rebuildLookup()

	if dropped.Checksum == "" || idx.store == nil {
		return
	}
	if !idx.checksumReferencedLocked(dropped.Checksum) {
		_ = idx.store.Remove(dropped.Checksum)
	}
}

func (idx *Index) checksumReferencedLocked(checksum string) bool {
	for _, e := range idx.entries {
		if e.Checksum == checksum {
			return true
		}
	}
	return false
}

// Clean runs a full orphaned-blob sweep of the snapshot store: any blob not
// referenced by any entry currently in the index is removed. It is the
// supplementary `clean` operation backing the CLI `clean` subcommand and
// POST /api/clean.
type CleanResult struct {
	EntriesTrimmed int
	BytesFreedTrim int64
	FilesRemoved   int
	BytesRemoved   int64
}

// Clean re-runs quota enforcement (covering configuration changes made
// since the last append) and then sweeps orphaned blobs.
func (idx *Index) Clean() (CleanResult, error) {
	idx.mu.Lock()
	before := len(idx.entries)
	beforeQuota := idx.liveQuotaLocked()
	idx.enforceQuotaLocked()
	after := len(idx.entries)
	afterQuota := idx.liveQuotaLocked()
	referenced := make(map[string]struct{}, len(idx.entries))
	for _, e := range idx.entries {
		if e.Checksum != "" {
			referenced[e.Checksum] = struct{}{}
		}
	}
	if err := idx.save(); err != nil {
		idx.mu.Unlock()
		return CleanResult{}, err
	}
	idx.mu.Unlock()

	result := CleanResult{
		EntriesTrimmed: before - after,
		BytesFreedTrim: beforeQuota - afterQuota,
	}

	if idx.store == nil {
		return result, nil
	}
	all, err := idx.store.List()
	if err != nil {
		return result, err
	}
	for checksum := range all {
		if _, ok := referenced[checksum]; ok {
			continue
		}
		data, err := idx.store.Get(checksum)
		size := int64(0)
		if err == nil {
			size = int64(len(data))
		}
		if err := idx.store.Remove(checksum); err == nil {
			result.FilesRemoved++
			result.BytesRemoved += size
		}
	}
	return result, nil
}
