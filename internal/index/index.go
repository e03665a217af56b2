// Package index implements the cache's index log (spec.md §4.3): an
// append-only, hash-sharded, self-checksummed log of key→integrity mappings
// with last-write-wins semantics.
//
// Grounded on original_source/src/index.rs (cacache-rs): the record format
// ("\n" + sha256_hex(payload) + "\t" + payload), the SHA-1 bucket sharding,
// and the fold-to-last-entry resolution are carried over unchanged; this
// package generalizes the Rust "ssri::Integrity" field to our own
// internal/integrity.Integrity and adds the raw_metadata field and the
// scan/purge operations the distilled spec adds back in (SPEC_FULL.md).
package index

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/zynqcloud/go-storage/internal/cacheerr"
	"github.com/zynqcloud/go-storage/internal/integrity"
	"github.com/zynqcloud/go-storage/internal/pathlayout"
)

// Entry is the logical index entry (spec.md §3). A zero-value Integrity
// denotes a tombstone.
type Entry struct {
	Key         string
	Integrity   integrity.Integrity
	Time        uint64 // unix-epoch milliseconds
	Size        uint64
	Metadata    json.RawMessage // arbitrary JSON value; nil means JSON null
	RawMetadata []byte          // optional opaque byte string; nil means absent
}

// IsTombstone reports whether e logically deletes its key.
func (e Entry) IsTombstone() bool { return e.Integrity.IsZero() }

// record is the on-disk JSON payload shape. Field order here fixes the
// serialized key order for newly-written records, matching spec.md §6's
// recommended stable order: key, integrity, time, size, metadata,
// raw_metadata.
type record struct {
	Key         string          `json:"key"`
	Integrity   *string         `json:"integrity"`
	Time        uint64          `json:"time"`
	Size        uint64          `json:"size"`
	Metadata    json.RawMessage `json:"metadata"`
	RawMetadata []byte          `json:"raw_metadata"`
}

func entryToRecord(e Entry) record {
	r := record{
		Key:      e.Key,
		Time:     e.Time,
		Size:     e.Size,
		Metadata: e.Metadata,
	}
	if r.Metadata == nil {
		r.Metadata = json.RawMessage("null")
	}
	if !e.Integrity.IsZero() {
		s := e.Integrity.String()
		r.Integrity = &s
	}
	if e.RawMetadata != nil {
		r.RawMetadata = e.RawMetadata
	}
	return r
}

func recordToEntry(r record) (Entry, error) {
	e := Entry{
		Key:         r.Key,
		Time:        r.Time,
		Size:        r.Size,
		Metadata:    r.Metadata,
		RawMetadata: r.RawMetadata,
	}
	if r.Integrity != nil {
		sri, err := integrity.Parse(*r.Integrity)
		if err != nil {
			return Entry{}, err
		}
		e.Integrity = sri
	}
	return e, nil
}

// checksumHex returns the lowercase hex SHA-256 of payload, used as the
// record's self-check prefix (spec.md §4.3, "record-integrity invariant").
func checksumHex(payload []byte) string {
	sum := sha256.Sum256(payload)
	return hex.EncodeToString(sum[:])
}

// Append constructs the payload JSON for e, prepends its checksum prefix,
// and appends the record to e.Key's bucket file, creating it (and parent
// directories) if needed.
//
// Concurrent appenders rely on O_APPEND write atomicity for records under
// PIPE_BUF (spec.md §4.3); AppendLocked (append_locked.go) offers the
// advisory-lock fallback for filesystems that cannot guarantee this.
func Append(root string, e Entry) error {
	bucket := pathlayout.BucketPath(root, e.Key)
	if err := os.MkdirAll(filepath.Dir(bucket), 0o750); err != nil {
		return cacheerr.WrapPath("mkdir", filepath.Dir(bucket), err)
	}

	payload, err := json.Marshal(entryToRecord(e))
	if err != nil {
		return fmt.Errorf("index: marshal entry for key %q: %w", e.Key, err)
	}

	line := "\n" + checksumHex(payload) + "\t" + string(payload)

	f, err := os.OpenFile(bucket, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o640)
	if err != nil {
		return cacheerr.WrapPath("open", bucket, err)
	}
	defer f.Close()

	if _, err := f.WriteString(line); err != nil {
		return cacheerr.WrapPath("append", bucket, err)
	}
	return nil
}

// Tombstone appends a record with Integrity absent for key, logically
// deleting it (spec.md §4.3).
func Tombstone(root, key string) error {
	return Append(root, Entry{Key: key})
}

// parseBucket reads bucket and returns every record whose checksum prefix
// and JSON both validate, discarding the rest silently (spec.md §4.3,
// "index self-healing against partial-write tails"). A missing bucket file
// yields an empty slice, not an error.
func parseBucket(bucket string) ([]Entry, error) {
	data, err := os.ReadFile(bucket)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, cacheerr.WrapPath("read", bucket, err)
	}

	// The leading '\n' convention means an empty bucket is a zero-byte file,
	// not a single newline: splitting on '\n' and skipping empty lines
	// handles both.
	lines := bytes.Split(data, []byte("\n"))
	entries := make([]Entry, 0, len(lines))
	for _, line := range lines {
		if len(line) == 0 {
			continue
		}
		tab := bytes.IndexByte(line, '\t')
		if tab < 0 {
			continue // malformed record: no checksum/payload separator
		}
		prefix, payload := string(line[:tab]), line[tab+1:]
		if checksumHex(payload) != prefix {
			continue // checksum mismatch: corruption or a torn write
		}
		var r record
		if err := json.Unmarshal(payload, &r); err != nil {
			continue // malformed JSON
		}
		e, err := recordToEntry(r)
		if err != nil {
			continue // malformed integrity token
		}
		entries = append(entries, e)
	}
	return entries, nil
}

// Find resolves key to its effective entry: the last valid record in its
// bucket. Returns (Entry{}, false, nil) if the key has no live entry
// (either never written or tombstoned).
func Find(root, key string) (Entry, bool, error) {
	bucket := pathlayout.BucketPath(root, key)
	entries, err := parseBucket(bucket)
	if err != nil {
		return Entry{}, false, err
	}

	var last *Entry
	for i := range entries {
		if entries[i].Key == key {
			e := entries[i]
			last = &e
		}
	}
	if last == nil || last.IsTombstone() {
		return Entry{}, false, nil
	}
	return *last, true, nil
}

// Purge removes key's bucket file entirely and the content blob its
// (possibly stale) effective entry references. Used only when a caller
// explicitly requests "remove fully" semantics (spec.md §4.3) — it discards
// every other key that happens to share the bucket shard along with it,
// so callers must accept that cost or use Tombstone instead.
func Purge(root, key string, removeBlob func(sri integrity.Integrity) error) error {
	entry, ok, err := Find(root, key)
	if err != nil {
		return err
	}
	bucket := pathlayout.BucketPath(root, key)
	if err := os.Remove(bucket); err != nil && !os.IsNotExist(err) {
		return cacheerr.WrapPath("remove", bucket, err)
	}
	if ok && removeBlob != nil {
		return removeBlob(entry.Integrity)
	}
	return nil
}

// Scan walks every bucket file under root/index-v5/, deduplicates by key
// keeping each key's last surviving record, skips tombstones, and returns
// the remaining live entries. Per-bucket walk errors are non-fatal: they
// are simply skipped, mirroring spec.md §4.3's "Walk errors on individual
// buckets surface as iterator items, not as a global failure" (this
// synchronous implementation folds that into "skip and continue").
func Scan(root string) ([]Entry, error) {
	indexRoot := filepath.Join(root, pathlayout.IndexVersion)

	byKey := make(map[string]Entry)
	var order []string // every key seen; sorted below for deterministic output

	walkErr := filepath.Walk(indexRoot, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return nil //nolint:nilerr // per-bucket walk errors are skipped, not fatal
		}
		if info.IsDir() {
			return nil
		}
		entries, perr := parseBucket(path)
		if perr != nil {
			return nil //nolint:nilerr
		}
		last := make(map[string]Entry, len(entries))
		for _, e := range entries {
			last[e.Key] = e
		}
		for k, e := range last {
			if _, seen := byKey[k]; !seen {
				order = append(order, k)
			}
			byKey[k] = e
		}
		return nil
	})
	if walkErr != nil && !os.IsNotExist(walkErr) {
		return nil, cacheerr.WrapPath("walk", indexRoot, walkErr)
	}

	sort.Strings(order)
	result := make([]Entry, 0, len(order))
	for _, k := range order {
		e := byKey[k]
		if e.IsTombstone() {
			continue
		}
		result = append(result, e)
	}
	return result, nil
}
