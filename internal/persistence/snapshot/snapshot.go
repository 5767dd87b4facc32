package snapshot

import (
	"bufio"
	"context"
	"encoding/gob"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/klauspost/compress/zstd"

	"genoa.ai/internal/persistence/store"
)

const Version = 1

type Header struct {
	Version   int    `json:"version"`
	TakenAt   int64  `json:"taken_at"` // unix ms
	Documents int    `json:"documents"`
	Catalogs  string `json:"catalogs_digest,omitempty"`
}

type SnapshotV1 struct {
	Header    Header
	Documents []store.Document
}

// WriteSnapshot writes a JSON header line followed by the gob-encoded snapshot, all zstd
// compressed. The file is written next to path and renamed into place.
func WriteSnapshot(path string, snap SnapshotV1) (err error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	tmp := path + ".tmp"
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = f.Close()
			_ = os.Remove(tmp)
		}
	}()

	enc, err := zstd.NewWriter(f, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return err
	}
	bw := bufio.NewWriterSize(enc, 256*1024)

	hb, _ := json.Marshal(snap.Header)
	if _, err := bw.Write(hb); err != nil {
		return err
	}
	if err := bw.WriteByte('\n'); err != nil {
		return err
	}
	if err := gob.NewEncoder(bw).Encode(&snap); err != nil {
		return fmt.Errorf("gob encode: %w", err)
	}
	if err := bw.Flush(); err != nil {
		return err
	}
	if err := enc.Close(); err != nil {
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

// ReadHeader reads only the header line.
func ReadHeader(path string) (Header, error) {
	var h Header
	f, err := os.Open(path)
	if err != nil {
		return h, err
	}
	defer f.Close()

	dec, err := zstd.NewReader(f)
	if err != nil {
		return h, err
	}
	defer dec.Close()

	line, err := bufio.NewReader(dec).ReadBytes('\n')
	if err != nil {
		return h, fmt.Errorf("snapshot header: %w", err)
	}
	if err := json.Unmarshal(line, &h); err != nil {
		return h, fmt.Errorf("snapshot header: %w", err)
	}
	return h, nil
}

func ReadSnapshot(path string) (SnapshotV1, error) {
	var snap SnapshotV1
	f, err := os.Open(path)
	if err != nil {
		return snap, err
	}
	defer f.Close()

	dec, err := zstd.NewReader(f)
	if err != nil {
		return snap, err
	}
	defer dec.Close()

	br := bufio.NewReaderSize(dec, 256*1024)

	// The gob body repeats the header.
	if _, err := br.ReadBytes('\n'); err != nil {
		return snap, fmt.Errorf("snapshot header: %w", err)
	}
	if err := gob.NewDecoder(br).Decode(&snap); err != nil {
		return snap, fmt.Errorf("gob decode: %w", err)
	}
	if snap.Header.Version != Version {
		return snap, fmt.Errorf("snapshot version %d not supported", snap.Header.Version)
	}
	return snap, nil
}

// Export dumps every document of st into dir/<unix ms>.snap.zst and records it in the store.
func Export(ctx context.Context, st *store.Store, dir string, now time.Time, catalogsDigest string) (string, error) {
	docs, err := st.Dump(ctx)
	if err != nil {
		return "", err
	}
	snap := SnapshotV1{
		Header: Header{
			Version:   Version,
			TakenAt:   now.UnixMilli(),
			Documents: len(docs),
			Catalogs:  catalogsDigest,
		},
		Documents: docs,
	}
	path := filepath.Join(dir, fmt.Sprintf("%d.snap.zst", snap.Header.TakenAt))
	if err := WriteSnapshot(path, snap); err != nil {
		return "", err
	}
	if err := st.RecordSnapshot(ctx, path, len(docs)); err != nil {
		return "", err
	}
	return path, nil
}

// Import replaces the contents of st with the snapshot at path.
func Import(ctx context.Context, st *store.Store, path string) (Header, error) {
	snap, err := ReadSnapshot(path)
	if err != nil {
		return Header{}, err
	}
	if err := st.Restore(ctx, snap.Documents); err != nil {
		return Header{}, err
	}
	return snap.Header, nil
}

// List returns the snapshot files in dir, oldest first.
func List(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	var out []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".snap.zst") {
			out = append(out, filepath.Join(dir, e.Name()))
		}
	}
	sort.Strings(out)
	return out, nil
}

// Prune removes all but the newest keep snapshots in dir.
func Prune(dir string, keep int) error {
	files, err := List(dir)
	if err != nil {
		return err
	}
	for len(files) > keep && keep >= 0 {
		if err := os.Remove(files[0]); err != nil {
			return err
		}
		files = files[1:]
	}
	return nil
}
