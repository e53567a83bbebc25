package robot

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func TestWatcherQueuesMatchingFiles(t *testing.T) {
	p := newTestProfile(t)
	p.Settings.FileFormat = "*.edi, CODECO_*"
	s := openProfileTestStore(t, p)
	w := NewWatcher(p, s, nil, NopAlerts{}, zerolog.Nop())

	write := func(name string) string {
		path := filepath.Join(p.Source.Path, name)
		require.NoError(t, os.WriteFile(path, []byte(codecoSample), 0o644))
		return path
	}
	matched := write("a.edi")
	alsoMatched := write("CODECO_20240115.txt")
	write("notes.txt")
	require.NoError(t, os.MkdirAll(filepath.Join(p.Source.Path, "sub.edi"), 0o755))

	require.Equal(t, p.Settings.ScanInterval.Duration(), w.tick())

	known := s.KnownPaths()
	require.Contains(t, known, matched)
	require.Contains(t, known, alsoMatched)
	require.Len(t, known, 2)

	// A second pass re-queues nothing.
	w.tick()
	require.Len(t, s.FetchPending(10), 2)
}

func TestWatcherSkipsOldFiles(t *testing.T) {
	p := newTestProfile(t)
	p.Settings.FileAge = FileAge{Value: 7, Unit: "Days"}
	s := openProfileTestStore(t, p)
	w := NewWatcher(p, s, nil, NopAlerts{}, zerolog.Nop())

	fresh := filepath.Join(p.Source.Path, "fresh.edi")
	stale := filepath.Join(p.Source.Path, "stale.edi")
	require.NoError(t, os.WriteFile(fresh, []byte("x"), 0o644))
	require.NoError(t, os.WriteFile(stale, []byte("y"), 0o644))
	old := time.Now().AddDate(0, 0, -30)
	require.NoError(t, os.Chtimes(stale, old, old))

	w.tick()

	known := s.KnownPaths()
	require.Contains(t, known, fresh)
	// Aged-out files are skipped outright, not recorded.
	require.NotContains(t, known, stale)
}

func TestWatcherExtractsEventDate(t *testing.T) {
	p := newTestProfile(t)
	s := openProfileTestStore(t, p)
	w := NewWatcher(p, s, nil, NopAlerts{}, zerolog.Nop())

	path := filepath.Join(p.Source.Path, "a.edi")
	require.NoError(t, os.WriteFile(path, []byte(codecoSample), 0o644))
	w.tick()

	var rec QueueRecord
	require.NoError(t, s.db.Where("file_path = ?", path).First(&rec).Error)
	require.NotNil(t, rec.EventDate)
	require.Equal(t, time.Date(2024, 1, 15, 9, 30, 0, 0, time.UTC), rec.EventDate.UTC())
}

func TestWatcherBacksOffOnMissingSource(t *testing.T) {
	p := newTestProfile(t)
	s := openProfileTestStore(t, p)
	require.NoError(t, os.RemoveAll(p.Source.Path))
	w := NewWatcher(p, s, nil, NopAlerts{}, zerolog.Nop())

	require.Equal(t, sourceRetryWait, w.tick())
}

func TestWatcherStagesRemoteFiles(t *testing.T) {
	p := newTestProfile(t)
	remoteRoot := t.TempDir()
	p.Source = Endpoint{Type: "sftp", Host: "edi.example.com", Username: "robot", RemotePath: "outbound"}
	p.Settings.StagingPath = filepath.Join(t.TempDir(), "staging")
	s := openProfileTestStore(t, p)
	w := NewWatcher(p, s, localDialer{root: remoteRoot}, NopAlerts{}, zerolog.Nop())

	require.NoError(t, os.MkdirAll(filepath.Join(remoteRoot, "outbound"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(remoteRoot, "outbound", "a.edi"), []byte(codecoSample), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(remoteRoot, "outbound", "skip.txt"), []byte("x"), 0o644))

	require.Equal(t, p.Settings.ScanInterval.Duration(), w.tick())

	staged := filepath.Join(p.Settings.StagingPath, "a.edi")
	require.FileExists(t, staged)
	require.NoFileExists(t, filepath.Join(p.Settings.StagingPath, "skip.txt"))
	// The remote original is never touched.
	require.FileExists(t, filepath.Join(remoteRoot, "outbound", "a.edi"))

	var rec QueueRecord
	require.NoError(t, s.db.Where("file_path = ?", staged).First(&rec).Error)
	require.Equal(t, "outbound/a.edi", rec.OriginalPath)

	// The original path keys the dedup on later passes, even if the staged
	// copy is processed and gone.
	require.NoError(t, os.Remove(staged))
	w.tick()
	require.NoFileExists(t, staged)
}
