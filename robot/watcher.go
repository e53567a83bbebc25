package robot

import (
	"context"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/rs/zerolog"
)

// sourceRetryWait is how long the watcher backs off when the source
// directory is unreachable.
const sourceRetryWait = time.Minute

// Watcher discovers new files at a profile's source and enqueues them as
// pending. Files already known to the queue, files that match no pattern,
// and files older than the configured age limit are skipped.
type Watcher struct {
	profile Profile
	store   *Store
	dialer  RemoteDialer
	alerts  AlertSink
	log     zerolog.Logger
}

func NewWatcher(profile Profile, store *Store, dialer RemoteDialer, alerts AlertSink, log zerolog.Logger) *Watcher {
	return &Watcher{profile: profile, store: store, dialer: dialer, alerts: alerts, log: log}
}

func (w *Watcher) run(ctx context.Context) {
	w.log.Info().Str("source", w.sourceLabel()).Msg("watcher started")
	for {
		wait := w.tick()
		select {
		case <-ctx.Done():
			w.log.Info().Msg("watcher stopped")
			return
		case <-time.After(wait):
		}
	}
}

// tick runs one discovery pass and returns how long to wait before the
// next one.
func (w *Watcher) tick() time.Duration {
	if w.profile.Source.IsSFTP() {
		if err := w.scanSFTP(); err != nil {
			w.log.Error().Err(err).Msg("remote scan failed, backing off")
			w.alerts.Notify(LevelWarning, "Remote scan failed",
				fmt.Sprintf("Could not scan %s: %v. Retrying.", w.sourceLabel(), err))
			return sourceRetryWait
		}
	} else {
		if _, err := os.Stat(w.profile.Source.Path); err != nil {
			w.log.Error().Str("dir", w.profile.Source.Path).Msg("source directory unreachable, backing off")
			return sourceRetryWait
		}
		w.scanLocal()
	}
	return w.profile.Settings.ScanInterval.Duration()
}

func (w *Watcher) scanLocal() {
	entries, err := os.ReadDir(w.profile.Source.Path)
	if err != nil {
		w.log.Error().Err(err).Msg("read source directory")
		return
	}
	known := w.store.KnownPaths()
	cutoff, limited := w.profile.Settings.FileAge.Cutoff(time.Now())
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		full := filepath.Join(w.profile.Source.Path, entry.Name())
		if _, ok := known[full]; ok {
			continue
		}
		if !w.matchesPattern(entry.Name()) {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		if limited && info.ModTime().Before(cutoff) {
			w.log.Warn().Str("file", entry.Name()).Time("modified", info.ModTime()).Msg("skipping file older than age limit")
			continue
		}
		if w.store.Enqueue(full, "", w.eventDateOf(full)) {
			w.log.Info().Str("file", entry.Name()).Msg("new file queued")
		}
	}
}

func (w *Watcher) scanSFTP() error {
	remote, err := w.dialer.Dial(w.profile.Source)
	if err != nil {
		return err
	}
	defer remote.Close()

	infos, err := remote.ReadDir(w.profile.Source.RemotePath)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(w.profile.Settings.StagingPath, 0o755); err != nil {
		return err
	}
	known := w.store.KnownPaths()
	cutoff, limited := w.profile.Settings.FileAge.Cutoff(time.Now())
	for _, info := range infos {
		if info.IsDir() {
			continue
		}
		remotePath := path.Join(w.profile.Source.RemotePath, info.Name())
		if _, ok := known[remotePath]; ok {
			continue
		}
		if !w.matchesPattern(info.Name()) {
			continue
		}
		if limited && info.ModTime().Before(cutoff) {
			w.log.Warn().Str("file", info.Name()).Time("modified", info.ModTime()).Msg("skipping remote file older than age limit")
			continue
		}
		localPath := filepath.Join(w.profile.Settings.StagingPath, info.Name())
		if err := remote.Download(remotePath, localPath); err != nil {
			w.log.Error().Err(err).Str("file", info.Name()).Msg("download failed, will retry next pass")
			continue
		}
		if w.store.Enqueue(localPath, remotePath, w.eventDateOf(localPath)) {
			w.log.Info().Str("file", info.Name()).Msg("new remote file staged and queued")
		}
	}
	return nil
}

func (w *Watcher) matchesPattern(name string) bool {
	for _, pat := range w.profile.Patterns() {
		if ok, err := doublestar.Match(pat, name); err == nil && ok {
			return true
		}
	}
	return false
}

// eventDateOf pulls the business date out of the file content when it
// parses as EDI, so operators can search by event time rather than by
// arrival time.
func (w *Watcher) eventDateOf(localPath string) *time.Time {
	raw, err := os.ReadFile(localPath)
	if err != nil {
		return nil
	}
	return ExtractEventDate(string(raw))
}

func (w *Watcher) sourceLabel() string {
	if w.profile.Source.IsSFTP() {
		return w.profile.Source.Host + ":" + w.profile.Source.RemotePath
	}
	return w.profile.Source.Path
}
