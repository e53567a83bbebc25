package robot

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"
)

const (
	// processorPoll is how long the processor sleeps when the queue is
	// drained.
	processorPoll = 5 * time.Second
	// pendingBatchSize bounds one drain pass so shutdown stays responsive.
	pendingBatchSize = 50
	// sweepMinInterval keeps the auto-resend sweep from re-querying on every
	// drain pass.
	sweepMinInterval = time.Minute
)

// recovery records where a file's content was found when its queued path
// no longer exists.
type recovery struct {
	fromBackup      bool
	fromDestination bool
}

func (r recovery) any() bool { return r.fromBackup || r.fromDestination }

// Processor drains pending queue records, delivering each file to the
// profile's destination (or only archiving it in visualizer mode), with
// content-hash duplicate suppression and a bounded retry budget.
type Processor struct {
	profile Profile
	store   *Store
	dialer  RemoteDialer
	alerts  AlertSink
	log     zerolog.Logger

	lastSweep time.Time
}

func NewProcessor(profile Profile, store *Store, dialer RemoteDialer, alerts AlertSink, log zerolog.Logger) *Processor {
	return &Processor{profile: profile, store: store, dialer: dialer, alerts: alerts, log: log}
}

func (p *Processor) run(ctx context.Context) {
	p.log.Info().Msg("processor started")
	for {
		batch := p.store.FetchPending(pendingBatchSize)
		for _, rec := range batch {
			if ctx.Err() != nil {
				p.log.Info().Msg("processor stopped")
				return
			}
			p.process(rec, false)
		}
		p.sweepAutoResend(ctx)
		if len(batch) == pendingBatchSize {
			continue
		}
		select {
		case <-ctx.Done():
			p.log.Info().Msg("processor stopped")
			return
		case <-time.After(processorPoll):
		}
	}
}

// process runs one delivery attempt. A forced record (negative retry count)
// and a sweep re-send both bypass duplicate suppression and never remove
// the source file.
func (p *Processor) process(rec QueueRecord, sweep bool) {
	forced := rec.RetryCount < 0
	log := p.log.With().Uint("id", rec.ID).Str("file", filepath.Base(rec.SourcePath)).Logger()

	contentPath, rec2, err := p.resolveContent(rec)
	if err != nil {
		p.fail(rec, sweep, log, err)
		return
	}
	if rec2.any() {
		log.Warn().Bool("from_backup", rec2.fromBackup).Bool("from_destination", rec2.fromDestination).
			Msg("queued path missing, recovered content from archive")
	}

	raw, err := os.ReadFile(contentPath)
	if err != nil {
		p.fail(rec, sweep, log, err)
		return
	}
	sum := sha256.Sum256(raw)
	hash := hex.EncodeToString(sum[:])

	if !forced && !sweep && p.store.HashSeen(hash) {
		log.Warn().Str("hash", hash).Msg("duplicate content, suppressing delivery")
		p.store.UpdateStatus(rec.ID, StatusDuplicate, StatusUpdate{Hash: hash})
		return
	}

	// Indexing failures never block the pipeline; the record just stays
	// unsearchable by container.
	p.store.IndexUnits(rec.ID, ExtractContainers(string(raw)))

	if p.profile.IsVisualizer() {
		if !rec2.fromBackup {
			if err := p.backup(contentPath); err != nil {
				p.fail(rec, sweep, log, err)
				return
			}
		}
		p.store.UpdateStatus(rec.ID, StatusMonitored, StatusUpdate{Hash: hash, ClearForced: forced, TouchResend: sweep})
		log.Info().Msg("file archived")
		p.alerts.Notify(LevelInfo, "File archived", fmt.Sprintf("%s recorded and backed up.", filepath.Base(rec.SourcePath)))
		return
	}

	if err := p.deliver(contentPath); err != nil {
		p.fail(rec, sweep, log, err)
		return
	}
	if !rec2.fromBackup {
		if err := p.backup(contentPath); err != nil {
			log.Error().Err(err).Msg("delivered but backup failed")
		}
	}
	// Move semantics consume the source only on a first-time, non-recovered
	// delivery; forced and sweep re-sends always leave the source alone.
	if p.profile.Action == "move" && !forced && !sweep && !rec2.any() {
		if err := os.Remove(rec.SourcePath); err != nil {
			log.Error().Err(err).Msg("delivered but could not remove source")
		}
	}
	p.store.UpdateStatus(rec.ID, StatusSent, StatusUpdate{Hash: hash, ClearForced: forced, TouchResend: sweep})
	log.Info().Msg("file delivered")
	p.alerts.Notify(LevelInfo, "File delivered", fmt.Sprintf("%s sent to destination.", filepath.Base(rec.SourcePath)))
}

// resolveContent returns a readable path holding the record's content. The
// origin copy is preferred when it still exists; after that the staged path,
// the backup archive and finally the local destination, so a vanished file
// can still be delivered from any surviving copy.
func (p *Processor) resolveContent(rec QueueRecord) (string, recovery, error) {
	if rec.OriginalPath != "" && !p.profile.Source.IsSFTP() && fileExists(rec.OriginalPath) {
		return rec.OriginalPath, recovery{}, nil
	}
	if fileExists(rec.SourcePath) {
		return rec.SourcePath, recovery{}, nil
	}
	base := filepath.Base(rec.SourcePath)
	if p.profile.Settings.Backup.Enabled {
		if cand := filepath.Join(p.profile.Settings.Backup.Path, base); fileExists(cand) {
			return cand, recovery{fromBackup: true}, nil
		}
	}
	if !p.profile.Destination.IsSFTP() && p.profile.Destination.Path != "" {
		if cand := filepath.Join(p.profile.Destination.Path, base); fileExists(cand) {
			return cand, recovery{fromDestination: true}, nil
		}
	}
	return "", recovery{}, fmt.Errorf("no copy of %s remains", base)
}

func (p *Processor) deliver(contentPath string) error {
	dst := p.profile.Destination
	if dst.IsSFTP() {
		remote, err := p.dialer.Dial(dst)
		if err != nil {
			return err
		}
		defer remote.Close()
		return remote.Upload(contentPath, path.Join(dst.RemotePath, filepath.Base(contentPath)))
	}
	_, err := CopyFileToDir(contentPath, dst.Path)
	return err
}

func (p *Processor) backup(contentPath string) error {
	if !p.profile.Settings.Backup.Enabled {
		return nil
	}
	_, err := CopyFileToDir(contentPath, p.profile.Settings.Backup.Path)
	return err
}

// fail re-queues the record for another attempt, or marks it failed once
// the retry budget is exhausted. A forced record that fails re-enters the
// normal budget. A failed sweep re-send leaves the record untouched so a
// transient outage cannot burn the budget of an already delivered file.
func (p *Processor) fail(rec QueueRecord, sweep bool, log zerolog.Logger, cause error) {
	if sweep {
		log.Warn().Err(cause).Msg("auto-resend attempt failed, will retry next sweep")
		return
	}
	effective := rec.RetryCount
	if effective < 0 {
		effective = 0
	}
	if effective+1 >= MaxRetries {
		log.Error().Err(cause).Int("attempts", effective+1).Msg("retry budget exhausted, marking failed")
		p.store.UpdateStatus(rec.ID, StatusFailed, StatusUpdate{IncrementRetry: true})
		p.alerts.Notify(LevelCritical, "Delivery failed permanently",
			fmt.Sprintf("Record %d (%s) failed %d times: %v.", rec.ID, filepath.Base(rec.SourcePath), effective+1, cause))
		return
	}
	log.Warn().Err(cause).Int("attempt", effective+1).Msg("delivery failed, will retry")
	p.store.UpdateStatus(rec.ID, StatusPending, StatusUpdate{IncrementRetry: true})
	p.alerts.Notify(LevelWarning, "Delivery failed",
		fmt.Sprintf("Record %d (%s) attempt %d failed: %v.", rec.ID, filepath.Base(rec.SourcePath), effective+1, cause))
}

// sweepAutoResend re-delivers records whose last completion is older than
// the configured idle window. The sweep itself runs at most once a minute.
func (p *Processor) sweepAutoResend(ctx context.Context) {
	cfg := p.profile.Settings.AutoResend
	if !cfg.Enabled || cfg.IntervalMinutes <= 0 {
		return
	}
	now := time.Now()
	if now.Sub(p.lastSweep) < sweepMinInterval {
		return
	}
	p.lastSweep = now

	idle := time.Duration(cfg.IntervalMinutes) * time.Minute
	for _, rec := range p.store.FetchDueForAutoResend(idle) {
		if ctx.Err() != nil {
			return
		}
		p.log.Info().Uint("id", rec.ID).Str("file", filepath.Base(rec.SourcePath)).Msg("auto-resend due")
		p.process(rec, true)
	}
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
