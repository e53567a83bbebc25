package robot

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/rs/zerolog"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"
)

// Store is the per-profile durable queue. Every operation except OpenStore
// fails soft: on a storage error it logs and returns the zero/default result
// so that one bad query never kills a watcher or processor loop.
type Store struct {
	db  *gorm.DB
	log zerolog.Logger
}

type migration struct {
	name    string
	applied func(m gorm.Migrator) bool
	apply   func(db *gorm.DB) error
}

// Schema changes are additive only. Each step is guarded by an existence
// check so the list can be replayed against any older database.
var migrations = []migration{
	{
		name:    "create queue table",
		applied: func(m gorm.Migrator) bool { return m.HasTable(&QueueRecord{}) },
		apply:   func(db *gorm.DB) error { return db.Migrator().CreateTable(&QueueRecord{}) },
	},
	{
		name:    "queue: add original_path",
		applied: func(m gorm.Migrator) bool { return m.HasColumn(&QueueRecord{}, "original_path") },
		apply:   func(db *gorm.DB) error { return db.Migrator().AddColumn(&QueueRecord{}, "OriginalPath") },
	},
	{
		name:    "queue: add event_date",
		applied: func(m gorm.Migrator) bool { return m.HasColumn(&QueueRecord{}, "event_date") },
		apply:   func(db *gorm.DB) error { return db.Migrator().AddColumn(&QueueRecord{}, "EventDate") },
	},
	{
		name:    "queue: add last_auto_resend_at",
		applied: func(m gorm.Migrator) bool { return m.HasColumn(&QueueRecord{}, "last_auto_resend_at") },
		apply:   func(db *gorm.DB) error { return db.Migrator().AddColumn(&QueueRecord{}, "LastAutoResendAt") },
	},
	{
		name:    "create container_units table",
		applied: func(m gorm.Migrator) bool { return m.HasTable(&ContainerUnit{}) },
		apply:   func(db *gorm.DB) error { return db.Migrator().CreateTable(&ContainerUnit{}) },
	},
}

// OpenStore opens (creating if needed) the queue database for a profile and
// applies pending migrations. Failure here is fatal to the owning profile.
func OpenStore(path string, log zerolog.Logger) (*Store, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create db directory: %w", err)
		}
	}
	// WAL with relaxed sync for throughput; busy_timeout keeps concurrent
	// watcher/processor writes from failing under brief lock contention.
	dsn := path + "?_pragma=busy_timeout(30000)&_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)"
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: logger.Discard})
	if err != nil {
		return nil, fmt.Errorf("open queue db %s: %w", path, err)
	}
	for _, mig := range migrations {
		if mig.applied(db.Migrator()) {
			continue
		}
		if err := mig.apply(db); err != nil {
			return nil, fmt.Errorf("migration %q: %w", mig.name, err)
		}
		log.Info().Str("migration", mig.name).Msg("queue schema updated")
	}
	return &Store{db: db, log: log}, nil
}

func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Enqueue inserts a new pending record keyed on sourcePath. Returns false
// without error when the path is already known.
func (s *Store) Enqueue(sourcePath, originalPath string, eventDate *time.Time) bool {
	rec := QueueRecord{
		SourcePath:   sourcePath,
		OriginalPath: originalPath,
		Status:       StatusPending,
		AddedAt:      time.Now().UTC(),
		EventDate:    eventDate,
	}
	res := s.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "file_path"}},
		DoNothing: true,
	}).Create(&rec)
	if res.Error != nil {
		s.log.Error().Err(res.Error).Str("path", sourcePath).Msg("enqueue failed")
		return false
	}
	return res.RowsAffected > 0
}

// KnownPaths returns every source and original path in the queue, for O(1)
// already-seen checks during a watcher scan.
func (s *Store) KnownPaths() map[string]struct{} {
	var rows []QueueRecord
	if err := s.db.Select("file_path", "original_path").Find(&rows).Error; err != nil {
		s.log.Error().Err(err).Msg("known paths query failed")
		return map[string]struct{}{}
	}
	known := make(map[string]struct{}, len(rows)*2)
	for _, r := range rows {
		known[r.SourcePath] = struct{}{}
		if r.OriginalPath != "" {
			known[r.OriginalPath] = struct{}{}
		}
	}
	return known
}

// HashSeen reports whether content with this hash was already handled
// successfully (sent, duplicate or monitored).
func (s *Store) HashSeen(hash string) bool {
	if hash == "" {
		return false
	}
	var n int64
	err := s.db.Model(&QueueRecord{}).
		Where("file_hash = ? AND status IN ?", hash, []string{StatusSent, StatusDuplicate, StatusMonitored}).
		Count(&n).Error
	if err != nil {
		s.log.Error().Err(err).Msg("hash lookup failed")
		return false
	}
	return n > 0
}

// FetchPending returns up to limit actionable records, oldest first. Records
// that exhausted the retry budget are excluded; the forced sentinel (-1)
// always qualifies.
func (s *Store) FetchPending(limit int) []QueueRecord {
	var recs []QueueRecord
	err := s.db.Where("status = ? AND retry_count < ?", StatusPending, MaxRetries).
		Order("added_at ASC").
		Limit(limit).
		Find(&recs).Error
	if err != nil {
		s.log.Error().Err(err).Msg("pending fetch failed")
		return nil
	}
	return recs
}

// FetchDueForAutoResend returns sent/monitored records that have been settled
// for at least the idle window and were not swept within it.
func (s *Store) FetchDueForAutoResend(idle time.Duration) []QueueRecord {
	cutoff := time.Now().UTC().Add(-idle)
	var recs []QueueRecord
	err := s.db.Where("status IN ?", []string{StatusSent, StatusMonitored}).
		Where("last_auto_resend_at IS NULL OR last_auto_resend_at < ?", cutoff).
		Where("processed_at IS NOT NULL AND processed_at < ?", cutoff).
		Find(&recs).Error
	if err != nil {
		s.log.Error().Err(err).Msg("auto-resend fetch failed")
		return nil
	}
	return recs
}

// StatusUpdate carries the optional side effects of an UpdateStatus call.
type StatusUpdate struct {
	// IncrementRetry bumps the retry counter; a negative (forced) counter is
	// reset to 1 instead of being decremented further.
	IncrementRetry bool
	// ClearForced restores a forced (-1) counter to 0 after a successful
	// forced delivery, leaving a genuine retry count untouched.
	ClearForced bool
	Hash        string
	// TouchResend stamps last_auto_resend_at; set only by the sweep.
	TouchResend bool
}

// UpdateStatus transitions a record. Transitions to sent/monitored also stamp
// processed_at. Returns false if the update could not be persisted.
func (s *Store) UpdateStatus(id uint, status string, upd StatusUpdate) bool {
	now := time.Now().UTC()
	updates := map[string]any{"status": status}
	if upd.Hash != "" {
		updates["file_hash"] = upd.Hash
	}
	if upd.IncrementRetry {
		updates["retry_count"] = gorm.Expr("CASE WHEN retry_count < 0 THEN 1 ELSE retry_count + 1 END")
	} else if upd.ClearForced {
		updates["retry_count"] = gorm.Expr("CASE WHEN retry_count < 0 THEN 0 ELSE retry_count END")
	}
	if status == StatusSent || status == StatusMonitored {
		updates["processed_at"] = now
	}
	if upd.TouchResend {
		updates["last_auto_resend_at"] = now
	}
	err := s.db.Model(&QueueRecord{}).Where("id = ?", id).Updates(updates).Error
	if err != nil {
		s.log.Error().Err(err).Uint("id", id).Str("status", status).Msg("status update failed")
		return false
	}
	return true
}

// IndexUnits records the container numbers extracted from a record's content.
// Entries are write-once: a record that was already indexed by an earlier
// attempt is left alone. No-op on empty input; duplicates within the batch
// are collapsed.
func (s *Store) IndexUnits(id uint, units []string) bool {
	if len(units) == 0 {
		return true
	}
	var existing int64
	if err := s.db.Model(&ContainerUnit{}).Where("queue_record_id = ?", id).Count(&existing).Error; err != nil {
		s.log.Error().Err(err).Uint("id", id).Msg("unit index lookup failed")
		return false
	}
	if existing > 0 {
		return true
	}
	seen := make(map[string]struct{}, len(units))
	rows := make([]ContainerUnit, 0, len(units))
	for _, u := range units {
		u = strings.TrimSpace(u)
		if u == "" {
			continue
		}
		if _, ok := seen[u]; ok {
			continue
		}
		seen[u] = struct{}{}
		rows = append(rows, ContainerUnit{QueueRecordID: id, Unit: u})
	}
	if len(rows) == 0 {
		return true
	}
	if err := s.db.Create(&rows).Error; err != nil {
		s.log.Error().Err(err).Uint("id", id).Msg("unit indexing failed")
		return false
	}
	return true
}

// Stats returns the record count per status.
func (s *Store) Stats() map[string]int {
	stats := map[string]int{}
	var rows []struct {
		Status string
		N      int
	}
	err := s.db.Model(&QueueRecord{}).
		Select("status, COUNT(*) AS n").
		Group("status").
		Scan(&rows).Error
	if err != nil {
		s.log.Error().Err(err).Msg("stats query failed")
		return stats
	}
	for _, r := range rows {
		stats[r.Status] = r.N
	}
	return stats
}

// NoUnits is the Units sentinel for records whose content carried no
// recognizable equipment segments.
const NoUnits = "NOT EDI"

// RecordDetails is a queue record joined with its indexed container units.
type RecordDetails struct {
	QueueRecord
	Units string
}

// Details returns one record with its comma-joined unit list, or false if the
// record does not exist (or the query failed).
func (s *Store) Details(id uint) (RecordDetails, bool) {
	var rec QueueRecord
	if err := s.db.First(&rec, id).Error; err != nil {
		if err != gorm.ErrRecordNotFound {
			s.log.Error().Err(err).Uint("id", id).Msg("details query failed")
		}
		return RecordDetails{}, false
	}
	return RecordDetails{QueueRecord: rec, Units: s.unitsFor(rec.ID)}, true
}

// List returns up to limit records, newest first, each joined with its units.
// Search terms (comma-separated) are matched case-insensitively against the
// file name and the indexed units; records matching any term are kept.
func (s *Store) List(limit int, search string) []RecordDetails {
	var recs []QueueRecord
	if err := s.db.Order("added_at DESC").Find(&recs).Error; err != nil {
		s.log.Error().Err(err).Msg("list query failed")
		return nil
	}
	var terms []string
	for _, t := range strings.Split(search, ",") {
		if t = strings.ToLower(strings.TrimSpace(t)); t != "" {
			terms = append(terms, t)
		}
	}
	out := make([]RecordDetails, 0, limit)
	for _, rec := range recs {
		d := RecordDetails{QueueRecord: rec, Units: s.unitsFor(rec.ID)}
		if len(terms) > 0 && !matchesSearch(d, terms) {
			continue
		}
		out = append(out, d)
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out
}

func matchesSearch(d RecordDetails, terms []string) bool {
	name := strings.ToLower(filepath.Base(firstNonEmpty(d.SourcePath, d.OriginalPath)))
	units := strings.ToLower(d.Units)
	for _, t := range terms {
		if strings.Contains(name, t) || strings.Contains(units, t) {
			return true
		}
	}
	return false
}

func (s *Store) unitsFor(id uint) string {
	var units []string
	err := s.db.Model(&ContainerUnit{}).
		Where("queue_record_id = ?", id).
		Order("id ASC").
		Pluck("unit", &units).Error
	if err != nil {
		s.log.Error().Err(err).Uint("id", id).Msg("units query failed")
	}
	if len(units) == 0 {
		return NoUnits
	}
	return strings.Join(units, ", ")
}

// ResetFailed re-queues failed records with a fresh retry budget.
func (s *Store) ResetFailed(ids []uint) bool {
	if len(ids) == 0 {
		return true
	}
	err := s.db.Model(&QueueRecord{}).
		Where("id IN ? AND status = ?", ids, StatusFailed).
		Updates(map[string]any{"status": StatusPending, "retry_count": 0}).Error
	if err != nil {
		s.log.Error().Err(err).Msg("retry reset failed")
		return false
	}
	return true
}

// ForceResend re-queues records with the forced sentinel so the next delivery
// bypasses duplicate suppression.
func (s *Store) ForceResend(ids []uint) bool {
	if len(ids) == 0 {
		return true
	}
	err := s.db.Model(&QueueRecord{}).
		Where("id IN ?", ids).
		Updates(map[string]any{"status": StatusPending, "retry_count": RetryForced}).Error
	if err != nil {
		s.log.Error().Err(err).Msg("force resend failed")
		return false
	}
	return true
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
