package robot

import (
	"context"
	"fmt"
	"reflect"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
)

const (
	superviseInterval = 5 * time.Second
	stopTimeout       = 10 * time.Second
)

// ProfileRunner owns the worker pair for one profile: a watcher that
// discovers files and a processor that delivers them, sharing the profile's
// queue database.
type ProfileRunner struct {
	profile Profile
	dialer  RemoteDialer
	alerts  AlertSink
	log     zerolog.Logger

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	store   *Store

	watcherAlive   atomic.Bool
	processorAlive atomic.Bool
}

func NewProfileRunner(profile Profile, dialer RemoteDialer, alerts AlertSink, log zerolog.Logger) *ProfileRunner {
	return &ProfileRunner{profile: profile, dialer: dialer, alerts: alerts, log: log}
}

// Start opens the profile's queue database and launches the worker pair.
// It is a no-op when the runner is already running.
func (r *ProfileRunner) Start() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.running {
		r.log.Warn().Msg("start requested while already running")
		return nil
	}

	store, err := OpenStore(r.profile.Settings.DBPath, r.log)
	if err != nil {
		return fmt.Errorf("profile %q: %w", r.profile.Name, err)
	}
	r.store = store

	ctx, cancel := context.WithCancel(context.Background())
	r.cancel = cancel

	watcher := NewWatcher(r.profile, store, r.dialer, r.alerts, r.log)
	processor := NewProcessor(r.profile, store, r.dialer, r.alerts, r.log)

	r.watcherAlive.Store(true)
	r.processorAlive.Store(true)
	r.spawn(ctx, "watcher", &r.watcherAlive, watcher.run)
	r.spawn(ctx, "processor", &r.processorAlive, processor.run)

	r.wg.Add(1)
	go r.supervise(ctx)

	r.running = true
	r.log.Info().Msg("services started")
	return nil
}

// spawn runs worker under a panic guard so one crashing goroutine cannot
// take the process down. The alive flag flips off on any exit and lets the
// supervisor notice a crash.
func (r *ProfileRunner) spawn(ctx context.Context, name string, alive *atomic.Bool, worker func(context.Context)) {
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		defer alive.Store(false)
		defer func() {
			if p := recover(); p != nil {
				r.log.Error().Interface("panic", p).Str("worker", name).Msg("worker panicked")
			}
		}()
		worker(ctx)
	}()
}

// supervise cancels the whole pair when either worker dies, so a profile is
// never left half-running with files queuing but nothing delivering.
func (r *ProfileRunner) supervise(ctx context.Context) {
	defer r.wg.Done()
	ticker := time.NewTicker(superviseInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if !r.watcherAlive.Load() || !r.processorAlive.Load() {
				r.log.Error().Msg("worker died, shutting down profile pair")
				r.cancel()
				return
			}
		}
	}
}

// Stop cancels the workers and waits for them, bounded so a wedged remote
// connection cannot hang shutdown forever.
func (r *ProfileRunner) Stop() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.running {
		return
	}
	r.log.Info().Msg("stopping services")
	r.cancel()

	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(stopTimeout):
		r.log.Error().Msg("workers did not stop in time")
	}

	if r.store != nil {
		r.store.Close()
		r.store = nil
	}
	r.running = false
	r.log.Info().Msg("services stopped")
}

// IsRunning reports whether any worker is still alive. A pair that crashed
// out reads as stopped even though Start succeeded.
func (r *ProfileRunner) IsRunning() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.running && (r.watcherAlive.Load() || r.processorAlive.Load())
}

// Manager keeps the set of ProfileRunners aligned with the profiles file:
// enabled profiles run, disabled ones stop, changed ones restart, and
// crashed ones restart with an alert.
type Manager struct {
	profilesPath string
	log          zerolog.Logger
	newDialer    func(Profile) RemoteDialer
	newAlerts    func(Profile) AlertSink
	newLogger    func(Profile) zerolog.Logger

	mu       sync.Mutex
	runners  map[string]*ProfileRunner
	profiles map[string]Profile
}

func NewManager(profilesPath string, log zerolog.Logger, console bool) *Manager {
	return &Manager{
		profilesPath: profilesPath,
		log:          log,
		newDialer: func(Profile) RemoteDialer {
			return SSHDialer{Secrets: KeyringSecrets{}}
		},
		newAlerts: func(p Profile) AlertSink {
			return NewTeamsWebhook(p.Settings.Alerting, log)
		},
		newLogger: func(p Profile) zerolog.Logger {
			plog, err := NewProfileLogger(p.Name, p.Settings.LogPath, console)
			if err != nil {
				log.Error().Err(err).Str("profile", p.Name).Msg("profile log file unavailable, using main log")
				return log.With().Str("profile", p.Name).Logger()
			}
			return plog
		},
		runners:  map[string]*ProfileRunner{},
		profiles: map[string]Profile{},
	}
}

// Reconcile reloads the profiles file and converges the running set onto
// it. A crashed runner is restarted and the crash is alerted.
func (m *Manager) Reconcile() error {
	loaded, err := LoadProfiles(m.profilesPath)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	for name, runner := range m.runners {
		p, keep := loaded[name]
		if keep && p.Enabled && reflect.DeepEqual(p, m.profiles[name]) {
			if !runner.IsRunning() {
				m.log.Error().Str("profile", name).Msg("profile crashed, restarting")
				m.newAlerts(p).Notify(LevelCritical, "Profile crashed",
					fmt.Sprintf("Profile %q stopped unexpectedly and was restarted.", name))
				runner.Stop()
				m.startLocked(p)
			}
			continue
		}
		if keep && p.Enabled {
			m.log.Info().Str("profile", name).Msg("profile changed, restarting")
		} else {
			m.log.Info().Str("profile", name).Msg("profile disabled, stopping")
		}
		runner.Stop()
		delete(m.runners, name)
		delete(m.profiles, name)
	}

	for name, p := range loaded {
		if !p.Enabled {
			continue
		}
		if _, ok := m.runners[name]; ok {
			continue
		}
		m.startLocked(p)
	}
	return nil
}

func (m *Manager) startLocked(p Profile) {
	runner := NewProfileRunner(p, m.newDialer(p), m.newAlerts(p), m.newLogger(p))
	if err := runner.Start(); err != nil {
		m.log.Error().Err(err).Str("profile", p.Name).Msg("profile failed to start")
		return
	}
	m.runners[p.Name] = runner
	m.profiles[p.Name] = p
}

// Run reconciles immediately and then on an interval until ctx is done,
// stopping every profile on the way out.
func (m *Manager) Run(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		interval = time.Minute
	}
	if err := m.Reconcile(); err != nil {
		return err
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			m.StopAll()
			return nil
		case <-ticker.C:
			if err := m.Reconcile(); err != nil {
				m.log.Error().Err(err).Msg("reconcile failed, keeping current profiles")
			}
		}
	}
}

// StopAll stops every running profile.
func (m *Manager) StopAll() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for name, runner := range m.runners {
		runner.Stop()
		delete(m.runners, name)
		delete(m.profiles, name)
	}
}
