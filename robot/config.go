package robot

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Endpoint is one side of a transfer, either a local directory or a
// directory on an SFTP host.
type Endpoint struct {
	Type       string `yaml:"type"`
	Path       string `yaml:"path,omitempty"`
	Host       string `yaml:"host,omitempty"`
	Port       int    `yaml:"port,omitempty"`
	Username   string `yaml:"username,omitempty"`
	RemotePath string `yaml:"remote_path,omitempty"`
}

func (e Endpoint) IsSFTP() bool { return e.Type == "sftp" }

// ScanInterval is a value with a unit of s, min or hr. Older profile files
// carried a bare number of seconds; UnmarshalYAML still accepts that form.
type ScanInterval struct {
	Value int    `yaml:"value"`
	Unit  string `yaml:"unit"`
}

func (s *ScanInterval) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind == yaml.ScalarNode {
		var secs int
		if err := node.Decode(&secs); err != nil {
			return err
		}
		s.Value = secs
		s.Unit = "s"
		return nil
	}
	type plain ScanInterval
	return node.Decode((*plain)(s))
}

// Duration converts the interval to a time.Duration, defaulting to 5s when
// the value is missing or not positive.
func (s ScanInterval) Duration() time.Duration {
	v := s.Value
	if v <= 0 {
		v = 5
	}
	switch s.Unit {
	case "min":
		return time.Duration(v) * time.Minute
	case "hr":
		return time.Duration(v) * time.Hour
	default:
		return time.Duration(v) * time.Second
	}
}

// FileAge is the maximum age a discovered file may have before it is skipped.
// The unit "No Limit" disables the check entirely.
type FileAge struct {
	Value int    `yaml:"value"`
	Unit  string `yaml:"unit"`
}

// Cutoff returns the oldest acceptable modification time, or false when no
// age limit applies. Months and years use calendar approximations of 30 and
// 365 days, matching how operators reason about retention windows.
func (a FileAge) Cutoff(now time.Time) (time.Time, bool) {
	var days int
	switch a.Unit {
	case "Days":
		days = a.Value
	case "Months":
		days = a.Value * 30
	case "Years":
		days = a.Value * 365
	default:
		return time.Time{}, false
	}
	y, m, d := now.AddDate(0, 0, -days).Date()
	return time.Date(y, m, d, 0, 0, 0, 0, now.Location()), true
}

// Backup keeps a copy of every delivered or monitored file in a local
// directory.
type Backup struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path,omitempty"`
}

// Alerting posts operational notifications to a Teams incoming webhook.
// Level is the minimum severity that gets posted (1=info, 2=warning,
// 3=critical).
type Alerting struct {
	Enabled    bool   `yaml:"enabled"`
	WebhookURL string `yaml:"webhook_url,omitempty"`
	Level      int    `yaml:"level,omitempty"`
}

// AutoResend periodically re-delivers files that completed long enough ago,
// covering destinations that lose documents.
type AutoResend struct {
	Enabled         bool `yaml:"enabled"`
	IntervalMinutes int  `yaml:"interval_minutes,omitempty"`
}

// Settings holds the per-profile tuning that is not part of the transfer
// topology itself.
type Settings struct {
	DBPath       string       `yaml:"db_path"`
	LogPath      string       `yaml:"log_path"`
	FileFormat   string       `yaml:"file_format"`
	FileAge      FileAge      `yaml:"file_age"`
	ScanInterval ScanInterval `yaml:"scan_interval"`
	Backup       Backup       `yaml:"backup"`
	Alerting     Alerting     `yaml:"alerting"`
	Mode         string       `yaml:"mode,omitempty"`
	AutoResend   AutoResend   `yaml:"auto_resend"`
	StagingPath  string       `yaml:"staging_path,omitempty"`
}

// Profile is one independent transfer pipeline: a source to watch, a
// destination to deliver to, and the rules in between.
type Profile struct {
	Name        string   `yaml:"-"`
	Enabled     bool     `yaml:"enabled"`
	Action      string   `yaml:"action"`
	Source      Endpoint `yaml:"source"`
	Destination Endpoint `yaml:"destination"`
	Settings    Settings `yaml:"settings"`
}

// Patterns returns the filename glob patterns from the comma separated
// file_format setting.
func (p Profile) Patterns() []string {
	var out []string
	for _, raw := range strings.Split(p.Settings.FileFormat, ",") {
		if pat := strings.TrimSpace(raw); pat != "" {
			out = append(out, pat)
		}
	}
	return out
}

// IsVisualizer reports whether the profile only records and backs up files
// instead of delivering them.
func (p Profile) IsVisualizer() bool { return p.Settings.Mode == "visualizer" }

// Validate rejects profiles that cannot possibly run. Runtime conditions
// like a missing source directory are left to the watcher, which retries.
func (p Profile) Validate() error {
	switch p.Action {
	case "copy", "move":
	default:
		return fmt.Errorf("profile %q: action must be copy or move, got %q", p.Name, p.Action)
	}
	switch p.Settings.Mode {
	case "", "sender", "visualizer":
	default:
		return fmt.Errorf("profile %q: mode must be sender or visualizer, got %q", p.Name, p.Settings.Mode)
	}
	if err := p.validateEndpoint("source", p.Source); err != nil {
		return err
	}
	if !p.IsVisualizer() {
		if err := p.validateEndpoint("destination", p.Destination); err != nil {
			return err
		}
	}
	if p.Settings.DBPath == "" {
		return fmt.Errorf("profile %q: db_path is required", p.Name)
	}
	if len(p.Patterns()) == 0 {
		return fmt.Errorf("profile %q: file_format must list at least one pattern", p.Name)
	}
	if p.Source.IsSFTP() && p.Settings.StagingPath == "" {
		return fmt.Errorf("profile %q: staging_path is required for an sftp source", p.Name)
	}
	return nil
}

func (p Profile) validateEndpoint(role string, e Endpoint) error {
	switch e.Type {
	case "", "local":
		if e.Path == "" {
			return fmt.Errorf("profile %q: %s path is required", p.Name, role)
		}
	case "sftp":
		if e.Host == "" || e.Username == "" || e.RemotePath == "" {
			return fmt.Errorf("profile %q: %s sftp endpoint needs host, username and remote_path", p.Name, role)
		}
	default:
		return fmt.Errorf("profile %q: %s type must be local or sftp, got %q", p.Name, role, e.Type)
	}
	return nil
}

// LoadProfiles reads the profiles file and returns the profiles keyed by
// name, each validated. The file maps profile names to profile bodies.
func LoadProfiles(path string) (map[string]Profile, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read profiles: %w", err)
	}
	var byName map[string]Profile
	if err := yaml.Unmarshal(raw, &byName); err != nil {
		return nil, fmt.Errorf("parse profiles: %w", err)
	}
	for name, p := range byName {
		p.Name = name
		if err := p.Validate(); err != nil {
			return nil, err
		}
		byName[name] = p
	}
	return byName, nil
}
