package robot

import (
	"os"
	"path/filepath"
	"sync"
)

// localRemote serves a plain directory through the RemoteFS interface so the
// SFTP code paths run against the local filesystem.
type localRemote struct{ root string }

func (l localRemote) ReadDir(dir string) ([]os.FileInfo, error) {
	entries, err := os.ReadDir(filepath.Join(l.root, filepath.FromSlash(dir)))
	if err != nil {
		return nil, err
	}
	infos := make([]os.FileInfo, 0, len(entries))
	for _, e := range entries {
		info, err := e.Info()
		if err != nil {
			continue
		}
		infos = append(infos, info)
	}
	return infos, nil
}

func (l localRemote) Download(remotePath string, localPath string) error {
	return CopyFile(filepath.Join(l.root, filepath.FromSlash(remotePath)), localPath)
}

func (l localRemote) Upload(localPath string, remotePath string) error {
	full := filepath.Join(l.root, filepath.FromSlash(remotePath))
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return err
	}
	return CopyFile(localPath, full)
}

func (l localRemote) Close() error { return nil }

type localDialer struct{ root string }

func (d localDialer) Dial(Endpoint) (RemoteFS, error) { return localRemote{root: d.root}, nil }

type recordedAlert struct {
	Level AlertLevel
	Title string
	Body  string
}

// alertRecorder captures notifications for assertions.
type alertRecorder struct {
	mu    sync.Mutex
	calls []recordedAlert
}

func (a *alertRecorder) Notify(level AlertLevel, title string, body string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.calls = append(a.calls, recordedAlert{Level: level, Title: title, Body: body})
}

func (a *alertRecorder) byLevel(level AlertLevel) []recordedAlert {
	a.mu.Lock()
	defer a.mu.Unlock()
	var out []recordedAlert
	for _, c := range a.calls {
		if c.Level == level {
			out = append(out, c)
		}
	}
	return out
}
