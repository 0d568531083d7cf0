package platform

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"os/exec"
	"runtime"
	"strings"
)

var (
	ErrUnsupported = errors.New("not supported on this host")
	ErrInvalidURL  = errors.New("only http and https urls can be opened")
)

// SettingsKind names a system settings screen a dialog links to.
type SettingsKind string

const (
	SettingsWifi        SettingsKind = "wifi"
	SettingsMobileData  SettingsKind = "mobile-data"
	SettingsPermissions SettingsKind = "permissions"
)

func ParseSettingsKind(s string) (SettingsKind, error) {
	switch kind := SettingsKind(strings.ToLower(strings.TrimSpace(s))); kind {
	case SettingsWifi, SettingsMobileData, SettingsPermissions:
		return kind, nil
	default:
		return "", fmt.Errorf("unknown settings screen %q", s)
	}
}

// Launcher hands requests to the host OS. Both calls return once the request
// is handed over; they report only whether that worked.
type Launcher interface {
	OpenURL(ctx context.Context, rawURL string) error
	OpenSettings(ctx context.Context, kind SettingsKind) error
}

// Starter starts a process without waiting for it.
type Starter func(name string, args ...string) error

type HostLauncher struct {
	goos     string
	settings map[SettingsKind][]string
	start    Starter
}

type Option func(*HostLauncher)

func WithOS(goos string) Option {
	return func(l *HostLauncher) {
		l.goos = goos
	}
}

func WithStarter(start Starter) Option {
	return func(l *HostLauncher) {
		l.start = start
	}
}

// NewHostLauncher takes the command line to run for each settings screen.
// Screens without a command are reported as unsupported.
func NewHostLauncher(settings map[SettingsKind][]string, opts ...Option) *HostLauncher {
	l := &HostLauncher{
		goos:     runtime.GOOS,
		settings: settings,
		start:    startDetached,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

func (l *HostLauncher) OpenURL(ctx context.Context, rawURL string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	u, err := url.Parse(rawURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("%w: %q", ErrInvalidURL, rawURL)
	}

	var argv []string
	switch l.goos {
	case "linux", "freebsd", "openbsd", "netbsd":
		argv = []string{"xdg-open", u.String()}
	case "darwin":
		argv = []string{"open", u.String()}
	case "windows":
		argv = []string{"rundll32", "url.dll,FileProtocolHandler", u.String()}
	default:
		return fmt.Errorf("%w: opening urls on %s", ErrUnsupported, l.goos)
	}

	slog.Info("opening url", "url", u.String())
	return l.run(argv)
}

func (l *HostLauncher) OpenSettings(ctx context.Context, kind SettingsKind) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	argv := l.settings[kind]
	if len(argv) == 0 {
		return fmt.Errorf("%w: %s settings", ErrUnsupported, kind)
	}
	slog.Info("opening settings screen", "kind", kind, "command", argv[0])
	return l.run(argv)
}

func (l *HostLauncher) run(argv []string) error {
	if err := l.start(argv[0], argv[1:]...); err != nil {
		return fmt.Errorf("failed to start %s: %w", argv[0], err)
	}
	return nil
}

func startDetached(name string, args ...string) error {
	cmd := exec.Command(name, args...)
	if err := cmd.Start(); err != nil {
		return err
	}
	go func() {
		if err := cmd.Wait(); err != nil {
			slog.Warn("launched command exited with error", "command", name, "error", err)
		}
	}()
	return nil
}
