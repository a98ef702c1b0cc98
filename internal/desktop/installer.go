package desktop

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"slices"

	"github.com/rs/zerolog"
)

const (
	AppDirName      = "ClockSpeeds"
	EntryName       = "org.ClockSpeeds.desktop"
	LegacyEntryName = "ClockSpeeds.desktop"
	NotFoundMessage = "ClockSpeeds directory not found"
)

var ErrAppDirNotFound = errors.New("ClockSpeeds directory not found")

// FindAppDir walks home in lexical order and returns the first directory
// named ClockSpeeds, skipping the tool's own config and cache directories.
func FindAppDir(home string) (string, error) {
	skip := toolDirs(home)
	var found string
	err := filepath.WalkDir(home, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if d != nil && d.IsDir() && path != home {
				return fs.SkipDir
			}
			if path == home {
				return err
			}
			return nil
		}
		if !d.IsDir() || path == home {
			return nil
		}
		if d.Name() != AppDirName {
			return nil
		}
		if slices.Contains(skip, path) {
			return fs.SkipDir
		}
		found = path
		return fs.SkipAll
	})
	if err != nil {
		return "", fmt.Errorf("search %s: %w", home, err)
	}
	if found == "" {
		return "", ErrAppDirNotFound
	}
	return found, nil
}

func toolDirs(home string) []string {
	dirs := []string{
		filepath.Join(home, ".config", AppDirName),
		filepath.Join(home, ".cache", AppDirName),
	}
	if dir, err := os.UserConfigDir(); err == nil {
		dirs = append(dirs, filepath.Join(dir, AppDirName))
	}
	if dir, err := os.UserCacheDir(); err == nil {
		dirs = append(dirs, filepath.Join(dir, AppDirName))
	}
	return dirs
}

type Options struct {
	// LegacyName writes ClockSpeeds.desktop instead of org.ClockSpeeds.desktop.
	LegacyName bool
	// Native launches this binary's terminal UI instead of launch.py.
	Native bool
}

type Installer struct {
	home       string
	resolver   *Resolver
	stdout     io.Writer
	executable func() (string, error)
	logger     zerolog.Logger
}

func NewInstaller(home string, resolver *Resolver, stdout io.Writer, logger zerolog.Logger) *Installer {
	return &Installer{
		home:       home,
		resolver:   resolver,
		stdout:     stdout,
		executable: os.Executable,
		logger:     logger,
	}
}

// ApplicationsDir is where per-user desktop entries live.
func (i *Installer) ApplicationsDir() string {
	return filepath.Join(i.home, ".local", "share", "applications")
}

func (i *Installer) EntryPath(opts Options) string {
	name := EntryName
	if opts.LegacyName {
		name = LegacyEntryName
	}
	return filepath.Join(i.ApplicationsDir(), name)
}

// Install locates the app directory and writes the desktop entry, replacing
// any previous one. Nothing is written when the directory is missing.
func (i *Installer) Install(ctx context.Context, opts Options) (string, error) {
	appDir, err := FindAppDir(i.home)
	if err != nil {
		if errors.Is(err, ErrAppDirNotFound) {
			fmt.Fprintln(i.stdout, NotFoundMessage)
		}
		return "", err
	}
	fmt.Fprintf(i.stdout, "Found ClockSpeeds directory at %s\n", appDir)

	entry, err := i.entry(ctx, appDir, opts)
	if err != nil {
		return "", err
	}

	if err := os.MkdirAll(i.ApplicationsDir(), 0o755); err != nil {
		return "", fmt.Errorf("create applications dir: %w", err)
	}
	path := i.EntryPath(opts)
	if err := os.WriteFile(path, entry.Render(), 0o755); err != nil {
		return "", fmt.Errorf("write desktop entry: %w", err)
	}
	// WriteFile keeps the mode of an existing file.
	if err := os.Chmod(path, 0o755); err != nil {
		return "", fmt.Errorf("mark desktop entry executable: %w", err)
	}

	i.logger.Info().Str("path", path).Str("exec", entry.Exec).Msg("desktop entry written")
	fmt.Fprintf(i.stdout, "Desktop entry created at %s\n", path)
	return path, nil
}

func (i *Installer) entry(ctx context.Context, appDir string, opts Options) (DesktopEntry, error) {
	if opts.Native {
		self, err := i.executable()
		if err != nil {
			return DesktopEntry{}, fmt.Errorf("resolve executable: %w", err)
		}
		return NewEntry(appDir, self+" monitor", true), nil
	}

	interpreter, found := i.resolver.Resolve(ctx)
	if found {
		fmt.Fprintf(i.stdout, "Using Python interpreter at %s\n", interpreter)
	} else {
		fmt.Fprintf(i.stdout, "Warning: Python 3 not found, defaulting to %s\n", interpreter)
	}
	return NewEntry(appDir, interpreter+" "+appDir+"/launch.py", false), nil
}
