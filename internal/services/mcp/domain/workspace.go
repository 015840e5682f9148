package domain

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	apperrors "github.com/louisbranch/talespin/internal/platform/errors"
	"github.com/louisbranch/talespin/internal/story/play"
	"github.com/louisbranch/talespin/internal/story/policy"
	"github.com/louisbranch/talespin/internal/story/script"
)

// ErrNoStory is returned by session tools before story_open succeeds.
var ErrNoStory = errors.New("no story is open; call story_open first")

// ResourceUpdateNotifier tells subscribed clients that a resource changed.
type ResourceUpdateNotifier func(ctx context.Context, uri string)

// Options configures a Workspace.
type Options struct {
	Policy  policy.Policy
	Session play.Options
	// Root confines story_open paths when set.
	Root string
}

// Workspace holds the story currently open over MCP.
type Workspace struct {
	mu      sync.RWMutex
	opts    Options
	path    string
	session *play.Session
}

// NewWorkspace returns an empty workspace.
func NewWorkspace(opts Options) *Workspace {
	return &Workspace{opts: opts}
}

// Open compiles the script at path and replaces the current session.
func (w *Workspace) Open(path string) (*play.Session, error) {
	resolved, err := w.resolve(path)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(resolved)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CodeIOFailure, "read script", err)
	}
	compiled, err := script.Compile(data, w.opts.Policy)
	if err != nil {
		return nil, err
	}
	return w.Attach(resolved, compiled)
}

// Attach starts a session for an already compiled script.
func (w *Workspace) Attach(path string, compiled *script.Compiled) (*play.Session, error) {
	session, err := play.NewSession(compiled, w.opts.Session)
	if err != nil {
		return nil, err
	}
	w.mu.Lock()
	w.path = path
	w.session = session
	w.mu.Unlock()
	return session, nil
}

// Session returns the open session or ErrNoStory.
func (w *Workspace) Session() (*play.Session, error) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	if w.session == nil {
		return nil, ErrNoStory
	}
	return w.session, nil
}

// Path returns the path of the open script.
func (w *Workspace) Path() string {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.path
}

func (w *Workspace) resolve(path string) (string, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return "", fmt.Errorf("path is required")
	}
	if w.opts.Root == "" {
		return path, nil
	}
	if !filepath.IsLocal(path) {
		return "", fmt.Errorf("path %q escapes the story root", path)
	}
	return filepath.Join(w.opts.Root, path), nil
}
