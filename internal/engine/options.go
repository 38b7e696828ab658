package engine

import (
	"time"

	"github.com/gitmerge/gitmerge/internal/conflicts"
	"github.com/gitmerge/gitmerge/internal/git"
	"github.com/gitmerge/gitmerge/internal/log"
	"github.com/gitmerge/gitmerge/internal/progress"
	"github.com/gitmerge/gitmerge/internal/retry"
	"github.com/gitmerge/gitmerge/internal/vfs"
)

const (
	DefaultCloneDepth  = 1
	DefaultDeepenDepth = 50

	DefaultAuthorName  = "Git Merge Manager"
	DefaultAuthorEmail = "git-merge-manager@example.com"
)

// DefaultBranches is reported by ListBranches when the remote cannot be
// listed.
var DefaultBranches = []string{"main", "develop", "feature/user-auth", "feature/git-merge"}

type Option func(e *Engine)

func WithStorage(s vfs.Storage) Option {
	return func(e *Engine) {
		if s != nil {
			e.storage = s
		}
	}
}

func WithTransport(t git.Transport) Option {
	return func(e *Engine) {
		if t != nil {
			e.transport = t
		}
	}
}

// WithStore publishes conflict state into s instead of a private store.
func WithStore(s *conflicts.Store) Option {
	return func(e *Engine) {
		if s != nil {
			e.store = s
		}
	}
}

func WithAuthor(name, email string) Option {
	return func(e *Engine) {
		if name != "" {
			e.authorName = name
		}
		if email != "" {
			e.authorEmail = email
		}
	}
}

func WithRetry(opts retry.Options) Option {
	return func(e *Engine) {
		e.retry = opts
	}
}

func WithObserver(o progress.Observer) Option {
	return func(e *Engine) {
		if o != nil {
			e.observer = o
		}
	}
}

func WithLogger(l log.Logger) Option {
	return func(e *Engine) {
		e.logger = l
	}
}

// WithCloneDepth sets the history depth of the initial clone and of
// on-demand branch fetches. Zero fetches full history.
func WithCloneDepth(depth int) Option {
	return func(e *Engine) {
		if depth >= 0 {
			e.cloneDepth = depth
		}
	}
}

// WithDeepenDepth sets how much history is fetched when a shallow clone
// lacks the merge base.
func WithDeepenDepth(depth int) Option {
	return func(e *Engine) {
		if depth > 0 {
			e.deepenDepth = depth
		}
	}
}

func WithDefaultBranches(branches []string) Option {
	return func(e *Engine) {
		if len(branches) > 0 {
			e.defaultBranches = append([]string(nil), branches...)
		}
	}
}

// WithClock overrides the commit timestamp source.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		if now != nil {
			e.now = now
		}
	}
}
