package session

import (
	"context"
	"errors"
	"sort"

	"github.com/cornelk/hashmap"
	"github.com/sirupsen/logrus"

	"github.com/srg/fpctl/internal/device"
)

// Registry holds one session per sensor, keyed by normalized identifier
type Registry struct {
	sessions *hashmap.Map[string, *Session]
	opts     Options
	logger   *logrus.Logger
}

// NewRegistry creates an empty registry; every session it creates shares opts
func NewRegistry(opts *Options) *Registry {
	var o Options
	if opts != nil {
		o = *opts
	}
	if o.Logger == nil {
		o.Logger = logrus.New()
	}
	return &Registry{
		sessions: hashmap.New[string, *Session](),
		opts:     o,
		logger:   o.Logger,
	}
}

// GetOrCreate returns the session for identifier, creating it on first use
func (r *Registry) GetOrCreate(identifier string) *Session {
	key := device.NormalizeID(identifier)
	if s, ok := r.sessions.Get(key); ok {
		return s
	}
	s, _ := r.sessions.GetOrInsert(key, New(identifier, &r.opts))
	return s
}

// Get returns the session for identifier, if any
func (r *Registry) Get(identifier string) (*Session, bool) {
	return r.sessions.Get(device.NormalizeID(identifier))
}

// Len returns the number of sessions
func (r *Registry) Len() int {
	return r.sessions.Len()
}

// Sessions returns every session sorted by identifier
func (r *Registry) Sessions() []*Session {
	out := make([]*Session, 0, r.sessions.Len())
	r.sessions.Range(func(_ string, s *Session) bool {
		out = append(out, s)
		return true
	})
	sort.Slice(out, func(i, j int) bool { return out[i].Identifier() < out[j].Identifier() })
	return out
}

// All runs fn over every session one after another, the radio being a shared
// resource. A failure on one sensor does not stop the others; a fatal error or
// a cancelled context does. The joined errors are returned.
func (r *Registry) All(ctx context.Context, fn func(context.Context, *Session) error) error {
	var errs []error
	for _, s := range r.Sessions() {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}
		err := fn(ctx, s)
		if err == nil {
			continue
		}
		r.logger.WithError(err).WithField("device", s.Identifier()).Warn("Session operation failed")
		errs = append(errs, err)
		if IsFatal(err) {
			break
		}
	}
	return errors.Join(errs...)
}
