package runtime

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/yungbote/qalam-backend/internal/platform/envutil"
)

type Handler interface {
	Type() string
	Run(ctx *Context) error
}

// Spec is the per-kind execution policy. Zero values mean "use the default".
type Spec struct {
	Timeout     time.Duration
	MaxAttempts int
	QueueCap    int
}

// SpecProvider is implemented by handlers that ship their own defaults.
type SpecProvider interface {
	Spec() Spec
}

const (
	DefaultTimeout  = 30 * time.Minute
	DefaultQueueCap = 100
)

type Registry struct {
	mu       sync.RWMutex
	handlers map[string]Handler
	specs    map[string]Spec
}

func NewRegistry() *Registry {
	return &Registry{
		handlers: make(map[string]Handler),
		specs:    make(map[string]Spec),
	}
}

func (r *Registry) Register(h Handler) error {
	if h == nil {
		return fmt.Errorf("nil handler")
	}
	t := h.Type()
	if t == "" {
		return fmt.Errorf("handler Type() is empty")
	}
	var spec Spec
	if sp, ok := h.(SpecProvider); ok {
		spec = sp.Spec()
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.handlers[t]; exists {
		return fmt.Errorf("handler already registered for kind=%s", t)
	}
	r.handlers[t] = h
	r.specs[t] = resolveSpec(t, spec)
	return nil
}

// MustRegister panics on registration errors; used at process wiring time.
func (r *Registry) MustRegister(hs ...Handler) {
	for _, h := range hs {
		if err := r.Register(h); err != nil {
			panic(err)
		}
	}
}

func (r *Registry) Get(kind string) (Handler, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.handlers[kind]
	return h, ok
}

// Spec returns the resolved policy for kind, with env overrides applied.
func (r *Registry) Spec(kind string) Spec {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if s, ok := r.specs[kind]; ok {
		return s
	}
	return resolveSpec(kind, Spec{})
}

func (r *Registry) Kinds() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.handlers))
	for k := range r.handlers {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func resolveSpec(kind string, s Spec) Spec {
	if s.Timeout <= 0 {
		s.Timeout = DefaultTimeout
	}
	if s.MaxAttempts <= 0 {
		s.MaxAttempts = 1
	}
	if s.QueueCap <= 0 {
		s.QueueCap = envutil.Int("TASK_QUEUE_CAP", DefaultQueueCap)
	}
	key := envutil.KindKey(kind)
	s.Timeout = envutil.Seconds("TASK_TIMEOUT_"+key+"_SECONDS", s.Timeout)
	s.QueueCap = envutil.Int("TASK_QUEUE_CAP_"+key, s.QueueCap)
	s.MaxAttempts = envutil.Int("TASK_MAX_ATTEMPTS_"+key, s.MaxAttempts)
	if s.MaxAttempts < 1 {
		s.MaxAttempts = 1
	}
	return s
}

// HandlerFunc adapts a function into a Handler, mostly for tests and small kinds.
type HandlerFunc struct {
	Kind   string
	Policy Spec
	Fn     func(ctx *Context) error
}

func (h HandlerFunc) Type() string            { return h.Kind }
func (h HandlerFunc) Spec() Spec              { return h.Policy }
func (h HandlerFunc) Run(ctx *Context) error { return h.Fn(ctx) }
