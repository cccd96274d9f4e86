package export

import (
	"errors"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/dustin/go-humanize"
	"github.com/google/uuid"

	"github.com/Sagarsantra1/text-to-speech-generator/internal/audio"
)

var (
	// ErrNoArtifact is returned when nothing has been published yet.
	ErrNoArtifact = errors.New("no merged artifact available")
	// ErrRevoked is returned for handles that were superseded or released.
	ErrRevoked = errors.New("artifact handle has been revoked")
)

// Artifact is a published merged WAV file. Its ID is the revocable handle
// handed to consumers such as the download endpoint.
type Artifact struct {
	ID         string
	Data       []byte
	Format     audio.Format
	Duration   time.Duration
	Chunks     int
	Generation uint64
	CreatedAt  time.Time
}

// Size returns the encoded size in bytes.
func (a *Artifact) Size() int { return len(a.Data) }

// RevokedHandleLimit is how many superseded handles keep answering
// ErrRevoked. Older ones fall back to ErrNoArtifact.
const RevokedHandleLimit = 64

// Registry holds at most one valid artifact. Publishing a new artifact
// revokes the previous handle first.
type Registry struct {
	mu       sync.RWMutex
	current  *Artifact
	revoked  map[string]struct{}
	order    []string // revoked ids, oldest first
	onRevoke func(*Artifact)
	logger   *log.Logger
}

// RegistryOption configures a Registry.
type RegistryOption func(*Registry)

// WithLogger sets the logger used for publish and revoke events.
func WithLogger(l *log.Logger) RegistryOption {
	return func(r *Registry) { r.logger = l }
}

// WithRevokeHook registers fn to run after a handle is revoked.
func WithRevokeHook(fn func(*Artifact)) RegistryOption {
	return func(r *Registry) { r.onRevoke = fn }
}

// NewRegistry creates an empty registry.
func NewRegistry(opts ...RegistryOption) *Registry {
	r := &Registry{
		revoked: make(map[string]struct{}),
		logger:  log.WithPrefix("export"),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Publish installs m as the current artifact for the given queue generation
// and returns it. The previous artifact is revoked before the swap.
func (r *Registry) Publish(m *Merged, generation uint64) *Artifact {
	a := &Artifact{
		ID:         uuid.NewString(),
		Data:       m.Data,
		Format:     m.Format,
		Duration:   m.Duration,
		Chunks:     m.Chunks,
		Generation: generation,
		CreatedAt:  time.Now(),
	}

	r.mu.Lock()
	prev := r.revokeLocked()
	r.current = a
	r.mu.Unlock()

	r.afterRevoke(prev)
	r.logger.Debug("artifact published",
		"id", a.ID,
		"chunks", a.Chunks,
		"duration", a.Duration,
		"size", humanize.Bytes(uint64(a.Size())))
	return a
}

// Revoke releases the current artifact, if any.
func (r *Registry) Revoke() {
	r.mu.Lock()
	prev := r.revokeLocked()
	r.mu.Unlock()
	r.afterRevoke(prev)
}

// Current returns the valid artifact.
func (r *Registry) Current() (*Artifact, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.current == nil {
		return nil, ErrNoArtifact
	}
	return r.current, nil
}

// Get resolves a handle. Superseded handles return ErrRevoked.
func (r *Registry) Get(id string) (*Artifact, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.current != nil && r.current.ID == id {
		return r.current, nil
	}
	if _, ok := r.revoked[id]; ok {
		return nil, ErrRevoked
	}
	return nil, ErrNoArtifact
}

func (r *Registry) revokeLocked() *Artifact {
	prev := r.current
	if prev == nil {
		return nil
	}
	r.revoked[prev.ID] = struct{}{}
	r.order = append(r.order, prev.ID)
	if len(r.order) > RevokedHandleLimit {
		delete(r.revoked, r.order[0])
		r.order = r.order[1:]
	}
	r.current = nil
	return prev
}

func (r *Registry) afterRevoke(prev *Artifact) {
	if prev == nil {
		return
	}
	r.logger.Debug("artifact revoked", "id", prev.ID)
	if r.onRevoke != nil {
		r.onRevoke(prev)
	}
}
