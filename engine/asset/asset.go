package asset

import (
	"errors"
	"fmt"
	"sync"
)

// ID is a stable asset identifier. The zero ID is the null reference.
type ID uint64

// NullID is the null asset reference.
const NullID ID = 0

// Kind names the payload variant an Asset carries. It is informational; payload access goes
// through As.
type Kind int

const (
	KindModel Kind = iota
	KindMaterial
)

func (k Kind) String() string {
	switch k {
	case KindModel:
		return "model"
	case KindMaterial:
		return "material"
	default:
		return "unknown"
	}
}

// Payload is implemented by every asset variant. The unexported method seals the set.
type Payload interface {
	assetKind() Kind
}

var (
	// ErrNullID is returned when registering an asset with the null ID.
	ErrNullID = errors.New("asset: null id")

	// ErrDuplicateID is returned when registering an ID that is already present.
	ErrDuplicateID = errors.New("asset: duplicate id")
)

// Asset is a named, identified payload.
type Asset struct {
	id      ID
	name    string
	payload Payload
}

// New wraps a payload as an asset.
//
// Parameters:
//   - id: the stable asset ID
//   - name: a human-readable name
//   - payload: the variant payload
//
// Returns:
//   - *Asset: the wrapped asset
func New(id ID, name string, payload Payload) *Asset {
	return &Asset{id: id, name: name, payload: payload}
}

func (a *Asset) ID() ID       { return a.id }
func (a *Asset) Name() string { return a.name }

// Kind returns the payload variant, or -1 for an empty asset.
func (a *Asset) Kind() Kind {
	if a == nil || a.payload == nil {
		return -1
	}
	return a.payload.assetKind()
}

// As returns the asset's payload as T. It is the single type-safe accessor for asset payloads.
//
// Parameters:
//   - a: the asset, may be nil
//
// Returns:
//   - T: the payload
//   - bool: false when a is nil or its payload is not a T
func As[T Payload](a *Asset) (T, bool) {
	var zero T
	if a == nil || a.payload == nil {
		return zero, false
	}
	p, ok := a.payload.(T)
	if !ok {
		return zero, false
	}
	return p, true
}

// registry is the implementation of the Registry interface.
type registry struct {
	mu     *sync.RWMutex
	assets map[ID]*Asset
}

// Registry resolves asset IDs to assets. It is safe for concurrent use: the draw-call worker
// resolves models and materials while the editor registers new ones.
type Registry interface {
	// Register adds an asset.
	//
	// Parameters:
	//   - a: the asset to add
	//
	// Returns:
	//   - error: ErrNullID or ErrDuplicateID
	Register(a *Asset) error

	// Remove deletes an asset. Removing an unknown ID is a no-op.
	Remove(id ID)

	// Get returns the asset for id.
	Get(id ID) (*Asset, bool)

	// Material returns the Material payload for id.
	Material(id ID) (Material, bool)

	// Model returns the Model payload for id.
	Model(id ID) (Model, bool)

	// Len returns the number of registered assets.
	Len() int
}

var _ Registry = &registry{}

// NewRegistry creates an empty Registry.
func NewRegistry() Registry {
	return &registry{
		mu:     &sync.RWMutex{},
		assets: make(map[ID]*Asset),
	}
}

func (r *registry) Register(a *Asset) error {
	if a == nil || a.id == NullID {
		return ErrNullID
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.assets[a.id]; ok {
		return fmt.Errorf("%w: %d", ErrDuplicateID, a.id)
	}
	r.assets[a.id] = a
	return nil
}

func (r *registry) Remove(id ID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.assets, id)
}

func (r *registry) Get(id ID) (*Asset, bool) {
	if id == NullID {
		return nil, false
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.assets[id]
	return a, ok
}

func (r *registry) Material(id ID) (Material, bool) {
	a, _ := r.Get(id)
	return As[Material](a)
}

func (r *registry) Model(id ID) (Model, bool) {
	a, _ := r.Get(id)
	return As[Model](a)
}

func (r *registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.assets)
}
