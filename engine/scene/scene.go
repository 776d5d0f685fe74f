package scene

import (
	"errors"
	"fmt"
	"slices"
	"sync"
	"sync/atomic"

	"github.com/Carmen-Shannon/oxy-editor/engine/asset"
	"github.com/Carmen-Shannon/oxy-editor/engine/renderer"
	"github.com/go-gl/mathgl/mgl32"
)

// Entity is a handle to a scene entity. The zero handle is the null entity.
type Entity uint32

// NullEntity is the null entity handle. It never names a live entity.
const NullEntity Entity = 0

var (
	// ErrUnknownEntity is returned for handles that do not name a live entity.
	ErrUnknownEntity = errors.New("scene: unknown entity")

	// ErrRootImmutable is returned when destroying or reparenting the root entity.
	ErrRootImmutable = errors.New("scene: root entity cannot be destroyed or reparented")

	// ErrParentCycle is returned when a reparent would make an entity its own ancestor.
	ErrParentCycle = errors.New("scene: parent cycle")
)

// RenderableSnapshot is an immutable copy of one drawable entity, taken under the scene's read
// lock. Draw-call extraction runs on snapshots so editing can continue while it works.
type RenderableSnapshot struct {
	Entity     Entity
	World      mgl32.Mat4
	Model      asset.ID
	Materials  map[int]asset.ID
	Hidden     bool
	CastShadow bool
}

type node struct {
	name     string
	parent   Entity
	children []Entity

	transform    *TransformComponent
	meshRenderer *MeshRendererComponent
}

// scene is the implementation of the Scene interface.
type scene struct {
	mu *sync.RWMutex

	name     string
	nodes    map[Entity]*node
	order    []Entity
	root     Entity
	nextID   Entity
	settings Settings
	orphans  []renderer.MeshBuffer

	generation atomic.Uint64
}

// Scene is the editor's entity hierarchy. Every entity except the root has exactly one parent and
// appears exactly once in that parent's child list. Thread-safe for concurrent access: structural
// edits take the write lock and Snapshot takes the read lock.
type Scene interface {
	// Name returns the scene's name.
	Name() string

	// Root returns the root entity. It has no parent and is never destroyed.
	Root() Entity

	// Settings returns the scene's render settings.
	Settings() Settings

	// Generation returns a counter that increases on every edit that can change what is drawn.
	//
	// Returns:
	//   - uint64: the current generation
	Generation() uint64

	// CreateEntity creates an entity with an identity transform.
	//
	// Parameters:
	//   - name: the display name
	//   - parent: the parent entity, NullEntity for the root
	//
	// Returns:
	//   - Entity: the new entity
	//   - error: ErrUnknownEntity if parent is not live
	CreateEntity(name string, parent Entity) (Entity, error)

	// DestroyEntity destroys an entity and all of its descendants.
	//
	// Parameters:
	//   - e: the entity to destroy
	//
	// Returns:
	//   - error: ErrRootImmutable for the root, ErrUnknownEntity if e is not live
	DestroyEntity(e Entity) error

	// Contains reports whether e names a live entity.
	Contains(e Entity) bool

	// EntityName returns the display name of e.
	EntityName(e Entity) (string, error)

	// Entities returns every live entity in creation order.
	Entities() []Entity

	// Parent returns the parent of e. The root's parent is NullEntity.
	Parent(e Entity) (Entity, error)

	// Children returns a copy of e's ordered child list.
	Children(e Entity) ([]Entity, error)

	// SetParent moves child under newParent, appending it to the end of the new parent's list.
	// Setting the current parent again is a no-op.
	//
	// Parameters:
	//   - child: the entity to move
	//   - newParent: the new parent, NullEntity for the root
	//
	// Returns:
	//   - error: ErrRootImmutable, ErrUnknownEntity, or ErrParentCycle when newParent is child or
	//     one of its descendants
	SetParent(child, newParent Entity) error

	// AddChild is SetParent(child, parent).
	AddChild(parent, child Entity) error

	// RemoveChild detaches child from parent and reattaches it to the root. It is a no-op when
	// child is not a child of parent.
	RemoveChild(parent, child Entity) error

	// ChildIndex returns the position of e in its parent's child list.
	ChildIndex(e Entity) (int, error)

	// SetChildIndex moves e within its parent's child list. The index is clamped to the list.
	SetChildIndex(e Entity, index int) error

	// Transform returns the transform of e, or nil when it has none.
	Transform(e Entity) *TransformComponent

	// AddTransform attaches an identity transform to e, or returns the existing one.
	AddTransform(e Entity) (*TransformComponent, error)

	// WorldMatrix returns e's local matrix composed with every ancestor's local matrix.
	// Entities without a transform contribute the identity.
	WorldMatrix(e Entity) (mgl32.Mat4, error)

	// MeshRenderer returns the mesh renderer of e, or nil when it has none.
	MeshRenderer(e Entity) *MeshRendererComponent

	// AddMeshRenderer attaches a mesh renderer for model to e, replacing any existing one.
	//
	// Parameters:
	//   - e: the entity
	//   - model: the model asset to draw
	//
	// Returns:
	//   - *MeshRendererComponent: the attached component
	//   - error: ErrUnknownEntity if e is not live
	AddMeshRenderer(e Entity, model asset.ID) (*MeshRendererComponent, error)

	// RemoveMeshRenderer detaches e's mesh renderer. It is a no-op when e has none.
	RemoveMeshRenderer(e Entity) error

	// Snapshot copies every entity that has both a transform and a mesh renderer, in creation
	// order, with world matrices resolved.
	//
	// Returns:
	//   - []RenderableSnapshot: the copied renderables
	Snapshot() []RenderableSnapshot

	// DrainOrphanedIDMeshes returns the cached id meshes of destroyed entities and removed mesh
	// renderers, plus every component's stale id meshes. The caller owns releasing them.
	DrainOrphanedIDMeshes() []renderer.MeshBuffer

	// DrainAllIDMeshes is DrainOrphanedIDMeshes plus every live component's current id mesh.
	// Used when a renderer detaches from the scene.
	DrainAllIDMeshes() []renderer.MeshBuffer
}

var _ Scene = &scene{}

// NewScene creates a scene holding only its root entity.
//
// Parameters:
//   - name: the name of the scene
//   - options: functional options to further configure the scene
//
// Returns:
//   - Scene: the newly created scene
func NewScene(name string, options ...SceneBuilderOption) Scene {
	s := &scene{
		mu:     &sync.RWMutex{},
		name:   name,
		nodes:  make(map[Entity]*node),
		nextID: 1,
	}
	for _, option := range options {
		option(s)
	}
	if s.settings == nil {
		s.settings = NewSettings(DefaultSettings())
	}

	s.root = s.newNode("Root", NullEntity)
	return s
}

func (s *scene) bump() { s.generation.Add(1) }

// newNode must be called with the write lock held (or before the scene is shared).
func (s *scene) newNode(name string, parent Entity) Entity {
	e := s.nextID
	s.nextID++

	t := NewTransform()
	t.setOnChange(s.bump)
	s.nodes[e] = &node{name: name, parent: parent, transform: t}
	s.order = append(s.order, e)
	if p, ok := s.nodes[parent]; ok {
		p.children = append(p.children, e)
	}
	return e
}

func (s *scene) lookup(e Entity) (*node, error) {
	n, ok := s.nodes[e]
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrUnknownEntity, e)
	}
	return n, nil
}

func (s *scene) Name() string       { return s.name }
func (s *scene) Root() Entity       { return s.root }
func (s *scene) Settings() Settings { return s.settings }
func (s *scene) Generation() uint64 { return s.generation.Load() }

func (s *scene) CreateEntity(name string, parent Entity) (Entity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if parent == NullEntity {
		parent = s.root
	}
	if _, err := s.lookup(parent); err != nil {
		return NullEntity, err
	}
	e := s.newNode(name, parent)
	s.bump()
	return e, nil
}

func (s *scene) DestroyEntity(e Entity) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if e == s.root {
		return ErrRootImmutable
	}
	n, err := s.lookup(e)
	if err != nil {
		return err
	}
	if p, ok := s.nodes[n.parent]; ok {
		p.children = slices.DeleteFunc(p.children, func(c Entity) bool { return c == e })
	}

	doomed := map[Entity]struct{}{}
	stack := []Entity{e}
	for len(stack) > 0 {
		cur := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		cn := s.nodes[cur]
		stack = append(stack, cn.children...)
		if cn.meshRenderer != nil {
			s.orphans = append(s.orphans, cn.meshRenderer.drain()...)
			cn.meshRenderer.setOnChange(nil)
		}
		cn.transform.setOnChange(nil)
		delete(s.nodes, cur)
		doomed[cur] = struct{}{}
	}
	s.order = slices.DeleteFunc(s.order, func(c Entity) bool {
		_, gone := doomed[c]
		return gone
	})
	s.bump()
	return nil
}

func (s *scene) Contains(e Entity) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.nodes[e]
	return ok
}

func (s *scene) EntityName(e Entity) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n, err := s.lookup(e)
	if err != nil {
		return "", err
	}
	return n.name, nil
}

func (s *scene) Entities() []Entity {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.order)
}

func (s *scene) Parent(e Entity) (Entity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n, err := s.lookup(e)
	if err != nil {
		return NullEntity, err
	}
	return n.parent, nil
}

func (s *scene) Children(e Entity) ([]Entity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n, err := s.lookup(e)
	if err != nil {
		return nil, err
	}
	return slices.Clone(n.children), nil
}

func (s *scene) SetParent(child, newParent Entity) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.setParent(child, newParent)
}

func (s *scene) setParent(child, newParent Entity) error {
	if child == s.root {
		return ErrRootImmutable
	}
	if newParent == NullEntity {
		newParent = s.root
	}
	cn, err := s.lookup(child)
	if err != nil {
		return err
	}
	pn, err := s.lookup(newParent)
	if err != nil {
		return err
	}
	if cn.parent == newParent {
		return nil
	}
	for a := newParent; a != NullEntity; a = s.nodes[a].parent {
		if a == child {
			return fmt.Errorf("%w: %d under %d", ErrParentCycle, child, newParent)
		}
	}

	if old, ok := s.nodes[cn.parent]; ok {
		old.children = slices.DeleteFunc(old.children, func(c Entity) bool { return c == child })
	}
	pn.children = append(pn.children, child)
	cn.parent = newParent
	s.bump()
	return nil
}

func (s *scene) AddChild(parent, child Entity) error {
	return s.SetParent(child, parent)
}

func (s *scene) RemoveChild(parent, child Entity) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.lookup(parent); err != nil {
		return err
	}
	cn, err := s.lookup(child)
	if err != nil {
		return err
	}
	if cn.parent != parent {
		return nil
	}
	return s.setParent(child, s.root)
}

func (s *scene) ChildIndex(e Entity) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	n, err := s.lookup(e)
	if err != nil {
		return -1, err
	}
	p, ok := s.nodes[n.parent]
	if !ok {
		return 0, nil
	}
	return slices.Index(p.children, e), nil
}

func (s *scene) SetChildIndex(e Entity, index int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	n, err := s.lookup(e)
	if err != nil {
		return err
	}
	p, ok := s.nodes[n.parent]
	if !ok {
		return ErrRootImmutable
	}
	cur := slices.Index(p.children, e)
	index = max(0, min(index, len(p.children)-1))
	if cur == index {
		return nil
	}
	p.children = slices.Delete(p.children, cur, cur+1)
	p.children = slices.Insert(p.children, index, e)
	s.bump()
	return nil
}

func (s *scene) Transform(e Entity) *TransformComponent {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if n, ok := s.nodes[e]; ok {
		return n.transform
	}
	return nil
}

func (s *scene) AddTransform(e Entity) (*TransformComponent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	n, err := s.lookup(e)
	if err != nil {
		return nil, err
	}
	if n.transform == nil {
		n.transform = NewTransform()
		n.transform.setOnChange(s.bump)
		s.bump()
	}
	return n.transform, nil
}

func (s *scene) WorldMatrix(e Entity) (mgl32.Mat4, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if _, err := s.lookup(e); err != nil {
		return mgl32.Ident4(), err
	}
	return s.world(e), nil
}

// world must be called with at least the read lock held.
func (s *scene) world(e Entity) mgl32.Mat4 {
	m := mgl32.Ident4()
	for cur := e; cur != NullEntity; {
		n, ok := s.nodes[cur]
		if !ok {
			break
		}
		if n.transform != nil {
			m = n.transform.Matrix().Mul4(m)
		}
		cur = n.parent
	}
	return m
}

func (s *scene) MeshRenderer(e Entity) *MeshRendererComponent {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if n, ok := s.nodes[e]; ok {
		return n.meshRenderer
	}
	return nil
}

func (s *scene) AddMeshRenderer(e Entity, model asset.ID) (*MeshRendererComponent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	n, err := s.lookup(e)
	if err != nil {
		return nil, err
	}
	if n.meshRenderer != nil {
		s.orphans = append(s.orphans, n.meshRenderer.drain()...)
		n.meshRenderer.setOnChange(nil)
	}
	mr := NewMeshRenderer(model)
	mr.setOnChange(s.bump)
	n.meshRenderer = mr
	s.bump()
	return mr, nil
}

func (s *scene) RemoveMeshRenderer(e Entity) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	n, err := s.lookup(e)
	if err != nil {
		return err
	}
	if n.meshRenderer == nil {
		return nil
	}
	s.orphans = append(s.orphans, n.meshRenderer.drain()...)
	n.meshRenderer.setOnChange(nil)
	n.meshRenderer = nil
	s.bump()
	return nil
}

func (s *scene) Snapshot() []RenderableSnapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]RenderableSnapshot, 0, len(s.order))
	for _, e := range s.order {
		n := s.nodes[e]
		if n.transform == nil || n.meshRenderer == nil {
			continue
		}
		mr := n.meshRenderer
		out = append(out, RenderableSnapshot{
			Entity:     e,
			World:      s.world(e),
			Model:      mr.Model(),
			Materials:  mr.Materials(),
			Hidden:     mr.Hidden(),
			CastShadow: mr.CastShadow(),
		})
	}
	return out
}

func (s *scene) DrainOrphanedIDMeshes() []renderer.MeshBuffer {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := s.orphans
	s.orphans = nil
	for _, e := range s.order {
		if mr := s.nodes[e].meshRenderer; mr != nil {
			out = append(out, mr.DrainStaleIDMeshes()...)
		}
	}
	return out
}

func (s *scene) DrainAllIDMeshes() []renderer.MeshBuffer {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := s.orphans
	s.orphans = nil
	for _, e := range s.order {
		if mr := s.nodes[e].meshRenderer; mr != nil {
			out = append(out, mr.drain()...)
		}
	}
	return out
}
