package scene

import (
	"maps"
	"sync"

	"github.com/Carmen-Shannon/oxy-editor/engine/asset"
	"github.com/Carmen-Shannon/oxy-editor/engine/renderer"
)

// MeshRendererComponent makes an entity drawable: a model asset plus one material per submesh
// material slot. Slots with no material, or a null material, are skipped when drawing.
type MeshRendererComponent struct {
	mu *sync.Mutex

	model      asset.ID
	materials  map[int]asset.ID
	hidden     bool
	castShadow bool

	// idMesh is the model's submeshes merged into one buffer for the picking pass.
	idMesh renderer.MeshBuffer
	stale  []renderer.MeshBuffer

	onChange func()
}

// NewMeshRenderer creates a mesh renderer for model with no materials assigned.
func NewMeshRenderer(model asset.ID) *MeshRendererComponent {
	return &MeshRendererComponent{
		mu:         &sync.Mutex{},
		model:      model,
		materials:  make(map[int]asset.ID),
		castShadow: true,
	}
}

func (m *MeshRendererComponent) Model() asset.ID {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.model
}

// SetModel replaces the model. A cached id mesh built for the previous model becomes stale and
// is handed out by DrainStaleIDMeshes.
func (m *MeshRendererComponent) SetModel(id asset.ID) {
	m.mutate(func() {
		if id == m.model {
			return
		}
		m.model = id
		if m.idMesh != nil {
			m.stale = append(m.stale, m.idMesh)
			m.idMesh = nil
		}
	})
}

// Material returns the material assigned to a submesh slot, or asset.NullID.
func (m *MeshRendererComponent) Material(slot int) asset.ID {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.materials[slot]
}

// SetMaterial assigns a material to a submesh slot. Assigning asset.NullID clears the slot.
func (m *MeshRendererComponent) SetMaterial(slot int, id asset.ID) {
	m.mutate(func() {
		if id == asset.NullID {
			delete(m.materials, slot)
			return
		}
		m.materials[slot] = id
	})
}

// Materials returns a copy of the slot to material map.
func (m *MeshRendererComponent) Materials() map[int]asset.ID {
	m.mu.Lock()
	defer m.mu.Unlock()
	return maps.Clone(m.materials)
}

func (m *MeshRendererComponent) Hidden() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.hidden
}

func (m *MeshRendererComponent) SetHidden(hidden bool) {
	m.mutate(func() { m.hidden = hidden })
}

func (m *MeshRendererComponent) CastShadow() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.castShadow
}

func (m *MeshRendererComponent) SetCastShadow(cast bool) {
	m.mutate(func() { m.castShadow = cast })
}

// IDMesh returns the cached merged id mesh for the current model, or nil when it has not been
// built yet.
func (m *MeshRendererComponent) IDMesh() renderer.MeshBuffer {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.idMesh
}

// SetIDMesh caches mesh as the merged id mesh for model. When the component has moved on to
// another model since the mesh was built, the mesh is not cached; it goes straight to the stale
// list and false is returned. A previously cached mesh becomes stale.
func (m *MeshRendererComponent) SetIDMesh(model asset.ID, mesh renderer.MeshBuffer) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if model != m.model {
		if mesh != nil {
			m.stale = append(m.stale, mesh)
		}
		return false
	}
	if m.idMesh != nil && m.idMesh != mesh {
		m.stale = append(m.stale, m.idMesh)
	}
	m.idMesh = mesh
	return true
}

// DrainStaleIDMeshes returns the id meshes invalidated since the last call and forgets them.
// The caller owns releasing them.
func (m *MeshRendererComponent) DrainStaleIDMeshes() []renderer.MeshBuffer {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := m.stale
	m.stale = nil
	return out
}

// drain returns every id mesh the component holds, current and stale.
func (m *MeshRendererComponent) drain() []renderer.MeshBuffer {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := m.stale
	if m.idMesh != nil {
		out = append(out, m.idMesh)
	}
	m.stale = nil
	m.idMesh = nil
	return out
}

func (m *MeshRendererComponent) mutate(fn func()) {
	m.mu.Lock()
	fn()
	onChange := m.onChange
	m.mu.Unlock()

	if onChange != nil {
		onChange()
	}
}

func (m *MeshRendererComponent) setOnChange(fn func()) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onChange = fn
}
