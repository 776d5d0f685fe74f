package asset

import (
	"errors"
	"fmt"
	"sync"

	"github.com/Carmen-Shannon/oxy-editor/engine/renderer"
)

// Submesh is one indexed triangle list of a model, drawn with a single material slot.
type Submesh struct {
	materialIndex int
	vertices      []renderer.Vertex
	indices       []uint32
	mesh          renderer.MeshBuffer
}

// NewSubmesh creates a submesh referencing material slot materialIndex of its mesh renderer.
func NewSubmesh(materialIndex int, vertices []renderer.Vertex, indices []uint32) *Submesh {
	return &Submesh{
		materialIndex: materialIndex,
		vertices:      vertices,
		indices:       indices,
	}
}

func (s *Submesh) MaterialIndex() int            { return s.materialIndex }
func (s *Submesh) Vertices() []renderer.Vertex   { return s.vertices }
func (s *Submesh) Indices() []uint32             { return s.indices }
func (s *Submesh) Mesh() renderer.MeshBuffer     { return s.mesh }
func (s *Submesh) TriangleCount() int            { return len(s.indices) / 3 }
func (s *Submesh) setMesh(m renderer.MeshBuffer) { s.mesh = m }

// model is the implementation of the Model interface.
type model struct {
	mu *sync.Mutex

	id        ID
	name      string
	submeshes []*Submesh
	uploaded  bool
}

// Model is a set of submeshes sharing one transform.
type Model interface {
	Payload

	ID() ID
	Name() string

	// Submeshes returns the model's submeshes in declaration order.
	Submeshes() []*Submesh

	// Upload creates a GPU mesh buffer for every submesh that does not have one yet.
	//
	// Parameters:
	//   - api: the renderer API to allocate through
	//
	// Returns:
	//   - error: the joined upload errors, submeshes that failed keep a nil Mesh
	Upload(api renderer.API) error

	// Uploaded reports whether every submesh has a mesh buffer.
	Uploaded() bool

	// Release frees every submesh mesh buffer.
	Release(api renderer.API)

	// VertexCount returns the total vertex count across submeshes.
	VertexCount() int

	// TriangleCount returns the total triangle count across submeshes.
	TriangleCount() int
}

var _ Model = &model{}

// NewModel creates a model from its submeshes. Mesh buffers are created by Upload.
//
// Parameters:
//   - id: the asset ID
//   - name: a human-readable name, used to label GPU buffers
//   - submeshes: the model's submeshes
//
// Returns:
//   - Model: the new model
func NewModel(id ID, name string, submeshes ...*Submesh) Model {
	return &model{
		mu:        &sync.Mutex{},
		id:        id,
		name:      name,
		submeshes: submeshes,
	}
}

func (m *model) assetKind() Kind { return KindModel }

func (m *model) ID() ID                { return m.id }
func (m *model) Name() string          { return m.name }
func (m *model) Submeshes() []*Submesh { return m.submeshes }

func (m *model) Upload(api renderer.API) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	var errs []error
	for i, s := range m.submeshes {
		if s.mesh != nil {
			continue
		}
		mesh, err := api.CreateMeshBuffer(fmt.Sprintf("%s/%d", m.name, i), s.vertices, s.indices)
		if err != nil {
			errs = append(errs, fmt.Errorf("upload %s submesh %d: %w", m.name, i, err))
			continue
		}
		s.setMesh(mesh)
	}
	m.uploaded = len(errs) == 0
	return errors.Join(errs...)
}

func (m *model) Uploaded() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.uploaded
}

func (m *model) Release(api renderer.API) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range m.submeshes {
		if s.mesh != nil {
			api.ReleaseMeshBuffer(s.mesh)
			s.setMesh(nil)
		}
	}
	m.uploaded = false
}

func (m *model) VertexCount() int {
	n := 0
	for _, s := range m.submeshes {
		n += len(s.vertices)
	}
	return n
}

func (m *model) TriangleCount() int {
	n := 0
	for _, s := range m.submeshes {
		n += s.TriangleCount()
	}
	return n
}
