package markers

import (
	"fmt"
	"slices"
	"sync"
)

// Surface is the map the controller draws on.
type Surface interface {
	AddMarker(m Marker, onClick func() error)
	RemoveMarker(id string)
	SetClusters(clusters []Cluster)
	ClearClusters()
	OpenInfo(w InfoWindow)
	CloseInfo()
}

// Snapshot is a point-in-time copy of a MemorySurface.
type Snapshot struct {
	Markers  []Marker    `json:"markers"`
	Clusters []Cluster   `json:"clusters"`
	Info     *InfoWindow `json:"info_window"`
}

type surfaceMarker struct {
	marker  Marker
	onClick func() error
}

// MemorySurface is an in-process Surface whose state is served to the client.
type MemorySurface struct {
	mu       sync.RWMutex
	markers  map[string]surfaceMarker
	order    []string
	clusters []Cluster
	info     *InfoWindow
}

var _ Surface = (*MemorySurface)(nil)

// NewMemorySurface returns an empty surface.
func NewMemorySurface() *MemorySurface {
	return &MemorySurface{markers: make(map[string]surfaceMarker)}
}

func (s *MemorySurface) AddMarker(m Marker, onClick func() error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.markers[m.ID]; !exists {
		s.order = append(s.order, m.ID)
	}
	s.markers[m.ID] = surfaceMarker{marker: m, onClick: onClick}
}

func (s *MemorySurface) RemoveMarker(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.markers[id]; !exists {
		return
	}
	delete(s.markers, id)
	s.order = slices.DeleteFunc(s.order, func(v string) bool { return v == id })
}

func (s *MemorySurface) SetClusters(clusters []Cluster) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.clusters = clusters
}

func (s *MemorySurface) ClearClusters() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.clusters = nil
}

func (s *MemorySurface) OpenInfo(w InfoWindow) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.info = &w
}

func (s *MemorySurface) CloseInfo() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.info = nil
}

// Trigger fires the click handler registered for id, as a user tap would.
func (s *MemorySurface) Trigger(id string) error {
	s.mu.RLock()
	m, ok := s.markers[id]
	s.mu.RUnlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownMarker, id)
	}
	return m.onClick()
}

// Len returns the number of attached markers.
func (s *MemorySurface) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.markers)
}

// Snapshot copies the current surface state.
func (s *MemorySurface) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snap := Snapshot{
		Markers:  make([]Marker, 0, len(s.order)),
		Clusters: make([]Cluster, 0, len(s.clusters)),
	}
	for _, id := range s.order {
		snap.Markers = append(snap.Markers, s.markers[id].marker)
	}
	for _, c := range s.clusters {
		c.MarkerIDs = slices.Clone(c.MarkerIDs)
		snap.Clusters = append(snap.Clusters, c)
	}
	if s.info != nil {
		info := *s.info
		snap.Info = &info
	}
	return snap
}
