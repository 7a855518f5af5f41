package locationgroup

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"

	"github.com/nerrad567/gray-logic-lifx/internal/light"
	"github.com/nerrad567/gray-logic-lifx/internal/service"
)

// Listener is told about structural changes to the tree.
// Callbacks run after the tree lock is released.
type Listener interface {
	LocationAdded(loc Location)
	GroupAdded(loc Location, grp Group)
	LocationGroupChanged(loc Location, grp Group, l *light.Light)
	GroupRemoved(loc Location, grp Group)
	LocationRemoved(loc Location)
}

// Logger interface for optional logging.
type Logger interface {
	Debug(msg string, keysAndValues ...any)
	Info(msg string, keysAndValues ...any)
	Warn(msg string, keysAndValues ...any)
	Error(msg string, keysAndValues ...any)
}

// Location is a snapshot of one location.
type Location struct {
	ID     string  `json:"id"`
	Name   string  `json:"name"`
	Groups []Group `json:"groups"`
}

// Group is a snapshot of one group.
type Group struct {
	ID     string   `json:"id"`
	Name   string   `json:"name"`
	Lights []string `json:"lights"`
}

type location struct {
	id     string
	groups map[string]*group
}

type group struct {
	id     string
	lights []*light.Light
}

// Ensure Manager plugs into the service.
var (
	_ service.Extension          = (*Manager)(nil)
	_ service.LightAddedListener = (*Manager)(nil)
	_ light.ChangeListener       = (*Manager)(nil)
)

// Manager is the location/group extension.
//
// Thread Safety: all methods are safe for concurrent use.
type Manager struct {
	mu        sync.Mutex
	locations map[string]*location

	listenersMu sync.RWMutex
	listeners   []Listener

	logger Logger
}

// New creates an empty tree.
func New(logger Logger) *Manager {
	return &Manager{
		locations: make(map[string]*location),
		logger:    logger,
	}
}

// Name implements service.Extension.
func (m *Manager) Name() string { return "locationgroup" }

// Start adds any lights the host already knows.
func (m *Manager) Start(_ context.Context, host service.Host) error {
	for _, l := range host.Lights() {
		m.OnLightAdded(l)
	}
	return nil
}

// Stop clears the tree.
func (m *Manager) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()
	clear(m.locations)
}

// AddListener registers a tree listener.
func (m *Manager) AddListener(l Listener) {
	m.listenersMu.Lock()
	defer m.listenersMu.Unlock()
	m.listeners = append(m.listeners, l)
}

// event is a deferred listener callback.
type event func(Listener)

// OnLightAdded places a new light in its location and group. A light that
// is already present is ignored.
func (m *Manager) OnLightAdded(l *light.Light) {
	m.mu.Lock()
	var events []event
	if !m.containsLocked(l) {
		events = m.addLocked(l, nil)
	}
	m.mu.Unlock()

	m.fire(events)
}

// OnLightChange moves a light when its group or location changes.
func (m *Manager) OnLightChange(l *light.Light, p light.Property, oldValue, newValue any) {
	var err error
	switch p {
	case light.PropertyGroup:
		err = m.changeGroup(l, oldValue.(light.Membership), newValue.(light.Membership))
	case light.PropertyLocation:
		err = m.changeLocation(l, oldValue.(light.Membership), newValue.(light.Membership))
	default:
		return
	}
	if err != nil && m.logger != nil {
		m.logger.Error("location/group tree inconsistent", "light", light.FormatID(l.ID()),
			"property", p.String(), "error", err)
	}
}

func (m *Manager) changeLocation(l *light.Light, oldLoc, newLoc light.Membership) error {
	m.mu.Lock()
	grpKey := l.Group().Key()

	if oldLoc.ID == newLoc.ID {
		loc, grp, err := m.lookupLocked(newLoc.Key(), grpKey)
		if err != nil {
			m.mu.Unlock()
			return err
		}
		events := []event{m.changedEvent(loc, grp, l)}
		m.mu.Unlock()
		m.fire(events)
		return nil
	}

	loc, grp, err := m.lookupLocked(oldLoc.Key(), grpKey)
	if err != nil {
		m.mu.Unlock()
		return err
	}
	events := m.detachLocked(loc, grp, l, true)
	events = m.addLocked(l, events)
	m.mu.Unlock()

	m.fire(events)
	return nil
}

func (m *Manager) changeGroup(l *light.Light, oldGrp, newGrp light.Membership) error {
	m.mu.Lock()
	locKey := l.Location().Key()

	if oldGrp.ID == newGrp.ID {
		loc, grp, err := m.lookupLocked(locKey, newGrp.Key())
		if err != nil {
			m.mu.Unlock()
			return err
		}
		events := []event{m.changedEvent(loc, grp, l)}
		m.mu.Unlock()
		m.fire(events)
		return nil
	}

	loc, grp, err := m.lookupLocked(locKey, oldGrp.Key())
	if err != nil {
		m.mu.Unlock()
		return err
	}
	events := m.detachLocked(loc, grp, l, false)
	events = m.addLocked(l, events)
	m.mu.Unlock()

	m.fire(events)
	return nil
}

// detachLocked removes l from grp, pruning the group and, when
// pruneLocation is set, the location if they become empty.
func (m *Manager) detachLocked(loc *location, grp *group, l *light.Light, pruneLocation bool) []event {
	var events []event

	grp.lights = slices.DeleteFunc(grp.lights, func(x *light.Light) bool { return x == l })
	if len(grp.lights) == 0 {
		delete(loc.groups, grp.id)
		locSnap, grpSnap := m.snapshotLocation(loc), snapshotGroup(grp)
		events = append(events, func(li Listener) { li.GroupRemoved(locSnap, grpSnap) })
	}
	if pruneLocation && len(loc.groups) == 0 {
		delete(m.locations, loc.id)
		locSnap := m.snapshotLocation(loc)
		events = append(events, func(li Listener) { li.LocationRemoved(locSnap) })
	}
	return events
}

// addLocked inserts l under its current location and group.
func (m *Manager) addLocked(l *light.Light, events []event) []event {
	locKey, grpKey := l.Location().Key(), l.Group().Key()

	loc, ok := m.locations[locKey]
	newLocation := !ok
	if newLocation {
		loc = &location{id: locKey, groups: make(map[string]*group)}
		m.locations[locKey] = loc
	}

	grp, ok := loc.groups[grpKey]
	newGroup := !ok
	if newGroup {
		grp = &group{id: grpKey}
		loc.groups[grpKey] = grp
	}
	grp.lights = append(grp.lights, l)

	if newLocation {
		locSnap := m.snapshotLocation(loc)
		events = append(events, func(li Listener) { li.LocationAdded(locSnap) })
	}
	if newGroup {
		locSnap, grpSnap := m.snapshotLocation(loc), snapshotGroup(grp)
		events = append(events, func(li Listener) { li.GroupAdded(locSnap, grpSnap) })
	}
	return append(events, m.changedEvent(loc, grp, l))
}

func (m *Manager) changedEvent(loc *location, grp *group, l *light.Light) event {
	locSnap, grpSnap := m.snapshotLocation(loc), snapshotGroup(grp)
	return func(li Listener) { li.LocationGroupChanged(locSnap, grpSnap, l) }
}

func (m *Manager) containsLocked(l *light.Light) bool {
	loc, ok := m.locations[l.Location().Key()]
	if !ok {
		return false
	}
	grp, ok := loc.groups[l.Group().Key()]
	if !ok {
		return false
	}
	return slices.Contains(grp.lights, l)
}

func (m *Manager) lookupLocked(locKey, grpKey string) (*location, *group, error) {
	loc, ok := m.locations[locKey]
	if !ok {
		return nil, nil, fmt.Errorf("%w: %s", ErrLocationNotFound, locKey)
	}
	grp, ok := loc.groups[grpKey]
	if !ok {
		return nil, nil, fmt.Errorf("%w: %s in location %s", ErrGroupNotFound, grpKey, locKey)
	}
	return loc, grp, nil
}

func (m *Manager) fire(events []event) {
	if len(events) == 0 {
		return
	}
	m.listenersMu.RLock()
	listeners := m.listeners
	m.listenersMu.RUnlock()

	for _, ev := range events {
		for _, li := range listeners {
			ev(li)
		}
	}
}

// Locations returns a snapshot of the tree sorted by id.
func (m *Manager) Locations() []Location {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]Location, 0, len(m.locations))
	for _, loc := range m.locations {
		out = append(out, m.snapshotLocation(loc))
	}
	slices.SortFunc(out, func(a, b Location) int { return strings.Compare(a.ID, b.ID) })
	return out
}

// LocationGroupOf returns the location and group l currently belongs to.
func (m *Manager) LocationGroupOf(l *light.Light) (Location, Group, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	loc, grp, err := m.lookupLocked(l.Location().Key(), l.Group().Key())
	if err != nil {
		return Location{}, Group{}, err
	}
	return m.snapshotLocation(loc), snapshotGroup(grp), nil
}

func (m *Manager) snapshotLocation(loc *location) Location {
	out := Location{ID: loc.id}
	newest := light.DefaultMembership()
	for _, grp := range loc.groups {
		out.Groups = append(out.Groups, snapshotGroup(grp))
		for _, l := range grp.lights {
			if ml := l.Location(); ml.UpdatedAt > newest.UpdatedAt {
				newest = ml
			}
		}
	}
	out.Name = newest.Label
	slices.SortFunc(out.Groups, func(a, b Group) int { return strings.Compare(a.ID, b.ID) })
	return out
}

func snapshotGroup(grp *group) Group {
	out := Group{ID: grp.id, Lights: make([]string, 0, len(grp.lights))}
	newest := light.DefaultMembership()
	for _, l := range grp.lights {
		out.Lights = append(out.Lights, light.FormatID(l.ID()))
		if mg := l.Group(); mg.UpdatedAt > newest.UpdatedAt {
			newest = mg
		}
	}
	out.Name = newest.Label
	return out
}
