package locationgroup

import (
	"errors"
	"net"
	"sync"
	"testing"

	"github.com/nerrad567/gray-logic-lifx/internal/light"
	"github.com/nerrad567/gray-logic-lifx/internal/protocol"
)

// MockListener records tree events as short strings.
type MockListener struct {
	mu     sync.Mutex
	events []string
}

func (m *MockListener) record(ev string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, ev)
}

func (m *MockListener) LocationAdded(loc Location) { m.record("location+" + loc.ID[:2]) }
func (m *MockListener) GroupAdded(_ Location, grp Group) {
	m.record("group+" + grp.ID[:2])
}
func (m *MockListener) LocationGroupChanged(_ Location, grp Group, _ *light.Light) {
	m.record("changed:" + grp.ID[:2])
}
func (m *MockListener) GroupRemoved(_ Location, grp Group) { m.record("group-" + grp.ID[:2]) }
func (m *MockListener) LocationRemoved(loc Location)       { m.record("location-" + loc.ID[:2]) }

func (m *MockListener) take() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := m.events
	m.events = nil
	return out
}

func membership(first byte, label string, updatedAt uint64) protocol.SetLocation {
	var id [protocol.IDSize]byte
	id[0] = first
	return protocol.SetLocation{ID: id, Label: label, UpdatedAt: updatedAt}
}

func newLight(id uint64, m *Manager) *light.Light {
	return light.New(id, light.Options{Listener: m})
}

func deliver(l *light.Light, payload protocol.Payload) {
	l.HandleMessage(protocol.NewMessage(payload, 1, l.ID(), 0, false, false), net.IPv4(10, 0, 0, 2))
}

func equalEvents(t *testing.T, got, want []string) {
	t.Helper()
	if len(got) != len(want) {
		t.Fatalf("events = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("events = %v, want %v", got, want)
		}
	}
}

// defaultKey is the first byte of the default id ('0') in hex.
const defaultKey = "30"

func TestOnLightAddedPlacesInDefaults(t *testing.T) {
	m := New(nil)
	ml := &MockListener{}
	m.AddListener(ml)

	a, b := newLight(1, m), newLight(2, m)
	m.OnLightAdded(a)
	m.OnLightAdded(b)
	m.OnLightAdded(a) // already present

	equalEvents(t, ml.take(), []string{
		"location+" + defaultKey, "group+" + defaultKey, "changed:" + defaultKey,
		"changed:" + defaultKey,
	})

	locs := m.Locations()
	if len(locs) != 1 || len(locs[0].Groups) != 1 {
		t.Fatalf("tree = %+v, want one location with one group", locs)
	}
	if got := len(locs[0].Groups[0].Lights); got != 2 {
		t.Errorf("lights in default group = %d, want 2", got)
	}
}

func TestGroupMoveAndPrune(t *testing.T) {
	m := New(nil)
	ml := &MockListener{}
	m.AddListener(ml)

	a, b := newLight(1, m), newLight(2, m)
	m.OnLightAdded(a)
	m.OnLightAdded(b)
	ml.take()

	deliver(a, protocol.StateGroup(membership(0xAA, "Kitchen", 10)))
	equalEvents(t, ml.take(), []string{"group+aa", "changed:aa"})

	deliver(b, protocol.StateGroup(membership(0xAA, "Kitchen", 10)))
	equalEvents(t, ml.take(), []string{"group-" + defaultKey, "changed:aa"})

	locs := m.Locations()
	if len(locs) != 1 || len(locs[0].Groups) != 1 {
		t.Fatalf("tree = %+v", locs)
	}
	grp := locs[0].Groups[0]
	if grp.Name != "Kitchen" || len(grp.Lights) != 2 {
		t.Errorf("group = %+v, want Kitchen with 2 lights", grp)
	}
}

func TestLocationMovePrunesLocation(t *testing.T) {
	m := New(nil)
	ml := &MockListener{}
	m.AddListener(ml)

	a := newLight(1, m)
	m.OnLightAdded(a)
	ml.take()

	deliver(a, protocol.StateLocation(membership(0xBB, "Home", 5)))
	equalEvents(t, ml.take(), []string{
		"group-" + defaultKey, "location-" + defaultKey,
		"location+bb", "group+" + defaultKey, "changed:" + defaultKey,
	})

	locs := m.Locations()
	if len(locs) != 1 || locs[0].Name != "Home" {
		t.Fatalf("tree = %+v, want single Home location", locs)
	}
}

func TestSameIDRelabelOnlyNotifiesChanged(t *testing.T) {
	m := New(nil)
	ml := &MockListener{}
	m.AddListener(ml)

	a := newLight(1, m)
	m.OnLightAdded(a)
	deliver(a, protocol.StateGroup(membership(0xAA, "Kitchen", 10)))
	ml.take()

	deliver(a, protocol.StateGroup(membership(0xAA, "Cuisine", 20)))
	equalEvents(t, ml.take(), []string{"changed:aa"})

	_, grp, err := m.LocationGroupOf(a)
	if err != nil {
		t.Fatalf("LocationGroupOf: %v", err)
	}
	if grp.Name != "Cuisine" {
		t.Errorf("group name = %q, want Cuisine", grp.Name)
	}
}

func TestNameFromNewestMember(t *testing.T) {
	m := New(nil)

	a, b := newLight(1, m), newLight(2, m)
	m.OnLightAdded(a)
	m.OnLightAdded(b)
	deliver(a, protocol.StateLocation(membership(0xCC, "Old name", 100)))
	deliver(b, protocol.StateLocation(membership(0xCC, "New name", 200)))

	loc, _, err := m.LocationGroupOf(a)
	if err != nil {
		t.Fatalf("LocationGroupOf: %v", err)
	}
	if loc.Name != "New name" {
		t.Errorf("location name = %q, want %q", loc.Name, "New name")
	}
}

func TestChangeForUntrackedLight(t *testing.T) {
	m := New(nil)
	a := light.New(1, light.Options{})

	err := m.changeGroup(a, light.DefaultMembership(), light.Membership(membership(0xAA, "", 0)))
	if !errors.Is(err, ErrLocationNotFound) {
		t.Errorf("changeGroup error = %v, want ErrLocationNotFound", err)
	}

	m.OnLightAdded(a)
	other := light.Membership(membership(0xDD, "", 0))
	err = m.changeGroup(a, other, light.DefaultMembership())
	if !errors.Is(err, ErrGroupNotFound) {
		t.Errorf("changeGroup error = %v, want ErrGroupNotFound", err)
	}
}

func TestStopClearsTree(t *testing.T) {
	m := New(nil)
	m.OnLightAdded(newLight(1, m))
	m.Stop()
	if got := len(m.Locations()); got != 0 {
		t.Errorf("locations after Stop = %d, want 0", got)
	}
}
