package tile

import (
	"context"
	"math"
	"slices"
	"sync"
	"time"

	"github.com/nerrad567/gray-logic-lifx/internal/light"
	"github.com/nerrad567/gray-logic-lifx/internal/protocol"
	"github.com/nerrad567/gray-logic-lifx/internal/service"
	"github.com/nerrad567/gray-logic-lifx/internal/transport"
)

// GridSize is the side length of one tile's pixel grid.
const GridSize = 8

// Listener is told about tile tracking and cache updates.
// Callbacks run after the cache lock is released.
type Listener interface {
	TileAdded(t Tile)
	ChainUpdated(t Tile)
	DeviceUpdated(t Tile, d Device)
}

// Logger interface for optional logging.
type Logger interface {
	Debug(msg string, keysAndValues ...any)
	Info(msg string, keysAndValues ...any)
	Warn(msg string, keysAndValues ...any)
	Error(msg string, keysAndValues ...any)
}

// Device is a snapshot of one tile in a chain.
type Device struct {
	Index  int                                  `json:"index"`
	UserX  float32                              `json:"user_x"`
	UserY  float32                              `json:"user_y"`
	Width  uint8                                `json:"width"`
	Height uint8                                `json:"height"`
	Colors [GridSize * GridSize]protocol.HSBK `json:"colors"`
}

// Tile is a snapshot of one tracked light and its chain.
type Tile struct {
	LightID uint64   `json:"-"`
	ID      string   `json:"id"`
	Chain   []Device `json:"chain"`
}

type tracked struct {
	light *light.Light
	chain []*Device
}

func (t *tracked) snapshot() Tile {
	out := Tile{
		LightID: t.light.ID(),
		ID:      light.FormatID(t.light.ID()),
		Chain:   make([]Device, 0, len(t.chain)),
	}
	for _, d := range t.chain {
		out.Chain = append(out.Chain, *d)
	}
	return out
}

// Ensure Manager plugs into the service.
var (
	_ service.Extension          = (*Manager)(nil)
	_ service.LightAddedListener = (*Manager)(nil)
	_ service.MessageListener    = (*Manager)(nil)
	_ service.TickListener       = (*Manager)(nil)
	_ light.ChangeListener       = (*Manager)(nil)
)

// Manager is the tile extension.
//
// Thread Safety: all methods are safe for concurrent use.
type Manager struct {
	mu    sync.Mutex
	tiles map[uint64]*tracked
	ctx   context.Context

	listenersMu sync.RWMutex
	listeners   []Listener

	logger Logger
}

// New creates a tile manager.
func New(logger Logger) *Manager {
	return &Manager{
		tiles:  make(map[uint64]*tracked),
		ctx:    context.Background(),
		logger: logger,
	}
}

// Name implements service.Extension.
func (m *Manager) Name() string { return "tile" }

// Start tracks any tile lights the host already knows.
func (m *Manager) Start(ctx context.Context, host service.Host) error {
	m.mu.Lock()
	m.ctx = ctx
	m.mu.Unlock()

	for _, l := range host.Lights() {
		m.OnLightAdded(l)
	}
	return nil
}

// Stop forgets every tracked tile.
func (m *Manager) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()
	clear(m.tiles)
}

// AddListener registers a tile listener.
func (m *Manager) AddListener(l Listener) {
	m.listenersMu.Lock()
	defer m.listenersMu.Unlock()
	m.listeners = append(m.listeners, l)
}

// OnLightAdded tracks the light if it is known to be a tile.
func (m *Manager) OnLightAdded(l *light.Light) {
	if l.ProductInfo().HasTile() {
		m.track(l)
	}
}

// OnLightChange tracks the light once its product info reports tiles.
func (m *Manager) OnLightChange(l *light.Light, p light.Property, _, newValue any) {
	if p != light.PropertyProductInfo {
		return
	}
	if info, ok := newValue.(light.ProductInfo); ok && info.HasTile() {
		m.track(l)
	}
}

func (m *Manager) track(l *light.Light) {
	m.mu.Lock()
	if _, ok := m.tiles[l.ID()]; ok {
		m.mu.Unlock()
		return
	}
	t := &tracked{light: l}
	m.tiles[l.ID()] = t
	snap := t.snapshot()
	ctx := m.ctx
	m.mu.Unlock()

	m.logInfo("tile tracked", "light", snap.ID)

	if _, err := l.GetDeviceChain(ctx, light.Flags{}); err != nil {
		m.logDebug("device chain request failed", "light", snap.ID, "error", err)
	}
	m.requestPixels(ctx, l)

	m.fire(func(li Listener) { li.TileAdded(snap) })
}

// OnTick refreshes the pixels of every tracked tile.
func (m *Manager) OnTick(ctx context.Context, _ time.Time) {
	m.mu.Lock()
	lights := make([]*light.Light, 0, len(m.tiles))
	for _, t := range m.tiles {
		lights = append(lights, t.light)
	}
	m.mu.Unlock()

	for _, l := range lights {
		m.requestPixels(ctx, l)
	}
}

func (m *Manager) requestPixels(ctx context.Context, l *light.Light) {
	req := protocol.GetTileState64{Length: 255, Width: GridSize} //nolint:mnd // whole chain
	if _, err := l.GetTileState64(ctx, req, light.Flags{}); err != nil {
		m.logDebug("tile state request failed", "light", light.FormatID(l.ID()), "error", err)
	}
}

// OnMessage merges chain layouts and pixel reports for tracked lights.
func (m *Manager) OnMessage(in transport.Inbound) {
	target := in.Message.Header.Target

	switch p := in.Message.Payload.(type) {
	case protocol.StateDeviceChain:
		m.mergeChain(target, p)
	case protocol.StateTileState64:
		m.mergePixels(target, p)
	}
}

func (m *Manager) mergeChain(target uint64, p protocol.StateDeviceChain) {
	m.mu.Lock()
	t, ok := m.tiles[target]
	if !ok {
		m.mu.Unlock()
		return
	}

	changed := len(t.chain) != int(p.TotalCount)
	chain := make([]*Device, 0, p.TotalCount)
	for index := range int(p.TotalCount) {
		var existing *Device
		if index < len(t.chain) {
			existing = t.chain[index]
		}

		slot := index - int(p.StartIndex)
		if slot < 0 || slot >= protocol.TileChainSize {
			// Outside this report: keep what we had, or a blank placeholder.
			if existing == nil {
				changed = true
				existing = newDevice(index, protocol.TileDevice{})
			}
			chain = append(chain, existing)
			continue
		}

		reported := p.TileDevices[slot]
		switch {
		case existing == nil:
			changed = true
			chain = append(chain, newDevice(index, reported))
		case existing.UserX != reported.UserX, existing.UserY != reported.UserY,
			existing.Width != reported.Width, existing.Height != reported.Height:
			changed = true
			existing.UserX, existing.UserY = reported.UserX, reported.UserY
			existing.Width, existing.Height = reported.Width, reported.Height
			chain = append(chain, existing)
		default:
			chain = append(chain, existing)
		}
	}

	if !changed {
		m.mu.Unlock()
		return
	}
	t.chain = chain
	snap := t.snapshot()
	m.mu.Unlock()

	m.fire(func(li Listener) { li.ChainUpdated(snap) })
}

// newDevice returns a chain entry for index, its pixels set to the default
// colour.
func newDevice(index int, reported protocol.TileDevice) *Device {
	d := &Device{
		Index:  index,
		UserX:  reported.UserX,
		UserY:  reported.UserY,
		Width:  reported.Width,
		Height: reported.Height,
	}
	for i := range d.Colors {
		d.Colors[i] = light.DefaultColor
	}
	return d
}

func (m *Manager) mergePixels(target uint64, p protocol.StateTileState64) {
	m.mu.Lock()
	t, ok := m.tiles[target]
	if !ok || int(p.TileIndex) >= len(t.chain) {
		m.mu.Unlock()
		return
	}
	d := t.chain[p.TileIndex]
	changed := paint(d, int(p.X), int(p.Y), int(p.Width), p.Colors[:])
	snap, dev := t.snapshot(), *d
	m.mu.Unlock()

	if changed {
		m.fire(func(li Listener) { li.DeviceUpdated(snap, dev) })
	}
}

// paint copies a width-wide rectangle of colours into the device grid at
// (x, y), clipped to the grid. It reports whether any pixel changed.
func paint(d *Device, x0, y0, width int, colors []protocol.HSBK) bool {
	if width <= 0 {
		return false
	}
	rows := len(colors) / width
	changed := false
	for x := x0; x < min(GridSize, x0+width); x++ {
		for y := y0; y < min(GridSize, y0+rows); y++ {
			c := colors[(y-y0)*width+x-x0]
			if d.Colors[y*GridSize+x] != c {
				d.Colors[y*GridSize+x] = c
				changed = true
			}
		}
	}
	return changed
}

// SetTileState64 paints pixels on a tracked tile and records them in the
// cache as soon as the frame is sent. The device paints the same rectangle
// on req.Length consecutive tiles from req.TileIndex; a zero length counts
// as one. Tiles past the end of the known chain are skipped.
func (m *Manager) SetTileState64(ctx context.Context, l *light.Light, req protocol.SetTileState64,
	f light.Flags) (*protocol.StateTileState64, error) {
	sideEffect := func() {
		last := min(int(req.TileIndex)+max(int(req.Length), 1), math.MaxUint8+1)
		for index := int(req.TileIndex); index < last; index++ {
			m.mergePixels(l.ID(), protocol.StateTileState64{
				TileIndex: uint8(index), //nolint:gosec // bounded by MaxUint8
				X:         req.X,
				Y:         req.Y,
				Width:     req.Width,
				Colors:    req.Colors,
			})
		}
	}
	return l.SetTileState64(ctx, req, f, sideEffect)
}

// Tiles returns snapshots of every tracked tile, ordered by light id.
func (m *Manager) Tiles() []Tile {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]Tile, 0, len(m.tiles))
	for _, t := range m.tiles {
		out = append(out, t.snapshot())
	}
	slices.SortFunc(out, func(a, b Tile) int {
		switch {
		case a.LightID < b.LightID:
			return -1
		case a.LightID > b.LightID:
			return 1
		}
		return 0
	})
	return out
}

// Tile returns the snapshot of one tracked light.
func (m *Manager) Tile(id uint64) (Tile, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tiles[id]
	if !ok {
		return Tile{}, false
	}
	return t.snapshot(), true
}

func (m *Manager) fire(ev func(Listener)) {
	m.listenersMu.RLock()
	listeners := m.listeners
	m.listenersMu.RUnlock()
	for _, li := range listeners {
		ev(li)
	}
}

func (m *Manager) logInfo(msg string, kv ...any) {
	if m.logger != nil {
		m.logger.Info(msg, kv...)
	}
}

func (m *Manager) logDebug(msg string, kv ...any) {
	if m.logger != nil {
		m.logger.Debug(msg, kv...)
	}
}
