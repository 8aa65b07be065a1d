package engine

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// WhiteboardMirror is the client-side replica of the server's whiteboard
// state (§4.7). It is populated by whiteboard_sync on join and kept current
// by applying each subsequent whiteboard_action broadcast, giving every
// client the same ordered element sequences (§8 invariant 3).
type WhiteboardMirror struct {
	mu      sync.Mutex
	strokes []WhiteboardElement
	shapes  []WhiteboardElement
	texts   []WhiteboardElement
	version uint64
}

// NewWhiteboardMirror returns an empty mirror.
func NewWhiteboardMirror() *WhiteboardMirror {
	return &WhiteboardMirror{}
}

// ApplySync replaces the mirror wholesale from a whiteboard_sync payload.
func (m *WhiteboardMirror) ApplySync(snap WhiteboardSnapshot) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.strokes = append([]WhiteboardElement(nil), snap.Strokes...)
	m.shapes = append([]WhiteboardElement(nil), snap.Shapes...)
	m.texts = append([]WhiteboardElement(nil), snap.Texts...)
	m.version = snap.Version
}

// ApplyAction mirrors one accepted whiteboard_action broadcast. It assumes
// the server has already validated the action; the mirror simply replays
// the same state transition the server made (see server/whiteboard.go).
func (m *WhiteboardMirror) ApplyAction(msg ControlMsg) {
	m.mu.Lock()
	defer m.mu.Unlock()
	switch msg.Action {
	case "draw":
		if msg.Data != nil {
			m.strokes = append(m.strokes, *msg.Data)
		}
	case "shape":
		if msg.Data != nil {
			m.shapes = append(m.shapes, *msg.Data)
		}
	case "text":
		if msg.Data != nil {
			m.texts = append(m.texts, *msg.Data)
		}
	case "erase":
		m.strokes = eraseByID(m.strokes, msg.EraseID)
		m.shapes = eraseByID(m.shapes, msg.EraseID)
		m.texts = eraseByID(m.texts, msg.EraseID)
	case "clear":
		m.strokes = nil
		m.shapes = nil
		m.texts = nil
	case "undo":
		if len(m.strokes) > 0 {
			m.strokes = m.strokes[:len(m.strokes)-1]
		} else if len(m.shapes) > 0 {
			m.shapes = m.shapes[:len(m.shapes)-1]
		}
	}
	m.version = msg.Version
}

func eraseByID(elems []WhiteboardElement, id string) []WhiteboardElement {
	if id == "" {
		return elems
	}
	out := elems[:0:0]
	for _, e := range elems {
		if e.ID != id {
			out = append(out, e)
		}
	}
	return out
}

// Snapshot returns a defensive copy of the current mirror state.
func (m *WhiteboardMirror) Snapshot() WhiteboardSnapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	return WhiteboardSnapshot{
		Strokes: append([]WhiteboardElement(nil), m.strokes...),
		Shapes:  append([]WhiteboardElement(nil), m.shapes...),
		Texts:   append([]WhiteboardElement(nil), m.texts...),
		Version: m.version,
	}
}

// NewStroke builds a stroke WhiteboardElement with a fresh client-generated
// ID (§3: IDs are opaque and client-generated).
func NewStroke(points []Point, color string, width float64) *WhiteboardElement {
	return &WhiteboardElement{
		ID:        uuid.NewString(),
		Color:     color,
		Width:     width,
		Timestamp: time.Now().UnixMilli(),
		Points:    points,
	}
}

// NewShape builds a circle/rect/line shape element with a fresh ID.
func NewShape(kind string, start, end Point, color string, width float64) *WhiteboardElement {
	return &WhiteboardElement{
		ID:        uuid.NewString(),
		Color:     color,
		Width:     width,
		Timestamp: time.Now().UnixMilli(),
		Type:      kind,
		Start:     &start,
		End:       &end,
	}
}

// NewText builds a text element with a fresh ID.
func NewText(text string, x, y float64, color string) *WhiteboardElement {
	return &WhiteboardElement{
		ID:        uuid.NewString(),
		Color:     color,
		Timestamp: time.Now().UnixMilli(),
		Text:      text,
		X:         x,
		Y:         y,
	}
}
