package engine

import "testing"

func TestWhiteboardMirrorAppliesSyncThenActions(t *testing.T) {
	m := NewWhiteboardMirror()
	m.ApplySync(WhiteboardSnapshot{
		Strokes: []WhiteboardElement{{ID: "s0"}},
		Version: 1,
	})

	m.ApplyAction(ControlMsg{
		Type:    "whiteboard_action",
		Action:  "draw",
		Data:    &WhiteboardElement{ID: "s1", Points: []Point{{X: 0, Y: 0}}},
		Version: 2,
	})

	snap := m.Snapshot()
	if len(snap.Strokes) != 2 {
		t.Fatalf("expected 2 strokes after sync+draw, got %d", len(snap.Strokes))
	}
	if snap.Version != 2 {
		t.Fatalf("expected version 2, got %d", snap.Version)
	}
}

func TestWhiteboardMirrorUndoPrefersStrokes(t *testing.T) {
	m := NewWhiteboardMirror()
	m.ApplyAction(ControlMsg{Action: "shape", Data: &WhiteboardElement{ID: "shape1"}, Version: 1})
	m.ApplyAction(ControlMsg{Action: "draw", Data: &WhiteboardElement{ID: "stroke1"}, Version: 2})
	m.ApplyAction(ControlMsg{Action: "undo", Version: 3})

	snap := m.Snapshot()
	if len(snap.Strokes) != 0 {
		t.Fatalf("expected the stroke to be undone first, got %d strokes", len(snap.Strokes))
	}
	if len(snap.Shapes) != 1 {
		t.Fatalf("expected the shape to survive, got %d shapes", len(snap.Shapes))
	}
}

func TestWhiteboardMirrorEraseByID(t *testing.T) {
	m := NewWhiteboardMirror()
	m.ApplyAction(ControlMsg{Action: "draw", Data: &WhiteboardElement{ID: "keep"}, Version: 1})
	m.ApplyAction(ControlMsg{Action: "draw", Data: &WhiteboardElement{ID: "gone"}, Version: 2})
	m.ApplyAction(ControlMsg{Action: "erase", EraseID: "gone", Version: 3})

	snap := m.Snapshot()
	if len(snap.Strokes) != 1 || snap.Strokes[0].ID != "keep" {
		t.Fatalf("expected only 'keep' to survive erase, got %+v", snap.Strokes)
	}
}

func TestWhiteboardMirrorClearResetsAllSequences(t *testing.T) {
	m := NewWhiteboardMirror()
	m.ApplyAction(ControlMsg{Action: "draw", Data: &WhiteboardElement{ID: "s1"}, Version: 1})
	m.ApplyAction(ControlMsg{Action: "shape", Data: &WhiteboardElement{ID: "sh1"}, Version: 2})
	m.ApplyAction(ControlMsg{Action: "text", Data: &WhiteboardElement{ID: "t1"}, Version: 3})
	m.ApplyAction(ControlMsg{Action: "clear", Version: 4})

	snap := m.Snapshot()
	if len(snap.Strokes) != 0 || len(snap.Shapes) != 0 || len(snap.Texts) != 0 {
		t.Fatalf("expected clear to empty all sequences, got %+v", snap)
	}
}

func TestNewStrokeGeneratesUniqueIDs(t *testing.T) {
	a := NewStroke([]Point{{X: 0, Y: 0}}, "#000000", 3)
	b := NewStroke([]Point{{X: 1, Y: 1}}, "#000000", 3)
	if a.ID == "" || b.ID == "" || a.ID == b.ID {
		t.Fatalf("expected distinct non-empty IDs, got %q and %q", a.ID, b.ID)
	}
}

func TestSnapshotIsDefensiveCopy(t *testing.T) {
	m := NewWhiteboardMirror()
	m.ApplyAction(ControlMsg{Action: "draw", Data: &WhiteboardElement{ID: "s1"}, Version: 1})

	snap := m.Snapshot()
	snap.Strokes[0].ID = "mutated"

	fresh := m.Snapshot()
	if fresh.Strokes[0].ID != "s1" {
		t.Fatalf("mutating a returned snapshot must not affect mirror state")
	}
}
