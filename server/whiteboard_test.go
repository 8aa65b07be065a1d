package main

import "testing"

func TestApplyDrawIncrementsVersion(t *testing.T) {
	w := NewWhiteboard()
	v, applied, err := w.Apply("draw", &WhiteboardElement{ID: "s1", Points: []Point{{X: 1, Y: 1}}}, "")
	if err != nil {
		t.Fatalf("Apply draw: %v", err)
	}
	if !applied || v != 1 {
		t.Fatalf("expected version 1 applied=true, got version=%d applied=%v", v, applied)
	}

	snap := w.Snapshot()
	if len(snap.Strokes) != 1 || snap.Version != 1 {
		t.Fatalf("unexpected snapshot: %+v", snap)
	}
}

func TestApplyShapeAndText(t *testing.T) {
	w := NewWhiteboard()
	w.Apply("shape", &WhiteboardElement{ID: "sh1", Type: "rect"}, "")
	w.Apply("text", &WhiteboardElement{ID: "tx1", Text: "hello"}, "")

	snap := w.Snapshot()
	if len(snap.Shapes) != 1 || len(snap.Texts) != 1 {
		t.Fatalf("expected 1 shape and 1 text, got %+v", snap)
	}
	if snap.Version != 2 {
		t.Fatalf("expected version 2, got %d", snap.Version)
	}
}

func TestApplyDrawRequiresData(t *testing.T) {
	w := NewWhiteboard()
	_, applied, err := w.Apply("draw", nil, "")
	if err == nil || applied {
		t.Fatalf("expected error and applied=false for nil element, got err=%v applied=%v", err, applied)
	}
	if w.Version() != 0 {
		t.Fatalf("version must not advance on rejected mutation")
	}
}

func TestApplyEraseByID(t *testing.T) {
	w := NewWhiteboard()
	w.Apply("draw", &WhiteboardElement{ID: "s1"}, "")
	w.Apply("draw", &WhiteboardElement{ID: "s2"}, "")
	w.Apply("shape", &WhiteboardElement{ID: "sh1"}, "")

	w.Apply("erase", nil, "s1")

	snap := w.Snapshot()
	if len(snap.Strokes) != 1 || snap.Strokes[0].ID != "s2" {
		t.Fatalf("expected only s2 to remain, got %+v", snap.Strokes)
	}
	if len(snap.Shapes) != 1 {
		t.Fatalf("erase of unrelated id must not touch shapes, got %+v", snap.Shapes)
	}
}

func TestApplyClearResetsAllSequences(t *testing.T) {
	w := NewWhiteboard()
	w.Apply("draw", &WhiteboardElement{ID: "s1"}, "")
	w.Apply("shape", &WhiteboardElement{ID: "sh1"}, "")
	w.Apply("text", &WhiteboardElement{ID: "tx1"}, "")

	v, applied, err := w.Apply("clear", nil, "")
	if err != nil || !applied {
		t.Fatalf("clear should always apply, got applied=%v err=%v", applied, err)
	}

	snap := w.Snapshot()
	if len(snap.Strokes) != 0 || len(snap.Shapes) != 0 || len(snap.Texts) != 0 {
		t.Fatalf("expected empty sequences after clear, got %+v", snap)
	}
	if v != snap.Version {
		t.Fatalf("returned version must match snapshot version")
	}
}

func TestApplyUndoPrefersStrokesThenShapes(t *testing.T) {
	w := NewWhiteboard()
	w.Apply("shape", &WhiteboardElement{ID: "sh1"}, "")
	w.Apply("draw", &WhiteboardElement{ID: "s1"}, "")

	// Last mutation was the stroke; undo must remove it, leaving the shape.
	_, applied, _ := w.Apply("undo", nil, "")
	if !applied {
		t.Fatalf("expected undo to apply when a stroke exists")
	}
	snap := w.Snapshot()
	if len(snap.Strokes) != 0 || len(snap.Shapes) != 1 {
		t.Fatalf("expected stroke removed and shape kept, got %+v", snap)
	}

	// Now only the shape remains; undo removes it too.
	w.Apply("undo", nil, "")
	snap = w.Snapshot()
	if len(snap.Shapes) != 0 {
		t.Fatalf("expected shape removed by second undo, got %+v", snap)
	}
}

func TestApplyUndoOnEmptyIsNoOp(t *testing.T) {
	w := NewWhiteboard()
	v, applied, err := w.Apply("undo", nil, "")
	if err != nil {
		t.Fatalf("undo on empty board must not error, got %v", err)
	}
	if applied {
		t.Fatalf("undo on empty board must not apply")
	}
	if v != 0 {
		t.Fatalf("version must stay at 0, got %d", v)
	}
}

func TestApplyUnknownActionErrors(t *testing.T) {
	w := NewWhiteboard()
	_, applied, err := w.Apply("frobnicate", nil, "")
	if err == nil || applied {
		t.Fatalf("expected error for unknown action, got applied=%v err=%v", applied, err)
	}
}

func TestSnapshotIsDefensiveCopy(t *testing.T) {
	w := NewWhiteboard()
	w.Apply("draw", &WhiteboardElement{ID: "s1"}, "")

	snap := w.Snapshot()
	snap.Strokes[0].ID = "mutated"

	snap2 := w.Snapshot()
	if snap2.Strokes[0].ID != "s1" {
		t.Fatalf("mutating a returned snapshot must not affect board state, got %q", snap2.Strokes[0].ID)
	}
}
