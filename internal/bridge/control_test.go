package bridge

import (
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"github.com/claude-repo-chat/backend/internal/model"
)

// TestDecodeControl tests which text frames are recognised as control messages
func TestDecodeControl(t *testing.T) {
	tests := []struct {
		name    string
		text    string
		ok      bool
		expect  model.Geometry
		invalid bool
	}{
		{"resize", `{"type":"resize","rows":40,"cols":120}`, true, model.Geometry{Rows: 40, Cols: 120}, false},
		{"resize with spaces", ` {"type": "resize", "cols": 80, "rows": 24}` + "\n", true, model.Geometry{Rows: 24, Cols: 80}, false},
		{"resize with extra fields", `{"type":"resize","rows":1,"cols":2,"x":true}`, true, model.Geometry{Rows: 1, Cols: 2}, false},
		{"zero geometry is still a resize", `{"type":"resize","rows":0,"cols":0}`, true, model.Geometry{}, false},
		{"max uint16", `{"type":"resize","rows":65535,"cols":65535}`, true, model.Geometry{Rows: 65535, Cols: 65535}, false},
		{"plain text", "not-json-at-all", false, model.Geometry{}, false},
		{"keystroke", "l", false, model.Geometry{}, false},
		{"brace only", "{", false, model.Geometry{}, false},
		{"broken json", `{"type":"resize","rows":40`, false, model.Geometry{}, false},
		{"unknown type", `{"type":"ping"}`, false, model.Geometry{}, false},
		{"missing type", `{"rows":40,"cols":120}`, false, model.Geometry{}, false},
		{"missing cols", `{"type":"resize","rows":40}`, false, model.Geometry{}, false},
		{"uppercase keys", `{"TYPE":"resize","ROWS":40,"COLS":120}`, false, model.Geometry{}, false},
		{"mixed case key", `{"type":"resize","Rows":40,"cols":120}`, false, model.Geometry{}, false},
		{"null type", `{"type":null,"rows":40,"cols":120}`, false, model.Geometry{}, false},
		{"json array", `[1,2,3]`, false, model.Geometry{}, false},
		{"json string", `"resize"`, false, model.Geometry{}, false},
		{"uppercase type", `{"type":"RESIZE","rows":24,"cols":80}`, false, model.Geometry{}, false},
		{"negative rows", `{"type":"resize","rows":-1,"cols":80}`, true, model.Geometry{}, true},
		{"rows overflow", `{"type":"resize","rows":70000,"cols":80}`, true, model.Geometry{}, true},
		{"cols overflow", `{"type":"resize","rows":24,"cols":65536}`, true, model.Geometry{}, true},
		{"fractional rows", `{"type":"resize","rows":24.5,"cols":80}`, true, model.Geometry{}, true},
		{"string rows", `{"type":"resize","rows":"24","cols":80}`, true, model.Geometry{}, true},
		{"null cols", `{"type":"resize","rows":24,"cols":null}`, true, model.Geometry{}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctl, ok := DecodeControl([]byte(tt.text))
			if ok != tt.ok {
				t.Fatalf("Expected ok=%v, got %v", tt.ok, ok)
			}
			if !ok {
				return
			}
			if ctl.Type != ControlResize {
				t.Errorf("Expected type %q, got %q", ControlResize, ctl.Type)
			}
			if tt.invalid != (ctl.Err != nil) {
				t.Errorf("Expected invalid=%v, got err %v", tt.invalid, ctl.Err)
			}
			if tt.invalid && !errors.Is(ctl.Err, model.ErrInvalidGeometry) {
				t.Errorf("Expected ErrInvalidGeometry, got %v", ctl.Err)
			}
			if ctl.Geometry != tt.expect {
				t.Errorf("Expected geometry %s, got %s", tt.expect, ctl.Geometry)
			}
		})
	}
}

// TestDecodeControlProperties checks the decoder against generated input
func TestDecodeControlProperties(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200

	properties := gopter.NewProperties(parameters)

	properties.Property("every uint16 resize decodes to the same geometry", prop.ForAll(
		func(rows, cols uint16) bool {
			text := fmt.Sprintf(`{"type":"resize","rows":%d,"cols":%d}`, rows, cols)
			ctl, ok := DecodeControl([]byte(text))
			return ok && ctl.Err == nil && ctl.Type == ControlResize && ctl.Geometry == model.Geometry{Rows: rows, Cols: cols}
		},
		gen.UInt16(),
		gen.UInt16(),
	))

	properties.Property("text not starting with a brace is never a control message", prop.ForAll(
		func(s string) bool {
			if strings.HasPrefix(strings.TrimSpace(s), "{") {
				return true
			}
			_, ok := DecodeControl([]byte(s))
			return !ok
		},
		gen.AnyString(),
	))

	properties.Property("unknown types are never control messages", prop.ForAll(
		func(typ string) bool {
			if typ == string(ControlResize) {
				return true
			}
			text := fmt.Sprintf(`{"type":%q,"rows":24,"cols":80}`, typ)
			_, ok := DecodeControl([]byte(text))
			return !ok
		},
		gen.AlphaString(),
	))

	properties.TestingRun(t)
}
