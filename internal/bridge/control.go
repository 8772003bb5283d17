package bridge

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"

	"github.com/claude-repo-chat/backend/internal/model"
)

// ControlType is the discriminator of a control message.
type ControlType string

// ControlResize changes the terminal window size.
const ControlResize ControlType = "resize"

// Control is a decoded control message.
type Control struct {
	Type     ControlType
	Geometry model.Geometry

	// Err is set when the message is a recognised resize whose rows or cols
	// are not integers in the uint16 range. Geometry is zero then.
	Err error
}

// DecodeControl reports whether text is a control message. When it returns
// false the frame is ordinary terminal input and must be written verbatim.
//
// The wire form is {"type":"resize","rows":24,"cols":80}; keys match exactly.
// A JSON object whose type is "resize" and which has both a rows and a cols
// key is a control message. Geometry is not range-checked against any
// configured maximum here, and a zero dimension is still a control message.
func DecodeControl(text []byte) (Control, bool) {
	trimmed := bytes.TrimSpace(text)
	if len(trimmed) < 2 || trimmed[0] != '{' {
		return Control{}, false
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(trimmed, &fields); err != nil {
		return Control{}, false
	}

	var typ string
	if raw, ok := fields["type"]; !ok || json.Unmarshal(raw, &typ) != nil {
		return Control{}, false
	}
	if ControlType(typ) != ControlResize {
		return Control{}, false
	}

	rawRows, okRows := fields["rows"]
	rawCols, okCols := fields["cols"]
	if !okRows || !okCols {
		return Control{}, false
	}

	ctl := Control{Type: ControlResize}
	rows, rowsOK := decodeDimension(rawRows)
	cols, colsOK := decodeDimension(rawCols)
	if !rowsOK || !colsOK {
		ctl.Err = fmt.Errorf("%w: rows=%s cols=%s", model.ErrInvalidGeometry, rawRows, rawCols)
		return ctl, true
	}
	ctl.Geometry = model.Geometry{Rows: rows, Cols: cols}
	return ctl, true
}

// decodeDimension accepts a JSON integer in the uint16 range.
func decodeDimension(raw json.RawMessage) (uint16, bool) {
	var v int64
	if bytes.Equal(raw, []byte("null")) {
		return 0, false
	}
	if err := json.Unmarshal(raw, &v); err != nil {
		return 0, false
	}
	if v < 0 || v > math.MaxUint16 {
		return 0, false
	}
	return uint16(v), true
}
