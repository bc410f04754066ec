package tgui

import "nagbot/internal/transport"

// Inline is a small builder for inline keyboards expressed as rows of
// platform-neutral buttons. The transport adapter converts the rows into
// platform markup at send time.
type Inline struct {
	rows [][]transport.Button
}

func NewInline() *Inline {
	return &Inline{}
}

// Row appends a new row (buttons) to the inline keyboard.
func (i *Inline) Row(btn ...transport.Button) *Inline {
	i.rows = append(i.rows, btn)
	return i
}

// Rows returns the accumulated button rows.
func (i *Inline) Rows() [][]transport.Button { return i.rows }

// Btn creates a callback button with raw callback_data (we do NOT encode it).
func Btn(text, data string) transport.Button {
	return transport.Button{Text: text, Data: data}
}
