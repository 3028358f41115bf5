package ui

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/charmbracelet/bubbles/cursor"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/nmerovingian/Dimension-Conversion-Tool/internal/params"
)

var fieldLabels = map[string]string{
	"E0f":        "E0f (V)",
	"concT":      "concT (mol/m³)",
	"dElectrode": "dElectrode (m)",
	"DX":         "DX (m²/s)",
	"DA":         "DA (m²/s)",
	"DB":         "DB (m²/s)",
	"DC":         "DC (m²/s)",
}

// Only these are consumed by the transforms; the rest default to zero.
var requiredFields = map[string]bool{"E0f": true, "concT": true, "dElectrode": true, "DX": true}

func newParamInput(key string) textinput.Model {
	input := textinput.New()
	input.Prompt = fmt.Sprintf("%-16s", fieldLabels[key]+":")
	input.CharLimit = 32
	input.Cursor.SetMode(cursor.CursorBlink)
	if !requiredFields[key] {
		input.Placeholder = "0"
	}
	return input
}

func newParamInputs(set params.Set, loaded bool) []textinput.Model {
	inputs := make([]textinput.Model, len(params.Keys))
	for i, key := range params.Keys {
		inputs[i] = newParamInput(key)
		if loaded {
			v, _ := set.Get(key)
			inputs[i].SetValue(strconv.FormatFloat(v, 'g', -1, 64))
		}
	}
	return inputs
}

func (m *Model) setFocus(idx int) tea.Cmd {
	count := len(m.inputs)
	if count == 0 {
		return nil
	}
	if idx < 0 {
		idx = count - 1
	}
	if idx >= count {
		idx = 0
	}
	m.focus = idx
	var cmd tea.Cmd
	for i := range m.inputs {
		if i == m.focus {
			cmd = m.inputs[i].Focus()
		} else {
			m.inputs[i].Blur()
		}
	}
	return cmd
}

func (m *Model) blurInputs() {
	for i := range m.inputs {
		m.inputs[i].Blur()
	}
}

// formParams parses and validates the seven fields.
func (m Model) formParams() (params.Set, error) {
	var set params.Set
	for i, key := range params.Keys {
		raw := strings.TrimSpace(m.inputs[i].Value())
		if raw == "" {
			if requiredFields[key] {
				return params.Set{}, fmt.Errorf("%s is required", key)
			}
			continue
		}
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return params.Set{}, fmt.Errorf("%s: %q is not a number", key, raw)
		}
		set, _ = set.With(key, v)
	}
	if err := set.Validate(); err != nil {
		return params.Set{}, err
	}
	return set, nil
}
