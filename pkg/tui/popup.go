package tui

import (
	tea "github.com/charmbracelet/bubbletea"

	"github.com/charmbracelet/bubbles/textinput"
)

// PopupKind is the closed set of transient overlays (spec §4.8: "popups
// (confirm, prompt, details)").
type PopupKind struct{ v int }

var (
	PopupNone    = PopupKind{0}
	PopupConfirm = PopupKind{1}
	PopupPrompt  = PopupKind{2}
	PopupDetails = PopupKind{3}
)

// Popup is the active overlay state. Only one is ever live at a time;
// while Kind != PopupNone the popup has input focus (spec §4.8's
// "except ... when any popup has focus" dispatch rule).
type Popup struct {
	Kind    PopupKind
	Title   string
	Message string // confirm/details body text
	Input   textinput.Model

	// OnConfirm runs when the operator accepts the popup (Enter on a
	// prompt/confirm). It receives the current model and the prompt's
	// text (empty for confirm popups) and returns the updated model plus
	// any side-effect command.
	OnConfirm func(Model, string) (Model, tea.Cmd)
}

func newPrompt(title string, onConfirm func(Model, string) (Model, tea.Cmd)) Popup {
	ti := textinput.New()
	ti.Placeholder = "name"
	ti.Focus()
	return Popup{Kind: PopupPrompt, Title: title, Input: ti, OnConfirm: onConfirm}
}

func newConfirm(title, message string, onConfirm func(Model, string) (Model, tea.Cmd)) Popup {
	return Popup{Kind: PopupConfirm, Title: title, Message: message, OnConfirm: onConfirm}
}

func newDetails(title, message string) Popup {
	return Popup{Kind: PopupDetails, Title: title, Message: message}
}
