package main

import (
	"fmt"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	runtimebridge "github.com/wippyai/runtime-bridge"
	"github.com/wippyai/runtime-bridge/bridge"
	"github.com/wippyai/runtime-bridge/heap"
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FAFAFA")).
			Background(lipgloss.Color("#7D56F4")).
			Padding(0, 1)

	opStyle = lipgloss.NewStyle().
		Foreground(lipgloss.Color("#98FB98"))

	typeStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#87CEEB"))

	selectedStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FAFAFA")).
			Background(lipgloss.Color("#7D56F4"))

	resultStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#90EE90"))

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FF6B6B"))

	helpStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#666666"))
)

type inspectorModel struct {
	err      error
	h        *heap.Heap
	br       *bridge.Bridge
	refs     map[runtimebridge.Raw][]*bridge.Ref
	objects  []heap.Object
	stats    heap.Stats
	result   string
	inputs   []textinput.Model
	selected int
	focusIdx int
	creating createKind
	state    modelState
}

type modelState int

const (
	stateBrowse modelState = iota
	stateCreate
	stateShowResult
)

type createKind int

const (
	createStr createKind = iota
	createBytes
	createDecode
)

func (k createKind) title() string {
	switch k {
	case createStr:
		return "new str"
	case createBytes:
		return "new bytes"
	case createDecode:
		return "decode"
	}
	return "unknown"
}

func newInspectorModel() (*inspectorModel, error) {
	h := heap.New(nil)
	br, err := bridge.New(h, nil)
	if err != nil {
		return nil, err
	}
	m := &inspectorModel{
		h:    h,
		br:   br,
		refs: make(map[runtimebridge.Raw][]*bridge.Ref),
	}
	m.refresh()
	return m, nil
}

type createdMsg struct {
	err    error
	ref    *bridge.Ref
	result string
}

type opResultMsg struct {
	err    error
	result string
}

func (m *inspectorModel) Init() tea.Cmd {
	return nil
}

func (m *inspectorModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c":
			return m, tea.Quit

		case "q":
			// In the create form "q" is just a letter.
			if m.state != stateCreate {
				return m, tea.Quit
			}

		case "up", "k":
			if m.state == stateBrowse && m.selected > 0 {
				m.selected--
			}

		case "down", "j":
			if m.state == stateBrowse && m.selected < len(m.objects)-1 {
				m.selected++
			}

		case "s":
			if m.state == stateBrowse {
				m.prepareInputs(createStr)
				m.state = stateCreate
			}

		case "b":
			if m.state == stateBrowse {
				m.prepareInputs(createBytes)
				m.state = stateCreate
			}

		case "d":
			if m.state == stateBrowse {
				m.prepareInputs(createDecode)
				m.state = stateCreate
			}

		case "+":
			if m.state == stateBrowse && len(m.objects) > 0 {
				m.retainSelected()
			}

		case "-":
			if m.state == stateBrowse && len(m.objects) > 0 {
				m.releaseSelected()
			}

		case "x":
			if m.state == stateBrowse && len(m.objects) > 0 {
				m.dropSelected()
			}

		case "enter":
			switch m.state {
			case stateBrowse:
				if len(m.objects) > 0 {
					return m, m.inspectSelected
				}

			case stateCreate:
				return m, m.create

			case stateShowResult:
				m.state = stateBrowse
				m.result = ""
				m.err = nil
			}

		case "tab":
			if m.state == stateCreate && len(m.inputs) > 1 {
				m.inputs[m.focusIdx].Blur()
				m.focusIdx = (m.focusIdx + 1) % len(m.inputs)
				m.inputs[m.focusIdx].Focus()
			}

		case "esc":
			switch m.state {
			case stateCreate:
				m.state = stateBrowse
				m.inputs = nil
			case stateShowResult:
				m.state = stateBrowse
				m.result = ""
				m.err = nil
			}
		}

	case createdMsg:
		if msg.err == nil && msg.ref != nil {
			m.refs[msg.ref.Raw()] = append(m.refs[msg.ref.Raw()], msg.ref)
		}
		m.result = msg.result
		m.err = msg.err
		m.state = stateShowResult
		m.inputs = nil
		m.refresh()

	case opResultMsg:
		m.result = msg.result
		m.err = msg.err
		m.state = stateShowResult
		m.refresh()
	}

	if m.state == stateCreate {
		var cmds []tea.Cmd
		for i := range m.inputs {
			var cmd tea.Cmd
			m.inputs[i], cmd = m.inputs[i].Update(msg)
			cmds = append(cmds, cmd)
		}
		return m, tea.Batch(cmds...)
	}

	return m, nil
}

type fieldSpec struct {
	name        string
	placeholder string
}

func (m *inspectorModel) prepareInputs(kind createKind) {
	var fields []fieldSpec
	switch kind {
	case createStr:
		fields = []fieldSpec{{"text", `ascii 🐈 or \xff escapes`}}
	case createBytes:
		fields = []fieldSpec{{"bytes", `\xde\x00\xad`}}
	case createDecode:
		fields = []fieldSpec{
			{"bytes", `caf\xe9`},
			{"encoding", "latin-1"},
			{"policy", "strict or replace"},
		}
	}

	m.inputs = make([]textinput.Model, len(fields))
	for i, f := range fields {
		ti := textinput.New()
		ti.Placeholder = f.placeholder
		ti.Prompt = f.name + ": "
		ti.Width = 40
		if i == 0 {
			ti.Focus()
		}
		m.inputs[i] = ti
	}
	m.focusIdx = 0
	m.creating = kind
}

// refresh re-reads the heap after any operation that may have changed it.
func (m *inspectorModel) refresh() {
	m.objects = m.h.Snapshot()
	m.stats = m.h.Stats()
	if m.selected >= len(m.objects) {
		m.selected = len(m.objects) - 1
	}
	if m.selected < 0 {
		m.selected = 0
	}
}

func (m *inspectorModel) create() tea.Msg {
	switch m.creating {
	case createStr:
		data := parseInput(m.inputs[0].Value())
		var ref *bridge.Ref
		var b strings.Builder
		err := m.br.With(func(tok *bridge.Token) error {
			owned := bridge.NewStr(tok, string(data))
			ref = owned.Ref()
			s := owned.Bind(tok)
			fmt.Fprintf(&b, "created str (handle %d)\n", ref.Raw())
			fmt.Fprintf(&b, "utf-8: % x\n", s.Bytes())
			if text, err := s.Text(); err == nil {
				fmt.Fprintf(&b, "text:  %q", text)
			} else {
				fmt.Fprintf(&b, "text:  %v\n", err)
				fmt.Fprintf(&b, "lossy: %q", s.TextLossy())
			}
			return nil
		})
		if err != nil {
			return createdMsg{err: err}
		}
		return createdMsg{ref: ref, result: b.String()}

	case createBytes:
		data := parseInput(m.inputs[0].Value())
		var ref *bridge.Ref
		var b strings.Builder
		err := m.br.With(func(tok *bridge.Token) error {
			owned := bridge.NewBytes(tok, data)
			ref = owned.Ref()
			v := owned.Bind(tok)
			fmt.Fprintf(&b, "created bytes (handle %d)\n", ref.Raw())
			fmt.Fprintf(&b, "len:   %d\n", v.Len())
			fmt.Fprintf(&b, "bytes: % x", v.Bytes())
			return nil
		})
		if err != nil {
			return createdMsg{err: err}
		}
		return createdMsg{ref: ref, result: b.String()}

	case createDecode:
		data := parseInput(m.inputs[0].Value())
		encoding := m.inputs[1].Value()
		if encoding == "" {
			encoding = "utf-8"
		}
		policy := m.inputs[2].Value()
		if policy == "" {
			policy = "strict"
		}
		var ref *bridge.Ref
		var b strings.Builder
		err := m.br.With(func(tok *bridge.Token) error {
			src := bridge.NewBytes(tok, data)
			defer src.Close(tok)
			owned, err := bridge.StrFromEncoded(src.Bind(tok).Object(), encoding, policy)
			if err != nil {
				return err
			}
			s := owned.Bind(tok)
			text, err := s.Text()
			if err != nil {
				_ = owned.Close(tok)
				return err
			}
			ref = owned.Ref()
			fmt.Fprintf(&b, "decoded %d bytes as %s (%s) to str (handle %d)\n", len(data), encoding, policy, ref.Raw())
			fmt.Fprintf(&b, "utf-8: % x\n", s.Bytes())
			fmt.Fprintf(&b, "text:  %q", text)
			return nil
		})
		if err != nil {
			return createdMsg{err: err}
		}
		return createdMsg{ref: ref, result: b.String()}
	}

	return nil
}

func (m *inspectorModel) inspectSelected() tea.Msg {
	o := m.objects[m.selected]
	refs := m.refs[o.Handle]
	if len(refs) == 0 {
		return opResultMsg{err: fmt.Errorf("no reference held for handle %d", o.Handle)}
	}

	var b strings.Builder
	err := m.br.With(func(tok *bridge.Token) error {
		obj := refs[0].Bind(tok)
		fmt.Fprintf(&b, "handle %d  type %s  refcount %d\n", o.Handle, o.Type, o.RefCount)

		if s, err := bridge.Downcast[bridge.Str](obj); err == nil {
			fmt.Fprintf(&b, "utf-8: % x\n", s.Bytes())
			if text, err := s.Text(); err == nil {
				fmt.Fprintf(&b, "text:  %q", text)
			} else {
				fmt.Fprintf(&b, "text:  %v\n", err)
				fmt.Fprintf(&b, "lossy: %q", s.TextLossy())
			}
			return nil
		}

		if v, err := bridge.Downcast[bridge.Bytes](obj); err == nil {
			fmt.Fprintf(&b, "len:   %d\n", v.Len())
			fmt.Fprintf(&b, "bytes: % x", v.Bytes())
			return nil
		}

		fmt.Fprintf(&b, "value: %v", o.Value)
		return nil
	})
	if err != nil {
		return opResultMsg{err: err}
	}
	return opResultMsg{result: b.String()}
}

func (m *inspectorModel) retainSelected() {
	o := m.objects[m.selected]
	refs := m.refs[o.Handle]
	if len(refs) == 0 {
		return
	}
	_ = m.br.With(func(tok *bridge.Token) error {
		m.refs[o.Handle] = append(refs, refs[0].Clone(tok))
		return nil
	})
	m.refresh()
}

func (m *inspectorModel) releaseSelected() {
	o := m.objects[m.selected]
	refs := m.refs[o.Handle]
	if len(refs) == 0 {
		return
	}
	last := refs[len(refs)-1]
	_ = m.br.With(func(tok *bridge.Token) error {
		return last.Close(tok)
	})
	if len(refs) == 1 {
		delete(m.refs, o.Handle)
	} else {
		m.refs[o.Handle] = refs[:len(refs)-1]
	}
	m.refresh()
}

func (m *inspectorModel) dropSelected() {
	o := m.objects[m.selected]
	refs := m.refs[o.Handle]
	if len(refs) == 0 {
		return
	}
	_ = m.br.With(func(tok *bridge.Token) error {
		for _, r := range refs {
			_ = r.Close(tok)
		}
		return nil
	})
	delete(m.refs, o.Handle)
	m.refresh()
}

func (m *inspectorModel) View() string {
	if m.err != nil && m.state != stateShowResult {
		return errorStyle.Render(fmt.Sprintf("Error: %v\n\nPress q to quit.", m.err))
	}

	var b strings.Builder

	b.WriteString(titleStyle.Render("Heap Inspector"))
	b.WriteString(" ")
	b.WriteString(fmt.Sprintf("in-process runtime %s", m.h.RuntimeVersion()))
	b.WriteString("\n\n")

	switch m.state {
	case stateBrowse:
		if len(m.objects) == 0 {
			b.WriteString(helpStyle.Render("no live objects"))
			b.WriteString("\n")
		} else {
			b.WriteString("Live objects:\n\n")
			for i, o := range m.objects {
				cursor := "  "
				if i == m.selected {
					cursor = "> "
					b.WriteString(selectedStyle.Render(cursor + m.formatObject(o)))
				} else {
					b.WriteString(cursor + m.formatObject(o))
				}
				b.WriteString("\n")
			}
		}
		b.WriteString("\n")
		b.WriteString(helpStyle.Render(fmt.Sprintf("created=%d destroyed=%d increfs=%d decrefs=%d live=%d",
			m.stats.Created, m.stats.Destroyed, m.stats.IncRefs, m.stats.DecRefs, m.stats.Live)))
		b.WriteString("\n\n")
		b.WriteString(helpStyle.Render("s str • b bytes • d decode • enter inspect • +/- retain/release • x drop • q quit"))

	case stateCreate:
		b.WriteString(fmt.Sprintf("%s\n\n", opStyle.Render(m.creating.title())))
		for _, input := range m.inputs {
			b.WriteString(input.View())
			b.WriteString("\n")
		}
		b.WriteString("\n")
		b.WriteString(helpStyle.Render("tab next field • enter run • esc back"))

	case stateShowResult:
		if m.err != nil {
			b.WriteString(errorStyle.Render(fmt.Sprintf("Error: %v", m.err)))
		} else {
			b.WriteString(resultStyle.Render(m.result))
		}
		b.WriteString("\n\n")
		b.WriteString(helpStyle.Render("enter continue • q quit"))
	}

	return b.String()
}

func (m *inspectorModel) formatObject(o heap.Object) string {
	return fmt.Sprintf("[%d] %s  refs=%d  %s", o.Handle, typeStyle.Render(o.Type), o.RefCount, preview(o))
}

func preview(o heap.Object) string {
	switch v := o.Value.(type) {
	case []byte:
		if o.Type == runtimebridge.TypeStr {
			return truncate(strconv.Quote(string(v)), 48)
		}
		return truncate(fmt.Sprintf("% x", v), 48)
	case int64:
		return strconv.FormatInt(v, 10)
	default:
		return fmt.Sprintf("%v", o.Value)
	}
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	cut := max
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + "..."
}

func runInteractive() error {
	m, err := newInspectorModel()
	if err != nil {
		return err
	}
	p := tea.NewProgram(m, tea.WithAltScreen())
	_, err = p.Run()
	return err
}
