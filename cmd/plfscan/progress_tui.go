package main

import (
	"fmt"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/RafaelBenildoMafra/Tia-Parser/internal/plf"
)

var passNames = []string{
	"Compressed-Fragment Extractor",
	"Reference-Block Resolver",
	"Raw-Block Extractor",
	"XML Decoder",
	"Element-Block Extractor & Linker",
	"Address Materializer",
}

// runResultMsg carries the pipeline's outcome back into the bubbletea loop.
type runResultMsg struct {
	result plf.Result
	err    error
}

type progressModel struct {
	pass   int
	done   bool
	result plf.Result
	err    error
	run    func() (plf.Result, error)
}

func newProgressModel(run func() (plf.Result, error)) progressModel {
	return progressModel{run: run}
}

func (m progressModel) Init() tea.Cmd {
	return tea.Batch(tickPass(), runPipeline(m.run))
}

func runPipeline(run func() (plf.Result, error)) tea.Cmd {
	return func() tea.Msg {
		result, err := run()
		return runResultMsg{result: result, err: err}
	}
}

type tickMsg struct{}

func tickPass() tea.Cmd {
	return func() tea.Msg { return tickMsg{} }
}

func (m progressModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tickMsg:
		if m.pass < len(passNames)-1 && !m.done {
			m.pass++
			return m, tickPass()
		}
		return m, nil
	case runResultMsg:
		m.done = true
		m.result = msg.result
		m.err = msg.err
		m.pass = len(passNames) - 1
		return m, tea.Quit
	case tea.KeyMsg:
		if msg.String() == "ctrl+c" {
			return m, tea.Quit
		}
	}
	return m, nil
}

var progressBarStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))

func (m progressModel) View() string {
	if m.done {
		return ""
	}
	label := passNames[m.pass]
	return progressBarStyle.Render(fmt.Sprintf("[%d/6] %s...\n", m.pass+1, label))
}

// runWithProgress drives run() while a bubbletea program renders the
// six-pass sequence; the pass ticks are cosmetic since the driver itself
// doesn't report incremental progress across a tea.Program boundary.
func runWithProgress(run func() (plf.Result, error)) (plf.Result, error) {
	m := newProgressModel(run)
	p := tea.NewProgram(m)
	final, err := p.Run()
	if err != nil {
		return plf.Result{}, err
	}
	fm := final.(progressModel)
	return fm.result, fm.err
}
