// research-console is the terminal UI for supervising deep-research runs:
// it submits queries, streams progress, and lets the operator approve or
// edit the research plan when the agent pauses for human input.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/joho/godotenv"

	"github.com/Milix-M/DeepReSearch/internal/config"
	"github.com/Milix-M/DeepReSearch/internal/dashboard"
	"github.com/Milix-M/DeepReSearch/internal/planform"
	"github.com/Milix-M/DeepReSearch/internal/registry"
	"github.com/Milix-M/DeepReSearch/internal/restapi"
	"github.com/Milix-M/DeepReSearch/internal/session"
	"github.com/Milix-M/DeepReSearch/internal/timeline"
	"github.com/Milix-M/DeepReSearch/internal/titlestore"
	"github.com/Milix-M/DeepReSearch/pkg/logger"
)

const helpLine = "Enter: 調査開始 | /approve 承認 | /edit <path> 計画編集 | /select <id> | /new | /quit"

// stateChangedMsg is posted by the controller whenever its state mutates.
type stateChangedMsg struct{}

// programSender is the slice of tea.Program the notifier needs.
type programSender interface {
	Send(msg tea.Msg)
}

// uiNotifier forwards controller change signals to the UI. The controller's
// poll goroutine starts before the tea.Program exists, so the target must be
// published under a lock rather than read from a plain variable.
type uiNotifier struct {
	mu     sync.Mutex
	target programSender
}

func (n *uiNotifier) attach(p programSender) {
	n.mu.Lock()
	n.target = p
	n.mu.Unlock()
}

func (n *uiNotifier) notify() {
	n.mu.Lock()
	target := n.target
	n.mu.Unlock()
	if target != nil {
		target.Send(stateChangedMsg{})
	}
}

type theme struct {
	header    lipgloss.Style
	sidebar   lipgloss.Style
	selected  lipgloss.Style
	user      lipgloss.Style
	assistant lipgloss.Style
	system    lipgloss.Style
	title     lipgloss.Style
	status    lipgloss.Style
	banner    lipgloss.Style
	divider   lipgloss.Style
	help      lipgloss.Style
}

func newTheme() theme {
	blue := lipgloss.Color("#01cdfe")
	mint := lipgloss.Color("#05ffa1")
	pink := lipgloss.Color("#ff71ce")
	muted := lipgloss.Color("#6c7086")
	return theme{
		header:    lipgloss.NewStyle().Foreground(blue).Bold(true),
		sidebar:   lipgloss.NewStyle().Foreground(muted),
		selected:  lipgloss.NewStyle().Foreground(mint).Bold(true),
		user:      lipgloss.NewStyle().Foreground(mint).Bold(true),
		assistant: lipgloss.NewStyle().Foreground(blue),
		system:    lipgloss.NewStyle().Foreground(muted),
		title:     lipgloss.NewStyle().Bold(true),
		status:    lipgloss.NewStyle().Foreground(blue).Italic(true),
		banner:    lipgloss.NewStyle().Foreground(pink).Bold(true),
		divider:   lipgloss.NewStyle().Foreground(pink),
		help:      lipgloss.NewStyle().Foreground(muted),
	}
}

type model struct {
	ctrl    *session.Controller
	input   textinput.Model
	body    viewport.Model
	spin    spinner.Model
	theme   theme
	width   int
	height  int
	ready   bool
	quiting bool
}

func newModel(ctrl *session.Controller) model {
	input := textinput.New()
	input.Prompt = "❯ "
	input.CharLimit = 2000
	input.Placeholder = "調査したいテーマを入力してください"
	input.Focus()

	sp := spinner.New()
	sp.Spinner = spinner.Points

	body := viewport.New(0, 0)
	body.MouseWheelEnabled = true

	return model{
		ctrl:  ctrl,
		input: input,
		body:  body,
		spin:  sp,
		theme: newTheme(),
	}
}

func (m model) Init() tea.Cmd {
	return m.spin.Tick
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.body.Width = msg.Width - sidebarWidth - 3
		m.body.Height = msg.Height - 6
		m.ready = true
		m.body.SetContent(m.renderBody())
	case stateChangedMsg:
		m.body.SetContent(m.renderBody())
		m.body.GotoBottom()
	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spin, cmd = m.spin.Update(msg)
		return m, cmd
	case tea.KeyMsg:
		switch msg.Type {
		case tea.KeyCtrlC, tea.KeyEsc:
			m.quiting = true
			m.ctrl.Close()
			return m, tea.Quit
		case tea.KeyEnter:
			line := strings.TrimSpace(m.input.Value())
			m.input.SetValue("")
			m.handleLine(line)
			if m.quiting {
				return m, tea.Quit
			}
			return m, nil
		case tea.KeyTab:
			m.cycleThread()
			return m, nil
		}
	}

	var cmds []tea.Cmd
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	cmds = append(cmds, cmd)
	m.body, cmd = m.body.Update(msg)
	cmds = append(cmds, cmd)
	return m, tea.Batch(cmds...)
}

func (m *model) handleLine(line string) {
	if line == "" {
		return
	}
	if !strings.HasPrefix(line, "/") {
		_ = m.ctrl.Submit(line)
		return
	}
	parts := strings.SplitN(line, " ", 2)
	arg := ""
	if len(parts) > 1 {
		arg = strings.TrimSpace(parts[1])
	}
	switch parts[0] {
	case "/approve", "/a":
		_ = m.ctrl.Resume(session.DecisionApprove, nil)
	case "/edit", "/e":
		m.resumeWithPlanFile(arg)
	case "/select", "/s":
		m.ctrl.SelectThread(arg)
	case "/new", "/n":
		m.ctrl.BeginNewThread()
	case "/quit", "/q":
		m.quiting = true
		m.ctrl.Close()
	}
}

// resumeWithPlanFile reads an edited plan JSON from disk and submits it,
// mirroring the file-based edit flow of the reference client.
func (m *model) resumeWithPlanFile(path string) {
	if path == "" {
		v := m.ctrl.View()
		if v.HasPlanForm {
			form := v.PlanForm
			_ = m.ctrl.Resume(session.DecisionEdit, &form)
		}
		return
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		logger.Warn("plan file unreadable", logger.FieldPath, path, logger.FieldError, err)
		return
	}
	var doc map[string]any
	if err := json.Unmarshal(raw, &doc); err != nil {
		logger.Warn("plan file is not valid JSON", logger.FieldPath, path, logger.FieldError, err)
		return
	}
	form := planform.Parse(doc)
	_ = m.ctrl.Resume(session.DecisionEdit, &form)
}

func (m *model) cycleThread() {
	v := m.ctrl.View()
	if len(v.Threads) == 0 {
		return
	}
	next := v.Threads[0].ID
	for i, th := range v.Threads {
		if th.ID == v.ActiveThreadID && i+1 < len(v.Threads) {
			next = v.Threads[i+1].ID
			break
		}
	}
	m.ctrl.SelectThread(next)
}

const sidebarWidth = 28

func (m model) View() string {
	if m.quiting {
		return "終了します。\n"
	}
	if !m.ready {
		return "起動中..."
	}
	v := m.ctrl.View()

	header := m.theme.header.Render("Deep Research Console")
	if v.Connecting {
		header += "  " + m.spin.View() + m.theme.status.Render(" 接続中...")
	}

	sidebar := m.renderSidebar(v)
	main := m.body.View()
	row := lipgloss.JoinHorizontal(lipgloss.Top,
		lipgloss.NewStyle().Width(sidebarWidth).Render(sidebar),
		" │ ",
		main,
	)

	footer := m.input.View()
	if v.Banner != "" {
		footer = m.theme.banner.Render(v.Banner) + "\n" + footer
	}
	return header + "\n" + row + "\n" + footer + "\n" + m.theme.help.Render(helpLine)
}

func (m model) renderSidebar(v session.View) string {
	var b strings.Builder
	b.WriteString(m.theme.title.Render("スレッド"))
	b.WriteString("\n")
	if len(v.Threads) == 0 {
		b.WriteString(m.theme.sidebar.Render("(まだありません)"))
	}
	for _, th := range v.Threads {
		marker := "  "
		style := m.theme.sidebar
		if th.ID == v.ActiveThreadID {
			marker = "> "
			style = m.theme.selected
		}
		b.WriteString(style.Render(fmt.Sprintf("%s%s [%s]", marker, th.Title, th.Status)))
		b.WriteString("\n")
	}
	return b.String()
}

func (m model) renderBody() string {
	v := m.ctrl.View()
	var b strings.Builder

	for _, msg := range v.BeforeInterrupt {
		b.WriteString(m.renderMessage(msg))
	}

	if v.PendingInterrupt != nil {
		b.WriteString(m.theme.divider.Render("── 調査計画の承認待ち ──"))
		b.WriteString("\n")
		if v.HasPlanForm {
			b.WriteString(renderPlan(v.PlanForm))
		}
		b.WriteString(m.theme.help.Render("/approve で承認、/edit <path> で編集した計画を送信"))
		b.WriteString("\n\n")
	}

	for _, msg := range v.AfterInterrupt {
		b.WriteString(m.renderMessage(msg))
	}

	if v.StatusLine != "" {
		b.WriteString(m.theme.status.Render(m.spin.View() + " " + v.StatusLine))
		b.WriteString("\n")
	}
	if frac := v.Progress.Fraction; frac > 0 && v.Report == "" {
		b.WriteString(renderProgress(v.Progress))
	}
	if v.Report != "" {
		b.WriteString(m.theme.divider.Render("── 最終レポート ──"))
		b.WriteString("\n")
		b.WriteString(v.Report)
		b.WriteString("\n")
	}
	return b.String()
}

func (m model) renderMessage(msg timeline.Message) string {
	var style lipgloss.Style
	var label string
	switch msg.Role {
	case timeline.RoleUser:
		style, label = m.theme.user, "あなた"
	case timeline.RoleAssistant:
		style, label = m.theme.assistant, "エージェント"
	default:
		style, label = m.theme.system, "システム"
	}
	head := style.Render(label)
	if msg.Title != "" {
		head += " " + m.theme.title.Render(msg.Title)
	}
	out := head + "\n" + msg.Content + "\n"
	if msg.Reasoning != "" {
		out += m.theme.system.Render("思考ログ: "+msg.Reasoning) + "\n"
	}
	return out + "\n"
}

func renderPlan(form planform.Form) string {
	var b strings.Builder
	fmt.Fprintf(&b, "目的: %s\n", form.Purpose)
	for i, sec := range form.Sections {
		fmt.Fprintf(&b, "%d. %s — %s\n", i+1, sec.Title, sec.Focus)
		for _, q := range sec.KeyQuestions {
			fmt.Fprintf(&b, "   ・%s\n", q)
		}
	}
	if form.MetaAnalysis != "" {
		fmt.Fprintf(&b, "分析メモ: %s\n", form.MetaAnalysis)
	}
	return b.String()
}

func renderProgress(p session.Progress) string {
	var b strings.Builder
	for _, step := range p.Steps {
		mark := "□"
		if step.Done {
			mark = "■"
		}
		fmt.Fprintf(&b, "%s %s  ", mark, step.Label)
	}
	fmt.Fprintf(&b, "(%.0f%%)\n", p.Fraction*100)
	return b.String()
}

func main() {
	_ = godotenv.Load()
	cfg := config.Load()

	logger.Init(cfg.LogEnv)
	if cfg.LogDir != "" {
		if err := logger.InitWithFile(cfg.LogDir); err != nil {
			fmt.Fprintf(os.Stderr, "log file init failed: %v\n", err)
		}
		defer logger.ShutdownFileHandler()
	}

	titles, err := titlestore.Open(filepath.Join(cfg.StateDir, "titles"))
	if err != nil {
		fmt.Fprintf(os.Stderr, "title store unavailable: %v\n", err)
		titles = nil
	}
	if titles != nil {
		defer titles.Close()
	}

	var store registry.TitleStore
	if titles != nil {
		store = titles
	}
	reg := registry.New(store)

	rest := restapi.New(cfg.APIBaseURL, time.Duration(cfg.RequestTimeoutSec)*time.Second)

	notify := &uiNotifier{}
	ctrl := session.New(session.Options{
		WSURL:        cfg.WebSocketURL(),
		Registry:     reg,
		Rest:         rest,
		PollInterval: time.Duration(cfg.PollIntervalSec) * time.Second,
		OnChange:     notify.notify,
	})
	ctrl.Start()
	defer ctrl.Close()

	if cfg.DashboardAddr != "" {
		dashboard.NewServer(reg, ctrl).Serve(cfg.DashboardAddr)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	if _, err := rest.Health(ctx); err != nil {
		logger.Warn("research server unreachable", logger.FieldURL, cfg.APIBaseURL, logger.FieldError, err)
	}
	cancel()

	program := tea.NewProgram(newModel(ctrl), tea.WithAltScreen(), tea.WithMouseCellMotion())
	notify.attach(program)
	if _, err := program.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "console failed: %v\n", err)
		os.Exit(1)
	}
}
