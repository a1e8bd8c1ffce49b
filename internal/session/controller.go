// Package session owns the single live WebSocket to the research server and
// integrates every client-side component: it dispatches incoming frames to
// the registry, interpreter and insight aggregator, exposes the user commands
// (submit, select, resume), reconciles with the REST poll, and derives the
// view state the terminal UI renders.
package session

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/Milix-M/DeepReSearch/internal/insight"
	"github.com/Milix-M/DeepReSearch/internal/interpret"
	"github.com/Milix-M/DeepReSearch/internal/planform"
	"github.com/Milix-M/DeepReSearch/internal/registry"
	"github.com/Milix-M/DeepReSearch/internal/restapi"
	"github.com/Milix-M/DeepReSearch/internal/timeline"
	apperrors "github.com/Milix-M/DeepReSearch/pkg/errors"
	"github.com/Milix-M/DeepReSearch/pkg/logger"
	"github.com/Milix-M/DeepReSearch/pkg/util"
)

// interruptBoilerplate is the server's canonical interrupt prompt. It carries
// no information beyond "an interrupt happened", so it is never logged as a
// transcript message.
const interruptBoilerplate = "調査計画を編集しますか？"

// User-facing texts.
const (
	msgQueryRequired  = "調査クエリを入力してください。"
	msgNotConnected   = "サーバーに接続されていません。"
	msgNoInterrupt    = "承認待ちの調査計画がありません。"
	msgThreadMismatch = "表示中のスレッドは現在のセッションと異なるため再開できません。"
	msgStarted        = "リサーチを開始しました。"
	msgPlanApproved   = "調査計画を承認しました。"
	msgPlanEdited     = "編集した調査計画を送信しました。"
	msgSendFailed     = "サーバーへの送信に失敗しました。"
	msgConnectFailed  = "サーバーに接続できませんでした。"
	msgConnectionLost = "サーバーとの接続が切断されました。"
)

const defaultPollInterval = 15 * time.Second

// restClient is the slice of restapi.Client the controller needs. Tests
// substitute a stub.
type restClient interface {
	Threads(ctx context.Context) (restapi.ThreadList, error)
	ThreadState(ctx context.Context, threadID string) (restapi.ThreadState, error)
}

// Options configures a Controller.
type Options struct {
	WSURL        string
	Registry     *registry.Registry
	Rest         restClient
	PollInterval time.Duration
	// OnChange is invoked after every state mutation, outside the
	// controller lock. The TUI uses it to trigger a re-render.
	OnChange func()
}

// Controller is the conversation/state core. All frame handlers and commands
// run under one mutex, so no two of them ever interleave.
type Controller struct {
	mu sync.Mutex

	wsURL    string
	registry *registry.Registry
	rest     restClient
	insight  *insight.Aggregator
	ids      *timeline.IDGenerator
	onChange func()

	conn         *websocket.Conn
	send         func(v any) error
	dial         func(url string) (*websocket.Conn, error)
	connecting   bool
	connThreadID string
	pendingQuery string

	activeThreadID string
	draftMode      bool
	banner         string

	messages   map[string][]timeline.Message
	statusLine map[string]string
	interrupts map[string]*restapi.Interrupt
	planForms  map[string]planform.Form
	editing    map[string]bool
	lastStates map[string]map[string]any

	pollInterval time.Duration
	done         chan struct{}
	closeOnce    sync.Once
}

// New creates a controller. Call Start to begin the REST poll loop.
func New(opts Options) *Controller {
	interval := opts.PollInterval
	if interval <= 0 {
		interval = defaultPollInterval
	}
	c := &Controller{
		wsURL:        opts.WSURL,
		registry:     opts.Registry,
		rest:         opts.Rest,
		insight:      insight.NewAggregator(),
		ids:          timeline.NewIDGenerator(shortSalt()),
		onChange:     opts.OnChange,
		messages:     map[string][]timeline.Message{},
		statusLine:   map[string]string{},
		interrupts:   map[string]*restapi.Interrupt{},
		planForms:    map[string]planform.Form{},
		editing:      map[string]bool{},
		lastStates:   map[string]map[string]any{},
		pollInterval: interval,
		done:         make(chan struct{}),
	}
	c.dial = dialWS
	return c
}

// shortSalt keeps draft ids unique across console restarts.
func shortSalt() string {
	id := uuid.NewString()
	return id[:8]
}

func dialWS(url string) (*websocket.Conn, error) {
	dialer := websocket.Dialer{HandshakeTimeout: 5 * time.Second}
	conn, _, err := dialer.Dial(url, nil)
	if err != nil {
		return nil, err
	}
	return conn, nil
}

// Start launches the periodic REST reconciliation loop.
func (c *Controller) Start() {
	util.SafeGo(func() { c.pollLoop() })
}

// Close shuts the socket and stops the poll loop.
func (c *Controller) Close() {
	c.closeOnce.Do(func() { close(c.done) })
	c.mu.Lock()
	conn := c.conn
	c.conn = nil
	c.send = nil
	c.connecting = false
	c.mu.Unlock()
	if conn != nil {
		_ = conn.Close()
	}
}

func (c *Controller) notify() {
	if c.onChange != nil {
		c.onChange()
	}
}

// ─── Commands ───

// Submit starts a new research session for query. Any previous session's
// socket is closed first; only one live session exists at a time.
func (c *Controller) Submit(query string) error {
	query = strings.TrimSpace(query)

	c.mu.Lock()
	if c.connecting {
		c.mu.Unlock()
		return nil
	}
	if query == "" {
		c.banner = msgQueryRequired
		c.mu.Unlock()
		c.notify()
		return apperrors.Wrap(apperrors.ErrInvalidInput, "Session.Submit", msgQueryRequired)
	}
	prev := c.conn
	prevThread := c.connThreadID
	c.conn = nil
	c.send = nil
	c.connThreadID = ""
	if prevThread != "" {
		delete(c.statusLine, prevThread)
	}
	c.connecting = true
	c.pendingQuery = query
	c.banner = ""
	c.mu.Unlock()

	if prev != nil {
		closeMsg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "new session")
		_ = prev.WriteMessage(websocket.CloseMessage, closeMsg)
		_ = prev.Close()
	}
	c.notify()

	util.SafeGo(func() { c.connectAndRead(query) })
	return nil
}

func (c *Controller) connectAndRead(query string) {
	conn, err := c.dial(c.wsURL)
	if err != nil {
		logger.Error("websocket dial failed", logger.FieldURL, c.wsURL, logger.FieldError, err)
		c.mu.Lock()
		c.connecting = false
		c.banner = msgConnectFailed
		c.mu.Unlock()
		c.notify()
		return
	}

	c.mu.Lock()
	c.conn = conn
	c.send = conn.WriteJSON
	send := c.send
	c.mu.Unlock()

	if err := send(startCommand{Query: query}); err != nil {
		logger.Error("start command failed", logger.FieldError, err)
		c.mu.Lock()
		if c.conn == conn {
			c.conn = nil
			c.send = nil
		}
		c.connecting = false
		c.banner = msgSendFailed
		c.mu.Unlock()
		_ = conn.Close()
		c.notify()
		return
	}
	c.readLoop(conn)
}

func (c *Controller) readLoop(conn *websocket.Conn) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			c.socketClosed(conn, err)
			return
		}
		var f Frame
		if err := json.Unmarshal(data, &f); err != nil {
			logger.Warn("unparsable frame dropped", logger.FieldError, err)
			continue
		}
		c.HandleFrame(f)
	}
}

func (c *Controller) socketClosed(conn *websocket.Conn, err error) {
	c.mu.Lock()
	if c.conn != conn {
		// a newer session already replaced this socket
		c.mu.Unlock()
		return
	}
	c.conn = nil
	c.send = nil
	c.connecting = false
	thread := c.connThreadID
	c.connThreadID = ""
	if thread != "" {
		delete(c.statusLine, thread)
	}
	abnormal := err != nil && !websocket.IsCloseError(err,
		websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseNoStatusReceived)
	if abnormal {
		c.banner = msgConnectionLost
		logger.Warn("websocket closed", logger.FieldThreadID, thread, logger.FieldError, err)
	}
	c.mu.Unlock()
	c.notify()
}

// SelectThread switches the displayed thread and refreshes its authoritative
// state in the background. The socket is untouched.
func (c *Controller) SelectThread(threadID string) {
	id := strings.TrimSpace(threadID)
	if id == "" {
		return
	}
	c.mu.Lock()
	c.activeThreadID = id
	c.draftMode = false
	c.mu.Unlock()
	c.notify()
	util.SafeGo(func() { c.refreshThread(id) })
}

// BeginNewThread enters drafting mode: no thread is displayed until the next
// thread_started frame.
func (c *Controller) BeginNewThread() {
	c.mu.Lock()
	c.draftMode = true
	c.banner = ""
	c.mu.Unlock()
	c.notify()
}

// SetEditing toggles plan-edit mode for the thread awaiting a decision.
func (c *Controller) SetEditing(threadID string, editing bool) {
	c.mu.Lock()
	c.editing[threadID] = editing
	c.mu.Unlock()
	c.notify()
}

// Resume answers the pending interrupt of the currently connected thread.
// DecisionApprove sends the decision alone; DecisionEdit validates form and
// sends the serialized plan with it. A pending approval on a thread other
// than the connected one cannot be answered over this socket and is refused
// with ErrThreadMismatch.
func (c *Controller) Resume(decision Decision, form *planform.Form) error {
	c.mu.Lock()

	if c.send == nil {
		c.banner = msgNotConnected
		c.mu.Unlock()
		c.notify()
		return apperrors.Wrap(apperrors.ErrNotConnected, "Session.Resume", msgNotConnected)
	}
	id := c.connThreadID
	if act := c.activeThreadID; act != "" && act != id && c.interrupts[act] != nil {
		c.banner = msgThreadMismatch
		c.mu.Unlock()
		c.notify()
		return apperrors.Wrap(apperrors.ErrThreadMismatch, "Session.Resume", msgThreadMismatch)
	}
	intr := c.interrupts[id]
	if id == "" || intr == nil {
		c.banner = msgNoInterrupt
		c.mu.Unlock()
		c.notify()
		return apperrors.Wrap(apperrors.ErrNoInterrupt, "Session.Resume", msgNoInterrupt)
	}

	cmd := resumeCommand{Decision: decision}
	note := msgPlanApproved
	if decision == DecisionEdit {
		if form == nil {
			c.banner = msgNoInterrupt
			c.mu.Unlock()
			c.notify()
			return apperrors.Wrap(apperrors.ErrInvalidInput, "Session.Resume", "edit decision without a plan")
		}
		if reason := planform.Validate(*form); reason != "" {
			c.banner = reason
			c.mu.Unlock()
			c.notify()
			return apperrors.Wrap(apperrors.ErrInvalidInput, "Session.Resume", reason)
		}
		cmd.Plan = planform.Serialize(*form)
		note = msgPlanEdited
	}

	send := c.send
	c.mu.Unlock()

	if err := send(cmd); err != nil {
		c.mu.Lock()
		c.banner = msgSendFailed
		c.mu.Unlock()
		c.notify()
		return apperrors.Wrap(err, "Session.Resume", "send resume command")
	}

	c.mu.Lock()
	if decision == DecisionEdit && form != nil {
		c.planForms[id] = planform.Clone(*form)
	}
	c.appendLocked(id, timeline.Message{
		ID:        c.ids.Next(timeline.PrefixDecision),
		Role:      timeline.RoleUser,
		Content:   note,
		CreatedAt: time.Now(),
	})
	delete(c.interrupts, id)
	c.editing[id] = false
	c.statusLine[id] = interpret.StatusResuming
	c.banner = ""
	c.mu.Unlock()

	c.registry.Ensure(id, "", registry.StatusRunning)
	logger.Info("resume sent",
		logger.FieldThreadID, id,
		logger.FieldDecision, string(decision),
		logger.FieldInterruptID, intr.ID)
	c.notify()
	return nil
}

// Messages returns a copy of one thread's transcript.
func (c *Controller) Messages(threadID string) []timeline.Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]timeline.Message(nil), c.messages[threadID]...)
}

// InsightState returns the thread's live insight, if any.
func (c *Controller) InsightState(threadID string) (insight.State, bool) {
	return c.insight.Get(threadID)
}

// PlanForm returns a deep copy of the thread's editable plan form.
func (c *Controller) PlanForm(threadID string) (planform.Form, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	form, ok := c.planForms[threadID]
	if !ok {
		return planform.Empty(), false
	}
	return planform.Clone(form), true
}

// ─── Frame dispatch ───

// HandleFrame applies one incoming frame to the controller state.
func (c *Controller) HandleFrame(f Frame) {
	switch f.Type {
	case FrameThreadStarted:
		c.handleThreadStarted(f.ThreadID)
	case FrameEvent:
		c.handleEvent(f.ThreadID, f.Payload)
	case FrameInterrupt:
		c.handleInterrupt(f.ThreadID, f.Interrupt)
	case FrameComplete:
		c.handleComplete(f.ThreadID, f.State)
	case FrameError:
		c.handleError(f.ThreadID, f.Message)
	default:
		logger.Debug("unknown frame dropped", logger.FieldFrameType, f.Type)
	}
	c.notify()
}

func (c *Controller) handleThreadStarted(threadID string) {
	if threadID == "" {
		return
	}
	c.mu.Lock()
	query := c.pendingQuery
	c.pendingQuery = ""
	c.connecting = false
	c.connThreadID = threadID
	c.activeThreadID = threadID
	c.draftMode = false
	delete(c.statusLine, threadID)
	c.mu.Unlock()

	c.insight.Clear(threadID)
	c.registry.RememberQuery(threadID, query)
	c.registry.Ensure(threadID, "", registry.StatusRunning)

	c.mu.Lock()
	now := time.Now()
	if query != "" {
		c.appendLocked(threadID, timeline.Message{
			ID:        c.ids.Next(timeline.PrefixMessage),
			Role:      timeline.RoleUser,
			Content:   query,
			CreatedAt: now,
		})
	}
	c.appendLocked(threadID, timeline.Message{
		ID:        c.ids.Next(timeline.PrefixMessage),
		Role:      timeline.RoleSystem,
		Content:   msgStarted,
		CreatedAt: now,
	})
	c.mu.Unlock()

	logger.Info("thread started", logger.FieldThreadID, threadID, logger.FieldQuery, query)
}

func (c *Controller) handleEvent(threadID string, payload map[string]any) {
	if threadID == "" {
		return
	}
	res := interpret.Interpret(payload)

	c.mu.Lock()
	appended := false
	if res.Status != nil {
		if res.Status.Clear {
			delete(c.statusLine, threadID)
		} else {
			c.statusLine[threadID] = res.Status.Message
			if res.Status.ShouldLog {
				appended = c.appendLocked(threadID, timeline.Message{
					ID:        c.ids.Next(timeline.PrefixMessage),
					Role:      timeline.RoleSystem,
					Content:   res.Status.Message,
					CreatedAt: time.Now(),
				}) || appended
			}
		}
	}
	if res.Detail != nil {
		appended = c.appendLocked(threadID, timeline.Message{
			ID:        c.ids.Next(timeline.PrefixMessage),
			Role:      timeline.RoleSystem,
			Title:     res.Detail.Title,
			Content:   res.Detail.Body,
			CreatedAt: time.Now(),
		}) || appended
	}
	c.mu.Unlock()

	if res.Insight != nil {
		out := c.insight.Apply(threadID, res.Insight)
		if out.Changed {
			c.mu.Lock()
			if out.Removed {
				c.messages[threadID] = timeline.RemoveByID(
					c.messages[threadID], timeline.InsightMessageID(threadID))
			} else {
				c.messages[threadID], _ = timeline.ReplaceByID(c.messages[threadID], out.Message)
			}
			c.mu.Unlock()
			appended = true
		}
	}

	// lastUpdated advances only when the transcript actually changed.
	if appended {
		c.registry.Touch(threadID, time.Now())
	}
}

func (c *Controller) handleInterrupt(threadID string, intr *restapi.Interrupt) {
	if threadID == "" || intr == nil {
		return
	}
	c.registry.Ensure(threadID, "", registry.StatusPendingHuman)

	c.mu.Lock()
	c.interrupts[threadID] = intr
	c.editing[threadID] = false
	delete(c.statusLine, threadID)

	if text, ok := intr.Value.(string); ok {
		if t := strings.TrimSpace(text); t != "" && t != interruptBoilerplate {
			c.appendLocked(threadID, timeline.Message{
				ID:        c.ids.Next(timeline.PrefixInterrupt),
				Role:      timeline.RoleSystem,
				Content:   t,
				CreatedAt: time.Now(),
			})
		}
	}
	// Immediate seed from the interrupt payload; the REST fetch below
	// replaces it with the authoritative plan when one exists.
	c.planForms[threadID] = planform.Parse(intr.Value)
	c.mu.Unlock()

	logger.Info("interrupt received",
		logger.FieldThreadID, threadID, logger.FieldInterruptID, intr.ID)
	util.SafeGo(func() { c.refreshThread(threadID) })
}

func (c *Controller) handleComplete(threadID string, state map[string]any) {
	if threadID == "" {
		return
	}
	c.registry.Ensure(threadID, "", registry.StatusCompleted)

	c.mu.Lock()
	delete(c.interrupts, threadID)
	delete(c.statusLine, threadID)
	c.editing[threadID] = false
	if state != nil {
		c.lastStates[threadID] = state
	}
	c.mu.Unlock()

	logger.Info("thread completed", logger.FieldThreadID, threadID)
}

func (c *Controller) handleError(threadID, message string) {
	c.mu.Lock()
	id := util.FirstNonEmpty(threadID, c.connThreadID, c.activeThreadID)
	c.banner = message
	if id != "" {
		delete(c.interrupts, id)
		delete(c.statusLine, id)
		if message != "" {
			c.appendLocked(id, timeline.Message{
				ID:        c.ids.Next(timeline.PrefixMessage),
				Role:      timeline.RoleSystem,
				Content:   message,
				CreatedAt: time.Now(),
			})
		}
	}
	c.mu.Unlock()

	if id != "" {
		c.registry.Ensure(id, "", registry.StatusError)
	}
	logger.Error("server error frame", logger.FieldThreadID, id, logger.FieldError, message)
}

// appendLocked appends with duplicate suppression. Caller holds c.mu.
func (c *Controller) appendLocked(threadID string, msg timeline.Message) bool {
	list, appended := timeline.AppendDedup(c.messages[threadID], msg)
	c.messages[threadID] = list
	return appended
}

// ─── REST reconciliation ───

func (c *Controller) pollLoop() {
	ticker := time.NewTicker(c.pollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-c.done:
			return
		case <-ticker.C:
			c.pollOnce()
		}
	}
}

func (c *Controller) pollOnce() {
	if c.rest == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), c.pollInterval)
	defer cancel()

	list, err := c.rest.Threads(ctx)
	if err != nil {
		logger.Warn("thread poll failed", logger.FieldError, err)
		return
	}
	c.MergeThreadList(list)

	// Fetch full state for pending threads we have no plan form for, so a
	// reopened console can rebuild its forms without the socket events.
	for _, id := range list.PendingInterruptIDs {
		c.mu.Lock()
		_, seeded := c.planForms[id]
		c.mu.Unlock()
		if !seeded {
			c.refreshThread(id)
		}
	}
	c.notify()
}

// MergeThreadList upserts poll results into the registry. The registry's
// no-downgrade rule keeps locally known terminal statuses intact.
func (c *Controller) MergeThreadList(list restapi.ThreadList) {
	for _, id := range list.ActiveThreadIDs {
		c.registry.Ensure(id, "", registry.StatusRunning)
	}
	for _, id := range list.PendingInterruptIDs {
		c.registry.Ensure(id, "", registry.StatusPendingHuman)
	}
}

// refreshThread fetches one thread's authoritative state and merges it in.
func (c *Controller) refreshThread(threadID string) {
	if c.rest == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	st, err := c.rest.ThreadState(ctx, threadID)
	if err != nil {
		logger.Warn("thread state fetch failed",
			logger.FieldThreadID, threadID, logger.FieldError, err)
		return
	}
	c.MergeThreadState(st)
	c.notify()
}

// MergeThreadState merges an authoritative snapshot, keyed by its own thread
// id. The snapshot may be stale by arrival time; the registry merge rules and
// the plan-form preference below make that harmless.
func (c *Controller) MergeThreadState(st restapi.ThreadState) {
	id := st.ThreadID
	if id == "" {
		return
	}
	if status := serverStatus(st.Status); status != "" {
		c.registry.Ensure(id, "", status)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if st.State != nil {
		c.lastStates[id] = st.State
	}
	if st.PendingInterrupt != nil && st.Status == string(registry.StatusPendingHuman) {
		c.interrupts[id] = st.PendingInterrupt
	}
	if st.Status == string(registry.StatusCompleted) || st.Status == string(registry.StatusError) {
		delete(c.interrupts, id)
	}
	// The fetched plan wins over whatever the interrupt payload carried.
	if plan, ok := st.State["research_plan"]; ok && plan != nil {
		c.planForms[id] = planform.Parse(plan)
	} else if intr := c.interrupts[id]; intr != nil {
		if _, seeded := c.planForms[id]; !seeded {
			c.planForms[id] = planform.Parse(intr.Value)
		}
	}
}

func serverStatus(s string) registry.Status {
	switch s {
	case "running":
		return registry.StatusRunning
	case "pending_human":
		return registry.StatusPendingHuman
	case "completed":
		return registry.StatusCompleted
	case "error":
		return registry.StatusError
	default:
		return ""
	}
}
