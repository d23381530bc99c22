package ui

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/list"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/desertthunder/jukebox/internal/models"
	"github.com/desertthunder/jukebox/internal/shared"
	"github.com/desertthunder/jukebox/internal/tasks"
)

// DefaultPollInterval is how often the queue is re-read while the TUI is open.
const DefaultPollInterval = 2 * time.Second

// ViewState represents the current view in the TUI.
type ViewState int

const (
	QueueView ViewState = iota
	AddView
)

// Queue is the subset of [tasks.Jukebox] the TUI drives.
type Queue interface {
	Queue(ctx context.Context, clientID string) ([]models.RankedSong, error)
	AdmitLink(ctx context.Context, link string) (bool, error)
	Vote(ctx context.Context, songID, clientID string, value int) (bool, error)
}

// Ticker runs a reconciliation tick on demand. [tasks.Reconciler] implements it.
type Ticker interface {
	Tick(ctx context.Context) tasks.TickResult
}

// Options configures a [Model]. Zero values select defaults.
type Options struct {
	ClientID     string        // Identity used for votes; a random id when empty
	PollInterval time.Duration // Queue refresh period
	Ticker       Ticker        // Enables the manual tick key when set

	// Updates streams results of ticks run elsewhere (typically a reconciler started by the same process).
	Updates <-chan tasks.TickResult
}

// Model represents the TUI application state.
type Model struct {
	ctx      context.Context
	view     ViewState
	queue    Queue
	opts     Options
	width    int
	height   int
	list     list.Model
	input    textinput.Model
	rows     []models.RankedSong
	status   string
	statusOK bool
	lastTick *tasks.TickResult
	help     help.Model
	keys     keyMap
}

// NewModel creates a new TUI model with the provided dependencies.
func NewModel(ctx context.Context, queue Queue, opts Options) *Model {
	if opts.ClientID == "" {
		opts.ClientID = shared.GenerateID()
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = DefaultPollInterval
	}

	l := list.New(nil, list.NewDefaultDelegate(), 0, 0)
	l.Title = "Party Queue"
	l.SetShowHelp(false)
	l.DisableQuitKeybindings()
	l.SetStatusBarItemName("song", "songs")
	l.Styles.Title = l.Styles.Title.Background(styles.title.GetForeground())

	in := textinput.New()
	in.Placeholder = "https://open.spotify.com/track/..."
	in.Prompt = "link: "
	in.CharLimit = 256
	in.Width = 60

	return &Model{
		ctx:   ctx,
		view:  QueueView,
		queue: queue,
		opts:  opts,
		list:  l,
		input: in,
		help:  help.New(),
		keys:  newKeyMap(),
	}
}

// ClientID is the identity votes are recorded under.
func (m *Model) ClientID() string {
	return m.opts.ClientID
}

// Init loads the queue and starts polling.
func (m *Model) Init() tea.Cmd {
	return tea.Batch(m.fetchQueue(), m.poll(), m.waitForTick())
}

// Update handles incoming messages and updates the model state.
func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.list.SetSize(msg.Width-4, msg.Height-8)
		m.help.Width = msg.Width
		return m, nil

	case tea.KeyMsg:
		switch m.view {
		case AddView:
			return m.handleAddKeys(msg)
		default:
			return m.handleQueueKeys(msg)
		}

	case Msg:
		return m.handleMsg(msg)
	}

	var cmd tea.Cmd
	m.list, cmd = m.list.Update(msg)
	return m, cmd
}

func (m *Model) handleMsg(msg Msg) (tea.Model, tea.Cmd) {
	switch msg.kind {
	case MsgQueueFetched:
		res := msg.data.(queueResult)
		if res.err != nil {
			m.setStatus(fmt.Sprintf("Failed to load queue: %v", res.err), false)
			return m, nil
		}
		m.rows = res.rows
		return m, m.list.SetItems(queueItems(res.rows))

	case MsgVoted:
		res := msg.data.(actionResult)
		switch {
		case res.err != nil:
			m.setStatus(fmt.Sprintf("Vote failed: %v", res.err), false)
		case !res.ok:
			m.setStatus("That song is no longer queued", false)
		default:
			m.setStatus("Vote recorded", true)
		}
		return m, m.fetchQueue()

	case MsgAdmitted:
		res := msg.data.(actionResult)
		switch {
		case res.err != nil:
			m.setStatus(fmt.Sprintf("Could not add song: %v", res.err), false)
		case !res.ok:
			m.setStatus("Already queued or played in the last 30 minutes", false)
		default:
			m.setStatus("Song added", true)
		}
		return m, m.fetchQueue()

	case MsgTicked:
		ev := msg.data.(tickEvent)
		m.lastTick = &ev.result
		if !ev.listen {
			m.setStatus("", true)
		}
		cmds := []tea.Cmd{m.fetchQueue()}
		if ev.listen {
			cmds = append(cmds, m.waitForTick())
		}
		return m, tea.Batch(cmds...)

	case MsgPoll:
		return m, tea.Batch(m.fetchQueue(), m.poll())
	}
	return m, nil
}

// View renders the UI based on the current view state.
func (m *Model) View() string {
	var b strings.Builder

	switch m.view {
	case AddView:
		b.WriteString(styles.title.Render("Add a song"))
		b.WriteString("\n")
		b.WriteString(styles.input.Render(m.input.View()))
		b.WriteString("\n\n")
		b.WriteString(styles.help.Render("Paste a Spotify track link, URI or id. enter to add, esc to cancel."))
	default:
		b.WriteString(m.list.View())
	}

	b.WriteString("\n")
	b.WriteString(m.renderStatus())
	b.WriteString("\n")
	b.WriteString(m.help.View(m.keys))
	return b.String()
}

func (m *Model) renderStatus() string {
	var parts []string
	if m.lastTick != nil {
		parts = append(parts, styles.help.Render("loop: ")+renderTick(*m.lastTick))
	}
	if m.status != "" {
		if m.statusOK {
			parts = append(parts, styles.ok.Render(m.status))
		} else {
			parts = append(parts, styles.warn.Render(m.status))
		}
	}
	return strings.Join(parts, "  ")
}

func renderTick(r tasks.TickResult) string {
	switch r.Outcome {
	case tasks.OutcomeInjected:
		return styles.ok.Render("queued " + r.Song.String())
	case tasks.OutcomeSlotFilled, tasks.OutcomeQueueEmpty:
		return styles.help.Render(r.Outcome.String())
	case tasks.OutcomeNoDevice:
		return styles.err.Render("no active device, start playback in Spotify")
	default:
		return styles.err.Render(r.Outcome.String())
	}
}

func (m *Model) setStatus(s string, ok bool) {
	m.status = s
	m.statusOK = ok
}

func (m *Model) handleQueueKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if m.list.FilterState() == list.Filtering {
		var cmd tea.Cmd
		m.list, cmd = m.list.Update(msg)
		return m, cmd
	}

	switch {
	case key.Matches(msg, m.keys.quit):
		return m, tea.Quit
	case key.Matches(msg, m.keys.upvote):
		return m, m.voteSelected(1)
	case key.Matches(msg, m.keys.downvote):
		return m, m.voteSelected(-1)
	case key.Matches(msg, m.keys.unvote):
		return m, m.voteSelected(0)
	case key.Matches(msg, m.keys.add):
		m.view = AddView
		m.input.Reset()
		return m, m.input.Focus()
	case key.Matches(msg, m.keys.tick):
		if m.opts.Ticker == nil {
			m.setStatus("Manual ticks are not available", false)
			return m, nil
		}
		m.setStatus("Ticking...", true)
		return m, m.runTick()
	case key.Matches(msg, m.keys.refresh):
		return m, m.fetchQueue()
	}

	var cmd tea.Cmd
	m.list, cmd = m.list.Update(msg)
	return m, cmd
}

func (m *Model) handleAddKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case msg.Type == tea.KeyCtrlC:
		return m, tea.Quit
	case key.Matches(msg, m.keys.back):
		m.view = QueueView
		m.input.Blur()
		return m, nil
	case key.Matches(msg, m.keys.submit):
		link := strings.TrimSpace(m.input.Value())
		m.view = QueueView
		m.input.Blur()
		if link == "" {
			return m, nil
		}
		return m, m.admit(link)
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m *Model) selected() (models.RankedSong, bool) {
	item, ok := m.list.SelectedItem().(queueItem)
	if !ok {
		return models.RankedSong{}, false
	}
	return item.song, true
}

func (m *Model) voteSelected(value int) tea.Cmd {
	song, ok := m.selected()
	if !ok {
		return nil
	}
	return m.vote(song.ID, value)
}

func (m *Model) fetchQueue() tea.Cmd {
	return func() tea.Msg {
		rows, err := m.queue.Queue(m.ctx, m.opts.ClientID)
		return queueFetchedMsg(rows, err)
	}
}

func (m *Model) vote(songID string, value int) tea.Cmd {
	clientID := m.opts.ClientID
	return func() tea.Msg {
		ok, err := m.queue.Vote(m.ctx, songID, clientID, value)
		return votedMsg(songID, ok, err)
	}
}

func (m *Model) admit(link string) tea.Cmd {
	return func() tea.Msg {
		ok, err := m.queue.AdmitLink(m.ctx, link)
		return admittedMsg(link, ok, err)
	}
}

func (m *Model) runTick() tea.Cmd {
	ticker := m.opts.Ticker
	return func() tea.Msg {
		return tickedMsg(tickEvent{result: ticker.Tick(m.ctx)})
	}
}

func (m *Model) poll() tea.Cmd {
	return tea.Tick(m.opts.PollInterval, func(time.Time) tea.Msg {
		return pollMsg()
	})
}

// waitForTick blocks on the updates channel. It returns nil when no channel is configured.
func (m *Model) waitForTick() tea.Cmd {
	updates := m.opts.Updates
	if updates == nil {
		return nil
	}
	return func() tea.Msg {
		select {
		case r, ok := <-updates:
			if !ok {
				return nil
			}
			return tickedMsg(tickEvent{result: r, listen: true})
		case <-m.ctx.Done():
			return nil
		}
	}
}

// Run starts the TUI on the terminal and blocks until the user quits.
func Run(ctx context.Context, queue Queue, opts Options) error {
	p := tea.NewProgram(NewModel(ctx, queue, opts), tea.WithAltScreen(), tea.WithContext(ctx))
	if _, err := p.Run(); err != nil {
		return fmt.Errorf("failed to run TUI: %w", err)
	}
	return nil
}
