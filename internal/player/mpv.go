package player

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net"
	"os"
	"os/exec"
	"sync"
	"time"
)

// MPVEngine drives an mpv subprocess over its JSON IPC socket. mpv runs in
// idle mode for the life of the engine so loading a track never pays process
// startup cost. The engine mirrors the playlist it sends to mpv, because the
// IPC protocol identifies entries by position only and the adapter needs the
// composite media id back on every event.
type MPVEngine struct {
	binary     string
	socketPath string

	cmd    *exec.Cmd
	conn   net.Conn
	events chan Event

	writeMu sync.Mutex

	pendingMu sync.Mutex
	pending   map[int64]chan mpvResponse
	requestID int64

	queueMu sync.Mutex
	queue   []Item
	current int
}

type mpvCommand struct {
	Command   []interface{} `json:"command"`
	RequestID int64         `json:"request_id,omitempty"`
}

type mpvResponse struct {
	Data      interface{} `json:"data"`
	RequestID int64       `json:"request_id"`
	Error     string      `json:"error"`
}

type mpvEvent struct {
	Event  string      `json:"event"`
	ID     int         `json:"id,omitempty"`
	Name   string      `json:"name,omitempty"`
	Reason string      `json:"reason,omitempty"`
	Data   interface{} `json:"data,omitempty"`
}

const pauseObserverID = 1

func NewMPVEngine(binary string) *MPVEngine {
	if binary == "" {
		binary = "mpv"
	}
	return &MPVEngine{
		binary:     binary,
		socketPath: fmt.Sprintf("%s/podplay-mpv-%d", os.TempDir(), os.Getpid()),
		events:     make(chan Event, 16),
		pending:    make(map[int64]chan mpvResponse),
		current:    -1,
	}
}

// Start launches mpv, connects to its IPC socket and begins the event reader.
// EventReady is emitted once the socket is usable; until then every adapter
// command is dropped or rejected.
func (m *MPVEngine) Start(ctx context.Context) error {
	os.Remove(m.socketPath)

	m.cmd = exec.Command(m.binary,
		"--no-video",
		"--really-quiet",
		"--no-terminal",
		"--idle",
		"--force-window=no",
		"--keep-open=no",
		"--input-ipc-server="+m.socketPath,
	)
	if err := m.cmd.Start(); err != nil {
		return fmt.Errorf("start %s: %w", m.binary, err)
	}

	conn, err := m.dialSocket(ctx)
	if err != nil {
		m.cmd.Process.Kill()
		m.cmd.Wait()
		return err
	}
	m.conn = conn

	go m.readLoop()

	if _, err := m.request(ctx, "observe_property", pauseObserverID, "pause"); err != nil {
		m.Close()
		return fmt.Errorf("observe pause: %w", err)
	}

	m.deliver(Event{Kind: EventReady})
	return nil
}

// dialSocket waits for mpv to create the socket, then connects.
func (m *MPVEngine) dialSocket(ctx context.Context) (net.Conn, error) {
	deadline := time.Now().Add(3 * time.Second)
	for {
		if conn, err := net.Dial("unix", m.socketPath); err == nil {
			return conn, nil
		}
		if time.Now().After(deadline) {
			return nil, fmt.Errorf("mpv socket %s not available", m.socketPath)
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(50 * time.Millisecond):
		}
	}
}

func (m *MPVEngine) Events() <-chan Event {
	return m.events
}

func (m *MPVEngine) Load(ctx context.Context, item Item) error {
	if _, err := m.request(ctx, "loadfile", item.URI, "replace"); err != nil {
		return err
	}
	m.queueMu.Lock()
	m.queue = []Item{item}
	m.current = 0
	m.queueMu.Unlock()
	return nil
}

func (m *MPVEngine) Enqueue(ctx context.Context, item Item) error {
	if _, err := m.request(ctx, "loadfile", item.URI, "append"); err != nil {
		return err
	}
	m.queueMu.Lock()
	m.queue = append(m.queue, item)
	m.queueMu.Unlock()
	return nil
}

func (m *MPVEngine) Play(ctx context.Context) error {
	_, err := m.request(ctx, "set_property", "pause", false)
	return err
}

func (m *MPVEngine) Pause(ctx context.Context) error {
	_, err := m.request(ctx, "set_property", "pause", true)
	return err
}

func (m *MPVEngine) Next(ctx context.Context) error {
	if _, err := m.request(ctx, "playlist-next", "force"); err != nil {
		return err
	}
	m.queueMu.Lock()
	if m.current >= 0 && m.current < len(m.queue)-1 {
		m.current++
	}
	m.queueMu.Unlock()
	return nil
}

func (m *MPVEngine) Previous(ctx context.Context) error {
	if _, err := m.request(ctx, "playlist-prev", "force"); err != nil {
		return err
	}
	m.queueMu.Lock()
	if m.current > 0 {
		m.current--
	}
	m.queueMu.Unlock()
	return nil
}

func (m *MPVEngine) SetPosition(ctx context.Context, positionMS int64) error {
	_, err := m.request(ctx, "seek", float64(positionMS)/1000.0, "absolute")
	return err
}

func (m *MPVEngine) PositionMS(ctx context.Context) (int64, error) {
	resp, err := m.request(ctx, "get_property", "time-pos")
	if err != nil {
		return 0, err
	}
	seconds, ok := resp.Data.(float64)
	if !ok || seconds < 0 {
		return 0, nil
	}
	return int64(seconds * 1000), nil
}

func (m *MPVEngine) QueueAhead(ctx context.Context) (int, error) {
	m.queueMu.Lock()
	defer m.queueMu.Unlock()
	if m.current < 0 {
		return 0, nil
	}
	return len(m.queue) - 1 - m.current, nil
}

// Close shuts mpv down, force-killing it if the quit command is ignored.
func (m *MPVEngine) Close() error {
	if m.conn != nil {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		m.request(ctx, "quit")
		cancel()
		m.conn.Close()
	}
	if m.cmd != nil && m.cmd.Process != nil {
		done := make(chan error, 1)
		go func() { done <- m.cmd.Wait() }()
		select {
		case <-done:
		case <-time.After(500 * time.Millisecond):
			m.cmd.Process.Kill()
			<-done
		}
	}
	os.Remove(m.socketPath)
	return nil
}

// request sends one IPC command and waits for its matching response.
func (m *MPVEngine) request(ctx context.Context, args ...interface{}) (mpvResponse, error) {
	m.pendingMu.Lock()
	m.requestID++
	id := m.requestID
	reply := make(chan mpvResponse, 1)
	m.pending[id] = reply
	m.pendingMu.Unlock()

	defer func() {
		m.pendingMu.Lock()
		delete(m.pending, id)
		m.pendingMu.Unlock()
	}()

	payload, err := json.Marshal(mpvCommand{Command: args, RequestID: id})
	if err != nil {
		return mpvResponse{}, err
	}
	payload = append(payload, '\n')

	m.writeMu.Lock()
	_, err = m.conn.Write(payload)
	m.writeMu.Unlock()
	if err != nil {
		return mpvResponse{}, fmt.Errorf("write to mpv: %w", err)
	}

	select {
	case resp := <-reply:
		if resp.Error != "" && resp.Error != "success" {
			return resp, fmt.Errorf("mpv: %s", resp.Error)
		}
		return resp, nil
	case <-ctx.Done():
		return mpvResponse{}, ctx.Err()
	}
}

// readLoop splits the IPC stream into command responses, routed to their
// waiting callers, and asynchronous events, translated for the adapter. It
// exits when the connection closes and then closes the event channel.
func (m *MPVEngine) readLoop() {
	defer close(m.events)

	scanner := bufio.NewScanner(m.conn)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()

		var resp mpvResponse
		if err := json.Unmarshal(line, &resp); err == nil && resp.RequestID != 0 {
			m.pendingMu.Lock()
			reply, ok := m.pending[resp.RequestID]
			m.pendingMu.Unlock()
			if ok {
				reply <- resp
			}
			continue
		}

		var event mpvEvent
		if err := json.Unmarshal(line, &event); err != nil {
			continue
		}
		m.translate(event)
	}
	if err := scanner.Err(); err != nil {
		log.Printf("player: mpv event stream: %v", err)
	}
}

func (m *MPVEngine) translate(event mpvEvent) {
	switch event.Event {
	case "property-change":
		if event.ID != pauseObserverID {
			return
		}
		paused, ok := event.Data.(bool)
		if !ok {
			return
		}
		m.deliver(Event{Kind: EventPlayingChanged, Playing: !paused})
	case "file-loaded":
		item, ok := m.currentItem()
		m.deliver(Event{Kind: EventItemChanged, Item: item, HasItem: ok})
		m.deliver(Event{Kind: EventItemLoaded})
	case "end-file":
		if event.Reason != "eof" {
			return
		}
		item, ok := m.currentItem()
		if !ok {
			return
		}
		// mpv advances into an appended entry by itself. Whether the
		// finished item had a queued successor must be captured before the
		// mirror follows that advance, or the adapter would see an empty
		// queue and splice a replacement over the user's entry.
		m.queueMu.Lock()
		hadNext := m.current < len(m.queue)-1
		if hadNext {
			m.current++
		}
		m.queueMu.Unlock()
		m.deliver(Event{Kind: EventTrackEnded, Item: item, HasItem: true, HadNext: hadNext})
	}
}

func (m *MPVEngine) currentItem() (Item, bool) {
	m.queueMu.Lock()
	defer m.queueMu.Unlock()
	if m.current < 0 || m.current >= len(m.queue) {
		return Item{}, false
	}
	return m.queue[m.current], true
}

func (m *MPVEngine) deliver(event Event) {
	select {
	case m.events <- event:
	default:
		log.Printf("player: dropping mpv event %d, adapter not keeping up", event.Kind)
	}
}
