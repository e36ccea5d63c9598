// Package voice owns the live voice-capture state machine: one websocket
// connection, one session, one finalize. Audio chunks accumulate in a
// buffer while throttled partial decodes stream low-latency transcripts
// back to the client; several independent end-of-utterance conditions all
// funnel into a single finalize that runs the turn pipeline.
package voice

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/MissVz/EQiLevel/internal/orchestrator"
)

// Pipeline is the turn pipeline invoked exactly once at finalize.
type Pipeline interface {
	RunTurn(ctx context.Context, sessionID, userText, objectiveCode string) orchestrator.Result
}

// Transcriber is the speech-recognition boundary, consumed as a black box.
type Transcriber interface {
	Transcribe(ctx context.Context, audio []byte, language string) (string, error)
}

// Config carries the session timers. Zero values take the defaults below.
type Config struct {
	MaxStreamDuration time.Duration // hard cap on a single utterance
	StalePartialAfter time.Duration // no accepted partial for this long -> stop
	SilenceAfter      time.Duration // no bytes for this long (with audio) -> stop
	PartialEvery      time.Duration // min gap between partial decode dispatches
	PollInterval      time.Duration // watchdog tick while the peer is idle
	Language          string        // primary language hint, empty = detect
	AltLanguage       string        // retry hint when the full decode is empty
}

func (c Config) withDefaults() Config {
	if c.MaxStreamDuration <= 0 {
		c.MaxStreamDuration = 25 * time.Second
	}
	if c.StalePartialAfter <= 0 {
		c.StalePartialAfter = 10 * time.Second
	}
	if c.SilenceAfter <= 0 {
		c.SilenceAfter = 2500 * time.Millisecond
	}
	if c.PartialEvery <= 0 {
		c.PartialEvery = 1200 * time.Millisecond
	}
	if c.PollInterval <= 0 {
		c.PollInterval = 3 * time.Second
	}
	if c.AltLanguage == "" {
		c.AltLanguage = "en"
	}
	return c
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  65536,
	WriteBufferSize: 65536,
	CheckOrigin: func(r *http.Request) bool {
		// Allow any origin for browser clients; restrict in production
		return true
	},
}

// Handler upgrades /ws/voice requests and runs one session per connection.
type Handler struct {
	pipeline Pipeline
	stt      Transcriber
	cfg      Config
}

// NewHandler builds the websocket handler around the injected collaborators.
func NewHandler(pipeline Pipeline, stt Transcriber, cfg Config) *Handler {
	return &Handler{pipeline: pipeline, stt: stt, cfg: cfg.withDefaults()}
}

type clientEvent struct {
	Event string `json:"event"`
}

type serverFrame struct {
	Type    string `json:"type"`
	Text    string `json:"text,omitempty"`
	Message string `json:"message,omitempty"`
}

type finalFrame struct {
	Type       string              `json:"type"`
	Transcript string              `json:"transcript"`
	Reply      orchestrator.Result `json:"reply"`
}

// ServeHTTP validates the session preconditions, upgrades, and runs the
// state machine until finalize or disconnect.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("voice: ws upgrade error: %v", err)
		return
	}

	q := r.URL.Query()
	s := &session{
		conn:          conn,
		pipeline:      h.pipeline,
		stt:           h.stt,
		cfg:           h.cfg,
		sessionID:     q.Get("session_id"),
		objectiveCode: q.Get("objective_code"),
		userID:        q.Get("user_id"),
		inbound:       make(chan inboundFrame, 16),
	}
	s.ctx, s.cancel = context.WithCancel(context.Background())
	s.run()
}

type inboundFrame struct {
	messageType int
	data        []byte
	err         error
}

// session is the per-connection state machine. All buffer mutation happens
// on the run loop; the partial-decode goroutine only reads a snapshot taken
// at dispatch time.
type session struct {
	conn     *websocket.Conn
	pipeline Pipeline
	stt      Transcriber
	cfg      Config

	sessionID     string
	objectiveCode string
	userID        string

	ctx    context.Context
	cancel context.CancelFunc

	inbound chan inboundFrame

	buf         []byte
	startedAt   time.Time
	lastBytesAt time.Time

	// partial bookkeeping, shared with the decode goroutine
	mu              sync.Mutex
	partialInFlight bool
	lastScheduled   time.Time
	lastPartial     string
	lastPartialAt   time.Time

	// write side, shared with the decode goroutine
	writeMu   sync.Mutex
	closed    bool
	finalSent bool

	finalized bool
}

func (s *session) run() {
	defer s.teardown()

	if s.sessionID == "" || s.objectiveCode == "" || s.userID == "" {
		_ = s.writeJSON(serverFrame{Type: "error", Message: "session_id, objective_code and user_id are required"})
		return
	}
	if err := s.writeJSON(serverFrame{Type: "ready"}); err != nil {
		return
	}

	go s.readLoop()

	ticker := time.NewTicker(s.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case in := <-s.inbound:
			if in.err != nil {
				// disconnect before finalize: release resources, no turn
				return
			}
			switch in.messageType {
			case websocket.BinaryMessage:
				s.onAudio(in.data)
			case websocket.TextMessage:
				s.onControl(in.data)
			}
		case <-ticker.C:
			if s.autoStopDue(time.Now()) {
				s.finalize()
			}
		case <-s.ctx.Done():
			return
		}
		if s.finalized {
			return
		}
	}
}

func (s *session) readLoop() {
	for {
		mt, data, err := s.conn.ReadMessage()
		select {
		case s.inbound <- inboundFrame{messageType: mt, data: data, err: err}:
		case <-s.ctx.Done():
			return
		}
		if err != nil {
			return
		}
	}
}

// onAudio appends the chunk and, when due, dispatches one background
// partial decode over a snapshot of the buffer so far.
func (s *session) onAudio(chunk []byte) {
	now := time.Now()
	if s.startedAt.IsZero() {
		s.startedAt = now
	}
	s.buf = append(s.buf, chunk...)
	s.lastBytesAt = now

	s.mu.Lock()
	if s.partialInFlight || now.Sub(s.lastScheduled) < s.cfg.PartialEvery {
		s.mu.Unlock()
		return
	}
	s.partialInFlight = true
	s.lastScheduled = now
	s.mu.Unlock()

	snapshot := append([]byte(nil), s.buf...)
	go s.decodePartial(snapshot)
}

// onControl evaluates the watchdog conditions first, synthesizing a stop
// when one fires, then parses the frame. Malformed frames are ignored.
func (s *session) onControl(data []byte) {
	if s.watchdogDue(time.Now()) {
		s.finalize()
		return
	}
	var ev clientEvent
	if err := json.Unmarshal(data, &ev); err != nil {
		log.Printf("voice: ignoring malformed control frame: %v", err)
		return
	}
	if ev.Event == "stop" {
		s.finalize()
	}
}

// watchdogDue covers the max-duration and stalled-partial conditions.
func (s *session) watchdogDue(now time.Time) bool {
	if s.startedAt.IsZero() {
		return false
	}
	if now.Sub(s.startedAt) > s.cfg.MaxStreamDuration {
		return true
	}
	s.mu.Lock()
	last := s.lastPartialAt
	s.mu.Unlock()
	if last.IsZero() {
		last = s.startedAt
	}
	return now.Sub(last) > s.cfg.StalePartialAfter
}

// autoStopDue additionally covers prolonged silence after some audio: a
// read timeout with no data yet is not an error.
func (s *session) autoStopDue(now time.Time) bool {
	if len(s.buf) > 0 && now.Sub(s.lastBytesAt) >= s.cfg.SilenceAfter {
		return true
	}
	return s.watchdogDue(now)
}

func (s *session) decodePartial(snapshot []byte) {
	defer func() {
		s.mu.Lock()
		s.partialInFlight = false
		s.mu.Unlock()
	}()

	text, err := s.stt.Transcribe(s.ctx, snapshot, s.cfg.Language)
	if err != nil {
		if s.ctx.Err() == nil {
			log.Printf("voice: partial decode failed: %v", err)
		}
		return
	}
	text = sanitizePartial(text)

	s.mu.Lock()
	if !shouldEmit(s.lastPartial, text) {
		s.mu.Unlock()
		return
	}
	s.lastPartial = text
	s.lastPartialAt = time.Now()
	s.mu.Unlock()

	// writes after close are swallowed by writeJSON
	_ = s.writeJSON(serverFrame{Type: "partial", Text: text})
}

// finalize runs the full transcription, invokes the pipeline, pushes the
// single terminal frame and closes. Safe to call more than once; only the
// first call does anything.
func (s *session) finalize() {
	if s.finalized {
		return
	}
	s.finalized = true

	transcript := ""
	if len(s.buf) > 0 {
		text, err := s.stt.Transcribe(s.ctx, s.buf, s.cfg.Language)
		if err != nil {
			log.Printf("voice: full decode failed: %v", err)
		}
		transcript = strings.TrimSpace(text)
		if transcript == "" {
			text, err = s.stt.Transcribe(s.ctx, s.buf, s.cfg.AltLanguage)
			if err != nil {
				log.Printf("voice: retry decode failed: %v", err)
			}
			transcript = strings.TrimSpace(text)
		}
	}

	res := s.pipeline.RunTurn(s.ctx, s.sessionID, transcript, s.objectiveCode)
	_ = s.write(finalFrame{Type: "final", Transcript: transcript, Reply: res}, true)
}

func (s *session) writeJSON(v any) error { return s.write(v, false) }

func (s *session) write(v any, final bool) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if !s.writableLocked(final) {
		return nil
	}
	if err := s.conn.WriteJSON(v); err != nil {
		log.Printf("voice: write failed: %v", err)
		return err
	}
	return nil
}

// writableLocked reports whether a frame may still go out. The final frame
// claims the terminal slot: a partial decode finishing after finalize must
// not emit behind it. Callers hold writeMu.
func (s *session) writableLocked(final bool) bool {
	if s.closed || s.finalSent {
		return false
	}
	if final {
		s.finalSent = true
	}
	return true
}

// teardown cancels the background decode, closes the connection and drops
// the buffer. Idempotent.
func (s *session) teardown() {
	s.cancel()
	s.writeMu.Lock()
	if !s.closed {
		s.closed = true
		_ = s.conn.WriteControl(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second),
		)
		_ = s.conn.Close()
	}
	s.writeMu.Unlock()
	s.buf = nil
}
