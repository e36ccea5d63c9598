// Package orchestrator sequences one tutoring turn: signal extraction,
// reward, policy, reply generation, reply shaping, and persistence.
package orchestrator

import (
	"context"
	"log"
	"strings"
	"time"

	"github.com/MissVz/EQiLevel/internal/emotion"
	"github.com/MissVz/EQiLevel/internal/history"
	"github.com/MissVz/EQiLevel/internal/mcp"
	"github.com/MissVz/EQiLevel/internal/policy"
	"github.com/MissVz/EQiLevel/internal/reward"
	"github.com/MissVz/EQiLevel/internal/store"
)

// fallbackReply is substituted when generation fails or comes back empty.
// Generation problems never surface to the caller.
const fallbackReply = "Let's try a smaller step together: restate the problem in your own words, then make the first move."

// historyWindow is how many recent dialogue messages feed the prompt.
const historyWindow = 8

// Generator produces the tutor reply text.
type Generator interface {
	Generate(ctx context.Context, userText string, state mcp.ControlState, hist []history.Message, objectiveCode string) (string, error)
}

// TurnLogger is the narrow persistence boundary.
type TurnLogger interface {
	LogTurn(ctx context.Context, rec store.TurnRecord) (string, error)
}

// HistoryStore supplies and records the recent-dialogue window.
type HistoryStore interface {
	Recent(ctx context.Context, sessionID string, n int) ([]history.Message, error)
	Append(ctx context.Context, sessionID string, msg history.Message) error
}

// TurnInput is one turn submission. ChatHistory is optional client-supplied
// dialogue; when present it feeds the prompt for this turn in place of the
// cached window.
type TurnInput struct {
	SessionID     string
	UserText      string
	ObjectiveCode string
	ChatHistory   []history.Message
}

// Result is what the caller gets back for a completed turn.
type Result struct {
	Text   string           `json:"text"`
	State  mcp.ControlState `json:"mcp"`
	Reward float64          `json:"reward"`
}

// Orchestrator runs the turn pipeline against injected collaborators.
type Orchestrator struct {
	gen     Generator
	logger  TurnLogger
	hist    HistoryStore
	timeout time.Duration
}

// New wires the pipeline. logger and hist may be nil (turns are then not
// persisted / prompted without history); timeout bounds each external call.
func New(gen Generator, logger TurnLogger, hist HistoryStore, timeout time.Duration) *Orchestrator {
	if timeout <= 0 {
		timeout = 20 * time.Second
	}
	return &Orchestrator{gen: gen, logger: logger, hist: hist, timeout: timeout}
}

// RunTurn executes the full pipeline for one utterance.
func (o *Orchestrator) RunTurn(ctx context.Context, sessionID, userText, objectiveCode string) Result {
	return o.Run(ctx, TurnInput{SessionID: sessionID, UserText: userText, ObjectiveCode: objectiveCode})
}

// Run executes the full pipeline for one turn submission. Generation and
// persistence failures are absorbed: the caller always receives a reply,
// a control state, and a reward.
func (o *Orchestrator) Run(ctx context.Context, in TurnInput) Result {
	sessionID, userText, objectiveCode := in.SessionID, in.UserText, in.ObjectiveCode

	em := emotion.Classify(userText)
	perf := emotion.EstimatePerformance(userText)
	reward0 := reward.Compute(em, perf)

	baseline := mcp.Build(em, perf)
	statePre := policy.Update(baseline, reward0)

	hist := in.ChatHistory
	if len(hist) > historyWindow {
		hist = hist[len(hist)-historyWindow:]
	}
	if hist == nil && o.hist != nil {
		hctx, cancel := context.WithTimeout(ctx, o.timeout)
		msgs, err := o.hist.Recent(hctx, sessionID, historyWindow)
		cancel()
		if err != nil {
			log.Printf("orchestrator: history fetch failed: %v", err)
		} else {
			hist = msgs
		}
	}

	gctx, cancel := context.WithTimeout(ctx, o.timeout)
	text, err := o.gen.Generate(gctx, userText, statePre, hist, objectiveCode)
	cancel()
	if err != nil {
		log.Printf("orchestrator: generation failed: %v", err)
		text = fallbackReply
	}
	if strings.TrimSpace(text) == "" {
		text = fallbackReply
	}

	reward1 := reward.ShapeWithReply(reward0, statePre, text)
	// Re-derive from the original baseline so the pre-reply nudge is not
	// compounded by the post-reply one.
	stateFinal := policy.Update(baseline, reward1)

	if o.logger != nil {
		lctx, cancel := context.WithTimeout(ctx, o.timeout)
		_, err := o.logger.LogTurn(lctx, store.TurnRecord{
			SessionID:     sessionID,
			UserText:      userText,
			ReplyText:     text,
			Emotion:       em,
			Performance:   perf,
			State:         stateFinal,
			Reward:        reward1,
			ObjectiveCode: objectiveCode,
		})
		cancel()
		if err != nil {
			// durability is best-effort; the turn result still goes back
			log.Printf("orchestrator: turn logging failed: %v", err)
		}
	}

	if o.hist != nil {
		hctx, cancel := context.WithTimeout(ctx, o.timeout)
		if err := o.hist.Append(hctx, sessionID, history.Message{Role: "user", Text: userText}); err != nil {
			log.Printf("orchestrator: history append failed: %v", err)
		} else if err := o.hist.Append(hctx, sessionID, history.Message{Role: "tutor", Text: text}); err != nil {
			log.Printf("orchestrator: history append failed: %v", err)
		}
		cancel()
	}

	return Result{Text: text, State: stateFinal, Reward: reward1}
}
