package store

import (
	"context"
	"fmt"
	"math"
)

// Metrics is the aggregate telemetry view over logged turns.
type Metrics struct {
	TurnsTotal                int                       `json:"turns_total"`
	AvgReward                 float64                   `json:"avg_reward"`
	FrustrationAdaptationRate float64                   `json:"frustration_adaptation_rate"`
	ToneAlignmentRate         float64                   `json:"tone_alignment_rate"`
	Last10RewardAvg           float64                   `json:"last_10_reward_avg"`
	ByEmotion                 map[string]int            `json:"by_emotion"`
	ActionDistribution        map[string]map[string]int `json:"action_distribution"`
	Filters                   map[string]string         `json:"filters"`
}

func round4(v float64) float64 { return math.Round(v*10000) / 10000 }

// toneTargets maps emotions to the tones considered aligned with them.
var toneTargets = map[string][]string{
	"frustrated": {"warm", "encouraging"},
	"engaged":    {"encouraging"},
	"calm":       {"neutral"},
	"bored":      {"concise"},
}

var actionValues = map[string][]string{
	"tone":       {"warm", "encouraging", "neutral", "concise"},
	"pacing":     {"slow", "medium", "fast"},
	"difficulty": {"down", "hold", "up"},
	"next_step":  {"example", "prompt", "explain", "quiz", "review"},
}

// countWhere runs a COUNT over turns with a where clause; sessionID filter
// is appended when non-empty.
func (s *Store) countWhere(ctx context.Context, sessionID, where string, args ...any) (int, error) {
	q := `SELECT COUNT(id) FROM turns WHERE ` + where
	if sessionID != "" {
		q += fmt.Sprintf(" AND session_id = $%d", len(args)+1)
		args = append(args, sessionID)
	}
	var n int
	if err := s.db.QueryRowContext(ctx, q, args...).Scan(&n); err != nil {
		return 0, err
	}
	return n, nil
}

// Metrics computes the dashboard aggregates, optionally scoped to a session.
func (s *Store) Metrics(ctx context.Context, sessionID string) (Metrics, error) {
	m := Metrics{
		ByEmotion:          map[string]int{},
		ActionDistribution: map[string]map[string]int{},
		Filters:            map[string]string{},
	}
	if sessionID != "" {
		m.Filters["session_id"] = sessionID
	}

	total, err := s.countWhere(ctx, sessionID, "TRUE")
	if err != nil {
		return m, err
	}
	m.TurnsTotal = total

	avgQ := `SELECT COALESCE(AVG(reward), 0) FROM turns`
	args := []any{}
	if sessionID != "" {
		avgQ += " WHERE session_id = $1"
		args = append(args, sessionID)
	}
	var avg float64
	if err := s.db.QueryRowContext(ctx, avgQ, args...).Scan(&avg); err != nil {
		return m, err
	}
	m.AvgReward = round4(avg)

	for _, label := range []string{"frustrated", "engaged", "calm", "bored"} {
		n, err := s.countWhere(ctx, sessionID, `emotion->>'label' = $1`, label)
		if err != nil {
			return m, err
		}
		m.ByEmotion[label] = n
	}

	// Frustrated turns where the policy actually eased off.
	adapted, err := s.countWhere(ctx, sessionID,
		`emotion->>'label' = 'frustrated' AND (mcp->>'pacing' = 'slow' OR mcp->>'difficulty' = 'down')`)
	if err != nil {
		return m, err
	}
	if f := m.ByEmotion["frustrated"]; f > 0 {
		m.FrustrationAdaptationRate = round4(float64(adapted) / float64(f))
	}

	aligned := 0
	labeled := 0
	for label, tones := range toneTargets {
		labeled += m.ByEmotion[label]
		for _, tone := range tones {
			n, err := s.countWhere(ctx, sessionID,
				`emotion->>'label' = $1 AND mcp->>'tone' = $2`, label, tone)
			if err != nil {
				return m, err
			}
			aligned += n
		}
	}
	if labeled > 0 {
		m.ToneAlignmentRate = round4(float64(aligned) / float64(labeled))
	}

	lastQ := `SELECT COALESCE(AVG(reward), 0) FROM (
		SELECT reward FROM turns`
	args = args[:0]
	if sessionID != "" {
		lastQ += ` WHERE session_id = $1`
		args = append(args, sessionID)
	}
	lastQ += ` ORDER BY created_at DESC LIMIT 10) last10`
	var last10 float64
	if err := s.db.QueryRowContext(ctx, lastQ, args...).Scan(&last10); err != nil {
		return m, err
	}
	m.Last10RewardAvg = round4(last10)

	for key, values := range actionValues {
		dist := map[string]int{}
		for _, v := range values {
			n, err := s.countWhere(ctx, sessionID, `mcp->>'`+key+`' = $1`, v)
			if err != nil {
				return m, err
			}
			dist[v] = n
		}
		m.ActionDistribution[key] = dist
	}

	return m, nil
}
