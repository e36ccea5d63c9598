// Package objectives serves the curriculum objective catalog used to ground
// tutor prompts. The catalog is a CSV file loaded once and cached.
package objectives

import (
	"encoding/csv"
	"fmt"
	"os"
	"strings"
	"sync"
)

// Objective is one curriculum objective row.
type Objective struct {
	Code             string `json:"objective_code"`
	Description      string `json:"description"`
	Unit             string `json:"unit"`
	Strands          string `json:"strands"`
	Prereqs          string `json:"prereqs"`
	Examples         string `json:"examples"`
	MasteryThreshold string `json:"mastery_threshold"`
	AssessmentTypes  string `json:"assessment_types"`
}

// Catalog is a read-only view over the objectives CSV. Load once, share.
type Catalog struct {
	once sync.Once
	path string
	rows []Objective
	err  error
}

// NewCatalog points at a CSV file; the file is read on first use.
func NewCatalog(path string) *Catalog {
	return &Catalog{path: path}
}

func (c *Catalog) load() {
	f, err := os.Open(c.path)
	if err != nil {
		// a missing catalog is an empty catalog, not a failure
		if os.IsNotExist(err) {
			return
		}
		c.err = fmt.Errorf("open objectives csv: %w", err)
		return
	}
	defer f.Close()

	r := csv.NewReader(f)
	records, err := r.ReadAll()
	if err != nil {
		c.err = fmt.Errorf("read objectives csv: %w", err)
		return
	}
	if len(records) < 2 {
		return
	}

	idx := map[string]int{}
	for i, h := range records[0] {
		idx[strings.TrimSpace(strings.ToLower(h))] = i
	}
	field := func(row []string, name string) string {
		i, ok := idx[name]
		if !ok || i >= len(row) {
			return ""
		}
		return strings.TrimSpace(row[i])
	}
	for _, row := range records[1:] {
		c.rows = append(c.rows, Objective{
			Code:             field(row, "objective_code"),
			Description:      field(row, "description"),
			Unit:             field(row, "unit"),
			Strands:          field(row, "strands"),
			Prereqs:          field(row, "prereqs"),
			Examples:         field(row, "examples"),
			MasteryThreshold: field(row, "mastery_threshold"),
			AssessmentTypes:  field(row, "assessment_types"),
		})
	}
}

// List returns objectives, optionally filtered by unit and a free-text query
// over code+description.
func (c *Catalog) List(unit, q string) ([]Objective, error) {
	c.once.Do(c.load)
	if c.err != nil {
		return nil, c.err
	}
	out := make([]Objective, 0, len(c.rows))
	ql := strings.ToLower(q)
	for _, o := range c.rows {
		if unit != "" && !strings.EqualFold(o.Unit, unit) {
			continue
		}
		if ql != "" && !strings.Contains(strings.ToLower(o.Code+" "+o.Description), ql) {
			continue
		}
		out = append(out, o)
	}
	return out, nil
}

// FindByCode returns the objective with the given code, or nil.
func (c *Catalog) FindByCode(code string) *Objective {
	c.once.Do(c.load)
	code = strings.TrimSpace(strings.ToLower(code))
	if code == "" {
		return nil
	}
	for i := range c.rows {
		if strings.ToLower(c.rows[i].Code) == code {
			return &c.rows[i]
		}
	}
	return nil
}

// FormatForPrompt renders a compact block suitable for a system prompt.
func FormatForPrompt(objs []Objective, maxItems int) string {
	if len(objs) == 0 {
		return ""
	}
	if maxItems > 0 && len(objs) > maxItems {
		objs = objs[:maxItems]
	}
	var b strings.Builder
	b.WriteString("\nCurriculum objectives:\n")
	for _, o := range objs {
		parts := []string{fmt.Sprintf("%s: %s", o.Code, o.Description)}
		if o.Strands != "" {
			parts = append(parts, "strands="+o.Strands)
		}
		if o.Prereqs != "" {
			parts = append(parts, "prereqs="+o.Prereqs)
		}
		if o.Examples != "" {
			parts = append(parts, "examples="+o.Examples)
		}
		if o.MasteryThreshold != "" {
			parts = append(parts, "mastery_threshold="+o.MasteryThreshold)
		}
		if o.AssessmentTypes != "" {
			parts = append(parts, "assessment_types="+o.AssessmentTypes)
		}
		b.WriteString(" • " + strings.Join(parts, "; ") + "\n")
	}
	b.WriteString("Use these to guide explanations and next steps.")
	return b.String()
}
