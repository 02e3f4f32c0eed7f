package scheduler

import (
	"fmt"
	"sort"
)

// Template is a named set of job definitions added together.
type Template struct {
	Name        string
	Description string
	Jobs        []JobSpec
}

const activationPrompt = "Good morning! Let's start a new session."

var templates = map[string]Template{
	"morning": {
		Name:        "morning",
		Description: "daily activation at 08:00",
		Jobs: []JobSpec{
			{Prompt: activationPrompt, Recurrence: Daily(8, 0)},
		},
	},
	"workday": {
		Name:        "workday",
		Description: "check-ins at 09:00, 12:00, 15:00 and 18:00",
		Jobs: []JobSpec{
			{Prompt: "Start of the workday, ready when you are.", Recurrence: Daily(9, 0)},
			{Prompt: "Midday check-in.", Recurrence: Daily(12, 0)},
			{Prompt: "Afternoon check-in.", Recurrence: Daily(15, 0)},
			{Prompt: "End of the workday summary please.", Recurrence: Daily(18, 0)},
		},
	},
	"night": {
		Name:        "night",
		Description: "nightly session at 23:00",
		Jobs: []JobSpec{
			{Prompt: "Good night, closing out today's session.", Recurrence: Daily(23, 0)},
		},
	},
	"five-hour": {
		Name:        "five-hour",
		Description: "keep-alive every 5 hours to roll the usage window",
		Jobs: []JobSpec{
			{Prompt: "x", Recurrence: Every(5)},
		},
	},
}

// Templates returns the built-in templates sorted by name.
func Templates() []Template {
	out := make([]Template, 0, len(templates))
	for _, t := range templates {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// ApplyTemplate adds every job of the named template, sending prompts to
// target, and returns the new ids.
func (e *Engine) ApplyTemplate(name, target string) ([]int, error) {
	t, ok := templates[name]
	if !ok {
		return nil, fmt.Errorf("unknown template %q", name)
	}
	ids := make([]int, 0, len(t.Jobs))
	for _, spec := range t.Jobs {
		spec.Target = target
		id, err := e.AddJob(spec)
		if err != nil {
			return ids, fmt.Errorf("adding %s job: %w", name, err)
		}
		ids = append(ids, id)
	}
	return ids, nil
}
