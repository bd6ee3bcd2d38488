package sync

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/pluginmarket/maintainer/internal/changeset"
	"github.com/pluginmarket/maintainer/internal/domain"
)

// PushEvent represents the parts of a GitHub push event payload a sync run
// uses.
type PushEvent struct {
	Ref        string `json:"ref"`
	Before     string `json:"before"`
	After      string `json:"after"`
	Repository struct {
		FullName string `json:"full_name"`
	} `json:"repository"`
}

// ReadPushEvent decodes the event payload GitHub Actions writes to
// GITHUB_EVENT_PATH.
func ReadPushEvent(p string) (*PushEvent, error) {
	data, err := os.ReadFile(p)
	if err != nil {
		return nil, fmt.Errorf("read event payload: %w", err)
	}

	var event PushEvent
	if err := json.Unmarshal(data, &event); err != nil {
		return nil, fmt.Errorf("parse event payload %s: %v: %w", p, err, domain.ErrConfiguration)
	}
	return &event, nil
}

// ResolveRange fills the missing ends of r from the push event at eventPath.
// Explicit values always win.
func ResolveRange(r changeset.Range, eventPath string) (changeset.Range, error) {
	if r.After != "" || eventPath == "" {
		return r, nil
	}

	event, err := ReadPushEvent(eventPath)
	if err != nil {
		return r, err
	}
	if r.Before == "" {
		r.Before = event.Before
	}
	r.After = event.After
	return r, nil
}

// TaskDiscussions syncs plugin discussions and their index entries.
const TaskDiscussions = "discussions"

// Tasks lists the post-commit tasks sync knows how to run.
var Tasks = []string{TaskDiscussions}

// ParseTasks validates a comma separated task list. An empty list selects
// every task.
func ParseTasks(list []string) ([]string, error) {
	if len(list) == 0 {
		return Tasks, nil
	}
	for _, t := range list {
		known := false
		for _, k := range Tasks {
			if t == k {
				known = true
				break
			}
		}
		if !known {
			return nil, fmt.Errorf("unknown task: %s: %w", t, domain.ErrConfiguration)
		}
	}
	return list, nil
}
