package gtasks

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/log"
	"google.golang.org/api/tasks/v1"

	"github.com/hurttlocker/tasksift/internal/extract"
)

// idMarker prefixes the note line that ties a Google task to a todo.
const idMarker = "tasksift-id: "

// ExportResult summarizes one export.
type ExportResult struct {
	ListID    string `json:"list_id"`
	ListTitle string `json:"list_title"`
	Created   int    `json:"created"`
	Skipped   int    `json:"skipped"`
}

// Exporter pushes todos into a Google Tasks list.
type Exporter struct {
	svc    *tasks.Service
	logger *log.Logger
}

func NewExporter(svc *tasks.Service, logger *log.Logger) *Exporter {
	if logger == nil {
		logger = log.New(io.Discard)
	}
	return &Exporter{svc: svc, logger: logger}
}

// EnsureList returns the id of the task list titled title, creating it
// when no list has that title.
func (e *Exporter) EnsureList(ctx context.Context, title string) (string, error) {
	var id string
	err := e.svc.Tasklists.List().MaxResults(100).Pages(ctx, func(page *tasks.TaskLists) error {
		for _, l := range page.Items {
			if l.Title == title {
				id = l.Id
				return nil
			}
		}
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("listing task lists: %w", err)
	}
	if id != "" {
		return id, nil
	}

	created, err := e.svc.Tasklists.Insert(&tasks.TaskList{Title: title}).Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("creating task list %q: %w", title, err)
	}
	e.logger.Info("created google task list", "title", title, "id", created.Id)
	return created.Id, nil
}

// Export inserts every open todo not already present in the list.
// Completed todos are skipped. A todo is present when some task's notes
// carry its id marker.
func (e *Exporter) Export(ctx context.Context, listTitle string, todos []extract.Task) (*ExportResult, error) {
	listTitle = strings.TrimSpace(listTitle)
	if listTitle == "" {
		return nil, fmt.Errorf("task list title is required")
	}
	listID, err := e.EnsureList(ctx, listTitle)
	if err != nil {
		return nil, err
	}

	existing, err := e.exportedIDs(ctx, listID)
	if err != nil {
		return nil, err
	}

	res := &ExportResult{ListID: listID, ListTitle: listTitle}
	for _, t := range todos {
		if t.Completed || existing[t.ID] {
			res.Skipped++
			continue
		}
		if _, err := e.svc.Tasks.Insert(listID, TaskFor(t)).Context(ctx).Do(); err != nil {
			return res, fmt.Errorf("inserting %s: %w", t.ID, err)
		}
		existing[t.ID] = true
		res.Created++
	}
	e.logger.Debug("google export finished", "list", listTitle, "created", res.Created, "skipped", res.Skipped)
	return res, nil
}

func (e *Exporter) exportedIDs(ctx context.Context, listID string) (map[string]bool, error) {
	ids := make(map[string]bool)
	err := e.svc.Tasks.List(listID).ShowCompleted(true).ShowHidden(true).MaxResults(100).
		Pages(ctx, func(page *tasks.Tasks) error {
			for _, item := range page.Items {
				if id := markerID(item.Notes); id != "" {
					ids[id] = true
				}
			}
			return nil
		})
	if err != nil {
		return nil, fmt.Errorf("listing tasks: %w", err)
	}
	return ids, nil
}

// TaskFor maps a todo onto a Google task. Google keeps only the date part
// of Due, so the date is sent as midnight UTC.
func TaskFor(t extract.Task) *tasks.Task {
	notes := fmt.Sprintf("category: %s\npriority: %s\nsource: %s\n",
		t.Category, t.Priority, t.Source)
	if t.Context != "" {
		notes += "context: " + t.Context + "\n"
	}
	notes += idMarker + t.ID
	out := &tasks.Task{
		Title:  t.Title,
		Notes:  notes,
		Status: "needsAction",
	}
	if t.DueDate != nil && extract.ValidDate(*t.DueDate) {
		out.Due = *t.DueDate + "T00:00:00.000Z"
	}
	return out
}

func markerID(notes string) string {
	for _, line := range strings.Split(notes, "\n") {
		if rest, ok := strings.CutPrefix(strings.TrimSpace(line), idMarker); ok {
			return strings.TrimSpace(rest)
		}
	}
	return ""
}
