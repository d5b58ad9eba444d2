// checklist.go: augmented-reality checklist workflow over zones and items
package fieldops

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/tphakala/fieldsync-go/internal/errors"
	"github.com/tphakala/fieldsync-go/internal/localstore"
)

// Zone states derived from item completion.
const (
	ZonePending    = "pending"
	ZoneInProgress = "in_progress"
	ZoneCompleted  = "completed"
)

// ChecklistTemplate defines the zones and items of an inspection round.
type ChecklistTemplate struct {
	ID    string
	Zones []TemplateZone
}

// TemplateZone is one physical area with its ordered inspection items.
type TemplateZone struct {
	Name  string
	Items []string
}

// ChecklistSession tracks one in-progress inspection. It lives in memory
// only; durable state is produced at finalization as queued operations.
type ChecklistSession struct {
	ID                string
	WorkOrderRemoteID int64
	TemplateID        string
	StartedAt         time.Time

	zones []sessionZone
}

type sessionZone struct {
	name    string
	items   []string
	checked map[string]bool
}

// ZoneReport summarizes one zone at finalization.
type ZoneReport struct {
	Name      string
	Completed int
	Total     int
	State     string
}

// ChecklistReport is the result handed back by FinalizeChecklist.
type ChecklistReport struct {
	SessionID         string
	WorkOrderRemoteID int64
	TemplateID        string
	Zones             []ZoneReport
	Progress          float64
	FinalizedAt       time.Time
}

func (z *sessionZone) state() string {
	completed := len(z.checked)
	switch {
	// A zone with no items has nothing left to do, so 0/0 is completed.
	case completed == len(z.items):
		return ZoneCompleted
	case completed == 0:
		return ZonePending
	default:
		return ZoneInProgress
	}
}

// Progress is completed items over total items across all zones, 0 for an
// empty template.
func (s *ChecklistSession) Progress() float64 {
	var completed, total int
	for i := range s.zones {
		completed += len(s.zones[i].checked)
		total += len(s.zones[i].items)
	}
	if total == 0 {
		return 0
	}
	return float64(completed) / float64(total)
}

// ZoneState reports the derived state of one zone.
func (s *ChecklistSession) ZoneState(zoneName string) (string, error) {
	for i := range s.zones {
		if s.zones[i].name == zoneName {
			return s.zones[i].state(), nil
		}
	}
	return "", checklistErr(fmt.Errorf("unknown zone %q", zoneName), "zone_state")
}

// completeItem checks one item. Returns false without error when the item
// was already checked.
func (s *ChecklistSession) completeItem(zoneName, itemName string) (bool, error) {
	for i := range s.zones {
		z := &s.zones[i]
		if z.name != zoneName {
			continue
		}
		for _, item := range z.items {
			if item != itemName {
				continue
			}
			if z.checked[itemName] {
				return false, nil
			}
			z.checked[itemName] = true
			return true, nil
		}
		return false, checklistErr(fmt.Errorf("unknown item %q in zone %q", itemName, zoneName), "complete_item")
	}
	return false, checklistErr(fmt.Errorf("unknown zone %q", zoneName), "complete_item")
}

func checklistErr(err error, op string) error {
	return errors.New(err).
		Component("fieldops").
		Category(errors.CategoryValidation).
		Context("operation", op).
		Build()
}

// StartChecklist opens an inspection session for a work order. Only one
// session can be active at a time.
func (c *Coordinator) StartChecklist(workOrderRemoteID int64, template ChecklistTemplate) (*ChecklistSession, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.session != nil {
		return nil, errors.New(fmt.Errorf("checklist session %s already active", c.session.ID)).
			Component("fieldops").
			Category(errors.CategoryState).
			Context("operation", "start_checklist").
			Build()
	}
	if len(template.Zones) == 0 {
		return nil, checklistErr(fmt.Errorf("template %q has no zones", template.ID), "start_checklist")
	}

	session := &ChecklistSession{
		ID:                uuid.NewString(),
		WorkOrderRemoteID: workOrderRemoteID,
		TemplateID:        template.ID,
		StartedAt:         time.Now(),
	}
	for _, tz := range template.Zones {
		session.zones = append(session.zones, sessionZone{
			name:    tz.Name,
			items:   append([]string(nil), tz.Items...),
			checked: make(map[string]bool),
		})
	}

	c.session = session
	c.logger.Info("checklist started",
		"session", session.ID, "work_order", workOrderRemoteID, "template", template.ID)
	return session, nil
}

// CompleteItem checks one item on the active session. The second
// completion of the same item reports false and changes nothing.
func (c *Coordinator) CompleteItem(zoneName, itemName string) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.session == nil {
		return false, noActiveSession("complete_item")
	}
	return c.session.completeItem(zoneName, itemName)
}

// FinalizeChecklist queues one intervention note per zone summarizing the
// inspection and discards the session.
func (c *Coordinator) FinalizeChecklist(ctx context.Context) (ChecklistReport, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.session == nil {
		return ChecklistReport{}, noActiveSession("finalize_checklist")
	}
	session := c.session

	report := ChecklistReport{
		SessionID:         session.ID,
		WorkOrderRemoteID: session.WorkOrderRemoteID,
		TemplateID:        session.TemplateID,
		Progress:          session.Progress(),
		FinalizedAt:       time.Now(),
	}

	for i := range session.zones {
		z := &session.zones[i]
		zr := ZoneReport{
			Name:      z.name,
			Completed: len(z.checked),
			Total:     len(z.items),
			State:     z.state(),
		}
		report.Zones = append(report.Zones, zr)

		noteText := fmt.Sprintf("checklist %s zone %s: %d/%d items completed (%s)",
			session.TemplateID, zr.Name, zr.Completed, zr.Total, zr.State)
		if _, err := c.enqueueNote(ctx, session.WorkOrderRemoteID, noteText, "checklist", localstore.PriorityNormal); err != nil {
			return ChecklistReport{}, err
		}
	}

	c.session = nil
	c.logger.Info("checklist finalized",
		"session", session.ID, "zones", len(report.Zones), "progress", report.Progress)
	return report, nil
}

func noActiveSession(op string) error {
	return errors.New(fmt.Errorf("no active checklist session")).
		Component("fieldops").
		Category(errors.CategoryState).
		Context("operation", op).
		Build()
}
