// Package notification holds the user-facing notification queue and the
// outbound sinks (log, webhook, Telegram) that settlement results are
// forwarded to.
package notification

import (
	"sort"
	"time"

	"github.com/google/uuid"

	"botrader/internal/model"
)

// DefaultStandardCap bounds the standard lane.
const DefaultStandardCap = 5

// Input is a notification request. ID and CreatedAt are assigned when empty.
type Input struct {
	ID          string
	Title       string
	Description string
	Variant     model.Variant
	CreatedAt   time.Time
	Spotlight   bool
}

// Dispatcher keeps two lanes of notifications: spotlight (uncapped) and
// standard (capped). Each lane is ordered by CreatedAt descending and ids
// are unique across both. Not safe for concurrent use.
type Dispatcher struct {
	spotlight   []model.Notification
	standard    []model.Notification
	standardCap int
	now         func() time.Time
	newID       func() string
}

// NewDispatcher creates an empty dispatcher. A nil clock uses time.Now.
func NewDispatcher(standardCap int, clock func() time.Time) *Dispatcher {
	if standardCap <= 0 {
		standardCap = DefaultStandardCap
	}
	if clock == nil {
		clock = time.Now
	}
	return &Dispatcher{
		standardCap: standardCap,
		now:         clock,
		newID:       uuid.NewString,
	}
}

// Push enqueues one notification and returns it as stored.
func (d *Dispatcher) Push(in Input) model.Notification {
	return d.PushBatch([]Input{in})[0]
}

// PushBatch enqueues several notifications at once. Incoming entries take
// precedence over existing ones with the same id, and earlier entries of the
// batch over later ones.
func (d *Dispatcher) PushBatch(ins []Input) []model.Notification {
	if len(ins) == 0 {
		return nil
	}

	incoming := make([]model.Notification, 0, len(ins))
	for _, in := range ins {
		incoming = append(incoming, d.materialise(in))
	}

	merged := make([]model.Notification, 0, len(incoming)+len(d.spotlight)+len(d.standard))
	merged = append(merged, incoming...)
	merged = append(merged, d.spotlight...)
	merged = append(merged, d.standard...)
	d.rebuild(merged)
	return incoming
}

func (d *Dispatcher) materialise(in Input) model.Notification {
	n := model.Notification{
		ID:          in.ID,
		Title:       in.Title,
		Description: in.Description,
		Variant:     in.Variant,
		CreatedAt:   in.CreatedAt,
		Spotlight:   in.Spotlight,
	}
	if n.ID == "" {
		n.ID = d.newID()
	}
	if n.CreatedAt.IsZero() {
		n.CreatedAt = d.now()
	}
	if !n.Variant.Valid() {
		n.Variant = model.VariantInfo
	}
	return n
}

// rebuild dedupes by id (first occurrence wins), splits into lanes, orders
// each lane newest first and caps the standard lane.
func (d *Dispatcher) rebuild(all []model.Notification) {
	seen := make(map[string]struct{}, len(all))
	var spot, std []model.Notification
	for _, n := range all {
		if _, dup := seen[n.ID]; dup {
			continue
		}
		seen[n.ID] = struct{}{}
		if n.Spotlight {
			spot = append(spot, n)
		} else {
			std = append(std, n)
		}
	}

	byNewest := func(lane []model.Notification) {
		sort.SliceStable(lane, func(i, j int) bool {
			return lane[i].CreatedAt.After(lane[j].CreatedAt)
		})
	}
	byNewest(spot)
	byNewest(std)
	if len(std) > d.standardCap {
		std = std[:d.standardCap]
	}

	d.spotlight = spot
	d.standard = std
}

// Dismiss removes the notification with the given id from whichever lane
// holds it. Unknown ids are ignored. Reports whether anything was removed.
func (d *Dispatcher) Dismiss(id string) bool {
	if i := indexOf(d.spotlight, id); i >= 0 {
		d.spotlight = append(d.spotlight[:i:i], d.spotlight[i+1:]...)
		return true
	}
	if i := indexOf(d.standard, id); i >= 0 {
		d.standard = append(d.standard[:i:i], d.standard[i+1:]...)
		return true
	}
	return false
}

func indexOf(lane []model.Notification, id string) int {
	for i := range lane {
		if lane[i].ID == id {
			return i
		}
	}
	return -1
}

// Spotlight returns a copy of the spotlight lane.
func (d *Dispatcher) Spotlight() []model.Notification {
	return append([]model.Notification(nil), d.spotlight...)
}

// Standard returns a copy of the standard lane.
func (d *Dispatcher) Standard() []model.Notification {
	return append([]model.Notification(nil), d.standard...)
}

// List returns the spotlight lane followed by the standard lane.
func (d *Dispatcher) List() []model.Notification {
	out := make([]model.Notification, 0, len(d.spotlight)+len(d.standard))
	out = append(out, d.spotlight...)
	return append(out, d.standard...)
}

// Len returns the total number of queued notifications.
func (d *Dispatcher) Len() int { return len(d.spotlight) + len(d.standard) }
