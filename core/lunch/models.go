package lunch

import (
	"time"
)

// SelectionNone is the reserved selection value meaning the user explicitly
// opted out of lunch for that day. An empty selection means "no decision yet".
const SelectionNone = "no-lunch"

type (
	// Option is one orderable lunch option of a day, e.g. {"a-menu", "Csirkepaprikás"}.
	Option struct {
		ID    string `json:"id" bson:"id" validate:"required,max=64"`
		Label string `json:"label" bson:"label" validate:"required,max=256"`
	}

	// DaySlot is the ordered option set of a single serving day.
	// Order is significant: it is the display order.
	DaySlot []Option

	// Menu is the set of lunch options published for one WeekKey.
	// At most one Menu exists per WeekKey. Its options are immutable after
	// creation; only IsOpen is mutated, by the admin open/close action.
	Menu struct {
		ID        string           `json:"-" bson:"_id,omitempty"`
		Week      int              `json:"week" bson:"week"`
		Year      int              `json:"year" bson:"year"`
		Days      [NumDays]DaySlot `json:"days" bson:"days"`
		IsOpen    bool             `json:"is_open" bson:"is_open"`
		CreatedAt time.Time        `json:"created_at" bson:"created_at"` // UTC
		UpdatedAt time.Time        `json:"updated_at" bson:"updated_at"` // UTC
	}

	// Order is one user's per-day selections for one WeekKey.
	// At most one Order exists per (user email, WeekKey). Selections are owned
	// by the submitting user while the window is open; Redeemed is owned by the
	// kiosk and is never touched by submissions.
	Order struct {
		ID         string              `json:"-" bson:"_id,omitempty"`
		Email      string              `json:"email" bson:"email"`
		Week       int                 `json:"week" bson:"week"`
		Year       int                 `json:"year" bson:"year"`
		Selections [NumDays]string     `json:"selections" bson:"selections"`
		Redeemed   [NumDays]*time.Time `json:"redeemed" bson:"redeemed"` // UTC; nil = not redeemed
		CreatedAt  time.Time           `json:"created_at" bson:"created_at"`
		UpdatedAt  time.Time           `json:"updated_at" bson:"updated_at"`
	}
)

func (m Menu) WeekKey() WeekKey { return WeekKey{Week: m.Week, Year: m.Year} }

// HasOption reports whether the day slot carries an option with the given id.
func (d DaySlot) HasOption(id string) bool {
	for _, opt := range d {
		if opt.ID == id {
			return true
		}
	}
	return false
}

// OptionLabel resolves an option id to its display label; falls back to the id
// itself so kiosk operators always see something.
func (d DaySlot) OptionLabel(id string) string {
	for _, opt := range d {
		if opt.ID == id {
			return opt.Label
		}
	}
	return id
}

func (o Order) WeekKey() WeekKey { return WeekKey{Week: o.Week, Year: o.Year} }

// Ordered reports whether the user has an actual lunch coming on the given day.
func (o Order) Ordered(day int) bool {
	if day < 0 || day >= NumDays {
		return false
	}
	sel := o.Selections[day]
	return sel != "" && sel != SelectionNone
}
