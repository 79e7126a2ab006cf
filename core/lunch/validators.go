package lunch

import (
	"fmt"

	"github.com/go-playground/validator/v10"

	"github.com/suliportal/suliportal/core"
)

type (
	// NewMenu contains information needed to publish a week's menu.
	NewMenu struct {
		Days [NumDays]DaySlot `json:"days" validate:"dive,dive"`
	}

	// OrderSubmission is a user's full set of selections for a week.
	// Submissions always carry all five days; partial merges are not supported.
	OrderSubmission struct {
		Selections [NumDays]string `json:"selections" validate:"dive,max=64"`
	}
)

// Validate checks the menu's shape: every option id non-empty and unique
// within its day. Empty day slots are allowed (e.g. public holidays).
func (nm *NewMenu) Validate(validate *validator.Validate) error {
	for day := range nm.Days {
		for i, opt := range nm.Days[day] {
			nm.Days[day][i].ID = core.CleanString(opt.ID)
			nm.Days[day][i].Label = core.CleanString(opt.Label)
		}
	}
	if err := validate.Struct(nm); err != nil {
		return err
	}

	var flds []core.FieldError
	for day, slot := range nm.Days {
		seen := make(map[string]bool, len(slot))
		for _, opt := range slot {
			if seen[opt.ID] {
				flds = append(flds, core.FieldError{
					Field: fmt.Sprintf("days[%d]", day),
					Error: fmt.Sprintf("duplicate option id %q", opt.ID),
				})
			}
			seen[opt.ID] = true
		}
	}
	if flds != nil {
		return core.NewValidationError(nil, flds...)
	}
	return nil
}

func (os *OrderSubmission) Validate(validate *validator.Validate) error {
	for i, sel := range os.Selections {
		os.Selections[i] = core.CleanString(sel)
	}
	return validate.Struct(os)
}
