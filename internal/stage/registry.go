// Package stage holds the fixed 12-stage pipeline catalog and the per-stage
// SLA thresholds. The catalog is compiled in and never mutated at runtime;
// the database copy (migrations/schema.sql) exists for reporting joins only.
package stage

import "installflow/internal/apperr"

// Definition describes one pipeline stage.
type Definition struct {
	Number      int
	Name        string
	AutoAdvance bool
	// ReminderDays is the reminder interval for the external scheduler;
	// 0 means the stage emits no reminders.
	ReminderDays int
}

const (
	First = 1
	Last  = 12
)

var definitions = [Last]Definition{
	{Number: 1, Name: "New Inquiry", ReminderDays: 2},
	{Number: 2, Name: "Measurement Scheduled", ReminderDays: 1},
	{Number: 3, Name: "Measurement Done", AutoAdvance: true},
	{Number: 4, Name: "Quote Sent", ReminderDays: 3},
	{Number: 5, Name: "Contract Signed"},
	{Number: 6, Name: "Material Ordered", ReminderDays: 7},
	{Number: 7, Name: "Material Arrived", AutoAdvance: true},
	{Number: 8, Name: "Installation Scheduled", ReminderDays: 2},
	{Number: 9, Name: "Installation In Progress", ReminderDays: 1},
	{Number: 10, Name: "Installation Done", AutoAdvance: true},
	{Number: 11, Name: "Final Inspection", ReminderDays: 3},
	{Number: 12, Name: "Completed"},
}

// slaDays maps stage number to the overdue threshold in days. Stages with no
// entry never become overdue (intake and completed have no SLA). A threshold
// of 0 would mean any staleness at all is overdue.
var slaDays = map[int]int{
	2:  7,
	3:  3,
	4:  5,
	5:  7,
	6:  10,
	7:  7,
	8:  5,
	9:  3,
	10: 2,
	11: 5,
}

// Valid reports whether number names one of the 12 stages.
func Valid(number int) bool {
	return number >= First && number <= Last
}

// Lookup returns the definition for a stage number.
func Lookup(number int) (Definition, error) {
	if !Valid(number) {
		return Definition{}, apperr.NotFound("stage %d does not exist", number)
	}
	return definitions[number-1], nil
}

// Threshold returns the SLA threshold in days for a stage and whether one is
// configured.
func Threshold(number int) (int, bool) {
	days, ok := slaDays[number]
	return days, ok
}

// All returns the catalog in pipeline order.
func All() []Definition {
	out := make([]Definition, Last)
	copy(out, definitions[:])
	return out
}
