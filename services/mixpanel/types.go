package mixpanel

import (
	"fmt"
	"time"

	"github.com/upb/analytics-tools/services"
)

// DateLayout is the format of the from_date/to_date query parameters.
const DateLayout = "2006-01-02"

// Event is one raw export record: a top-level "event" name and a nested
// "properties" mapping whose keys are not known in advance.
type Event map[string]any

// Name returns the top-level event name and whether the field is present.
// A present null name is reported as "".
func (e Event) Name() (string, bool) {
	v, ok := e["event"]
	if !ok {
		return "", false
	}
	switch name := v.(type) {
	case nil:
		return "", true
	case string:
		return name, true
	default:
		return fmt.Sprint(name), true
	}
}

// DateRange is an inclusive range of calendar dates.
type DateRange struct {
	From time.Time
	To   time.Time
}

// LastDays returns the range ending on now and starting days before it.
func LastDays(now time.Time, days int) DateRange {
	return DateRange{From: now.AddDate(0, 0, -days), To: now}
}

// Validate rejects a range whose start is after its end.
func (r DateRange) Validate() error {
	if r.From.IsZero() || r.To.IsZero() {
		return services.NewDomainError(services.ErrorTypeValidation, "date range bounds are required", nil)
	}
	if r.FromParam() > r.ToParam() {
		return services.NewDomainError(services.ErrorTypeValidation,
			fmt.Sprintf("from date %s is after to date %s", r.FromParam(), r.ToParam()), nil)
	}
	return nil
}

// FromParam formats the start date as YYYY-MM-DD.
func (r DateRange) FromParam() string {
	return r.From.Format(DateLayout)
}

// ToParam formats the end date as YYYY-MM-DD.
func (r DateRange) ToParam() string {
	return r.To.Format(DateLayout)
}

func (r DateRange) String() string {
	return r.FromParam() + ".." + r.ToParam()
}
