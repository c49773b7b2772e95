package export

import (
	"github.com/upb/analytics-tools/internal/flatten"
	"github.com/upb/analytics-tools/services"
	"github.com/upb/analytics-tools/services/mixpanel"
)

const (
	// EventNameColumn always holds the top-level event name.
	EventNameColumn = "event_name"

	propertiesKey = "properties"
)

// Record is one flattened event: column name to cell text.
type Record map[string]string

// Projector flattens events and keeps only their properties.
type Projector struct {
	separator string
	prefix    string
}

// NewProjector creates a projector joining nested keys with separator.
func NewProjector(separator string) *Projector {
	if separator == "" {
		separator = "_"
	}
	return &Projector{
		separator: separator,
		prefix:    propertiesKey + separator,
	}
}

// Project flattens ev and returns its properties as a record, plus
// event_name. An event without a top-level "event" field is an error and no
// partial record is returned.
func (p *Projector) Project(ev mixpanel.Event) (Record, error) {
	name, ok := ev.Name()
	if !ok {
		return nil, services.NewDomainError(services.ErrorTypeMissingField,
			`event is missing the "event" field`, nil).WithDetail("field", "event")
	}

	props := flatten.Project(flatten.Flatten(ev, p.separator), p.prefix)

	rec := make(Record, len(props)+1)
	for k, v := range props {
		rec[k] = flatten.Format(v)
	}
	rec[EventNameColumn] = name

	return rec, nil
}
