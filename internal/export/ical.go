// Package export renders stored series in external formats.
package export

import (
	"bytes"
	"fmt"
	"io"
	"time"

	"github.com/emersion/go-ical"

	"github.com/Veraticus/spice-recur/internal/model"
	"github.com/Veraticus/spice-recur/internal/series"
)

// ProductID identifies the generator in exported calendars.
const ProductID = "-//spice-recur//recur//EN"

// Custom properties carried on exported events.
const (
	PropRecurRule   = "X-RECUR-RULE"
	PropRecurAmount = "X-RECUR-AMOUNT"
	propRelatedTo   = "RELATED-TO"
)

// SeriesCalendar builds a calendar with one all-day event per stored record.
// The template keeps its RRULE text in X-RECUR-RULE rather than RRULE, since
// the instances are already listed and clients would otherwise expand them twice.
func SeriesCalendar(s *series.Series, stamp time.Time) *ical.Calendar {
	cal := ical.NewCalendar()
	cal.Props.SetText(ical.PropVersion, "2.0")
	cal.Props.SetText(ical.PropProductID, ProductID)

	parent := event(s.Parent, stamp)
	if s.Parent.RecurrenceRule != "" {
		parent.Props.SetText(PropRecurRule, s.Parent.RecurrenceRule)
	}
	cal.Children = append(cal.Children, parent)

	for _, child := range s.Children {
		ev := event(child, stamp)
		ev.Props.SetText(propRelatedTo, s.Parent.ID)
		cal.Children = append(cal.Children, ev)
	}
	return cal
}

// WriteSeries encodes the series calendar to w.
func WriteSeries(w io.Writer, s *series.Series, stamp time.Time) error {
	var buf bytes.Buffer
	if err := ical.NewEncoder(&buf).Encode(SeriesCalendar(s, stamp)); err != nil {
		return fmt.Errorf("failed to encode calendar: %w", err)
	}
	if _, err := buf.WriteTo(w); err != nil {
		return fmt.Errorf("failed to write calendar: %w", err)
	}
	return nil
}

func event(txn model.Transaction, stamp time.Time) *ical.Component {
	ev := ical.NewComponent(ical.CompEvent)
	ev.Props.SetText(ical.PropUID, txn.ID)
	ev.Props.SetDateTime(ical.PropDateTimeStamp, stamp.UTC())

	start := ical.NewProp(ical.PropDateTimeStart)
	start.Value = model.DateOf(txn.Date).Format("20060102")
	start.Params.Set("VALUE", "DATE")
	ev.Props.Set(start)

	ev.Props.SetText(ical.PropSummary, txn.Title)
	if txn.Description != "" {
		ev.Props.SetText(ical.PropDescription, txn.Description)
	}
	if txn.Category != "" {
		ev.Props.SetText(ical.PropCategories, txn.Category)
	}

	amount := txn.Amount.StringFixed(2)
	if txn.Type == model.TypeExpense {
		amount = txn.Amount.Neg().StringFixed(2)
	}
	ev.Props.SetText(PropRecurAmount, amount)
	return ev
}
