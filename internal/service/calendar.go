package service

import (
	"time"

	"telegram-image-bot/internal/model"
)

// Calendar supplies the current time and the quota day in one timezone.
type Calendar struct {
	loc *time.Location
	now func() time.Time
}

// NewCalendar creates a Calendar. A nil now uses time.Now.
func NewCalendar(loc *time.Location, now func() time.Time) *Calendar {
	if loc == nil {
		loc = time.UTC
	}
	if now == nil {
		now = time.Now
	}
	return &Calendar{loc: loc, now: now}
}

// Now returns the current time in the calendar's timezone.
func (c *Calendar) Now() time.Time {
	return c.now().In(c.loc)
}

// Today returns the current date formatted as model.DateLayout.
func (c *Calendar) Today() string {
	return c.Now().Format(model.DateLayout)
}

// StartOfDay returns midnight of the current day.
func (c *Calendar) StartOfDay() time.Time {
	n := c.Now()
	return time.Date(n.Year(), n.Month(), n.Day(), 0, 0, 0, 0, c.loc)
}
