// Package report computes the posting cadence needed to drain the backlog.
package report

import (
	"fmt"
	"io"
	"time"

	"github.com/chicagolots/lotbot/internal/lotbot"
)

const daysPerYear = 365

// Cadence describes the posting frequency required to finish the remaining
// properties within a target horizon.
type Cadence struct {
	Total               int
	Remaining           int
	TargetYears         int
	PostsPerDay         float64
	PostsPerHour        float64
	MinutesBetweenPosts float64
	StartDate           time.Time
	EstimatedCompletion time.Time
}

// Analyze derives the posting cadence from store statistics, starting now.
func Analyze(stats lotbot.Statistics, targetYears int, now time.Time) Cadence {
	if targetYears <= 0 {
		targetYears = 30
	}
	totalDays := targetYears * daysPerYear

	c := Cadence{
		Total:               stats.Total,
		Remaining:           stats.Remaining,
		TargetYears:         targetYears,
		StartDate:           now,
		EstimatedCompletion: now.AddDate(0, 0, totalDays),
	}
	if stats.Remaining <= 0 {
		return c
	}

	c.PostsPerDay = float64(stats.Remaining) / float64(totalDays)
	c.PostsPerHour = c.PostsPerDay / 24
	if c.PostsPerHour > 0 {
		c.MinutesBetweenPosts = 60 / c.PostsPerHour
	}
	return c
}

// Write prints a human-readable cadence summary.
func Write(w io.Writer, c Cadence) error {
	_, err := fmt.Fprintf(w,
		"Property Backlog Analysis\n"+
			"=========================\n"+
			"Total properties: %d\n"+
			"Remaining: %d\n\n"+
			"To complete in %d years:\n"+
			"- Posts per day needed: %.2f\n"+
			"- Posts per hour needed: %.2f\n"+
			"- Minutes between posts: %.2f\n\n"+
			"Starting from: %s\n"+
			"Estimated completion: %s\n",
		c.Total,
		c.Remaining,
		c.TargetYears,
		c.PostsPerDay,
		c.PostsPerHour,
		c.MinutesBetweenPosts,
		c.StartDate.Format("2006-01-02"),
		c.EstimatedCompletion.Format("2006-01-02"),
	)
	return err
}
