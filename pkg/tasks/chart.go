package tasks

import (
	"time"

	"github.com/flowdeck/flowdeck/pkg/models"
)

// ChartBucket is one day of the dashboard chart. Counts always carries all
// six statuses, zero-filled, so chart consumers never branch on missing keys.
type ChartBucket struct {
	Date   string                    `json:"date"` // YYYY-MM-DD, UTC
	Counts map[models.TaskStatus]int `json:"counts"`
}

const chartDateLayout = "2006-01-02"

// Chart reduces a task stream into per-day status counts over [from, to]
// inclusive. Tasks are bucketed by creation day and counted in whatever
// status they currently hold; non-terminal tasks are included, not excluded.
// Every day in the range appears in the output even when it holds no tasks.
func Chart(taskList []*models.Task, from, to time.Time) []ChartBucket {
	from = truncateDay(from)
	to = truncateDay(to)

	if to.Before(from) {
		return []ChartBucket{}
	}

	index := make(map[string]int)

	var buckets []ChartBucket

	for day := from; !day.After(to); day = day.AddDate(0, 0, 1) {
		date := day.Format(chartDateLayout)
		index[date] = len(buckets)
		buckets = append(buckets, ChartBucket{Date: date, Counts: emptyCounts()})
	}

	for _, task := range taskList {
		day := truncateDay(task.CreatedAt)
		if day.Before(from) || day.After(to) {
			continue
		}

		buckets[index[day.Format(chartDateLayout)]].Counts[task.Status]++
	}

	return buckets
}

func emptyCounts() map[models.TaskStatus]int {
	counts := make(map[models.TaskStatus]int, 6)
	for _, status := range models.AllTaskStatuses() {
		counts[status] = 0
	}

	return counts
}

func truncateDay(t time.Time) time.Time {
	t = t.UTC()

	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
