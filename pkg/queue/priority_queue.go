package queue

import (
	"cmp"
	"regexp"
	"slices"

	"github.com/alian-ui/Doc-to-MD-sub000/pkg/models"
)

// Scores assigned by URL pattern; anything unmatched scores DefaultScore
const (
	HighScore    = 3.0
	MediumScore  = 2.0
	DefaultScore = 1.0
	LowScore     = 0.5
)

var scoreRules = []struct {
	pattern *regexp.Regexp
	score   float64
}{
	{regexp.MustCompile(`(?i)(index|overview|introduction|getting-started)`), HighScore},
	{regexp.MustCompile(`(?i)(guide|tutorial|how-to)`), MediumScore},
	{regexp.MustCompile(`(?i)(api|reference|changelog)`), LowScore},
}

// Score rates a URL; the first matching rule wins
func Score(url string) float64 {
	for _, r := range scoreRules {
		if r.pattern.MatchString(url) {
			return r.score
		}
	}
	return DefaultScore
}

// Prioritize returns the URLs ordered by score, highest first. Equal scores keep their
// relative order, so applying it twice changes nothing.
func Prioritize(urls []string) []string {
	type scored struct {
		url   string
		score float64
	}
	items := make([]scored, len(urls))
	for i, u := range urls {
		items[i] = scored{u, Score(u)}
	}
	slices.SortStableFunc(items, func(a, b scored) int {
		return cmp.Compare(b.score, a.score)
	})

	out := make([]string, len(items))
	for i, it := range items {
		out[i] = it.url
	}
	return out
}

// Tasks numbers the URLs in discovery order, then returns them as prioritized tasks
func Tasks(urls []string) []models.PageTask {
	tasks := make([]models.PageTask, len(urls))
	for i, u := range urls {
		tasks[i] = models.PageTask{URL: u, Index: i, Score: Score(u)}
	}
	slices.SortStableFunc(tasks, func(a, b models.PageTask) int {
		return cmp.Compare(b.Score, a.Score)
	})
	return tasks
}

// Chunks splits tasks into consecutive slices of at most size elements
func Chunks[T any](items []T, size int) [][]T {
	if size <= 0 {
		size = len(items)
	}
	var out [][]T
	for start := 0; start < len(items); start += size {
		out = append(out, items[start:min(start+size, len(items))])
	}
	return out
}
