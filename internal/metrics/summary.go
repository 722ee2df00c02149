package metrics

import "sort"

// Summary aggregates the metrics of one job. Totals count the latest
// attempt of each chapter; Attempts counts every attempt.
type Summary struct {
	JobID            string  `json:"job_id"`
	Chapters         int     `json:"chapters"`
	FailedChapters   int     `json:"failed_chapters"`
	Attempts         int     `json:"attempts"`
	Chunks           int     `json:"chunks"`
	Characters       int     `json:"characters"`
	AudioSeconds     float64 `json:"audio_seconds"`
	SynthesisSeconds float64 `json:"synthesis_seconds"`
	// RealTimeFactor is audio produced per second of synthesis.
	RealTimeFactor float64   `json:"real_time_factor"`
	CharsPerSecond float64   `json:"chars_per_second"`
	PerChapter     []Chapter `json:"per_chapter"`
}

// Summarize folds the attempts of a job, in any order, into a Summary.
func Summarize(jobID string, ms []Chapter) Summary {
	s := Summary{JobID: jobID, Attempts: len(ms), PerChapter: []Chapter{}}

	sorted := make([]Chapter, len(ms))
	copy(sorted, ms)
	sortByTime(sorted)

	latest := make(map[int]Chapter, len(sorted))
	for _, m := range sorted {
		latest[m.ChapterIndex] = m
	}
	for _, m := range latest {
		s.PerChapter = append(s.PerChapter, m)
	}
	sort.Slice(s.PerChapter, func(i, j int) bool {
		return s.PerChapter[i].ChapterIndex < s.PerChapter[j].ChapterIndex
	})

	for _, m := range s.PerChapter {
		s.Chapters++
		if !m.Success {
			s.FailedChapters++
			continue
		}
		s.Chunks += m.Chunks
		s.Characters += m.Characters
		s.AudioSeconds += m.AudioSeconds
		s.SynthesisSeconds += m.SynthesisSeconds
	}
	if s.SynthesisSeconds > 0 {
		s.RealTimeFactor = s.AudioSeconds / s.SynthesisSeconds
		s.CharsPerSecond = float64(s.Characters) / s.SynthesisSeconds
	}
	return s
}
