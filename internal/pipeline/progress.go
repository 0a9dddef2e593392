package pipeline

// progressGuard forwards only strictly increasing values clamped to 0..100.
type progressGuard struct {
	fn   ProgressFunc
	last int
}

func newProgressGuard(fn ProgressFunc) *progressGuard {
	return &progressGuard{fn: fn, last: -1}
}

func (g *progressGuard) report(progress int) {
	progress = min(max(progress, 0), 100)
	if progress <= g.last {
		return
	}
	g.last = progress
	if g.fn != nil {
		g.fn(progress)
	}
}

var stageProgress = []struct {
	stage string
	done  int
}{
	{StageValidate, progressValidate},
	{StageLoad, progressLoad},
	{StagePreprocess, progressPreprocess},
	{StageDiarize, progressDiarize},
	{StageTranscribe, progressTranscribe},
	{StageFuse, progressFuse},
	{StageEmotion, progressEmotion},
	{StageAnalyze, progressAnalyze},
	{StageReport, progressReport},
}

// StageAt names the stage that runs after progress has been reported.
// It returns an empty string once the run is complete.
func StageAt(progress int) string {
	for _, sp := range stageProgress {
		if progress < sp.done {
			return sp.stage
		}
	}
	return ""
}
