// Package pipeline sequences the extraction, research, matching, and
// generation engines into the five-stage proposal pipeline.
//
// Each stage is an independently invocable entry point so a human can
// correct inputs and re-enter at any stage. Transitions are strictly
// forward: a stage refuses to run until its predecessor's output exists on
// the proposal record, and re-running a stage replaces only that stage's
// output.
package pipeline

// Stage is one step of the five-step pipeline.
type Stage string

const (
	StageMetadataExtraction Stage = "metadata_extraction"
	StageGapAnalysis        Stage = "gap_analysis"
	StageResearch           Stage = "research"
	StageSynthesis          Stage = "synthesis"
	StageDocumentGeneration Stage = "document_generation"
)

// stageOrder fixes the forward sequence of the pipeline.
var stageOrder = []Stage{
	StageMetadataExtraction,
	StageGapAnalysis,
	StageResearch,
	StageSynthesis,
	StageDocumentGeneration,
}

// Stages returns the pipeline stages in execution order.
func Stages() []Stage {
	return append([]Stage(nil), stageOrder...)
}

// Valid reports whether s names a pipeline stage.
func (s Stage) Valid() bool {
	for _, stage := range stageOrder {
		if s == stage {
			return true
		}
	}
	return false
}

// Predecessor returns the stage that must complete before s, and false for
// the first stage.
func (s Stage) Predecessor() (Stage, bool) {
	for i, stage := range stageOrder {
		if s == stage && i > 0 {
			return stageOrder[i-1], true
		}
	}
	return "", false
}

// Terminal reports whether s is the last stage.
func (s Stage) Terminal() bool {
	return s == StageDocumentGeneration
}
