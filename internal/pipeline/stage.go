package pipeline

import "time"

// StageID identifies one of the six fixed stages.
type StageID string

const (
	StageUpload     StageID = "upload"
	StageParse      StageID = "parse"
	StageClean      StageID = "clean"
	StageExtract    StageID = "extract"
	StageSummarize  StageID = "summarize"
	StageAIAnalysis StageID = "ai_analysis"
)

// Stage describes a pipeline stage.
type Stage struct {
	ID    StageID `json:"id"`
	Name  string  `json:"name"`
	Order int     `json:"order"`
}

var stages = [...]Stage{
	{ID: StageUpload, Name: "Upload", Order: 1},
	{ID: StageParse, Name: "Parse", Order: 2},
	{ID: StageClean, Name: "Clean", Order: 3},
	{ID: StageExtract, Name: "Extract", Order: 4},
	{ID: StageSummarize, Name: "Summarize", Order: 5},
	{ID: StageAIAnalysis, Name: "AI Analysis", Order: 6},
}

// Stages returns the stages in execution order.
func Stages() []Stage {
	out := make([]Stage, len(stages))
	copy(out, stages[:])
	return out
}

func stageName(id StageID) string {
	for _, s := range stages {
		if s.ID == id {
			return s.Name
		}
	}
	return string(id)
}

// StageStatus is the state of one stage within a run.
type StageStatus string

const (
	StagePending   StageStatus = "pending"
	StageRunning   StageStatus = "running"
	StageCompleted StageStatus = "completed"
	StageFailed    StageStatus = "error"
)

// RunStatus is the state of the whole run.
type RunStatus string

const (
	RunIdle      RunStatus = "idle"
	RunRunning   RunStatus = "running"
	RunCompleted RunStatus = "completed"
	RunFailed    RunStatus = "error"
)

// Detail is a timestamped progress note.
type Detail struct {
	Time    time.Time `json:"time"`
	Message string    `json:"message"`
}

// StageProgress tracks one stage.
type StageProgress struct {
	Status    StageStatus   `json:"status"`
	Progress  int           `json:"progress"`
	StartTime time.Time     `json:"startTime,omitempty"`
	EndTime   time.Time     `json:"endTime,omitempty"`
	Duration  time.Duration `json:"duration"`
	Details   []Detail      `json:"details,omitempty"`
	Result    any           `json:"-"`
	Error     string        `json:"error,omitempty"`
}

// LogEntry is an in-memory run log line.
type LogEntry struct {
	Time    time.Time `json:"time"`
	Level   string    `json:"level"`
	Stage   StageID   `json:"stage,omitempty"`
	Message string    `json:"message"`
}

// ErrorInfo describes the failure of a run.
type ErrorInfo struct {
	Stage   StageID `json:"stage"`
	Type    string  `json:"type"`
	Message string  `json:"message"`
}

// ProgressEvent is pushed to Options.OnProgress.
type ProgressEvent struct {
	RunID    string      `json:"runId"`
	Stage    StageID     `json:"stage"`
	Status   StageStatus `json:"status"`
	Progress int         `json:"progress"`
	Detail   string      `json:"detail,omitempty"`
}

// Snapshot is a copy of the orchestrator state returned by Status.
type Snapshot struct {
	RunID         string                    `json:"runId,omitempty"`
	Status        RunStatus                 `json:"status"`
	CurrentStage  StageID                   `json:"currentStage,omitempty"`
	Stages        []Stage                   `json:"stages"`
	StageProgress map[StageID]StageProgress `json:"stageProgress"`
	StartTime     time.Time                 `json:"startTime,omitempty"`
	EndTime       time.Time                 `json:"endTime,omitempty"`
	Duration      time.Duration             `json:"duration"`
	Logs          []LogEntry                `json:"logs"`
	ErrorInfo     *ErrorInfo                `json:"errorInfo,omitempty"`
}
