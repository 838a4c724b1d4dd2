package queue

type TaskType string

const (
	// TaskTypeRunPipeline starts a fresh run for a topic.
	TaskTypeRunPipeline TaskType = "run_pipeline"
	// TaskTypeResumeRun resumes a persisted run, optionally with user
	// feedback applied as one revision.
	TaskTypeResumeRun TaskType = "resume_run"
)
