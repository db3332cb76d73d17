package queue

type TaskType string

const (
	TaskTypeExtractionRun TaskType = "extraction_run"
)

const (
	// DefaultStream is where extraction run tasks are published.
	DefaultStream = "extraction_tasks"
	// DefaultDLQStream receives tasks that exhausted their attempts.
	DefaultDLQStream = "extraction_tasks_dlq"
	// DefaultGroup is the worker consumer group.
	DefaultGroup = "extraction_workers"
)
