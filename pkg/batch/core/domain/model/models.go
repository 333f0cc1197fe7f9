// Package model holds the execution-state types shared by the job and step machinery.
package model

import (
	"database/sql/driver"
	"fmt"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
)

// JobStatus represents the state of a job or step execution.
type JobStatus string

const (
	BatchStatusStarting  JobStatus = "STARTING"
	BatchStatusStarted   JobStatus = "STARTED"
	BatchStatusCompleted JobStatus = "COMPLETED"
	BatchStatusFailed    JobStatus = "FAILED"
	BatchStatusStopped   JobStatus = "STOPPED"
)

// String returns the string representation of the JobStatus.
func (s JobStatus) String() string {
	return string(s)
}

// IsFinished checks if the JobStatus represents a finished state.
func (s JobStatus) IsFinished() bool {
	switch s {
	case BatchStatusCompleted, BatchStatusFailed, BatchStatusStopped:
		return true
	default:
		return false
	}
}

// ExecutionContext is a key-value store for state that must survive a restart.
type ExecutionContext map[string]interface{}

// NewExecutionContext creates a new empty ExecutionContext.
func NewExecutionContext() ExecutionContext {
	return make(ExecutionContext)
}

// Value implements driver.Valuer, encoding the context as JSON.
func (ec ExecutionContext) Value() (driver.Value, error) {
	if ec == nil {
		return "{}", nil
	}
	data, err := json.Marshal(ec)
	if err != nil {
		return nil, err
	}
	return string(data), nil
}

// Scan implements sql.Scanner, decoding a JSON column into the context.
func (ec *ExecutionContext) Scan(value interface{}) error {
	var b []byte
	switch v := value.(type) {
	case nil:
	case []byte:
		b = v
	case string:
		b = []byte(v)
	default:
		return fmt.Errorf("unsupported Scan type for ExecutionContext: %T", value)
	}
	if len(b) == 0 {
		*ec = make(ExecutionContext)
		return nil
	}
	if err := json.Unmarshal(b, ec); err != nil {
		return fmt.Errorf("failed to unmarshal ExecutionContext JSON: %w", err)
	}
	return nil
}

// Put sets a value in the ExecutionContext.
func (ec ExecutionContext) Put(key string, value interface{}) {
	ec[key] = value
}

// Get retrieves the value for key.
func (ec ExecutionContext) Get(key string) (interface{}, bool) {
	val, ok := ec[key]
	return val, ok
}

// GetString retrieves the value for key as a string.
func (ec ExecutionContext) GetString(key string) (string, bool) {
	str, ok := ec[key].(string)
	return str, ok
}

// GetInt retrieves the value for key as an int.
// Numbers decoded from JSON arrive as float64 and are converted.
func (ec ExecutionContext) GetInt(key string) (int, bool) {
	switch v := ec[key].(type) {
	case int:
		return v, true
	case int64:
		return int(v), true
	case float64:
		return int(v), true
	default:
		return 0, false
	}
}

// Copy creates a shallow copy of the ExecutionContext.
func (ec ExecutionContext) Copy() ExecutionContext {
	newEC := make(ExecutionContext, len(ec))
	for k, v := range ec {
		newEC[k] = v
	}
	return newEC
}

// JobExecution represents one run of a job.
type JobExecution struct {
	ID               string
	JobName          string
	StartTime        time.Time
	EndTime          *time.Time
	Status           JobStatus
	Failures         []error
	ExecutionContext ExecutionContext
	StepExecutions   []*StepExecution
}

// NewJobExecution creates a JobExecution with a fresh id.
func NewJobExecution(jobName string) *JobExecution {
	return &JobExecution{
		ID:               uuid.NewString(),
		JobName:          jobName,
		Status:           BatchStatusStarting,
		ExecutionContext: NewExecutionContext(),
	}
}

// MarkAsStarted records the start of the execution.
func (je *JobExecution) MarkAsStarted() {
	je.StartTime = time.Now()
	je.Status = BatchStatusStarted
}

// MarkAsCompleted records a successful end of the execution.
func (je *JobExecution) MarkAsCompleted() {
	now := time.Now()
	je.EndTime = &now
	je.Status = BatchStatusCompleted
}

// MarkAsFailed records a failed end of the execution.
func (je *JobExecution) MarkAsFailed(err error) {
	now := time.Now()
	je.EndTime = &now
	je.Status = BatchStatusFailed
	if err != nil {
		je.Failures = append(je.Failures, err)
	}
}

// StepExecution holds the counters of one step run.
type StepExecution struct {
	ID               string
	StepName         string
	JobExecution     *JobExecution
	StartTime        time.Time
	EndTime          *time.Time
	Status           JobStatus
	ReadCount        int
	WriteCount       int
	CommitCount      int
	RollbackCount    int
	FilterCount      int
	SkipReadCount    int
	SkipProcessCount int
	SkipWriteCount   int
	ExecutionContext ExecutionContext
}

// NewStepExecution creates a StepExecution attached to jobExecution.
func NewStepExecution(jobExecution *JobExecution, stepName string) *StepExecution {
	se := &StepExecution{
		ID:               uuid.NewString(),
		StepName:         stepName,
		JobExecution:     jobExecution,
		Status:           BatchStatusStarting,
		ExecutionContext: NewExecutionContext(),
	}
	if jobExecution != nil {
		jobExecution.StepExecutions = append(jobExecution.StepExecutions, se)
	}
	return se
}

// SkipCount returns the number of skipped items across all phases.
func (se *StepExecution) SkipCount() int {
	return se.SkipReadCount + se.SkipProcessCount + se.SkipWriteCount
}

// MarkAsStarted records the start of the step.
func (se *StepExecution) MarkAsStarted() {
	se.StartTime = time.Now()
	se.Status = BatchStatusStarted
}

// MarkAsCompleted records a successful end of the step.
func (se *StepExecution) MarkAsCompleted() {
	now := time.Now()
	se.EndTime = &now
	se.Status = BatchStatusCompleted
}

// MarkAsFailed records a failed end of the step.
func (se *StepExecution) MarkAsFailed() {
	now := time.Now()
	se.EndTime = &now
	se.Status = BatchStatusFailed
}

// CheckpointData is the restart state of a step as persisted between runs.
type CheckpointData struct {
	JobName          string
	StepName         string
	ExecutionContext ExecutionContext
	UpdatedAt        time.Time
}

// Outcome is the result of a job run as reported to observers and operators.
type Outcome struct {
	// Status is BatchStatusCompleted when the run reached Done, BatchStatusFailed otherwise.
	Status        JobStatus
	ReadCount     int
	WriteCount    int
	FilterCount   int
	SkipCount     int
	CommitCount   int
	RollbackCount int
	// Err is the fatal error of a failed run.
	Err error
	// FailureKind is the registered error kind of Err, e.g. "SkipLimitExceededError".
	FailureKind string
}

// Succeeded reports whether the run reached Done.
func (o Outcome) Succeeded() bool {
	return o.Status == BatchStatusCompleted
}

// OutcomeOf summarizes a finished step execution.
func OutcomeOf(se *StepExecution, err error, kind string) Outcome {
	o := Outcome{Status: BatchStatusCompleted, Err: err, FailureKind: kind}
	if err != nil {
		o.Status = BatchStatusFailed
	}
	if se != nil {
		o.ReadCount = se.ReadCount
		o.WriteCount = se.WriteCount
		o.FilterCount = se.FilterCount
		o.SkipCount = se.SkipCount()
		o.CommitCount = se.CommitCount
		o.RollbackCount = se.RollbackCount
	}
	return o
}
