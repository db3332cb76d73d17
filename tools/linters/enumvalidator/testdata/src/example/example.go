package example

type SessionStatus string

const (
	SessionStatusQueued    SessionStatus = "queued"
	SessionStatusCompleted SessionStatus = "completed"
)

type ObservationSeverity string

const (
	SeverityWarning ObservationSeverity = "warning"
)

type PipelineProfile string

const (
	ProfileStandard PipelineProfile = "standard"
)

type Session struct {
	Status SessionStatus
}

type Observation struct {
	Severity ObservationSeverity
}

func bad() {
	s := &Session{}
	s.Status = "running" // want "enum field Status assigned string literal"

	o := &Observation{}
	o.Severity = "fatal" // want "enum field Severity assigned string literal"
}

func good() {
	s := &Session{}
	s.Status = SessionStatusCompleted // OK: using constant

	o := &Observation{}
	o.Severity = SeverityWarning // OK: using constant
}

func alsoGood() {
	// OK: Variable, not literal
	status := SessionStatusQueued
	s := &Session{Status: status}
	_ = s
}
