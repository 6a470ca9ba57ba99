package models

import "time"

//-- Section --

const (
	// FilePermReadWrite defines standard non-executable file permissions for the report.
	FilePermReadWrite = 0644
	// prevents memory exhaustion by capping file content read for a single check.
	MaxContentBytes = 16 * 1024 * 1024 // 16 MiB
	// soft bound on the in-memory event queue; the oldest event is dropped past it.
	QueueSoftBound = 64 * 1024
	// bounded deadline for draining the queue during shutdown.
	ShutdownDrainDeadline = 1 * time.Second

	// competition-mode scoring interval when none is configured.
	DefaultInterval = 120 * time.Second
	// development-mode poll cadence for the filesystem enumeration provider.
	DevPollInterval = 1 * time.Second

	// the report file the engine maintains in its working directory.
	ReportFileName = "report.html"
	// the compiled rubric the engine loads from its working directory.
	ArtifactFileName = "zeka.dat"

	// rubric title used when the YAML omits one.
	DefaultTitle = "Training Round"

	// scoring happens the moment an event arrives.
	ModeDevelopment = "dev"
	// events accumulate and score at interval boundaries.
	ModeCompetition = "comp"
)
