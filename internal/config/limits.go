package config

const (
	// MaxRoomTitleLength is the maximum length for room titles.
	// Limited to 255 to fit in PostgreSQL VARCHAR(255) and provide
	// reasonable UX (titles should be short and descriptive).
	MaxRoomTitleLength = 255

	// MaxRoomGoalLength is the maximum length for a room's goal statement.
	MaxRoomGoalLength = 2000

	// MaxStepLabelLength is the maximum length for a step label.
	MaxStepLabelLength = 120

	// MaxStepInstructionLength is the maximum length for a step's
	// free-text instruction after markup stripping. Refinement output
	// is capped here before persisting.
	MaxStepInstructionLength = 1500

	// MaxMessageLength is the maximum length of a single user message.
	MaxMessageLength = 8000

	// MinSteps and MaxSteps bound the size of a room's step plan.
	// Refinement output outside this range is rejected wholesale.
	MinSteps = 1
	MaxSteps = 12

	// MaxPreferenceLength is the maximum length of a refinement
	// preference text.
	MaxPreferenceLength = 1000
)
