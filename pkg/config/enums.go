package config

// CapabilityTier defines the ordinal capability class of a backend
type CapabilityTier string

const (
	// TierBasic is the cheapest class, suitable for classification
	TierBasic CapabilityTier = "basic"
	// TierStandard covers summarization, extraction, and chat
	TierStandard CapabilityTier = "standard"
	// TierAdvanced is above standard but below dedicated reasoning models
	TierAdvanced CapabilityTier = "advanced"
	// TierReasoning is the highest class, for multi-step reasoning tasks
	TierReasoning CapabilityTier = "reasoning"
)

// tierOrder maps tiers to their ordinal position (basic < standard < advanced < reasoning).
var tierOrder = map[CapabilityTier]int{
	TierBasic:     0,
	TierStandard:  1,
	TierAdvanced:  2,
	TierReasoning: 3,
}

// IsValid checks if the capability tier is valid
func (t CapabilityTier) IsValid() bool {
	_, ok := tierOrder[t]
	return ok
}

// Index returns the ordinal position of the tier (basic=0 .. reasoning=3).
// Unknown tiers sort below basic.
func (t CapabilityTier) Index() int {
	if i, ok := tierOrder[t]; ok {
		return i
	}
	return -1
}

// TaskType defines the kind of work a request represents
type TaskType string

const (
	// TaskClassification is single-label classification (e.g. moderation)
	TaskClassification TaskType = "classification"
	// TaskSummarization condenses text
	TaskSummarization TaskType = "summarization"
	// TaskReasoning requires multi-step reasoning
	TaskReasoning TaskType = "reasoning"
	// TaskExtraction pulls structured entities out of text
	TaskExtraction TaskType = "extraction"
	// TaskChat is free-form conversation
	TaskChat TaskType = "chat"
	// TaskOther is any task without a more specific type
	TaskOther TaskType = "other"
)

// IsValid checks if the task type is valid
func (t TaskType) IsValid() bool {
	switch t {
	case TaskClassification, TaskSummarization, TaskReasoning,
		TaskExtraction, TaskChat, TaskOther:
		return true
	default:
		return false
	}
}

// RequiredTier returns the minimum capability tier a backend needs for the task.
func (t TaskType) RequiredTier() CapabilityTier {
	switch t {
	case TaskClassification:
		return TierBasic
	case TaskReasoning:
		return TierReasoning
	default:
		return TierStandard
	}
}

// Priority defines what the router optimizes for when scoring backends
type Priority string

const (
	// PriorityCost favors the cheapest adequate backend
	PriorityCost Priority = "cost"
	// PriorityQuality favors the highest capability tier
	PriorityQuality Priority = "quality"
	// PrioritySpeed favors the lowest observed latency
	PrioritySpeed Priority = "speed"
	// PriorityBalanced blends cost, speed, and quality
	PriorityBalanced Priority = "balanced"
)

// IsValid checks if the priority is valid
func (p Priority) IsValid() bool {
	switch p {
	case PriorityCost, PriorityQuality, PrioritySpeed, PriorityBalanced:
		return true
	default:
		return false
	}
}

// Complexity is the caller's estimate of task difficulty
type Complexity string

const (
	// ComplexityLow is trivial work (short inputs, simple labels)
	ComplexityLow Complexity = "low"
	// ComplexityMedium is routine work
	ComplexityMedium Complexity = "medium"
	// ComplexityHigh is work that benefits from stronger backends
	ComplexityHigh Complexity = "high"
)

// IsValid checks if the complexity is valid
func (c Complexity) IsValid() bool {
	return c == ComplexityLow || c == ComplexityMedium || c == ComplexityHigh
}

// Capability names a backend feature a request may require.
const (
	// CapabilityStructuredOutput requires schema-constrained responses
	CapabilityStructuredOutput = "structured_output"
	// CapabilityStreaming requires incremental response delivery
	CapabilityStreaming = "streaming"
)
