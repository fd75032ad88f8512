// Package extract implements the entity-extraction pipeline: a chunk map
// function that asks a router-selected backend for structured entities, and
// the result types the reducer aggregates.
package extract

// Person is an extracted person mention.
type Person struct {
	Name   string `json:"name"`
	Role   string `json:"role,omitempty"`
	Chunks []int  `json:"chunks,omitempty"`
}

// Company is an extracted organization mention.
type Company struct {
	Name     string `json:"name"`
	Industry string `json:"industry,omitempty"`
	Chunks   []int  `json:"chunks,omitempty"`
}

// Concept is an extracted topic or idea.
type Concept struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Chunks      []int  `json:"chunks,omitempty"`
}

// Relationship links two people with typed evidence.
type Relationship struct {
	Person1  string `json:"person1"`
	Person2  string `json:"person2"`
	Type     string `json:"type"`
	Evidence string `json:"evidence,omitempty"`
	Chunks   []int  `json:"chunks,omitempty"`
}

// ChunkResult is one chunk's extraction output. It carries the chunk index
// but never the chunk text. Summary doubles as the error summary on
// synthetic failure records.
type ChunkResult struct {
	Index         int            `json:"index"`
	People        []Person       `json:"people,omitempty"`
	Companies     []Company      `json:"companies,omitempty"`
	Concepts      []Concept      `json:"concepts,omitempty"`
	Relationships []Relationship `json:"relationships,omitempty"`
	Summary       string         `json:"summary,omitempty"`
	Failed        bool           `json:"failed,omitempty"`
}

// Aggregate is the deduplicated union of all chunk results.
type Aggregate struct {
	People        []Person       `json:"people"`
	Companies     []Company      `json:"companies"`
	Concepts      []Concept      `json:"concepts"`
	Relationships []Relationship `json:"relationships"`

	// FailedChunks lists chunk indices represented only by failure records.
	FailedChunks []int `json:"failed_chunks,omitempty"`
}
