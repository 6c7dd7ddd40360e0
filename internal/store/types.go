// Package store is the engine's persistence layer: a WAL-mode SQLite
// database for relational state, a bleve full-text index over
// transcript segments, and per-item HNSW vector shards on disk.
package store

import "time"

// MediaType distinguishes the two kinds of Item.
type MediaType string

const (
	MediaVideo MediaType = "video"
	MediaPhoto MediaType = "photo"
)

// ItemStatus mirrors the Pipeline's stage names plus its terminal states.
type ItemStatus string

const (
	StatusQueued            ItemStatus = "QUEUED"
	StatusExtractingAudio   ItemStatus = "EXTRACTING_AUDIO"
	StatusTranscribing      ItemStatus = "TRANSCRIBING"
	StatusExtractingFrames  ItemStatus = "EXTRACTING_FRAMES"
	StatusEmbedding         ItemStatus = "EMBEDDING"
	StatusDetecting         ItemStatus = "DETECTING"
	StatusDetectingFaces    ItemStatus = "DETECTING_FACES"
	StatusDone              ItemStatus = "DONE"
	StatusFailed            ItemStatus = "FAILED"
	StatusCancelled         ItemStatus = "CANCELLED"
)

// IntermediateStatuses are the non-terminal, non-queued statuses that
// consistency repair resets to QUEUED on startup.
var IntermediateStatuses = []ItemStatus{
	StatusExtractingAudio, StatusTranscribing, StatusExtractingFrames,
	StatusEmbedding, StatusDetecting, StatusDetectingFaces,
}

// Library is a user-registered root folder.
type Library struct {
	ID        string
	Path      string
	Name      string
	Recursive bool
	CreatedAt time.Time
}

// Item is one photo or video file.
type Item struct {
	ID                 string
	LibraryID          string
	Path               string
	Filename           string
	Size               int64
	MTime              time.Time
	Fingerprint        string
	MediaType          MediaType
	Status             ItemStatus
	LastCompletedStage string
	Progress           float64
	ErrorCode          string
	ErrorMessage       string
	Duration           float64
	Width              int
	Height             int
	FPS                float64
	Codecs             string
	Container          string
	CreationTime       *time.Time
	CameraMake         string
	CameraModel        string
	GPS                string
	IsLiveComponent    bool
	LivePairID         string
	IndexedAt          *time.Time
	CreatedAt          time.Time
	Transcript         string
}

// ItemMetadata is an unbounded key-value pair attached to an Item.
type ItemMetadata struct {
	ItemID string
	Key    string
	Value  string
}

// TranscriptSegment is one recognized span of speech.
type TranscriptSegment struct {
	ID         string
	ItemID     string
	StartMs    int
	EndMs      int
	Text       string
	Confidence float64
}

// Frame is a sampled still from a video, or the single still of a photo.
type Frame struct {
	ID            string
	ItemID        string
	Index         int
	TimestampMs   int
	ThumbnailPath string
	Colors        []string
}

// Detection is one object detected in one Frame.
type Detection struct {
	ID          string
	ItemID      string
	FrameID     string
	TimestampMs int
	Label       string
	Confidence  float64
	BBox        BBox
}

// BBox is an axis-aligned bounding box in normalized [0,1] coordinates.
type BBox struct {
	X, Y, W, H float64
}

// AssignmentSource records how a Face came to have a person_id.
type AssignmentSource string

const (
	AssignAuto      AssignmentSource = "auto"
	AssignManual    AssignmentSource = "manual"
	AssignReference AssignmentSource = "reference"
	AssignLegacy    AssignmentSource = "legacy"
)

// Face is one detected face in one Frame.
type Face struct {
	ID                   string
	ItemID               string
	FrameID              string
	TimestampMs          int
	BBox                 BBox
	Confidence           float64
	CropPath             string
	Embedding            []float32
	PersonID             string // empty if unassigned
	ClusterID            string // empty if not in a transient cluster
	AssignmentSource     AssignmentSource
	AssignmentConfidence float64
	AssignedAt           *time.Time
}

// RecognitionMode selects how Person.centroid similarity is computed.
type RecognitionMode string

const (
	RecognitionAverage        RecognitionMode = "average"
	RecognitionReferenceOnly  RecognitionMode = "reference_only"
	RecognitionWeighted       RecognitionMode = "weighted"
)

// Person is a user-named identity collecting face observations.
type Person struct {
	ID               string
	Name             string
	FaceCount        int
	ThumbnailFaceID  string
	RecognitionMode  RecognitionMode
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// FaceExampleKind distinguishes positive anchors from explicit negatives.
type FaceExampleKind string

const (
	ExampleReference FaceExampleKind = "reference"
	ExampleNegative  FaceExampleKind = "negative"
)

// FaceExample is a per-person positive anchor or explicit negative.
type FaceExample struct {
	FaceID   string
	PersonID string
	Kind     FaceExampleKind
}

// PairThreshold is the minimum similarity required to auto-assign
// between two frequently confused persons. Always stored with
// PersonA < PersonB lexicographically.
type PairThreshold struct {
	PersonA   string
	PersonB   string
	Threshold float64
}

const (
	// DefaultPairThreshold is where every pair starts.
	DefaultPairThreshold = 0.70
	// PairThresholdIncrement is added per cross-correction.
	PairThresholdIncrement = 0.02
	// MaxPairThreshold caps the pair threshold.
	MaxPairThreshold = 0.85
)

// JobStatus mirrors ItemStatus for the live Job record of one run.
type JobStatus string

const (
	JobRunning   JobStatus = "RUNNING"
	JobDone      JobStatus = "DONE"
	JobFailed    JobStatus = "FAILED"
	JobCancelled JobStatus = "CANCELLED"
	JobLost      JobStatus = "LOST"
)

// Job is the live record of an in-flight or terminal indexing run.
type Job struct {
	ID           string
	ItemID       string
	Status       JobStatus
	CurrentStage string
	Progress     float64
	Message      string
	ErrorCode    string
	ErrorMessage string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// FavoriteKind distinguishes the two favoritable entities.
type FavoriteKind string

const (
	FavoriteItem   FavoriteKind = "item"
	FavoritePerson FavoriteKind = "person"
)

// Favorite is a user bookmark on an Item or a Person.
type Favorite struct {
	Kind     FavoriteKind
	TargetID string
}

// Tag is a user-applied string label on an Item.
type Tag struct {
	ItemID string
	Tag    string
}

// Pagination bounds a List* query.
type Pagination struct {
	Cursor string
	Limit  int
}
