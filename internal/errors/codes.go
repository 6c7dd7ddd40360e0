// Package errors provides the engine's error-kind taxonomy and a
// retry-with-backoff helper used to make Store writes resilient to
// transient SQLite lock contention.
package errors

// Kind is one of the engine's well-known error categories. Every stage
// failure, auth failure, and startup failure is mapped to exactly one
// Kind so the API and the desktop shell can react without parsing
// messages.
type Kind string

const (
	KindFileNotFound      Kind = "FILE_NOT_FOUND"
	KindFFmpegError       Kind = "FFMPEG_ERROR"
	KindTranscriptionErr  Kind = "TRANSCRIPTION_ERROR"
	KindEmbeddingError    Kind = "EMBEDDING_ERROR"
	KindDetectionError    Kind = "DETECTION_ERROR"
	KindFaceError         Kind = "FACE_ERROR"
	KindCancelled         Kind = "CANCELLED"
	KindLockContention    Kind = "LOCK_CONTENTION"
	KindDependencyMissing Kind = "DEPENDENCY_MISSING"
	KindModelMissing      Kind = "MODEL_MISSING"
	KindOfflineBlocked    Kind = "OFFLINE_BLOCKED"
	KindAuthInvalid       Kind = "AUTH_INVALID"
	KindOriginRejected    Kind = "ORIGIN_REJECTED"
	KindAlreadyRunning    Kind = "ALREADY_RUNNING"
	KindConflictingEngine Kind = "CONFLICTING_ENGINE"
	KindStartupTimeout    Kind = "ENGINE_STARTUP_TIMEOUT"
	KindUnknown           Kind = "UNKNOWN_ERROR"
)

// Error wraps an underlying cause with a Kind and a human-readable
// message, mirroring the shape stored on Item.error_code /
// Item.error_message and Job.error_code / Job.error_message.
type Error struct {
	Kind    Kind
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return e.Message + ": " + e.Cause.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Cause }

// New creates an *Error of the given kind.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Wrap attaches a Kind and message to an existing error.
func Wrap(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, Cause: cause}
}

// KindOf extracts the Kind from err, returning the empty Kind when err
// is nil and KindUnknown when err is not one of ours.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var e *Error
	if As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// As is a narrow local copy of errors.As to avoid importing the
// standard "errors" package under a name that collides with this
// package's own name at call sites.
func As(err error, target **Error) bool {
	for err != nil {
		if e, ok := err.(*Error); ok {
			*target = e
			return true
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}

// IsLockContention reports whether err (or anything it wraps) is a
// LOCK_CONTENTION error.
func IsLockContention(err error) bool {
	return KindOf(err) == KindLockContention
}

// IsCancelled reports whether err represents cooperative cancellation.
func IsCancelled(err error) bool {
	return KindOf(err) == KindCancelled
}
