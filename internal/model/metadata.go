package model

import "strconv"

// Well-known metadata keys written by the hook and the notification UI.
// The store does not restrict keys to this set.
const (
	MetaSource          = "source"
	MetaProject         = "project"
	MetaProjectPath     = "project_path"
	MetaToolName        = "tool_name"
	MetaErrorMessage    = "error_message"
	MetaEventType       = "event_type"
	MetaSessionID       = "session_id"
	MetaSessionDuration = "session_duration"
	MetaFilePath        = "file_path"
	MetaDiffPath        = "diff_path"
	MetaIsPreview       = "is_preview"
	MetaPromptType      = "prompt_type"
	MetaPromptText      = "prompt_text"
	MetaUserChoice      = "user_choice"
)

// Metadata is the open string map attached to a notification. Use the
// accessors instead of indexing well-known keys directly.
type Metadata map[string]string

// Get returns the value stored under key, or "" if absent.
func (m Metadata) Get(key string) string {
	if m == nil {
		return ""
	}
	return m[key]
}

// Has reports whether key is present.
func (m Metadata) Has(key string) bool {
	_, ok := m[key]
	return ok
}

// Clone returns an independent copy; nil stays nil.
func (m Metadata) Clone() Metadata {
	if m == nil {
		return nil
	}
	out := make(Metadata, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// With returns a copy of m with key set to value.
func (m Metadata) With(key, value string) Metadata {
	out := m.Clone()
	if out == nil {
		out = make(Metadata, 1)
	}
	out[key] = value
	return out
}

func (m Metadata) Source() string       { return m.Get(MetaSource) }
func (m Metadata) Project() string      { return m.Get(MetaProject) }
func (m Metadata) ProjectPath() string  { return m.Get(MetaProjectPath) }
func (m Metadata) ToolName() string     { return m.Get(MetaToolName) }
func (m Metadata) ErrorMessage() string { return m.Get(MetaErrorMessage) }
func (m Metadata) EventType() string    { return m.Get(MetaEventType) }
func (m Metadata) SessionID() string    { return m.Get(MetaSessionID) }
func (m Metadata) FilePath() string     { return m.Get(MetaFilePath) }
func (m Metadata) DiffPath() string     { return m.Get(MetaDiffPath) }
func (m Metadata) UserChoice() string   { return m.Get(MetaUserChoice) }

// IsPreview reports whether the diff attached to the notification is a
// preview of a pending change rather than an applied one.
func (m Metadata) IsPreview() bool {
	b, _ := strconv.ParseBool(m.Get(MetaIsPreview))
	return b
}

// Interactive reports whether the notification expects a user response.
func (m Metadata) Interactive() bool {
	return m.Get(MetaPromptType) != ""
}

// SessionDuration returns the hook-reported session age in seconds.
func (m Metadata) SessionDuration() (float64, bool) {
	v, err := strconv.ParseFloat(m.Get(MetaSessionDuration), 64)
	if err != nil {
		return 0, false
	}
	return v, true
}
