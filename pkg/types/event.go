// Package types provides core data types for histdb.
package types

// Kind identifies the source of a captured activity event.
type Kind string

const (
	// KindBrowsing is a browser navigation/activity event.
	KindBrowsing Kind = "chrome"

	// KindEditor is an editor command event.
	KindEditor Kind = "emacs"
)

// Event is the unit transported through the ingestion queue. It is a closed
// union: only BrowsingEvent and EditorEvent implement it, so dispatch on the
// concrete type is exhaustive and a new kind is a compile-time addition.
type Event interface {
	Kind() Kind
}

// BrowsingEvent represents one browser navigation/activity occurrence.
type BrowsingEvent struct {
	// Type categorizes the event (e.g., "navigate", "focus")
	Type string `json:"type"`

	// URL is the page URL; deduplicated into the urls dimension
	URL string `json:"url"`

	// Title is the page title at capture time, if known
	Title string `json:"title,omitempty"`

	// Timestamp is when the event occurred
	Timestamp Timestamp `json:"timestamp"`

	// User is the optional username the event was captured for
	User string `json:"user,omitempty"`
}

// Kind implements Event.
func (BrowsingEvent) Kind() Kind { return KindBrowsing }

// EditorContext carries the positional/contextual metadata of an editor event.
type EditorContext struct {
	// Buffer is the buffer name the command ran in
	Buffer string `json:"buffer"`

	// FileName is the absolute path of the visited file, if any
	FileName string `json:"file_name,omitempty"`

	// MajorMode is the buffer's major mode
	MajorMode string `json:"major_mode"`

	// Project is the project name, if the buffer belongs to one
	Project string `json:"project,omitempty"`
}

// EditorEvent represents one editor command invocation.
type EditorEvent struct {
	// Timestamp is when the command ran
	Timestamp Timestamp `json:"timestamp"`

	// SessionID identifies the editor session
	SessionID string `json:"session_id"`

	// Host is the machine the editor ran on
	Host string `json:"host"`

	// Command is the invoked command name
	Command string `json:"command"`

	// Context is the buffer/file/mode/project context of the invocation
	Context EditorContext `json:"context"`
}

// Kind implements Event.
func (EditorEvent) Kind() Kind { return KindEditor }
