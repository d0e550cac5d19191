package models

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// PipelineName identifies the owning pipeline in every entry.
const PipelineName = "real_estate_etl"

// Level is the severity tag of a LogEntry. The probe only produces
// SUCCESS, ERROR and CRITICAL, but the field is open-ended.
type Level string

const (
	LevelSuccess  Level = "SUCCESS"
	LevelError    Level = "ERROR"
	LevelCritical Level = "CRITICAL"
)

var (
	ErrEmptyLevel   = errors.New("log level must not be empty")
	ErrEmptyMessage = errors.New("log message must not be empty")
)

// ParseLevel normalizes a user-supplied level to upper case.
func ParseLevel(s string) (Level, error) {
	s = strings.ToUpper(strings.TrimSpace(s))
	if s == "" {
		return "", ErrEmptyLevel
	}
	return Level(s), nil
}

// Validate rejects an empty or blank level.
func (l Level) Validate() error {
	if strings.TrimSpace(string(l)) == "" {
		return ErrEmptyLevel
	}
	return nil
}

func (l Level) String() string {
	return string(l)
}

// Details is the open key/value payload of a LogEntry.
type Details map[string]any

// DetailErrorMessage is the details key surfaced in fallback lines.
const DetailErrorMessage = "error_message"

// Identity is the configuration-sourced metadata recorded in every entry.
type Identity struct {
	Author   string
	Service  string
	ImageTag string
}

// ImageInfo identifies the deployed service and image.
type ImageInfo struct {
	Service string `bson:"service" json:"service"`
	Tag     string `bson:"tag" json:"tag"`
}

// LogEntry is one reportable event. It is built right before a write attempt
// and discarded afterwards.
type LogEntry struct {
	Timestamp    time.Time `bson:"timestamp" json:"timestamp"`
	Level        Level     `bson:"level" json:"level"`
	Message      string    `bson:"message" json:"message"`
	PipelineName string    `bson:"pipeline_name" json:"pipeline_name"`
	Author       string    `bson:"author" json:"author"`
	ImageInfo    ImageInfo `bson:"image_info" json:"image_info"`
	Details      Details   `bson:"details" json:"details"`
	RunID        string    `bson:"run_id,omitempty" json:"run_id,omitempty"`
}

// NewLogEntry builds an entry stamped with now in UTC. A nil details map is
// replaced by an empty one.
func NewLogEntry(now time.Time, level Level, message string, details Details, id Identity) *LogEntry {
	if details == nil {
		details = Details{}
	}
	return &LogEntry{
		Timestamp:    now.UTC(),
		Level:        level,
		Message:      message,
		PipelineName: PipelineName,
		Author:       id.Author,
		ImageInfo: ImageInfo{
			Service: id.Service,
			Tag:     id.ImageTag,
		},
		Details: details,
	}
}

// Validate checks the required fields.
func (e *LogEntry) Validate() error {
	if err := e.Level.Validate(); err != nil {
		return err
	}
	if strings.TrimSpace(e.Message) == "" {
		return ErrEmptyMessage
	}
	return nil
}

// FallbackLine renders the entry as the single human-readable line written
// to the local error stream when the sink cannot be used.
func (e *LogEntry) FallbackLine() string {
	line := fmt.Sprintf("[%s][%s@%s] %s", e.Level, e.ImageInfo.Service, e.ImageInfo.Tag, e.Message)
	if len(e.Details) > 0 {
		errMsg, ok := e.Details[DetailErrorMessage]
		if !ok || errMsg == nil {
			errMsg = "N/A"
		}
		line += fmt.Sprintf(" | Details: %v", errMsg)
	}
	return line
}
