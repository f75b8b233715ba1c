package alert

import (
	"errors"
	"strings"
	"time"

	"eventguard.org/internal/roles"
)

// Priority orders alerts for display; it does not affect delivery.
type Priority string

const (
	PriorityUrgent    Priority = "urgent"
	PriorityImportant Priority = "important"
	PriorityInfo      Priority = "info"
)

// MediaKind classifies an attached media reference. Empty means no media.
type MediaKind string

const (
	MediaImage MediaKind = "image"
	MediaVideo MediaKind = "video"
	MediaAudio MediaKind = "audio"
	MediaNone  MediaKind = ""
)

var (
	ErrEmptyAlert      = errors.New("alert: message and media are both empty")
	ErrInvalidPriority = errors.New("alert: unknown priority")
	ErrInvalidMedia    = errors.New("alert: unknown media kind")
	ErrNotFound        = errors.New("alert: not found")
)

// Alert is one persisted alert record. Records are append-only: persisted
// once, never mutated, retained indefinitely.
type Alert struct {
	ID          string       `json:"id"`
	Message     string       `json:"message"`
	Sender      string       `json:"sender"`
	SenderRole  roles.Role   `json:"senderRole"`
	MediaURL    string       `json:"mediaUrl,omitempty"`
	MediaKind   MediaKind    `json:"mediaType,omitempty"`
	Target      roles.Target `json:"targetRole"`
	Priority    Priority     `json:"priority"`
	LocationTag string       `json:"locationTag,omitempty"`
	CreatedAt   time.Time    `json:"createdAt"`
}

// ParsePriority validates a client-supplied priority, defaulting to info.
func ParsePriority(raw string) (Priority, error) {
	switch Priority(strings.TrimSpace(strings.ToLower(raw))) {
	case PriorityUrgent:
		return PriorityUrgent, nil
	case PriorityImportant:
		return PriorityImportant, nil
	case PriorityInfo, "":
		return PriorityInfo, nil
	default:
		return "", ErrInvalidPriority
	}
}

// ParseMediaKind validates a client-supplied media kind.
func ParseMediaKind(raw string) (MediaKind, error) {
	switch MediaKind(strings.TrimSpace(strings.ToLower(raw))) {
	case MediaImage:
		return MediaImage, nil
	case MediaVideo:
		return MediaVideo, nil
	case MediaAudio:
		return MediaAudio, nil
	case MediaNone:
		return MediaNone, nil
	default:
		return "", ErrInvalidMedia
	}
}

// Validate enforces the persistence precondition: an alert must carry a
// message or a media reference, and its enumerations must be known.
func (a *Alert) Validate() error {
	if strings.TrimSpace(a.Message) == "" && a.MediaURL == "" {
		return ErrEmptyAlert
	}
	if _, err := ParsePriority(string(a.Priority)); err != nil {
		return err
	}
	if _, err := ParseMediaKind(string(a.MediaKind)); err != nil {
		return err
	}
	return nil
}
