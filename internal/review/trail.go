package review

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"
)

const (
	MaxNoteLength   = 500
	notePreviewSize = 50
)

// AddAuditNote appends a note and its NoteAdded log entry to a request.
// Both land in the same versioned write.
func (s *Service) AddAuditNote(ctx context.Context, requestID, text string, isPrivate bool) (*ReimbursementRequest, error) {
	actor, err := s.actor(ctx)
	if err != nil {
		return nil, err
	}
	return s.addAuditNote(actor, requestID, text, isPrivate, nil)
}

// addAuditNote appends the note unless skip reports it is already present
func (s *Service) addAuditNote(actor, requestID, text string, isPrivate bool, skip func(*ReimbursementRequest) bool) (*ReimbursementRequest, error) {
	if err := validateNote(text); err != nil {
		return nil, err
	}

	return s.mutateRequest("add note", requestID, func(req *ReimbursementRequest) error {
		if skip != nil && skip(req) {
			return errUnchanged
		}
		now := s.timeSource.Now()
		req.AuditNotes = append(req.AuditNotes, AuditNote{
			Note:      text,
			AuditorID: actor,
			Timestamp: now,
			IsPrivate: isPrivate,
		})
		req.appendLog(AuditLogEntry{
			Action:      ActionNoteAdded,
			AuditorID:   actor,
			Timestamp:   now,
			NotePreview: notePreview(text),
			IsPrivate:   isPrivate,
		})
		return nil
	})
}

func validateNote(text string) error {
	if strings.TrimSpace(text) == "" {
		return invalid("note", "must not be empty")
	}
	if n := utf8.RuneCountInString(text); n > MaxNoteLength {
		return invalid("note", fmt.Sprintf("must be at most %d characters, got %d", MaxNoteLength, n))
	}
	return nil
}

// notePreview truncates text to the preview size without splitting runes
func notePreview(text string) string {
	if utf8.RuneCountInString(text) <= notePreviewSize {
		return text
	}
	runes := []rune(text)
	return string(runes[:notePreviewSize])
}

// VisibleNotes filters notes for a viewer. Submitters only see public notes.
func VisibleNotes(notes []AuditNote, viewerIsReviewer bool) []AuditNote {
	visible := make([]AuditNote, 0, len(notes))
	for _, n := range notes {
		if n.IsPrivate && !viewerIsReviewer {
			continue
		}
		visible = append(visible, n)
	}
	return visible
}

// VisibleLogs filters log entries the same way, hiding private note previews
func VisibleLogs(logs []AuditLogEntry, viewerIsReviewer bool) []AuditLogEntry {
	visible := make([]AuditLogEntry, 0, len(logs))
	for _, e := range logs {
		if e.Action == ActionNoteAdded && e.IsPrivate && !viewerIsReviewer {
			continue
		}
		visible = append(visible, e)
	}
	return visible
}
