// Package command contains write operations (CQRS - Commands).
// Commands change proposal state and publish the matching domain events.
package command

import (
	"github.com/alem-hub/afterschool-matching/internal/domain/shared"
)

// parseStudentIDs validates raw IDs and drops repeats, keeping first-seen order.
func parseStudentIDs(raw []string) ([]shared.StudentID, error) {
	out := make([]shared.StudentID, 0, len(raw))
	seen := make(map[shared.StudentID]struct{}, len(raw))
	for _, r := range raw {
		id, err := shared.NewStudentID(r)
		if err != nil {
			return nil, err
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out, nil
}

// parseTeacherIDs validates raw IDs and drops repeats, keeping first-seen order.
func parseTeacherIDs(raw []string) ([]shared.TeacherID, error) {
	out := make([]shared.TeacherID, 0, len(raw))
	seen := make(map[shared.TeacherID]struct{}, len(raw))
	for _, r := range raw {
		id, err := shared.NewTeacherID(r)
		if err != nil {
			return nil, err
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out, nil
}
