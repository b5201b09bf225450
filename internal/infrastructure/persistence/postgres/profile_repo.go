package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/alem-hub/afterschool-matching/internal/domain/profile"
	"github.com/alem-hub/afterschool-matching/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// PROFILE REPOSITORY IMPLEMENTATION
// ══════════════════════════════════════════════════════════════════════════════

// ProfileRepository is the profile read model. It implements profile.Source,
// profile.Directory and profile.Repository.
type ProfileRepository struct {
	db Querier
}

// NewProfileRepository creates a new ProfileRepository.
func NewProfileRepository(db Querier) *ProfileRepository {
	return &ProfileRepository{db: db}
}

var (
	_ profile.Source     = (*ProfileRepository)(nil)
	_ profile.Directory  = (*ProfileRepository)(nil)
	_ profile.Repository = (*ProfileRepository)(nil)
)

const (
	selectStudentProfile = `
		SELECT mbti_type, mbti, five_elements, name_grids, version
		FROM personality_profiles
		WHERE owner_kind = 'student' AND owner_id = $1`

	selectTeacherProfile = `
		SELECT t.current_load, p.mbti_type, p.mbti, p.five_elements, p.name_grids, COALESCE(p.version, 0)
		FROM teachers t
		LEFT JOIN personality_profiles p ON p.owner_kind = 'teacher' AND p.owner_id = t.id
		WHERE t.id = $1`

	upsertProfile = `
		INSERT INTO personality_profiles (owner_kind, owner_id, mbti_type, mbti, five_elements, name_grids, version, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, 1, NOW())
		ON CONFLICT (owner_kind, owner_id) DO UPDATE SET
			mbti_type = EXCLUDED.mbti_type,
			mbti = EXCLUDED.mbti,
			five_elements = EXCLUDED.five_elements,
			name_grids = EXCLUDED.name_grids,
			version = personality_profiles.version + 1,
			updated_at = NOW()
		RETURNING version`

	selectTeamStudents = `
		SELECT student_id FROM team_members
		WHERE team_id = $1
		ORDER BY position, student_id`

	selectActiveTeachers = `SELECT id FROM teachers WHERE active ORDER BY id`
)

// ─────────────────────────────────────────────────────────────────────────────
// profile.Source
// ─────────────────────────────────────────────────────────────────────────────

// StudentProfile returns the student's snapshot. A student without a stored
// profile gets an empty snapshot.
func (r *ProfileRepository) StudentProfile(ctx context.Context, id shared.StudentID) (*profile.Student, error) {
	var row profileRow
	err := r.db.QueryRow(ctx, selectStudentProfile, id.String()).
		Scan(&row.mbtiType, &row.mbti, &row.elements, &row.grids, &row.version)
	if err != nil {
		if IsNoRows(err) {
			return &profile.Student{ID: id}, nil
		}
		return nil, classify("profile", "StudentProfile", fmt.Errorf("failed to load student profile %s: %w", id, err))
	}

	p, err := row.decode()
	if err != nil {
		return nil, fmt.Errorf("failed to decode student profile %s: %w", id, err)
	}
	return &profile.Student{ID: id, Personality: p}, nil
}

// TeacherProfile returns the teacher's snapshot and current load.
// Unknown teachers yield shared.ErrTeacherNotFound.
func (r *ProfileRepository) TeacherProfile(ctx context.Context, id shared.TeacherID) (*profile.Teacher, error) {
	var row profileRow
	var load int
	err := r.db.QueryRow(ctx, selectTeacherProfile, id.String()).
		Scan(&load, &row.mbtiType, &row.mbti, &row.elements, &row.grids, &row.version)
	if err != nil {
		if IsNoRows(err) {
			return nil, shared.WrapError("profile", "TeacherProfile", shared.ErrNotFound,
				"teacher "+id.String()+" not found", shared.ErrTeacherNotFound)
		}
		return nil, classify("profile", "TeacherProfile", fmt.Errorf("failed to load teacher profile %s: %w", id, err))
	}

	p, err := row.decode()
	if err != nil {
		return nil, fmt.Errorf("failed to decode teacher profile %s: %w", id, err)
	}
	return &profile.Teacher{ID: id, Personality: p, CurrentLoad: load}, nil
}

// ─────────────────────────────────────────────────────────────────────────────
// profile.Directory
// ─────────────────────────────────────────────────────────────────────────────

// StudentsInTeam returns the team's students in roster order.
func (r *ProfileRepository) StudentsInTeam(ctx context.Context, teamID shared.TeamID) ([]shared.StudentID, error) {
	rows, err := r.db.Query(ctx, selectTeamStudents, teamID.String())
	if err != nil {
		return nil, classify("profile", "StudentsInTeam", fmt.Errorf("failed to list team %s: %w", teamID, err))
	}
	defer rows.Close()

	var ids []shared.StudentID
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan team member: %w", err)
		}
		ids = append(ids, shared.StudentID(id))
	}
	return ids, rows.Err()
}

// ActiveTeachers returns active teacher IDs ordered by ID.
func (r *ProfileRepository) ActiveTeachers(ctx context.Context) ([]shared.TeacherID, error) {
	rows, err := r.db.Query(ctx, selectActiveTeachers)
	if err != nil {
		return nil, classify("profile", "ActiveTeachers", fmt.Errorf("failed to list active teachers: %w", err))
	}
	defer rows.Close()

	var ids []shared.TeacherID
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan teacher: %w", err)
		}
		ids = append(ids, shared.TeacherID(id))
	}
	return ids, rows.Err()
}

// ─────────────────────────────────────────────────────────────────────────────
// profile.Repository
// ─────────────────────────────────────────────────────────────────────────────

// Upsert stores a snapshot and returns its new version. The version is bumped
// in SQL so concurrent writers never reuse a number.
func (r *ProfileRepository) Upsert(ctx context.Context, kind profile.OwnerKind, ownerID string, p *profile.PersonalityProfile) (int64, error) {
	if kind != profile.OwnerStudent && kind != profile.OwnerTeacher {
		return 0, shared.NewDomainError("profile", "Upsert", shared.ErrInvalidInput, "unknown owner kind "+string(kind))
	}

	row, err := encodeProfile(p)
	if err != nil {
		return 0, fmt.Errorf("failed to encode profile: %w", err)
	}

	var version int64
	err = r.db.QueryRow(ctx, upsertProfile,
		string(kind), ownerID, row.mbtiType, row.mbti, row.elements, row.grids,
	).Scan(&version)
	if err != nil {
		return 0, classify("profile", "Upsert", fmt.Errorf("failed to upsert %s profile %s: %w", kind, ownerID, err))
	}
	return version, nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Helpers
// ─────────────────────────────────────────────────────────────────────────────

// profileRow mirrors personality_profiles. NULL JSONB columns scan to nil.
type profileRow struct {
	mbtiType *string
	mbti     []byte
	elements []byte
	grids    []byte
	version  int64
}

func (row profileRow) decode() (*profile.PersonalityProfile, error) {
	p := &profile.PersonalityProfile{Version: row.version}

	if row.mbti != nil {
		var pct profile.MBTIPercentages
		if err := json.Unmarshal(row.mbti, &pct); err != nil {
			return nil, fmt.Errorf("mbti: %w", err)
		}
		p.MBTI = &profile.MBTIProfile{Percentages: pct}
		if row.mbtiType != nil {
			p.MBTI.Type = *row.mbtiType
		}
	}
	if row.elements != nil {
		p.FiveElements = &profile.FiveElements{}
		if err := json.Unmarshal(row.elements, p.FiveElements); err != nil {
			return nil, fmt.Errorf("five elements: %w", err)
		}
	}
	if row.grids != nil {
		p.NameGrids = &profile.NameGrids{}
		if err := json.Unmarshal(row.grids, p.NameGrids); err != nil {
			return nil, fmt.Errorf("name grids: %w", err)
		}
	}

	if p.IsEmpty() {
		return nil, nil
	}
	return p, nil
}

func encodeProfile(p *profile.PersonalityProfile) (profileRow, error) {
	var row profileRow
	if p == nil {
		return row, nil
	}

	var err error
	if p.MBTI != nil {
		if p.MBTI.Type != "" {
			t := p.MBTI.Type
			row.mbtiType = &t
		}
		if row.mbti, err = json.Marshal(p.MBTI.Percentages); err != nil {
			return row, err
		}
	}
	if p.FiveElements != nil {
		if row.elements, err = json.Marshal(p.FiveElements); err != nil {
			return row, err
		}
	}
	if p.NameGrids != nil {
		if row.grids, err = json.Marshal(p.NameGrids); err != nil {
			return row, err
		}
	}
	return row, nil
}
