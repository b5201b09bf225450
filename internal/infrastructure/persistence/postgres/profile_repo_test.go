package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alem-hub/afterschool-matching/internal/domain/profile"
	"github.com/alem-hub/afterschool-matching/internal/domain/shared"
)

func newMock(t *testing.T) pgxmock.PgxPoolIface {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(func() {
		assert.NoError(t, mock.ExpectationsWereMet())
		mock.Close()
	})
	return mock
}

func mustJSON(t *testing.T, v any) []byte {
	t.Helper()
	b, err := json.Marshal(v)
	require.NoError(t, err)
	return b
}

func strPtr(s string) *string { return &s }

func TestProfileRepository_StudentProfile(t *testing.T) {
	mock := newMock(t)
	repo := NewProfileRepository(mock)

	pct := profile.MBTIPercentages{E: 70, I: 30, S: 40, N: 60, T: 55, F: 45, J: 20, P: 80}
	grids := profile.NameGrids{Won: 11, Hyung: 15, Yi: 21, Jeong: 31}

	mock.ExpectQuery(`FROM personality_profiles\s+WHERE owner_kind = 'student'`).
		WithArgs("s-1").
		WillReturnRows(pgxmock.NewRows([]string{"mbti_type", "mbti", "five_elements", "name_grids", "version"}).
			AddRow(strPtr("ENTP"), mustJSON(t, pct), []byte(nil), mustJSON(t, grids), int64(3)))

	s, err := repo.StudentProfile(context.Background(), "s-1")
	require.NoError(t, err)

	assert.Equal(t, shared.StudentID("s-1"), s.ID)
	require.NotNil(t, s.Personality)
	assert.Equal(t, int64(3), s.Personality.Version)
	assert.Equal(t, "ENTP", s.Personality.MBTI.Type)
	assert.Equal(t, pct, s.Personality.MBTI.Percentages)
	assert.Nil(t, s.Personality.FiveElements)
	assert.Equal(t, &grids, s.Personality.NameGrids)
}

func TestProfileRepository_StudentProfile_MissingIsEmpty(t *testing.T) {
	mock := newMock(t)
	repo := NewProfileRepository(mock)

	mock.ExpectQuery(`FROM personality_profiles`).WithArgs("s-2").WillReturnError(pgx.ErrNoRows)

	s, err := repo.StudentProfile(context.Background(), "s-2")
	require.NoError(t, err)
	assert.Equal(t, shared.StudentID("s-2"), s.ID)
	assert.True(t, s.Personality.IsEmpty())
}

func TestProfileRepository_StudentProfile_UpstreamError(t *testing.T) {
	mock := newMock(t)
	repo := NewProfileRepository(mock)

	mock.ExpectQuery(`FROM personality_profiles`).WithArgs("s-3").WillReturnError(errors.New("connection reset"))

	_, err := repo.StudentProfile(context.Background(), "s-3")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection reset")
	assert.False(t, shared.IsExternalService(err))
}

func TestProfileRepository_TeacherProfile_DatabaseDown(t *testing.T) {
	mock := newMock(t)
	repo := NewProfileRepository(mock)

	mock.ExpectQuery(`FROM teachers t`).WithArgs("t-3").WillReturnError(&pgconn.PgError{Code: "57P01"})

	_, err := repo.TeacherProfile(context.Background(), "t-3")
	require.Error(t, err)
	assert.ErrorIs(t, err, shared.ErrServiceUnavailable)
}

func TestProfileRepository_TeacherProfile(t *testing.T) {
	mock := newMock(t)
	repo := NewProfileRepository(mock)
	elements := profile.FiveElements{Wood: 2, Fire: 3, Earth: 1, Metal: 1, Water: 1}

	mock.ExpectQuery(`FROM teachers t\s+LEFT JOIN personality_profiles`).
		WithArgs("t-1").
		WillReturnRows(pgxmock.NewRows([]string{"current_load", "mbti_type", "mbti", "five_elements", "name_grids", "version"}).
			AddRow(12, (*string)(nil), []byte(nil), mustJSON(t, elements), []byte(nil), int64(1)))

	tc, err := repo.TeacherProfile(context.Background(), "t-1")
	require.NoError(t, err)
	assert.Equal(t, 12, tc.CurrentLoad)
	require.NotNil(t, tc.Personality)
	assert.Nil(t, tc.Personality.MBTI)
	assert.Equal(t, &elements, tc.Personality.FiveElements)
}

func TestProfileRepository_TeacherProfile_NoProfileRow(t *testing.T) {
	mock := newMock(t)
	repo := NewProfileRepository(mock)

	mock.ExpectQuery(`FROM teachers t`).
		WithArgs("t-2").
		WillReturnRows(pgxmock.NewRows([]string{"current_load", "mbti_type", "mbti", "five_elements", "name_grids", "version"}).
			AddRow(0, (*string)(nil), []byte(nil), []byte(nil), []byte(nil), int64(0)))

	tc, err := repo.TeacherProfile(context.Background(), "t-2")
	require.NoError(t, err)
	assert.Nil(t, tc.Personality)
	assert.Zero(t, tc.CurrentLoad)
}

func TestProfileRepository_TeacherProfile_Unknown(t *testing.T) {
	mock := newMock(t)
	repo := NewProfileRepository(mock)

	mock.ExpectQuery(`FROM teachers t`).WithArgs("ghost").WillReturnError(pgx.ErrNoRows)

	_, err := repo.TeacherProfile(context.Background(), "ghost")
	assert.ErrorIs(t, err, shared.ErrTeacherNotFound)
	assert.True(t, shared.IsNotFound(err))
}

func TestProfileRepository_Directory(t *testing.T) {
	mock := newMock(t)
	repo := NewProfileRepository(mock)
	ctx := context.Background()

	mock.ExpectQuery(`FROM team_members`).WithArgs("team-a").
		WillReturnRows(pgxmock.NewRows([]string{"student_id"}).AddRow("s-2").AddRow("s-1"))
	mock.ExpectQuery(`FROM teachers WHERE active`).
		WillReturnRows(pgxmock.NewRows([]string{"id"}).AddRow("t-1").AddRow("t-2"))

	students, err := repo.StudentsInTeam(ctx, "team-a")
	require.NoError(t, err)
	assert.Equal(t, []shared.StudentID{"s-2", "s-1"}, students)

	teachers, err := repo.ActiveTeachers(ctx)
	require.NoError(t, err)
	assert.Equal(t, []shared.TeacherID{"t-1", "t-2"}, teachers)
}

func TestProfileRepository_Upsert(t *testing.T) {
	mock := newMock(t)
	repo := NewProfileRepository(mock)

	p := &profile.PersonalityProfile{
		MBTI: &profile.MBTIProfile{Type: "INFJ", Percentages: profile.MBTIPercentages{E: 20, I: 80, S: 30, N: 70, T: 40, F: 60, J: 65, P: 35}},
	}

	mock.ExpectQuery(`version = personality_profiles.version \+ 1`).
		WithArgs("teacher", "t-1", pgxmock.AnyArg(), pgxmock.AnyArg(), []byte(nil), []byte(nil)).
		WillReturnRows(pgxmock.NewRows([]string{"version"}).AddRow(int64(4)))

	v, err := repo.Upsert(context.Background(), profile.OwnerTeacher, "t-1", p)
	require.NoError(t, err)
	assert.Equal(t, int64(4), v)
}

func TestProfileRepository_Upsert_UnknownKind(t *testing.T) {
	repo := NewProfileRepository(newMock(t))

	_, err := repo.Upsert(context.Background(), profile.OwnerKind("parent"), "x", nil)
	assert.True(t, shared.IsValidation(err))
}
