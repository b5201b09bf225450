package profile

import (
	"context"

	"github.com/alem-hub/afterschool-matching/internal/domain/shared"
)

// Source - порт чтения снимков профилей для оркестратора.
// Отсутствующий профиль возвращается как пустой снимок, а не ошибка:
// ошибка означает сбой апстрима.
type Source interface {
	// StudentProfile возвращает снимок профиля ученика.
	StudentProfile(ctx context.Context, id shared.StudentID) (*Student, error)

	// TeacherProfile возвращает снимок профиля учителя вместе с нагрузкой.
	TeacherProfile(ctx context.Context, id shared.TeacherID) (*Teacher, error)
}

// Directory - порт разрешения области действия пакетных операций.
type Directory interface {
	// StudentsInTeam возвращает учеников команды в стабильном порядке.
	StudentsInTeam(ctx context.Context, teamID shared.TeamID) ([]shared.StudentID, error)

	// ActiveTeachers возвращает активных учителей в стабильном порядке.
	ActiveTeachers(ctx context.Context) ([]shared.TeacherID, error)
}

// OwnerKind - чей профиль хранится.
type OwnerKind string

const (
	OwnerStudent OwnerKind = "student"
	OwnerTeacher OwnerKind = "teacher"
)

// Repository - порт записи профилей со стороны ingestion.
type Repository interface {
	// Upsert сохраняет снимок и возвращает новую версию.
	// Версия строго возрастает при каждом вызове для одного владельца.
	Upsert(ctx context.Context, kind OwnerKind, ownerID string, p *PersonalityProfile) (int64, error)
}
