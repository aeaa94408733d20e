package grade

import (
	"context"
)

// Repository определяет операции над оценками внутри транзакции хранилища.
type Repository interface {
	// Create сохраняет оценку и присваивает ей ID.
	Create(ctx context.Context, m *Measurement) error

	// Exists проверяет наличие оценки с данным ключом дедупликации.
	Exists(ctx context.Context, key DedupeKey) (bool, error)

	// List возвращает оценки, подходящие под фильтр,
	// упорядоченные по exam_date, затем по ID.
	List(ctx context.Context, filter Filter) ([]Measurement, error)

	// GlobalAverage возвращает средний балл и количество по всему хранилищу.
	// Для пустого хранилища возвращает (0, 0, nil).
	GlobalAverage(ctx context.Context) (float64, int, error)

	// Count возвращает общее количество оценок.
	Count(ctx context.Context) (int, error)

	// DeleteAll удаляет все оценки.
	DeleteAll(ctx context.Context) (int, error)

	// DeleteByLearner удаляет оценки ученика.
	DeleteByLearner(ctx context.Context, learnerID int64) (int, error)

	// DeleteByInstructor удаляет оценки, выставленные преподавателем.
	DeleteByInstructor(ctx context.Context, instructorID int64) (int, error)
}
