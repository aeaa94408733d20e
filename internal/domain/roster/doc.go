// Package roster содержит доменную модель участников учебного процесса.
//
// Пакет определяет:
//
//   - Сущности (Entities): Identity, Instructor, Learner, Subject
//   - Value Objects: Role, Kind
//   - Нормализацию handle: NormalizeHandle, CandidateHandle
//   - Интерфейс репозитория: Repository
//
// # Идентичность
//
// Каждый преподаватель и каждый ученик имеет ровно одну Identity (1:1).
// Handle уникален глобально и выводится из отображаемого имени:
//
//	base := NormalizeHandle("Jane Doe")   // "janedoe"
//	CandidateHandle(base, 0)              // "janedoe"
//	CandidateHandle(base, 1)              // "janedoe1"
//
// Ровно одна Identity помечена как Protected: это администратор,
// созданный при начальной настройке. Её не удаляют ни wipe, ни full replace.
//
// # Натуральные ключи
//
// Instructor ищется по отображаемому имени, Learner по внешнему коду,
// Subject по названию. Уникальность натуральных ключей обеспечивает
// resolver (lookup-before-create), а не хранилище.
package roster
