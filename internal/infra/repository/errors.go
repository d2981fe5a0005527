package repository

import (
	"errors"
	"strings"

	repo "planmarket/internal/repository"

	"gorm.io/gorm"
)

// gorm.ErrRecordNotFound -> repo.ErrNotFound
func mapNotFound(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return repo.ErrNotFound
	}
	return err
}

// unique violations -> repo.ErrDuplicate
func mapDuplicate(err error) error {
	if err == nil {
		return nil
	}
	if isDuplicate(err) {
		return repo.ErrDuplicate
	}
	return err
}

// TranslateError covers both dialects, the string checks cover
// connections opened without it.
func isDuplicate(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") ||
		strings.Contains(msg, "duplicate key value") ||
		strings.Contains(msg, "SQLSTATE 23505")
}

func pageOffset(page, limit int) (int, int) {
	if page <= 0 {
		page = 1
	}
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	return (page - 1) * limit, limit
}
