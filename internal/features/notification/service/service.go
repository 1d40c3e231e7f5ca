package service

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"propchain/internal/common/logger"
	"propchain/internal/features/notification/models"
)

const defaultCapacity = 20

// Service keeps the most recent toasts in memory, newest last.
type Service struct {
	mu       sync.Mutex
	items    []models.Notification
	capacity int
	now      func() time.Time
	log      zerolog.Logger
}

func NewService(capacity int) *Service {
	if capacity <= 0 {
		capacity = defaultCapacity
	}
	return &Service{capacity: capacity, now: time.Now, log: logger.Component("notifications")}
}

func (s *Service) Push(level models.Level, title, message string) models.Notification {
	n := models.Notification{
		ID:        uuid.NewString(),
		Level:     level,
		Title:     title,
		Message:   message,
		CreatedAt: s.now(),
	}

	s.mu.Lock()
	s.items = append(s.items, n)
	if len(s.items) > s.capacity {
		s.items = append([]models.Notification(nil), s.items[len(s.items)-s.capacity:]...)
	}
	s.mu.Unlock()

	s.log.Debug().Str("level", string(level)).Str("title", title).Msg("notification pushed")
	return n
}

func (s *Service) Success(title, message string) { s.Push(models.LevelSuccess, title, message) }
func (s *Service) Error(title, message string)   { s.Push(models.LevelError, title, message) }
func (s *Service) Info(title, message string)    { s.Push(models.LevelInfo, title, message) }

// Recent returns up to n notifications, newest first.
func (s *Service) Recent(n int) []models.Notification {
	s.mu.Lock()
	defer s.mu.Unlock()
	if n <= 0 || n > len(s.items) {
		n = len(s.items)
	}
	out := make([]models.Notification, 0, n)
	for i := len(s.items) - 1; i >= 0 && len(out) < n; i-- {
		out = append(out, s.items[i])
	}
	return out
}

// Dismiss removes a notification; unknown ids are ignored.
func (s *Service) Dismiss(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, n := range s.items {
		if n.ID == id {
			s.items = append(s.items[:i], s.items[i+1:]...)
			return
		}
	}
}
