package notification

import (
	"context"
	"errors"

	"salesops_backend/platform/apperr"
	"salesops_backend/platform/logger"

	"github.com/google/uuid"
)

const (
	opList        = "notification.service.list"
	opCountUnread = "notification.service.count_unread"
	opMarkRead    = "notification.service.mark_read"
	opMarkAllRead = "notification.service.mark_all_read"

	defaultPageSize = 20
	maxPageSize     = 100
)

// Store is the persistence surface the service needs.
// Satisfied by *Repository.
type Store interface {
	Create(ctx context.Context, p CreateParams) (Notification, error)
	List(ctx context.Context, limit, offset int) ([]Notification, int, error)
	CountUnread(ctx context.Context) (int, error)
	MarkRead(ctx context.Context, id uuid.UUID) error
	MarkAllRead(ctx context.Context) (int64, error)
}

// Service manages the dashboard feed.
type Service struct {
	store Store
	log   *logger.Logger
}

// NewService creates a new notification service.
func NewService(store Store, log *logger.Logger) *Service {
	return &Service{store: store, log: log}
}

// Record appends an entry to the feed. Feed writes ride on domain events and
// must never fail the publisher, so errors are logged and swallowed here.
func (s *Service) Record(ctx context.Context, p CreateParams) {
	if _, err := s.store.Create(ctx, p); err != nil {
		s.log.Error("notification write failed", "title", p.Title, "error", err)
	}
}

// List returns one page of the feed, newest first, plus the total count.
func (s *Service) List(ctx context.Context, page, pageSize int) ([]Notification, int, error) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = defaultPageSize
	}
	if pageSize > maxPageSize {
		pageSize = maxPageSize
	}

	items, total, err := s.store.List(ctx, pageSize, (page-1)*pageSize)
	if err != nil {
		return nil, 0, apperr.Wrap(apperr.KindInternal, "listing notifications", err).WithOp(opList)
	}
	return items, total, nil
}

// CountUnread returns the unread badge count.
func (s *Service) CountUnread(ctx context.Context) (int, error) {
	count, err := s.store.CountUnread(ctx)
	if err != nil {
		return 0, apperr.Wrap(apperr.KindInternal, "counting unread notifications", err).WithOp(opCountUnread)
	}
	return count, nil
}

// MarkRead marks one entry read.
func (s *Service) MarkRead(ctx context.Context, id uuid.UUID) error {
	if err := s.store.MarkRead(ctx, id); err != nil {
		if errors.Is(err, ErrNotFound) {
			return apperr.NotFound("notification not found").WithOp(opMarkRead)
		}
		return apperr.Wrap(apperr.KindInternal, "marking notification read", err).WithOp(opMarkRead)
	}
	return nil
}

// MarkAllRead marks the whole feed read and returns how many entries flipped.
func (s *Service) MarkAllRead(ctx context.Context) (int64, error) {
	flipped, err := s.store.MarkAllRead(ctx)
	if err != nil {
		return 0, apperr.Wrap(apperr.KindInternal, "marking all notifications read", err).WithOp(opMarkAllRead)
	}
	if flipped > 0 {
		s.log.Info("notification feed cleared", "marked", flipped)
	}
	return flipped, nil
}
