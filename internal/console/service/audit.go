package service

import (
	"context"
	"fmt"

	"github.com/xela07ax/chat-control-plane/internal/domain"
)

// ArchiveProvider описывает контракт для чтения архива админ-команд.
// Горячий хвост живет в памяти (HistoryStore), архив — в PostgreSQL.
type ArchiveProvider interface {
	FetchCommands(ctx context.Context, adminID, cmdType string, limit int) ([]domain.AdminCommand, error)
}

type AuditService struct {
	repo ArchiveProvider
}

func NewAuditService(repo ArchiveProvider) *AuditService {
	return &AuditService{
		repo: repo,
	}
}

// FetchCommands запрашивает архив с фильтрацией.
// Логика фильтрации (пустые строки или конкретные значения) инкапсулирована в репозитории.
func (s *AuditService) FetchCommands(ctx context.Context, adminID, cmdType string, limit int) ([]domain.AdminCommand, error) {
	records, err := s.repo.FetchCommands(ctx, adminID, cmdType, limit)
	if err != nil {
		return nil, fmt.Errorf("audit_service: failed to fetch commands: %w", err)
	}
	return records, nil
}
