package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"collab-chat/internal/ai"
	"collab-chat/internal/models"
	"collab-chat/internal/repositories"
)

type UpdateRepositoryMock struct {
	mock.Mock
}

func (m *UpdateRepositoryMock) AppendUpdates(ctx context.Context, room string, updates []models.Update) error {
	args := m.Called(ctx, room, updates)
	return args.Error(0)
}

func (m *UpdateRepositoryMock) ListUpdates(ctx context.Context, room string) ([]models.Update, error) {
	args := m.Called(ctx, room)
	var updates []models.Update
	if val := args.Get(0); val != nil {
		updates = val.([]models.Update)
	}
	return updates, args.Error(1)
}

type GeneratorMock struct {
	mock.Mock
}

func (m *GeneratorMock) Generate(ctx context.Context, prompt string) (string, error) {
	args := m.Called(ctx, prompt)
	return args.String(0), args.Error(1)
}

type ResponderMock struct {
	mock.Mock
}

func (m *ResponderMock) Reply(ctx context.Context, message string, history []models.HistoryEntry) (string, error) {
	args := m.Called(ctx, message, history)
	return args.String(0), args.Error(1)
}

var _ repositories.UpdateRepository = (*UpdateRepositoryMock)(nil)
var _ ai.Generator = (*GeneratorMock)(nil)
var _ ai.Responder = (*ResponderMock)(nil)
