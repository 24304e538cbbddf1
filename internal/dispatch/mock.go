package dispatch

import (
	"context"
	"fmt"
	"math/rand/v2" // Используем v2 для Go 1.25
	"time"

	"github.com/xela07ax/aeon-gateway/internal/domain"
)

// MockExecutor — локальный исполнитель для запуска без gRPC-рантайма.
type MockExecutor struct{}

func (m *MockExecutor) Dispatch(ctx context.Context, v *domain.Verdict, in *domain.Intent) error {
	// Имитируем задержку 50-300мс
	latency := time.Duration(50+rand.IntN(250)) * time.Millisecond

	select {
	case <-time.After(latency):
		// Имитация приёма
	case <-ctx.Done():
		return ctx.Err()
	}

	if v.Manifest == nil {
		return fmt.Errorf("refusing intent %s without a manifest", v.IntentID)
	}

	switch in.Tool {
	case domain.ToolExecuteCommand, domain.ToolWriteFile, domain.ToolReadFile,
		domain.ToolDeleteFile, domain.ToolListDirectory, domain.ToolNetworkRequest:
		return nil
	default:
		return fmt.Errorf("tool %s not supported by executor", in.Tool)
	}
}
