package dispatch

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/xela07ax/aeon-gateway/internal/domain"
)

// ExecutionProvider уведомляет внешний рантайм об одобренном интенте
// вместе с границами манифеста.
type ExecutionProvider interface {
	Dispatch(ctx context.Context, v *domain.Verdict, in *domain.Intent) error
}

const executorDispatchMethod = "/aeon.executor.v1.ExecutorService/Dispatch"

// GRPCDispatcher отправляет одобренные интенты исполнителю по gRPC.
// Полезная нагрузка едет как structpb.Struct: исполнители пишутся на
// разных языках, и жёсткая proto-схема здесь только мешала бы.
type GRPCDispatcher struct {
	conn *grpc.ClientConn
}

func NewGRPCDispatcher(conn *grpc.ClientConn) *GRPCDispatcher {
	return &GRPCDispatcher{conn: conn}
}

// Dispatch реализует интерфейс ExecutionProvider
func (d *GRPCDispatcher) Dispatch(ctx context.Context, v *domain.Verdict, in *domain.Intent) error {
	// 1. Собираем конверт: интент + манифест в виде generic-структуры
	var args map[string]interface{}
	if len(in.Arguments) > 0 {
		if err := json.Unmarshal(in.Arguments, &args); err != nil {
			return fmt.Errorf("failed to unmarshal intent arguments: %w", err)
		}
	}

	envelope := map[string]interface{}{
		"intent_id": v.IntentID,
		"agent_did": v.AgentDID,
		"tool":      in.Tool,
		"arguments": args,
	}
	if v.Manifest != nil {
		envelope["manifest"] = map[string]interface{}{
			"max_memory_mb":    v.Manifest.MaxMemoryMB,
			"max_cpu_percent":  v.Manifest.MaxCPUPercent,
			"timeout_seconds":  v.Manifest.TimeoutSeconds,
			"network_allowed":  v.Manifest.NetworkAllowed,
			"filesystem_scope": toAnySlice(v.Manifest.FilesystemScope),
			"expires_at":       v.Manifest.ExpiresAt.Format(time.RFC3339),
		}
	}

	req, err := structpb.NewStruct(envelope)
	if err != nil {
		return fmt.Errorf("failed to build dispatch envelope: %w", err)
	}

	// 2. Защитный таймаут на уровне вызова, поверх таймаутов обёртки
	ctx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()

	// 3. Вызов без сгенерированного стаба: схема у конверта свободная
	resp := &structpb.Struct{}
	if err := d.conn.Invoke(ctx, executorDispatchMethod, req, resp); err != nil {
		return fmt.Errorf("executor call failed: %w", err)
	}

	// 4. Исполнитель обязан подтвердить приём
	fields := resp.GetFields()
	if accepted, ok := fields["accepted"]; ok && !accepted.GetBoolValue() {
		reason := fields["reason"].GetStringValue()
		return fmt.Errorf("executor rejected intent %s: %s", v.IntentID, reason)
	}

	return nil
}

func toAnySlice(in []string) []interface{} {
	out := make([]interface{}, len(in))
	for i, s := range in {
		out[i] = s
	}
	return out
}
