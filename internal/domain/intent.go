package domain

import (
	"encoding/json"
	"fmt"
	"time"
)

// Имена инструментов, известные шлюзу. Всё остальное — ToolUnknown и default-deny.
const (
	ToolExecuteCommand = "execute_command"
	ToolWriteFile      = "write_file"
	ToolReadFile       = "read_file"
	ToolDeleteFile     = "delete_file"
	ToolListDirectory  = "list_directory"
	ToolNetworkRequest = "network_request"
)

// IntentContext — опциональный контекст от агента (прокидывается в аудит как есть).
type IntentContext struct {
	SessionID    string `json:"session_id,omitempty"`
	ParentIntent string `json:"parent_intent,omitempty"`
	Reasoning    string `json:"reasoning,omitempty"`
}

// Intent — каноническое представление запроса на действие.
// Создается один раз при инжесте и дальше только читается.
type Intent struct {
	ID         string          `json:"intent_id"`
	AgentDID   string          `json:"agent_did"`
	Tool       string          `json:"tool"`
	Arguments  json.RawMessage `json:"arguments"`
	Context    *IntentContext  `json:"context,omitempty"`
	ReceivedAt time.Time       `json:"received_at"`

	// Разобранный типизированный вариант аргументов (заполняется при инжесте)
	Args ToolArgs `json:"-"`
}

// ToolArgs — закрытое семейство типизированных аргументов per-tool.
// Вместо рефлексии по произвольной мапе у каждого известного инструмента свой тип,
// а всё нераспознанное падает в UnknownArgs и режется политикой.
type ToolArgs interface {
	toolArgs()
}

type CommandArgs struct {
	Command string `json:"command"`
}

type WriteFileArgs struct {
	Path    string `json:"path"`
	Content string `json:"content"`
}

type ReadFileArgs struct {
	Path string `json:"path"`
}

type DeleteFileArgs struct {
	Path string `json:"path"`
}

type ListDirectoryArgs struct {
	Path string `json:"path"`
}

type NetworkRequestArgs struct {
	URL    string `json:"url"`
	Method string `json:"method,omitempty"`
	Body   string `json:"body,omitempty"`
}

// UnknownArgs — catch-all для незарегистрированных инструментов
type UnknownArgs struct {
	Raw json.RawMessage
}

func (CommandArgs) toolArgs()        {}
func (WriteFileArgs) toolArgs()      {}
func (ReadFileArgs) toolArgs()       {}
func (DeleteFileArgs) toolArgs()     {}
func (ListDirectoryArgs) toolArgs()  {}
func (NetworkRequestArgs) toolArgs() {}
func (UnknownArgs) toolArgs()        {}

// ParseToolArgs валидирует и типизирует аргументы под конкретный инструмент.
// Ошибка означает малформированный интент (-32602), а не «рискованный».
func ParseToolArgs(tool string, raw json.RawMessage) (ToolArgs, error) {
	if len(raw) == 0 {
		raw = json.RawMessage("{}")
	}

	fail := func(err error) (ToolArgs, error) {
		return nil, fmt.Errorf("invalid arguments for %s: %w", tool, err)
	}

	switch tool {
	case ToolExecuteCommand:
		var a CommandArgs
		if err := json.Unmarshal(raw, &a); err != nil {
			return fail(err)
		}
		if a.Command == "" {
			return fail(fmt.Errorf("command is required"))
		}
		return a, nil
	case ToolWriteFile:
		var a WriteFileArgs
		if err := json.Unmarshal(raw, &a); err != nil {
			return fail(err)
		}
		if a.Path == "" {
			return fail(fmt.Errorf("path is required"))
		}
		return a, nil
	case ToolReadFile:
		var a ReadFileArgs
		if err := json.Unmarshal(raw, &a); err != nil {
			return fail(err)
		}
		if a.Path == "" {
			return fail(fmt.Errorf("path is required"))
		}
		return a, nil
	case ToolDeleteFile:
		var a DeleteFileArgs
		if err := json.Unmarshal(raw, &a); err != nil {
			return fail(err)
		}
		if a.Path == "" {
			return fail(fmt.Errorf("path is required"))
		}
		return a, nil
	case ToolListDirectory:
		var a ListDirectoryArgs
		if err := json.Unmarshal(raw, &a); err != nil {
			return fail(err)
		}
		if a.Path == "" {
			return fail(fmt.Errorf("path is required"))
		}
		return a, nil
	case ToolNetworkRequest:
		var a NetworkRequestArgs
		if err := json.Unmarshal(raw, &a); err != nil {
			return fail(err)
		}
		if a.URL == "" {
			return fail(fmt.Errorf("url is required"))
		}
		return a, nil
	default:
		// Неизвестный инструмент — валидный интент, но политика его зарежет
		return UnknownArgs{Raw: raw}, nil
	}
}
