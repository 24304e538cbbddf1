package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sort"
	"time"
)

// NetworkRules — доменные правила для сетевых инструментов.
// Паттерны вида "api.example.com" или "*.example.com".
type NetworkRules struct {
	Allow []string `json:"allow"`
	Block []string `json:"block"` // Block всегда побеждает при пересечении (deny-wins)
}

// FilesystemRules — glob-правила для файловых инструментов.
type FilesystemRules struct {
	WriteAllow  []string `json:"write_allow"`  // куда можно писать, например "/workspace/**"
	BlockDelete []string `json:"block_delete"` // что нельзя удалять, например "/etc/**"
}

// ResourceLimits — дефолтные границы исполнения для одного инструмента.
// Builder манифестов может их только сужать, никогда расширять.
type ResourceLimits struct {
	MaxMemoryMB     int      `json:"max_memory_mb"`
	MaxCPUPercent   int      `json:"max_cpu_percent"`
	TimeoutSeconds  int      `json:"timeout_seconds"`
	NetworkAllowed  bool     `json:"network_allowed"`
	FilesystemScope []string `json:"filesystem_scope,omitempty"`
}

// Snapshot — «конституция»: неизменяемый версионированный набор правил.
// Правка никогда не мутирует снапшот на месте — публикуется новая версия,
// а все in-flight проверки дорабатывают на той, к которой привязались.
type Snapshot struct {
	Version     int64                     `json:"version"`
	Network     NetworkRules              `json:"network"`
	Filesystem  FilesystemRules           `json:"filesystem"`
	Resources   map[string]ResourceLimits `json:"resource_limits"` // ключ — имя инструмента
	ContentHash string                    `json:"content_hash"`
	PublishedAt time.Time                 `json:"published_at"`
}

// Limits возвращает лимиты инструмента или дефолтную урезанную квоту,
// если инструмент в таблице не описан.
func (s *Snapshot) Limits(tool string) ResourceLimits {
	if s != nil {
		if lim, ok := s.Resources[tool]; ok {
			return lim
		}
	}
	// Минимальная квота для неизвестных инструментов
	return ResourceLimits{
		MaxMemoryMB:    50,
		MaxCPUPercent:  25,
		TimeoutSeconds: 30,
		NetworkAllowed: false,
	}
}

// ComputeHash считает детерминированный sha256 по содержимому правил.
// Версия и время публикации в хэш не входят: одинаковые правила — одинаковый хэш.
func (s *Snapshot) ComputeHash() string {
	type hashable struct {
		Network    NetworkRules              `json:"network"`
		Filesystem FilesystemRules           `json:"filesystem"`
		Resources  map[string]ResourceLimits `json:"resource_limits"`
	}

	// Сортируем копии слайсов, чтобы порядок правил не влиял на хэш.
	// Сам снапшот неизменяем, его массивы трогать нельзя.
	h := hashable{Network: s.Network, Filesystem: s.Filesystem, Resources: s.Resources}
	h.Network.Allow = sortedCopy(s.Network.Allow)
	h.Network.Block = sortedCopy(s.Network.Block)
	h.Filesystem.WriteAllow = sortedCopy(s.Filesystem.WriteAllow)
	h.Filesystem.BlockDelete = sortedCopy(s.Filesystem.BlockDelete)

	raw, _ := json.Marshal(h) // map маршалится с сортированными ключами
	sum := sha256.Sum256(raw)
	return hex.EncodeToString(sum[:])
}

func sortedCopy(in []string) []string {
	out := append([]string(nil), in...)
	sort.Strings(out)
	return out
}
