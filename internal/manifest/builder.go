package manifest

import (
	"path"
	"time"

	"github.com/xela07ax/aeon-gateway/internal/domain"
	"github.com/xela07ax/aeon-gateway/internal/policy"
)

// Builder собирает CapabilityManifest для одобренного интента.
// Правило одно: дефолты из снапшота можно только СУЖАТЬ под конкретный интент,
// расширять — никогда.
type Builder struct {
	ttl time.Duration // время жизни манифеста — авторизует ровно одно исполнение
}

func NewBuilder(ttl time.Duration) *Builder {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &Builder{ttl: ttl}
}

// Build вызывается только когда политика PASS и скор ниже порога блокировки.
func (b *Builder) Build(in *domain.Intent, snap *domain.Snapshot, now time.Time) *domain.CapabilityManifest {
	lim := snap.Limits(in.Tool)

	m := &domain.CapabilityManifest{
		MaxMemoryMB:     lim.MaxMemoryMB,
		MaxCPUPercent:   lim.MaxCPUPercent,
		TimeoutSeconds:  lim.TimeoutSeconds,
		NetworkAllowed:  lim.NetworkAllowed,
		FilesystemScope: append([]string(nil), lim.FilesystemScope...),
		ExpiresAt:       now.Add(b.ttl),
	}

	switch args := in.Args.(type) {
	case domain.WriteFileArgs:
		m.FilesystemScope = narrowToDir(m.FilesystemScope, args.Path)
		m.NetworkAllowed = false // запись файлов сети не требует
	case domain.DeleteFileArgs:
		m.FilesystemScope = narrowToDir(m.FilesystemScope, args.Path)
		m.NetworkAllowed = false
	case domain.ReadFileArgs:
		m.FilesystemScope = narrowToDir(m.FilesystemScope, args.Path)
	case domain.ListDirectoryArgs:
		m.FilesystemScope = narrowToDir(m.FilesystemScope, path.Join(args.Path, "any"))
	case domain.NetworkRequestArgs:
		// Сетевому инструменту файловая система не нужна вовсе
		m.FilesystemScope = []string{}
	}

	if m.FilesystemScope == nil {
		m.FilesystemScope = []string{}
	}
	return m
}

// narrowToDir пересекает дефолтный scope с директорией конкретной цели.
// Если цель вообще не попадает в дефолтный scope — манифест остается пустым:
// сузить до нуля можно, расширить нельзя.
func narrowToDir(scope []string, target string) []string {
	dirPattern := path.Join(path.Dir(path.Clean(target)), "**")

	if len(scope) == 0 {
		// Дефолт не ограничивал — ограничиваем директорией цели
		return []string{dirPattern}
	}

	for _, pat := range scope {
		if policy.MatchPath(path.Clean(target), pat) {
			return []string{dirPattern}
		}
	}
	return []string{}
}
