package policy

import (
	"fmt"
	"net/url"
	"path"
	"strings"

	"github.com/xela07ax/aeon-gateway/internal/domain"
)

// Result — детерминированный итог статической проверки.
// Rule заполняется при отказе: каждый deny обязан называть нарушенное правило.
type Result struct {
	Pass   bool   `json:"pass"`
	Rule   string `json:"rule,omitempty"`
	Reason string `json:"reason,omitempty"`
}

func pass() Result { return Result{Pass: true} }

func fail(rule, format string, args ...interface{}) Result {
	return Result{Pass: false, Rule: rule, Reason: fmt.Sprintf(format, args...)}
}

// Evaluate — чистая функция: одинаковая пара (интент, снапшот) всегда дает
// одинаковый результат. Это требование воспроизводимости аудита, поэтому
// здесь нет ни логирования, ни времени, ни обращений наружу.
func Evaluate(in *domain.Intent, snap *domain.Snapshot) Result {
	if snap == nil {
		// Конституция еще не загружена — Zero Trust
		return fail("no_active_policy", "no policy snapshot is active")
	}

	switch args := in.Args.(type) {
	case domain.WriteFileArgs:
		return evalWrite(args.Path, snap)
	case domain.DeleteFileArgs:
		return evalDelete(args.Path, snap)
	case domain.ReadFileArgs, domain.ListDirectoryArgs:
		// Чтение статикой не ограничиваем: чувствительные пути поднимет Risk Scorer
		return pass()
	case domain.CommandArgs:
		return pass()
	case domain.NetworkRequestArgs:
		return evalNetwork(args.URL, snap)
	case domain.UnknownArgs:
		return fail("unknown_tool", "tool %q is not registered (default deny)", in.Tool)
	default:
		return fail("unknown_tool", "tool %q is not registered (default deny)", in.Tool)
	}
}

func evalWrite(target string, snap *domain.Snapshot) Result {
	if strings.Contains(target, "..") {
		return fail("filesystem.path_traversal", "path %q contains traversal", target)
	}

	// Deny-wins: попадание в block_delete валит запись даже при совпадении с allow
	if pat, ok := matchAny(target, snap.Filesystem.BlockDelete); ok {
		return fail("filesystem.block_delete", "path %q matches blocked pattern %q", target, pat)
	}

	if _, ok := matchAny(target, snap.Filesystem.WriteAllow); !ok {
		return fail("filesystem.write_allow", "path %q is outside writable scope", target)
	}
	return pass()
}

func evalDelete(target string, snap *domain.Snapshot) Result {
	if strings.Contains(target, "..") {
		return fail("filesystem.path_traversal", "path %q contains traversal", target)
	}
	if pat, ok := matchAny(target, snap.Filesystem.BlockDelete); ok {
		return fail("filesystem.block_delete", "path %q matches blocked pattern %q", target, pat)
	}
	// Удаление дополнительно ограничено зоной записи
	if _, ok := matchAny(target, snap.Filesystem.WriteAllow); !ok {
		return fail("filesystem.write_allow", "path %q is outside writable scope", target)
	}
	return pass()
}

func evalNetwork(rawURL string, snap *domain.Snapshot) Result {
	u, err := url.Parse(rawURL)
	if err != nil || u.Hostname() == "" {
		return fail("network.invalid_target", "cannot extract host from %q", rawURL)
	}
	host := strings.ToLower(u.Hostname())

	// Явный deny побеждает любой allow
	if pat, ok := matchDomain(host, snap.Network.Block); ok {
		return fail("network.block", "domain %q matches blocked pattern %q", host, pat)
	}
	if _, ok := matchDomain(host, snap.Network.Allow); !ok {
		return fail("network.allow", "domain %q is not in the allow list", host)
	}
	return pass()
}

// matchAny проверяет путь против набора glob-паттернов.
// Поддерживаются точное совпадение, суффикс "/**" (поддерево) и path.Match.
func matchAny(target string, patterns []string) (string, bool) {
	cleaned := path.Clean(target)
	for _, pat := range patterns {
		if MatchPath(cleaned, pat) {
			return pat, true
		}
	}
	return "", false
}

// MatchPath — сопоставление одного пути с одним паттерном.
// Вынесено отдельно: его же использует Manifest Builder при сужении scope.
func MatchPath(target, pattern string) bool {
	if pattern == target {
		return true
	}
	if strings.HasSuffix(pattern, "/**") {
		prefix := strings.TrimSuffix(pattern, "/**")
		return target == prefix || strings.HasPrefix(target, prefix+"/")
	}
	// Одноуровневые шаблоны вида "/tmp/*.txt"
	if ok, err := path.Match(pattern, target); err == nil && ok {
		return true
	}
	return false
}

// matchDomain — точное имя или wildcard "*.suffix" (голый suffix wildcard-ом не кроется)
func matchDomain(host string, patterns []string) (string, bool) {
	for _, pat := range patterns {
		p := strings.ToLower(pat)
		if p == host {
			return pat, true
		}
		if strings.HasPrefix(p, "*.") && strings.HasSuffix(host, p[1:]) {
			return pat, true
		}
	}
	return "", false
}
