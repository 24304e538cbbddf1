package risk

import (
	"strings"

	"github.com/xela07ax/aeon-gateway/internal/domain"
)

// Фиксированные скоры ярусов. Берется максимальный сработавший ярус,
// скоры никогда не суммируются.
const (
	scoreCritical = 0.95
	scoreHigh     = 0.8
	scoreMedium   = 0.5
)

// check — один детектор паттерна. Работает по типизированным аргументам,
// blob (вся сериализация в lower-case) нужен для сквозных подстрок.
type check struct {
	label string
	hit   func(in *domain.Intent, blob string) bool
}

// Детекторы разбиты по ярусам тяжести. Порядок внутри яруса — порядок меток
// в итоговом RiskAssessment.Threats.
var criticalChecks = []check{
	{"remote_script_execution", func(_ *domain.Intent, blob string) bool {
		if !strings.Contains(blob, "curl") && !strings.Contains(blob, "wget") {
			return false
		}
		return strings.Contains(blob, "| bash") || strings.Contains(blob, "|bash") ||
			strings.Contains(blob, "| sh") || strings.Contains(blob, "|sh ") ||
			strings.HasSuffix(blob, "|sh")
	}},
	{"destructive_filesystem_wipe", func(_ *domain.Intent, blob string) bool {
		return strings.Contains(blob, "rm -rf /") || strings.Contains(blob, "rm -fr /") ||
			strings.Contains(blob, "--no-preserve-root") || strings.Contains(blob, "mkfs.")
	}},
	{"credential_file_access", func(in *domain.Intent, blob string) bool {
		for _, marker := range []string{".aws/credentials", "/etc/shadow", "/etc/passwd", ".kube/config"} {
			if strings.Contains(blob, marker) {
				return true
			}
		}
		return false
	}},
	{"private_key_material", func(in *domain.Intent, _ string) bool {
		args, ok := in.Args.(domain.WriteFileArgs)
		if !ok {
			return false
		}
		for _, marker := range []string{"BEGIN RSA PRIVATE KEY", "BEGIN OPENSSH PRIVATE KEY", "BEGIN EC PRIVATE KEY"} {
			if strings.Contains(args.Content, marker) {
				return true
			}
		}
		return false
	}},
	{"system_path_write", func(in *domain.Intent, _ string) bool {
		var target string
		switch args := in.Args.(type) {
		case domain.WriteFileArgs:
			target = args.Path
		case domain.DeleteFileArgs:
			target = args.Path
		default:
			return false
		}
		target = strings.ToLower(target)
		return strings.HasPrefix(target, "/etc") || strings.HasPrefix(target, "/usr/bin") ||
			strings.HasPrefix(target, "/usr/sbin") || strings.HasPrefix(target, "/boot")
	}},
	{"reverse_shell", func(_ *domain.Intent, blob string) bool {
		return strings.Contains(blob, "nc -e") || strings.Contains(blob, "/dev/tcp/") ||
			strings.Contains(blob, "bash -i >&")
	}},
	{"data_exfiltration", func(_ *domain.Intent, blob string) bool {
		if !strings.Contains(blob, "tar ") && !strings.Contains(blob, "tar c") {
			return false
		}
		return strings.Contains(blob, "curl") || strings.Contains(blob, "wget") ||
			strings.Contains(blob, "nc ")
	}},
}

var highChecks = []check{
	{"privilege_escalation", func(_ *domain.Intent, blob string) bool {
		return strings.Contains(blob, "chmod 777") || strings.Contains(blob, "chmod -r 777") ||
			strings.Contains(blob, "setuid") || strings.Contains(blob, "chown root") ||
			strings.Contains(blob, "sudo ")
	}},
	{"encoded_payload_execution", func(_ *domain.Intent, blob string) bool {
		if strings.Contains(blob, "base64 -d") || strings.Contains(blob, "base64 --decode") {
			return strings.Contains(blob, "| bash") || strings.Contains(blob, "| sh") ||
				strings.Contains(blob, "eval")
		}
		return strings.Contains(blob, "eval $(")
	}},
	{"ssh_key_access", func(_ *domain.Intent, blob string) bool {
		return strings.Contains(blob, ".ssh/id_") || strings.Contains(blob, ".ssh/authorized_keys")
	}},
	{"script_download", func(_ *domain.Intent, blob string) bool {
		if !strings.Contains(blob, "curl") && !strings.Contains(blob, "wget") {
			return false
		}
		return strings.Contains(blob, ".sh") || strings.Contains(blob, ".py") ||
			strings.Contains(blob, ".elf") || strings.Contains(blob, ".bin")
	}},
}

var mediumChecks = []check{
	{"shell_invocation", func(in *domain.Intent, _ string) bool {
		args, ok := in.Args.(domain.CommandArgs)
		if !ok {
			return false
		}
		// Ловим явный вызов интерпретатора, а не любой execute_command:
		// "echo hello" риском не считается
		cmd := strings.ToLower(args.Command)
		return strings.HasPrefix(cmd, "bash") || strings.HasPrefix(cmd, "sh ") ||
			strings.HasPrefix(cmd, "zsh") || strings.Contains(cmd, "sh -c")
	}},
	{"environment_access", func(_ *domain.Intent, blob string) bool {
		return strings.Contains(blob, ".env") || strings.Contains(blob, "printenv") ||
			strings.Contains(blob, "/proc/self/environ")
	}},
	{"network_utility", func(_ *domain.Intent, blob string) bool {
		return strings.Contains(blob, "nc ") || strings.Contains(blob, "netcat") ||
			strings.Contains(blob, "nmap")
	}},
}

// ScoreHeuristic прогоняет интент через все ярусы.
// Скор — максимальный сработавший ярус; метки собираются со всех ярусов
// в порядке убывания тяжести, чтобы агент видел полную картину в вердикте.
func ScoreHeuristic(in *domain.Intent) (float64, []string) {
	blob := strings.ToLower(in.Tool + " " + string(in.Arguments))

	score := 0.0
	threats := []string{}

	tiers := []struct {
		score  float64
		checks []check
	}{
		{scoreCritical, criticalChecks},
		{scoreHigh, highChecks},
		{scoreMedium, mediumChecks},
	}

	for _, tier := range tiers {
		for _, c := range tier.checks {
			if c.hit(in, blob) {
				if tier.score > score {
					score = tier.score
				}
				threats = append(threats, c.label)
			}
		}
	}

	return score, threats
}
