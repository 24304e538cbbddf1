package risk

import (
	"context"
	"time"

	"github.com/xela07ax/aeon-gateway/internal/domain"
	"go.uber.org/zap"
)

// Scorer — гибридный риск-скоринг: детерминированные эвристики плюс
// внешняя модель. Комбинация асимметричная по построению:
// final = max(heuristic, model). Эвристики дают пол безопасности,
// который недоступная или обманутая модель опустить не может.
type Scorer struct {
	model   ModelProvider
	timeout time.Duration
	logger  *zap.Logger
}

func NewScorer(model ModelProvider, timeout time.Duration, logger *zap.Logger) *Scorer {
	return &Scorer{
		model:   model,
		timeout: timeout,
		logger:  logger.Named("risk"),
	}
}

// Score никогда не возвращает ошибку: риск — это результат, а не сбой.
// Малформированные интенты до этой стадии не доходят.
func (s *Scorer) Score(ctx context.Context, in *domain.Intent) domain.RiskAssessment {
	heuristic, threats := ScoreHeuristic(in)

	out := domain.RiskAssessment{
		HeuristicScore: heuristic,
		FinalScore:     heuristic,
		Threats:        threats,
	}

	if s.model != nil {
		// Жесткий таймаут: модельный проход — единственная сетевая точка
		// подвески пайплайна, дольше бюджета не ждем
		mCtx, cancel := context.WithTimeout(ctx, s.timeout)
		assessment, err := s.model.Assess(mCtx, in.Tool, in.Arguments)
		cancel()

		if err != nil {
			// Деградация, не отказ: дорабатываем на эвристиках
			s.logger.Warn("model scorer unavailable, degrading to heuristics",
				zap.String("intent_id", in.ID),
				zap.Error(err))
		} else {
			score := assessment.RiskScore
			out.ModelScore = &score
			if score > out.FinalScore {
				out.FinalScore = score
			}
			// Модельные метки идут после эвристических: у них нет
			// детерминированной гарантии
			for _, t := range assessment.Threats {
				if !contains(out.Threats, t) {
					out.Threats = append(out.Threats, t)
				}
			}
		}
	}

	out.Level = domain.RiskLevelFromScore(out.FinalScore)
	return out
}

func contains(list []string, v string) bool {
	for _, item := range list {
		if item == v {
			return true
		}
	}
	return false
}
