package reputation

import (
	"fmt"
	"net/http"

	"formrelay/internal/models"
	"formrelay/internal/version"
)

// New builds the classifier selected by cfg.Strategy. Addresses inside
// cfg.ExemptNetworks are classified clean before any lookup happens.
// Supported strategies:
//   - score: fraud score and anonymizer flags, fails open
//   - asn_allow: autonomous system allow-list, fails closed
//   - operator_allow: residential operator allow-list, fails closed
//   - operator_block: hosting operator block-list, fails open
//   - none: always clean
func New(cfg models.ReputationConfig) (Classifier, error) {
	classifier, err := newStrategy(cfg)
	if err != nil {
		return nil, err
	}

	if len(cfg.ExemptNetworks) == 0 {
		return classifier, nil
	}
	return NewExempt(cfg.ExemptNetworks, classifier)
}

func newStrategy(cfg models.ReputationConfig) (Classifier, error) {
	var (
		r        rule
		fallback Verdict
	)

	switch cfg.Strategy {
	case models.StrategyNone:
		return AllowAll{}, nil
	case models.StrategyScore:
		r, fallback = scoreRule(cfg.ScoreThreshold), Clean
	case models.StrategyASNAllow:
		if len(cfg.ASNs) == 0 {
			return nil, fmt.Errorf("asn_allow strategy requires at least one ASN")
		}
		r, fallback = asnAllowRule(cfg.ASNs), Abusive
	case models.StrategyOperatorAllow:
		if len(cfg.Operators) == 0 {
			return nil, fmt.Errorf("operator_allow strategy requires at least one operator")
		}
		r, fallback = operatorRule(cfg.Operators, false), Abusive
	case models.StrategyOperatorBlock:
		if len(cfg.Operators) == 0 {
			return nil, fmt.Errorf("operator_block strategy requires at least one operator")
		}
		r, fallback = operatorRule(cfg.Operators, true), Clean
	default:
		return nil, fmt.Errorf("unsupported reputation strategy: %s", cfg.Strategy)
	}

	if cfg.FailClosed != nil {
		fallback = Clean
		if *cfg.FailClosed {
			fallback = Abusive
		}
	}

	return &LookupClassifier{
		strategy: cfg.Strategy,
		lookup: &lookup{
			endpoint:  cfg.Endpoint,
			apiKey:    cfg.APIKey,
			userAgent: version.GetInfo().UserAgent(),
			client:    &http.Client{Timeout: cfg.Timeout},
		},
		rule:     r,
		fallback: fallback,
	}, nil
}

// SupportedStrategies returns every strategy name New accepts.
func SupportedStrategies() []string {
	return []string{
		models.StrategyScore,
		models.StrategyASNAllow,
		models.StrategyOperatorAllow,
		models.StrategyOperatorBlock,
		models.StrategyNone,
	}
}
