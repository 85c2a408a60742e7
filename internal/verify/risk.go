package verify

import (
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/ppiankov/proposalgate/internal/model"
)

var (
	magnitudePattern = regexp.MustCompile(`\d[\d,]*(?:\.\d+)?`)
	yearPattern      = regexp.MustCompile(`\b(19|20)\d{2}\b`)
)

// RiskPolicy assigns a risk level to a claim from the configured table plus two
// magnitude heuristics: large NUMBERs are HIGH and far-future DATEs are at least MEDIUM.
type RiskPolicy struct {
	defaults        map[model.ClaimType]model.RiskLevel
	largeNumber     float64
	futureDateYears int
	now             func() time.Time
}

// NewRiskPolicy creates a policy from config; missing table entries use the built-in defaults
func NewRiskPolicy(cfg model.RiskConfig) *RiskPolicy {
	defaults := model.DefaultRiskTable()
	for claimType, level := range cfg.Defaults {
		if level.Valid() {
			defaults[claimType] = level
		}
	}
	return &RiskPolicy{
		defaults:        defaults,
		largeNumber:     cfg.LargeNumber,
		futureDateYears: cfg.FutureDateYears,
		now:             time.Now,
	}
}

// Classify returns the risk level of c
func (p *RiskPolicy) Classify(c model.Claim) model.RiskLevel {
	level, ok := p.defaults[c.Type]
	if !ok {
		level = model.RiskMedium
	}

	switch c.Type {
	case model.ClaimNumber:
		if p.largeNumber > 0 {
			if v, ok := parseMagnitude(c.Value); ok && v >= p.largeNumber {
				level = raise(level, model.RiskHigh)
			}
		}
	case model.ClaimDate:
		if p.futureDateYears > 0 {
			if year, ok := parseYear(c.Value); ok && year-p.now().Year() >= p.futureDateYears {
				level = raise(level, model.RiskMedium)
			}
		}
	case model.ClaimCurrency, model.ClaimPercentage, model.ClaimNamedOrg, model.ClaimOutcome:
	}
	return level
}

func rank(r model.RiskLevel) int {
	switch r {
	case model.RiskHigh:
		return 3
	case model.RiskMedium:
		return 2
	case model.RiskLow:
		return 1
	default:
		return 0
	}
}

func raise(current, floor model.RiskLevel) model.RiskLevel {
	if rank(floor) > rank(current) {
		return floor
	}
	return current
}

// parseMagnitude reads the first number in s, honoring thousand/million/billion suffixes
func parseMagnitude(s string) (float64, bool) {
	m := magnitudePattern.FindString(s)
	if m == "" {
		return 0, false
	}
	v, err := strconv.ParseFloat(strings.ReplaceAll(m, ",", ""), 64)
	if err != nil {
		return 0, false
	}

	lower := strings.ToLower(s)
	switch {
	case strings.Contains(lower, "billion"):
		v *= 1e9
	case strings.Contains(lower, "million"):
		v *= 1e6
	case strings.Contains(lower, "thousand"):
		v *= 1e3
	}
	return v, true
}

func parseYear(s string) (int, bool) {
	m := yearPattern.FindString(s)
	if m == "" {
		return 0, false
	}
	year, err := strconv.Atoi(m)
	return year, err == nil
}
