package domain

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/shopspring/decimal"
)

// GuardRule is a single configurable policy check.
type GuardRule struct {
	ID        string     `json:"id" yaml:"id"`
	Name      string     `json:"name" yaml:"name"`
	Enabled   bool       `json:"enabled" yaml:"enabled"`
	Kind      GuardKind  `json:"kind" yaml:"kind"`
	Config    RuleConfig `json:"config" yaml:"config"`
	CreatedAt time.Time  `json:"created_at" yaml:"-"`
	UpdatedAt time.Time  `json:"updated_at" yaml:"-"`
}

// RuleConfig holds kind-dependent guard parameters. It is loosely typed on
// purpose: values come from JSON, YAML and the database, and the typed
// accessors below are where malformed values are detected.
type RuleConfig map[string]any

// Config keys understood by the built-in guard kinds.
const (
	ConfigLimit     = "limit"
	ConfigMinAmount = "min_amount"
	ConfigPeriod    = "period"
	ConfigAddresses = "addresses"
	ConfigPatterns  = "patterns"
	ConfigThreshold = "threshold"
	ConfigModule    = "module"
	ConfigQuery     = "query"
)

// Decimal returns the numeric value stored under key. ok is false when the
// key is absent; err is set when it is present but not a number.
func (c RuleConfig) Decimal(key string) (d decimal.Decimal, ok bool, err error) {
	raw, ok := c[key]
	if !ok || raw == nil {
		return decimal.Zero, false, nil
	}
	switch v := raw.(type) {
	case decimal.Decimal:
		return v, true, nil
	case float64:
		return decimal.NewFromFloat(v), true, nil
	case float32:
		return decimal.NewFromFloat32(v), true, nil
	case int:
		return decimal.NewFromInt(int64(v)), true, nil
	case int64:
		return decimal.NewFromInt(v), true, nil
	case json.Number:
		d, err := decimal.NewFromString(v.String())
		if err != nil {
			return decimal.Zero, true, errors.Newf("%s must be numeric, got %q", key, v.String())
		}
		return d, true, nil
	case string:
		d, err := decimal.NewFromString(strings.TrimSpace(v))
		if err != nil {
			return decimal.Zero, true, errors.Newf("%s must be numeric, got %q", key, v)
		}
		return d, true, nil
	}
	return decimal.Zero, true, errors.Newf("%s must be numeric, got %T", key, raw)
}

// Text returns the string stored under key.
func (c RuleConfig) Text(key string) (string, bool, error) {
	raw, ok := c[key]
	if !ok || raw == nil {
		return "", false, nil
	}
	s, isString := raw.(string)
	if !isString {
		return "", true, errors.Newf("%s must be a string, got %T", key, raw)
	}
	return s, true, nil
}

// Strings returns the list of strings stored under key.
func (c RuleConfig) Strings(key string) ([]string, bool, error) {
	raw, ok := c[key]
	if !ok || raw == nil {
		return nil, false, nil
	}
	switch v := raw.(type) {
	case []string:
		return v, true, nil
	case []any:
		out := make([]string, 0, len(v))
		for i, item := range v {
			s, isString := item.(string)
			if !isString {
				return nil, true, errors.Newf("%s[%d] must be a string, got %T", key, i, item)
			}
			out = append(out, s)
		}
		return out, true, nil
	}
	return nil, true, errors.Newf("%s must be a list of strings, got %T", key, raw)
}

// Period returns the period stored under key.
func (c RuleConfig) Period(key string) (Period, bool, error) {
	s, ok, err := c.Text(key)
	if !ok || err != nil {
		return "", ok, err
	}
	p, err := ParsePeriod(s)
	return p, true, err
}

// PaymentCandidate is the input to guard evaluation.
type PaymentCandidate struct {
	Amount           decimal.Decimal `json:"amount"`
	Currency         string          `json:"currency"`
	Recipient        string          `json:"recipient"`
	RecipientAddress string          `json:"recipient_address"`
	WalletID         string          `json:"wallet_id"`
	Chain            string          `json:"chain"`
	AgentID          string          `json:"agent_id,omitempty"`
	Tool             string          `json:"tool,omitempty"`
}

// Validate checks the fields every candidate must carry.
func (c PaymentCandidate) Validate() error {
	if !c.Amount.IsPositive() {
		return errors.Wrapf(ErrBadParameter, "amount must be positive, got %s", c.Amount)
	}
	if c.WalletID == "" {
		return errors.Wrap(ErrBadParameter, "wallet_id is required")
	}
	if c.RecipientAddress == "" && c.Recipient == "" {
		return errors.Wrap(ErrBadParameter, "recipient or recipient_address is required")
	}
	return nil
}

// GuardResult is the outcome of one guard rule for one candidate.
type GuardResult struct {
	GuardID   string    `json:"guard_id"`
	GuardName string    `json:"guard_name"`
	Kind      GuardKind `json:"kind"`
	Passed    bool      `json:"passed"`
	Reason    string    `json:"reason,omitempty"`
}

// FormatAmount renders an amount the way guard reasons display money.
func FormatAmount(d decimal.Decimal) string {
	return fmt.Sprintf("$%s", d.String())
}
