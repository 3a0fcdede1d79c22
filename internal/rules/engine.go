// Package rules evaluates ordered condition→action rules against
// transactions for auto-categorization.
package rules

import (
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/chudeemeke/kite-pfm/internal/model"
)

// Outcome is the result of evaluating one transaction against a rule set.
// Category assignment and note accumulation are tracked independently: a
// later rule overwriting the category never discards notes appended by
// earlier matching rules.
type Outcome struct {
	Subscription     *bool
	CategoryID       string
	Notes            []string
	MatchedRuleIDs   []string
	CategoryAssigned bool
}

// Mutated reports whether applying the outcome would change anything.
func (o *Outcome) Mutated() bool {
	return o.CategoryAssigned || o.Subscription != nil || len(o.Notes) > 0
}

// Engine evaluates an ordered set of enabled rules. Rules evaluate in
// ascending priority order; within one rule every condition must hold.
// The engine is immutable after construction; regex conditions are compiled
// once up front.
type Engine struct {
	compiled map[string]*regexp.Regexp
	rules    []model.Rule
}

// NewEngine creates an engine over the given rules. Disabled rules are
// dropped; the rest are sorted ascending by priority, ties broken by name
// for determinism.
func NewEngine(ruleSet []model.Rule) *Engine {
	enabled := make([]model.Rule, 0, len(ruleSet))
	for _, rule := range ruleSet {
		if rule.Enabled {
			enabled = append(enabled, rule)
		}
	}
	sort.SliceStable(enabled, func(i, j int) bool {
		if enabled[i].Priority != enabled[j].Priority {
			return enabled[i].Priority < enabled[j].Priority
		}
		return enabled[i].Name < enabled[j].Name
	})

	e := &Engine{
		rules:    enabled,
		compiled: make(map[string]*regexp.Regexp),
	}
	for _, rule := range enabled {
		for i, cond := range rule.Conditions {
			if cond.Op == model.OpRegex && cond.Value != "" {
				key := regexKey(rule.ID, i)
				if re, err := regexp.Compile("(?i)" + cond.Value); err == nil {
					e.compiled[key] = re
				}
			}
		}
	}
	return e
}

func regexKey(ruleID string, idx int) string {
	return ruleID + "#" + strconv.Itoa(idx)
}

// Rules returns the enabled rules in evaluation order.
func (e *Engine) Rules() []model.Rule { return e.rules }

// Evaluate runs the transaction through the rule set. The actions of every
// matching rule are applied in order, later category assignments
// overwriting earlier ones; a matching rule with StopProcessing halts
// evaluation for this transaction.
func (e *Engine) Evaluate(txn *model.Transaction) Outcome {
	var out Outcome

	for _, rule := range e.rules {
		if !e.matches(rule, txn) {
			continue
		}

		out.MatchedRuleIDs = append(out.MatchedRuleIDs, rule.ID)
		for _, action := range rule.Actions {
			switch action.Type {
			case model.ActionSetCategory:
				out.CategoryID = action.CategoryID
				out.CategoryAssigned = true
			case model.ActionSetSubscription:
				v := action.Subscription
				out.Subscription = &v
			case model.ActionAppendNote:
				if action.Note != "" {
					out.Notes = append(out.Notes, action.Note)
				}
			}
		}

		if rule.StopProcessing {
			break
		}
	}

	return out
}

// matches reports whether every condition of the rule holds (AND semantics).
// A rule with no conditions never matches.
func (e *Engine) matches(rule model.Rule, txn *model.Transaction) bool {
	if len(rule.Conditions) == 0 {
		return false
	}
	for i, cond := range rule.Conditions {
		if !e.matchCondition(rule.ID, i, cond, txn) {
			return false
		}
	}
	return true
}

func (e *Engine) matchCondition(ruleID string, idx int, cond model.Condition, txn *model.Transaction) bool {
	switch cond.Field {
	case model.FieldMerchant:
		return e.matchString(ruleID, idx, cond, txn.Merchant)
	case model.FieldDescription:
		return e.matchString(ruleID, idx, cond, txn.Description)
	case model.FieldAmount:
		return matchAmount(cond, txn.Amount)
	}
	return false
}

// matchString applies case-insensitive string operators.
func (e *Engine) matchString(ruleID string, idx int, cond model.Condition, value string) bool {
	have := strings.ToLower(value)
	want := strings.ToLower(cond.Value)

	switch cond.Op {
	case model.OpEquals:
		return have == want
	case model.OpContains:
		return strings.Contains(have, want)
	case model.OpStartsWith:
		return strings.HasPrefix(have, want)
	case model.OpEndsWith:
		return strings.HasSuffix(have, want)
	case model.OpRegex:
		re, ok := e.compiled[regexKey(ruleID, idx)]
		return ok && re.MatchString(value)
	}
	return false
}

// matchAmount applies equality or an inclusive range to the signed amount.
func matchAmount(cond model.Condition, amount float64) bool {
	switch cond.Op {
	case model.OpEquals:
		if cond.Min != nil {
			return amount == *cond.Min
		}
		return false
	case model.OpRange:
		if cond.Min != nil && amount < *cond.Min {
			return false
		}
		if cond.Max != nil && amount > *cond.Max {
			return false
		}
		return cond.Min != nil || cond.Max != nil
	}
	return false
}
