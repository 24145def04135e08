package pricing

import "warehub/internal/models"

// FreeDays returns the number of free storage days the rule set grants for a
// stay of totalStayDays. The result is always within [0, totalStayDays].
// Malformed rules are ignored; when several rules apply the most generous one
// wins, rules never stack.
func FreeDays(rules []models.FreeStorageRule, totalStayDays int) int {
	if totalStayDays <= 0 {
		return 0
	}

	best := 0
	for _, rule := range rules {
		if free := evaluateRule(rule, totalStayDays); free > best {
			best = free
		}
	}

	if best > totalStayDays {
		best = totalStayDays
	}
	return best
}

// BillableDays is the stay minus the free days, never negative.
func BillableDays(rules []models.FreeStorageRule, totalStayDays int) int {
	billable := totalStayDays - FreeDays(rules, totalStayDays)
	if billable < 0 {
		return 0
	}
	return billable
}

func evaluateRule(rule models.FreeStorageRule, days int) int {
	if rule.FreeDays <= 0 {
		return 0
	}

	switch rule.Kind {
	case models.RulePerPeriod:
		if rule.PerBilledDays <= 0 {
			return 0
		}
		cycle := rule.PerBilledDays + rule.FreeDays
		free := (days / cycle) * rule.FreeDays
		// a partial cycle earns free days only past its billed part
		if rem := days%cycle - rule.PerBilledDays; rem > 0 {
			free += rem
		}
		return free
	case models.RuleThreshold:
		if rule.MinStayDays < 0 || days < rule.MinStayDays {
			return 0
		}
		return rule.FreeDays
	default:
		return 0
	}
}
