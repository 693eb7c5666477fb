package domain

import "fmt"

// UnlimitedQuota is the Total (and Remaining) sentinel for callers without a ceiling.
const UnlimitedQuota = -1

// QuotaLedger is the AI usage counter for the current subscription period.
// Total 0 means no entitlement has been established yet.
type QuotaLedger struct {
	Used  int `json:"used"`
	Total int `json:"total"`
}

func (l QuotaLedger) Unlimited() bool {
	return l.Total == UnlimitedQuota
}

// QuotaDecision is the outcome of a quota gate check.
type QuotaDecision struct {
	Allowed   bool `json:"allowed"`
	Remaining int  `json:"remaining"`
	Used      int  `json:"used"`
	Total     int  `json:"total"`
	Unlimited bool `json:"unlimited"`
	Hint      bool `json:"hint"`
}

// Message renders the user-facing text shown when the decision blocks.
func (d QuotaDecision) Message() string {
	if d.Allowed {
		return ""
	}
	if d.Total == 0 {
		if d.Hint {
			return "AI hints are available with a subscription. Start a trial to try them."
		}
		return "AI explanations are available with a subscription. Start a trial to try them."
	}
	if d.Hint {
		return fmt.Sprintf("You have used all %d AI hints for this period.", d.Total)
	}
	return fmt.Sprintf("You have used all %d AI requests for this period. The limit resets with your next subscription period.", d.Total)
}
