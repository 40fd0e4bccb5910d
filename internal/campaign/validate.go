package campaign

import "strings"

// Validation messages, in the order the rules are checked
const (
	MsgIndustryRequired = "Industry is required"
	MsgTemplateContent  = "All email templates must have content"
	MsgEmailsPerDay     = "Emails per day must be between 1 and 50"
	MsgIntervalMinimum  = "Time intervals must be at least 1 minute"
	MsgIntervalOrder    = "Maximum interval must be greater than minimum interval"
)

// Sending limits
const (
	MinEmailsPerDay = 1
	MaxEmailsPerDay = 50
	MinIntervalMins = 1
)

// Rule names, used as metric labels
const (
	RuleIndustry        = "industry"
	RuleTemplateContent = "template_content"
	RuleEmailsPerDay    = "emails_per_day"
	RuleIntervalMinimum = "interval_minimum"
	RuleIntervalOrder   = "interval_order"
)

// ValidationResult is the outcome of Validate
type ValidationResult struct {
	IsValid bool     `json:"is_valid"`
	Errors  []string `json:"errors"`
	Rules   []string `json:"-"`
}

type rule struct {
	name    string
	message string
	ok      func(Config) bool
}

var rules = []rule{
	{
		name:    RuleIndustry,
		message: MsgIndustryRequired,
		ok: func(c Config) bool {
			return strings.TrimSpace(c.Industry) != ""
		},
	},
	{
		name:    RuleTemplateContent,
		message: MsgTemplateContent,
		ok: func(c Config) bool {
			for _, t := range c.Templates {
				if strings.TrimSpace(t.Content) == "" {
					return false
				}
			}
			return true
		},
	},
	{
		name:    RuleEmailsPerDay,
		message: MsgEmailsPerDay,
		ok: func(c Config) bool {
			return c.EmailsPerDay >= MinEmailsPerDay && c.EmailsPerDay <= MaxEmailsPerDay
		},
	},
	{
		name:    RuleIntervalMinimum,
		message: MsgIntervalMinimum,
		ok: func(c Config) bool {
			return c.MinInterval >= MinIntervalMins && c.MaxInterval >= MinIntervalMins
		},
	},
	{
		name:    RuleIntervalOrder,
		message: MsgIntervalOrder,
		ok: func(c Config) bool {
			return c.MinInterval < c.MaxInterval
		},
	},
}

// Validate checks whether a campaign is well-formed enough to start.
// Every rule is evaluated; violations are reported in rule order.
func Validate(c Config) ValidationResult {
	res := ValidationResult{
		Errors: []string{},
		Rules:  []string{},
	}
	for _, r := range rules {
		if !r.ok(c) {
			res.Errors = append(res.Errors, r.message)
			res.Rules = append(res.Rules, r.name)
		}
	}
	res.IsValid = len(res.Errors) == 0
	return res
}
