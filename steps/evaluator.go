package steps

import (
	"fmt"
	"slices"

	"dealflow/document"
)

// Context is everything a completion rule may inspect for one party.
type Context struct {
	SelectedListingID string
	Documents         []document.Document
	// RecordedSteps are steps explicitly marked complete on the progress record.
	RecordedSteps []int
	// MessageSent is informational only and gates nothing.
	MessageSent bool
	// BuyerActivity is set for sellers when at least one buyer selected the listing.
	BuyerActivity bool
}

func (c Context) hasDocument(match func(document.Document) bool) bool {
	for _, doc := range c.Documents {
		if match(doc) {
			return true
		}
	}
	return false
}

// Rule decides completion of one step. Check receives the results of the
// steps named in DependsOn, in the same order, evaluated from the same Context.
type Rule struct {
	DependsOn []int
	Check     func(ctx Context, deps []bool) bool
}

// Rulebook is the registered rule set of one role.
type Rulebook struct {
	role  Role
	rules [StepCount]Rule
}

// NewRulebook validates rules and returns a rulebook. Every step needs a rule
// and dependencies may only point at earlier steps, so a single ordered fold
// always sees them resolved.
func NewRulebook(role Role, rules map[int]Rule) (*Rulebook, error) {
	book := &Rulebook{role: role}
	for id := 0; id < StepCount; id++ {
		rule, ok := rules[id]
		if !ok || rule.Check == nil {
			return nil, fmt.Errorf("steps: %s step %d has no rule", role, id)
		}
		for _, dep := range rule.DependsOn {
			if dep < 0 || dep >= id {
				return nil, fmt.Errorf("steps: %s step %d depends on step %d", role, id, dep)
			}
		}
		book.rules[id] = rule
	}
	if len(rules) != StepCount {
		return nil, fmt.Errorf("steps: %s has %d rules, want %d", role, len(rules), StepCount)
	}
	return book, nil
}

func mustRulebook(role Role, rules map[int]Rule) *Rulebook {
	book, err := NewRulebook(role, rules)
	if err != nil {
		panic(err)
	}
	return book
}

// Role returns the role the rulebook was registered for.
func (b *Rulebook) Role() Role { return b.role }

// EvaluateAll folds the rules in step order and returns one result per step.
func (b *Rulebook) EvaluateAll(ctx Context) []bool {
	return b.fold(ctx, StepCount-1)
}

// Evaluate returns the completion of a single step.
func (b *Rulebook) Evaluate(stepID int, ctx Context) bool {
	if stepID < 0 || stepID >= StepCount {
		return false
	}
	return b.fold(ctx, stepID)[stepID]
}

func (b *Rulebook) fold(ctx Context, upTo int) []bool {
	results := make([]bool, upTo+1)
	for id := 0; id <= upTo; id++ {
		rule := b.rules[id]
		deps := make([]bool, len(rule.DependsOn))
		for i, dep := range rule.DependsOn {
			deps[i] = results[dep]
		}
		results[id] = rule.Check(ctx, deps)
	}
	return results
}

var (
	buyerRules  = mustRulebook(RoleBuyer, buyerRuleSet())
	sellerRules = mustRulebook(RoleSeller, sellerRuleSet())
)

// RulesFor returns the registered rulebook for role.
func RulesFor(role Role) (*Rulebook, error) {
	switch role {
	case RoleBuyer:
		return buyerRules, nil
	case RoleSeller:
		return sellerRules, nil
	default:
		return nil, fmt.Errorf("steps: unknown role %q", role)
	}
}

// Evaluate reports whether stepID is complete for role. Unknown roles and
// out-of-range steps are never complete.
func Evaluate(role Role, stepID int, ctx Context) bool {
	book, err := RulesFor(role)
	if err != nil {
		return false
	}
	return book.Evaluate(stepID, ctx)
}

func buyerRuleSet() map[int]Rule {
	return map[int]Rule{
		0: listingSelected(),
		1: sameAs(0),
		2: uploadedBy(2, document.CategoryBuyerUpload),
		3: uploadedBy(3, document.CategoryBuyerUpload),
		4: downloaded(4, document.TypeCBRCIM),
		5: uploadedBy(5, document.CategoryBuyerUpload),
		6: {Check: func(ctx Context, _ []bool) bool {
			return ctx.hasDocument(func(d document.Document) bool {
				return d.ForStep(6) &&
					d.Type == document.TypePurchaseContract &&
					d.Operation == document.OperationUpload &&
					d.Category == document.CategoryBuyerUpload &&
					d.Status == document.StatusCompleted
			})
		}},
		7:  allOf(0, 1, 2, 3, 4, 5, 6),
		8:  recorded(8),
		9:  recorded(9),
		10: recorded(10),
	}
}

func sellerRuleSet() map[int]Rule {
	return map[int]Rule{
		0: listingSelected(),
		1: sameAs(0),
		2: downloaded(2, document.TypeListingAgreement),
		3: uploadedBy(3, document.CategorySellerUpload),
		4: uploadedBy(4, document.CategorySellerUpload),
		5: {Check: func(ctx Context, _ []bool) bool { return ctx.BuyerActivity }},
		6: downloaded(6, document.TypePurchaseAgreement),
		7: {Check: func(ctx Context, _ []bool) bool {
			return ctx.hasDocument(func(d document.Document) bool {
				return d.ForStep(7) &&
					d.Type == document.TypeDueDiligence &&
					d.Operation == document.OperationUpload &&
					d.Category == document.CategorySellerUpload
			})
		}},
		8:  recorded(8),
		9:  recorded(9),
		10: recorded(10),
	}
}

func listingSelected() Rule {
	return Rule{Check: func(ctx Context, _ []bool) bool { return ctx.SelectedListingID != "" }}
}

func sameAs(step int) Rule {
	return Rule{DependsOn: []int{step}, Check: func(_ Context, deps []bool) bool { return deps[0] }}
}

func allOf(stepIDs ...int) Rule {
	return Rule{DependsOn: stepIDs, Check: func(_ Context, deps []bool) bool {
		for _, ok := range deps {
			if !ok {
				return false
			}
		}
		return true
	}}
}

func uploadedBy(step int, category document.Category) Rule {
	return Rule{Check: func(ctx Context, _ []bool) bool {
		return ctx.hasDocument(func(d document.Document) bool {
			return d.ForStep(step) && d.Category == category
		})
	}}
}

func downloaded(step int, docType document.Type) Rule {
	return Rule{Check: func(ctx Context, _ []bool) bool {
		return ctx.hasDocument(func(d document.Document) bool {
			return d.ForStep(step) &&
				d.Type == docType &&
				d.Operation == document.OperationDownload &&
				d.DownloadedAt != nil
		})
	}}
}

func recorded(step int) Rule {
	return Rule{Check: func(ctx Context, _ []bool) bool {
		return slices.Contains(ctx.RecordedSteps, step)
	}}
}
