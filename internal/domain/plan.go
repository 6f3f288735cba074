package domain

// Plan is one row of the fixed subscription catalog. Prices are stored in
// centavos to avoid floating point in money math.
type Plan struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Credits     int64  `json:"credits"`
	PriceCents  int64  `json:"priceCents"`
	Currency    string `json:"currency"`
	PeriodDays  int    `json:"periodDays"`
	Description string `json:"description,omitempty"`
	Highlighted bool   `json:"highlighted,omitempty"`
}

const (
	PlanInicial       = "inicial"
	PlanIntermediario = "intermediario"
	PlanProfissional  = "profissional"

	// BillingPeriodDays is the subscription period length for every plan.
	BillingPeriodDays = 30
)

var planCatalog = map[string]Plan{
	PlanInicial: {
		ID:         PlanInicial,
		Name:       "Inicial",
		Credits:    100,
		PriceCents: 2990,
		Currency:   "BRL",
		PeriodDays: BillingPeriodDays,
	},
	PlanIntermediario: {
		ID:          PlanIntermediario,
		Name:        "Intermediário",
		Credits:     300,
		PriceCents:  4990,
		Currency:    "BRL",
		PeriodDays:  BillingPeriodDays,
		Highlighted: true,
	},
	PlanProfissional: {
		ID:         PlanProfissional,
		Name:       "Profissional",
		Credits:    800,
		PriceCents: 9990,
		Currency:   "BRL",
		PeriodDays: BillingPeriodDays,
	},
}

// planOrder fixes the catalog listing order for API responses.
var planOrder = []string{PlanInicial, PlanIntermediario, PlanProfissional}

// LookupPlan resolves a plan by ID.
func LookupPlan(id string) (Plan, error) {
	p, ok := planCatalog[id]
	if !ok {
		return Plan{}, &ErrInvalidPlan{PlanID: id}
	}
	return p, nil
}

// Plans returns the catalog in display order.
func Plans() []Plan {
	out := make([]Plan, 0, len(planOrder))
	for _, id := range planOrder {
		out = append(out, planCatalog[id])
	}
	return out
}

// ActionCost is the canonical credit cost per billable action. Callers with
// variable pricing (per-assistant rates) resolve the cost themselves and
// send it explicitly instead of an action name.
var actionCosts = map[string]int64{
	"ai_chat_message":    1,
	"content_generation": 2,
	"analysis":           3,
	"export":             1,
}

// LookupActionCost resolves the cost of a named action.
func LookupActionCost(action string) (int64, error) {
	c, ok := actionCosts[action]
	if !ok {
		return 0, &ErrValidation{Field: "action", Message: "unknown action: " + action}
	}
	return c, nil
}

// Actions returns the billable action names and their costs.
func Actions() map[string]int64 {
	out := make(map[string]int64, len(actionCosts))
	for k, v := range actionCosts {
		out[k] = v
	}
	return out
}
