// Package prompts renders sanitized bundles into model prompts. Rendering is
// a pure function of its input and never sees raw user data.
package prompts

import (
	"fmt"
	"strings"

	"github.com/dvloznov/finance-insights/internal/jsonval"
	"github.com/dvloznov/finance-insights/internal/model"
	"github.com/dvloznov/finance-insights/internal/schema"
)

const systemPrompt = "You are a personal finance analyst. You receive aggregated, anonymized " +
	"financial data and return insights as STRICT JSON.\n\n" +
	"Rules:\n" +
	"- Output raw JSON only. Do NOT wrap it in code fences or add any text.\n" +
	"- Every insight needs at least one data reference with a concrete value taken from the data.\n" +
	"- Confidence is a number from 0 to 100. Above 90 requires at least two data references.\n" +
	"- Every insight needs at least one action item. Each action description is a full sentence of at least 10 characters.\n" +
	"- adjust_budget and increase_savings actions must include parameters.suggestedAmount.\n" +
	"- Never mention card numbers, account numbers, PINs, passwords or personal identifiers.\n"

const insightShape = `{
  "title": string,
  "description": string,
  "type": one of [spending_pattern, budget_alert, savings_opportunity, subscription_review, income_trend, goal_progress, anomaly, recommendation],
  "confidence": number 0-100,
  "priority": one of [high, medium, low],
  "dataReferences": [{"type": string, "name": string, "value": number or string}],
  "actionItems": [{"description": string, "type": one of [adjust_budget, increase_savings, cancel_subscription, review_spending, set_goal, reduce_category, other], "priority": one of [high, medium, low], "parameters": {"suggestedAmount": number}}],
  "impact": {"amount": number, "percentage": number, "timeframe": string}
}`

// Render builds the prompt for kind from a sanitized bundle.
func Render(kind schema.Kind, sanitized jsonval.Value) (model.Prompt, error) {
	data, err := jsonval.Marshal(sanitized)
	if err != nil {
		return model.Prompt{}, fmt.Errorf("Render: marshal sanitized bundle: %w", err)
	}

	var b strings.Builder
	switch kind {
	case schema.KindSingle:
		b.WriteString("Analyze the financial summary below and return an object with exactly these keys:\n")
		b.WriteString(`- "insights": array of at most 10 insights` + "\n")
		b.WriteString(`- "summary": string, two or three sentences` + "\n\n")
	case schema.KindIntegrated:
		b.WriteString("Analyze the financial summary below across spending, budgets and goals together, and return an object with exactly these keys:\n")
		b.WriteString(`- "integratedInsights": array of at most 10 insights` + "\n")
		b.WriteString(`- "conflicts": array of {"description": string, "between": [string], "resolution": string}` + "\n")
		b.WriteString(`- "actionPlan": array of {"step": integer, "description": string, "timeframe": string, "priority": one of [high, medium, low]}` + "\n")
		b.WriteString(`- "overallHealth": {"score": number 0-100, "level": one of [excellent, good, fair, poor], "summary": string}` + "\n\n")
	default:
		return model.Prompt{}, fmt.Errorf("Render: unknown analysis kind %q", kind)
	}

	b.WriteString("Each insight has this shape:\n")
	b.WriteString(insightShape)
	b.WriteString("\n\nFinancial summary:\n")
	b.Write(data)
	b.WriteString("\n")

	return model.Prompt{System: systemPrompt, User: b.String()}, nil
}

// Corrective appends the validation errors of a rejected answer to prompt so
// the model can fix them on the next attempt.
func Corrective(prompt model.Prompt, errors []string) model.Prompt {
	if len(errors) == 0 {
		return prompt
	}
	var b strings.Builder
	b.WriteString(prompt.User)
	b.WriteString("\nYour previous answer was rejected for these reasons:\n")
	for _, e := range errors {
		b.WriteString("- " + e + "\n")
	}
	b.WriteString("Return a corrected JSON object that fixes every problem. Output raw JSON only.\n")
	return model.Prompt{System: prompt.System, User: b.String()}
}
