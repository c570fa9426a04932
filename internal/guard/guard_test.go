package guard

import (
	"errors"
	"fmt"
	"math"
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dvloznov/finance-insights/internal/jsonval"
)

func testGuard() *Guard {
	return New(Config{Clock: func() time.Time {
		return time.Date(2024, 5, 1, 8, 30, 0, 0, time.UTC)
	}})
}

func action(desc string) jsonval.Object {
	return jsonval.Object{
		"description": jsonval.String(desc),
		"type":        jsonval.String("review_spending"),
		"priority":    jsonval.String("medium"),
	}
}

func insight(title string, confidence float64, priority string, actions ...jsonval.Object) jsonval.Object {
	items := make(jsonval.Array, len(actions))
	for i, a := range actions {
		items[i] = a
	}
	return jsonval.Object{
		"title":       jsonval.String(title),
		"description": jsonval.String("Observed in recent spending."),
		"type":        jsonval.String("spending_pattern"),
		"confidence":  jsonval.Number(confidence),
		"priority":    jsonval.String(priority),
		"dataReferences": jsonval.Array{
			jsonval.Object{"type": jsonval.String("total"), "name": jsonval.String("dining"), "value": jsonval.Number(120)},
		},
		"actionItems": items,
	}
}

func single(insights ...jsonval.Object) jsonval.Object {
	arr := make(jsonval.Array, len(insights))
	for i, in := range insights {
		arr[i] = in
	}
	return jsonval.Object{"insights": arr, "summary": jsonval.String("Overview")}
}

func titles(t *testing.T, obj jsonval.Object, key string) []string {
	t.Helper()
	var out []string
	for _, item := range jsonval.ArrayAt(obj, key) {
		out = append(out, jsonval.StringAt(item, "title"))
	}
	return out
}

func TestGuardResponse_Empty(t *testing.T) {
	g := testGuard()
	for _, in := range []jsonval.Value{nil, jsonval.Null{}, jsonval.Object{}, jsonval.String("text"), jsonval.Array{}} {
		_, err := g.GuardResponse(in)
		assert.ErrorIs(t, err, ErrEmptyResponse, "%#v", in)
	}
}

func TestGuardResponse_LimitsInsightsByConfidence(t *testing.T) {
	var insights []jsonval.Object
	for i := 0; i < 12; i++ {
		conf := 50.0
		if i%2 == 0 {
			conf = 80
		}
		insights = append(insights, insight(fmt.Sprintf("i%d", i), conf, "low", action("Review this item")))
	}

	out, err := testGuard().GuardResponse(single(insights...))
	require.NoError(t, err)

	assert.Equal(t, []string{"i0", "i2", "i4", "i6", "i8", "i10", "i1", "i3", "i5", "i7"}, titles(t, out, "insights"))
}

func TestGuardResponse_KeepsOrderWhenUnderLimit(t *testing.T) {
	in := single(
		insight("low", 10, "low", action("Review this item")),
		insight("high", 90, "high", action("Review this item")),
	)

	out, err := testGuard().GuardResponse(in)
	require.NoError(t, err)

	assert.Equal(t, []string{"low", "high"}, titles(t, out, "insights"))
}

func TestGuardResponse_ClampsNumbers(t *testing.T) {
	over := insight("over", 150, "high", action("Review this item"))
	over["impact"] = jsonval.Object{"amount": jsonval.Number(5e6), "percentage": jsonval.Number(12)}
	under := insight("under", -3, "low", action("Review this item"))
	under["impact"] = jsonval.Object{"amount": jsonval.Number(-2e6)}
	fractional := insight("fractional", 72.6, "medium", action("Review this item"))

	out, err := testGuard().GuardResponse(single(over, under, fractional))
	require.NoError(t, err)

	insights := jsonval.ArrayAt(out, "insights")
	c0, _ := jsonval.NumberAt(insights[0], "confidence")
	c1, _ := jsonval.NumberAt(insights[1], "confidence")
	c2, _ := jsonval.NumberAt(insights[2], "confidence")
	assert.Equal(t, []float64{100, 0, 73}, []float64{c0, c1, c2})

	a0, _ := jsonval.NumberAt(insights[0], "impact", "amount")
	a1, _ := jsonval.NumberAt(insights[1], "impact", "amount")
	assert.Equal(t, float64(MaxMonetaryValue), a0)
	assert.Equal(t, float64(-MaxMonetaryValue), a1)
}

func TestGuardResponse_KeepMonetaryValues(t *testing.T) {
	in := insight("over", 60, "high", action("Review this item"))
	in["impact"] = jsonval.Object{"amount": jsonval.Number(5e6)}

	out, err := New(Config{KeepMonetaryValues: true}).GuardResponse(single(in))
	require.NoError(t, err)

	a, _ := jsonval.NumberAt(jsonval.ArrayAt(out, "insights")[0], "impact", "amount")
	assert.Equal(t, 5e6, a)
}

func TestGuardResponse_SuspiciousContent(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(jsonval.Object) jsonval.Object
	}{
		{"card in text", func(o jsonval.Object) jsonval.Object {
			return o.With("summary", jsonval.String("charged to 4111111111111111 twice"))
		}},
		{"card glued to text", func(o jsonval.Object) jsonval.Object {
			return o.With("summary", jsonval.String("ref:x4111111111111111y"))
		}},
		{"card as number", func(o jsonval.Object) jsonval.Object {
			return o.With("extra", jsonval.Number(4111111111111111))
		}},
		{"dashed card", func(o jsonval.Object) jsonval.Object {
			return o.With("summary", jsonval.String("4111-1111-1111-1111"))
		}},
		{"ssn", func(o jsonval.Object) jsonval.Object {
			return o.With("summary", jsonval.String("id 123-45-6789"))
		}},
		{"credential keyword", func(o jsonval.Object) jsonval.Object {
			return o.With("summary", jsonval.String("Update your Password"))
		}},
		{"credit card phrase", func(o jsonval.Object) jsonval.Object {
			return o.With("summary", jsonval.String("pay the credit card first"))
		}},
		{"pin", func(o jsonval.Object) jsonval.Object {
			return o.With("summary", jsonval.String("Never share your PIN."))
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := tt.mutate(single(insight("ok", 80, "high", action("Review this item"))))
			out, err := testGuard().GuardResponse(in)
			assert.True(t, errors.Is(err, ErrSuspiciousContent))
			assert.Nil(t, out)
			assert.NotContains(t, err.Error(), "4111")
		})
	}
}

func TestGuardResponse_WordsContainingKeywordsPass(t *testing.T) {
	in := single(insight("Spinning classes", 80, "high", action("Review spinning and shopping")))
	_, err := testGuard().GuardResponse(in)
	assert.NoError(t, err)
}

func TestGuardResponse_LongFractionsPass(t *testing.T) {
	tests := []struct {
		name  string
		value jsonval.Value
	}{
		{"float artefact", jsonval.Number(0.30000000000000004)},
		{"negative fraction", jsonval.Number(-12.345678901234567)},
		{"fraction in text", jsonval.String("ratio 0.1234567890123456")},
		{"long number", jsonval.Number(12345678901234567)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := insight("Dining share", 80, "high", action("Review this item"))
			in = in.With("impact", jsonval.Object{"percentage": tt.value})
			_, err := testGuard().GuardResponse(single(in))
			assert.NoError(t, err)
		})
	}
}

func TestGuardResponse_EnsureActionable(t *testing.T) {
	in := single(
		insight("no actions", 80, "high"),
		insight("short action", 80, "high", action("Save money now"), action("Hi")),
		insight("markup only", 80, "high", action("<<<>>>ab;;")),
		insight("too many", 80, "high",
			action("First action"), action("Second action"), action("Third action"), action("Fourth action")),
	)

	out, err := testGuard().GuardResponse(in)
	require.NoError(t, err)

	assert.Equal(t, []string{"too many"}, titles(t, out, "insights"))
	items := jsonval.ArrayAt(jsonval.ArrayAt(out, "insights")[0], "actionItems")
	require.Len(t, items, 3)
	assert.Equal(t, "Third action", jsonval.StringAt(items[2], "description"))
}

func TestGuardResponse_SanitizesText(t *testing.T) {
	in := single(insight("  <b>Save</b> $50 now;  ok | & \\ ", 80, "high", action("Cut\tback   on  dining")))

	out, err := testGuard().GuardResponse(in)
	require.NoError(t, err)

	first := jsonval.ArrayAt(out, "insights")[0]
	assert.Equal(t, "bSave/b 50 now ok", jsonval.StringAt(first, "title"))
	assert.Equal(t, "Cut back on dining", jsonval.StringAt(jsonval.ArrayAt(first, "actionItems")[0], "description"))
}

func TestGuardResponse_Metadata(t *testing.T) {
	in := single(
		insight("a", 80, "high", action("Review this item")),
		insight("b", 65, "medium", action("Review this item")),
		insight("c", 70.4, "urgent", action("Review this item")),
	)

	out, err := testGuard().GuardResponse(in)
	require.NoError(t, err)

	assert.Equal(t, "2024-05-01T08:30:00Z", jsonval.StringAt(out, MetadataKey, "timestamp"))
	assert.Equal(t, DefaultVersion, jsonval.StringAt(out, MetadataKey, "version"))

	stats, ok := StatsFromGuarded(out)
	require.True(t, ok)
	assert.Equal(t, 3, stats.Count)
	assert.Equal(t, 71.67, stats.AverageConfidence)
	assert.Equal(t, map[string]int{"high": 1, "medium": 1, "low": 0}, stats.ByPriority)
}

func TestGuardResponse_NoInsightsStats(t *testing.T) {
	out, err := testGuard().GuardResponse(jsonval.Object{"summary": jsonval.String("nothing to say")})
	require.NoError(t, err)

	stats, ok := StatsFromGuarded(out)
	require.True(t, ok)
	assert.Equal(t, 0, stats.Count)
	assert.Equal(t, 0.0, stats.AverageConfidence)
}

func TestGuardResponse_Integrated(t *testing.T) {
	in := jsonval.Object{
		"integratedInsights": jsonval.Array{
			insight("kept", 120, "high", action("Move money to savings")),
			insight("dropped", 50, "low"),
		},
		"overallHealth": jsonval.Object{"score": jsonval.Number(70), "level": jsonval.String("good"), "summary": jsonval.String("Fine")},
	}

	out, err := testGuard().GuardResponse(in)
	require.NoError(t, err)

	assert.Equal(t, []string{"kept"}, titles(t, out, "integratedInsights"))
	c, _ := jsonval.NumberAt(jsonval.ArrayAt(out, "integratedInsights")[0], "confidence")
	assert.Equal(t, 100.0, c)
	stats, _ := StatsFromGuarded(out)
	assert.Equal(t, 1, stats.Count)
}

func TestGuardResponse_IdempotentAndNonMutating(t *testing.T) {
	in := single(
		insight("  spaced   title ", 101, "high", action("a  b  c  d  e"), action("<i>Review</i> this")),
		insight("dropped", 40, "low", action("x")),
	)
	before, err := jsonval.Marshal(in)
	require.NoError(t, err)

	g := testGuard()
	once, err := g.GuardResponse(in)
	require.NoError(t, err)
	twice, err := g.GuardResponse(once)
	require.NoError(t, err)

	assert.Equal(t, once, twice)
	after, err := jsonval.Marshal(in)
	require.NoError(t, err)
	assert.JSONEq(t, string(before), string(after))
}

// Random responses must always come out inside the limits.
func TestGuardResponse_Monotonicity(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	descriptions := []string{"", "ok", "tiny!", "Reduce takeaway orders", "  <>  ", "Cancel the unused gym plan"}
	priorityNames := []string{"high", "medium", "low", "none"}
	g := testGuard()

	for run := 0; run < 200; run++ {
		n := rng.Intn(30)
		insights := make([]jsonval.Object, n)
		for i := range insights {
			actions := make([]jsonval.Object, rng.Intn(7))
			for j := range actions {
				actions[j] = action(descriptions[rng.Intn(len(descriptions))])
			}
			conf := rng.Float64()*300 - 100
			insights[i] = insight(fmt.Sprintf("t%d", i), conf, priorityNames[rng.Intn(4)], actions...)
		}

		out, err := g.GuardResponse(single(insights...))
		require.NoError(t, err)

		guarded := jsonval.ArrayAt(out, "insights")
		assert.LessOrEqual(t, len(guarded), DefaultMaxInsights)
		for _, item := range guarded {
			assert.LessOrEqual(t, len(jsonval.ArrayAt(item, "actionItems")), DefaultMaxActionItems)
			c, ok := jsonval.NumberAt(item, "confidence")
			require.True(t, ok)
			assert.GreaterOrEqual(t, c, 0.0)
			assert.LessOrEqual(t, c, 100.0)
			assert.Equal(t, math.Round(c), c)
		}
	}
}

func TestValidateDataReferences(t *testing.T) {
	budget := action("Lower the dining budget")
	budget["type"] = jsonval.String("adjust_budget")

	err := ValidateDataReferences(single(insight("a", 80, "high", budget)))
	assert.ErrorIs(t, err, ErrMissingSuggestedAmount)
	assert.Contains(t, err.Error(), "insights[0].actionItems[0]")

	budget["parameters"] = jsonval.Object{"suggestedAmount": jsonval.Number(250)}
	assert.NoError(t, ValidateDataReferences(single(insight("a", 80, "high", budget))))

	assert.NoError(t, ValidateDataReferences(single(insight("b", 80, "high", action("Review this item")))))
}

func TestAddConfidenceDisclaimer(t *testing.T) {
	confident := single(insight("a", 85, "high", action("Review this item")))
	assert.NotContains(t, AddConfidenceDisclaimer(confident), DisclaimerKey)

	unsure := single(insight("a", 85, "high", action("Review this item")), insight("b", 60, "low", action("Review this item")))
	out := AddConfidenceDisclaimer(unsure)
	assert.Equal(t, ConfidenceDisclaimer, jsonval.StringAt(out, DisclaimerKey))
	assert.NotContains(t, unsure, DisclaimerKey)
}

func TestValidateMonetaryValues(t *testing.T) {
	ok := jsonval.Object{"impact": jsonval.Object{"amount": jsonval.Number(-999999)}, "total": jsonval.Number(1e6)}
	assert.NoError(t, ValidateMonetaryValues(ok))

	deep := jsonval.Object{"insights": jsonval.Array{jsonval.Object{"dataReferences": jsonval.Array{
		jsonval.Object{"value": jsonval.Number(-1000001)},
	}}}}
	err := ValidateMonetaryValues(deep)
	assert.ErrorIs(t, err, ErrMonetaryOutOfRange)
	assert.Contains(t, err.Error(), "insights[0].dataReferences[0].value")

	notMonetary := jsonval.Object{"count": jsonval.Number(5e6)}
	assert.NoError(t, ValidateMonetaryValues(notMonetary))
}
