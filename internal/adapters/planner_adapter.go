package adapters

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"log"

	"github.com/firebase/genkit/go/core"

	"github.com/sagedesk/sage"
)

// GenkitPlannerAdapter uses a Genkit flow to implement the Planner
// interface. The flow returns the model's raw text; parsing and outcome
// classification happen here so the engine never sees transport detail.
type GenkitPlannerAdapter struct {
	plannerFlow *core.Flow[*sage.PlannerInput, string, struct{}]
	cache       sage.Cache
}

// NewGenkitPlannerAdapter creates a new adapter for the planner flow.
// cache may be nil to disable plan caching.
func NewGenkitPlannerAdapter(plannerFlow *core.Flow[*sage.PlannerInput, string, struct{}], cache sage.Cache) *GenkitPlannerAdapter {
	return &GenkitPlannerAdapter{
		plannerFlow: plannerFlow,
		cache:       cache,
	}
}

// Plan implements the sage.Planner interface. Model or transport
// failures classify as Unavailable, unparseable output as Malformed
// (after one retry); only context cancellation surfaces as an error.
func (a *GenkitPlannerAdapter) Plan(ctx context.Context, input sage.PlannerInput) (sage.PlanningOutcome, error) {
	cacheKey := a.cacheKey(input)

	if a.cache != nil {
		if cached, err := a.cache.Get(ctx, cacheKey); err == nil {
			if plan, ok := planFromCache(cached); ok {
				log.Printf("Planner cache hit (key: %s)", cacheKey)
				return sage.PlanningOutcome{Kind: sage.OutcomePlan, Plan: plan}, nil
			}
		}
	}

	raw, err := a.plannerFlow.Run(ctx, &input)
	if err != nil {
		if ctx.Err() != nil {
			return sage.PlanningOutcome{}, ctx.Err()
		}
		log.Printf("Planner flow failed (error: %v)", err)
		return sage.PlanningOutcome{
			Kind:   sage.OutcomeUnavailable,
			Reason: err.Error(),
		}, nil
	}

	plan, parseErr := ParsePlanText(raw)
	if parseErr != nil {
		log.Printf("Plan parse failed, retrying once (error: %v)", parseErr)
		retry, retryErr := a.plannerFlow.Run(ctx, &input)
		if retryErr != nil {
			if ctx.Err() != nil {
				return sage.PlanningOutcome{}, ctx.Err()
			}
			return sage.PlanningOutcome{
				Kind:   sage.OutcomeUnavailable,
				Reason: retryErr.Error(),
			}, nil
		}
		raw = retry
		plan, parseErr = ParsePlanText(raw)
	}
	if parseErr != nil {
		return sage.PlanningOutcome{
			Kind:    sage.OutcomeMalformed,
			Reason:  parseErr.Error(),
			RawText: raw,
		}, nil
	}

	if a.cache != nil {
		if err := a.cache.Set(ctx, cacheKey, plan); err != nil {
			log.Printf("Failed to cache plan (key: %s, error: %v)", cacheKey, err)
		}
	}

	return sage.PlanningOutcome{Kind: sage.OutcomePlan, Plan: plan, RawText: raw}, nil
}

// planFromCache recovers a plan from a cache value. In-memory entries
// hold the *ExecutionPlan directly; entries reloaded by a persistent
// cache come back as generic JSON maps and are re-decoded. A value
// that decodes to an empty plan is treated as a miss.
func planFromCache(cached interface{}) (*sage.ExecutionPlan, bool) {
	if plan, ok := cached.(*sage.ExecutionPlan); ok {
		return plan, true
	}

	raw, err := json.Marshal(cached)
	if err != nil {
		return nil, false
	}
	var plan sage.ExecutionPlan
	if err := json.Unmarshal(raw, &plan); err != nil {
		return nil, false
	}
	if len(plan.ToolCalls) == 0 && plan.Response == "" && !plan.NeedsAutomation {
		return nil, false
	}
	return &plan, true
}

// cacheKey hashes the utterance together with the catalog so a plan is
// never reused after the capability set changes.
func (a *GenkitPlannerAdapter) cacheKey(input sage.PlannerInput) string {
	inputBytes, err := json.Marshal(input)
	if err != nil {
		log.Printf("Failed to marshal planner input for cache key: %v", err)
		return "planner:" + input.Utterance
	}

	hasher := sha1.New()
	hasher.Write(inputBytes)
	return "planner:" + hex.EncodeToString(hasher.Sum(nil))
}
