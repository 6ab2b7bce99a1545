package verify

import (
	"context"
	"log"

	"github.com/handywriterz/handywriterz/internal/agent/core"
	"github.com/handywriterz/handywriterz/internal/agent/telemetry"
)

// InsufficientSourcesMessage is the terminal error recorded when the
// relaxation ladder is exhausted.
const InsufficientSourcesMessage = "insufficient sources after fallback"

// FallbackController relaxes the search policy across bounded attempts when
// verification leaves too few sources. The ladder is fixed and ordered by
// increasing aggressiveness: widen the year window first, drop the study
// design filter second, fail third. Attempts only ever increase; once the
// workflow has failed, further calls change nothing.
type FallbackController struct {
	maxAttempts int
	tele        *telemetry.Telemetry
	logger      *log.Logger
}

func NewFallbackController(maxAttempts int, tele *telemetry.Telemetry) *FallbackController {
	if maxAttempts <= 0 {
		maxAttempts = 2
	}
	return &FallbackController{
		maxAttempts: maxAttempts,
		tele:        tele,
		logger:      log.New(log.Writer(), "[FALLBACK] ", log.LstdFlags),
	}
}

func (c *FallbackController) Name() string { return "fallback" }

func (c *FallbackController) Execute(ctx context.Context, state *core.WorkflowState) (core.StateUpdate, error) {
	// Only meaningful when verification asked for it.
	if !state.NeedFallback || state.Status == core.StatusFailed {
		return core.StateUpdate{}, nil
	}

	params := state.SearchParams
	switch {
	case state.FallbackAttempts == 0:
		params.YearFrom -= 2
		c.logger.Printf("attempt 1: widening year window to %d-%d", params.YearFrom, params.YearTo)
		c.tele.RecordFallback()
		return core.StateUpdate{
			SearchParams:     &params,
			FallbackAttempts: core.Int(1),
			NeedFallback:     core.Bool(false),
		}, nil

	case state.FallbackAttempts == 1 && c.maxAttempts > 1:
		if params.Design != "" {
			c.logger.Printf("attempt 2: dropping study design filter %q", params.Design)
			params.Design = ""
		} else {
			c.logger.Printf("attempt 2: no design filter to drop, retrying as-is")
		}
		c.tele.RecordFallback()
		return core.StateUpdate{
			SearchParams:     &params,
			FallbackAttempts: core.Int(2),
			NeedFallback:     core.Bool(false),
		}, nil

	default:
		c.logger.Printf("fallback exhausted after %d attempts", state.FallbackAttempts)
		return core.StateUpdate{
			Status:       core.StatusFailed,
			ErrorMessage: core.Str(InsufficientSourcesMessage),
		}, nil
	}
}
