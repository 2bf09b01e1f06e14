// Package research implements the specialist fan-out: one research question
// dispatched concurrently to a set of domain specialists, each optionally
// enriched with live web search, compiled into a single attributed digest.
//
// Failure domains are isolated per specialist. A failed search degrades that
// specialist to model-only; a failed model call records a failure outcome
// without disturbing siblings. The coordinator always waits for every
// specialist to settle before aggregating.
package research

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/fleetworks/campaignflow/compose"
	"github.com/fleetworks/campaignflow/internal/metrics"
	"github.com/fleetworks/campaignflow/knowledge"
	"github.com/fleetworks/campaignflow/llm"
	"github.com/fleetworks/campaignflow/reference"
	"github.com/fleetworks/campaignflow/registry"
	"github.com/fleetworks/campaignflow/types"
)

// Request frames one research fan-out.
type Request struct {
	Question string
	Context  string
	Runbook  string
	Persona  string
	Sector   string

	// TargetIDs overrides runbook resolution when non-empty. Outcome and
	// digest ordering follows this list exactly.
	TargetIDs []string
}

// Outcome is one specialist's settled result: success with text, or failure
// with a reason. Never both.
type Outcome struct {
	SpecialistID string   `json:"specialist_id"`
	Name         string   `json:"name"`
	Icon         string   `json:"icon"`
	Text         string   `json:"text,omitempty"`
	UsedSearch   bool     `json:"used_search"`
	Citations    []string `json:"citations,omitempty"`
	FailReason   string   `json:"fail_reason,omitempty"`
}

// Failed reports whether the specialist failed.
func (o Outcome) Failed() bool { return o.FailReason != "" }

// Contributor summarises one successful specialist for run bookkeeping.
type Contributor struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	Icon       string `json:"icon"`
	UsedSearch bool   `json:"used_search"`
}

// SourceGroup lists one specialist's citations.
type SourceGroup struct {
	SpecialistID   string   `json:"specialist_id"`
	SpecialistName string   `json:"specialist_name"`
	Citations      []string `json:"citations"`
}

// Result is the compiled fan-out product. Digest is the model-consumable
// text; failure detail stays out of it and lives in Failures for audit.
type Result struct {
	Digest       string        `json:"digest"`
	Outcomes     []Outcome     `json:"outcomes"`
	Contributors []Contributor `json:"contributors"`
	Sources      []SourceGroup `json:"sources,omitempty"`
	Failures     []string      `json:"failures,omitempty"`
}

// Config tunes the coordinator.
type Config struct {
	// SpecialistMaxTokens caps each specialist completion.
	SpecialistMaxTokens int `yaml:"specialist_max_tokens"`

	// SearchTimeout and LLMTimeout bound the two network calls each
	// specialist task performs. Zero leaves the gateway default.
	SearchTimeout time.Duration `yaml:"search_timeout"`
	LLMTimeout    time.Duration `yaml:"llm_timeout"`

	// KBTopN is how many knowledge bank entries each specialist sees.
	KBTopN int `yaml:"kb_top_n"`
}

// Coordinator runs research fan-outs.
type Coordinator struct {
	reg      *registry.Registry
	provider llm.Provider
	search   llm.SearchProvider // nil disables live search entirely
	bank     knowledge.Bank     // nil disables KB context
	refs     reference.Store    // nil disables reference context
	cfg      Config
	metrics  *metrics.Collector
	logger   *zap.Logger
}

// NewCoordinator wires a coordinator. search, bank, refs, and metrics may
// each be nil; the corresponding enrichment is skipped.
func NewCoordinator(reg *registry.Registry, provider llm.Provider, search llm.SearchProvider, bank knowledge.Bank, refs reference.Store, cfg Config, collector *metrics.Collector, logger *zap.Logger) *Coordinator {
	if cfg.SpecialistMaxTokens == 0 {
		cfg.SpecialistMaxTokens = 6000
	}
	if cfg.KBTopN == 0 {
		cfg.KBTopN = knowledge.DefaultTopN
	}
	return &Coordinator{
		reg:      reg,
		provider: provider,
		search:   search,
		bank:     bank,
		refs:     refs,
		cfg:      cfg,
		metrics:  collector,
		logger:   logger,
	}
}

// RunResearch fans the question out to the target specialists and compiles
// the attributed digest. Partial failure is expected and non-fatal; the
// call itself errors only on empty input.
func (c *Coordinator) RunResearch(ctx context.Context, req Request) (*Result, error) {
	if strings.TrimSpace(req.Question) == "" {
		return nil, types.NewError(types.ErrInvalidRequest, "research question is required")
	}

	targets := req.TargetIDs
	if len(targets) == 0 {
		targets = c.reg.SpecialistsForRunbook(req.Runbook)
	}

	started := time.Now()
	enriched := enrichQuestion(req)

	// Buffered by input index: digest ordering follows the caller-supplied
	// target order, never completion order.
	outcomes := make([]Outcome, len(targets))

	var g errgroup.Group
	for i, id := range targets {
		i, id := i, id
		g.Go(func() error {
			outcomes[i] = c.runSpecialist(ctx, id, req, enriched)
			return nil
		})
	}
	// Tasks never return errors; Wait is a pure barrier. Every specialist
	// settles before aggregation, success or not.
	_ = g.Wait()

	result := aggregate(outcomes)

	succeeded := len(result.Contributors)
	failed := len(result.Failures)
	c.metrics.RecordFanOut(succeeded, failed, time.Since(started))
	c.logger.Info("research fan-out complete",
		zap.String("runbook", req.Runbook),
		zap.Int("targets", len(targets)),
		zap.Int("succeeded", succeeded),
		zap.Int("failed", failed),
		zap.Duration("elapsed", time.Since(started)))

	return result, nil
}

func (c *Coordinator) runSpecialist(ctx context.Context, id string, req Request, enrichedQuestion string) Outcome {
	spec, err := c.reg.Specialist(id)
	if err != nil {
		return Outcome{SpecialistID: id, FailReason: fmt.Sprintf("unknown specialist: %s", id)}
	}

	out := Outcome{SpecialistID: id, Name: spec.Name, Icon: spec.Icon}

	// Live search is an enhancement, not a dependency: gateway failure
	// degrades to model-only, it never fails the specialist.
	var searchContent string
	var citations []string
	if c.shouldSearch(spec, req) {
		sr, err := c.search.Search(ctx, &llm.SearchRequest{
			DomainPrompt: spec.DomainPrompt,
			Query:        fmt.Sprintf("Research the following for %s:\n\n%s\n\nContext: %s", spec.Name, req.Question, req.Context),
			Timeout:      c.cfg.SearchTimeout,
		})
		if err != nil {
			c.logger.Warn("search degraded for specialist",
				zap.String("specialist", id),
				zap.Error(err))
		} else if sr != nil {
			searchContent = sr.Content
			citations = sr.Citations
			out.UsedSearch = sr.Content != ""
		}
	}

	kbContext, err := knowledge.Context(ctx, c.bank, spec.KBCategory, c.cfg.KBTopN)
	if err != nil {
		// Same degrade policy as search: context enrichment never fails
		// the specialist.
		c.logger.Warn("kb context unavailable",
			zap.String("specialist", id),
			zap.Error(err))
		kbContext = ""
		c.metrics.RecordKnowledgeQuery("error")
	} else if kbContext != "" {
		c.metrics.RecordKnowledgeQuery("hit")
	}

	refContext := reference.Context(c.refs, id, registry.ChannelResearch, req.Context)

	prompt := compose.ComposeSpecialist(spec, refContext, kbContext, searchContent, citations)

	resp, err := c.provider.Completion(ctx, &llm.ChatRequest{
		MaxTokens:    c.cfg.SpecialistMaxTokens,
		SystemPrompt: prompt,
		Messages:     []types.Message{types.NewUserMessage(enrichedQuestion)},
		Timeout:      c.cfg.LLMTimeout,
	})
	if err != nil {
		out.FailReason = fmt.Sprintf("specialist %s: %v", id, err)
		return out
	}

	out.Text = resp.Content
	out.Citations = citations
	return out
}

func (c *Coordinator) shouldSearch(spec *registry.SpecialistDefinition, req Request) bool {
	if c.search == nil {
		return false
	}
	switch spec.SearchPolicy {
	case registry.SearchAlways:
		return true
	case registry.SearchOptional:
		return NeedsLiveData(req.Question + " " + req.Context)
	default:
		return false
	}
}

func enrichQuestion(req Request) string {
	return fmt.Sprintf("Research Question: %s\n\nCampaign Context: %s\nAudience: %s — %s\nChannel: Research | Runbook: %s\n\nProvide a thorough, evidence-based response grounded in your specialist domain. Include specific data points, examples, and actionable insights. Structure your response clearly with headings.",
		req.Question, req.Context, req.Persona, req.Sector, req.Runbook)
}

func aggregate(outcomes []Outcome) *Result {
	result := &Result{Outcomes: outcomes}

	var sections []string
	for _, o := range outcomes {
		if o.Failed() {
			result.Failures = append(result.Failures, o.FailReason)
			continue
		}
		result.Contributors = append(result.Contributors, Contributor{
			ID: o.SpecialistID, Name: o.Name, Icon: o.Icon, UsedSearch: o.UsedSearch,
		})
		if len(o.Citations) > 0 {
			result.Sources = append(result.Sources, SourceGroup{
				SpecialistID: o.SpecialistID, SpecialistName: o.Name, Citations: o.Citations,
			})
		}

		webTag := ""
		if o.UsedSearch {
			webTag = " 🌐"
		}
		sections = append(sections, fmt.Sprintf("## %s %s%s\n\n%s", o.Icon, o.Name, webTag, o.Text))
	}

	var names []string
	for _, ctr := range result.Contributors {
		names = append(names, ctr.Icon+" "+ctr.Name)
	}

	var sb strings.Builder
	sb.WriteString("# Research Findings\n\n")
	sb.WriteString(fmt.Sprintf("*Research contributors: %s*\n\n", strings.Join(names, ", ")))
	sb.WriteString(strings.Join(sections, "\n\n---\n\n"))

	if len(result.Sources) > 0 {
		sb.WriteString("\n\n---\n\n### 🌐 Web Research Sources\n")
		for _, src := range result.Sources {
			sb.WriteString(fmt.Sprintf("\n**%s:**\n", src.SpecialistName))
			for i, cit := range src.Citations {
				sb.WriteString(fmt.Sprintf("%d. %s\n", i+1, cit))
			}
		}
	}

	if len(result.Failures) > 0 {
		sb.WriteString(fmt.Sprintf("\n\n---\n\n**Note:** %d specialist(s) encountered errors.", len(result.Failures)))
	}

	result.Digest = sb.String()
	return result
}
