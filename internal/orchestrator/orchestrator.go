// Package orchestrator runs the resolution pipeline: classify the
// product, select governing agencies, fan out to their data sources,
// and aggregate the outcomes into a confidence-scored report.
package orchestrator

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/lawgenie/hscompass/internal/classifier"
	"github.com/lawgenie/hscompass/internal/invoker"
	"github.com/lawgenie/hscompass/internal/model"
	"github.com/lawgenie/hscompass/internal/reasoning"
	"github.com/lawgenie/hscompass/internal/registry"
)

const (
	defaultMaxAgencies = 5
	defaultFanout      = 5
	minCodeDigits      = 6
)

// SourceInvoker executes one source call. Satisfied by invoker.Invoker.
type SourceInvoker interface {
	Invoke(ctx context.Context, src model.Source, code, product string) *invoker.Result
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithMaxAgencies caps how many agencies are queried per resolution.
func WithMaxAgencies(n int) Option {
	return func(o *Orchestrator) {
		if n > 0 {
			o.maxAgencies = n
		}
	}
}

// WithFanout bounds the number of concurrent source invocations.
func WithFanout(n int) Option {
	return func(o *Orchestrator) {
		if n > 0 {
			o.fanout = n
		}
	}
}

// WithAnnotator attaches a reasoning collaborator to classification
// output.
func WithAnnotator(a *reasoning.Annotator) Option {
	return func(o *Orchestrator) { o.annotator = a }
}

// Orchestrator wires the classifier, the agency index, the source
// registry, and the invoker into one pipeline.
type Orchestrator struct {
	classifier  *classifier.Classifier
	agencies    *registry.Agencies
	sources     *registry.Sources
	invoker     SourceInvoker
	annotator   *reasoning.Annotator
	maxAgencies int
	fanout      int
}

// New builds an Orchestrator.
func New(cls *classifier.Classifier, agencies *registry.Agencies, sources *registry.Sources, inv SourceInvoker, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		classifier:  cls,
		agencies:    agencies,
		sources:     sources,
		invoker:     inv,
		maxAgencies: defaultMaxAgencies,
		fanout:      defaultFanout,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Classify ranks taxonomy candidates for a product description and
// attaches reasoning text when a collaborator is configured.
func (o *Orchestrator) Classify(ctx context.Context, product string) []model.Candidate {
	candidates := o.classifier.Classify(product)
	if o.annotator != nil {
		candidates = o.annotator.Annotate(ctx, product, candidates)
	}
	return candidates
}

// TariffEstimate exposes the duty-rate breakdown for a code.
func (o *Orchestrator) TariffEstimate(code string) model.TariffEstimate {
	return o.classifier.TariffEstimate(code)
}

// agencyOutcome pairs one queried agency with its invocation result.
type agencyOutcome struct {
	agency model.RankedAgency
	source model.Source
	result *invoker.Result
}

// Resolve runs the full pipeline for a product. When code is empty the
// product text is classified first and the top candidate is used. A
// report is always returned, possibly with confidence 0.0 and a
// populated error list.
func (o *Orchestrator) Resolve(ctx context.Context, code, product string) *model.Report {
	started := time.Now()
	report := &model.Report{
		ID:          uuid.NewString(),
		ProductName: product,
		StartedAt:   started,
	}
	defer func() {
		report.ElapsedMS = time.Since(started).Milliseconds()
	}()

	// Classify
	if code == "" {
		report.Trace = append(report.Trace, "classifying product description")
		candidates := o.Classify(ctx, product)
		if len(candidates) == 0 {
			report.Errors = append(report.Errors, "no classification possible for product text")
			report.Trace = append(report.Trace, "classification produced no candidates")
			return report
		}
		code = candidates[0].Code
		report.Trace = append(report.Trace,
			fmt.Sprintf("classified as %s (score %.2f)", code, candidates[0].Score))
	}
	if len(model.DigitsOf(code)) < minCodeDigits {
		report.Code = code
		report.Errors = append(report.Errors,
			fmt.Sprintf("invalid taxonomy code %q: need at least %d digits", code, minCodeDigits))
		return report
	}
	report.Code = code

	// SelectAgencies
	agencies, err := o.agencies.For(ctx, code, o.maxAgencies)
	if err != nil {
		report.Errors = append(report.Errors, fmt.Sprintf("select agencies: %s", err))
		return report
	}
	if len(agencies) == 0 {
		report.Errors = append(report.Errors, fmt.Sprintf("no agencies mapped for code %s", code))
		report.Trace = append(report.Trace, "no agencies selected")
		return report
	}
	for _, ag := range agencies {
		report.Agencies = append(report.Agencies, ag.ShortName)
	}
	report.Trace = append(report.Trace,
		fmt.Sprintf("selected %d agencies for %s", len(agencies), code))

	// Invoke
	outcomes := o.invokeAgencies(ctx, report, agencies, code, product)

	// Aggregate and Finalize
	o.aggregate(report, outcomes)
	report.Trace = append(report.Trace,
		fmt.Sprintf("resolution complete: confidence %.2f", report.Confidence))

	zap.L().Info("resolution finished",
		zap.String("report_id", report.ID),
		zap.String("code", code),
		zap.Int("working", len(report.Working)),
		zap.Int("failed", len(report.Failed)),
		zap.Float64("confidence", report.Confidence),
	)
	return report
}

// invokeAgencies fans out to the top-ranked source of each selected
// agency with bounded concurrency.
func (o *Orchestrator) invokeAgencies(ctx context.Context, report *model.Report, agencies []model.RankedAgency, code, product string) []agencyOutcome {
	ranked, err := o.sources.For(ctx, code)
	if err != nil {
		report.Errors = append(report.Errors, fmt.Sprintf("select sources: %s", err))
		return nil
	}

	var (
		mu       sync.Mutex
		outcomes []agencyOutcome
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(o.fanout)
	for _, ag := range agencies {
		src, ok := topSourceFor(ranked, ag.ShortName)
		if !ok {
			mu.Lock()
			report.Trace = append(report.Trace,
				fmt.Sprintf("%s: no applicable sources", ag.ShortName))
			mu.Unlock()
			continue
		}
		ag := ag
		g.Go(func() error {
			res := o.invoker.Invoke(gctx, src, code, product)
			mu.Lock()
			outcomes = append(outcomes, agencyOutcome{agency: ag, source: src, result: res})
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	return outcomes
}

// topSourceFor picks the highest-ranked source belonging to an agency.
func topSourceFor(ranked []model.Source, agencyShortName string) (model.Source, bool) {
	for _, src := range ranked {
		if strings.EqualFold(src.Agency, agencyShortName) {
			return src, true
		}
	}
	return model.Source{}, false
}

// aggregate synthesizes requirement line items from the invocation
// outcomes and computes the confidence score.
func (o *Orchestrator) aggregate(report *model.Report, outcomes []agencyOutcome) {
	seen := make(map[string]bool)
	add := func(list *[]model.RequirementItem, item model.RequirementItem) {
		key := item.Name + "|" + item.Agency
		if seen[key] {
			return
		}
		seen[key] = true
		*list = append(*list, item)
	}

	attempted, successes := 0, 0
	for _, oc := range outcomes {
		attempted++
		ag, res := oc.agency, oc.result

		if res.UsedFallback {
			report.Trace = append(report.Trace,
				fmt.Sprintf("%s: fallback %s used as source of truth", ag.ShortName, res.FallbackName))
		}

		if res.Outcome != model.OutcomeSuccess {
			failureCount := 0
			if res.Source != nil {
				failureCount = res.Source.FailureCount
			}
			report.Failed = append(report.Failed, model.SourceFailure{
				Agency:       ag.ShortName,
				Source:       oc.source.Name,
				Error:        res.Err,
				FailureCount: failureCount,
			})
			report.Trace = append(report.Trace,
				fmt.Sprintf("%s: %s via %s", ag.ShortName, res.Outcome, oc.source.Name))
			continue
		}

		successes++
		rate := oc.source.SuccessRate
		if res.Source != nil {
			rate = res.Source.SuccessRate
		}
		report.Working = append(report.Working, model.SourceResult{
			Agency:       ag.ShortName,
			Source:       oc.source.Name,
			URL:          oc.source.URL,
			Latency:      res.Latency,
			SuccessRate:  rate,
			UsedFallback: res.UsedFallback,
			FallbackName: res.FallbackName,
		})
		report.Trace = append(report.Trace,
			fmt.Sprintf("%s: success via %s", ag.ShortName, oc.source.Name))

		add(&report.Requirement.Certifications, model.RequirementItem{
			Name:        fmt.Sprintf("%s Compliance Certification", ag.ShortName),
			Agency:      ag.ShortName,
			Required:    true,
			Description: fmt.Sprintf("Certification of compliance with %s regulations", ag.Name),
		})
		add(&report.Requirement.Documents, model.RequirementItem{
			Name:     fmt.Sprintf("%s Import Documentation", ag.ShortName),
			Agency:   ag.ShortName,
			Required: true,
		})
		if ag.HasCategory("labeling") {
			add(&report.Requirement.Labeling, model.RequirementItem{
				Name:        fmt.Sprintf("%s Labeling Requirements", ag.ShortName),
				Agency:      ag.ShortName,
				Required:    true,
				Description: fmt.Sprintf("Product labeling rules enforced by %s", ag.Name),
			})
		}
		sourceURL := oc.source.URL
		if sourceURL == "" {
			sourceURL = ag.Website
		}
		add(&report.Requirement.Sources, model.RequirementItem{
			Name:   fmt.Sprintf("%s Source of Record", ag.ShortName),
			Agency: ag.ShortName,
			URL:    sourceURL,
		})
	}

	if attempted > 0 {
		report.Confidence = float64(successes) / float64(attempted)
		if successes == 0 {
			report.Errors = append(report.Errors, "all source invocations failed")
		}
	}
}
