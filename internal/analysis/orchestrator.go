// Package analysis runs the repository analysis pipeline: admit the API key, locate the
// repository, fetch its README and metadata, summarize, and charge the key once.
package analysis

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/dandi-dev/dandi/internal/db/models"
	"github.com/dandi-dev/dandi/internal/safego"
	"github.com/dandi-dev/dandi/internal/scm"
	"github.com/dandi-dev/dandi/internal/scm/github"
	"github.com/dandi-dev/dandi/internal/summarizer"
	"github.com/dandi-dev/dandi/internal/telemetry"
)

const defaultUsageTimeout = 5 * time.Second

// KeyLedger admits keys and charges usage.
type KeyLedger interface {
	Validate(ctx context.Context, rawKey string) (*models.APIKey, error)
	RecordUsage(ctx context.Context, keyID string)
}

// ReadmeFetcher retrieves README content. ok is false when no README could be found.
type ReadmeFetcher interface {
	FetchReadme(ctx context.Context, ref scm.RepositoryRef) (content string, ok bool)
}

// MetadataFetcher retrieves repository metadata. It never fails; missing parts are
// filled with placeholders.
type MetadataFetcher interface {
	FetchMetadata(ctx context.Context, ref scm.RepositoryRef) scm.Metadata
}

// Summarizer condenses README text. It never fails.
type Summarizer interface {
	Summarize(ctx context.Context, readme string) summarizer.Result
}

// Options tunes the pipeline.
type Options struct {
	// WithMetadata fetches repository metadata and adds it to every response.
	WithMetadata bool
	// UsageTimeout bounds the background usage increment.
	UsageTimeout time.Duration
}

// Orchestrator composes the pipeline stages.
type Orchestrator struct {
	ledger       KeyLedger
	readmes      ReadmeFetcher
	metadata     MetadataFetcher
	summarizer   Summarizer
	withMetadata bool
	usageTimeout time.Duration
}

// NewOrchestrator creates an Orchestrator. metadata may be nil when opts.WithMetadata is false.
func NewOrchestrator(ledger KeyLedger, readmes ReadmeFetcher, metadata MetadataFetcher, s Summarizer, opts Options) *Orchestrator {
	timeout := opts.UsageTimeout
	if timeout <= 0 {
		timeout = defaultUsageTimeout
	}
	return &Orchestrator{
		ledger:       ledger,
		readmes:      readmes,
		metadata:     metadata,
		summarizer:   s,
		withMetadata: opts.WithMetadata && metadata != nil,
		usageTimeout: timeout,
	}
}

// Response is a successful analysis. Metadata is nil unless the orchestrator was built
// WithMetadata.
type Response struct {
	summarizer.Result
	Metadata *scm.Metadata
}

// MarshalJSON flattens the metadata fields next to the summary.
func (r Response) MarshalJSON() ([]byte, error) {
	if r.Metadata == nil {
		return json.Marshal(r.Result)
	}
	return json.Marshal(struct {
		Summary       string      `json:"summary"`
		CoolFacts     []string    `json:"cool_facts"`
		Stars         int         `json:"stars"`
		LatestVersion string      `json:"latest_version"`
		Website       *string     `json:"website"`
		License       scm.License `json:"license"`
	}{
		Summary:       r.Summary,
		CoolFacts:     r.CoolFacts,
		Stars:         r.Metadata.Stars,
		LatestVersion: r.Metadata.LatestVersion,
		Website:       r.Metadata.Website,
		License:       r.Metadata.License,
	})
}

// ValidateKey admits rawKey without running an analysis.
func (o *Orchestrator) ValidateKey(ctx context.Context, rawKey string) (*models.APIKey, error) {
	key, err := o.ledger.Validate(ctx, rawKey)
	if err != nil {
		ae := fromLedger(err)
		logFailure(ae)
		return nil, ae
	}
	return key, nil
}

// Analyze runs the full pipeline for one request. The returned error is always an *Error.
func (o *Orchestrator) Analyze(ctx context.Context, rawKey, repositoryURL string) (*Response, error) {
	resp, err := o.analyze(ctx, rawKey, repositoryURL)
	if err != nil {
		telemetry.AnalysisRequestsTotal.WithLabelValues(string(err.Kind)).Inc()
		return nil, err
	}
	telemetry.AnalysisRequestsTotal.WithLabelValues("success").Inc()
	return resp, nil
}

func (o *Orchestrator) analyze(ctx context.Context, rawKey, repositoryURL string) (*Response, *Error) {
	key, err := o.ledger.Validate(ctx, rawKey)
	if err != nil {
		ae := fromLedger(err)
		logFailure(ae)
		return nil, ae
	}

	if repositoryURL == "" {
		return nil, newError(KindInvalidRepositoryURL, MsgMissingRepositoryURL, nil)
	}
	ref, err := github.ParseRepositoryURL(repositoryURL)
	if err != nil {
		return nil, newError(KindInvalidRepositoryURL, MsgInvalidRepositoryURL, err)
	}

	var (
		readme   string
		found    bool
		metadata scm.Metadata
	)
	var g errgroup.Group
	g.Go(func() error {
		readme, found = o.readmes.FetchReadme(ctx, ref)
		return nil
	})
	if o.withMetadata {
		g.Go(func() error {
			metadata = o.metadata.FetchMetadata(ctx, ref)
			return nil
		})
	}
	_ = g.Wait()

	if !found || readme == "" {
		slog.Info("analysis stopped: README not found", "repository", ref.String(), "key_id", key.ID)
		return nil, newError(KindReadmeNotFound, MsgReadmeNotFound, nil)
	}

	resp := &Response{Result: o.summarizer.Summarize(ctx, readme)}
	if o.withMetadata {
		resp.Metadata = &metadata
	}

	o.recordUsage(ctx, key.ID)

	slog.Info("analysis completed", "repository", ref.String(), "url", ref.HTMLURL(), "key_id", key.ID)
	return resp, nil
}

// recordUsage charges the key without holding up the response. The increment outlives
// the request context but not the usage timeout.
func (o *Orchestrator) recordUsage(ctx context.Context, keyID string) {
	bg := context.WithoutCancel(ctx)
	safego.Go("record-usage", func() {
		usageCtx, cancel := context.WithTimeout(bg, o.usageTimeout)
		defer cancel()
		o.ledger.RecordUsage(usageCtx, keyID)
	})
}

func logFailure(ae *Error) {
	if ae.Kind == KindInternal || ae.Kind == KindUpstreamConfiguration {
		slog.Error("api key validation failed", "kind", ae.Kind, "error", ae.Err)
	}
}
