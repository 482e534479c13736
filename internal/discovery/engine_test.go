package discovery

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/hr-contact-discovery/internal/progress"
)

type MockResolver struct {
	mock.Mock
}

func (m *MockResolver) Resolve(ctx context.Context, companyName string) Resolution {
	args := m.Called(ctx, companyName)
	return args.Get(0).(Resolution)
}

type MockPatterns struct {
	mock.Mock
}

func (m *MockPatterns) Generate(name, domain string) []Candidate {
	args := m.Called(name, domain)
	return args.Get(0).([]Candidate)
}

type MockCrawler struct {
	mock.Mock
}

func (m *MockCrawler) Crawl(ctx context.Context, domain string) []Candidate {
	args := m.Called(ctx, domain)
	return args.Get(0).([]Candidate)
}

type MockNames struct {
	mock.Mock
}

func (m *MockNames) Search(ctx context.Context, name string) []Candidate {
	args := m.Called(ctx, name)
	return args.Get(0).([]Candidate)
}

type fixedClock struct {
	now time.Time
}

func (c fixedClock) Now() time.Time { return c.now }

type fixedIDs struct{}

func (fixedIDs) NewID() (string, error) { return "0191e7a0-0000-7000-8000-000000000001", nil }

type recordingEmitter struct {
	mu     sync.Mutex
	events []progress.Event
}

func (r *recordingEmitter) Emit(evt progress.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, evt)
}

func (r *recordingEmitter) stages() []progress.Stage {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]progress.Stage, 0, len(r.events))
	for _, evt := range r.events {
		out = append(out, evt.Stage)
	}
	return out
}

type engineFixture struct {
	resolver *MockResolver
	patterns *MockPatterns
	crawler  *MockCrawler
	names    *MockNames
	emitter  *recordingEmitter
	engine   *Engine
}

func newEngineFixture(t *testing.T) *engineFixture {
	t.Helper()
	f := &engineFixture{
		resolver: &MockResolver{},
		patterns: &MockPatterns{},
		crawler:  &MockCrawler{},
		names:    &MockNames{},
		emitter:  &recordingEmitter{},
	}
	engine, err := NewEngine(EngineDeps{
		Resolver: f.resolver,
		Patterns: f.patterns,
		Crawler:  f.crawler,
		Names:    f.names,
		Clock:    fixedClock{now: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)},
		IDs:      fixedIDs{},
		Progress: f.emitter,
	})
	require.NoError(t, err)
	f.engine = engine
	return f
}

func (f *engineFixture) assertExpectations(t *testing.T) {
	t.Helper()
	f.resolver.AssertExpectations(t)
	f.patterns.AssertExpectations(t)
	f.crawler.AssertExpectations(t)
	f.names.AssertExpectations(t)
}

func TestNewEngineRequiresCollaborators(t *testing.T) {
	t.Parallel()

	_, err := NewEngine(EngineDeps{})
	require.Error(t, err)
}

func TestDiscoverEmptyRequestMakesNoCalls(t *testing.T) {
	t.Parallel()

	for _, req := range []Request{{}, {Name: "   ", CompanyName: "\t"}} {
		f := newEngineFixture(t)
		report, err := f.engine.Discover(context.Background(), req)
		require.NoError(t, err)
		require.Empty(t, report.Candidates)
		require.NotNil(t, report.Candidates)
		require.Empty(t, report.RunID)
		require.Empty(t, f.emitter.stages())
		f.resolver.AssertNotCalled(t, "Resolve", mock.Anything, mock.Anything)
		f.crawler.AssertNotCalled(t, "Crawl", mock.Anything, mock.Anything)
		f.names.AssertNotCalled(t, "Search", mock.Anything, mock.Anything)
	}
}

func TestDiscoverNameAndCompany(t *testing.T) {
	t.Parallel()

	f := newEngineFixture(t)
	f.resolver.On("Resolve", mock.Anything, "Acme Corp").
		Return(Resolution{Domain: "acme.com", Method: ResolutionSearch}).Once()
	f.patterns.On("Generate", "Jane Doe", "acme.com").Return([]Candidate{
		{Address: "hr@acme.com", Source: SourcePatternInference, Confidence: ConfidencePattern},
		{Address: "jane.doe@acme.com", Source: SourcePatternInference, Confidence: ConfidencePattern},
	}).Once()
	f.crawler.On("Crawl", mock.Anything, "acme.com").Return([]Candidate{
		{Address: "HR@acme.com", Source: SourceSiteCrawl, Confidence: ConfidenceSiteCrawl, FoundOn: "https://acme.com/"},
		{Address: "careers@acme.com", Source: SourceSiteCrawl, Confidence: ConfidenceSiteCrawl, FoundOn: "https://acme.com/jobs"},
	}).Once()

	report, err := f.engine.Discover(context.Background(), Request{Name: " Jane Doe ", CompanyName: "Acme Corp"})
	require.NoError(t, err)
	require.Equal(t, "acme.com", report.Domain)
	require.Equal(t, ResolutionSearch, report.DomainMethod)
	require.False(t, report.Partial)
	require.Equal(t, "Jane Doe", report.Request.Name)
	require.Equal(t, []Candidate{
		{Address: "hr@acme.com", Source: SourcePatternInference, Confidence: ConfidencePattern},
		{Address: "jane.doe@acme.com", Source: SourcePatternInference, Confidence: ConfidencePattern},
		{Address: "careers@acme.com", Source: SourceSiteCrawl, Confidence: ConfidenceSiteCrawl, FoundOn: "https://acme.com/jobs"},
	}, report.Candidates)
	f.names.AssertNotCalled(t, "Search", mock.Anything, mock.Anything)
	f.assertExpectations(t)

	require.Equal(t, []progress.Stage{
		progress.StageRunStart,
		progress.StageDomainResolved,
		progress.StageRunDone,
	}, f.emitter.stages())
}

func TestDiscoverCompanyOnlySkipsPatterns(t *testing.T) {
	t.Parallel()

	f := newEngineFixture(t)
	f.resolver.On("Resolve", mock.Anything, "Acme Corp").
		Return(Resolution{Domain: "acmecorp.com", Method: ResolutionFallback, Err: errors.New("no results")}).Once()
	f.crawler.On("Crawl", mock.Anything, "acmecorp.com").Return([]Candidate{}).Once()

	report, err := f.engine.Discover(context.Background(), Request{CompanyName: "Acme Corp"})
	require.NoError(t, err)
	require.Equal(t, "acmecorp.com", report.Domain)
	require.Equal(t, ResolutionFallback, report.DomainMethod)
	require.Empty(t, report.Candidates)
	f.patterns.AssertNotCalled(t, "Generate", mock.Anything, mock.Anything)
	f.names.AssertNotCalled(t, "Search", mock.Anything, mock.Anything)
	f.assertExpectations(t)
}

func TestDiscoverNameOnlyUsesWebSearch(t *testing.T) {
	t.Parallel()

	f := newEngineFixture(t)
	f.names.On("Search", mock.Anything, "Jane Doe").Return([]Candidate{
		{Address: "jane@doe.io", Source: SourceWebSearch, Confidence: ConfidenceWebSearch},
		{Address: "Jane@Doe.io", Source: SourceWebSearch, Confidence: ConfidenceWebSearch},
	}).Once()

	report, err := f.engine.Discover(context.Background(), Request{Name: "Jane Doe"})
	require.NoError(t, err)
	require.Empty(t, report.Domain)
	require.Equal(t, []Candidate{
		{Address: "jane@doe.io", Source: SourceWebSearch, Confidence: ConfidenceWebSearch},
	}, report.Candidates)
	f.resolver.AssertNotCalled(t, "Resolve", mock.Anything, mock.Anything)
	f.crawler.AssertNotCalled(t, "Crawl", mock.Anything, mock.Anything)
	f.assertExpectations(t)
}

func TestDiscoverDropsInvalidCollaboratorOutput(t *testing.T) {
	t.Parallel()

	f := newEngineFixture(t)
	f.names.On("Search", mock.Anything, "Jane").Return([]Candidate{
		{Address: "not-an-email", Source: SourceWebSearch, Confidence: ConfidenceWebSearch},
		{Address: "jane@doe.io", Source: SourceWebSearch, Confidence: 1.5},
		{Address: "hr@doe.io", Source: SourceWebSearch, Confidence: ConfidenceWebSearch},
	}).Once()

	report, err := f.engine.Discover(context.Background(), Request{Name: "Jane"})
	require.NoError(t, err)
	require.Len(t, report.Candidates, 1)
	require.Equal(t, "hr@doe.io", report.Candidates[0].Address)
}

func TestDiscoverCancellationReturnsPartialResults(t *testing.T) {
	t.Parallel()

	f := newEngineFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	f.resolver.On("Resolve", mock.Anything, "Acme").
		Return(Resolution{Domain: "acme.com", Method: ResolutionSearch}).Once()
	f.patterns.On("Generate", "Jane Doe", "acme.com").Return([]Candidate{
		{Address: "hr@acme.com", Source: SourcePatternInference, Confidence: ConfidencePattern},
	}).Once()
	f.crawler.On("Crawl", mock.Anything, "acme.com").
		Run(func(mock.Arguments) { cancel() }).
		Return([]Candidate{
			{Address: "jobs@acme.com", Source: SourceSiteCrawl, Confidence: ConfidenceSiteCrawl, FoundOn: "https://acme.com/"},
		}).Once()

	report, err := f.engine.Discover(ctx, Request{Name: "Jane Doe", CompanyName: "Acme"})
	require.ErrorIs(t, err, context.Canceled)
	require.True(t, report.Partial)
	require.Len(t, report.Candidates, 2)
	require.Equal(t, "jobs@acme.com", report.Candidates[1].Address)
	require.Equal(t, progress.StageRunDone, f.emitter.stages()[len(f.emitter.stages())-1])
}

func TestDiscoverCandidateInvariants(t *testing.T) {
	t.Parallel()

	f := newEngineFixture(t)
	f.resolver.On("Resolve", mock.Anything, "Acme").
		Return(Resolution{Domain: "acme.com", Method: ResolutionSearch}).Once()
	f.patterns.On("Generate", "Ann Lee", "acme.com").Return([]Candidate{
		{Address: "hr@acme.com", Source: SourcePatternInference, Confidence: ConfidencePattern},
		{Address: "ann.lee@acme.com", Source: SourcePatternInference, Confidence: ConfidencePattern},
	}).Once()
	f.crawler.On("Crawl", mock.Anything, "acme.com").Return([]Candidate{
		{Address: "ANN.LEE@acme.com", Source: SourceSiteCrawl, Confidence: ConfidenceSiteCrawl},
		{Address: "recruiting@acme.com", Source: SourceSiteCrawl, Confidence: ConfidenceSiteCrawl},
	}).Once()

	report, err := f.engine.Discover(context.Background(), Request{Name: "Ann Lee", CompanyName: "Acme"})
	require.NoError(t, err)

	seen := map[string]bool{}
	for _, c := range report.Candidates {
		key := c.Address
		require.False(t, seen[key], "duplicate %s", key)
		seen[key] = true
		require.GreaterOrEqual(t, c.Confidence, 0.0)
		require.LessOrEqual(t, c.Confidence, 1.0)
	}
	require.Len(t, report.Candidates, 3)
}

func TestDiscoverRunUsesCallerRunID(t *testing.T) {
	t.Parallel()

	f := newEngineFixture(t)
	f.names.On("Search", mock.Anything, "Jane Doe").Return([]Candidate{}).Once()

	const runID = "0191e7a0-0000-7000-8000-0000000000ff"
	report, err := f.engine.DiscoverRun(context.Background(), runID, Request{Name: "Jane Doe"})
	require.NoError(t, err)
	require.Equal(t, runID, report.RunID)

	f.emitter.mu.Lock()
	for _, evt := range f.emitter.events {
		require.Equal(t, runID, evt.RunUUID().String())
	}
	f.emitter.mu.Unlock()
	f.assertExpectations(t)
}
