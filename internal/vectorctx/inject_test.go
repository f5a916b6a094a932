package vectorctx

import (
	"context"
	"testing"

	"github.com/jfcostello/universal-llm-adapter-sub001/internal/embedding"
	"github.com/jfcostello/universal-llm-adapter-sub001/internal/types"
	"github.com/jfcostello/universal-llm-adapter-sub001/internal/vectorstore"
)

func TestBuildQueryHonorsWindowAndRoleFilters(t *testing.T) {
	messages := []types.Message{
		{Role: types.RoleSystem, Content: []types.ContentPart{types.Text("system prompt")}},
		{Role: types.RoleUser, Content: []types.ContentPart{types.Text("first question")}},
		{Role: types.RoleAssistant, Content: []types.ContentPart{types.Text("an answer")}},
		{Role: types.RoleUser, Content: []types.ContentPart{types.Text("second question")}},
	}

	qc := types.QueryConstruction{
		MessagesToInclude:       2,
		IncludeAssistantMessages: true,
		IncludeSystemPrompt:      types.IncludeSystemNever,
	}
	got := BuildQuery(messages, qc)
	want := "an answer\nsecond question"
	if got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}

func TestBuildQueryExcludesAssistantWhenDisabled(t *testing.T) {
	messages := []types.Message{
		{Role: types.RoleUser, Content: []types.ContentPart{types.Text("q1")}},
		{Role: types.RoleAssistant, Content: []types.ContentPart{types.Text("a1")}},
	}
	qc := types.QueryConstruction{MessagesToInclude: 2, IncludeAssistantMessages: false}
	got := BuildQuery(messages, qc)
	if got != "q1" {
		t.Fatalf("expected assistant message excluded, got %q", got)
	}
}

func TestBuildQueryZeroMessagesToIncludeUsesAll(t *testing.T) {
	messages := []types.Message{
		{Role: types.RoleUser, Content: []types.ContentPart{types.Text("q1")}},
		{Role: types.RoleUser, Content: []types.ContentPart{types.Text("q2")}},
	}
	got := BuildQuery(messages, types.QueryConstruction{})
	if got != "q1\nq2" {
		t.Fatalf("got %q", got)
	}
}

type stubProvider struct {
	vector []float64
	err    error
}

func (p *stubProvider) ID() string { return "stub-embed" }
func (p *stubProvider) Embed(ctx context.Context, texts []string) ([][]float64, error) {
	if p.err != nil {
		return nil, p.err
	}
	out := make([][]float64, len(texts))
	for i := range texts {
		out[i] = p.vector
	}
	return out, nil
}

type stubStore struct {
	id   string
	docs []vectorstore.Document
	err  error
}

func (s *stubStore) ID() string { return s.id }
func (s *stubStore) Search(ctx context.Context, req vectorstore.SearchRequest) ([]vectorstore.Document, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.docs, nil
}

func TestRetrieveMergesStoresAndCapsTopK(t *testing.T) {
	embed := &stubProvider{vector: []float64{0.1, 0.2}}
	storeA := &stubStore{id: "a", docs: []vectorstore.Document{{ID: "1", Content: "doc1"}, {ID: "2", Content: "doc2"}}}
	storeB := &stubStore{id: "b", docs: []vectorstore.Document{{ID: "3", Content: "doc3"}}}

	inj := New(
		func(id string) (vectorstore.VectorStore, error) {
			if id == "a" {
				return storeA, nil
			}
			return storeB, nil
		},
		func(id string) (embedding.Provider, error) { return embed, nil },
	)

	cfg := types.VectorContextConfig{
		Stores:            []string{"a", "b"},
		TopK:              2,
		EmbeddingPriority: []string{"emb1"},
	}
	docs, err := inj.Retrieve(context.Background(), cfg, "some query")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(docs) != 2 {
		t.Fatalf("expected topK to cap the merged result at 2, got %d", len(docs))
	}
}

func TestRetrieveLocksOverrideConfig(t *testing.T) {
	embed := &stubProvider{vector: []float64{1}}
	storeA := &stubStore{id: "a", docs: []vectorstore.Document{{ID: "1", Content: "from-a"}}}
	storeLocked := &stubStore{id: "locked", docs: []vectorstore.Document{{ID: "2", Content: "from-locked"}}}

	stores := map[string]*stubStore{"a": storeA, "locked": storeLocked}
	inj := New(
		func(id string) (vectorstore.VectorStore, error) { return stores[id], nil },
		func(id string) (embedding.Provider, error) { return embed, nil },
	)

	cfg := types.VectorContextConfig{
		Stores:            []string{"a"},
		TopK:              5,
		EmbeddingPriority: []string{"emb1"},
		Locks:             types.VectorLocks{Store: "locked"},
	}
	docs, err := inj.Retrieve(context.Background(), cfg, "q")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(docs) != 1 || docs[0].Content != "from-locked" {
		t.Fatalf("expected the locked store to win over configured stores, got %+v", docs)
	}
}

func TestRetrieveReturnsNilWhenQueryEmpty(t *testing.T) {
	inj := New(
		func(id string) (vectorstore.VectorStore, error) { return nil, nil },
		func(id string) (embedding.Provider, error) { return nil, nil },
	)
	docs, err := inj.Retrieve(context.Background(), types.VectorContextConfig{}, "")
	if err != nil || docs != nil {
		t.Fatalf("expected a no-op for an empty query, got docs=%v err=%v", docs, err)
	}
}

func TestRetrieveErrorsWhenNoEmbeddingProviderAvailable(t *testing.T) {
	inj := New(
		func(id string) (vectorstore.VectorStore, error) { return nil, nil },
		func(id string) (embedding.Provider, error) { return nil, errUnavailable{} },
	)
	cfg := types.VectorContextConfig{EmbeddingPriority: []string{"missing"}}
	if _, err := inj.Retrieve(context.Background(), cfg, "q"); err == nil {
		t.Fatal("expected an error when no embedding provider resolves")
	}
}

type errUnavailable struct{}

func (errUnavailable) Error() string { return "unavailable" }

func TestInjectAsSystemPrependsSystemMessage(t *testing.T) {
	messages := []types.Message{
		{Role: types.RoleUser, Content: []types.ContentPart{types.Text("hi")}},
	}
	docs := []vectorstore.Document{{Content: "retrieved passage"}}
	out := Inject(messages, types.VectorContextConfig{InjectAs: types.InjectAsSystem}, docs)

	if len(out) != 2 {
		t.Fatalf("expected a prepended system message, got %d messages", len(out))
	}
	if out[0].Role != types.RoleSystem || out[0].TextContent() != "retrieved passage" {
		t.Fatalf("unexpected prepended message: %+v", out[0])
	}
	if out[1].Role != types.RoleUser {
		t.Fatal("expected the original user message to follow")
	}
}

func TestInjectAsUserContextAppendsToLastUserMessage(t *testing.T) {
	messages := []types.Message{
		{Role: types.RoleUser, Content: []types.ContentPart{types.Text("first")}},
		{Role: types.RoleAssistant, Content: []types.ContentPart{types.Text("reply")}},
		{Role: types.RoleUser, Content: []types.ContentPart{types.Text("second")}},
	}
	docs := []vectorstore.Document{{Content: "context"}}
	out := Inject(messages, types.VectorContextConfig{InjectAs: types.InjectAsUserContext}, docs)

	if len(out) != 3 {
		t.Fatalf("expected message count unchanged, got %d", len(out))
	}
	last := out[2].TextContent()
	if last != "second\n\ncontext" {
		t.Fatalf("expected context appended to the last user message, got %q", last)
	}
	if out[0].TextContent() != "first" {
		t.Fatal("expected earlier messages left untouched")
	}
}

func TestInjectNoDocsIsNoOp(t *testing.T) {
	messages := []types.Message{{Role: types.RoleUser, Content: []types.ContentPart{types.Text("hi")}}}
	out := Inject(messages, types.VectorContextConfig{InjectAs: types.InjectAsSystem}, nil)
	if len(out) != 1 {
		t.Fatal("expected no-op when there are no retrieved documents")
	}
}

func TestInjectTemplateInterpolatesPayloadFields(t *testing.T) {
	messages := []types.Message{{Role: types.RoleUser, Content: []types.ContentPart{types.Text("hi")}}}
	docs := []vectorstore.Document{{ID: "doc-1", Content: "the body", Score: 0.87}}
	cfg := types.VectorContextConfig{
		InjectAs:       types.InjectAsSystem,
		InjectTemplate: "[{{payload.id}}] {{payload.content}} ({{payload.score}})",
	}
	out := Inject(messages, cfg, docs)
	if out[0].TextContent() != "[doc-1] the body (0.87)" {
		t.Fatalf("unexpected rendered template: %q", out[0].TextContent())
	}
}

func TestInjectTemplateMissingPathRendersEmpty(t *testing.T) {
	messages := []types.Message{{Role: types.RoleUser, Content: []types.ContentPart{types.Text("hi")}}}
	docs := []vectorstore.Document{{ID: "doc-1", Content: "body"}}
	cfg := types.VectorContextConfig{
		InjectAs:       types.InjectAsSystem,
		InjectTemplate: "id={{payload.id}} missing={{payload.nope.deep}}",
	}
	out := Inject(messages, cfg, docs)
	if out[0].TextContent() != "id=doc-1 missing=" {
		t.Fatalf("expected a missing path to render empty, got %q", out[0].TextContent())
	}
}
