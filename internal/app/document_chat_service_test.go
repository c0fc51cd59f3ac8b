package app

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gopherai-docchat/internal/model"
	"gopherai-docchat/internal/pkg/jwtutil"
	"gopherai-docchat/internal/pkg/pdfextract/pdftest"
	"gopherai-docchat/internal/repository"
)

type gatewayCall struct {
	documentText string
	history      []model.Turn
	question     string
}

type fakeGateway struct {
	mu     sync.Mutex
	calls  []gatewayCall
	err    error
	chunks []string
	delay  time.Duration
}

func (g *fakeGateway) record(documentText string, history []model.Turn, question string) error {
	if g.delay > 0 {
		time.Sleep(g.delay)
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	g.calls = append(g.calls, gatewayCall{
		documentText: documentText,
		history:      append([]model.Turn(nil), history...),
		question:     question,
	})
	return g.err
}

func (g *fakeGateway) Ask(_ context.Context, documentText string, history []model.Turn, question string) (string, error) {
	if err := g.record(documentText, history, question); err != nil {
		return "", err
	}
	return "answer to " + question, nil
}

func (g *fakeGateway) AskStream(_ context.Context, documentText string, history []model.Turn, question string, onChunk func(string) error) (string, error) {
	if err := g.record(documentText, history, question); err != nil {
		return "", err
	}
	var full strings.Builder
	for _, chunk := range g.chunks {
		if err := onChunk(chunk); err != nil {
			return "", err
		}
		full.WriteString(chunk)
	}
	return full.String(), nil
}

func (g *fakeGateway) callCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.calls)
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []model.TurnEvent
	err    error
}

func (p *recordingPublisher) Publish(_ context.Context, event model.TurnEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
	return p.err
}

type serviceFixture struct {
	service   *DocumentChatService
	store     *repository.ConversationRepository
	gateway   *fakeGateway
	publisher *recordingPublisher
}

func newFixture(t *testing.T) *serviceFixture {
	t.Helper()
	tokens, err := jwtutil.NewSessionTokens("test-secret", 0)
	require.NoError(t, err)
	f := &serviceFixture{
		store:     repository.NewConversationRepository(),
		gateway:   &fakeGateway{},
		publisher: &recordingPublisher{},
	}
	f.service = NewDocumentChatService(f.store, f.gateway, tokens, f.publisher, nil)
	return f
}

func (f *serviceFixture) upload(t *testing.T, token string, pages ...string) *UploadResult {
	t.Helper()
	res, err := f.service.Upload(context.Background(), UploadInput{
		Filename:     "handbook.pdf",
		Content:      bytes.NewReader(pdftest.Build(pages...)),
		SessionToken: token,
	})
	require.NoError(t, err)
	return res
}

func TestUploadCreatesSession(t *testing.T) {
	f := newFixture(t)

	res := f.upload(t, "", "Vacation policy", "Twenty days per year")

	assert.NotEmpty(t, res.SessionToken)
	assert.NotEmpty(t, res.SessionID)
	assert.Equal(t, "handbook.pdf", res.Document.Filename)
	assert.Equal(t, 2, res.Document.Pages)
	assert.Len(t, res.Document.Fingerprint, 64)
	assert.Equal(t, res.Document.Characters(), res.Characters)
	assert.Equal(t, 1, f.store.Len())

	doc, err := f.store.Document(context.Background(), res.SessionID)
	require.NoError(t, err)
	assert.Contains(t, doc.Text, "Vacation policy")
	assert.Contains(t, doc.Text, "Twenty days per year")
}

func TestUploadRejectsBadFiles(t *testing.T) {
	cases := []struct {
		name     string
		filename string
		content  []byte
		want     error
	}{
		{name: "wrong extension", filename: "notes.txt", content: pdftest.Build("text"), want: model.ErrExtraction},
		{name: "not a pdf", filename: "fake.pdf", content: []byte("just some text"), want: model.ErrExtraction},
		{name: "no text layer", filename: "scan.pdf", content: pdftest.Build(""), want: model.ErrExtraction},
		{name: "missing filename", filename: "", content: pdftest.Build("text"), want: model.ErrInvalidInput},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f := newFixture(t)
			_, err := f.service.Upload(context.Background(), UploadInput{
				Filename: tc.filename,
				Content:  bytes.NewReader(tc.content),
			})
			assert.ErrorIs(t, err, tc.want)
			assert.Zero(t, f.store.Len())
		})
	}
}

func TestUploadWithUnknownTokenFails(t *testing.T) {
	f := newFixture(t)
	_, err := f.service.Upload(context.Background(), UploadInput{
		Filename:     "a.pdf",
		Content:      bytes.NewReader(pdftest.Build("text")),
		SessionToken: "not-a-token",
	})
	assert.ErrorIs(t, err, model.ErrSessionNotFound)
	assert.Zero(t, f.store.Len())
}

func TestAskBuildsOnHistory(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	up := f.upload(t, "", "The office opens at nine.")

	for i := 0; i < 3; i++ {
		res, err := f.service.Ask(ctx, AskInput{SessionToken: up.SessionToken, Question: fmt.Sprintf("  question %d ", i)})
		require.NoError(t, err)
		assert.Equal(t, fmt.Sprintf("answer to question %d", i), res.Answer)
		assert.Equal(t, i, res.Turn.Index)
		assert.Equal(t, up.SessionID, res.SessionID)
	}

	require.Len(t, f.gateway.calls, 3)
	for i, call := range f.gateway.calls {
		assert.Contains(t, call.documentText, "The office opens at nine.")
		assert.Equal(t, fmt.Sprintf("question %d", i), call.question)
		require.Len(t, call.history, i)
		for j, turn := range call.history {
			assert.Equal(t, j, turn.Index)
			assert.Equal(t, fmt.Sprintf("question %d", j), turn.Question)
		}
	}

	hist, err := f.service.History(ctx, up.SessionToken)
	require.NoError(t, err)
	require.Len(t, hist.Turns, 3)
	assert.Equal(t, "handbook.pdf", hist.Document.Filename)
}

func TestAskValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	up := f.upload(t, "", "text")

	_, err := f.service.Ask(ctx, AskInput{SessionToken: up.SessionToken, Question: "   "})
	assert.ErrorIs(t, err, model.ErrInvalidInput)

	_, err = f.service.Ask(ctx, AskInput{SessionToken: "", Question: "hi"})
	assert.ErrorIs(t, err, model.ErrSessionNotFound)

	_, err = f.service.Ask(ctx, AskInput{SessionToken: "garbage", Question: "hi"})
	assert.ErrorIs(t, err, model.ErrSessionNotFound)

	assert.Zero(t, f.gateway.callCount())
}

func TestAskTokenFromOtherDeploymentIsRejected(t *testing.T) {
	f := newFixture(t)
	f.upload(t, "", "text")

	other, err := jwtutil.NewSessionTokens("other-secret", 0)
	require.NoError(t, err)
	forged, err := other.Issue("some-session")
	require.NoError(t, err)

	_, err = f.service.Ask(context.Background(), AskInput{SessionToken: forged, Question: "hi"})
	assert.ErrorIs(t, err, model.ErrSessionNotFound)
}

func TestAskGatewayFailureLeavesHistoryUntouched(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	up := f.upload(t, "", "text")

	_, err := f.service.Ask(ctx, AskInput{SessionToken: up.SessionToken, Question: "first"})
	require.NoError(t, err)

	f.gateway.err = errors.New("upstream timeout")
	_, err = f.service.Ask(ctx, AskInput{SessionToken: up.SessionToken, Question: "second"})
	require.Error(t, err)
	assert.ErrorIs(t, err, model.ErrGateway)
	assert.Contains(t, err.Error(), "upstream timeout")

	hist, err := f.service.History(ctx, up.SessionToken)
	require.NoError(t, err)
	require.Len(t, hist.Turns, 1)
	assert.Equal(t, "first", hist.Turns[0].Question)
	assert.Len(t, f.publisher.events, 1)
}

func TestAskStreamForwardsChunks(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	up := f.upload(t, "", "text")
	f.gateway.chunks = []string{"Hel", "lo ", "there"}

	var got []string
	res, err := f.service.AskStream(ctx, AskInput{SessionToken: up.SessionToken, Question: "greet"}, func(chunk string) error {
		got = append(got, chunk)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"Hel", "lo ", "there"}, got)
	assert.Equal(t, "Hello there", res.Answer)
	assert.Equal(t, 0, res.Turn.Index)

	_, err = f.service.AskStream(ctx, AskInput{SessionToken: up.SessionToken, Question: "again"}, nil)
	assert.ErrorIs(t, err, model.ErrInvalidInput)
}

func TestAskStreamAbortedByClient(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	up := f.upload(t, "", "text")
	f.gateway.chunks = []string{"a", "b"}

	gone := errors.New("client gone")
	_, err := f.service.AskStream(ctx, AskInput{SessionToken: up.SessionToken, Question: "q"}, func(string) error {
		return gone
	})
	assert.ErrorIs(t, err, gone)
	assert.ErrorIs(t, err, model.ErrGateway)

	hist, err := f.service.History(ctx, up.SessionToken)
	require.NoError(t, err)
	assert.Empty(t, hist.Turns)
}

func TestReuploadReplacesDocumentAndClearsHistory(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	first := f.upload(t, "", "old content")
	_, err := f.service.Ask(ctx, AskInput{SessionToken: first.SessionToken, Question: "q"})
	require.NoError(t, err)

	second := f.upload(t, first.SessionToken, "new content")
	assert.Equal(t, first.SessionID, second.SessionID)
	assert.Equal(t, 1, f.store.Len())

	hist, err := f.service.History(ctx, second.SessionToken)
	require.NoError(t, err)
	assert.Empty(t, hist.Turns)

	_, err = f.service.Ask(ctx, AskInput{SessionToken: first.SessionToken, Question: "next"})
	require.NoError(t, err)
	last := f.gateway.calls[len(f.gateway.calls)-1]
	assert.Contains(t, last.documentText, "new content")
	assert.NotContains(t, last.documentText, "old content")
	assert.Empty(t, last.history)
}

func TestSessionsAreIsolated(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.upload(t, "", "alpha document")
	b := f.upload(t, "", "beta document")
	assert.NotEqual(t, a.SessionID, b.SessionID)

	_, err := f.service.Ask(ctx, AskInput{SessionToken: a.SessionToken, Question: "about alpha"})
	require.NoError(t, err)
	_, err = f.service.Ask(ctx, AskInput{SessionToken: b.SessionToken, Question: "about beta"})
	require.NoError(t, err)

	last := f.gateway.calls[1]
	assert.Contains(t, last.documentText, "beta document")
	assert.Empty(t, last.history)

	histA, err := f.service.History(ctx, a.SessionToken)
	require.NoError(t, err)
	require.Len(t, histA.Turns, 1)
	assert.Equal(t, "about alpha", histA.Turns[0].Question)
}

func TestResetForgetsSession(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	up := f.upload(t, "", "text")

	require.NoError(t, f.service.Reset(ctx, up.SessionToken))
	assert.Zero(t, f.store.Len())

	_, err := f.service.Ask(ctx, AskInput{SessionToken: up.SessionToken, Question: "hi"})
	assert.ErrorIs(t, err, model.ErrSessionNotFound)
	assert.ErrorIs(t, f.service.Reset(ctx, up.SessionToken), model.ErrSessionNotFound)
}

func TestConcurrentAsksInOneSessionAreSerialized(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	up := f.upload(t, "", "text")
	f.gateway.delay = 2 * time.Millisecond

	const n = 8
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := f.service.Ask(ctx, AskInput{SessionToken: up.SessionToken, Question: fmt.Sprintf("q%d", i)})
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	hist, err := f.service.History(ctx, up.SessionToken)
	require.NoError(t, err)
	require.Len(t, hist.Turns, n)

	// each call saw every earlier turn
	seen := make([]int, 0, n)
	for _, call := range f.gateway.calls {
		seen = append(seen, len(call.history))
	}
	for i := range seen {
		assert.Equal(t, i, seen[i])
	}
	for i, turn := range hist.Turns {
		assert.Equal(t, i, turn.Index)
	}
}

func TestPublisherReceivesTurnsAndFailuresAreIgnored(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	up := f.upload(t, "", "text")

	_, err := f.service.Ask(ctx, AskInput{SessionToken: up.SessionToken, Question: "one"})
	require.NoError(t, err)

	f.publisher.err = errors.New("broker down")
	res, err := f.service.Ask(ctx, AskInput{SessionToken: up.SessionToken, Question: "two"})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Turn.Index)

	require.Len(t, f.publisher.events, 2)
	event := f.publisher.events[1]
	assert.Equal(t, up.SessionID, event.SessionID)
	assert.Equal(t, "handbook.pdf", event.Filename)
	assert.Equal(t, up.Document.Fingerprint, event.Fingerprint)
	assert.Equal(t, 1, event.Index)
	assert.Equal(t, "two", event.Question)
	assert.Equal(t, "answer to two", event.Answer)
}

func TestServiceWithoutPublisher(t *testing.T) {
	tokens, err := jwtutil.NewSessionTokens("", time.Hour)
	require.NoError(t, err)
	svc := NewDocumentChatService(repository.NewConversationRepository(), &fakeGateway{}, tokens, nil, nil)

	up, err := svc.Upload(context.Background(), UploadInput{
		Filename: "x.pdf",
		Content:  bytes.NewReader(pdftest.Build("text")),
	})
	require.NoError(t, err)
	_, err = svc.Ask(context.Background(), AskInput{SessionToken: up.SessionToken, Question: "q"})
	assert.NoError(t, err)
}
