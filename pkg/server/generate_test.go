package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/openai/openai-go/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"taleweaver/pkg/inference"
	"taleweaver/pkg/inference/mocks"
	"taleweaver/pkg/metrics"
	"taleweaver/pkg/queue"
	"taleweaver/pkg/schema"
	"taleweaver/pkg/store"
)

type countingGenerator struct {
	calls atomic.Int32
}

func (g *countingGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	g.calls.Add(1)
	return "http://img/" + uuid.NewString() + ".webp", nil
}

type fixture struct {
	srv    *Server
	store  *store.Memory
	images *countingGenerator
}

func newFixture(t *testing.T, providers ...inference.Inferencer) *fixture {
	t.Helper()
	mem := store.NewMemory()
	gen := &countingGenerator{}
	q := queue.New(gen, mem, nil, queue.Options{Placeholder: "http://img/placeholder.jpg"})
	q.Start()
	t.Cleanup(func() {
		q.Stop()
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = q.Wait(ctx)
	})

	var chain *inference.Chain
	if len(providers) > 0 {
		chain = inference.NewChain(nil, providers...)
	}
	srv, err := NewServer(Options{
		Metrics: metrics.New(),
		Store:   mem,
		Chain:   chain,
		Queue:   q,
	})
	require.NoError(t, err)
	return &fixture{srv: srv, store: mem, images: gen}
}

func (f *fixture) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	f.srv.Echo.ServeHTTP(rec, req)
	return rec
}

func (f *fixture) generate(t *testing.T, body string) schema.GenerateResponse {
	t.Helper()
	rec := f.do(t, http.MethodPost, "/api/generate", body)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var resp schema.GenerateResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp
}

func storyCall(m *mocks.MockInferencer) *mock.Call {
	return m.On("Infer", mock.Anything, mock.Anything,
		mock.MatchedBy(func(system string) bool { return strings.Contains(system, "storyteller") }),
		mock.Anything)
}

func choiceCall(m *mocks.MockInferencer) *mock.Call {
	return m.On("Infer", mock.Anything, mock.Anything,
		mock.MatchedBy(func(system string) bool { return strings.Contains(system, "three choices a young reader") }),
		mock.Anything)
}

func TestGenerateRejectsOtherMethods(t *testing.T) {
	f := newFixture(t)
	for _, method := range []string{http.MethodGet, http.MethodPut, http.MethodDelete} {
		rec := f.do(t, method, "/api/generate", "")
		assert.Equal(t, http.StatusMethodNotAllowed, rec.Code, method)
	}
}

func TestGenerateBadRequests(t *testing.T) {
	f := newFixture(t)
	cases := map[string]string{
		"malformed json": `{"prompt": "a fox`,
		"missing prompt": `{"age":"4-6","genre":"fantasy-magic"}`,
		"blank prompt":   `{"prompt":"   "}`,
		"bad story id":   `{"prompt":"a fox","storyId":"not-a-uuid"}`,
		"bad parent id":  `{"prompt":"a fox","parentSegmentId":"nope"}`,
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			rec := f.do(t, http.MethodPost, "/api/generate", body)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
		})
	}
}

func TestGenerateUnknownParent(t *testing.T) {
	f := newFixture(t)
	rec := f.do(t, http.MethodPost, "/api/generate", `{"prompt":"a fox","parentSegmentId":"`+uuid.NewString()+`"}`)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestGenerateServesMockWhenProvidersFail(t *testing.T) {
	primary := mocks.NewMockInferencer(t, "ovh")
	secondary := mocks.NewMockInferencer(t, "openai")
	primary.On("Infer", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return("", errors.New("503")).Once()
	secondary.On("Infer", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return("", errors.New("503")).Once()
	f := newFixture(t, primary, secondary)

	resp := f.generate(t, `{"prompt":"a fox finds a key","age":"7-9","genre":"fantasy-magic"}`)
	assert.Equal(t, MockStory, resp.Text)
	assert.Equal(t, []string{"Explore the garden", "Make new friends", "Share with others"}, resp.Choices)
	assert.NotEmpty(t, resp.ID)
	assert.NotEmpty(t, resp.StoryID)
}

func TestGenerateWithoutProviders(t *testing.T) {
	f := newFixture(t)
	resp := f.generate(t, `{"prompt":"a fox finds a key","skipImage":true}`)
	assert.Equal(t, MockStory, resp.Text)
	assert.Equal(t, MockChoices, resp.Choices)
}

func TestGenerateSkipImage(t *testing.T) {
	f := newFixture(t)
	resp := f.generate(t, `{"prompt":"a fox finds a key","skipImage":true}`)
	assert.Equal(t, schema.ImageSkipped, resp.ImageStatus)
	assert.False(t, resp.IsImageGenerating)
	assert.Empty(t, resp.ImageURL)

	time.Sleep(50 * time.Millisecond)
	assert.Zero(t, f.images.calls.Load())

	seg, err := f.store.GetSegment(context.Background(), uuid.MustParse(resp.ID))
	require.NoError(t, err)
	assert.Equal(t, schema.ImageSkipped, seg.ImageStatus)
}

func TestGenerateSuccess(t *testing.T) {
	inf := mocks.NewMockInferencer(t, "ovh")
	storyCall(inf).Return(`{"text":"Pip the fox found a golden key. Pip did not want to fight anyone.","choices":["a","b","c"],"image_prompt":"A fox holding a golden key","is_end":false}`, nil).Once()
	choiceCall(inf).Return(`{"choices":["Ask Pip about the key","Look behind the oak tree","Draw a map of the garden"],"reasoning":["x","y","z"],"choiceTypes":["character","exploration","creative"]}`, nil).Once()
	f := newFixture(t, inf)

	resp := f.generate(t, `{"prompt":"a fox finds a key","age":"4-6","genre":"animal-friends"}`)
	assert.Contains(t, resp.Text, "golden key")
	assert.NotContains(t, resp.Text, "fight")
	assert.Equal(t, []string{"Ask Pip about the key", "Look behind the oak tree", "Draw a map of the garden"}, resp.Choices)
	assert.Equal(t, schema.ImagePending, resp.ImageStatus)
	assert.True(t, resp.IsImageGenerating)
	assert.Equal(t, "http://img/placeholder.jpg", resp.ImageURL)

	id := uuid.MustParse(resp.ID)
	assert.Eventually(t, func() bool {
		seg, err := f.store.GetSegment(context.Background(), id)
		return err == nil && seg.ImageStatus == schema.ImageCompleted && strings.HasSuffix(seg.ImageURL, ".webp")
	}, time.Second, 10*time.Millisecond)
	assert.Equal(t, int32(1), f.images.calls.Load())

	story, err := f.store.GetStory(context.Background(), uuid.MustParse(resp.StoryID))
	require.NoError(t, err)
	assert.Equal(t, "animal-friends", story.Mode)
	assert.Equal(t, 1, story.SegmentCount)
}

func TestGenerateContinuesFromParent(t *testing.T) {
	inf := mocks.NewMockInferencer(t, "ovh")
	storyCall(inf).Return(`{"text":"Mia walked into the castle and felt curious.","choices":[],"image_prompt":"","is_end":false}`, nil).Once()
	storyCall(inf).Return("Mia opened the door and found a friendly dragon.", nil).Once()
	choiceCall(inf).Return(`{"choices":["Say hello to the dragon","Walk to the tower","Paint the castle"]}`, nil).Twice()
	f := newFixture(t, inf)

	first := f.generate(t, `{"prompt":"a girl visits a castle","skipImage":true}`)
	second := f.generate(t, `{"prompt":"a girl visits a castle","skipImage":true,"parentSegmentId":"`+first.ID+`","choiceText":"Open the door"}`)

	assert.Equal(t, first.StoryID, second.StoryID)
	assert.Equal(t, "Mia opened the door and found a friendly dragon.", second.Text)

	seg, err := f.store.GetSegment(context.Background(), uuid.MustParse(second.ID))
	require.NoError(t, err)
	assert.Equal(t, 1, seg.Position)
	require.NotNil(t, seg.ParentID)
	assert.Equal(t, first.ID, seg.ParentID.String())
	assert.Equal(t, "Open the door", seg.ChoiceText)

	// The continuation prompt carries the earlier segment.
	var user string
	for _, call := range inf.Calls {
		if system := call.Arguments.String(2); strings.Contains(system, "storyteller") {
			user = call.Arguments.String(3)
		}
	}
	assert.Contains(t, user, "Mia walked into the castle")
	assert.Contains(t, user, "THE READER CHOSE: Open the door")
}

func TestGenerateMarksChoicesRepeatedFromEarlierSegments(t *testing.T) {
	inf := mocks.NewMockInferencer(t, "ovh")
	storyCall(inf).Return("Leo the bear woke up beside a sparkling river.", nil).Once()
	storyCall(inf).Return("Leo waved at the owl, who hooted a happy song.", nil).Once()
	storyCall(inf).Return("Leo and the owl sat together on a mossy log.", nil).Once()
	choiceCall(inf).Return(`{"choices":["Explore the cave by the river","Wave at the owl","Sing a song"]}`, nil).Once()
	choiceCall(inf).Return(`{"choices":["Climb the hill","Ask the owl a riddle","Build a raft"]}`, nil).Once()
	choiceCall(inf).Return(`{"choices":["Explore the cave again","Look for berries","Draw a picture"]}`, nil).Once()
	f := newFixture(t, inf)

	first := f.generate(t, `{"prompt":"a bear by a river","skipImage":true}`)
	second := f.generate(t, `{"prompt":"a bear by a river","skipImage":true,"parentSegmentId":"`+first.ID+`","choiceText":"Wave at the owl"}`)
	third := f.generate(t, `{"prompt":"a bear by a river","skipImage":true,"parentSegmentId":"`+second.ID+`","choiceText":"Ask the owl a riddle"}`)

	assert.Equal(t, "Climb the hill", second.Choices[0])
	require.Len(t, third.Choices, 3)
	assert.Equal(t, "Try something different: Explore the cave again", third.Choices[0])
	assert.Equal(t, "Look for berries", third.Choices[1])
}

func TestPreviousChoicesCoverLineage(t *testing.T) {
	history := []schema.Segment{
		{Choices: []string{"a", "b", "c"}},
		{ChoiceText: "b", Choices: []string{"d", "e", "f"}},
	}
	assert.Equal(t, []string{"a", "b", "c", "d", "e", "f", "b"}, previousChoices(history))
	assert.Empty(t, previousChoices(nil))
}

func TestGetEndpoints(t *testing.T) {
	f := newFixture(t)
	resp := f.generate(t, `{"prompt":"a fox finds a key","skipImage":true}`)

	rec := f.do(t, http.MethodGet, "/api/segments/"+resp.ID, "")
	require.Equal(t, http.StatusOK, rec.Code)
	var seg schema.Segment
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &seg))
	assert.Equal(t, MockStory, seg.Text)

	rec = f.do(t, http.MethodGet, "/api/stories/"+resp.StoryID, "")
	assert.Equal(t, http.StatusOK, rec.Code)

	assert.Equal(t, http.StatusNotFound, f.do(t, http.MethodGet, "/api/segments/"+uuid.NewString(), "").Code)
	assert.Equal(t, http.StatusBadRequest, f.do(t, http.MethodGet, "/api/stories/abc", "").Code)
	assert.Equal(t, http.StatusOK, f.do(t, http.MethodGet, "/", "").Code)
	assert.Equal(t, http.StatusOK, f.do(t, http.MethodGet, "/metrics", "").Code)
}

func TestGenerateStructuredOutputs(t *testing.T) {
	inf := mocks.NewMockInferencer(t, "openai")
	inf.On("Infer", mock.Anything,
		mock.MatchedBy(func(p *openai.ChatCompletionNewParams) bool {
			return p != nil && p.ResponseFormat.OfJSONSchema != nil
		}),
		mock.MatchedBy(func(system string) bool { return strings.Contains(system, "storyteller") }),
		mock.Anything,
	).Return(`{"text":"Pip waved hello to the moon.","choices":[],"image_prompt":"","is_end":true}`, nil).Once()
	choiceCall(inf).Return("", errors.New("offline")).Once()

	mem := store.NewMemory()
	srv, err := NewServer(Options{
		Store:             mem,
		Chain:             inference.NewChain(nil, inf),
		StructuredOutputs: true,
	})
	require.NoError(t, err)
	f := &fixture{srv: srv, store: mem, images: &countingGenerator{}}

	resp := f.generate(t, `{"prompt":"a fox and the moon"}`)
	assert.Equal(t, "Pip waved hello to the moon.", resp.Text)
	assert.True(t, resp.IsEnd)
	assert.Len(t, resp.Choices, 3)
	assert.Equal(t, schema.ImageSkipped, resp.ImageStatus)
}
