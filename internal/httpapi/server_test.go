package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/ent0n29/anuva/internal/config"
	"github.com/ent0n29/anuva/internal/conversation"
	"github.com/ent0n29/anuva/internal/fallback"
	"github.com/ent0n29/anuva/internal/memory"
	"github.com/ent0n29/anuva/internal/observability"
	"github.com/ent0n29/anuva/internal/policy"
	"github.com/ent0n29/anuva/internal/speech"
)

var metricsSeq atomic.Int64

func testMetrics() *observability.Metrics {
	return observability.NewMetrics(fmt.Sprintf("test_httpapi_%d_%d", time.Now().UnixNano(), metricsSeq.Add(1)))
}

type stubSynth struct {
	calls atomic.Int32
	err   error
}

func (s *stubSynth) Synthesize(_ context.Context, voiceID, text string) (speech.Audio, error) {
	s.calls.Add(1)
	if s.err != nil {
		return speech.Audio{}, s.err
	}
	return speech.Audio{Data: []byte("mp3:" + voiceID + ":" + text), ContentType: "audio/mpeg"}, nil
}

type fixture struct {
	ts     *httptest.Server
	facts  *memory.InMemoryFactStore
	speech *speech.Service
}

func newFixture(t *testing.T, synth speech.Synthesizer) fixture {
	t.Helper()
	metrics := testMetrics()
	turns := memory.NewShortTermStore(nil, memory.ShortTermOptions{Metrics: metrics})
	facts := memory.NewInMemoryFactStore()
	chat := conversation.NewOrchestrator(turns, facts, conversation.Options{Metrics: metrics})
	speechSvc := speech.NewService(synth, speech.ServiceOptions{DefaultVoiceID: "voice-1", CacheSize: 8, Metrics: metrics})

	cfg := config.Config{CORSAllowOrigin: "http://localhost:3000"}
	srv := New(cfg, chat, facts, speechSvc, metrics, Backends{ShortTerm: "in-process", Facts: "in-memory", Provider: "fallback", Speech: "disabled"})
	ts := httptest.NewServer(srv.Router())
	t.Cleanup(ts.Close)
	return fixture{ts: ts, facts: facts, speech: speechSvc}
}

func postJSON(t *testing.T, url string, body any) *http.Response {
	t.Helper()
	raw, err := json.Marshal(body)
	require.NoError(t, err)
	res, err := http.Post(url, "application/json", bytes.NewReader(raw))
	require.NoError(t, err)
	t.Cleanup(func() { res.Body.Close() })
	return res
}

func doRequest(t *testing.T, method, url string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(method, url, nil)
	require.NoError(t, err)
	res, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { res.Body.Close() })
	return res
}

func decodeBody[T any](t *testing.T, res *http.Response) T {
	t.Helper()
	var out T
	require.NoError(t, json.NewDecoder(res.Body).Decode(&out))
	return out
}

func TestRootAndHealth(t *testing.T) {
	f := newFixture(t, nil)

	res := doRequest(t, http.MethodGet, f.ts.URL+"/")
	require.Equal(t, http.StatusOK, res.StatusCode)
	require.Equal(t, map[string]string{"status": "ok", "message": "AI Companion API server running"}, decodeBody[map[string]string](t, res))

	res = doRequest(t, http.MethodGet, f.ts.URL+"/healthz")
	require.Equal(t, http.StatusOK, res.StatusCode)

	res = doRequest(t, http.MethodGet, f.ts.URL+"/readyz")
	require.Equal(t, http.StatusOK, res.StatusCode)
	ready := decodeBody[map[string]any](t, res)
	require.Equal(t, "ready", ready["status"])
	require.Equal(t, "in-process", ready["backends"].(map[string]any)["short_term"])

	res = doRequest(t, http.MethodGet, f.ts.URL+"/metrics")
	require.Equal(t, http.StatusOK, res.StatusCode)
}

func TestCORSHeadersAndPreflight(t *testing.T) {
	f := newFixture(t, nil)

	res := doRequest(t, http.MethodOptions, f.ts.URL+"/api/chat")
	require.Equal(t, http.StatusOK, res.StatusCode)
	require.Equal(t, "http://localhost:3000", res.Header.Get("Access-Control-Allow-Origin"))
	require.Contains(t, res.Header.Get("Access-Control-Allow-Methods"), "POST")
}

func TestChatMissingParameters(t *testing.T) {
	f := newFixture(t, nil)

	res := postJSON(t, f.ts.URL+"/api/chat", map[string]string{"sessionId": "s1", "input": "hi"})
	require.Equal(t, http.StatusBadRequest, res.StatusCode)
	require.Equal(t, map[string]string{"error": "missing parameters"}, decodeBody[map[string]string](t, res))

	bad, err := http.Post(f.ts.URL+"/api/chat", "application/json", bytes.NewReader([]byte("{nope")))
	require.NoError(t, err)
	defer bad.Body.Close()
	require.Equal(t, http.StatusBadRequest, bad.StatusCode)
}

func TestChatFallbackFlowAndTranscript(t *testing.T) {
	f := newFixture(t, nil)
	body := map[string]any{"sessionId": "s1", "userId": "u1", "input": "Hey, I feel stuck."}

	first := decodeBody[map[string]string](t, postJSON(t, f.ts.URL+"/api/chat", body))
	second := decodeBody[map[string]string](t, postJSON(t, f.ts.URL+"/api/chat", body))
	require.Equal(t, fallback.ReferenceDialogue[1].Text, first["text"])
	require.Equal(t, fallback.ReferenceDialogue[3].Text, second["text"])

	res := doRequest(t, http.MethodGet, f.ts.URL+"/api/chat/s1")
	require.Equal(t, http.StatusOK, res.StatusCode)
	transcript := decodeBody[struct {
		Session map[string]any   `json:"session"`
		Turns   []map[string]any `json:"turns"`
	}](t, res)
	require.Len(t, transcript.Turns, 4)
	require.Equal(t, "user", transcript.Turns[0]["role"])
	require.Equal(t, "active", transcript.Session["status"])

	res = doRequest(t, http.MethodDelete, f.ts.URL+"/api/chat/s1")
	require.Equal(t, http.StatusOK, res.StatusCode)
	require.Equal(t, map[string]string{"status": "cleared"}, decodeBody[map[string]string](t, res))

	res = doRequest(t, http.MethodGet, f.ts.URL+"/api/chat/s1?limit=5")
	transcript = decodeBody[struct {
		Session map[string]any   `json:"session"`
		Turns   []map[string]any `json:"turns"`
	}](t, res)
	require.Empty(t, transcript.Turns)
}

func TestPerfLatencyReportsTurnStages(t *testing.T) {
	f := newFixture(t, nil)
	postJSON(t, f.ts.URL+"/api/chat", map[string]any{"sessionId": "s1", "userId": "u1", "input": "hello"})

	res := doRequest(t, http.MethodGet, f.ts.URL+"/api/perf/latency")
	require.Equal(t, http.StatusOK, res.StatusCode)
	snap := decodeBody[observability.LatencySnapshot](t, res)

	stages := map[string]int{}
	for _, s := range snap.Stages {
		stages[s.Stage] = s.Samples
	}
	require.Equal(t, 1, stages[observability.StageTurnTotal])
	require.Equal(t, 1, stages[observability.StageMemoryGather])
	require.Equal(t, []observability.ReplySourceCount{{Source: "fallback", Count: 1}}, snap.ReplySources)
}

func TestChatSafetyRedirect(t *testing.T) {
	f := newFixture(t, nil)
	res := postJSON(t, f.ts.URL+"/api/chat", map[string]any{"sessionId": "s1", "userId": "u1", "input": "thinking about suicide"})
	require.Equal(t, http.StatusOK, res.StatusCode)
	require.Equal(t, policy.SafeRedirectReply, decodeBody[map[string]string](t, res)["text"])
}

func TestChatUseTTSPrefetchesReply(t *testing.T) {
	synth := &stubSynth{}
	f := newFixture(t, synth)

	res := postJSON(t, f.ts.URL+"/api/chat", map[string]any{"sessionId": "s1", "userId": "u1", "input": "hello", "useTTS": true})
	require.Equal(t, http.StatusOK, res.StatusCode)
	reply := decodeBody[map[string]string](t, res)["text"]

	require.NoError(t, f.speech.Wait(context.Background()))
	require.EqualValues(t, 1, synth.calls.Load())

	audio := postJSON(t, f.ts.URL+"/api/tts", map[string]string{"text": reply})
	require.Equal(t, http.StatusOK, audio.StatusCode)
	require.EqualValues(t, 1, synth.calls.Load())
}

func TestFactsEndpoints(t *testing.T) {
	f := newFixture(t, nil)

	res := postJSON(t, f.ts.URL+"/api/facts", map[string]string{"userId": "u1", "key": "goal", "value": "run a 5k"})
	require.Equal(t, http.StatusCreated, res.StatusCode)
	saved := decodeBody[memory.Fact](t, res)
	require.NotEmpty(t, saved.ID)
	require.Equal(t, "goal", saved.Key)

	postJSON(t, f.ts.URL+"/api/facts", map[string]string{"userId": "u1", "key": "pet", "value": "cat"})

	res = postJSON(t, f.ts.URL+"/api/facts", map[string]string{"userId": "u1", "key": "goal"})
	require.Equal(t, http.StatusBadRequest, res.StatusCode)

	all := decodeBody[map[string][]memory.Fact](t, doRequest(t, http.MethodGet, f.ts.URL+"/api/facts/u1"))
	require.Len(t, all["facts"], 2)

	found := decodeBody[map[string][]memory.Fact](t, doRequest(t, http.MethodGet, f.ts.URL+"/api/facts/u1?q=cat&limit=1"))
	require.Len(t, found["facts"], 1)
	require.Equal(t, "pet", found["facts"][0].Key)

	res = doRequest(t, http.MethodGet, f.ts.URL+"/api/facts/u1?limit=zero")
	require.Equal(t, http.StatusBadRequest, res.StatusCode)

	res = doRequest(t, http.MethodDelete, f.ts.URL+"/api/facts/u1")
	require.Equal(t, http.StatusOK, res.StatusCode)
	empty := decodeBody[map[string][]memory.Fact](t, doRequest(t, http.MethodGet, f.ts.URL+"/api/facts/u1"))
	require.Empty(t, empty["facts"])
}

func TestTTSEndpoint(t *testing.T) {
	t.Run("not configured", func(t *testing.T) {
		f := newFixture(t, nil)
		res := postJSON(t, f.ts.URL+"/api/tts", map[string]string{"text": "hi"})
		require.Equal(t, http.StatusInternalServerError, res.StatusCode)
		require.Equal(t, ttsNotConfiguredMessage, decodeBody[map[string]string](t, res)["error"])
	})

	t.Run("missing text", func(t *testing.T) {
		f := newFixture(t, &stubSynth{})
		res := postJSON(t, f.ts.URL+"/api/tts", map[string]string{"voiceId": "v"})
		require.Equal(t, http.StatusBadRequest, res.StatusCode)
		require.Equal(t, "missing text", decodeBody[map[string]string](t, res)["error"])
	})

	t.Run("audio", func(t *testing.T) {
		f := newFixture(t, &stubSynth{})
		res := postJSON(t, f.ts.URL+"/api/tts", map[string]string{"text": "hi", "voiceId": "v2"})
		require.Equal(t, http.StatusOK, res.StatusCode)
		require.Equal(t, "audio/mpeg", res.Header.Get("Content-Type"))
		data, err := io.ReadAll(res.Body)
		require.NoError(t, err)
		require.Equal(t, "mp3:v2:hi", string(data))
	})

	t.Run("provider error", func(t *testing.T) {
		f := newFixture(t, &stubSynth{err: errors.New("upstream 401")})
		res := postJSON(t, f.ts.URL+"/api/tts", map[string]string{"text": "hi"})
		require.Equal(t, http.StatusBadGateway, res.StatusCode)
		body := decodeBody[map[string]string](t, res)
		require.Equal(t, "tts_provider_error", body["error"])
		require.Contains(t, body["detail"], "upstream 401")
	})
}
