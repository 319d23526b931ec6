package app

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"namecard/pkg/ai"
	"namecard/pkg/domain"
	"namecard/pkg/store"
)

func TestChatChargesCardAndUsesStoredProfile(t *testing.T) {
	gen := &fakeGenerator{reply: "Hello, I'm Alice."}
	a, s := newTestApp(t, gen, nil)
	seedAICard(t, a, "alice")

	reply, err := a.Chat(context.Background(), ChatRequest{
		Message:  "Who are you?",
		Context:  json.RawMessage(`{"name":"Mallory"}`),
		Username: "alice",
	})
	if err != nil {
		t.Fatalf("chat: %v", err)
	}
	if reply.Reply != "Hello, I'm Alice." || reply.Event {
		t.Fatalf("unexpected reply: %+v", reply)
	}
	if gen.json {
		t.Fatalf("chat should use text mode")
	}
	if !strings.Contains(gen.system, "Loves hiking") || strings.Contains(gen.system, "Mallory") {
		t.Fatalf("prompt should use the stored card, got %q", gen.system)
	}
	if gen.user != "Who are you?" {
		t.Fatalf("unexpected user prompt: %q", gen.user)
	}
	if got := balanceOf(t, s, "alice"); got != 8 {
		t.Fatalf("expected balance 8, got %d", got)
	}
	usage, err := s.ListLedger(context.Background(), "alice", store.LedgerUsage, 10)
	if err != nil {
		t.Fatalf("list ledger: %v", err)
	}
	if len(usage) != 1 || usage[0].Amount != -2 || usage[0].Reason != "chat" {
		t.Fatalf("unexpected usage entries: %+v", usage)
	}
}

func TestSynergyDebitsThreeTokens(t *testing.T) {
	gen := &fakeGenerator{reply: "```json\n{\"score\": 92.6, \"title\": \"Great match\", \"reason\": \"You both love learning.\"}\n```"}
	a, s := newTestApp(t, gen, nil)
	seedAICard(t, a, "alice")

	result, err := a.Synergy(context.Background(), "alice", Visitor{Name: "Bob", MBTI: "intj", Job: "engineer"})
	if err != nil {
		t.Fatalf("synergy: %v", err)
	}
	if result.Score != 93 || result.Title != "Great match" {
		t.Fatalf("unexpected synergy: %+v", result)
	}
	if !gen.json || !strings.Contains(gen.system, `"mbti":"INTJ"`) {
		t.Fatalf("expected json prompt with visitor data, got %q", gen.system)
	}
	if got := balanceOf(t, s, "alice"); got != 7 {
		t.Fatalf("expected balance 7, got %d", got)
	}
	usage, _ := s.ListLedger(context.Background(), "alice", store.LedgerUsage, 10)
	if len(usage) != 1 || usage[0].Amount != -3 || usage[0].Reason != "synergy" {
		t.Fatalf("unexpected usage entries: %+v", usage)
	}
}

func TestSynergyRequiresVisitorNameAndMBTI(t *testing.T) {
	gen := &fakeGenerator{reply: "{}"}
	a, _ := newTestApp(t, gen, nil)
	seedAICard(t, a, "alice")
	if _, err := a.Synergy(context.Background(), "alice", Visitor{Name: "Bob"}); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected invalid input, got %v", err)
	}
	if gen.callCount() != 0 {
		t.Fatalf("generator should not be called")
	}
}

func TestChatInsufficientBalanceIsNoOp(t *testing.T) {
	gen := &fakeGenerator{reply: "hi"}
	a, s := newTestApp(t, gen, func(c *Config) { c.SetupCredits = 1 })
	seedAICard(t, a, "alice")

	_, err := a.Chat(context.Background(), ChatRequest{Message: "hi", Username: "alice"})
	if !errors.Is(err, store.ErrInsufficientBalance) {
		t.Fatalf("expected insufficient balance, got %v", err)
	}
	if gen.callCount() != 0 {
		t.Fatalf("generator should not be called")
	}
	if got := balanceOf(t, s, "alice"); got != 1 {
		t.Fatalf("balance changed: %d", got)
	}
	usage, _ := s.ListLedger(context.Background(), "alice", store.LedgerUsage, 10)
	if len(usage) != 0 {
		t.Fatalf("unexpected usage entries: %+v", usage)
	}
}

func TestChatUpstreamFailureRefunds(t *testing.T) {
	gen := &fakeGenerator{err: errors.New("quota exceeded")}
	a, s := newTestApp(t, gen, nil)
	seedAICard(t, a, "alice")

	_, err := a.Chat(context.Background(), ChatRequest{Message: "hi", Username: "alice"})
	if !errors.Is(err, ErrUpstream) {
		t.Fatalf("expected upstream error, got %v", err)
	}
	if got := balanceOf(t, s, "alice"); got != 10 {
		t.Fatalf("expected refunded balance 10, got %d", got)
	}
	entries, _ := s.ListLedger(context.Background(), "alice", store.LedgerAll, 10)
	if len(entries) != 3 || entries[0].Reason != "refund(chat)" || entries[0].Amount != 2 {
		t.Fatalf("unexpected ledger: %+v", entries)
	}
}

func TestChatWithoutGeneratorIsUnavailable(t *testing.T) {
	a, s := newTestApp(t, nil, nil)
	seedAICard(t, a, "alice")

	_, err := a.Chat(context.Background(), ChatRequest{Message: "hi", Username: "alice"})
	if !errors.Is(err, ErrServiceUnavailable) {
		t.Fatalf("expected unavailable, got %v", err)
	}
	if got := balanceOf(t, s, "alice"); got != 10 {
		t.Fatalf("balance changed without generator: %d", got)
	}
}

func TestChatAnonymousUsesRequestContext(t *testing.T) {
	gen := &fakeGenerator{reply: "ok"}
	a, _ := newTestApp(t, gen, nil)

	if _, err := a.Chat(context.Background(), ChatRequest{Message: "hi", Context: json.RawMessage(`{"name":"Dana","role":"Chef"}`)}); err != nil {
		t.Fatalf("chat: %v", err)
	}
	if !strings.Contains(gen.system, "Dana (Chef)") {
		t.Fatalf("expected request context in prompt, got %q", gen.system)
	}
	if _, err := a.Chat(context.Background(), ChatRequest{Message: "hi"}); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected invalid input without context, got %v", err)
	}
	if _, err := a.Chat(context.Background(), ChatRequest{Message: "hi", Context: json.RawMessage(`[1,2]`)}); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected invalid input for array context, got %v", err)
	}
}

func TestChatValidatesModeAndFields(t *testing.T) {
	gen := &fakeGenerator{reply: "ok"}
	a, _ := newTestApp(t, gen, nil)
	ctxJSON := json.RawMessage(`{"name":"Dana"}`)
	cases := []struct {
		name string
		req  ChatRequest
		want error
	}{
		{"unknown mode", ChatRequest{Mode: "poem", Message: "hi", Context: ctxJSON}, ErrInvalidMode},
		{"empty message", ChatRequest{Message: "  ", Context: ctxJSON}, ErrInvalidInput},
		{"translate without language", ChatRequest{Mode: "translate", Context: ctxJSON}, ErrInvalidInput},
		{"synergy without visitor", ChatRequest{Mode: "synergy", Context: ctxJSON}, ErrInvalidInput},
	}
	for _, tc := range cases {
		if _, err := a.Chat(context.Background(), tc.req); !errors.Is(err, tc.want) {
			t.Fatalf("%s: expected %v, got %v", tc.name, tc.want, err)
		}
	}
	if gen.callCount() != 0 {
		t.Fatalf("generator should not be called for invalid requests")
	}
}

func TestChatUnknownCard(t *testing.T) {
	a, _ := newTestApp(t, &fakeGenerator{reply: "ok"}, nil)
	_, err := a.Chat(context.Background(), ChatRequest{Message: "hi", Username: "ghost"})
	if !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestAddOnsNeedFeatureFlag(t *testing.T) {
	gen := &fakeGenerator{reply: `{"questions":[]}`}
	a, s := newTestApp(t, gen, nil)
	ctx := context.Background()
	if _, err := a.CreateCard(ctx, CreateCardInput{ID: "bob", Name: "Bob", OwnerEmail: "bob@example.com", EnableAI: true}); err != nil {
		t.Fatalf("create card: %v", err)
	}
	if _, err := a.Quiz(ctx, "bob"); !errors.Is(err, ErrAIDisabled) {
		t.Fatalf("expected AI disabled, got %v", err)
	}
	_, err := a.Chat(ctx, ChatRequest{Mode: "translate", TargetLang: "en", Username: "bob"})
	if !errors.Is(err, ErrAIDisabled) {
		t.Fatalf("expected AI disabled for translate, got %v", err)
	}
	seedAICard(t, a, "carol")
	if err := a.SetCardAI(ctx, "carol", false); err != nil {
		t.Fatalf("set card ai: %v", err)
	}
	if _, err := a.Quiz(ctx, "carol"); !errors.Is(err, ErrAIDisabled) {
		t.Fatalf("expected AI disabled after master switch, got %v", err)
	}
	if gen.callCount() != 0 || balanceOf(t, s, "carol") != 10 {
		t.Fatalf("disabled add-ons must not call the generator or charge")
	}
}

func TestQuizParsesAndCapsQuestions(t *testing.T) {
	gen := &fakeGenerator{reply: `{"questions":[
		{"q":"Job?","options":["Designer","Pilot","Chef"],"answer":0},
		{"q":"","options":["a","b","c"],"answer":0},
		{"q":"Hobby?","options":["Hiking","Chess","Golf"],"answer":5},
		{"q":"MBTI?","options":["ENFP","INTJ","ISTP"],"answer":0},
		{"q":"City?","options":["Seoul","Busan","Jeju"],"answer":1}
	]}`}
	a, s := newTestApp(t, gen, func(c *Config) { c.QuizQuestions = 2 })
	seedAICard(t, a, "alice")

	quiz, err := a.Quiz(context.Background(), "alice")
	if err != nil {
		t.Fatalf("quiz: %v", err)
	}
	if len(quiz.Questions) != 2 || quiz.Questions[0].Q != "Job?" || quiz.Questions[1].Q != "MBTI?" {
		t.Fatalf("unexpected questions: %+v", quiz.Questions)
	}
	if !strings.Contains(gen.system, "2-question") {
		t.Fatalf("expected configured question count in prompt")
	}
	if got := balanceOf(t, s, "alice"); got != 7 {
		t.Fatalf("expected balance 7, got %d", got)
	}
}

func TestQuizMalformedOutputRefunds(t *testing.T) {
	gen := &fakeGenerator{reply: "Here is your quiz!"}
	a, s := newTestApp(t, gen, nil)
	seedAICard(t, a, "alice")

	if _, err := a.Quiz(context.Background(), "alice"); !errors.Is(err, ErrMalformedModelOutput) {
		t.Fatalf("expected malformed output, got %v", err)
	}
	if got := balanceOf(t, s, "alice"); got != 10 {
		t.Fatalf("expected refunded balance 10, got %d", got)
	}
	income, _ := s.ListLedger(context.Background(), "alice", store.LedgerIncome, 10)
	if len(income) != 2 || income[0].Reason != "refund(quiz)" {
		t.Fatalf("unexpected income entries: %+v", income)
	}
}

func TestTruncatedReplyIsMalformedAndRefunded(t *testing.T) {
	gen := &fakeGenerator{err: ai.ErrTruncated}
	a, s := newTestApp(t, gen, nil)
	seedAICard(t, a, "alice")
	ctx := context.Background()

	_, err := a.Quiz(ctx, "alice")
	if !errors.Is(err, ErrMalformedModelOutput) || errors.Is(err, ErrUpstream) {
		t.Fatalf("expected malformed output for a cut-off reply, got %v", err)
	}
	_, err = a.Chat(ctx, ChatRequest{Mode: "synergy", Username: "alice", Visitor: &Visitor{Name: "Bo", MBTI: "INTJ"}})
	if !errors.Is(err, ErrMalformedModelOutput) {
		t.Fatalf("expected malformed output through the gateway, got %v", err)
	}
	if got := balanceOf(t, s, "alice"); got != 10 {
		t.Fatalf("expected both charges refunded, balance %d", got)
	}
}

func TestTranslateKeepsStructure(t *testing.T) {
	gen := &fakeGenerator{reply: `{"name":"Alice (EN)","intro":"Product designer","history":[{"date":"2024","title":"Started designing","desc":""}],"section_titles":{"profile":"About me"},"links":[{"type":"x","value":"evil"}]}`}
	a, s := newTestApp(t, gen, nil)
	card := seedAICard(t, a, "alice")
	ctx := context.Background()
	content := card.CardContent
	content.Links = []domain.Link{{Type: "email", Value: "alice@example.com"}}
	content.History = []domain.HistoryItem{{Date: "2024", Title: "교사", Desc: "서울"}}
	if _, err := a.UpdateCard(ctx, card.OwnerEmail, content); err != nil {
		t.Fatalf("update card: %v", err)
	}

	out, err := a.Translate(ctx, "alice", "en")
	if err != nil {
		t.Fatalf("translate: %v", err)
	}
	if out.Name != "Alice (EN)" || out.Intro != "Product designer" {
		t.Fatalf("unexpected translated text: %+v", out.CardContent)
	}
	if len(out.Links) != 1 || out.Links[0].Value != "alice@example.com" {
		t.Fatalf("links must not be translated: %+v", out.Links)
	}
	if out.History[0].Title != "Started designing" || out.History[0].Desc != "서울" {
		t.Fatalf("unexpected history: %+v", out.History)
	}
	if out.SectionConfig["profile"].Title != "About me" || out.SectionConfig["links"].Title != "Links" {
		t.Fatalf("unexpected section titles: %+v", out.SectionConfig)
	}
	if out.TMIData != "" {
		t.Fatalf("translation leaked tmi data")
	}
	if strings.Contains(gen.system, "alice@example.com") {
		t.Fatalf("links should not be sent for translation")
	}
	usage, _ := s.ListLedger(ctx, "alice", store.LedgerUsage, 10)
	if len(usage) != 1 || usage[0].Reason != "translate(en)" || usage[0].Amount != -1 {
		t.Fatalf("unexpected usage entries: %+v", usage)
	}
}

func TestZeroCostModeDoesNotTouchLedger(t *testing.T) {
	gen := &fakeGenerator{reply: "free"}
	costs := DefaultCosts()
	costs.Chat = 0
	a, s := newTestApp(t, gen, func(c *Config) { c.Costs = &costs })
	seedAICard(t, a, "alice")

	if _, err := a.Chat(context.Background(), ChatRequest{Message: "hi", Username: "alice"}); err != nil {
		t.Fatalf("chat: %v", err)
	}
	usage, _ := s.ListLedger(context.Background(), "alice", store.LedgerUsage, 10)
	if len(usage) != 0 {
		t.Fatalf("free call wrote ledger entries: %+v", usage)
	}
}
