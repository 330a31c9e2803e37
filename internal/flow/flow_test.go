package flow

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/openai/openai-go"

	"github.com/Ronald-silva/agenbot/internal/catalog"
	"github.com/Ronald-silva/agenbot/internal/models"
	"github.com/Ronald-silva/agenbot/internal/store"
)

const testPhone = "5585999990000"

type fakeGenerator struct {
	reply        string
	err          error
	lastMessages []openai.ChatCompletionMessageParamUnion
	calls        int
}

func (f *fakeGenerator) GenerateWithMessages(ctx context.Context, messages []openai.ChatCompletionMessageParamUnion) (string, error) {
	f.calls++
	f.lastMessages = messages
	if f.err != nil {
		return "", f.err
	}
	return f.reply, nil
}

func (f *fakeGenerator) Generate(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	f.calls++
	if f.err != nil {
		return "", f.err
	}
	return f.reply, nil
}

func (f *fakeGenerator) Embed(ctx context.Context, text string) ([]float64, error) {
	return []float64{1, 0, 0}, nil
}

func (f *fakeGenerator) Speech(ctx context.Context, text string) (string, error) {
	return "bXAz", nil
}

type fakeRetriever struct {
	snippets []string
	err      error
	queries  []string
}

func (f *fakeRetriever) Retrieve(ctx context.Context, query string, topK int) ([]string, error) {
	f.queries = append(f.queries, query)
	if f.err != nil {
		return nil, f.err
	}
	return f.snippets, nil
}

func testFlowCatalog() *catalog.Catalog {
	var info catalog.StoreInfo
	info.Hours.Weekdays = "Segunda a Sexta: 09h às 18h"
	info.Hours.Weekends = "Sábado: 09h às 13h"
	info.Hours.Online = "Atendimento online: 24h"
	info.Location.Address = "Av. Monsenhor Tabosa, 1000 - Fortaleza/CE"
	info.Contact.WhatsApp = "+55 85 99999-0000"
	info.Contact.Instagram = "@relogios"
	info.Policies = map[string]string{
		"delivery": "Não realizamos entregas",
		"payment":  "Pix, cartão e dinheiro",
	}
	return catalog.New(info, []catalog.Product{
		{ID: "rel-001", Name: "Classic Gold", Price: 289.9, Category: "Clássico", IdealFor: "Ocasiões formais"},
		{ID: "rel-002", Name: "Sport Pro X", Price: 199.9, Category: "Esportivo", IdealFor: "Treinos"},
		{ID: "rel-003", Name: "Casual Leather", Price: 159.9, Category: "Casual", IdealFor: "Dia a dia"},
	})
}

func newTestEngine(opts ...Option) (*Engine, *StateManager) {
	m := NewStateManager(store.NewInMemoryStore())
	base := []Option{WithCatalog(testFlowCatalog())}
	return NewEngine(m, append(base, opts...)...), m
}

// activeState seeds an onboarded customer so tests can start in the
// free-form stage directly.
func activeState(t *testing.T, m *StateManager, name string, ctype models.CustomerType) {
	t.Helper()
	state := m.Load(testPhone)
	state.Name = name
	state.CustomerType = ctype
	state.PendingQuestion = models.PendingNone
	if err := m.Save(state); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func process(t *testing.T, e *Engine, text string) string {
	t.Helper()
	reply, err := e.ProcessMessage(context.Background(), testPhone, text)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	return reply
}

func TestOnboardingFlow(t *testing.T) {
	e, m := newTestEngine()

	// first contact: greeting asks for the name, nothing captured yet
	reply := process(t, e, "oi")
	if !strings.Contains(reply, "nome") {
		t.Errorf("expected name question, got %q", reply)
	}
	state := m.Load(testPhone)
	if state.Name != "" || state.PendingQuestion != models.PendingAskName {
		t.Errorf("expected {name empty, ask_name}, got name=%q pending=%q", state.Name, state.PendingQuestion)
	}

	// next message is read as the name
	process(t, e, "João Silva")
	state = m.Load(testPhone)
	if state.Name != "João Silva" {
		t.Errorf("expected captured name, got %q", state.Name)
	}
	if state.PendingQuestion != models.PendingAskType {
		t.Errorf("expected pending ask_type, got %q", state.PendingQuestion)
	}

	// wholesale keyword classifies the customer
	process(t, e, "sou lojista")
	state = m.Load(testPhone)
	if state.CustomerType != models.CustomerTypeWholesale {
		t.Errorf("expected wholesale classification, got %q", state.CustomerType)
	}
	if state.PendingQuestion != models.PendingNone {
		t.Errorf("expected no pending question, got %q", state.PendingQuestion)
	}
}

func TestShortNameReAsks(t *testing.T) {
	e, m := newTestEngine()
	process(t, e, "oi")

	for _, short := range []string{"a", "x", " b "} {
		reply := process(t, e, short)
		if !strings.Contains(reply, "nome") {
			t.Errorf("expected re-ask for input %q, got %q", short, reply)
		}
		state := m.Load(testPhone)
		if state.Name != "" || state.PendingQuestion != models.PendingAskName {
			t.Errorf("state changed on short input %q: name=%q pending=%q", short, state.Name, state.PendingQuestion)
		}
	}
}

func TestAmbiguousTypeReAsksIndefinitely(t *testing.T) {
	e, m := newTestEngine()
	process(t, e, "oi")
	process(t, e, "Maria")

	for i := 0; i < 3; i++ {
		process(t, e, "não sei dizer")
		state := m.Load(testPhone)
		if state.CustomerType != models.CustomerTypeUnknown {
			t.Fatalf("expected no classification, got %q", state.CustomerType)
		}
		if state.PendingQuestion != models.PendingAskType {
			t.Fatalf("expected pending ask_type, got %q", state.PendingQuestion)
		}
	}
}

func TestAffirmativeClassifiesRetail(t *testing.T) {
	e, m := newTestEngine()
	process(t, e, "oi")
	process(t, e, "Maria")
	process(t, e, "sim")

	state := m.Load(testPhone)
	if state.CustomerType != models.CustomerTypeRetail {
		t.Errorf("expected retail classification from affirmative, got %q", state.CustomerType)
	}
}

func TestRetailKeywordClassifies(t *testing.T) {
	e, m := newTestEngine()
	process(t, e, "oi")
	process(t, e, "Maria")
	process(t, e, "quero comprar para uso pessoal")

	state := m.Load(testPhone)
	if state.CustomerType != models.CustomerTypeRetail {
		t.Errorf("expected retail classification, got %q", state.CustomerType)
	}
}

func TestReservationByPosition(t *testing.T) {
	e, m := newTestEngine()
	activeState(t, m, "João", models.CustomerTypeRetail)

	reply := process(t, e, "reservar 1")
	if !strings.Contains(reply, "Classic Gold") {
		t.Errorf("expected product name in reply, got %q", reply)
	}
	if !strings.Contains(reply, "R$ 289,90") {
		t.Errorf("expected product price in reply, got %q", reply)
	}
	if !strings.Contains(reply, "24 horas") {
		t.Errorf("expected validity window in reply, got %q", reply)
	}

	state := m.Load(testPhone)
	if state.LastReservationID != "rel-001" {
		t.Errorf("expected reservation recorded, got %q", state.LastReservationID)
	}
}

func TestReservationByID(t *testing.T) {
	e, m := newTestEngine()
	activeState(t, m, "João", models.CustomerTypeRetail)

	reply := process(t, e, "quero reservar o rel-003")
	if !strings.Contains(reply, "Casual Leather") {
		t.Errorf("expected product name in reply, got %q", reply)
	}
	if state := m.Load(testPhone); state.LastReservationID != "rel-003" {
		t.Errorf("expected reservation recorded, got %q", state.LastReservationID)
	}
}

func TestReservationUnresolvedGivesHint(t *testing.T) {
	e, m := newTestEngine()
	activeState(t, m, "João", models.CustomerTypeRetail)

	reply := process(t, e, "reservar 99")
	if !strings.Contains(reply, "reservar") || !strings.Contains(reply, "catálogo") {
		t.Errorf("expected usage hint, got %q", reply)
	}
	if state := m.Load(testPhone); state.LastReservationID != "" {
		t.Errorf("expected no reservation recorded, got %q", state.LastReservationID)
	}
}

func TestStoreInfoIntent(t *testing.T) {
	e, m := newTestEngine()
	activeState(t, m, "João", models.CustomerTypeRetail)

	reply := process(t, e, "qual o horário de funcionamento?")
	if !strings.Contains(reply, "Segunda a Sexta") || !strings.Contains(reply, "Av. Monsenhor Tabosa") {
		t.Errorf("expected store info in reply, got %q", reply)
	}
}

func TestCatalogIntent(t *testing.T) {
	e, m := newTestEngine()
	activeState(t, m, "João", models.CustomerTypeRetail)

	reply := process(t, e, "me mostra o catálogo")
	for _, name := range []string{"Classic Gold", "Sport Pro X", "Casual Leather"} {
		if !strings.Contains(reply, name) {
			t.Errorf("expected %q in catalog reply, got %q", name, reply)
		}
	}
}

func TestCategoryBrowseIntent(t *testing.T) {
	e, m := newTestEngine()
	activeState(t, m, "João", models.CustomerTypeRetail)

	reply := process(t, e, "tem esportivo?")
	if !strings.Contains(reply, "Sport Pro X") {
		t.Errorf("expected category product in reply, got %q", reply)
	}
	if strings.Contains(reply, "Classic Gold") {
		t.Errorf("expected only category products, got %q", reply)
	}
}

func TestGreetingUsesTimeOfDay(t *testing.T) {
	cases := []struct {
		hour int
		want string
	}{
		{9, "Bom dia"},
		{15, "Boa tarde"},
		{21, "Boa noite"},
	}
	for _, tc := range cases {
		clock := func() time.Time {
			return time.Date(2025, 6, 1, tc.hour, 0, 0, 0, time.UTC)
		}
		e, m := newTestEngine(WithClock(clock))
		activeState(t, m, "João", models.CustomerTypeRetail)

		reply := process(t, e, "oi")
		if !strings.Contains(reply, tc.want) {
			t.Errorf("hour %d: expected %q salutation, got %q", tc.hour, tc.want, reply)
		}
		if !strings.Contains(reply, "João") {
			t.Errorf("hour %d: expected customer name in greeting, got %q", tc.hour, reply)
		}
	}
}

func TestNameCorrectionIntent(t *testing.T) {
	e, m := newTestEngine()
	activeState(t, m, "Joao", models.CustomerTypeWholesale)

	reply := process(t, e, "corrigir nome João Pedro")
	if !strings.Contains(reply, "João Pedro") {
		t.Errorf("expected confirmation with new name, got %q", reply)
	}

	state := m.Load(testPhone)
	if state.Name != "João Pedro" {
		t.Errorf("expected corrected name, got %q", state.Name)
	}
	if state.CustomerType != models.CustomerTypeWholesale {
		t.Errorf("customer type must not change on name correction, got %q", state.CustomerType)
	}
}

func TestNameCorrectionMatchesCaseInsensitively(t *testing.T) {
	e, m := newTestEngine()
	activeState(t, m, "Joao", models.CustomerTypeRetail)

	// The command may arrive in any casing; the captured name must keep the
	// customer's own casing and never include command bytes.
	reply := process(t, e, "Corrigir Nome Ana Maria")
	if !strings.Contains(reply, "Ana Maria") {
		t.Errorf("expected confirmation with new name, got %q", reply)
	}

	state := m.Load(testPhone)
	if state.Name != "Ana Maria" {
		t.Errorf("expected corrected name %q, got %q", "Ana Maria", state.Name)
	}
}

func TestFallbackGenerationUsesContext(t *testing.T) {
	gen := &fakeGenerator{reply: "O Classic Gold custa R$ 289,90."}
	ret := &fakeRetriever{snippets: []string{"Relógios clássicos combinam com ternos."}}
	e, m := newTestEngine(WithGenerator(gen), WithRetriever(ret))
	activeState(t, m, "João", models.CustomerTypeRetail)

	reply := process(t, e, "qual relógio combina com terno?")
	if reply != "O Classic Gold custa R$ 289,90." {
		t.Errorf("unexpected reply: %q", reply)
	}
	if len(ret.queries) != 1 || ret.queries[0] != "qual relógio combina com terno?" {
		t.Errorf("expected retriever queried with inbound text, got %v", ret.queries)
	}

	// the system prompt pins catalog names, prices and retrieved context
	if len(gen.lastMessages) == 0 || gen.lastMessages[0].OfSystem == nil {
		t.Fatal("expected assembled messages starting with a system message")
	}
	system := gen.lastMessages[0].OfSystem.Content.OfString.Value
	for _, want := range []string{"Classic Gold", "R$ 289,90", "Relógios clássicos combinam com ternos.", "Nunca invente"} {
		if !strings.Contains(system, want) {
			t.Errorf("expected %q in system prompt", want)
		}
	}
}

func TestRetrievalFailureProceedsWithoutContext(t *testing.T) {
	gen := &fakeGenerator{reply: "resposta"}
	ret := &fakeRetriever{err: &models.RetrievalError{Query: "q", Err: fmt.Errorf("embed down")}}
	e, m := newTestEngine(WithGenerator(gen), WithRetriever(ret))
	activeState(t, m, "João", models.CustomerTypeRetail)

	reply := process(t, e, "me fala dos relógios de couro")
	if reply != "resposta" {
		t.Errorf("expected generation despite retrieval failure, got %q", reply)
	}
}

func TestGenerationFailureIsolated(t *testing.T) {
	gen := &fakeGenerator{err: &models.GenerationError{Attempts: 3, Err: fmt.Errorf("provider down")}}
	e, m := newTestEngine(WithGenerator(gen))
	activeState(t, m, "João", models.CustomerTypeRetail)
	before := m.Load(testPhone).Metadata.InteractionCount

	reply := process(t, e, "me conta sobre a coleção nova")
	if reply != msgGenericFallback {
		t.Errorf("expected generic fallback, got %q", reply)
	}

	state := m.Load(testPhone)
	if state.Metadata.InteractionCount != before+1 {
		t.Errorf("expected interaction count incremented despite failure, got %d", state.Metadata.InteractionCount)
	}
}

func TestHistoryBoundAcrossTurns(t *testing.T) {
	e, m := newTestEngine()
	activeState(t, m, "João", models.CustomerTypeRetail)

	for i := 0; i < 8; i++ {
		process(t, e, fmt.Sprintf("reservar %d", i+1))
	}
	state := m.Load(testPhone)
	if len(state.History) != models.MaxHistoryMessages {
		t.Errorf("expected history bounded at %d, got %d", models.MaxHistoryMessages, len(state.History))
	}
}

func TestProcessMessageValidation(t *testing.T) {
	e, _ := newTestEngine()
	if _, err := e.ProcessMessage(context.Background(), "", "oi"); err != models.ErrMissingPhone {
		t.Errorf("expected ErrMissingPhone, got %v", err)
	}
	if _, err := e.ProcessMessage(context.Background(), testPhone, "   "); err != models.ErrEmptyMessage {
		t.Errorf("expected ErrEmptyMessage, got %v", err)
	}
}

func TestConcurrentTurnsSamePhone(t *testing.T) {
	e, m := newTestEngine()
	activeState(t, m, "João", models.CustomerTypeRetail)
	before := m.Load(testPhone).Metadata.InteractionCount

	const n = 10
	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		go func() {
			_, err := e.ProcessMessage(context.Background(), testPhone, "catálogo")
			errs <- err
		}()
	}
	for i := 0; i < n; i++ {
		if err := <-errs; err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}

	state := m.Load(testPhone)
	if state.Metadata.InteractionCount != before+n {
		t.Errorf("expected %d interactions after %d concurrent turns, got %d", before+n, n, state.Metadata.InteractionCount)
	}
}
