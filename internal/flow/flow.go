// Package flow implements the conversation state machine for the store
// assistant: first-contact greeting, name capture, customer-type capture,
// and free-form assistance driven by an ordered intent table with
// context-augmented generation as the fallback.
//
// The transition decision depends only on the current state and the inbound
// text. External calls (embedding, chat completion) only compose reply
// text; their failure never corrupts the decided transition.
package flow

import (
	"context"
	"log/slog"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/Ronald-silva/agenbot/internal/catalog"
	"github.com/Ronald-silva/agenbot/internal/genai"
	"github.com/Ronald-silva/agenbot/internal/knowledge"
	"github.com/Ronald-silva/agenbot/internal/models"
)

// minNameRunes is the minimum accepted length for a captured name.
const minNameRunes = 2

// Retriever supplies knowledge snippets relevant to a query.
type Retriever interface {
	Retrieve(ctx context.Context, query string, topK int) ([]string, error)
}

// Opts holds configuration options for the conversation engine.
type Opts struct {
	Generator genai.ClientInterface
	Retriever Retriever
	Catalog   *catalog.Catalog
	Clock     func() time.Time
	TopK      int
}

// Option defines a configuration option for the engine.
type Option func(*Opts)

// WithGenerator sets the text generation client.
func WithGenerator(g genai.ClientInterface) Option {
	return func(o *Opts) { o.Generator = g }
}

// WithRetriever sets the knowledge context retriever.
func WithRetriever(r Retriever) Option {
	return func(o *Opts) { o.Retriever = r }
}

// WithCatalog sets the product catalog and store info source.
func WithCatalog(c *catalog.Catalog) Option {
	return func(o *Opts) { o.Catalog = c }
}

// WithClock injects the time source used for time-of-day greetings.
func WithClock(clock func() time.Time) Option {
	return func(o *Opts) { o.Clock = clock }
}

// WithTopK sets how many knowledge snippets augment generated replies.
func WithTopK(k int) Option {
	return func(o *Opts) { o.TopK = k }
}

// Engine processes inbound customer messages against their conversation
// state and produces the reply text for each turn.
type Engine struct {
	states    *StateManager
	generator genai.ClientInterface
	retriever Retriever
	catalog   *catalog.Catalog
	clock     func() time.Time
	topK      int
	intents   []intent
}

// NewEngine creates a conversation engine over the given state manager.
// Generator, retriever and catalog are optional; without a generator the
// engine answers with scripted text only.
func NewEngine(states *StateManager, opts ...Option) *Engine {
	cfg := Opts{
		Clock: time.Now,
		TopK:  knowledge.DefaultTopK,
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	e := &Engine{
		states:    states,
		generator: cfg.Generator,
		retriever: cfg.Retriever,
		catalog:   cfg.Catalog,
		clock:     cfg.Clock,
		topK:      cfg.TopK,
	}
	e.intents = e.intentTable()
	return e
}

// ProcessMessage runs one conversation turn: load state, decide the
// transition, compose the reply, record the turn in history and persist.
// It returns an error only for invalid input; every downstream failure
// degrades to a safe reply and the turn still completes.
func (e *Engine) ProcessMessage(ctx context.Context, phone, text string) (string, error) {
	if strings.TrimSpace(phone) == "" {
		return "", models.ErrMissingPhone
	}
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return "", models.ErrEmptyMessage
	}

	unlock := e.states.LockPhone(phone)
	defer unlock()

	state := e.states.Load(phone)
	reply := e.transition(ctx, state, trimmed)

	state.AppendHistory("user", trimmed)
	state.AppendHistory("assistant", reply)

	if err := e.states.Save(state); err != nil {
		slog.Error("Engine.ProcessMessage: state save failed, reply still delivered", "phone", phone, "error", err)
	}

	slog.Info("Engine.ProcessMessage: turn processed",
		"phone", phone,
		"pending", string(state.PendingQuestion),
		"customer_type", string(state.CustomerType),
		"interaction_count", state.Metadata.InteractionCount)
	return reply, nil
}

// transition decides which branch handles the inbound text. The decision
// depends only on the state and the text.
func (e *Engine) transition(ctx context.Context, state *models.ConversationState, text string) string {
	switch {
	case !state.HasName():
		return e.handleNameCapture(ctx, state, text)
	case !state.HasType():
		return e.handleTypeCapture(ctx, state, text)
	default:
		return e.handleActive(ctx, state, text)
	}
}

// handleNameCapture covers first contact and the name answer. The very
// first message from a phone always gets the greeting, regardless of its
// text; only subsequent input while the name question is pending is read
// as the name itself.
func (e *Engine) handleNameCapture(ctx context.Context, state *models.ConversationState, text string) string {
	firstContact := state.Metadata.InteractionCount == 0 && len(state.History) == 0

	if firstContact || state.PendingQuestion != models.PendingAskName {
		state.PendingQuestion = models.PendingAskName
		return e.generateScripted(ctx, directiveGreetAskName, msgAskName)
	}

	name := strings.TrimSpace(text)
	if utf8.RuneCountInString(name) < minNameRunes {
		return msgNameTooShort
	}

	state.Name = name
	state.PendingQuestion = models.PendingAskType
	slog.Info("Engine: customer name captured", "phone", state.Phone, "name", name)
	return e.generateScripted(ctx, directiveWelcomeAskType(name), msgAskType(name))
}

// handleTypeCapture classifies the customer as wholesale or retail from
// keywords, tolerating ambiguous input indefinitely.
func (e *Engine) handleTypeCapture(ctx context.Context, state *models.ConversationState, text string) string {
	lower := strings.ToLower(text)

	switch {
	case containsAny(lower, wholesaleKeywords):
		state.CustomerType = models.CustomerTypeWholesale
		state.PendingQuestion = models.PendingNone
		slog.Info("Engine: customer classified", "phone", state.Phone, "type", "wholesale")
		return e.generateScripted(ctx, directiveWholesale(state.Name), msgWholesaleWelcome(state.Name))

	case containsAny(lower, retailKeywords),
		state.PendingQuestion == models.PendingAskType && hasAffirmative(lower):
		state.CustomerType = models.CustomerTypeRetail
		state.PendingQuestion = models.PendingNone
		slog.Info("Engine: customer classified", "phone", state.Phone, "type", "retail")
		return e.generateScripted(ctx, directiveRetail(state.Name), msgRetailWelcome(state.Name))

	default:
		state.PendingQuestion = models.PendingAskType
		return msgAskTypeAgain
	}
}

// handleActive walks the ordered intent table; the first matching intent
// answers the turn, otherwise the reply falls through to context-augmented
// generation.
func (e *Engine) handleActive(ctx context.Context, state *models.ConversationState, text string) string {
	lower := strings.ToLower(text)
	for _, in := range e.intents {
		if in.match(lower) {
			slog.Debug("Engine: intent matched", "phone", state.Phone, "intent", in.name)
			return in.handle(ctx, state, text)
		}
	}
	return e.generateContextual(ctx, state, text)
}

// generateScripted asks the model to phrase a scripted directive and falls
// back to the canned text when no generator is configured or generation
// fails.
func (e *Engine) generateScripted(ctx context.Context, directive, fallback string) string {
	if e.generator == nil {
		return fallback
	}
	reply, err := e.generator.Generate(ctx, systemPersona, directive)
	if err != nil {
		slog.Warn("Engine: scripted generation failed, using canned reply", "error", err)
		return fallback
	}
	return reply
}

// generateContextual composes the free-form reply: retrieve relevant
// knowledge snippets, assemble the prompt with catalog and history, and
// generate. Retrieval failure proceeds with empty context; generation
// failure yields a generic fallback.
func (e *Engine) generateContextual(ctx context.Context, state *models.ConversationState, text string) string {
	var snippets []string
	if e.retriever != nil {
		retrieved, err := e.retriever.Retrieve(ctx, text, e.topK)
		if err != nil {
			slog.Warn("Engine: context retrieval failed, proceeding without context", "phone", state.Phone, "error", err)
		} else {
			snippets = retrieved
		}
	}

	if e.generator == nil {
		return msgGenericFallback
	}

	messages := buildMessages(e.catalog, state, snippets, text)
	reply, err := e.generator.GenerateWithMessages(ctx, messages)
	if err != nil {
		slog.Error("Engine: generation failed after retries, sending fallback", "phone", state.Phone, "error", err)
		return msgGenericFallback
	}
	return reply
}

var wholesaleKeywords = []string{"lojista", "revenda", "atacado"}

var retailKeywords = []string{"cliente", "comprar", "uso pessoal", "particular"}

func containsAny(lower string, keywords []string) bool {
	for _, k := range keywords {
		if strings.Contains(lower, k) {
			return true
		}
	}
	return false
}

// hasAffirmative reports whether the text contains "sim" as a standalone
// word, so "simpatia" does not classify anyone.
func hasAffirmative(lower string) bool {
	for _, f := range strings.FieldsFunc(lower, func(r rune) bool { return !unicode.IsLetter(r) }) {
		if f == "sim" {
			return true
		}
	}
	return false
}
