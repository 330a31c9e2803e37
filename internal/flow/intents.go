package flow

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/Ronald-silva/agenbot/internal/catalog"
	"github.com/Ronald-silva/agenbot/internal/models"
)

// reservationValidityHours is the fixed window a reservation is held for.
const reservationValidityHours = 24

// intent is one entry of the ordered decision table evaluated for active
// conversations. match inspects the lowercased inbound text; handle
// produces the reply and applies any state mutation.
type intent struct {
	name   string
	match  func(lower string) bool
	handle func(ctx context.Context, state *models.ConversationState, text string) string
}

// intentTable returns the active-conversation intents in priority order:
// store info, catalog browse, reservation, name correction, greeting.
// Anything unmatched falls through to context-augmented generation.
func (e *Engine) intentTable() []intent {
	return []intent{
		{name: "store_info", match: matchStoreInfo, handle: e.handleStoreInfo},
		{name: "catalog", match: matchCatalog, handle: e.handleCatalog},
		{name: "reservation", match: matchReservation, handle: e.handleReservation},
		{name: "correct_name", match: matchNameCorrection, handle: e.handleNameCorrection},
		{name: "greeting", match: matchGreeting, handle: e.handleGreeting},
	}
}

var storeInfoKeywords = []string{
	"horário", "horario", "endereço", "endereco", "onde fica",
	"contato", "telefone", "informações da loja", "informacoes da loja",
}

func matchStoreInfo(lower string) bool {
	return containsAny(lower, storeInfoKeywords)
}

func (e *Engine) handleStoreInfo(_ context.Context, _ *models.ConversationState, _ string) string {
	if e.catalog == nil {
		return msgGenericFallback
	}
	return catalog.FormatStoreInfo(e.catalog.StoreInfo())
}

// categoryKeywords maps browse keywords to catalog categories. Accented and
// plain spellings both match.
var categoryKeywords = map[string]string{
	"clássico":  "Clássico",
	"classico":  "Clássico",
	"esportivo": "Esportivo",
	"casual":    "Casual",
}

var catalogKeywords = []string{"catálogo", "catalogo", "produtos", "relógios", "relogios"}

func matchCatalog(lower string) bool {
	if containsAny(lower, catalogKeywords) {
		return true
	}
	for k := range categoryKeywords {
		if strings.Contains(lower, k) {
			return true
		}
	}
	return false
}

func (e *Engine) handleCatalog(_ context.Context, _ *models.ConversationState, text string) string {
	if e.catalog == nil {
		return msgGenericFallback
	}
	lower := strings.ToLower(text)
	for keyword, category := range categoryKeywords {
		if strings.Contains(lower, keyword) {
			products := e.catalog.ProductsByCategory(category)
			if len(products) == 0 {
				break
			}
			return catalog.FormatProductList(fmt.Sprintf("Relógios %s", category), products)
		}
	}
	return catalog.FormatProductList("Catálogo de Produtos", e.catalog.Products())
}

// trailingNumber captures a numeric index at the end of the message, e.g.
// "reservar 2" or "quero reservar o 3".
var trailingNumber = regexp.MustCompile(`(\d+)\s*$`)

func matchReservation(lower string) bool {
	return strings.Contains(lower, "reservar") || strings.Contains(lower, "reserva")
}

func (e *Engine) handleReservation(_ context.Context, state *models.ConversationState, text string) string {
	if e.catalog == nil {
		return msgGenericFallback
	}

	product, ok := e.resolveProduct(text)
	if !ok {
		return msgReservationHint
	}

	state.LastReservationID = product.ID
	return fmt.Sprintf(
		"✅ *Reserva confirmada!*\n\n%s\n\nSua reserva é válida por %d horas. "+
			"Retire na loja apresentando este número: *%s*. Até logo! 🕐",
		catalog.FormatProductInfo(product), reservationValidityHours, product.ID)
}

// resolveProduct resolves a reservation reference: a trailing catalog
// position first, then a product identifier anywhere in the text.
func (e *Engine) resolveProduct(text string) (catalog.Product, bool) {
	if m := trailingNumber.FindStringSubmatch(text); m != nil {
		pos, err := strconv.Atoi(m[1])
		if err == nil {
			if p, ok := e.catalog.ProductByPosition(pos); ok {
				return p, true
			}
		}
	}
	for _, field := range strings.Fields(text) {
		if p, ok := e.catalog.ProductByID(field); ok {
			return p, true
		}
	}
	return catalog.Product{}, false
}

const correctNamePrefix = "corrigir nome"

func matchNameCorrection(lower string) bool {
	return strings.HasPrefix(lower, correctNamePrefix)
}

// handleNameCorrection lets an already-onboarded customer change the name
// on record with an explicit command, without touching the customer type.
// The new name keeps the customer's original casing.
func (e *Engine) handleNameCorrection(_ context.Context, state *models.ConversationState, text string) string {
	// Lowercasing can change byte offsets for some case mappings, so the
	// prefix is re-matched against the original text before slicing it.
	rest := strings.ToLower(text)[len(correctNamePrefix):]
	if len(text) >= len(correctNamePrefix) && strings.EqualFold(text[:len(correctNamePrefix)], correctNamePrefix) {
		rest = text[len(correctNamePrefix):]
	}
	newName := strings.TrimSpace(rest)
	if len([]rune(newName)) < minNameRunes {
		return msgCorrectNameHint
	}
	state.Name = newName
	return fmt.Sprintf("Perfeito, anotado! A partir de agora vou te chamar de %s. 😊", newName)
}

var greetingPhrases = []string{
	"oi", "olá", "ola", "opa", "e aí", "e ai",
	"bom dia", "boa tarde", "boa noite", "oi tudo bem", "tudo bem",
}

func matchGreeting(lower string) bool {
	trimmed := strings.Trim(lower, " !?.,")
	for _, g := range greetingPhrases {
		if trimmed == g {
			return true
		}
	}
	return false
}

// handleGreeting answers a bare greeting with a time-of-day salutation
// using the customer's name.
func (e *Engine) handleGreeting(_ context.Context, state *models.ConversationState, _ string) string {
	salutation := "Boa noite"
	switch hour := e.clock().Hour(); {
	case hour >= 5 && hour < 12:
		salutation = "Bom dia"
	case hour >= 12 && hour < 18:
		salutation = "Boa tarde"
	}
	return fmt.Sprintf("%s, %s! 😊 Como posso ajudar você hoje? "+
		"Envie *catálogo* para ver nossos relógios ou *informações da loja* para horários e endereço.",
		salutation, state.Name)
}
