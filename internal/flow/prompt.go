package flow

import (
	"fmt"
	"strings"

	"github.com/openai/openai-go"

	"github.com/Ronald-silva/agenbot/internal/catalog"
	"github.com/Ronald-silva/agenbot/internal/models"
)

// systemPersona is the fixed persona prepended to every model call.
const systemPersona = "Você é um assistente virtual especializado em atendimento ao cliente " +
	"para uma loja de relógios. Seja cordial e profissional."

// Scripted directives handed to the model for onboarding turns. The canned
// msg* strings below are the fallbacks used when generation is unavailable.
const directiveGreetAskName = "Por favor, dê boas vindas a um novo cliente e peça seu nome " +
	"de forma amigável e profissional."

func directiveWelcomeAskType(name string) string {
	return fmt.Sprintf("O cliente acabou de informar que se chama %q. Por favor, dê boas vindas "+
		"e pergunte se é um cliente final ou lojista/revendedor de uma forma amigável e profissional.", name)
}

func directiveWholesale(name string) string {
	return fmt.Sprintf("O cliente %s é um lojista/revendedor. Por favor, explique nossas condições "+
		"especiais de atacado, descontos progressivos e parcelamento, e pergunte sobre a quantidade "+
		"de interesse.", name)
}

func directiveRetail(name string) string {
	return fmt.Sprintf("O cliente %s é um cliente final para uso pessoal. Por favor, dê boas vindas "+
		"e pergunte sobre qual estilo de relógio ele procura (clássico, esportivo ou casual).", name)
}

// Canned replies for scripted turns.
const (
	msgAskName = "Olá! 👋 Seja bem-vindo à nossa loja de relógios. Para começar, qual é o seu nome?"

	msgNameTooShort = "Desculpe, não entendi seu nome. Pode escrever de novo, por favor?"

	msgAskTypeAgain = "Só para eu te atender melhor: você é um *cliente final* (compra para uso " +
		"pessoal) ou *lojista/revendedor*?"

	msgReservationHint = "Para reservar um produto, envie: *reservar <número>*. " +
		"Envie *catálogo* para ver a lista numerada de produtos."

	msgCorrectNameHint = "Para corrigir seu nome, envie: *corrigir nome <seu nome>*."

	msgGenericFallback = "Desculpe, tivemos um problema ao processar sua mensagem. " +
		"Pode tentar de novo em instantes? 🙏"
)

func msgAskType(name string) string {
	return fmt.Sprintf("Prazer em te conhecer, %s! 😊 Você é um *cliente final* (compra para uso "+
		"pessoal) ou *lojista/revendedor*?", name)
}

func msgWholesaleWelcome(name string) string {
	return fmt.Sprintf("Ótimo, %s! Trabalhamos com condições especiais de atacado, descontos "+
		"progressivos por quantidade e parcelamento. Qual quantidade você tem interesse?", name)
}

func msgRetailWelcome(name string) string {
	return fmt.Sprintf("Que bom te receber, %s! 😊 Qual estilo de relógio você procura: "+
		"*clássico*, *esportivo* ou *casual*?", name)
}

func customerTypeLabel(t models.CustomerType) string {
	if t == models.CustomerTypeWholesale {
		return "lojista/revendedor (atacado)"
	}
	return "cliente final (varejo)"
}

// buildMessages assembles the model message list for a free-form turn:
// persona + store info + catalog + retrieved context as the system message,
// then the bounded history, then the current user message. The system
// message pins the model to the supplied catalog so it never invents
// product names or prices.
func buildMessages(cat *catalog.Catalog, state *models.ConversationState, snippets []string, userMsg string) []openai.ChatCompletionMessageParamUnion {
	var sb strings.Builder
	sb.WriteString(systemPersona)

	if state.HasName() {
		fmt.Fprintf(&sb, "\n\nO cliente se chama %s e é um %s.", state.Name, customerTypeLabel(state.CustomerType))
	}
	if state.LastReservationID != "" {
		fmt.Fprintf(&sb, " A última reserva do cliente foi o produto %s.", state.LastReservationID)
	}

	if cat != nil {
		sb.WriteString("\n\n")
		sb.WriteString(catalog.FormatStoreInfo(cat.StoreInfo()))
		sb.WriteString("\n\nProdutos disponíveis:\n")
		for _, p := range cat.Products() {
			fmt.Fprintf(&sb, "- %s (%s, %s): %s\n", p.Name, p.ID, p.Category, catalog.FormatPrice(p.Price))
		}
		sb.WriteString("\nUse somente os nomes e preços de produtos listados acima. " +
			"Nunca invente produtos, preços ou condições que não estejam listados.")
	}

	if len(snippets) > 0 {
		sb.WriteString("\n\nContexto relevante para esta pergunta:\n")
		for _, s := range snippets {
			sb.WriteString("- ")
			sb.WriteString(s)
			sb.WriteString("\n")
		}
	}

	messages := make([]openai.ChatCompletionMessageParamUnion, 0, len(state.History)+2)
	messages = append(messages, openai.SystemMessage(sb.String()))
	for _, h := range state.History {
		if h.Role == "assistant" {
			messages = append(messages, openai.AssistantMessage(h.Content))
		} else {
			messages = append(messages, openai.UserMessage(h.Content))
		}
	}
	messages = append(messages, openai.UserMessage(userMsg))
	return messages
}
