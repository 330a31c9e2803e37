package catalog

import (
	"fmt"
	"sort"
	"strings"
)

// FormatPrice renders a price in Brazilian currency format: R$ 1.234,56.
func FormatPrice(price float64) string {
	cents := int64(price*100 + 0.5)
	whole := cents / 100
	frac := cents % 100

	digits := fmt.Sprintf("%d", whole)
	var grouped strings.Builder
	for i, d := range digits {
		if i > 0 && (len(digits)-i)%3 == 0 {
			grouped.WriteByte('.')
		}
		grouped.WriteRune(d)
	}
	return fmt.Sprintf("R$ %s,%02d", grouped.String(), frac)
}

// FormatProductInfo renders a single product as a WhatsApp-formatted block.
func FormatProductInfo(p Product) string {
	var b strings.Builder
	fmt.Fprintf(&b, "*%s*\n", p.Name)
	fmt.Fprintf(&b, "💰 Preço: %s\n", FormatPrice(p.Price))
	if len(p.Characteristics) > 0 {
		b.WriteString("📝 Características:\n")
		for _, c := range p.Characteristics {
			fmt.Fprintf(&b, "• %s\n", c)
		}
	}
	if p.IdealFor != "" {
		fmt.Fprintf(&b, "👥 Ideal para: %s", p.IdealFor)
	}
	return strings.TrimRight(b.String(), "\n")
}

// FormatProductList renders a numbered product list. The positions shown are
// the ones the reservation command accepts.
func FormatProductList(title string, products []Product) string {
	var b strings.Builder
	fmt.Fprintf(&b, "🕐 *%s*\n\n", title)
	for i, p := range products {
		fmt.Fprintf(&b, "%d. %s - %s\n", i+1, p.Name, FormatPrice(p.Price))
	}
	b.WriteString("\nPara reservar um produto, envie: reservar <número>.")
	return b.String()
}

// FormatStoreInfo renders hours, address, contact, and policies.
func FormatStoreInfo(info StoreInfo) string {
	var b strings.Builder
	b.WriteString("ℹ️ *Informações da Loja*\n\n")

	b.WriteString("🕐 *Horário de Funcionamento*\n")
	fmt.Fprintf(&b, "%s\n%s\n%s\n\n", info.Hours.Weekdays, info.Hours.Weekends, info.Hours.Online)

	b.WriteString("📍 *Endereço*\n")
	fmt.Fprintf(&b, "%s\n\n", info.Location.Address)

	b.WriteString("📱 *Contato*\n")
	fmt.Fprintf(&b, "WhatsApp: %s\nInstagram: %s\n\n", info.Contact.WhatsApp, info.Contact.Instagram)

	b.WriteString("💳 *Políticas da Loja*\n")
	for _, key := range sortedPolicyKeys(info.Policies) {
		fmt.Fprintf(&b, "• %s\n", info.Policies[key])
	}
	return strings.TrimRight(b.String(), "\n")
}

// sortedPolicyKeys keeps policy rendering deterministic across runs.
func sortedPolicyKeys(policies map[string]string) []string {
	keys := make([]string, 0, len(policies))
	for k := range policies {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
