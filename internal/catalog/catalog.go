// Package catalog provides read-only access to the product catalog and
// store information, loaded once from a JSON file at startup.
package catalog

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"strings"
)

// Product is a catalog entry. The ID is the stable reference recorded on
// reservations.
type Product struct {
	ID              string   `json:"id"`
	Name            string   `json:"name"`
	Price           float64  `json:"price"`
	Category        string   `json:"category"`
	Characteristics []string `json:"characteristics"`
	IdealFor        string   `json:"idealFor"`
}

// StoreInfo is the static structured record of store hours, address,
// contact, and policies.
type StoreInfo struct {
	Hours struct {
		Weekdays string `json:"weekdays"`
		Weekends string `json:"weekends"`
		Online   string `json:"online"`
	} `json:"hours"`
	Location struct {
		Address string `json:"address"`
	} `json:"location"`
	Contact struct {
		WhatsApp  string `json:"whatsapp"`
		Instagram string `json:"instagram"`
	} `json:"contact"`
	Policies map[string]string `json:"policies"`
}

// Catalog holds the loaded store data.
type Catalog struct {
	info     StoreInfo
	products []Product
}

type storeFile struct {
	StoreInfo StoreInfo `json:"storeInfo"`
	Products  []Product `json:"products"`
}

// Load reads the catalog JSON file once. The data is immutable afterwards.
func Load(path string) (*Catalog, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read store data file: %w", err)
	}

	var data storeFile
	if err := json.Unmarshal(raw, &data); err != nil {
		return nil, fmt.Errorf("failed to parse store data file %s: %w", path, err)
	}

	slog.Info("catalog.Load: store data loaded", "path", path, "products", len(data.Products))
	return &Catalog{info: data.StoreInfo, products: data.Products}, nil
}

// New builds a catalog from in-memory data. Used by tests.
func New(info StoreInfo, products []Product) *Catalog {
	return &Catalog{info: info, products: products}
}

// StoreInfo returns the static store record.
func (c *Catalog) StoreInfo() StoreInfo {
	return c.info
}

// Products returns all products in catalog order.
func (c *Catalog) Products() []Product {
	return c.products
}

// ProductByID looks up a product by its identifier.
func (c *Catalog) ProductByID(id string) (Product, bool) {
	for _, p := range c.products {
		if strings.EqualFold(p.ID, id) {
			return p, true
		}
	}
	return Product{}, false
}

// ProductByPosition looks up a product by its 1-based catalog position, the
// number shown next to it in the formatted product list.
func (c *Catalog) ProductByPosition(pos int) (Product, bool) {
	if pos < 1 || pos > len(c.products) {
		return Product{}, false
	}
	return c.products[pos-1], true
}

// ProductsByCategory returns products whose category matches, case-insensitive.
func (c *Catalog) ProductsByCategory(category string) []Product {
	var out []Product
	for _, p := range c.products {
		if strings.EqualFold(p.Category, category) {
			out = append(out, p)
		}
	}
	return out
}
