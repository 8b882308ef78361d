package radolan

import (
	_ "embed"
	"fmt"
	"sync"

	"gopkg.in/yaml.v3"
)

//go:embed products.yaml
var productsYAML []byte

// Product describes one RADOLAN composite product.
type Product struct {
	ID          string `yaml:"id"`
	CellBytes   int    `yaml:"cellbytes"`
	Unit        string `yaml:"unit"`
	Description string `yaml:"description"`
}

var (
	catalogOnce sync.Once
	catalog     map[string]Product
	catalogErr  error
)

// Products returns the embedded product catalog keyed by product id.
func Products() (map[string]Product, error) {
	catalogOnce.Do(func() {
		var doc struct {
			Products []Product `yaml:"products"`
		}
		if err := yaml.Unmarshal(productsYAML, &doc); err != nil {
			catalogErr = fmt.Errorf("parsing product catalog: %w", err)
			return
		}
		catalog = make(map[string]Product, len(doc.Products))
		for _, p := range doc.Products {
			catalog[p.ID] = p
		}
	})
	return catalog, catalogErr
}

// lookupProduct returns the catalog entry for id, or a 2-byte default
// for products the catalog does not know.
func lookupProduct(id string) (Product, error) {
	products, err := Products()
	if err != nil {
		return Product{}, err
	}
	if p, ok := products[id]; ok {
		return p, nil
	}
	return Product{ID: id, CellBytes: 2}, nil
}
