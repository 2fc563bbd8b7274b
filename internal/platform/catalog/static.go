// Pacote catalog reconhece os países aceitos em votos e salas de chat.
package catalog

import (
	"fmt"
	"sort"
	"strings"

	"github.com/marcelojr/pais-ao-vivo/internal/domain"
)

// DefaultCountries é usada quando COUNTRIES não é informado.
var DefaultCountries = []string{
	"Australia", "Brazil", "Canada", "China", "France", "Germany",
	"India", "Japan", "Russia", "Turkey", "UK", "USA",
}

// Static é um catálogo imutável carregado na inicialização.
type Static struct {
	nomes map[string]struct{}
	lista []string
}

// New valida a lista e recusa o nome reservado da sala global.
func New(countries []string) (*Static, error) {
	if len(countries) == 0 {
		countries = DefaultCountries
	}

	c := &Static{nomes: make(map[string]struct{}, len(countries))}
	for _, nome := range countries {
		nome = strings.TrimSpace(nome)
		if nome == "" {
			continue
		}
		if strings.EqualFold(nome, string(domain.GlobalRoom)) {
			return nil, fmt.Errorf("catalog: %q e reservado para a sala global", nome)
		}
		if _, dup := c.nomes[nome]; dup {
			continue
		}
		c.nomes[nome] = struct{}{}
		c.lista = append(c.lista, nome)
	}
	if len(c.lista) == 0 {
		return nil, fmt.Errorf("catalog: nenhum pais configurado")
	}
	sort.Strings(c.lista)
	return c, nil
}

func (c *Static) Exists(country string) bool {
	_, ok := c.nomes[country]
	return ok
}

func (c *Static) List() []string {
	out := make([]string, len(c.lista))
	copy(out, c.lista)
	return out
}
