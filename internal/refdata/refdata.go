package refdata

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/9gptlog/dossier-analyzer/internal/normalizer"
)

// Nature is the semantic group of an expense element, used to check
// whether an item description fits its budget classification.
type Nature string

const (
	NatureMaterial  Nature = "material"
	NatureService   Nature = "service"
	NaturePermanent Nature = "permanent"
	NatureOther     Nature = "other"
)

type Element struct {
	Name   string `yaml:"name"`
	Nature Nature `yaml:"nature"`
}

// Catalog is the immutable reference data injected into a pipeline run:
// the expense-code catalog and the procuring-unit registry. It is loaded
// once and never mutated, so runs stay deterministic and tests can use
// synthetic catalogs.
type Catalog struct {
	Elements    map[string]Element           `yaml:"elements"`
	SubElements map[string]map[string]string `yaml:"sub_elements"`
	Units       map[string]string            `yaml:"units"`
}

// Load reads a catalog from a YAML file.
func Load(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read catalog file %s: %w", path, err)
	}
	return Parse(data)
}

func Parse(data []byte) (*Catalog, error) {
	var c Catalog
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("failed to parse catalog: %w", err)
	}
	if c.Elements == nil {
		c.Elements = map[string]Element{}
	}
	if c.SubElements == nil {
		c.SubElements = map[string]map[string]string{}
	}
	if c.Units == nil {
		c.Units = map[string]string{}
	}
	return &c, nil
}

// ElementName resolves the element's catalog name, accepting either a
// bare element ("30") or a full expense code ("339030").
func (c *Catalog) ElementName(code string) (string, bool) {
	el, ok := c.Elements[normalizer.Element(code)]
	if !ok {
		return "", false
	}
	return el.Name, true
}

// SubElementName resolves a sub-element's name, falling back to the
// generic entry ("0") when the specific one is missing.
func (c *Catalog) SubElementName(code, sub string) (string, bool) {
	subs, ok := c.SubElements[normalizer.Element(code)]
	if !ok {
		return "", false
	}
	sub = strings.TrimLeft(sub, "0")
	if sub == "" {
		sub = "0"
	}
	if name, ok := subs[sub]; ok {
		return name, true
	}
	name, ok := subs["0"]
	return name, ok
}

// ElementNature returns the element's semantic group, NatureOther when
// the element is unknown.
func (c *Catalog) ElementNature(code string) Nature {
	el, ok := c.Elements[normalizer.Element(code)]
	if !ok || el.Nature == "" {
		return NatureOther
	}
	return el.Nature
}

// UnitName resolves a procuring-unit code to its organization name.
func (c *Catalog) UnitName(code string) (string, bool) {
	name, ok := c.Units[strings.TrimSpace(code)]
	return name, ok
}

// Keyword tables for inferring an item's nature from its description.
// Matching runs on accent-folded lowercase text.
var (
	materialKeywords = []string{
		"aquisicao", "aqs", "material", "produto", "fornecimento",
		"chapa", "parafuso", "tinta", "papel", "cimento", "areia",
		"madeira", "tubo", "fio", "cabo", "peca", "componente",
		"lampada", "bateria", "medicamento", "alimento", "genero",
		"uniforme", "tecido", "combustivel", "lubrificante", "filtro",
		"valvula", "mangueira", "borracha", "plastico", "aco", "ferro",
		"aluminio", "toner", "cartucho", "pilha", "limpeza", "higiene",
		"galvanizado", "calha",
	}
	serviceKeywords = []string{
		"servico", "manutencao", "mnt", "instalacao", "conserto",
		"reparo", "reparacao", "vigilancia", "monitoramento",
		"contratacao", "prestacao", "locacao", "aluguel", "assinatura",
		"consultoria", "assessoria", "treinamento", "capacitacao",
		"hospedagem", "transporte", "frete", "energia eletrica",
		"telefone", "software", "licenca", "impressao", "preventiva",
		"corretiva",
	}
	permanentKeywords = []string{
		"equipamento", "mobiliario", "veiculo", "maquina", "aparelho",
		"instrumento", "aeronave", "embarcacao", "armamento",
	}
)

// DetectNature infers the nature of an item description by keyword
// scoring. An empty result means the description is inconclusive and
// must not be penalized.
func DetectNature(description string) Nature {
	folded := normalizer.Fold(description)
	if folded == "" {
		return ""
	}

	count := func(keywords []string) int {
		n := 0
		for _, kw := range keywords {
			if strings.Contains(folded, kw) {
				n++
			}
		}
		return n
	}

	material := count(materialKeywords)
	service := count(serviceKeywords)
	permanent := count(permanentKeywords)

	switch {
	case material > service && material > permanent:
		return NatureMaterial
	case service > material && service > permanent:
		return NatureService
	case permanent > material && permanent > service:
		return NaturePermanent
	}
	return ""
}
