// Package catalog loads the read-only content the engine answers from:
// the knowledge base, the service tree, keyword lexicons, expression pools
// and reply templates.
package catalog

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"
	"gopkg.in/yaml.v3"

	"github.com/omalmisr/omal-responder/internal/models"
)

// ErrMalformedCatalog is returned when a catalog fails to parse or validate.
var ErrMalformedCatalog = errors.New("malformed catalog")

//go:embed default_catalog.yaml
var defaultCatalog []byte

//go:embed catalog.schema.json
var catalogSchema []byte

const schemaURL = "catalog.schema.json"

// Expression pool names.
const (
	PoolGreetings    = "greetings"
	PoolPositive     = "positive_responses"
	PoolJobSeekers   = "job_seekers_response"
	PoolInvestors    = "investors_response"
	PoolConclusions  = "conclusions"
	PoolGeneralInfo  = "general_info"
	PoolHumanContact = "human_contact"
)

// ContactInfo holds the organization's public contact channels.
type ContactInfo struct {
	Phone   string            `yaml:"phone" json:"phone"`
	Email   string            `yaml:"email" json:"email"`
	Website string            `yaml:"website" json:"website"`
	Social  map[string]string `yaml:"social,omitempty" json:"social,omitempty"`
}

// ServiceBucket maps an ordered keyword list to a top-level service id.
type ServiceBucket struct {
	Service  string   `yaml:"service" json:"service"`
	Keywords []string `yaml:"keywords" json:"keywords"`
}

// CategoryRule maps an ordered keyword list to a category.
type CategoryRule struct {
	Category models.Category `yaml:"category" json:"category"`
	Keywords []string        `yaml:"keywords" json:"keywords"`
}

// DialogueLexicon holds the prompts and cue words of the state machine.
type DialogueLexicon struct {
	NamePrompt      string   `yaml:"name_prompt" json:"name_prompt"`
	NameWelcome     string   `yaml:"name_welcome" json:"name_welcome"`
	NamePlaceholder string   `yaml:"name_placeholder" json:"name_placeholder"`
	PrivateGreeting string   `yaml:"private_greeting" json:"private_greeting"`
	PublicGreeting  string   `yaml:"public_greeting" json:"public_greeting"`
	NamePrefixes    []string `yaml:"name_prefixes" json:"name_prefixes"`
	Honorifics      []string `yaml:"honorifics" json:"honorifics"`
	ContinueCues    []string `yaml:"continue_cues" json:"continue_cues"`
	EndCues         []string `yaml:"end_cues" json:"end_cues"`
}

// SanitizeRules lists the terms that must never reach a user.
type SanitizeRules struct {
	Replacement string   `yaml:"replacement" json:"replacement"`
	Terms       []string `yaml:"terms" json:"terms"`
}

// CommentLexicon drives the public-comment admission filter.
type CommentLexicon struct {
	MinLength       int      `yaml:"min_length" json:"min_length"`
	PraiseMaxLength int      `yaml:"praise_max_length" json:"praise_max_length"`
	Job             []string `yaml:"job" json:"job"`
	Investor        []string `yaml:"investor" json:"investor"`
	Media           []string `yaml:"media" json:"media"`
	Praise          []string `yaml:"praise" json:"praise"`
	Unwanted        []string `yaml:"unwanted" json:"unwanted"`
}

// Catalog is the full content bundle. It is immutable after Load.
type Catalog struct {
	Organization         string                  `yaml:"organization" json:"organization"`
	Contact              ContactInfo             `yaml:"contact" json:"contact"`
	Knowledge            []models.KnowledgeItem  `yaml:"knowledge" json:"knowledge"`
	Services             []models.ServicePointer `yaml:"services" json:"services"`
	DetectionIgnore      []string                `yaml:"detection_ignore" json:"detection_ignore"`
	ServiceKeywords      []ServiceBucket         `yaml:"service_keywords" json:"service_keywords"`
	Categories           []CategoryRule          `yaml:"categories" json:"categories"`
	Expressions          map[string][]string     `yaml:"expressions" json:"expressions"`
	FollowUps            map[string][]string     `yaml:"follow_ups" json:"follow_ups"`
	Dialogue             DialogueLexicon         `yaml:"dialogue" json:"dialogue"`
	Sanitize             SanitizeRules           `yaml:"sanitize" json:"sanitize"`
	Comments             CommentLexicon          `yaml:"comments" json:"comments"`
	HumanContactKeywords []string                `yaml:"human_contact_keywords" json:"human_contact_keywords"`
	Templates            map[string]string       `yaml:"templates" json:"templates"`
	TemplateTriggers     map[string][]string     `yaml:"template_triggers" json:"template_triggers"`
}

// Default returns the catalog compiled into the binary.
func Default() (*Catalog, error) {
	return Parse(defaultCatalog)
}

// Load reads and validates a catalog file. An empty path loads the
// built-in catalog.
func Load(path string) (*Catalog, error) {
	if path == "" {
		return Default()
	}
	data, err := os.ReadFile(path) //nolint:gosec // operator-supplied catalog path
	if err != nil {
		return nil, fmt.Errorf("reading catalog %s: %w", path, err)
	}
	cat, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("catalog %s: %w", path, err)
	}
	return cat, nil
}

// Parse decodes YAML (or JSON) catalog bytes, checks them against the
// catalog schema, then runs the structural checks in Validate.
func Parse(data []byte) (*Catalog, error) {
	if err := validateSchema(data); err != nil {
		return nil, err
	}
	var cat Catalog
	if err := yaml.Unmarshal(data, &cat); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedCatalog, err)
	}
	if err := cat.Validate(); err != nil {
		return nil, err
	}
	return &cat, nil
}

func validateSchema(data []byte) error {
	var doc any
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedCatalog, err)
	}
	// Round-trip through JSON so the validator sees plain JSON values.
	raw, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedCatalog, err)
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedCatalog, err)
	}

	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource(schemaURL, bytes.NewReader(catalogSchema)); err != nil {
		return fmt.Errorf("loading catalog schema: %w", err)
	}
	schema, err := compiler.Compile(schemaURL)
	if err != nil {
		return fmt.Errorf("compiling catalog schema: %w", err)
	}
	if err := schema.Validate(v); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedCatalog, err)
	}
	return nil
}

// Validate checks the invariants the schema cannot express: unique ids,
// leaf URLs, and keyword buckets that point at real services.
func (c *Catalog) Validate() error {
	seen := make(map[string]bool)
	for _, item := range c.Knowledge {
		if seen[item.ID] {
			return fmt.Errorf("%w: duplicate knowledge id %q", ErrMalformedCatalog, item.ID)
		}
		seen[item.ID] = true
	}

	serviceIDs := make(map[string]bool)
	var walk func(nodes []models.ServicePointer) error
	walk = func(nodes []models.ServicePointer) error {
		for _, n := range nodes {
			if serviceIDs[n.ID] {
				return fmt.Errorf("%w: duplicate service id %q", ErrMalformedCatalog, n.ID)
			}
			serviceIDs[n.ID] = true
			if n.IsLeaf() && strings.TrimSpace(n.URL) == "" {
				return fmt.Errorf("%w: service %q has no url", ErrMalformedCatalog, n.ID)
			}
			if err := walk(n.Submenu); err != nil {
				return err
			}
		}
		return nil
	}
	if err := walk(c.Services); err != nil {
		return err
	}

	for _, b := range c.ServiceKeywords {
		svc, ok := c.Service(b.Service)
		if !ok {
			return fmt.Errorf("%w: keyword bucket references unknown service %q", ErrMalformedCatalog, b.Service)
		}
		if svc.URL == "" {
			return fmt.Errorf("%w: detectable service %q has no url", ErrMalformedCatalog, b.Service)
		}
	}
	for _, r := range c.Categories {
		if !r.Category.IsValid() {
			return fmt.Errorf("%w: unknown category %q", ErrMalformedCatalog, r.Category)
		}
	}
	return nil
}

// Service finds a service node anywhere in the tree by id.
func (c *Catalog) Service(id string) (models.ServicePointer, bool) {
	var find func(nodes []models.ServicePointer) (models.ServicePointer, bool)
	find = func(nodes []models.ServicePointer) (models.ServicePointer, bool) {
		for _, n := range nodes {
			if n.ID == id {
				return n, true
			}
			if sub, ok := find(n.Submenu); ok {
				return sub, true
			}
		}
		return models.ServicePointer{}, false
	}
	return find(c.Services)
}

// Expression returns the named pool, or nil.
func (c *Catalog) Expression(pool string) []string {
	return c.Expressions[pool]
}

// ContactBlock renders the contact template with the catalog's contact info.
func (c *Catalog) ContactBlock() string {
	return c.Fill(c.Templates["contact"], nil)
}

// Fill substitutes {phone}, {email}, {website}, {organization} and any
// extra placeholders in tmpl.
func (c *Catalog) Fill(tmpl string, extra map[string]string) string {
	pairs := []string{
		"{phone}", c.Contact.Phone,
		"{email}", c.Contact.Email,
		"{website}", c.Contact.Website,
		"{organization}", c.Organization,
	}
	for k, v := range extra {
		pairs = append(pairs, "{"+k+"}", v)
	}
	return strings.NewReplacer(pairs...).Replace(tmpl)
}
