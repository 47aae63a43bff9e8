package services

import (
	"fmt"
	"strings"

	"github.com/omalmisr/omal-responder/internal/catalog"
	"github.com/omalmisr/omal-responder/internal/models"
)

// Menu payload prefixes.
const (
	PayloadMain    = "MENU_MAIN"
	menuPrefix     = "MENU_"
	submenuPrefix  = "SUBMENU_"
	submenuDivider = "__"
)

// MenuOption is one selectable entry of a rendered menu.
type MenuOption struct {
	Title   string `json:"title"`
	Payload string `json:"payload"`
}

// MenuPage is the response to a menu payload: text plus the options that
// can be chosen next.
type MenuPage struct {
	Text    string       `json:"text"`
	Options []MenuOption `json:"options,omitempty"`
}

// Menu renders the service tree for postback-driven navigation.
type Menu struct {
	cat *catalog.Catalog
}

// NewMenu creates a menu over the catalog's service tree.
func NewMenu(cat *catalog.Catalog) *Menu {
	return &Menu{cat: cat}
}

// MainPayload is the payload that opens the top-level service for id.
func MainPayload(id string) string {
	return menuPrefix + id
}

// SubmenuPayload is the payload for a child service under main.
func SubmenuPayload(main, sub string) string {
	return submenuPrefix + main + submenuDivider + sub
}

// Lookup resolves a payload. Unknown payloads return ok=false.
func (m *Menu) Lookup(payload string) (MenuPage, bool) {
	switch {
	case payload == PayloadMain:
		return m.main(), true
	case strings.HasPrefix(payload, submenuPrefix):
		rest := strings.TrimPrefix(payload, submenuPrefix)
		mainID, subID, ok := strings.Cut(rest, submenuDivider)
		if !ok {
			return MenuPage{}, false
		}
		parent, ok := m.top(mainID)
		if !ok {
			return MenuPage{}, false
		}
		for _, child := range parent.Submenu {
			if child.ID == subID {
				return MenuPage{
					Text:    detail(child),
					Options: []MenuOption{{Title: "القائمة الرئيسية", Payload: PayloadMain}},
				}, true
			}
		}
		return MenuPage{}, false
	case strings.HasPrefix(payload, menuPrefix):
		id := strings.TrimPrefix(payload, menuPrefix)
		svc, ok := m.top(id)
		if !ok {
			return MenuPage{}, false
		}
		if svc.IsLeaf() {
			return MenuPage{Text: detail(svc)}, true
		}
		page := MenuPage{Text: fmt.Sprintf("%s %s\n\n%s", svc.Icon, svc.Title, svc.Description)}
		for _, child := range svc.Submenu {
			page.Options = append(page.Options, MenuOption{
				Title:   strings.TrimSpace(child.Icon + " " + child.Title),
				Payload: SubmenuPayload(svc.ID, child.ID),
			})
		}
		page.Options = append(page.Options, MenuOption{Title: "القائمة الرئيسية", Payload: PayloadMain})
		return page, true
	}
	return MenuPage{}, false
}

func (m *Menu) main() MenuPage {
	page := MenuPage{Text: "اختر الخدمة التي تهمك من " + m.cat.Organization + ":"}
	for _, svc := range m.cat.Services {
		page.Options = append(page.Options, MenuOption{
			Title:   strings.TrimSpace(svc.Icon + " " + svc.Title),
			Payload: MainPayload(svc.ID),
		})
	}
	return page
}

func (m *Menu) top(id string) (models.ServicePointer, bool) {
	for _, svc := range m.cat.Services {
		if svc.ID == id {
			return svc, true
		}
	}
	return models.ServicePointer{}, false
}

func detail(svc models.ServicePointer) string {
	return fmt.Sprintf("📋 %s\n\n%s\n\n🔗 الرابط: %s", svc.Title, svc.Description, svc.URL)
}
