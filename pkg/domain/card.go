package domain

import (
	"errors"
	"fmt"
	"strings"
)

const (
	DefaultBackgroundColor = "#ffffff"
	DefaultThemeColor      = "#1a237e"
)

var defaultSectionTitles = map[string]string{
	SectionProfile:  "Profile",
	SectionLinks:    "Links",
	SectionHistory:  "History",
	SectionProjects: "Projects",
}

// WithDefaults returns a copy of the card with every optional field resolved.
// Read sites never need their own fallbacks.
func (c Card) WithDefaults() Card {
	out := c
	out.CardContent = c.CardContent.WithDefaults()
	return out
}

// WithDefaults resolves colors, features, lists and section layout.
func (c CardContent) WithDefaults() CardContent {
	out := c
	colors := Colors{Background: DefaultBackgroundColor, Theme: DefaultThemeColor}
	if c.Colors != nil {
		if strings.TrimSpace(c.Colors.Background) != "" {
			colors.Background = c.Colors.Background
		}
		if strings.TrimSpace(c.Colors.Theme) != "" {
			colors.Theme = c.Colors.Theme
		}
	}
	out.Colors = &colors
	features := Features{}
	if c.Features != nil {
		features = *c.Features
	}
	out.Features = &features

	out.Links = nonNil(c.Links)
	out.History = nonNil(c.History)
	out.Projects = nonNil(c.Projects)
	out.Certifications = nonNil(c.Certifications)
	out.Awards = nonNil(c.Awards)
	out.Research = nonNil(c.Research)
	out.CustomSections = make([]CustomSection, 0, len(c.CustomSections))
	for _, cs := range c.CustomSections {
		cs.Items = nonNil(cs.Items)
		out.CustomSections = append(out.CustomSections, cs)
	}

	out.SectionOrder = out.resolvedOrder()
	config := make(map[string]SectionConfig, len(out.SectionOrder))
	for _, id := range out.SectionOrder {
		conf := c.SectionConfig[id]
		if strings.TrimSpace(conf.Title) == "" {
			conf.Title = out.defaultTitle(id)
		}
		if conf.IsDefaultOpen == nil {
			open := id == SectionProfile || id == SectionHistory
			conf.IsDefaultOpen = &open
		}
		config[id] = conf
	}
	out.SectionConfig = config
	return out
}

// resolvedOrder keeps known ids from the stored order, always starts with
// profile and appends sections missing from the order.
func (c CardContent) resolvedOrder() []string {
	known := c.knownSections()
	seen := make(map[string]bool, len(known))
	order := []string{SectionProfile}
	seen[SectionProfile] = true
	for _, id := range c.SectionOrder {
		if !known[id] || seen[id] {
			continue
		}
		seen[id] = true
		order = append(order, id)
	}
	for _, id := range []string{SectionLinks, SectionHistory, SectionProjects} {
		if !seen[id] {
			seen[id] = true
			order = append(order, id)
		}
	}
	for _, cs := range c.CustomSections {
		if !seen[cs.ID] {
			seen[cs.ID] = true
			order = append(order, cs.ID)
		}
	}
	return order
}

func (c CardContent) knownSections() map[string]bool {
	known := map[string]bool{
		SectionProfile:  true,
		SectionLinks:    true,
		SectionHistory:  true,
		SectionProjects: true,
	}
	for _, cs := range c.CustomSections {
		if cs.ID != "" {
			known[cs.ID] = true
		}
	}
	return known
}

func (c CardContent) defaultTitle(id string) string {
	if title, ok := defaultSectionTitles[id]; ok {
		return title
	}
	for _, cs := range c.CustomSections {
		if cs.ID == id && strings.TrimSpace(cs.Title) != "" {
			return cs.Title
		}
	}
	return "New section"
}

// Validate checks the layout an owner submits before it is stored.
func (c CardContent) Validate() error {
	if strings.TrimSpace(c.Name) == "" {
		return errors.New("name is required")
	}
	customIDs := make(map[string]bool, len(c.CustomSections))
	for _, cs := range c.CustomSections {
		id := strings.TrimSpace(cs.ID)
		if !strings.HasPrefix(id, "custom") {
			return fmt.Errorf("custom section id %q must start with \"custom\"", cs.ID)
		}
		if customIDs[id] {
			return fmt.Errorf("duplicate custom section id %q", id)
		}
		customIDs[id] = true
	}
	known := c.knownSections()
	seen := make(map[string]bool, len(c.SectionOrder))
	for i, id := range c.SectionOrder {
		if !known[id] {
			return fmt.Errorf("unknown section %q in section_order", id)
		}
		if seen[id] {
			return fmt.Errorf("duplicate section %q in section_order", id)
		}
		if id == SectionProfile && i != 0 {
			return errors.New("profile must be the first section")
		}
		seen[id] = true
	}
	for id := range c.SectionConfig {
		if !known[id] {
			return fmt.Errorf("unknown section %q in section_config", id)
		}
	}
	return nil
}

// Public strips owner-only fields before a card is served to visitors.
func (c Card) Public() PublicCard {
	content := c.CardContent.WithDefaults()
	content.TMIData = ""
	return PublicCard{
		CardContent: content,
		ID:          c.ID,
		EnableAI:    c.EnableAI,
	}
}

func nonNil[T any](items []T) []T {
	if items == nil {
		return []T{}
	}
	return items
}
