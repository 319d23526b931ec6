package app

import (
	"encoding/json"
	"fmt"
	"strings"

	"namecard/pkg/domain"
)

// unknownAnswer is what the persona says when the profile does not cover a question.
const unknownAnswer = "Sorry, I'm not sure about that. Could you ask me by email?"

type prompt struct {
	system string
	user   string
	json   bool
}

// profile is the owner data a prompt is built from.
type profile struct {
	Name string
	Role string
	Raw  json.RawMessage
}

func profileFromCard(card domain.Card, mode Mode) (profile, error) {
	content := card.CardContent.WithDefaults()
	var (
		raw []byte
		err error
	)
	if mode == ModeTranslate {
		raw, err = json.Marshal(translatableFrom(content))
	} else {
		raw, err = json.Marshal(promptContent(content))
	}
	if err != nil {
		return profile{}, fmt.Errorf("encode profile: %w", err)
	}
	return profile{Name: content.Name, Role: content.Role, Raw: raw}, nil
}

// profileFromContext accepts the card JSON a client sent along. It must be an object.
func profileFromContext(raw json.RawMessage) (profile, error) {
	var fields map[string]any
	if len(raw) == 0 || json.Unmarshal(raw, &fields) != nil || len(fields) == 0 {
		return profile{}, invalidInput("context must be a non-empty JSON object")
	}
	compact, err := json.Marshal(fields)
	if err != nil {
		return profile{}, fmt.Errorf("encode context: %w", err)
	}
	name, _ := fields["name"].(string)
	role, _ := fields["role"].(string)
	return profile{Name: strings.TrimSpace(name), Role: strings.TrimSpace(role), Raw: compact}, nil
}

// promptContent drops layout fields the model has no use for.
func promptContent(c domain.CardContent) map[string]any {
	out := map[string]any{
		"name":           c.Name,
		"role":           c.Role,
		"intro":          c.Intro,
		"links":          c.Links,
		"history":        c.History,
		"projects":       c.Projects,
		"customSections": c.CustomSections,
		"certifications": c.Certifications,
		"awards":         c.Awards,
		"research":       c.Research,
	}
	if c.TMIData != "" {
		out["tmi"] = c.TMIData
	}
	if c.OwnerMBTI != "" {
		out["mbti"] = c.OwnerMBTI
	}
	return out
}

func (p profile) displayName() string {
	if p.Name == "" {
		return "the card owner"
	}
	return p.Name
}

func chatPrompt(p profile, message string) prompt {
	var b strings.Builder
	fmt.Fprintf(&b, "You are the AI assistant of %s", p.displayName())
	if p.Role != "" {
		fmt.Fprintf(&b, " (%s)", p.Role)
	}
	b.WriteString(".\n")
	b.WriteString("Answer politely in the first person, reflecting the owner's tone and personality.\n")
	b.WriteString("Answer in the language the visitor writes in.\n")
	fmt.Fprintf(&b, "When the profile does not cover a question, say honestly: %q\n", unknownAnswer)
	fmt.Fprintf(&b, "[Profile]: %s\n", p.Raw)
	return prompt{system: b.String(), user: message}
}

func quizPrompt(p profile, questions int) prompt {
	var b strings.Builder
	fmt.Fprintf(&b, "You are the AI persona of %s", p.displayName())
	if p.Role != "" {
		fmt.Fprintf(&b, " (%s)", p.Role)
	}
	b.WriteString(". Keep the owner's professional identity; be courteous and witty, never a party host.\n\n")
	fmt.Fprintf(&b, "Write a %d-question \"how well do you know me\" quiz for a visitor, based only on facts in [Profile].\n\n", questions)
	b.WriteString("Strict rules:\n")
	b.WriteString("1. Ask only about facts stated in [Profile]. Never invent.\n")
	b.WriteString("2. If there is not enough information, write fewer questions instead of padding.\n")
	b.WriteString("3. Wrong options must be plausible.\n")
	b.WriteString("4. Use correct spelling and spacing.\n")
	b.WriteString("5. Every question has exactly 3 options and answer is 0, 1 or 2.\n\n")
	b.WriteString(`Respond only with JSON: {"questions":[{"q":"question","options":["a","b","c"],"answer":0}]}`)
	fmt.Fprintf(&b, "\n\n[Profile]: %s\n", p.Raw)
	return prompt{system: b.String(), user: "Check the profile facts and write the quiz.", json: true}
}

func synergyPrompt(p profile, visitor Visitor) prompt {
	visitorJSON, _ := json.Marshal(visitor)
	var b strings.Builder
	b.WriteString("You are an expert in careers and personality analysis.\n")
	fmt.Fprintf(&b, "Compare the card owner (%s) with the visitor and analyse their working and personality compatibility.\n\n", p.displayName())
	fmt.Fprintf(&b, "[Owner]: %s\n", p.Raw)
	fmt.Fprintf(&b, "[Visitor]: %s\n\n", visitorJSON)
	b.WriteString(`Respond only with JSON: {"score": number 0-100, "title": "one-line verdict", "reason": "three positive, hopeful sentences"}`)
	return prompt{system: b.String(), user: "Run the compatibility analysis.", json: true}
}

func translatePrompt(p profile, targetLang string) prompt {
	var b strings.Builder
	fmt.Fprintf(&b, "As a professional translator, translate the values of the JSON below into %s.\n", targetLang)
	b.WriteString("Keep every key and the structure unchanged. Respond only with the JSON.\n")
	fmt.Fprintf(&b, "[Data]: %s\n", p.Raw)
	return prompt{system: b.String(), user: "Translate.", json: true}
}
