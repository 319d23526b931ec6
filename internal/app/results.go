package app

import (
	"encoding/json"
	"fmt"
	"math"
	"strings"

	"namecard/pkg/ai"
	"namecard/pkg/domain"
)

// QuizQuestion is one multiple-choice question about the owner.
type QuizQuestion struct {
	Q       string   `json:"q"`
	Options []string `json:"options"`
	Answer  int      `json:"answer"`
}

type Quiz struct {
	Questions []QuizQuestion `json:"questions"`
}

// Synergy is the compatibility verdict between owner and visitor.
type Synergy struct {
	Score  int    `json:"score"`
	Title  string `json:"title"`
	Reason string `json:"reason"`
}

// Grade is a scored quiz attempt.
type Grade struct {
	Score   int    `json:"score"`
	Correct int    `json:"correct"`
	Total   int    `json:"total"`
	Rank    string `json:"rank"`
}

// parseQuiz keeps well-formed questions, at most limit of them.
func parseQuiz(text string, limit int) (Quiz, error) {
	var raw Quiz
	if err := json.Unmarshal([]byte(ai.StripCodeFence(text)), &raw); err != nil {
		return Quiz{}, fmt.Errorf("%w: quiz: %v", ErrMalformedModelOutput, err)
	}
	out := Quiz{Questions: make([]QuizQuestion, 0, len(raw.Questions))}
	for _, q := range raw.Questions {
		q.Q = strings.TrimSpace(q.Q)
		if q.Q == "" || len(q.Options) < 2 || q.Answer < 0 || q.Answer >= len(q.Options) {
			continue
		}
		out.Questions = append(out.Questions, q)
		if len(out.Questions) == limit {
			break
		}
	}
	if len(out.Questions) == 0 {
		return Quiz{}, fmt.Errorf("%w: quiz has no usable questions", ErrMalformedModelOutput)
	}
	return out, nil
}

func parseSynergy(text string) (Synergy, error) {
	var raw struct {
		Score  float64 `json:"score"`
		Title  string  `json:"title"`
		Reason string  `json:"reason"`
	}
	if err := json.Unmarshal([]byte(ai.StripCodeFence(text)), &raw); err != nil {
		return Synergy{}, fmt.Errorf("%w: synergy: %v", ErrMalformedModelOutput, err)
	}
	out := Synergy{
		Score:  int(math.Round(math.Max(0, math.Min(100, raw.Score)))),
		Title:  strings.TrimSpace(raw.Title),
		Reason: strings.TrimSpace(raw.Reason),
	}
	if out.Title == "" && out.Reason == "" {
		return Synergy{}, fmt.Errorf("%w: synergy has no verdict", ErrMalformedModelOutput)
	}
	return out, nil
}

// GradeQuiz scores answers against the answer key.
func GradeQuiz(answers, key []int) (Grade, error) {
	if len(key) == 0 {
		return Grade{}, invalidInput("answer key is required")
	}
	if len(answers) != len(key) {
		return Grade{}, invalidInput("expected %d answers, got %d", len(key), len(answers))
	}
	correct := 0
	for i := range key {
		if answers[i] == key[i] {
			correct++
		}
	}
	score := correct * 100 / len(key)
	return Grade{Score: score, Correct: correct, Total: len(key), Rank: rankFor(score)}, nil
}

func rankFor(score int) string {
	switch {
	case score == 100:
		return "soul mate"
	case score >= 80:
		return "true friend"
	case score >= 60:
		return "close friend"
	default:
		return "needs effort"
	}
}

// translatable holds the human-readable text of a card. Ids, links and
// layout stay out of it so a translation cannot break them.
type translatable struct {
	Name           string                `json:"name"`
	Role           string                `json:"role"`
	Intro          string                `json:"intro"`
	History        []domain.HistoryItem  `json:"history"`
	Projects       []domain.Item         `json:"projects"`
	CustomSections []translatableSection `json:"custom_sections"`
	Certifications []domain.Item         `json:"certifications"`
	Awards         []domain.Item         `json:"awards"`
	Research       []domain.Item         `json:"research"`
	SectionTitles  map[string]string     `json:"section_titles"`
}

type translatableSection struct {
	Title string        `json:"title"`
	Items []domain.Item `json:"items"`
}

func translatableFrom(c domain.CardContent) translatable {
	t := translatable{
		Name:           c.Name,
		Role:           c.Role,
		Intro:          c.Intro,
		History:        c.History,
		Projects:       make([]domain.Item, 0, len(c.Projects)),
		CustomSections: make([]translatableSection, 0, len(c.CustomSections)),
		Certifications: c.Certifications,
		Awards:         c.Awards,
		Research:       c.Research,
		SectionTitles:  make(map[string]string, len(c.SectionConfig)),
	}
	for _, p := range c.Projects {
		t.Projects = append(t.Projects, domain.Item{Title: p.Title, Desc: p.Desc})
	}
	for _, cs := range c.CustomSections {
		t.CustomSections = append(t.CustomSections, translatableSection{Title: cs.Title, Items: cs.Items})
	}
	for id, conf := range c.SectionConfig {
		t.SectionTitles[id] = conf.Title
	}
	return t
}

// parseTranslation applies translated text onto a copy of the original.
// Entries the model dropped keep their original text.
func parseTranslation(text string, original domain.CardContent) (domain.CardContent, error) {
	var t translatable
	if err := json.Unmarshal([]byte(ai.StripCodeFence(text)), &t); err != nil {
		return domain.CardContent{}, fmt.Errorf("%w: translation: %v", ErrMalformedModelOutput, err)
	}
	out := original.WithDefaults()
	out.TMIData = ""
	setText(&out.Name, t.Name)
	setText(&out.Role, t.Role)
	setText(&out.Intro, t.Intro)

	out.History = append([]domain.HistoryItem{}, out.History...)
	for i := range out.History {
		if i >= len(t.History) {
			break
		}
		setText(&out.History[i].Date, t.History[i].Date)
		setText(&out.History[i].Title, t.History[i].Title)
		setText(&out.History[i].Desc, t.History[i].Desc)
	}
	out.Projects = append([]domain.Project{}, out.Projects...)
	for i := range out.Projects {
		if i >= len(t.Projects) {
			break
		}
		setText(&out.Projects[i].Title, t.Projects[i].Title)
		setText(&out.Projects[i].Desc, t.Projects[i].Desc)
	}
	sections := make([]domain.CustomSection, len(out.CustomSections))
	for i, cs := range out.CustomSections {
		if i < len(t.CustomSections) {
			setText(&cs.Title, t.CustomSections[i].Title)
			cs.Items = translateItems(cs.Items, t.CustomSections[i].Items)
		}
		sections[i] = cs
	}
	out.CustomSections = sections
	out.Certifications = translateItems(out.Certifications, t.Certifications)
	out.Awards = translateItems(out.Awards, t.Awards)
	out.Research = translateItems(out.Research, t.Research)

	config := make(map[string]domain.SectionConfig, len(out.SectionConfig))
	for id, conf := range out.SectionConfig {
		setText(&conf.Title, t.SectionTitles[id])
		config[id] = conf
	}
	out.SectionConfig = config
	return out, nil
}

func translateItems(original, translated []domain.Item) []domain.Item {
	out := append([]domain.Item{}, original...)
	for i := range out {
		if i >= len(translated) {
			break
		}
		setText(&out[i].Title, translated[i].Title)
		setText(&out[i].Desc, translated[i].Desc)
	}
	return out
}

func setText(dst *string, v string) {
	if v = strings.TrimSpace(v); v != "" {
		*dst = v
	}
}
