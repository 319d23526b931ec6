package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"namecard/internal/util"
	"namecard/pkg/ai"
	"namecard/pkg/domain"
	"namecard/pkg/store"
)

// Mode selects the prompt and output format of a gateway call.
type Mode string

const (
	ModeChat      Mode = "chat"
	ModeQuiz      Mode = "quiz"
	ModeSynergy   Mode = "synergy"
	ModeTranslate Mode = "translate"
)

// ParseMode maps the request field to a Mode. Empty means chat.
func ParseMode(raw string) (Mode, error) {
	switch Mode(strings.ToLower(strings.TrimSpace(raw))) {
	case "", ModeChat:
		return ModeChat, nil
	case ModeQuiz:
		return ModeQuiz, nil
	case ModeSynergy:
		return ModeSynergy, nil
	case ModeTranslate:
		return ModeTranslate, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidMode, raw)
	}
}

// Visitor describes the person using the synergy feature.
type Visitor struct {
	Name string `json:"name"`
	MBTI string `json:"mbti"`
	Job  string `json:"job"`
}

// ChatRequest is the body of POST /api/chat.
type ChatRequest struct {
	Message    string          `json:"message"`
	Context    json.RawMessage `json:"context"`
	Mode       string          `json:"mode"`
	TargetLang string          `json:"targetLang"`
	Visitor    *Visitor        `json:"visitorData"`
	Username   string          `json:"username"`
}

// ChatReply carries the raw model reply. Event is set when the reply is a
// keyword prize message instead of model output.
type ChatReply struct {
	Reply string `json:"reply"`
	Event bool   `json:"event,omitempty"`
}

// Chat runs one gateway call. With a username the stored card is the prompt
// context and the card pays for the call; without one the request context is
// used and nothing is charged.
func (a *App) Chat(ctx context.Context, req ChatRequest) (ChatReply, error) {
	mode, err := ParseMode(req.Mode)
	if err != nil {
		return ChatReply{}, err
	}
	message := strings.TrimSpace(req.Message)
	targetLang := strings.TrimSpace(req.TargetLang)
	switch mode {
	case ModeChat:
		if message == "" {
			return ChatReply{}, invalidInput("message is required")
		}
	case ModeTranslate:
		if targetLang == "" {
			return ChatReply{}, invalidInput("targetLang is required")
		}
	case ModeSynergy:
		if req.Visitor == nil {
			return ChatReply{}, invalidInput("visitorData is required")
		}
	}

	cardID := strings.TrimSpace(req.Username)
	var p profile
	if cardID != "" {
		card, err := a.aiCard(ctx, cardID, mode)
		if err != nil {
			return ChatReply{}, err
		}
		if mode == ModeChat {
			if reply, ok := a.detectEvent(ctx, card, message); ok {
				return ChatReply{Reply: reply, Event: true}, nil
			}
		}
		if p, err = profileFromCard(card, mode); err != nil {
			return ChatReply{}, err
		}
	} else if p, err = profileFromContext(req.Context); err != nil {
		return ChatReply{}, err
	}

	var pr prompt
	switch mode {
	case ModeQuiz:
		pr = quizPrompt(p, a.quizQuestions)
	case ModeSynergy:
		pr = synergyPrompt(p, *req.Visitor)
	case ModeTranslate:
		pr = translatePrompt(p, targetLang)
	default:
		pr = chatPrompt(p, message)
	}
	reply, err := a.run(ctx, cardID, mode, reasonFor(mode, targetLang), pr, nil)
	if err != nil {
		return ChatReply{}, err
	}
	return ChatReply{Reply: reply}, nil
}

// Quiz generates a quiz about the card owner.
func (a *App) Quiz(ctx context.Context, cardID string) (Quiz, error) {
	card, err := a.aiCard(ctx, cardID, ModeQuiz)
	if err != nil {
		return Quiz{}, err
	}
	p, err := profileFromCard(card, ModeQuiz)
	if err != nil {
		return Quiz{}, err
	}
	var quiz Quiz
	_, err = a.run(ctx, card.ID, ModeQuiz, reasonFor(ModeQuiz, ""), quizPrompt(p, a.quizQuestions), func(text string) error {
		quiz, err = parseQuiz(text, a.quizQuestions)
		return err
	})
	if err != nil {
		return Quiz{}, err
	}
	return quiz, nil
}

// Synergy scores the compatibility of the owner and a visitor.
func (a *App) Synergy(ctx context.Context, cardID string, visitor Visitor) (Synergy, error) {
	visitor.Name = strings.TrimSpace(visitor.Name)
	visitor.MBTI = strings.ToUpper(strings.TrimSpace(visitor.MBTI))
	visitor.Job = strings.TrimSpace(visitor.Job)
	if visitor.Name == "" || visitor.MBTI == "" {
		return Synergy{}, invalidInput("visitor name and mbti are required")
	}
	card, err := a.aiCard(ctx, cardID, ModeSynergy)
	if err != nil {
		return Synergy{}, err
	}
	p, err := profileFromCard(card, ModeSynergy)
	if err != nil {
		return Synergy{}, err
	}
	var result Synergy
	_, err = a.run(ctx, card.ID, ModeSynergy, reasonFor(ModeSynergy, ""), synergyPrompt(p, visitor), func(text string) error {
		result, err = parseSynergy(text)
		return err
	})
	if err != nil {
		return Synergy{}, err
	}
	return result, nil
}

// Translate returns the visitor view of a card translated into targetLang.
func (a *App) Translate(ctx context.Context, cardID, targetLang string) (domain.PublicCard, error) {
	targetLang = strings.TrimSpace(targetLang)
	if targetLang == "" {
		return domain.PublicCard{}, invalidInput("targetLang is required")
	}
	card, err := a.aiCard(ctx, cardID, ModeTranslate)
	if err != nil {
		return domain.PublicCard{}, err
	}
	p, err := profileFromCard(card, ModeTranslate)
	if err != nil {
		return domain.PublicCard{}, err
	}
	var content domain.CardContent
	_, err = a.run(ctx, card.ID, ModeTranslate, reasonFor(ModeTranslate, targetLang), translatePrompt(p, targetLang), func(text string) error {
		content, err = parseTranslation(text, card.CardContent)
		return err
	})
	if err != nil {
		return domain.PublicCard{}, err
	}
	out := card.Public()
	out.CardContent = content
	return out, nil
}

// aiCard loads a card and checks the requested add-on is switched on. The
// chatbot is always available; quiz, synergy and translation need the AI
// plan and their own feature flag.
func (a *App) aiCard(ctx context.Context, id string, mode Mode) (domain.Card, error) {
	card, err := a.store.GetCard(ctx, strings.TrimSpace(id))
	if err != nil {
		return domain.Card{}, fmt.Errorf("get card: %w", err)
	}
	if mode == ModeChat {
		return card, nil
	}
	features := card.WithDefaults().Features
	enabled := false
	switch mode {
	case ModeQuiz:
		enabled = features.Quiz
	case ModeSynergy:
		enabled = features.Synergy
	case ModeTranslate:
		enabled = features.Translation
	}
	if !card.EnableAI || !enabled {
		return domain.Card{}, fmt.Errorf("%w: %s", ErrAIDisabled, mode)
	}
	return card, nil
}

func reasonFor(mode Mode, targetLang string) string {
	if mode == ModeTranslate {
		return fmt.Sprintf("translate(%s)", targetLang)
	}
	return string(mode)
}

// run charges cardID (when set) for mode, calls the generator and, if check
// is given, validates the output. A failed call or check refunds the charge.
func (a *App) run(ctx context.Context, cardID string, mode Mode, reason string, pr prompt, check func(string) error) (string, error) {
	if a.generator == nil {
		return "", ErrServiceUnavailable
	}
	logger := util.LoggerFromContext(ctx)
	cost := a.costs.of(mode)
	charged := false
	if cardID != "" {
		_, balance, err := a.store.Debit(ctx, cardID, cost, reason)
		if err != nil {
			if errors.Is(err, store.ErrInsufficientBalance) {
				logger.Info("ai call refused", "card_id", cardID, "mode", mode, "cost", cost)
			}
			return "", fmt.Errorf("debit: %w", err)
		}
		charged = cost > 0
		logger.Info("ai call charged", "card_id", cardID, "mode", mode, "cost", cost, "balance", balance)
	}

	var (
		text string
		err  error
	)
	if pr.json {
		text, err = a.generator.GenerateJSON(ctx, pr.system, pr.user)
	} else {
		text, err = a.generator.GenerateText(ctx, pr.system, pr.user)
	}
	if err != nil {
		logger.Error("ai generation failed", "card_id", cardID, "mode", mode, "err", err)
		if charged {
			a.refund(ctx, cardID, mode, cost)
		}
		if errors.Is(err, ai.ErrTruncated) {
			return "", fmt.Errorf("%w: %v", ErrMalformedModelOutput, err)
		}
		return "", fmt.Errorf("%w: %v", ErrUpstream, err)
	}
	if check != nil {
		if err := check(text); err != nil {
			logger.Warn("ai output rejected", "card_id", cardID, "mode", mode, "err", err)
			if charged {
				a.refund(ctx, cardID, mode, cost)
			}
			return "", err
		}
	}
	return text, nil
}

func (a *App) refund(ctx context.Context, cardID string, mode Mode, cost int64) {
	logger := util.LoggerFromContext(ctx)
	_, balance, err := a.store.Credit(context.WithoutCancel(ctx), cardID, cost, fmt.Sprintf("refund(%s)", mode))
	if err != nil {
		logger.Error("ai refund failed", "card_id", cardID, "mode", mode, "cost", cost, "err", err)
		return
	}
	logger.Info("ai call refunded", "card_id", cardID, "mode", mode, "cost", cost, "balance", balance)
}
