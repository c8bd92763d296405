package choices

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/charmbracelet/log"
	"github.com/openai/openai-go/v3"

	"taleweaver/pkg/inference"
	"taleweaver/pkg/narrative"
	"taleweaver/pkg/schema"
	"taleweaver/pkg/utils"
)

const (
	Count         = 3
	MaxRunes      = 160
	MaxSimilarity = 0.9
	repeatPrefix  = "Try something different: "
	prefixRunes   = 8
)

var fallbackTemplates = [Count]string{
	"Talk to someone about %s",
	"Explore what %s can do",
	"Try something creative with %s",
}

var fallbackTypes = []string{"character", "exploration", "creative"}

var simplifications = []struct {
	rx   *regexp.Regexp
	with string
}{
	{regexp.MustCompile(`(?i)\binvestigate\b`), "look around"},
	{regexp.MustCompile(`(?i)\bexamine\b`), "take a closer look at"},
	{regexp.MustCompile(`(?i)\banalyze\b`), "think about"},
}

var (
	errArity     = errors.New("expected exactly three choices")
	errBlank     = errors.New("blank choice")
	errTooLong   = errors.New("choice too long")
	errDuplicate = errors.New("choices too similar")
)

type Request struct {
	Text            string
	Characters      []string
	Location        string
	Genre           string
	PreviousChoices []string
}

type Response struct {
	Choices     []string `json:"choices"`
	Reasoning   []string `json:"reasoning"`
	ChoiceTypes []string `json:"choiceTypes"`
	Fallback    bool     `json:"-"`
}

// Generator asks a single provider for three choices grounded in the text
// that was just generated.
type Generator struct {
	inferencer inference.Inferencer
	extractor  *narrative.Extractor
	logger     *log.Logger
	onFallback func(reason string)
}

func New(inf inference.Inferencer, extractor *narrative.Extractor, logger *log.Logger) *Generator {
	if logger == nil {
		logger = log.Default()
	}
	return &Generator{
		inferencer: inf,
		extractor:  extractor,
		logger:     logger.WithPrefix("choices"),
	}
}

// OnFallback installs a hook called with a short reason whenever the
// templated choices are returned.
func (g *Generator) OnFallback(fn func(reason string)) {
	g.onFallback = fn
}

// Generate never fails. Any provider or validation problem yields the
// templated fallback.
func (g *Generator) Generate(ctx context.Context, req Request) Response {
	if g.inferencer == nil {
		return g.fallback(req.Text, "no provider", nil)
	}

	params := &openai.ChatCompletionNewParams{
		ResponseFormat: inference.JSONObject(),
		Temperature:    openai.Float(0.8),
	}
	out, err := g.inferencer.Infer(ctx, params, systemPrompt, g.userPrompt(req))
	if err != nil {
		return g.fallback(req.Text, "provider error", err)
	}

	var reply schema.ChoiceReply
	if err := json.Unmarshal([]byte(utils.CleanJSON(out)), &reply); err != nil {
		return g.fallback(req.Text, "invalid json", err)
	}
	if err := validate(reply.Choices); err != nil {
		return g.fallback(req.Text, "invalid choices", err)
	}

	resp := Response{
		Choices:     make([]string, Count),
		Reasoning:   pad(reply.Reasoning),
		ChoiceTypes: pad(reply.ChoiceTypes),
	}
	for i, c := range reply.Choices {
		resp.Choices[i] = PostProcess(c, req.PreviousChoices)
	}
	return resp
}

// Fallback returns the templated choices built around the text's key element.
func (g *Generator) Fallback(text string) Response {
	key := narrative.DefaultKeyElement
	if g.extractor != nil {
		key = g.extractor.KeyElement(text)
	}
	resp := Response{
		Choices:     make([]string, Count),
		Reasoning:   make([]string, Count),
		ChoiceTypes: append([]string(nil), fallbackTypes...),
		Fallback:    true,
	}
	for i, tmpl := range fallbackTemplates {
		resp.Choices[i] = fmt.Sprintf(tmpl, key)
	}
	return resp
}

func (g *Generator) fallback(text, reason string, err error) Response {
	g.logger.Warn("using fallback choices", "reason", reason, "error", err)
	if g.onFallback != nil {
		g.onFallback(reason)
	}
	return g.Fallback(text)
}

func validate(choices []string) error {
	if len(choices) != Count {
		return fmt.Errorf("%w: got %d", errArity, len(choices))
	}
	for i, c := range choices {
		c = strings.TrimSpace(c)
		if c == "" {
			return errBlank
		}
		if utf8.RuneCountInString(c) > MaxRunes {
			return errTooLong
		}
		for _, other := range choices[:i] {
			if utils.Similarity(c, other) >= MaxSimilarity {
				return errDuplicate
			}
		}
	}
	return nil
}

// PostProcess simplifies hard words and marks choices that start like one
// the reader has already seen.
func PostProcess(choice string, previous []string) string {
	choice = Simplify(strings.TrimSpace(choice))
	if repeats(choice, previous) {
		return repeatPrefix + choice
	}
	return choice
}

// Simplify swaps a few complex verbs for easier phrases, keeping an initial
// capital.
func Simplify(s string) string {
	for _, sub := range simplifications {
		s = sub.rx.ReplaceAllStringFunc(s, func(m string) string {
			r, _ := utf8.DecodeRuneInString(m)
			if unicode.IsUpper(r) {
				return capitalize(sub.with)
			}
			return sub.with
		})
	}
	return s
}

func repeats(choice string, previous []string) bool {
	head := strings.ToLower(prefix(choice, prefixRunes))
	if head == "" {
		return false
	}
	for _, p := range previous {
		if strings.HasPrefix(strings.ToLower(strings.TrimSpace(p)), head) {
			return true
		}
	}
	return false
}

func prefix(s string, n int) string {
	r := []rune(s)
	if len(r) > n {
		r = r[:n]
	}
	return string(r)
}

func capitalize(s string) string {
	r, size := utf8.DecodeRuneInString(s)
	if r == utf8.RuneError {
		return s
	}
	return string(unicode.ToUpper(r)) + s[size:]
}

func pad(s []string) []string {
	out := make([]string, Count)
	copy(out, s)
	return out
}
