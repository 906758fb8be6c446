package orchestrator

import (
	"github.com/tiktoken-go/tokenizer"

	"github.com/user/emrchat/internal/logging"
	"github.com/user/emrchat/internal/prompts"
)

// charsPerToken is the estimate used when no tokenizer is available
const charsPerToken = 4

// tokenBudget caps the size of a tool result before it enters the history
type tokenBudget struct {
	maxTokens int
	codec     tokenizer.Codec
	prompts   *prompts.Manager
	logger    *logging.Logger
}

func newTokenBudget(maxTokens int, pm *prompts.Manager, logger *logging.Logger) *tokenBudget {
	b := &tokenBudget{maxTokens: maxTokens, prompts: pm, logger: logger}
	if maxTokens <= 0 {
		return b
	}

	codec, err := tokenizer.Get(tokenizer.Cl100kBase)
	if err != nil {
		logger.Warn("tokenizer unavailable, estimating tool result size", logging.Error(err))
		return b
	}
	b.codec = codec
	return b
}

// apply returns text unchanged when it fits, otherwise its leading
// maxTokens tokens followed by a truncation notice.
func (b *tokenBudget) apply(tool, text string) string {
	if b.maxTokens <= 0 {
		return text
	}

	if b.codec == nil {
		total := len(text) / charsPerToken
		if total <= b.maxTokens {
			return text
		}
		return text[:b.maxTokens*charsPerToken] + "\n" + b.notice(tool, total-b.maxTokens, total)
	}

	ids, _, err := b.codec.Encode(text)
	if err != nil || len(ids) <= b.maxTokens {
		return text
	}
	head, err := b.codec.Decode(ids[:b.maxTokens])
	if err != nil {
		return text
	}

	b.logger.Warn("tool result truncated",
		logging.String("tool", tool),
		logging.Int("tokens", len(ids)),
		logging.Int("limit", b.maxTokens))
	return head + "\n" + b.notice(tool, len(ids)-b.maxTokens, len(ids))
}

func (b *tokenBudget) notice(tool string, omitted, total int) string {
	text, err := b.prompts.Render(prompts.ToolResultTruncated, map[string]any{
		"Omitted": omitted,
		"Total":   total,
		"Tool":    tool,
	})
	if err != nil {
		return "[truncated]"
	}
	return text
}
