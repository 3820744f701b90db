package types

import (
	"strconv"
	"strings"
)

const (
	UsageProviderKey     = "usage_provider"
	UsageModelKey        = "usage_model"
	UsageInputTokensKey  = "usage_input_tokens"
	UsageOutputTokensKey = "usage_output_tokens"
	UsageTotalTokensKey  = "usage_total_tokens"
)

// ReplyChannelData serializes reply metadata into activity channel data.
func ReplyChannelData(reply Reply) map[string]string {
	metadata := map[string]string{}
	if reply.Metadata.Provider != "" {
		metadata[UsageProviderKey] = reply.Metadata.Provider
	}
	if reply.Metadata.Model != "" {
		metadata[UsageModelKey] = reply.Metadata.Model
	}
	if usage := reply.Metadata.Usage; usage != nil {
		metadata[UsageInputTokensKey] = strconv.FormatInt(usage.InputTokens, 10)
		metadata[UsageOutputTokensKey] = strconv.FormatInt(usage.OutputTokens, 10)
		metadata[UsageTotalTokensKey] = strconv.FormatInt(usage.TotalTokens, 10)
	}

	if len(metadata) == 0 {
		return nil
	}

	return metadata
}

// UsageFromChannelData reconstructs token usage written by ReplyChannelData.
// It returns nil when no usage was recorded.
func UsageFromChannelData(data map[string]string) *TokenUsage {
	if data == nil {
		return nil
	}

	usage := &TokenUsage{
		InputTokens:  parseInt64(data[UsageInputTokensKey]),
		OutputTokens: parseInt64(data[UsageOutputTokensKey]),
		TotalTokens:  parseInt64(data[UsageTotalTokensKey]),
	}
	if usage.IsZero() {
		return nil
	}

	return usage
}

func parseInt64(value string) int64 {
	parsed, err := strconv.ParseInt(strings.TrimSpace(value), 10, 64)
	if err != nil {
		return 0
	}

	return parsed
}
