package gemini

import chatmodel "github.com/sergiecode/gemini-chat-backend/internal/model/chat"

const (
	historyThreshold = 8
	historyKeep      = 6
)

// BuildHistory bounds a role-tagged turn sequence for the request context.
// Sequences of at most 8 turns pass through unchanged. Longer ones keep the
// last 6, and when that slice starts mid-pair with a model turn the leading
// entry is dropped so the window never opens with an unpaired response.
// Only one leading entry is ever dropped; a bare trailing user turn is left
// as is.
func BuildHistory(turns []Content) []Content {
	if len(turns) <= historyThreshold {
		return turns
	}

	kept := turns[len(turns)-historyKeep:]
	if len(kept) > 0 && kept[0].Role == RoleModel {
		return kept[1:]
	}
	return kept
}

// HistoryFromMessages converts stored messages to Gemini turns and applies
// the history window.
func HistoryFromMessages(messages []chatmodel.Message) []Content {
	turns := make([]Content, 0, len(messages))
	for _, msg := range messages {
		role := RoleModel
		if msg.Kind == chatmodel.KindUser {
			role = RoleUser
		}
		turns = append(turns, Content{
			Role:  role,
			Parts: []Part{{Text: msg.Content}},
		})
	}
	return BuildHistory(turns)
}
