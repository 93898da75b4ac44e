package relay

// Role tags a transcript turn with its speaker.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Turn is a single message in a conversation. Immutable once created.
type Turn struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// DefaultSystemPrompt is the tutor persona seeded at index 0 of every transcript.
const DefaultSystemPrompt = "You are a friendly AI tutor. Explain concepts clearly and concisely, " +
	"encourage the student, and keep answers short enough to be read aloud."

// trimTurns bounds a transcript to maxLen turns. While the bound is exceeded it
// drops the two oldest non-system turns (positions 1 and 2); the system turn at
// position 0 is never removed. Dropping by position rather than by user/assistant
// pairing stays correct when an assistant turn was skipped after an upstream
// failure: positions 1,2 are always the two oldest evictable turns.
func trimTurns(turns []Turn, maxLen int) []Turn {
	if maxLen < 3 {
		maxLen = 3
	}
	for len(turns) > maxLen {
		turns = append(turns[:1], turns[3:]...)
	}
	return turns
}
