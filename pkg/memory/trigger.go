package memory

import "time"

// TriggerKind enumerates the condition types an Intention may watch for
// (component K).
type TriggerKind string

const (
	TriggerKeywordMention TriggerKind = "keyword_mention"
	TriggerTopicDiscussed TriggerKind = "topic_discussed"
	TriggerTimeElapsed    TriggerKind = "time_elapsed"
	TriggerUserMentioned  TriggerKind = "user_mentioned"
	TriggerScheduledTime  TriggerKind = "scheduled_time"
	TriggerContextEntered TriggerKind = "context_entered"
	TriggerAll            TriggerKind = "all"
	TriggerAny            TriggerKind = "any"
)

// Trigger is a (possibly composite) condition attached to an Intention.
// Leaf triggers carry exactly the fields relevant to their Kind; composite
// triggers (All/Any) hold Children and ignore the other fields.
type Trigger struct {
	Kind TriggerKind

	// Keyword is used by TriggerKeywordMention: a token or phrase matched
	// case-insensitively against message text.
	Keyword string

	// Topic and SimilarityThreshold are used by TriggerTopicDiscussed.
	Topic               string
	SimilarityThreshold float64

	// Elapsed is used by TriggerTimeElapsed: duration since the
	// intention's CreatedAt.
	Elapsed time.Duration

	// UserID is used by TriggerUserMentioned.
	UserID string

	// At is used by TriggerScheduledTime: an absolute timestamp.
	At time.Time

	// Channel is used by TriggerContextEntered.
	Channel string

	// Children holds the sub-triggers for All/Any.
	Children []Trigger
}

// KeywordMention builds a leaf trigger that fires when token appears in the
// evaluated message text.
func KeywordMention(token string) Trigger {
	return Trigger{Kind: TriggerKeywordMention, Keyword: token}
}

// TopicDiscussed builds a leaf trigger that fires when the evaluated
// message's embedding is within threshold cosine similarity of topic's.
func TopicDiscussed(topic string, threshold float64) Trigger {
	return Trigger{Kind: TriggerTopicDiscussed, Topic: topic, SimilarityThreshold: threshold}
}

// TimeElapsed builds a leaf trigger that fires once d has elapsed since the
// owning intention's CreatedAt.
func TimeElapsed(d time.Duration) Trigger {
	return Trigger{Kind: TriggerTimeElapsed, Elapsed: d}
}

// UserMentioned builds a leaf trigger that fires when userID is mentioned
// in the evaluated message.
func UserMentioned(userID string) Trigger {
	return Trigger{Kind: TriggerUserMentioned, UserID: userID}
}

// ScheduledTime builds a leaf trigger that fires once the wall clock
// reaches at.
func ScheduledTime(at time.Time) Trigger {
	return Trigger{Kind: TriggerScheduledTime, At: at}
}

// ContextEntered builds a leaf trigger that fires when the evaluated
// message originates from channel.
func ContextEntered(channel string) Trigger {
	return Trigger{Kind: TriggerContextEntered, Channel: channel}
}

// All builds a composite trigger requiring every child to match.
func All(children ...Trigger) Trigger {
	return Trigger{Kind: TriggerAll, Children: children}
}

// Any builds a composite trigger requiring at least one child to match.
func Any(children ...Trigger) Trigger {
	return Trigger{Kind: TriggerAny, Children: children}
}

// Keywords returns every literal keyword reachable from t, flattening
// composite triggers. Used by the intention engine to build the bloom
// filter prefilter (component K).
func (t Trigger) Keywords() []string {
	switch t.Kind {
	case TriggerKeywordMention:
		return []string{t.Keyword}
	case TriggerAll, TriggerAny:
		var out []string
		for _, c := range t.Children {
			out = append(out, c.Keywords()...)
		}
		return out
	default:
		return nil
	}
}
