package graph

// Media is one published post of the connected account.
type Media struct {
	ID        string `json:"id"`
	Caption   string `json:"caption,omitempty"`
	MediaType string `json:"media_type,omitempty"`
	Permalink string `json:"permalink,omitempty"`
	Timestamp string `json:"timestamp,omitempty"`
}

// Comment is one comment on a media object.
type Comment struct {
	ID        string `json:"id"`
	Text      string `json:"text"`
	Username  string `json:"username,omitempty"`
	Timestamp string `json:"timestamp,omitempty"`
	From      *User  `json:"from,omitempty"`
}

// User identifies a commenter.
type User struct {
	ID       string `json:"id"`
	Username string `json:"username,omitempty"`
}

// listEnvelope is the standard Graph list response shape.
type listEnvelope[T any] struct {
	Data []T `json:"data"`
}

// sendMessageRequest is the body of the send-DM call.
type sendMessageRequest struct {
	Recipient recipient `json:"recipient"`
	Message   message   `json:"message"`
}

type recipient struct {
	ID string `json:"id"`
}

type message struct {
	Text string `json:"text"`
}

// sendMessageResponse carries the provider's message identifier.
type sendMessageResponse struct {
	MessageID string `json:"message_id"`
	ID        string `json:"id,omitempty"`
}

// apiErrorEnvelope is the Graph error body shape.
type apiErrorEnvelope struct {
	Error struct {
		Message string `json:"message"`
		Type    string `json:"type"`
		Code    int    `json:"code"`
	} `json:"error"`
}
