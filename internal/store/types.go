package store

// Contact is a saved address-book entry. NormalizedPhone (digits only) is
// the lookup key that ties contacts to conversations.
type Contact struct {
	ID              int64
	Name            string
	Phone           string
	NormalizedPhone string
	Email           string
	Notes           string
}

// Template is a canned message body for the composer.
type Template struct {
	ID    int64
	Title string
	Body  string
}

// Filter is a saved inbox filter: a name plus its serialized query.
type Filter struct {
	ID    int64
	Name  string
	Query string
}

// OutboxEntry represents a pending outgoing message.
type OutboxEntry struct {
	ID           int64
	ClientMsgID  string
	Phone        string
	Body         string
	Status       string // queued, sending, sent, failed
	ErrorMessage string
	ProviderSID  string
}

// User is a dashboard account.
type User struct {
	ID       int64
	Username string
}
