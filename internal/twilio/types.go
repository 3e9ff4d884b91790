package twilio

// MessageRecord is one SMS resource from the provider's message list.
type MessageRecord struct {
	SID         string `json:"sid"`
	From        string `json:"from"`
	To          string `json:"to"`
	Body        string `json:"body"`
	Direction   string `json:"direction"`
	Status      string `json:"status"`
	DateCreated string `json:"date_created"`
}

// CallRecord is one call resource from the provider's call list.
type CallRecord struct {
	SID             string `json:"sid"`
	From            string `json:"from"`
	To              string `json:"to"`
	Direction       string `json:"direction"`
	Status          string `json:"status"`
	Duration        string `json:"duration"`
	DateCreated     string `json:"date_created"`
	SubresourceURIs struct {
		Recordings string `json:"recordings"`
	} `json:"subresource_uris"`
}

// RecordingRecord is one recording under a call's recordings sub-resource.
type RecordingRecord struct {
	SID string `json:"sid"`
}

type messageList struct {
	Messages []MessageRecord `json:"messages"`
}

type callList struct {
	Calls []CallRecord `json:"calls"`
}

type recordingList struct {
	Recordings []RecordingRecord `json:"recordings"`
}

type sendResponse struct {
	SID     string `json:"sid"`
	Message string `json:"message"`
}
