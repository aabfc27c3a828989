package models

// DestinationType names a supported destination transport.
type DestinationType string

const (
	DestinationWebhook DestinationType = "webhook"
	DestinationSlack   DestinationType = "slack"
	DestinationChime   DestinationType = "chime"
	DestinationSNS     DestinationType = "sns"
)

// Destination is the delivery target an action publishes to.
type Destination struct {
	ID      string            `json:"id"`
	Name    string            `json:"name"`
	Type    DestinationType   `json:"type"`
	URL     string            `json:"url,omitempty"`
	Method  string            `json:"method,omitempty"`
	Headers map[string]string `json:"headers,omitempty"`
	// SNS-only fields.
	TopicARN string `json:"topic_arn,omitempty"`
	RoleARN  string `json:"role_arn,omitempty"`
}
