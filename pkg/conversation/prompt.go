package conversation

const (
	// DefaultGreeting seeds every new session.
	DefaultGreeting = "Hello! I am your medical assistant. What symptoms are you experiencing today?"

	// DefaultPreamble is the instruction policy prefixed to every user message
	// before it is sent to the endpoint. It sets the assistant role and the
	// response-language and evidence-based-medicine constraints.
	DefaultPreamble = "type in russian language. All in russian language. You are a medical AI assistant. " +
		"Answer the following question in English with evidence-based medicine principles. Question: "

	// NoResponseText replaces a reply that decoded without a response text.
	NoResponseText = "Error: no response from server."

	// ConnectionErrorText replaces a reply when the exchange failed.
	ConnectionErrorText = "Connection error."
)

// BuildPrompt concatenates the preamble and the user text. The endpoint is
// stateless, so no history is included.
func BuildPrompt(preamble, userText string) string {
	return preamble + userText
}
