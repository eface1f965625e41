package orchestrationports

// Display receives conversation lines for presentation.
type Display interface {
	AddUserMessage(text string)
	AddAssistantMessage(speakerName, text string)
}

// InputLock gates the human input surface while a round runs.
type InputLock interface {
	SetInputLock(locked bool)
}

// ContextInput is the manual context field appended to the next transcript.
type ContextInput interface {
	Text() string
	Clear()
}

// Notifier surfaces warnings to the surrounding application.
type Notifier interface {
	Warn(message string)
}
