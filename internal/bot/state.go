package bot

// State 为编排器状态机的状态。
type State string

const (
	Idle               State = "Idle"
	FetchingQuestions  State = "FetchingQuestions"
	EvaluatingQuestion State = "EvaluatingQuestion"
	Generating         State = "Generating"
	Posting            State = "Posting"
	Recording          State = "Recording"
	Pacing             State = "Pacing"
	Stopped            State = "Stopped"
)
