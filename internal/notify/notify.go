package notify

// Level mirrors the toast styles of the web shell.
type Level string

const (
	LevelInfo    Level = "info"
	LevelSuccess Level = "success"
	LevelWarning Level = "warning"
	LevelError   Level = "error"
)

type Notice struct {
	Level   Level  `json:"level"`
	Message string `json:"message"`
}

// Notifier surfaces transient user-facing notices.
type Notifier interface {
	Info(msg string)
	Success(msg string)
	Warning(msg string)
	Error(msg string)
}

// Confirmer gates destructive actions behind an interactive confirmation.
type Confirmer interface {
	Confirm(prompt string) bool
}

type Publisher interface {
	Publish(topic string, v any)
}

// Toaster publishes notices on the "notice" stream topic for the shell
// to render.
type Toaster struct {
	pub Publisher
}

func NewToaster(pub Publisher) *Toaster {
	return &Toaster{pub: pub}
}

func (t *Toaster) Info(msg string)    { t.publish(LevelInfo, msg) }
func (t *Toaster) Success(msg string) { t.publish(LevelSuccess, msg) }
func (t *Toaster) Warning(msg string) { t.publish(LevelWarning, msg) }
func (t *Toaster) Error(msg string)   { t.publish(LevelError, msg) }

func (t *Toaster) publish(level Level, msg string) {
	if t.pub == nil {
		return
	}
	t.pub.Publish("notice", Notice{Level: level, Message: msg})
}

// Decision is a Confirmer carrying an answer the user already gave,
// typically the confirmation flag of a bridge request.
type Decision bool

func (d Decision) Confirm(string) bool { return bool(d) }
