package portal

import (
	"time"

	"github.com/zhouzirui/care-portal/backend/internal/model/chat"
)

// NoticeLevel grades a user notice.
type NoticeLevel string

const (
	NoticeSuccess NoticeLevel = "success"
	NoticeError   NoticeLevel = "error"
	NoticeInfo    NoticeLevel = "info"
)

// Notice is a transient message for the user. TTL zero means it stays until
// dismissed.
type Notice struct {
	Level   NoticeLevel   `json:"level"`
	Message string        `json:"message"`
	TTL     time.Duration `json:"-"`
}

// View receives state changes from the controller. Callbacks get copies and
// run after the controller released its state lock, but must not call back
// into controller commands.
type View interface {
	SelectionChanged(State)
	BatchChanged(BatchView)
	ChatChanged(chat.Session)
	TypingChanged(bool)
	BusyChanged(bool)
	Notify(Notice)
}

// NopView ignores every callback.
type NopView struct{}

func (NopView) SelectionChanged(State)   {}
func (NopView) BatchChanged(BatchView)   {}
func (NopView) ChatChanged(chat.Session) {}
func (NopView) TypingChanged(bool)       {}
func (NopView) BusyChanged(bool)         {}
func (NopView) Notify(Notice)            {}
