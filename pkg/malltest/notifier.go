package malltest

import (
	"sync"

	"github.com/wh01sJake/mall-cloud/pkg/mallsdk"
)

// Notifier records notifications for assertions.
type Notifier struct {
	mu    sync.Mutex
	notes []mallsdk.Notification
}

func (n *Notifier) Notify(note mallsdk.Notification) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.notes = append(n.notes, note)
}

// Notifications returns everything recorded, oldest first.
func (n *Notifier) Notifications() []mallsdk.Notification {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]mallsdk.Notification(nil), n.notes...)
}

// Messages returns the recorded message texts.
func (n *Notifier) Messages() []string {
	var out []string
	for _, note := range n.Notifications() {
		out = append(out, note.Message)
	}
	return out
}
