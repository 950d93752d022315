package model

import (
	"fmt"

	"github.com/matheus3301/pmsync/internal/api"
	"github.com/matheus3301/pmsync/internal/bus"
)

// Reload lists what a daemon event invalidates in the view model.
type Reload struct {
	Status    bool
	Summaries bool
	Messages  bool
	Failure   string
}

// Any reports whether anything needs reloading or showing.
func (r Reload) Any() bool {
	return r.Status || r.Summaries || r.Messages || r.Failure != ""
}

// Route decides what ev invalidates while openID is the open conversation.
// Events about other conversations only touch the sidebar and status.
func Route(ev api.Event, openID int64) Reload {
	switch ev.Kind {
	case bus.KindPushStatus, bus.KindUnreadChanged:
		return Reload{Status: true}
	case bus.KindSummariesUpdated:
		return Reload{Summaries: true}
	case bus.KindConversationOpened, bus.KindConversationUpdated,
		bus.KindHistoryLoaded, bus.KindOverlayRefreshed:
		return Reload{Messages: openID != 0 && payloadOther(ev.Payload) == openID}
	case bus.KindActionFailed:
		p, _ := ev.Payload.(map[string]any)
		other := payloadOther(ev.Payload)
		if other != 0 && other != openID {
			return Reload{}
		}
		return Reload{Messages: openID != 0, Failure: fmt.Sprintf("%v failed: %v", p["action"], p["error"])}
	}
	return Reload{}
}

func payloadOther(payload any) int64 {
	p, ok := payload.(map[string]any)
	if !ok {
		return 0
	}
	if n, ok := p["otherId"].(float64); ok {
		return int64(n)
	}
	return 0
}
