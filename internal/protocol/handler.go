package protocol

import (
	"strings"

	"github.com/muurk/freeathome/internal/logging"
	"go.uber.org/zap"
)

// UpdateFragments returns the <update> fragments carried by a PubSub event on
// the update node. The <data> payload arrives XML-escaped; encoding/xml has
// already unescaped it, so each returned fragment is ready for ParseUpdate.
// Events on other nodes (e.g. the log node) are ignored.
func (m *Message) UpdateFragments() [][]byte {
	if m == nil || m.Event == nil {
		return nil
	}

	var out [][]byte
	for _, items := range m.Event.Items {
		if items.Node != UpdateNode {
			logging.Debug("Ignoring pubsub event on foreign node",
				zap.String("node", items.Node),
			)
			continue
		}
		for _, item := range items.Items {
			if item.Update == nil {
				continue
			}
			data := strings.TrimSpace(item.Update.Data)
			if data == "" {
				continue
			}
			out = append(out, []byte(data))
		}
	}
	return out
}
