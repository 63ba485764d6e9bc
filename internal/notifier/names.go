package notifier

import (
	"strconv"
	"strings"
	"sync"

	"giveawaybot/pkg/tgui"
)

const defaultNamesMax = 4096

// Names remembers display names seen on incoming updates so mentions can
// show a name instead of a bare ID. It is bounded; once full, an arbitrary
// entry is evicted.
type Names struct {
	mu  sync.RWMutex
	max int
	m   map[int64]string
}

func NewNames(max int) *Names {
	if max <= 0 {
		max = defaultNamesMax
	}
	return &Names{max: max, m: make(map[int64]string)}
}

func (n *Names) Remember(id int64, name string) {
	name = strings.TrimSpace(name)
	if n == nil || id == 0 || name == "" {
		return
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	if _, ok := n.m[id]; !ok && len(n.m) >= n.max {
		for k := range n.m {
			delete(n.m, k)
			break
		}
	}
	n.m[id] = name
}

// Name returns the remembered name or the decimal ID.
func (n *Names) Name(id int64) string {
	if n != nil {
		n.mu.RLock()
		name, ok := n.m[id]
		n.mu.RUnlock()
		if ok {
			return name
		}
	}
	return strconv.FormatInt(id, 10)
}

func (n *Names) Mention(id int64) tgui.H { return tgui.Mention(n.Name(id), id) }

// Mentions joins mentions of ids with ", ".
func (n *Names) Mentions(ids []int64) tgui.H {
	parts := make([]tgui.H, 0, len(ids))
	for _, id := range ids {
		parts = append(parts, n.Mention(id))
	}
	return tgui.JoinH(", ", parts...)
}
