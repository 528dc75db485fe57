package capability

import (
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/zurustar/blox/pkg/value"
)

// Broadcast is the target that addresses every other program on a Bus.
const Broadcast = "everyone"

// Bus routes messages between programs running in the same process.
// Payloads are serialised to JSON on send and decoded separately for each
// recipient, so programs never share a mutable list.
type Bus struct {
	mailboxes map[string]*Mailbox
	replies   map[ReplyKey]func(value.Value)
	nextKey   ReplyKey
	log       *slog.Logger
	mu        sync.RWMutex
}

// NewBus creates an empty bus.
func NewBus(log *slog.Logger) *Bus {
	if log == nil {
		log = slog.Default()
	}
	return &Bus{
		mailboxes: make(map[string]*Mailbox),
		replies:   make(map[ReplyKey]func(value.Value)),
		log:       log,
	}
}

// Join registers a program and returns its mailbox.
func (b *Bus) Join(id string) (*Mailbox, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, exists := b.mailboxes[id]; exists {
		return nil, fmt.Errorf("program %q already joined", id)
	}
	mb := &Mailbox{}
	b.mailboxes[id] = mb
	return mb, nil
}

// Leave unregisters a program. Messages already queued for it are dropped.
func (b *Bus) Leave(id string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.mailboxes, id)
}

// Members returns the joined program ids, sorted.
func (b *Bus) Members() []string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.members()
}

func (b *Bus) members() []string {
	ids := make([]string, 0, len(b.mailboxes))
	for id := range b.mailboxes {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Send delivers a message from one program to each target. The target ""
// or Broadcast addresses every other program; a program addressed more
// than once receives the message once.
func (b *Bus) Send(from string, targets []string, name string, payload value.Value) error {
	_, err := b.post(from, targets, name, payload, 0)
	return err
}

// Request sends like Send and calls deliver with the first reply. The
// returned key is zero when no program was addressed; no reply can come.
func (b *Bus) Request(from string, targets []string, name string, payload value.Value, deliver func(value.Value)) (ReplyKey, error) {
	b.mu.Lock()
	b.nextKey++
	key := b.nextKey
	b.replies[key] = deliver
	b.mu.Unlock()

	n, err := b.post(from, targets, name, payload, key)
	if err != nil || n == 0 {
		b.Cancel(key)
		return 0, err
	}
	return key, nil
}

// Reply answers a request. Only the first reply is delivered; later ones
// and replies to cancelled requests are dropped.
func (b *Bus) Reply(key ReplyKey, payload value.Value) error {
	data, err := value.ToJSON(payload)
	if err != nil {
		return fmt.Errorf("reply: %w", err)
	}

	b.mu.Lock()
	deliver, ok := b.replies[key]
	delete(b.replies, key)
	b.mu.Unlock()
	if !ok {
		b.log.Debug("Reply dropped", "key", key)
		return nil
	}

	v, err := value.FromJSON(data)
	if err != nil {
		return fmt.Errorf("reply: %w", err)
	}
	deliver(v)
	return nil
}

// Cancel forgets a request and reports whether it was still waiting.
func (b *Bus) Cancel(key ReplyKey) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	_, ok := b.replies[key]
	delete(b.replies, key)
	return ok
}

// post delivers to every addressed mailbox and returns how many there were.
func (b *Bus) post(from string, targets []string, name string, payload value.Value, key ReplyKey) (int, error) {
	data, err := value.ToJSON(payload)
	if err != nil {
		return 0, fmt.Errorf("message %q: %w", name, err)
	}

	b.mu.RLock()
	var recipients []string
	seen := make(map[string]bool)
	add := func(id string) {
		if !seen[id] {
			seen[id] = true
			recipients = append(recipients, id)
		}
	}
	for _, target := range targets {
		if target == "" || target == Broadcast {
			for _, id := range b.members() {
				if id != from {
					add(id)
				}
			}
			continue
		}
		if _, ok := b.mailboxes[target]; !ok {
			b.mu.RUnlock()
			return 0, fmt.Errorf("unknown program %q", target)
		}
		add(target)
	}
	boxes := make([]*Mailbox, len(recipients))
	for i, id := range recipients {
		boxes[i] = b.mailboxes[id]
	}
	b.mu.RUnlock()

	for i, mb := range boxes {
		decoded, err := value.FromJSON(data)
		if err != nil {
			return 0, fmt.Errorf("message %q: %w", name, err)
		}
		mb.push(Message{Sender: from, Target: recipients[i], Name: name, Payload: decoded, ReplyKey: key})
	}

	b.log.Debug("Message sent", "from", from, "targets", targets, "name", name, "recipients", len(boxes), "reply_key", key)
	return len(boxes), nil
}

// Mailbox is a thread-safe FIFO of inbound messages for one program.
type Mailbox struct {
	messages []Message
	mu       sync.Mutex
}

func (m *Mailbox) push(msg Message) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.messages = append(m.messages, msg)
}

// Drain removes and returns every queued message in arrival order.
func (m *Mailbox) Drain() []Message {
	m.mu.Lock()
	defer m.mu.Unlock()

	msgs := m.messages
	m.messages = nil
	return msgs
}

// Len returns the number of queued messages.
func (m *Mailbox) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.messages)
}
