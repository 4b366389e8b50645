package ws

// Subscriber abstracts a streaming client.
type Subscriber interface {
	Send([]byte) error
	Close()
}

// Hub fans live dashboard updates out to subscribers, grouped by the
// identity key whose collections they watch. All state is owned by the
// run loop; there is no shared-memory access.
type Hub struct {
	clients   map[string]map[Subscriber]struct{}
	register  chan subscription
	unreg     chan subscription
	broadcast chan message
}

// message couples payload with an identity key.
type message struct {
	key     string
	payload []byte
}

// subscription defines register/unregister requests.
type subscription struct {
	key    string
	client Subscriber
}

// NewHub creates an initialized Hub.
func NewHub() *Hub {
	h := &Hub{
		clients:   make(map[string]map[Subscriber]struct{}),
		register:  make(chan subscription),
		unreg:     make(chan subscription),
		broadcast: make(chan message),
	}
	go h.run()
	return h
}

func (h *Hub) run() {
	for {
		select {
		case sub := <-h.register:
			if _, ok := h.clients[sub.key]; !ok {
				h.clients[sub.key] = make(map[Subscriber]struct{})
			}
			h.clients[sub.key][sub.client] = struct{}{}
		case sub := <-h.unreg:
			if clients, ok := h.clients[sub.key]; ok {
				delete(clients, sub.client)
				if len(clients) == 0 {
					delete(h.clients, sub.key)
				}
			}
		case msg := <-h.broadcast:
			if clients, ok := h.clients[msg.key]; ok {
				for c := range clients {
					if err := c.Send(msg.payload); err != nil {
						c.Close()
						delete(clients, c)
					}
				}
				if len(clients) == 0 {
					delete(h.clients, msg.key)
				}
			}
		}
	}
}

// Register adds a client to an identity's stream.
func (h *Hub) Register(key string, client Subscriber) {
	h.register <- subscription{key: key, client: client}
}

// Unregister removes a client.
func (h *Hub) Unregister(key string, client Subscriber) {
	h.unreg <- subscription{key: key, client: client}
}

// Broadcast sends payload to every client watching the identity.
func (h *Hub) Broadcast(key string, payload []byte) {
	h.broadcast <- message{key: key, payload: payload}
}
