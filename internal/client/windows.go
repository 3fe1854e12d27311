package client

import (
	"sync"

	"dmchat/internal/domain"
)

// MaxOpenWindows es la cantidad de chats abiertos a la vez.
const MaxOpenWindows = 3

// Bubble es un mensaje tal como se pinta en una ventana. Pending indica un
// envío optimista todavía sin confirmar.
type Bubble struct {
	ID       int64
	Content  string
	ImageURL *string
	Own      bool
	Time     string
	Pending  bool
}

// Window es una conversación abierta con un partner.
type Window struct {
	PartnerID string
	Header    domain.PartnerHeader
	Bubbles   []Bubble
	Typing    bool
}

// WindowSet mantiene hasta cap ventanas abiertas. Abrir una más cierra la
// que se abrió primero; reabrir una ya abierta solo la enfoca.
type WindowSet struct {
	mu      sync.Mutex
	cap     int
	order   []string
	windows map[string]*Window
	focused string
}

func NewWindowSet(capacity int) *WindowSet {
	if capacity <= 0 {
		capacity = MaxOpenWindows
	}
	return &WindowSet{
		cap:     capacity,
		windows: make(map[string]*Window, capacity),
	}
}

// Open abre (o enfoca) la ventana de partnerID. evicted es el partner cuya
// ventana se cerró para hacer lugar, o "".
func (s *WindowSet) Open(partnerID string) (opened bool, evicted string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.focused = partnerID
	if _, ok := s.windows[partnerID]; ok {
		return false, ""
	}
	if len(s.order) >= s.cap {
		evicted = s.order[0]
		s.order = s.order[1:]
		delete(s.windows, evicted)
	}
	s.order = append(s.order, partnerID)
	s.windows[partnerID] = &Window{PartnerID: partnerID}
	return true, evicted
}

func (s *WindowSet) Close(partnerID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.windows[partnerID]; !ok {
		return
	}
	delete(s.windows, partnerID)
	for i, id := range s.order {
		if id == partnerID {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	if s.focused == partnerID {
		s.focused = ""
	}
}

// IDs devuelve los partners abiertos en orden de apertura.
func (s *WindowSet) IDs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.order...)
}

func (s *WindowSet) IsOpen(partnerID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.windows[partnerID]
	return ok
}

func (s *WindowSet) Focused() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.focused
}

// Snapshot devuelve una copia de la ventana.
func (s *WindowSet) Snapshot(partnerID string) (Window, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	w, ok := s.windows[partnerID]
	if !ok {
		return Window{}, false
	}
	out := *w
	out.Bubbles = append([]Bubble(nil), w.Bubbles...)
	return out, true
}

// update aplica fn sobre la ventana si está abierta.
func (s *WindowSet) update(partnerID string, fn func(w *Window)) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	w, ok := s.windows[partnerID]
	if !ok {
		return false
	}
	fn(w)
	return true
}
