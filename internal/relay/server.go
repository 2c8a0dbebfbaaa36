package relay

import (
	"io"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"securechat/internal/domain"
	"securechat/internal/logging"
	"securechat/internal/wire"
)

const maxBodyBytes = 1 << 20

// Server is the in-memory development relay: a key directory of bundle
// queues per device plus one mailbox per user.
type Server struct {
	mu      sync.Mutex
	bundles map[domain.ContactID]map[domain.RegistrationID][]domain.PreKeyBundle
	mailbox map[domain.ContactID][]domain.Envelope
	now     func() time.Time
	log     *logrus.Entry
}

// NewServer returns an empty relay.
func NewServer() *Server {
	return &Server{
		bundles: make(map[domain.ContactID]map[domain.RegistrationID][]domain.PreKeyBundle),
		mailbox: make(map[domain.ContactID][]domain.Envelope),
		now:     time.Now,
		log:     logging.For("relay"),
	}
}

// Handler returns the relay's HTTP API wrapped in an access log.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /bundles/{user}/{device}", s.publishBundle)
	mux.HandleFunc("GET /bundles/{user}/{device}", s.fetchDeviceBundle)
	mux.HandleFunc("GET /bundles/{user}", s.fetchBundles)
	mux.HandleFunc("POST /msg/{user}", s.enqueue)
	mux.HandleFunc("GET /msg/{user}", s.fetchMessages)
	mux.HandleFunc("POST /msg/{user}/ack", s.ack)
	return s.accessLog(mux)
}

func (s *Server) publishBundle(w http.ResponseWriter, r *http.Request) {
	user := domain.ContactID(r.PathValue("user"))
	device, err := parseDevice(r.PathValue("device"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	var b domain.PreKeyBundle
	if !decode(w, r, &b) {
		return
	}
	if b.RegistrationID != device {
		http.Error(w, "registration id does not match path", http.StatusBadRequest)
		return
	}

	s.mu.Lock()
	if s.bundles[user] == nil {
		s.bundles[user] = make(map[domain.RegistrationID][]domain.PreKeyBundle)
	}
	s.bundles[user][device] = append(s.bundles[user][device], b)
	s.mu.Unlock()
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) fetchDeviceBundle(w http.ResponseWriter, r *http.Request) {
	user := domain.ContactID(r.PathValue("user"))
	device, err := parseDevice(r.PathValue("device"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	s.mu.Lock()
	b, ok := s.popBundle(user, device)
	s.mu.Unlock()
	if !ok {
		http.Error(w, "not found", http.StatusNotFound)
		return
	}
	encode(w, r, b)
}

func (s *Server) fetchBundles(w http.ResponseWriter, r *http.Request) {
	user := domain.ContactID(r.PathValue("user"))

	s.mu.Lock()
	devices := s.bundles[user]
	out := make([]domain.PreKeyBundle, 0, len(devices))
	for device := range devices {
		if b, ok := s.popBundle(user, device); ok {
			out = append(out, b)
		}
	}
	s.mu.Unlock()

	if len(out) == 0 {
		http.Error(w, "not found", http.StatusNotFound)
		return
	}
	encode(w, r, out)
}

// popBundle hands out the oldest bundle, keeping the last one as a fallback
// so a device stays reachable once its one-time keys run out. Callers hold mu.
func (s *Server) popBundle(user domain.ContactID, device domain.RegistrationID) (domain.PreKeyBundle, bool) {
	q := s.bundles[user][device]
	if len(q) == 0 {
		return domain.PreKeyBundle{}, false
	}
	b := q[0]
	if len(q) > 1 {
		s.bundles[user][device] = q[1:]
	} else if b.OneTimePreKey != nil {
		// The fallback must not hand out the same one-time key twice.
		fallback := b
		fallback.OneTimePreKey = nil
		s.bundles[user][device] = []domain.PreKeyBundle{fallback}
	}
	return b, true
}

func (s *Server) enqueue(w http.ResponseWriter, r *http.Request) {
	user := domain.ContactID(r.PathValue("user"))
	var env domain.Envelope
	if !decode(w, r, &env) {
		return
	}
	if env.To != user {
		http.Error(w, "recipient does not match path", http.StatusBadRequest)
		return
	}
	// Envelope ids are relay-assigned; client values are ignored.
	env.ID = uuid.NewString()
	if env.Timestamp == 0 {
		env.Timestamp = s.now().Unix()
	}

	s.mu.Lock()
	s.mailbox[user] = append(s.mailbox[user], env)
	s.mu.Unlock()
	w.WriteHeader(http.StatusAccepted)
}

func (s *Server) fetchMessages(w http.ResponseWriter, r *http.Request) {
	user := domain.ContactID(r.PathValue("user"))
	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			http.Error(w, "bad limit", http.StatusBadRequest)
			return
		}
		limit = n
	}

	s.mu.Lock()
	q := s.mailbox[user]
	if limit > 0 && limit < len(q) {
		q = q[:limit]
	}
	out := append([]domain.Envelope{}, q...)
	s.mu.Unlock()
	encode(w, r, out)
}

func (s *Server) ack(w http.ResponseWriter, r *http.Request) {
	user := domain.ContactID(r.PathValue("user"))
	var req ackRequest
	if !decode(w, r, &req) {
		return
	}
	drop := make(map[string]struct{}, len(req.IDs))
	for _, id := range req.IDs {
		drop[id] = struct{}{}
	}

	s.mu.Lock()
	kept := s.mailbox[user][:0]
	for _, env := range s.mailbox[user] {
		if _, ok := drop[env.ID]; !ok {
			kept = append(kept, env)
		}
	}
	s.mailbox[user] = kept
	s.mu.Unlock()
	w.WriteHeader(http.StatusNoContent)
}

func parseDevice(v string) (domain.RegistrationID, error) {
	n, err := strconv.ParseUint(v, 10, 32)
	if err != nil {
		return 0, err
	}
	return domain.RegistrationID(n), nil
}

func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	b, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		http.Error(w, err.Error(), http.StatusRequestEntityTooLarge)
		return false
	}
	if err := wire.ForContentType(r.Header.Get("Content-Type")).Unmarshal(b, v); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return false
	}
	return true
}

func encode(w http.ResponseWriter, r *http.Request, v any) {
	c := wire.ForContentType(r.Header.Get("Accept"))
	b, err := c.Marshal(v)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", c.ContentType())
	_, _ = w.Write(b)
}

type statusRecorder struct {
	http.ResponseWriter
	status int
	bytes  int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Write(b []byte) (int, error) {
	if r.status == 0 {
		r.status = http.StatusOK
	}
	n, err := r.ResponseWriter.Write(b)
	r.bytes += n
	return n, err
}

func (s *Server) accessLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := s.now()
		rec := &statusRecorder{ResponseWriter: w}
		next.ServeHTTP(rec, r)
		s.log.WithFields(logrus.Fields{
			"method":   r.Method,
			"path":     r.URL.Path,
			"remote":   r.RemoteAddr,
			"status":   rec.status,
			"bytes":    rec.bytes,
			"duration": s.now().Sub(start),
		}).Info("request")
	})
}
