package observability

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"

	"github.com/The-Earth/Telegram-CAPTCHA/internal/db"
	"github.com/The-Earth/Telegram-CAPTCHA/internal/pending"
)

// ChallengeLister is the read side of the pending challenge registry.
type ChallengeLister interface {
	ListActive() []pending.Challenge
}

// RestrictionLister is the read side of the restriction ledger storage.
type RestrictionLister interface {
	GetRestrictions(ctx context.Context, chatID int64) ([]*db.Restriction, error)
}

type restrictionView struct {
	UserID       int64 `json:"user_id"`
	RestrictedBy int64 `json:"restricted_by"`
	Until        int64 `json:"until"`
}

// Server serves /metrics, /healthz, /challenges and the ledger records of a
// chat under /chats/{chatID}/restrictions.
type Server struct {
	addr         string
	lister       ChallengeLister
	restrictions RestrictionLister
	logger       *log.Entry

	startStopMutex sync.Mutex
	srv            *http.Server
	addrMu         sync.RWMutex
	boundAddr      string
	done           chan struct{}
}

func NewServer(addr string, lister ChallengeLister, restrictions RestrictionLister) *Server {
	return &Server{
		addr:         addr,
		lister:       lister,
		restrictions: restrictions,
		logger:       log.WithField("context", "ops_server"),
	}
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(chimiddleware.Recoverer)
	r.Use(chimiddleware.Timeout(10 * time.Second))

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		_, _ = w.Write([]byte("ok"))
	})
	r.Handle("/metrics", promhttp.HandlerFor(Registry, promhttp.HandlerOpts{}))
	r.Get("/challenges", s.listChallenges)
	r.Get("/chats/{chatID}/restrictions", s.listRestrictions)
	return r
}

func (s *Server) listRestrictions(w http.ResponseWriter, r *http.Request) {
	chatID, err := strconv.ParseInt(chi.URLParam(r, "chatID"), 10, 64)
	if err != nil {
		http.Error(w, "bad chat id", http.StatusBadRequest)
		return
	}
	if s.restrictions == nil {
		http.Error(w, "no ledger storage", http.StatusNotFound)
		return
	}
	records, err := s.restrictions.GetRestrictions(r.Context(), chatID)
	if err != nil {
		s.logger.WithFields(log.Fields{"chat_id": chatID, "error": err.Error()}).Warn("cant list restrictions")
		http.Error(w, "cant list restrictions", http.StatusInternalServerError)
		return
	}
	res := make([]restrictionView, 0, len(records))
	for _, rec := range records {
		res = append(res, restrictionView{UserID: rec.UserID, RestrictedBy: rec.RestrictedBy, Until: rec.Until})
	}
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(res); err != nil {
		s.logger.WithField("error", err.Error()).Warn("cant encode restrictions")
	}
}

func (s *Server) listChallenges(w http.ResponseWriter, _ *http.Request) {
	active := []pending.Challenge{}
	if s.lister != nil {
		active = append(active, s.lister.ListActive()...)
	}
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(active); err != nil {
		s.logger.WithField("error", err.Error()).Warn("cant encode challenges")
	}
}

// Addr returns the listening address once started.
func (s *Server) Addr() string {
	s.addrMu.RLock()
	defer s.addrMu.RUnlock()
	return s.boundAddr
}

func (s *Server) Start(ctx context.Context) error {
	s.startStopMutex.Lock()
	defer s.startStopMutex.Unlock()
	if s.srv != nil || s.addr == "" {
		return nil
	}

	var lc net.ListenConfig
	ln, err := lc.Listen(ctx, "tcp", s.addr)
	if err != nil {
		return err
	}
	s.addrMu.Lock()
	s.boundAddr = ln.Addr().String()
	s.addrMu.Unlock()

	s.srv = &http.Server{
		Handler:           s.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	s.done = make(chan struct{})
	go func(srv *http.Server, done chan struct{}) {
		defer close(done)
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.WithField("error", err.Error()).Error("ops server failed")
		}
	}(s.srv, s.done)

	s.logger.WithField("addr", s.Addr()).Info("ops server started")
	return nil
}

func (s *Server) Stop(ctx context.Context) error {
	s.startStopMutex.Lock()
	srv, done := s.srv, s.done
	s.srv = nil
	s.startStopMutex.Unlock()
	if srv == nil {
		return nil
	}

	if err := srv.Shutdown(ctx); err != nil {
		return err
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
