// Package web exposes the control panel's HTTP API and the websocket
// upgrade endpoint. Handlers translate JSON requests into session calls
// and wrap every reply in the success/message envelope.
package web

import (
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"rfidpanel/internal/config"
	"rfidpanel/internal/controller"
	"rfidpanel/internal/inventory"
	"rfidpanel/internal/protocol/nation"
)

// Session is the slice of the reader controller the handlers use.
type Session interface {
	Connect(port string, baud int) error
	Disconnect() error
	Status() controller.Status
	StartInventory(controller.InventoryParams) error
	StopInventory() error
	WriteEPC(controller.WriteRequest) (nation.WriteResult, error)
	ReaderInfo() (nation.ReaderInfo, error)
	ConfigureBaseband(speed, q, session, target int) error
	BasebandProfile() (nation.Baseband, error)
	SetPower(powers map[int]int, persist bool) error
	AntennaPower() (map[int]int, error)
	SetBuzzer(enable bool) error
	EnableAntennas(ids []int) error
	DisableAntennas(ids []int) error
	EnabledAntennas() []int
	Reset() error
}

type Server struct {
	log      *logrus.Entry
	cfg      config.Config
	profiles map[int]config.Profile
	session  Session
	tags     *inventory.Aggregator
	ws       http.HandlerFunc
	started  time.Time
}

func NewServer(log *logrus.Entry, cfg config.Config, profiles map[int]config.Profile, session Session, tags *inventory.Aggregator, ws http.HandlerFunc) *Server {
	return &Server{
		log:      log,
		cfg:      cfg,
		profiles: profiles,
		session:  session,
		tags:     tags,
		ws:       ws,
		started:  time.Now(),
	}
}

func (s *Server) Router() *mux.Router {
	r := mux.NewRouter()
	r.Use(s.logRequests)

	api := r.PathPrefix("/api").Subrouter()
	api.HandleFunc("/connect", s.handleConnect).Methods(http.MethodPost)
	api.HandleFunc("/disconnect", s.handleDisconnect).Methods(http.MethodPost)
	api.HandleFunc("/start_inventory", s.handleStartInventory).Methods(http.MethodPost)
	api.HandleFunc("/stop_inventory", s.handleStopInventory).Methods(http.MethodPost)
	api.HandleFunc("/write_epc", s.handleWriteEPC).Methods(http.MethodPost)
	api.HandleFunc("/set_power", s.handleSetPower).Methods(http.MethodPost)
	api.HandleFunc("/set_buzzer", s.handleSetBuzzer).Methods(http.MethodPost)
	api.HandleFunc("/enable_antennas", s.handleEnableAntennas).Methods(http.MethodPost)
	api.HandleFunc("/disable_antennas", s.handleDisableAntennas).Methods(http.MethodPost)
	api.HandleFunc("/configure_baseband", s.handleConfigureBaseband).Methods(http.MethodPost)
	api.HandleFunc("/reset_reader", s.handleResetReader).Methods(http.MethodPost)
	api.HandleFunc("/clear_tags", s.handleClearTags).Methods(http.MethodPost)

	api.HandleFunc("/reader_info", s.handleReaderInfo).Methods(http.MethodGet)
	api.HandleFunc("/get_antenna_power", s.handleGetAntennaPower).Methods(http.MethodGet)
	api.HandleFunc("/get_enabled_antennas", s.handleGetEnabledAntennas).Methods(http.MethodGet)
	api.HandleFunc("/query_baseband_profile", s.handleQueryBaseband).Methods(http.MethodGet)
	api.HandleFunc("/tags", s.handleTags).Methods(http.MethodGet)
	api.HandleFunc("/config", s.handleConfig).Methods(http.MethodGet)
	api.HandleFunc("/debug", s.handleDebug).Methods(http.MethodGet)

	r.HandleFunc("/ws", s.ws).Methods(http.MethodGet)
	r.PathPrefix("/").Handler(http.FileServer(http.Dir(s.cfg.StaticDir)))

	return r
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		s.log.WithFields(logrus.Fields{
			"method":   r.Method,
			"path":     r.URL.Path,
			"duration": time.Since(start).String(),
		}).Debug("http request")
	})
}
