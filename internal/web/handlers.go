package web

import (
	"fmt"
	"net/http"
	"time"

	"rfidpanel/internal/config"
	"rfidpanel/internal/controller"
)

func (s *Server) handleConnect(w http.ResponseWriter, r *http.Request) {
	req := struct {
		Port string `json:"port"`
		Baud int    `json:"baudrate"`
	}{
		Port: s.cfg.DefaultSerialPort,
		Baud: s.cfg.DefaultBaudRate,
	}
	if err := decodeBody(r, &req); err != nil {
		s.badRequest(w, err.Error())
		return
	}

	if err := s.session.Connect(req.Port, req.Baud); err != nil {
		s.fail(w, err)
		return
	}
	s.ok(w, "connected to "+req.Port, nil)
}

func (s *Server) handleDisconnect(w http.ResponseWriter, r *http.Request) {
	if err := s.session.Disconnect(); err != nil {
		s.fail(w, err)
		return
	}
	s.ok(w, "disconnected", nil)
}

func (s *Server) handleStartInventory(w http.ResponseWriter, r *http.Request) {
	req := struct {
		Target   int   `json:"target"`
		Session  int   `json:"session"`
		QValue   int   `json:"q_value"`
		Antennas []int `json:"antennas"`
		ScanTime int   `json:"scan_time"`
		Profile  int   `json:"profile"`
	}{
		Session: s.cfg.DefaultSession,
		QValue:  s.cfg.DefaultQValue,
	}
	if err := decodeBody(r, &req); err != nil {
		s.badRequest(w, err.Error())
		return
	}

	params := controller.InventoryParams{
		Target:   req.Target,
		Session:  req.Session,
		Q:        req.QValue,
		Antennas: req.Antennas,
		ScanTime: time.Duration(req.ScanTime) * time.Second,
	}
	if req.Profile != 0 {
		profile, ok := s.profiles[req.Profile]
		if !ok {
			s.badRequest(w, "unknown profile")
			return
		}
		params.Target = profile.Target
		params.Session = profile.Session
		params.Q = profile.QValue
	}
	if req.ScanTime < 0 || req.ScanTime > 255 {
		s.badRequest(w, "scan_time must be 0 through 255 seconds")
		return
	}

	if err := s.session.StartInventory(params); err != nil {
		s.fail(w, err)
		return
	}
	// A fresh run starts with an empty tag table.
	s.tags.Clear()
	s.ok(w, "inventory started", nil)
}

func (s *Server) handleStopInventory(w http.ResponseWriter, r *http.Request) {
	if err := s.session.StopInventory(); err != nil {
		s.fail(w, err)
		return
	}
	s.ok(w, "inventory stopped", nil)
}

func (s *Server) handleWriteEPC(w http.ResponseWriter, r *http.Request) {
	var req struct {
		EPC       string `json:"epc"`
		MatchEPC  string `json:"match_epc"`
		Bank      int    `json:"bank"`
		StartWord int    `json:"start_word"`
		Password  string `json:"password"`
		Antennas  []int  `json:"antennas"`
	}
	if err := decodeBody(r, &req); err != nil {
		s.badRequest(w, err.Error())
		return
	}

	result, err := s.session.WriteEPC(controller.WriteRequest{
		EPC:       req.EPC,
		Bank:      req.Bank,
		StartWord: req.StartWord,
		Antennas:  req.Antennas,
		MatchEPC:  req.MatchEPC,
		Password:  req.Password,
	})
	if err != nil {
		s.fail(w, err)
		return
	}

	data := map[string]interface{}{
		"result_code": result.Code,
		"result_msg":  result.Message,
	}
	if result.FailedAddr != nil {
		data["failed_addr"] = *result.FailedAddr
	}
	if !result.OK() {
		s.writeJSON(w, http.StatusOK, envelope{Success: false, Message: result.Message, Data: data})
		return
	}
	s.ok(w, result.Message, data)
}

func (s *Server) handleSetPower(w http.ResponseWriter, r *http.Request) {
	req := struct {
		Powers  map[int]int `json:"powers"`
		Persist *bool       `json:"persist"`
	}{}
	if err := decodeBody(r, &req); err != nil {
		s.badRequest(w, err.Error())
		return
	}
	if len(req.Powers) == 0 {
		s.badRequest(w, "powers must map antenna ids to dBm values")
		return
	}
	for ant, dbm := range req.Powers {
		if dbm < s.cfg.PowerMinDBM || dbm > s.cfg.PowerMaxDBM {
			s.badRequest(w, fmt.Sprintf("power %d dBm for antenna %d out of range %d..%d",
				dbm, ant, s.cfg.PowerMinDBM, s.cfg.PowerMaxDBM))
			return
		}
	}
	persist := true
	if req.Persist != nil {
		persist = *req.Persist
	}

	if err := s.session.SetPower(req.Powers, persist); err != nil {
		s.fail(w, err)
		return
	}
	s.ok(w, "power configured", nil)
}

func (s *Server) handleSetBuzzer(w http.ResponseWriter, r *http.Request) {
	req := struct {
		Enable *bool `json:"enable"`
	}{}
	if err := decodeBody(r, &req); err != nil {
		s.badRequest(w, err.Error())
		return
	}
	enable := true
	if req.Enable != nil {
		enable = *req.Enable
	}

	if err := s.session.SetBuzzer(enable); err != nil {
		s.fail(w, err)
		return
	}
	if enable {
		s.ok(w, "buzzer enabled", nil)
		return
	}
	s.ok(w, "buzzer disabled", nil)
}

func (s *Server) handleEnableAntennas(w http.ResponseWriter, r *http.Request) {
	ids, ok := s.decodeAntennaList(w, r)
	if !ok {
		return
	}
	if err := s.session.EnableAntennas(ids); err != nil {
		s.fail(w, err)
		return
	}
	s.ok(w, "antennas enabled", map[string]interface{}{"antennas": s.session.EnabledAntennas()})
}

func (s *Server) handleDisableAntennas(w http.ResponseWriter, r *http.Request) {
	ids, ok := s.decodeAntennaList(w, r)
	if !ok {
		return
	}
	if err := s.session.DisableAntennas(ids); err != nil {
		s.fail(w, err)
		return
	}
	s.ok(w, "antennas disabled", map[string]interface{}{"antennas": s.session.EnabledAntennas()})
}

func (s *Server) decodeAntennaList(w http.ResponseWriter, r *http.Request) ([]int, bool) {
	var req struct {
		Antennas []int `json:"antennas"`
	}
	if err := decodeBody(r, &req); err != nil {
		s.badRequest(w, err.Error())
		return nil, false
	}
	if len(req.Antennas) == 0 {
		s.badRequest(w, "antennas must be a non-empty list of ids")
		return nil, false
	}
	return req.Antennas, true
}

func (s *Server) handleConfigureBaseband(w http.ResponseWriter, r *http.Request) {
	req := struct {
		Speed   int `json:"speed"`
		QValue  int `json:"q_value"`
		Session int `json:"session"`
		Target  int `json:"target"`
	}{
		Speed:   255,
		QValue:  s.cfg.DefaultQValue,
		Session: s.cfg.DefaultSession,
	}
	if err := decodeBody(r, &req); err != nil {
		s.badRequest(w, err.Error())
		return
	}

	if err := s.session.ConfigureBaseband(req.Speed, req.QValue, req.Session, req.Target); err != nil {
		s.fail(w, err)
		return
	}
	s.ok(w, "baseband configured", nil)
}

func (s *Server) handleResetReader(w http.ResponseWriter, r *http.Request) {
	if err := s.session.Reset(); err != nil {
		s.fail(w, err)
		return
	}
	s.ok(w, "reader reset", nil)
}

func (s *Server) handleClearTags(w http.ResponseWriter, r *http.Request) {
	s.tags.Clear()
	s.ok(w, "tag list cleared", nil)
}

func (s *Server) handleReaderInfo(w http.ResponseWriter, r *http.Request) {
	info, err := s.session.ReaderInfo()
	if err != nil {
		s.fail(w, err)
		return
	}
	s.ok(w, "reader info", info)
}

func (s *Server) handleGetAntennaPower(w http.ResponseWriter, r *http.Request) {
	powers, err := s.session.AntennaPower()
	if err != nil {
		s.fail(w, err)
		return
	}
	s.ok(w, "antenna power", map[string]interface{}{"powers": powers})
}

func (s *Server) handleGetEnabledAntennas(w http.ResponseWriter, r *http.Request) {
	s.ok(w, "enabled antennas", map[string]interface{}{"antennas": s.session.EnabledAntennas()})
}

func (s *Server) handleQueryBaseband(w http.ResponseWriter, r *http.Request) {
	baseband, err := s.session.BasebandProfile()
	if err != nil {
		s.fail(w, err)
		return
	}
	s.ok(w, "baseband profile", baseband)
}

func (s *Server) handleTags(w http.ResponseWriter, r *http.Request) {
	snapshot := s.tags.Snapshot()
	if len(snapshot) > s.cfg.MaxTagDisplay {
		snapshot = snapshot[len(snapshot)-s.cfg.MaxTagDisplay:]
	}
	s.ok(w, "tags", map[string]interface{}{
		"tags":   snapshot,
		"unique": s.tags.Unique(),
		"total":  s.tags.Total(),
	})
}

func (s *Server) handleConfig(w http.ResponseWriter, r *http.Request) {
	profiles := make(map[int]config.Profile, len(s.profiles))
	for _, id := range config.ProfileIDs(s.profiles) {
		profiles[id] = s.profiles[id]
	}
	s.ok(w, "configuration", map[string]interface{}{
		"default_serial_port": s.cfg.DefaultSerialPort,
		"default_baudrate":    s.cfg.DefaultBaudRate,
		"default_q_value":     s.cfg.DefaultQValue,
		"default_session":     s.cfg.DefaultSession,
		"default_antenna":     s.cfg.DefaultAntenna,
		"max_antennas":        s.cfg.MaxAntennas,
		"power_min_dbm":       s.cfg.PowerMinDBM,
		"power_max_dbm":       s.cfg.PowerMaxDBM,
		"max_tags_display":    s.cfg.MaxTagDisplay,
		"profiles":            profiles,
	})
}

func (s *Server) handleDebug(w http.ResponseWriter, r *http.Request) {
	s.ok(w, "debug", map[string]interface{}{
		"session":     s.session.Status(),
		"uptime":      time.Since(s.started).String(),
		"unique_tags": s.tags.Unique(),
		"total_reads": s.tags.Total(),
	})
}
