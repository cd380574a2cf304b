package web

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rfidpanel/internal/config"
	"rfidpanel/internal/controller"
	"rfidpanel/internal/inventory"
	"rfidpanel/internal/protocol/nation"
)

// fakeSession records calls and returns scripted results.
type fakeSession struct {
	connectErr   error
	startErr     error
	writeResult  nation.WriteResult
	writeErr     error
	lastConnect  string
	lastParams   controller.InventoryParams
	lastWrite    controller.WriteRequest
	lastPowers   map[int]int
	lastPersist  bool
	enabled      []int
	stopped      bool
	disconnected bool
	resetCalled  bool
	buzzer       *bool
}

func (f *fakeSession) Connect(port string, baud int) error {
	f.lastConnect = port
	return f.connectErr
}

func (f *fakeSession) Disconnect() error {
	f.disconnected = true
	return nil
}

func (f *fakeSession) Status() controller.Status {
	return controller.Status{State: "connected", Port: f.lastConnect}
}

func (f *fakeSession) StartInventory(p controller.InventoryParams) error {
	f.lastParams = p
	return f.startErr
}

func (f *fakeSession) StopInventory() error {
	f.stopped = true
	return nil
}

func (f *fakeSession) WriteEPC(req controller.WriteRequest) (nation.WriteResult, error) {
	f.lastWrite = req
	return f.writeResult, f.writeErr
}

func (f *fakeSession) ReaderInfo() (nation.ReaderInfo, error) {
	return nation.ReaderInfo{SerialNumber: "SN01"}, nil
}

func (f *fakeSession) ConfigureBaseband(speed, q, session, target int) error { return nil }

func (f *fakeSession) BasebandProfile() (nation.Baseband, error) {
	return nation.Baseband{Speed: 2, QValue: 4, Session: 1, Flag: 0}, nil
}

func (f *fakeSession) SetPower(powers map[int]int, persist bool) error {
	f.lastPowers = powers
	f.lastPersist = persist
	return nil
}

func (f *fakeSession) AntennaPower() (map[int]int, error) {
	return map[int]int{1: 26}, nil
}

func (f *fakeSession) SetBuzzer(enable bool) error {
	f.buzzer = &enable
	return nil
}

func (f *fakeSession) EnableAntennas(ids []int) error  { return nil }
func (f *fakeSession) DisableAntennas(ids []int) error { return nil }
func (f *fakeSession) EnabledAntennas() []int          { return f.enabled }
func (f *fakeSession) Reset() error {
	f.resetCalled = true
	return nil
}

func newTestServer(session *fakeSession) (*Server, *inventory.Aggregator) {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	log := logger.WithField("test", true)

	cfg := config.Load()
	tags := inventory.New(log, nil)
	profiles := map[int]config.Profile{
		1: {Name: "Performance", QValue: 7, Session: 0, Target: 1},
	}
	ws := func(w http.ResponseWriter, r *http.Request) {}
	return NewServer(log, cfg, profiles, session, tags, ws), tags
}

func doJSON(t *testing.T, s *Server, method, path string, body interface{}) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	rr := httptest.NewRecorder()
	s.Router().ServeHTTP(rr, req)

	var env envelope
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&env))
	return rr, env
}

func TestConnectUsesDefaults(t *testing.T) {
	session := &fakeSession{}
	s, _ := newTestServer(session)

	rr, env := doJSON(t, s, http.MethodPost, "/api/connect", nil)
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.True(t, env.Success)
	assert.Equal(t, "/dev/ttyUSB0", session.lastConnect)
}

func TestConnectErrorsMapToStatus(t *testing.T) {
	session := &fakeSession{connectErr: controller.ErrAlreadyConnected}
	s, _ := newTestServer(session)

	rr, env := doJSON(t, s, http.MethodPost, "/api/connect", map[string]interface{}{"port": "COM3"})
	assert.Equal(t, http.StatusConflict, rr.Code)
	assert.False(t, env.Success)
}

func TestStartInventoryPassesParams(t *testing.T) {
	session := &fakeSession{}
	s, _ := newTestServer(session)

	_, env := doJSON(t, s, http.MethodPost, "/api/start_inventory", map[string]interface{}{
		"q_value":   6,
		"session":   2,
		"target":    1,
		"antennas":  []int{1, 2},
		"scan_time": 30,
	})
	require.True(t, env.Success)
	assert.Equal(t, 6, session.lastParams.Q)
	assert.Equal(t, 2, session.lastParams.Session)
	assert.Equal(t, 1, session.lastParams.Target)
	assert.Equal(t, []int{1, 2}, session.lastParams.Antennas)
	assert.Equal(t, "30s", session.lastParams.ScanTime.String())
}

func TestStartInventoryProfileOverrides(t *testing.T) {
	session := &fakeSession{}
	s, _ := newTestServer(session)

	_, env := doJSON(t, s, http.MethodPost, "/api/start_inventory", map[string]interface{}{
		"profile": 1,
	})
	require.True(t, env.Success)
	assert.Equal(t, 7, session.lastParams.Q)
	assert.Equal(t, 1, session.lastParams.Target)

	rr, env := doJSON(t, s, http.MethodPost, "/api/start_inventory", map[string]interface{}{
		"profile": 42,
	})
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.False(t, env.Success)
}

func TestStartInventoryRejectsBadScanTime(t *testing.T) {
	session := &fakeSession{}
	s, _ := newTestServer(session)

	rr, env := doJSON(t, s, http.MethodPost, "/api/start_inventory", map[string]interface{}{
		"scan_time": 500,
	})
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.False(t, env.Success)
}

func TestStartInventoryConflict(t *testing.T) {
	session := &fakeSession{startErr: controller.ErrNotConnected}
	s, _ := newTestServer(session)

	rr, env := doJSON(t, s, http.MethodPost, "/api/start_inventory", nil)
	assert.Equal(t, http.StatusConflict, rr.Code)
	assert.False(t, env.Success)
}

func TestStartInventoryClearsPreviousTags(t *testing.T) {
	session := &fakeSession{}
	s, tags := newTestServer(session)
	tags.Ingest(inventory.Sighting{EPC: "E2000000", Antenna: 1, RSSI: -40})
	require.Equal(t, 1, tags.Unique())

	_, env := doJSON(t, s, http.MethodPost, "/api/start_inventory", nil)
	require.True(t, env.Success)
	assert.Equal(t, 0, tags.Unique())
	assert.Empty(t, tags.Snapshot())
}

func TestFailedStartKeepsTags(t *testing.T) {
	session := &fakeSession{startErr: controller.ErrNotConnected}
	s, tags := newTestServer(session)
	tags.Ingest(inventory.Sighting{EPC: "E2000000", Antenna: 1, RSSI: -40})

	_, env := doJSON(t, s, http.MethodPost, "/api/start_inventory", nil)
	require.False(t, env.Success)
	assert.Equal(t, 1, tags.Unique())
}

func TestWriteEPCSuccess(t *testing.T) {
	session := &fakeSession{writeResult: nation.WriteResult{Code: 0, Message: "write successful"}}
	s, _ := newTestServer(session)

	_, env := doJSON(t, s, http.MethodPost, "/api/write_epc", map[string]interface{}{
		"epc":       "E2000019",
		"match_epc": "E2000018",
	})
	require.True(t, env.Success)
	assert.Equal(t, "E2000019", session.lastWrite.EPC)
	assert.Equal(t, "E2000018", session.lastWrite.MatchEPC)

	data := env.Data.(map[string]interface{})
	assert.EqualValues(t, 0, data["result_code"])
}

func TestWriteEPCDeviceFailureKeepsEnvelope(t *testing.T) {
	session := &fakeSession{writeResult: nation.WriteResult{Code: 0x0A, Message: "tag lost"}}
	s, _ := newTestServer(session)

	rr, env := doJSON(t, s, http.MethodPost, "/api/write_epc", map[string]interface{}{"epc": "1234"})
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.False(t, env.Success)
	assert.Equal(t, "tag lost", env.Message)
}

func TestWriteEPCRejectedWhileRunning(t *testing.T) {
	session := &fakeSession{writeErr: controller.ErrInventoryRunning}
	s, _ := newTestServer(session)

	rr, env := doJSON(t, s, http.MethodPost, "/api/write_epc", map[string]interface{}{"epc": "1234"})
	assert.Equal(t, http.StatusConflict, rr.Code)
	assert.False(t, env.Success)
}

func TestSetPowerValidatesRange(t *testing.T) {
	session := &fakeSession{}
	s, _ := newTestServer(session)

	rr, env := doJSON(t, s, http.MethodPost, "/api/set_power", map[string]interface{}{
		"powers": map[string]int{"1": 45},
	})
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.False(t, env.Success)

	_, env = doJSON(t, s, http.MethodPost, "/api/set_power", map[string]interface{}{
		"powers": map[string]int{"1": 26, "2": 20},
	})
	require.True(t, env.Success)
	assert.Equal(t, map[int]int{1: 26, 2: 20}, session.lastPowers)
	assert.True(t, session.lastPersist, "persistence defaults on")
}

func TestTagsEndpointReturnsAggregates(t *testing.T) {
	session := &fakeSession{}
	s, tags := newTestServer(session)
	tags.Ingest(inventory.Sighting{EPC: "E2000000", Antenna: 1, RSSI: -40})
	tags.Ingest(inventory.Sighting{EPC: "E2000000", Antenna: 1, RSSI: -38})

	req := httptest.NewRequest(http.MethodGet, "/api/tags", nil)
	rr := httptest.NewRecorder()
	s.Router().ServeHTTP(rr, req)

	var env envelope
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&env))
	require.True(t, env.Success)

	data := env.Data.(map[string]interface{})
	assert.EqualValues(t, 1, data["unique"])
	assert.EqualValues(t, 2, data["total"])
}

func TestClearTags(t *testing.T) {
	session := &fakeSession{}
	s, tags := newTestServer(session)
	tags.Ingest(inventory.Sighting{EPC: "AA", Antenna: 1, RSSI: -50})

	_, env := doJSON(t, s, http.MethodPost, "/api/clear_tags", nil)
	require.True(t, env.Success)
	assert.Zero(t, tags.Unique())
}

func TestConfigEndpoint(t *testing.T) {
	session := &fakeSession{}
	s, _ := newTestServer(session)

	req := httptest.NewRequest(http.MethodGet, "/api/config", nil)
	rr := httptest.NewRecorder()
	s.Router().ServeHTTP(rr, req)

	var env envelope
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&env))
	require.True(t, env.Success)

	data := env.Data.(map[string]interface{})
	assert.Equal(t, "/dev/ttyUSB0", data["default_serial_port"])
	assert.Contains(t, data, "profiles")
}

func TestReaderInfoEndpoint(t *testing.T) {
	session := &fakeSession{}
	s, _ := newTestServer(session)

	req := httptest.NewRequest(http.MethodGet, "/api/reader_info", nil)
	rr := httptest.NewRecorder()
	s.Router().ServeHTTP(rr, req)

	var env envelope
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&env))
	require.True(t, env.Success)
	data := env.Data.(map[string]interface{})
	assert.Equal(t, "SN01", data["serial_number"])
}

func TestBuzzerDefaultEnable(t *testing.T) {
	session := &fakeSession{}
	s, _ := newTestServer(session)

	_, env := doJSON(t, s, http.MethodPost, "/api/set_buzzer", nil)
	require.True(t, env.Success)
	require.NotNil(t, session.buzzer)
	assert.True(t, *session.buzzer)

	_, env = doJSON(t, s, http.MethodPost, "/api/set_buzzer", map[string]interface{}{"enable": false})
	require.True(t, env.Success)
	assert.False(t, *session.buzzer)
}

func TestAntennaEndpointsRequireList(t *testing.T) {
	session := &fakeSession{enabled: []int{1, 2}}
	s, _ := newTestServer(session)

	rr, _ := doJSON(t, s, http.MethodPost, "/api/enable_antennas", map[string]interface{}{})
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	_, env := doJSON(t, s, http.MethodPost, "/api/enable_antennas", map[string]interface{}{"antennas": []int{2}})
	require.True(t, env.Success)
	data := env.Data.(map[string]interface{})
	assert.Len(t, data["antennas"], 2)
}

func TestDebugEndpoint(t *testing.T) {
	session := &fakeSession{}
	s, _ := newTestServer(session)

	req := httptest.NewRequest(http.MethodGet, "/api/debug", nil)
	rr := httptest.NewRecorder()
	s.Router().ServeHTTP(rr, req)

	var env envelope
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&env))
	require.True(t, env.Success)
	data := env.Data.(map[string]interface{})
	assert.Contains(t, data, "session")
	assert.Contains(t, data, "uptime")
}
