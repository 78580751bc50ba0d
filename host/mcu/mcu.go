package mcu

import (
	"bytes"
	"compress/zlib"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/Chertan/CUB-Control-Software/host/serial"
	"github.com/Chertan/CUB-Control-Software/protocol"
)

// Fixed ids of the identify exchange, present before any dictionary is known
const (
	identifyResponseID = 0
	identifyID         = 1
)

// ErrNotConnected is returned by operations on a closed or unopened link
var ErrNotConnected = errors.New("not connected to MCU")

// MCU represents a connection to a Klipper-protocol microcontroller. The
// CUB uses one to host the I2C bus of its GPIO expander.
type MCU struct {
	// Transport layer
	transport *protocol.HostTransport

	// Serial port
	port serial.Port

	// Dictionary data
	dictionary     *Dictionary
	dictionaryData []byte

	// one request/response exchange at a time
	mu sync.Mutex

	// Connection state
	connected bool

	// ResponseTimeout bounds the wait for a response block
	ResponseTimeout time.Duration

	log *slog.Logger
}

// Dictionary represents the parsed MCU dictionary. Command and response
// keys are full format strings ("i2c_write oid=%c data=%*s").
type Dictionary struct {
	Version       string                    `json:"version"`
	BuildVersions string                    `json:"build_versions"`
	Config        map[string]any            `json:"config"`
	Commands      map[string]int            `json:"commands"`
	Responses     map[string]int            `json:"responses"`
	Enumerations  map[string]map[string]int `json:"enumerations,omitempty"`

	commandIDs  map[string]int
	responseIDs map[string]int
}

// NewMCU creates a new MCU instance (not yet connected)
func NewMCU() *MCU {
	return &MCU{
		ResponseTimeout: time.Second,
		log:             slog.With("component", "MCU"),
	}
}

// Connect connects to an MCU via serial port
func (m *MCU) Connect(device string) error {
	return m.ConnectWithConfig(serial.DefaultConfig(device))
}

// ConnectWithConfig connects to an MCU with a custom serial config
func (m *MCU) ConnectWithConfig(cfg *serial.Config) error {
	port, err := serial.Open(cfg)
	if err != nil {
		return fmt.Errorf("failed to open serial port: %w", err)
	}

	m.ConnectPort(port)

	// Give MCU time to initialize (if it just powered on)
	time.Sleep(100 * time.Millisecond)
	return nil
}

// ConnectPort starts the transport on an already open port
func (m *MCU) ConnectPort(port serial.Port) {
	m.port = port
	m.transport = protocol.NewHostTransport(port)
	m.connected = true
}

// Close closes the connection to the MCU
func (m *MCU) Close() error {
	if !m.connected {
		return nil
	}
	m.connected = false
	return m.transport.Close()
}

// IsConnected returns whether the MCU is connected
func (m *MCU) IsConnected() bool {
	return m.connected
}

// RetrieveDictionary retrieves the complete dictionary from the MCU
func (m *MCU) RetrieveDictionary() error {
	if !m.connected {
		return ErrNotConnected
	}

	m.log.Info("retrieving dictionary")

	var dictBuffer bytes.Buffer
	offset := uint32(0)
	chunkSize := uint8(40)
	maxIterations := 1000

	for i := 0; i < maxIterations; i++ {
		chunk, err := m.sendIdentify(offset, chunkSize)
		if err != nil {
			return fmt.Errorf("failed to retrieve dictionary chunk at offset %d: %w", offset, err)
		}
		if len(chunk) == 0 {
			break
		}

		dictBuffer.Write(chunk)
		offset += uint32(len(chunk))

		// If we got less than requested, we're done
		if len(chunk) < int(chunkSize) {
			break
		}
	}

	m.dictionaryData = dictBuffer.Bytes()
	m.log.Debug("dictionary retrieved", "bytes", len(m.dictionaryData))

	if decompressed, err := decompress(m.dictionaryData); err == nil {
		m.log.Debug("dictionary decompressed", "from", len(m.dictionaryData), "to", len(decompressed))
		m.dictionaryData = decompressed
	}

	dict, err := ParseDictionary(m.dictionaryData)
	if err != nil {
		return fmt.Errorf("failed to parse dictionary: %w", err)
	}
	m.dictionary = dict
	m.log.Info("dictionary loaded", "version", dict.Version, "commands", len(dict.Commands))
	return nil
}

// sendIdentify sends an identify command and waits for its response
func (m *MCU) sendIdentify(offset uint32, count uint8) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	err := m.transport.SendCommand(identifyID, func(output protocol.OutputBuffer) {
		protocol.EncodeVLQUint(output, offset)
		protocol.EncodeVLQUint(output, uint32(count))
	})
	if err != nil {
		return nil, fmt.Errorf("failed to send identify command: %w", err)
	}

	payload, err := m.awaitResponse(identifyResponseID)
	if err != nil {
		return nil, fmt.Errorf("failed to receive identify response: %w", err)
	}

	respOffset, err := protocol.DecodeVLQUint(&payload)
	if err != nil {
		return nil, fmt.Errorf("failed to decode response offset: %w", err)
	}
	if respOffset != offset {
		return nil, fmt.Errorf("offset mismatch: expected %d, got %d", offset, respOffset)
	}

	data, err := protocol.DecodeVLQBytes(&payload)
	if err != nil {
		return nil, fmt.Errorf("failed to decode response data: %w", err)
	}
	return data, nil
}

// awaitResponse returns the arguments of the next response with id,
// discarding unrelated responses. Must be called with mu held.
func (m *MCU) awaitResponse(id uint32) ([]byte, error) {
	deadline := time.Now().Add(m.ResponseTimeout)
	for {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return nil, fmt.Errorf("no response %d within %v", id, m.ResponseTimeout)
		}
		resp, err := m.transport.ReceiveResponse(remaining)
		if err != nil {
			return nil, err
		}

		payload := resp.Payload
		got, err := protocol.DecodeVLQUint(&payload)
		if err != nil {
			return nil, fmt.Errorf("failed to decode response command ID: %w", err)
		}
		if got == id {
			return payload, nil
		}
		m.log.Debug("discarding unrelated response", "id", got)
	}
}

// decompress inflates a zlib-compressed dictionary
func decompress(data []byte) ([]byte, error) {
	// zlib streams start with CMF 0x78
	if len(data) < 2 || data[0] != 0x78 {
		return nil, fmt.Errorf("not zlib compressed")
	}
	r, err := zlib.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	defer r.Close()
	return io.ReadAll(r)
}

// ParseDictionary parses the dictionary JSON and indexes the command and
// response names
func ParseDictionary(data []byte) (*Dictionary, error) {
	dict := &Dictionary{}
	if err := json.Unmarshal(data, dict); err != nil {
		return nil, fmt.Errorf("failed to unmarshal JSON: %w", err)
	}
	dict.commandIDs = indexByName(dict.Commands)
	dict.responseIDs = indexByName(dict.Responses)
	return dict, nil
}

func indexByName(formats map[string]int) map[string]int {
	ids := make(map[string]int, len(formats))
	for format, id := range formats {
		name, _, _ := strings.Cut(format, " ")
		ids[name] = id
	}
	return ids
}

// CommandID looks up a command by name, ignoring its argument format
func (d *Dictionary) CommandID(name string) (int, bool) {
	id, ok := d.commandIDs[name]
	return id, ok
}

// ResponseID looks up a response by name
func (d *Dictionary) ResponseID(name string) (int, bool) {
	id, ok := d.responseIDs[name]
	return id, ok
}

// GetDictionary returns the parsed dictionary
func (m *MCU) GetDictionary() *Dictionary {
	return m.dictionary
}

// GetDictionaryRaw returns the raw dictionary data
func (m *MCU) GetDictionaryRaw() []byte {
	return m.dictionaryData
}

// PrintDictionary writes a summary of the dictionary to w
func (m *MCU) PrintDictionary(w io.Writer) {
	if m.dictionary == nil {
		fmt.Fprintln(w, "No dictionary loaded")
		return
	}

	fmt.Fprintln(w, "=== MCU Dictionary ===")
	fmt.Fprintf(w, "Version: %s\n", m.dictionary.Version)
	fmt.Fprintf(w, "Build: %s\n", m.dictionary.BuildVersions)

	fmt.Fprintf(w, "\nCommands (%d):\n", len(m.dictionary.Commands))
	for _, name := range sortedKeys(m.dictionary.Commands) {
		fmt.Fprintf(w, "  [%d] %s\n", m.dictionary.Commands[name], name)
	}

	fmt.Fprintf(w, "\nResponses (%d):\n", len(m.dictionary.Responses))
	for _, name := range sortedKeys(m.dictionary.Responses) {
		fmt.Fprintf(w, "  [%d] %s\n", m.dictionary.Responses[name], name)
	}
}

func sortedKeys(m map[string]int) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return m[keys[i]] < m[keys[j]] })
	return keys
}

// SendCommand sends a command by name and waits for the block ack
func (m *MCU) SendCommand(name string, args func(output protocol.OutputBuffer)) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.send(name, args)
}

func (m *MCU) send(name string, args func(output protocol.OutputBuffer)) error {
	if !m.connected {
		return ErrNotConnected
	}
	if m.dictionary == nil {
		return fmt.Errorf("dictionary not loaded")
	}

	cmdID, ok := m.dictionary.CommandID(name)
	if !ok {
		return fmt.Errorf("unknown command: %s", name)
	}
	return m.transport.SendCommand(uint16(cmdID), args)
}

// Query sends a command and returns the arguments of the named response
func (m *MCU) Query(name string, args func(output protocol.OutputBuffer), response string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.send(name, args); err != nil {
		return nil, err
	}
	respID, ok := m.dictionary.ResponseID(response)
	if !ok {
		return nil, fmt.Errorf("unknown response: %s", response)
	}
	return m.awaitResponse(uint32(respID))
}

// EmergencyStop asks the MCU to shut down its outputs
func (m *MCU) EmergencyStop() error {
	return m.SendCommand("emergency_stop", nil)
}
