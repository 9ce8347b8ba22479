package collector

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"

	"github.com/netmon-dev/netmon/internal/switchauth"
)

// Switch API endpoints.
const (
	cpuPath         = "/data/cpuInfo.json"
	systemPath      = "/data/systemInfo.json"
	portStatusPath  = "/data/portStatusCfg.json"
	portTrafficPath = "/data/portTrafficCfg.json"
	macTablePath    = "/data/swtMacTableCfg.json"
	logTablePath    = "/data/logtable.json"
)

const switchRequestTimeout = 5 * time.Second

// SwitchCollector polls the switch's data endpoints. Every request carries
// the transaction token, as query parameters for most endpoints and as
// headers for the log table (the firmware is inconsistent about this).
type SwitchCollector struct {
	// Address is the switch host or host:port, without scheme.
	Address string
	// Token authorizes the requests.
	Token switchauth.Token
	// Delay paces consecutive requests to the device.
	Delay time.Duration

	// HTTPClient overrides the default client, used by tests.
	HTTPClient *http.Client
}

// Collect runs one full switch collection pass: CPU, system info, port
// status and traffic, MAC table, and event logs, paced by Delay.
func (c *SwitchCollector) Collect(ctx context.Context) (*SwitchSnapshot, error) {
	snapshot := &SwitchSnapshot{}

	cpuRaw, err := c.post(ctx, cpuPath, payload("unit", "unit1"), false)
	if err != nil {
		return nil, err
	}
	if snapshot.CPU, err = processCPU(cpuRaw, c.Address); err != nil {
		return nil, err
	}
	if err = pause(ctx, c.Delay); err != nil {
		return nil, err
	}

	systemRaw, err := c.post(ctx, systemPath, payload("operation", "load"), false)
	if err != nil {
		return nil, err
	}
	if snapshot.System, err = processSystem(systemRaw, c.Address); err != nil {
		return nil, err
	}
	if err = pause(ctx, c.Delay); err != nil {
		return nil, err
	}

	statusRaw, err := c.post(ctx, portStatusPath, payload("operation", "load", "special", "display", "tab", "unit1"), false)
	if err != nil {
		return nil, err
	}
	if err = pause(ctx, c.Delay); err != nil {
		return nil, err
	}
	trafficRaw, err := c.post(ctx, portTrafficPath, payload("operation", "load", "tab", "unit1"), false)
	if err != nil {
		return nil, err
	}
	if snapshot.Ports, err = processPorts(statusRaw, trafficRaw); err != nil {
		return nil, err
	}
	if err = pause(ctx, c.Delay); err != nil {
		return nil, err
	}

	macRaw, err := c.post(ctx, macTablePath, payload("operation", "load", "tab", "unit1"), false)
	if err != nil {
		return nil, err
	}
	if snapshot.MACs, err = processMACs(macRaw); err != nil {
		return nil, err
	}
	snapshot.MACsPerPort = countMACsPerPort(snapshot.MACs)
	if err = pause(ctx, c.Delay); err != nil {
		return nil, err
	}

	logsRaw, err := c.post(ctx, logTablePath, payload("operation", "load"), true)
	if err != nil {
		return nil, err
	}
	if snapshot.Logs, err = processLogs(logsRaw); err != nil {
		return nil, err
	}

	log.WithFields(log.Fields{
		"device":  c.Address,
		"records": len(snapshot.Ports) + len(snapshot.MACs) + len(snapshot.Logs),
	}).Debug("switch collection complete")
	return snapshot, nil
}

// payload builds a small JSON object from key/value pairs.
func payload(pairs ...string) string {
	body := ""
	for i := 0; i+1 < len(pairs); i += 2 {
		body, _ = sjson.Set(body, pairs[i], pairs[i+1])
	}
	return body
}

// post sends one data request. tokenInHeaders selects where the
// transaction token travels; the log endpoint wants headers, the rest
// want query parameters.
func (c *SwitchCollector) post(ctx context.Context, path, body string, tokenInHeaders bool) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, switchRequestTimeout)
	defer cancel()

	endpoint := "http://" + c.Address + path
	if !tokenInHeaders {
		query := url.Values{}
		query.Set("_tid_", c.Token.TID)
		query.Set("usrLvl", strconv.Itoa(c.Token.UserLevel))
		endpoint += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("collector: build %s request: %w", path, err)
	}
	req.Header.Set("Content-Type", "application/json")
	if tokenInHeaders {
		req.Header.Set("_tid_", c.Token.TID)
		req.Header.Set("usrLvl", strconv.Itoa(c.Token.UserLevel))
	}

	client := c.HTTPClient
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("collector: %s: %w", path, err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("collector: %s: HTTP %d", path, resp.StatusCode)
	}
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("collector: read %s: %w", path, err)
	}
	if !gjson.GetBytes(raw, "success").Bool() {
		return nil, fmt.Errorf("collector: %s: device reported failure (errorcode %d)",
			path, gjson.GetBytes(raw, "errorcode").Int())
	}
	return raw, nil
}

func processCPU(raw []byte, switchIP string) (CPURecord, error) {
	cpu := gjson.GetBytes(raw, "data.cpu.0")
	if !cpu.Exists() {
		return CPURecord{}, fmt.Errorf("collector: cpu response missing data.cpu")
	}
	usage := cpu.Float()
	if usage < 0 || usage > 100 {
		return CPURecord{}, fmt.Errorf("collector: cpu usage %v out of range", usage)
	}
	status := "normal"
	switch {
	case usage >= 90:
		status = "critical"
		log.WithFields(log.Fields{"device": switchIP, "status": status}).Warnf("critical CPU usage: %.0f%%", usage)
	case usage >= 70:
		status = "warning"
		log.WithFields(log.Fields{"device": switchIP, "status": status}).Warnf("high CPU usage: %.0f%%", usage)
	}
	return CPURecord{SwitchIP: switchIP, UsagePercent: usage, Status: status}, nil
}

func processSystem(raw []byte, switchIP string) (SystemRecord, error) {
	data := gjson.GetBytes(raw, "data")
	if !data.Exists() {
		return SystemRecord{}, fmt.Errorf("collector: system response missing data")
	}
	return SystemRecord{
		SwitchIP:      switchIP,
		Model:         data.Get("model").String(),
		Firmware:      data.Get("firmware").String(),
		Temperature:   data.Get("temperature").Float(),
		UptimeSeconds: data.Get("uptime").Int(),
	}, nil
}

// processPorts merges the status and traffic responses on port number.
// Counters arrive as formatted strings ("1,234,567"); the separators are
// stripped before parsing.
func processPorts(statusRaw, trafficRaw []byte) ([]PortRecord, error) {
	status := make(map[int]gjson.Result)
	gjson.GetBytes(statusRaw, "data").ForEach(func(_, port gjson.Result) bool {
		status[int(port.Get("port").Int())] = port
		return true
	})

	var ports []PortRecord
	gjson.GetBytes(trafficRaw, "data").ForEach(func(_, port gjson.Result) bool {
		number := int(port.Get("port").Int())
		record := PortRecord{
			Port:      number,
			PacketsRx: cleanNumeric(port.Get("packetRx").String()),
			PacketsTx: cleanNumeric(port.Get("packetTx").String()),
			BytesRx:   cleanNumeric(port.Get("octetsRx").String()),
			BytesTx:   cleanNumeric(port.Get("octetsTx").String()),
		}
		if s, ok := status[number]; ok {
			record.Link = s.Get("link").String()
			record.State = s.Get("state").String()
			record.Speed = s.Get("speed").String()
			record.Connected = strings.EqualFold(record.Link, "up")
		}
		ports = append(ports, record)
		return true
	})
	if len(ports) == 0 {
		return nil, fmt.Errorf("collector: port traffic response has no ports")
	}
	return ports, nil
}

func processMACs(raw []byte) ([]MACRecord, error) {
	var macs []MACRecord
	gjson.GetBytes(raw, "data").ForEach(func(_, entry gjson.Result) bool {
		entryType := "dynamic"
		if entry.Get("type").Int() == 2 {
			entryType = "static"
		}
		macs = append(macs, MACRecord{
			VLAN: int(entry.Get("vlanId").Int()),
			MAC:  normalizeMAC(entry.Get("mac").String()),
			Port: entry.Get("port").String(),
			Type: entryType,
		})
		return true
	})
	return macs, nil
}

func countMACsPerPort(macs []MACRecord) map[string]int {
	counts := make(map[string]int)
	for _, m := range macs {
		counts[m.Port]++
	}
	return counts
}

func processLogs(raw []byte) ([]LogRecord, error) {
	var logs []LogRecord
	gjson.GetBytes(raw, "data").ForEach(func(_, entry gjson.Result) bool {
		logs = append(logs, LogRecord{
			Index:    int(entry.Get("index").Int()),
			Time:     entry.Get("time").String(),
			Module:   entry.Get("module").String(),
			Severity: entry.Get("severity").String(),
			Content:  entry.Get("content").String(),
		})
		return true
	})
	return logs, nil
}

// cleanNumeric parses counters the firmware renders with thousands
// separators.
func cleanNumeric(s string) int64 {
	s = strings.ReplaceAll(strings.TrimSpace(s), ",", "")
	if s == "" || s == "--" {
		return 0
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0
	}
	return n
}

// normalizeMAC lowercases and converts dash-separated MACs to colon form.
func normalizeMAC(mac string) string {
	return strings.ToLower(strings.ReplaceAll(mac, "-", ":"))
}
